package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func fixedStats() *PoolStats {
	return &PoolStats{TotalConns: 4, IdleConns: 3, AcquiredConns: 1, MaxConns: 20, Healthy: true}
}

func TestHealthHandler_Healthy(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := healthHandler(func(context.Context) error { return nil }, fixedStats)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("expected healthy status, got %s", rec.Body.String())
	}
}

func TestHealthHandler_UnhealthyHidesDriverError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ping := func(context.Context) error {
		return errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
	}
	h := healthHandler(ping, fixedStats)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "10.0.0.5") {
		t.Errorf("driver error leaked to client: %s", body)
	}
	if !strings.Contains(body, "database unavailable") {
		t.Errorf("expected short message, got %s", body)
	}
	if !strings.Contains(body, `"healthy":false`) {
		t.Errorf("expected pool marked unhealthy, got %s", body)
	}
}
