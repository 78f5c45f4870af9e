package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func renderError(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/appointments/1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "rid-1")

	ErrorHandler(zerolog.Nop())(err, c)

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return rec, body
}

func TestErrorHandler_AppErrKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", apperr.Validation("duration must be positive"), http.StatusBadRequest, "duration must be positive"},
		{"not found", apperr.NotFound("appointment"), http.StatusNotFound, "appointment not found"},
		{"conflict", apperr.Conflict("national id already registered"), http.StatusBadRequest, "national id already registered"},
		{"unauthorized", apperr.Unauthorized("authentication required"), http.StatusUnauthorized, "authentication required"},
		{"storage", apperr.Storage("insert appointment", errors.New("conn refused on 10.0.0.3")), http.StatusServiceUnavailable, "storage unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := renderError(t, tt.err)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			if body.Error != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, body.Error)
			}
			if body.RequestID != "rid-1" {
				t.Errorf("expected request id rid-1, got %q", body.RequestID)
			}
		})
	}
}

func TestErrorHandler_EchoHTTPError(t *testing.T) {
	rec, body := renderError(t, echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if body.Error != "rate limit exceeded" {
		t.Errorf("unexpected message %q", body.Error)
	}
}

func TestErrorHandler_UnknownErrorIsGeneric(t *testing.T) {
	rec, body := renderError(t, errors.New("pq: relation \"secret_table\" does not exist"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if body.Error != "internal server error" {
		t.Errorf("expected generic message, got %q", body.Error)
	}
	if strings.Contains(rec.Body.String(), "secret_table") {
		t.Error("internal error details leaked to the client")
	}
}

func TestErrorHandler_SkipsCommittedResponse(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/photos/1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = c.String(http.StatusOK, "partial")

	ErrorHandler(zerolog.Nop())(errors.New("late failure"), c)

	if rec.Body.String() != "partial" {
		t.Errorf("expected body untouched, got %q", rec.Body.String())
	}
}
