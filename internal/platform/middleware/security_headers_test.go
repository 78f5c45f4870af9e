package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders_API(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := SecurityHeaders()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Content-Security-Policy": apiCSP,
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: expected %q, got %q", header, want, got)
		}
	}
}

func TestSecurityHeaders_UI(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = SecurityHeaders()(func(c echo.Context) error {
		return c.String(http.StatusOK, "<html></html>")
	})(c)

	if got := rec.Header().Get("Content-Security-Policy"); got != uiCSP {
		t.Errorf("expected UI CSP, got %q", got)
	}
	if rec.Header().Get("Cache-Control") != "" {
		t.Error("static assets should stay cacheable")
	}
}

func TestSecurityHeaders_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	want := errors.New("boom")
	err := SecurityHeaders()(func(c echo.Context) error { return want })(c)
	if !errors.Is(err, want) {
		t.Errorf("expected handler error to propagate, got %v", err)
	}
}
