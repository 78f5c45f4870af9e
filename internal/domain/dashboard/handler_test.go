package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/middleware"
)

// newTestServer mounts the dashboard routes behind a stand-in session that
// authenticates every request as owner.
func newTestServer(svc *Service, owner uuid.UUID) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(zerolog.Nop())
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithUserID(c.Request().Context(), owner.String())))
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(api)
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDashboardRoute_JSONShape(t *testing.T) {
	svc, _ := newTestService(&stubAppointments{all: []*scheduling.Appointment{
		appt("2024-06-10", "Botox", scheduling.StatusScheduled),
		appt("2024-06-03", "Peeling", scheduling.StatusCompleted),
	}})
	rec := get(newTestServer(svc, uuid.New()), "/api/dashboard")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != echo.MIMEApplicationJSONCharsetUTF8 && ct != echo.MIMEApplicationJSON {
		t.Errorf("unexpected content type %q", ct)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"patients", "today", "upcoming", "completedThisMonth", "photos", "topTreatments", "generatedAt"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing key %q in %s", key, rec.Body.String())
		}
	}

	var sum Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.Patients != 7 || sum.Photos != 4 || len(sum.Today) != 1 || sum.CompletedThisMonth != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestMeasureRoutes(t *testing.T) {
	svc, eval := newTestService(&stubAppointments{})
	owner := uuid.New()
	e := newTestServer(svc, owner)

	rec := get(e, "/api/reports/measures/treatment-volume/evaluate")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report MeasureReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.MeasureID != "treatment-volume" || eval.gotOwner != owner {
		t.Errorf("unexpected report %+v for owner %s", report, eval.gotOwner)
	}

	rec = get(e, "/api/reports/measures/no-such-measure/evaluate")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var errBody map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errBody["error"] != "measure not found" {
		t.Errorf("unexpected error body %v", errBody)
	}
}
