package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

type stubPatients struct{ total int }

func (s stubPatients) List(context.Context, uuid.UUID, int, int) ([]*patient.Patient, int, error) {
	return []*patient.Patient{}, s.total, nil
}

type stubAppointments struct {
	all []*scheduling.Appointment
	err error
}

func (s *stubAppointments) QueryByDate(_ context.Context, _ uuid.UUID, date string) ([]*scheduling.Appointment, error) {
	var out []*scheduling.Appointment
	for _, a := range s.all {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out, s.err
}

func (s *stubAppointments) QueryUpcoming(context.Context, uuid.UUID, int) ([]*scheduling.Appointment, error) {
	return []*scheduling.Appointment{}, nil
}

func (s *stubAppointments) List(_ context.Context, _ uuid.UUID, p scheduling.ListParams) ([]*scheduling.Appointment, error) {
	var out []*scheduling.Appointment
	for _, a := range s.all {
		if p.Status != "" && string(a.Status) != p.Status {
			continue
		}
		if p.From != "" && a.Date < p.From {
			continue
		}
		if p.To != "" && a.Date > p.To {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type stubPhotos struct{ n int }

func (s stubPhotos) Count(context.Context, uuid.UUID) (int, error) { return s.n, nil }

type stubEvaluator struct {
	gotSQL   string
	gotOwner uuid.UUID
}

func (e *stubEvaluator) Evaluate(_ context.Context, sql string, ownerID uuid.UUID) ([]map[string]interface{}, error) {
	e.gotSQL, e.gotOwner = sql, ownerID
	return []map[string]interface{}{{"status": "scheduled", "total": int64(3)}}, nil
}

func appt(date, treatment string, status scheduling.Status) *scheduling.Appointment {
	return &scheduling.Appointment{ID: uuid.New(), Date: date, Time: "10:00", Treatment: treatment, Status: status}
}

func newTestService(appts *stubAppointments) (*Service, *stubEvaluator) {
	eval := &stubEvaluator{}
	svc := NewService(stubPatients{total: 7}, appts, stubPhotos{n: 4}, eval, time.UTC)
	svc.now = func() time.Time { return time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) }
	return svc, eval
}

func TestSummary(t *testing.T) {
	appts := &stubAppointments{all: []*scheduling.Appointment{
		appt("2024-06-10", "Botox", scheduling.StatusScheduled),
		appt("2024-06-03", "Botox", scheduling.StatusCompleted),
		appt("2024-06-30", "Peeling", scheduling.StatusCompleted),
		appt("2024-05-31", "Laser", scheduling.StatusCompleted),
		appt("2024-06-12", "Laser", scheduling.StatusCancelled),
		appt("2024-06-20", "Peeling", scheduling.StatusScheduled),
	}}
	svc, _ := newTestService(appts)

	sum, err := svc.Summary(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Patients != 7 || sum.Photos != 4 {
		t.Errorf("unexpected counts: patients %d photos %d", sum.Patients, sum.Photos)
	}
	if len(sum.Today) != 1 {
		t.Errorf("expected one appointment today, got %d", len(sum.Today))
	}
	if sum.CompletedThisMonth != 2 {
		t.Errorf("expected 2 completed in June, got %d", sum.CompletedThisMonth)
	}
	want := []TreatmentCount{{"Botox", 2}, {"Peeling", 2}, {"Laser", 1}}
	if len(sum.TopTreatments) != len(want) {
		t.Fatalf("unexpected top treatments %v", sum.TopTreatments)
	}
	for i := range want {
		if sum.TopTreatments[i] != want[i] {
			t.Errorf("position %d: got %v, want %v", i, sum.TopTreatments[i], want[i])
		}
	}
}

func TestSummary_PropagatesErrors(t *testing.T) {
	appts := &stubAppointments{err: apperr.Storage("search appointments", errors.New("down"))}
	svc, _ := newTestService(appts)
	if _, err := svc.Summary(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindStorage) {
		t.Errorf("expected storage error, got %v", err)
	}
}

func TestTopTreatments_Limit(t *testing.T) {
	var all []*scheduling.Appointment
	for _, tr := range []string{"a", "b", "c", "d", "e", "f", "f"} {
		all = append(all, appt("2024-06-01", tr, scheduling.StatusScheduled))
	}
	got := topTreatments(all, 3)
	if len(got) != 3 || got[0].Treatment != "f" || got[1].Treatment != "a" {
		t.Errorf("unexpected ranking %v", got)
	}
}

func TestMeasures(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Measures {
		if m.SQL == "" || m.Name == "" || m.Description == "" {
			t.Errorf("measure %s is incomplete", m.ID)
		}
		if !strings.Contains(m.SQL, "$1") {
			t.Errorf("measure %s is not scoped by owner", m.ID)
		}
		if seen[m.ID] {
			t.Errorf("duplicate measure id %s", m.ID)
		}
		seen[m.ID] = true
	}
	if FindMeasure("treatment-volume") == nil {
		t.Error("expected to find treatment-volume")
	}
	if FindMeasure("nonexistent") != nil {
		t.Error("expected nil for unknown measure")
	}
}

func TestEvaluateMeasure(t *testing.T) {
	svc, eval := newTestService(&stubAppointments{})
	owner := uuid.New()

	report, err := svc.EvaluateMeasure(context.Background(), owner, "appointments-by-status")
	if err != nil {
		t.Fatalf("EvaluateMeasure: %v", err)
	}
	if report.MeasureName != "Appointments by Status" || len(report.Results) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if eval.gotOwner != owner || eval.gotSQL != FindMeasure("appointments-by-status").SQL {
		t.Error("expected the measure SQL to run for the caller")
	}

	if _, err := svc.EvaluateMeasure(context.Background(), owner, "nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHandler_Summary(t *testing.T) {
	svc, _ := newTestService(&stubAppointments{})
	h := NewHandler(svc)
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), uuid.New().String()))
	rec := httptest.NewRecorder()

	if err := h.Summary(echo.New().NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"patients":7`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_ListMeasuresHidesSQL(t *testing.T) {
	svc, _ := newTestService(&stubAppointments{})
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/api/reports/measures", nil), rec)
	if err := NewHandler(svc).ListMeasures(c); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(rec.Body.String(), "SELECT") {
		t.Error("measure SQL must not be exposed")
	}
}
