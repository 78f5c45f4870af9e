// Package dashboard aggregates the owner's patients, appointments and photos
// for the home screen and evaluates predefined reports.
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
)

type PatientSource interface {
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*patient.Patient, int, error)
}

type AppointmentSource interface {
	QueryByDate(ctx context.Context, ownerID uuid.UUID, date string) ([]*scheduling.Appointment, error)
	QueryUpcoming(ctx context.Context, ownerID uuid.UUID, limit int) ([]*scheduling.Appointment, error)
	List(ctx context.Context, ownerID uuid.UUID, p scheduling.ListParams) ([]*scheduling.Appointment, error)
}

type PhotoSource interface {
	Count(ctx context.Context, ownerID uuid.UUID) (int, error)
}

const (
	upcomingLimit      = 5
	topTreatmentsLimit = 5
)

type TreatmentCount struct {
	Treatment string `json:"treatment"`
	Count     int    `json:"count"`
}

type Summary struct {
	Patients           int                       `json:"patients"`
	Today              []*scheduling.Appointment `json:"today"`
	Upcoming           []*scheduling.Appointment `json:"upcoming"`
	CompletedThisMonth int                       `json:"completedThisMonth"`
	Photos             int                       `json:"photos"`
	TopTreatments      []TreatmentCount          `json:"topTreatments"`
	GeneratedAt        time.Time                 `json:"generatedAt"`
}

type Service struct {
	patients     PatientSource
	appointments AppointmentSource
	photos       PhotoSource
	measures     Evaluator
	loc          *time.Location
	now          func() time.Time
}

func NewService(patients PatientSource, appointments AppointmentSource, photos PhotoSource, measures Evaluator, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		patients:     patients,
		appointments: appointments,
		photos:       photos,
		measures:     measures,
		loc:          loc,
		now:          time.Now,
	}
}

// Summary loads each figure concurrently. Dates are evaluated in the clinic
// time zone.
func (s *Service) Summary(ctx context.Context, ownerID uuid.UUID) (*Summary, error) {
	now := s.now().In(s.loc)
	today := now.Format(scheduling.DateLayout)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	monthEnd := monthStart.AddDate(0, 1, -1)

	sum := &Summary{GeneratedAt: now.UTC()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, total, err := s.patients.List(ctx, ownerID, 1, 0)
		sum.Patients = total
		return err
	})
	g.Go(func() error {
		var err error
		sum.Today, err = s.appointments.QueryByDate(ctx, ownerID, today)
		return err
	})
	g.Go(func() error {
		var err error
		sum.Upcoming, err = s.appointments.QueryUpcoming(ctx, ownerID, upcomingLimit)
		return err
	})
	g.Go(func() error {
		done, err := s.appointments.List(ctx, ownerID, scheduling.ListParams{
			Status: string(scheduling.StatusCompleted),
			From:   monthStart.Format(scheduling.DateLayout),
			To:     monthEnd.Format(scheduling.DateLayout),
		})
		sum.CompletedThisMonth = len(done)
		return err
	})
	g.Go(func() error {
		var err error
		sum.Photos, err = s.photos.Count(ctx, ownerID)
		return err
	})
	g.Go(func() error {
		all, err := s.appointments.List(ctx, ownerID, scheduling.ListParams{})
		sum.TopTreatments = topTreatments(all, topTreatmentsLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sum, nil
}

// topTreatments ranks treatments by appointment count, ignoring cancelled
// ones. Ties are broken alphabetically.
func topTreatments(appts []*scheduling.Appointment, limit int) []TreatmentCount {
	counts := map[string]int{}
	for _, a := range appts {
		if a.Status == scheduling.StatusCancelled {
			continue
		}
		counts[a.Treatment]++
	}
	out := make([]TreatmentCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TreatmentCount{Treatment: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Treatment < out[j].Treatment
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Service) EvaluateMeasure(ctx context.Context, ownerID uuid.UUID, id string) (*MeasureReport, error) {
	m := FindMeasure(id)
	if m == nil {
		return nil, apperr.NotFound("measure")
	}
	results, err := s.measures.Evaluate(ctx, m.SQL, ownerID)
	if err != nil {
		return nil, err
	}
	return &MeasureReport{
		MeasureID:   m.ID,
		MeasureName: m.Name,
		GeneratedAt: s.now().UTC(),
		Results:     results,
	}, nil
}
