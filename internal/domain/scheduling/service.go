package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

// PatientDirectory resolves a patient owned by ownerID to its current
// display name. It returns a not_found error for unknown or foreign ids.
type PatientDirectory interface {
	PatientName(ctx context.Context, ownerID, patientID uuid.UUID) (string, error)
}

// ChangeNotifier is told about every committed change so open clients can
// refresh.
type ChangeNotifier interface {
	Notify(ownerID uuid.UUID, resource, action, id string, data any)
}

const resourceName = "appointment"

type Service struct {
	appointments AppointmentRepository
	patients     PatientDirectory
	notifier     ChangeNotifier
	loc          *time.Location
	now          func() time.Time
}

func NewService(appts AppointmentRepository, patients PatientDirectory, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{appointments: appts, patients: patients, loc: loc, now: time.Now}
}

func (s *Service) SetNotifier(n ChangeNotifier) { s.notifier = n }

func (s *Service) notify(ctx context.Context, ownerID uuid.UUID, action, id string, data any) {
	if s.notifier != nil {
		db.AfterCommit(ctx, func() {
			s.notifier.Notify(ownerID, resourceName, action, id, data)
		})
	}
}

// timestamp matches the microsecond precision Postgres stores.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Create books a for the patient it references. The patient must exist and
// belong to ownerID; an empty PatientName is filled from the directory.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, a *Appointment) error {
	if a.Status == "" {
		a.Status = StatusScheduled
	} else {
		st, err := ParseStatus(string(a.Status))
		if err != nil {
			return err
		}
		a.Status = st
	}
	if err := a.validate(); err != nil {
		return err
	}

	name, err := s.patients.PatientName(ctx, ownerID, a.PatientID)
	if err != nil {
		return err
	}
	if a.PatientName == "" {
		a.PatientName = name
	}

	a.OwnerID = ownerID
	now := s.timestamp()
	a.CreatedAt, a.UpdatedAt = now, now
	if err := s.appointments.Create(ctx, a); err != nil {
		return err
	}
	s.notify(ctx, ownerID, "created", a.ID.String(), a)
	return nil
}

func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, ownerID, id)
}

// Update merges p into the stored appointment. The id, owner, patient and
// creation time never change.
func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, p Patch) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if p.PatientName != nil {
		a.PatientName = *p.PatientName
	}
	if p.Date != nil {
		a.Date = *p.Date
	}
	if p.Time != nil {
		a.Time = *p.Time
	}
	if p.Duration != nil {
		a.Duration = *p.Duration
	}
	if p.Treatment != nil {
		a.Treatment = *p.Treatment
	}
	if p.Notes != nil {
		a.Notes = p.Notes
	}
	if p.Status != nil {
		st, err := ParseStatus(*p.Status)
		if err != nil {
			return nil, err
		}
		a.Status = st
	}
	if err := a.validate(); err != nil {
		return nil, err
	}

	a.UpdatedAt = s.timestamp()
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	s.notify(ctx, ownerID, "updated", a.ID.String(), a)
	return a, nil
}

func (s *Service) Reschedule(ctx context.Context, ownerID, id uuid.UUID, date, clock string) (*Appointment, error) {
	if date == "" || clock == "" {
		return nil, apperr.Validation("date and time are required")
	}
	return s.Update(ctx, ownerID, id, Patch{Date: &date, Time: &clock})
}

// MarkCompleted moves the appointment to completed from any status.
func (s *Service) MarkCompleted(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	st := string(StatusCompleted)
	return s.Update(ctx, ownerID, id, Patch{Status: &st})
}

func (s *Service) Cancel(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	st := string(StatusCancelled)
	return s.Update(ctx, ownerID, id, Patch{Status: &st})
}

func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if err := s.appointments.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.notify(ctx, ownerID, "deleted", id.String(), nil)
	return nil
}

// DeleteByPatient removes every appointment of the patient. Running it again
// removes nothing and succeeds.
func (s *Service) DeleteByPatient(ctx context.Context, ownerID, patientID uuid.UUID) (int, error) {
	n, err := s.appointments.DeleteByPatient(ctx, ownerID, patientID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify(ctx, ownerID, "deleted", "", map[string]any{"patientId": patientID, "count": n})
	}
	return n, nil
}

func (s *Service) QueryByDate(ctx context.Context, ownerID uuid.UUID, date string) ([]*Appointment, error) {
	d, err := normalizeDate(date)
	if err != nil {
		return nil, err
	}
	return s.appointments.Search(ctx, ownerID, Filter{Date: d})
}

func (s *Service) QueryByPatient(ctx context.Context, ownerID, patientID uuid.UUID) ([]*Appointment, error) {
	return s.appointments.Search(ctx, ownerID, Filter{PatientID: patientID})
}

// QueryUpcoming returns appointments that start strictly after now and are
// not cancelled, soonest first. limit <= 0 returns all of them.
func (s *Service) QueryUpcoming(ctx context.Context, ownerID uuid.UUID, limit int) ([]*Appointment, error) {
	now := s.now().In(s.loc)
	candidates, err := s.appointments.Search(ctx, ownerID, Filter{
		From:          now.Format(DateLayout),
		ExcludeStatus: StatusCancelled,
	})
	if err != nil {
		return nil, err
	}

	upcoming := make([]*Appointment, 0, len(candidates))
	instants := make(map[uuid.UUID]time.Time, len(candidates))
	for _, a := range candidates {
		if a.Status == StatusCancelled {
			continue
		}
		at, err := a.Instant(s.loc)
		if err != nil || !at.After(now) {
			continue
		}
		instants[a.ID] = at
		upcoming = append(upcoming, a)
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return instants[upcoming[i].ID].Before(instants[upcoming[j].ID])
	})

	if limit > 0 && len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	return upcoming, nil
}

// History returns the patient's completed appointments, most recent first.
func (s *Service) History(ctx context.Context, ownerID, patientID uuid.UUID) ([]*Appointment, error) {
	done, err := s.appointments.Search(ctx, ownerID, Filter{PatientID: patientID, Status: StatusCompleted})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(done, func(i, j int) bool {
		ai, _ := done[i].Instant(s.loc)
		aj, _ := done[j].Instant(s.loc)
		return ai.After(aj)
	})
	return done, nil
}

// ListParams narrows List. Empty fields do not filter.
type ListParams struct {
	Status string
	From   string
	To     string
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID, p ListParams) ([]*Appointment, error) {
	var f Filter
	var err error
	if p.Status != "" {
		if f.Status, err = ParseStatus(p.Status); err != nil {
			return nil, err
		}
	}
	if p.From != "" {
		if f.From, err = normalizeDate(p.From); err != nil {
			return nil, err
		}
	}
	if p.To != "" {
		if f.To, err = normalizeDate(p.To); err != nil {
			return nil, err
		}
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		return nil, apperr.Validation("from must not be after to")
	}
	return s.appointments.Search(ctx, ownerID, f)
}
