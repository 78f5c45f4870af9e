package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

// Dependent owns records that reference a patient. DeleteByPatient must be
// idempotent so an interrupted cascade can be retried.
type Dependent interface {
	DeleteByPatient(ctx context.Context, ownerID, patientID uuid.UUID) (int, error)
}

// AppointmentLister supplies the appointments embedded in a patient detail.
type AppointmentLister interface {
	QueryByPatient(ctx context.Context, ownerID, patientID uuid.UUID) ([]*scheduling.Appointment, error)
}

// OperationRecorder counts multi-step operations by outcome.
type OperationRecorder interface {
	RecordOperation(operation, outcome string)
}

// ChangeNotifier is told about every committed patient change.
type ChangeNotifier interface {
	Notify(ownerID uuid.UUID, resource, action, id string, data any)
}

type dependent struct {
	name string
	dep  Dependent
}

type Service struct {
	patients     PatientRepository
	dependents   []dependent
	appointments AppointmentLister
	metrics      OperationRecorder
	notifier     ChangeNotifier
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(patients PatientRepository, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		logger:   logger.With().Str("component", "patient").Logger(),
		now:      time.Now,
	}
}

// RegisterDependent adds a cascade target. Dependents are cleared in
// registration order before the patient row is removed.
func (s *Service) RegisterDependent(name string, d Dependent) {
	s.dependents = append(s.dependents, dependent{name: name, dep: d})
}

func (s *Service) SetAppointmentLister(l AppointmentLister) { s.appointments = l }

func (s *Service) SetMetrics(m OperationRecorder) { s.metrics = m }

func (s *Service) SetNotifier(n ChangeNotifier) { s.notifier = n }

// notify publishes once the surrounding transaction, if any, commits.
func (s *Service) notify(ctx context.Context, ownerID uuid.UUID, action string, id uuid.UUID, p *Patient) {
	if s.notifier == nil {
		return
	}
	var data any
	if p != nil {
		data = p
	}
	db.AfterCommit(ctx, func() {
		s.notifier.Notify(ownerID, "patient", action, id.String(), data)
	})
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordOperation("patient_cascade_delete", outcome)
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, p *Patient) error {
	p.PhotoIDs = nil
	if err := p.validate(); err != nil {
		return err
	}
	p.OwnerID = ownerID
	now := s.timestamp()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	s.notify(ctx, ownerID, "created", p.ID, p)
	return nil
}

func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, ownerID, id)
}

// Detail is a patient with its appointments read from the scheduler.
type Detail struct {
	*Patient
	Appointments []*scheduling.Appointment `json:"appointments"`
}

func (s *Service) Detail(ctx context.Context, ownerID, id uuid.UUID) (*Detail, error) {
	p, err := s.patients.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	d := &Detail{Patient: p, Appointments: []*scheduling.Appointment{}}
	if s.appointments != nil {
		appts, err := s.appointments.QueryByPatient(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		d.Appointments = appts
	}
	return d, nil
}

func (s *Service) Update(ctx context.Context, ownerID, id uuid.UUID, patch Patch) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	p.apply(patch)
	if err := p.validate(); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.timestamp()
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	s.notify(ctx, ownerID, "updated", p.ID, p)
	return p, nil
}

// Delete removes the patient after clearing every registered dependent. On
// a dependent failure the patient is kept so the whole delete can be
// retried. The result counts removed records per dependent.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) (map[string]int, error) {
	if _, err := s.patients.GetByID(ctx, ownerID, id); err != nil {
		return nil, err
	}

	removed := make(map[string]int, len(s.dependents))
	for _, d := range s.dependents {
		n, err := d.dep.DeleteByPatient(ctx, ownerID, id)
		if err != nil {
			s.logger.Error().Err(err).
				Str("patient_id", id.String()).
				Str("dependent", d.name).
				Msg("cascade delete interrupted")
			s.record(telemetry.OutcomeFailure)
			return nil, err
		}
		removed[d.name] = n
	}

	if err := s.patients.Delete(ctx, ownerID, id); err != nil {
		s.record(telemetry.OutcomeFailure)
		return nil, err
	}
	s.record(telemetry.OutcomeSuccess)
	s.notify(ctx, ownerID, "deleted", id, nil)
	s.logger.Info().
		Str("patient_id", id.String()).
		Interface("removed", removed).
		Msg("patient deleted")
	return removed, nil
}

func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, ownerID, limit, offset)
}

// Search with blank text is List.
func (s *Service) Search(ctx context.Context, ownerID uuid.UUID, text string, limit, offset int) ([]*Patient, int, error) {
	if escapeLike(text) == "" {
		return s.patients.List(ctx, ownerID, limit, offset)
	}
	return s.patients.Search(ctx, ownerID, text, limit, offset)
}

// PatientName resolves the display name booked onto new appointments.
func (s *Service) PatientName(ctx context.Context, ownerID, patientID uuid.UUID) (string, error) {
	p, err := s.patients.GetByID(ctx, ownerID, patientID)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

func (s *Service) AddPhoto(ctx context.Context, ownerID, patientID uuid.UUID, photoID string) error {
	return s.patients.AddPhoto(ctx, ownerID, patientID, photoID)
}

func (s *Service) RemovePhoto(ctx context.Context, ownerID, patientID uuid.UUID, photoID string) error {
	return s.patients.RemovePhoto(ctx, ownerID, patientID, photoID)
}
