// Package intake handles the new-patient form that also books appointments.
// The patient is stored first and its assigned id is used for every
// appointment. With a transactor the whole form commits or rolls back as
// one unit; without one a failed appointment deletes the patient again.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

type Patients interface {
	Create(ctx context.Context, ownerID uuid.UUID, p *patient.Patient) error
	Delete(ctx context.Context, ownerID, id uuid.UUID) (map[string]int, error)
}

type Appointments interface {
	Create(ctx context.Context, ownerID uuid.UUID, a *scheduling.Appointment) error
}

type OperationRecorder interface {
	RecordOperation(operation, outcome string)
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AppointmentInput struct {
	Date      string  `json:"date"`
	Time      string  `json:"time"`
	Duration  int     `json:"duration"`
	Treatment string  `json:"treatment"`
	Notes     *string `json:"notes"`
	Status    string  `json:"status"`
}

type Request struct {
	Patient      patient.CreateRequest `json:"patient"`
	Appointments []AppointmentInput    `json:"appointments"`
}

type Result struct {
	Patient      *patient.Patient          `json:"patient"`
	Appointments []*scheduling.Appointment `json:"appointments"`
}

type Service struct {
	patients     Patients
	appointments Appointments
	tx           TxRunner
	metrics      OperationRecorder
	logger       zerolog.Logger
}

func NewService(patients Patients, appointments Appointments, logger zerolog.Logger) *Service {
	return &Service{
		patients:     patients,
		appointments: appointments,
		logger:       logger.With().Str("component", "intake").Logger(),
	}
}

func (s *Service) SetMetrics(m OperationRecorder) { s.metrics = m }

func (s *Service) SetTransactor(tx TxRunner) { s.tx = tx }

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordOperation("patient_intake", outcome)
	}
}

func (s *Service) Submit(ctx context.Context, ownerID uuid.UUID, req Request) (*Result, error) {
	var res *Result
	var err error
	if s.tx == nil {
		res, err = s.submit(ctx, ownerID, req, true)
	} else {
		err = s.tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			res, err = s.submit(ctx, ownerID, req, false)
			return err
		})
	}
	if err != nil {
		return nil, err
	}
	s.record(telemetry.OutcomeSuccess)
	return res, nil
}

// submit writes the patient and then each appointment. When compensate is
// set a failed appointment deletes the patient through the cascade.
func (s *Service) submit(ctx context.Context, ownerID uuid.UUID, req Request, compensate bool) (*Result, error) {
	p := req.Patient.Patient()
	if err := s.patients.Create(ctx, ownerID, p); err != nil {
		return nil, err
	}

	res := &Result{Patient: p, Appointments: make([]*scheduling.Appointment, 0, len(req.Appointments))}
	for i, in := range req.Appointments {
		a := &scheduling.Appointment{
			PatientID:   p.ID,
			PatientName: p.Name,
			Date:        in.Date,
			Time:        in.Time,
			Duration:    in.Duration,
			Treatment:   in.Treatment,
			Notes:       in.Notes,
			Status:      scheduling.Status(in.Status),
		}
		if err := s.appointments.Create(ctx, ownerID, a); err != nil {
			if compensate {
				s.rollback(ctx, ownerID, p.ID)
			} else {
				s.record(telemetry.OutcomeRolledBack)
			}
			return nil, describe(i, err)
		}
		res.Appointments = append(res.Appointments, a)
	}
	return res, nil
}

// rollback removes the patient and, through the cascade, any appointments
// already booked for it.
func (s *Service) rollback(ctx context.Context, ownerID, patientID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if _, err := s.patients.Delete(ctx, ownerID, patientID); err != nil {
		s.record(telemetry.OutcomeFailure)
		s.logger.Error().Err(err).
			Str("patient_id", patientID.String()).
			Msg("intake rollback failed")
		return
	}
	s.record(telemetry.OutcomeCompensated)
}

// describe prefixes the client message with the 1-based appointment
// position, keeping the error kind.
func describe(i int, err error) error {
	kind := apperr.KindOf(err)
	if kind == "" {
		return err
	}
	return &apperr.Error{
		Kind:    kind,
		Message: fmt.Sprintf("appointment %d: %s", i+1, apperr.PublicMessage(err)),
		Err:     err,
	}
}
