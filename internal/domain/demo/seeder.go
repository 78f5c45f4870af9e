package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
)

type Patients interface {
	Create(ctx context.Context, ownerID uuid.UUID, p *patient.Patient) error
}

type Appointments interface {
	Create(ctx context.Context, ownerID uuid.UUID, a *scheduling.Appointment) error
}

// Config controls the volume and spread of generated data.
type Config struct {
	PatientCount           int
	AppointmentsPerPatient int
	// DaysBack and DaysAhead bound appointment dates around today.
	DaysBack  int
	DaysAhead int
	Seed      int64
}

func DefaultConfig() Config {
	return Config{
		PatientCount:           25,
		AppointmentsPerPatient: 3,
		DaysBack:               60,
		DaysAhead:              30,
	}
}

type Result struct {
	Patients     int           `json:"patients"`
	Appointments int           `json:"appointments"`
	Duration     time.Duration `json:"duration"`
}

// conflictRetries bounds how often a patient is regenerated when its
// national id is already taken.
const conflictRetries = 3

type Seeder struct {
	patients     Patients
	appointments Appointments
	loc          *time.Location
	logger       zerolog.Logger
	now          func() time.Time
}

func NewSeeder(patients Patients, appointments Appointments, loc *time.Location, logger zerolog.Logger) *Seeder {
	if loc == nil {
		loc = time.Local
	}
	return &Seeder{
		patients:     patients,
		appointments: appointments,
		loc:          loc,
		logger:       logger.With().Str("component", "demo").Logger(),
		now:          time.Now,
	}
}

// Run writes cfg.PatientCount patients for ownerID, each with its
// appointments, through the regular services.
func (s *Seeder) Run(ctx context.Context, ownerID uuid.UUID, cfg Config) (*Result, error) {
	if cfg.PatientCount < 0 || cfg.AppointmentsPerPatient < 0 || cfg.DaysBack < 0 || cfg.DaysAhead < 0 {
		return nil, apperr.Validation("seed counts must not be negative")
	}
	start := s.now()
	gen := NewGenerator(cfg.Seed)
	today := start.In(s.loc)
	res := &Result{}

	for i := 0; i < cfg.PatientCount; i++ {
		p, err := s.createPatient(ctx, ownerID, gen)
		if err != nil {
			return res, fmt.Errorf("patient %d: %w", i+1, err)
		}
		res.Patients++

		for j := 0; j < cfg.AppointmentsPerPatient; j++ {
			day, past := gen.Day(today, cfg.DaysBack, cfg.DaysAhead)
			a := gen.Appointment(p.ID, p.Treatments, day, past)
			if err := s.appointments.Create(ctx, ownerID, a); err != nil {
				return res, fmt.Errorf("appointment for %s: %w", p.Name, err)
			}
			res.Appointments++
		}
	}

	res.Duration = s.now().Sub(start)
	s.logger.Info().
		Str("owner_id", ownerID.String()).
		Int("patients", res.Patients).
		Int("appointments", res.Appointments).
		Msg("demo data seeded")
	return res, nil
}

func (s *Seeder) createPatient(ctx context.Context, ownerID uuid.UUID, gen *Generator) (*patient.Patient, error) {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		p := gen.Patient()
		if err = s.patients.Create(ctx, ownerID, p); err == nil {
			return p, nil
		}
		if !apperr.Is(err, apperr.KindConflict) {
			return nil, err
		}
	}
	return nil, err
}
