package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// AppointmentRepository persists appointments. Every read and write is
// scoped to the owning user; a record owned by someone else is not found.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	DeleteByPatient(ctx context.Context, ownerID, patientID uuid.UUID) (int, error)
	// Search returns matches ordered by date, time, then creation.
	Search(ctx context.Context, ownerID uuid.UUID, f Filter) ([]*Appointment, error)
}
