package patient

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository stores patients. Every read and write is scoped to the
// owning user; a patient owned by someone else is not found.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Patient, int, error)
	// Search matches text case-insensitively against name, national id,
	// phone and email.
	Search(ctx context.Context, ownerID uuid.UUID, text string, limit, offset int) ([]*Patient, int, error)
	AddPhoto(ctx context.Context, ownerID, id uuid.UUID, photoID string) error
	// RemovePhoto succeeds when the reference is already gone.
	RemovePhoto(ctx context.Context, ownerID, id uuid.UUID, photoID string) error
}
