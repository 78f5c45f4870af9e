package photo

import (
	"context"

	"github.com/google/uuid"
)

type PhotoRepository interface {
	Create(ctx context.Context, p *Photo) error
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Photo, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	// ListByPatient returns the patient's photos oldest first.
	ListByPatient(ctx context.Context, ownerID, patientID uuid.UUID) ([]*Photo, error)
	Count(ctx context.Context, ownerID uuid.UUID) (int, error)
}
