package identity

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	// Create assigns an id when p.ID is nil. A taken email yields ErrDuplicateEmail.
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	// ListAvailable returns doctors open for booking ordered by last then first name.
	ListAvailable(ctx context.Context) ([]*Doctor, error)
}
