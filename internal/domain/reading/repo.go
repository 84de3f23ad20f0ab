package reading

import (
	"context"

	"github.com/google/uuid"
)

type ReadingRepository interface {
	Create(ctx context.Context, r *Reading) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reading, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Reading, error)
}

type AssessmentRepository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	Update(ctx context.Context, a *Assessment) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Assessment, error)
}
