package referral

import (
	"context"

	"github.com/google/uuid"
)

type ReferralRepository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	Update(ctx context.Context, r *Referral) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Referral, error)
}
