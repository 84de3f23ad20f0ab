package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	referrals ReferralRepository
	now       func() time.Time
}

func NewService(referrals ReferralRepository) *Service {
	return &Service{referrals: referrals, now: time.Now}
}

func (s *Service) CreateReferral(ctx context.Context, r *Referral) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.Status = StatusPending
	if r.DateReferred.IsZero() {
		r.DateReferred = s.now()
	}
	return s.referrals.Create(ctx, r)
}

func (s *Service) GetReferral(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.referrals.GetByID(ctx, id)
}

func (s *Service) ListReferralsByPatient(ctx context.Context, patientID uuid.UUID) ([]*Referral, error) {
	return s.referrals.ListByPatient(ctx, patientID)
}

// Transition moves a pending referral to a terminal status. Cancellation
// requires a reason.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, next Status, cancelReason *string) (*Referral, error) {
	r, err := s.referrals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.CanTransition(next) {
		return nil, fmt.Errorf("referral %s cannot move from %s to %s", id, r.Status, next)
	}
	if next == StatusCancelled && cancelReason == nil {
		return nil, fmt.Errorf("cancel_reason is required to cancel a referral")
	}
	r.Status = next
	r.CancelReason = cancelReason
	if err := s.referrals.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}
