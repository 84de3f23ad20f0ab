package referral

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockReferralRepo struct {
	referrals map[uuid.UUID]*Referral
}

func newMockReferralRepo() *mockReferralRepo {
	return &mockReferralRepo{referrals: make(map[uuid.UUID]*Referral)}
}

func (m *mockReferralRepo) Create(_ context.Context, r *Referral) error {
	r.ID = uuid.New()
	m.referrals[r.ID] = r
	return nil
}

func (m *mockReferralRepo) GetByID(_ context.Context, id uuid.UUID) (*Referral, error) {
	r, ok := m.referrals[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return r, nil
}

func (m *mockReferralRepo) Update(_ context.Context, r *Referral) error {
	m.referrals[r.ID] = r
	return nil
}

func (m *mockReferralRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Referral, error) {
	var result []*Referral
	for _, r := range m.referrals {
		if r.PatientID == patientID {
			result = append(result, r)
		}
	}
	return result, nil
}

func TestCreateReferralStartsPending(t *testing.T) {
	svc := NewService(newMockReferralRepo())
	svc.now = func() time.Time { return time.Unix(8000, 0) }
	ctx := context.Background()

	r := &Referral{PatientID: uuid.New(), HealthFacility: "Kilembe Mines Hospital"}
	if err := svc.CreateReferral(ctx, r); err != nil {
		t.Fatalf("CreateReferral: %v", err)
	}
	if r.Status != StatusPending {
		t.Errorf("expected pending, got %s", r.Status)
	}
	if !r.DateReferred.Equal(time.Unix(8000, 0)) {
		t.Errorf("date_referred not defaulted: %v", r.DateReferred)
	}

	if err := svc.CreateReferral(ctx, &Referral{PatientID: uuid.New()}); err == nil {
		t.Error("referral without a facility should be rejected")
	}
}

func TestTransition(t *testing.T) {
	svc := NewService(newMockReferralRepo())
	ctx := context.Background()

	r := &Referral{PatientID: uuid.New(), HealthFacility: "Bwera General"}
	if err := svc.CreateReferral(ctx, r); err != nil {
		t.Fatalf("CreateReferral: %v", err)
	}

	updated, err := svc.Transition(ctx, r.ID, StatusAssessed, nil)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if updated.Status != StatusAssessed {
		t.Errorf("expected assessed, got %s", updated.Status)
	}

	// Terminal states have no outgoing transitions.
	if _, err := svc.Transition(ctx, r.ID, StatusCancelled, nil); err == nil {
		t.Error("transition out of assessed should fail")
	}
}

func TestCancelRequiresReason(t *testing.T) {
	svc := NewService(newMockReferralRepo())
	ctx := context.Background()

	r := &Referral{PatientID: uuid.New(), HealthFacility: "Bwera General"}
	if err := svc.CreateReferral(ctx, r); err != nil {
		t.Fatalf("CreateReferral: %v", err)
	}

	if _, err := svc.Transition(ctx, r.ID, StatusCancelled, nil); err == nil {
		t.Error("cancel without a reason should fail")
	}
	reason := "patient moved out of the area"
	updated, err := svc.Transition(ctx, r.ID, StatusCancelled, &reason)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if updated.CancelReason == nil || *updated.CancelReason != reason {
		t.Error("cancel reason not recorded")
	}
}
