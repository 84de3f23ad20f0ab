package referral

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the referral lifecycle.
type Status string

const (
	StatusPending     Status = "pending"
	StatusAssessed    Status = "assessed"
	StatusCancelled   Status = "cancelled"
	StatusNotAttended Status = "not_attended"
)

// Referral maps to the referral table: a request to send a patient to a
// health facility.
type Referral struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	ReadingID      *uuid.UUID `db:"reading_id" json:"reading_id,omitempty"`
	HealthFacility string     `db:"health_facility" json:"health_facility"`
	Comment        *string    `db:"comment" json:"comment,omitempty"`
	Status         Status     `db:"status" json:"status"`
	CancelReason   *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	DateReferred   time.Time  `db:"date_referred" json:"date_referred"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (r *Referral) ToRecord() map[string]interface{} {
	rec := map[string]interface{}{
		"id":              r.ID.String(),
		"patient_id":      r.PatientID.String(),
		"health_facility": r.HealthFacility,
		"status":          string(r.Status),
		"date_referred":   r.DateReferred.Format(time.RFC3339),
	}
	if r.Comment != nil {
		rec["comment"] = *r.Comment
	}
	return rec
}

func (r *Referral) Validate() error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if r.HealthFacility == "" {
		return fmt.Errorf("health_facility is required")
	}
	return nil
}

// CanTransition reports whether the referral status may move to next.
// Pending is the only state with outgoing transitions.
func (r *Referral) CanTransition(next Status) bool {
	if r.Status != StatusPending {
		return false
	}
	switch next {
	case StatusAssessed, StatusCancelled, StatusNotAttended:
		return true
	}
	return false
}
