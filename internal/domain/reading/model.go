package reading

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TrafficLight is the risk band derived from a blood pressure reading.
// The Up/Down suffix distinguishes high blood pressure from shock.
type TrafficLight string

const (
	TrafficGreen      TrafficLight = "GREEN"
	TrafficYellowUp   TrafficLight = "YELLOW_UP"
	TrafficYellowDown TrafficLight = "YELLOW_DOWN"
	TrafficRedUp      TrafficLight = "RED_UP"
	TrafficRedDown    TrafficLight = "RED_DOWN"
)

// Vital sign thresholds for traffic light derivation.
const (
	redSystolic     = 160
	redDiastolic    = 110
	yellowSystolic  = 140
	yellowDiastolic = 90
	shockHigh       = 1.7
	shockMedium     = 0.9
)

// Reading maps to the reading table. TrafficLightStatus is derived once at
// create time and stored.
type Reading struct {
	ID                 uuid.UUID    `db:"id" json:"id"`
	PatientID          uuid.UUID    `db:"patient_id" json:"patient_id"`
	Systolic           int          `db:"systolic" json:"systolic"`
	Diastolic          int          `db:"diastolic" json:"diastolic"`
	HeartRate          int          `db:"heart_rate" json:"heart_rate"`
	Symptoms           []string     `db:"symptoms" json:"symptoms,omitempty"`
	TrafficLightStatus TrafficLight `db:"traffic_light_status" json:"traffic_light_status"`
	DateTaken          time.Time    `db:"date_taken" json:"date_taken"`
	RetestOfID         *uuid.UUID   `db:"retest_of_id" json:"retest_of_id,omitempty"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
}

// DeriveTrafficLight computes the risk band: red/yellow "up" for elevated
// blood pressure, red/yellow "down" for a high shock index (heart rate over
// systolic pressure).
func DeriveTrafficLight(systolic, diastolic, heartRate int) TrafficLight {
	shockIndex := 0.0
	if systolic > 0 {
		shockIndex = float64(heartRate) / float64(systolic)
	}
	switch {
	case systolic >= redSystolic || diastolic >= redDiastolic:
		return TrafficRedUp
	case shockIndex >= shockHigh:
		return TrafficRedDown
	case systolic >= yellowSystolic || diastolic >= yellowDiastolic:
		return TrafficYellowUp
	case shockIndex >= shockMedium:
		return TrafficYellowDown
	default:
		return TrafficGreen
	}
}

func (r *Reading) ToRecord() map[string]interface{} {
	rec := map[string]interface{}{
		"id":                   r.ID.String(),
		"patient_id":           r.PatientID.String(),
		"systolic":             r.Systolic,
		"diastolic":            r.Diastolic,
		"heart_rate":           r.HeartRate,
		"traffic_light_status": string(r.TrafficLightStatus),
		"date_taken":           r.DateTaken.Format(time.RFC3339),
	}
	if len(r.Symptoms) > 0 {
		rec["symptoms"] = r.Symptoms
	}
	return rec
}

func (r *Reading) Validate() error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if r.Systolic < 10 || r.Systolic > 300 {
		return fmt.Errorf("systolic %d out of range", r.Systolic)
	}
	if r.Diastolic < 10 || r.Diastolic > 300 {
		return fmt.Errorf("diastolic %d out of range", r.Diastolic)
	}
	if r.HeartRate < 20 || r.HeartRate > 250 {
		return fmt.Errorf("heart_rate %d out of range", r.HeartRate)
	}
	return nil
}

// Assessment maps to the assessment table: a health worker's follow-up on a
// reading.
type Assessment struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	PatientID           uuid.UUID  `db:"patient_id" json:"patient_id"`
	ReadingID           *uuid.UUID `db:"reading_id" json:"reading_id,omitempty"`
	HealthWorkerID      *uuid.UUID `db:"health_worker_id" json:"health_worker_id,omitempty"`
	Diagnosis           *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	Treatment           *string    `db:"treatment" json:"treatment,omitempty"`
	Medication          *string    `db:"medication" json:"medication,omitempty"`
	FollowUpNeeded      bool       `db:"follow_up_needed" json:"follow_up_needed"`
	FollowUpInstruction *string    `db:"follow_up_instruction" json:"follow_up_instruction,omitempty"`
	DateAssessed        time.Time  `db:"date_assessed" json:"date_assessed"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}

func (a *Assessment) ToRecord() map[string]interface{} {
	rec := map[string]interface{}{
		"id":               a.ID.String(),
		"patient_id":       a.PatientID.String(),
		"follow_up_needed": a.FollowUpNeeded,
		"date_assessed":    a.DateAssessed.Format(time.RFC3339),
	}
	if a.Diagnosis != nil {
		rec["diagnosis"] = *a.Diagnosis
	}
	if a.Treatment != nil {
		rec["treatment"] = *a.Treatment
	}
	if a.Medication != nil {
		rec["medication"] = *a.Medication
	}
	if a.FollowUpInstruction != nil {
		rec["follow_up_instruction"] = *a.FollowUpInstruction
	}
	return rec
}

func (a *Assessment) Validate() error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if a.FollowUpNeeded && a.FollowUpInstruction == nil {
		return fmt.Errorf("follow_up_instruction is required when follow up is needed")
	}
	return nil
}
