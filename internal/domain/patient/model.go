package patient

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Sex             string     `db:"sex" json:"sex"`
	DateOfBirth     *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	IsExactDOB      bool       `db:"is_exact_dob" json:"is_exact_dob"`
	Village         *string    `db:"village" json:"village,omitempty"`
	Zone            *string    `db:"zone" json:"zone,omitempty"`
	HouseholdNumber *string    `db:"household_number" json:"household_number,omitempty"`
	AllergyHistory  *string    `db:"allergy_history" json:"allergy_history,omitempty"`
	DrugHistory     *string    `db:"drug_history" json:"drug_history,omitempty"`
	MedicalHistory  *string    `db:"medical_history" json:"medical_history,omitempty"`
	IsArchived      bool       `db:"is_archived" json:"is_archived"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// ToRecord flattens the patient for rule evaluation. Derived fields such as
// age are computed by the data catalogue, not here.
func (p *Patient) ToRecord() map[string]interface{} {
	rec := map[string]interface{}{
		"id":           p.ID.String(),
		"name":         p.Name,
		"sex":          p.Sex,
		"is_exact_dob": p.IsExactDOB,
	}
	if p.DateOfBirth != nil {
		rec["date_of_birth"] = p.DateOfBirth.Format("2006-01-02")
	}
	if p.Village != nil {
		rec["village"] = *p.Village
	}
	if p.Zone != nil {
		rec["zone"] = *p.Zone
	}
	if p.AllergyHistory != nil {
		rec["allergy_history"] = *p.AllergyHistory
	}
	if p.DrugHistory != nil {
		rec["drug_history"] = *p.DrugHistory
	}
	if p.MedicalHistory != nil {
		rec["medical_history"] = *p.MedicalHistory
	}
	return rec
}

var validSexes = map[string]bool{
	"male": true, "female": true, "other": true,
}

// Validate checks the fields a caller controls at create and update time.
func (p *Patient) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validSexes[p.Sex] {
		return fmt.Errorf("invalid sex: %s", p.Sex)
	}
	return nil
}

// Pregnancy maps to the pregnancy table. EndDate is null while the pregnancy
// is ongoing.
type Pregnancy struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	StartDate time.Time  `db:"start_date" json:"start_date"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	Outcome   *string    `db:"outcome" json:"outcome,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Pregnancy) ToRecord() map[string]interface{} {
	rec := map[string]interface{}{
		"id":         p.ID.String(),
		"patient_id": p.PatientID.String(),
		"start_date": p.StartDate.Format(time.RFC3339),
		"is_ongoing": p.EndDate == nil,
	}
	if p.EndDate != nil {
		rec["end_date"] = p.EndDate.Format(time.RFC3339)
	}
	if p.Outcome != nil {
		rec["outcome"] = *p.Outcome
	}
	return rec
}

func (p *Pregnancy) Validate() error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if p.StartDate.IsZero() {
		return fmt.Errorf("start_date is required")
	}
	if p.EndDate != nil && p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("end_date precedes start_date")
	}
	return nil
}
