package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	patients    PatientRepository
	pregnancies PregnancyRepository
}

func NewService(patients PatientRepository, pregnancies PregnancyRepository) *Service {
	return &Service{patients: patients, pregnancies: pregnancies}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) ArchivePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Archive(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// CreatePregnancy rejects overlap with an ongoing pregnancy for the same
// patient.
func (s *Service) CreatePregnancy(ctx context.Context, p *Pregnancy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	existing, err := s.pregnancies.ListByPatient(ctx, p.PatientID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.EndDate == nil {
			return fmt.Errorf("patient %s already has an ongoing pregnancy", p.PatientID)
		}
	}
	return s.pregnancies.Create(ctx, p)
}

func (s *Service) GetPregnancy(ctx context.Context, id uuid.UUID) (*Pregnancy, error) {
	return s.pregnancies.GetByID(ctx, id)
}

// ClosePregnancy records the outcome and end date of an ongoing pregnancy.
func (s *Service) ClosePregnancy(ctx context.Context, p *Pregnancy) error {
	if p.EndDate == nil {
		return fmt.Errorf("end_date is required to close a pregnancy")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return s.pregnancies.Update(ctx, p)
}

func (s *Service) ListPregnancies(ctx context.Context, patientID uuid.UUID) ([]*Pregnancy, error) {
	return s.pregnancies.ListByPatient(ctx, patientID)
}
