package reading

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	readings    ReadingRepository
	assessments AssessmentRepository
	now         func() time.Time
}

func NewService(readings ReadingRepository, assessments AssessmentRepository) *Service {
	return &Service{readings: readings, assessments: assessments, now: time.Now}
}

// CreateReading validates the vitals and derives the traffic light before
// persisting. The stored band never changes afterwards; a retest creates a
// new reading linked through retest_of_id.
func (s *Service) CreateReading(ctx context.Context, r *Reading) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.TrafficLightStatus = DeriveTrafficLight(r.Systolic, r.Diastolic, r.HeartRate)
	if r.DateTaken.IsZero() {
		r.DateTaken = s.now()
	}
	return s.readings.Create(ctx, r)
}

func (s *Service) GetReading(ctx context.Context, id uuid.UUID) (*Reading, error) {
	return s.readings.GetByID(ctx, id)
}

func (s *Service) ListReadingsByPatient(ctx context.Context, patientID uuid.UUID) ([]*Reading, error) {
	return s.readings.ListByPatient(ctx, patientID)
}

func (s *Service) CreateAssessment(ctx context.Context, a *Assessment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.DateAssessed.IsZero() {
		a.DateAssessed = s.now()
	}
	return s.assessments.Create(ctx, a)
}

func (s *Service) GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return s.assessments.GetByID(ctx, id)
}

func (s *Service) UpdateAssessment(ctx context.Context, a *Assessment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.assessments.Update(ctx, a)
}

func (s *Service) ListAssessmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]*Assessment, error) {
	return s.assessments.ListByPatient(ctx, patientID)
}
