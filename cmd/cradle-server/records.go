package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/drbfraser/CRADLE-Platform-sub001/internal/domain/patient"
	"github.com/drbfraser/CRADLE-Platform-sub001/internal/domain/reading"
	"github.com/drbfraser/CRADLE-Platform-sub001/internal/domain/referral"
	"github.com/drbfraser/CRADLE-Platform-sub001/internal/platform/rules"
)

// repoRecordSource adapts the domain repositories to the rules.RecordSource
// interface, avoiding circular imports between the rules and domain packages.
// Domain models flatten themselves via ToRecord; a missing record is reported
// as (nil, nil) per the RecordSource contract.
type repoRecordSource struct {
	patients    patient.PatientRepository
	pregnancies patient.PregnancyRepository
	readings    reading.ReadingRepository
	assessments reading.AssessmentRepository
	referrals   referral.ReferralRepository
}

func newRepoRecordSource(
	patients patient.PatientRepository,
	pregnancies patient.PregnancyRepository,
	readings reading.ReadingRepository,
	assessments reading.AssessmentRepository,
	referrals referral.ReferralRepository,
) *repoRecordSource {
	return &repoRecordSource{
		patients:    patients,
		pregnancies: pregnancies,
		readings:    readings,
		assessments: assessments,
		referrals:   referrals,
	}
}

func (s *repoRecordSource) ReadOne(ctx context.Context, ns rules.Namespace, rc rules.RecordContext) (rules.Record, error) {
	if ns != rules.NamespacePatient {
		return nil, nil
	}
	p, err := s.patients.GetByID(ctx, rc.PatientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p.ToRecord(), nil
}

func (s *repoRecordSource) ReadMany(ctx context.Context, ns rules.Namespace, rc rules.RecordContext) ([]rules.Record, error) {
	switch ns {
	case rules.NamespacePregnancy:
		if rc.PregnancyID != nil {
			p, err := s.pregnancies.GetByID(ctx, *rc.PregnancyID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, nil
				}
				return nil, err
			}
			if p.PatientID != rc.PatientID {
				return nil, nil
			}
			return []rules.Record{p.ToRecord()}, nil
		}
		items, err := s.pregnancies.ListByPatient(ctx, rc.PatientID)
		if err != nil {
			return nil, err
		}
		records := make([]rules.Record, 0, len(items))
		for _, p := range items {
			records = append(records, p.ToRecord())
		}
		return records, nil

	case rules.NamespaceReading:
		items, err := s.readings.ListByPatient(ctx, rc.PatientID)
		if err != nil {
			return nil, err
		}
		records := make([]rules.Record, 0, len(items))
		for _, r := range items {
			records = append(records, r.ToRecord())
		}
		return records, nil

	case rules.NamespaceAssessment:
		if rc.AssessmentID != nil {
			a, err := s.assessments.GetByID(ctx, *rc.AssessmentID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, nil
				}
				return nil, err
			}
			if a.PatientID != rc.PatientID {
				return nil, nil
			}
			return []rules.Record{a.ToRecord()}, nil
		}
		items, err := s.assessments.ListByPatient(ctx, rc.PatientID)
		if err != nil {
			return nil, err
		}
		records := make([]rules.Record, 0, len(items))
		for _, a := range items {
			records = append(records, a.ToRecord())
		}
		return records, nil

	case rules.NamespaceReferral:
		items, err := s.referrals.ListByPatient(ctx, rc.PatientID)
		if err != nil {
			return nil, err
		}
		records := make([]rules.Record, 0, len(items))
		for _, r := range items {
			records = append(records, r.ToRecord())
		}
		return records, nil

	default:
		return nil, nil
	}
}
