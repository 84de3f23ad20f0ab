package reading

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drbfraser/CRADLE-Platform-sub001/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

type readingRepoPG struct{ pool *pgxpool.Pool }

func NewReadingRepoPG(pool *pgxpool.Pool) ReadingRepository {
	return &readingRepoPG{pool: pool}
}

const readingCols = `id, patient_id, systolic, diastolic, heart_rate, symptoms,
	traffic_light_status, date_taken, retest_of_id, created_at`

func scanReading(row pgx.Row) (*Reading, error) {
	var r Reading
	err := row.Scan(&r.ID, &r.PatientID, &r.Systolic, &r.Diastolic, &r.HeartRate, &r.Symptoms,
		&r.TrafficLightStatus, &r.DateTaken, &r.RetestOfID, &r.CreatedAt)
	return &r, err
}

func (r *readingRepoPG) Create(ctx context.Context, rd *Reading) error {
	rd.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO reading (id, patient_id, systolic, diastolic, heart_rate, symptoms,
			traffic_light_status, date_taken, retest_of_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rd.ID, rd.PatientID, rd.Systolic, rd.Diastolic, rd.HeartRate, rd.Symptoms,
		rd.TrafficLightStatus, rd.DateTaken, rd.RetestOfID)
	return err
}

func (r *readingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reading, error) {
	return scanReading(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+readingCols+` FROM reading WHERE id = $1`, id))
}

func (r *readingRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Reading, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+readingCols+` FROM reading
		WHERE patient_id = $1 ORDER BY date_taken`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rd)
	}
	return items, rows.Err()
}

type assessmentRepoPG struct{ pool *pgxpool.Pool }

func NewAssessmentRepoPG(pool *pgxpool.Pool) AssessmentRepository {
	return &assessmentRepoPG{pool: pool}
}

const assessmentCols = `id, patient_id, reading_id, health_worker_id, diagnosis, treatment,
	medication, follow_up_needed, follow_up_instruction, date_assessed, created_at`

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	err := row.Scan(&a.ID, &a.PatientID, &a.ReadingID, &a.HealthWorkerID, &a.Diagnosis, &a.Treatment,
		&a.Medication, &a.FollowUpNeeded, &a.FollowUpInstruction, &a.DateAssessed, &a.CreatedAt)
	return &a, err
}

func (r *assessmentRepoPG) Create(ctx context.Context, a *Assessment) error {
	a.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO assessment (id, patient_id, reading_id, health_worker_id, diagnosis, treatment,
			medication, follow_up_needed, follow_up_instruction, date_assessed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.PatientID, a.ReadingID, a.HealthWorkerID, a.Diagnosis, a.Treatment,
		a.Medication, a.FollowUpNeeded, a.FollowUpInstruction, a.DateAssessed)
	return err
}

func (r *assessmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return scanAssessment(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+assessmentCols+` FROM assessment WHERE id = $1`, id))
}

func (r *assessmentRepoPG) Update(ctx context.Context, a *Assessment) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE assessment SET diagnosis=$2, treatment=$3, medication=$4,
			follow_up_needed=$5, follow_up_instruction=$6
		WHERE id = $1`,
		a.ID, a.Diagnosis, a.Treatment, a.Medication, a.FollowUpNeeded, a.FollowUpInstruction)
	return err
}

func (r *assessmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Assessment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+assessmentCols+` FROM assessment
		WHERE patient_id = $1 ORDER BY date_assessed`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
