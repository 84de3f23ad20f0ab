package patient

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

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, name, sex, date_of_birth, is_exact_dob, village, zone,
	household_number, allergy_history, drug_history, medical_history,
	is_archived, created_at, updated_at`

func (r *patientRepoPG) scanRow(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Sex, &p.DateOfBirth, &p.IsExactDOB, &p.Village, &p.Zone,
		&p.HouseholdNumber, &p.AllergyHistory, &p.DrugHistory, &p.MedicalHistory,
		&p.IsArchived, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, name, sex, date_of_birth, is_exact_dob, village, zone,
			household_number, allergy_history, drug_history, medical_history)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.Name, p.Sex, p.DateOfBirth, p.IsExactDOB, p.Village, p.Zone,
		p.HouseholdNumber, p.AllergyHistory, p.DrugHistory, p.MedicalHistory)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET name=$2, sex=$3, date_of_birth=$4, is_exact_dob=$5, village=$6,
			zone=$7, household_number=$8, allergy_history=$9, drug_history=$10,
			medical_history=$11, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Sex, p.DateOfBirth, p.IsExactDOB, p.Village,
		p.Zone, p.HouseholdNumber, p.AllergyHistory, p.DrugHistory, p.MedicalHistory)
	return err
}

func (r *patientRepoPG) Archive(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE patient SET is_archived = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE NOT is_archived`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient
		WHERE NOT is_archived ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

type pregnancyRepoPG struct{ pool *pgxpool.Pool }

func NewPregnancyRepoPG(pool *pgxpool.Pool) PregnancyRepository {
	return &pregnancyRepoPG{pool: pool}
}

func (r *pregnancyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const pregnancyCols = `id, patient_id, start_date, end_date, outcome, created_at, updated_at`

func (r *pregnancyRepoPG) scanRow(row pgx.Row) (*Pregnancy, error) {
	var p Pregnancy
	err := row.Scan(&p.ID, &p.PatientID, &p.StartDate, &p.EndDate, &p.Outcome, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *pregnancyRepoPG) Create(ctx context.Context, p *Pregnancy) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO pregnancy (id, patient_id, start_date, end_date, outcome)
		VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.PatientID, p.StartDate, p.EndDate, p.Outcome)
	return err
}

func (r *pregnancyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Pregnancy, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+pregnancyCols+` FROM pregnancy WHERE id = $1`, id))
}

func (r *pregnancyRepoPG) Update(ctx context.Context, p *Pregnancy) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE pregnancy SET start_date=$2, end_date=$3, outcome=$4, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.StartDate, p.EndDate, p.Outcome)
	return err
}

func (r *pregnancyRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Pregnancy, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+pregnancyCols+` FROM pregnancy
		WHERE patient_id = $1 ORDER BY start_date`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Pregnancy
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
