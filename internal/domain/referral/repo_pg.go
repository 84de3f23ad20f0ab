package referral

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

type referralRepoPG struct{ pool *pgxpool.Pool }

func NewReferralRepoPG(pool *pgxpool.Pool) ReferralRepository {
	return &referralRepoPG{pool: pool}
}

func (r *referralRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const referralCols = `id, patient_id, reading_id, health_facility, comment, status,
	cancel_reason, date_referred, created_at, updated_at`

func scanReferral(row pgx.Row) (*Referral, error) {
	var rf Referral
	err := row.Scan(&rf.ID, &rf.PatientID, &rf.ReadingID, &rf.HealthFacility, &rf.Comment, &rf.Status,
		&rf.CancelReason, &rf.DateReferred, &rf.CreatedAt, &rf.UpdatedAt)
	return &rf, err
}

func (r *referralRepoPG) Create(ctx context.Context, rf *Referral) error {
	rf.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO referral (id, patient_id, reading_id, health_facility, comment, status, date_referred)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rf.ID, rf.PatientID, rf.ReadingID, rf.HealthFacility, rf.Comment, rf.Status, rf.DateReferred)
	return err
}

func (r *referralRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return scanReferral(r.conn(ctx).QueryRow(ctx, `SELECT `+referralCols+` FROM referral WHERE id = $1`, id))
}

func (r *referralRepoPG) Update(ctx context.Context, rf *Referral) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE referral SET health_facility=$2, comment=$3, status=$4, cancel_reason=$5, updated_at=NOW()
		WHERE id = $1`,
		rf.ID, rf.HealthFacility, rf.Comment, rf.Status, rf.CancelReason)
	return err
}

func (r *referralRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Referral, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+referralCols+` FROM referral
		WHERE patient_id = $1 ORDER BY date_referred`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Referral
	for rows.Next() {
		rf, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rf)
	}
	return items, rows.Err()
}
