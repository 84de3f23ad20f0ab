package workflow

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

// -- Templates --

type templateRepoPG struct{ pool *pgxpool.Pool }

func NewTemplateRepoPG(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepoPG{pool: pool}
}

func (r *templateRepoPG) conn(ctx context.Context) queryable { return conn(ctx, r.pool) }

const templateCols = `id, name, description, archived, starting_step_id,
	date_created, last_edited, version, classification`

func (r *templateRepoPG) scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Archived, &t.StartingStepID,
		&t.DateCreated, &t.LastEdited, &t.Version, &t.Classification)
	return &t, err
}

func (r *templateRepoPG) Create(ctx context.Context, t *Template) error {
	q := r.conn(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO workflow_template (id, name, description, archived, starting_step_id,
			date_created, last_edited, version, classification)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.Name, t.Description, t.Archived, t.StartingStepID,
		t.DateCreated, t.LastEdited, t.Version, t.Classification)
	if err != nil {
		return err
	}
	for i := range t.Steps {
		s := &t.Steps[i]
		_, err = q.Exec(ctx, `
			INSERT INTO workflow_template_step (id, template_id, name, description, form_id, position)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			s.ID, t.ID, s.Name, s.Description, s.FormID, i)
		if err != nil {
			return err
		}
		for j, b := range s.Branches {
			var rule *string
			var dataSources []string
			var conditionID *uuid.UUID
			if b.Condition != nil {
				rule = &b.Condition.Rule
				dataSources = b.Condition.DataSources
				conditionID = &b.Condition.ID
			}
			_, err = q.Exec(ctx, `
				INSERT INTO workflow_template_branch (id, step_id, target_step_id, condition_id, rule, data_sources, position)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				b.ID, s.ID, b.TargetStepID, conditionID, rule, dataSources, j)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *templateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	q := r.conn(ctx)
	t, err := r.scanTemplate(q.QueryRow(ctx, `SELECT `+templateCols+` FROM workflow_template WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, q, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *templateRepoPG) loadSteps(ctx context.Context, q queryable, t *Template) error {
	rows, err := q.Query(ctx, `
		SELECT id, template_id, name, description, form_id
		FROM workflow_template_step WHERE template_id = $1 ORDER BY position`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s TemplateStep
		if err := rows.Scan(&s.ID, &s.TemplateID, &s.Name, &s.Description, &s.FormID); err != nil {
			return err
		}
		t.Steps = append(t.Steps, s)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	byID := make(map[uuid.UUID]*TemplateStep, len(t.Steps))
	for i := range t.Steps {
		byID[t.Steps[i].ID] = &t.Steps[i]
	}

	branchRows, err := q.Query(ctx, `
		SELECT b.id, b.step_id, b.target_step_id, b.condition_id, b.rule, b.data_sources
		FROM workflow_template_branch b
		JOIN workflow_template_step s ON s.id = b.step_id
		WHERE s.template_id = $1 ORDER BY b.step_id, b.position`, t.ID)
	if err != nil {
		return err
	}
	defer branchRows.Close()
	for branchRows.Next() {
		var b TemplateStepBranch
		var conditionID *uuid.UUID
		var rule *string
		var dataSources []string
		if err := branchRows.Scan(&b.ID, &b.StepID, &b.TargetStepID, &conditionID, &rule, &dataSources); err != nil {
			return err
		}
		if conditionID != nil && rule != nil {
			b.Condition = &RuleGroup{ID: *conditionID, Rule: *rule, DataSources: dataSources}
		}
		if s, ok := byID[b.StepID]; ok {
			s.Branches = append(s.Branches, b)
		}
	}
	return branchRows.Err()
}

func (r *templateRepoPG) List(ctx context.Context, includeArchived bool, limit, offset int) ([]*Template, int, error) {
	q := r.conn(ctx)
	where := ` WHERE NOT archived`
	if includeArchived {
		where = ``
	}
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM workflow_template`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+templateCols+` FROM workflow_template`+where+
		` ORDER BY date_created DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Template
	for rows.Next() {
		t, err := r.scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, t := range items {
		if err := r.loadSteps(ctx, q, t); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (r *templateRepoPG) Archive(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE workflow_template SET archived = TRUE, last_edited = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// -- Instances --

type instanceRepoPG struct{ pool *pgxpool.Pool }

func NewInstanceRepoPG(pool *pgxpool.Pool) InstanceRepository {
	return &instanceRepoPG{pool: pool}
}

func (r *instanceRepoPG) conn(ctx context.Context) queryable { return conn(ctx, r.pool) }

const instanceCols = `id, name, description, start_date, current_step_id,
	last_edited, completion_date, status, workflow_template_id, patient_id`

func (r *instanceRepoPG) scanInstance(row pgx.Row) (*Instance, error) {
	var in Instance
	err := row.Scan(&in.ID, &in.Name, &in.Description, &in.StartDate, &in.CurrentStepID,
		&in.LastEdited, &in.CompletionDate, &in.Status, &in.TemplateID, &in.PatientID)
	return &in, err
}

func (r *instanceRepoPG) Create(ctx context.Context, in *Instance) error {
	q := r.conn(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO workflow_instance (id, name, description, start_date, current_step_id,
			last_edited, completion_date, status, workflow_template_id, patient_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		in.ID, in.Name, in.Description, in.StartDate, in.CurrentStepID,
		in.LastEdited, in.CompletionDate, in.Status, in.TemplateID, in.PatientID)
	if err != nil {
		return err
	}
	for _, s := range in.Steps {
		_, err = q.Exec(ctx, `
			INSERT INTO workflow_instance_step (id, instance_id, template_step_id, name, status,
				start_date, completion_date, data, form_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			s.ID, in.ID, s.TemplateStepID, s.Name, s.Status,
			s.StartDate, s.CompletionDate, s.Data, s.FormID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *instanceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Instance, error) {
	q := r.conn(ctx)
	in, err := r.scanInstance(q.QueryRow(ctx, `SELECT `+instanceCols+` FROM workflow_instance WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, q, in); err != nil {
		return nil, err
	}
	return in, nil
}

func (r *instanceRepoPG) loadSteps(ctx context.Context, q queryable, in *Instance) error {
	rows, err := q.Query(ctx, `
		SELECT id, instance_id, template_step_id, name, status, start_date, completion_date, data, form_id
		FROM workflow_instance_step WHERE instance_id = $1 ORDER BY id`, in.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s InstanceStep
		if err := rows.Scan(&s.ID, &s.InstanceID, &s.TemplateStepID, &s.Name, &s.Status,
			&s.StartDate, &s.CompletionDate, &s.Data, &s.FormID); err != nil {
			return err
		}
		in.Steps = append(in.Steps, s)
	}
	return rows.Err()
}

func (r *instanceRepoPG) Update(ctx context.Context, in *Instance) error {
	q := r.conn(ctx)
	_, err := q.Exec(ctx, `
		UPDATE workflow_instance SET name=$2, description=$3, start_date=$4, current_step_id=$5,
			last_edited=$6, completion_date=$7, status=$8
		WHERE id = $1`,
		in.ID, in.Name, in.Description, in.StartDate, in.CurrentStepID,
		in.LastEdited, in.CompletionDate, in.Status)
	if err != nil {
		return err
	}
	for _, s := range in.Steps {
		_, err = q.Exec(ctx, `
			UPDATE workflow_instance_step SET status=$2, start_date=$3, completion_date=$4, data=$5
			WHERE id = $1`,
			s.ID, s.Status, s.StartDate, s.CompletionDate, s.Data)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *instanceRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Instance, int, error) {
	q := r.conn(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM workflow_instance WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+instanceCols+` FROM workflow_instance
		WHERE patient_id = $1 ORDER BY last_edited DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Instance
	for rows.Next() {
		in, err := r.scanInstance(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, in)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, in := range items {
		if err := r.loadSteps(ctx, q, in); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

// -- Events --

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository {
	return &eventRepoPG{pool: pool}
}

func (r *eventRepoPG) conn(ctx context.Context) queryable { return conn(ctx, r.pool) }

func (r *eventRepoPG) Append(ctx context.Context, instanceID uuid.UUID, events []Event) error {
	q := r.conn(ctx)
	for _, e := range events {
		_, err := q.Exec(ctx, `
			INSERT INTO workflow_event (id, instance_id, seq, type, step_id, from_step_id, to_step_id, occurred_at)
			VALUES ($1, $2,
				COALESCE((SELECT MAX(seq) FROM workflow_event WHERE instance_id = $2), 0) + 1,
				$3, $4, $5, $6, $7)`,
			uuid.New(), instanceID, e.Type, e.StepID, e.FromStepID, e.ToStepID, e.Timestamp)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *eventRepoPG) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT type, step_id, from_step_id, to_step_id, occurred_at
		FROM workflow_event WHERE instance_id = $1 ORDER BY seq`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Type, &e.StepID, &e.FromStepID, &e.ToStepID, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
