package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

const scheduleRunColumns = `id, label, version, status, meta, created_by, created_at, updated_at`

// ScheduleRunRepository persists versioned schedule runs.
type ScheduleRunRepository struct {
	db *sqlx.DB
}

// NewScheduleRunRepository constructs repository.
func NewScheduleRunRepository(db *sqlx.DB) *ScheduleRunRepository {
	return &ScheduleRunRepository{db: db}
}

func (r *ScheduleRunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a run assigning the next version for its label.
func (r *ScheduleRunRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.ScheduleRun) error {
	if run == nil {
		return fmt.Errorf("schedule run payload is nil")
	}
	if run.Label == "" {
		return fmt.Errorf("label is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.ScheduleRunStatusDraft
	}
	if len(run.Meta) == 0 {
		run.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM schedule_runs WHERE label = $1`
	if err := sqlx.GetContext(ctx, target, &run.Version, nextVersionQuery, run.Label); err != nil {
		return fmt.Errorf("compute next schedule run version: %w", err)
	}

	const insertQuery = `
INSERT INTO schedule_runs (id, label, version, status, meta, created_by, created_at, updated_at)
VALUES (:id, :label, :version, :status, :meta, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, run); err != nil {
		return fmt.Errorf("insert schedule run: %w", err)
	}
	return nil
}

// ListByLabel returns every version of a label, newest first. An empty label lists all runs.
func (r *ScheduleRunRepository) ListByLabel(ctx context.Context, label string) ([]models.ScheduleRun, error) {
	query := `SELECT ` + scheduleRunColumns + ` FROM schedule_runs`
	args := []interface{}{}
	if label != "" {
		query += ` WHERE label = $1`
		args = append(args, label)
	}
	query += ` ORDER BY label ASC, version DESC`

	var runs []models.ScheduleRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list schedule runs: %w", err)
	}
	return runs, nil
}

// FindByID loads a run by its identifier.
func (r *ScheduleRunRepository) FindByID(ctx context.Context, id string) (*models.ScheduleRun, error) {
	query := `SELECT ` + scheduleRunColumns + ` FROM schedule_runs WHERE id = $1`
	var run models.ScheduleRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// Delete removes a stored run; its classes cascade.
func (r *ScheduleRunRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM schedule_runs WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete schedule run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule run rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus updates the status (and optionally meta) of a run.
func (r *ScheduleRunRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleRunStatus, meta types.JSONText) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	if len(meta) > 0 {
		query = `UPDATE schedule_runs SET status = $1, meta = $2, updated_at = $3 WHERE id = $4`
		args = []interface{}{status, meta, now, id}
	} else {
		query = `UPDATE schedule_runs SET status = $1, updated_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	}
	result, err := target.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update schedule run status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule run status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchivePublished moves every published run of a label, except keepID, to ARCHIVED.
func (r *ScheduleRunRepository) ArchivePublished(ctx context.Context, exec sqlx.ExtContext, label, keepID string) error {
	const query = `UPDATE schedule_runs SET status = $1, updated_at = $2 WHERE label = $3 AND status = $4 AND id <> $5`
	if _, err := r.exec(exec).ExecContext(ctx, query, models.ScheduleRunStatusArchived, time.Now().UTC(), label, models.ScheduleRunStatusPublished, keepID); err != nil {
		return fmt.Errorf("archive published schedule runs: %w", err)
	}
	return nil
}
