package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

// ScheduleRunClassRepository manages the classes of saved runs.
type ScheduleRunClassRepository struct {
	db *sqlx.DB
}

// NewScheduleRunClassRepository builds repository.
func NewScheduleRunClassRepository(db *sqlx.DB) *ScheduleRunClassRepository {
	return &ScheduleRunClassRepository{db: db}
}

func (r *ScheduleRunClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores the classes of a run. A run never holds two classes starting at the same time.
func (r *ScheduleRunClassRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, classes []models.ScheduleRunClass) error {
	if len(classes) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO schedule_run_classes (id, schedule_run_id, day, start_time, end_time, students, status, created_at)
VALUES (:id, :schedule_run_id, :day, :start_time, :end_time, :students, :status, :created_at)`

	for i := range classes {
		class := &classes[i]
		if class.ScheduleRunID == "" {
			return fmt.Errorf("schedule_run_id is required")
		}
		if class.ID == "" {
			class.ID = uuid.NewString()
		}
		if class.CreatedAt.IsZero() {
			class.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, class); err != nil {
			return fmt.Errorf("insert schedule run class: %w", err)
		}
	}
	return nil
}

// ListByRun returns the classes of a run in weekly order.
func (r *ScheduleRunClassRepository) ListByRun(ctx context.Context, runID string) ([]models.ScheduleRunClass, error) {
	const query = `SELECT id, schedule_run_id, day, start_time, end_time, students, status, created_at
FROM schedule_run_classes WHERE schedule_run_id = $1
ORDER BY array_position(ARRAY['monday','tuesday','wednesday','thursday','friday','saturday'], day), start_time ASC`
	var classes []models.ScheduleRunClass
	if err := r.db.SelectContext(ctx, &classes, query, runID); err != nil {
		return nil, fmt.Errorf("list schedule run classes: %w", err)
	}
	return classes, nil
}
