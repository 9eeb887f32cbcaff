package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

func TestScheduleRunClassRepositoryInsertBatch(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunClassRepository(db)

	class := models.NewScheduleRunClass("run-1", models.ScheduledClass{
		Slot:     models.NewSlot(models.Monday, models.Clock(9, 0), models.Clock(10, 0)),
		Students: []string{"Alice", "Bob"},
		Status:   models.ClassStatusProposed,
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_run_classes")).
		WithArgs(sqlmock.AnyArg(), "run-1", "monday", "09:00", "10:00", sqlmock.AnyArg(), "proposed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	classes := []models.ScheduleRunClass{class}
	require.NoError(t, repo.InsertBatch(context.Background(), nil, classes))
	assert.NotEmpty(t, classes[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunClassRepositoryInsertBatchRequiresRun(t *testing.T) {
	db, _, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunClassRepository(db)

	err := repo.InsertBatch(context.Background(), nil, []models.ScheduleRunClass{{Day: "monday"}})
	assert.Error(t, err)
	assert.NoError(t, repo.InsertBatch(context.Background(), nil, nil))
}

func TestScheduleRunClassRepositoryListByRun(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunClassRepository(db)

	rows := sqlmock.NewRows([]string{"id", "schedule_run_id", "day", "start_time", "end_time", "students", "status", "created_at"}).
		AddRow("c-1", "run-1", "monday", "09:00", "10:00", []byte("{Alice,Bob}"), "locked", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_run_classes WHERE schedule_run_id = $1")).
		WithArgs("run-1").
		WillReturnRows(rows)

	classes, err := repo.ListByRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, []string{"Alice", "Bob"}, []string(classes[0].Students))
	assert.Equal(t, models.ClassStatusLocked, classes[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
