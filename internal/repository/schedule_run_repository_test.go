package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

func newScheduleRunRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var scheduleRunRowColumns = []string{"id", "label", "version", "status", "meta", "created_by", "created_at", "updated_at"}

func TestScheduleRunRepositoryCreateVersioned(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM schedule_runs WHERE label = $1")).
		WithArgs("spring").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_runs")).
		WithArgs(sqlmock.AnyArg(), "spring", 3, string(models.ScheduleRunStatusDraft), sqlmock.AnyArg(), "coach-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.ScheduleRun{Label: "spring", CreatedBy: "coach-1", Meta: types.JSONText(`{"phase":"A_all_constraints"}`)}
	require.NoError(t, repo.CreateVersioned(context.Background(), nil, run))
	assert.Equal(t, 3, run.Version)
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryCreateVersionedRequiresLabel(t *testing.T) {
	db, _, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db)

	assert.Error(t, repo.CreateVersioned(context.Background(), nil, &models.ScheduleRun{}))
	assert.Error(t, repo.CreateVersioned(context.Background(), nil, nil))
}

func TestScheduleRunRepositoryListByLabel(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(scheduleRunRowColumns).
		AddRow("run-2", "spring", 2, "DRAFT", []byte(`{}`), "coach-1", now, now).
		AddRow("run-1", "spring", 1, "PUBLISHED", []byte(`{}`), "coach-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_runs WHERE label = $1 ORDER BY label ASC, version DESC")).
		WithArgs("spring").
		WillReturnRows(rows)

	list, err := repo.ListByLabel(context.Background(), "spring")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].Version)
	assert.Equal(t, models.ScheduleRunStatusPublished, list[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryListAll(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_runs ORDER BY label ASC, version DESC")).
		WithArgs().
		WillReturnRows(sqlmock.NewRows(scheduleRunRowColumns))

	list, err := repo.ListByLabel(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_runs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedule_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Delete(context.Background(), "run-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryDeleteNotFound(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedule_runs WHERE id = $1")).
		WithArgs("run-9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "run-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_runs SET status = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(string(models.ScheduleRunStatusPublished), sqlmock.AnyArg(), "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), nil, "run-1", models.ScheduleRunStatusPublished, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRunRepositoryArchivePublished(t *testing.T) {
	db, mock, cleanup := newScheduleRunRepoMock(t)
	defer cleanup()
	repo := NewScheduleRunRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedule_runs SET status = $1, updated_at = $2 WHERE label = $3 AND status = $4 AND id <> $5")).
		WithArgs(string(models.ScheduleRunStatusArchived), sqlmock.AnyArg(), "spring", string(models.ScheduleRunStatusPublished), "run-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ArchivePublished(context.Background(), nil, "spring", "run-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
