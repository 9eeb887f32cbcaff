package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler-api/internal/dto"
	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/lesson-scheduler-api/pkg/errors"
	"github.com/noah-isme/lesson-scheduler-api/pkg/jobs"
)

func pairRequest() dto.GenerateScheduleRequest {
	mon9 := hourSlot(models.Monday, 9, 0)
	tue10 := hourSlot(models.Tuesday, 10, 0)
	return dto.GenerateScheduleRequest{
		Title: "Autumn",
		Students: []dto.StudentRequest{
			{Name: "Alice", SessionsPerWeek: 1, Available: []models.Slot{mon9, tue10}, LinkedWith: "Bob"},
			{Name: "Bob", SessionsPerWeek: 1, Available: []models.Slot{mon9, tue10}, LinkedWith: "Alice"},
		},
	}
}

func TestScheduleGeneratorServiceGeneratePlacesLinkedPair(t *testing.T) {
	metrics := &runObserverStub{}
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: newSATEngine(), metrics: metrics})

	resp, err := service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)
	require.NotEmpty(t, resp.ProposalID)
	require.Len(t, resp.Result.Schedule, 1)
	assert.Equal(t, []string{"Alice", "Bob"}, resp.Result.Schedule[0].Students)
	assert.Equal(t, models.ClassStatusProposed, resp.Result.Schedule[0].Status)
	assert.True(t, resp.Summary.IsComplete)
	assert.False(t, resp.Cached)
	assert.Equal(t, []string{PhaseAllConstraints + ":true"}, metrics.runs)

	stored, err := service.Proposal(context.Background(), resp.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, resp.Result, stored.Result)
}

func TestScheduleGeneratorServiceGenerateValidation(t *testing.T) {
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{})
	mon9 := hourSlot(models.Monday, 9, 0)

	cases := map[string]dto.GenerateScheduleRequest{
		"empty roster": {},
		"duplicate name": {Students: []dto.StudentRequest{
			{Name: "Alice", SessionsPerWeek: 1, Available: []models.Slot{mon9}},
			{Name: "Alice", SessionsPerWeek: 1, Available: []models.Slot{mon9}},
		}},
		"one-way link": {Students: []dto.StudentRequest{
			{Name: "Alice", SessionsPerWeek: 1, Available: []models.Slot{mon9}, LinkedWith: "Bob"},
			{Name: "Bob", SessionsPerWeek: 1, Available: []models.Slot{mon9}},
		}},
		"too many sessions": {Students: []dto.StudentRequest{
			{Name: "Alice", SessionsPerWeek: 2, Available: []models.Slot{mon9}},
		}},
		"half length slot": {Students: []dto.StudentRequest{
			{Name: "Alice", SessionsPerWeek: 1, Available: []models.Slot{models.NewSlot(models.Monday, models.Clock(9, 0), models.Clock(9, 30))}},
		}},
		"bad recurring status": {
			Students:  []dto.StudentRequest{{Name: "Alice", SessionsPerWeek: 1, Available: []models.Slot{mon9}}},
			Recurring: []dto.RecurringClassRequest{{Slot: mon9, Students: []string{"Alice"}, Status: "proposed"}},
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.Generate(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestScheduleGeneratorServiceGenerateRejectsLargeRoster(t *testing.T) {
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{maxStudents: 1})

	_, err := service.Generate(context.Background(), pairRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 1 allowed")
}

func TestScheduleGeneratorServiceGenerateSkeletonInvalid(t *testing.T) {
	engine := &engineStub{err: &models.SkeletonValidationError{Errors: []string{"Class Monday 09:00-10:00 has no students."}}}
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: engine})

	_, err := service.Generate(context.Background(), pairRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSkeletonInvalid.Code, appErr.Code)
	details, ok := appErr.Details.(*models.SkeletonValidationError)
	require.True(t, ok)
	assert.Len(t, details.Errors, 1)
}

func TestScheduleGeneratorServiceRecurringDefaults(t *testing.T) {
	engine := &engineStub{result: stubResult(false)}
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: engine})

	req := pairRequest()
	req.Recurring = []dto.RecurringClassRequest{
		{Slot: hourSlot(models.Monday, 9, 0), Students: []string{"Alice", "Bob"}},
		{Slot: hourSlot(models.Tuesday, 10, 0), Students: []string{"Alice"}},
	}
	_, err := service.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, engine.prefixed, 2)
	assert.Equal(t, models.ClassStatusLocked, engine.prefixed[0].Status)
	assert.Equal(t, models.ClassStatusNeedsValidation, engine.prefixed[1].Status)
	assert.True(t, engine.prefixed[0].Slot.Recurring)
}

func TestScheduleGeneratorServiceResultCache(t *testing.T) {
	engine := &engineStub{result: stubResult(false)}
	cache := newResultCacheStub()
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: engine, cache: cache})

	first, err := service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.NotEqual(t, first.ProposalID, second.ProposalID)
	assert.Equal(t, 1, engine.calls)
	assert.Len(t, second.Result.Schedule, 1)
}

func TestScheduleGeneratorServiceSkipsCachingInterruptedRuns(t *testing.T) {
	engine := &engineStub{result: stubResult(true)}
	cache := newResultCacheStub()
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: engine, cache: cache})

	_, err := service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)
	_, err = service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, engine.calls)
	assert.Empty(t, cache.items)
}

func TestScheduleGeneratorServicePurgeResultCache(t *testing.T) {
	engine := &engineStub{result: stubResult(false)}
	cache := newResultCacheStub()
	cache.items["other:key"] = []byte(`{}`)
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: engine, cache: cache})

	_, err := service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)

	removed, err := service.PurgeResultCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Contains(t, cache.items, "other:key")

	_, err = service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, engine.calls)

	_, err = newSchedulerServiceFixture(t, schedulerFixtureConfig{}).PurgeResultCache(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrUnavailable)
}

func TestScheduleGeneratorServiceGenerateFromCSV(t *testing.T) {
	engine := &engineStub{result: stubResult(false)}
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: engine})

	students := strings.Join([]string{
		"name,sessions_per_week,monday_start,monday_end,tuesday_start,tuesday_end,wednesday_start,wednesday_end,thursday_start,thursday_end,friday_start,friday_end,saturday_start,saturday_end,linked_with,notes",
		"Alice,1,09:00,11:00,,,,,,,,,,,,",
		"Bob,1,09:00,10:00,,,,,,,,,,,,",
	}, "\n")
	recurring := "name,day,start_time,end_time\nAlice,monday,09:00,10:00\nBob,monday,09:00,10:00\n"
	blocked := []models.Slot{hourSlot(models.Monday, 12, 0)}

	resp, err := service.GenerateFromCSV(context.Background(), strings.NewReader(students), strings.NewReader(recurring), blocked, "")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ProposalID)
	require.Len(t, engine.students, 2)
	assert.Len(t, engine.students[0].Available, 2)
	require.Len(t, engine.prefixed, 1)
	assert.Equal(t, models.ClassStatusLocked, engine.prefixed[0].Status)
	assert.Equal(t, blocked, engine.blocked)
}

func TestScheduleGeneratorServiceGenerateFromCSVParseError(t *testing.T) {
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{})

	_, err := service.GenerateFromCSV(context.Background(), strings.NewReader("name,sessions_per_week\nAlice,1\n"), nil, nil, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrParse.Code, appErrors.FromError(err).Code)
}

func TestScheduleGeneratorServiceValidate(t *testing.T) {
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: newSATEngine()})

	req := pairRequest()
	req.Recurring = []dto.RecurringClassRequest{{Slot: hourSlot(models.Monday, 9, 0), Students: []string{"Alice"}}}
	resp, err := service.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Validation.Valid)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, models.WarningSingleStudentRecurring, resp.Warnings[0].Type)
}

func TestScheduleGeneratorServiceSaveDraft(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	runs := &scheduleRunRepoStub{}
	classes := &scheduleRunClassRepoStub{}
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{
		engine:  &engineStub{result: stubResult(false)},
		tx:      txProvider,
		runs:    runs,
		classes: classes,
	})

	resp, err := service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	saved, err := service.Save(context.Background(), dto.SaveScheduleRequest{ProposalID: resp.ProposalID, Label: "autumn"}, "coach-1")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)
	require.Len(t, runs.items, 1)
	assert.Equal(t, models.ScheduleRunStatusDraft, runs.items[0].Status)
	assert.Equal(t, "coach-1", runs.items[0].CreatedBy)
	assert.Len(t, classes.items[saved.RunID], 1)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(runs.items[0].Meta, &meta))
	assert.Contains(t, meta, "summary")
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = service.Proposal(context.Background(), resp.ProposalID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScheduleGeneratorServiceSavePublish(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	runs := &scheduleRunRepoStub{}
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{
		engine:  &engineStub{result: stubResult(false)},
		tx:      txProvider,
		runs:    runs,
		classes: &scheduleRunClassRepoStub{},
	})

	resp, err := service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err = service.Save(context.Background(), dto.SaveScheduleRequest{ProposalID: resp.ProposalID, Label: "autumn", Publish: true}, "")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleRunStatusPublished, runs.items[0].Status)
	assert.Equal(t, []string{"autumn"}, runs.archived)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleGeneratorServiceSaveRollsBackOnFailure(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{
		engine:  &engineStub{result: stubResult(false)},
		tx:      txProvider,
		runs:    &scheduleRunRepoStub{},
		classes: &scheduleRunClassRepoStub{err: fmt.Errorf("disk full")},
	})

	resp, err := service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = service.Save(context.Background(), dto.SaveScheduleRequest{ProposalID: resp.ProposalID, Label: "autumn"}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = service.Proposal(context.Background(), resp.ProposalID)
	assert.NoError(t, err)
}

func TestScheduleGeneratorServiceSaveRejectsInterruptedRun(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{
		engine:  &engineStub{result: stubResult(true)},
		tx:      txProvider,
		runs:    &scheduleRunRepoStub{},
		classes: &scheduleRunClassRepoStub{},
	})

	resp, err := service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)

	_, err = service.Save(context.Background(), dto.SaveScheduleRequest{ProposalID: resp.ProposalID, Label: "autumn"}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleGeneratorServiceSaveWithoutPersistence(t *testing.T) {
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: &engineStub{result: stubResult(false)}})

	_, err := service.Save(context.Background(), dto.SaveScheduleRequest{ProposalID: "p-1", Label: "autumn"}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)
}

func TestScheduleGeneratorServiceRunLifecycle(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	runs := &scheduleRunRepoStub{items: []models.ScheduleRun{
		{ID: "run-1", Label: "autumn", Version: 1, Status: models.ScheduleRunStatusPublished},
		{ID: "run-2", Label: "autumn", Version: 2, Status: models.ScheduleRunStatusDraft},
	}}
	classes := &scheduleRunClassRepoStub{items: map[string][]models.ScheduleRunClass{
		"run-2": {{ID: "c-1", ScheduleRunID: "run-2", Day: "monday", StartTime: "09:00", EndTime: "10:00"}},
	}}
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{tx: txProvider, runs: runs, classes: classes})
	ctx := context.Background()

	list, err := service.List(ctx, dto.ScheduleRunQuery{Label: "autumn"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	got, err := service.GetClasses(ctx, "run-2")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = service.GetClasses(ctx, "run-9")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	err = service.Delete(ctx, "run-1")
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, service.Publish(ctx, "run-2"))
	assert.Equal(t, models.ScheduleRunStatusArchived, runs.items[0].Status)
	assert.Equal(t, models.ScheduleRunStatusPublished, runs.items[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())

	err = service.Publish(ctx, "run-2")
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	runs.items = append(runs.items, models.ScheduleRun{ID: "run-3", Label: "autumn", Version: 3, Status: models.ScheduleRunStatusDraft})
	require.NoError(t, service.Delete(ctx, "run-3"))
	err = service.Delete(ctx, "run-3")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScheduleGeneratorServiceExport(t *testing.T) {
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: &engineStub{result: stubResult(false)}})
	resp, err := service.Generate(context.Background(), pairRequest())
	require.NoError(t, err)
	ctx := context.Background()

	file, err := service.Export(ctx, resp.ProposalID, dto.ExportQuery{})
	require.NoError(t, err)
	assert.Equal(t, "application/json", file.ContentType)
	assert.True(t, strings.HasSuffix(file.Filename, ".json"))

	file, err = service.Export(ctx, resp.ProposalID, dto.ExportQuery{Format: "markdown"})
	require.NoError(t, err)
	assert.Contains(t, string(file.Content), "# Generated Schedule")

	file, err = service.Export(ctx, resp.ProposalID, dto.ExportQuery{Format: "csv"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(file.Content), "day,start_time,end_time,students,size,status"))

	file, err = service.Export(ctx, resp.ProposalID, dto.ExportQuery{Format: "csv", Part: "unplaced"})
	require.NoError(t, err)
	assert.Contains(t, file.Filename, "unplaced")

	file, err = service.Export(ctx, resp.ProposalID, dto.ExportQuery{Format: "pdf"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(file.Content, []byte("%PDF")))

	_, err = service.Export(ctx, resp.ProposalID, dto.ExportQuery{Format: "xlsx"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = service.Export(ctx, "missing", dto.ExportQuery{})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScheduleGeneratorServiceAsyncJobs(t *testing.T) {
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: &engineStub{result: stubResult(false)}})

	_, err := service.Enqueue(context.Background(), pairRequest())
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)

	queue := jobs.NewQueue("schedule-generator", service.HandleJob, jobs.QueueConfig{Workers: 1})
	queue.Start(context.Background())
	defer queue.Stop()
	service.AttachQueue(queue)

	ack, err := service.Enqueue(context.Background(), pairRequest())
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, ack.Status)

	require.Eventually(t, func() bool {
		status, err := service.JobStatus(context.Background(), ack.JobID)
		return err == nil && status.Status == jobs.StatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	status, err := service.JobStatus(context.Background(), ack.JobID)
	require.NoError(t, err)
	require.NotNil(t, status.Proposal)
	assert.Nil(t, status.Result)

	_, err = service.JobStatus(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScheduleGeneratorServiceJobSkipsRetryOnInvalidSkeleton(t *testing.T) {
	skeletonErr := &models.SkeletonValidationError{Errors: []string{"Class Monday 09:00-10:00 has 4 students. Maximum 3 allowed."}}
	engine := &engineStub{err: skeletonErr}
	service := newSchedulerServiceFixture(t, schedulerFixtureConfig{engine: engine})

	queue := jobs.NewQueue("schedule-generator", service.HandleJob, jobs.QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	queue.Start(context.Background())
	defer queue.Stop()
	service.AttachQueue(queue)

	ack, err := service.Enqueue(context.Background(), pairRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := service.JobStatus(context.Background(), ack.JobID)
		return err == nil && status.Status == jobs.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	status, err := service.JobStatus(context.Background(), ack.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Attempts)
	assert.Contains(t, status.Error, "Maximum 3 allowed")
	assert.Equal(t, 1, engine.calls)
}

func TestProposalStoreExpires(t *testing.T) {
	store := newProposalStore(time.Minute)
	store.Save(scheduleProposal{ProposalID: "old", RequestedAt: time.Now().Add(-2 * time.Minute)})
	store.Save(scheduleProposal{ProposalID: "fresh", RequestedAt: time.Now()})

	_, ok := store.Get("old")
	assert.False(t, ok)
	_, ok = store.Get("fresh")
	assert.True(t, ok)
}

// --- Fixtures ---

type schedulerFixtureConfig struct {
	engine      scheduleEngine
	tx          txProvider
	runs        scheduleRunRepository
	classes     scheduleRunClassRepository
	cache       resultCache
	metrics     runObserver
	maxStudents int
}

func newSchedulerServiceFixture(t *testing.T, cfg schedulerFixtureConfig) *ScheduleGeneratorService {
	t.Helper()
	engine := cfg.engine
	if engine == nil {
		engine = &engineStub{result: stubResult(false)}
	}
	return NewScheduleGeneratorService(engine, cfg.runs, cfg.classes, cfg.tx, cfg.cache, cfg.metrics, nil, nil, ScheduleGeneratorConfig{
		ProposalTTL: time.Minute,
		MaxStudents: cfg.maxStudents,
	})
}

func stubResult(interrupted bool) *models.ScheduleResult {
	meta := map[string]any{"phase": PhaseAllConstraints, "solver_status": "OPTIMAL"}
	if interrupted {
		meta["interrupted"] = true
	}
	return &models.ScheduleResult{
		Schedule: []models.ScheduledClass{{
			Slot:     hourSlot(models.Monday, 9, 0),
			Students: []string{"Alice", "Bob"},
			Status:   models.ClassStatusProposed,
		}},
		Unplaced: []models.UnplacedStudent{},
		Warnings: []models.ScheduleWarning{},
		Metadata: meta,
	}
}

type engineStub struct {
	result   *models.ScheduleResult
	err      error
	calls    int
	students []models.Student
	prefixed []models.ScheduledClass
	blocked  []models.Slot
}

func (e *engineStub) Validate(students []models.Student, prefixed []models.ScheduledClass, blocked []models.Slot) models.ValidationResult {
	return models.ValidationResult{Valid: true}
}

func (e *engineStub) GenerateSchedule(ctx context.Context, students []models.Student, prefixed []models.ScheduledClass, blocked []models.Slot) (*models.ScheduleResult, error) {
	e.calls++
	e.students, e.prefixed, e.blocked = students, prefixed, blocked
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

type resultCacheStub struct {
	items map[string][]byte
}

func newResultCacheStub() *resultCacheStub {
	return &resultCacheStub{items: make(map[string][]byte)}
}

func (c *resultCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *resultCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func (c *resultCacheStub) Invalidate(ctx context.Context, pattern string) (int, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	removed := 0
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
			removed++
		}
	}
	return removed, nil
}

type runObserverStub struct {
	runs []string
}

func (r *runObserverStub) ObserveScheduleRun(phase string, complete bool, _ float64) {
	r.runs = append(r.runs, fmt.Sprintf("%s:%t", phase, complete))
}

type scheduleRunRepoStub struct {
	items    []models.ScheduleRun
	archived []string
}

func (s *scheduleRunRepoStub) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.ScheduleRun) error {
	run.ID = fmt.Sprintf("run-%d", len(s.items)+1)
	run.Version = len(s.items) + 1
	s.items = append(s.items, *run)
	return nil
}

func (s *scheduleRunRepoStub) ListByLabel(ctx context.Context, label string) ([]models.ScheduleRun, error) {
	return s.items, nil
}

func (s *scheduleRunRepoStub) FindByID(ctx context.Context, id string) (*models.ScheduleRun, error) {
	for _, item := range s.items {
		if item.ID == id {
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *scheduleRunRepoStub) Delete(ctx context.Context, id string) error {
	for idx, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *scheduleRunRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleRunStatus, meta types.JSONText) error {
	for idx := range s.items {
		if s.items[idx].ID == id {
			s.items[idx].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *scheduleRunRepoStub) ArchivePublished(ctx context.Context, exec sqlx.ExtContext, label, keepID string) error {
	s.archived = append(s.archived, label)
	for idx := range s.items {
		if s.items[idx].Label == label && s.items[idx].ID != keepID && s.items[idx].Status == models.ScheduleRunStatusPublished {
			s.items[idx].Status = models.ScheduleRunStatusArchived
		}
	}
	return nil
}

type scheduleRunClassRepoStub struct {
	items map[string][]models.ScheduleRunClass
	err   error
}

func (s *scheduleRunClassRepoStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, classes []models.ScheduleRunClass) error {
	if s.err != nil {
		return s.err
	}
	if s.items == nil {
		s.items = make(map[string][]models.ScheduleRunClass)
	}
	for _, class := range classes {
		s.items[class.ScheduleRunID] = append(s.items[class.ScheduleRunID], class)
	}
	return nil
}

func (s *scheduleRunClassRepoStub) ListByRun(ctx context.Context, runID string) ([]models.ScheduleRunClass, error) {
	return s.items[runID], nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}
