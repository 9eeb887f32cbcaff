package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler-api/internal/dto"
	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/lesson-scheduler-api/pkg/errors"
	"github.com/noah-isme/lesson-scheduler-api/pkg/export"
	"github.com/noah-isme/lesson-scheduler-api/pkg/jobs"
	"github.com/noah-isme/lesson-scheduler-api/pkg/roster"
)

const (
	resultCachePrefix = "schedule:result:"
	generateJobType   = "schedule.generate"
)

type scheduleRunRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, run *models.ScheduleRun) error
	ListByLabel(ctx context.Context, label string) ([]models.ScheduleRun, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleRun, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleRunStatus, meta types.JSONText) error
	ArchivePublished(ctx context.Context, exec sqlx.ExtContext, label, keepID string) error
}

type scheduleRunClassRepository interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, classes []models.ScheduleRunClass) error
	ListByRun(ctx context.Context, runID string) ([]models.ScheduleRunClass, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type scheduleEngine interface {
	Validate(students []models.Student, prefixed []models.ScheduledClass, blocked []models.Slot) models.ValidationResult
	GenerateSchedule(ctx context.Context, students []models.Student, prefixed []models.ScheduledClass, blocked []models.Slot) (*models.ScheduleResult, error)
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) (int, error)
}

type runObserver interface {
	ObserveScheduleRun(phase string, complete bool, placementRate float64)
}

type jobTracker interface {
	Enqueue(job jobs.Job) error
	Lookup(id string) (jobs.Record, bool)
}

// ScheduleGeneratorService runs the engine, keeps proposals for review and persists saved runs.
type ScheduleGeneratorService struct {
	engine    scheduleEngine
	runs      scheduleRunRepository
	classes   scheduleRunClassRepository
	tx        txProvider
	cache     resultCache
	metrics   runObserver
	validator *validator.Validate
	logger    *zap.Logger
	store     *proposalStore
	cfg       ScheduleGeneratorConfig

	queueMu sync.RWMutex
	queue   jobTracker
}

// ScheduleGeneratorConfig governs generator behaviour.
type ScheduleGeneratorConfig struct {
	ProposalTTL    time.Duration
	ResultCacheTTL time.Duration
	MaxStudents    int
}

// NewScheduleGeneratorService wires scheduler dependencies. Persistence, cache and metrics are optional.
func NewScheduleGeneratorService(
	engine scheduleEngine,
	runs scheduleRunRepository,
	classes scheduleRunClassRepository,
	tx txProvider,
	cache resultCache,
	metrics runObserver,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleGeneratorConfig,
) *ScheduleGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.ResultCacheTTL <= 0 {
		cfg.ResultCacheTTL = time.Hour
	}
	return &ScheduleGeneratorService{
		engine:    engine,
		runs:      runs,
		classes:   classes,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		store:     newProposalStore(cfg.ProposalTTL),
		cfg:       cfg,
	}
}

// AttachQueue enables asynchronous generation.
func (s *ScheduleGeneratorService) AttachQueue(queue jobTracker) {
	s.queueMu.Lock()
	s.queue = queue
	s.queueMu.Unlock()
}

func (s *ScheduleGeneratorService) jobQueue() jobTracker {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	return s.queue
}

// Generate runs the engine on a JSON request and stores the result as a proposal.
func (s *ScheduleGeneratorService) Generate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error) {
	input, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, req.Title, input)
}

// GenerateFromCSV parses a roster and optional recurring-slot file, then generates like Generate.
func (s *ScheduleGeneratorService) GenerateFromCSV(ctx context.Context, students io.Reader, recurring io.Reader, blocked []models.Slot, title string) (*dto.GenerateScheduleResponse, error) {
	input, err := parseCSVInput(students, recurring, blocked)
	if err != nil {
		return nil, err
	}
	if err := s.checkSize(len(input.Students)); err != nil {
		return nil, err
	}
	return s.generate(ctx, title, input)
}

// Validate runs the skeleton checks only and previews single-student warnings.
func (s *ScheduleGeneratorService) Validate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.ValidateScheduleResponse, error) {
	input, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	return &dto.ValidateScheduleResponse{
		Validation: s.engine.Validate(input.Students, input.Recurring, input.Blocked),
		Warnings:   SingleStudentWarnings(input.Recurring, input.Students),
	}, nil
}

// Enqueue schedules an asynchronous generation and returns its job id.
func (s *ScheduleGeneratorService) Enqueue(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateJobResponse, error) {
	queue := s.jobQueue()
	if queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "asynchronous generation is disabled")
	}
	if _, err := s.prepare(req); err != nil {
		return nil, err
	}
	job := jobs.Job{ID: uuid.NewString(), Type: generateJobType, Payload: req}
	if err := queue.Enqueue(job); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "generation queue is full")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation")
	}
	s.logger.Sugar().Infow("schedule generation enqueued", "job_id", job.ID, "students", len(req.Students))
	return &dto.GenerateJobResponse{JobID: job.ID, Status: jobs.StatusPending}, nil
}

// JobStatus reports a tracked generation job.
func (s *ScheduleGeneratorService) JobStatus(ctx context.Context, id string) (*dto.GenerateJobStatus, error) {
	queue := s.jobQueue()
	if queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "asynchronous generation is disabled")
	}
	record, ok := queue.Lookup(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found or expired")
	}
	status := &dto.GenerateJobStatus{Record: record}
	if proposal, ok := record.Result.(*dto.GenerateScheduleResponse); ok {
		status.Proposal = proposal
		status.Record.Result = nil
	}
	return status, nil
}

// HandleJob is the queue handler for asynchronous generation. Client errors are not retried.
func (s *ScheduleGeneratorService) HandleJob(ctx context.Context, job jobs.Job) (interface{}, error) {
	req, ok := job.Payload.(dto.GenerateScheduleRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	proposal, err := s.Generate(ctx, req)
	if err != nil {
		if appErrors.FromError(err).Status < http.StatusInternalServerError {
			return nil, jobs.Permanent(err)
		}
		return nil, err
	}
	return proposal, nil
}

// Proposal returns a stored proposal.
func (s *ScheduleGeneratorService) Proposal(ctx context.Context, id string) (*dto.GenerateScheduleResponse, error) {
	proposal, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	return proposal.response(false), nil
}

// ExportedFile is a rendered proposal.
type ExportedFile struct {
	Content     []byte
	ContentType string
	Filename    string
}

// Export renders a proposal as json, markdown, csv or pdf.
func (s *ScheduleGeneratorService) Export(ctx context.Context, id string, query dto.ExportQuery) (*ExportedFile, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}
	proposal, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	base := "schedule-" + proposal.ProposalID[:8]

	switch query.Format {
	case "", "json":
		payload, err := json.MarshalIndent(proposal.Result, "", "  ")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode schedule")
		}
		return &ExportedFile{Content: payload, ContentType: "application/json", Filename: base + ".json"}, nil
	case "markdown":
		content := export.NewMarkdownRenderer().Render(proposal.Result, proposal.RequestedAt)
		return &ExportedFile{Content: content, ContentType: "text/markdown; charset=utf-8", Filename: base + ".md"}, nil
	case "csv":
		exporter := export.NewCSVExporter()
		var (
			content []byte
			err     error
		)
		if query.Part == "unplaced" {
			content, err = exporter.RenderUnplaced(proposal.Result)
			base += "-unplaced"
		} else {
			content, err = exporter.RenderSchedule(proposal.Result)
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportedFile{Content: content, ContentType: "text/csv", Filename: base + ".csv"}, nil
	default:
		title := proposal.Title
		if title == "" {
			title = "Weekly lesson schedule"
		}
		content, err := export.NewPDFExporter().Render(export.NewScheduleDocument(title, proposal.Result, proposal.RequestedAt))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportedFile{Content: content, ContentType: "application/pdf", Filename: base + ".pdf"}, nil
	}
}

// Save persists a proposal as a new version of a labelled schedule run.
func (s *ScheduleGeneratorService) Save(ctx context.Context, req dto.SaveScheduleRequest, actor string) (*dto.SaveScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save schedule payload")
	}
	if s.tx == nil || s.runs == nil || s.classes == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "schedule persistence is disabled")
	}
	proposal, ok := s.store.Get(req.ProposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if interrupted, _ := proposal.Result.Metadata["interrupted"].(bool); interrupted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "proposal comes from an interrupted run")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	metaPayload := map[string]any{
		"title":     proposal.Title,
		"generated": proposal.RequestedAt,
		"summary":   export.NewSummary(proposal.Result),
		"unplaced":  proposal.Result.Unplaced,
		"warnings":  proposal.Result.Warnings,
		"engine":    proposal.Result.Metadata,
	}
	metaBytes, marshalErr := json.Marshal(metaPayload)
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode schedule metadata")
		return nil, err
	}

	record := &models.ScheduleRun{
		Label:     req.Label,
		Status:    models.ScheduleRunStatusDraft,
		Meta:      types.JSONText(metaBytes),
		CreatedBy: actor,
	}
	if err = s.runs.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule run")
		return nil, err
	}

	classModels := make([]models.ScheduleRunClass, 0, len(proposal.Result.Schedule))
	for _, class := range proposal.Result.Schedule {
		classModels = append(classModels, models.NewScheduleRunClass(record.ID, class))
	}
	if err = s.classes.InsertBatch(ctx, tx, classModels); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist schedule classes")
		return nil, err
	}

	if req.Publish {
		if err = s.publish(ctx, tx, record); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule transaction")
		return nil, err
	}

	s.store.Delete(req.ProposalID)
	s.logger.Info("schedule run saved",
		zap.String("run_id", record.ID),
		zap.String("label", record.Label),
		zap.Int("version", record.Version),
		zap.Bool("published", req.Publish),
	)
	return &dto.SaveScheduleResponse{RunID: record.ID, Label: record.Label, Version: record.Version}, nil
}

// Publish marks a draft run as the published version of its label, archiving the previous one.
func (s *ScheduleGeneratorService) Publish(ctx context.Context, runID string) error {
	if s.tx == nil || s.runs == nil {
		return appErrors.Clone(appErrors.ErrUnavailable, "schedule persistence is disabled")
	}
	record, err := s.findRun(ctx, runID)
	if err != nil {
		return err
	}
	if record.Status != models.ScheduleRunStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft runs can be published")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.publish(ctx, tx, record); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule transaction")
		return err
	}
	return nil
}

func (s *ScheduleGeneratorService) publish(ctx context.Context, exec sqlx.ExtContext, record *models.ScheduleRun) error {
	if err := s.runs.ArchivePublished(ctx, exec, record.Label, record.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive previous schedule")
	}
	if err := s.runs.UpdateStatus(ctx, exec, record.ID, models.ScheduleRunStatusPublished, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule status")
	}
	record.Status = models.ScheduleRunStatusPublished
	return nil
}

// List returns saved runs, optionally filtered by label.
func (s *ScheduleGeneratorService) List(ctx context.Context, query dto.ScheduleRunQuery) ([]models.ScheduleRun, error) {
	if s.runs == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "schedule persistence is disabled")
	}
	list, err := s.runs.ListByLabel(ctx, query.Label)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule runs")
	}
	return list, nil
}

// GetClasses returns the classes of a saved run.
func (s *ScheduleGeneratorService) GetClasses(ctx context.Context, runID string) ([]models.ScheduleRunClass, error) {
	if runID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "run id is required")
	}
	if s.runs == nil || s.classes == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "schedule persistence is disabled")
	}
	if _, err := s.findRun(ctx, runID); err != nil {
		return nil, err
	}
	classes, err := s.classes.ListByRun(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule classes")
	}
	return classes, nil
}

// Delete removes a draft run.
func (s *ScheduleGeneratorService) Delete(ctx context.Context, runID string) error {
	if s.runs == nil {
		return appErrors.Clone(appErrors.ErrUnavailable, "schedule persistence is disabled")
	}
	record, err := s.findRun(ctx, runID)
	if err != nil {
		return err
	}
	if record.Status != models.ScheduleRunStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft runs can be deleted")
	}
	if err := s.runs.Delete(ctx, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule run not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule run")
	}
	return nil
}

// PurgeResultCache drops every cached schedule result.
func (s *ScheduleGeneratorService) PurgeResultCache(ctx context.Context) (int, error) {
	if !s.cacheEnabled() {
		return 0, appErrors.Clone(appErrors.ErrUnavailable, "result cache is disabled")
	}
	removed, err := s.cache.Invalidate(ctx, resultCachePrefix+"*")
	if err != nil {
		return removed, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to purge result cache")
	}
	return removed, nil
}

func (s *ScheduleGeneratorService) cacheEnabled() bool {
	if s.cache == nil {
		return false
	}
	if toggle, ok := s.cache.(interface{ Enabled() bool }); ok {
		return toggle.Enabled()
	}
	return true
}

func (s *ScheduleGeneratorService) findRun(ctx context.Context, runID string) (*models.ScheduleRun, error) {
	record, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule run")
	}
	return record, nil
}

// --- Generation ---

type engineInput struct {
	Students  []models.Student
	Recurring []models.ScheduledClass
	Blocked   []models.Slot
}

func (s *ScheduleGeneratorService) prepare(req dto.GenerateScheduleRequest) (engineInput, error) {
	if err := s.validator.Struct(req); err != nil {
		return engineInput{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule generation payload")
	}
	if err := s.checkSize(len(req.Students)); err != nil {
		return engineInput{}, err
	}
	return requestToInput(req)
}

func (s *ScheduleGeneratorService) checkSize(students int) error {
	if s.cfg.MaxStudents > 0 && students > s.cfg.MaxStudents {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("roster has %d students, at most %d allowed", students, s.cfg.MaxStudents))
	}
	return nil
}

func (s *ScheduleGeneratorService) generate(ctx context.Context, title string, input engineInput) (*dto.GenerateScheduleResponse, error) {
	key, keyErr := fingerprint(input)
	if keyErr != nil {
		s.logger.Warn("schedule fingerprint failed", zap.Error(keyErr))
	}

	var result *models.ScheduleResult
	cached := false
	if s.cacheEnabled() && key != "" {
		var hit models.ScheduleResult
		ok, err := s.cache.Get(ctx, resultCachePrefix+key, &hit)
		if err == nil && ok {
			result = &hit
			cached = true
		}
	}

	if result == nil {
		generated, err := s.engine.GenerateSchedule(ctx, input.Students, input.Recurring, input.Blocked)
		if err != nil {
			return nil, mapEngineError(err)
		}
		result = generated
		if s.metrics != nil {
			s.metrics.ObserveScheduleRun(resultPhase(result), result.IsComplete(), result.PlacementRate())
		}
		interrupted, _ := result.Metadata["interrupted"].(bool)
		if s.cacheEnabled() && key != "" && !interrupted {
			_ = s.cache.Set(ctx, resultCachePrefix+key, result, s.cfg.ResultCacheTTL)
		}
	}

	proposal := scheduleProposal{
		ProposalID:  uuid.NewString(),
		Title:       title,
		Result:      result,
		Fingerprint: key,
		RequestedAt: time.Now().UTC(),
	}
	s.store.Save(proposal)
	return proposal.response(cached), nil
}

func mapEngineError(err error) error {
	var skeletonErr *models.SkeletonValidationError
	if errors.As(err, &skeletonErr) {
		return appErrors.WithDetails(appErrors.Wrap(err, appErrors.ErrSkeletonInvalid.Code, appErrors.ErrSkeletonInvalid.Status, appErrors.ErrSkeletonInvalid.Message), skeletonErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "schedule generation was cancelled")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate schedule")
}

func resultPhase(result *models.ScheduleResult) string {
	if phase, ok := result.Metadata["phase"].(string); ok {
		return phase
	}
	if algorithm, ok := result.Metadata["algorithm"].(string); ok {
		return algorithm
	}
	return "unknown"
}

// fingerprint hashes the normalised input so equal requests share a cache entry.
func fingerprint(input engineInput) (string, error) {
	students := make([]models.Student, len(input.Students))
	copy(students, input.Students)
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })

	blocked := make([]models.Slot, len(input.Blocked))
	copy(blocked, input.Blocked)
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].Less(blocked[j]) })

	payload, err := json.Marshal(struct {
		Students  []models.Student        `json:"students"`
		Recurring []models.ScheduledClass `json:"recurring"`
		Blocked   []models.Slot           `json:"blocked"`
	}{students, input.Recurring, blocked})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func requestToInput(req dto.GenerateScheduleRequest) (engineInput, error) {
	input := engineInput{
		Students:  make([]models.Student, 0, len(req.Students)),
		Recurring: make([]models.ScheduledClass, 0, len(req.Recurring)),
		Blocked:   make([]models.Slot, 0, len(req.Blocked)),
	}
	seen := make(map[string]struct{}, len(req.Students))
	for _, item := range req.Students {
		if _, dup := seen[item.Name]; dup {
			return engineInput{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is listed twice", item.Name))
		}
		seen[item.Name] = struct{}{}
		for _, slot := range item.Available {
			if !slot.IsValid() {
				return engineInput{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s has an invalid slot %s (lessons last one hour on the half hour)", item.Name, slot))
			}
		}
		if len(item.Available) < item.SessionsPerWeek {
			return engineInput{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s wants %d sessions but has %d slots", item.Name, item.SessionsPerWeek, len(item.Available)))
		}
		input.Students = append(input.Students, models.Student{
			Name:            item.Name,
			SessionsPerWeek: item.SessionsPerWeek,
			Available:       item.Available,
			LinkedWith:      item.LinkedWith,
			Notes:           item.Notes,
		})
	}
	if _, err := roster.ValidateLinks(input.Students); err != nil {
		return engineInput{}, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	for _, item := range req.Recurring {
		if !item.Slot.IsValid() {
			return engineInput{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("recurring slot %s is invalid (lessons last one hour on the half hour)", item.Slot))
		}
		status := models.ClassStatus(item.Status)
		if status == "" {
			status = models.ClassStatusNeedsValidation
			if len(item.Students) >= 2 {
				status = models.ClassStatusLocked
			}
		}
		slot := item.Slot
		slot.Recurring = true
		students := make([]string, len(item.Students))
		copy(students, item.Students)
		input.Recurring = append(input.Recurring, models.ScheduledClass{Slot: slot, Students: students, Status: status})
	}

	for _, slot := range req.Blocked {
		if !slot.Day.Valid() || slot.Start >= slot.End {
			return engineInput{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("blocked slot %s is invalid", slot))
		}
		input.Blocked = append(input.Blocked, slot)
	}
	return input, nil
}

func parseCSVInput(students io.Reader, recurring io.Reader, blocked []models.Slot) (engineInput, error) {
	parsed, err := roster.ParseStudents(students)
	if err != nil {
		return engineInput{}, wrapParseError(err, "invalid student roster")
	}
	var classes []models.ScheduledClass
	if recurring != nil {
		classes, err = roster.ParseRecurring(recurring, parsed)
		if err != nil {
			return engineInput{}, wrapParseError(err, "invalid recurring slots")
		}
	}
	return engineInput{Students: parsed, Recurring: classes, Blocked: blocked}, nil
}

func wrapParseError(err error, message string) error {
	var parseErr *roster.ParseError
	if errors.As(err, &parseErr) {
		return appErrors.WithDetails(appErrors.Wrap(err, appErrors.ErrParse.Code, appErrors.ErrParse.Status, message), parseErr)
	}
	return appErrors.Wrap(err, appErrors.ErrParse.Code, appErrors.ErrParse.Status, message)
}

// --- Proposal cache ---

type scheduleProposal struct {
	ProposalID  string
	Title       string
	Result      *models.ScheduleResult
	Fingerprint string
	RequestedAt time.Time
}

func (p scheduleProposal) response(cached bool) *dto.GenerateScheduleResponse {
	return &dto.GenerateScheduleResponse{
		ProposalID: p.ProposalID,
		Result:     p.Result,
		Summary:    export.NewSummary(p.Result),
		Cached:     cached,
	}
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]scheduleProposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]scheduleProposal),
	}
}

func (s *proposalStore) Save(proposal scheduleProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
	s.pruneLocked(time.Now())
}

func (s *proposalStore) Get(id string) (scheduleProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return scheduleProposal{}, false
	}
	if time.Since(proposal.RequestedAt) > s.ttl {
		s.Delete(id)
		return scheduleProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

func (s *proposalStore) pruneLocked(now time.Time) {
	for id, proposal := range s.items {
		if now.Sub(proposal.RequestedAt) > s.ttl {
			delete(s.items, id)
		}
	}
}
