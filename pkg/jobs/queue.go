package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the buffer has no room for another job.
var ErrQueueFull = errors.New("queue is full")

// Status is the lifecycle state of a tracked job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Record is the observable state of a job, kept after it finishes.
type Record struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Status     Status      `json:"status"`
	Attempts   int         `json:"attempts"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
}

// Permanent marks a handler error that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Handler processes a job and returns a result stored on the job record.
type Handler func(context.Context, Job) (interface{}, error)

// Observer is told about every job that reaches a final status.
type Observer interface {
	ObserveJob(queue string, status Status, elapsed time.Duration)
}

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	// Retention bounds how long finished records stay queryable.
	Retention time.Duration
	Logger    *zap.Logger
	Observer  Observer
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	retention  time.Duration
	logger     *zap.Logger
	observer   Observer

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	recMu   sync.RWMutex
	records map[string]*Record
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		retention:  cfg.Retention,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
		jobs:       make(chan Job, cfg.BufferSize),
		records:    make(map[string]*Record),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue pushes a job onto the queue without blocking and starts tracking it.
func (q *Queue) Enqueue(job Job) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	q.track(job)
	if err := q.push(job); err != nil {
		q.untrack(job.ID)
		return err
	}
	return nil
}

// Lookup returns a snapshot of the job record.
func (q *Queue) Lookup(id string) (Record, bool) {
	q.recMu.RLock()
	defer q.recMu.RUnlock()
	rec, ok := q.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

func (q *Queue) push(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("queue %s stopped: %w", q.name, err)
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.markRunning(job)
			result, err := q.handler(q.ctx, job)
			if err != nil {
				q.handleFailure(job, err)
				continue
			}
			q.finish(job.ID, StatusSucceeded, result, nil)
			q.logger.Sugar().Debugw("job finished", "queue", q.name, "job_id", job.ID, "worker", workerID)
		}
	}
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries || isPermanent(err) {
		q.finish(job.ID, StatusFailed, nil, err)
		q.logger.Sugar().Errorw("job exceeded retries", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		return
	}
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

	go func(j Job) {
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.push(j); err != nil {
				q.finish(j.ID, StatusFailed, nil, err)
				q.logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}

func (q *Queue) track(job Job) {
	q.recMu.Lock()
	defer q.recMu.Unlock()
	q.pruneLocked(time.Now().UTC())
	q.records[job.ID] = &Record{
		ID:         job.ID,
		Type:       job.Type,
		Status:     StatusPending,
		EnqueuedAt: job.Enqueued,
	}
}

func (q *Queue) untrack(id string) {
	q.recMu.Lock()
	delete(q.records, id)
	q.recMu.Unlock()
}

func (q *Queue) markRunning(job Job) {
	q.recMu.Lock()
	defer q.recMu.Unlock()
	rec, ok := q.records[job.ID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	rec.Status = StatusRunning
	rec.Attempts = job.Attempt + 1
	rec.StartedAt = &now
}

func (q *Queue) finish(id string, status Status, result interface{}, err error) {
	q.recMu.Lock()
	rec, ok := q.records[id]
	if !ok {
		q.recMu.Unlock()
		return
	}
	now := time.Now().UTC()
	rec.Status = status
	rec.Result = result
	rec.FinishedAt = &now
	if err != nil {
		rec.Error = err.Error()
	}
	elapsed := now.Sub(rec.EnqueuedAt)
	q.recMu.Unlock()

	if q.observer != nil {
		q.observer.ObserveJob(q.name, status, elapsed)
	}
}

func (q *Queue) pruneLocked(now time.Time) {
	for id, rec := range q.records {
		if rec.FinishedAt != nil && now.Sub(*rec.FinishedAt) > q.retention {
			delete(q.records, id)
		}
	}
}
