package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	"github.com/noah-isme/lesson-scheduler-api/pkg/cpsat"
)

// Metadata values reported by the engine.
const (
	PhaseAllConstraints = "A_all_constraints"
	PhaseHardOnly       = "B_hard_only"
	PhasePartial        = "C_partial"
	AlgorithmSkeleton   = "skeleton_only"
)

// EngineConfig tunes class sizes, the soft objective weight and the phase budgets.
// Budgets are cumulative deadlines measured from the start of a run.
type EngineConfig struct {
	MinClassSize int
	MaxClassSize int
	SoftWeight   int
	PhaseABudget time.Duration
	PhaseBBudget time.Duration
	TotalBudget  time.Duration
}

// DefaultEngineConfig returns 2-3 students per class, weight 3 and a 5/10/15 second schedule.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinClassSize: models.DefaultMinClassSize,
		MaxClassSize: models.DefaultMaxClassSize,
		SoftWeight:   3,
		PhaseABudget: 5 * time.Second,
		PhaseBBudget: 10 * time.Second,
		TotalBudget:  15 * time.Second,
	}
}

func (c EngineConfig) normalized() EngineConfig {
	def := DefaultEngineConfig()
	if c.MinClassSize <= 0 {
		c.MinClassSize = def.MinClassSize
	}
	if c.MaxClassSize < c.MinClassSize {
		c.MaxClassSize = def.MaxClassSize
		if c.MaxClassSize < c.MinClassSize {
			c.MaxClassSize = c.MinClassSize
		}
	}
	if c.SoftWeight <= 0 {
		c.SoftWeight = def.SoftWeight
	}
	if c.PhaseABudget <= 0 {
		c.PhaseABudget = def.PhaseABudget
	}
	if c.PhaseBBudget < c.PhaseABudget {
		c.PhaseBBudget = c.PhaseABudget * 2
	}
	if c.TotalBudget < c.PhaseBBudget {
		c.TotalBudget = c.PhaseBBudget + c.PhaseABudget
	}
	return c
}

type phaseObserver interface {
	ObserveSolvePhase(phase, status string, duration time.Duration)
}

// Engine places residual student demand around a validated skeleton of pre-fixed classes.
// It keeps no state between runs and is safe for concurrent use when the solver is.
type Engine struct {
	cfg      EngineConfig
	solver   cpsat.Solver
	logger   *zap.Logger
	observer phaseObserver
	now      func() time.Time
}

// NewEngine wires the engine. A nil solver selects the gini SAT backend.
func NewEngine(cfg EngineConfig, solver cpsat.Solver, logger *zap.Logger, observer phaseObserver) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if solver == nil {
		solver = cpsat.NewGiniSolver(logger.Named("sat"))
	}
	return &Engine{
		cfg:      cfg.normalized(),
		solver:   solver,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

// Config exposes the effective configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Validate runs the skeleton checks with the engine's class size bounds.
func (e *Engine) Validate(students []models.Student, prefixed []models.ScheduledClass, blocked []models.Slot) models.ValidationResult {
	return validateSkeleton(prefixed, students, blocked, e.cfg.MinClassSize, e.cfg.MaxClassSize)
}

// GenerateSchedule validates the skeleton, then places remaining demand through up to three solver phases.
// An invalid skeleton yields *models.SkeletonValidationError and the solver is not invoked.
// The context is only checked between phases; a cancelled run returns the best result so far.
func (e *Engine) GenerateSchedule(ctx context.Context, students []models.Student, prefixed []models.ScheduledClass, blocked []models.Slot) (*models.ScheduleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := e.now()

	validation := e.Validate(students, prefixed, blocked)
	if !validation.Valid {
		return nil, &models.SkeletonValidationError{Errors: validation.Errors, Warnings: validation.Warnings}
	}

	skeleton := BuildSkeleton(prefixed)
	warnings := SingleStudentWarnings(prefixed, students)
	residual := reduceDemand(students, SkeletonPlacements(skeleton))

	if len(residual) == 0 {
		result := &models.ScheduleResult{
			Schedule: sortedClasses(skeletonClasses(skeleton)),
			Unplaced: []models.UnplacedStudent{},
			Warnings: warnings,
			Metadata: map[string]any{
				"algorithm":          AlgorithmSkeleton,
				"total_students":     len(students),
				"placed_students":    countPlaced(skeletonClasses(skeleton)),
				"execution_time_sec": e.since(start),
				"skeleton_warnings":  validation.Warnings,
			},
		}
		e.logger.Info("schedule generated from skeleton only", zap.Int("classes", len(result.Schedule)))
		return result, nil
	}

	slots := candidateSlots(residual, skeleton, blocked)
	run := e.runPhases(ctx, start, residual, slots, skeleton)

	result := extractResult(skeleton, residual, run.model, run.response, e.cfg.MaxClassSize)
	result.Warnings = warnings
	result.Metadata["phase"] = run.phase
	result.Metadata["phases"] = run.reports
	result.Metadata["execution_time_sec"] = e.since(start)
	result.Metadata["total_students"] = len(students)
	result.Metadata["residual_students"] = len(residual)
	result.Metadata["candidate_slots"] = len(slots)
	result.Metadata["variables"] = run.model.model.NumVars()
	result.Metadata["constraints"] = run.model.model.NumConstraints()
	result.Metadata["linked_pairs"] = run.model.links
	result.Metadata["skeleton_warnings"] = validation.Warnings
	if run.interrupted {
		result.Metadata["interrupted"] = true
	}

	e.logger.Info("schedule generated",
		zap.String("phase", run.phase),
		zap.String("solver_status", run.response.Status.String()),
		zap.Int("classes", len(result.Schedule)),
		zap.Int("unplaced", len(result.Unplaced)),
		zap.Bool("interrupted", run.interrupted),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return result, nil
}

func (e *Engine) since(start time.Time) float64 {
	return e.now().Sub(start).Seconds()
}

func skeletonClasses(skeleton map[models.SlotKey]models.ScheduledClass) []models.ScheduledClass {
	out := make([]models.ScheduledClass, 0, len(skeleton))
	for _, class := range skeleton {
		out = append(out, class)
	}
	return out
}

func sortedClasses(classes []models.ScheduledClass) []models.ScheduledClass {
	sort.Slice(classes, func(i, j int) bool { return classes[i].Slot.Less(classes[j].Slot) })
	return classes
}

func countPlaced(classes []models.ScheduledClass) int {
	names := make(map[string]struct{})
	for _, class := range classes {
		for _, name := range class.Students {
			names[name] = struct{}{}
		}
	}
	return len(names)
}
