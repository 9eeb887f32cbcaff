package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	"github.com/noah-isme/lesson-scheduler-api/pkg/cpsat"
)

// PhaseReport summarises one solver phase for the result metadata.
type PhaseReport struct {
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	Seconds      float64 `json:"seconds"`
	BudgetSec    float64 `json:"budget_sec"`
	Complete     bool    `json:"complete"`
	Improvements int     `json:"improvements"`
}

type phasePlan struct {
	name     string
	mode     modelMode
	deadline time.Duration
}

type phaseRun struct {
	phase       string
	model       *placementModel
	response    *cpsat.Response
	reports     []PhaseReport
	interrupted bool
}

func (e *Engine) phasePlans() []phasePlan {
	return []phasePlan{
		{name: PhaseAllConstraints, mode: modeAllConstraints, deadline: e.cfg.PhaseABudget},
		{name: PhaseHardOnly, mode: modeHardOnly, deadline: e.cfg.PhaseBBudget},
		{name: PhasePartial, mode: modePartial, deadline: e.cfg.TotalBudget},
	}
}

// runPhases tries each phase in turn until one places every residual student.
// The first phase always runs; later phases run only while their deadline has not passed.
func (e *Engine) runPhases(ctx context.Context, start time.Time, residual []residualStudent, slots []models.Slot, skeleton map[models.SlotKey]models.ScheduledClass) phaseRun {
	limits := modelLimits{minSize: e.cfg.MinClassSize, maxSize: e.cfg.MaxClassSize, softWeight: e.cfg.SoftWeight}
	var run phaseRun

	for i, plan := range e.phasePlans() {
		if i > 0 && ctx.Err() != nil {
			run.interrupted = true
			e.logger.Warn("schedule run interrupted between phases", zap.String("last_phase", run.phase), zap.Error(ctx.Err()))
			break
		}
		budget := plan.deadline - e.now().Sub(start)
		if i > 0 && budget <= 0 {
			e.logger.Debug("phase skipped, deadline passed", zap.String("phase", plan.name))
			continue
		}
		if budget < 0 {
			budget = 0
		}

		pm := buildPlacementModel(residual, slots, skeleton, plan.mode, limits)
		phaseStart := e.now()
		resp, err := e.solver.Solve(pm.model, budget)
		if err != nil {
			status := cpsat.Unknown
			if errors.Is(err, cpsat.ErrInvalidModel) {
				status = cpsat.ModelInvalid
			}
			e.logger.Error("solver failed", zap.String("phase", plan.name), zap.Error(err))
			resp = &cpsat.Response{Status: status}
		}
		if resp == nil {
			resp = &cpsat.Response{Status: cpsat.Unknown}
		}
		elapsed := e.now().Sub(phaseStart)
		complete := pm.complete(resp)

		run.phase = plan.name
		run.model = pm
		run.response = resp
		run.reports = append(run.reports, PhaseReport{
			Name:         plan.name,
			Status:       resp.Status.String(),
			Seconds:      elapsed.Seconds(),
			BudgetSec:    budget.Seconds(),
			Complete:     complete,
			Improvements: resp.Improvements,
		})
		if e.observer != nil {
			e.observer.ObserveSolvePhase(plan.name, resp.Status.String(), elapsed)
		}
		e.logger.Debug("phase finished",
			zap.String("phase", plan.name),
			zap.String("status", resp.Status.String()),
			zap.Bool("complete", complete),
			zap.Int("variables", pm.model.NumVars()),
			zap.Int("constraints", pm.model.NumConstraints()),
			zap.Duration("elapsed", elapsed),
		)
		if complete {
			break
		}
	}
	return run
}

// complete reports whether the response places every residual student exactly.
func (pm *placementModel) complete(resp *cpsat.Response) bool {
	if !resp.HasSolution() {
		return false
	}
	for i, student := range pm.students {
		count := 0
		for _, asg := range pm.assign[i] {
			if resp.Value(asg.lit) {
				count++
			}
		}
		if count != student.Residual {
			return false
		}
	}
	return true
}
