package dto

import (
	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	"github.com/noah-isme/lesson-scheduler-api/pkg/export"
	"github.com/noah-isme/lesson-scheduler-api/pkg/jobs"
)

// StudentRequest is one roster entry. Slots decode from {"day":"monday","start":"09:00","end":"10:00"}.
type StudentRequest struct {
	Name            string        `json:"name" validate:"required,max=100"`
	SessionsPerWeek int           `json:"sessionsPerWeek" validate:"required,min=1,max=7"`
	Available       []models.Slot `json:"available" validate:"required,min=1"`
	LinkedWith      string        `json:"linkedWith" validate:"omitempty,max=100,nefield=Name"`
	Notes           string        `json:"notes"`
}

// RecurringClassRequest is a pre-fixed class. Status defaults to locked for two or more students.
type RecurringClassRequest struct {
	Slot     models.Slot `json:"slot"`
	Students []string    `json:"students" validate:"required,min=1,dive,required"`
	Status   string      `json:"status" validate:"omitempty,oneof=locked needs_validation"`
}

// GenerateScheduleRequest carries the full input of one engine run.
type GenerateScheduleRequest struct {
	Students  []StudentRequest        `json:"students" validate:"required,min=1,dive"`
	Recurring []RecurringClassRequest `json:"recurring" validate:"omitempty,dive"`
	Blocked   []models.Slot           `json:"blocked"`
	Title     string                  `json:"title" validate:"omitempty,max=200"`
}

// GenerateScheduleResponse returns a stored proposal.
type GenerateScheduleResponse struct {
	ProposalID string                 `json:"proposalId"`
	Result     *models.ScheduleResult `json:"result"`
	Summary    export.Summary         `json:"summary"`
	Cached     bool                   `json:"cached"`
}

// ValidateScheduleResponse reports skeleton checks without solving.
type ValidateScheduleResponse struct {
	Validation models.ValidationResult  `json:"validation"`
	Warnings   []models.ScheduleWarning `json:"warnings"`
}

// GenerateJobResponse acknowledges an enqueued generation.
type GenerateJobResponse struct {
	JobID  string      `json:"jobId"`
	Status jobs.Status `json:"status"`
}

// GenerateJobStatus exposes a tracked job and, once finished, its proposal.
type GenerateJobStatus struct {
	jobs.Record
	Proposal *GenerateScheduleResponse `json:"proposal,omitempty"`
}

// SaveScheduleRequest persists a proposal as a versioned schedule run.
type SaveScheduleRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
	Label      string `json:"label" validate:"required,max=100"`
	Publish    bool   `json:"publish"`
}

// SaveScheduleResponse identifies the stored run.
type SaveScheduleResponse struct {
	RunID   string `json:"runId"`
	Label   string `json:"label"`
	Version int    `json:"version"`
}

// ScheduleRunQuery filters saved runs by label.
type ScheduleRunQuery struct {
	Label string `form:"label" json:"label"`
}

// ExportQuery selects the rendering of a proposal.
type ExportQuery struct {
	Format string `form:"format" json:"format" validate:"omitempty,oneof=json markdown csv pdf"`
	Part   string `form:"part" json:"part" validate:"omitempty,oneof=schedule unplaced"`
}
