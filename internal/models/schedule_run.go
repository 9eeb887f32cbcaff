package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// ScheduleRunStatus represents lifecycle phases for saved schedules.
type ScheduleRunStatus string

const (
	ScheduleRunStatusDraft     ScheduleRunStatus = "DRAFT"
	ScheduleRunStatusPublished ScheduleRunStatus = "PUBLISHED"
	ScheduleRunStatusArchived  ScheduleRunStatus = "ARCHIVED"
)

// ScheduleRun is a persisted, versioned engine result grouped by label (e.g. "spring-2026").
type ScheduleRun struct {
	ID        string            `db:"id" json:"id"`
	Label     string            `db:"label" json:"label"`
	Version   int               `db:"version" json:"version"`
	Status    ScheduleRunStatus `db:"status" json:"status"`
	Meta      types.JSONText    `db:"meta" json:"meta"`
	CreatedBy string            `db:"created_by" json:"created_by"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`
}

// ScheduleRunClass is one class inside a saved run.
type ScheduleRunClass struct {
	ID            string         `db:"id" json:"id"`
	ScheduleRunID string         `db:"schedule_run_id" json:"schedule_run_id"`
	Day           string         `db:"day" json:"day"`
	StartTime     string         `db:"start_time" json:"start_time"`
	EndTime       string         `db:"end_time" json:"end_time"`
	Students      pq.StringArray `db:"students" json:"students"`
	Status        ClassStatus    `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// NewScheduleRunClass flattens a scheduled class for storage.
func NewScheduleRunClass(runID string, class ScheduledClass) ScheduleRunClass {
	students := make([]string, len(class.Students))
	copy(students, class.Students)
	return ScheduleRunClass{
		ScheduleRunID: runID,
		Day:           class.Slot.Day.String(),
		StartTime:     class.Slot.Start.String(),
		EndTime:       class.Slot.End.String(),
		Students:      pq.StringArray(students),
		Status:        class.Status,
	}
}

// Pagination describes a page of results.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
