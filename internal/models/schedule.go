package models

import (
	"fmt"
	"strings"
)

// ClassStatus marks how a class entered the schedule.
type ClassStatus string

const (
	ClassStatusLocked          ClassStatus = "locked"
	ClassStatusProposed        ClassStatus = "proposed"
	ClassStatusNeedsValidation ClassStatus = "needs_validation"
)

// Valid reports whether s is a known status.
func (s ClassStatus) Valid() bool {
	switch s {
	case ClassStatusLocked, ClassStatusProposed, ClassStatusNeedsValidation:
		return true
	}
	return false
}

// Class size bounds applied unless the engine is configured otherwise.
const (
	DefaultMinClassSize = 2
	DefaultMaxClassSize = 3
)

// ScheduledClass is one lesson slot with its attendees.
type ScheduledClass struct {
	Slot     Slot        `json:"slot"`
	Students []string    `json:"students"`
	Status   ClassStatus `json:"status"`
}

// HasStudent reports whether name attends the class.
func (c ScheduledClass) HasStudent(name string) bool {
	for _, student := range c.Students {
		if student == name {
			return true
		}
	}
	return false
}

// UnplacedStudent explains why a student received no lessons.
type UnplacedStudent struct {
	Student     string   `json:"student"`
	Reason      string   `json:"reason"`
	Conflicts   []string `json:"conflicts"`
	Suggestions []string `json:"suggestions"`
}

// WarningSingleStudentRecurring flags a pre-fixed class with a single attendee.
const WarningSingleStudentRecurring = "single_student_recurring"

// ScheduleWarning is a non-blocking issue surfaced to the coach.
type ScheduleWarning struct {
	Type        string   `json:"type"`
	Slot        Slot     `json:"slot"`
	Student     string   `json:"student"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// ScheduleResult is the output of one engine run.
type ScheduleResult struct {
	Schedule []ScheduledClass  `json:"schedule"`
	Unplaced []UnplacedStudent `json:"unplaced"`
	Warnings []ScheduleWarning `json:"warnings"`
	Metadata map[string]any    `json:"metadata"`
}

// PlacedSeats counts student seats across all classes.
func (r *ScheduleResult) PlacedSeats() int {
	total := 0
	for _, class := range r.Schedule {
		total += len(class.Students)
	}
	return total
}

// PlacementRate is placed seats over placed seats plus unplaced students, as a percentage.
func (r *ScheduleResult) PlacementRate() float64 {
	placed := r.PlacedSeats()
	total := placed + len(r.Unplaced)
	if total == 0 {
		return 0
	}
	return float64(placed) / float64(total) * 100
}

// IsComplete reports whether every student was placed.
func (r *ScheduleResult) IsComplete() bool {
	return len(r.Unplaced) == 0
}

// ValidationResult is the outcome of the skeleton checks.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// SkeletonValidationError carries every skeleton violation found.
type SkeletonValidationError struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

func (e *SkeletonValidationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "invalid recurring slots"
	}
	return fmt.Sprintf("invalid recurring slots: %s", strings.Join(e.Errors, "; "))
}
