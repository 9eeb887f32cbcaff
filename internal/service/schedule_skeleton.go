package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

// ValidateSkeleton runs every check on the pre-fixed classes and reports all violations at once.
func ValidateSkeleton(classes []models.ScheduledClass, students []models.Student, blocked []models.Slot) models.ValidationResult {
	return validateSkeleton(classes, students, blocked, models.DefaultMinClassSize, models.DefaultMaxClassSize)
}

func validateSkeleton(classes []models.ScheduledClass, students []models.Student, blocked []models.Slot, minSize, maxSize int) models.ValidationResult {
	errs := make([]string, 0)
	warnings := make([]string, 0)
	roster := models.NewRoster(students)

	for i := 0; i < len(classes); i++ {
		for j := i + 1; j < len(classes); j++ {
			a, b := classes[i], classes[j]
			if a.Slot.Overlaps(b.Slot) {
				errs = append(errs, fmt.Sprintf("Classes overlap (one lesson at a time): %s (%s) overlaps with %s (%s)",
					a.Slot, strings.Join(a.Students, ", "), b.Slot, strings.Join(b.Students, ", ")))
			}
		}
	}

	for _, class := range classes {
		size := len(class.Students)
		switch {
		case size > maxSize:
			errs = append(errs, fmt.Sprintf("Class %s has %d students. Maximum %d allowed.", class.Slot.Label(), size, maxSize))
		case size < minSize && class.Status == models.ClassStatusNeedsValidation && size == 1:
			warnings = append(warnings, fmt.Sprintf("Class %s has only %d student(s). Consider adding another student to optimize this slot.", class.Slot.Label(), size))
		case size < minSize && class.Status != models.ClassStatusNeedsValidation:
			errs = append(errs, fmt.Sprintf("Class %s has only %d student(s). Minimum %d required.", class.Slot.Label(), size, minSize))
		case size == 0:
			errs = append(errs, fmt.Sprintf("Class %s has no students.", class.Slot.Label()))
		}
	}

	for _, class := range classes {
		for _, name := range class.Students {
			if _, ok := roster[name]; !ok {
				errs = append(errs, fmt.Sprintf("Student '%s' in recurring slot %s not found in roster", name, class.Slot.Label()))
			}
		}
	}

	for _, class := range classes {
		for _, name := range class.Students {
			student, ok := roster[name]
			if !ok {
				continue
			}
			daySlots := student.AvailabilityOn(class.Slot.Day)
			if len(daySlots) == 0 {
				errs = append(errs, fmt.Sprintf("Recurring slot %s for %s has no availability on that day", class.Slot.Label(), name))
				continue
			}
			if !availabilityEnvelope(daySlots).Contains(class.Slot) {
				errs = append(errs, fmt.Sprintf("Recurring slot %s for %s not in their availability", class.Slot.Label(), name))
			}
		}
	}

	for _, class := range classes {
		for _, reserved := range blocked {
			if class.Slot.Overlaps(reserved) {
				errs = append(errs, fmt.Sprintf("Recurring class %s overlaps with coach reserved slot %s", class.Slot.Label(), reserved))
			}
		}
	}

	return models.ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

// availabilityEnvelope spans the earliest start to the latest end of same-day slots.
// Half-hour shifted classes are accepted inside a student's hourly availability this way.
func availabilityEnvelope(daySlots []models.Slot) models.Slot {
	envelope := daySlots[0]
	for _, slot := range daySlots[1:] {
		if slot.Start < envelope.Start {
			envelope.Start = slot.Start
		}
		if slot.End > envelope.End {
			envelope.End = slot.End
		}
	}
	envelope.Recurring = false
	return envelope
}

// BuildSkeleton indexes validated pre-fixed classes by slot.
func BuildSkeleton(classes []models.ScheduledClass) map[models.SlotKey]models.ScheduledClass {
	skeleton := make(map[models.SlotKey]models.ScheduledClass, len(classes))
	for _, class := range classes {
		skeleton[class.Slot.Key()] = class
	}
	return skeleton
}

// SkeletonPlacements counts how many sessions each student already holds in the skeleton.
func SkeletonPlacements(skeleton map[models.SlotKey]models.ScheduledClass) map[string]int {
	placed := make(map[string]int)
	for _, class := range skeleton {
		for _, name := range class.Students {
			placed[name]++
		}
	}
	return placed
}

// SingleStudentWarnings flags every pre-fixed class with exactly one attendee and names
// other students who could join it.
func SingleStudentWarnings(classes []models.ScheduledClass, students []models.Student) []models.ScheduleWarning {
	warnings := make([]models.ScheduleWarning, 0)
	for _, class := range classes {
		if len(class.Students) != 1 {
			continue
		}
		current := class.Students[0]
		warnings = append(warnings, models.ScheduleWarning{
			Type:        models.WarningSingleStudentRecurring,
			Slot:        class.Slot,
			Student:     current,
			Message:     fmt.Sprintf("Recurring class %s has a single student (%s)", class.Slot.Label(), current),
			Suggestions: optimizationSuggestions(class, students),
		})
	}
	return warnings
}

func optimizationSuggestions(class models.ScheduledClass, students []models.Student) []string {
	var compatible []string
	for _, student := range students {
		if class.HasStudent(student.Name) {
			continue
		}
		if student.IsAvailable(class.Slot) {
			compatible = append(compatible, student.Name)
		}
	}
	if len(compatible) == 0 {
		return []string{"No other student is available on this slot. Consider changing availabilities or proposing another slot."}
	}
	top := compatible
	if len(top) > 3 {
		top = top[:3]
	}
	suggestions := []string{fmt.Sprintf("Students available on this slot: %s", strings.Join(top, ", "))}
	if len(compatible) > 3 {
		suggestions = append(suggestions, fmt.Sprintf("... and %d more", len(compatible)-3))
	}
	return suggestions
}
