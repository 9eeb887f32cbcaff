package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	"github.com/noah-isme/lesson-scheduler-api/pkg/cpsat"
)

// Explanation templates for unplaced students.
const (
	reasonNoSlot          = "No available slot satisfying all constraints"
	reasonNoSolution      = "No valid solution found with the current constraints"
	conflictUnsatisfiable = "Constraints are unsatisfiable (linked group or limited availability)"
	conflictFallback      = "Incompatible constraints (check linked group and availability)"
	suggestionFallback    = "Contact the student to widen their availability"
)

// extractResult merges the skeleton with the solver's proposed classes and explains every
// residual student left without a lesson.
func extractResult(skeleton map[models.SlotKey]models.ScheduledClass, residual []residualStudent, pm *placementModel, resp *cpsat.Response, maxSize int) *models.ScheduleResult {
	classes := skeletonClasses(skeleton)
	solved := resp.HasSolution()
	counts := map[string]int{}
	if solved {
		proposed, placed := pm.classes(resp)
		classes = append(classes, proposed...)
		counts = placed
	}
	classes = sortedClasses(classes)

	occupancy := make(map[models.SlotKey][]string, len(classes))
	for _, class := range classes {
		occupancy[class.Slot.Key()] = class.Students
	}

	unplaced := make([]models.UnplacedStudent, 0)
	for _, student := range residual {
		if counts[student.Name] > 0 {
			continue
		}
		if solved {
			unplaced = append(unplaced, explainUnplaced(student.Student, occupancy, maxSize))
		} else {
			unplaced = append(unplaced, models.UnplacedStudent{
				Student:     student.Name,
				Reason:      reasonNoSolution,
				Conflicts:   []string{conflictUnsatisfiable},
				Suggestions: []string{suggestionFallback},
			})
		}
	}

	return &models.ScheduleResult{
		Schedule: classes,
		Unplaced: unplaced,
		Metadata: map[string]any{
			"solver_status":     resp.Status.String(),
			"placed_students":   countPlaced(classes),
			"unplaced_students": len(unplaced),
		},
	}
}

// explainUnplaced names full slots from the student's availability as conflicts and proposes
// open slots among the first three the student listed.
func explainUnplaced(student models.Student, occupancy map[models.SlotKey][]string, maxSize int) models.UnplacedStudent {
	conflicts := make([]string, 0)
	suggestions := make([]string, 0)

	for _, slot := range student.Available {
		occupants := occupancy[slot.Key()]
		if len(occupants) < maxSize {
			continue
		}
		shown := occupants
		if len(shown) > 3 {
			shown = shown[:3]
		}
		conflicts = append(conflicts, fmt.Sprintf("%s: already %d students (%s)", slot.Label(), len(occupants), strings.Join(shown, ", ")))
	}

	first := student.Available
	if len(first) > 3 {
		first = first[:3]
	}
	for _, slot := range first {
		if len(occupancy[slot.Key()]) < maxSize {
			suggestions = append(suggestions, fmt.Sprintf("Propose %s (within availability)", slot.Label()))
		}
	}

	if len(conflicts) == 0 {
		conflicts = append(conflicts, conflictFallback)
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, suggestionFallback)
	}
	return models.UnplacedStudent{
		Student:     student.Name,
		Reason:      reasonNoSlot,
		Conflicts:   conflicts,
		Suggestions: suggestions,
	}
}
