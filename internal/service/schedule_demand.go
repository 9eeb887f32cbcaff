package service

import (
	"sort"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

// residualStudent is a student who still needs sessions after the skeleton.
type residualStudent struct {
	models.Student
	Residual int
}

// reduceDemand subtracts skeleton placements from requested sessions and drops fully served students.
// Input order is preserved.
func reduceDemand(students []models.Student, placed map[string]int) []residualStudent {
	out := make([]residualStudent, 0, len(students))
	for _, student := range students {
		remaining := student.SessionsPerWeek - placed[student.Name]
		if remaining <= 0 {
			continue
		}
		out = append(out, residualStudent{Student: student, Residual: remaining})
	}
	return out
}

// candidateSlots is the union of residual availability minus skeleton and coach-blocked slots,
// sorted by day, start and end.
func candidateSlots(residual []residualStudent, skeleton map[models.SlotKey]models.ScheduledClass, blocked []models.Slot) []models.Slot {
	excluded := make(map[models.SlotKey]struct{}, len(skeleton)+len(blocked))
	for key := range skeleton {
		excluded[key] = struct{}{}
	}
	for _, slot := range blocked {
		excluded[slot.Key()] = struct{}{}
	}

	seen := make(map[models.SlotKey]struct{})
	var out []models.Slot
	for _, student := range residual {
		for _, slot := range student.Available {
			key := slot.Key()
			if _, skip := excluded[key]; skip {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			if overlapsAny(slot, blocked) {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key.Slot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func overlapsAny(slot models.Slot, others []models.Slot) bool {
	for _, other := range others {
		if slot.Overlaps(other) {
			return true
		}
	}
	return false
}

// overlappingPairs returns index pairs (i < j) of slots that overlap. slots must be sorted.
// Each day is scanned by start time and the inner loop stops at the first slot starting
// after the current one ends.
func overlappingPairs(slots []models.Slot) [][2]int {
	var pairs [][2]int
	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			if slots[j].Day != slots[i].Day || slots[j].Start >= slots[i].End {
				break
			}
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}
