package models

// Student is a roster entry: how many weekly sessions they want and when they can attend.
type Student struct {
	Name            string `json:"name"`
	SessionsPerWeek int    `json:"sessionsPerWeek"`
	Available       []Slot `json:"available"`
	LinkedWith      string `json:"linkedWith,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// IsAvailable reports whether the student can attend exactly this slot.
func (s Student) IsAvailable(slot Slot) bool {
	key := slot.Key()
	for _, candidate := range s.Available {
		if candidate.Key() == key {
			return true
		}
	}
	return false
}

// AvailabilityOn returns the student's slots on a given day, in input order.
func (s Student) AvailabilityOn(day Weekday) []Slot {
	var out []Slot
	for _, slot := range s.Available {
		if slot.Day == day {
			out = append(out, slot)
		}
	}
	return out
}

// AvailabilitySet indexes availability by key.
func (s Student) AvailabilitySet() map[SlotKey]struct{} {
	set := make(map[SlotKey]struct{}, len(s.Available))
	for _, slot := range s.Available {
		set[slot.Key()] = struct{}{}
	}
	return set
}

// IsLinked reports whether the student must share lessons with someone.
func (s Student) IsLinked() bool {
	return s.LinkedWith != ""
}

// Roster indexes students by name.
type Roster map[string]Student

// NewRoster builds a lookup; later duplicates overwrite earlier ones.
func NewRoster(students []Student) Roster {
	roster := make(Roster, len(students))
	for _, student := range students {
		roster[student.Name] = student
	}
	return roster
}
