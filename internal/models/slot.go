package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SlotDuration is the only lesson length the engine schedules, in minutes.
const SlotDuration = 60

// Weekday is one of the six teaching days, Monday first.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// Weekdays lists the teaching days in order.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

var weekdayNames = [...]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

var weekdayAliases = map[string]Weekday{
	"lundi":    Monday,
	"mardi":    Tuesday,
	"mercredi": Wednesday,
	"jeudi":    Thursday,
	"vendredi": Friday,
	"samedi":   Saturday,
}

// ParseWeekday accepts English or French day names, case-insensitively, matching the header aliases of roster files.
func ParseWeekday(raw string) (Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for i, candidate := range weekdayNames {
		if candidate == name {
			return Weekday(i), nil
		}
	}
	if day, ok := weekdayAliases[name]; ok {
		return day, nil
	}
	return 0, fmt.Errorf("invalid day %q", raw)
}

// Valid reports whether d is one of the six teaching days.
func (d Weekday) Valid() bool {
	return d >= Monday && d <= Saturday
}

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

// Title returns the capitalised day name used in human-readable output.
func (d Weekday) Title() string {
	s := d.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

func (d Weekday) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid weekday %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Weekday) UnmarshalText(text []byte) error {
	parsed, err := ParseWeekday(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ClockTime is a time of day in minutes since midnight.
type ClockTime int

// Clock builds a ClockTime from hours and minutes.
func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime parses HH:MM (a single-digit hour is accepted).
func ParseClockTime(raw string) (ClockTime, error) {
	value := strings.TrimSpace(raw)
	parts := strings.Split(value, ":")
	if len(parts) != 2 || len(parts[1]) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", raw, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", raw, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", raw)
	}
	return Clock(hour, minute), nil
}

func (t ClockTime) Hour() int   { return int(t) / 60 }
func (t ClockTime) Minute() int { return int(t) % 60 }

func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t ClockTime) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ClockTime) UnmarshalText(text []byte) error {
	parsed, err := ParseClockTime(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SlotKey is the identity of a slot. Two slots with equal keys are the same slot.
type SlotKey struct {
	Day   Weekday
	Start ClockTime
	End   ClockTime
}

// Slot is a half-open interval [Start, End) on a weekday.
type Slot struct {
	Day       Weekday   `json:"day"`
	Start     ClockTime `json:"start"`
	End       ClockTime `json:"end"`
	Recurring bool      `json:"recurring,omitempty"`
}

// NewSlot builds a non-recurring slot.
func NewSlot(day Weekday, start, end ClockTime) Slot {
	return Slot{Day: day, Start: start, End: end}
}

// Key drops the Recurring flag.
func (s Slot) Key() SlotKey {
	return SlotKey{Day: s.Day, Start: s.Start, End: s.End}
}

// Slot turns a key back into a non-recurring slot.
func (k SlotKey) Slot() Slot {
	return Slot{Day: k.Day, Start: k.Start, End: k.End}
}

func (k SlotKey) String() string {
	return k.Slot().String()
}

// Duration returns the slot length in minutes.
func (s Slot) Duration() int {
	return int(s.End - s.Start)
}

// IsValid checks the 60 minute length, half-hour alignment and ordering.
func (s Slot) IsValid() bool {
	if !s.Day.Valid() || s.Start >= s.End {
		return false
	}
	if s.Start.Minute()%30 != 0 || s.End.Minute()%30 != 0 {
		return false
	}
	return s.Duration() == SlotDuration
}

// Overlaps reports whether two slots share any instant. Back-to-back slots do not overlap.
func (s Slot) Overlaps(other Slot) bool {
	if s.Day != other.Day {
		return false
	}
	return s.Start < other.End && other.Start < s.End
}

// Contains reports whether other lies entirely inside s.
func (s Slot) Contains(other Slot) bool {
	return s.Day == other.Day && s.Start <= other.Start && other.End <= s.End
}

// Less orders slots by day, start, then end.
func (s Slot) Less(other Slot) bool {
	if s.Day != other.Day {
		return s.Day < other.Day
	}
	if s.Start != other.Start {
		return s.Start < other.Start
	}
	return s.End < other.End
}

// String renders e.g. "Monday 09:00-10:00".
func (s Slot) String() string {
	return fmt.Sprintf("%s %s-%s", s.Day.Title(), s.Start, s.End)
}

// Label renders the short "Monday 09:00" form used in explanations.
func (s Slot) Label() string {
	return fmt.Sprintf("%s %s", s.Day.Title(), s.Start)
}

// ParseSlot parses "monday 12:00-13:00".
func ParseSlot(raw string) (Slot, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return Slot{}, fmt.Errorf("invalid slot %q: expected \"<day> HH:MM-HH:MM\"", raw)
	}
	day, err := ParseWeekday(fields[0])
	if err != nil {
		return Slot{}, err
	}
	bounds := strings.SplitN(fields[1], "-", 2)
	if len(bounds) != 2 {
		return Slot{}, fmt.Errorf("invalid slot %q: expected a time range", raw)
	}
	start, err := ParseClockTime(bounds[0])
	if err != nil {
		return Slot{}, err
	}
	end, err := ParseClockTime(bounds[1])
	if err != nil {
		return Slot{}, err
	}
	slot := NewSlot(day, start, end)
	if !slot.IsValid() {
		return Slot{}, fmt.Errorf("invalid slot %q: must last 60 minutes on a :00 or :30 boundary", raw)
	}
	return slot, nil
}
