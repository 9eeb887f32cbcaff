// Package roster reads student availability and recurring lesson files.
package roster

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

// MaxSessionsPerWeek bounds the sessions a student may request.
const MaxSessionsPerWeek = 7

// ParseError describes a malformed input row. Row is 0 for file-level problems.
type ParseError struct {
	Row     int
	Student string
	Message string
}

func (e *ParseError) Error() string {
	switch {
	case e.Row > 0 && e.Student != "":
		return fmt.Sprintf("row %d (%s): %s", e.Row, e.Student, e.Message)
	case e.Row > 0:
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	default:
		return e.Message
	}
}

func rowError(row int, student, format string, args ...interface{}) error {
	return &ParseError{Row: row, Student: student, Message: fmt.Sprintf(format, args...)}
}

// studentRow is one line of the availability file. Times are kept as strings so that
// empty cells and malformed values are reported with their row.
type studentRow struct {
	Name           string `csv:"name"`
	Sessions       string `csv:"sessions_per_week"`
	MondayStart    string `csv:"monday_start"`
	MondayEnd      string `csv:"monday_end"`
	TuesdayStart   string `csv:"tuesday_start"`
	TuesdayEnd     string `csv:"tuesday_end"`
	WednesdayStart string `csv:"wednesday_start"`
	WednesdayEnd   string `csv:"wednesday_end"`
	ThursdayStart  string `csv:"thursday_start"`
	ThursdayEnd    string `csv:"thursday_end"`
	FridayStart    string `csv:"friday_start"`
	FridayEnd      string `csv:"friday_end"`
	SaturdayStart  string `csv:"saturday_start"`
	SaturdayEnd    string `csv:"saturday_end"`
	LinkedWith     string `csv:"linked_with"`
	Notes          string `csv:"notes"`
}

func (r studentRow) ranges() [6][2]string {
	return [6][2]string{
		{r.MondayStart, r.MondayEnd},
		{r.TuesdayStart, r.TuesdayEnd},
		{r.WednesdayStart, r.WednesdayEnd},
		{r.ThursdayStart, r.ThursdayEnd},
		{r.FridayStart, r.FridayEnd},
		{r.SaturdayStart, r.SaturdayEnd},
	}
}

// StudentColumns lists the availability file header.
var StudentColumns = []string{
	"name", "sessions_per_week",
	"monday_start", "monday_end",
	"tuesday_start", "tuesday_end",
	"wednesday_start", "wednesday_end",
	"thursday_start", "thursday_end",
	"friday_start", "friday_end",
	"saturday_start", "saturday_end",
	"linked_with", "notes",
}

// recurringRow is one student seat in a pre-fixed lesson.
type recurringRow struct {
	Name  string `csv:"name"`
	Day   string `csv:"day"`
	Start string `csv:"start_time"`
	End   string `csv:"end_time"`
}

// RecurringColumns lists the recurring lessons file header.
var RecurringColumns = []string{"name", "day", "start_time", "end_time"}

// ParseStudents reads the availability file, expands each day range into hourly slots and
// validates linked pairs.
func ParseStudents(r io.Reader) ([]models.Student, error) {
	data, err := readAll(r, StudentColumns)
	if err != nil {
		return nil, err
	}
	var rows []studentRow
	if len(data) > 0 {
		if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("failed to parse availability file: %v", err)}
		}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Message: "availability file contains no students"}
	}

	students := make([]models.Student, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for idx, row := range rows {
		line := idx + 2
		student, err := parseStudentRow(line, row)
		if err != nil {
			return nil, err
		}
		if first, dup := seen[student.Name]; dup {
			return nil, rowError(line, student.Name, "duplicate student name (first seen on row %d)", first)
		}
		seen[student.Name] = line
		students = append(students, student)
	}

	if _, err := ValidateLinks(students); err != nil {
		return nil, err
	}
	return students, nil
}

func parseStudentRow(line int, row studentRow) (models.Student, error) {
	name := strings.TrimSpace(row.Name)
	if name == "" {
		return models.Student{}, rowError(line, "", "student name is required")
	}
	sessions, err := strconv.Atoi(strings.TrimSpace(row.Sessions))
	if err != nil {
		return models.Student{}, rowError(line, name, "sessions_per_week must be a number, got %q", row.Sessions)
	}
	if sessions <= 0 || sessions > MaxSessionsPerWeek {
		return models.Student{}, rowError(line, name, "sessions_per_week must be 1-%d, got %d", MaxSessionsPerWeek, sessions)
	}

	var available []models.Slot
	for i, bounds := range row.ranges() {
		day := models.Weekdays[i]
		rawStart, rawEnd := strings.TrimSpace(bounds[0]), strings.TrimSpace(bounds[1])
		if rawStart == "" && rawEnd == "" {
			continue
		}
		if rawStart == "" || rawEnd == "" {
			return models.Student{}, rowError(line, name, "%s has an incomplete time range: both %s_start and %s_end must be filled or both empty", day, day, day)
		}
		start, err := ParseTime(rawStart)
		if err != nil {
			return models.Student{}, rowError(line, name, "%v", err)
		}
		end, err := ParseTime(rawEnd)
		if err != nil {
			return models.Student{}, rowError(line, name, "%v", err)
		}
		slots, err := ExpandRange(day, start, end)
		if err != nil {
			return models.Student{}, rowError(line, name, "%v", err)
		}
		available = append(available, slots...)
	}

	if len(available) == 0 {
		return models.Student{}, rowError(line, name, "no availability defined, at least one time range is required")
	}
	if len(available) < sessions {
		return models.Student{}, rowError(line, name, "only %d availability slots but %d sessions requested", len(available), sessions)
	}

	return models.Student{
		Name:            name,
		SessionsPerWeek: sessions,
		Available:       available,
		LinkedWith:      strings.TrimSpace(row.LinkedWith),
		Notes:           strings.TrimSpace(row.Notes),
	}, nil
}

// ParseTime parses HH:MM where the minutes are 00 or 30.
func ParseTime(raw string) (models.ClockTime, error) {
	t, err := models.ParseClockTime(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid time format %q, expected HH:MM", raw)
	}
	if t.Minute() != 0 && t.Minute() != 30 {
		return 0, fmt.Errorf("invalid time %q: minutes must be :00 or :30", raw)
	}
	return t, nil
}

// ExpandRange cuts [start, end) into consecutive one-hour slots beginning at start.
// A trailing remainder shorter than an hour is dropped and no slot may end after 23:59.
func ExpandRange(day models.Weekday, start, end models.ClockTime) ([]models.Slot, error) {
	if start >= end {
		return nil, fmt.Errorf("invalid time range for %s: start (%s) must be before end (%s)", day, start, end)
	}
	var slots []models.Slot
	for current := start; ; current += models.SlotDuration {
		next := current + models.SlotDuration
		if next.Hour() > 23 || next > end {
			break
		}
		slots = append(slots, models.NewSlot(day, current, next))
	}
	return slots, nil
}

// ValidateLinks checks that every link names an existing student, is reciprocal and that the
// two students share at least one slot. It returns each pair once, in roster order.
func ValidateLinks(students []models.Student) ([][2]string, error) {
	byName := models.NewRoster(students)
	var pairs [][2]string
	processed := make(map[[2]string]struct{})
	for _, student := range students {
		if !student.IsLinked() {
			continue
		}
		key := [2]string{student.Name, student.LinkedWith}
		sort.Strings(key[:])
		if _, done := processed[key]; done {
			continue
		}
		processed[key] = struct{}{}

		partner, ok := byName[student.LinkedWith]
		if !ok {
			return nil, &ParseError{Student: student.Name, Message: fmt.Sprintf("%s links to %q but that student is not in the roster", student.Name, student.LinkedWith)}
		}
		if partner.LinkedWith != student.Name {
			return nil, &ParseError{Student: student.Name, Message: fmt.Sprintf("%s links to %s, but %s links to %q: links must be reciprocal", student.Name, partner.Name, partner.Name, partner.LinkedWith)}
		}
		if !sharesSlot(student, partner) {
			return nil, &ParseError{Student: student.Name, Message: fmt.Sprintf("%s and %s have no common availability slot", student.Name, partner.Name)}
		}
		pairs = append(pairs, [2]string{student.Name, partner.Name})
	}
	return pairs, nil
}

func sharesSlot(a, b models.Student) bool {
	set := b.AvailabilitySet()
	for _, slot := range a.Available {
		if _, ok := set[slot.Key()]; ok {
			return true
		}
	}
	return false
}

// ParseRecurring reads pre-fixed lessons, one student per row, and groups them by slot.
// A slot with one student needs validation; two or three are locked.
func ParseRecurring(r io.Reader, students []models.Student) ([]models.ScheduledClass, error) {
	data, err := readAll(r, RecurringColumns)
	if err != nil {
		return nil, err
	}
	var rows []recurringRow
	if len(data) > 0 {
		if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("failed to parse recurring file: %v", err)}
		}
	}

	byName := models.NewRoster(students)
	var order []models.SlotKey
	grouped := make(map[models.SlotKey]*models.ScheduledClass)
	for idx, row := range rows {
		line := idx + 2
		name := strings.TrimSpace(row.Name)
		if _, ok := byName[name]; !ok {
			return nil, rowError(line, "", "student %q not found in roster", name)
		}
		day, err := models.ParseWeekday(row.Day)
		if err != nil {
			return nil, rowError(line, name, "invalid day %q, must be one of monday..saturday", strings.TrimSpace(row.Day))
		}
		start, err := ParseTime(row.Start)
		if err != nil {
			return nil, rowError(line, name, "%v", err)
		}
		end, err := ParseTime(row.End)
		if err != nil {
			return nil, rowError(line, name, "%v", err)
		}
		slot := models.Slot{Day: day, Start: start, End: end, Recurring: true}
		if !slot.IsValid() {
			return nil, rowError(line, name, "invalid slot %s: lessons last one hour", slot)
		}

		key := slot.Key()
		class, exists := grouped[key]
		if !exists {
			class = &models.ScheduledClass{Slot: slot}
			grouped[key] = class
			order = append(order, key)
		}
		class.Students = append(class.Students, name)
	}

	classes := make([]models.ScheduledClass, 0, len(order))
	for _, key := range order {
		class := grouped[key]
		if len(class.Students) > models.DefaultMaxClassSize {
			return nil, &ParseError{Message: fmt.Sprintf("recurring slot %s has %d students, maximum %d per class", key, len(class.Students), models.DefaultMaxClassSize)}
		}
		class.Status = models.ClassStatusLocked
		if len(class.Students) < models.DefaultMinClassSize {
			class.Status = models.ClassStatusNeedsValidation
		}
		classes = append(classes, *class)
	}
	return classes, nil
}

// headerAliases maps French column names to the canonical ones.
var headerAliases = map[string]string{
	"nom":                  "name",
	"sessions_par_semaine": "sessions_per_week",
	"lundi_debut":          "monday_start",
	"lundi_fin":            "monday_end",
	"mardi_debut":          "tuesday_start",
	"mardi_fin":            "tuesday_end",
	"mercredi_debut":       "wednesday_start",
	"mercredi_fin":         "wednesday_end",
	"jeudi_debut":          "thursday_start",
	"jeudi_fin":            "thursday_end",
	"vendredi_debut":       "friday_start",
	"vendredi_fin":         "friday_end",
	"samedi_debut":         "saturday_start",
	"samedi_fin":           "saturday_end",
	"groupe_lie":           "linked_with",
	"jour":                 "day",
	"heure_debut":          "start_time",
	"heure_fin":            "end_time",
}

// canonicalColumn trims a header cell and resolves French aliases.
func canonicalColumn(column string) string {
	column = strings.ToLower(strings.TrimSpace(column))
	if alias, ok := headerAliases[column]; ok {
		return alias
	}
	return column
}

// readAll buffers the file, rewrites its header to canonical column names and checks it.
// An empty input yields nil data.
func readAll(r io.Reader, required []string) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &ParseError{Message: fmt.Sprintf("failed to read csv header: %v", err)}
	}
	present := make(map[string]struct{}, len(header))
	for i, column := range header {
		header[i] = canonicalColumn(column)
		present[header[i]] = struct{}{}
	}
	var missing []string
	for _, column := range required {
		if _, ok := present[column]; !ok {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, &ParseError{Message: fmt.Sprintf("missing required columns: %s (expected %s)", strings.Join(missing, ", "), strings.Join(required, ","))}
	}
	return replaceHeader(data, header)
}

func replaceHeader(data []byte, header []string) ([]byte, error) {
	var out bytes.Buffer
	w := csv.NewWriter(&out)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		out.Write(data[idx+1:])
	}
	return out.Bytes(), nil
}
