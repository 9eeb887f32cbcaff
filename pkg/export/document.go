package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Section is a titled table inside a document.
type Section struct {
	Title string
	Data  Dataset
}

// Document is a schedule prepared for paged output.
type Document struct {
	Title       string
	GeneratedAt time.Time
	Summary     []string
	Sections    []Section
}

// Summary aggregates headline numbers of a result.
type Summary struct {
	TotalClasses  int     `json:"total_classes"`
	TotalUnplaced int     `json:"total_unplaced"`
	TotalWarnings int     `json:"total_warnings"`
	PlacementRate float64 `json:"placement_rate"`
	IsComplete    bool    `json:"is_complete"`
}

// NewSummary computes the summary block of a result.
func NewSummary(result *models.ScheduleResult) Summary {
	return Summary{
		TotalClasses:  len(result.Schedule),
		TotalUnplaced: len(result.Unplaced),
		TotalWarnings: len(result.Warnings),
		PlacementRate: result.PlacementRate(),
		IsComplete:    result.IsComplete(),
	}
}

// ScheduleRow is one class in flat form.
type ScheduleRow struct {
	Day      string `csv:"day"`
	Start    string `csv:"start_time"`
	End      string `csv:"end_time"`
	Students string `csv:"students"`
	Size     int    `csv:"size"`
	Status   string `csv:"status"`
}

// UnplacedRow is one unplaced student in flat form.
type UnplacedRow struct {
	Student     string `csv:"student"`
	Reason      string `csv:"reason"`
	Conflicts   string `csv:"conflicts"`
	Suggestions string `csv:"suggestions"`
}

// ScheduleRows flattens the classes of a result, in schedule order.
func ScheduleRows(result *models.ScheduleResult) []ScheduleRow {
	rows := make([]ScheduleRow, 0, len(result.Schedule))
	for _, class := range result.Schedule {
		rows = append(rows, ScheduleRow{
			Day:      class.Slot.Day.String(),
			Start:    class.Slot.Start.String(),
			End:      class.Slot.End.String(),
			Students: strings.Join(class.Students, "; "),
			Size:     len(class.Students),
			Status:   string(class.Status),
		})
	}
	return rows
}

// UnplacedRows flattens the unplaced students of a result.
func UnplacedRows(result *models.ScheduleResult) []UnplacedRow {
	rows := make([]UnplacedRow, 0, len(result.Unplaced))
	for _, unplaced := range result.Unplaced {
		rows = append(rows, UnplacedRow{
			Student:     unplaced.Student,
			Reason:      unplaced.Reason,
			Conflicts:   strings.Join(unplaced.Conflicts, "; "),
			Suggestions: strings.Join(unplaced.Suggestions, "; "),
		})
	}
	return rows
}

// NewScheduleDocument lays a result out as summary lines plus schedule, unplaced and warning tables.
func NewScheduleDocument(title string, result *models.ScheduleResult, generatedAt time.Time) Document {
	summary := NewSummary(result)
	doc := Document{
		Title:       title,
		GeneratedAt: generatedAt,
		Summary: []string{
			fmt.Sprintf("Classes: %d", summary.TotalClasses),
			fmt.Sprintf("Unplaced students: %d", summary.TotalUnplaced),
			fmt.Sprintf("Placement rate: %.1f%%", summary.PlacementRate),
			fmt.Sprintf("Complete: %s", yesNo(summary.IsComplete)),
		},
	}

	schedule := Dataset{Headers: []string{"Day", "Time", "Students", "Status"}}
	for _, class := range result.Schedule {
		schedule.Rows = append(schedule.Rows, map[string]string{
			"Day":      class.Slot.Day.Title(),
			"Time":     fmt.Sprintf("%s-%s", class.Slot.Start, class.Slot.End),
			"Students": strings.Join(class.Students, ", "),
			"Status":   string(class.Status),
		})
	}
	doc.Sections = append(doc.Sections, Section{Title: "Weekly schedule", Data: schedule})

	if len(result.Unplaced) > 0 {
		unplaced := Dataset{Headers: []string{"Student", "Reason", "Suggestions"}}
		for _, row := range UnplacedRows(result) {
			unplaced.Rows = append(unplaced.Rows, map[string]string{
				"Student":     row.Student,
				"Reason":      row.Reason,
				"Suggestions": row.Suggestions,
			})
		}
		doc.Sections = append(doc.Sections, Section{Title: "Unplaced students", Data: unplaced})
	}

	if len(result.Warnings) > 0 {
		warnings := Dataset{Headers: []string{"Slot", "Student", "Message"}}
		for _, warning := range result.Warnings {
			warnings.Rows = append(warnings.Rows, map[string]string{
				"Slot":    warning.Slot.String(),
				"Student": warning.Student,
				"Message": warning.Message,
			})
		}
		doc.Sections = append(doc.Sections, Section{Title: "Warnings", Data: warnings})
	}
	return doc
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// metadataKeys returns metadata keys in a stable order.
func metadataKeys(meta map[string]any) []string {
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
