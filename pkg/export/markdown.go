package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

// MarkdownRenderer renders a result as a human-readable weekly plan.
type MarkdownRenderer struct{}

// NewMarkdownRenderer constructs a Markdown renderer.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

var statusMarks = map[models.ClassStatus]string{
	models.ClassStatusLocked:          "🔒",
	models.ClassStatusProposed:        "✅",
	models.ClassStatusNeedsValidation: "⚠️",
}

// Render groups classes by day, then lists warnings, unplaced students and run metadata.
func (r *MarkdownRenderer) Render(result *models.ScheduleResult, generatedAt time.Time) []byte {
	var b strings.Builder
	summary := NewSummary(result)

	b.WriteString("# Generated Schedule\n\n")
	fmt.Fprintf(&b, "**Generated at:** %s\n\n", generatedAt.Format("2006-01-02 15:04"))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Classes:** %d\n", summary.TotalClasses)
	fmt.Fprintf(&b, "- **Unplaced students:** %d\n", summary.TotalUnplaced)
	fmt.Fprintf(&b, "- **Placement rate:** %.1f%%\n", summary.PlacementRate)
	if summary.IsComplete {
		b.WriteString("- **Complete:** ✅ yes\n\n")
	} else {
		b.WriteString("- **Complete:** ⚠️ no (partial solution)\n\n")
	}

	b.WriteString("## Weekly Plan\n\n")
	byDay := make(map[models.Weekday][]models.ScheduledClass)
	for _, class := range result.Schedule {
		byDay[class.Slot.Day] = append(byDay[class.Slot.Day], class)
	}
	for _, day := range models.Weekdays {
		classes := byDay[day]
		if len(classes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", day.Title())
		for _, class := range classes {
			mark, ok := statusMarks[class.Status]
			if !ok {
				mark = "❓"
			}
			fmt.Fprintf(&b, "%s **%s-%s** - %s (%d students)\n", mark, class.Slot.Start, class.Slot.End, strings.Join(class.Students, ", "), len(class.Students))
		}
		b.WriteString("\n")
	}

	if len(result.Warnings) > 0 {
		b.WriteString("## ⚠️ Warnings and Optimisation Hints\n\n")
		for _, warning := range result.Warnings {
			fmt.Fprintf(&b, "### Slot to optimise: %s\n\n", warning.Slot)
			fmt.Fprintf(&b, "**Current student:** %s\n\n", warning.Student)
			fmt.Fprintf(&b, "⚠️ %s\n\n", warning.Message)
			writeList(&b, "**Suggestions:**", warning.Suggestions)
		}
	}

	if len(result.Unplaced) > 0 {
		b.WriteString("## Unplaced Students\n\n")
		for _, unplaced := range result.Unplaced {
			fmt.Fprintf(&b, "### %s\n\n", unplaced.Student)
			fmt.Fprintf(&b, "**Reason:** %s\n\n", unplaced.Reason)
			writeList(&b, "**Conflicts:**", unplaced.Conflicts)
			writeList(&b, "**Suggestions:**", unplaced.Suggestions)
		}
	}

	if len(result.Metadata) > 0 {
		b.WriteString("## Run Details\n\n")
		for _, key := range metadataKeys(result.Metadata) {
			fmt.Fprintf(&b, "- **%s**: %v\n", key, result.Metadata[key])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Legend\n\n")
	b.WriteString("- 🔒 **Locked**: recurring or manually locked slot\n")
	b.WriteString("- ✅ **Proposed**: placed by the solver\n")
	b.WriteString("- ⚠️ **Needs validation**: pre-fixed slot to confirm\n")
	return []byte(b.String())
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title + "\n")
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}
