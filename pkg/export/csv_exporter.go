package export

import (
	"fmt"
	"reflect"

	"github.com/gocarina/gocsv"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
)

// CSVExporter renders typed rows into CSV bytes using their csv struct tags.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for a slice of tagged structs. The header is written
// even when the slice is empty.
func (e *CSVExporter) Render(rows interface{}) ([]byte, error) {
	value := reflect.ValueOf(rows)
	if value.Kind() != reflect.Slice {
		return nil, fmt.Errorf("csv requires a slice of rows, got %T", rows)
	}
	out, err := gocsv.MarshalBytes(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal csv: %w", err)
	}
	return out, nil
}

// RenderSchedule writes one line per class.
func (e *CSVExporter) RenderSchedule(result *models.ScheduleResult) ([]byte, error) {
	return e.Render(ScheduleRows(result))
}

// RenderUnplaced writes one line per unplaced student.
func (e *CSVExporter) RenderUnplaced(result *models.ScheduleResult) ([]byte, error) {
	return e.Render(UnplacedRows(result))
}
