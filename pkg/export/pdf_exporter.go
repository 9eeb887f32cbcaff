package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders documents into a basic tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF with the document title, summary lines and one table per section.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("pdf requires at least one section")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(doc.Title)), "", 1, "C", false, 0, "")
	}
	if !doc.GeneratedAt.IsZero() {
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 5, "Generated "+doc.GeneratedAt.Format("2006-01-02 15:04"), "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 10)
	for _, line := range doc.Summary {
		pdf.CellFormat(0, 6, tr(line), "", 1, "", false, 0, "")
	}

	for _, section := range doc.Sections {
		if len(section.Data.Headers) == 0 {
			return nil, fmt.Errorf("pdf section %q requires at least one header", section.Title)
		}
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, tr(section.Title), "", 1, "", false, 0, "")

		pdf.SetFont("Arial", "B", 10)
		colWidth := 190.0 / float64(len(section.Data.Headers))
		for _, header := range section.Data.Headers {
			pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range section.Data.Rows {
			for _, header := range section.Data.Headers {
				pdf.CellFormat(colWidth, 7, tr(fitCell(pdf, row[header], colWidth)), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// fitCell truncates value so it stays inside a cell of the given width.
func fitCell(pdf *gofpdf.Fpdf, value string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(value) <= limit {
		return value
	}
	runes := []rune(value)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
