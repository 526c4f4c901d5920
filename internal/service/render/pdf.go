package render

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service/timeline"
)

const (
	pdfMargin    = 15.0
	pdfRowHeight = 7.0
	pdfTitleH    = 12.0
	pdfHeadingH  = 9.0
	pdfInfoLineH = 6.0
	pdfSectionH  = 8.0
	pdfSpacing   = 6.0
)

var (
	unitColumns  = []float64{30, 80, 76}
	eventColumns = []float64{12, 25, 45, 40, 64}
)

// blockSpan records where a student's unit-list block landed.
type blockSpan struct {
	StudentID  string
	StartPage  int
	EndPage    int
	Height     float64
	TrailLines int
}

type pdfRenderer struct{}

func NewPDFRenderer() FormatRenderer {
	return pdfRenderer{}
}

func (pdfRenderer) Format() models.ReportFormat {
	return models.ReportFormatPDF
}

func (pdfRenderer) Render(doc models.ReportDocument) ([]byte, error) {
	pdf, _ := layoutPDF(doc)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to layout pdf report: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf report: %w", err)
	}
	return buf.Bytes(), nil
}

func layoutPDF(doc models.ReportDocument) (*fpdf.Fpdf, []blockSpan) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetCreationDate(doc.GeneratedAt)
	pdf.SetModificationDate(doc.GeneratedAt)
	pdf.SetCatalogSort(true)
	pdf.SetTitle("Student Activity Report", true)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin + 3)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, pdfTitleH, "Student Activity Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, pdfInfoLineH, tr("Report: "+doc.JobID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, pdfInfoLineH, "Generated: "+formatTime(doc.GeneratedAt)+" UTC", "", 1, "L", false, 0, "")
	pdf.CellFormat(0, pdfInfoLineH, "Students: "+strconv.Itoa(len(doc.Students)), "", 1, "L", false, 0, "")
	pdf.Ln(pdfSpacing)

	if len(doc.Students) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.CellFormat(0, pdfRowHeight, "No student records were submitted.", "", 1, "L", false, 0, "")
		return pdf, nil
	}

	pageW, pageH := pdf.GetPageSize()
	textW := pageW - 2*pdfMargin
	spans := make([]blockSpan, 0, len(doc.Students))
	for i, student := range doc.Students {
		if i > 0 {
			pdf.Ln(pdfSpacing)
		}

		// Aliases are ASCII, so the trail needs no translation.
		pdf.SetFont("Helvetica", "", 10)
		trail := wrapText(pdf, "Event Order: "+timeline.TrailString(student), textW)

		height := unitBlockHeight(len(student.Units), len(trail))
		if breakBefore(pdf.GetY(), height, pdfMargin, pdfMargin, pageH) {
			pdf.AddPage()
		}

		span := blockSpan{StudentID: student.StudentID, StartPage: pdf.PageNo(), Height: height, TrailLines: len(trail)}
		writeUnitBlock(pdf, tr, student, trail)
		span.EndPage = pdf.PageNo()
		spans = append(spans, span)

		writeTimeline(pdf, tr, student)
	}

	return pdf, spans
}

// unitBlockHeight is the height of a student heading, its info lines with
// the wrapped event order, and the unit table.
func unitBlockHeight(units, trailLines int) float64 {
	rows := units
	if rows == 0 {
		rows = 1
	}
	return pdfHeadingH + float64(2+trailLines)*pdfInfoLineH + pdfSectionH + pdfRowHeight*float64(rows+1)
}

// wrapText splits s into lines that fit width at the current font.
func wrapText(pdf *fpdf.Fpdf, s string, width float64) []string {
	lines := pdf.SplitText(s, width)
	if len(lines) == 0 {
		return []string{s}
	}
	return lines
}

// breakBefore reports whether a block of the given height starting at y must
// move to a fresh page. Blocks taller than a whole page are left to flow.
func breakBefore(y, height, top, bottom, pageH float64) bool {
	usable := pageH - top - bottom
	if height > usable {
		return false
	}
	return y+height > pageH-bottom
}

func writeUnitBlock(pdf *fpdf.Fpdf, tr func(string) string, student models.StudentSequence, trail []string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, pdfHeadingH, fitText(pdf, tr("Student "+student.StudentID), 186), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, pdfInfoLineH, fitText(pdf, tr("Namespace: "+student.Namespace), 186), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, pdfInfoLineH, "Number of Events: "+strconv.Itoa(len(student.Trail)), "", 1, "L", false, 0, "")
	for _, line := range trail {
		pdf.CellFormat(0, pdfInfoLineH, line, "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, pdfSectionH, "Units in Visit Order", "", 1, "L", false, 0, "")

	tableHeader(pdf, unitColumns, []string{"Question", "Unit ID", "First Seen"})
	pdf.SetFont("Helvetica", "", 9)
	if len(student.Units) == 0 {
		pdf.CellFormat(sum(unitColumns), pdfRowHeight, "No units visited", "1", 1, "L", false, 0, "")
		return
	}
	for _, u := range student.Units {
		tableRow(pdf, unitColumns, []string{u.Alias, tr(u.Unit), formatTime(u.FirstSeen)})
	}
}

func writeTimeline(pdf *fpdf.Fpdf, tr func(string) string, student models.StudentSequence) {
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, pdfSectionH, "Detailed Event Timeline", "", 1, "L", false, 0, "")

	tableHeader(pdf, eventColumns, []string{"#", "Question", "Unit ID", "Event Type", "Timestamp"})
	pdf.SetFont("Helvetica", "", 9)
	for i, step := range student.Trail {
		tableRow(pdf, eventColumns, []string{
			strconv.Itoa(i + 1),
			step.Alias,
			tr(step.Unit),
			step.Type.String(),
			formatTime(step.CreatedTime),
		})
	}
}

func tableHeader(pdf *fpdf.Fpdf, widths []float64, titles []string) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(242, 242, 242)
	for i, title := range titles {
		pdf.CellFormat(widths[i], pdfRowHeight, title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func tableRow(pdf *fpdf.Fpdf, widths []float64, cells []string) {
	for i, cell := range cells {
		pdf.CellFormat(widths[i], pdfRowHeight, fitText(pdf, cell, widths[i]-2), "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

// fitText truncates s with an ellipsis so it fits into width at the current
// font. s is already in the single-byte font encoding.
func fitText(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for n := len(s) - 1; n > 0; n-- {
		candidate := s[:n] + "..."
		if pdf.GetStringWidth(candidate) <= width {
			return candidate
		}
	}
	return "..."
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
