package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin     = 10.0
	pdfRowHeight  = 6.0
	pdfFontSize   = 8.0
	pdfCellPad    = 2.0
	pdfMaxColumnW = 70.0
)

// PDFRenderer lays a table out on landscape A4 pages, repeating the header row
// on every page.
type PDFRenderer struct{}

// NewPDFRenderer builds a PDF renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// ContentType implements Renderer.
func (PDFRenderer) ContentType() string { return "application/pdf" }

// Extension implements Renderer.
func (PDFRenderer) Extension() string { return "pdf" }

// Render implements Renderer.
func (PDFRenderer) Render(t Table) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin+5)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageWidth, _ := pdf.GetPageSize()
	widths := columnWidths(pdf, t, tr, pageWidth-2*pdfMargin)

	pdf.SetHeaderFunc(func() {
		if t.Title != "" {
			pdf.SetFont("Arial", "B", 12)
			pdf.CellFormat(0, 8, tr(t.Title), "", 1, "L", false, 0, "")
		}
		pdf.SetFont("Arial", "B", pdfFontSize)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range t.Headers {
			pdf.CellFormat(widths[i], pdfRowHeight, fit(pdf, tr(h), widths[i]), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", pdfFontSize)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin - 2)
		pdf.SetFont("Arial", "I", 7)
		left := ""
		if !t.GeneratedAt.IsZero() {
			left = "Generated " + t.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")
		}
		pdf.CellFormat(0, 5, left, "", 0, "L", false, 0, "")
		pdf.SetX(pdfMargin)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	if len(t.Rows) == 0 {
		pdf.CellFormat(0, pdfRowHeight, "No records", "1", 1, "C", false, 0, "")
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			pdf.CellFormat(widths[i], pdfRowHeight, fit(pdf, tr(cell), widths[i]), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths sizes columns by their widest cell and scales them to fill available.
func columnWidths(pdf *gofpdf.Fpdf, t Table, tr func(string) string, available float64) []float64 {
	pdf.SetFont("Arial", "B", pdfFontSize)
	widths := make([]float64, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = pdf.GetStringWidth(tr(h)) + 2*pdfCellPad
	}
	pdf.SetFont("Arial", "", pdfFontSize)
	for _, row := range t.Rows {
		for i, cell := range row {
			if w := pdf.GetStringWidth(tr(cell)) + 2*pdfCellPad; w > widths[i] {
				widths[i] = w
			}
		}
	}
	total := 0.0
	for i := range widths {
		if widths[i] > pdfMaxColumnW {
			widths[i] = pdfMaxColumnW
		}
		total += widths[i]
	}
	scale := available / total
	for i := range widths {
		widths[i] *= scale
	}
	return widths
}

// fit truncates s with an ellipsis so it fits inside width.
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	limit := width - 2*pdfCellPad
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
