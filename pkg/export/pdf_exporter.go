package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	cardColumns = 2
	cardWidth   = 90.0
	cardHeight  = 42.0
	cardGap     = 6.0
	pageMargin  = 12.0
)

// PDFExporter lays datasets out as printable cards, one row per card.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderCards draws every row as a bordered card listing header/value pairs, two cards
// per line on A4 portrait. title is printed on each card's first line.
func (e *PDFExporter) RenderCards(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	_, pageHeight := pdf.GetPageSize()

	x, y := pageMargin, pageMargin
	for i, row := range data.Rows {
		if i%cardColumns == 0 {
			if i > 0 {
				y += cardHeight + cardGap
			}
			if i == 0 || y+cardHeight > pageHeight-pageMargin {
				pdf.AddPage()
				y = pageMargin
			}
			x = pageMargin
		} else {
			x = pageMargin + cardWidth + cardGap
		}
		drawCard(pdf, x, y, title, data.Headers, row)
	}
	if len(data.Rows) == 0 {
		pdf.AddPage()
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func drawCard(pdf *gofpdf.Fpdf, x, y float64, title string, headers []string, row map[string]string) {
	pdf.Rect(x, y, cardWidth, cardHeight, "D")
	pdf.SetXY(x+3, y+3)
	if title != "" {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(cardWidth-6, 7, title, "", 2, "L", false, 0, "")
	}
	for _, header := range headers {
		pdf.SetX(x + 3)
		pdf.SetFont("Arial", "", 8)
		pdf.CellFormat(28, 6, header, "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "B", 11)
		pdf.CellFormat(cardWidth-34, 6, row[header], "", 2, "L", false, 0, "")
	}
}
