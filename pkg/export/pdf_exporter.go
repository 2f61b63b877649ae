package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a document into an A4 PDF with a metadata table and wrapped body.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the PDF bytes for doc.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if doc.Title == "" && doc.Body == "" {
		return nil, fmt.Errorf("pdf requires a title or body")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.MultiCell(0, 8, tr(doc.Title), "", "L", false)
		pdf.Ln(4)
	}

	if len(doc.Fields) > 0 {
		const labelWidth = 45.0
		for _, f := range doc.Fields {
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(labelWidth, 7, tr(f.Label), "1", 0, "L", false, 0, "")
			pdf.SetFont("Arial", "", 9)
			pdf.CellFormat(0, 7, tr(f.Value), "1", 1, "L", false, 0, "")
		}
		pdf.Ln(6)
	}

	if doc.Body != "" {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, tr(bodyLabel(doc)), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr(doc.Body), "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
