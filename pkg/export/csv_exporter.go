package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders a document as a two-row CSV: labels then values.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the document.
func (e *CSVExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Fields) == 0 && doc.Body == "" {
		return nil, fmt.Errorf("csv requires at least one field")
	}
	headers := make([]string, 0, len(doc.Fields)+2)
	values := make([]string, 0, len(doc.Fields)+2)
	if doc.Title != "" {
		headers = append(headers, "Title")
		values = append(values, doc.Title)
	}
	for _, f := range doc.Fields {
		headers = append(headers, f.Label)
		values = append(values, f.Value)
	}
	if doc.Body != "" {
		headers = append(headers, bodyLabel(doc))
		values = append(values, doc.Body)
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	if err := writer.Write(values); err != nil {
		return nil, fmt.Errorf("write csv row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func bodyLabel(doc Document) string {
	if doc.BodyLabel != "" {
		return doc.BodyLabel
	}
	return "Content"
}
