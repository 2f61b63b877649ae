package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	return Document{
		Title: "Pump failure",
		Fields: []Field{
			{Label: "Organization", Value: "JWP"},
			{Label: "Tags", Value: "pump, field"},
		},
		Body: "Replace the fuse, then reset the float switch.",
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDocument())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Title", "Organization", "Tags", "Content"}, records[0])
	assert.Equal(t, "pump, field", records[1][2])
	assert.Equal(t, "Replace the fuse, then reset the float switch.", records[1][3])
}

func TestCSVExporterRejectsEmptyDocument(t *testing.T) {
	_, err := NewCSVExporter().Render(Document{Title: "only title"})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDocument())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
