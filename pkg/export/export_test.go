package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable(rows int) Table {
	t := Table{
		Title:       "Course roster",
		GeneratedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Headers:     []string{"ID", "Name", "Teacher"},
	}
	for i := 0; i < rows; i++ {
		t.Rows = append(t.Rows, []string{"1", "Música, \"avanzada\"", "Ana Torres"})
	}
	return t
}

func TestCSVRendererQuotesCells(t *testing.T) {
	out, err := NewCSVRenderer().Render(sampleTable(1))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Name,Teacher", lines[0])
	assert.Equal(t, `1,"Música, ""avanzada""",Ana Torres`, lines[1])
}

func TestRenderersRejectRaggedRows(t *testing.T) {
	table := sampleTable(1)
	table.Rows = append(table.Rows, []string{"only one"})

	_, err := NewCSVRenderer().Render(table)
	assert.Error(t, err)
	_, err = NewPDFRenderer().Render(table)
	assert.Error(t, err)
	_, err = NewCSVRenderer().Render(Table{})
	assert.Error(t, err)
}

func TestPDFRendererProducesDocument(t *testing.T) {
	for _, rows := range []int{0, 120} {
		out, err := NewPDFRenderer().Render(sampleTable(rows))
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	}
}

func TestRendererMetadata(t *testing.T) {
	var r Renderer = NewCSVRenderer()
	assert.Equal(t, "csv", r.Extension())
	r = NewPDFRenderer()
	assert.Equal(t, "application/pdf", r.ContentType())
}
