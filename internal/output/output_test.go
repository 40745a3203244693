package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobil/qmx/internal/index"
	"github.com/tobil/qmx/internal/search"
	"github.com/tobil/qmx/internal/store"
)

func sampleResults() []search.Result {
	return []search.Result{
		{DocID: "abc123", DisplayPath: "notes/a.md", Title: "Alpha", Score: 0.91, Snippet: "first [match] here"},
		{DocID: "def456", DisplayPath: "notes/b.md", Title: "Beta", Score: 0.42, Snippet: "second | pipe"},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseFormat("markdown")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	for _, name := range []string{"text", "json", "csv", "md", "xml", "files"} {
		_, err := ParseFormat(name)
		assert.NoError(t, err, name)
	}

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}

func TestResultsText(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	require.NoError(t, w.Results(FormatText, sampleResults()))

	out := buf.String()
	assert.Contains(t, out, "0.91 notes/a.md #abc123")
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "first [match] here")
}

func TestResultsTextEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf).Results(FormatText, nil))
	assert.Contains(t, buf.String(), "no results")
}

func TestResultsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf).Results(FormatJSON, sampleResults()))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "abc123", decoded[0]["docid"])
	assert.Equal(t, "notes/a.md", decoded[0]["file"])
}

func TestResultsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf).Results(FormatCSV, sampleResults()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "docid,file,title,score,snippet", lines[0])
	assert.Contains(t, lines[1], "abc123")
}

func TestResultsMarkdownEscapesPipes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf).Results(FormatMarkdown, sampleResults()))
	assert.Contains(t, buf.String(), `second \| pipe`)
	assert.True(t, strings.HasPrefix(buf.String(), "| Score |"))
}

func TestResultsXML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf).Results(FormatXML, sampleResults()))
	out := buf.String()
	assert.Contains(t, out, "<results>")
	assert.Contains(t, out, "<docid>abc123</docid>")
}

func TestResultsFiles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf).Results(FormatFiles, sampleResults()))
	assert.Equal(t, "notes/a.md\nnotes/b.md\n", buf.String())
}

func TestWindowLines(t *testing.T) {
	content := "one\ntwo\nthree\nfour"

	assert.Equal(t, "two\nthree", WindowLines(content, 2, 2, false))
	assert.Equal(t, content, WindowLines(content, 1, 0, false))
	assert.Equal(t, "", WindowLines(content, 9, 2, false))

	numbered := WindowLines(content, 3, 2, true)
	assert.Equal(t, "   3 | three\n   4 | four", numbered)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "344.8 KB", HumanSize(353075))
	assert.Equal(t, "0.0 KB", HumanSize(0))
	assert.Equal(t, "1.0 KB", HumanSize(1024))
}

func TestPlanLines(t *testing.T) {
	lines := PlanLines(index.PlanEvent{
		Documents:      30,
		Chunks:         139,
		Bytes:          353075,
		SplitDocuments: 15,
		Model:          "embeddinggemma",
	})
	assert.Equal(t, []string{
		"30 documents",
		"139 chunks",
		"344.8 KB",
		"15 documents split",
		"Model: embeddinggemma",
	}, lines)
}

func TestSyncPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewSyncPrinter(&buf)

	p.Plan(index.PlanEvent{Documents: 1, Chunks: 2, Bytes: 2048, SplitDocuments: 1, Model: "m"})
	p.Doc(index.DocEvent{Index: 1, Total: 1, DisplayPath: "notes/a.md", Chunks: 2})
	p.Done(index.Stats{Added: 1, Embedded: 1})

	out := buf.String()
	assert.Contains(t, out, "1 documents")
	assert.Contains(t, out, "[1/1] notes/a.md (2 chunks)")
	assert.Contains(t, out, "Added 1, updated 0, removed 0, unchanged 0 (1 embedded, 0 failed)")
}

func TestSyncPrinterEmptyPlanIsSilent(t *testing.T) {
	var buf bytes.Buffer
	p := NewSyncPrinter(&buf)
	p.Plan(index.PlanEvent{})
	assert.Empty(t, buf.String())
}

func TestSummaryCancelled(t *testing.T) {
	s := Summary(index.Stats{Unchanged: 3, Cancelled: true})
	assert.Contains(t, s, "[cancelled]")
}

func TestListingAndCollections(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	docs := []store.Document{{DocID: "abc123", DisplayPath: "notes/a.md", Title: "Alpha", SizeBytes: 10}}
	require.NoError(t, w.Listing(FormatText, docs))
	assert.Contains(t, buf.String(), "#abc123 notes/a.md Alpha")

	buf.Reset()
	require.NoError(t, w.Listing(FormatJSON, docs))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "notes/a.md", decoded[0]["file"])

	buf.Reset()
	cols := []store.CollectionSummary{{
		Collection: store.Collection{Name: "notes", RootPath: "/tmp/n", Mask: "**/*.md"},
		FileCount:  4,
	}}
	require.NoError(t, w.Collections(FormatText, cols))
	assert.Contains(t, buf.String(), "notes  /tmp/n (**/*.md)  4 file(s)")
}

func TestChecks(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	ok := w.Checks([]store.Check{
		{Name: "database", OK: true, Message: "reachable"},
		{Name: "mirror", OK: false, Message: "drift"},
	})
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "✓ database: reachable")
	assert.Contains(t, buf.String(), "✗ mirror: drift")
}
