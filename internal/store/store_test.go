package store

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertDoc(t *testing.T, s *Store, collectionID int64, relPath, title, content string) int64 {
	t.Helper()
	id, err := s.InsertDocument(context.Background(), Document{
		CollectionID: collectionID,
		RelPath:      relPath,
		DisplayPath:  "notes/" + relPath,
		Title:        title,
		Content:      content,
		ContentSHA:   "sha-" + relPath,
		DocID:        "abc123",
	})
	require.NoError(t, err)
	return id
}

func TestUpsertCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", "/tmp/notes", "")
	require.NoError(t, err)
	assert.Equal(t, "notes", c.Name)
	assert.Equal(t, "**/*.md", c.Mask, "empty mask defaults")

	// Same name updates in place.
	c2, err := s.UpsertCollection(ctx, "notes", "/srv/notes", "docs/**/*.md")
	require.NoError(t, err)
	assert.Equal(t, c.ID, c2.ID)
	assert.Equal(t, "/srv/notes", c2.RootPath)
	assert.Equal(t, "docs/**/*.md", c2.Mask)

	list, err := s.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestGetCollectionMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCollection(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenameCollectionRefreshesDisplayPaths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "a.md", "Alpha", "alpha body")

	require.NoError(t, s.RenameCollection(ctx, "notes", "journal"))

	_, err = s.GetCollection(ctx, "notes")
	assert.ErrorIs(t, err, ErrNotFound)

	d, err := s.GetByRef(ctx, "journal/a.md")
	require.NoError(t, err)
	assert.Equal(t, "journal/a.md", d.DisplayPath)
}

func TestRemoveCollectionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "a.md", "Alpha", "searchable alpha text")
	insertDoc(t, s, c.ID, "b.md", "Beta", "searchable beta text")

	removed, err := s.RemoveCollection(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	info, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.Documents)

	// Mirror entries are gone too.
	hits, err := s.KeywordSearch(ctx, "searchable", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPathContexts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetContext(ctx, "qmx://notes", "personal notes"))
	require.NoError(t, s.SetContext(ctx, "qmx://notes", "work notes"))

	v, err := s.GetContext(ctx, "qmx://notes")
	require.NoError(t, err)
	assert.Equal(t, "work notes", v)

	all, err := s.ListContexts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.RemoveContext(ctx, "qmx://notes"))
	err = s.RemoveContext(ctx, "qmx://notes")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentLifecycleKeepsMirror(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	id := insertDoc(t, s, c.ID, "guide.md", "Guide", "how to install widgets")

	hits, err := s.KeywordSearch(ctx, "widgets", 0, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].DocID)

	// Update replaces the mirror entry.
	d, err := s.FindDocument(ctx, c.ID, "guide.md")
	require.NoError(t, err)
	d.Content = "how to remove gadgets"
	require.NoError(t, s.UpdateDocument(ctx, d))

	hits, err = s.KeywordSearch(ctx, "widgets", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = s.KeywordSearch(ctx, "gadgets", 0, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, s.DeleteDocument(ctx, id))
	hits, err = s.KeywordSearch(ctx, "gadgets", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpdateDocumentKeepsEmbeddingWhenEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	_, err = s.InsertDocument(ctx, Document{
		CollectionID:   c.ID,
		RelPath:        "a.md",
		DisplayPath:    "notes/a.md",
		Title:          "A",
		Content:        "original",
		ContentSHA:     "sha1",
		DocID:          "aaaaaa",
		EmbeddingJSON:  "[0.1,0.2]",
		EmbeddingModel: "nomic-embed-text",
		EmbeddedAt:     "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	d, err := s.FindDocument(ctx, c.ID, "a.md")
	require.NoError(t, err)
	d.Content = "changed"
	d.EmbeddingJSON = ""
	d.EmbeddingModel = ""
	d.EmbeddedAt = ""
	require.NoError(t, s.UpdateDocument(ctx, d))

	got, err := s.FindDocument(ctx, c.ID, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Content)
	assert.Equal(t, "[0.1,0.2]", got.EmbeddingJSON, "stale vector survives a failed re-embed")
	assert.Equal(t, "nomic-embed-text", got.EmbeddingModel)
}

func TestFullTextSearchHydration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "deploy.md", "Deploying", "run the deploy script after the tests pass")

	rows, err := s.FullTextSearch(ctx, "deploy", 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "notes/deploy.md", rows[0].DisplayPath)
	assert.Equal(t, "Deploying", rows[0].Title)
	assert.Contains(t, rows[0].Snippet, "[deploy]", "fts snippet marks matched terms")
	assert.Negative(t, rows[0].Relevance, "fts5 bm25 relevance is negative for matches")
}

func TestFullTextSearchCollectionFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertCollection(ctx, "alpha", t.TempDir(), "")
	require.NoError(t, err)
	b, err := s.UpsertCollection(ctx, "beta", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, a.ID, "x.md", "X", "shared keyword here")
	insertDoc(t, s, b.ID, "y.md", "Y", "shared keyword there")

	rows, err := s.FullTextSearch(ctx, "shared", 0, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.FullTextSearch(ctx, "shared", a.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "notes/x.md", rows[0].DisplayPath)
}

func TestKeywordSearchNeutralizesOperators(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "a.md", "A", "a NEAR miss in the logs")

	// Operator keywords and quotes are treated as plain terms.
	hits, err := s.KeywordSearch(ctx, "NEAR", 0, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = s.KeywordSearch(ctx, `logs" OR "x`, 0, 10)
	assert.NoError(t, err)

	hits, err = s.KeywordSearch(ctx, "   ", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestGetByRef(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	_, err = s.InsertDocument(ctx, Document{
		CollectionID: c.ID, RelPath: "b/later.md", DisplayPath: "notes/b/later.md",
		Title: "Later", Content: "later", ContentSHA: "s2", DocID: "ffff00",
	})
	require.NoError(t, err)
	_, err = s.InsertDocument(ctx, Document{
		CollectionID: c.ID, RelPath: "a/first.md", DisplayPath: "notes/a/first.md",
		Title: "First", Content: "first", ContentSHA: "s1", DocID: "ffff00",
	})
	require.NoError(t, err)

	// Colliding short ids resolve to the smallest display path.
	d, err := s.GetByRef(ctx, "#ffff00")
	require.NoError(t, err)
	assert.Equal(t, "notes/a/first.md", d.DisplayPath)

	d, err = s.GetByRef(ctx, "notes/b/later.md")
	require.NoError(t, err)
	assert.Equal(t, "Later", d.Title)

	// Bare relative path works as a fallback.
	d, err = s.GetByRef(ctx, "a/first.md")
	require.NoError(t, err)
	assert.Equal(t, "First", d.Title)

	_, err = s.GetByRef(ctx, "missing.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVectorCandidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	_, err = s.InsertDocument(ctx, Document{
		CollectionID: c.ID, RelPath: "v.md", DisplayPath: "notes/v.md",
		Title: "V", Content: "vectored", ContentSHA: "s1", DocID: "aaa111",
		EmbeddingJSON: "[1,0]",
	})
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "plain.md", "Plain", "no vector")

	cands, err := s.VectorCandidates(ctx, 0)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "notes/v.md", cands[0].DisplayPath)
	assert.Equal(t, "[1,0]", cands[0].EmbeddingJSON)
}

func TestClearEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	_, err = s.InsertDocument(ctx, Document{
		CollectionID: c.ID, RelPath: "v.md", DisplayPath: "notes/v.md",
		Title: "V", Content: "vectored", ContentSHA: "s1", DocID: "aaa111",
		EmbeddingJSON: "[1,0]", EmbeddingModel: "m", EmbeddedAt: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	n, err := s.ClearEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, info.Embedded)
}

func TestListDocs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "a.md", "A", "a")
	insertDoc(t, s, c.ID, "sub/b.md", "B", "b")

	all, err := s.ListDocs(ctx, "", 500)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sub, err := s.ListDocs(ctx, "notes/sub/*", 500)
	require.NoError(t, err)
	require.Len(t, sub, 1)
	assert.Equal(t, "notes/sub/b.md", sub[0].DisplayPath)
}

func TestGlobDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "a.md", "A", "alpha body")
	insertDoc(t, s, c.ID, "sub/b.md", "B", "beta body")

	docs, err := s.GlobDocuments(ctx, "notes/*")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "notes/a.md", docs[0].DisplayPath)
	assert.Equal(t, "alpha body", docs[0].Content)
	assert.Equal(t, "notes/sub/b.md", docs[1].DisplayPath)

	none, err := s.GlobDocuments(ctx, "other/*")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestResolveRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "a.md", "A", "alpha body")
	insertDoc(t, s, c.ID, "sub/b.md", "B", "beta body")

	// Comma list plus an overlapping glob, deduplicated in input order.
	docs, missing, err := s.ResolveRefs(ctx, []string{"notes/a.md,missing.md", "notes/sub/*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"missing.md"}, missing)
	require.Len(t, docs, 2)
	assert.Equal(t, "notes/a.md", docs[0].DisplayPath)
	assert.Equal(t, "notes/sub/b.md", docs[1].DisplayPath)

	docs, missing, err = s.ResolveRefs(ctx, []string{"notes/a.md", "notes/a.md"})
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Len(t, docs, 1)
}

func TestRebuildAndCleanup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "a.md", "A", "reindex me please")

	// Corrupt the mirror, then rebuild restores it.
	_, err = s.db.ExecContext(ctx, `DELETE FROM documents_fts`)
	require.NoError(t, err)
	hits, err := s.KeywordSearch(ctx, "reindex", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.RebuildKeywordIndex(ctx))
	hits, err = s.KeywordSearch(ctx, "reindex", 0, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	// An orphan mirror entry gets swept.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents_fts(doc_id, title, content) VALUES('9999', 'ghost', 'ghost')`)
	require.NoError(t, err)
	removed, err := s.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestDoctor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root := t.TempDir()
	c, err := s.UpsertCollection(ctx, "notes", root, "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "a.md", "A", "fine")

	checks := s.Doctor(ctx)
	require.NotEmpty(t, checks)
	for _, chk := range checks {
		assert.True(t, chk.OK, "check %s: %s", chk.Name, chk.Message)
	}
}

func TestSnippetCollapses(t *testing.T) {
	long := strings.Repeat("word  \n", 100)
	snip := Snippet(long)
	assert.LessOrEqual(t, utf8.RuneCountInString(snip), 180)
	assert.NotContains(t, snip, "\n")
	assert.Equal(t, "a b c", Snippet("  a\tb\nc  "))
}

func TestSnippetTruncatesOnRuneBoundary(t *testing.T) {
	// 301 runes of two-byte characters: a byte-based cut at 180 would land
	// in the middle of one and produce invalid UTF-8.
	snip := Snippet("a" + strings.Repeat("é", 300))
	assert.True(t, utf8.ValidString(snip))
	assert.Equal(t, 180, utf8.RuneCountInString(snip))
}

func TestStatusCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "a.md", "A", "a")
	require.NoError(t, s.SetContext(ctx, "qmx://notes", "ctx"))

	info, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusInfo{Collections: 1, Documents: 1, Contexts: 1, Embedded: 0}, info)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("", Options{KeywordBackend: "whoosh"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whoosh")
}
