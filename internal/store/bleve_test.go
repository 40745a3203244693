package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBleveStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", Options{KeywordBackend: "bleve"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBleveSearchOrdersByScore(t *testing.T) {
	s := newBleveStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "dense.md", "Kubernetes", "kubernetes kubernetes kubernetes cluster")
	insertDoc(t, s, c.ID, "sparse.md", "Misc", "a single kubernetes mention among many other words here")

	hits, err := s.KeywordSearch(ctx, "kubernetes", 0, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Greater(t, hits[0].Relevance, hits[1].Relevance, "bleve scores are higher-is-better")
}

func TestBleveCollectionFilter(t *testing.T) {
	s := newBleveStore(t)
	ctx := context.Background()

	a, err := s.UpsertCollection(ctx, "alpha", t.TempDir(), "")
	require.NoError(t, err)
	b, err := s.UpsertCollection(ctx, "beta", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, a.ID, "x.md", "X", "shared term")
	insertDoc(t, s, b.ID, "y.md", "Y", "shared term")

	hits, err := s.KeywordSearch(ctx, "shared", a.ID, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestBleveSnippetFallback(t *testing.T) {
	s := newBleveStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	insertDoc(t, s, c.ID, "a.md", "A", "fallback snippet source text")

	rows, err := s.FullTextSearch(ctx, "fallback", 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "fallback snippet source text", rows[0].Snippet)
}

func TestBleveDeleteAndRebuild(t *testing.T) {
	s := newBleveStore(t)
	ctx := context.Background()

	c, err := s.UpsertCollection(ctx, "notes", t.TempDir(), "")
	require.NoError(t, err)
	id := insertDoc(t, s, c.ID, "a.md", "A", "ephemeral entry")

	require.NoError(t, s.DeleteDocument(ctx, id))
	hits, err := s.KeywordSearch(ctx, "ephemeral", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	insertDoc(t, s, c.ID, "b.md", "B", "durable entry")
	require.NoError(t, s.RebuildKeywordIndex(ctx))
	hits, err = s.KeywordSearch(ctx, "durable", 0, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}
