package store

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Collection is a named root directory plus glob mask defining a set of
// source documents.
type Collection struct {
	ID       int64
	Name     string
	RootPath string
	Mask     string
}

// CollectionSummary is a collection with its document statistics.
type CollectionSummary struct {
	Collection
	FileCount   int
	LastUpdated string
}

// Document is one indexed file. DocID is a short, non-unique handle derived
// from the content hash; collisions resolve to the lexicographically
// smallest display path.
type Document struct {
	ID           int64
	CollectionID int64
	RelPath      string
	DisplayPath  string
	Title        string
	Content      string
	ContentSHA   string
	DocID        string
	MtimeMs      int64
	SizeBytes    int64
	// EmbeddingJSON is the stored vector as a JSON array, empty when the
	// document has never been embedded successfully.
	EmbeddingJSON  string
	EmbeddingModel string
	EmbeddedAt     string
	UpdatedAt      string
}

// DocPath identifies a stored document by id and relative path. Used by the
// indexing engine's removal pass.
type DocPath struct {
	ID      int64
	RelPath string
}

// PathContext is a free-form description attached to a qmx:// target.
type PathContext struct {
	Target string
	Value  string
}

// MirrorEntry is the full-text mirror projection of a document row.
type MirrorEntry struct {
	DocID        int64
	CollectionID int64
	Title        string
	Content      string
}

// KeywordHit is one raw full-text match. Relevance is the backend's native
// metric: FTS5 bm25 (lower is better, negative) or bleve score (higher is
// better); callers map it into a bounded score.
type KeywordHit struct {
	DocID     int64
	Relevance float64
	Snippet   string
}

// FTSRow is a hydrated full-text search result.
type FTSRow struct {
	DocID       string
	DisplayPath string
	Title       string
	Snippet     string
	Relevance   float64
}

// VectorCandidate is a document eligible for vector scoring.
type VectorCandidate struct {
	DocID         string
	DisplayPath   string
	Title         string
	Content       string
	EmbeddingJSON string
}

// StatusInfo summarizes index contents.
type StatusInfo struct {
	Collections int
	Documents   int
	Contexts    int
	Embedded    int
}

// Check is one doctor diagnostic.
type Check struct {
	Name    string
	OK      bool
	Message string
}
