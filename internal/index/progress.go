package index

// PlanEvent is emitted once per embedding sync, after the scan phase,
// before any embedding work starts. It describes the whole corpus, not
// just pending work. Index-only syncs emit no plan event.
type PlanEvent struct {
	// Documents is the number of matching files across all collections.
	Documents int
	// Chunks is the total number of chunks across those documents.
	Chunks int
	// SplitDocuments counts documents that produce more than one chunk.
	SplitDocuments int
	// Bytes is the total content size of the documents.
	Bytes int64
	// Model is the embedding model that will be used.
	Model string
}

// DocEvent is emitted after each document whose embedding was stored.
type DocEvent struct {
	Index       int
	Total       int
	DisplayPath string
	Chunks      int
}

// Stats summarizes a completed or interrupted sync.
type Stats struct {
	// Scanned counts every file observed on disk, including unchanged ones.
	Scanned   int
	Added     int
	Updated   int
	Removed   int
	Unchanged int
	Embedded  int
	Failed    int
	// EmbeddedChunks and EmbeddedBytes total the chunk count and content
	// size of documents whose embedding succeeded. SplitDocuments counts
	// those that produced more than one chunk.
	EmbeddedChunks int
	EmbeddedBytes  int64
	SplitDocuments int
	// Cancelled is set when the run stopped at a cancellation point. All
	// work committed before that point is durable.
	Cancelled bool
}

// ProgressSink receives sync progress. Implementations must be fast, events
// fire on the sync goroutine.
type ProgressSink interface {
	Plan(PlanEvent)
	Doc(DocEvent)
	Done(Stats)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Plan(PlanEvent) {}
func (NopSink) Doc(DocEvent)   {}
func (NopSink) Done(Stats)     {}
