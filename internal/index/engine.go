package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tobil/qmx/internal/chunk"
	"github.com/tobil/qmx/internal/ollama"
	"github.com/tobil/qmx/internal/scanner"
	"github.com/tobil/qmx/internal/store"
)

// maxEmbedChars caps the text sent per chunk to the embedding model.
const maxEmbedChars = 8000

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Engine synchronizes collections into the store: scan, diff, chunk, embed,
// commit per document, then sweep removed files.
type Engine struct {
	store    *store.Store
	embedder ollama.Embedder
	model    string
	logger   *slog.Logger
}

func New(st *store.Store, embedder ollama.Embedder, model string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, embedder: embedder, model: model, logger: logger}
}

// IndexOnly returns a copy of the engine that syncs document text without
// touching embeddings.
func (e *Engine) IndexOnly() *Engine {
	c := *e
	c.embedder = nil
	return &c
}

type workItem struct {
	collection store.Collection
	relPath    string
	content    string
	title      string
	sha        string
	mtimeMs    int64
	sizeBytes  int64
	chunks     []string
	existing   *store.Document
}

// Sync brings the store in line with the filesystem state of the given
// collections. Cancellation via ctx stops the run at the next document
// boundary; everything committed so far stays, and the removal sweep is
// skipped so a partial scan never deletes documents.
func (e *Engine) Sync(ctx context.Context, collections []store.Collection, sink ProgressSink) (Stats, error) {
	if sink == nil {
		sink = NopSink{}
	}
	var stats Stats

	work, seen, planEv, err := e.plan(ctx, collections, &stats)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			stats.Cancelled = true
			sink.Done(stats)
			return stats, nil
		}
		sink.Done(stats)
		return stats, err
	}

	// Index-only runs are silent between scan and summary: the plan intro
	// and per-document lines describe embedding work.
	if e.embedder != nil {
		sink.Plan(planEv)
	}

	embeddedSoFar := 0
	for _, item := range work {
		if ctx.Err() != nil {
			stats.Cancelled = true
			sink.Done(stats)
			return stats, nil
		}
		embedded, err := e.commit(ctx, item, &stats)
		if err != nil {
			sink.Done(stats)
			return stats, err
		}
		if embedded {
			embeddedSoFar++
			sink.Doc(DocEvent{
				Index:       embeddedSoFar,
				Total:       len(work),
				DisplayPath: displayPath(item.collection.Name, item.relPath),
				Chunks:      len(item.chunks),
			})
		}
	}

	if ctx.Err() != nil {
		stats.Cancelled = true
		sink.Done(stats)
		return stats, nil
	}

	if err := e.sweep(ctx, collections, seen, &stats); err != nil {
		sink.Done(stats)
		return stats, err
	}

	sink.Done(stats)
	return stats, nil
}

// plan scans every collection and builds the embedding work list. seen maps
// collection id to the set of relative paths found on disk. The returned
// plan event aggregates every matching file, pending or not, so the intro
// always describes the whole corpus.
func (e *Engine) plan(ctx context.Context, collections []store.Collection, stats *Stats) ([]workItem, map[int64]map[string]bool, PlanEvent, error) {
	var work []workItem
	seen := make(map[int64]map[string]bool)
	ev := PlanEvent{Model: e.model}

	for _, col := range collections {
		if err := ctx.Err(); err != nil {
			return nil, nil, PlanEvent{}, err
		}
		if !scanner.RootExists(col.RootPath) {
			e.logger.Warn("collection root missing, skipping", "collection", col.Name, "root", col.RootPath)
			continue
		}
		files, err := scanner.Scan(col.RootPath, col.Mask)
		if err != nil {
			e.logger.Warn("scan failed, skipping collection", "collection", col.Name, "error", err)
			continue
		}
		seen[col.ID] = make(map[string]bool, len(files))

		for _, rel := range files {
			if err := ctx.Err(); err != nil {
				return nil, nil, PlanEvent{}, err
			}
			seen[col.ID][rel] = true
			stats.Scanned++

			abs := filepath.Join(col.RootPath, filepath.FromSlash(rel))
			raw, err := os.ReadFile(abs)
			if err != nil {
				e.logger.Warn("unreadable file, skipping", "path", abs, "error", err)
				continue
			}
			content := string(raw)
			sha := contentHash(content)

			info, _ := os.Stat(abs)
			var mtimeMs, size int64
			if info != nil {
				mtimeMs = info.ModTime().UnixMilli()
				size = info.Size()
			}

			item := workItem{
				collection: col,
				relPath:    rel,
				content:    content,
				// Titles carry signal that plain prose often repeats
				// late or not at all, so they are embedded with the body.
				title:     extractTitle(content, rel),
				sha:       sha,
				mtimeMs:   mtimeMs,
				sizeBytes: size,
			}
			if e.embedder != nil {
				item.chunks = chunk.SplitDefault(item.title + "\n\n" + content)
				ev.Documents++
				ev.Chunks += len(item.chunks)
				ev.Bytes += int64(len(content))
				if len(item.chunks) > 1 {
					ev.SplitDocuments++
				}
			}

			existing, err := e.store.FindDocument(ctx, col.ID, rel)
			switch {
			case errors.Is(err, store.ErrNotFound):
			case err != nil:
				return nil, nil, PlanEvent{}, err
			case existing.ContentSHA != sha:
				item.existing = &existing
			case existing.EmbeddingJSON == "":
				// Content is current but a previous embed failed; retry,
				// unless this run indexes without embedding at all.
				if e.embedder == nil {
					stats.Unchanged++
					continue
				}
				item.existing = &existing
			default:
				stats.Unchanged++
				continue
			}

			work = append(work, item)
		}
	}
	return work, seen, ev, nil
}

// commit embeds one document and writes it in a single transaction. The
// returned bool reports whether a new vector was stored.
func (e *Engine) commit(ctx context.Context, item workItem, stats *Stats) (bool, error) {
	vecJSON, embedded := e.embedDocument(ctx, item.chunks)
	if embedded {
		stats.Embedded++
		stats.EmbeddedChunks += len(item.chunks)
		stats.EmbeddedBytes += int64(len(item.content))
		if len(item.chunks) > 1 {
			stats.SplitDocuments++
		}
	} else if e.embedder != nil {
		stats.Failed++
		e.logger.Warn("embedding failed, keeping previous vector",
			"path", displayPath(item.collection.Name, item.relPath), "model", e.model)
	}

	doc := store.Document{
		CollectionID: item.collection.ID,
		RelPath:      item.relPath,
		DisplayPath:  displayPath(item.collection.Name, item.relPath),
		Title:        item.title,
		Content:      item.content,
		ContentSHA:   item.sha,
		DocID:        shortID(item.sha),
		MtimeMs:      item.mtimeMs,
		SizeBytes:    item.sizeBytes,
	}
	if embedded {
		doc.EmbeddingJSON = vecJSON
		doc.EmbeddingModel = e.model
		doc.EmbeddedAt = nowUTC()
	}

	if item.existing == nil {
		if _, err := e.store.InsertDocument(ctx, doc); err != nil {
			return false, fmt.Errorf("add %s: %w", doc.DisplayPath, err)
		}
		stats.Added++
		return embedded, nil
	}

	doc.ID = item.existing.ID
	if err := e.store.UpdateDocument(ctx, doc); err != nil {
		return false, fmt.Errorf("update %s: %w", doc.DisplayPath, err)
	}
	stats.Updated++
	return embedded, nil
}

// embedDocument embeds every chunk and averages the vectors. Chunks whose
// embedding call fails are skipped; the document fails only when no chunk
// succeeds.
func (e *Engine) embedDocument(ctx context.Context, chunks []string) (string, bool) {
	if e.embedder == nil {
		return "", false
	}
	var mean []float64
	succeeded := 0
	for _, c := range chunks {
		if len(c) > maxEmbedChars {
			c = c[:maxEmbedChars]
		}
		vec, err := e.embedder.Embed(ctx, c, e.model)
		if err != nil {
			e.logger.Debug("chunk embedding failed, skipping", "error", err)
			continue
		}
		if mean == nil {
			mean = make([]float64, len(vec))
		}
		if len(vec) != len(mean) {
			continue
		}
		for i, v := range vec {
			mean[i] += v
		}
		succeeded++
	}
	if succeeded == 0 {
		return "", false
	}
	for i := range mean {
		mean[i] /= float64(succeeded)
	}
	raw, err := json.Marshal(mean)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// sweep deletes stored documents whose files disappeared. Collections that
// were skipped during planning have no seen set and are left alone.
func (e *Engine) sweep(ctx context.Context, collections []store.Collection, seen map[int64]map[string]bool, stats *Stats) error {
	for _, col := range collections {
		onDisk, ok := seen[col.ID]
		if !ok {
			continue
		}
		paths, err := e.store.ListDocumentPaths(ctx, col.ID)
		if err != nil {
			return err
		}
		for _, dp := range paths {
			if onDisk[dp.RelPath] {
				continue
			}
			if err := e.store.DeleteDocument(ctx, dp.ID); err != nil {
				return fmt.Errorf("remove %s: %w", dp.RelPath, err)
			}
			stats.Removed++
		}
	}
	return nil
}
