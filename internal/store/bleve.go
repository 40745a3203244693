package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/search/query"
)

// bleveDoc is the document structure indexed by the bleve backend.
type bleveDoc struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	CollectionID string `json:"collection_id"`
}

// bleveIndex implements KeywordIndex on a bleve v2 index stored next to the
// sqlite database. Unlike the FTS5 backend its writes cannot share the
// document transaction; cleanup and rebuild reconcile any drift.
type bleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	db     *sql.DB
	path   string
	closed bool
}

var _ KeywordIndex = (*bleveIndex)(nil)

func newBleveIndex(path string, db *sql.DB) (*bleveIndex, error) {
	mapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("title", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("content", bleve.NewTextFieldMapping())

	collField := bleve.NewTextFieldMapping()
	collField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("collection_id", collField)
	mapping.DefaultMapping = docMapping

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	return &bleveIndex{index: idx, db: db, path: path}, nil
}

func (b *bleveIndex) IndexDoc(_ context.Context, _ execer, e MirrorEntry) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bleve index is closed")
	}
	return b.index.Index(strconv.FormatInt(e.DocID, 10), bleveDoc{
		Title:        e.Title,
		Content:      e.Content,
		CollectionID: strconv.FormatInt(e.CollectionID, 10),
	})
}

func (b *bleveIndex) DeleteDoc(_ context.Context, _ execer, docID int64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bleve index is closed")
	}
	return b.index.Delete(strconv.FormatInt(docID, 10))
}

func (b *bleveIndex) Search(ctx context.Context, queryStr string, collectionID int64, limit int) ([]KeywordHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("bleve index is closed")
	}

	titleQ := bleve.NewMatchQuery(queryStr)
	titleQ.SetField("title")
	contentQ := bleve.NewMatchQuery(queryStr)
	contentQ.SetField("content")

	var q query.Query = bleve.NewDisjunctionQuery(titleQ, contentQ)
	if collectionID != 0 {
		collQ := bleve.NewTermQuery(strconv.FormatInt(collectionID, 10))
		collQ.SetField("collection_id")
		q = bleve.NewConjunctionQuery(q, collQ)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	hits := make([]KeywordHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		// Snippet left empty: the store derives one from document content.
		hits = append(hits, KeywordHit{DocID: id, Relevance: hit.Score})
	}
	return hits, nil
}

func (b *bleveIndex) Rebuild(ctx context.Context) error {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, collection_id, title, content FROM documents`)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	// Drop existing entries first so removed documents disappear.
	ids, err := b.allIDs(ctx)
	if err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}

	for rows.Next() {
		var e MirrorEntry
		if err := rows.Scan(&e.DocID, &e.CollectionID, &e.Title, &e.Content); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		if err := batch.Index(strconv.FormatInt(e.DocID, 10), bleveDoc{
			Title:        e.Title,
			Content:      e.Content,
			CollectionID: strconv.FormatInt(e.CollectionID, 10),
		}); err != nil {
			return fmt.Errorf("batch index: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return b.index.Batch(batch)
}

func (b *bleveIndex) Cleanup(ctx context.Context) (int, error) {
	valid := make(map[string]struct{})
	rows, err := b.db.QueryContext(ctx, `SELECT id FROM documents`)
	if err != nil {
		return 0, fmt.Errorf("load document ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		valid[strconv.FormatInt(id, 10)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	ids, err := b.allIDs(ctx)
	if err != nil {
		return 0, err
	}

	batch := b.index.NewBatch()
	removed := 0
	for _, id := range ids {
		if _, ok := valid[id]; !ok {
			batch.Delete(id)
			removed++
		}
	}
	if removed > 0 {
		if err := b.index.Batch(batch); err != nil {
			return 0, fmt.Errorf("cleanup batch: %w", err)
		}
	}
	return removed, nil
}

// allIDs pages through the index with a match-all query.
func (b *bleveIndex) allIDs(ctx context.Context) ([]string, error) {
	var out []string
	const page = 1000
	for from := 0; ; from += page {
		req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
		req.Size = page
		req.From = from
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("list index ids: %w", err)
		}
		for _, hit := range res.Hits {
			out = append(out, hit.ID)
		}
		if len(res.Hits) < page {
			return out, nil
		}
	}
}

func (b *bleveIndex) DocCount(context.Context) (int, error) {
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("bleve doc count: %w", err)
	}
	return int(n), nil
}

func (b *bleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
