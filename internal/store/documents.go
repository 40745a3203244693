package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	// vectorScanCap bounds brute-force vector scoring.
	vectorScanCap = 5000
	// snippetLen is the fallback snippet length in runes.
	snippetLen = 180
)

// Snippet truncates to a display-sized excerpt and collapses whitespace.
// Truncation counts runes, not bytes, so multi-byte text is never cut
// mid-character.
func Snippet(text string) string {
	runes := []rune(text)
	if len(runes) > snippetLen {
		runes = runes[:snippetLen]
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}

// FindDocument looks a document up by collection and relative path.
func (s *Store) FindDocument(ctx context.Context, collectionID int64, relPath string) (Document, error) {
	var d Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, collection_id, rel_path, display_path, title, content,
		       content_sha, doc_id, mtime_ms, size_bytes,
		       embedding, embedding_model, embedded_at, updated_at
		FROM documents
		WHERE collection_id = ? AND rel_path = ?`,
		collectionID, relPath).
		Scan(&d.ID, &d.CollectionID, &d.RelPath, &d.DisplayPath, &d.Title,
			&d.Content, &d.ContentSHA, &d.DocID, &d.MtimeMs, &d.SizeBytes,
			&d.EmbeddingJSON, &d.EmbeddingModel, &d.EmbeddedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return Document{}, fmt.Errorf("document %s: %w", relPath, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("find document %s: %w", relPath, err)
	}
	return d, nil
}

// InsertDocument adds a new document row and its keyword mirror entry in one
// transaction.
func (s *Store) InsertDocument(ctx context.Context, d Document) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents(collection_id, rel_path, display_path, title,
			content, content_sha, doc_id, mtime_ms, size_bytes,
			embedding, embedding_model, embedded_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.CollectionID, d.RelPath, d.DisplayPath, d.Title,
		d.Content, d.ContentSHA, d.DocID, d.MtimeMs, d.SizeBytes,
		d.EmbeddingJSON, d.EmbeddingModel, d.EmbeddedAt, nowUTC())
	if err != nil {
		return 0, fmt.Errorf("insert document %s: %w", d.DisplayPath, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert document %s: %w", d.DisplayPath, err)
	}

	if err := s.keyword.IndexDoc(ctx, tx, MirrorEntry{
		DocID:        id,
		CollectionID: d.CollectionID,
		Title:        d.Title,
		Content:      d.Content,
	}); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// UpdateDocument rewrites a document row and refreshes its mirror entry.
// An empty EmbeddingJSON keeps the previously stored vector, so a failed
// re-embed does not destroy a good one.
func (s *Store) UpdateDocument(ctx context.Context, d Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET
			display_path = ?, title = ?, content = ?, content_sha = ?,
			doc_id = ?, mtime_ms = ?, size_bytes = ?,
			embedding       = CASE WHEN ? = '' THEN embedding ELSE ? END,
			embedding_model = CASE WHEN ? = '' THEN embedding_model ELSE ? END,
			embedded_at     = CASE WHEN ? = '' THEN embedded_at ELSE ? END,
			updated_at = ?
		WHERE id = ?`,
		d.DisplayPath, d.Title, d.Content, d.ContentSHA,
		d.DocID, d.MtimeMs, d.SizeBytes,
		d.EmbeddingJSON, d.EmbeddingJSON,
		d.EmbeddingJSON, d.EmbeddingModel,
		d.EmbeddingJSON, d.EmbeddedAt,
		nowUTC(), d.ID)
	if err != nil {
		return fmt.Errorf("update document %s: %w", d.DisplayPath, err)
	}

	if err := s.keyword.IndexDoc(ctx, tx, MirrorEntry{
		DocID:        d.ID,
		CollectionID: d.CollectionID,
		Title:        d.Title,
		Content:      d.Content,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteDocument removes a document row and its mirror entry.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.keyword.DeleteDoc(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	return tx.Commit()
}

// ListDocumentPaths returns (id, rel_path) for every document in a
// collection. The indexing engine diffs this against the filesystem scan.
func (s *Store) ListDocumentPaths(ctx context.Context, collectionID int64) ([]DocPath, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rel_path FROM documents WHERE collection_id = ? ORDER BY rel_path`,
		collectionID)
	if err != nil {
		return nil, fmt.Errorf("list document paths: %w", err)
	}
	defer rows.Close()

	var out []DocPath
	for rows.Next() {
		var dp DocPath
		if err := rows.Scan(&dp.ID, &dp.RelPath); err != nil {
			return nil, fmt.Errorf("scan document path: %w", err)
		}
		out = append(out, dp)
	}
	return out, rows.Err()
}

// FullTextSearch queries the keyword backend and hydrates hits with the
// document fields callers present. Results stay in backend order, best
// first. Hits without a backend snippet get a collapsed content excerpt.
func (s *Store) FullTextSearch(ctx context.Context, query string, collectionID int64, limit int) ([]FTSRow, error) {
	hits, err := s.KeywordSearch(ctx, query, collectionID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]FTSRow, 0, len(hits))
	for _, h := range hits {
		var row FTSRow
		var content string
		err := s.db.QueryRowContext(ctx,
			`SELECT doc_id, display_path, title, content FROM documents WHERE id = ?`,
			h.DocID).Scan(&row.DocID, &row.DisplayPath, &row.Title, &content)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate hit %d: %w", h.DocID, err)
		}
		row.Relevance = h.Relevance
		row.Snippet = h.Snippet
		if row.Snippet == "" {
			row.Snippet = Snippet(content)
		}
		out = append(out, row)
	}
	return out, nil
}

// VectorCandidates returns embedded documents eligible for vector scoring.
// collectionID 0 spans all collections.
func (s *Store) VectorCandidates(ctx context.Context, collectionID int64) ([]VectorCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, display_path, title, content, embedding
		FROM documents
		WHERE embedding != '' AND (? = 0 OR collection_id = ?)
		ORDER BY display_path
		LIMIT ?`,
		collectionID, collectionID, vectorScanCap)
	if err != nil {
		return nil, fmt.Errorf("vector candidates: %w", err)
	}
	defer rows.Close()

	var out []VectorCandidate
	for rows.Next() {
		var vc VectorCandidate
		if err := rows.Scan(&vc.DocID, &vc.DisplayPath, &vc.Title,
			&vc.Content, &vc.EmbeddingJSON); err != nil {
			return nil, fmt.Errorf("scan vector candidate: %w", err)
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// GetByRef resolves a document reference. "#abc123" looks up the short
// docid, anything else tries the display path and then the bare relative
// path. Ambiguous references resolve to the smallest display path.
func (s *Store) GetByRef(ctx context.Context, ref string) (Document, error) {
	type refQuery struct {
		where string
		arg   string
	}
	var queries []refQuery
	if strings.HasPrefix(ref, "#") {
		queries = []refQuery{{`doc_id = ?`, strings.TrimPrefix(ref, "#")}}
	} else {
		queries = []refQuery{{`display_path = ?`, ref}, {`rel_path = ?`, ref}}
	}

	for _, q := range queries {
		var d Document
		err := s.db.QueryRowContext(ctx, `
			SELECT id, collection_id, rel_path, display_path, title, content,
			       content_sha, doc_id, mtime_ms, size_bytes,
			       embedding, embedding_model, embedded_at, updated_at
			FROM documents
			WHERE `+q.where+`
			ORDER BY display_path
			LIMIT 1`, q.arg).
			Scan(&d.ID, &d.CollectionID, &d.RelPath, &d.DisplayPath, &d.Title,
				&d.Content, &d.ContentSHA, &d.DocID, &d.MtimeMs, &d.SizeBytes,
				&d.EmbeddingJSON, &d.EmbeddingModel, &d.EmbeddedAt, &d.UpdatedAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return Document{}, fmt.Errorf("get %q: %w", ref, err)
		}
		return d, nil
	}
	return Document{}, fmt.Errorf("document %q: %w", ref, ErrNotFound)
}

// ListDocs returns document listings whose display path matches a glob
// pattern, or every document when pattern is empty. Content is omitted.
func (s *Store) ListDocs(ctx context.Context, pattern string, limit int) ([]Document, error) {
	where := `1 = 1`
	args := []any{}
	if pattern != "" {
		where = `display_path GLOB ?`
		args = append(args, pattern)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, rel_path, display_path, title, doc_id,
		       size_bytes, updated_at
		FROM documents
		WHERE `+where+`
		ORDER BY display_path
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.CollectionID, &d.RelPath, &d.DisplayPath,
			&d.Title, &d.DocID, &d.SizeBytes, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document listing: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ResolveRefs expands document references. Each ref may be a comma list;
// each token may be a #docid, a path, or a GLOB pattern. Documents are
// deduplicated by display path in input order. Plain tokens that resolve
// to nothing are returned in missing.
func (s *Store) ResolveRefs(ctx context.Context, refs []string) (docs []Document, missing []string, err error) {
	seen := make(map[string]bool)
	add := func(d Document) {
		if !seen[d.DisplayPath] {
			seen[d.DisplayPath] = true
			docs = append(docs, d)
		}
	}

	for _, ref := range refs {
		for _, token := range strings.Split(ref, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if strings.ContainsAny(token, "*?[") {
				matches, err := s.GlobDocuments(ctx, token)
				if err != nil {
					return nil, nil, err
				}
				for _, d := range matches {
					add(d)
				}
				continue
			}
			d, err := s.GetByRef(ctx, token)
			if errors.Is(err, ErrNotFound) {
				missing = append(missing, token)
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			add(d)
		}
	}
	return docs, missing, nil
}

// GlobDocuments returns full documents, content included, whose display path
// matches a glob pattern, ordered by display path.
func (s *Store) GlobDocuments(ctx context.Context, pattern string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, rel_path, display_path, title, content, doc_id
		FROM documents
		WHERE display_path GLOB ?
		ORDER BY display_path`, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.CollectionID, &d.RelPath, &d.DisplayPath,
			&d.Title, &d.Content, &d.DocID); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
