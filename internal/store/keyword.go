package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// execer is satisfied by *sql.DB and *sql.Tx, letting the FTS5 backend
// participate in the surrounding document transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// KeywordIndex is the full-text mirror backend. The mirror invariant: an
// entry exists iff the document row exists, holding exactly the row's
// (title, content).
type KeywordIndex interface {
	// IndexDoc replaces the mirror entry for a document.
	IndexDoc(ctx context.Context, ex execer, e MirrorEntry) error
	// DeleteDoc removes the mirror entry for a document.
	DeleteDoc(ctx context.Context, ex execer, docID int64) error
	// Search returns raw hits ordered best-first. collectionID 0 means all.
	Search(ctx context.Context, query string, collectionID int64, limit int) ([]KeywordHit, error)
	// Rebuild re-derives the whole mirror from the documents table.
	Rebuild(ctx context.Context) error
	// Cleanup removes mirror entries with no matching document row.
	Cleanup(ctx context.Context) (int, error)
	// DocCount returns the number of mirror entries.
	DocCount(ctx context.Context) (int, error)
	// Close releases backend resources.
	Close() error
}

// ftsIndex implements KeywordIndex on the documents_fts FTS5 virtual table
// inside the store's own database, so mirror writes share the document
// transaction.
type ftsIndex struct {
	db *sql.DB
}

var _ KeywordIndex = (*ftsIndex)(nil)

func newFTSIndex(db *sql.DB) *ftsIndex {
	return &ftsIndex{db: db}
}

func (f *ftsIndex) IndexDoc(ctx context.Context, ex execer, e MirrorEntry) error {
	id := strconv.FormatInt(e.DocID, 10)
	if _, err := ex.ExecContext(ctx, `DELETE FROM documents_fts WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("clear fts entry: %w", err)
	}
	if _, err := ex.ExecContext(ctx,
		`INSERT INTO documents_fts(doc_id, title, content) VALUES(?, ?, ?)`,
		id, e.Title, e.Content); err != nil {
		return fmt.Errorf("insert fts entry: %w", err)
	}
	return nil
}

func (f *ftsIndex) DeleteDoc(ctx context.Context, ex execer, docID int64) error {
	if _, err := ex.ExecContext(ctx,
		`DELETE FROM documents_fts WHERE doc_id = ?`, strconv.FormatInt(docID, 10)); err != nil {
		return fmt.Errorf("delete fts entry: %w", err)
	}
	return nil
}

// safeFTSQuery turns free text into an FTS5 MATCH expression: each term is
// quoted so user input cannot inject operators, embedded quotes doubled.
func safeFTSQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

func (f *ftsIndex) Search(ctx context.Context, query string, collectionID int64, limit int) ([]KeywordHit, error) {
	query = safeFTSQuery(query)
	if query == "" {
		return nil, nil
	}
	rows, err := f.db.QueryContext(ctx, `
		SELECT d.id,
		       bm25(documents_fts) AS relevance,
		       snippet(documents_fts, 2, '[', ']', ' ... ', 14) AS snip
		FROM documents_fts
		JOIN documents d ON CAST(d.id AS TEXT) = documents_fts.doc_id
		WHERE documents_fts MATCH ?
		  AND (? = 0 OR d.collection_id = ?)
		ORDER BY relevance ASC, d.display_path ASC
		LIMIT ?`,
		query, collectionID, collectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var h KeywordHit
		if err := rows.Scan(&h.DocID, &h.Relevance, &h.Snippet); err != nil {
			return nil, fmt.Errorf("scan fts hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (f *ftsIndex) Rebuild(ctx context.Context) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts`); err != nil {
		return fmt.Errorf("clear fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents_fts(doc_id, title, content)
		SELECT CAST(id AS TEXT), title, content FROM documents`); err != nil {
		return fmt.Errorf("refill fts: %w", err)
	}
	return tx.Commit()
}

func (f *ftsIndex) Cleanup(ctx context.Context) (int, error) {
	res, err := f.db.ExecContext(ctx, `
		DELETE FROM documents_fts
		WHERE doc_id NOT IN (SELECT CAST(id AS TEXT) FROM documents)`)
	if err != nil {
		return 0, fmt.Errorf("cleanup fts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (f *ftsIndex) DocCount(ctx context.Context) (int, error) {
	var n int
	if err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents_fts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count fts: %w", err)
	}
	return n, nil
}

// Close is a no-op: the table lives in the store's database.
func (f *ftsIndex) Close() error { return nil }
