package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Options configures a Store.
type Options struct {
	// KeywordBackend selects the full-text mirror implementation,
	// "fts5" (default) or "bleve".
	KeywordBackend string
	// BlevePath is the bleve index directory. Memory-only when empty.
	BlevePath string
	Logger    *slog.Logger
}

// Store owns the sqlite database and the keyword mirror backend.
type Store struct {
	db      *sql.DB
	keyword KeywordIndex
	logger  *slog.Logger
	path    string
}

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL UNIQUE,
	root_path TEXT NOT NULL,
	mask      TEXT NOT NULL DEFAULT '**/*.md'
);

CREATE TABLE IF NOT EXISTS documents (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	collection_id   INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	rel_path        TEXT NOT NULL,
	display_path    TEXT NOT NULL,
	title           TEXT NOT NULL,
	content         TEXT NOT NULL,
	content_sha     TEXT NOT NULL,
	doc_id          TEXT NOT NULL,
	mtime_ms        INTEGER NOT NULL DEFAULT 0,
	size_bytes      INTEGER NOT NULL DEFAULT 0,
	embedding       TEXT NOT NULL DEFAULT '',
	embedding_model TEXT NOT NULL DEFAULT '',
	embedded_at     TEXT NOT NULL DEFAULT '',
	updated_at      TEXT NOT NULL DEFAULT '',
	UNIQUE(collection_id, rel_path)
);

CREATE INDEX IF NOT EXISTS idx_documents_doc_id       ON documents(doc_id);
CREATE INDEX IF NOT EXISTS idx_documents_display_path ON documents(display_path);

CREATE TABLE IF NOT EXISTS path_contexts (
	target TEXT PRIMARY KEY,
	value  TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	doc_id UNINDEXED,
	title,
	content,
	tokenize='unicode61'
);
`

// Open opens (creating if needed) the database at path. An empty path opens
// an in-memory database.
func Open(path string, opts Options) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single connection: serializes writers and keeps :memory: databases
	// from evaporating between pooled connections.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var kw KeywordIndex
	switch opts.KeywordBackend {
	case "", "fts5":
		kw = newFTSIndex(db)
	case "bleve":
		kw, err = newBleveIndex(opts.BlevePath, db)
		if err != nil {
			db.Close()
			return nil, err
		}
	default:
		db.Close()
		return nil, fmt.Errorf("unknown keyword backend %q", opts.KeywordBackend)
	}

	return &Store{db: db, keyword: kw, logger: logger, path: path}, nil
}

// Close releases the keyword backend and the database.
func (s *Store) Close() error {
	if err := s.keyword.Close(); err != nil {
		s.logger.Warn("closing keyword index", "error", err)
	}
	return s.db.Close()
}

// Path returns the database file path, empty for in-memory stores.
func (s *Store) Path() string { return s.path }

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// UpsertCollection creates a collection or updates the root path and mask of
// an existing one with the same name.
func (s *Store) UpsertCollection(ctx context.Context, name, rootPath, mask string) (Collection, error) {
	if mask == "" {
		mask = "**/*.md"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections(name, root_path, mask) VALUES(?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET root_path = excluded.root_path, mask = excluded.mask`,
		name, rootPath, mask)
	if err != nil {
		return Collection{}, fmt.Errorf("upsert collection %q: %w", name, err)
	}
	return s.GetCollection(ctx, name)
}

// GetCollection looks a collection up by name.
func (s *Store) GetCollection(ctx context.Context, name string) (Collection, error) {
	var c Collection
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, root_path, mask FROM collections WHERE name = ?`, name).
		Scan(&c.ID, &c.Name, &c.RootPath, &c.Mask)
	if err == sql.ErrNoRows {
		return Collection{}, fmt.Errorf("collection %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Collection{}, fmt.Errorf("get collection %q: %w", name, err)
	}
	return c, nil
}

// ListCollections returns all collections ordered by name.
func (s *Store) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, root_path, mask FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.RootPath, &c.Mask); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCollectionSummaries returns collections with document counts and the
// most recent update time.
func (s *Store) ListCollectionSummaries(ctx context.Context) ([]CollectionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.root_path, c.mask,
		       COUNT(d.id),
		       COALESCE(MAX(d.updated_at), '')
		FROM collections c
		LEFT JOIN documents d ON d.collection_id = c.id
		GROUP BY c.id
		ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("list collection summaries: %w", err)
	}
	defer rows.Close()

	var out []CollectionSummary
	for rows.Next() {
		var cs CollectionSummary
		if err := rows.Scan(&cs.ID, &cs.Name, &cs.RootPath, &cs.Mask,
			&cs.FileCount, &cs.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan collection summary: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// RenameCollection renames a collection and rewrites the display paths of
// its documents to match.
func (s *Store) RenameCollection(ctx context.Context, oldName, newName string) error {
	c, err := s.GetCollection(ctx, oldName)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rename: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE collections SET name = ? WHERE id = ?`, newName, c.ID); err != nil {
		return fmt.Errorf("rename collection %q: %w", oldName, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET display_path = ? || '/' || rel_path WHERE collection_id = ?`,
		newName, c.ID); err != nil {
		return fmt.Errorf("refresh display paths: %w", err)
	}
	return tx.Commit()
}

// RemoveCollection deletes a collection, its documents, and their mirror
// entries. Returns the number of documents removed.
func (s *Store) RemoveCollection(ctx context.Context, name string) (int, error) {
	c, err := s.GetCollection(ctx, name)
	if err != nil {
		return 0, err
	}

	ids, err := s.collectionDocIDs(ctx, c.ID)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin remove: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if err := s.keyword.DeleteDoc(ctx, tx, id); err != nil {
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM collections WHERE id = ?`, c.ID); err != nil {
		return 0, fmt.Errorf("remove collection %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Store) collectionDocIDs(ctx context.Context, collectionID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE collection_id = ?`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list collection documents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetContext stores or replaces the context note for a target.
func (s *Store) SetContext(ctx context.Context, target, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO path_contexts(target, value) VALUES(?, ?)
		ON CONFLICT(target) DO UPDATE SET value = excluded.value`,
		target, value)
	if err != nil {
		return fmt.Errorf("set context %q: %w", target, err)
	}
	return nil
}

// GetContext returns the context note for a target.
func (s *Store) GetContext(ctx context.Context, target string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM path_contexts WHERE target = ?`, target).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("context %q: %w", target, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get context %q: %w", target, err)
	}
	return value, nil
}

// ListContexts returns all context notes ordered by target.
func (s *Store) ListContexts(ctx context.Context) ([]PathContext, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target, value FROM path_contexts ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	defer rows.Close()

	var out []PathContext
	for rows.Next() {
		var pc PathContext
		if err := rows.Scan(&pc.Target, &pc.Value); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// RemoveContext deletes the context note for a target.
func (s *Store) RemoveContext(ctx context.Context, target string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM path_contexts WHERE target = ?`, target)
	if err != nil {
		return fmt.Errorf("remove context %q: %w", target, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("context %q: %w", target, ErrNotFound)
	}
	return nil
}

// Status reports row counts across the store.
func (s *Store) Status(ctx context.Context) (StatusInfo, error) {
	var info StatusInfo
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM collections`, &info.Collections},
		{`SELECT COUNT(*) FROM documents`, &info.Documents},
		{`SELECT COUNT(*) FROM path_contexts`, &info.Contexts},
		{`SELECT COUNT(*) FROM documents WHERE embedding != ''`, &info.Embedded},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return StatusInfo{}, fmt.Errorf("status: %w", err)
		}
	}
	return info, nil
}

// Doctor runs consistency diagnostics and returns one Check per probe.
func (s *Store) Doctor(ctx context.Context) []Check {
	var checks []Check

	if err := s.db.PingContext(ctx); err != nil {
		return append(checks, Check{Name: "database", OK: false, Message: err.Error()})
	}
	checks = append(checks, Check{Name: "database", OK: true, Message: "reachable"})

	var fkProblems int
	rows, err := s.db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err == nil {
		for rows.Next() {
			fkProblems++
		}
		rows.Close()
	}
	if fkProblems > 0 {
		checks = append(checks, Check{Name: "foreign keys", OK: false,
			Message: fmt.Sprintf("%d violation(s)", fkProblems)})
	} else {
		checks = append(checks, Check{Name: "foreign keys", OK: true, Message: "consistent"})
	}

	var docCount int
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&docCount)
	mirrorCount, err := s.keyword.DocCount(ctx)
	switch {
	case err != nil:
		checks = append(checks, Check{Name: "keyword mirror", OK: false, Message: err.Error()})
	case mirrorCount != docCount:
		checks = append(checks, Check{Name: "keyword mirror", OK: false,
			Message: fmt.Sprintf("%d mirror entries for %d documents, run cleanup", mirrorCount, docCount)})
	default:
		checks = append(checks, Check{Name: "keyword mirror", OK: true,
			Message: fmt.Sprintf("%d entries", mirrorCount)})
	}

	cols, err := s.ListCollections(ctx)
	if err != nil {
		checks = append(checks, Check{Name: "collections", OK: false, Message: err.Error()})
		return checks
	}
	missing := 0
	for _, c := range cols {
		if _, err := os.Stat(c.RootPath); err != nil {
			missing++
			checks = append(checks, Check{Name: "root " + c.Name, OK: false,
				Message: c.RootPath + " is not accessible"})
		}
	}
	if missing == 0 {
		checks = append(checks, Check{Name: "collections", OK: true,
			Message: fmt.Sprintf("%d root(s) accessible", len(cols))})
	}
	return checks
}

// Cleanup removes keyword mirror entries whose document no longer exists.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	return s.keyword.Cleanup(ctx)
}

// ClearEmbeddings drops stored vectors so the next sync re-embeds.
// collectionID 0 clears every collection.
func (s *Store) ClearEmbeddings(ctx context.Context, collectionID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET embedding = '', embedding_model = '', embedded_at = ''
		WHERE (? = 0 OR collection_id = ?)`,
		collectionID, collectionID)
	if err != nil {
		return 0, fmt.Errorf("clear embeddings: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RebuildKeywordIndex re-derives the full-text mirror from document rows.
func (s *Store) RebuildKeywordIndex(ctx context.Context) error {
	return s.keyword.Rebuild(ctx)
}

// KeywordSearch queries the configured full-text backend.
func (s *Store) KeywordSearch(ctx context.Context, query string, collectionID int64, limit int) ([]KeywordHit, error) {
	return s.keyword.Search(ctx, query, collectionID, limit)
}
