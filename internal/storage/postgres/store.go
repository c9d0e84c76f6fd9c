// Package postgres implements storage.DocumentStore on PostgreSQL through
// the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bambicim/copilot/internal/storage"
	"github.com/bambicim/copilot/pkg/types"
)

// schemaLockKey serializes bootstrap DDL across concurrent startups.
const schemaLockKey int64 = 2024110501

type Store struct {
	db *sql.DB
}

var _ storage.DocumentStore = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL DEFAULT '',
	slug TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_recency ON documents(updated_at DESC, id ASC);

CREATE TABLE IF NOT EXISTS paragraphs (
	id TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	ord INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	UNIQUE(doc_id, ord)
);

CREATE TABLE IF NOT EXISTS index_runs (
	id BIGSERIAL PRIMARY KEY,
	documents INTEGER NOT NULL DEFAULT 0,
	paragraphs INTEGER NOT NULL DEFAULT 0,
	errors INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListDocuments(ctx context.Context, limit int) ([]types.Document, error) {
	query := `
SELECT id, kind, slug, title, url, text, updated_at
FROM documents
ORDER BY updated_at DESC, id ASC
`
	var args []any
	if limit > 0 {
		query += "LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []types.Document
	for rows.Next() {
		var doc types.Document
		var kind string
		if err := rows.Scan(&doc.ID, &kind, &doc.Slug, &doc.Title, &doc.URL, &doc.Text, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Kind = types.DocumentKind(kind)
		doc.UpdatedAt = doc.UpdatedAt.UTC()
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, kind, slug, title, url, text, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc types.Document
	var kind string
	err := row.Scan(&doc.ID, &kind, &doc.Slug, &doc.Title, &doc.URL, &doc.Text, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Kind = types.DocumentKind(kind)
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

func (s *Store) UpsertDocument(ctx context.Context, doc *types.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Stale paragraphs go when the text, title or URL changes
	_, err = tx.ExecContext(ctx, `
DELETE FROM paragraphs
WHERE doc_id = $1 AND EXISTS (
	SELECT 1 FROM documents
	WHERE id = $1 AND (text <> $2 OR title <> $3 OR url <> $4)
)
`, doc.ID, doc.Text, doc.Title, doc.URL)
	if err != nil {
		return fmt.Errorf("invalidate paragraphs: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO documents (id, kind, slug, title, url, text, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
	kind = EXCLUDED.kind,
	slug = EXCLUDED.slug,
	title = EXCLUDED.title,
	url = EXCLUDED.url,
	text = EXCLUDED.text,
	updated_at = EXCLUDED.updated_at
`, doc.ID, string(doc.Kind), doc.Slug, doc.Title, doc.URL, doc.Text, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *Store) ListParagraphs(ctx context.Context, docIDs []string) (map[string][]types.Paragraph, error) {
	query := `SELECT id, doc_id, ord, title, url, text FROM paragraphs`
	args := make([]any, 0, len(docIDs))
	if len(docIDs) > 0 {
		placeholders := make([]string, len(docIDs))
		for i, id := range docIDs {
			placeholders[i] = "$" + strconv.Itoa(i+1)
			args = append(args, id)
		}
		query += ` WHERE doc_id IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY doc_id, ord`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list paragraphs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]types.Paragraph)
	for rows.Next() {
		var p types.Paragraph
		if err := rows.Scan(&p.ID, &p.DocID, &p.Order, &p.Title, &p.URL, &p.Text); err != nil {
			return nil, fmt.Errorf("scan paragraph: %w", err)
		}
		out[p.DocID] = append(out[p.DocID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paragraphs: %w", err)
	}
	return out, nil
}

func (s *Store) ReplaceParagraphs(ctx context.Context, docID string, paragraphs []types.Paragraph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin paragraphs tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Row lock on the owner keeps concurrent replacements of one document serial
	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, docID).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("document %s: %w", docID, types.ErrNotFound)
		}
		return fmt.Errorf("lock document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM paragraphs WHERE doc_id = $1`, docID); err != nil {
		return fmt.Errorf("delete paragraphs: %w", err)
	}

	for _, p := range paragraphs {
		if p.DocID != docID {
			return fmt.Errorf("paragraph %s belongs to %s, not %s", p.ID, p.DocID, docID)
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO paragraphs (id, doc_id, ord, title, url, text)
VALUES ($1,$2,$3,$4,$5,$6)
`, p.ID, p.DocID, p.Order, p.Title, p.URL, p.Text)
		if err != nil {
			return fmt.Errorf("insert paragraph %d: %w", p.Order, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit paragraphs tx: %w", err)
	}
	return nil
}

func (s *Store) RecordIndexRun(ctx context.Context, run *storage.IndexRun) error {
	err := s.db.QueryRowContext(ctx, `
INSERT INTO index_runs (documents, paragraphs, errors, started_at, duration_ms)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, run.Documents, run.Paragraphs, run.Errors, run.StartedAt.UTC(), run.Duration.Milliseconds()).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("record index run: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{Backend: "postgres", SchemaVersion: storage.CurrentSchemaVersion}

	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM documents),
	(SELECT COUNT(*) FROM paragraphs),
	(SELECT MAX(started_at) FROM index_runs)
`).Scan(&stats.Documents, &stats.Paragraphs, &last)
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}
	if last.Valid {
		t := last.Time.UTC()
		stats.LastIndexedAt = &t
	}
	return stats, nil
}
