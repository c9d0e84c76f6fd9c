package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bambicim/copilot/pkg/types"
)

// ErrNotFound is returned when a requested entity doesn't exist
var ErrNotFound = types.ErrNotFound

// SQLiteStorage implements DocumentStore using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ DocumentStore = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; :memory: also needs a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn in a transaction, rolling back on error
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Document operations

const documentColumns = "id, kind, slug, title, url, text, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(r rowScanner) (types.Document, error) {
	var (
		doc     types.Document
		kind    string
		updated int64
	)
	if err := r.Scan(&doc.ID, &kind, &doc.Slug, &doc.Title, &doc.URL, &doc.Text, &updated); err != nil {
		return doc, err
	}
	doc.Kind = types.DocumentKind(kind)
	doc.UpdatedAt = fromMillis(updated)
	return doc, nil
}

// ListDocuments returns documents newest first
func (s *SQLiteStorage) ListDocuments(ctx context.Context, limit int) ([]types.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents ORDER BY updated_at DESC, id ASC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetDocument retrieves a document by ID
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// UpsertDocument inserts or updates a document. A zero UpdatedAt is stamped with now.
// Changing the text, title or URL of an existing document drops its stored paragraphs.
func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *types.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(q querier) error {
		// Paragraphs derived from the old text, title or URL no longer describe the document
		_, err := q.ExecContext(ctx, `
			DELETE FROM paragraphs
			WHERE doc_id = ? AND EXISTS (
				SELECT 1 FROM documents
				WHERE id = ? AND (text <> ? OR title <> ? OR url <> ?)
			)
		`, doc.ID, doc.ID, doc.Text, doc.Title, doc.URL)
		if err != nil {
			return fmt.Errorf("failed to invalidate paragraphs: %w", err)
		}

		query := `
			INSERT INTO documents (id, kind, slug, title, url, text, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				slug = excluded.slug,
				title = excluded.title,
				url = excluded.url,
				text = excluded.text,
				updated_at = excluded.updated_at
		`
		_, err = q.ExecContext(ctx, query,
			doc.ID, string(doc.Kind), doc.Slug, doc.Title, doc.URL, doc.Text, toMillis(doc.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert document: %w", err)
		}
		return nil
	})
}

// DeleteDocument deletes a document; paragraphs cascade
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// Paragraph operations

// ListParagraphs returns paragraphs grouped by document in extraction order
func (s *SQLiteStorage) ListParagraphs(ctx context.Context, docIDs []string) (map[string][]types.Paragraph, error) {
	query := "SELECT id, doc_id, ord, title, url, text FROM paragraphs"
	args := make([]interface{}, 0, len(docIDs))
	if len(docIDs) > 0 {
		placeholders := make([]string, len(docIDs))
		for i, id := range docIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += " WHERE doc_id IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY doc_id, ord"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list paragraphs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]types.Paragraph)
	for rows.Next() {
		var p types.Paragraph
		if err := rows.Scan(&p.ID, &p.DocID, &p.Order, &p.Title, &p.URL, &p.Text); err != nil {
			return nil, fmt.Errorf("failed to scan paragraph: %w", err)
		}
		out[p.DocID] = append(out[p.DocID], p)
	}
	return out, rows.Err()
}

// ReplaceParagraphs deletes and re-inserts a document's paragraphs in one transaction
func (s *SQLiteStorage) ReplaceParagraphs(ctx context.Context, docID string, paragraphs []types.Paragraph) error {
	return s.withTx(ctx, func(q querier) error {
		var exists int
		err := q.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", docID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("document %s: %w", docID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check document: %w", err)
		}

		if _, err := q.ExecContext(ctx, "DELETE FROM paragraphs WHERE doc_id = ?", docID); err != nil {
			return fmt.Errorf("failed to delete paragraphs: %w", err)
		}

		for _, p := range paragraphs {
			if p.DocID != docID {
				return fmt.Errorf("paragraph %s belongs to %s, not %s", p.ID, p.DocID, docID)
			}
			_, err := q.ExecContext(ctx,
				"INSERT INTO paragraphs (id, doc_id, ord, title, url, text) VALUES (?, ?, ?, ?, ?, ?)",
				p.ID, p.DocID, p.Order, p.Title, p.URL, p.Text)
			if err != nil {
				return fmt.Errorf("failed to insert paragraph %d: %w", p.Order, err)
			}
		}
		return nil
	})
}

// Index runs and status

// RecordIndexRun stores a completed indexing pass and sets run.ID
func (s *SQLiteStorage) RecordIndexRun(ctx context.Context, run *IndexRun) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO index_runs (documents, paragraphs, errors, started_at, duration_ms) VALUES (?, ?, ?, ?, ?)",
		run.Documents, run.Paragraphs, run.Errors, toMillis(run.StartedAt), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record index run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get index run id: %w", err)
	}
	run.ID = id
	return nil
}

// Stats counts stored documents and paragraphs
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Backend: "sqlite/" + BuildMode}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.Documents); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM paragraphs").Scan(&stats.Paragraphs); err != nil {
		return nil, fmt.Errorf("failed to count paragraphs: %w", err)
	}

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(started_at) FROM index_runs").Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read index runs: %w", err)
	}
	if last.Valid && last.Int64 > 0 {
		t := fromMillis(last.Int64)
		stats.LastIndexedAt = &t
	}

	version, err := schemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version.String()

	return stats, nil
}
