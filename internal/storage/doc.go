// Package storage persists documents and their extracted paragraphs.
//
// The DocumentStore interface is what the retrieval index and the paragraph
// indexer depend on. SQLiteStorage is the default implementation; the
// postgres subpackage provides the same interface over PostgreSQL.
//
// # Database Schema
//
// Tables:
//   - documents: host-owned content (id, kind, slug, title, url, text, updated_at)
//   - paragraphs: extracted chunks keyed by (doc_id, ord), cascading on delete
//   - index_runs: one row per paragraph indexing pass
//   - schema_version: applied semver migrations
//
// Timestamps are stored as unix milliseconds so both drivers agree on ordering.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("copilot.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	docs, err := store.ListDocuments(ctx, 60)
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and needs no C compiler. Building
// with -tags sqlite_cgo switches to github.com/mattn/go-sqlite3.
package storage
