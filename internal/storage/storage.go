package storage

import (
	"context"
	"time"

	"github.com/bambicim/copilot/pkg/types"
)

// DocumentStore is the persistence boundary of the retrieval core. The host
// application owns documents; the store only needs to hand them out in
// recency order and keep the extracted paragraphs next to them.
type DocumentStore interface {
	// ListDocuments returns at most limit documents ordered by UpdatedAt
	// descending, ties broken by ID ascending. limit <= 0 means no limit.
	ListDocuments(ctx context.Context, limit int) ([]types.Document, error)

	// GetDocument returns types.ErrNotFound when id is unknown.
	GetDocument(ctx context.Context, id string) (*types.Document, error)

	// UpsertDocument inserts or replaces a document by ID.
	UpsertDocument(ctx context.Context, doc *types.Document) error

	// DeleteDocument removes a document and its paragraphs.
	DeleteDocument(ctx context.Context, id string) error

	// ListParagraphs returns persisted paragraphs keyed by document ID, each
	// slice ordered by Order. An empty docIDs lists every document.
	ListParagraphs(ctx context.Context, docIDs []string) (map[string][]types.Paragraph, error)

	// ReplaceParagraphs atomically swaps the stored paragraphs of docID.
	ReplaceParagraphs(ctx context.Context, docID string, paragraphs []types.Paragraph) error

	// RecordIndexRun stores the outcome of one paragraph indexing pass.
	RecordIndexRun(ctx context.Context, run *IndexRun) error

	// Stats summarizes what is stored.
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// IndexRun is one completed paragraph indexing pass.
type IndexRun struct {
	ID         int64
	Documents  int
	Paragraphs int
	Errors     int
	StartedAt  time.Time
	Duration   time.Duration
}

// Stats reports store contents.
type Stats struct {
	Documents     int
	Paragraphs    int
	LastIndexedAt *time.Time
	SchemaVersion string
	Backend       string
}

// toMillis and fromMillis keep timestamps portable across drivers.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
