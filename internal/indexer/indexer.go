package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bambicim/copilot/internal/chunker"
	"github.com/bambicim/copilot/internal/storage"
	"github.com/bambicim/copilot/pkg/types"
)

// ErrIndexingInProgress is returned when another indexing run holds the lock.
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Indexer coordinates the indexing pipeline: list -> chunk -> replace paragraphs
type Indexer struct {
	store   storage.DocumentStore
	chunker *chunker.Chunker
	lock    IndexLock
	logger  *slog.Logger
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Indexer) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(idx *Indexer) {
		if c != nil {
			idx.chunker = c
		}
	}
}

// Config contains configuration for one indexing run
type Config struct {
	Workers int      // Number of concurrent workers (default: runtime.NumCPU())
	Limit   int      // Maximum number of documents, most recent first (0 = all)
	DocIDs  []string // Restrict the run to these documents
	Force   bool     // Rewrite paragraphs even when unchanged
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	DocumentsIndexed  int
	DocumentsSkipped  int
	DocumentsFailed   int
	ParagraphsCreated int
	Duration          time.Duration
	ErrorMessages     []string
}

// New creates a new Indexer instance
func New(store storage.DocumentStore, opts ...Option) *Indexer {
	idx := &Indexer{
		store:   store,
		chunker: chunker.New(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = idx.logger.With("component", "indexer")
	return idx
}

// Running reports whether an indexing run is in progress.
func (idx *Indexer) Running() bool {
	return idx.lock.Held()
}

// IndexDocuments re-extracts paragraphs for stored documents and replaces the
// persisted set of every document whose paragraphs changed. A failure on one
// document is counted and the run continues; the run itself is recorded.
func (idx *Indexer) IndexDocuments(ctx context.Context, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	docs, err := idx.selectDocuments(ctx, config)
	if err != nil {
		return nil, err
	}

	existing := map[string][]types.Paragraph{}
	if len(docs) > 0 {
		existing, err = idx.store.ListParagraphs(ctx, documentIDs(docs))
		if err != nil {
			return nil, fmt.Errorf("failed to load paragraphs: %w", err)
		}
	}

	var (
		indexed    int32
		skipped    int32
		failed     int32
		paragraphs int32
		mu         sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			paras := idx.chunker.ChunkDocument(doc)
			if !config.Force && sameParagraphs(existing[doc.ID], paras) {
				atomic.AddInt32(&skipped, 1)
				return nil
			}

			if err := idx.store.ReplaceParagraphs(gctx, doc.ID, paras); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", doc.ID, err))
				mu.Unlock()
				idx.logger.Warn("replace paragraphs failed", "doc", doc.ID, "error", err)
				return nil
			}
			atomic.AddInt32(&indexed, 1)
			atomic.AddInt32(&paragraphs, int32(len(paras)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to index documents: %w", err)
	}

	stats.DocumentsIndexed = int(indexed)
	stats.DocumentsSkipped = int(skipped)
	stats.DocumentsFailed = int(failed)
	stats.ParagraphsCreated = int(paragraphs)
	stats.Duration = time.Since(startTime)

	run := &storage.IndexRun{
		Documents:  stats.DocumentsIndexed,
		Paragraphs: stats.ParagraphsCreated,
		Errors:     stats.DocumentsFailed,
		StartedAt:  startTime,
		Duration:   stats.Duration,
	}
	if err := idx.store.RecordIndexRun(ctx, run); err != nil {
		return stats, fmt.Errorf("failed to record index run: %w", err)
	}

	idx.logger.Info("indexing complete",
		"indexed", stats.DocumentsIndexed,
		"skipped", stats.DocumentsSkipped,
		"failed", stats.DocumentsFailed,
		"paragraphs", stats.ParagraphsCreated,
		"duration", stats.Duration)
	return stats, nil
}

func (idx *Indexer) selectDocuments(ctx context.Context, config *Config) ([]types.Document, error) {
	if len(config.DocIDs) == 0 {
		docs, err := idx.store.ListDocuments(ctx, config.Limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		return docs, nil
	}

	docs := make([]types.Document, 0, len(config.DocIDs))
	seen := make(map[string]bool, len(config.DocIDs))
	for _, id := range config.DocIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		doc, err := idx.store.GetDocument(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// sameParagraphs reports whether the stored paragraphs already match a fresh extraction.
func sameParagraphs(stored, fresh []types.Paragraph) bool {
	if len(stored) != len(fresh) {
		return false
	}
	for i := range fresh {
		s, f := stored[i], fresh[i]
		if s.ID != f.ID || s.Text != f.Text || s.Title != f.Title || s.URL != f.URL {
			return false
		}
	}
	return true
}
