package dense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/bambicim/copilot/internal/embedder"
	"github.com/bambicim/copilot/internal/resilience"
	"github.com/bambicim/copilot/pkg/types"
)

const embedOperation = "dense.embed"

// Backend produces unit-length embeddings for paragraphs and queries.
type Backend interface {
	Available() bool
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Close() error
}

// EmbedderBackend adapts an embedder.Embedder. Batches are fanned out on a
// worker pool and every call passes through a circuit breaker, so a dead
// embedding service is skipped quickly instead of slowing every search.
type EmbedderBackend struct {
	emb       embedder.Embedder
	exec      *resilience.Executor
	pool      *ants.Pool
	batchSize int
	logger    *slog.Logger
}

// Option configures an EmbedderBackend.
type Option func(*EmbedderBackend)

// WithExecutor sets the circuit breaker policy.
func WithExecutor(exec *resilience.Executor) Option {
	return func(b *EmbedderBackend) {
		if exec != nil {
			b.exec = exec
		}
	}
}

// WithBatchSize sets how many texts go into one provider call.
func WithBatchSize(n int) Option {
	return func(b *EmbedderBackend) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *EmbedderBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBackend wraps emb. workers bounds concurrent batch calls; values below
// one use half the CPUs.
func NewBackend(emb embedder.Embedder, workers int, opts ...Option) (*EmbedderBackend, error) {
	if emb == nil {
		return nil, fmt.Errorf("%w: nil embedder", types.ErrBackendUnavailable)
	}
	if workers < 1 {
		workers = max(runtime.NumCPU()/2, 1)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}

	b := &EmbedderBackend{
		emb:       emb,
		pool:      pool,
		batchSize: embedder.DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.exec == nil {
		b.exec = resilience.NewExecutor(resilience.DefaultConfig(), resilience.WithLogger(b.logger))
	}
	b.logger = b.logger.With("component", "dense", "provider", emb.Provider(), "model", emb.Model())
	return b, nil
}

// Available is false while the circuit breaker is open.
func (b *EmbedderBackend) Available() bool {
	return !b.exec.IsOpen(embedOperation)
}

// Name identifies the provider and model.
func (b *EmbedderBackend) Name() string {
	return b.emb.Provider() + "/" + b.emb.Model()
}

// Embed returns one unit vector per text, in order.
func (b *EmbedderBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		batch := texts[start:end]
		offset := start

		wg.Add(1)
		submitErr := b.pool.Submit(func() {
			defer wg.Done()
			vecs, err := b.embedBatch(ctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			copy(out[offset:], vecs)
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("submit embedding batch: %w", submitErr)
			}
			mu.Unlock()
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (b *EmbedderBackend) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := b.exec.Execute(ctx, embedOperation, func(ctx context.Context) error {
		resp, err := b.emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return err
		}
		if len(resp.Embeddings) != len(texts) {
			return fmt.Errorf("%w: got %d embeddings for %d texts", embedder.ErrProviderFailed, len(resp.Embeddings), len(texts))
		}
		vecs = make([][]float32, len(texts))
		for i, e := range resp.Embeddings {
			vecs[i] = embedder.NormalizeVector(e.Vector)
		}
		return nil
	}, classify)
	return vecs, err
}

// EmbedQuery embeds a single query string synchronously.
func (b *EmbedderBackend) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	var vec []float32
	err := b.exec.Execute(ctx, embedOperation, func(ctx context.Context) error {
		e, err := b.emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
		if err != nil {
			return err
		}
		vec = embedder.NormalizeVector(e.Vector)
		return nil
	}, classify)
	return vec, err
}

// Close releases the worker pool and the embedder.
func (b *EmbedderBackend) Close() error {
	b.pool.Release()
	return b.emb.Close()
}

// Providers retry on their own; the breaker only counts the outcome.
func classify(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

type unavailable struct {
	reason string
}

// Unavailable returns a Backend that never produces vectors.
func Unavailable(reason string) Backend {
	return unavailable{reason: reason}
}

func (u unavailable) Available() bool { return false }
func (u unavailable) Name() string    { return "unavailable: " + u.reason }
func (u unavailable) Close() error    { return nil }

func (u unavailable) Embed(context.Context, []string) ([][]float32, error) {
	return nil, types.ErrBackendUnavailable
}

func (u unavailable) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, types.ErrBackendUnavailable
}

// Open builds a backend from embedder configuration. Any failure to create the
// provider, including the "none" provider, yields Unavailable and is logged once.
func Open(cfg embedder.Config, workers int, opts ...Option) Backend {
	probe := &EmbedderBackend{logger: slog.Default()}
	for _, opt := range opts {
		opt(probe)
	}

	emb, err := embedder.New(cfg)
	if err != nil {
		if errors.Is(err, embedder.ErrNoProviderEnabled) {
			probe.logger.Info("dense retrieval disabled", "provider", cfg.Provider, "reason", err)
		} else {
			probe.logger.Warn("dense retrieval unavailable", "provider", cfg.Provider, "error", err)
		}
		return Unavailable(err.Error())
	}

	b, err := NewBackend(emb, workers, opts...)
	if err != nil {
		_ = emb.Close()
		probe.logger.Warn("dense retrieval unavailable", "error", err)
		return Unavailable(err.Error())
	}
	return b
}
