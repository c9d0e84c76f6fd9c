package embedder

import (
	"context"
	"fmt"
	"log/slog"
)

// persistentEmbedder consults a PersistentCache before delegating, so a
// rebuild after restart only embeds paragraphs it has never seen.
type persistentEmbedder struct {
	Embedder
	store  PersistentCache
	logger *slog.Logger
}

// WithPersistentCache wraps e with store. A nil store returns e unchanged.
func WithPersistentCache(e Embedder, store PersistentCache) Embedder {
	if store == nil {
		return e
	}
	return &persistentEmbedder{
		Embedder: e,
		store:    store,
		logger:   slog.Default().With("component", "embedder"),
	}
}

func (p *persistentEmbedder) key(model, text string) string {
	if model == "" {
		model = p.Model()
	}
	return CacheKey(model, text)
}

func (p *persistentEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	key := p.key(req.Model, req.Text)
	if vec, ok := p.store.Get(key); ok {
		return p.fromStore(key, vec), nil
	}

	emb, err := p.Embedder.GenerateEmbedding(ctx, req)
	if err != nil {
		return nil, err
	}
	p.save(key, emb.Vector)
	return emb, nil
}

func (p *persistentEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	out := make([]*Embedding, len(req.Texts))
	var missing []string
	var missingIdx []int
	for i, text := range req.Texts {
		key := p.key(req.Model, text)
		if vec, ok := p.store.Get(key); ok {
			out[i] = p.fromStore(key, vec)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	model := req.Model
	if model == "" {
		model = p.Model()
	}

	if len(missing) > 0 {
		resp, err := p.Embedder.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: missing, Model: req.Model})
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(missing) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(resp.Embeddings), len(missing))
		}
		for j, emb := range resp.Embeddings {
			p.save(p.key(req.Model, missing[j]), emb.Vector)
			out[missingIdx[j]] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: out,
		Provider:   p.Provider(),
		Model:      model,
	}, nil
}

func (p *persistentEmbedder) fromStore(key string, vec []float32) *Embedding {
	return &Embedding{
		Vector:    vec,
		Dimension: len(vec),
		Provider:  p.Provider(),
		Model:     p.Model(),
		Hash:      key,
	}
}

func (p *persistentEmbedder) save(key string, vec []float32) {
	if err := p.store.Set(key, vec); err != nil {
		p.logger.Warn("persist embedding failed", "error", err)
	}
}
