package embedder

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/bambicim/copilot/internal/tokenizer"
)

const (
	// LocalDimension is the width of the hashed feature space
	LocalDimension = 384

	// DefaultLocalModel names the offline feature-hashing model
	DefaultLocalModel = "hashed-bow-384"

	trigramWeight = 0.5
)

// LocalProvider embeds text offline by hashing word and character trigram
// features into a fixed-size signed vector (the hashing trick). Texts that
// share words or word fragments land close together, which is enough for
// paraphrase-tolerant retrieval without a model server.
type LocalProvider struct {
	model string
	tok   *tokenizer.Tokenizer
	cache *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: DefaultLocalModel,
		tok:   tokenizer.New(tokenizer.LangAuto),
		cache: cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := CacheKey(l.model, req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(key); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    l.embed(req.Text),
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      key,
	}

	if l.cache != nil {
		l.cache.Set(key, emb)
	}

	return emb, nil
}

func (l *LocalProvider) embed(text string) []float32 {
	vector := make([]float32, LocalDimension)
	for _, tok := range l.tok.Tokenize(text) {
		addFeature(vector, "w:"+tok, 1)

		runes := []rune("#" + tok + "#")
		for i := 0; i+3 <= len(runes); i++ {
			addFeature(vector, "c:"+string(runes[i:i+3]), trigramWeight)
		}
	}
	return NormalizeVector(vector)
}

// addFeature adds weight to the bucket of feature; the sign comes from a
// separate hash bit so collisions cancel out on average.
func addFeature(vector []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(len(vector))
	if (h>>63)&1 == 1 {
		weight = -weight
	}
	vector[idx] += weight
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
