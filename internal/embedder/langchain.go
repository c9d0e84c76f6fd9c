package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultLangchainModel is used when no model is configured.
const DefaultLangchainModel = "nomic-embed-text"

// LangchainProvider embeds through any OpenAI-compatible endpoint (Ollama,
// LM Studio, vLLM, a local sentence-transformers server) via langchaingo.
type LangchainProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	cache     *Cache
	logger    *slog.Logger
}

// NewLangchainProvider connects to host with the given model. Local services
// often need no key, so "none" is sent when apiKey is empty.
func NewLangchainProvider(host, apiKey, model string, dimension int, cache *Cache) (*LangchainProvider, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: embedding host not set", ErrNoProviderEnabled)
	}
	if model == "" {
		model = DefaultLangchainModel
	}
	if apiKey == "" {
		apiKey = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create langchain client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create langchain embedder: %w", err)
	}

	return &LangchainProvider{
		embedder:  emb,
		model:     model,
		dimension: dimension,
		cache:     cache,
		logger:    slog.Default().With("component", "langchain-embedder"),
	}, nil
}

func (l *LangchainProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := l.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (l *LangchainProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	out := make([]*Embedding, len(req.Texts))
	var missing []string
	var missingIdx []int
	for i, text := range req.Texts {
		if l.cache != nil {
			if emb, ok := l.cache.Get(CacheKey(l.model, text)); ok {
				out[i] = emb
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		l.logger.Debug("generating embeddings", "count", len(missing))
		vectors, err := l.embedder.EmbedDocuments(ctx, missing)
		if err != nil {
			l.logger.Error("failed to generate embeddings", "count", len(missing), "err", err)
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		if len(vectors) != len(missing) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(vectors), len(missing))
		}

		for j, vec := range vectors {
			vec = NormalizeVector(vec)
			key := CacheKey(l.model, missing[j])
			emb := &Embedding{
				Vector:    vec,
				Dimension: len(vec),
				Provider:  ProviderLangchain,
				Model:     l.model,
				Hash:      key,
			}
			if l.cache != nil {
				l.cache.Set(key, emb)
			}
			out[missingIdx[j]] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: out,
		Provider:   ProviderLangchain,
		Model:      l.model,
	}, nil
}

// Dimension returns the configured dimension, which is only known up front
// when set in configuration.
func (l *LangchainProvider) Dimension() int {
	return l.dimension
}

func (l *LangchainProvider) Provider() string {
	return ProviderLangchain
}

func (l *LangchainProvider) Model() string {
	return l.model
}

func (l *LangchainProvider) Close() error {
	return nil
}
