package embedder

import (
	"fmt"
	"os"
	"strings"

	"github.com/bambicim/copilot/internal/resilience"
)

// Environment variables read by NewFromEnv and DetectProvider
const (
	EnvProvider = "COPILOT_EMBEDDING_PROVIDER"
	EnvModel    = "COPILOT_EMBED_MODEL"
	EnvHost     = "COPILOT_EMBED_HOST"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int // only needed by providers that cannot report it up front
	CacheSize int

	Executor *resilience.Executor
	Store    PersistentCache
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. COPILOT_EMBEDDING_PROVIDER (jina, openai, langchain, local, none)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	return New(Config{
		Provider:  DetectProvider(),
		Model:     os.Getenv(EnvModel),
		BaseURL:   os.Getenv(EnvHost),
		CacheSize: 10000,
	})
}

// New creates an embedder with explicit configuration. The "none" provider
// returns ErrNoProviderEnabled so callers can fall back to lexical search.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	httpOpts := []HTTPOption{
		WithBaseURL(cfg.BaseURL),
		WithModel(cfg.Model),
		WithExecutor(cfg.Executor),
	}

	var (
		emb Embedder
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderJina:
		emb, err = NewJinaProvider(cfg.APIKey, cache, httpOpts...)
	case ProviderOpenAI:
		emb, err = NewOpenAIProvider(cfg.APIKey, cache, httpOpts...)
	case ProviderLangchain:
		emb, err = NewLangchainProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimension, cache)
	case ProviderLocal, "":
		emb, err = NewLocalProvider(cache)
	case ProviderNone:
		return nil, ErrNoProviderEnabled
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return WithPersistentCache(emb, cfg.Store), nil
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
