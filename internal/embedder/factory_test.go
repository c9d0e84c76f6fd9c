package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvModel, "")
	t.Setenv(EnvHost, "")
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		jinaKey  string
		openai   string
		want     string
	}{
		{name: "no keys", want: ProviderLocal},
		{name: "explicit", provider: "LangChain", want: ProviderLangchain},
		{name: "jina key", jinaKey: "j", want: ProviderJina},
		{name: "openai key", openai: "o", want: ProviderOpenAI},
		{name: "jina wins over openai", jinaKey: "j", openai: "o", want: ProviderJina},
		{name: "explicit overrides keys", provider: "local", jinaKey: "j", want: ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvJinaAPIKey, tt.jinaKey)
			t.Setenv(EnvOpenAIAPIKey, tt.openai)

			assert.Equal(t, tt.want, DetectProvider())
		})
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Run("local fallback", func(t *testing.T) {
		clearEnv(t)
		emb, err := NewFromEnv()
		require.NoError(t, err)
		defer emb.Close()
		assert.Equal(t, ProviderLocal, emb.Provider())
	})

	t.Run("jina without key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvProvider, "jina")
		_, err := NewFromEnv()
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("openai with key and model", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvOpenAIAPIKey, "test")
		t.Setenv(EnvModel, "text-embedding-3-large")
		emb, err := NewFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, emb.Provider())
		assert.Equal(t, "text-embedding-3-large", emb.Model())
	})

	t.Run("langchain needs a host", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvProvider, "langchain")
		_, err := NewFromEnv()
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})
}

func TestNew(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		_, err := New(Config{Provider: "none"})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(Config{Provider: "word2vec"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})

	t.Run("empty defaults to local", func(t *testing.T) {
		emb, err := New(Config{})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
	})

	t.Run("langchain with host", func(t *testing.T) {
		emb, err := New(Config{Provider: "langchain", BaseURL: "http://localhost:11434/v1", Dimension: 768})
		require.NoError(t, err)
		assert.Equal(t, ProviderLangchain, emb.Provider())
		assert.Equal(t, DefaultLangchainModel, emb.Model())
		assert.Equal(t, 768, emb.Dimension())
	})

	t.Run("store wraps provider", func(t *testing.T) {
		emb, err := New(Config{Provider: "local", Store: newMemStore()})
		require.NoError(t, err)
		assert.IsType(t, &persistentEmbedder{}, emb)
		assert.Equal(t, ProviderLocal, emb.Provider())
	})
}
