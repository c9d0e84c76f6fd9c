package embedder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]float32
	fail bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]float32)}
}

func (m *memStore) Get(key string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memStore) Set(key string, v []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.data[key] = v
	return nil
}

// countingEmbedder records how many texts reach the wrapped provider.
type countingEmbedder struct {
	*LocalProvider
	texts int
}

func (c *countingEmbedder) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	c.texts += len(req.Texts)
	return c.LocalProvider.GenerateBatch(ctx, req)
}

func (c *countingEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	c.texts++
	return c.LocalProvider.GenerateEmbedding(ctx, req)
}

func TestPersistentCache_SkipsKnownTexts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	inner := &countingEmbedder{LocalProvider: mustNewLocalProvider(t)}
	emb := WithPersistentCache(inner, store)

	first, err := emb.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"pembe etek", "mavi gömlek"}})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.texts)
	assert.Len(t, store.data, 2)

	second, err := emb.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"mavi gömlek", "yeşil şapka", "pembe etek"}})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.texts, "only the new text is embedded")
	require.Len(t, second.Embeddings, 3)
	assert.Equal(t, first.Embeddings[1].Vector, second.Embeddings[0].Vector)
	assert.Equal(t, first.Embeddings[0].Vector, second.Embeddings[2].Vector)

	single, err := emb.GenerateEmbedding(ctx, EmbeddingRequest{Text: "yeşil şapka"})
	require.NoError(t, err)
	assert.Equal(t, second.Embeddings[1].Vector, single.Vector)
	assert.Equal(t, 3, inner.texts)
}

func TestPersistentCache_StoreFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	store.fail = true
	emb := WithPersistentCache(mustNewLocalProvider(t), store)

	_, err := emb.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "kumaş"})
	assert.NoError(t, err)
}

func TestWithPersistentCache_NilStore(t *testing.T) {
	p := mustNewLocalProvider(t)
	assert.Same(t, p, WithPersistentCache(p, nil))
}
