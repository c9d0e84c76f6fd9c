package searcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bambicim/copilot/internal/fusion"
	"github.com/bambicim/copilot/internal/logging"
	"github.com/bambicim/copilot/internal/storage"
	"github.com/bambicim/copilot/pkg/types"
)

const (
	shippingText = "Kargo ücreti sipariş tutarına göre hesaplanır ve ödeme adımında gösterilir."
	deliveryText = "Ürün teslimatı genellikle üç iş günü içinde gerçekleşir, hafta sonu dağıtım yapılmaz."
	returnText   = "İade talebinizi hesabım sayfasından on dört gün içinde oluşturabilirsiniz."
)

// countingStore wraps a store, counts document listings and can be made to fail.
type countingStore struct {
	storage.DocumentStore
	lists atomic.Int32
	fail  atomic.Bool
}

func (s *countingStore) ListDocuments(ctx context.Context, limit int) ([]types.Document, error) {
	s.lists.Add(1)
	if s.fail.Load() {
		return nil, errors.New("database is locked")
	}
	return s.DocumentStore.ListDocuments(ctx, limit)
}

// fakeBackend embeds through a caller-supplied function. While failQueries
// is positive each EmbedQuery call fails and decrements it.
type fakeBackend struct {
	down        atomic.Bool
	embedErr    error
	vec         func(string) []float32
	queries     atomic.Int32
	failQueries atomic.Int32
}

func (f *fakeBackend) Available() bool { return !f.down.Load() }
func (f *fakeBackend) Name() string    { return "fake/test" }
func (f *fakeBackend) Close() error    { return nil }

func (f *fakeBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vec(t)
	}
	return out, nil
}

func (f *fakeBackend) EmbedQuery(_ context.Context, q string) ([]float32, error) {
	f.queries.Add(1)
	if f.failQueries.Add(-1) >= 0 {
		return nil, errors.New("embedding request timed out")
	}
	f.failQueries.Store(0)
	return f.vec(q), nil
}

// deliveryAxis puts delivery-related text and the query "kargo" on one axis.
func deliveryAxis(text string) []float32 {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "teslimat") || lower == "kargo" {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

func newStore(t *testing.T) *countingStore {
	t.Helper()
	s, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &countingStore{DocumentStore: s}
}

func addDoc(t *testing.T, s storage.DocumentStore, id, title, text string, updated time.Time) {
	t.Helper()
	doc := &types.Document{
		ID:        id,
		Kind:      types.KindPage,
		Title:     title,
		URL:       "https://bambicim.com/" + id,
		Text:      text,
		UpdatedAt: updated,
	}
	require.NoError(t, s.UpsertDocument(context.Background(), doc))
}

func seedShop(t *testing.T, s storage.DocumentStore) {
	t.Helper()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	addDoc(t, s, "shipping", "Kargo", shippingText, base.Add(3*time.Hour))
	addDoc(t, s, "delivery", "Teslimat", deliveryText, base.Add(2*time.Hour))
	addDoc(t, s, "returns", "İade", returnText, base.Add(time.Hour))
}

func newIndex(t *testing.T, s storage.DocumentStore, backend *fakeBackend, mutate func(*Config)) *Index {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	if backend == nil {
		return New(s, nil, cfg, WithLogger(logging.Discard()))
	}
	return New(s, backend, cfg, WithLogger(logging.Discard()))
}

func ids(results []types.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestSearchBlankQueryOrZeroK(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	ix := newIndex(t, store, nil, nil)
	ctx := context.Background()

	assert.Empty(t, ix.Search(ctx, "", 5))
	assert.Empty(t, ix.Search(ctx, "   \t", 5))
	assert.Equal(t, int32(0), store.lists.Load(), "blank query must not touch the index")

	assert.Empty(t, ix.Search(ctx, "kargo", 0))
	assert.Empty(t, ix.Search(ctx, "kargo", -3))
	assert.Equal(t, int32(0), store.lists.Load())
}

func TestSearchLexicalOnly(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	ix := newIndex(t, store, nil, nil)

	results := ix.Search(context.Background(), "KARGO ücreti", 5)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "shipping", r.ID)
	assert.Equal(t, 1, r.Rank)
	assert.Equal(t, "Kargo", r.Title)
	assert.Equal(t, "https://bambicim.com/shipping", r.URL)
	assert.Equal(t, shippingText, r.Text)
	assert.Contains(t, r.Snippet, "Kargo")
	assert.InDelta(t, 1.0, r.Score, 1e-9)
	assert.NotEmpty(t, r.ParagraphID)
	assert.NoError(t, r.Validate())
}

func TestSearchNoMatchIsEmpty(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	ix := newIndex(t, store, nil, nil)

	assert.Empty(t, ix.Search(context.Background(), "kuantum fiziği", 5))
}

func TestSearchEmptyCorpus(t *testing.T) {
	store := newStore(t)
	ix := newIndex(t, store, nil, nil)
	ctx := context.Background()

	assert.Empty(t, ix.Search(ctx, "kargo", 5))
	assert.Empty(t, ix.Search(ctx, "kargo", 5))
	// An empty snapshot is never considered fresh
	assert.Equal(t, int32(2), store.lists.Load())
}

func TestSearchGroupsByDocument(t *testing.T) {
	store := newStore(t)
	now := time.Now()
	addDoc(t, store, "faq", "SSS",
		"Kargo firmamız siparişinizi aynı gün içinde teslim alır ve yola çıkarır.\n\n"+
			"Kargo takip numarası e-posta ile size ayrıca gönderilir, kargo durumunu izleyebilirsiniz.", now)
	addDoc(t, store, "other", "Diğer", "Kargo seçenekleri ödeme sayfasında listelenir, birini seçmeniz gerekir.", now.Add(-time.Hour))
	ix := newIndex(t, store, nil, nil)

	results := ix.Search(context.Background(), "kargo", 5)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []string{"faq", "other"}, ids(results))
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchRespectsK(t *testing.T) {
	store := newStore(t)
	now := time.Now()
	for i, id := range []string{"a", "b", "c", "d"} {
		addDoc(t, store, id, strings.ToUpper(id), "Bambicim mağazası hakkında genel bilgiler içeren bir paragraf "+id, now.Add(time.Duration(-i)*time.Minute))
	}
	ix := newIndex(t, store, nil, nil)

	results := ix.Search(context.Background(), "bambicim", 2)
	require.Len(t, results, 2)
	// Equal scores keep extraction (recency) order
	assert.Equal(t, []string{"a", "b"}, ids(results))
}

func TestHybridWeightedUsesDenseSignal(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	backend := &fakeBackend{vec: deliveryAxis}
	ix := newIndex(t, store, backend, nil)

	results := ix.Search(context.Background(), "kargo", 5)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"delivery", "shipping"}, ids(results))
	assert.InDelta(t, 0.55, results[0].Score, 1e-9)
	assert.InDelta(t, 0.45, results[1].Score, 1e-9)
	assert.Equal(t, int32(1), backend.queries.Load())
}

func TestLexicalModeNeverEmbeds(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	backend := &fakeBackend{vec: deliveryAxis}
	ix := newIndex(t, store, backend, func(c *Config) { c.Fusion.Mode = fusion.ModeLexical })

	results := ix.Search(context.Background(), "kargo", 5)
	assert.Equal(t, []string{"shipping"}, ids(results))
	assert.Equal(t, int32(0), backend.queries.Load())
	assert.False(t, ix.Status().Dense)
}

func TestDenseModeFallsBackToLexical(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	ix := newIndex(t, store, nil, func(c *Config) { c.Fusion.Mode = fusion.ModeDense })

	assert.Equal(t, []string{"shipping"}, ids(ix.Search(context.Background(), "kargo", 5)))
}

func TestDenseModeUsesOnlyDense(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	backend := &fakeBackend{vec: deliveryAxis}
	ix := newIndex(t, store, backend, func(c *Config) { c.Fusion.Mode = fusion.ModeDense })

	results := ix.Search(context.Background(), "kargo", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, "delivery", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestHybridRRF(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	backend := &fakeBackend{vec: deliveryAxis}
	ix := newIndex(t, store, backend, func(c *Config) { c.Fusion.Strategy = fusion.StrategyRRF })

	results := ix.Search(context.Background(), "kargo", 5)
	require.Len(t, results, 2)
	// Each document tops one list: equal fused scores, earlier paragraph wins
	assert.Equal(t, []string{"shipping", "delivery"}, ids(results))
	assert.InDelta(t, 1.0/61, results[0].Score, 1e-12)
	assert.InDelta(t, 1.0/61, results[1].Score, 1e-12)
}

func TestEmbedFailureLeavesLexicalSnapshot(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	backend := &fakeBackend{vec: deliveryAxis, embedErr: errors.New("connection refused")}
	ix := newIndex(t, store, backend, nil)

	results := ix.Search(context.Background(), "kargo", 5)
	assert.Equal(t, []string{"shipping"}, ids(results))
	assert.False(t, ix.Status().Dense)
	assert.Equal(t, int32(0), backend.queries.Load())
}

func TestUnavailableBackendSkipsDense(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	backend := &fakeBackend{vec: deliveryAxis}
	backend.down.Store(true)
	ix := newIndex(t, store, backend, nil)

	assert.Equal(t, []string{"shipping"}, ids(ix.Search(context.Background(), "kargo", 5)))
	st := ix.Status()
	assert.False(t, st.Dense)
	assert.Contains(t, st.DenseBackend, "unavailable")
}

func TestFailedQueryEmbeddingIsNotCached(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	backend := &fakeBackend{vec: deliveryAxis}
	backend.failQueries.Store(1)
	ix := newIndex(t, store, backend, nil)
	ctx := context.Background()

	first := ix.Query(ctx, "kargo", 5)
	assert.Equal(t, fusion.ModeLexical, first.Mode)
	assert.Equal(t, []string{"shipping"}, ids(first.Results))

	// The backend is healthy again; the next identical query must reach it
	second := ix.Query(ctx, "kargo", 5)
	assert.Equal(t, fusion.ModeHybrid, second.Mode)
	assert.Equal(t, []string{"delivery", "shipping"}, ids(second.Results))
	assert.Equal(t, int32(2), backend.queries.Load())

	third := ix.Query(ctx, "kargo", 5)
	assert.Equal(t, second, third)
	assert.Equal(t, int32(2), backend.queries.Load(), "full result is served from cache")
}

func TestQueryReportsEffectiveMode(t *testing.T) {
	tests := []struct {
		name    string
		backend func() *fakeBackend
		mode    fusion.Mode
		query   string
		want    fusion.Mode
	}{
		{"hybrid with vectors", func() *fakeBackend { return &fakeBackend{vec: deliveryAxis} }, fusion.ModeHybrid, "kargo", fusion.ModeHybrid},
		{"hybrid without backend", func() *fakeBackend { return nil }, fusion.ModeHybrid, "kargo", fusion.ModeLexical},
		{"hybrid with backend down", func() *fakeBackend {
			b := &fakeBackend{vec: deliveryAxis}
			b.down.Store(true)
			return b
		}, fusion.ModeHybrid, "kargo", fusion.ModeLexical},
		{"dense with vectors", func() *fakeBackend { return &fakeBackend{vec: deliveryAxis} }, fusion.ModeDense, "kargo", fusion.ModeDense},
		{"dense without backend", func() *fakeBackend { return nil }, fusion.ModeDense, "kargo", fusion.ModeLexical},
		{"lexical", func() *fakeBackend { return &fakeBackend{vec: deliveryAxis} }, fusion.ModeLexical, "kargo", fusion.ModeLexical},
		{"blank query", func() *fakeBackend { return nil }, fusion.ModeHybrid, "  ", fusion.ModeNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			seedShop(t, store)
			ix := newIndex(t, store, tt.backend(), func(c *Config) { c.Fusion.Mode = tt.mode })

			got := ix.Query(context.Background(), tt.query, 5)
			assert.Equal(t, tt.want, got.Mode)
			assert.Equal(t, got.Results, ix.Search(context.Background(), tt.query, 5))
		})
	}
}

func TestHybridWithoutDenseMatchesLexical(t *testing.T) {
	queries := []string{"kargo", "teslimat", "iade gün", "sipariş ödeme hesabım", "gün", "bilinmeyen kelime"}

	variants := []struct {
		name    string
		backend func() *fakeBackend
		mutate  func(*Config)
	}{
		{"no backend", func() *fakeBackend { return nil }, nil},
		{"backend down", func() *fakeBackend {
			b := &fakeBackend{vec: deliveryAxis}
			b.down.Store(true)
			return b
		}, nil},
		{"query embedding fails", func() *fakeBackend {
			b := &fakeBackend{vec: deliveryAxis}
			b.failQueries.Store(1 << 20)
			return b
		}, nil},
		{"rrf without backend", func() *fakeBackend { return nil }, func(c *Config) { c.Fusion.Strategy = fusion.StrategyRRF }},
	}

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			store := newStore(t)
			seedShop(t, store)
			lexical := newIndex(t, store, nil, func(c *Config) {
				c.Fusion.Mode = fusion.ModeLexical
				if v.mutate != nil {
					v.mutate(c)
				}
			})
			hybrid := newIndex(t, store, v.backend(), func(c *Config) {
				c.Fusion.Mode = fusion.ModeHybrid
				if v.mutate != nil {
					v.mutate(c)
				}
			})

			ctx := context.Background()
			require.NotEmpty(t, lexical.Search(ctx, "kargo", 3))
			for _, q := range queries {
				for _, k := range []int{1, 3, 10} {
					want := lexical.Query(ctx, q, k)
					got := hybrid.Query(ctx, q, k)
					assert.Equal(t, want, got, "query %q k=%d", q, k)
				}
			}
		})
	}
}

func TestChangedDocumentTextReplacesIndexedParagraphs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	addDoc(t, store, "shipping", "Kargo", shippingText, base)

	doc, err := store.GetDocument(ctx, "shipping")
	require.NoError(t, err)
	para := types.NewParagraph(*doc, 0, shippingText)
	require.NoError(t, store.ReplaceParagraphs(ctx, "shipping", []types.Paragraph{para}))

	ix := newIndex(t, store, nil, nil)
	require.Len(t, ix.Search(ctx, "kargo", 5), 1)

	// New text arrives without a re-index
	addDoc(t, store, "shipping", "Kargo", "Pembe etek koleksiyonu yeni sezonda mağazada ve çevrimiçi satışta.", base.Add(time.Hour))
	ix.Reload()

	results := ix.Search(ctx, "etek", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "shipping", results[0].ID)
	assert.Contains(t, results[0].Text, "Pembe etek")
	assert.Empty(t, ix.Search(ctx, "ücreti", 5))
}

func TestBuildHonoursTTL(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	cfg := DefaultConfig()
	cfg.TTL = time.Minute
	ix := New(store, nil, cfg, WithLogger(logging.Discard()), WithClock(clock))
	ctx := context.Background()

	require.NoError(t, ix.Build(ctx, false))
	require.NoError(t, ix.Build(ctx, false))
	assert.Equal(t, int32(1), store.lists.Load())

	advance(30 * time.Second)
	require.NoError(t, ix.Build(ctx, false))
	assert.Equal(t, int32(1), store.lists.Load())

	require.NoError(t, ix.Build(ctx, true))
	assert.Equal(t, int32(2), store.lists.Load())

	advance(2 * time.Minute)
	assert.True(t, ix.Status().Stale)
	require.NoError(t, ix.Build(ctx, false))
	assert.Equal(t, int32(3), store.lists.Load())
	assert.False(t, ix.Status().Stale)
}

func TestBuildIsIdempotentWithinTTL(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	ix := newIndex(t, store, nil, nil)
	ctx := context.Background()

	first := ix.Search(ctx, "iade", 5)
	require.NoError(t, ix.Build(ctx, false))
	second := ix.Search(ctx, "iade", 5)
	assert.Equal(t, first, second)
}

func TestReloadPicksUpNewDocuments(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	ix := newIndex(t, store, nil, nil)
	ctx := context.Background()

	assert.Empty(t, ix.Search(ctx, "hediye", 5))

	addDoc(t, store, "gift", "Hediye", "Hediye paketi seçeneğini sepet sayfasında işaretleyebilirsiniz.", time.Now())
	assert.Empty(t, ix.Search(ctx, "hediye", 5), "fresh snapshot is served until reload")

	ix.Reload()
	assert.True(t, ix.Status().Stale)
	assert.Equal(t, []string{"gift"}, ids(ix.Search(ctx, "hediye", 5)))
}

func TestBuildFailureKeepsPreviousSnapshot(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	ix := newIndex(t, store, nil, nil)
	ctx := context.Background()

	require.NoError(t, ix.Build(ctx, true))
	before := ix.Status()

	store.fail.Store(true)
	err := ix.Build(ctx, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list documents")

	assert.Equal(t, before.BuiltAt, ix.Status().BuiltAt)

	ix.Reload()
	results := ix.Search(ctx, "kargo", 5)
	assert.Equal(t, []string{"shipping"}, ids(results), "search swallows the build error")
	assert.True(t, ix.Status().Stale, "failed forced rebuild stays pending")

	store.fail.Store(false)
	ix.Search(ctx, "kargo", 5)
	assert.False(t, ix.Status().Stale)
}

func TestPersistedParagraphsArePreferred(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	addDoc(t, store, "about", "Hakkımızda", "Eski metin burada duruyor ve aranmamalı, çünkü paragraflar kayıtlı.", time.Now())

	doc := types.Document{ID: "about", URL: "https://bambicim.com/about"}
	para := types.NewParagraph(doc, 0, "Bambicim el yapımı oyuncaklar üreten küçük bir atölyedir.")
	require.NoError(t, store.ReplaceParagraphs(ctx, "about", []types.Paragraph{para}))

	ix := newIndex(t, store, nil, nil)

	results := ix.Search(ctx, "oyuncaklar", 5)
	require.Len(t, results, 1)
	assert.Equal(t, para.ID, results[0].ParagraphID)
	// Empty paragraph title falls back to the document's
	assert.Equal(t, "Hakkımızda", results[0].Title)

	assert.Empty(t, ix.Search(ctx, "eski", 5))
}

func TestMaxDocsCapsCorpus(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	ix := newIndex(t, store, nil, func(c *Config) { c.MaxDocs = 1 })

	require.NoError(t, ix.Build(context.Background(), true))
	st := ix.Status()
	assert.Equal(t, 1, st.Documents)
	assert.Empty(t, ix.Search(context.Background(), "iade", 5), "only the newest document is indexed")
}

func TestCachedResultsAreCopies(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	ix := newIndex(t, store, nil, nil)
	ctx := context.Background()

	first := ix.Search(ctx, "kargo", 5)
	require.NotEmpty(t, first)
	first[0].Title = "mutated"

	second := ix.Search(ctx, "kargo", 5)
	assert.Equal(t, "Kargo", second[0].Title)
}

func TestStatusBeforeBuild(t *testing.T) {
	ix := newIndex(t, newStore(t), nil, nil)
	st := ix.Status()
	assert.Zero(t, st.Paragraphs)
	assert.True(t, st.Stale)
	assert.True(t, st.BuiltAt.IsZero())
	assert.Equal(t, fusion.ModeHybrid, st.Mode)
	assert.Equal(t, fusion.StrategyWeighted, st.Strategy)
}

func TestConcurrentSearchDuringRebuild(t *testing.T) {
	store := newStore(t)
	seedShop(t, store)
	backend := &fakeBackend{vec: deliveryAxis}
	ix := newIndex(t, store, backend, nil)
	ctx := context.Background()
	require.NoError(t, ix.Build(ctx, true))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				results := ix.Search(ctx, "kargo", 5)
				assert.Len(t, results, 2)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, ix.Build(ctx, true))
		}()
	}
	wg.Wait()
}
