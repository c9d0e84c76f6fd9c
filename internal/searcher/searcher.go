package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bambicim/copilot/internal/chunker"
	"github.com/bambicim/copilot/internal/config"
	"github.com/bambicim/copilot/internal/dense"
	"github.com/bambicim/copilot/internal/fusion"
	"github.com/bambicim/copilot/internal/lexical"
	"github.com/bambicim/copilot/internal/metrics"
	"github.com/bambicim/copilot/internal/snippet"
	"github.com/bambicim/copilot/internal/storage"
	"github.com/bambicim/copilot/internal/tokenizer"
	"github.com/bambicim/copilot/pkg/types"
)

// resultCacheSize bounds the per-snapshot query result cache.
const resultCacheSize = 1000

// Config tunes an Index.
type Config struct {
	MaxDocs         int
	TTL             time.Duration
	TopK            int
	SnippetWidth    int
	ParagraphMaxLen int
	Language        tokenizer.Language
	Stopwords       bool
	Fusion          fusion.Options
	ANN             dense.IndexOptions
}

// ConfigFrom converts validated retrieval settings.
func ConfigFrom(r config.Retrieval) Config {
	return Config{
		MaxDocs:         r.MaxDocs,
		TTL:             r.IndexTTL(),
		TopK:            r.TopK,
		SnippetWidth:    r.SnippetWidth,
		ParagraphMaxLen: r.ParagraphMaxLen,
		Language:        tokenizer.ParseLanguage(r.Language),
		Stopwords:       r.Stopwords,
		Fusion:          r.FusionOptions(),
		ANN: dense.IndexOptions{
			DisableANN: r.DisableANN,
			MinCorpus:  r.ANNMinCorpus,
			TopN:       r.ANNTopN,
		},
	}
}

// DefaultConfig is ConfigFrom applied to the built-in defaults.
func DefaultConfig() Config {
	return ConfigFrom(config.Default().Retrieval)
}

// snapshot is an immutable, fully built index. It is replaced wholesale and
// never mutated after publication.
type snapshot struct {
	paragraphs []types.Paragraph
	documents  int
	bm25       *lexical.Model
	dense      *dense.Index // nil when the snapshot has no vectors
	builtAt    time.Time
}

func (s *snapshot) empty() bool {
	return s == nil || len(s.paragraphs) == 0
}

type cacheEntry struct {
	snap    *snapshot
	results []types.SearchResult
	mode    fusion.Mode
}

// Answer is a ranked result list with the fusion mode that produced it.
// Mode is lexical when the dense signal was configured but absent.
type Answer struct {
	Results []types.SearchResult
	Mode    fusion.Mode
}

// Index answers searches from an in-memory snapshot of the document store.
// Searches never block on a rebuild: they read whichever snapshot was
// published last.
type Index struct {
	store   storage.DocumentStore
	backend dense.Backend
	cfg     Config
	tok     *tokenizer.Tokenizer
	chunk   *chunker.Chunker
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	snap    atomic.Pointer[snapshot]
	reload  atomic.Bool
	buildMu sync.Mutex

	cache *lru.Cache[[32]byte, cacheEntry]

	denseDown atomic.Bool
	offOnce   sync.Once
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// WithMetrics records search and build metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Index) {
		ix.metrics = m
	}
}

// WithClock overrides time.Now, for TTL tests.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) {
		if now != nil {
			ix.now = now
		}
	}
}

// New creates an Index. A nil backend means lexical-only retrieval.
func New(store storage.DocumentStore, backend dense.Backend, cfg Config, opts ...Option) *Index {
	if backend == nil {
		backend = dense.Unavailable("not configured")
	}
	if cfg.MaxDocs <= 0 {
		cfg.MaxDocs = config.DefaultMaxDocs
	}
	if cfg.TTL <= 0 {
		cfg.TTL = config.DefaultIndexTTL
	}
	if cfg.TopK <= 0 {
		cfg.TopK = fusion.DefaultTopK
	}
	if cfg.Fusion.Mode == "" {
		cfg.Fusion.Mode = fusion.ModeHybrid
	}
	if cfg.Language == "" {
		cfg.Language = tokenizer.LangTurkish
	}

	cache, err := lru.New[[32]byte, cacheEntry](resultCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	ix := &Index{
		store:   store,
		backend: backend,
		cfg:     cfg,
		tok:     tokenizer.New(cfg.Language, tokenizer.WithStopwords(cfg.Stopwords)),
		chunk:   chunker.New(chunker.WithMaxLen(cfg.ParagraphMaxLen)),
		logger:  slog.Default(),
		now:     time.Now,
		cache:   cache,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.With("component", "searcher")
	return ix
}

// Config returns the effective configuration.
func (ix *Index) Config() Config {
	return ix.cfg
}

// fresh reports whether the published snapshot can be served without a rebuild.
func (ix *Index) fresh() bool {
	s := ix.snap.Load()
	if s.empty() {
		return false
	}
	return ix.now().Sub(s.builtAt) < ix.cfg.TTL
}

// Build rebuilds the snapshot unless force is false and the current one is
// non-empty and younger than the TTL. On failure the previous snapshot stays
// published and the error is returned.
func (ix *Index) Build(ctx context.Context, force bool) error {
	if !force && ix.fresh() {
		return nil
	}

	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()

	// A concurrent caller may have rebuilt while we waited
	if !force && ix.fresh() {
		return nil
	}

	start := time.Now()
	snap, err := ix.build(ctx)
	elapsed := time.Since(start)
	if err != nil {
		ix.metrics.ObserveBuild(elapsed, err, 0, 0, false)
		ix.logger.Error("index build failed, keeping previous snapshot", "error", err)
		return err
	}

	ix.snap.Store(snap)
	if force {
		ix.reload.Store(false)
	}
	ix.metrics.ObserveBuild(elapsed, nil, snap.documents, len(snap.paragraphs), snap.dense != nil)
	ix.logger.Info("index built",
		"documents", snap.documents,
		"paragraphs", len(snap.paragraphs),
		"dense", snap.dense != nil,
		"ann", snap.dense.ANN(),
		"duration", elapsed)
	return nil
}

func (ix *Index) build(ctx context.Context) (*snapshot, error) {
	docs, err := ix.store.ListDocuments(ctx, ix.cfg.MaxDocs)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	persisted, err := ix.store.ListParagraphs(ctx, ids)
	if err != nil {
		ix.logger.Warn("stored paragraphs unavailable, extracting on the fly", "error", err)
		persisted = nil
	}

	var paragraphs []types.Paragraph
	for _, doc := range docs {
		if ps := persisted[doc.ID]; len(ps) > 0 {
			for _, p := range ps {
				if strings.TrimSpace(p.Text) == "" {
					continue
				}
				if p.Title == "" {
					p.Title = doc.Title
				}
				if p.URL == "" {
					p.URL = doc.URL
				}
				paragraphs = append(paragraphs, p)
			}
			continue
		}
		paragraphs = append(paragraphs, ix.chunk.ChunkDocument(doc)...)
	}

	snap := &snapshot{
		paragraphs: paragraphs,
		documents:  len(docs),
		builtAt:    ix.now(),
	}
	if len(paragraphs) == 0 {
		return snap, nil
	}

	corpus := make([][]string, len(paragraphs))
	texts := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		corpus[i] = ix.tok.Tokenize(p.Text)
		texts[i] = p.Text
	}
	snap.bm25 = lexical.Build(corpus)
	snap.dense = ix.buildDense(ctx, texts)

	return snap, nil
}

// buildDense embeds every paragraph. Any failure leaves the snapshot lexical-only.
func (ix *Index) buildDense(ctx context.Context, texts []string) *dense.Index {
	if ix.cfg.Fusion.Mode == fusion.ModeLexical {
		return nil
	}
	if !ix.backend.Available() {
		ix.offOnce.Do(func() {
			ix.logger.Info("dense backend unavailable, serving lexical results", "backend", ix.backend.Name())
		})
		return nil
	}

	vectors, err := ix.backend.Embed(ctx, texts)
	if err == nil {
		var idx *dense.Index
		idx, err = dense.NewIndex(vectors, ix.cfg.ANN)
		if err == nil {
			if ix.denseDown.Swap(false) {
				ix.logger.Info("dense backend recovered", "backend", ix.backend.Name())
			}
			return idx
		}
	}

	if !ix.denseDown.Swap(true) {
		ix.logger.Warn("dense embedding failed, snapshot is lexical-only", "backend", ix.backend.Name(), "error", err)
	}
	return nil
}

// Reload invalidates the snapshot so the next search rebuilds it.
func (ix *Index) Reload() {
	ix.reload.Store(true)
}

// Search returns up to k documents for query, best first. It never fails:
// scorer and store errors degrade the result instead.
func (ix *Index) Search(ctx context.Context, query string, k int) []types.SearchResult {
	return ix.Query(ctx, query, k).Results
}

// Query is Search that also reports the effective fusion mode. Results
// ranked without an expected dense signal are not cached, so the next
// identical query tries the backend again.
func (ix *Index) Query(ctx context.Context, query string, k int) Answer {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return Answer{Mode: fusion.ModeNone}
	}
	start := time.Now()

	force := ix.reload.Swap(false)
	if err := ix.Build(ctx, force); err != nil && force {
		ix.reload.Store(true)
	}

	snap := ix.snap.Load()
	if snap.empty() {
		ix.metrics.ObserveSearch(string(fusion.ModeNone), "empty", time.Since(start))
		return Answer{Mode: fusion.ModeNone}
	}

	key := cacheKey(query, k)
	if entry, ok := ix.cache.Get(key); ok && entry.snap == snap {
		ix.metrics.ObserveSearch(string(entry.mode), "cached", time.Since(start))
		return Answer{Results: copyResults(entry.results), Mode: entry.mode}
	}

	tokens := ix.tok.Tokenize(query)
	lex, dn, degraded := ix.score(ctx, snap, query, tokens)

	opts := ix.cfg.Fusion
	opts.Mode = fusion.Effective(ix.cfg.Fusion.Mode, lex != nil, dn != nil)
	hits := fusion.Rank(snap.paragraphs, lex, dn, k, opts)

	results := make([]types.SearchResult, len(hits))
	for i, h := range hits {
		p := snap.paragraphs[h.Pos]
		results[i] = types.SearchResult{
			ID:          p.DocID,
			ParagraphID: p.ID,
			Rank:        i + 1,
			Title:       p.Title,
			URL:         p.URL,
			Text:        p.Text,
			Snippet:     snippet.Highlight(p.Text, tokens, ix.cfg.SnippetWidth),
			Score:       h.Score,
		}
	}

	outcome := "ok"
	if len(results) == 0 {
		outcome = "empty"
	}
	if degraded {
		outcome = "degraded"
	}
	ix.metrics.ObserveSearch(string(opts.Mode), outcome, time.Since(start))

	if !degraded {
		ix.cache.Add(key, cacheEntry{snap: snap, results: copyResults(results), mode: opts.Mode})
	}
	return Answer{Results: results, Mode: opts.Mode}
}

// score runs both scorers concurrently. A nil signal is absent. Failures are
// logged and contained to their scorer. degraded reports that the snapshot
// carries vectors for a dense mode but no dense signal came back.
func (ix *Index) score(ctx context.Context, snap *snapshot, query string, tokens []string) (lex, dn []types.ScoredParagraph, degraded bool) {
	wantDense := ix.cfg.Fusion.Mode != fusion.ModeLexical && snap.dense != nil
	var g errgroup.Group

	g.Go(func() error {
		raw := snap.bm25.Scores(tokens)
		if raw == nil {
			return nil
		}
		norm := lexical.Normalize(raw)
		lex = make([]types.ScoredParagraph, 0, len(norm))
		for pos, s := range norm {
			if s > 0 {
				lex = append(lex, types.ScoredParagraph{Pos: pos, Score: s})
			}
		}
		return nil
	})

	if wantDense && ix.backend.Available() {
		g.Go(func() error {
			vec, err := ix.backend.EmbedQuery(ctx, query)
			if err != nil {
				ix.logger.Warn("query embedding failed, dense signal dropped", "error", err)
				return nil
			}
			scores, err := snap.dense.Scores(vec)
			if err != nil {
				ix.logger.Warn("dense scoring failed", "error", err)
				return nil
			}
			dn = dense.MinMax(scores)
			if dn == nil {
				dn = []types.ScoredParagraph{}
			}
			return nil
		})
	}

	_ = g.Wait()
	return lex, dn, wantDense && dn == nil
}

// Status describes the published snapshot.
type Status struct {
	Documents    int
	Paragraphs   int
	BuiltAt      time.Time
	Age          time.Duration
	Stale        bool
	Dense        bool
	ANN          bool
	DenseBackend string
	Mode         fusion.Mode
	Strategy     fusion.Strategy
}

// Status reports the current snapshot without triggering a build.
func (ix *Index) Status() Status {
	st := Status{
		DenseBackend: ix.backend.Name(),
		Mode:         ix.cfg.Fusion.Mode,
		Strategy:     ix.cfg.Fusion.Strategy,
		Stale:        true,
	}
	if !ix.backend.Available() {
		st.DenseBackend = ix.backend.Name() + " (unavailable)"
	}

	snap := ix.snap.Load()
	if snap == nil {
		return st
	}
	st.Documents = snap.documents
	st.Paragraphs = len(snap.paragraphs)
	st.BuiltAt = snap.builtAt
	st.Age = ix.now().Sub(snap.builtAt)
	st.Stale = ix.reload.Load() || !ix.fresh()
	st.Dense = snap.dense != nil
	st.ANN = snap.dense.ANN()
	return st
}

func cacheKey(query string, k int) [32]byte {
	h := sha256.New()
	h.Write([]byte(query))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	h.Write(buf[:])
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

func copyResults(src []types.SearchResult) []types.SearchResult {
	if src == nil {
		return nil
	}
	out := make([]types.SearchResult, len(src))
	copy(out, src)
	return out
}
