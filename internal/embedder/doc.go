// Package embedder generates vector embeddings for paragraphs and queries.
//
// Providers share the Embedder interface:
//
//   - local: offline feature-hashing embedder (words and character trigrams
//     hashed into 384 signed buckets). Deterministic, no network.
//   - openai, jina: HTTP /embeddings APIs, retried with exponential backoff
//     behind a circuit breaker.
//   - langchain: any OpenAI-compatible server (Ollama, vLLM, a local
//     sentence-transformers service) through langchaingo.
//   - none: no dense retrieval; New returns ErrNoProviderEnabled.
//
// Every provider returns L2-normalized vectors so that an inner product is a
// cosine similarity.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{p1.Text, p2.Text},
//	})
//
// # Provider Selection
//
// NewFromEnv selects a provider from the environment:
//
//  1. If COPILOT_EMBEDDING_PROVIDER is set, use it
//  2. Else if JINA_API_KEY is set, use Jina AI
//  3. Else if OPENAI_API_KEY is set, use OpenAI
//  4. Else fall back to the local provider
//
// COPILOT_EMBED_MODEL and COPILOT_EMBED_HOST override the model and endpoint.
//
// # Caching
//
// Embeddings are cached in memory by CacheKey (model plus SHA-256 of the
// text) with LRU eviction. Config.Store adds a PersistentCache (see package
// vectorcache) consulted before any provider call, so restarts do not
// re-embed an unchanged corpus.
package embedder
