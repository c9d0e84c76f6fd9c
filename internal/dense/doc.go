// Package dense scores paragraphs by embedding similarity.
//
// A Backend turns text into unit vectors. It is chosen once at construction:
// NewBackend wraps an embedder.Embedder, Unavailable is the null object used
// when no embedding provider is configured or it failed to start. Callers
// check Available and treat any Embed failure as "no dense signal" for that
// call; nothing here is fatal to a search.
//
// An Index holds the paragraph vectors of one snapshot. Scores returns the
// cosine similarity of every paragraph (exact) or of the approximate top-N
// when a vantage-point tree is attached, and MinMax rescales them to [0,1]
// for fusion.
package dense
