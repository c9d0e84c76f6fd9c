// Package searcher is the retrieval index of the copilot.
//
// An Index holds an immutable snapshot of paragraphs, their BM25 model and,
// when an embedding backend is available, their dense vectors. Build swaps in
// a new snapshot when the current one is older than the TTL, empty, or when a
// rebuild is forced; searches running meanwhile keep reading the old one.
//
// # Basic Usage
//
//	ix := searcher.New(store, backend, searcher.DefaultConfig(), searcher.WithLogger(logger))
//
//	results := ix.Search(ctx, "kargo ücreti", 6)
//	for _, r := range results {
//	    fmt.Printf("[%d] %s (%.3f)\n%s\n", r.Rank, r.Title, r.Score, r.Snippet)
//	}
//
// # Modes
//
// The configured mode is downgraded per query to the signals that exist:
//
//   - hybrid: lexical and dense fused, or whichever one is present
//   - dense: dense when vectors exist, otherwise lexical
//   - lexical: BM25 only, never touches the embedding backend
//
// Fusion is either a weighted sum of normalized scores or Reciprocal Rank
// Fusion. Either way results are grouped by document and each document is
// represented by its best paragraph.
//
// # Failure Handling
//
// Search never returns an error. A failing store keeps the previous snapshot
// in service; a failing embedding backend leaves the snapshot lexical-only.
package searcher
