// Package indexer turns stored documents into stored paragraphs and exports
// them for offline use.
//
// # Paragraph Indexing
//
// IndexDocuments lists documents (most recent first, optionally capped or
// restricted to a set of ids), re-extracts their paragraphs with the chunker
// and replaces each document's paragraph set in a single transaction.
// Documents whose fresh extraction matches what is stored are skipped unless
// Config.Force is set. Work fans out on an errgroup bounded by Config.Workers;
// a failing document is counted in Statistics and the run continues. Every
// run is recorded through DocumentStore.RecordIndexRun.
//
// Only one run may be active per Indexer. A concurrent call returns
// ErrIndexingInProgress immediately.
//
//	idx := indexer.New(store, indexer.WithLogger(logger))
//	stats, err := idx.IndexDocuments(ctx, &indexer.Config{Workers: 4})
//
// # Exports
//
// ExportDense embeds paragraphs of 50 to 900 runes and writes corpus.jsonl
// plus vectors.bin, readable with dense.LoadExport.
//
// ExportPairs writes contrastive training pairs as JSON lines:
//
//	{"q": "...", "pos": "...", "neg": ["...", "..."], "url": "...", "title": "..."}
//
// Candidate queries are the title, the first two paragraph prefixes and a list
// of site hints. Negatives are drawn round-robin from other documents.
package indexer
