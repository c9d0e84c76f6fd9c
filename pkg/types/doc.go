// Package types provides shared type definitions for the copilot retrieval core.
//
// This package defines the domain types passed between the storage layer,
// the paragraph extractor, the scorers and the ranker.
//
// # Core Types
//
// Document is an externally owned unit of content (a page, a note, a blog
// post). The retrieval core only reads documents:
//
//	doc := types.Document{
//	    ID:    "home",
//	    Title: "Bambicim",
//	    URL:   "https://bambicim.com/",
//	    Text:  "<p>Handmade skirts ...</p>",
//	}
//
// Paragraph is a chunk of a document's text. Paragraph IDs are derived from
// the owning document ID and the paragraph order, so re-extracting the same
// document yields the same IDs:
//
//	p := types.NewParagraph(doc, 0, "Handmade skirts ...")
//	// p.ID == types.ParagraphID("home", 0)
//
// SearchResult is the single record type returned by a search. Its ID is the
// source document ID; Snippet is a bounded window of the best paragraph.
//
// ScoredParagraph is the intermediate record produced by the lexical and
// dense scorers and consumed by the ranker. Pos is the paragraph position in
// the index snapshot (its extraction order).
package types
