// Package chunker divides document text into paragraph-sized chunks for indexing.
//
// The chunker creates chunks at natural text boundaries (HTML paragraphs, line
// breaks, blank lines) so that each chunk carries one idea and stays short
// enough for both BM25 and sentence embedding models.
//
// # Basic Usage
//
//	c := chunker.New(chunker.WithMaxLen(800))
//	paragraphs := c.ChunkDocument(doc)
//
//	for _, p := range paragraphs {
//	    fmt.Printf("%s#%d: %d runes\n", p.DocID, p.Order, utf8.RuneCountInString(p.Text))
//	}
//
// # Chunking Strategy
//
// Text is split in two passes:
//
//  1. Coarse split on </p>, <br> or blank lines. Markup is stripped from
//     each part, whitespace is collapsed and parts shorter than
//     MinParagraphLen runes are dropped (navigation and footer remnants).
//  2. Any part longer than the maximum length is cut after the rightmost
//     period before the limit, else at the rightmost space, else hard at the
//     limit, repeatedly until every chunk fits.
//
// Both passes are deterministic: the same text always yields the same chunks
// in the same order, and paragraph IDs are derived from (document ID, order).
//
// # Keep Window
//
// WithKeepRange drops chunks outside [min, max] runes after splitting. The
// dense export uses 50..900 so that very short lines never reach the
// embedding model.
package chunker
