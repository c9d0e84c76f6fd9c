package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bambicim/copilot/internal/chunker"
	"github.com/bambicim/copilot/internal/dense"
	"github.com/bambicim/copilot/pkg/types"
)

// Dense export keeps paragraphs whose rune length lies in this range.
const (
	ExportMinLen = 50
	ExportMaxLen = 900
)

// ExportStats summarizes a dense export.
type ExportStats struct {
	Documents  int
	Paragraphs int
	Dimension  int
}

// ExportDense embeds the paragraphs of up to limit documents and writes
// corpus.jsonl and vectors.bin to dir. Stored paragraphs are used when a
// document has them, otherwise the document text is chunked.
func (idx *Indexer) ExportDense(ctx context.Context, backend dense.Backend, dir string, limit int) (*ExportStats, error) {
	if backend == nil || !backend.Available() {
		return nil, types.ErrBackendUnavailable
	}

	docs, err := idx.store.ListDocuments(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, types.ErrEmptyCorpus
	}
	stored, err := idx.store.ListParagraphs(ctx, documentIDs(docs))
	if err != nil {
		return nil, fmt.Errorf("failed to load paragraphs: %w", err)
	}

	split := chunker.New(chunker.WithMaxLen(ExportMaxLen), chunker.WithKeepRange(ExportMinLen, ExportMaxLen))

	records := make([]dense.ExportRecord, 0, len(docs)*4)
	texts := make([]string, 0, len(docs)*4)
	for _, doc := range docs {
		paras := stored[doc.ID]
		if len(paras) == 0 {
			paras = split.ChunkDocument(doc)
		}
		for _, p := range paras {
			n := utf8.RuneCountInString(p.Text)
			if n < ExportMinLen || n > ExportMaxLen {
				continue
			}
			records = append(records, dense.ExportRecord{
				PID:   p.ID,
				DocID: doc.ID,
				URL:   doc.URL,
				Title: doc.DisplayTitle(),
				Text:  p.Text,
			})
			texts = append(texts, p.Text)
		}
	}
	if len(records) == 0 {
		return nil, types.ErrEmptyCorpus
	}

	vectors, err := backend.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed paragraphs: %w", err)
	}
	if err := dense.WriteExport(dir, records, vectors); err != nil {
		return nil, err
	}

	stats := &ExportStats{Documents: len(docs), Paragraphs: len(records)}
	if len(vectors) > 0 {
		stats.Dimension = len(vectors[0])
	}
	idx.logger.Info("dense export written", "dir", dir, "paragraphs", stats.Paragraphs, "backend", backend.Name())
	return stats, nil
}

// DefaultHints are site-specific queries added to every document's candidates.
var DefaultHints = []string{"iletişim", "work sayfası", "oyun", "bambi copilot", "bambi game", "workshops"}

var trash = regexp.MustCompile(`(?i)(cookie|©|\ball rights reserved\b|privacy|terms|javascript required|no description yet)`)

// PairOptions controls training pair export.
type PairOptions struct {
	NegPerPos     int
	MinLen        int
	MaxPairs      int
	MaxParagraphs int
	Hints         []string
}

// DefaultPairOptions returns the export defaults.
func DefaultPairOptions() PairOptions {
	return PairOptions{
		NegPerPos:     3,
		MinLen:        40,
		MaxPairs:      200,
		MaxParagraphs: 10,
		Hints:         DefaultHints,
	}
}

func (o PairOptions) normalize() PairOptions {
	d := DefaultPairOptions()
	if o.NegPerPos <= 0 {
		o.NegPerPos = d.NegPerPos
	}
	if o.MinLen <= 0 {
		o.MinLen = d.MinLen
	}
	if o.MaxPairs <= 0 {
		o.MaxPairs = d.MaxPairs
	}
	if o.MaxParagraphs <= 0 {
		o.MaxParagraphs = d.MaxParagraphs
	}
	if o.Hints == nil {
		o.Hints = d.Hints
	}
	return o
}

// Pair is one contrastive training example.
type Pair struct {
	Query     string   `json:"q"`
	Positive  string   `json:"pos"`
	Negatives []string `json:"neg"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
}

type negative struct {
	docID string
	text  string
}

// ExportPairs writes query/positive/negative pairs as JSON lines to w and
// returns how many were written. Negatives come from other documents and are
// taken round-robin from a shared pool so the output is reproducible.
func (idx *Indexer) ExportPairs(ctx context.Context, w io.Writer, opts PairOptions) (int, error) {
	opts = opts.normalize()

	docs, err := idx.store.ListDocuments(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return 0, types.ErrEmptyCorpus
	}
	stored, err := idx.store.ListParagraphs(ctx, documentIDs(docs))
	if err != nil {
		return 0, fmt.Errorf("failed to load paragraphs: %w", err)
	}

	texts := make(map[string][]string, len(docs))
	var pool []negative
	for _, doc := range docs {
		var all []string
		if paras := stored[doc.ID]; len(paras) > 0 {
			for _, p := range paras {
				all = append(all, p.Text)
			}
		} else {
			all = chunker.SplitParagraphs(doc.Text, idx.chunker.MaxLen())
		}
		for _, t := range all {
			if c := cleanText(t); utf8.RuneCountInString(c) > opts.MinLen {
				pool = append(pool, negative{docID: doc.ID, text: c})
			}
		}
		if len(all) > opts.MaxParagraphs {
			all = all[:opts.MaxParagraphs]
		}
		texts[doc.ID] = all
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	written, cursor := 0, 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		pos := positive(texts[doc.ID], opts.MinLen)
		if pos == "" {
			continue
		}
		for _, q := range candidateQueries(doc.Title, texts[doc.ID], opts.Hints) {
			var negs []string
			negs, cursor = takeNegatives(pool, cursor, doc.ID, opts.NegPerPos)
			if len(negs) == 0 {
				continue
			}
			pair := Pair{Query: q, Positive: pos, Negatives: negs, URL: doc.URL, Title: cleanText(doc.Title)}
			if err := enc.Encode(pair); err != nil {
				return written, fmt.Errorf("write pair: %w", err)
			}
			written++
			if written >= opts.MaxPairs {
				return written, nil
			}
		}
	}
	return written, nil
}

// cleanText collapses whitespace and removes boilerplate words.
func cleanText(s string) string {
	s = trash.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// positive picks the longest paragraph that is still long enough after cleaning.
func positive(paras []string, minLen int) string {
	best, bestLen := "", -1
	for _, p := range paras {
		c := cleanText(p)
		if utf8.RuneCountInString(c) < minLen {
			continue
		}
		if n := utf8.RuneCountInString(p); n > bestLen {
			best, bestLen = c, n
		}
	}
	return best
}

func candidateQueries(title string, paras []string, hints []string) []string {
	qs := make([]string, 0, 3+len(hints))
	if title != "" {
		qs = append(qs, title)
	}
	for i, p := range paras {
		if i == 2 {
			break
		}
		if utf8.RuneCountInString(p) > 40 {
			qs = append(qs, truncateRunes(p, 140))
		}
	}
	qs = append(qs, hints...)

	seen := make(map[string]bool, len(qs))
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		q = cleanText(q)
		key := strings.ToLower(q)
		if utf8.RuneCountInString(q) < 4 || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

// takeNegatives returns up to k pool entries from documents other than docID,
// starting at cursor, and the cursor to continue from.
func takeNegatives(pool []negative, cursor int, docID string, k int) ([]string, int) {
	if len(pool) == 0 {
		return nil, cursor
	}
	out := make([]string, 0, k)
	for scanned := 0; scanned < len(pool) && len(out) < k; scanned++ {
		n := pool[cursor%len(pool)]
		cursor++
		if n.docID != docID {
			out = append(out, n.text)
		}
	}
	return out, cursor % len(pool)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func documentIDs(docs []types.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}
