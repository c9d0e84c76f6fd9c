package fusion

import (
	"math"
	"sort"

	"github.com/bambicim/copilot/pkg/types"
)

// Defaults
const (
	DefaultLexicalWeight = 0.45
	DefaultDenseWeight   = 0.55
	DefaultRRFK          = 60
	DefaultTopK          = 6

	// minCandidates is the smallest per-scorer candidate list used by RRF.
	minCandidates = 12
)

// Options configure a fusion run.
type Options struct {
	Mode          Mode // already downgraded by Effective
	Strategy      Strategy
	LexicalWeight float64
	DenseWeight   float64
	RRFK          int
}

// Hit is a ranked document represented by its best paragraph.
type Hit struct {
	Pos   int // position of the representative paragraph
	DocID string
	Score float64
}

// Rank fuses the signals and returns the top k documents. lexical and dense
// must already be normalized to [0,1]; a nil signal is absent. paragraphs is
// the snapshot in extraction order and ScoredParagraph.Pos indexes into it.
func Rank(paragraphs []types.Paragraph, lexical, dense []types.ScoredParagraph, k int, opts Options) []Hit {
	if k <= 0 || len(paragraphs) == 0 {
		return nil
	}

	switch opts.Mode {
	case ModeLexical:
		dense = nil
	case ModeDense:
		lexical = nil
	case ModeHybrid:
	default:
		return nil
	}
	if lexical == nil && dense == nil {
		return nil
	}

	var fused []types.ScoredParagraph
	if opts.Strategy == StrategyRRF {
		fused = rrf(paragraphs, lexical, dense, k, opts.RRFK)
	} else {
		fused = weighted(len(paragraphs), lexical, dense, opts.LexicalWeight, opts.DenseWeight)
	}

	hits := GroupByDocument(paragraphs, fused, k)
	if opts.Strategy != StrategyRRF {
		for i := range hits {
			hits[i].Score = math.Round(hits[i].Score*1000) / 1000
		}
	}
	return hits
}

// weighted blends both signals per paragraph. With one signal present it is
// used alone. Paragraphs missing from a present signal count as zero.
func weighted(n int, lexical, dense []types.ScoredParagraph, wLex, wDense float64) []types.ScoredParagraph {
	if !finiteNonNegative(wLex) || !finiteNonNegative(wDense) || wLex+wDense == 0 {
		wLex, wDense = DefaultLexicalWeight, DefaultDenseWeight
	}
	switch {
	case dense == nil:
		wLex, wDense = 1, 0
	case lexical == nil:
		wLex, wDense = 0, 1
	}

	final := make([]float64, n)
	for _, s := range lexical {
		if s.Pos >= 0 && s.Pos < n {
			final[s.Pos] += wLex * s.Score
		}
	}
	for _, s := range dense {
		if s.Pos >= 0 && s.Pos < n {
			final[s.Pos] += wDense * s.Score
		}
	}

	out := make([]types.ScoredParagraph, 0, n)
	for pos, score := range final {
		if score > 0 {
			out = append(out, types.ScoredParagraph{Pos: pos, Score: score})
		}
	}
	return out
}

func finiteNonNegative(w float64) bool {
	return w >= 0 && !math.IsInf(w, 0)
}

// rrf sums 1/(rrfK + rank + 1) over each scorer's ranked candidates. Candidates
// are identified by content, so duplicate paragraphs from either list merge.
func rrf(paragraphs []types.Paragraph, lexical, dense []types.ScoredParagraph, k, rrfK int) []types.ScoredParagraph {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}
	limit := max(4*k, minCandidates)

	scores := make(map[string]float64)
	repr := make(map[string]int) // content key -> earliest paragraph position

	for _, list := range [][]types.ScoredParagraph{lexical, dense} {
		seen := make(map[string]bool)
		rank := 0
		for _, s := range RankList(list) {
			if rank >= limit {
				break
			}
			if s.Pos < 0 || s.Pos >= len(paragraphs) {
				continue
			}
			key := paragraphs[s.Pos].ContentKey()
			if seen[key] {
				continue
			}
			seen[key] = true

			scores[key] += 1.0 / float64(rrfK+rank+1)
			if p, ok := repr[key]; !ok || s.Pos < p {
				repr[key] = s.Pos
			}
			rank++
		}
	}

	out := make([]types.ScoredParagraph, 0, len(scores))
	for key, score := range scores {
		out = append(out, types.ScoredParagraph{Pos: repr[key], Score: score})
	}
	return out
}

// RankList returns the positive-scoring entries of list ordered by score desc,
// then extraction order.
func RankList(list []types.ScoredParagraph) []types.ScoredParagraph {
	out := make([]types.ScoredParagraph, 0, len(list))
	for _, s := range list {
		if s.Score > 0 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Pos < out[b].Pos
	})
	return out
}

// GroupByDocument keeps the best paragraph of every document and returns the
// top k documents by that score. Ties go to the earlier paragraph.
func GroupByDocument(paragraphs []types.Paragraph, fused []types.ScoredParagraph, k int) []Hit {
	if k <= 0 {
		return nil
	}

	best := make(map[string]Hit)
	for _, s := range fused {
		if s.Pos < 0 || s.Pos >= len(paragraphs) {
			continue
		}
		docID := paragraphs[s.Pos].DocID
		cur, ok := best[docID]
		if !ok || s.Score > cur.Score || (s.Score == cur.Score && s.Pos < cur.Pos) {
			best[docID] = Hit{Pos: s.Pos, DocID: docID, Score: s.Score}
		}
	}

	hits := make([]Hit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Pos < hits[b].Pos
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
