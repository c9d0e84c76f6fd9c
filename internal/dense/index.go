package dense

import (
	"fmt"
	"strconv"

	"github.com/bambicim/copilot/internal/ann"
	"github.com/bambicim/copilot/pkg/types"
)

// Defaults for approximate search
const (
	DefaultANNMinCorpus = 2000
	DefaultANNTopN      = 200
)

// IndexOptions controls whether an approximate index is attached.
type IndexOptions struct {
	DisableANN bool
	MinCorpus  int // attach ANN only at or above this many paragraphs
	TopN       int // neighbours returned by ANN queries
}

// Index holds the unit vectors of one snapshot, addressed by paragraph position.
type Index struct {
	exact  *ann.BruteForce
	approx ann.Index
	topN   int
	n      int
}

// NewIndex indexes vectors; vectors[i] belongs to paragraph position i.
func NewIndex(vectors [][]float32, opts IndexOptions) (*Index, error) {
	ids := make([]string, len(vectors))
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}

	idx := &Index{exact: &ann.BruteForce{}, n: len(vectors)}
	if err := idx.exact.Build(ids, vectors); err != nil {
		return nil, fmt.Errorf("build dense index: %w", err)
	}

	minCorpus := opts.MinCorpus
	if minCorpus <= 0 {
		minCorpus = DefaultANNMinCorpus
	}
	if opts.DisableANN || len(vectors) < minCorpus {
		return idx, nil
	}

	tree := &ann.VPTree{}
	if err := tree.Build(ids, vectors); err != nil {
		return nil, fmt.Errorf("build ann index: %w", err)
	}
	idx.approx = tree
	idx.topN = opts.TopN
	if idx.topN <= 0 {
		idx.topN = DefaultANNTopN
	}
	return idx, nil
}

// Len returns the number of indexed paragraphs.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return x.n
}

// ANN reports whether queries use the approximate index.
func (x *Index) ANN() bool {
	return x != nil && x.approx != nil
}

// Scores returns the raw cosine similarity of query to each paragraph, most
// similar first. With ANN only the top-N are present; with exact search every
// paragraph with a non-zero vector is.
func (x *Index) Scores(query []float32) ([]types.ScoredParagraph, error) {
	if x.Len() == 0 || len(query) == 0 {
		return nil, nil
	}

	var (
		ids    []string
		scores []float64
		err    error
	)
	if x.approx != nil {
		ids, scores, err = x.approx.Query(query, x.topN)
	} else {
		ids, scores, err = x.exact.Query(query, 0)
	}
	if err != nil {
		return nil, err
	}

	out := make([]types.ScoredParagraph, len(ids))
	for i, id := range ids {
		pos, convErr := strconv.Atoi(id)
		if convErr != nil {
			return nil, fmt.Errorf("corrupt dense index id %q: %w", id, convErr)
		}
		out[i] = types.ScoredParagraph{Pos: pos, Score: scores[i]}
	}
	return out, nil
}

// Exact always scores every paragraph by brute force.
func (x *Index) Exact(query []float32) ([]types.ScoredParagraph, error) {
	if x.Len() == 0 {
		return nil, nil
	}
	saved := *x
	saved.approx = nil
	return saved.Scores(query)
}

// MinMax rescales scores to [0,1] in place. A constant set maps to 1 when
// the value is positive and to 0 otherwise.
func MinMax(scores []types.ScoredParagraph) []types.ScoredParagraph {
	if len(scores) == 0 {
		return scores
	}

	lo, hi := scores[0].Score, scores[0].Score
	for _, s := range scores[1:] {
		lo = min(lo, s.Score)
		hi = max(hi, s.Score)
	}

	span := hi - lo
	for i := range scores {
		switch {
		case span > 0:
			scores[i].Score = (scores[i].Score - lo) / span
		case hi > 0:
			scores[i].Score = 1
		default:
			scores[i].Score = 0
		}
	}
	return scores
}

// MarshalBinary serializes the paragraph vectors in the ann layout.
func (x *Index) MarshalBinary() ([]byte, error) {
	return x.exact.MarshalBinary()
}
