// Package ann provides nearest-neighbour indexes over paragraph embeddings.
//
// BruteForce is exact and serves as the reference behaviour. VPTree prunes
// the search with a vantage-point tree and returns the same neighbours for
// unit-length vectors. Both serialize to the same binary layout so an export
// written by one can be loaded by the other.
package ann

import (
	"fmt"
	"sort"
)

// Index defines a vector index with basic lifecycle methods.
type Index interface {
	// Build constructs the index from parallel ids and vectors.
	Build(ids []string, vectors [][]float32) error

	// Query returns up to k ids with their cosine similarity, most similar
	// first. k <= 0 returns every indexed vector.
	Query(query []float32, k int) (ids []string, scores []float64, err error)

	// Len returns the number of indexed vectors.
	Len() int

	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// Kind names an Index implementation.
type Kind string

const (
	KindBruteForce Kind = "bruteforce"
	KindVPTree     Kind = "vptree"
)

// New returns an empty index of the given kind.
func New(kind Kind) (Index, error) {
	switch kind {
	case KindBruteForce, "":
		return &BruteForce{}, nil
	case KindVPTree:
		return &VPTree{}, nil
	default:
		return nil, fmt.Errorf("unsupported ann index kind: %s", kind)
	}
}

func checkInput(ids []string, vectors [][]float32) (int, error) {
	if len(ids) != len(vectors) {
		return 0, fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	for j := range vectors {
		if len(vectors[j]) != dim {
			return 0, fmt.Errorf("inconsistent vector dims %d vs %d", len(vectors[j]), dim)
		}
	}
	return dim, nil
}

type hit struct {
	idx   int
	score float64
}

// topK orders hits by score desc then insertion order and keeps k of them.
func topK(hits []hit, ids []string, k int) ([]string, []float64) {
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].idx < hits[b].idx
	})
	if k <= 0 || k > len(hits) {
		k = len(hits)
	}
	outIDs := make([]string, k)
	outScores := make([]float64, k)
	for n := 0; n < k; n++ {
		outIDs[n] = ids[hits[n].idx]
		outScores[n] = hits[n].score
	}
	return outIDs, outScores
}
