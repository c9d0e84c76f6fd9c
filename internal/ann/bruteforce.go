package ann

import (
	"fmt"
	"math"

	"github.com/viant/vec/search"
)

// BruteForce scores every vector against the query by cosine similarity.
type BruteForce struct {
	ids  []string
	vecs [][]float32
	mags []float32
	dim  int
}

// Build loads ids and vectors and precomputes magnitudes.
func (b *BruteForce) Build(ids []string, vectors [][]float32) error {
	dim, err := checkInput(ids, vectors)
	if err != nil {
		return fmt.Errorf("bruteforce: %w", err)
	}

	mags := make([]float32, len(vectors))
	for j := range vectors {
		mags[j] = search.Float32s(vectors[j]).Magnitude()
	}
	b.ids = append([]string(nil), ids...)
	b.vecs = append([][]float32(nil), vectors...)
	b.mags = mags
	b.dim = dim
	return nil
}

// Query returns the top-k vectors by cosine similarity.
func (b *BruteForce) Query(query []float32, k int) ([]string, []float64, error) {
	if b.dim == 0 || len(b.vecs) == 0 {
		return nil, nil, nil
	}
	if len(query) != b.dim {
		return nil, nil, fmt.Errorf("bruteforce: query dim %d != index dim %d", len(query), b.dim)
	}
	qv := search.Float32s(query)
	if qv.Magnitude() == 0 {
		return nil, nil, nil
	}

	hits := make([]hit, 0, len(b.vecs))
	for j := range b.vecs {
		if b.mags[j] == 0 {
			continue
		}
		s := 1 - float64(qv.CosineDistance(b.vecs[j]))
		if math.IsNaN(s) {
			continue
		}
		hits = append(hits, hit{idx: j, score: s})
	}

	ids, scores := topK(hits, b.ids, k)
	return ids, scores, nil
}

// Len returns the number of indexed vectors.
func (b *BruteForce) Len() int {
	return len(b.ids)
}

// MarshalBinary serializes the index.
func (b *BruteForce) MarshalBinary() ([]byte, error) {
	return encode(b.dim, b.ids, b.vecs), nil
}

// UnmarshalBinary restores the index from bytes.
func (b *BruteForce) UnmarshalBinary(data []byte) error {
	ids, vecs, err := decode(data)
	if err != nil {
		return err
	}
	return b.Build(ids, vecs)
}
