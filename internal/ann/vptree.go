package ann

import (
	"fmt"
	"math"
	"sort"

	"github.com/viant/vec/search"
)

// VPTree is a vantage-point tree over unit vectors. Euclidean distance between
// unit vectors is a metric that orders neighbours exactly like cosine
// similarity (cos = 1 - d²/2), so triangle-inequality pruning stays sound.
type VPTree struct {
	ids   []string
	vecs  [][]float32 // as given, for serialization
	units [][]float32 // normalized copies used for distance
	dim   int
	root  *vpNode
}

type vpNode struct {
	idx   int
	thr   float32
	left  *vpNode // distance <= thr
	right *vpNode
}

// Build constructs the tree. The last point of every partition is the
// vantage point, which keeps the structure deterministic.
func (t *VPTree) Build(ids []string, vectors [][]float32) error {
	dim, err := checkInput(ids, vectors)
	if err != nil {
		return fmt.Errorf("vptree: %w", err)
	}

	t.ids = append([]string(nil), ids...)
	t.vecs = append([][]float32(nil), vectors...)
	t.units = make([][]float32, len(vectors))
	for j, v := range vectors {
		t.units[j] = unit(v)
	}
	t.dim = dim
	t.root = nil

	idxs := make([]int, 0, len(vectors))
	for j := range t.units {
		if t.units[j] != nil {
			idxs = append(idxs, j)
		}
	}
	t.root = t.build(idxs)
	return nil
}

func (t *VPTree) build(idxs []int) *vpNode {
	if len(idxs) == 0 {
		return nil
	}
	vp := idxs[len(idxs)-1]
	rest := idxs[:len(idxs)-1]
	if len(rest) == 0 {
		return &vpNode{idx: vp}
	}

	dists := make([]float32, len(rest))
	for k, j := range rest {
		dists[k] = t.distance(t.units[vp], j)
	}
	order := make([]int, len(rest))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool { return dists[order[a]] < dists[order[b]] })

	mid := len(order) / 2
	left := make([]int, 0, mid+1)
	right := make([]int, 0, len(order)-mid-1)
	for rank, k := range order {
		if rank <= mid {
			left = append(left, rest[k])
		} else {
			right = append(right, rest[k])
		}
	}
	// keep partitions in insertion order so vantage choice is stable
	sort.Ints(left)
	sort.Ints(right)

	return &vpNode{
		idx:   vp,
		thr:   dists[order[mid]],
		left:  t.build(left),
		right: t.build(right),
	}
}

func (t *VPTree) distance(q []float32, j int) float32 {
	return search.Float32s(q).EuclideanDistance(t.units[j])
}

// Query returns up to k nearest vectors with their cosine similarity.
func (t *VPTree) Query(query []float32, k int) ([]string, []float64, error) {
	if t.dim == 0 || t.root == nil {
		return nil, nil, nil
	}
	if len(query) != t.dim {
		return nil, nil, fmt.Errorf("vptree: query dim %d != index dim %d", len(query), t.dim)
	}
	q := unit(query)
	if q == nil {
		return nil, nil, nil
	}
	if k <= 0 || k > len(t.ids) {
		k = len(t.ids)
	}

	type cand struct {
		idx  int
		dist float32
	}
	best := make([]cand, 0, k)
	tau := float32(math.Inf(1))

	// worst keeps tau equal to the largest distance among the k best so far
	worst := func() int {
		w := 0
		for i := 1; i < len(best); i++ {
			if best[i].dist > best[w].dist || (best[i].dist == best[w].dist && best[i].idx > best[w].idx) {
				w = i
			}
		}
		return w
	}

	var visit func(n *vpNode)
	visit = func(n *vpNode) {
		if n == nil {
			return
		}
		d := t.distance(q, n.idx)
		switch {
		case len(best) < k:
			best = append(best, cand{idx: n.idx, dist: d})
			if len(best) == k {
				tau = best[worst()].dist
			}
		case d < tau:
			best[worst()] = cand{idx: n.idx, dist: d}
			tau = best[worst()].dist
		}

		if d <= n.thr {
			if d-tau <= n.thr {
				visit(n.left)
			}
			if d+tau >= n.thr {
				visit(n.right)
			}
		} else {
			if d+tau >= n.thr {
				visit(n.right)
			}
			if d-tau <= n.thr {
				visit(n.left)
			}
		}
	}
	visit(t.root)

	hits := make([]hit, len(best))
	for i, c := range best {
		d := float64(c.dist)
		hits[i] = hit{idx: c.idx, score: 1 - d*d/2}
	}
	ids, scores := topK(hits, t.ids, k)
	return ids, scores, nil
}

// Len returns the number of indexed vectors.
func (t *VPTree) Len() int {
	return len(t.ids)
}

// MarshalBinary uses the brute-force layout; the tree is rebuilt on load.
func (t *VPTree) MarshalBinary() ([]byte, error) {
	return encode(t.dim, t.ids, t.vecs), nil
}

// UnmarshalBinary restores the tree from bytes.
func (t *VPTree) UnmarshalBinary(data []byte) error {
	ids, vecs, err := decode(data)
	if err != nil {
		return err
	}
	return t.Build(ids, vecs)
}

// unit returns a normalized copy of v, or nil for the zero vector.
func unit(v []float32) []float32 {
	m := search.Float32s(v).Magnitude()
	if m == 0 || math.IsNaN(float64(m)) {
		return nil
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f / m
	}
	return out
}
