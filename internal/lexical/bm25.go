// Package lexical implements Okapi BM25 scoring over a tokenized paragraph corpus.
package lexical

import "math"

// BM25 parameters
const (
	K1 = 1.5
	B  = 0.75
)

// Model is an immutable BM25 index. Paragraphs are addressed by their
// position in the corpus passed to Build.
type Model struct {
	termFreqs []map[string]int
	docFreq   map[string]int
	docLens   []int
	avgDocLen float64
}

// Build indexes corpus, one token sequence per paragraph.
func Build(corpus [][]string) *Model {
	m := &Model{
		termFreqs: make([]map[string]int, len(corpus)),
		docFreq:   make(map[string]int),
		docLens:   make([]int, len(corpus)),
	}

	total := 0
	for i, tokens := range corpus {
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			m.docFreq[tok]++
		}
		m.termFreqs[i] = tf
		m.docLens[i] = len(tokens)
		total += len(tokens)
	}

	if len(corpus) > 0 {
		m.avgDocLen = float64(total) / float64(len(corpus))
	}
	return m
}

// Len returns the number of paragraphs indexed.
func (m *Model) Len() int {
	if m == nil {
		return 0
	}
	return len(m.docLens)
}

// IDF returns the inverse document frequency of term. It is always positive,
// so a term present in every paragraph still contributes.
func (m *Model) IDF(term string) float64 {
	n := float64(m.Len())
	df := float64(m.docFreq[term])
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Scores returns the raw BM25 score of query against every paragraph.
// An empty corpus or query yields nil, meaning no lexical signal.
func (m *Model) Scores(query []string) []float64 {
	if m.Len() == 0 || len(query) == 0 {
		return nil
	}

	scores := make([]float64, m.Len())
	for _, term := range query {
		if m.docFreq[term] == 0 {
			continue
		}
		idf := m.IDF(term)
		for i, tf := range m.termFreqs {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			norm := 1 - B
			if m.avgDocLen > 0 {
				norm += B * float64(m.docLens[i]) / m.avgDocLen
			}
			scores[i] += idf * f * (K1 + 1) / (f + K1*norm)
		}
	}
	return scores
}

// Normalize divides scores by their maximum so they lie in [0,1]. When the
// maximum is not positive the input is returned unmodified.
func Normalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}

	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	if max <= 0 {
		return scores
	}

	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = s / max
	}
	return out
}
