package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpus() [][]string {
	return [][]string{
		{"the", "pink", "skirt", "is", "a", "popular", "item", "in", "the", "shop"},
		{"contact", "us", "through", "the", "form", "for", "custom", "orders"},
	}
}

func TestBuild(t *testing.T) {
	m := Build(corpus())
	assert.Equal(t, 2, m.Len())

	empty := Build(nil)
	assert.Equal(t, 0, empty.Len())

	var nilModel *Model
	assert.Equal(t, 0, nilModel.Len())
}

func TestScores_RanksMatchingParagraph(t *testing.T) {
	m := Build(corpus())

	scores := m.Scores([]string{"pink", "skirt"})

	require.Len(t, scores, 2)
	assert.Greater(t, scores[0], 0.0)
	assert.Equal(t, 0.0, scores[1])
}

func TestScores_EmptyInputs(t *testing.T) {
	assert.Nil(t, Build(nil).Scores([]string{"pink"}))
	assert.Nil(t, Build(corpus()).Scores(nil))
	assert.Nil(t, Build(corpus()).Scores([]string{}))
}

func TestScores_UnknownTerm(t *testing.T) {
	scores := Build(corpus()).Scores([]string{"zebra"})
	assert.Equal(t, []float64{0, 0}, scores)
}

func TestScores_CommonTermStillPositive(t *testing.T) {
	m := Build(corpus())

	assert.Greater(t, m.IDF("the"), 0.0)
	scores := m.Scores([]string{"the"})
	assert.Greater(t, scores[0], 0.0)
	assert.Greater(t, scores[1], 0.0)
	assert.Greater(t, scores[0], scores[1], "term frequency 2 beats 1")
}

func TestScores_RareTermWeighsMore(t *testing.T) {
	m := Build([][]string{
		{"etek", "pembe"},
		{"etek", "mavi"},
		{"etek", "yeşil"},
	})
	assert.Greater(t, m.IDF("pembe"), m.IDF("etek"))
}

func TestScores_LengthNormalization(t *testing.T) {
	m := Build([][]string{
		{"kumaş", "a"},
		{"kumaş", "b", "c", "d", "e", "f", "g", "h"},
	})

	scores := m.Scores([]string{"kumaş"})
	assert.Greater(t, scores[0], scores[1], "shorter paragraph wins on equal tf")
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float64{2, 1, 0})
	assert.Equal(t, []float64{1, 0.5, 0}, got)

	for _, s := range Normalize(Build(corpus()).Scores([]string{"pink", "the"})) {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestNormalize_ZeroVectorUnmodified(t *testing.T) {
	zeros := []float64{0, 0, 0}
	assert.Equal(t, zeros, Normalize(zeros))
	assert.Nil(t, Normalize(nil))
}
