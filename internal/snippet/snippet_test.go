package snippet

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestHighlight_Empty(t *testing.T) {
	assert.Equal(t, "", Highlight("", []string{"pink"}, 20))
}

func TestHighlight_NoMatchShortText(t *testing.T) {
	text := "Contact us through the form for custom orders."
	assert.Equal(t, text, Highlight(text, []string{"zebra"}, 210))
}

func TestHighlight_NoMatchLongText(t *testing.T) {
	text := strings.Repeat("abcde ", 10)
	got := Highlight(text, nil, 12)
	assert.Equal(t, "abcde abcde "+Ellipsis, got)
}

func TestHighlight_CentersOnMatch(t *testing.T) {
	text := strings.Repeat("x", 100) + " pink skirt " + strings.Repeat("y", 100)

	got := Highlight(text, []string{"pink", "skirt"}, 40)

	assert.True(t, strings.HasPrefix(got, Ellipsis+" "))
	assert.True(t, strings.HasSuffix(got, " "+Ellipsis))
	assert.Contains(t, got, "pink skirt")
}

func TestHighlight_ShortTextNoEllipsis(t *testing.T) {
	text := "The pink skirt is a popular item in the shop."
	assert.Equal(t, text, Highlight(text, []string{"pink", "skirt"}, 210))
}

func TestHighlight_CaseInsensitive(t *testing.T) {
	pos, n := FirstMatch([]rune("Our PINK Skirt"), []string{"pink"})
	assert.Equal(t, 4, pos)
	assert.Equal(t, 4, n)

	pos, _ = FirstMatch([]rune("IŞIK tasarımı"), []string{"ışık"})
	assert.Equal(t, 0, pos)

	pos, _ = FirstMatch([]rune("İstanbul atölyesi"), []string{"istanbul"})
	assert.Equal(t, 0, pos)
}

func TestFirstMatch_EarliestWins(t *testing.T) {
	pos, n := FirstMatch([]rune("a skirt and a pinkish dress"), []string{"pinkish", "skirt"})
	assert.Equal(t, 2, pos)
	assert.Equal(t, 5, n)
}

func TestFirstMatch_LongestAtSamePosition(t *testing.T) {
	pos, n := FirstMatch([]rune("pinkish skirt"), []string{"pink", "pinkish"})
	assert.Equal(t, 0, pos)
	assert.Equal(t, 7, n)
}

func TestFirstMatch_NoTokens(t *testing.T) {
	pos, _ := FirstMatch([]rune("anything"), []string{"", ""})
	assert.Equal(t, -1, pos)
}

func TestHighlight_Containment(t *testing.T) {
	text := strings.Repeat("Kumaş seçimi ve renk paleti için atölyeye uğrayın. ", 12)
	width := 50
	tokens := []string{"atölyeye", "renk"}

	got := Highlight(text, tokens, width)

	marker := utf8.RuneCountInString(" " + Ellipsis)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), width+2*marker)

	inner := strings.TrimSuffix(strings.TrimPrefix(got, Ellipsis+" "), " "+Ellipsis)
	assert.Contains(t, text, inner)
}

func TestMark(t *testing.T) {
	got := Mark("The Pink skirt, pink!", []string{"pink"}, "**", "**")
	assert.Equal(t, "The **Pink** skirt, **pink**!", got)

	assert.Equal(t, "plain", Mark("plain", nil, "<", ">"))
}
