package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bambicim/copilot/pkg/types"
)

const longSentence = "Bambicim helps you design your own clothes with a few clicks."

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, DefaultMaxLen, c.MaxLen())

	c = New(WithMaxLen(-3))
	assert.Equal(t, DefaultMaxLen, c.MaxLen(), "non-positive max keeps default")

	c = New(WithMaxLen(120))
	assert.Equal(t, 120, c.MaxLen())
}

func TestSplitParagraphs_HTML(t *testing.T) {
	text := "<p>" + longSentence + "</p><p>short</p><p>The pink skirt is available in every size this season.</p>"

	parts := SplitParagraphs(text, 800)

	require.Len(t, parts, 2)
	assert.Equal(t, longSentence, parts[0])
	assert.Equal(t, "The pink skirt is available in every size this season.", parts[1])
}

func TestSplitParagraphs_BreaksAndBlankLines(t *testing.T) {
	text := longSentence + "<br/>" + strings.ToUpper(longSentence) + "\n\n  \n" + strings.ToLower(longSentence)

	parts := SplitParagraphs(text, 800)

	require.Len(t, parts, 3)
	assert.Equal(t, strings.ToUpper(longSentence), parts[1])
}

func TestSplitParagraphs_EmptyInput(t *testing.T) {
	assert.Empty(t, SplitParagraphs("", 800))
	assert.Empty(t, SplitParagraphs("   \n\n ", 800))
	assert.Empty(t, SplitParagraphs("<p>tiny</p>", 800))
}

func TestSplitParagraphs_CollapsesWhitespaceAndEntities(t *testing.T) {
	text := "<div>\n  Fabric   &amp; colour\tchoices are\n saved on your <b>account</b> page automatically.</div>"

	parts := SplitParagraphs(text, 800)

	require.Len(t, parts, 1)
	assert.Equal(t, "Fabric & colour choices are saved on your account page automatically.", parts[0])
}

func TestSplitParagraphs_DropsScriptAndStyle(t *testing.T) {
	text := `<style>.x{color:red}</style><script>var a = "not content at all, really";</script>` +
		"<span>" + longSentence + "</span>"

	parts := SplitParagraphs(text, 800)

	require.Len(t, parts, 1)
	assert.Equal(t, longSentence, parts[0])
}

func TestSplitParagraphs_CutsAtPeriod(t *testing.T) {
	text := strings.Repeat(longSentence+" ", 5)

	parts := SplitParagraphs(text, 130)

	require.NotEmpty(t, parts)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 130)
	}
	assert.True(t, strings.HasSuffix(parts[0], "."), "first chunk should end on a sentence boundary: %q", parts[0])
}

func TestSplitParagraphs_CutsAtSpaceWithoutPeriod(t *testing.T) {
	text := strings.Repeat("kumaş seçimi ", 20)

	parts := SplitParagraphs(text, 50)

	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 50)
		assert.False(t, strings.HasPrefix(p, " "))
		assert.False(t, strings.HasSuffix(p, " "))
	}
}

func TestSplitParagraphs_HardCut(t *testing.T) {
	text := strings.Repeat("ş", 130)

	parts := SplitParagraphs(text, 50)

	require.Len(t, parts, 3)
	assert.Equal(t, 50, utf8.RuneCountInString(parts[0]))
	assert.Equal(t, 50, utf8.RuneCountInString(parts[1]))
	assert.Equal(t, 30, utf8.RuneCountInString(parts[2]), "tail is kept even when short")
}

func TestSplitParagraphs_Deterministic(t *testing.T) {
	text := strings.Repeat("<p>"+longSentence+"</p>", 10)
	assert.Equal(t, SplitParagraphs(text, 100), SplitParagraphs(text, 100))
}

func TestChunkDocument(t *testing.T) {
	doc := types.Document{
		ID:    "page-1",
		Kind:  types.KindPage,
		Title: "About",
		URL:   "/about",
		Text:  "<p>" + longSentence + "</p><p>" + strings.ToUpper(longSentence) + "</p>",
	}

	paragraphs := New().ChunkDocument(doc)

	require.Len(t, paragraphs, 2)
	for i, p := range paragraphs {
		assert.Equal(t, i, p.Order)
		assert.Equal(t, "page-1", p.DocID)
		assert.Equal(t, "About", p.Title)
		assert.Equal(t, "/about", p.URL)
		assert.Equal(t, types.ParagraphID("page-1", i), p.ID)
	}
	assert.NotEqual(t, paragraphs[0].ID, paragraphs[1].ID)
}

func TestChunkDocument_KeepRange(t *testing.T) {
	long := strings.Repeat("a", 120)
	doc := types.Document{
		ID:   "note-7",
		Text: longSentence + "\n\n" + long,
	}

	paragraphs := New(WithKeepRange(50, 100)).ChunkDocument(doc)

	require.Len(t, paragraphs, 1)
	assert.Equal(t, longSentence, paragraphs[0].Text)
	assert.Equal(t, 0, paragraphs[0].Order, "orders stay contiguous after filtering")
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "plain", StripTags("plain"))
	assert.Equal(t, " a  b ", StripTags("<i>a</i><u>b</u>"))
	assert.Equal(t, "x < y", StripTags("x &lt; y"))
}
