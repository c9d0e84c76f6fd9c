package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/bambicim/copilot/pkg/types"
)

const (
	// DefaultMaxLen is the default upper bound of a chunk in runes
	DefaultMaxLen = 800

	// MinParagraphLen drops fragments shorter than this many runes
	MinParagraphLen = 40
)

// coarseBreak matches paragraph closers, line breaks and blank lines.
var coarseBreak = regexp.MustCompile(`(?i)(?:</p\s*>|<br\s*/?>|\n\s*\n)+`)

// Chunker creates paragraph chunks from document text
type Chunker struct {
	maxLen  int
	keepMin int
	keepMax int
}

// Option configures a Chunker
type Option func(*Chunker)

// WithMaxLen sets the maximum chunk length in runes. Non-positive values keep the default.
func WithMaxLen(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxLen = n
		}
	}
}

// WithKeepRange keeps only chunks whose rune length lies in [min, max].
// A zero max means no upper bound.
func WithKeepRange(min, max int) Option {
	return func(c *Chunker) {
		c.keepMin = min
		c.keepMax = max
	}
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{maxLen: DefaultMaxLen}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxLen returns the configured maximum chunk length.
func (c *Chunker) MaxLen() int {
	return c.maxLen
}

// ChunkDocument splits a document into ordered paragraphs with deterministic IDs.
func (c *Chunker) ChunkDocument(doc types.Document) []types.Paragraph {
	parts := SplitParagraphs(doc.Text, c.maxLen)

	paragraphs := make([]types.Paragraph, 0, len(parts))
	for _, text := range parts {
		if !c.keep(text) {
			continue
		}
		paragraphs = append(paragraphs, types.NewParagraph(doc, len(paragraphs), text))
	}
	return paragraphs
}

func (c *Chunker) keep(text string) bool {
	n := utf8.RuneCountInString(text)
	if n < c.keepMin {
		return false
	}
	return c.keepMax <= 0 || n <= c.keepMax
}

// SplitParagraphs splits HTML or plain text into clean paragraph chunks of at
// most maxLen runes each.
func SplitParagraphs(text string, maxLen int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}

	var out []string
	for _, part := range coarseBreak.Split(text, -1) {
		clean := collapseSpace(StripTags(part))
		if utf8.RuneCountInString(clean) < MinParagraphLen {
			continue
		}
		out = append(out, splitLong(clean, maxLen)...)
	}
	return out
}

// splitLong cuts s into chunks of at most maxLen runes, preferring the
// rightmost period, then the rightmost space before the limit.
func splitLong(s string, maxLen int) []string {
	runes := []rune(s)
	var out []string

	for len(runes) > maxLen {
		cut := lastIndex(runes[:maxLen], '.')
		if cut <= 0 {
			cut = lastIndex(runes[:maxLen], ' ')
		}

		var head []rune
		if cut <= 0 {
			head, runes = runes[:maxLen], runes[maxLen:]
		} else {
			head, runes = runes[:cut+1], runes[cut+1:]
		}

		if chunk := strings.TrimSpace(string(head)); chunk != "" {
			out = append(out, chunk)
		}
		runes = []rune(strings.TrimSpace(string(runes)))
	}

	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

func lastIndex(runes []rune, target rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == target {
			return i
		}
	}
	return -1
}

// StripTags removes markup from s and returns its text content with entities
// decoded. Script and style bodies are dropped.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way keep what was read
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

func isRawTextTag(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
