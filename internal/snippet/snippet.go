// Package snippet extracts a bounded display window around the best query
// match in a paragraph.
package snippet

import (
	"strings"
	"unicode"
)

// DefaultWidth is the default window size in runes.
const DefaultWidth = 210

// Ellipsis marks text cut from either side of a snippet.
const Ellipsis = "…"

// Highlight returns a window of at most width runes of text framing the
// earliest occurrence of any query token. Among tokens that match at the same
// position the longest wins. Without a match the head of text is returned.
func Highlight(text string, tokens []string, width int) string {
	if text == "" {
		return ""
	}
	if width <= 0 {
		width = DefaultWidth
	}

	runes := []rune(text)
	pos, _ := FirstMatch(runes, tokens)
	if pos < 0 {
		if len(runes) <= width {
			return text
		}
		return strings.TrimSpace(string(runes[:width])) + " " + Ellipsis
	}

	start := pos - width/2
	if start > len(runes)-width {
		start = len(runes) - width
	}
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(runes) {
		end = len(runes)
	}

	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = Ellipsis + " " + out
	}
	if end < len(runes) {
		out += " " + Ellipsis
	}
	return out
}

// FirstMatch returns the rune offset and length of the earliest token match
// in text, or -1 when no token occurs.
func FirstMatch(text []rune, tokens []string) (pos, length int) {
	needles := make([][]rune, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			needles = append(needles, []rune(t))
		}
	}
	if len(needles) == 0 {
		return -1, 0
	}

	for i := range text {
		best := 0
		for _, n := range needles {
			if len(n) > best && hasPrefixFold(text[i:], n) {
				best = len(n)
			}
		}
		if best > 0 {
			return i, best
		}
	}
	return -1, 0
}

// Mark wraps every token occurrence in s with open and close.
func Mark(s string, tokens []string, open, close string) string {
	runes := []rune(s)
	var b strings.Builder
	for i := 0; i < len(runes); {
		pos, n := FirstMatch(runes[i:], tokens)
		if pos < 0 {
			b.WriteString(string(runes[i:]))
			break
		}
		b.WriteString(string(runes[i : i+pos]))
		b.WriteString(open)
		b.WriteString(string(runes[i+pos : i+pos+n]))
		b.WriteString(close)
		i += pos + n
	}
	return b.String()
}

func hasPrefixFold(text, token []rune) bool {
	if len(text) < len(token) {
		return false
	}
	for i, r := range token {
		if !foldEqual(text[i], r) {
			return false
		}
	}
	return true
}

// foldEqual compares a text rune with an already lowercased token rune.
// Capital I matches both the dotted and the dotless lowercase forms so that
// Turkish and English tokens highlight alike.
func foldEqual(textRune, tokenRune rune) bool {
	if textRune == 'I' && tokenRune == 'ı' {
		return true
	}
	return unicode.ToLower(textRune) == tokenRune
}
