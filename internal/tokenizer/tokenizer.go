// Package tokenizer turns raw text into lowercase word tokens for BM25
// scoring and snippet highlighting.
package tokenizer

import (
	"strings"
	"unicode"
)

// Language selects casing and word-character rules
type Language string

const (
	LangTurkish Language = "tr"
	LangEnglish Language = "en"
	LangAuto    Language = "auto"
)

// turkishMarkers are the letters whose presence makes auto-detection pick Turkish.
const turkishMarkers = "ıİşŞğĞçÇöÖüÜ"

// turkishExtra are letters always kept as word characters for Turkish text.
const turkishExtra = "çğıöşüâîû"

// Tokenizer splits text into tokens. The zero value is not usable; use New.
type Tokenizer struct {
	lang      Language
	stopwords bool
}

// Option configures a Tokenizer
type Option func(*Tokenizer)

// WithStopwords enables removal of common Turkish and English stopwords.
func WithStopwords(enabled bool) Option {
	return func(t *Tokenizer) {
		t.stopwords = enabled
	}
}

// New creates a tokenizer for the given language. Unknown values fall back to Turkish.
func New(lang Language, opts ...Option) *Tokenizer {
	switch lang {
	case LangTurkish, LangEnglish, LangAuto:
	default:
		lang = LangTurkish
	}
	t := &Tokenizer{lang: lang}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ParseLanguage maps a configuration string to a Language.
func ParseLanguage(s string) Language {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "english":
		return LangEnglish
	case "auto":
		return LangAuto
	default:
		return LangTurkish
	}
}

// Language returns the configured language.
func (t *Tokenizer) Language() Language {
	return t.lang
}

// Tokenize lowercases text, replaces every non-word run with a separator and
// returns the remaining words. Empty or blank input yields an empty slice.
func (t *Tokenizer) Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	lang := t.lang
	if lang == LangAuto {
		lang = Detect(text)
	}

	text = lower(text, lang)

	tokens := make([]string, 0, len(text)/6+1)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if t.stopwords && isStopword(tok) {
			return
		}
		tokens = append(tokens, tok)
	}

	for _, r := range text {
		if isWordRune(r, lang) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()

	return tokens
}

// Detect guesses the language of text from Turkish-specific letters.
func Detect(text string) Language {
	if strings.ContainsAny(text, turkishMarkers) {
		return LangTurkish
	}
	return LangEnglish
}

// lower applies language-aware lowercasing. Turkish maps I to dotless ı and
// İ to i; English uses the default Unicode mapping.
func lower(text string, lang Language) string {
	if lang == LangTurkish {
		return strings.ToLowerSpecial(unicode.TurkishCase, text)
	}
	return strings.ToLower(text)
}

func isWordRune(r rune, lang Language) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
		return true
	}
	// Combining marks stay attached to their letter (e.g. decomposed i̇)
	if unicode.Is(unicode.Mn, r) {
		return true
	}
	return lang == LangTurkish && strings.ContainsRune(turkishExtra, r)
}
