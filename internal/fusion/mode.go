// Package fusion merges lexical and dense paragraph scores into a ranked list
// of documents.
package fusion

import "strings"

// Mode selects which scorers contribute to a search.
type Mode string

const (
	ModeLexical Mode = "lexical"
	ModeDense   Mode = "dense"
	ModeHybrid  Mode = "hybrid"
	// ModeNone means no scorer can contribute; the result is empty.
	ModeNone Mode = "none"
)

// ParseMode maps a configuration value to a Mode. bm25 and keyword are
// aliases of lexical, vector of dense. Unknown values select hybrid.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lexical", "bm25", "keyword":
		return ModeLexical
	case "dense", "vector":
		return ModeDense
	default:
		return ModeHybrid
	}
}

// Strategy selects how two signals are combined.
type Strategy string

const (
	StrategyWeighted Strategy = "weighted"
	StrategyRRF      Strategy = "rrf"
)

// ParseStrategy maps a configuration value to a Strategy, defaulting to weighted.
func ParseStrategy(s string) Strategy {
	if strings.ToLower(strings.TrimSpace(s)) == string(StrategyRRF) {
		return StrategyRRF
	}
	return StrategyWeighted
}

// Effective downgrades the requested mode to what the available signals allow.
// Hybrid falls back to whichever signal exists; dense falls back to lexical.
// Lexical never borrows the dense signal, so a lexical search is unaffected by
// the embedding backend.
func Effective(requested Mode, lexical, dense bool) Mode {
	switch requested {
	case ModeLexical:
		if lexical {
			return ModeLexical
		}
	case ModeDense:
		if dense {
			return ModeDense
		}
		if lexical {
			return ModeLexical
		}
	default:
		switch {
		case lexical && dense:
			return ModeHybrid
		case lexical:
			return ModeLexical
		case dense:
			return ModeDense
		}
	}
	return ModeNone
}
