package tokenizer

var stopwords = map[string]struct{}{
	// Turkish
	"ve": {}, "ile": {}, "bir": {}, "bu": {}, "şu": {}, "da": {}, "de": {},
	"için": {}, "ama": {}, "gibi": {}, "çok": {}, "daha": {}, "ne": {},
	"mi": {}, "mı": {}, "mu": {}, "mü": {}, "ki": {}, "o": {}, "ya": {},
	"veya": {}, "her": {}, "en": {}, "olarak": {}, "olan": {},
	// English
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "for": {}, "is": {}, "are": {}, "was": {}, "it": {},
	"this": {}, "that": {}, "with": {}, "as": {}, "at": {}, "by": {},
	"be": {}, "from": {}, "us": {},
}

func isStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}
