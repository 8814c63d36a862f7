// Package tokenizer turns raw document bytes into index terms. Input is NFC
// normalized and lower-cased, then split into runs of letters, digits, and the
// in-word punctuation '-', '\'' and '&'. Short tokens are dropped; stop-word
// removal and suffix stemming are opt-in.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxTermBytes is the longest term the index format can store.
const MaxTermBytes = 1<<16 - 1

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Options selects the normalization pipeline.
type Options struct {
	// MinLength is the minimum token length in runes kept by Normalize.
	// Values below 1 are treated as 1.
	MinLength int
	StopWords bool
	Stem      bool
}

// Normalizer is deterministic and safe for concurrent use.
type Normalizer struct {
	opts Options
}

func New(opts Options) *Normalizer {
	if opts.MinLength < 1 {
		opts.MinLength = 1
	}
	return &Normalizer{opts: opts}
}

// Normalize returns the terms of data in document order. A term appears once
// per occurrence.
func (n *Normalizer) Normalize(data []byte) []string {
	text := norm.NFC.String(string(data))
	words := split(text)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < n.opts.MinLength {
			continue
		}
		if n.opts.StopWords {
			if _, isStop := stopWords[word]; isStop {
				continue
			}
		}
		if n.opts.Stem {
			word = stem(word)
			if word == "" {
				continue
			}
		}
		terms = append(terms, word)
	}
	return terms
}

// NormalizeTerm canonicalizes a single query token the way Normalize treats
// document text, without the length and stop-word filters: a filtered term was
// never indexed, so looking it up simply finds nothing. Returns "" when the
// token holds no term characters. ok is false when the token splits into more
// than one term, as "cat,dog" does.
func (n *Normalizer) NormalizeTerm(token string) (term string, ok bool) {
	words := split(norm.NFC.String(token))
	switch len(words) {
	case 0:
		return "", true
	case 1:
	default:
		return "", false
	}
	if n.opts.Stem {
		return stem(words[0]), true
	}
	return words[0], true
}

// IsTermRune reports whether r can be part of a term.
func IsTermRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\'' || r == '&'
}

func split(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == utf8.RuneError || !IsTermRune(r)
	})
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}
