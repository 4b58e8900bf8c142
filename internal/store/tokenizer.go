package store

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercased terms. A term is a maximal run
// of letters and digits; everything else is a separator. No stemming
// and no stop word removal, so indexing and query tokenization agree
// exactly and scores stay reproducible.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()

	return tokens
}

// UniqueTerms returns the distinct tokens of a query in first-seen order.
func UniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	unique := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}
	return unique
}
