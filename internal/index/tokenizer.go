// Package index holds the in-memory search indexes derived from the catalog:
// a lexical token index over structured text fields and a vector index over
// item embeddings. Both are safe for concurrent readers with a single writer.
package index

import (
	"regexp"
	"strings"
)

// tokenRegex matches alphanumeric runs; everything else is treated as
// punctuation and discarded.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Tokenize normalizes text into lexical tokens: lowercase, punctuation
// stripped, tokens shorter than 2 characters dropped as noise.
//
// Ingestion and query tokenization MUST share this function. An asymmetry
// between the two silently degrades recall without any visible error.
func Tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(w)
		if len(lower) >= 2 {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}
