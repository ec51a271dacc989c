// Package tokenizer splits text fields into positioned terms for the
// indexer. Analysis is deliberately minimal: lower-casing and splitting on
// non-alphanumeric boundaries. Every token keeps its ordinal position so that
// span queries can reason about distances.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lower-cased Tokens with consecutive positions
// starting at zero.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
	}
	return tokens
}
