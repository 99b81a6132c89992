// Package tokenizer splits raw document text into word tokens and normalises
// tokens into index terms. A token is a maximal run of letters, digits and
// underscores; every other rune is a separator. Tokens keep their original
// case; Normalize lower-cases them into terms.
package tokenizer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsWordRune reports whether r belongs to a token.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Tokens returns a lazy sequence over the tokens of text. The sequence can be
// ranged over any number of times.
func Tokens(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := -1
		for i := 0; i < len(text); {
			r, size := utf8.DecodeRuneInString(text[i:])
			if IsWordRune(r) {
				if start < 0 {
					start = i
				}
			} else if start >= 0 {
				if !yield(text[start:i]) {
					return
				}
				start = -1
			}
			i += size
		}
		if start >= 0 {
			yield(text[start:])
		}
	}
}

// Tokenize collects Tokens(text) into a slice.
func Tokenize(text string) []string {
	tokens := make([]string, 0, len(text)/6)
	for tok := range Tokens(text) {
		tokens = append(tokens, tok)
	}
	return tokens
}

// Normalize maps a token to its index term.
func Normalize(token string) string {
	return strings.ToLower(token)
}

// Terms tokenizes text and normalises every token. Used to turn a query
// string into lookup keys.
func Terms(text string) []string {
	terms := Tokenize(text)
	for i, tok := range terms {
		terms[i] = Normalize(tok)
	}
	return terms
}
