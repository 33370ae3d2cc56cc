// Package textnorm folds free text into a comparable form.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips diacritics, drops punctuation and collapses
// whitespace, so "É só isso!" and "e so isso" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(stripped) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Set is a collection of phrases matched after folding.
type Set map[string]struct{}

// NewSet folds every phrase into a Set.
func NewSet(phrases ...string) Set {
	s := make(Set, len(phrases))
	for _, p := range phrases {
		s[Fold(p)] = struct{}{}
	}
	return s
}

// Contains reports whether text folds to one of the phrases.
func (s Set) Contains(text string) bool {
	_, ok := s[Fold(text)]
	return ok
}
