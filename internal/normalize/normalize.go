// Package normalize provides the locale-insensitive string folding shared by
// every fuzzy comparison in the repo (artifact filename matching, geocode
// cache keys). All call sites go through Fold or Slug so the rules live in
// exactly one place.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold strips diacritics via Unicode decomposition, lowercases, and trims
// surrounding whitespace. "São Luís " becomes "sao luis".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Slug returns Fold with interior whitespace runs collapsed to single dashes,
// matching how generated artifact filenames join tokens.
func Slug(s string) string {
	return strings.Join(strings.Fields(Fold(s)), "-")
}
