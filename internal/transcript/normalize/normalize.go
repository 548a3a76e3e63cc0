// Package normalize canonicalises free-form text so that transcripts and
// catalog aliases can be compared token by token.
//
// Normalisation folds case, strips diacritics (NFD decomposition, removal of
// non-spacing marks, NFC recomposition), turns word separators into spaces,
// drops all other punctuation and symbols, collapses whitespace, and trims.
// The result contains only lower-case letters, digits and single spaces.
//
// String is pure, total and idempotent: String(String(s)) == String(s).
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// String returns the normalized form of raw. The empty string and strings
// without letters or digits normalize to "".
func String(raw string) string {
	if raw == "" {
		return ""
	}

	// transform.Chain is stateful, so a fresh chain is built per call.
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	stripped, _, err := transform.String(t, cases.Fold().String(raw))
	if err != nil {
		stripped = raw
	}

	var b strings.Builder
	b.Grow(len(stripped))
	pendingSpace := false
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		case isSeparator(r):
			pendingSpace = true
		}
	}
	return b.String()
}

// Tokens returns the words of the normalized form of raw. It returns nil for
// input that normalizes to "".
func Tokens(raw string) []string {
	s := String(raw)
	if s == "" {
		return nil
	}
	return strings.Split(s, " ")
}

// isSeparator reports whether r splits words. Apostrophes and other
// punctuation are not separators: "Cote d'Ivoire" becomes "cote divoire".
func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '-', '/', '_', '&', '+', ',', '.', ';', ':', '!', '?', '(', ')', '[', ']', '"':
		return true
	}
	return unicode.Is(unicode.Pd, r)
}
