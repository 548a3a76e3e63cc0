// Package phonetic rescues misheard aliases using Double Metaphone phonetic
// encoding, Damerau-Levenshtein edit distance and Jaro-Winkler similarity.
//
// The exact matcher only credits token sequences that equal an alias. Speech
// recognisers sometimes produce near-misses such as "brazel" for "brazil".
// A [Matcher] can map such a span back to the alias it was meant to be, under
// strict rules that keep it from inventing guesses:
//
//  1. The span has the same number of tokens as the alias, and every token
//     has the same rune length as the alias token at the same position.
//     A prefix ("chin") therefore never rescues a longer alias ("china").
//  2. The alias has at least [MinRunes] runes in total, so short words are
//     never rescued.
//  3. For every token pair the Double Metaphone codes overlap and the
//     Damerau-Levenshtein distance is at most 1.
//  4. The Jaro-Winkler similarity of the full strings reaches the threshold
//     (default 0.92).
//
// When several aliases qualify the most similar one wins.
package phonetic

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultThreshold = 0.92

	// MinRunes is the minimum total alias length eligible for rescue.
	MinRunes = 5

	maxTokenDistance = 1
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the minimum Jaro-Winkler score a rescued span must
// reach. Default: 0.92.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// Matcher is a phonetic alias rescuer. It is read-only after construction
// and safe for concurrent use.
type Matcher struct {
	threshold float64

	// byShape groups prepared aliases by their token rune-length signature,
	// e.g. "6" for "brazil" and "6 7" for "sierra leone".
	byShape map[string][]preparedAlias
}

// preparedAlias caches everything needed to compare a span with an alias.
type preparedAlias struct {
	text   string
	tokens []string
	codes  []codeSet
}

type codeSet [2]string

// New prepares a Matcher for the given normalized aliases. Aliases shorter
// than [MinRunes] are ignored.
func New(aliases []string, opts ...Option) *Matcher {
	m := &Matcher{
		threshold: defaultThreshold,
		byShape:   make(map[string][]preparedAlias),
	}
	for _, o := range opts {
		o(m)
	}

	for _, a := range aliases {
		tokens := strings.Fields(a)
		if len(tokens) == 0 || runeCount(tokens) < MinRunes {
			continue
		}
		pa := preparedAlias{text: a, tokens: tokens, codes: make([]codeSet, len(tokens))}
		for i, t := range tokens {
			pa.codes[i] = codes(t)
		}
		key := shape(tokens)
		m.byShape[key] = append(m.byShape[key], pa)
	}
	return m
}

// Threshold returns the configured Jaro-Winkler threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Rescue returns the alias that the normalized token span most plausibly
// names. ok is false when no alias satisfies every rule; alias is then ""
// and confidence 0.
func (m *Matcher) Rescue(tokens []string) (alias string, confidence float64, ok bool) {
	if len(tokens) == 0 || runeCount(tokens) < MinRunes {
		return "", 0, false
	}
	candidates := m.byShape[shape(tokens)]
	if len(candidates) == 0 {
		return "", 0, false
	}

	span := strings.Join(tokens, " ")
	spanCodes := make([]codeSet, len(tokens))
	for i, t := range tokens {
		spanCodes[i] = codes(t)
	}

	for _, c := range candidates {
		if c.text == span {
			// Exact hits belong to the exact matcher.
			continue
		}
		if !tokensAlign(tokens, spanCodes, c) {
			continue
		}
		score := matchr.JaroWinkler(span, c.text, false)
		if score < m.threshold {
			continue
		}
		if score > confidence || (score == confidence && c.text < alias) {
			alias, confidence, ok = c.text, score, true
		}
	}
	return alias, confidence, ok
}

// tokensAlign applies the per-token phonetic and edit-distance rules.
func tokensAlign(tokens []string, spanCodes []codeSet, c preparedAlias) bool {
	for i, t := range tokens {
		if !spanCodes[i].overlaps(c.codes[i]) {
			return false
		}
		if matchr.DamerauLevenshtein(t, c.tokens[i]) > maxTokenDistance {
			return false
		}
	}
	return true
}

// codes returns the Double Metaphone primary and secondary codes of word.
func codes(word string) codeSet {
	p, s := matchr.DoubleMetaphone(word)
	return codeSet{p, s}
}

// overlaps reports whether the two code sets share a non-empty code.
func (a codeSet) overlaps(b codeSet) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// shape encodes the rune length of every token, e.g. "6 7".
func shape(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = strconv.Itoa(utf8.RuneCountInString(t))
	}
	return strings.Join(parts, " ")
}

func runeCount(tokens []string) int {
	n := 0
	for _, t := range tokens {
		n += utf8.RuneCountInString(t)
	}
	return n
}
