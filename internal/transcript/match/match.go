// Package match finds catalog entities named in a transcript.
//
// The transcript is normalized and tokenised, then scanned left to right.
// At each position the longest run of 1..K tokens (K = the word count of the
// longest alias) that exactly equals an alias wins and the scan continues
// after it. Matching is on whole tokens only, so "chin" never matches
// "china". An ambiguous alias credits every entity it names. Each entity is
// reported at most once per call.
//
// An optional phonetic stage ([WithPhonetic]) rescues near-miss spans that
// have no exact alias hit at a position.
package match

import (
	"strings"

	"github.com/MrWong99/countrycall/internal/catalog"
	"github.com/MrWong99/countrycall/internal/transcript/normalize"
	"github.com/MrWong99/countrycall/internal/transcript/phonetic"
)

// Well-known values of [Result.Method].
const (
	MethodExact    = "exact"
	MethodPhonetic = "phonetic"
)

// Result is one entity named in a transcript.
type Result struct {
	// Entity is the credited catalog entity.
	Entity *catalog.Entity

	// Matched is the normalized token span that produced the match.
	Matched string

	// Method is [MethodExact] or [MethodPhonetic].
	Method string

	// Confidence is 1 for exact matches and the similarity score for
	// phonetic rescues.
	Confidence float64

	// Ambiguous is set when Matched names more than one entity, all of
	// which are credited.
	Ambiguous bool
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhonetic attaches a phonetic rescue stage. When nil (the default),
// only exact alias hits are credited.
func WithPhonetic(p *phonetic.Matcher) Option {
	return func(m *Matcher) {
		m.phonetic = p
	}
}

// Matcher matches transcripts against a catalog. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	catalog  *catalog.Catalog
	maxWords int
	phonetic *phonetic.Matcher
}

// New returns a Matcher over cat.
func New(cat *catalog.Catalog, opts ...Option) *Matcher {
	m := &Matcher{
		catalog:  cat,
		maxWords: cat.MaxAliasWords(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the entities named in text, in order of first mention.
// It returns nil when nothing matches.
func (m *Matcher) Match(text string) []Result {
	tokens := normalize.Tokens(text)
	if len(tokens) == 0 || m.maxWords == 0 {
		return nil
	}

	var (
		results []Result
		seen    = make(map[string]struct{})
	)
	credit := func(alias, method string, conf float64) {
		ambiguous := m.catalog.IsAmbiguous(alias)
		for _, e := range m.catalog.LookupByAlias(alias) {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			results = append(results, Result{
				Entity:     e,
				Matched:    alias,
				Method:     method,
				Confidence: conf,
				Ambiguous:  ambiguous,
			})
		}
	}

	i := 0
	for i < len(tokens) {
		maxN := min(m.maxWords, len(tokens)-i)

		if n, span := m.exactAt(tokens[i:], maxN); n > 0 {
			credit(span, MethodExact, 1)
			i += n
			continue
		}
		if n, alias, conf := m.rescueAt(tokens[i:], maxN); n > 0 {
			credit(alias, MethodPhonetic, conf)
			i += n
			continue
		}
		i++
	}
	return results
}

// exactAt returns the length and text of the longest alias starting at
// tokens[0], or 0 when none does.
func (m *Matcher) exactAt(tokens []string, maxN int) (int, string) {
	for n := maxN; n >= 1; n-- {
		span := strings.Join(tokens[:n], " ")
		if m.catalog.HasAlias(span) {
			return n, span
		}
	}
	return 0, ""
}

// rescueAt is the phonetic counterpart of exactAt.
func (m *Matcher) rescueAt(tokens []string, maxN int) (int, string, float64) {
	if m.phonetic == nil {
		return 0, "", 0
	}
	for n := maxN; n >= 1; n-- {
		if alias, conf, ok := m.phonetic.Rescue(tokens[:n]); ok {
			return n, alias, conf
		}
	}
	return 0, "", 0
}
