package match_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/countrycall/internal/catalog"
	"github.com/MrWong99/countrycall/internal/transcript/match"
	"github.com/MrWong99/countrycall/internal/transcript/phonetic"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Definition{
		{Name: "China"},
		{Name: "France"},
		{Name: "Germany"},
		{Name: "Guinea"},
		{Name: "Guinea-Bissau"},
		{Name: "Papua New Guinea"},
		{Name: "Sudan"},
		{Name: "South Sudan"},
		{Name: "Brazil"},
		{Name: "North Korea", Aliases: []string{"korea"}},
		{Name: "South Korea", Aliases: []string{"korea"}},
		{Name: "United States", Aliases: []string{"usa", "america", "united states of america"}},
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

func entityNames(rs []match.Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Entity.Name
	}
	return out
}

func TestMatch(t *testing.T) {
	t.Parallel()
	m := match.New(testCatalog(t))

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"no country", "I have no idea", nil},
		{"canonical", "France", []string{"France"}},
		{"case and punctuation", "i think it's FRANCE!", []string{"France"}},
		{"prefix never matches", "chin", nil},
		{"word containing alias", "chinaware", nil},
		{"alias inside phrase", "is it china or not", []string{"China"}},
		{"usa", "USA", []string{"United States"}},
		{"america", "America", []string{"United States"}},
		{"united states", "the United States", []string{"United States"}},
		{"longest alias wins", "United States of America", []string{"United States"}},
		{"ambiguous korea", "Korea", []string{"North Korea", "South Korea"}},
		{"specific korea", "South Korea", []string{"South Korea"}},
		{"greedy longest guinea bissau", "guinea-bissau", []string{"Guinea-Bissau"}},
		{"greedy longest papua", "papua new guinea", []string{"Papua New Guinea"}},
		{"south sudan not sudan", "South Sudan", []string{"South Sudan"}},
		{"both sudans", "South Sudan and Sudan", []string{"South Sudan", "Sudan"}},
		{"dedup per call", "france france FRANCE", []string{"France"}},
		{"dedup across aliases", "usa america", []string{"United States"}},
		{"order of mention", "germany then france", []string{"Germany", "France"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := entityNames(m.Match(tt.text))
			if !slices.Equal(got, tt.want) && !(len(got) == 0 && len(tt.want) == 0) {
				t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestMatch_ResultFields(t *testing.T) {
	t.Parallel()
	m := match.New(testCatalog(t))

	rs := m.Match("the united states of america")
	if len(rs) != 1 {
		t.Fatalf("len = %d, want 1", len(rs))
	}
	r := rs[0]
	if r.Matched != "united states of america" {
		t.Errorf("Matched = %q", r.Matched)
	}
	if r.Method != match.MethodExact || r.Confidence != 1 {
		t.Errorf("Method/Confidence = %q/%f", r.Method, r.Confidence)
	}
	if r.Ambiguous {
		t.Error("Ambiguous = true for a single-entity alias")
	}
}

func TestMatch_AmbiguousSharesMatchedText(t *testing.T) {
	t.Parallel()
	m := match.New(testCatalog(t))

	rs := m.Match("korea")
	if len(rs) != 2 {
		t.Fatalf("len = %d, want 2", len(rs))
	}
	for _, r := range rs {
		if r.Matched != "korea" {
			t.Errorf("%s: Matched = %q, want korea", r.Entity.Name, r.Matched)
		}
		if !r.Ambiguous {
			t.Errorf("%s: Ambiguous = false", r.Entity.Name)
		}
	}
}

// An earlier alias wins over a longer one that overlaps it, even when the
// longer one starts on a later token.
func TestMatch_EarlierAliasConsumesOverlap(t *testing.T) {
	t.Parallel()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	m := match.New(cat)

	tests := []struct {
		text string
		want []string
	}{
		{
			text: "central african republic of the congo",
			want: []string{"Central African Republic", "Democratic Republic of the Congo", "Republic of the Congo"},
		},
		{
			text: "czech republic of korea",
			want: []string{"Czechia", "North Korea", "South Korea"},
		},
		{
			text: "republic of the congo",
			want: []string{"Republic of the Congo"},
		},
	}
	for _, tt := range tests {
		if got := entityNames(m.Match(tt.text)); !slices.Equal(got, tt.want) {
			t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestMatch_PhoneticRescue(t *testing.T) {
	t.Parallel()
	cat := testCatalog(t)

	exact := match.New(cat)
	if got := exact.Match("brazel"); len(got) != 0 {
		t.Fatalf("exact matcher credited %v", entityNames(got))
	}

	m := match.New(cat, match.WithPhonetic(phonetic.New(cat.Aliases())))
	got := m.Match("maybe brazel")
	if len(got) != 1 || got[0].Entity.Name != "Brazil" {
		t.Fatalf("Match(brazel) = %v, want [Brazil]", entityNames(got))
	}
	if got[0].Method != match.MethodPhonetic {
		t.Errorf("Method = %q, want phonetic", got[0].Method)
	}

	if got := m.Match("chin"); len(got) != 0 {
		t.Errorf("phonetic stage credited a prefix: %v", entityNames(got))
	}
}
