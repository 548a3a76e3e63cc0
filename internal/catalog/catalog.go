// Package catalog holds the fixed set of guessable entities (countries) and
// their aliases.
//
// A [Catalog] is built once at startup from a list of [Definition] values and
// is read-only afterwards, so it is safe for concurrent use without locking.
// Every alias is stored in normalized form. An alias shared by several
// entities (e.g. "korea" for North and South Korea) is ambiguous and resolves
// to all of them.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/countrycall/internal/transcript/normalize"
)

// Definition is the loadable form of an entity.
type Definition struct {
	// Name is the canonical display name (e.g., "United States").
	Name string `yaml:"name"`

	// Aliases are alternative spoken forms (e.g., "usa", "america"). The
	// canonical name is always an alias of itself and need not be repeated.
	Aliases []string `yaml:"aliases,omitempty"`
}

// Entity is an immutable catalog entry.
type Entity struct {
	// ID is the normalized canonical name. It is unique within a catalog.
	ID string

	// Name is the canonical display name.
	Name string

	// Aliases are the normalized aliases, including the normalized canonical
	// name, sorted.
	Aliases []string
}

// CatalogError reports every problem found while building a catalog.
// It is fatal at startup.
type CatalogError struct {
	Problems []string
}

// Error implements error.
func (e *CatalogError) Error() string {
	if len(e.Problems) == 1 {
		return "catalog: " + e.Problems[0]
	}
	return fmt.Sprintf("catalog: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Catalog is the read-only entity index.
type Catalog struct {
	entities []*Entity
	byID     map[string]*Entity
	byAlias  map[string][]*Entity
	maxWords int
}

// New builds a Catalog from defs. Canonical names and aliases are normalized.
// It returns a *CatalogError listing every problem when a name is empty,
// two canonical names collide after normalization, or an alias normalizes to
// the empty string.
func New(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[string]*Entity, len(defs)),
		byAlias: make(map[string][]*Entity, len(defs)*3),
	}
	var problems []string

	for i, def := range defs {
		id := normalize.String(def.Name)
		if id == "" {
			problems = append(problems, fmt.Sprintf("entity[%d]: name %q must contain letters or digits", i, def.Name))
			continue
		}
		if prev, dup := c.byID[id]; dup {
			problems = append(problems, fmt.Sprintf("entity[%d]: duplicate canonical name %q (collides with %q)", i, def.Name, prev.Name))
			continue
		}

		aliases := []string{id}
		for j, a := range def.Aliases {
			na := normalize.String(a)
			if na == "" {
				problems = append(problems, fmt.Sprintf("entity[%d] %q: alias[%d] %q normalizes to nothing", i, def.Name, j, a))
				continue
			}
			aliases = append(aliases, na)
		}
		slices.Sort(aliases)
		aliases = slices.Compact(aliases)

		e := &Entity{ID: id, Name: strings.TrimSpace(def.Name), Aliases: aliases}
		c.entities = append(c.entities, e)
		c.byID[id] = e
		for _, a := range aliases {
			c.byAlias[a] = append(c.byAlias[a], e)
			c.maxWords = max(c.maxWords, strings.Count(a, " ")+1)
		}
	}

	if len(problems) > 0 {
		return nil, &CatalogError{Problems: problems}
	}

	for _, list := range c.byAlias {
		slices.SortFunc(list, compareByName)
	}
	slices.SortFunc(c.entities, compareByName)
	return c, nil
}

func compareByName(a, b *Entity) int {
	return strings.Compare(a.Name, b.Name)
}

// LookupByAlias returns every entity whose alias set contains alias, sorted
// by name. alias must already be normalized. The returned slice is a copy;
// it is empty (nil) when nothing matches.
func (c *Catalog) LookupByAlias(alias string) []*Entity {
	list := c.byAlias[alias]
	if len(list) == 0 {
		return nil
	}
	return slices.Clone(list)
}

// HasAlias reports whether alias (normalized) names at least one entity.
func (c *Catalog) HasAlias(alias string) bool {
	return len(c.byAlias[alias]) > 0
}

// IsAmbiguous reports whether alias names more than one entity.
func (c *Catalog) IsAmbiguous(alias string) bool {
	return len(c.byAlias[alias]) > 1
}

// Entities returns all entities sorted by name. The returned slice is a copy.
func (c *Catalog) Entities() []*Entity {
	return slices.Clone(c.entities)
}

// Aliases returns every distinct normalized alias, sorted.
func (c *Catalog) Aliases() []string {
	out := make([]string, 0, len(c.byAlias))
	for a := range c.byAlias {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of entities.
func (c *Catalog) Len() int {
	return len(c.entities)
}

// MaxAliasWords returns the word count of the longest alias. Matchers scan
// word sequences up to this length.
func (c *Catalog) MaxAliasWords() int {
	return c.maxWords
}
