package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the on-disk catalog encoding.
type Format string

const (
	// FormatYAML is the native format:
	//
	//	countries:
	//	  - name: United States
	//	    aliases: [usa, america]
	FormatYAML Format = "yaml"

	// FormatText is the sectioned plain-text format:
	//
	//	[COUNTRIES]
	//	united states of america
	//
	//	[ALTERNATES]
	//	usa -> united states of america
	FormatText Format = "text"
)

// File is the top-level structure of a YAML catalog file.
type File struct {
	Countries []Definition `yaml:"countries"`
}

// FormatFromPath infers the catalog format from a file extension. Unknown
// extensions default to YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text":
		return FormatText
	default:
		return FormatYAML
	}
}

// LoadFile reads and builds a catalog from disk. An empty format is inferred
// from the file extension.
func LoadFile(path string, format Format) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	defer f.Close()

	if format == "" {
		format = FormatFromPath(path)
	}

	var defs []Definition
	switch format {
	case FormatYAML:
		defs, err = LoadYAML(f)
	case FormatText:
		defs, err = LoadText(f)
	default:
		return nil, fmt.Errorf("catalog: unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: load %q: %w", path, err)
	}
	return New(defs)
}

// LoadYAML parses catalog YAML from an [io.Reader]. Unknown keys are
// rejected to catch typos.
func LoadYAML(r io.Reader) ([]Definition, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("catalog: decode yaml: %w", err)
	}
	return f.Countries, nil
}

// LoadText parses the sectioned plain-text format. Lines in the [COUNTRIES]
// section are canonical names; lines in the [ALTERNATES] section have the
// form "alias -> canonical name". Blank lines and lines starting with '#'
// are ignored. An alternate that points to an unknown country, a line
// outside any section, or a malformed alternate is reported in a
// *CatalogError.
func LoadText(r io.Reader) ([]Definition, error) {
	const (
		sectionNone = iota
		sectionCountries
		sectionAlternates
	)

	var (
		defs     []Definition
		index    = map[string]int{}
		problems []string
		section  = sectionNone
		lineNo   int
	)

	type alternate struct {
		alias, target string
		line          int
	}
	var alternates []alternate

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch strings.ToUpper(line) {
		case "[COUNTRIES]":
			section = sectionCountries
			continue
		case "[ALTERNATES]", "[ABBREVIATIONS]":
			section = sectionAlternates
			continue
		}

		switch section {
		case sectionCountries:
			key := strings.ToLower(line)
			if _, dup := index[key]; dup {
				continue
			}
			index[key] = len(defs)
			defs = append(defs, Definition{Name: line})
		case sectionAlternates:
			alias, target, ok := strings.Cut(line, "->")
			alias, target = strings.TrimSpace(alias), strings.TrimSpace(target)
			if !ok || alias == "" || target == "" {
				problems = append(problems, fmt.Sprintf("line %d: malformed alternate %q", lineNo, line))
				continue
			}
			alternates = append(alternates, alternate{alias: alias, target: target, line: lineNo})
		default:
			problems = append(problems, fmt.Sprintf("line %d: %q outside of a section", lineNo, line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("catalog: read text: %w", err)
	}

	// Alternates may precede the country they point to in hand-edited files.
	for _, a := range alternates {
		i, ok := index[strings.ToLower(a.target)]
		if !ok {
			problems = append(problems, fmt.Sprintf("line %d: alternate %q points to unknown country %q", a.line, a.alias, a.target))
			continue
		}
		defs[i].Aliases = append(defs[i].Aliases, a.alias)
	}

	if len(problems) > 0 {
		return nil, &CatalogError{Problems: problems}
	}
	return defs, nil
}
