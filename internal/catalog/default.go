package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
)

//go:embed countries.yaml
var defaultCountries []byte

// Default builds the embedded country catalog: sovereign states plus a few
// widely recognised territories, without Antarctica and Greenland.
func Default() (*Catalog, error) {
	defs, err := LoadYAML(bytes.NewReader(defaultCountries))
	if err != nil {
		return nil, fmt.Errorf("catalog: embedded default: %w", err)
	}
	return New(defs)
}
