package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogData holds the per-directory tables policy options refer to.
type CatalogData struct {
	// Deps maps an entry name to the entries it needs, e.g. a BIOS set.
	Deps map[string][]string `yaml:"deps"`
	// Clones maps an entry name to variant names given placeholder stubs.
	Clones map[string][]string `yaml:"clones"`
	// Titles renames entries inside list files and one-file archives.
	Titles map[string]string `yaml:"titles"`
	// Disks lists the members a list file should reference, in order.
	Disks map[string][]string `yaml:"disks"`
}

// LoadData reads a YAML catalog data file. Unknown fields are rejected.
func LoadData(path string) (*CatalogData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog data %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var data CatalogData
	if err := dec.Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing catalog data %s: %w", path, err)
	}

	return &data, nil
}

// Title returns the display title of key, defaulting to key itself.
func (d *CatalogData) Title(key string) string {
	if d != nil {
		if t, ok := d.Titles[key]; ok {
			return t
		}
	}

	return key
}
