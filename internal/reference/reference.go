// Package reference loads the station table, thresholds and comfort weights
// used by feature derivation.
package reference

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/weather-feature-etl/internal/domain"
)

// Load returns the built-in reference data, overlaid with the YAML file at
// path when path is not empty. Keys absent from the file keep their defaults;
// lists in the file replace the default lists and season maps merge by key.
// A station entry only changes the attributes it names; unnamed ones keep the
// built-in entry, or the numbering-block region for a new station.
func Load(path string) (*domain.Reference, error) {
	if path == "" {
		return domain.DefaultReference(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference file: %w", err)
	}
	ref, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("reference file %s: %w", path, err)
	}
	return ref, nil
}

// Parse overlays YAML data on the defaults and validates the result.
func Parse(data []byte) (*domain.Reference, error) {
	ref := domain.DefaultReference()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(ref); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	// The pass above replaces whole station entries; redo them attribute by attribute.
	var overlay struct {
		Stations map[string]stationOverride `yaml:"stations"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}
	for id, o := range overlay.Stations {
		ref.Stations[id] = o.apply(domain.DefaultStation(id))
	}

	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reference data: %w", err)
	}
	return ref, nil
}

// stationOverride is a station entry with every attribute optional.
type stationOverride struct {
	Region  *string `yaml:"region"`
	Metro   *bool   `yaml:"metro"`
	Coastal *bool   `yaml:"coastal"`
}

func (o stationOverride) apply(st domain.Station) domain.Station {
	if o.Region != nil {
		st.Region = *o.Region
	}
	if o.Metro != nil {
		st.Metro = *o.Metro
	}
	if o.Coastal != nil {
		st.Coastal = *o.Coastal
	}
	return st
}
