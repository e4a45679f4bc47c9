package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

type catalogFile struct {
	Services []intake.LineItem `koanf:"services"`
}

// LoadCatalog reads the service price list from a YAML file:
//
//	services:
//	  - id: consultation
//	    name: Initial Consultation
//	    duration: 30 min
//	    unit_price_cents: 2000
//	    required: true
//
// An empty path yields the built-in catalog.
func LoadCatalog(path string) (*intake.Catalog, error) {
	if path == "" {
		return intake.DefaultCatalog(), nil
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: load catalog %s: %w", path, err)
	}
	var parsed catalogFile
	if err := k.Unmarshal("", &parsed); err != nil {
		return nil, fmt.Errorf("config: decode catalog %s: %w", path, err)
	}
	catalog, err := intake.NewCatalog(parsed.Services)
	if err != nil {
		return nil, fmt.Errorf("config: catalog %s: %w", path, err)
	}
	return catalog, nil
}
