package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"feedfunnel/internal"
)

type fileBrand struct {
	Canonical  string   `yaml:"canonical"`
	Variations []string `yaml:"variations"`
	Active     *bool    `yaml:"active"`
	Priority   int      `yaml:"priority"`
}

type fileCategory struct {
	Keyword   string `yaml:"keyword"`
	Include   *bool  `yaml:"include"`
	MatchType string `yaml:"match_type"`
	Active    *bool  `yaml:"active"`
}

type fileRules struct {
	Brands     []fileBrand    `yaml:"brands"`
	Categories []fileCategory `yaml:"categories"`
}

// LoadFile parses a YAML rule seed. Omitted "active" means active, omitted
// "include" means a whitelist rule and omitted "match_type" means contains.
func LoadFile(path string) (Static, error) {
	file, err := os.Open(path)
	if err != nil {
		return Static{}, err
	}
	defer file.Close()

	var raw fileRules
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return Static{}, fmt.Errorf("parse %s: %w", path, err)
	}

	out := Static{
		Brands:     make([]internal.BrandRule, 0, len(raw.Brands)),
		Categories: make([]internal.CategoryRule, 0, len(raw.Categories)),
	}
	for _, b := range raw.Brands {
		out.Brands = append(out.Brands, internal.BrandRule{
			CanonicalName: b.Canonical,
			Variations:    b.Variations,
			Active:        boolOr(b.Active, true),
			Priority:      b.Priority,
		})
	}
	for _, c := range raw.Categories {
		matchType := internal.MatchType(c.MatchType)
		if c.MatchType == "" {
			matchType = internal.MatchContains
		}
		if !matchType.Valid() {
			return Static{}, fmt.Errorf("parse %s: keyword %q: unknown match_type %q", path, c.Keyword, c.MatchType)
		}
		out.Categories = append(out.Categories, internal.CategoryRule{
			Keyword:   c.Keyword,
			Include:   boolOr(c.Include, true),
			MatchType: matchType,
			Active:    boolOr(c.Active, true),
		})
	}
	return out, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
