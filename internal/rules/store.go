package rules

import (
	"context"

	"feedfunnel/internal"
)

// Store is the read side of the rule tables. Implementations return only
// active rules.
type Store interface {
	ActiveBrandRules(ctx context.Context) ([]internal.BrandRule, error)
	ActiveCategoryRules(ctx context.Context) ([]internal.CategoryRule, error)
}

// Static serves rules held in memory, e.g. parsed from a seed file.
type Static struct {
	Brands     []internal.BrandRule
	Categories []internal.CategoryRule
}

func (s Static) ActiveBrandRules(context.Context) ([]internal.BrandRule, error) {
	out := make([]internal.BrandRule, 0, len(s.Brands))
	for _, b := range s.Brands {
		if b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s Static) ActiveCategoryRules(context.Context) ([]internal.CategoryRule, error) {
	out := make([]internal.CategoryRule, 0, len(s.Categories))
	for _, c := range s.Categories {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}
