package rules

import (
	"context"
	"fmt"

	"feedfunnel/internal"
	"feedfunnel/internal/util"
)

type categoryRule struct {
	keyword   string
	include   bool
	matchType internal.MatchType
}

// Snapshot is the rule set for one feed run. Aliases and keywords are
// normalized once at load time; nothing is re-parsed per record.
type Snapshot struct {
	brandByAlias map[string]string
	categories   []categoryRule
}

func Load(ctx context.Context, store Store) (*Snapshot, error) {
	brands, err := store.ActiveBrandRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load brand rules: %w", err)
	}
	categories, err := store.ActiveCategoryRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category rules: %w", err)
	}
	return NewSnapshot(brands, categories)
}

func NewSnapshot(brands []internal.BrandRule, categories []internal.CategoryRule) (*Snapshot, error) {
	s := &Snapshot{
		brandByAlias: map[string]string{},
		categories:   make([]categoryRule, 0, len(categories)),
	}

	canonicals := map[string]struct{}{}
	for _, b := range brands {
		if !b.Active {
			continue
		}
		canonical := util.NormalizeText(b.CanonicalName)
		if canonical == "" {
			return nil, &internal.ConfigurationError{Key: "brand_rules", Msg: "empty canonical name"}
		}
		if _, dup := canonicals[canonical]; dup {
			return nil, &internal.ConfigurationError{Key: "brand_rules", Msg: fmt.Sprintf("duplicate active canonical name %q", b.CanonicalName)}
		}
		canonicals[canonical] = struct{}{}
		s.brandByAlias[canonical] = b.CanonicalName
		for _, v := range b.Variations {
			alias := util.NormalizeText(v)
			if alias == "" {
				continue
			}
			if _, taken := s.brandByAlias[alias]; !taken {
				s.brandByAlias[alias] = b.CanonicalName
			}
		}
	}

	for _, c := range categories {
		if !c.Active {
			continue
		}
		if !c.MatchType.Valid() {
			return nil, &internal.ConfigurationError{Key: "category_rules", Msg: fmt.Sprintf("keyword %q: unknown match type %q", c.Keyword, c.MatchType)}
		}
		keyword := util.NormalizeText(c.Keyword)
		if keyword == "" {
			continue
		}
		s.categories = append(s.categories, categoryRule{keyword: keyword, include: c.Include, matchType: c.MatchType})
	}

	return s, nil
}

func (s *Snapshot) BrandCount() int { return len(s.brandByAlias) }

func (s *Snapshot) CategoryRuleCount() int { return len(s.categories) }
