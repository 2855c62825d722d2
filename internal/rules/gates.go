package rules

import (
	"feedfunnel/internal"
	"feedfunnel/internal/config"
	"feedfunnel/internal/util"
)

type BrandGate struct {
	snapshot *Snapshot
}

func NewBrandGate(snapshot *Snapshot) *BrandGate {
	return &BrandGate{snapshot: snapshot}
}

func (g *BrandGate) Admit(record internal.ProductRecord) bool {
	_, ok := g.Canonical(record)
	return ok
}

// Canonical returns the whitelist entry the record's brand resolves to.
func (g *BrandGate) Canonical(record internal.ProductRecord) (string, bool) {
	brand := util.NormalizeText(record.BrandName)
	if brand == "" {
		return "", false
	}
	canonical, ok := g.snapshot.brandByAlias[brand]
	return canonical, ok
}

type CategoryVerdict struct {
	Admitted bool
	Included []string
	Excluded []string
}

type CategoryGate struct {
	snapshot *Snapshot
	tieBreak config.TieBreak
}

func NewCategoryGate(snapshot *Snapshot, tieBreak config.TieBreak) *CategoryGate {
	if tieBreak == "" {
		tieBreak = config.ExcludeWins
	}
	return &CategoryGate{snapshot: snapshot, tieBreak: tieBreak}
}

func (g *CategoryGate) Admit(record internal.ProductRecord) bool {
	return g.Evaluate(record).Admitted
}

// Evaluate collects every matching rule. With no match the record is
// rejected; unrelated merchandise stays out by default.
func (g *CategoryGate) Evaluate(record internal.ProductRecord) CategoryVerdict {
	text := util.NormalizeText(record.CategoryText)
	verdict := CategoryVerdict{}
	if text == "" {
		return verdict
	}

	for _, rule := range g.snapshot.categories {
		if !matches(rule.matchType, text, rule.keyword) {
			continue
		}
		if rule.include {
			verdict.Included = append(verdict.Included, rule.keyword)
		} else {
			verdict.Excluded = append(verdict.Excluded, rule.keyword)
		}
	}

	switch {
	case len(verdict.Included) > 0 && len(verdict.Excluded) > 0:
		verdict.Admitted = g.tieBreak == config.IncludeWins
	case len(verdict.Excluded) > 0:
		verdict.Admitted = false
	case len(verdict.Included) > 0:
		verdict.Admitted = true
	}
	return verdict
}
