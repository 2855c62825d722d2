package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"feedfunnel/internal"
)

type brandRuleRow struct {
	CanonicalName string `db:"canonical_name"`
	Variations    string `db:"variations"`
	Active        bool   `db:"active"`
	Priority      int    `db:"priority"`
}

type categoryRuleRow struct {
	Keyword   string `db:"keyword"`
	Include   bool   `db:"include"`
	MatchType string `db:"match_type"`
	Active    bool   `db:"active"`
}

func (d *DB) ActiveBrandRules(ctx context.Context) ([]internal.BrandRule, error) {
	var rows []brandRuleRow
	err := d.conn.SelectContext(ctx, &rows, `
SELECT canonical_name, variations, active, priority
FROM brand_rules WHERE active ORDER BY priority DESC, canonical_name`)
	if err != nil {
		return nil, err
	}

	out := make([]internal.BrandRule, 0, len(rows))
	for _, r := range rows {
		rule := internal.BrandRule{CanonicalName: r.CanonicalName, Active: r.Active, Priority: r.Priority}
		if err := json.Unmarshal([]byte(r.Variations), &rule.Variations); err != nil {
			return nil, fmt.Errorf("brand rule %q: variations: %w", r.CanonicalName, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func (d *DB) ActiveCategoryRules(ctx context.Context) ([]internal.CategoryRule, error) {
	var rows []categoryRuleRow
	err := d.conn.SelectContext(ctx, &rows, `
SELECT keyword, include, match_type, active
FROM category_rules WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}

	out := make([]internal.CategoryRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, internal.CategoryRule{
			Keyword:   r.Keyword,
			Include:   r.Include,
			MatchType: internal.MatchType(r.MatchType),
			Active:    r.Active,
		})
	}
	return out, nil
}

// ReplaceRules swaps the whole rule set in one transaction. A run that loads
// its snapshot concurrently sees either the old or the new set.
func (d *DB) ReplaceRules(ctx context.Context, brands []internal.BrandRule, categories []internal.CategoryRule) error {
	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM brand_rules`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM category_rules`); err != nil {
		return err
	}

	ts := now()
	insertBrand := tx.Rebind(`INSERT INTO brand_rules (canonical_name, variations, active, priority, updated_at) VALUES (?, ?, ?, ?, ?)`)
	for _, b := range brands {
		variations := b.Variations
		if variations == nil {
			variations = []string{}
		}
		blob, _ := json.Marshal(variations)
		if _, err := tx.ExecContext(ctx, insertBrand, b.CanonicalName, string(blob), b.Active, b.Priority, ts); err != nil {
			return fmt.Errorf("insert brand rule %q: %w", b.CanonicalName, err)
		}
	}

	insertCategory := tx.Rebind(`INSERT INTO category_rules (keyword, include, match_type, active, updated_at) VALUES (?, ?, ?, ?, ?)`)
	for _, c := range categories {
		if _, err := tx.ExecContext(ctx, insertCategory, c.Keyword, c.Include, string(c.MatchType), c.Active, ts); err != nil {
			return fmt.Errorf("insert category rule %q: %w", c.Keyword, err)
		}
	}

	return tx.Commit()
}
