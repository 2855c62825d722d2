package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"feedfunnel/internal"
	"feedfunnel/internal/util"
)

func eanPriceKey(ean string) string {
	return "ean:" + ean
}

func modelPriceKey(brand, model string) string {
	return "bm:" + util.NormalizeText(brand) + "|" + util.NormalizeText(model)
}

func (d *DB) MarketPriceByEAN(ctx context.Context, ean string) (decimal.Decimal, bool, error) {
	return d.marketPrice(ctx, eanPriceKey(ean))
}

func (d *DB) MarketPriceByModel(ctx context.Context, brand, model string) (decimal.Decimal, bool, error) {
	return d.marketPrice(ctx, modelPriceKey(brand, model))
}

func (d *DB) marketPrice(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := d.conn.GetContext(ctx, &price, d.conn.Rebind(`SELECT price FROM market_prices WHERE price_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return price, true, nil
}

// UpsertMarketPrices stores prices keyed by EAN when present, else by
// normalized brand and model.
func (d *DB) UpsertMarketPrices(ctx context.Context, prices []internal.MarketPrice) error {
	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
INSERT INTO market_prices (price_key, ean, brand, model, price, currency, updated_at, synced_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(price_key) DO UPDATE SET
  ean = excluded.ean,
  brand = excluded.brand,
  model = excluded.model,
  price = excluded.price,
  currency = excluded.currency,
  updated_at = excluded.updated_at,
  synced_at = excluded.synced_at
`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := now()
	for _, p := range prices {
		key := modelPriceKey(p.Brand, p.Model)
		if p.EAN != nil && *p.EAN != "" {
			key = eanPriceKey(*p.EAN)
		}
		if _, err := stmt.ExecContext(ctx, key, p.EAN, p.Brand, p.Model, p.Price, p.Currency, p.UpdatedAt, ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) CountMarketPrices(ctx context.Context) (int, error) {
	var n int
	err := d.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM market_prices`)
	return n, err
}
