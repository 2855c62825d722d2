package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceTable is the local market price cache kept in the catalog database.
type PriceTable interface {
	MarketPriceByEAN(ctx context.Context, ean string) (decimal.Decimal, bool, error)
	MarketPriceByModel(ctx context.Context, brand, model string) (decimal.Decimal, bool, error)
}

type CatalogResolver struct {
	table PriceTable
}

func NewCatalogResolver(table PriceTable) *CatalogResolver {
	return &CatalogResolver{table: table}
}

func (r *CatalogResolver) Lookup(ctx context.Context, q Query) (Lookup, error) {
	var (
		price decimal.Decimal
		found bool
		err   error
	)
	switch {
	case q.EAN != "":
		price, found, err = r.table.MarketPriceByEAN(ctx, q.EAN)
	case q.Brand != "" && q.Model != "":
		price, found, err = r.table.MarketPriceByModel(ctx, q.Brand, q.Model)
	default:
		return Lookup{}, nil
	}
	if err != nil {
		return Lookup{}, fmt.Errorf("catalog price lookup: %w", err)
	}
	return Lookup{Price: price, Found: found, Source: "catalog"}, nil
}
