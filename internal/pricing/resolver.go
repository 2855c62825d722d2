package pricing

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"feedfunnel/internal"
	"feedfunnel/internal/config"
	"feedfunnel/internal/util"
)

// Query identifies a product for a market price lookup. EAN is preferred;
// Brand and Model are used when the feed row has no barcode.
type Query struct {
	EAN   string
	Brand string
	Model string
}

func QueryFor(record internal.ProductRecord) Query {
	q := Query{
		Brand: strings.TrimSpace(record.BrandName),
		Model: strings.TrimSpace(record.ModelName),
	}
	if record.EAN != nil {
		q.EAN = util.NormalizeEAN(*record.EAN)
	}
	return q
}

func (q Query) Empty() bool {
	return q.EAN == "" && (q.Brand == "" || q.Model == "")
}

// Lookup is the typed answer of a resolver: a price, or Found=false for
// "not found". Transient failures are returned as errors wrapping
// internal.ErrTransientResolver instead.
type Lookup struct {
	Price  decimal.Decimal
	Found  bool
	Source string
}

type Resolver interface {
	Lookup(ctx context.Context, q Query) (Lookup, error)
}

// ChainResolver asks each resolver in order and returns the first usable
// price. A transient error from one resolver does not stop the chain; it is
// returned only when no later resolver produced a price.
type ChainResolver []Resolver

func (c ChainResolver) Lookup(ctx context.Context, q Query) (Lookup, error) {
	var transient error
	for _, r := range c {
		res, err := r.Lookup(ctx, q)
		if err != nil {
			if errors.Is(err, internal.ErrTransientResolver) {
				transient = err
				continue
			}
			return Lookup{}, err
		}
		if res.Found && res.Price.IsPositive() {
			return res, nil
		}
	}
	if transient != nil {
		return Lookup{}, transient
	}
	return Lookup{}, nil
}

// NoopResolver never finds a price; every evaluation uses the heuristic.
type NoopResolver struct{}

func (NoopResolver) Lookup(context.Context, Query) (Lookup, error) { return Lookup{}, nil }

// NewResolver builds the lookup chain: the local price table first, then the
// resale API when a base URL and token are configured.
func NewResolver(cfg config.Config, table PriceTable) Resolver {
	chain := ChainResolver{}
	if table != nil {
		chain = append(chain, NewCatalogResolver(table))
	}
	if strings.TrimSpace(cfg.ResolverAPIBaseURL) != "" && strings.TrimSpace(cfg.ResolverAPIToken) != "" {
		chain = append(chain, NewClient(cfg))
	}
	if len(chain) == 0 {
		return NoopResolver{}
	}
	return chain
}
