package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"feedfunnel/internal"
	"feedfunnel/internal/config"
)

var hundred = decimal.NewFromInt(100)

type Evaluator struct {
	resolver  Resolver
	minMargin decimal.Decimal
	opCost    decimal.Decimal
	markup    decimal.Decimal
	logger    *slog.Logger
}

func NewEvaluator(resolver Resolver, funnel config.Funnel, logger *slog.Logger) *Evaluator {
	if resolver == nil {
		resolver = NoopResolver{}
	}
	return &Evaluator{
		resolver:  resolver,
		minMargin: decimal.NewFromFloat(funnel.MinMarginPercent),
		opCost:    decimal.NewFromFloat(funnel.OperationalCost),
		markup:    decimal.NewFromFloat(funnel.HeuristicMarkup),
		logger:    logger,
	}
}

// Evaluate estimates the resale margin of a record. A resolver miss, a
// non-positive resolved price or exhausted retries all fall back to the
// heuristic markup; only invalid input and cancellation return an error.
func (e *Evaluator) Evaluate(ctx context.Context, record internal.ProductRecord) (internal.ProfitabilityResult, error) {
	supplier := record.SupplierPrice
	if !supplier.IsPositive() {
		return internal.ProfitabilityResult{}, &internal.ValidationError{Field: "supplier_price", Msg: fmt.Sprintf("must be > 0, got %s", supplier.String())}
	}

	market, source, estimated, err := e.marketPrice(ctx, record)
	if err != nil {
		return internal.ProfitabilityResult{}, err
	}

	gross := market.Sub(supplier)
	margin := gross.Div(market).Mul(hundred).Round(2)
	profit := gross.Sub(e.opCost)
	roi := profit.Div(supplier).Mul(hundred).Round(2)
	profitable := margin.GreaterThanOrEqual(e.minMargin)

	verdict := "Unprofitable"
	if profitable {
		verdict = "Profitable"
	}
	reason := fmt.Sprintf("%s: %s%% margin (min: %s%%)", verdict, margin.StringFixed(2), thresholdString(e.minMargin))
	if estimated {
		reason += " [estimated market price]"
	}

	return internal.ProfitabilityResult{
		IsProfitable:           profitable,
		MarginPercent:          margin,
		AbsoluteProfit:         profit,
		ROIPercent:             roi,
		MarketPrice:            market,
		MarketPriceIsEstimated: estimated,
		PriceSource:            source,
		Reason:                 reason,
	}, nil
}

func (e *Evaluator) marketPrice(ctx context.Context, record internal.ProductRecord) (decimal.Decimal, string, bool, error) {
	q := QueryFor(record)
	if !q.Empty() {
		res, err := e.resolver.Lookup(ctx, q)
		switch {
		case err != nil && ctx.Err() != nil:
			return decimal.Zero, "", false, ctx.Err()
		case errors.Is(err, internal.ErrTransientResolver):
			e.logger.Warn("market price lookup exhausted retries, using heuristic", "external_id", record.ExternalID, "err", err)
		case err != nil:
			e.logger.Error("market price lookup failed, using heuristic", "external_id", record.ExternalID, "err", err)
		case res.Found && res.Price.IsPositive():
			return res.Price, res.Source, false, nil
		case res.Found:
			e.logger.Debug("resolver returned unusable price", "external_id", record.ExternalID, "price", res.Price.String())
		}
	}
	return record.SupplierPrice.Mul(e.markup), internal.PriceSourceHeuristic, true, nil
}

// thresholdString shows at least one decimal place and never rounds away
// precision the threshold was configured with.
func thresholdString(d decimal.Decimal) string {
	places := int32(1)
	if -d.Exponent() > places {
		places = -d.Exponent()
	}
	return d.StringFixed(places)
}
