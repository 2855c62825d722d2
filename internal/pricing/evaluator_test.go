package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"feedfunnel/internal"
	"feedfunnel/internal/config"
	"feedfunnel/internal/logging"
	"feedfunnel/internal/util"
)

type staticResolver struct {
	lookup Lookup
	err    error
	calls  int
}

func (s *staticResolver) Lookup(context.Context, Query) (Lookup, error) {
	s.calls++
	return s.lookup, s.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func record(price string) internal.ProductRecord {
	return internal.ProductRecord{
		ExternalID:    "sku-1",
		EAN:           util.StringPtr("0195237459123"),
		BrandName:     "Nike",
		ModelName:     "Dunk Low",
		SupplierPrice: dec(price),
	}
}

func TestEvaluateResolvedPrice(t *testing.T) {
	resolver := &staticResolver{lookup: Lookup{Price: dec("119.99"), Found: true, Source: "api"}}
	e := NewEvaluator(resolver, config.DefaultFunnel(), logging.Discard())

	res, err := e.Evaluate(context.Background(), record("85.99"))
	if err != nil {
		t.Fatal(err)
	}
	// (119.99 - 85.99) / 119.99 * 100 = 28.3357...
	if !res.MarginPercent.Equal(dec("28.34")) {
		t.Fatalf("margin=%s", res.MarginPercent)
	}
	if !res.AbsoluteProfit.Equal(dec("29.00")) {
		t.Fatalf("profit=%s", res.AbsoluteProfit)
	}
	if !res.IsProfitable || res.MarketPriceIsEstimated || res.PriceSource != "api" {
		t.Fatalf("res=%+v", res)
	}
	if res.Reason != "Profitable: 28.34% margin (min: 15.0%)" {
		t.Fatalf("reason=%q", res.Reason)
	}
	if !res.ROIPercent.Equal(dec("33.72")) {
		t.Fatalf("roi=%s", res.ROIPercent)
	}
}

func TestEvaluateHeuristicFallback(t *testing.T) {
	e := NewEvaluator(&staticResolver{}, config.DefaultFunnel(), logging.Discard())
	res, err := e.Evaluate(context.Background(), record("100.0"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.MarketPrice.Equal(dec("125.0")) || !res.MarketPriceIsEstimated {
		t.Fatalf("res=%+v", res)
	}
	if res.PriceSource != internal.PriceSourceHeuristic {
		t.Fatalf("source=%s", res.PriceSource)
	}
	if !res.MarginPercent.Equal(dec("20")) || !res.IsProfitable {
		t.Fatalf("res=%+v", res)
	}
}

func TestEvaluateUnprofitable(t *testing.T) {
	resolver := &staticResolver{lookup: Lookup{Price: dec("100"), Found: true}}
	e := NewEvaluator(resolver, config.DefaultFunnel(), logging.Discard())
	res, err := e.Evaluate(context.Background(), record("92"))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsProfitable || !res.MarginPercent.Equal(dec("8")) {
		t.Fatalf("res=%+v", res)
	}
	if !strings.HasPrefix(res.Reason, "Unprofitable: 8.00% margin") {
		t.Fatalf("reason=%q", res.Reason)
	}
	if !res.AbsoluteProfit.Equal(dec("3")) {
		t.Fatalf("profit=%s", res.AbsoluteProfit)
	}
}

func TestEvaluateThresholdIsInclusive(t *testing.T) {
	resolver := &staticResolver{lookup: Lookup{Price: dec("100"), Found: true}}
	e := NewEvaluator(resolver, config.DefaultFunnel(), logging.Discard())
	res, err := e.Evaluate(context.Background(), record("85"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsProfitable {
		t.Fatalf("15%% margin should meet a 15%% minimum: %+v", res)
	}
}

func TestEvaluateReasonKeepsThresholdPrecision(t *testing.T) {
	resolver := &staticResolver{lookup: Lookup{Price: dec("100"), Found: true}}
	funnel := config.DefaultFunnel()
	funnel.MinMarginPercent = 12.25
	e := NewEvaluator(resolver, funnel, logging.Discard())

	res, err := e.Evaluate(context.Background(), record("87.8"))
	if err != nil {
		t.Fatal(err)
	}
	// 12.20 < 12.25; a rounded "12.3" threshold would hide why this failed
	if res.IsProfitable || res.Reason != "Unprofitable: 12.20% margin (min: 12.25%)" {
		t.Fatalf("res=%+v", res)
	}
}

func TestEvaluateRejectsNonPositiveSupplierPrice(t *testing.T) {
	resolver := &staticResolver{}
	e := NewEvaluator(resolver, config.DefaultFunnel(), logging.Discard())
	for _, price := range []string{"0", "-3.50"} {
		_, err := e.Evaluate(context.Background(), record(price))
		if !errors.Is(err, internal.ErrValidation) {
			t.Fatalf("price %s: err=%v", price, err)
		}
	}
	if resolver.calls != 0 {
		t.Fatalf("resolver called for invalid input")
	}
}

func TestEvaluateIgnoresNonPositiveResolvedPrice(t *testing.T) {
	resolver := &staticResolver{lookup: Lookup{Price: dec("0"), Found: true, Source: "api"}}
	e := NewEvaluator(resolver, config.DefaultFunnel(), logging.Discard())
	res, err := e.Evaluate(context.Background(), record("40"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.MarketPriceIsEstimated || !res.MarketPrice.Equal(dec("50")) {
		t.Fatalf("res=%+v", res)
	}
}

func TestEvaluateTransientErrorDegrades(t *testing.T) {
	resolver := &staticResolver{err: fmt.Errorf("%w: timeout", internal.ErrTransientResolver)}
	e := NewEvaluator(resolver, config.DefaultFunnel(), logging.Discard())
	res, err := e.Evaluate(context.Background(), record("40"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.MarketPriceIsEstimated {
		t.Fatalf("res=%+v", res)
	}
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resolver := &staticResolver{err: context.Canceled}
	e := NewEvaluator(resolver, config.DefaultFunnel(), logging.Discard())
	if _, err := e.Evaluate(ctx, record("40")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestChainResolver(t *testing.T) {
	transient := &staticResolver{err: fmt.Errorf("%w: 503", internal.ErrTransientResolver)}
	miss := &staticResolver{}
	hit := &staticResolver{lookup: Lookup{Price: dec("150"), Found: true, Source: "api"}}

	res, err := ChainResolver{miss, transient, hit}.Lookup(context.Background(), Query{EAN: "0195237459123"})
	if err != nil || !res.Found || res.Source != "api" {
		t.Fatalf("res=%+v err=%v", res, err)
	}

	_, err = ChainResolver{miss, transient}.Lookup(context.Background(), Query{EAN: "0195237459123"})
	if !errors.Is(err, internal.ErrTransientResolver) {
		t.Fatalf("err=%v", err)
	}

	res, err = ChainResolver{miss}.Lookup(context.Background(), Query{EAN: "0195237459123"})
	if err != nil || res.Found {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestQueryFor(t *testing.T) {
	q := QueryFor(internal.ProductRecord{BrandName: " Nike ", ModelName: "Dunk"})
	if q.EAN != "" || q.Brand != "Nike" || q.Model != "Dunk" || q.Empty() {
		t.Fatalf("q=%+v", q)
	}
	if !QueryFor(internal.ProductRecord{BrandName: "Nike"}).Empty() {
		t.Fatal("brand alone should not be a query")
	}
}
