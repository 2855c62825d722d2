package config

import (
	"errors"
	"math"
	"strings"
	"testing"

	"feedfunnel/internal"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MIN_MARGIN_PERCENT", "")
	t.Setenv("HEURISTIC_MARKUP", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Funnel != DefaultFunnel() {
		t.Fatalf("funnel=%+v", cfg.Funnel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRejectsMalformedThreshold(t *testing.T) {
	t.Setenv("MIN_MARGIN_PERCENT", "fifteen")
	_, err := Load()
	if !errors.Is(err, internal.ErrConfiguration) {
		t.Fatalf("err=%v", err)
	}
	var cfgErr *internal.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Key != "MIN_MARGIN_PERCENT" {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadRejectsNonFiniteThresholds(t *testing.T) {
	t.Setenv("OPERATIONAL_COST", "Inf")
	t.Setenv("HEURISTIC_MARKUP", "NaN")
	cfg, err := Load()
	if !errors.Is(err, internal.ErrConfiguration) {
		t.Fatalf("err=%v", err)
	}
	for _, key := range []string{"OPERATIONAL_COST", "HEURISTIC_MARKUP"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("%s not reported: %v", key, err)
		}
	}
	if err := cfg.Funnel.Validate(); err != nil {
		t.Fatalf("fallback values should validate: %v", err)
	}
}

func TestFunnelValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Funnel)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Funnel) {}, ok: true},
		{name: "negative margin", mutate: func(f *Funnel) { f.MinMarginPercent = -1 }},
		{name: "zero markup", mutate: func(f *Funnel) { f.HeuristicMarkup = 0 }},
		{name: "negative cost", mutate: func(f *Funnel) { f.OperationalCost = -0.5 }},
		{name: "unknown tie-break", mutate: func(f *Funnel) { f.TieBreak = "coin_flip" }},
		{name: "include wins", mutate: func(f *Funnel) { f.TieBreak = IncludeWins }, ok: true},
		{name: "nan margin", mutate: func(f *Funnel) { f.MinMarginPercent = math.NaN() }},
		{name: "nan cost", mutate: func(f *Funnel) { f.OperationalCost = math.NaN() }},
		{name: "infinite cost", mutate: func(f *Funnel) { f.OperationalCost = math.Inf(1) }},
		{name: "infinite markup", mutate: func(f *Funnel) { f.HeuristicMarkup = math.Inf(1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := DefaultFunnel()
			tc.mutate(&f)
			err := f.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if !tc.ok && !errors.Is(err, internal.ErrConfiguration) {
				t.Fatalf("want configuration error, got %v", err)
			}
		})
	}
}
