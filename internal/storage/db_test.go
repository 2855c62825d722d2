package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"feedfunnel/internal"
	"feedfunnel/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "funnel.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReplaceRulesRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	brands := []internal.BrandRule{
		{CanonicalName: "Nike", Variations: []string{"nike", "nike inc"}, Active: true, Priority: 10},
		{CanonicalName: "Adidas", Variations: []string{"adidas"}, Active: true},
		{CanonicalName: "Reebok", Active: false},
	}
	categories := []internal.CategoryRule{
		{Keyword: "sneaker", Include: true, MatchType: internal.MatchContains, Active: true},
		{Keyword: "sandal", Include: false, MatchType: internal.MatchContains, Active: true},
		{Keyword: "boots", Include: true, MatchType: internal.MatchExact, Active: false},
	}
	if err := db.ReplaceRules(ctx, brands, categories); err != nil {
		t.Fatal(err)
	}

	gotBrands, err := db.ActiveBrandRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotBrands) != 2 || gotBrands[0].CanonicalName != "Nike" || len(gotBrands[0].Variations) != 2 {
		t.Fatalf("brands=%+v", gotBrands)
	}
	gotCats, err := db.ActiveCategoryRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotCats) != 2 || gotCats[1].Include || gotCats[1].MatchType != internal.MatchContains {
		t.Fatalf("categories=%+v", gotCats)
	}

	dup := []internal.BrandRule{{CanonicalName: "Nike", Active: true}, {CanonicalName: "Nike", Active: true}}
	if err := db.ReplaceRules(ctx, dup, nil); err == nil {
		t.Fatal("duplicate active canonical should fail")
	}
	// the failed replace must not have touched the stored set
	if got, _ := db.ActiveBrandRules(ctx); len(got) != 2 {
		t.Fatalf("brands after failed replace=%+v", got)
	}
}

func TestRegisterFingerprint(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	isNew, err := db.Register(ctx, "0195237459123", t0)
	if err != nil || !isNew {
		t.Fatalf("first register isNew=%v err=%v", isNew, err)
	}
	isNew, err = db.Register(ctx, "0195237459123", t0.Add(time.Hour))
	if err != nil || isNew {
		t.Fatalf("second register isNew=%v err=%v", isNew, err)
	}

	fp, err := db.Find(ctx, "0195237459123")
	if err != nil || fp == nil {
		t.Fatalf("fp=%v err=%v", fp, err)
	}
	if !fp.FirstSeenAt.Equal(t0) || !fp.LastSeenAt.Equal(t0.Add(time.Hour)) || fp.Status != internal.FingerprintActive {
		t.Fatalf("fp=%+v", fp)
	}

	ok, err := db.Archive(ctx, "0195237459123")
	if err != nil || !ok {
		t.Fatalf("archive ok=%v err=%v", ok, err)
	}
	isNew, err = db.Register(ctx, "0195237459123", t0.Add(2*time.Hour))
	if err != nil || !isNew {
		t.Fatalf("register after archive isNew=%v err=%v", isNew, err)
	}
	fp, _ = db.Find(ctx, "0195237459123")
	if fp.Status != internal.FingerprintActive || !fp.FirstSeenAt.Equal(t0) {
		t.Fatalf("fp=%+v", fp)
	}

	if missing, _ := db.Find(ctx, "nope"); missing != nil {
		t.Fatalf("missing=%+v", missing)
	}
}

func TestUpsertFingerprint(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	fp := internal.ProductFingerprint{DedupKey: "nike|dunk low|42", FirstSeenAt: t0, LastSeenAt: t0, Status: internal.FingerprintActive}
	if err := db.Upsert(ctx, fp); err != nil {
		t.Fatal(err)
	}
	fp.FirstSeenAt = t0.Add(24 * time.Hour)
	fp.LastSeenAt = t0.Add(24 * time.Hour)
	fp.Status = internal.FingerprintArchived
	if err := db.Upsert(ctx, fp); err != nil {
		t.Fatal(err)
	}
	got, err := db.Find(ctx, "nike|dunk low|42")
	if err != nil || got == nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if !got.FirstSeenAt.Equal(t0) || !got.LastSeenAt.Equal(t0.Add(24*time.Hour)) || got.Status != internal.FingerprintArchived {
		t.Fatalf("got=%+v", got)
	}
}

func TestRegisterConcurrentFirstSighting(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, err := db.Register(ctx, "nike|dunk low|42", time.Now())
			if err != nil {
				t.Error(err)
				return
			}
			if isNew {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if fresh != 1 {
		t.Fatalf("fresh=%d", fresh)
	}
}

func TestArchiveStale(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	_, _ = db.Register(ctx, "old", old)
	_, _ = db.Register(ctx, "recent", time.Now())

	n, err := db.ArchiveStale(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	fp, _ := db.Find(ctx, "old")
	if fp.Status != internal.FingerprintArchived {
		t.Fatalf("fp=%+v", fp)
	}
}

func TestMarketPrices(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	prices := []internal.MarketPrice{
		{EAN: util.StringPtr("0195237459123"), Brand: "Nike", Model: "Dunk Low", Price: decimal.RequireFromString("119.99"), Currency: "EUR"},
		{Brand: "Adidas", Model: "Samba OG", Price: decimal.RequireFromString("110")},
	}
	if err := db.UpsertMarketPrices(ctx, prices); err != nil {
		t.Fatal(err)
	}

	price, ok, err := db.MarketPriceByEAN(ctx, "0195237459123")
	if err != nil || !ok || !price.Equal(decimal.RequireFromString("119.99")) {
		t.Fatalf("price=%s ok=%v err=%v", price, ok, err)
	}
	price, ok, err = db.MarketPriceByModel(ctx, " adidas ", "SAMBA  OG")
	if err != nil || !ok || !price.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("price=%s ok=%v err=%v", price, ok, err)
	}
	if _, ok, _ := db.MarketPriceByEAN(ctx, "4006381333931"); ok {
		t.Fatal("unexpected hit")
	}

	prices[0].Price = decimal.RequireFromString("125.50")
	if err := db.UpsertMarketPrices(ctx, prices[:1]); err != nil {
		t.Fatal(err)
	}
	price, _, _ = db.MarketPriceByEAN(ctx, "0195237459123")
	if !price.Equal(decimal.RequireFromString("125.5")) {
		t.Fatalf("price=%s", price)
	}
	if n, _ := db.CountMarketPrices(ctx); n != 2 {
		t.Fatalf("count=%d", n)
	}
}

func TestSinksAndRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	record := internal.ProductRecord{
		ExternalID:    "sku-9",
		EAN:           util.StringPtr("0195237459123"),
		BrandName:     "Nike",
		ModelName:     "Dunk Low",
		SupplierPrice: decimal.RequireFromString("92"),
		LineNo:        4,
	}
	result := internal.ProfitabilityResult{
		MarginPercent: decimal.RequireFromString("8"),
		MarketPrice:   decimal.RequireFromString("100"),
		PriceSource:   "catalog",
		Reason:        "Unprofitable: 8.00% margin (min: 15.0%)",
	}

	if err := db.QueueReview(ctx, "batch-1", record, result); err != nil {
		t.Fatal(err)
	}
	if err := db.ImportAccepted(ctx, "batch-1", record, result); err != nil {
		t.Fatal(err)
	}
	if err := db.LogError(ctx, "batch-1", record, "profitability", "invalid supplier_price"); err != nil {
		t.Fatal(err)
	}

	rows, err := db.ListReviewRows(ctx, "batch-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Reason != result.Reason || rows[0].MarginPercent != 8 || util.Deref(rows[0].EAN) != "0195237459123" {
		t.Fatalf("rows=%+v", rows)
	}
	if n, _ := db.CountImportRequests(ctx, "batch-1"); n != 1 {
		t.Fatalf("imports=%d", n)
	}
	if n, _ := db.CountErrors(ctx, "batch-1"); n != 1 {
		t.Fatalf("errors=%d", n)
	}

	report := internal.BatchReport{
		BatchID:      "batch-1",
		Source:       "awin.csv",
		RunTimestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Duration:     1500 * time.Millisecond,
		Stats:        internal.ImportBatchStats{TotalSeen: 3, BrandRejected: 1, Unprofitable: 1, Errors: 1},
	}
	if err := db.InsertRun(ctx, report); err != nil {
		t.Fatal(err)
	}
	runs, err := db.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Stats != report.Stats || runs[0].Duration != report.Duration || !runs[0].RunTimestamp.Equal(report.RunTimestamp) {
		t.Fatalf("runs=%+v", runs)
	}
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)
	if v, err := db.GetMetadata("missing"); err != nil || v != nil {
		t.Fatalf("v=%v err=%v", v, err)
	}
	if err := db.SetMetadata("prices.last_sync", "a"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata("prices.last_sync", "b"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMetadata("prices.last_sync")
	if err != nil || v == nil || *v != "b" {
		t.Fatalf("v=%v err=%v", v, err)
	}
}
