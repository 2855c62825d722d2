package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"feedfunnel/internal"
	"feedfunnel/internal/config"
	"feedfunnel/internal/logging"
	"feedfunnel/internal/storage"
	"feedfunnel/internal/util"
)

const smokeFeed = `aw_product_id,brand_name,merchant_category,search_price,ean,product_model
s1,Nike,Sneakers,85.99,0195237459123,Dunk Low
s2,Nike,Sneakers,92.00,0195237459124,Air Max 90
s3,Puma,Sneakers,40.00,0195237459125,Suede
s4,Adidas,Sandals,20.00,0195237459126,Adilette
s5,Adidas,Sneakers,0,0195237459127,Samba
s6,Adidas,Sneakers,100.00,,Gazelle
`

func TestSmokeFeedToXLSX(t *testing.T) {
	tmp := t.TempDir()
	ctx := context.Background()

	db, err := storage.Open("sqlite", filepath.Join(tmp, "funnel.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	err = db.ReplaceRules(ctx,
		[]internal.BrandRule{
			{CanonicalName: "Nike", Active: true},
			{CanonicalName: "Adidas", Active: true},
		},
		[]internal.CategoryRule{
			{Keyword: "sneaker", Include: true, MatchType: internal.MatchContains, Active: true},
			{Keyword: "sandal", Include: false, MatchType: internal.MatchContains, Active: true},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	err = db.UpsertMarketPrices(ctx, []internal.MarketPrice{
		{EAN: util.StringPtr("0195237459123"), Price: decimal.RequireFromString("119.99")},
		{EAN: util.StringPtr("0195237459124"), Price: decimal.RequireFromString("100")},
	})
	if err != nil {
		t.Fatal(err)
	}

	feedPath := filepath.Join(tmp, "awin.csv")
	if err := os.WriteFile(feedPath, []byte(smokeFeed), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{DBDriver: "sqlite", Funnel: config.DefaultFunnel(), PipelineWorkers: 2}
	svc := NewRunService(db, cfg, nil, logging.Discard())

	first, err := svc.RunFile(ctx, feedPath, "")
	if err != nil {
		t.Fatal(err)
	}
	// s1 profitable (catalog), s2 8% margin, s3 brand, s4 category, s5 zero price,
	// s6 heuristic 125 -> 20% margin
	want := internal.ImportBatchStats{TotalSeen: 6, BrandRejected: 1, CategoryRejected: 1, Profitable: 2, Unprofitable: 1, Errors: 1}
	if first.Stats != want {
		t.Fatalf("first=%+v", first.Stats)
	}
	if first.BatchID == "" || first.Source != "awin.csv" || first.Cancelled {
		t.Fatalf("report=%+v", first)
	}

	second, err := svc.RunFile(ctx, feedPath, "")
	if err != nil {
		t.Fatal(err)
	}
	if second.Stats.Duplicate != 4 || second.Stats.TotalSeen != 6 || second.Stats.Terminal() != 6 {
		t.Fatalf("second=%+v", second.Stats)
	}

	if n, _ := db.CountImportRequests(ctx, first.BatchID); n != 2 {
		t.Fatalf("imports=%d", n)
	}
	if n, _ := db.CountErrors(ctx, first.BatchID); n != 1 {
		t.Fatalf("errors=%d", n)
	}

	reviews, err := db.ListReviewRows(ctx, first.BatchID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 1 || reviews[0].ExternalID != "s2" || reviews[0].Estimated {
		t.Fatalf("reviews=%+v", reviews)
	}

	runs, err := db.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs=%d", len(runs))
	}

	reviewOut := filepath.Join(tmp, "out", "review.xlsx")
	if err := ExportReviewXLSX(reviews, reviewOut); err != nil {
		t.Fatal(err)
	}
	runsOut := filepath.Join(tmp, "out", "runs.xlsx")
	if err := ExportRunsXLSX(runs, runsOut); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(reviewOut)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows("review")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][1] != "s2" {
		t.Fatalf("rows=%v", rows)
	}
}
