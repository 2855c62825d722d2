package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"feedfunnel/internal/config"
	"feedfunnel/internal/feed"
	"feedfunnel/internal/listener"
	"feedfunnel/internal/logging"
	"feedfunnel/internal/pipeline"
	"feedfunnel/internal/pricing"
	"feedfunnel/internal/rules"
	"feedfunnel/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	db, err := storage.Open(cfg.DBDriver, cfg.DBDSN)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "rules:load":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", cfg.RulesFile, "YAML rule seed")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file or RULES_FILE is required"))
		}
		seed, err := rules.LoadFile(*file)
		must(err)
		// refuse a seed that would not load as a snapshot
		snapshot, err := rules.NewSnapshot(seed.Brands, seed.Categories)
		must(err)
		must(db.ReplaceRules(ctx, seed.Brands, seed.Categories))
		fmt.Printf("rules loaded brands=%d aliases=%d category_rules=%d\n", len(seed.Brands), snapshot.BrandCount(), snapshot.CategoryRuleCount())
	case "feed:run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "feed file path")
		format := fs.String("format", "", "csv|csv.gz|xlsx|html (default: from file name)")
		workers := fs.Int("workers", cfg.PipelineWorkers, "records processed concurrently")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		cfg.PipelineWorkers = *workers
		svc := pipeline.NewRunService(db, cfg, nil, logger)
		report, err := svc.RunFile(ctx, *file, feed.Format(*format))
		s := report.Stats
		if report.BatchID != "" {
			fmt.Printf("feed run done batch=%s total=%d brand_rejected=%d category_rejected=%d duplicate=%d profitable=%d unprofitable=%d errors=%d cancelled=%t duration=%s\n",
				report.BatchID, s.TotalSeen, s.BrandRejected, s.CategoryRejected, s.Duplicate, s.Profitable, s.Unprofitable, s.Errors,
				report.Cancelled, report.Duration.Round(time.Millisecond))
		}
		must(err)
	case "prices:sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		hours := fs.Int("hours", 0, "only prices changed in the last N hours (0 = full)")
		_ = fs.Parse(os.Args[2:])
		must(cfg.Require("RESOLVER_API_BASE_URL", cfg.ResolverAPIBaseURL))
		must(cfg.Require("RESOLVER_API_TOKEN", cfg.ResolverAPIToken))
		svc := pricing.NewSyncService(pricing.NewClient(cfg), db)
		count, err := svc.Sync(ctx, *hours)
		must(err)
		fmt.Printf("price sync complete hours=%d prices=%d\n", *hours, count)
	case "fingerprints:archive":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		key := fs.String("key", "", "dedup key (EAN or brand|model|size)")
		olderThan := fs.Int("older-than-days", 0, "archive fingerprints not seen for N days")
		_ = fs.Parse(os.Args[2:])
		switch {
		case strings.TrimSpace(*key) != "":
			ok, err := db.Archive(ctx, *key)
			must(err)
			if !ok {
				must(fmt.Errorf("no fingerprint for key %q", *key))
			}
			fmt.Printf("archived fingerprint key=%s\n", *key)
		case *olderThan > 0:
			n, err := db.ArchiveStale(ctx, time.Now().AddDate(0, 0, -*olderThan))
			must(err)
			fmt.Printf("archived fingerprints=%d older_than_days=%d\n", n, *olderThan)
		default:
			must(fmt.Errorf("--key or --older-than-days is required"))
		}
	case "export:review":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		batch := fs.String("batch", "", "batch id (default: all batches)")
		out := fs.String("out", filepath.Join(cfg.OutputDir, "review.xlsx"), "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		rows, err := db.ListReviewRows(ctx, *batch)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("review queue is empty for batch=%q", *batch))
		}
		must(pipeline.ExportReviewXLSX(rows, *out))
		fmt.Printf("exported %d review rows to %s\n", len(rows), *out)
	case "export:runs":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 100, "most recent runs (0 = all)")
		out := fs.String("out", filepath.Join(cfg.OutputDir, "runs.xlsx"), "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		reports, err := db.ListRuns(ctx, *limit)
		must(err)
		must(pipeline.ExportRunsXLSX(reports, *out))
		fmt.Printf("exported %d runs to %s\n", len(reports), *out)
	case "listen":
		must(cfg.Validate())
		runner := pipeline.NewRunService(db, cfg, nil, logger)
		svc := listener.NewService(db, cfg, runner, logger)
		must(svc.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: feedfunnel <command>")
	fmt.Println("commands:")
	fmt.Println("  rules:load [--file=rules.yaml]")
	fmt.Println("  feed:run --file=./data/feeds/awin.csv.gz [--format=csv|csv.gz|xlsx|html] [--workers=4]")
	fmt.Println("  prices:sync [--hours=24]")
	fmt.Println("  fingerprints:archive --key=0195237459123 | --older-than-days=90")
	fmt.Println("  export:review [--batch=<uuid>] [--out=./out/review.xlsx]")
	fmt.Println("  export:runs [--limit=100] [--out=./out/runs.xlsx]")
	fmt.Println("  listen")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
