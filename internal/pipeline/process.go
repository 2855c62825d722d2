package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"feedfunnel/internal"
	"feedfunnel/internal/config"
	"feedfunnel/internal/feed"
	"feedfunnel/internal/metrics"
	"feedfunnel/internal/pricing"
	"feedfunnel/internal/rules"
	"feedfunnel/internal/storage"
)

// RunService turns a feed file into a persisted batch report.
type RunService struct {
	db       *storage.DB
	cfg      config.Config
	resolver pricing.Resolver
	logger   *slog.Logger
}

func NewRunService(db *storage.DB, cfg config.Config, resolver pricing.Resolver, logger *slog.Logger) *RunService {
	if resolver == nil {
		resolver = pricing.NewResolver(cfg, db)
	}
	return &RunService{db: db, cfg: cfg, resolver: resolver, logger: logger}
}

// RunFile reads path (format detected from the name when empty) and runs
// every record through the funnel.
func (s *RunService) RunFile(ctx context.Context, path string, format feed.Format) (internal.BatchReport, error) {
	if err := s.cfg.Validate(); err != nil {
		return internal.BatchReport{}, err
	}
	records, err := feed.ReadFile(format, path, s.cfg.FeedEncoding)
	if err != nil {
		return internal.BatchReport{}, err
	}
	return s.RunRecords(ctx, filepath.Base(path), records)
}

// RunRecords loads the rule snapshot, runs the batch and stores its report.
// A cancelled run is still reported, flagged as cancelled, together with the
// context error.
func (s *RunService) RunRecords(ctx context.Context, source string, records []internal.ProductRecord) (internal.BatchReport, error) {
	if err := s.cfg.Validate(); err != nil {
		return internal.BatchReport{}, err
	}
	snapshot, err := rules.Load(ctx, s.db)
	if err != nil {
		return internal.BatchReport{}, fmt.Errorf("load rules: %w", err)
	}

	evaluator := pricing.NewEvaluator(s.resolver, s.cfg.Funnel, s.logger)
	sinks := Sinks{Importer: s.db, Reviews: s.db, Errors: s.db}
	p := New(snapshot, s.cfg.Funnel, s.db, evaluator, sinks, s.logger).WithWorkers(s.cfg.PipelineWorkers)

	batchID := uuid.NewString()
	start := time.Now()
	s.logger.Info("feed run started", "batch_id", batchID, "source", source, "records", len(records),
		"brands", snapshot.BrandCount(), "category_rules", snapshot.CategoryRuleCount())

	stats, runErr := p.Run(ctx, batchID, records)
	report := internal.BatchReport{
		BatchID:      batchID,
		Source:       source,
		RunTimestamp: start.UTC(),
		Duration:     time.Since(start),
		Stats:        stats,
		Cancelled:    runErr != nil,
	}

	if err := s.db.InsertRun(context.WithoutCancel(ctx), report); err != nil {
		return report, fmt.Errorf("store run report: %w", err)
	}
	metrics.RecordRun(source, start, Buckets(stats))

	s.logger.Info("feed run finished",
		"batch_id", batchID,
		"source", source,
		"total_seen", stats.TotalSeen,
		"brand_rejected", stats.BrandRejected,
		"category_rejected", stats.CategoryRejected,
		"duplicate", stats.Duplicate,
		"profitable", stats.Profitable,
		"unprofitable", stats.Unprofitable,
		"errors", stats.Errors,
		"cancelled", report.Cancelled,
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, runErr
}
