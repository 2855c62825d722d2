package listener

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"feedfunnel/internal/config"
	"feedfunnel/internal/feed"
	"feedfunnel/internal/metrics"
	"feedfunnel/internal/pipeline"
	"feedfunnel/internal/storage"
)

// Service watches FEED_DIR and runs every feed file it has not seen before.
// Files are identified by content hash, so a renamed copy is skipped and an
// overwritten file with new content is run again.
type Service struct {
	db     *storage.DB
	cfg    config.Config
	runner *pipeline.RunService
	logger *slog.Logger
}

func NewService(db *storage.DB, cfg config.Config, runner *pipeline.RunService, logger *slog.Logger) *Service {
	return &Service{db: db, cfg: cfg, runner: runner, logger: logger}
}

type CycleResult struct {
	Scanned  int
	Run      int
	Skipped  int
	Failed   int
	Exported int
}

func (s *Service) Run(ctx context.Context) error {
	if s.cfg.MetricsAddr != "" {
		srv := s.serveMetrics()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	interval := time.Duration(s.cfg.ListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	for {
		res, err := s.RunCycle(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("listener cycle error", "err", err)
		} else if err == nil {
			s.logger.Info("listener cycle done",
				"dir", s.cfg.FeedDir, "scanned", res.Scanned, "run", res.Run, "skipped", res.Skipped,
				"failed", res.Failed, "exported", res.Exported)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "addr", s.cfg.MetricsAddr, "err", err)
		}
	}()
	s.logger.Info("serving metrics", "addr", s.cfg.MetricsAddr)
	return srv
}

// RunCycle processes every new feed file in FEED_DIR once, oldest name first.
// A file whose run fails is retried on the next cycle.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	entries, err := os.ReadDir(s.cfg.FeedDir)
	if err != nil {
		return res, fmt.Errorf("read feed dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := feed.DetectFormat(entry.Name()); err != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++

		path := filepath.Join(s.cfg.FeedDir, entry.Name())
		digest, err := fileDigest(path)
		if err != nil {
			res.Failed++
			s.logger.Error("hash feed file", "file", entry.Name(), "err", err)
			continue
		}
		key := "feed.sha256." + digest
		if seen, err := s.db.GetMetadata(key); err != nil {
			return res, err
		} else if seen != nil {
			res.Skipped++
			continue
		}

		report, err := s.runner.RunFile(ctx, path, "")
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			s.logger.Error("feed run failed", "file", entry.Name(), "err", err)
			continue
		}
		res.Run++
		if err := s.db.SetMetadata(key, report.BatchID); err != nil {
			return res, err
		}

		if s.cfg.ListenerAutoExport {
			exported, err := s.exportReview(ctx, report.BatchID)
			if err != nil {
				s.logger.Error("review export failed", "batch_id", report.BatchID, "err", err)
				continue
			}
			if exported {
				res.Exported++
			}
		}
	}
	return res, nil
}

func (s *Service) exportReview(ctx context.Context, batchID string) (bool, error) {
	rows, err := s.db.ListReviewRows(ctx, batchID)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	outputPath := filepath.Join(s.cfg.OutputDir, "listener", "review_"+batchID+".xlsx")
	if err := pipeline.ExportReviewXLSX(rows, outputPath); err != nil {
		return false, err
	}
	return true, nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
