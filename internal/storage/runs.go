package storage

import (
	"context"
	"strings"
	"time"

	"feedfunnel/internal"
)

// ImportAccepted writes an import request for the catalog importer.
func (d *DB) ImportAccepted(ctx context.Context, batchID string, record internal.ProductRecord, result internal.ProfitabilityResult) error {
	_, err := d.exec(ctx, `
INSERT INTO import_requests (
  batch_id, external_id, ean, brand_name, model_name, supplier_price,
  market_price, margin_percent, roi_percent, price_source, affiliate_link, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, batchID, record.ExternalID, record.EAN, record.BrandName, record.ModelName, record.SupplierPrice,
		result.MarketPrice, result.MarginPercent, result.ROIPercent, result.PriceSource, record.AffiliateLink, now())
	return err
}

// QueueReview writes an unprofitable record to the manual review queue.
func (d *DB) QueueReview(ctx context.Context, batchID string, record internal.ProductRecord, result internal.ProfitabilityResult) error {
	_, err := d.exec(ctx, `
INSERT INTO review_queue (
  batch_id, external_id, ean, brand_name, model_name, supplier_price,
  market_price, estimated, margin_percent, reason, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, batchID, record.ExternalID, record.EAN, record.BrandName, record.ModelName, record.SupplierPrice,
		result.MarketPrice, result.MarketPriceIsEstimated, result.MarginPercent, result.Reason, now())
	return err
}

func (d *DB) LogError(ctx context.Context, batchID string, record internal.ProductRecord, stage, message string) error {
	_, err := d.exec(ctx, `
INSERT INTO error_log (batch_id, external_id, line_no, stage, message, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, batchID, record.ExternalID, record.LineNo, stage, message, now())
	return err
}

func (d *DB) InsertRun(ctx context.Context, report internal.BatchReport) error {
	s := report.Stats
	_, err := d.exec(ctx, `
INSERT INTO import_runs (
  batch_id, source, run_ts, duration_ms, total_seen, brand_rejected, category_rejected,
  duplicate, profitable, unprofitable, errors, cancelled
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, report.BatchID, report.Source, stamp(report.RunTimestamp), report.Duration.Milliseconds(),
		s.TotalSeen, s.BrandRejected, s.CategoryRejected, s.Duplicate, s.Profitable, s.Unprofitable, s.Errors, report.Cancelled)
	return err
}

type runRow struct {
	BatchID          string `db:"batch_id"`
	Source           string `db:"source"`
	RunTS            string `db:"run_ts"`
	DurationMs       int64  `db:"duration_ms"`
	TotalSeen        int    `db:"total_seen"`
	BrandRejected    int    `db:"brand_rejected"`
	CategoryRejected int    `db:"category_rejected"`
	Duplicate        int    `db:"duplicate"`
	Profitable       int    `db:"profitable"`
	Unprofitable     int    `db:"unprofitable"`
	Errors           int    `db:"errors"`
	Cancelled        bool   `db:"cancelled"`
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]internal.BatchReport, error) {
	query := `
SELECT batch_id, source, run_ts, duration_ms, total_seen, brand_rejected, category_rejected,
       duplicate, profitable, unprofitable, errors, cancelled
FROM import_runs ORDER BY run_ts DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []runRow
	if err := d.conn.SelectContext(ctx, &rows, d.conn.Rebind(query), args...); err != nil {
		return nil, err
	}

	out := make([]internal.BatchReport, 0, len(rows))
	for _, r := range rows {
		ts, _ := time.Parse(timeLayout, r.RunTS)
		out = append(out, internal.BatchReport{
			BatchID:      r.BatchID,
			Source:       r.Source,
			RunTimestamp: ts,
			Duration:     time.Duration(r.DurationMs) * time.Millisecond,
			Cancelled:    r.Cancelled,
			Stats: internal.ImportBatchStats{
				TotalSeen:        r.TotalSeen,
				BrandRejected:    r.BrandRejected,
				CategoryRejected: r.CategoryRejected,
				Duplicate:        r.Duplicate,
				Profitable:       r.Profitable,
				Unprofitable:     r.Unprofitable,
				Errors:           r.Errors,
			},
		})
	}
	return out, nil
}

// ListReviewRows returns the review queue of one batch, or of every batch
// when batchID is empty, highest margin first.
func (d *DB) ListReviewRows(ctx context.Context, batchID string) ([]internal.ReviewRow, error) {
	query := `
SELECT id, batch_id, external_id, ean, brand_name, model_name, supplier_price,
       market_price, estimated, margin_percent, reason, created_at
FROM review_queue`
	args := []any{}
	if batchID = strings.TrimSpace(batchID); batchID != "" {
		query += ` WHERE batch_id = ?`
		args = append(args, batchID)
	}
	query += ` ORDER BY margin_percent DESC, id ASC`

	var out []internal.ReviewRow
	err := d.conn.SelectContext(ctx, &out, d.conn.Rebind(query), args...)
	return out, err
}

func (d *DB) CountErrors(ctx context.Context, batchID string) (int, error) {
	var n int
	err := d.conn.GetContext(ctx, &n, d.conn.Rebind(`SELECT COUNT(*) FROM error_log WHERE batch_id = ?`), batchID)
	return n, err
}

func (d *DB) CountImportRequests(ctx context.Context, batchID string) (int, error) {
	var n int
	err := d.conn.GetContext(ctx, &n, d.conn.Rebind(`SELECT COUNT(*) FROM import_requests WHERE batch_id = ?`), batchID)
	return n, err
}
