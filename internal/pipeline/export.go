package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"feedfunnel/internal"
	"feedfunnel/internal/util"
)

// ExportReviewXLSX writes the review queue for manual inspection.
func ExportReviewXLSX(rows []internal.ReviewRow, outputPath string) error {
	headers := []string{
		"batch_id", "external_id", "ean", "brand", "model",
		"supplier_price", "market_price", "estimated", "margin_percent", "reason", "queued_at",
	}
	return writeSheet(outputPath, "review", headers, len(rows), func(i int, set func(col int, value any)) {
		row := rows[i]
		set(1, row.BatchID)
		set(2, row.ExternalID)
		set(3, util.Deref(row.EAN))
		set(4, row.BrandName)
		set(5, row.ModelName)
		set(6, row.SupplierPrice)
		set(7, row.MarketPrice)
		set(8, row.Estimated)
		set(9, row.MarginPercent)
		set(10, row.Reason)
		set(11, row.CreatedAt)
	})
}

// ExportRunsXLSX writes one line per batch report.
func ExportRunsXLSX(reports []internal.BatchReport, outputPath string) error {
	headers := []string{
		"batch_id", "source", "run_timestamp", "duration_ms", "cancelled",
		"total_seen", "brand_rejected", "category_rejected", "duplicate", "profitable", "unprofitable", "errors",
	}
	return writeSheet(outputPath, "runs", headers, len(reports), func(i int, set func(col int, value any)) {
		r := reports[i]
		set(1, r.BatchID)
		set(2, r.Source)
		set(3, r.RunTimestamp.UTC().Format("2006-01-02 15:04:05"))
		set(4, r.Duration.Milliseconds())
		set(5, r.Cancelled)
		set(6, r.Stats.TotalSeen)
		set(7, r.Stats.BrandRejected)
		set(8, r.Stats.CategoryRejected)
		set(9, r.Stats.Duplicate)
		set(10, r.Stats.Profitable)
		set(11, r.Stats.Unprofitable)
		set(12, r.Stats.Errors)
	})
}

func writeSheet(outputPath, sheetName string, headers []string, n int, fill func(i int, set func(col int, value any))) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, sheetName); err != nil {
		return err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	for i := 0; i < n; i++ {
		r := i + 2
		fill(i, func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheetName, cell, value)
		})
	}
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
