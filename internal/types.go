package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductRecord struct {
	LineNo        int
	ExternalID    string
	EAN           *string
	BrandName     string
	CategoryText  string
	SupplierPrice decimal.Decimal
	ModelName     string
	ProductName   string
	Size          *string
	Color         *string
	Currency      string
	InStock       bool
	StockQuantity int
	AffiliateLink *string
	MerchantName  *string
}

type BrandRule struct {
	CanonicalName string   `json:"canonical_name"`
	Variations    []string `json:"variations"`
	Active        bool     `json:"active"`
	Priority      int      `json:"priority"`
}

type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchContains   MatchType = "contains"
	MatchStartsWith MatchType = "starts_with"
)

func (m MatchType) Valid() bool {
	switch m {
	case MatchExact, MatchContains, MatchStartsWith:
		return true
	default:
		return false
	}
}

type CategoryRule struct {
	Keyword   string    `json:"keyword"`
	Include   bool      `json:"include"`
	MatchType MatchType `json:"match_type"`
	Active    bool      `json:"active"`
}

type FingerprintStatus string

const (
	FingerprintActive   FingerprintStatus = "active"
	FingerprintArchived FingerprintStatus = "archived"
)

type ProductFingerprint struct {
	DedupKey    string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	Status      FingerprintStatus
}

type DedupOutcome string

const (
	DedupNew       DedupOutcome = "new"
	DedupDuplicate DedupOutcome = "duplicate"
)

const PriceSourceHeuristic = "heuristic"

type ProfitabilityResult struct {
	IsProfitable           bool            `json:"is_profitable"`
	MarginPercent          decimal.Decimal `json:"margin_percent"`
	AbsoluteProfit         decimal.Decimal `json:"absolute_profit"`
	ROIPercent             decimal.Decimal `json:"roi_percent"`
	MarketPrice            decimal.Decimal `json:"market_price"`
	MarketPriceIsEstimated bool            `json:"market_price_is_estimated"`
	PriceSource            string          `json:"price_source"`
	Reason                 string          `json:"reason"`
}

type ImportBatchStats struct {
	TotalSeen        int `json:"total_seen"`
	BrandRejected    int `json:"brand_rejected"`
	CategoryRejected int `json:"category_rejected"`
	Duplicate        int `json:"duplicate"`
	Profitable       int `json:"profitable"`
	Unprofitable     int `json:"unprofitable"`
	Errors           int `json:"errors"`
}

// Terminal returns the sum of the six terminal buckets. It equals TotalSeen for
// every consistent snapshot.
func (s ImportBatchStats) Terminal() int {
	return s.BrandRejected + s.CategoryRejected + s.Duplicate + s.Profitable + s.Unprofitable + s.Errors
}

type BatchReport struct {
	BatchID      string
	Source       string
	RunTimestamp time.Time
	Duration     time.Duration
	Stats        ImportBatchStats
	Cancelled    bool
}

type ReviewRow struct {
	ID            int     `db:"id"`
	BatchID       string  `db:"batch_id"`
	ExternalID    string  `db:"external_id"`
	EAN           *string `db:"ean"`
	BrandName     string  `db:"brand_name"`
	ModelName     string  `db:"model_name"`
	SupplierPrice float64 `db:"supplier_price"`
	MarketPrice   float64 `db:"market_price"`
	Estimated     bool    `db:"estimated"`
	MarginPercent float64 `db:"margin_percent"`
	Reason        string  `db:"reason"`
	CreatedAt     string  `db:"created_at"`
}

type MarketPrice struct {
	EAN       *string
	Brand     string
	Model     string
	Price     decimal.Decimal
	Currency  string
	UpdatedAt *string
}
