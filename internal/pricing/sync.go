package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"feedfunnel/internal"
	"feedfunnel/internal/util"
)

// PriceSink receives synced market prices. storage.DB implements it.
type PriceSink interface {
	UpsertMarketPrices(ctx context.Context, prices []internal.MarketPrice) error
	SetMetadata(key, value string) error
}

type scrollPayload struct {
	Prices   []scrollPrice `json:"prices"`
	ScrollID *string       `json:"scrollId"`
}

type scrollPrice struct {
	EAN       string           `json:"ean"`
	Brand     string           `json:"brand"`
	Model     string           `json:"model"`
	Price     *decimal.Decimal `json:"price"`
	Currency  string           `json:"currency"`
	UpdatedAt string           `json:"updatedAt"`
}

// SyncService mirrors the resale platform's price list into the local
// market_prices table so most lookups never leave the database.
type SyncService struct {
	client *Client
	sink   PriceSink
}

func NewSyncService(client *Client, sink PriceSink) *SyncService {
	return &SyncService{client: client, sink: sink}
}

// Sync pulls all prices, or only those changed in the last sinceHours when
// sinceHours > 0.
func (s *SyncService) Sync(ctx context.Context, sinceHours int) (int, error) {
	params := map[string]string{}
	if sinceHours > 0 {
		params["hours"] = fmt.Sprint(sinceHours)
	}

	prices, err := s.scroll(ctx, params)
	if err != nil {
		return 0, err
	}
	if len(prices) > 0 {
		if err := s.sink.UpsertMarketPrices(ctx, prices); err != nil {
			return 0, err
		}
	}
	if err := s.sink.SetMetadata("prices.last_sync", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return len(prices), fmt.Errorf("record last sync: %w", err)
	}
	return len(prices), nil
}

func (s *SyncService) scroll(ctx context.Context, params map[string]string) ([]internal.MarketPrice, error) {
	all := make([]internal.MarketPrice, 0)
	seen := map[string]struct{}{}
	var scrollID string

	for {
		query := map[string]string{}
		for k, v := range params {
			query[k] = v
		}
		if scrollID != "" {
			query["scrollId"] = scrollID
		}

		body, err := s.client.fetchJSON(ctx, "market-price/scroll", query)
		if err != nil {
			return nil, err
		}

		var payload scrollPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}

		for _, raw := range payload.Prices {
			if price, ok := toMarketPrice(raw); ok {
				all = append(all, price)
			}
		}

		if payload.ScrollID == nil || *payload.ScrollID == "" || len(payload.Prices) == 0 {
			break
		}
		if _, ok := seen[*payload.ScrollID]; ok {
			break
		}
		seen[*payload.ScrollID] = struct{}{}
		scrollID = *payload.ScrollID
	}

	return all, nil
}

func toMarketPrice(raw scrollPrice) (internal.MarketPrice, bool) {
	if raw.Price == nil || !raw.Price.IsPositive() {
		return internal.MarketPrice{}, false
	}
	ean := util.NormalizeEAN(raw.EAN)
	brand := strings.TrimSpace(raw.Brand)
	model := strings.TrimSpace(raw.Model)
	if ean == "" && (brand == "" || model == "") {
		return internal.MarketPrice{}, false
	}
	out := internal.MarketPrice{
		Brand:     brand,
		Model:     model,
		Price:     *raw.Price,
		Currency:  strings.TrimSpace(raw.Currency),
		UpdatedAt: util.OptionalString(raw.UpdatedAt),
	}
	if ean != "" {
		out.EAN = &ean
	}
	return out, true
}
