package feed

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"feedfunnel/internal"
	"feedfunnel/internal/util"
)

type field int

const (
	fieldExternalID field = iota
	fieldEAN
	fieldBrand
	fieldCategory
	fieldPrice
	fieldModel
	fieldName
	fieldSize
	fieldColor
	fieldCurrency
	fieldInStock
	fieldStockQty
	fieldLink
	fieldMerchant
)

// Awin column names first, then generic fallbacks. The first alias present
// in the header wins.
var aliases = map[field][]string{
	fieldExternalID: {"aw_product_id", "merchant_product_id", "product_id", "sku", "id"},
	fieldEAN:        {"ean", "product_gtin", "gtin", "upc", "barcode"},
	fieldBrand:      {"brand_name", "brand"},
	fieldCategory:   {"merchant_category", "category_name", "category", "merchant_product_category_path"},
	fieldPrice:      {"search_price", "store_price", "price", "rrp_price"},
	fieldModel:      {"product_model", "model", "model_number"},
	fieldName:       {"product_name", "name", "title"},
	fieldSize:       {"fashion:size", "size"},
	fieldColor:      {"colour", "color"},
	fieldCurrency:   {"currency"},
	fieldInStock:    {"in_stock", "instock", "availability"},
	fieldStockQty:   {"stock_quantity", "stock_qty", "quantity"},
	fieldLink:       {"aw_deep_link", "merchant_deep_link", "deep_link", "link"},
	fieldMerchant:   {"merchant_name", "merchant"},
}

type columns map[field]int

func headerIndex(header []string) columns {
	byName := map[string]int{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		name = strings.Join(strings.Fields(name), "_")
		if _, ok := byName[name]; !ok {
			byName[name] = i
		}
	}
	out := columns{}
	for f, names := range aliases {
		for _, name := range names {
			if idx, ok := byName[name]; ok {
				out[f] = idx
				break
			}
		}
	}
	return out
}

func (c columns) has(f field) bool {
	_, ok := c[f]
	return ok
}

func (c columns) get(row []string, f field) string {
	idx, ok := c[f]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// mapRecords turns a header-first table into records. Rows with an
// unparseable price keep a zero price so the pipeline counts them as errors
// instead of losing them.
func mapRecords(table [][]string) ([]internal.ProductRecord, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("feed is empty")
	}
	cols := headerIndex(table[0])
	for _, required := range []field{fieldBrand, fieldPrice} {
		if !cols.has(required) {
			return nil, fmt.Errorf("feed header lacks a %s column", aliases[required][0])
		}
	}

	out := make([]internal.ProductRecord, 0, len(table)-1)
	for i, row := range table[1:] {
		if blank(row) {
			continue
		}
		out = append(out, toRecord(cols, row, i+2))
	}
	return out, nil
}

func toRecord(cols columns, row []string, lineNo int) internal.ProductRecord {
	name := cols.get(row, fieldName)
	model := cols.get(row, fieldModel)
	if model == "" {
		model = name
	}

	rec := internal.ProductRecord{
		LineNo:        lineNo,
		ExternalID:    cols.get(row, fieldExternalID),
		BrandName:     cols.get(row, fieldBrand),
		CategoryText:  cols.get(row, fieldCategory),
		ModelName:     model,
		ProductName:   name,
		Size:          util.OptionalString(cols.get(row, fieldSize)),
		Color:         util.OptionalString(cols.get(row, fieldColor)),
		Currency:      strings.ToUpper(cols.get(row, fieldCurrency)),
		InStock:       parseFlag(cols.get(row, fieldInStock)),
		AffiliateLink: util.OptionalString(cols.get(row, fieldLink)),
		MerchantName:  util.OptionalString(cols.get(row, fieldMerchant)),
	}
	if rec.ExternalID == "" {
		rec.ExternalID = fmt.Sprintf("line-%d", lineNo)
	}
	if ean := util.CleanEAN(cols.get(row, fieldEAN)); ean != "" {
		rec.EAN = &ean
	}
	if price, err := util.ParseAmount(cols.get(row, fieldPrice)); err == nil {
		rec.SupplierPrice = price
	} else {
		rec.SupplierPrice = decimal.Zero
	}
	if qty, err := strconv.Atoi(cols.get(row, fieldStockQty)); err == nil {
		rec.StockQuantity = qty
	}
	return rec
}

func parseFlag(v string) bool {
	switch strings.ToLower(v) {
	case "1", "y", "yes", "true", "in stock", "instock", "in_stock":
		return true
	default:
		return false
	}
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
