package dedup

import (
	"strings"

	"feedfunnel/internal"
	"feedfunnel/internal/util"
)

// Key is the EAN whenever the record carries one with digits, short codes
// included, otherwise the brand|model|size composite. The composite is
// weaker: two colourways of the same model and size collapse into one key.
func Key(record internal.ProductRecord) string {
	if record.EAN != nil {
		if ean := util.CleanEAN(*record.EAN); ean != "" {
			return ean
		}
	}
	parts := []string{
		util.NormalizeText(record.BrandName),
		util.NormalizeText(record.ModelName),
		util.NormalizeText(util.Deref(record.Size)),
	}
	return strings.Join(parts, "|")
}
