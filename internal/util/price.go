package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	reAmount        = regexp.MustCompile(`-?\d{1,3}(?:[\s.,']\d{3})+(?:[.,]\d+)?|-?\d+(?:[.,]\d+)?`)
	reThousandDot   = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+$`)
	reThousandComma = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+$`)
)

// ParseAmount reads a price as it appears in merchant feeds: "85.99",
// "85,99", "1.299,00", "1,299.00", "EUR 1 299,00", "€85,99".
func ParseAmount(input string) (decimal.Decimal, error) {
	line := strings.ReplaceAll(input, "\u00A0", " ")
	token := reAmount.FindString(line)
	if token == "" {
		return decimal.Zero, fmt.Errorf("no amount in %q", input)
	}
	return decimal.NewFromString(normalizeNumericToken(token))
}

func normalizeNumericToken(token string) string {
	compact := strings.NewReplacer(" ", "", "'", "").Replace(token)
	if reThousandDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if reThousandComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}

	lastDot := strings.LastIndex(compact, ".")
	lastComma := strings.LastIndex(compact, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// whichever separator comes last is the decimal one
		if lastComma > lastDot {
			compact = strings.ReplaceAll(compact, ".", "")
			return strings.Replace(compact, ",", ".", 1)
		}
		return strings.ReplaceAll(compact, ",", "")
	case lastComma >= 0:
		return strings.Replace(compact, ",", ".", 1)
	}
	return compact
}
