package rules

import (
	"strings"

	"feedfunnel/internal"
)

// matches expects both sides already normalized.
func matches(m internal.MatchType, text, keyword string) bool {
	switch m {
	case internal.MatchExact:
		return text == keyword
	case internal.MatchContains:
		return strings.Contains(text, keyword)
	case internal.MatchStartsWith:
		return strings.HasPrefix(text, keyword)
	default:
		return false
	}
}
