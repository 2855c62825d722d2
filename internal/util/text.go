package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var reSpaces = regexp.MustCompile(`\s+`)

// NormalizeText trims, collapses inner whitespace and case-folds. It is the
// single comparison form for brand names, aliases, category text and keywords.
func NormalizeText(input string) string {
	s := strings.ReplaceAll(input, "\u00A0", " ")
	s = reSpaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	// a Caser carries state, so each call gets its own
	return cases.Fold().String(s)
}

// NormalizeEAN keeps digits only. Anything shorter than 8 digits is not a
// usable barcode and yields "".
func NormalizeEAN(input string) string {
	out := strings.Builder{}
	for _, r := range input {
		if r >= '0' && r <= '9' {
			out.WriteRune(r)
		}
	}
	ean := out.String()
	if len(ean) < 8 {
		return ""
	}
	return ean
}

// CleanEAN returns the barcode identity of a feed value: the normalized EAN
// when it is a usable barcode, else the whitespace-collapsed raw code when it
// carries any digit (short UPC-E or supplier codes). Placeholders without
// digits such as "n/a" yield "".
func CleanEAN(input string) string {
	if ean := NormalizeEAN(input); ean != "" {
		return ean
	}
	code := strings.Join(strings.Fields(input), "")
	if strings.ContainsAny(code, "0123456789") {
		return code
	}
	return ""
}

// NormalizeCode upper-cases and strips separators so model numbers like
// "DD1391-100" and "dd1391 100" compare equal.
func NormalizeCode(input string) string {
	s := strings.ToUpper(input)
	out := strings.Builder{}
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '/' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func StringPtr(v string) *string {
	return &v
}

// OptionalString returns nil for blank input.
func OptionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
