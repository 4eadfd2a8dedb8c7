package core

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Trailing corporate suffixes stripped from normalized names. Only the first
// trailing match is removed; "abc co llc" normalizes to "abc co".
var commonSuffixes = []string{
	" llc", " inc", " corp", " co", " ltd", " company", " incorporated", " foundation",
	" pc", " pllc", " llp", " lp", " nonprofit", " non profit",
}

// Whole-word street abbreviation expansions applied before punctuation is
// stripped, so "St." still matches.
var addressAbbreviations = map[string]string{
	"st":   "street",
	"rd":   "road",
	"ave":  "avenue",
	"blvd": "boulevard",
	"dr":   "drive",
	"apt":  "apartment",
}

var (
	nonAlnumRe    = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	leadingZipRe  = regexp.MustCompile(`^(\d{5})`)
	abbreviations map[string]*regexp.Regexp
)

func init() {
	abbreviations = make(map[string]*regexp.Regexp, len(addressAbbreviations))
	for abbr := range addressAbbreviations {
		abbreviations[abbr] = regexp.MustCompile(`\b` + abbr + `\b`)
	}
}

// NormalizeName lowercases, strips punctuation, collapses whitespace and
// removes at most one trailing corporate suffix. Deterministic and total.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	for _, suf := range commonSuffixes {
		if strings.HasSuffix(s, suf) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suf))
			break
		}
	}
	return s
}

// NormalizeAddress lowercases, expands whole-word street abbreviations,
// strips punctuation and collapses whitespace.
func NormalizeAddress(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	if s == "" {
		return ""
	}
	for abbr, re := range abbreviations {
		s = re.ReplaceAllString(s, addressAbbreviations[abbr])
	}
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	return s
}

// BestEffortZip extracts a leading 5-digit run, or "" when none is present.
func BestEffortZip(z string) string {
	z = strings.TrimSpace(z)
	if z == "" {
		return ""
	}
	m := leadingZipRe.FindStringSubmatch(z)
	if m == nil {
		return ""
	}
	return m[1]
}

// SafeInt coerces a loosely formatted numeric string ("1,234", " 56 ", "7.0")
// to an int. Returns nil instead of failing.
func SafeInt(v string) *int {
	v = strings.NewReplacer(",", "", "$", "").Replace(strings.TrimSpace(v))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	n := int(f)
	return &n
}

// SafeFloat coerces a loosely formatted numeric string to a float64,
// returning 0 on failure.
func SafeFloat(v string) float64 {
	v = strings.NewReplacer(",", "", "$", "").Replace(strings.TrimSpace(v))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// SafeDecimal coerces a loosely formatted amount string to a decimal,
// returning zero on failure.
func SafeDecimal(v string) decimal.Decimal {
	v = strings.NewReplacer(",", "", "$", "").Replace(strings.TrimSpace(v))
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
