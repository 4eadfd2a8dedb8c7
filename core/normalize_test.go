package core_test

import (
	"testing"

	"github.com/civintel/cityledger_backend/core"
)

func TestNormalizeName_StripsPunctuationAndSuffix(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ACME Inc.", "acme"},
		{"Acme, LLC", "acme"},
		{"  Bright  Horizons   Corp ", "bright horizons"},
		{"Sunshine Daycare", "sunshine daycare"},
		{"", ""},
		{"   ", ""},
		{"A&B Services", "a b services"},
	}
	for _, tc := range cases {
		if got := core.NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeName_StripsOnlyOneTrailingSuffix(t *testing.T) {
	// "abc co llc" keeps "co" after the single trailing "llc" strip.
	if got := core.NormalizeName("ABC Co LLC"); got != "abc co" {
		t.Fatalf("NormalizeName = %q, want %q", got, "abc co")
	}
}

func TestNormalizeName_Deterministic(t *testing.T) {
	first := core.NormalizeName("Acme Holdings, Inc.")
	for i := 0; i < 10; i++ {
		if got := core.NormalizeName("Acme Holdings, Inc."); got != first {
			t.Fatalf("normalization not stable: %q vs %q", got, first)
		}
	}
}

func TestNormalizeAddress_ExpandsWholeWordAbbreviations(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"123 Main St.", "123 main street"},
		{"45 Oak Rd, Apt 2", "45 oak road apartment 2"},
		{"9 Stanton Street", "9 stanton street"}, // "st" inside a word untouched
		{"77 Sunset Blvd", "77 sunset boulevard"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := core.NormalizeAddress(tc.in); got != tc.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBestEffortZip(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"02134", "02134"},
		{"02134-1234", "02134"},
		{"2134", ""},
		{"abcde", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := core.BestEffortZip(tc.in); got != tc.want {
			t.Errorf("BestEffortZip(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSafeInt(t *testing.T) {
	if got := core.SafeInt("1,234"); got == nil || *got != 1234 {
		t.Fatalf("SafeInt(\"1,234\") = %v, want 1234", got)
	}
	if got := core.SafeInt(" 56 "); got == nil || *got != 56 {
		t.Fatalf("SafeInt(\" 56 \") = %v, want 56", got)
	}
	if got := core.SafeInt("7.0"); got == nil || *got != 7 {
		t.Fatalf("SafeInt(\"7.0\") = %v, want 7", got)
	}
	if got := core.SafeInt("n/a"); got != nil {
		t.Fatalf("SafeInt(\"n/a\") = %v, want nil", *got)
	}
	if got := core.SafeInt(""); got != nil {
		t.Fatalf("SafeInt(\"\") = %v, want nil", *got)
	}
}

func TestSafeDecimal(t *testing.T) {
	if got := core.SafeDecimal("$1,234.50"); got.StringFixed(2) != "1234.50" {
		t.Fatalf("SafeDecimal($1,234.50) = %s", got)
	}
	if got := core.SafeDecimal("bogus"); !got.IsZero() {
		t.Fatalf("SafeDecimal(bogus) = %s, want 0", got)
	}
	if got := core.SafeDecimal(""); !got.IsZero() {
		t.Fatalf("SafeDecimal(\"\") = %s, want 0", got)
	}
}
