package core_test

import (
	"testing"

	"github.com/civintel/cityledger_backend/core"
)

func TestSimilarity_Bounds(t *testing.T) {
	if got := core.Similarity("", "anything"); got != 0 {
		t.Fatalf("empty input similarity = %v, want 0", got)
	}
	if got := core.Similarity("anything", ""); got != 0 {
		t.Fatalf("empty input similarity = %v, want 0", got)
	}
	if got := core.Similarity("acme", "acme"); got != 1 {
		t.Fatalf("identical similarity = %v, want 1", got)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	a, b := "sunshine daycare", "sunshine dayycare"
	if core.Similarity(a, b) != core.Similarity(b, a) {
		t.Fatalf("similarity not symmetric for %q / %q", a, b)
	}
}

func TestSimilarity_RatioOverLongerString(t *testing.T) {
	// One edit over max length 10.
	if got, want := core.Similarity("aaaaaaaaaa", "aaaaaaaaab"), 0.9; got != want {
		t.Fatalf("similarity = %v, want %v", got, want)
	}
	// Three edits over max length 20 must equal exactly 17/20.
	a := "aaaaaaaaaabbbbbbbbbb"
	b := "aaaaaaaaaabbbbbbbccc"
	if got, want := core.Similarity(a, b), 17.0/20.0; got != want {
		t.Fatalf("similarity = %v, want %v", got, want)
	}
}

func TestSimilarity_DisjointStrings(t *testing.T) {
	if got := core.Similarity("abc", "xyz"); got != 0 {
		t.Fatalf("disjoint similarity = %v, want 0", got)
	}
}
