package core

import "github.com/agnivade/levenshtein"

// Similarity returns a pairwise string similarity in [0,1] based on the
// Levenshtein edit distance over runes: (maxLen - distance) / maxLen.
// Empty input on either side scores 0. Callers are expected to pass
// already-normalized strings.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	d := levenshtein.ComputeDistance(a, b)
	if d >= maxLen {
		return 0
	}
	return float64(maxLen-d) / float64(maxLen)
}
