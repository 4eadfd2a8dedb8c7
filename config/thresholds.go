package config

import (
	"os"
	"strconv"
)

// Confidence thresholds. The defaults come from the tuned production values;
// they are overridable by env but intentionally not re-derived.
var (
	// MatchAcceptFloor is the minimum combined score at which the matcher
	// links a candidate to an entity at all (inclusive).
	MatchAcceptFloor = envFloat("MATCH_ACCEPT_FLOOR", 0.72)

	// MatchReviewBar is the stricter bar below which an accepted link is
	// additionally queued for human review.
	MatchReviewBar = envFloat("MATCH_REVIEW_BAR", 0.85)

	// ClusterNameSimilarity is the strict (exclusive) normalized-name
	// similarity above which two entities are grouped as near-duplicates.
	ClusterNameSimilarity = envFloat("CLUSTER_NAME_SIM", 0.85)
)

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
