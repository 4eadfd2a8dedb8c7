package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RuleResult is one rule module's contribution: points to add and
// human-readable notes for the entity's rationale.
type RuleResult struct {
	Points float64
	Notes  []string
}

// PaymentVolume scores cumulative tiers on total linked payment amount.
// Tiers stack: $1.2M triggers the 250k and 1M tiers for 3.5 points.
func PaymentVolume(total float64) RuleResult {
	var r RuleResult
	if total >= 250_000 {
		r.Points += 1.5
		r.Notes = append(r.Notes, fmt.Sprintf("High public $ volume: $%s", formatAmount(total)))
	}
	if total >= 1_000_000 {
		r.Points += 2.0
		r.Notes = append(r.Notes, "Very high public $ volume")
	}
	if total >= 5_000_000 {
		r.Points += 1.0
		r.Notes = append(r.Notes, "Extreme public $ volume")
	}
	return r
}

// PaymentsPerCapacity scores per-unit spend against a declared capacity.
// No contribution unless a positive capacity is declared.
func PaymentsPerCapacity(total float64, capacity *int) RuleResult {
	var r RuleResult
	if capacity == nil || *capacity <= 0 {
		return r
	}
	per := total / float64(*capacity)
	if per >= 20_000 {
		r.Points += 1.5
		r.Notes = append(r.Notes, fmt.Sprintf("High $ per licensed capacity: $%s/slot", formatAmount(per)))
	}
	if per >= 40_000 {
		r.Points += 1.0
		r.Notes = append(r.Notes, "Very high $ per capacity")
	}
	return r
}

// SharedAddressDensity scores how many entities in scope share this entity's
// normalized address (the entity itself included in the count).
func SharedAddressDensity(n int) RuleResult {
	var r RuleResult
	if n >= 3 {
		r.Points += 1.0
		r.Notes = append(r.Notes, fmt.Sprintf("%d entities share the same address", n))
	}
	if n >= 6 {
		r.Points += 1.0
		r.Notes = append(r.Notes, "Large cluster at same address")
	}
	return r
}

// MissingBasics scores absent address and absent type-appropriate identifier.
func MissingBasics(missingAddress bool, missingID bool) RuleResult {
	var r RuleResult
	if missingAddress {
		r.Points += 0.5
		r.Notes = append(r.Notes, "Missing address")
	}
	if missingID {
		r.Points += 0.5
		r.Notes = append(r.Notes, "Missing key identifier")
	}
	return r
}

// formatAmount renders a whole-dollar amount with thousands separators.
func formatAmount(f float64) string {
	s := strconv.FormatFloat(math.Round(f), 'f', 0, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
