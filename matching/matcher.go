package matching

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/civintel/cityledger_backend/config"
	"github.com/civintel/cityledger_backend/core"
	"github.com/civintel/cityledger_backend/models"
)

// Matcher links raw candidate records to registry entities with a confidence
// score. It scans every entity in scope per call; acceptable for bounded
// per-scope populations.
type Matcher struct {
	db     *gorm.DB
	logger *logrus.Logger
	floor  float64
}

func New(db *gorm.DB, logger *logrus.Logger) *Matcher {
	return &Matcher{db: db, logger: logger, floor: config.MatchAcceptFloor}
}

// Proposal is the outcome of one match attempt. EntityID is only set when
// Matched is true; callers decide whether to create a new entity otherwise.
type Proposal struct {
	Matched    bool
	EntityID   int
	Confidence float64
	Reason     string
}

// Acceptable reports whether a combined score clears the acceptance floor
// (inclusive).
func (m *Matcher) Acceptable(score float64) bool {
	return score >= m.floor
}

// ProposeMatch scores the candidate against every entity in scope (optionally
// type-filtered) and returns the best-scoring entity when it clears the
// acceptance floor. Ties keep the first entity encountered.
func (m *Matcher) ProposeMatch(ctx context.Context, scopeKey string, entityType models.EntityType, candidateName string, candidateAddress string) (Proposal, error) {
	nname := core.NormalizeName(candidateName)
	naddr := ""
	if candidateAddress != "" {
		naddr = core.NormalizeAddress(candidateAddress)
	}

	q := m.db.WithContext(ctx).
		Select("id", "normalized_name", "normalized_address").
		Where("scope_key = ?", scopeKey)
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	var ents []models.Entity
	if err := q.Order("id ASC").Find(&ents).Error; err != nil {
		return Proposal{}, fmt.Errorf("scan entities: %w", err)
	}

	bestID, bestScore, bestReason := 0, 0.0, ""
	for _, e := range ents {
		nameSim := core.Similarity(nname, e.NormalizedName)
		addrSim := 0.0
		if naddr != "" && e.NormalizedAddress != "" {
			addrSim = core.Similarity(naddr, e.NormalizedAddress)
		}
		score := 0.75*nameSim + 0.25*addrSim
		if naddr != "" && e.NormalizedAddress == "" {
			// A missing stored address is penalized less than a full
			// address mismatch.
			score = 0.85 * nameSim
		}
		if score > bestScore {
			bestScore, bestID = score, e.ID
			bestReason = fmt.Sprintf("name_sim=%.2f, addr_sim=%.2f", nameSim, addrSim)
		}
	}

	if !m.Acceptable(bestScore) {
		return Proposal{
			Matched:    false,
			Confidence: bestScore,
			Reason:     fmt.Sprintf("Low confidence (%.2f) best=%s", bestScore, bestReason),
		}, nil
	}
	return Proposal{
		Matched:    true,
		EntityID:   bestID,
		Confidence: bestScore,
		Reason:     bestReason,
	}, nil
}
