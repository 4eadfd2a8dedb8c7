package review

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/civintel/cityledger_backend/models"
	"github.com/civintel/cityledger_backend/utils"
)

// Queue holds low-confidence link proposals pending human resolution.
type Queue struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue appends an unresolved review match. Confidence is clamped to [0,1].
func (q *Queue) Enqueue(ctx context.Context, m *models.ReviewMatch) error {
	if m.Confidence < 0 {
		m.Confidence = 0
	}
	if m.Confidence > 1 {
		m.Confidence = 1
	}
	m.Resolved = false
	m.Resolution = ""
	if err := q.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("enqueue review match: %w", err)
	}
	return nil
}

// ListOpen returns unresolved matches for a scope, least confident first.
func (q *Queue) ListOpen(ctx context.Context, scopeKey string, limit int) ([]*models.ReviewMatch, error) {
	if limit <= 0 {
		limit = 100
	}
	var matches []*models.ReviewMatch
	err := q.db.WithContext(ctx).
		Where("scope_key = ? AND resolved = ?", scopeKey, false).
		Order("confidence ASC, created_at DESC").
		Limit(limit).
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("list review queue: %w", err)
	}
	return matches, nil
}

// Approve resolves a match keeping the provisional link. Resolving an
// already-resolved match fails with ErrorAlreadyResolved and mutates nothing.
func (q *Queue) Approve(ctx context.Context, matchID int) (*models.ReviewMatch, error) {
	return q.resolve(ctx, matchID, models.ReviewResolutionApproved)
}

// Reject resolves a match as incorrect. The provisional link and any payments
// or evidence created alongside it are left untouched; reassignment to a
// replacement entity is a manual follow-up.
func (q *Queue) Reject(ctx context.Context, matchID int) (*models.ReviewMatch, error) {
	return q.resolve(ctx, matchID, models.ReviewResolutionRejected)
}

func (q *Queue) resolve(ctx context.Context, matchID int, resolution models.ReviewResolution) (*models.ReviewMatch, error) {
	var match models.ReviewMatch
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&match, matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return fmt.Errorf("fetch review match: %w", err)
		}
		if match.Resolved {
			return utils.ErrorAlreadyResolved
		}
		match.Resolved = true
		match.Resolution = resolution
		return tx.Model(&models.ReviewMatch{}).Where("id = ?", match.ID).
			Updates(map[string]any{"resolved": true, "resolution": resolution}).Error
	})
	if err != nil {
		return nil, err
	}
	return &match, nil
}
