package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/civintel/cityledger_backend/models"
)

// Engine recomputes each entity's risk score and rationale from current
// state. Repeated runs with unchanged inputs produce identical output.
type Engine struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewEngine(db *gorm.DB, logger *logrus.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// Recompute runs all rule modules over every entity in scope inside one
// transaction and returns the number of entities updated.
func (e *Engine) Recompute(ctx context.Context, scopeKey string) (int, error) {
	updated := 0
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ents []models.Entity
		if err := tx.Where("scope_key = ?", scopeKey).Find(&ents).Error; err != nil {
			return fmt.Errorf("load entities: %w", err)
		}

		addrCounts, err := addressCounts(tx, scopeKey)
		if err != nil {
			return err
		}

		for i := range ents {
			ent := &ents[i]
			total, err := totalPayments(tx, ent.ID)
			if err != nil {
				return err
			}

			points := 0.0
			var notes []string
			apply := func(r RuleResult) {
				points += r.Points
				notes = append(notes, r.Notes...)
			}

			apply(PaymentVolume(total))
			apply(PaymentsPerCapacity(total, ent.LicenseCapacity))
			if ent.NormalizedAddress != "" {
				apply(SharedAddressDensity(addrCounts[ent.NormalizedAddress]))
			}
			missingID := (ent.EntityType == models.EntityTypeHealth && ent.NPI == "") ||
				(ent.EntityType == models.EntityTypeChildcare && ent.LicenseID == "")
			apply(MissingBasics(ent.Address == "", missingID))

			err = tx.Model(&models.Entity{}).Where("id = ?", ent.ID).
				Updates(map[string]any{
					"score":       points,
					"score_notes": strings.Join(notes, "; "),
				}).Error
			if err != nil {
				return fmt.Errorf("update score for entity %d: %w", ent.ID, err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func addressCounts(tx *gorm.DB, scopeKey string) (map[string]int, error) {
	type row struct {
		NormalizedAddress string
		N                 int
	}
	var rows []row
	err := tx.Model(&models.Entity{}).
		Select("normalized_address, COUNT(id) AS n").
		Where("scope_key = ? AND normalized_address <> ''", scopeKey).
		Group("normalized_address").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count shared addresses: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.NormalizedAddress] = r.N
	}
	return counts, nil
}

func totalPayments(tx *gorm.DB, entityID int) (float64, error) {
	var pays []models.Payment
	if err := tx.Select("amount").Where("entity_id = ?", entityID).Find(&pays).Error; err != nil {
		return 0, fmt.Errorf("load payments: %w", err)
	}
	total := decimal.Zero
	for _, p := range pays {
		total = total.Add(p.Amount)
	}
	return total.InexactFloat64(), nil
}
