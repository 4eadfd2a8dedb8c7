package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentCategory string

const (
	PaymentCategoryPayer  PaymentCategory = "Payer"
	PaymentCategoryPayees PaymentCategory = "Payees"
)

// Payment is a public payment linked to exactly one entity. Immutable after
// creation except for the classification fields (category, tag).
type Payment struct {
	ID       int `gorm:"primary_key" json:"id"`
	EntityID int `gorm:"index;not null" json:"entity_id"`

	// Source is the upload or connector name; DataSource the original data
	// provider (e.g. "ma-comptroller", "usa-spending").
	Source     string          `gorm:"size:150;index" json:"source"`
	DataSource string          `gorm:"size:100;index" json:"data_source"`
	Category   PaymentCategory `gorm:"size:20;index;default:Payer" json:"category"`
	Tag        string          `gorm:"size:50;index" json:"tag"`
	FiscalYear string          `gorm:"size:10;index" json:"fiscal_year"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Payer      string          `gorm:"size:150" json:"payer"`
	Program    string          `gorm:"size:150" json:"program"`

	MatchConfidence float64   `gorm:"default:0.7" json:"match_confidence"`
	MatchReason     string    `gorm:"size:255" json:"match_reason"`
	RawJSON         string    `gorm:"type:text" json:"raw_json,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
