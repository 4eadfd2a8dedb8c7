package models

import "time"

type EvidenceType string

const (
	EvidenceTypeLicense   EvidenceType = "license"
	EvidenceTypeDirectory EvidenceType = "directory"
	EvidenceTypePayment   EvidenceType = "payment"
)

// EvidenceItem is an audit record capturing the source and extracted facts
// supporting an entity's attributes. Immutable after creation except for the
// category classification.
type EvidenceItem struct {
	ID       int `gorm:"primary_key" json:"id"`
	EntityID int `gorm:"index;not null" json:"entity_id"`

	EvidenceType EvidenceType    `gorm:"size:32;index" json:"evidence_type"`
	Source       string          `gorm:"size:150;index" json:"source"`
	Category     PaymentCategory `gorm:"size:20;index;default:Payees" json:"category"`
	Confidence   float64         `gorm:"default:0.7" json:"confidence"`
	Title        string          `gorm:"size:255" json:"title"`
	URL          string          `gorm:"size:500" json:"url"`

	ExtractedJSON string    `gorm:"type:text" json:"extracted_json,omitempty"`
	RawJSON       string    `gorm:"type:text" json:"raw_json,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
