package models

import (
	"time"
)

type EntityType string

const (
	EntityTypeChildcare EntityType = "childcare"
	EntityTypeHealth    EntityType = "health"
	EntityTypeOther     EntityType = "other"
)

// Entity is a canonical, deduplicated organization or person within one scope
// (municipality). Identity key: (scope_key, entity_type, normalized_name,
// normalized_address). Blank normalized_address participates in the key as the
// empty string so that two address-less records with the same name collapse
// into one row.
type Entity struct {
	ID int `gorm:"primary_key" json:"id"`

	ScopeKey   string     `gorm:"size:64;index;not null;uniqueIndex:uq_entity" json:"scope_key"`
	EntityType EntityType `gorm:"size:32;index;uniqueIndex:uq_entity" json:"entity_type"`

	Name           string `gorm:"size:255;index" json:"name"`
	NormalizedName string `gorm:"size:255;index;uniqueIndex:uq_entity" json:"normalized_name"`

	Address           string `gorm:"size:255" json:"address"`
	NormalizedAddress string `gorm:"size:255;index;uniqueIndex:uq_entity" json:"normalized_address"`
	City              string `gorm:"size:100" json:"city"`
	State             string `gorm:"size:50" json:"state"`
	Zip               string `gorm:"size:10" json:"zip"`

	LicenseStatus   string `gorm:"size:50" json:"license_status"`
	LicenseCapacity *int   `json:"license_capacity"`
	LicenseID       string `gorm:"size:64;index" json:"license_id"`

	NPI string `gorm:"size:20;index" json:"npi"`

	Score      float64   `gorm:"default:0" json:"score"`
	ScoreNotes string    `gorm:"type:text" json:"score_notes"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	Aliases     []*Alias        `gorm:"foreignKey:EntityID;constraint:OnDelete:CASCADE" json:"aliases,omitempty"`
	Identifiers []*Identifier   `gorm:"foreignKey:EntityID;constraint:OnDelete:CASCADE" json:"identifiers,omitempty"`
	Payments    []*Payment      `gorm:"foreignKey:EntityID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
	Evidence    []*EvidenceItem `gorm:"foreignKey:EntityID;constraint:OnDelete:CASCADE" json:"evidence,omitempty"`
}

// Alias is an alternate raw name observed for an entity, unique per
// (entity, normalized_alias).
type Alias struct {
	ID              int       `gorm:"primary_key" json:"id"`
	EntityID        int       `gorm:"index;not null;uniqueIndex:uq_alias" json:"entity_id"`
	Alias           string    `gorm:"size:255;index" json:"alias"`
	NormalizedAlias string    `gorm:"size:255;index;uniqueIndex:uq_alias" json:"normalized_alias"`
	Source          string    `gorm:"size:100" json:"source"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type IdentifierType string

const (
	IdentifierTypeLicense IdentifierType = "LICENSE_ID"
	IdentifierTypeNPI     IdentifierType = "NPI"
)

// Identifier is a typed external identifier for an entity, unique per
// (entity, id_type, value).
type Identifier struct {
	ID        int            `gorm:"primary_key" json:"id"`
	EntityID  int            `gorm:"index;not null;uniqueIndex:uq_identifier" json:"entity_id"`
	IDType    IdentifierType `gorm:"size:32;index;uniqueIndex:uq_identifier" json:"id_type"`
	Value     string         `gorm:"size:128;index;uniqueIndex:uq_identifier" json:"value"`
	Source    string         `gorm:"size:100" json:"source"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
