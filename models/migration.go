package models

import "gorm.io/gorm"

// Migrate creates or updates the schema for every registry table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Entity{}, &Alias{}, &Identifier{},
		&Payment{}, &EvidenceItem{},
		&ReviewMatch{},
		&RecordsRequest{},
	)
}
