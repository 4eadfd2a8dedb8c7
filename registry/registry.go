package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/civintel/cityledger_backend/core"
	"github.com/civintel/cityledger_backend/models"
)

// Registry owns canonical-entity dedup and upsert for a store handle.
type Registry struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func New(db *gorm.DB, logger *logrus.Logger) *Registry {
	return &Registry{db: db, logger: logger}
}

// EntityInput carries one incoming organization/person record. Blank fields
// are treated as absent.
type EntityInput struct {
	ScopeKey   string
	EntityType models.EntityType
	Name       string
	Address    string
	City       string
	State      string
	Zip        string

	LicenseStatus   string
	LicenseCapacity *int
	LicenseID       string
	NPI             string

	// IDSource is recorded as provenance on identifier rows.
	IDSource string
}

// UpsertEntity looks up the identity key (scope, type, normalized name,
// normalized address) and merges into the existing entity or creates a new
// one. Location/contact fields fill only when blank; license/NPI attributes
// overwrite whenever the incoming value is non-empty. License and NPI values
// are registered as Identifier rows idempotently. At most one new Entity and
// two new Identifier rows per call; never deletes.
func (r *Registry) UpsertEntity(ctx context.Context, in EntityInput) (*models.Entity, error) {
	nname := core.NormalizeName(in.Name)
	naddr := ""
	if in.Address != "" {
		naddr = core.NormalizeAddress(in.Address)
	}
	zip5 := core.BestEffortZip(in.Zip)

	tx := r.db.WithContext(ctx)

	var ent models.Entity
	err := tx.Where(
		"scope_key = ? AND entity_type = ? AND normalized_name = ? AND normalized_address = ?",
		in.ScopeKey, in.EntityType, nname, naddr,
	).First(&ent).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		ent = models.Entity{
			ScopeKey:          in.ScopeKey,
			EntityType:        in.EntityType,
			Name:              in.Name,
			NormalizedName:    nname,
			Address:           in.Address,
			NormalizedAddress: naddr,
			City:              in.City,
			State:             in.State,
			Zip:               zip5,
		}
		if err := tx.Create(&ent).Error; err != nil {
			return nil, fmt.Errorf("create entity: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("lookup entity: %w", err)
	default:
		// First-non-empty-wins for core fields.
		changed := fillIfBlank(&ent.Name, in.Name)
		changed = fillIfBlank(&ent.Address, in.Address) || changed
		changed = fillIfBlank(&ent.NormalizedAddress, naddr) || changed
		changed = fillIfBlank(&ent.City, in.City) || changed
		changed = fillIfBlank(&ent.State, in.State) || changed
		changed = fillIfBlank(&ent.Zip, zip5) || changed
		if changed {
			if err := tx.Save(&ent).Error; err != nil {
				return nil, fmt.Errorf("merge entity: %w", err)
			}
		}
	}

	// Last-non-empty-wins for license/identifier attributes.
	updates := map[string]any{}
	if in.LicenseStatus != "" {
		ent.LicenseStatus = in.LicenseStatus
		updates["license_status"] = in.LicenseStatus
	}
	if in.LicenseCapacity != nil {
		ent.LicenseCapacity = in.LicenseCapacity
		updates["license_capacity"] = *in.LicenseCapacity
	}
	if in.LicenseID != "" {
		ent.LicenseID = strings.TrimSpace(in.LicenseID)
		updates["license_id"] = ent.LicenseID
	}
	if in.NPI != "" {
		ent.NPI = strings.TrimSpace(in.NPI)
		updates["npi"] = ent.NPI
	}
	if len(updates) > 0 {
		if err := tx.Model(&models.Entity{}).Where("id = ?", ent.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update entity attributes: %w", err)
		}
	}

	if ent.LicenseID != "" {
		if err := r.addIdentifier(ctx, ent.ID, models.IdentifierTypeLicense, ent.LicenseID, in.IDSource); err != nil {
			return nil, err
		}
	}
	if ent.NPI != "" {
		if err := r.addIdentifier(ctx, ent.ID, models.IdentifierTypeNPI, ent.NPI, in.IDSource); err != nil {
			return nil, err
		}
	}

	return &ent, nil
}

// AddAlias records an alternate raw name for an entity, idempotently on the
// normalized form.
func (r *Registry) AddAlias(ctx context.Context, entityID int, alias string, source string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil
	}
	norm := core.NormalizeName(alias)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Alias{}).
		Where("entity_id = ? AND normalized_alias = ?", entityID, norm).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("lookup alias: %w", err)
	}
	if count > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&models.Alias{
		EntityID:        entityID,
		Alias:           alias,
		NormalizedAlias: norm,
		Source:          source,
	}).Error
}

func (r *Registry) addIdentifier(ctx context.Context, entityID int, idType models.IdentifierType, value string, source string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Identifier{}).
		Where("entity_id = ? AND id_type = ? AND value = ?", entityID, idType, value).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("lookup identifier: %w", err)
	}
	if count > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&models.Identifier{
		EntityID: entityID,
		IDType:   idType,
		Value:    value,
		Source:   source,
	}).Error
}

// DeleteEntity removes an entity and its owned aliases, identifiers, payments
// and evidence in one transaction.
func (r *Registry) DeleteEntity(ctx context.Context, entityID int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ent models.Entity
		if err := tx.First(&ent, entityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("entity %d: %w", entityID, err)
			}
			return err
		}
		for _, owned := range []any{&models.Alias{}, &models.Identifier{}, &models.Payment{}, &models.EvidenceItem{}} {
			if err := tx.Where("entity_id = ?", entityID).Delete(owned).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&ent).Error
	})
}

func fillIfBlank(dst *string, v string) bool {
	if *dst == "" && v != "" {
		*dst = v
		return true
	}
	return false
}
