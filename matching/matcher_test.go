package matching_test

import (
	"context"
	"io"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/civintel/cityledger_backend/core"
	"github.com/civintel/cityledger_backend/matching"
	"github.com/civintel/cityledger_backend/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func seedEntity(t *testing.T, db *gorm.DB, scopeKey string, etype models.EntityType, name, address string) *models.Entity {
	t.Helper()
	ent := &models.Entity{
		ScopeKey:          scopeKey,
		EntityType:        etype,
		Name:              name,
		NormalizedName:    core.NormalizeName(name),
		Address:           address,
		NormalizedAddress: core.NormalizeAddress(address),
	}
	if err := db.Create(ent).Error; err != nil {
		t.Fatalf("seed entity %q: %v", name, err)
	}
	return ent
}

func TestProposeMatch_ExactNameNoAddressOnEitherSide(t *testing.T) {
	db := openTestDB(t)
	m := matching.New(db, testLogger())
	ent := seedEntity(t, db, "springfield", models.EntityTypeOther, "Acme Inc", "")

	// Identical normalized names, no addresses anywhere: 0.75*1.0 + 0.25*0.
	p, err := m.ProposeMatch(context.Background(), "springfield", "", "ACME INC.", "")
	if err != nil {
		t.Fatalf("ProposeMatch: %v", err)
	}
	if !p.Matched {
		t.Fatalf("expected match, got %+v", p)
	}
	if p.EntityID != ent.ID {
		t.Errorf("EntityID = %d, want %d", p.EntityID, ent.ID)
	}
	if p.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", p.Confidence)
	}
}

func TestProposeMatch_NameAndAddressAgree(t *testing.T) {
	db := openTestDB(t)
	m := matching.New(db, testLogger())
	ent := seedEntity(t, db, "springfield", models.EntityTypeOther, "Acme Inc", "123 Main St")

	p, err := m.ProposeMatch(context.Background(), "springfield", "", "Acme, Inc.", "123 Main Street")
	if err != nil {
		t.Fatalf("ProposeMatch: %v", err)
	}
	if !p.Matched || p.EntityID != ent.ID {
		t.Fatalf("expected match on %d, got %+v", ent.ID, p)
	}
	if p.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", p.Confidence)
	}
}

func TestProposeMatch_MissingStoredAddressWeighsNameOnly(t *testing.T) {
	db := openTestDB(t)
	m := matching.New(db, testLogger())
	seedEntity(t, db, "springfield", models.EntityTypeOther, "Acme Inc", "")

	// Candidate has an address, stored entity does not: score = 0.85 * name_sim.
	p, err := m.ProposeMatch(context.Background(), "springfield", "", "Acme Inc", "55 Pine Rd")
	if err != nil {
		t.Fatalf("ProposeMatch: %v", err)
	}
	if !p.Matched {
		t.Fatalf("expected match, got %+v", p)
	}
	if p.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", p.Confidence)
	}
}

func TestProposeMatch_BelowFloorIsNotMatched(t *testing.T) {
	db := openTestDB(t)
	m := matching.New(db, testLogger())
	seedEntity(t, db, "springfield", models.EntityTypeOther, "Completely Different Name", "")

	p, err := m.ProposeMatch(context.Background(), "springfield", "", "Acme Inc", "")
	if err != nil {
		t.Fatalf("ProposeMatch: %v", err)
	}
	if p.Matched {
		t.Fatalf("expected no match, got %+v", p)
	}
	if p.EntityID != 0 {
		t.Errorf("EntityID = %d for unmatched proposal, want 0", p.EntityID)
	}
}

func TestProposeMatch_ScopeAndTypeFilters(t *testing.T) {
	db := openTestDB(t)
	m := matching.New(db, testLogger())
	seedEntity(t, db, "shelbyville", models.EntityTypeOther, "Acme Inc", "")
	want := seedEntity(t, db, "springfield", models.EntityTypeChildcare, "Acme Inc", "")

	// Wrong scope: no candidates at all.
	p, err := m.ProposeMatch(context.Background(), "ogdenville", "", "Acme Inc", "")
	if err != nil {
		t.Fatalf("ProposeMatch: %v", err)
	}
	if p.Matched {
		t.Fatalf("expected no match outside scope, got %+v", p)
	}

	// Type filter narrows to the childcare entity.
	p, err = m.ProposeMatch(context.Background(), "springfield", models.EntityTypeChildcare, "Acme Inc", "")
	if err != nil {
		t.Fatalf("ProposeMatch: %v", err)
	}
	if !p.Matched || p.EntityID != want.ID {
		t.Fatalf("expected match on %d, got %+v", want.ID, p)
	}
}

func TestAcceptable_FloorIsInclusive(t *testing.T) {
	m := matching.New(openTestDB(t), testLogger())
	if !m.Acceptable(0.72) {
		t.Error("Acceptable(0.72) = false, want true (floor is inclusive)")
	}
	if m.Acceptable(0.7199) {
		t.Error("Acceptable(0.7199) = true, want false")
	}
	if !m.Acceptable(1.0) {
		t.Error("Acceptable(1.0) = false, want true")
	}
}

func TestProposeMatch_TieKeepsFirstEntity(t *testing.T) {
	db := openTestDB(t)
	m := matching.New(db, testLogger())
	first := seedEntity(t, db, "springfield", models.EntityTypeOther, "Acme Inc", "")
	seedEntity(t, db, "springfield", models.EntityTypeOther, "Acme LLC", "")

	// Both normalize to "acme": identical scores, first id wins.
	p, err := m.ProposeMatch(context.Background(), "springfield", "", "Acme", "")
	if err != nil {
		t.Fatalf("ProposeMatch: %v", err)
	}
	if !p.Matched || p.EntityID != first.ID {
		t.Fatalf("expected tie to keep entity %d, got %+v", first.ID, p)
	}
}
