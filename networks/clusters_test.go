package networks_test

import (
	"context"
	"io"
	"reflect"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/civintel/cityledger_backend/core"
	"github.com/civintel/cityledger_backend/models"
	"github.com/civintel/cityledger_backend/networks"
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

func seedNamed(t *testing.T, db *gorm.DB, name string, aliases ...string) *models.Entity {
	t.Helper()
	ent := &models.Entity{
		ScopeKey:       "springfield",
		EntityType:     models.EntityTypeOther,
		Name:           name,
		NormalizedName: core.NormalizeName(name),
	}
	if err := db.Create(ent).Error; err != nil {
		t.Fatalf("seed entity %q: %v", name, err)
	}
	for _, a := range aliases {
		err := db.Create(&models.Alias{
			EntityID:        ent.ID,
			Alias:           a,
			NormalizedAlias: core.NormalizeName(a),
		}).Error
		if err != nil {
			t.Fatalf("seed alias %q: %v", a, err)
		}
	}
	return ent
}

func TestExtractPersonTokens(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Smith, John", []string{"Smith", "John"}},
		{"Smith, John, Q", []string{"Smith", "John"}}, // "Q" too short
		{"JOHN SMITH", []string{"JOHN", "SMITH"}},
		{"Mary Beth Smith Jones", []string{"Mary", "Beth", "Smith", "Jones"}},
		{"A Very Long Business Name Here", nil}, // 6 words
		{"acme daycare", nil},                   // lowercase, not name-shaped
		{"info@acme.com Smith", nil},            // contains @
		{"", nil},
	}
	for _, tc := range cases {
		if got := networks.ExtractPersonTokens(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ExtractPersonTokens(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFindClusters_SharedOwnerToken(t *testing.T) {
	db := openTestDB(t)
	f := networks.NewFinder(db, testLogger())

	a := seedNamed(t, db, "Alpha Daycare", "Smith, John")
	b := seedNamed(t, db, "Beta Daycare", "Smith, Jane")
	seedNamed(t, db, "Unrelated Place")

	clusters, err := f.FindClusters(context.Background(), "springfield", "")
	if err != nil {
		t.Fatalf("FindClusters: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if want := []int{a.ID, b.ID}; !reflect.DeepEqual(clusters[0].EntityIDs, want) {
		t.Errorf("EntityIDs = %v, want %v", clusters[0].EntityIDs, want)
	}
	if clusters[0].EntityCount != 2 {
		t.Errorf("EntityCount = %d, want 2", clusters[0].EntityCount)
	}
}

func TestFindClusters_NameSimilarityThresholdIsStrict(t *testing.T) {
	db := openTestDB(t)
	f := networks.NewFinder(db, testLogger())

	// 20-char normalized names. Three edits: similarity exactly 17/20 = 0.85,
	// NOT above the 0.85 threshold, so no cluster.
	seedNamed(t, db, "aaaaaaaaaabbbbbbbbbb")
	seedNamed(t, db, "aaaaaaaaaabbbbbbbccc")

	clusters, err := f.FindClusters(context.Background(), "springfield", "")
	if err != nil {
		t.Fatalf("FindClusters: %v", err)
	}
	if len(clusters) != 0 {
		t.Fatalf("similarity exactly at threshold must not cluster, got %v", clusters)
	}
}

func TestFindClusters_NearDuplicateNamesGroup(t *testing.T) {
	db := openTestDB(t)
	f := networks.NewFinder(db, testLogger())

	// Two edits over 20 chars: similarity 0.9 > 0.85.
	a := seedNamed(t, db, "aaaaaaaaaabbbbbbbbbb")
	b := seedNamed(t, db, "aaaaaaaaaabbbbbbbbcc")

	clusters, err := f.FindClusters(context.Background(), "springfield", "")
	if err != nil {
		t.Fatalf("FindClusters: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if want := []int{a.ID, b.ID}; !reflect.DeepEqual(clusters[0].EntityIDs, want) {
		t.Errorf("EntityIDs = %v, want %v", clusters[0].EntityIDs, want)
	}
}

func TestFindClusters_TransitiveAcrossSignals(t *testing.T) {
	db := openTestDB(t)
	f := networks.NewFinder(db, testLogger())

	// a-b connect via near-duplicate names; b-c connect via a shared owner
	// token. All three must land in one component.
	a := seedNamed(t, db, "aaaaaaaaaabbbbbbbbbb")
	b := seedNamed(t, db, "aaaaaaaaaabbbbbbbbcc", "Smith, John")
	c := seedNamed(t, db, "Totally Different Name", "Smith, Jane")

	clusters, err := f.FindClusters(context.Background(), "springfield", "")
	if err != nil {
		t.Fatalf("FindClusters: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1 transitive component", len(clusters))
	}
	if want := []int{a.ID, b.ID, c.ID}; !reflect.DeepEqual(clusters[0].EntityIDs, want) {
		t.Errorf("EntityIDs = %v, want %v", clusters[0].EntityIDs, want)
	}
}

func TestFindClusters_SingletonsDiscardedAndOrdering(t *testing.T) {
	db := openTestDB(t)
	f := networks.NewFinder(db, testLogger())

	// Three-member cluster via shared token.
	seedNamed(t, db, "One Daycare", "Jones, Pat")
	seedNamed(t, db, "Two Daycare", "Jones, Sam")
	seedNamed(t, db, "Three Daycare", "Jones, Lee")
	// Two-member cluster.
	seedNamed(t, db, "Four Clinic", "Garcia, Ana")
	seedNamed(t, db, "Five Clinic", "Garcia, Luz")
	// Singleton.
	seedNamed(t, db, "Lonely Org")

	clusters, err := f.FindClusters(context.Background(), "springfield", "")
	if err != nil {
		t.Fatalf("FindClusters: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2 (singleton discarded)", len(clusters))
	}
	if clusters[0].EntityCount != 3 || clusters[1].EntityCount != 2 {
		t.Errorf("cluster sizes = %d, %d; want 3 then 2",
			clusters[0].EntityCount, clusters[1].EntityCount)
	}
}

func TestFindClusters_SharedPatterns(t *testing.T) {
	db := openTestDB(t)
	f := networks.NewFinder(db, testLogger())

	seedNamed(t, db, "Bright Future Daycare One", "Kim, Dae")
	seedNamed(t, db, "Bright Future Daycare Two", "Kim, Min")

	clusters, err := f.FindClusters(context.Background(), "springfield", "")
	if err != nil {
		t.Fatalf("FindClusters: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if want := []string{"bright", "future", "daycare"}; !reflect.DeepEqual(clusters[0].SharedPatterns, want) {
		t.Errorf("SharedPatterns = %v, want %v", clusters[0].SharedPatterns, want)
	}
}
