package review_test

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/civintel/cityledger_backend/models"
	"github.com/civintel/cityledger_backend/review"
	"github.com/civintel/cityledger_backend/utils"
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

func enqueue(t *testing.T, q *review.Queue, scopeKey, name string, confidence float64) *models.ReviewMatch {
	t.Helper()
	m := &models.ReviewMatch{
		ScopeKey:      scopeKey,
		CandidateName: name,
		Confidence:    confidence,
		Reason:        "test",
	}
	if err := q.Enqueue(context.Background(), m); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return m
}

func TestEnqueue_ClampsConfidenceAndForcesUnresolved(t *testing.T) {
	db := openTestDB(t)
	q := review.New(db)

	m := &models.ReviewMatch{
		ScopeKey:      "springfield",
		CandidateName: "Acme",
		Confidence:    1.7,
		Resolved:      true,
		Resolution:    models.ReviewResolutionApproved,
	}
	if err := q.Enqueue(context.Background(), m); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var got models.ReviewMatch
	if err := db.First(&got, m.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamped 1.0", got.Confidence)
	}
	if got.Resolved || got.Resolution != "" {
		t.Errorf("enqueued match must be unresolved, got %+v", got)
	}
}

func TestListOpen_LeastConfidentFirst(t *testing.T) {
	db := openTestDB(t)
	q := review.New(db)
	ctx := context.Background()

	enqueue(t, q, "springfield", "mid", 0.6)
	enqueue(t, q, "springfield", "low", 0.3)
	enqueue(t, q, "springfield", "high", 0.8)
	enqueue(t, q, "shelbyville", "other-scope", 0.1)

	matches, err := q.ListOpen(ctx, "springfield", 0)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	for i, want := range []string{"low", "mid", "high"} {
		if matches[i].CandidateName != want {
			t.Errorf("matches[%d] = %q, want %q", i, matches[i].CandidateName, want)
		}
	}
}

func TestApprove_ResolvesOnce(t *testing.T) {
	db := openTestDB(t)
	q := review.New(db)
	ctx := context.Background()

	m := enqueue(t, q, "springfield", "Acme", 0.5)

	resolved, err := q.Approve(ctx, m.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !resolved.Resolved || resolved.Resolution != models.ReviewResolutionApproved {
		t.Fatalf("unexpected resolution state: %+v", resolved)
	}

	// Second resolution attempt fails and mutates nothing.
	if _, err := q.Reject(ctx, m.ID); !errors.Is(err, utils.ErrorAlreadyResolved) {
		t.Fatalf("second resolve err = %v, want ErrorAlreadyResolved", err)
	}
	var got models.ReviewMatch
	if err := db.First(&got, m.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Resolution != models.ReviewResolutionApproved {
		t.Errorf("Resolution = %q, want approved preserved", got.Resolution)
	}

	open, err := q.ListOpen(ctx, "springfield", 0)
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open queue length = %d, want 0", len(open))
	}
}

func TestReject_KeepsProvisionalLink(t *testing.T) {
	db := openTestDB(t)
	q := review.New(db)
	ctx := context.Background()

	entityID := 42
	m := &models.ReviewMatch{
		ScopeKey:      "springfield",
		CandidateName: "Acme",
		EntityID:      &entityID,
		Confidence:    0.5,
	}
	if err := q.Enqueue(ctx, m); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	resolved, err := q.Reject(ctx, m.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if resolved.Resolution != models.ReviewResolutionRejected {
		t.Fatalf("Resolution = %q, want rejected", resolved.Resolution)
	}
	// Rejection flags the link; it does not unlink.
	if resolved.EntityID == nil || *resolved.EntityID != entityID {
		t.Errorf("EntityID = %v, want provisional link %d kept", resolved.EntityID, entityID)
	}
}

func TestResolve_UnknownMatch(t *testing.T) {
	q := review.New(openTestDB(t))
	if _, err := q.Approve(context.Background(), 9999); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("err = %v, want ErrorRecordNotFound", err)
	}
}
