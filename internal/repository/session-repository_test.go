package repository

import (
	"context"
	"testing"
	"time"

	"authz_service/internal/models"
)

func makeSession(id, userID string, createdAt time.Time) *models.Session {
	return &models.Session{
		ID:        id,
		UserID:    userID,
		Token:     "tok-" + id,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(24 * time.Hour),
		IsActive:  true,
	}
}

func TestInMemorySessionRepositoryLookups(t *testing.T) {
	r := NewInMemorySessionRepository()
	ctx := context.Background()

	session := makeSession("s-1", "user-a", time.Now())
	if err := r.Insert(ctx, session); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	byID, err := r.FindByID(ctx, "s-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if byID.UserID != "user-a" {
		t.Errorf("unexpected session: %+v", byID)
	}

	byToken, err := r.FindByToken(ctx, "tok-s-1")
	if err != nil {
		t.Fatalf("FindByToken failed: %v", err)
	}
	if byToken.ID != "s-1" {
		t.Errorf("unexpected session: %+v", byToken)
	}

	if _, err := r.FindByID(ctx, "missing"); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := r.FindByToken(ctx, "missing"); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestInMemorySessionRepositoryOrdering(t *testing.T) {
	r := NewInMemorySessionRepository()
	ctx := context.Background()

	base := time.Now()
	// Inserted out of creation order on purpose.
	for _, s := range []*models.Session{
		makeSession("s-2", "user-a", base.Add(time.Minute)),
		makeSession("s-1", "user-a", base),
		makeSession("s-3", "user-a", base.Add(2*time.Minute)),
	} {
		if err := r.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	active, err := r.FindActiveByUser(ctx, "user-a")
	if err != nil {
		t.Fatalf("FindActiveByUser failed: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(active))
	}
	for i, want := range []string{"s-1", "s-2", "s-3"} {
		if active[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, active[i].ID)
		}
	}
}

func TestInMemorySessionRepositoryUpdateAndIsolation(t *testing.T) {
	r := NewInMemorySessionRepository()
	ctx := context.Background()

	session := makeSession("s-1", "user-a", time.Now())
	if err := r.Insert(ctx, session); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating a returned copy must not leak into the store.
	found, _ := r.FindByID(ctx, "s-1")
	found.IsActive = false
	stored, _ := r.FindByID(ctx, "s-1")
	if !stored.IsActive {
		t.Error("expected the stored session to be unaffected by caller mutation")
	}

	found.Device = "tablet"
	if err := r.Update(ctx, found); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	updated, _ := r.FindByID(ctx, "s-1")
	if updated.Device != "tablet" || updated.IsActive {
		t.Errorf("unexpected session after update: %+v", updated)
	}

	active, _ := r.FindActiveByUser(ctx, "user-a")
	if len(active) != 0 {
		t.Errorf("expected no active sessions after deactivation, got %d", len(active))
	}

	if err := r.Update(ctx, makeSession("missing", "user-a", time.Now())); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
