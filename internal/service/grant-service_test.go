package service

import (
	"context"
	"testing"
	"time"

	"authz_service/internal/models"
	"authz_service/internal/repository"
)

var grantAdmin = models.GrantActor{UserID: "admin-1", UserRole: models.RoleAdmin}

func TestAssignAndListGrants(t *testing.T) {
	grantRepo := repository.NewInMemoryGrantRepository()
	s := NewGrantService(grantRepo, nil)
	ctx := context.Background()

	grant, err := s.Assign(ctx, "user-a", models.PermProductsImport, grantAdmin, GrantOptions{
		ExpiresIn: time.Hour,
		Reason:    "import window",
	})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if grant.ID == "" {
		t.Error("expected a grant id")
	}
	if grant.ExpiresAt == nil {
		t.Error("expected an expiry when ExpiresIn is set")
	}

	permanent, err := s.Assign(ctx, "user-a", models.PermWorkflowPublish, grantAdmin, GrantOptions{})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if permanent.ExpiresAt != nil {
		t.Error("expected no expiry when ExpiresIn is zero")
	}

	active, err := s.ListActive(ctx, "user-a")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active grants, got %d", len(active))
	}
}

func TestRevokeGrant(t *testing.T) {
	grantRepo := repository.NewInMemoryGrantRepository()
	s := NewGrantService(grantRepo, nil)
	ctx := context.Background()

	grant, err := s.Assign(ctx, "user-a", models.PermProductsImport, grantAdmin, GrantOptions{})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	revoked, err := s.Revoke(ctx, grant.ID, grantAdmin, "no longer needed")
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if !revoked {
		t.Error("expected revoke of an active grant to report true")
	}

	// A second revoke, and revokes of unknown grants, report false.
	if again, err := s.Revoke(ctx, grant.ID, grantAdmin, ""); err != nil || again {
		t.Errorf("expected repeated revoke to report false, got %v, %v", again, err)
	}
	if unknown, err := s.Revoke(ctx, "missing", grantAdmin, ""); err != nil || unknown {
		t.Errorf("expected revoke of unknown grant to report false, got %v, %v", unknown, err)
	}
}

func TestRevokeExpiredGrantReportsFalse(t *testing.T) {
	grantRepo := repository.NewInMemoryGrantRepository()
	s := NewGrantService(grantRepo, nil)
	ctx := context.Background()

	grant, err := s.Assign(ctx, "user-a", models.PermProductsImport, grantAdmin, GrantOptions{ExpiresIn: time.Millisecond})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	revoked, err := s.Revoke(ctx, grant.ID, grantAdmin, "")
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if revoked {
		t.Error("expected revoke of an already-expired grant to report false")
	}
}

func TestRevokeAllGrants(t *testing.T) {
	grantRepo := repository.NewInMemoryGrantRepository()
	s := NewGrantService(grantRepo, nil)
	ctx := context.Background()

	for _, permission := range []string{models.PermProductsImport, models.PermWorkflowPublish} {
		if _, err := s.Assign(ctx, "user-a", permission, grantAdmin, GrantOptions{}); err != nil {
			t.Fatalf("Assign failed: %v", err)
		}
	}
	if _, err := s.Assign(ctx, "user-b", models.PermProductsImport, grantAdmin, GrantOptions{}); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	count, err := s.RevokeAll(ctx, "user-a", grantAdmin, "offboarding")
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 grants revoked, got %d", count)
	}

	otherActive, err := s.ListActive(ctx, "user-b")
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(otherActive) != 1 {
		t.Errorf("expected user-b's grant to survive, got %d", len(otherActive))
	}
}
