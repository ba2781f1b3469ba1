package service

import (
	"context"
	"testing"
	"time"

	"authz_service/internal/models"
	"authz_service/internal/repository"
)

// Walks an editorial day end to end: an editor logs in with remember-me,
// takes the editing lock on a product, a reviewer is turned away, and an
// admin force-ends the lock so the reviewer can proceed.
func TestEditorialWorkflowScenario(t *testing.T) {
	ctx := context.Background()

	sessionRepo := repository.NewInMemorySessionRepository()
	directory := repository.NewInMemoryUserDirectory()
	if err := directory.Add(&models.DirectoryUser{
		ID: "editor-1", Username: "edna", Email: "edna@example.com", Role: models.RoleEditor, Status: "active",
	}, "edit-pw"); err != nil {
		t.Fatalf("directory setup failed: %v", err)
	}
	sessions := NewSessionService(sessionRepo, directory, directory, NewJWTService("scenario-secret"), nil, nil, 3, 24, 30)
	editing := NewEditingService(5, nil, nil)
	permissions := NewPermissionService(NewRoleService(), NewGrantService(repository.NewInMemoryGrantRepository(), nil), nil)

	// The editor logs in on a trusted device.
	login := sessions.Login(ctx, "edna", "edit-pw", CreateSessionInput{Device: "workstation", RememberMe: true})
	if !login.Success {
		t.Fatalf("login failed: %s", login.Error)
	}
	wantExpiry := time.Now().Add(30 * 24 * time.Hour)
	if diff := login.Session.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expected a 30-day remember-me expiry, got %s", login.Session.ExpiresAt)
	}

	// The editor may update drafts; the lock on sku-1 follows.
	editor := models.UserContext{UserID: "editor-1", UserRole: models.RoleEditor, UserEmail: "edna@example.com"}
	if check := permissions.HasPermission(ctx, editor, models.PermProductsUpdate, "sku-1"); !check.HasPermission {
		t.Fatalf("expected editor to hold products:update: %s", check.Reason)
	}

	started := editing.StartEditingSession("sku-1", "editor-1", "edna@example.com", models.RoleEditor,
		&models.ResourceSnapshot{ID: "sku-1", WorkflowState: models.StateDraft})
	if !started.Success {
		t.Fatalf("editing session failed to start: %s", started.Error)
	}
	if session := editing.ValidateSession(started.SessionID, "editor-1").Session; session.LockType != models.LockTypeEdit {
		t.Errorf("expected an edit lock on a draft, got %s", session.LockType)
	}

	// A reviewer bounces off the lock and learns who holds it.
	blocked := editing.StartEditingSession("sku-1", "reviewer-1", "rita@example.com", models.RoleReviewer,
		&models.ResourceSnapshot{ID: "sku-1", WorkflowState: models.StateDraft})
	if blocked.Success {
		t.Fatal("expected the reviewer to be blocked")
	}
	if blocked.Error != "Product is being edited by another user" {
		t.Errorf("unexpected error: %q", blocked.Error)
	}
	if blocked.ExistingSession == nil || blocked.ExistingSession.UserID != "editor-1" {
		t.Errorf("expected the editor's session to be surfaced, got %+v", blocked.ExistingSession)
	}

	// An admin clears the product and the reviewer can move in.
	ended := editing.ForceEndProductSessions("sku-1", "admin-1")
	if ended != 1 {
		t.Errorf("expected exactly one session force-ended, got %d", ended)
	}
	if !editing.CanEditProduct("sku-1", "reviewer-1", models.RoleReviewer) {
		t.Error("expected the reviewer to be able to edit after force end")
	}

	// The editor's login session is untouched by the editing lock teardown.
	if !sessions.IsValidSession(ctx, login.Session.ID) {
		t.Error("expected the login session to remain valid")
	}
}
