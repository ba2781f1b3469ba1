package service

import (
	"context"
	"fmt"
	"log"

	"authz_service/internal/models"
)

// systemActor is the audit identity for changes driven by directory events
// rather than a person.
var systemActor = models.GrantActor{
	UserID:   "system",
	UserName: "system",
	UserRole: models.RoleAdmin,
}

// DeactivationHandler reacts to user.deactivated directory events: the
// user's login sessions are force-ended and their dynamic grants revoked.
type DeactivationHandler struct {
	sessionService    *SessionService
	grantService      *GrantService
	permissionService *PermissionService
}

func NewDeactivationHandler(sessionService *SessionService, grantService *GrantService, permissionService *PermissionService) *DeactivationHandler {
	return &DeactivationHandler{
		sessionService:    sessionService,
		grantService:      grantService,
		permissionService: permissionService,
	}
}

func (h *DeactivationHandler) HandleUserDeactivated(ctx context.Context, userID string) error {
	result := h.sessionService.DeleteAllUserSessions(ctx, userID)
	if !result.Success {
		return fmt.Errorf("failed to end sessions for user %s: %s", userID, result.Error)
	}

	revoked, err := h.grantService.RevokeAll(ctx, userID, systemActor, "user deactivated")
	if err != nil {
		return fmt.Errorf("failed to revoke grants for user %s: %s", userID, err)
	}
	if revoked > 0 {
		h.permissionService.InvalidateUserCache(userID)
	}

	log.Printf("User %s deactivated: %d session(s) ended, %d grant(s) revoked", userID, len(result.Sessions), revoked)
	return nil
}
