package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"authz_service/internal/events"
	"authz_service/internal/models"
	"authz_service/internal/repository"

	"github.com/google/uuid"
)

// GrantOptions carries the optional attributes of a new grant. A zero
// ExpiresIn means the grant never expires.
type GrantOptions struct {
	ExpiresIn time.Duration
	Reason    string
	Metadata  map[string]string
}

// GrantService owns the dynamic permission grants. It records who did what
// for audit but performs no authorization itself — PermissionService checks
// the acting user before calling in.
type GrantService struct {
	grantRepo      repository.GrantRepository
	eventPublisher events.Publisher
}

func NewGrantService(grantRepo repository.GrantRepository, eventPublisher events.Publisher) *GrantService {
	return &GrantService{
		grantRepo:      grantRepo,
		eventPublisher: eventPublisher,
	}
}

// Assign creates a grant for the user. The grant is immutable once created,
// except for revocation.
func (s *GrantService) Assign(ctx context.Context, userID, permission string, actor models.GrantActor, opts GrantOptions) (*models.PermissionGrant, error) {
	if userID == "" || permission == "" {
		return nil, errors.New("grant requires a user and a permission")
	}
	if actor.UserID == "" {
		return nil, errors.New("grant requires an acting user for audit")
	}

	now := time.Now()
	grant := &models.PermissionGrant{
		ID:         uuid.NewString(),
		UserID:     userID,
		Permission: permission,
		GrantedBy:  actor,
		GrantedAt:  now,
		Reason:     opts.Reason,
		Metadata:   opts.Metadata,
	}
	if opts.ExpiresIn > 0 {
		expiresAt := now.Add(opts.ExpiresIn)
		grant.ExpiresAt = &expiresAt
	}

	if err := s.grantRepo.Insert(ctx, grant); err != nil {
		return nil, fmt.Errorf("error creating grant: %s", err)
	}

	if s.eventPublisher != nil {
		if err := s.eventPublisher.PublishGrantAssigned(ctx, grant.ID, userID, permission, actor.UserID, opts.Reason); err != nil {
			log.Printf("Warning: Failed to publish grant assigned event: %v", err)
		}
	}

	return grant, nil
}

// Revoke marks a grant revoked. Unknown, already-revoked, and expired
// grants all report false: an expired grant is treated as absent.
func (s *GrantService) Revoke(ctx context.Context, grantID string, actor models.GrantActor, reason string) (bool, error) {
	grant, err := s.grantRepo.FindByID(ctx, grantID)
	if err != nil {
		if errors.Is(err, repository.ErrGrantNotFound) {
			return false, nil
		}
		return false, err
	}

	now := time.Now()
	if !grant.IsActive(now) {
		return false, nil
	}

	grant.Revoked = true
	grant.RevokedBy = &actor
	grant.RevokedAt = &now
	if err := s.grantRepo.Update(ctx, grant); err != nil {
		return false, err
	}

	if s.eventPublisher != nil {
		if err := s.eventPublisher.PublishGrantRevoked(ctx, grant.ID, grant.UserID, grant.Permission, actor.UserID, reason); err != nil {
			log.Printf("Warning: Failed to publish grant revoked event: %v", err)
		}
	}

	return true, nil
}

// RevokeAll revokes every active grant the user holds and returns how many
// were revoked.
func (s *GrantService) RevokeAll(ctx context.Context, userID string, actor models.GrantActor, reason string) (int, error) {
	grants, err := s.grantRepo.FindActiveByUser(ctx, userID, time.Now())
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, grant := range grants {
		ok, err := s.Revoke(ctx, grant.ID, actor, reason)
		if err != nil {
			return revoked, err
		}
		if ok {
			revoked++
		}
	}
	return revoked, nil
}

// ListActive returns the user's grants that are neither revoked nor past
// their expiry. Expired grants stay stored; they are filtered at read time.
func (s *GrantService) ListActive(ctx context.Context, userID string) ([]*models.PermissionGrant, error) {
	return s.grantRepo.FindActiveByUser(ctx, userID, time.Now())
}

// ListAll returns every grant recorded for the user, including revoked and
// expired ones, for audit views.
func (s *GrantService) ListAll(ctx context.Context, userID string) ([]*models.PermissionGrant, error) {
	return s.grantRepo.FindAllByUser(ctx, userID)
}

// CleanupExpired removes grants whose expiry passed more than retainFor ago.
func (s *GrantService) CleanupExpired(ctx context.Context, retainFor time.Duration) (int, error) {
	return s.grantRepo.DeleteExpiredBefore(ctx, time.Now().Add(-retainFor))
}
