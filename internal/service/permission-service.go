package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"authz_service/internal/metrics"
	"authz_service/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotAuthorized is returned by the grant-management wrappers when the
// acting user does not hold users:manage_permissions.
var ErrNotAuthorized = errors.New("caller does not have permission management capability")

const permissionCacheSize = 4096

// cacheEntry is one memoized evaluation. Dynamic-sourced results carry the
// grant's expiry so a cached allow cannot outlive the grant.
type cacheEntry struct {
	check      models.PermissionCheck
	validUntil *time.Time
}

// PermissionService answers "can user X do action Y". Evaluation order is
// fixed: the role's own table, then hierarchy inheritance, then active
// dynamic grants; anything else is a denial with a readable reason.
// Results are cached per (user, role, action) and the whole user's entries
// are dropped whenever one of their grants changes.
type PermissionService struct {
	roleService  *RoleService
	grantService *GrantService
	cache        *lru.Cache[string, cacheEntry]
	metrics      *metrics.Metrics
}

func NewPermissionService(roleService *RoleService, grantService *GrantService, m *metrics.Metrics) *PermissionService {
	cache, err := lru.New[string, cacheEntry](permissionCacheSize)
	if err != nil {
		// Only reachable with a non-positive size constant.
		log.Printf("Warning: failed to create permission cache: %v", err)
	}
	return &PermissionService{
		roleService:  roleService,
		grantService: grantService,
		cache:        cache,
		metrics:      m,
	}
}

func cacheKey(userID string, role models.Role, action string) string {
	return userID + "|" + string(role) + "|" + action
}

// HasPermission never returns an error: invalid input and collaborator
// failures resolve to a denial with a reason.
func (s *PermissionService) HasPermission(ctx context.Context, user models.UserContext, action, resourceID string) models.PermissionCheck {
	if action == "" {
		return models.PermissionCheck{HasPermission: false, Reason: "No action specified"}
	}
	if user.UserID == "" {
		return models.PermissionCheck{HasPermission: false, Reason: "No user identity supplied"}
	}

	key := cacheKey(user.UserID, user.UserRole, action)
	if s.cache != nil {
		if entry, ok := s.cache.Get(key); ok {
			if entry.validUntil == nil || entry.validUntil.After(time.Now()) {
				if s.metrics != nil {
					s.metrics.PermissionCacheHits.Inc()
				}
				check := entry.check
				check.Cached = true
				return check
			}
			s.cache.Remove(key)
		}
	}

	check, validUntil, cacheable := s.evaluate(ctx, user, action)
	if cacheable && s.cache != nil {
		s.cache.Add(key, cacheEntry{check: check, validUntil: validUntil})
	}
	s.observe(check)
	return check
}

func (s *PermissionService) evaluate(ctx context.Context, user models.UserContext, action string) (models.PermissionCheck, *time.Time, bool) {
	if _, ok := s.roleService.Rank(user.UserRole); !ok {
		return models.PermissionCheck{
			HasPermission: false,
			Reason:        fmt.Sprintf("Unknown role: %s", user.UserRole),
		}, nil, true
	}

	if s.roleService.HasDirectPermission(user.UserRole, action) {
		return models.PermissionCheck{HasPermission: true, Source: models.SourceRole}, nil, true
	}

	if s.roleService.IsGrantedByHierarchy(user.UserRole, action) {
		return models.PermissionCheck{HasPermission: true, Source: models.SourceHierarchy}, nil, true
	}

	grants, err := s.grantService.ListActive(ctx, user.UserID)
	if err != nil {
		log.Printf("Warning: failed to load dynamic grants for user %s: %v", user.UserID, err)
		return models.PermissionCheck{
			HasPermission: false,
			Reason:        "Permission check failed, try again",
		}, nil, false
	}
	for _, grant := range grants {
		if grant.Permission == action {
			return models.PermissionCheck{HasPermission: true, Source: models.SourceDynamic}, grant.ExpiresAt, true
		}
	}

	return models.PermissionCheck{
		HasPermission: false,
		Reason:        fmt.Sprintf("Role %s does not have permission to perform %s", user.UserRole, action),
	}, nil, true
}

func (s *PermissionService) observe(check models.PermissionCheck) {
	if s.metrics == nil {
		return
	}
	result := "denied"
	if check.HasPermission {
		result = "allowed"
	}
	s.metrics.PermissionChecks.WithLabelValues(result, check.Source).Inc()
}

// GetEffectivePermissions returns the union of the role's own permissions,
// everything inherited through the hierarchy, and, when requested, the
// user's active dynamic grants.
func (s *PermissionService) GetEffectivePermissions(ctx context.Context, user models.UserContext, includeDynamic bool) ([]string, error) {
	permissions := s.roleService.EffectiveRolePermissions(user.UserRole)
	if !includeDynamic {
		return permissions, nil
	}

	grants, err := s.grantService.ListActive(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("error loading dynamic grants: %s", err)
	}
	for _, grant := range grants {
		if !slices.Contains(permissions, grant.Permission) {
			permissions = append(permissions, grant.Permission)
		}
	}
	slices.Sort(permissions)
	return permissions, nil
}

// GetAllowedTransitions exposes the workflow transition table for the role.
func (s *PermissionService) GetAllowedTransitions(from models.WorkflowState, role models.Role) []models.WorkflowState {
	return s.roleService.AllowedTransitions(from, role)
}

// AssignDynamicPermission grants a permission to a user. The acting user
// must hold users:manage_permissions; the target's cached results are
// dropped so the grant takes effect immediately.
func (s *PermissionService) AssignDynamicPermission(ctx context.Context, actor models.UserContext, userID, permission string, opts GrantOptions) (*models.PermissionGrant, error) {
	check := s.HasPermission(ctx, actor, models.PermManagePermissions, "")
	if !check.HasPermission {
		return nil, ErrNotAuthorized
	}

	grant, err := s.grantService.Assign(ctx, userID, permission, grantActor(actor), opts)
	if err != nil {
		return nil, err
	}
	s.InvalidateUserCache(userID)
	return grant, nil
}

// RevokePermission revokes a single grant. Returns false for unknown,
// already-revoked, and expired grants.
func (s *PermissionService) RevokePermission(ctx context.Context, actor models.UserContext, grantID, reason string) (bool, error) {
	check := s.HasPermission(ctx, actor, models.PermManagePermissions, "")
	if !check.HasPermission {
		return false, ErrNotAuthorized
	}

	grant, err := s.grantService.grantRepo.FindByID(ctx, grantID)
	if err != nil {
		return false, nil
	}

	revoked, err := s.grantService.Revoke(ctx, grantID, grantActor(actor), reason)
	if err != nil {
		return false, err
	}
	if revoked {
		s.InvalidateUserCache(grant.UserID)
	}
	return revoked, nil
}

// RevokeAllUserPermissions revokes every active grant the user holds.
func (s *PermissionService) RevokeAllUserPermissions(ctx context.Context, actor models.UserContext, userID, reason string) (int, error) {
	check := s.HasPermission(ctx, actor, models.PermManagePermissions, "")
	if !check.HasPermission {
		return 0, ErrNotAuthorized
	}

	count, err := s.grantService.RevokeAll(ctx, userID, grantActor(actor), reason)
	if count > 0 {
		s.InvalidateUserCache(userID)
	}
	return count, err
}

// ListUserGrants returns the user's active grants for management views.
func (s *PermissionService) ListUserGrants(ctx context.Context, actor models.UserContext, userID string) ([]*models.PermissionGrant, error) {
	check := s.HasPermission(ctx, actor, models.PermManagePermissions, "")
	if !check.HasPermission {
		return nil, ErrNotAuthorized
	}
	return s.grantService.ListActive(ctx, userID)
}

// InvalidateUserCache drops every cached evaluation for the user. Full
// per-user invalidation keeps correctness simple under concurrent grant
// changes and lookups.
func (s *PermissionService) InvalidateUserCache(userID string) {
	if s.cache == nil {
		return
	}
	prefix := userID + "|"
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Remove(key)
		}
	}
}

func grantActor(user models.UserContext) models.GrantActor {
	return models.GrantActor{
		UserID:   user.UserID,
		UserName: user.UserEmail,
		UserRole: user.UserRole,
	}
}
