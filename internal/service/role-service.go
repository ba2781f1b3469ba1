package service

import (
	"slices"

	"authz_service/internal/models"
)

// RoleService answers questions about the fixed role hierarchy and the
// static role-permission tables. It is a leaf: pure lookups over immutable
// tables built once at construction, safe for concurrent use.
type RoleService struct {
	ranks       map[models.Role]int
	permissions map[models.Role][]string
	transitions map[models.Role]map[models.WorkflowState][]models.WorkflowState
}

func NewRoleService() *RoleService {
	return &RoleService{
		ranks:       models.RoleRanks,
		permissions: models.RolePermissions,
		transitions: models.WorkflowTransitions,
	}
}

// Rank returns the privilege rank of a role (lower = more privileged) and
// whether the role exists.
func (s *RoleService) Rank(role models.Role) (int, bool) {
	rank, ok := s.ranks[role]
	return rank, ok
}

// StaticPermissions returns the role's own permission list, without any
// hierarchy inheritance. Unknown roles yield nil.
func (s *RoleService) StaticPermissions(role models.Role) []string {
	return s.permissions[role]
}

// HasDirectPermission reports whether the role's own table grants the
// permission.
func (s *RoleService) HasDirectPermission(role models.Role, permission string) bool {
	if permission == "" {
		return false
	}
	return slices.Contains(s.permissions[role], permission)
}

// IsGrantedByHierarchy reports whether the permission belongs to the role
// itself or to any role of strictly lower privilege (higher rank number).
// Privilege inherits downward only: admin holds everything, viewer holds
// only its own table. Unknown roles and empty permissions are false, never
// an error.
func (s *RoleService) IsGrantedByHierarchy(role models.Role, permission string) bool {
	if permission == "" {
		return false
	}
	rank, ok := s.ranks[role]
	if !ok {
		return false
	}
	for other, otherRank := range s.ranks {
		if otherRank < rank {
			continue
		}
		if slices.Contains(s.permissions[other], permission) {
			return true
		}
	}
	return false
}

// EffectiveRolePermissions returns the union of the role's own permissions
// and everything inherited from lower-privilege roles.
func (s *RoleService) EffectiveRolePermissions(role models.Role) []string {
	rank, ok := s.ranks[role]
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var result []string
	for other, otherRank := range s.ranks {
		if otherRank < rank {
			continue
		}
		for _, p := range s.permissions[other] {
			if !seen[p] {
				seen[p] = true
				result = append(result, p)
			}
		}
	}
	slices.Sort(result)
	return result
}

// AllowedTransitions returns the workflow states the role may move a
// resource to from the given state. Admin may transition to any other
// state; viewer has none.
func (s *RoleService) AllowedTransitions(from models.WorkflowState, role models.Role) []models.WorkflowState {
	if _, ok := s.ranks[role]; !ok {
		return nil
	}
	if role == models.RoleAdmin {
		targets := make([]models.WorkflowState, 0, len(models.AllWorkflowStates)-1)
		for _, state := range models.AllWorkflowStates {
			if state != from {
				targets = append(targets, state)
			}
		}
		return targets
	}
	roleTable, ok := s.transitions[role]
	if !ok {
		return nil
	}
	return slices.Clone(roleTable[from])
}
