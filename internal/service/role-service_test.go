package service

import (
	"testing"

	"authz_service/internal/models"
)

func TestRankOrdering(t *testing.T) {
	s := NewRoleService()

	adminRank, ok := s.Rank(models.RoleAdmin)
	if !ok {
		t.Fatal("expected admin to have a rank")
	}
	viewerRank, ok := s.Rank(models.RoleViewer)
	if !ok {
		t.Fatal("expected viewer to have a rank")
	}
	if adminRank >= viewerRank {
		t.Errorf("expected admin rank (%d) to be below viewer rank (%d)", adminRank, viewerRank)
	}

	if _, ok := s.Rank(models.Role("superuser")); ok {
		t.Error("expected unknown role to have no rank")
	}
}

func TestHierarchyInheritance(t *testing.T) {
	s := NewRoleService()

	testCases := []struct {
		name       string
		role       models.Role
		permission string
		expected   bool
	}{
		{"admin inherits viewer read", models.RoleAdmin, models.PermProductsRead, true},
		{"admin inherits editor create", models.RoleAdmin, models.PermProductsCreate, true},
		{"admin inherits reviewer approve", models.RoleAdmin, models.PermWorkflowApprove, true},
		{"admin holds own publish", models.RoleAdmin, models.PermWorkflowPublish, true},
		{"reviewer inherits editor create", models.RoleReviewer, models.PermProductsCreate, true},
		{"reviewer inherits viewer read", models.RoleReviewer, models.PermProductsRead, true},
		{"reviewer does not inherit publish", models.RoleReviewer, models.PermWorkflowPublish, false},
		{"editor inherits viewer read", models.RoleEditor, models.PermProductsRead, true},
		{"editor does not inherit approve", models.RoleEditor, models.PermWorkflowApprove, false},
		{"viewer holds own read", models.RoleViewer, models.PermProductsRead, true},
		{"viewer does not inherit create", models.RoleViewer, models.PermProductsCreate, false},
		{"viewer does not inherit approve", models.RoleViewer, models.PermWorkflowApprove, false},
		{"viewer does not inherit publish", models.RoleViewer, models.PermWorkflowPublish, false},
		{"unknown role", models.Role("superuser"), models.PermProductsRead, false},
		{"empty permission", models.RoleAdmin, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.IsGrantedByHierarchy(tc.role, tc.permission); got != tc.expected {
				t.Errorf("IsGrantedByHierarchy(%s, %s) = %v, want %v", tc.role, tc.permission, got, tc.expected)
			}
		})
	}
}

// Every permission a less-privileged role holds must also be held by every
// more-privileged role.
func TestHierarchyMonotonicity(t *testing.T) {
	s := NewRoleService()

	roles := []models.Role{models.RoleAdmin, models.RoleReviewer, models.RoleEditor, models.RoleViewer}
	for i, higher := range roles {
		for _, lower := range roles[i:] {
			for _, permission := range s.EffectiveRolePermissions(lower) {
				if !s.IsGrantedByHierarchy(higher, permission) {
					t.Errorf("%s should inherit %q held by %s", higher, permission, lower)
				}
			}
		}
	}
}

func TestAllowedTransitions(t *testing.T) {
	s := NewRoleService()

	editorFromDraft := s.AllowedTransitions(models.StateDraft, models.RoleEditor)
	if len(editorFromDraft) != 1 || editorFromDraft[0] != models.StateReview {
		t.Errorf("expected editor draft->review only, got %v", editorFromDraft)
	}

	if got := s.AllowedTransitions(models.StateReview, models.RoleEditor); len(got) != 0 {
		t.Errorf("expected editor to have no transitions from review, got %v", got)
	}

	reviewerFromReview := s.AllowedTransitions(models.StateReview, models.RoleReviewer)
	if len(reviewerFromReview) != 2 {
		t.Fatalf("expected reviewer review transitions to approved and rejected, got %v", reviewerFromReview)
	}

	adminFromDraft := s.AllowedTransitions(models.StateDraft, models.RoleAdmin)
	if len(adminFromDraft) != len(models.AllWorkflowStates)-1 {
		t.Errorf("expected admin to reach every other state from draft, got %v", adminFromDraft)
	}
	for _, state := range adminFromDraft {
		if state == models.StateDraft {
			t.Error("admin transitions should not include the current state")
		}
	}

	if got := s.AllowedTransitions(models.StateDraft, models.RoleViewer); len(got) != 0 {
		t.Errorf("expected viewer to have no transitions, got %v", got)
	}

	if got := s.AllowedTransitions(models.StateDraft, models.Role("superuser")); got != nil {
		t.Errorf("expected unknown role to have no transitions, got %v", got)
	}
}

func TestEffectiveRolePermissions(t *testing.T) {
	s := NewRoleService()

	viewer := s.EffectiveRolePermissions(models.RoleViewer)
	admin := s.EffectiveRolePermissions(models.RoleAdmin)
	if len(admin) <= len(viewer) {
		t.Errorf("expected admin to hold more permissions (%d) than viewer (%d)", len(admin), len(viewer))
	}

	if got := s.EffectiveRolePermissions(models.Role("superuser")); got != nil {
		t.Errorf("expected unknown role to have no permissions, got %v", got)
	}
}
