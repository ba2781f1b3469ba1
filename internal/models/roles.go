package models

// Role is one of the four fixed workflow roles. The rank ordering is total:
// a lower rank number means more privilege, and a role holds every
// permission of all roles ranked below it.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleReviewer Role = "reviewer"
	RoleEditor   Role = "editor"
	RoleViewer   Role = "viewer"
)

// RoleRanks maps each role to its privilege rank. Unknown roles have no rank.
var RoleRanks = map[Role]int{
	RoleAdmin:    1,
	RoleReviewer: 2,
	RoleEditor:   3,
	RoleViewer:   4,
}

// Permission names. Kept as plain strings so dynamic grants can carry
// permissions that no static role table mentions.
const (
	PermProductsRead   = "products:read"
	PermProductsExport = "products:export"

	PermProductsCreate     = "products:create"
	PermProductsUpdate     = "products:update"
	PermProductsDelete     = "products:delete"
	PermWorkflowSubmit     = "workflow:submit_review"
	PermProductsStartEdit  = "products:start_editing"
	PermProductsStartRevw  = "products:start_review"
	PermWorkflowApprove    = "workflow:approve"
	PermWorkflowReject     = "workflow:reject"
	PermWorkflowPublish    = "workflow:publish"
	PermProductsImport     = "products:import"
	PermUsersManage        = "users:manage"
	PermManagePermissions  = "users:manage_permissions"
	PermSessionsForceEnd   = "sessions:force_end"
	PermSessionsViewStats  = "sessions:view_stats"
	PermNotificationsAdmin = "notifications:admin"
)

// RolePermissions is the static role table. Each role lists only its own
// permissions; inheritance from lower-privilege roles is resolved by the
// hierarchy walk in RoleService, never duplicated here.
var RolePermissions = map[Role][]string{
	RoleViewer: {
		PermProductsRead,
		PermProductsExport,
	},
	RoleEditor: {
		PermProductsCreate,
		PermProductsUpdate,
		PermProductsDelete,
		PermProductsStartEdit,
		PermWorkflowSubmit,
	},
	RoleReviewer: {
		PermProductsStartRevw,
		PermWorkflowApprove,
		PermWorkflowReject,
	},
	RoleAdmin: {
		PermWorkflowPublish,
		PermProductsImport,
		PermUsersManage,
		PermManagePermissions,
		PermSessionsForceEnd,
		PermSessionsViewStats,
		PermNotificationsAdmin,
	},
}

// WorkflowState is the product workflow state a resource carries.
type WorkflowState string

const (
	StateDraft     WorkflowState = "draft"
	StateReview    WorkflowState = "review"
	StateApproved  WorkflowState = "approved"
	StateRejected  WorkflowState = "rejected"
	StatePublished WorkflowState = "published"
	StateArchived  WorkflowState = "archived"
)

// AllWorkflowStates in declaration order, used for the admin transition set.
var AllWorkflowStates = []WorkflowState{
	StateDraft, StateReview, StateApproved, StateRejected, StatePublished, StateArchived,
}

// WorkflowTransitions lists the transitions each role may perform, keyed by
// the current state. Admin is handled separately: it may transition to any
// state. Viewer has no transitions at all.
var WorkflowTransitions = map[Role]map[WorkflowState][]WorkflowState{
	RoleEditor: {
		StateDraft: {StateReview},
	},
	RoleReviewer: {
		StateReview: {StateApproved, StateRejected},
	},
}
