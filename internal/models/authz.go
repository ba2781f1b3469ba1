package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserContext is the caller-supplied identity attached to every decision
// call. The service never parses tokens itself; the gateway extracts the
// identity and forwards it.
type UserContext struct {
	UserID    string `json:"userId"`
	UserRole  Role   `json:"userRole"`
	UserEmail string `json:"userEmail"`
}

// Permission check sources.
const (
	SourceRole      = "role"
	SourceHierarchy = "hierarchy"
	SourceDynamic   = "dynamic"
)

// PermissionCheck is the result of a single hasPermission evaluation.
type PermissionCheck struct {
	HasPermission bool   `json:"hasPermission"`
	Reason        string `json:"reason,omitempty"`
	Source        string `json:"source,omitempty"`
	Cached        bool   `json:"cached"`
}

// GrantActor identifies who performed a grant or revocation, for audit.
type GrantActor struct {
	UserID   string `bson:"userId" json:"userId"`
	UserName string `bson:"userName" json:"userName"`
	UserRole Role   `bson:"userRole" json:"userRole"`
}

// PermissionGrant is a time-bounded permission assigned to a single user on
// top of their role. A grant whose ExpiresAt has passed is inert but stays
// stored until explicit cleanup.
type PermissionGrant struct {
	ID         string            `bson:"_id" json:"id"`
	UserID     string            `bson:"userId" json:"userId"`
	Permission string            `bson:"permission" json:"permission"`
	GrantedBy  GrantActor        `bson:"grantedBy" json:"grantedBy"`
	GrantedAt  time.Time         `bson:"grantedAt" json:"grantedAt"`
	ExpiresAt  *time.Time        `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	Reason     string            `bson:"reason,omitempty" json:"reason,omitempty"`
	Metadata   map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Revoked    bool              `bson:"revoked" json:"revoked"`
	RevokedBy  *GrantActor       `bson:"revokedBy,omitempty" json:"revokedBy,omitempty"`
	RevokedAt  *time.Time        `bson:"revokedAt,omitempty" json:"revokedAt,omitempty"`
}

// IsActive reports whether the grant still applies at the given instant.
func (g *PermissionGrant) IsActive(now time.Time) bool {
	if g.Revoked {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Editing lock types.
const (
	LockTypeEdit   = "edit"
	LockTypeReview = "review"
)

// EditingSession is one user's active hold on a product. At most one
// non-admin user holds an active session per product at a time.
type EditingSession struct {
	SessionID      string    `json:"sessionId"`
	ResourceID     string    `json:"resourceId"`
	UserID         string    `json:"userId"`
	UserEmail      string    `json:"userEmail"`
	UserRole       Role      `json:"userRole"`
	LockType       string    `json:"lockType"`
	StartedAt      time.Time `json:"startedAt"`
	LastExtendedAt time.Time `json:"lastExtendedAt"`
	IsActive       bool      `json:"isActive"`
}

// ResourceSnapshot is the minimal view of a product the lock manager needs
// at session start. LockType is derived from WorkflowState once, here, and
// never recomputed while the session is active.
type ResourceSnapshot struct {
	ID            string        `json:"id"`
	WorkflowState WorkflowState `json:"workflowState"`
}

// EditingResult is the outcome of a start-session attempt.
type EditingResult struct {
	Success         bool            `json:"success"`
	SessionID       string          `json:"sessionId,omitempty"`
	Error           string          `json:"error,omitempty"`
	ExistingSession *EditingSession `json:"existingSession,omitempty"`
}

// SessionValidation is the outcome of validating an editing session.
type SessionValidation struct {
	IsValid bool            `json:"isValid"`
	Session *EditingSession `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EditingStatistics aggregates the active editing sessions.
type EditingStatistics struct {
	TotalActiveSessions int            `json:"totalActiveSessions"`
	SessionsByUser      map[string]int `json:"sessionsByUser"`
}

// Result codes shared by the session APIs.
const (
	CodeUserNotFound    = "USER_NOT_FOUND"
	CodeUserInactive    = "USER_INACTIVE"
	CodeLoginFailed     = "LOGIN_FAILED"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeSessionExpired  = "SESSION_EXPIRED"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Session is an authenticated login session. IsActive=false is terminal;
// deactivated records are retained for lookup and audit.
type Session struct {
	ID           string    `bson:"_id" json:"id"`
	UserID       string    `bson:"userId" json:"userId"`
	Token        string    `bson:"token" json:"-"`
	Device       string    `bson:"device,omitempty" json:"device,omitempty"`
	Browser      string    `bson:"browser,omitempty" json:"browser,omitempty"`
	IPAddress    string    `bson:"ipAddress,omitempty" json:"ipAddress,omitempty"`
	Location     string    `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	LastActivity time.Time `bson:"lastActivity" json:"lastActivity"`
	ExpiresAt    time.Time `bson:"expiresAt" json:"expiresAt"`
	IsActive     bool      `bson:"isActive" json:"isActive"`
}

// IsExpired reports whether the session's TTL has passed.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// SessionResult is the discriminated result every SessionService method
// returns. Expected failures carry a machine code plus a readable error;
// the service never panics for them.
type SessionResult struct {
	Success  bool       `json:"success"`
	Session  *Session   `json:"session,omitempty"`
	Sessions []*Session `json:"sessions,omitempty"`
	Code     string     `json:"code,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// SessionStats summarizes login sessions, optionally scoped to one user.
type SessionStats struct {
	TotalActive   int            `json:"totalActive"`
	TotalExpired  int            `json:"totalExpired"`
	ActiveByUser  map[string]int `json:"activeByUser,omitempty"`
	RememberMeTTL string         `json:"rememberMeTtl,omitempty"`
}

// DirectoryUser is the external user-directory record the session service
// consults before creating a session.
type DirectoryUser struct {
	ID           string `bson:"_id" json:"id"`
	Username     string `bson:"username" json:"username"`
	Email        string `bson:"email" json:"email"`
	Role         Role   `bson:"role" json:"role"`
	Status       string `bson:"status" json:"status"`
	PasswordHash string `bson:"passwordHash" json:"-"`
}

// Claims is the JWT payload minted for a login session.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}
