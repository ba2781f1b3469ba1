package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"authz_service/internal/events"
	"authz_service/internal/metrics"
	"authz_service/internal/models"
	"authz_service/internal/repository"

	"github.com/google/uuid"
)

// PasswordVerifier checks a candidate password against a directory record.
// Only the login flow needs it; deployments that authenticate elsewhere can
// leave it nil.
type PasswordVerifier interface {
	VerifyPassword(user *models.DirectoryUser, password string) bool
}

// CreateSessionInput describes a session to create. Token is minted from
// the JWT secret when left empty.
type CreateSessionInput struct {
	UserID     string
	Token      string
	Device     string
	Browser    string
	IPAddress  string
	Location   string
	RememberMe bool
}

// SessionService manages authenticated login sessions: per-user concurrency
// cap with oldest-first eviction, remember-me TTLs, lazy expiry on read
// plus a periodic sweep, and soft deletion that keeps records queryable.
type SessionService struct {
	sessionRepo    repository.SessionRepository
	userDirectory  repository.UserDirectory
	verifier       PasswordVerifier
	jwtService     *JWTService
	eventPublisher events.Publisher
	metrics        *metrics.Metrics

	maxSessions   int
	sessionTTL    time.Duration
	rememberMeTTL time.Duration
	userLocks     *keyedMutex
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	userDirectory repository.UserDirectory,
	verifier PasswordVerifier,
	jwtService *JWTService,
	eventPublisher events.Publisher,
	m *metrics.Metrics,
	maxSessions, sessionTTLHours, rememberMeDays int,
) *SessionService {
	if maxSessions <= 0 {
		maxSessions = 3
	}
	if sessionTTLHours <= 0 {
		sessionTTLHours = 24
	}
	if rememberMeDays <= 0 {
		rememberMeDays = 30
	}
	return &SessionService{
		sessionRepo:    sessionRepo,
		userDirectory:  userDirectory,
		verifier:       verifier,
		jwtService:     jwtService,
		eventPublisher: eventPublisher,
		metrics:        m,
		maxSessions:    maxSessions,
		sessionTTL:     time.Duration(sessionTTLHours) * time.Hour,
		rememberMeTTL:  time.Duration(rememberMeDays) * 24 * time.Hour,
		userLocks:      newKeyedMutex(),
	}
}

// Login authenticates against the user directory and creates a session.
func (s *SessionService) Login(ctx context.Context, username, password string, input CreateSessionInput) models.SessionResult {
	if s.verifier == nil {
		return models.SessionResult{Success: false, Code: models.CodeInternalError, Error: "Login is not configured"}
	}
	user, err := s.userDirectory.FindByUsername(ctx, username)
	if err != nil {
		log.Printf("Warning: directory lookup failed for username %s: %v", username, err)
		return models.SessionResult{Success: false, Code: models.CodeInternalError, Error: "User lookup failed"}
	}
	if user == nil || !s.verifier.VerifyPassword(user, password) {
		return models.SessionResult{Success: false, Code: models.CodeLoginFailed, Error: "Invalid username or password"}
	}
	input.UserID = user.ID
	return s.CreateSession(ctx, input)
}

// CreateSession validates the subject against the directory, evicts the
// oldest session when the user is at the cap, and stores the new session.
// Eviction is unconditional housekeeping, never an error.
func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) models.SessionResult {
	if input.UserID == "" {
		return models.SessionResult{Success: false, Code: models.CodeInvalidInput, Error: "User id is required"}
	}

	user, err := s.userDirectory.FindByID(ctx, input.UserID)
	if err != nil {
		log.Printf("Warning: directory lookup failed for user %s: %v", input.UserID, err)
		return models.SessionResult{Success: false, Code: models.CodeInternalError, Error: "User lookup failed"}
	}
	if user == nil {
		return models.SessionResult{Success: false, Code: models.CodeUserNotFound, Error: "User not found"}
	}
	if user.Status != "" && user.Status != "active" {
		return models.SessionResult{Success: false, Code: models.CodeUserInactive, Error: "User is not active"}
	}

	// Cap enforcement must be atomic per user.
	userLock := s.userLocks.get(input.UserID)
	userLock.Lock()
	defer userLock.Unlock()

	active, err := s.activeUnexpired(ctx, input.UserID)
	if err != nil {
		return models.SessionResult{Success: false, Code: models.CodeInternalError, Error: "Session lookup failed"}
	}
	for len(active) >= s.maxSessions {
		oldest := active[0]
		oldest.IsActive = false
		if err := s.sessionRepo.Update(ctx, oldest); err != nil {
			log.Printf("Warning: failed to evict session %s: %v", oldest.ID, err)
			break
		}
		active = active[1:]
		if s.metrics != nil {
			s.metrics.SessionsEvicted.Inc()
			s.metrics.LoginSessionsActive.Dec()
		}
		if s.eventPublisher != nil {
			if err := s.eventPublisher.PublishSessionEvicted(ctx, oldest.ID, oldest.UserID); err != nil {
				log.Printf("Warning: Failed to publish session evicted event: %v", err)
			}
		}
		log.Printf("Session %s evicted for user %s (concurrency cap %d)", oldest.ID, input.UserID, s.maxSessions)
	}

	now := time.Now()
	ttl := s.sessionTTL
	if input.RememberMe {
		ttl = s.rememberMeTTL
	}

	token := input.Token
	if token == "" && s.jwtService != nil && s.jwtService.Enabled() {
		token, err = s.jwtService.GenerateSessionToken(user.ID, user.Email, user.Role, ttl)
		if err != nil {
			return models.SessionResult{Success: false, Code: models.CodeInternalError, Error: fmt.Sprintf("Token generation failed: %s", err)}
		}
	}

	session := &models.Session{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		Token:        token,
		Device:       input.Device,
		Browser:      input.Browser,
		IPAddress:    input.IPAddress,
		Location:     input.Location,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
		IsActive:     true,
	}

	if err := s.sessionRepo.Insert(ctx, session); err != nil {
		return models.SessionResult{Success: false, Code: models.CodeInternalError, Error: "Failed to store session"}
	}

	if s.metrics != nil {
		s.metrics.LoginSessionsActive.Inc()
	}
	if s.eventPublisher != nil {
		if err := s.eventPublisher.PublishSessionCreated(ctx, session.ID, session.UserID, session.Device, session.IPAddress); err != nil {
			log.Printf("Warning: Failed to publish session created event: %v", err)
		}
	}

	return models.SessionResult{Success: true, Session: session}
}

// activeUnexpired returns the user's active sessions oldest-first,
// deactivating any that expired since last touched.
func (s *SessionService) activeUnexpired(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := s.sessionRepo.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	live := sessions[:0]
	for _, session := range sessions {
		if session.IsExpired(now) {
			s.expireSession(ctx, session)
			continue
		}
		live = append(live, session)
	}
	return live, nil
}

func (s *SessionService) expireSession(ctx context.Context, session *models.Session) {
	session.IsActive = false
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		log.Printf("Warning: failed to deactivate expired session %s: %v", session.ID, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsExpired.Inc()
		s.metrics.LoginSessionsActive.Dec()
	}
}

// GetSession looks a session up by id, applying lazy expiry.
func (s *SessionService) GetSession(ctx context.Context, id string) models.SessionResult {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return models.SessionResult{Success: false, Code: models.CodeSessionNotFound, Error: "Session not found"}
	}
	if !session.IsActive {
		return models.SessionResult{Success: false, Code: models.CodeSessionNotFound, Error: "Session is no longer active"}
	}
	if session.IsExpired(time.Now()) {
		s.expireSession(ctx, session)
		return models.SessionResult{Success: false, Code: models.CodeSessionExpired, Error: "Session has expired"}
	}
	return models.SessionResult{Success: true, Session: session}
}

// GetSessionByToken looks a session up by its token, applying lazy expiry.
func (s *SessionService) GetSessionByToken(ctx context.Context, token string) models.SessionResult {
	session, err := s.sessionRepo.FindByToken(ctx, token)
	if err != nil {
		return models.SessionResult{Success: false, Code: models.CodeSessionNotFound, Error: "Session not found"}
	}
	return s.GetSession(ctx, session.ID)
}

// UpdateActivity bumps the session's last-activity timestamp.
func (s *SessionService) UpdateActivity(ctx context.Context, id string) models.SessionResult {
	result := s.GetSession(ctx, id)
	if !result.Success {
		return result
	}
	result.Session.LastActivity = time.Now()
	if err := s.sessionRepo.Update(ctx, result.Session); err != nil {
		return models.SessionResult{Success: false, Code: models.CodeInternalError, Error: "Failed to update session"}
	}
	return models.SessionResult{Success: true, Session: result.Session}
}

// RefreshSession recomputes the expiry from now. An already-expired session
// cannot be resurrected: it fails with SESSION_EXPIRED.
func (s *SessionService) RefreshSession(ctx context.Context, id string, rememberMe bool) models.SessionResult {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return models.SessionResult{Success: false, Code: models.CodeSessionNotFound, Error: "Session not found"}
	}
	if !session.IsActive {
		return models.SessionResult{Success: false, Code: models.CodeSessionNotFound, Error: "Session is no longer active"}
	}
	now := time.Now()
	if session.IsExpired(now) {
		s.expireSession(ctx, session)
		return models.SessionResult{Success: false, Code: models.CodeSessionExpired, Error: "Session has expired"}
	}

	ttl := s.sessionTTL
	if rememberMe {
		ttl = s.rememberMeTTL
	}
	session.ExpiresAt = now.Add(ttl)
	session.LastActivity = now
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return models.SessionResult{Success: false, Code: models.CodeInternalError, Error: "Failed to refresh session"}
	}
	return models.SessionResult{Success: true, Session: session}
}

// DeleteSession soft-deletes a session. Deleting an already-inactive
// session succeeds (idempotent); an id that never existed is
// SESSION_NOT_FOUND.
func (s *SessionService) DeleteSession(ctx context.Context, id string) models.SessionResult {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return models.SessionResult{Success: false, Code: models.CodeSessionNotFound, Error: "Session not found"}
	}
	if !session.IsActive {
		return models.SessionResult{Success: true, Session: session}
	}
	session.IsActive = false
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return models.SessionResult{Success: false, Code: models.CodeInternalError, Error: "Failed to delete session"}
	}
	if s.metrics != nil {
		s.metrics.LoginSessionsActive.Dec()
	}
	return models.SessionResult{Success: true, Session: session}
}

// DeleteAllUserSessions deactivates every active session of the user and
// returns the sessions that were deactivated. No sessions is still success.
func (s *SessionService) DeleteAllUserSessions(ctx context.Context, userID string) models.SessionResult {
	userLock := s.userLocks.get(userID)
	userLock.Lock()
	defer userLock.Unlock()

	sessions, err := s.sessionRepo.FindActiveByUser(ctx, userID)
	if err != nil {
		return models.SessionResult{Success: false, Code: models.CodeInternalError, Error: "Session lookup failed"}
	}

	deactivated := make([]*models.Session, 0, len(sessions))
	for _, session := range sessions {
		session.IsActive = false
		if err := s.sessionRepo.Update(ctx, session); err != nil {
			log.Printf("Warning: failed to deactivate session %s: %v", session.ID, err)
			continue
		}
		if s.metrics != nil {
			s.metrics.LoginSessionsActive.Dec()
		}
		deactivated = append(deactivated, session)
	}
	log.Printf("Deactivated %d session(s) for user %s", len(deactivated), userID)
	return models.SessionResult{Success: true, Sessions: deactivated}
}

// CleanupExpiredSessions is the periodic sweep. Lazy expiry on read remains
// in place; the sweep only bounds how long a dead session lingers active.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context) int {
	sessions, err := s.sessionRepo.FindAllActive(ctx)
	if err != nil {
		log.Printf("Warning: expiry sweep failed to list sessions: %v", err)
		return 0
	}
	now := time.Now()
	cleaned := 0
	for _, session := range sessions {
		if session.IsExpired(now) {
			s.expireSession(ctx, session)
			cleaned++
		}
	}
	if cleaned > 0 {
		log.Printf("Expiry sweep deactivated %d session(s)", cleaned)
	}
	return cleaned
}

// IsValidSession reports whether the session exists, is active, and is not
// expired.
func (s *SessionService) IsValidSession(ctx context.Context, id string) bool {
	return s.GetSession(ctx, id).Success
}

// GetActiveSessionCount returns the user's active, unexpired session count.
func (s *SessionService) GetActiveSessionCount(ctx context.Context, userID string) int {
	sessions, err := s.sessionRepo.FindActiveByUser(ctx, userID)
	if err != nil {
		return 0
	}
	now := time.Now()
	count := 0
	for _, session := range sessions {
		if !session.IsExpired(now) {
			count++
		}
	}
	return count
}

// HasReachedSessionLimit reports whether a new session would trigger
// eviction.
func (s *SessionService) HasReachedSessionLimit(ctx context.Context, userID string) bool {
	return s.GetActiveSessionCount(ctx, userID) >= s.maxSessions
}

// GetSessionStats summarizes sessions, optionally scoped to one user.
func (s *SessionService) GetSessionStats(ctx context.Context, userID string) (*models.SessionStats, error) {
	var sessions []*models.Session
	var err error
	if userID != "" {
		sessions, err = s.sessionRepo.FindActiveByUser(ctx, userID)
	} else {
		sessions, err = s.sessionRepo.FindAllActive(ctx)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	stats := &models.SessionStats{
		ActiveByUser:  make(map[string]int),
		RememberMeTTL: s.rememberMeTTL.String(),
	}
	for _, session := range sessions {
		if session.IsExpired(now) {
			stats.TotalExpired++
			continue
		}
		stats.TotalActive++
		stats.ActiveByUser[session.UserID]++
	}
	return stats, nil
}
