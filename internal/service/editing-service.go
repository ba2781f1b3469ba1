package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"authz_service/internal/events"
	"authz_service/internal/metrics"
	"authz_service/internal/models"

	"github.com/google/uuid"
)

// keyedMutex hands out one mutex per resource so check-and-set on a
// resource is atomic while unrelated resources proceed independently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	return lock
}

// EditingService tracks who is editing or reviewing which product. At most
// one non-admin user holds an active session per product; admins may join a
// locked product without evicting the holder. Ended sessions are kept,
// deactivated, for audit.
type EditingService struct {
	mu            sync.RWMutex
	sessions      map[string]*models.EditingSession
	byResource    map[string][]string
	byUser        map[string]map[string]string
	resourceLocks *keyedMutex

	maxSessionsPerUser int
	eventPublisher     events.Publisher
	metrics            *metrics.Metrics
}

func NewEditingService(maxSessionsPerUser int, eventPublisher events.Publisher, m *metrics.Metrics) *EditingService {
	if maxSessionsPerUser <= 0 {
		maxSessionsPerUser = 5
	}
	return &EditingService{
		sessions:           make(map[string]*models.EditingSession),
		byResource:         make(map[string][]string),
		byUser:             make(map[string]map[string]string),
		resourceLocks:      newKeyedMutex(),
		maxSessionsPerUser: maxSessionsPerUser,
		eventPublisher:     eventPublisher,
		metrics:            m,
	}
}

// StartEditingSession acquires the editing lock on a product. Rules, in
// order: reject invalid snapshots; reject non-admins when another user
// holds the lock (returning that session for display); re-enter the
// caller's own session idempotently; reject when the caller is at the
// distinct-resource cap; otherwise create a session whose lock type is
// snapshotted from the product's workflow state.
func (s *EditingService) StartEditingSession(resourceID, userID, userEmail string, role models.Role, snapshot *models.ResourceSnapshot) models.EditingResult {
	if snapshot == nil || snapshot.ID == "" || snapshot.ID != resourceID {
		return models.EditingResult{Success: false, Error: "Invalid resource snapshot"}
	}
	if resourceID == "" || userID == "" {
		return models.EditingResult{Success: false, Error: "Resource and user are required"}
	}

	resourceLock := s.resourceLocks.get(resourceID)
	resourceLock.Lock()
	defer resourceLock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.activeSessionByOtherUserLocked(resourceID, userID); existing != nil && role != models.RoleAdmin {
		existingCopy := *existing
		return models.EditingResult{
			Success:         false,
			Error:           "Product is being edited by another user",
			ExistingSession: &existingCopy,
		}
	}

	if sessionID, ok := s.byUser[userID][resourceID]; ok {
		session := s.sessions[sessionID]
		if session != nil && session.IsActive {
			session.LastExtendedAt = time.Now()
			return models.EditingResult{Success: true, SessionID: session.SessionID}
		}
	}

	if len(s.byUser[userID]) >= s.maxSessionsPerUser {
		return models.EditingResult{
			Success: false,
			Error:   fmt.Sprintf("Maximum concurrent editing sessions (%d) reached", s.maxSessionsPerUser),
		}
	}

	lockType := models.LockTypeEdit
	if snapshot.WorkflowState == models.StateReview {
		lockType = models.LockTypeReview
	}

	now := time.Now()
	session := &models.EditingSession{
		SessionID:      uuid.NewString(),
		ResourceID:     resourceID,
		UserID:         userID,
		UserEmail:      userEmail,
		UserRole:       role,
		LockType:       lockType,
		StartedAt:      now,
		LastExtendedAt: now,
		IsActive:       true,
	}

	s.sessions[session.SessionID] = session
	s.byResource[resourceID] = append(s.byResource[resourceID], session.SessionID)
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[string]string)
	}
	s.byUser[userID][resourceID] = session.SessionID

	if s.metrics != nil {
		s.metrics.EditingSessionsActive.Inc()
	}
	log.Printf("Editing session %s started on %s by user %s (%s lock)", session.SessionID, resourceID, userID, lockType)

	return models.EditingResult{Success: true, SessionID: session.SessionID}
}

// activeSessionByOtherUserLocked returns an active session on the resource
// held by someone other than userID, or nil. Caller holds s.mu.
func (s *EditingService) activeSessionByOtherUserLocked(resourceID, userID string) *models.EditingSession {
	for _, sessionID := range s.byResource[resourceID] {
		session := s.sessions[sessionID]
		if session != nil && session.IsActive && session.UserID != userID {
			return session
		}
	}
	return nil
}

// EndEditingSession releases the caller's own session. It reports false for
// unknown, inactive, and foreign sessions alike: this is an authorization
// check, not a not-found distinction.
func (s *EditingService) EndEditingSession(sessionID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || !session.IsActive || session.UserID != userID {
		return false
	}

	s.deactivateLocked(session)
	return true
}

// deactivateLocked marks the session inactive and unlinks the indexes.
// Caller holds s.mu.
func (s *EditingService) deactivateLocked(session *models.EditingSession) {
	session.IsActive = false
	if userSessions := s.byUser[session.UserID]; userSessions != nil {
		if userSessions[session.ResourceID] == session.SessionID {
			delete(userSessions, session.ResourceID)
		}
		if len(userSessions) == 0 {
			delete(s.byUser, session.UserID)
		}
	}
	if s.metrics != nil {
		s.metrics.EditingSessionsActive.Dec()
	}
}

// ExtendSession refreshes the heartbeat. It does not re-check the per-user
// cap; only starting a session on a new resource does.
func (s *EditingService) ExtendSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || !session.IsActive {
		return false
	}
	session.LastExtendedAt = time.Now()
	return true
}

// ValidateSession checks that the session exists, is active, and belongs to
// the user, with distinguished error strings for the two failure cases.
func (s *EditingService) ValidateSession(sessionID, userID string) models.SessionValidation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok || !session.IsActive {
		return models.SessionValidation{IsValid: false, Error: "Session not found"}
	}
	if session.UserID != userID {
		return models.SessionValidation{IsValid: false, Error: "Session does not belong to user"}
	}
	found := *session
	return models.SessionValidation{IsValid: true, Session: &found}
}

// CanEditProduct mirrors the start rules without side effects: admins
// always may; others may unless a different user holds the lock.
func (s *EditingService) CanEditProduct(resourceID, userID string, role models.Role) bool {
	if role == models.RoleAdmin {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeSessionByOtherUserLocked(resourceID, userID) == nil
}

// GetProductSessions returns the active sessions on a product.
func (s *EditingService) GetProductSessions(resourceID string) []*models.EditingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*models.EditingSession
	for _, sessionID := range s.byResource[resourceID] {
		session := s.sessions[sessionID]
		if session != nil && session.IsActive {
			found := *session
			active = append(active, &found)
		}
	}
	return active
}

// GetUserSessions returns the user's active sessions across all products.
func (s *EditingService) GetUserSessions(userID string) []*models.EditingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*models.EditingSession
	for _, sessionID := range s.byUser[userID] {
		session := s.sessions[sessionID]
		if session != nil && session.IsActive {
			found := *session
			active = append(active, &found)
		}
	}
	return active
}

// ForceEndProductSessions deactivates every active session on a product
// regardless of holder. Admin recovery path; the caller's permission check
// happens upstream.
func (s *EditingService) ForceEndProductSessions(resourceID, actingAdminID string) int {
	s.mu.Lock()
	ended := 0
	for _, sessionID := range s.byResource[resourceID] {
		session := s.sessions[sessionID]
		if session != nil && session.IsActive {
			s.deactivateLocked(session)
			ended++
		}
	}
	s.mu.Unlock()

	if ended > 0 {
		log.Printf("Admin %s force-ended %d editing session(s) on %s", actingAdminID, ended, resourceID)
		if s.eventPublisher != nil {
			if err := s.eventPublisher.PublishEditingForceEnded(context.Background(), resourceID, actingAdminID, ended); err != nil {
				log.Printf("Warning: Failed to publish force-end event: %v", err)
			}
		}
	}
	return ended
}

// GetEditingStatistics aggregates the active sessions for observability.
func (s *EditingService) GetEditingStatistics() models.EditingStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.EditingStatistics{SessionsByUser: make(map[string]int)}
	for _, session := range s.sessions {
		if session.IsActive {
			stats.TotalActiveSessions++
			stats.SessionsByUser[session.UserID]++
		}
	}
	return stats
}
