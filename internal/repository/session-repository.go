package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"authz_service/internal/models"

	redis_v9 "github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a session id or token is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Deactivated sessions are retained for lookup and audit; retention only
// bounds how long Redis keeps the record around.
const sessionRetention = 45 * 24 * time.Hour

// SessionRepository stores login sessions. Records are soft-deleted
// (IsActive=false) and stay queryable.
type SessionRepository interface {
	Insert(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	FindActiveByUser(ctx context.Context, userID string) ([]*models.Session, error)
	FindAllActive(ctx context.Context) ([]*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

// InMemorySessionRepository keeps sessions in process-local maps. It is the
// default backend and the one the tests run against.
type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	byToken  map[string]string
	byUser   map[string][]string
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[string]*models.Session),
		byToken:  make(map[string]string),
		byUser:   make(map[string][]string),
	}
}

func (r *InMemorySessionRepository) Insert(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *session
	r.sessions[session.ID] = &stored
	if session.Token != "" {
		r.byToken[session.Token] = session.ID
	}
	r.byUser[session.UserID] = append(r.byUser[session.UserID], session.ID)
	return nil
}

func (r *InMemorySessionRepository) FindByID(_ context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	found := *session
	return &found, nil
}

func (r *InMemorySessionRepository) FindByToken(_ context.Context, token string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	found := *session
	return &found, nil
}

func (r *InMemorySessionRepository) FindActiveByUser(_ context.Context, userID string) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []*models.Session
	for _, id := range r.byUser[userID] {
		session := r.sessions[id]
		if session != nil && session.IsActive {
			found := *session
			active = append(active, &found)
		}
	}
	sortSessionsByCreation(active)
	return active, nil
}

func (r *InMemorySessionRepository) FindAllActive(_ context.Context) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []*models.Session
	for _, session := range r.sessions {
		if session.IsActive {
			found := *session
			active = append(active, &found)
		}
	}
	sortSessionsByCreation(active)
	return active, nil
}

func (r *InMemorySessionRepository) Update(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}
	stored := *session
	r.sessions[session.ID] = &stored
	return nil
}

func sortSessionsByCreation(sessions []*models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}

// RedisSessionRepository is the durable session backend. Session records
// are JSON blobs keyed by id, with token and per-user indexes kept as
// separate keys so lookups stay O(1).
type RedisSessionRepository struct {
	repo *RedisRepo
}

func NewRedisSessionRepository(client *redis_v9.Client) *RedisSessionRepository {
	return &RedisSessionRepository{repo: NewRedisRepo(client)}
}

func sessionKey(id string) string        { return "authz-session-" + id }
func sessionTokenKey(token string) string { return "authz-session-token-" + token }
func userSessionsKey(userID string) string { return "authz-user-sessions-" + userID }

const allSessionsKey = "authz-sessions-all"

func (r *RedisSessionRepository) Insert(ctx context.Context, session *models.Session) error {
	if err := r.repo.SaveStructCached(ctx, sessionKey(session.ID), session, sessionRetention); err != nil {
		return err
	}
	if session.Token != "" {
		if err := r.repo.SaveString(ctx, sessionTokenKey(session.Token), session.ID, sessionRetention); err != nil {
			return err
		}
	}
	if err := r.repo.AddToSet(ctx, userSessionsKey(session.UserID), session.ID); err != nil {
		return err
	}
	return r.repo.AddToSet(ctx, allSessionsKey, session.ID)
}

func (r *RedisSessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}
	if err := r.repo.GetStructCached(ctx, sessionKey(id), session); err != nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (r *RedisSessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	id, err := r.repo.GetString(ctx, sessionTokenKey(token))
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *RedisSessionRepository) FindActiveByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	ids, err := r.repo.SetMembers(ctx, userSessionsKey(userID))
	if err != nil {
		return nil, err
	}
	return r.collectActive(ctx, ids)
}

func (r *RedisSessionRepository) FindAllActive(ctx context.Context) ([]*models.Session, error) {
	ids, err := r.repo.SetMembers(ctx, allSessionsKey)
	if err != nil {
		return nil, err
	}
	return r.collectActive(ctx, ids)
}

func (r *RedisSessionRepository) collectActive(ctx context.Context, ids []string) ([]*models.Session, error) {
	var active []*models.Session
	for _, id := range ids {
		session, err := r.FindByID(ctx, id)
		if err != nil {
			continue
		}
		if session.IsActive {
			active = append(active, session)
		}
	}
	sortSessionsByCreation(active)
	return active, nil
}

func (r *RedisSessionRepository) Update(ctx context.Context, session *models.Session) error {
	if _, err := r.FindByID(ctx, session.ID); err != nil {
		return err
	}
	return r.repo.SaveStructCached(ctx, sessionKey(session.ID), session, sessionRetention)
}
