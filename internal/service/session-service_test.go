package service

import (
	"context"
	"testing"
	"time"

	"authz_service/internal/models"
	"authz_service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionService(t *testing.T, maxSessions int) (*SessionService, *repository.InMemorySessionRepository) {
	t.Helper()
	sessionRepo := repository.NewInMemorySessionRepository()
	directory := repository.NewInMemoryUserDirectory()
	users := []*models.DirectoryUser{
		{ID: "user-a", Username: "alice", Email: "alice@example.com", Role: models.RoleEditor, Status: "active"},
		{ID: "user-b", Username: "bob", Email: "bob@example.com", Role: models.RoleReviewer, Status: "active"},
		{ID: "user-frozen", Username: "frank", Email: "frank@example.com", Role: models.RoleViewer, Status: "suspended"},
	}
	for _, user := range users {
		require.NoError(t, directory.Add(user, "s3cret-pw"))
	}
	s := NewSessionService(sessionRepo, directory, directory, NewJWTService("test-secret"), nil, nil, maxSessions, 24, 30)
	return s, sessionRepo
}

func TestCreateSessionUserChecks(t *testing.T) {
	s, _ := newTestSessionService(t, 3)
	ctx := context.Background()

	missing := s.CreateSession(ctx, CreateSessionInput{UserID: "ghost"})
	assert.False(t, missing.Success)
	assert.Equal(t, models.CodeUserNotFound, missing.Code)

	inactive := s.CreateSession(ctx, CreateSessionInput{UserID: "user-frozen"})
	assert.False(t, inactive.Success)
	assert.Equal(t, models.CodeUserInactive, inactive.Code)

	empty := s.CreateSession(ctx, CreateSessionInput{})
	assert.False(t, empty.Success)
	assert.Equal(t, models.CodeInvalidInput, empty.Code)
}

func TestCreateSessionMintsToken(t *testing.T) {
	s, _ := newTestSessionService(t, 3)
	ctx := context.Background()

	result := s.CreateSession(ctx, CreateSessionInput{UserID: "user-a", Device: "laptop"})
	require.True(t, result.Success, result.Error)
	assert.NotEmpty(t, result.Session.Token)
	assert.True(t, result.Session.IsActive)

	byToken := s.GetSessionByToken(ctx, result.Session.Token)
	require.True(t, byToken.Success)
	assert.Equal(t, result.Session.ID, byToken.Session.ID)
}

func TestSessionCapEvictsOldest(t *testing.T) {
	s, _ := newTestSessionService(t, 3)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		result := s.CreateSession(ctx, CreateSessionInput{UserID: "user-a"})
		require.True(t, result.Success, result.Error)
		ids = append(ids, result.Session.ID)
		time.Sleep(2 * time.Millisecond)
	}

	// The first session is the oldest and must be the one evicted.
	evicted := s.GetSession(ctx, ids[0])
	assert.False(t, evicted.Success)
	assert.Equal(t, models.CodeSessionNotFound, evicted.Code)

	for _, id := range ids[1:] {
		assert.True(t, s.IsValidSession(ctx, id), "session %s should survive", id)
	}
	assert.Equal(t, 3, s.GetActiveSessionCount(ctx, "user-a"))
	assert.True(t, s.HasReachedSessionLimit(ctx, "user-a"))
	assert.False(t, s.HasReachedSessionLimit(ctx, "user-b"))
}

func TestRememberMeExtendsTTL(t *testing.T) {
	s, _ := newTestSessionService(t, 3)
	ctx := context.Background()

	standard := s.CreateSession(ctx, CreateSessionInput{UserID: "user-a"})
	require.True(t, standard.Success)
	remembered := s.CreateSession(ctx, CreateSessionInput{UserID: "user-a", RememberMe: true})
	require.True(t, remembered.Success)

	assert.WithinDuration(t, time.Now().Add(24*time.Hour), standard.Session.ExpiresAt, time.Minute)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), remembered.Session.ExpiresAt, time.Minute)
}

func TestLazyExpiryOnRead(t *testing.T) {
	s, sessionRepo := newTestSessionService(t, 3)
	ctx := context.Background()

	stale := &models.Session{
		ID:        uuid.NewString(),
		UserID:    "user-a",
		CreatedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-24 * time.Hour),
		IsActive:  true,
	}
	require.NoError(t, sessionRepo.Insert(ctx, stale))

	result := s.GetSession(ctx, stale.ID)
	assert.False(t, result.Success)
	assert.Equal(t, models.CodeSessionExpired, result.Code)

	// The read must have deactivated the record.
	stored, err := sessionRepo.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	// A second read sees an inactive session, not an expired one.
	again := s.GetSession(ctx, stale.ID)
	assert.Equal(t, models.CodeSessionNotFound, again.Code)
}

func TestRefreshSession(t *testing.T) {
	s, sessionRepo := newTestSessionService(t, 3)
	ctx := context.Background()

	created := s.CreateSession(ctx, CreateSessionInput{UserID: "user-a"})
	require.True(t, created.Success)

	refreshed := s.RefreshSession(ctx, created.Session.ID, true)
	require.True(t, refreshed.Success)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), refreshed.Session.ExpiresAt, time.Minute)

	expired := &models.Session{
		ID:        uuid.NewString(),
		UserID:    "user-a",
		CreatedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
		IsActive:  true,
	}
	require.NoError(t, sessionRepo.Insert(ctx, expired))

	result := s.RefreshSession(ctx, expired.ID, false)
	assert.False(t, result.Success)
	assert.Equal(t, models.CodeSessionExpired, result.Code, "an expired session cannot be resurrected")

	missing := s.RefreshSession(ctx, "missing", false)
	assert.Equal(t, models.CodeSessionNotFound, missing.Code)
}

func TestDeleteSessionIdempotent(t *testing.T) {
	s, _ := newTestSessionService(t, 3)
	ctx := context.Background()

	created := s.CreateSession(ctx, CreateSessionInput{UserID: "user-a"})
	require.True(t, created.Success)

	first := s.DeleteSession(ctx, created.Session.ID)
	assert.True(t, first.Success)

	second := s.DeleteSession(ctx, created.Session.ID)
	assert.True(t, second.Success, "deleting an already-deleted session succeeds")

	missing := s.DeleteSession(ctx, "missing")
	assert.False(t, missing.Success)
	assert.Equal(t, models.CodeSessionNotFound, missing.Code)

	assert.False(t, s.IsValidSession(ctx, created.Session.ID))
}

func TestDeleteAllUserSessions(t *testing.T) {
	s, _ := newTestSessionService(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, s.CreateSession(ctx, CreateSessionInput{UserID: "user-a"}).Success)
	}
	other := s.CreateSession(ctx, CreateSessionInput{UserID: "user-b"})
	require.True(t, other.Success)

	result := s.DeleteAllUserSessions(ctx, "user-a")
	require.True(t, result.Success)
	assert.Len(t, result.Sessions, 3)
	assert.Equal(t, 0, s.GetActiveSessionCount(ctx, "user-a"))
	assert.True(t, s.IsValidSession(ctx, other.Session.ID), "other users are untouched")

	// No active sessions is still success, with an empty list.
	again := s.DeleteAllUserSessions(ctx, "user-a")
	assert.True(t, again.Success)
	assert.Empty(t, again.Sessions)
}

func TestCleanupExpiredSessions(t *testing.T) {
	s, sessionRepo := newTestSessionService(t, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		expired := &models.Session{
			ID:        uuid.NewString(),
			UserID:    "user-a",
			CreatedAt: time.Now().Add(-48 * time.Hour),
			ExpiresAt: time.Now().Add(-time.Hour),
			IsActive:  true,
		}
		require.NoError(t, sessionRepo.Insert(ctx, expired))
	}
	live := s.CreateSession(ctx, CreateSessionInput{UserID: "user-a"})
	require.True(t, live.Success)

	cleaned := s.CleanupExpiredSessions(ctx)
	assert.Equal(t, 2, cleaned)
	assert.True(t, s.IsValidSession(ctx, live.Session.ID))

	assert.Equal(t, 0, s.CleanupExpiredSessions(ctx), "sweep is idempotent")
}

func TestLogin(t *testing.T) {
	s, _ := newTestSessionService(t, 3)
	ctx := context.Background()

	result := s.Login(ctx, "alice", "s3cret-pw", CreateSessionInput{Device: "laptop", RememberMe: true})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "user-a", result.Session.UserID)
	assert.NotEmpty(t, result.Session.Token)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), result.Session.ExpiresAt, time.Minute)

	badPassword := s.Login(ctx, "alice", "wrong", CreateSessionInput{})
	assert.False(t, badPassword.Success)
	assert.Equal(t, models.CodeLoginFailed, badPassword.Code)

	unknownUser := s.Login(ctx, "mallory", "s3cret-pw", CreateSessionInput{})
	assert.False(t, unknownUser.Success)
	assert.Equal(t, models.CodeLoginFailed, unknownUser.Code)
}

func TestUpdateActivity(t *testing.T) {
	s, _ := newTestSessionService(t, 3)
	ctx := context.Background()

	created := s.CreateSession(ctx, CreateSessionInput{UserID: "user-a"})
	require.True(t, created.Success)

	time.Sleep(2 * time.Millisecond)
	touched := s.UpdateActivity(ctx, created.Session.ID)
	require.True(t, touched.Success)
	assert.True(t, touched.Session.LastActivity.After(created.Session.LastActivity))

	missing := s.UpdateActivity(ctx, "missing")
	assert.Equal(t, models.CodeSessionNotFound, missing.Code)
}

func TestGetSessionStats(t *testing.T) {
	s, _ := newTestSessionService(t, 3)
	ctx := context.Background()

	require.True(t, s.CreateSession(ctx, CreateSessionInput{UserID: "user-a"}).Success)
	require.True(t, s.CreateSession(ctx, CreateSessionInput{UserID: "user-a"}).Success)
	require.True(t, s.CreateSession(ctx, CreateSessionInput{UserID: "user-b"}).Success)

	all, err := s.GetSessionStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, all.TotalActive)
	assert.Equal(t, 2, all.ActiveByUser["user-a"])
	assert.Equal(t, 1, all.ActiveByUser["user-b"])

	scoped, err := s.GetSessionStats(ctx, "user-b")
	require.NoError(t, err)
	assert.Equal(t, 1, scoped.TotalActive)
}
