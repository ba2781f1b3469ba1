package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	// GrantAssigned is published when a dynamic permission is granted.
	GrantAssigned EventType = "grant.assigned"
	// GrantRevoked is published when a grant (or all grants of a user) is revoked.
	GrantRevoked EventType = "grant.revoked"
	// SessionCreated is published when a login session is created.
	SessionCreated EventType = "session.created"
	// SessionEvicted is published when the concurrency cap evicts a session.
	SessionEvicted EventType = "session.evicted"
	// EditingForceEnded is published when an admin force-ends a resource's editing sessions.
	EditingForceEnded EventType = "editing.force_ended"
	// UserDeactivated is consumed from the user directory; it forces logout
	// and grant revocation for the user.
	UserDeactivated EventType = "user.deactivated"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
}

func newBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Version:   "1.0",
	}
}

type GrantEvent struct {
	BaseEvent
	GrantID    string `json:"grant_id,omitempty"`
	UserID     string `json:"user_id"`
	Permission string `json:"permission,omitempty"`
	ActorID    string `json:"actor_id"`
	Reason     string `json:"reason,omitempty"`
}

func NewGrantAssignedEvent(grantID, userID, permission, actorID, reason string) *GrantEvent {
	return &GrantEvent{
		BaseEvent:  newBaseEvent(GrantAssigned),
		GrantID:    grantID,
		UserID:     userID,
		Permission: permission,
		ActorID:    actorID,
		Reason:     reason,
	}
}

func NewGrantRevokedEvent(grantID, userID, permission, actorID, reason string) *GrantEvent {
	return &GrantEvent{
		BaseEvent:  newBaseEvent(GrantRevoked),
		GrantID:    grantID,
		UserID:     userID,
		Permission: permission,
		ActorID:    actorID,
		Reason:     reason,
	}
}

func (e *GrantEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

type SessionEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Device    string `json:"device,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

func NewSessionCreatedEvent(sessionID, userID, device, ipAddress string) *SessionEvent {
	return &SessionEvent{
		BaseEvent: newBaseEvent(SessionCreated),
		SessionID: sessionID,
		UserID:    userID,
		Device:    device,
		IPAddress: ipAddress,
	}
}

func NewSessionEvictedEvent(sessionID, userID string) *SessionEvent {
	return &SessionEvent{
		BaseEvent: newBaseEvent(SessionEvicted),
		SessionID: sessionID,
		UserID:    userID,
	}
}

func (e *SessionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

type EditingForceEndedEvent struct {
	BaseEvent
	ResourceID string `json:"resource_id"`
	ActorID    string `json:"actor_id"`
	EndedCount int    `json:"ended_count"`
}

func NewEditingForceEndedEvent(resourceID, actorID string, endedCount int) *EditingForceEndedEvent {
	return &EditingForceEndedEvent{
		BaseEvent:  newBaseEvent(EditingForceEnded),
		ResourceID: resourceID,
		ActorID:    actorID,
		EndedCount: endedCount,
	}
}

func (e *EditingForceEndedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// UserDeactivatedEvent is the inbound shape consumed from the directory.
type UserDeactivatedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}
