package events

import (
	"context"
	"log"
)

// Publisher emits audit events for grant and session lifecycle changes.
// Implementations must tolerate broker outages: publishing failures are
// logged by callers, never treated as operation failures.
type Publisher interface {
	PublishGrantAssigned(ctx context.Context, grantID, userID, permission, actorID, reason string) error
	PublishGrantRevoked(ctx context.Context, grantID, userID, permission, actorID, reason string) error
	PublishSessionCreated(ctx context.Context, sessionID, userID, device, ipAddress string) error
	PublishSessionEvicted(ctx context.Context, sessionID, userID string) error
	PublishEditingForceEnded(ctx context.Context, resourceID, actorID string, endedCount int) error

	// Close closes the publisher and releases resources.
	Close() error
}

type EventPublisher struct {
	rabbitMQ *RabbitMQClient
	enabled  bool
}

func NewEventPublisher(rabbitURI string) (*EventPublisher, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{
			rabbitMQ: nil,
			enabled:  false,
		}, nil
	}

	client, err := NewRabbitMQClient(rabbitURI)
	if err != nil {
		return nil, err
	}

	err = client.setupExchangesAndQueues()
	if err != nil {
		client.Close()
		return nil, err
	}

	return &EventPublisher{
		rabbitMQ: client,
		enabled:  true,
	}, nil
}

func (p *EventPublisher) publish(routingKey string, data []byte, err error) error {
	if err != nil {
		return err
	}
	if !p.enabled {
		log.Printf("Event publishing is disabled, skipping %s", routingKey)
		return nil
	}
	return p.rabbitMQ.PublishEvent(authzExchange, routingKey, data)
}

func (p *EventPublisher) PublishGrantAssigned(_ context.Context, grantID, userID, permission, actorID, reason string) error {
	event := NewGrantAssignedEvent(grantID, userID, permission, actorID, reason)
	data, err := event.ToJSON()
	if err := p.publish(string(GrantAssigned), data, err); err != nil {
		return err
	}
	log.Printf("Published GrantAssigned event for user ID: %s", userID)
	return nil
}

func (p *EventPublisher) PublishGrantRevoked(_ context.Context, grantID, userID, permission, actorID, reason string) error {
	event := NewGrantRevokedEvent(grantID, userID, permission, actorID, reason)
	data, err := event.ToJSON()
	if err := p.publish(string(GrantRevoked), data, err); err != nil {
		return err
	}
	log.Printf("Published GrantRevoked event for user ID: %s", userID)
	return nil
}

func (p *EventPublisher) PublishSessionCreated(_ context.Context, sessionID, userID, device, ipAddress string) error {
	event := NewSessionCreatedEvent(sessionID, userID, device, ipAddress)
	data, err := event.ToJSON()
	return p.publish(string(SessionCreated), data, err)
}

func (p *EventPublisher) PublishSessionEvicted(_ context.Context, sessionID, userID string) error {
	event := NewSessionEvictedEvent(sessionID, userID)
	data, err := event.ToJSON()
	if err := p.publish(string(SessionEvicted), data, err); err != nil {
		return err
	}
	log.Printf("Published SessionEvicted event for session ID: %s", sessionID)
	return nil
}

func (p *EventPublisher) PublishEditingForceEnded(_ context.Context, resourceID, actorID string, endedCount int) error {
	event := NewEditingForceEndedEvent(resourceID, actorID, endedCount)
	data, err := event.ToJSON()
	return p.publish(string(EditingForceEnded), data, err)
}

func (p *EventPublisher) Close() error {
	if p.rabbitMQ != nil {
		return p.rabbitMQ.Close()
	}
	return nil
}
