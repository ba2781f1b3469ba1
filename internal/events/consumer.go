package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// UserDeactivationHandler reacts to a directory user being deactivated:
// force logout and grant revocation are wired here by the composition root.
type UserDeactivationHandler interface {
	HandleUserDeactivated(ctx context.Context, userID string) error
}

// Consumer defines the interface for event consumption.
type Consumer interface {
	Start() error
	Close() error
}

// EventConsumer drains the user.deactivated queue and hands each event to
// the handler.
type EventConsumer struct {
	client   *RabbitMQClient
	handler  UserDeactivationHandler
	shutdown chan struct{}
	wg       sync.WaitGroup
	enabled  bool
}

func NewEventConsumer(rabbitURI string, handler UserDeactivationHandler) (*EventConsumer, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event consumption is disabled")
		return &EventConsumer{
			handler:  handler,
			shutdown: make(chan struct{}),
			enabled:  false,
		}, nil
	}

	client, err := NewRabbitMQClient(rabbitURI)
	if err != nil {
		return nil, err
	}

	if err := client.setupExchangesAndQueues(); err != nil {
		client.Close()
		return nil, err
	}

	return &EventConsumer{
		client:   client,
		handler:  handler,
		shutdown: make(chan struct{}),
		enabled:  true,
	}, nil
}

func (c *EventConsumer) Start() error {
	if !c.enabled {
		log.Println("Event consumption is disabled, consumer not started")
		return nil
	}

	deliveries, err := c.client.Consume("user.deactivated.authz")
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.wg.Add(1)
	go c.consumeLoop(deliveries)

	log.Println("Event consumer started")
	return nil
}

func (c *EventConsumer) consumeLoop(deliveries <-chan amqp091.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-c.shutdown:
			return
		case delivery, ok := <-deliveries:
			if !ok {
				log.Println("Warning: delivery channel closed, consumer stopping")
				return
			}
			c.handleDelivery(delivery)
		}
	}
}

func (c *EventConsumer) handleDelivery(delivery amqp091.Delivery) {
	var event UserDeactivatedEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		log.Printf("Warning: failed to decode user.deactivated event: %v", err)
		delivery.Nack(false, false)
		return
	}

	if event.UserID == "" {
		log.Printf("Warning: user.deactivated event %s has no user_id, dropping", event.ID)
		delivery.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.handler.HandleUserDeactivated(ctx, event.UserID); err != nil {
		log.Printf("Warning: failed to process deactivation for user %s: %v", event.UserID, err)
		delivery.Nack(false, true)
		return
	}

	log.Printf("Processed user.deactivated event for user ID: %s", event.UserID)
	delivery.Ack(false)
}

func (c *EventConsumer) Close() error {
	close(c.shutdown)
	c.wg.Wait()
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
