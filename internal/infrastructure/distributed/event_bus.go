package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"screenshare/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventsChannel = "screenshare:events"

// envelope carries a session event between instances.
type envelope struct {
	InstanceID string              `json:"instance_id"`
	Event      domain.SessionEvent `json:"event"`
}

// EventBus relays session events through Redis pub/sub so watchers on every instance
// refresh when a session starts or ends anywhere. Local subscribers are served by the Hub.
type EventBus struct {
	client     redis.UniversalClient
	hub        *Hub
	instanceID string
	logger     *zap.SugaredLogger
}

func NewEventBus(client redis.UniversalClient, hub *Hub, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		hub:        hub,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Publish delivers locally right away and forwards the event to other instances.
func (eb *EventBus) Publish(ctx context.Context, event domain.SessionEvent) error {
	eb.hub.deliver(event)

	data, err := json.Marshal(envelope{InstanceID: eb.instanceID, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := eb.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published session event",
		"type", event.Type,
		"session_id", event.SessionID,
	)
	return nil
}

func (eb *EventBus) Subscribe() (<-chan domain.SessionEvent, func()) {
	return eb.hub.Subscribe()
}

// Run relays remote events into the hub until ctx is cancelled. ready, if not nil,
// is closed once the Redis subscription is confirmed.
func (eb *EventBus) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := eb.client.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", eventsChannel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}
			// Already delivered locally by Publish.
			if env.InstanceID == eb.instanceID {
				continue
			}
			eb.hub.deliver(env.Event)
		}
	}
}
