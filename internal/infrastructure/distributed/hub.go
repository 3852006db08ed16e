package distributed

import (
	"context"
	"sync"

	"screenshare/internal/core/domain"

	"go.uber.org/zap"
)

const subscriberBuffer = 16

// Hub fans session events out to in-process subscribers. A subscriber that falls behind
// loses events rather than blocking publishers; watchers treat an event as a refresh hint.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan domain.SessionEvent
	nextID uint64
	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		subs:   make(map[uint64]chan domain.SessionEvent),
		logger: logger,
	}
}

// Publish delivers event to every current subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, event domain.SessionEvent) error {
	h.deliver(event)
	return nil
}

func (h *Hub) deliver(event domain.SessionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.logger.Debugw("dropping session event for slow subscriber",
				"subscriber", id,
				"type", event.Type,
			)
		}
	}
}

// Subscribe registers a listener. cancel closes the channel and is safe to call twice.
func (h *Hub) Subscribe() (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, subscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of registered listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
