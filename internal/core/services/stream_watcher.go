package services

import (
	"context"
	"sync"
	"time"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	apperrors "screenshare/pkg/errors"

	"go.uber.org/zap"
)

// StreamUpdate is one poll result. Err is set when the store could not be read;
// the previous list stays valid and the next tick retries.
type StreamUpdate struct {
	Streams []*domain.SubscriberPermission
	Err     error
}

// StreamWatcher polls the subscriber's available streams on a fixed interval and
// additionally right after any session starts or ends.
type StreamWatcher struct {
	permissions  ports.PermissionService
	events       ports.EventSubscriber
	subscriberID domain.UserID
	interval     time.Duration
	logger       *zap.SugaredLogger

	mu        sync.Mutex
	issued    uint64
	delivered uint64
}

func NewStreamWatcher(
	permissions ports.PermissionService,
	events ports.EventSubscriber, // may be nil
	subscriberID domain.UserID,
	interval time.Duration,
	logger *zap.SugaredLogger,
) *StreamWatcher {
	return &StreamWatcher{
		permissions:  permissions,
		events:       events,
		subscriberID: subscriberID,
		interval:     interval,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled. Ticks may overlap; a result is only delivered if no
// newer tick has delivered already, and nothing is delivered once ctx is done.
// deliver calls are serialized.
func (w *StreamWatcher) Run(ctx context.Context, deliver func(StreamUpdate)) {
	var wg sync.WaitGroup
	defer wg.Wait()

	tick := func() {
		w.mu.Lock()
		w.issued++
		seq := w.issued
		w.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			streams, err := w.permissions.GetAvailableStreams(ctx, w.subscriberID)
			w.deliver(ctx, seq, StreamUpdate{Streams: streams, Err: err}, deliver)
		}()
	}

	var events <-chan domain.SessionEvent
	if w.events != nil {
		ch, cancel := w.events.Subscribe()
		defer cancel()
		events = ch
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			tick()
		}
	}
}

func (w *StreamWatcher) deliver(ctx context.Context, seq uint64, update StreamUpdate, deliver func(StreamUpdate)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if seq <= w.delivered {
		w.logger.Debugw("dropping stale stream list", "subscriber_id", w.subscriberID, "seq", seq, "delivered", w.delivered)
		return
	}
	w.delivered = seq

	switch {
	case update.Err == nil:
	case apperrors.HasCode(update.Err, apperrors.ErrCodeStoreUnavailable):
		w.logger.Warnw("store unavailable, retrying available streams on next tick", "subscriber_id", w.subscriberID, "error", update.Err)
	default:
		w.logger.Errorw("failed to load available streams", "subscriber_id", w.subscriberID, "error", update.Err)
	}
	deliver(update)
}
