package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	apperrors "screenshare/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// stubPermissionService answers GetAvailableStreams through fn; everything else is unused here.
type stubPermissionService struct {
	ports.PermissionService
	fn func(ctx context.Context, call int) ([]*domain.SubscriberPermission, error)

	calls int32
}

func (s *stubPermissionService) GetAvailableStreams(ctx context.Context, _ domain.UserID) ([]*domain.SubscriberPermission, error) {
	call := int(atomic.AddInt32(&s.calls, 1))
	return s.fn(ctx, call)
}

type chanSubscriber struct {
	ch chan domain.SessionEvent
}

func (s *chanSubscriber) Subscribe() (<-chan domain.SessionEvent, func()) {
	return s.ch, func() {}
}

type updateLog struct {
	mu      sync.Mutex
	updates []StreamUpdate
}

func (l *updateLog) add(u StreamUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, u)
}

func (l *updateLog) snapshot() []StreamUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StreamUpdate(nil), l.updates...)
}

func streamsWithID(id domain.PermissionID) []*domain.SubscriberPermission {
	return []*domain.SubscriberPermission{{ID: id}}
}

func TestStreamWatcher_LoadsImmediatelyAndOnInterval(t *testing.T) {
	perms := &stubPermissionService{fn: func(_ context.Context, call int) ([]*domain.SubscriberPermission, error) {
		return streamsWithID(domain.PermissionID(fmt.Sprintf("p%d", call))), nil
	}}
	watcher := NewStreamWatcher(perms, nil, "sub", 20*time.Millisecond, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	log := &updateLog{}
	done := make(chan struct{})
	go func() {
		watcher.Run(ctx, log.add)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(log.snapshot()) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	updates := log.snapshot()
	assert.NoError(t, updates[0].Err)
	assert.Len(t, updates[0].Streams, 1)
}

func TestStreamWatcher_DropsStaleResults(t *testing.T) {
	releaseFirst := make(chan struct{})
	perms := &stubPermissionService{fn: func(_ context.Context, call int) ([]*domain.SubscriberPermission, error) {
		if call == 1 {
			<-releaseFirst
			return streamsWithID("stale"), nil
		}
		return streamsWithID("fresh"), nil
	}}
	events := &chanSubscriber{ch: make(chan domain.SessionEvent)}
	watcher := NewStreamWatcher(perms, events, "sub", time.Hour, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	log := &updateLog{}
	done := make(chan struct{})
	go func() {
		watcher.Run(ctx, log.add)
		close(done)
	}()

	// A session event triggers a second, faster load while the first is still running.
	events.ch <- domain.SessionEvent{Type: domain.SessionStarted}
	require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	close(releaseFirst)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	updates := log.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, domain.PermissionID("fresh"), updates[0].Streams[0].ID)
}

func TestStreamWatcher_NothingDeliveredAfterCancel(t *testing.T) {
	started := make(chan struct{})
	perms := &stubPermissionService{fn: func(ctx context.Context, _ int) ([]*domain.SubscriberPermission, error) {
		close(started)
		<-ctx.Done()
		return streamsWithID("late"), nil
	}}
	watcher := NewStreamWatcher(perms, nil, "sub", time.Hour, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	var delivered int32
	done := make(chan struct{})
	go func() {
		watcher.Run(ctx, func(StreamUpdate) { atomic.AddInt32(&delivered, 1) })
		close(done)
	}()

	<-started
	cancel()
	<-done
	assert.Equal(t, int32(0), atomic.LoadInt32(&delivered))
}

func TestStreamWatcher_ReportsErrors(t *testing.T) {
	perms := &stubPermissionService{fn: func(context.Context, int) ([]*domain.SubscriberPermission, error) {
		return nil, errors.New("store unavailable")
	}}
	watcher := NewStreamWatcher(perms, nil, "sub", time.Hour, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	log := &updateLog{}
	done := make(chan struct{})
	go func() {
		watcher.Run(ctx, log.add)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Error(t, log.snapshot()[0].Err)
}

func TestStreamWatcher_StoreOutageLogsAtWarn(t *testing.T) {
	for name, tc := range map[string]struct {
		err   error
		level zapcore.Level
	}{
		"store unavailable": {apperrors.NewStoreError(errors.New("dial tcp: refused"), "list permissions"), zapcore.WarnLevel},
		"other failure":     {errors.New("decode failed"), zapcore.ErrorLevel},
	} {
		t.Run(name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			perms := &stubPermissionService{fn: func(context.Context, int) ([]*domain.SubscriberPermission, error) {
				return nil, tc.err
			}}
			watcher := NewStreamWatcher(perms, nil, "sub", time.Hour, zap.New(core).Sugar())

			ctx, cancel := context.WithCancel(context.Background())
			log := &updateLog{}
			done := make(chan struct{})
			go func() {
				watcher.Run(ctx, log.add)
				close(done)
			}()

			require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
			cancel()
			<-done

			entries := logs.FilterLevelExact(tc.level).All()
			require.Len(t, entries, 1)
			assert.Equal(t, domain.UserID("sub"), entries[0].ContextMap()["subscriber_id"])
		})
	}
}
