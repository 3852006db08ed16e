package distributed

import (
	"context"
	"testing"
	"time"

	"screenshare/internal/core/domain"
	"screenshare/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan domain.SessionEvent) domain.SessionEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.SessionEvent{}
	}
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(logger.NewNop())
	a, cancelA := hub.Subscribe()
	b, cancelB := hub.Subscribe()
	defer cancelB()

	require.NoError(t, hub.Publish(context.Background(), domain.SessionEvent{Type: domain.SessionStarted, SessionID: "s-1"}))
	assert.Equal(t, domain.SessionID("s-1"), receive(t, a).SessionID)
	assert.Equal(t, domain.SessionID("s-1"), receive(t, b).SessionID)

	cancelA()
	cancelA()
	_, ok := <-a
	assert.False(t, ok)
	assert.Equal(t, 1, hub.Subscribers())
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(logger.NewNop())
	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(context.Background(), domain.SessionEvent{Type: domain.SessionEnded})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestEventBus_RelaysAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { c.Close() })
		return c
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubA := NewHub(logger.NewNop())
	busA := NewEventBus(newClient(), hubA, "instance-a", logger.NewNop())
	hubB := NewHub(logger.NewNop())
	busB := NewEventBus(newClient(), hubB, "instance-b", logger.NewNop())

	readyA, readyB := make(chan struct{}), make(chan struct{})
	go busA.Run(ctx, readyA)
	go busB.Run(ctx, readyB)
	<-readyA
	<-readyB

	localA, cancelLocal := busA.Subscribe()
	defer cancelLocal()
	remoteB, cancelRemote := busB.Subscribe()
	defer cancelRemote()

	event := domain.SessionEvent{Type: domain.SessionStarted, SessionID: "s-1", PublisherID: "alice"}
	require.NoError(t, busA.Publish(ctx, event))

	assert.Equal(t, domain.SessionID("s-1"), receive(t, localA).SessionID)
	got := receive(t, remoteB)
	assert.Equal(t, domain.SessionStarted, got.Type)
	assert.Equal(t, domain.UserID("alice"), got.PublisherID)

	// The publishing instance must not see its own event twice.
	select {
	case ev := <-localA:
		t.Fatalf("unexpected duplicate event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
