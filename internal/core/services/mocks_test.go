package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"

	"github.com/stretchr/testify/mock"
)

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.StreamSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StreamSession), args.Error(1)
}

func (m *MockSessionRepository) Update(ctx context.Context, session *domain.StreamSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) ListActive(ctx context.Context) ([]*domain.StreamSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StreamSession), args.Error(1)
}

func (m *MockSessionRepository) FindActiveByPublisher(ctx context.Context, publisherID domain.UserID) ([]*domain.StreamSession, error) {
	args := m.Called(ctx, publisherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StreamSession), args.Error(1)
}

type MockPermissionRepository struct {
	mock.Mock
}

func (m *MockPermissionRepository) Create(ctx context.Context, permission *domain.SubscriberPermission) error {
	args := m.Called(ctx, permission)
	return args.Error(0)
}

func (m *MockPermissionRepository) GetByID(ctx context.Context, id domain.PermissionID) (*domain.SubscriberPermission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubscriberPermission), args.Error(1)
}

func (m *MockPermissionRepository) Update(ctx context.Context, permission *domain.SubscriberPermission) error {
	args := m.Called(ctx, permission)
	return args.Error(0)
}

func (m *MockPermissionRepository) Delete(ctx context.Context, id domain.PermissionID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPermissionRepository) ListBySubscriber(ctx context.Context, subscriberID domain.UserID) ([]*domain.SubscriberPermission, error) {
	args := m.Called(ctx, subscriberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SubscriberPermission), args.Error(1)
}

type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) IssueToken(ctx context.Context, roomName string, user *domain.UserIdentity) (string, error) {
	args := m.Called(ctx, roomName, user)
	return args.String(0), args.Error(1)
}

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) StartSession(ctx context.Context, params ports.CreateSessionParams) (*domain.StreamSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StreamSession), args.Error(1)
}

func (m *MockSessionService) EndSession(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StreamSession), args.Error(1)
}

func (m *MockSessionService) GetSession(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StreamSession), args.Error(1)
}

func (m *MockSessionService) GetActiveSession(ctx context.Context, publisherID domain.UserID) (*domain.StreamSession, error) {
	args := m.Called(ctx, publisherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StreamSession), args.Error(1)
}

func (m *MockSessionService) ListActiveSessions(ctx context.Context) ([]*domain.StreamSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StreamSession), args.Error(1)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SessionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []domain.SessionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SessionEvent(nil), p.events...)
}

type countingMetrics struct {
	mu       sync.Mutex
	started  int
	ended    int
	tokens   map[string]int
	joined   map[string]int
	left     map[string]int
	queries  int
	failures int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{tokens: map[string]int{}, joined: map[string]int{}, left: map[string]int{}}
}

func (m *countingMetrics) SessionStarted() { m.mu.Lock(); m.started++; m.mu.Unlock() }
func (m *countingMetrics) SessionEnded()   { m.mu.Lock(); m.ended++; m.mu.Unlock() }

func (m *countingMetrics) TokenIssued(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[outcome]++
}

func (m *countingMetrics) ObserveStreamQuery(_ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if err != nil {
		m.failures++
	}
}

func (m *countingMetrics) ConferenceJoined(role string) { m.mu.Lock(); m.joined[role]++; m.mu.Unlock() }
func (m *countingMetrics) ConferenceLeft(role string)   { m.mu.Lock(); m.left[role]++; m.mu.Unlock() }

// fakeConference records what the controllers ask of the SDK and lets tests fire events.
type fakeConference struct {
	mu        sync.Mutex
	state     ports.ConferenceState
	created   []ports.RoomConfig
	commands  []string
	listeners map[string][]ports.EventHandler
	disposed  int
	createErr error

	// When createGate is set, CreateRoom closes createEntered and blocks until the gate closes.
	createGate    chan struct{}
	createEntered chan struct{}
}

func newFakeConference() *fakeConference {
	return &fakeConference{listeners: map[string][]ports.EventHandler{}}
}

func (f *fakeConference) CreateRoom(_ context.Context, cfg ports.RoomConfig) error {
	f.mu.Lock()
	gate, entered := f.createGate, f.createEntered
	f.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, cfg)
	f.state = ports.ConferenceLive
	f.listeners = map[string][]ports.EventHandler{}
	return nil
}

func (f *fakeConference) State() ports.ConferenceState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConference) record(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == ports.ConferenceLive {
		f.commands = append(f.commands, cmd)
	}
	return nil
}

func (f *fakeConference) MuteAudio(context.Context) error   { return f.record("muteAudio") }
func (f *fakeConference) UnmuteAudio(context.Context) error { return f.record("unmuteAudio") }
func (f *fakeConference) MuteVideo(context.Context) error   { return f.record("muteVideo") }
func (f *fakeConference) UnmuteVideo(context.Context) error { return f.record("unmuteVideo") }
func (f *fakeConference) ToggleScreenShare(context.Context) error {
	return f.record("toggleShareScreen")
}

func (f *fakeConference) ExecuteCommand(_ context.Context, name string, args ...interface{}) error {
	cmd := name
	for _, a := range args {
		cmd += ":" + fmt.Sprint(a)
	}
	return f.record(cmd)
}

func (f *fakeConference) AddEventListener(event string, handler ports.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ports.ConferenceLive {
		return
	}
	f.listeners[event] = append(f.listeners[event], handler)
}

func (f *fakeConference) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == ports.ConferenceLive {
		f.disposed++
	}
	f.state = ports.ConferenceIdle
	f.listeners = map[string][]ports.EventHandler{}
}

func (f *fakeConference) Fire(event string, data map[string]interface{}) {
	f.mu.Lock()
	handlers := append([]ports.EventHandler(nil), f.listeners[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (f *fakeConference) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeConference) Created() []ports.RoomConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.RoomConfig(nil), f.created...)
}

func (f *fakeConference) Disposed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}
