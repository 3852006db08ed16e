package services

import (
	"context"
	"sync"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	apperrors "screenshare/pkg/errors"

	"go.uber.org/zap"
)

const rolePublisher = "publisher"

// StartStreamParams carries the optional descriptive fields of a new broadcast.
type StartStreamParams struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	GameName    string `json:"gameName"`
	League      string `json:"league"`
	Match       string `json:"match"`
}

// PublisherStatus is a snapshot of a publisher's broadcast state.
type PublisherStatus struct {
	Streaming     bool                  `json:"streaming"`
	Joined        bool                  `json:"joined"`
	AudioMuted    bool                  `json:"audioMuted"`
	VideoMuted    bool                  `json:"videoMuted"`
	ScreenSharing bool                  `json:"screenSharing"`
	Session       *domain.StreamSession `json:"session,omitempty"`
}

// PublisherController drives one publisher's broadcast: it opens a session, issues a token
// and joins the conference, and tears all of that down again.
type PublisherController struct {
	sessions ports.SessionService
	tokens   ports.TokenIssuer
	client   ports.ConferenceClient
	events   ports.EventSubscriber
	metrics  ports.Metrics
	logger   *zap.SugaredLogger
	identity domain.UserIdentity
	appName  string
	notify   func(PublisherStatus)

	mu         sync.Mutex
	starting   bool
	closed     bool
	status     PublisherStatus
	stopEvents func()
}

func NewPublisherController(
	sessions ports.SessionService,
	tokens ports.TokenIssuer,
	client ports.ConferenceClient,
	events ports.EventSubscriber, // may be nil
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
	identity domain.UserIdentity,
	appName string,
	notify func(PublisherStatus),
) *PublisherController {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if notify == nil {
		notify = func(PublisherStatus) {}
	}
	return &PublisherController{
		sessions: sessions,
		tokens:   tokens,
		client:   client,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		identity: identity,
		appName:  appName,
		notify:   notify,
	}
}

func (c *PublisherController) Status() PublisherStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *PublisherController) snapshot() PublisherStatus {
	st := c.status
	st.Session = c.status.Session.Clone()
	return st
}

// Start opens a session on a fresh room and joins it. On any failure after the session is
// stored the session is ended again, so no active session outlives a failed start. A Close
// that lands while the room is being created also rolls the session back.
func (c *PublisherController) Start(ctx context.Context, params StartStreamParams) (*domain.StreamSession, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errControllerClosed()
	}
	if c.status.Streaming || c.starting {
		c.mu.Unlock()
		return nil, apperrors.NewConflictError("stream already running")
	}
	c.starting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	// Subscribe before the session exists so an end that races the start is not missed.
	var (
		events     <-chan domain.SessionEvent
		stopEvents = func() {}
	)
	if c.events != nil {
		events, stopEvents = c.events.Subscribe()
	}

	publisherID := domain.UserID(c.identity.ID)
	roomID := GenerateRoomID(publisherID)

	session, err := c.sessions.StartSession(ctx, ports.CreateSessionParams{
		PublisherID:   publisherID,
		PublisherName: c.identity.Name,
		RoomID:        roomID,
		Title:         params.Title,
		Description:   params.Description,
		GameName:      params.GameName,
		League:        params.League,
		Match:         params.Match,
	})
	if err != nil {
		stopEvents()
		return nil, err
	}

	identity := c.identity
	identity.Moderator = true
	token, err := c.tokens.IssueToken(ctx, session.RoomID, &identity)
	if err != nil {
		stopEvents()
		c.rollback(session)
		return nil, err
	}

	displayName := c.identity.Name
	if displayName == "" {
		displayName = c.identity.Email
	}
	cfg := PublisherProfile(session.RoomID, token, displayName, c.identity.Email, c.appName)
	if err := c.client.CreateRoom(ctx, cfg); err != nil {
		stopEvents()
		c.rollback(session)
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		stopEvents()
		c.client.Dispose()
		c.rollback(session)
		c.logger.Infow("publisher closed while starting, session rolled back", "session_id", session.ID)
		return nil, errControllerClosed()
	}
	c.status = PublisherStatus{Streaming: true, Session: session}
	c.stopEvents = stopEvents
	st := c.snapshot()
	c.mu.Unlock()
	c.listen(session.ID)
	if events != nil {
		go c.followSession(session.ID, events)
	}

	c.logger.Infow("publisher streaming",
		"publisher_id", publisherID,
		"session_id", session.ID,
		"room_id", session.RoomID,
	)
	c.notify(st)
	return session.Clone(), nil
}

func errControllerClosed() error {
	return apperrors.NewServiceUnavailableError("publisher connection closed")
}

// followSession releases the room when the session is ended by someone else, e.g. a REST
// start by the same publisher or an admin end.
func (c *PublisherController) followSession(sessionID domain.SessionID, events <-chan domain.SessionEvent) {
	for event := range events {
		if event.Type == domain.SessionEnded && event.SessionID == sessionID {
			c.endedElsewhere(sessionID)
			return
		}
	}
}

func (c *PublisherController) endedElsewhere(sessionID domain.SessionID) {
	c.mu.Lock()
	if !c.status.Streaming || c.status.Session.ID != sessionID {
		c.mu.Unlock()
		return
	}
	joined := c.status.Joined
	c.status = PublisherStatus{}
	stop := c.takeStopEvents()
	c.mu.Unlock()

	stop()
	c.client.Dispose()
	if joined {
		c.metrics.ConferenceLeft(rolePublisher)
	}
	c.logger.Infow("publisher session ended elsewhere", "session_id", sessionID)
	c.notify(PublisherStatus{})
}

// takeStopEvents must be called with c.mu held.
func (c *PublisherController) takeStopEvents() func() {
	stop := c.stopEvents
	c.stopEvents = nil
	if stop == nil {
		return func() {}
	}
	return stop
}

func (c *PublisherController) rollback(session *domain.StreamSession) {
	if _, err := c.sessions.EndSession(context.Background(), session.ID); err != nil {
		c.logger.Errorw("failed to end session after failed start",
			"session_id", session.ID,
			"error", err,
		)
	}
}

func (c *PublisherController) listen(sessionID domain.SessionID) {
	c.client.AddEventListener(ports.EventVideoConferenceJoined, func(map[string]interface{}) {
		c.update(sessionID, func(st *PublisherStatus) {
			if !st.Joined {
				st.Joined = true
				c.metrics.ConferenceJoined(rolePublisher)
			}
		})
	})
	c.client.AddEventListener(ports.EventScreenSharingStatusChanged, func(data map[string]interface{}) {
		c.update(sessionID, func(st *PublisherStatus) { st.ScreenSharing = boolField(data, "on") })
	})
	c.client.AddEventListener(ports.EventAudioMuteStatusChanged, func(data map[string]interface{}) {
		c.update(sessionID, func(st *PublisherStatus) { st.AudioMuted = boolField(data, "muted") })
	})
	c.client.AddEventListener(ports.EventVideoMuteStatusChanged, func(data map[string]interface{}) {
		c.update(sessionID, func(st *PublisherStatus) { st.VideoMuted = boolField(data, "muted") })
	})
	c.client.AddEventListener(ports.EventVideoConferenceLeft, func(map[string]interface{}) {
		c.logger.Infow("publisher left conference", "session_id", sessionID)
		if err := c.end(context.Background(), sessionID); err != nil {
			c.logger.Errorw("failed to end session after leaving", "session_id", sessionID, "error", err)
		}
	})
}

// update applies fn only while sessionID is still the current broadcast.
func (c *PublisherController) update(sessionID domain.SessionID, fn func(*PublisherStatus)) {
	c.mu.Lock()
	if !c.status.Streaming || c.status.Session == nil || c.status.Session.ID != sessionID {
		c.mu.Unlock()
		return
	}
	fn(&c.status)
	st := c.snapshot()
	c.mu.Unlock()
	c.notify(st)
}

// End stops the current broadcast. It is a no-op when nothing is streaming.
func (c *PublisherController) End(ctx context.Context) error {
	c.mu.Lock()
	if !c.status.Streaming {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.status.Session.ID
	c.mu.Unlock()

	return c.end(ctx, sessionID)
}

func (c *PublisherController) end(ctx context.Context, sessionID domain.SessionID) error {
	c.mu.Lock()
	if !c.status.Streaming || c.status.Session.ID != sessionID {
		c.mu.Unlock()
		return nil
	}
	joined := c.status.Joined
	c.status = PublisherStatus{}
	stop := c.takeStopEvents()
	c.mu.Unlock()

	stop()
	c.client.Dispose()
	if joined {
		c.metrics.ConferenceLeft(rolePublisher)
	}

	_, err := c.sessions.EndSession(ctx, sessionID)
	c.notify(PublisherStatus{})
	if err != nil {
		return err
	}
	c.logger.Infow("publisher stopped", "session_id", sessionID)
	return nil
}

func (c *PublisherController) ToggleAudio(ctx context.Context) error {
	c.mu.Lock()
	streaming, muted := c.status.Streaming, c.status.AudioMuted
	c.mu.Unlock()
	if !streaming {
		return nil
	}
	if muted {
		return c.client.UnmuteAudio(ctx)
	}
	return c.client.MuteAudio(ctx)
}

func (c *PublisherController) ToggleVideo(ctx context.Context) error {
	c.mu.Lock()
	streaming, muted := c.status.Streaming, c.status.VideoMuted
	c.mu.Unlock()
	if !streaming {
		return nil
	}
	if muted {
		return c.client.UnmuteVideo(ctx)
	}
	return c.client.MuteVideo(ctx)
}

func (c *PublisherController) ToggleScreenShare(ctx context.Context) error {
	return c.client.ToggleScreenShare(ctx)
}

// Close ends any running broadcast and refuses further starts. A start still in flight
// rolls its session back once it returns. Used when the controlling connection goes away.
func (c *PublisherController) Close(ctx context.Context) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if err := c.End(ctx); err != nil {
		c.logger.Warnw("failed to end broadcast on close", "publisher_id", c.identity.ID, "error", err)
	}
	c.client.Dispose()
}

func boolField(data map[string]interface{}, key string) bool {
	v, _ := data[key].(bool)
	return v
}
