package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/internal/core/services"
	"screenshare/internal/infrastructure/conference"
	"screenshare/internal/infrastructure/middleware"
	"screenshare/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Messages pushed to the browser on top of the bridge protocol.
const (
	MessageStatus  = "status"
	MessageStreams = "streams"
	MessageError   = "error"
)

// Browser actions.
const (
	ActionStart             = "start"
	ActionEnd               = "end"
	ActionToggleAudio       = "toggle_audio"
	ActionToggleVideo       = "toggle_video"
	ActionToggleScreenShare = "toggle_screen_share"
	ActionWatch             = "watch"
	ActionLeave             = "leave"
)

// closeTimeout bounds the store calls made while tearing down a connection.
const closeTimeout = 5 * time.Second

type RealtimeConfig struct {
	Conference     conference.Config
	Bridge         conference.BridgeConfig
	AllowedOrigins []string
	PollInterval   time.Duration
}

// RealtimeHandler runs one conference client per connected tab. The browser hosts the SDK
// and the server drives it through the bridge.
type RealtimeHandler struct {
	sessions    ports.SessionService
	permissions ports.PermissionService
	tokens      ports.TokenIssuer
	events      ports.EventSubscriber
	metrics     ports.Metrics
	cfg         RealtimeConfig
	logger      *zap.SugaredLogger
	upgrader    websocket.Upgrader

	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func NewRealtimeHandler(
	sessions ports.SessionService,
	permissions ports.PermissionService,
	tokens ports.TokenIssuer,
	events ports.EventSubscriber, // may be nil
	metrics ports.Metrics,
	cfg RealtimeConfig,
	logger *zap.SugaredLogger,
) *RealtimeHandler {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	h := &RealtimeHandler{
		sessions:    sessions,
		permissions: permissions,
		tokens:      tokens,
		events:      events,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		conns:       make(map[uint64]context.CancelFunc),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

// SetupRoutes expects ws to already run AuthMiddleware.
func (h *RealtimeHandler) SetupRoutes(ws *gin.RouterGroup) {
	ws.GET("/publisher", middleware.RequireRole(domain.RolePublisher, domain.RoleAdmin), h.Publisher)
	ws.GET("/viewer", middleware.RequireRole(domain.RoleSubscriber, domain.RoleAdmin), h.Viewer)
}

func (h *RealtimeHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.cfg.AllowedOrigins) == 0 {
		// Same-origin only, as gorilla does by default.
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// track registers a connection so Close can cancel it. ok is false once Close has run.
func (h *RealtimeHandler) track(parent context.Context) (ctx context.Context, release func(), ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	id := h.nextID
	h.nextID++
	h.conns[id] = cancel
	h.wg.Add(1)

	return ctx, func() {
		h.mu.Lock()
		delete(h.conns, id)
		h.mu.Unlock()
		cancel()
		h.wg.Done()
	}, true
}

// Close disconnects every socket and waits for their broadcasts to be ended.
// Hijacked connections are not covered by http.Server.Shutdown.
func (h *RealtimeHandler) Close() {
	h.mu.Lock()
	h.closed = true
	for _, cancel := range h.conns {
		cancel()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// Connections reports the number of open sockets.
func (h *RealtimeHandler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// socket is one upgraded connection with its own bridge and conference client.
type socket struct {
	ctx     context.Context
	release func()
	claims  *ports.AccessClaims
	bridge  *conference.Bridge
	client  *conference.Client
	log     *zap.SugaredLogger
}

// open upgrades the request. It returns nil after reporting the failure.
func (h *RealtimeHandler) open(c *gin.Context, role string) *socket {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return nil
	}

	ctx, release, ok := h.track(c.Request.Context())
	if !ok {
		c.Error(errors.NewServiceUnavailableError("server is shutting down"))
		return nil
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already wrote the error response.
		h.logger.Warnw("websocket upgrade failed", "role", role, "user_id", claims.UserID, "error", err)
		release()
		return nil
	}

	log := h.logger.With("role", role, "user_id", claims.UserID)
	bridge := conference.NewBridge(conn, h.cfg.Bridge, log)
	log.Infow("conference socket connected", "remote", c.ClientIP())

	return &socket{
		ctx:     ctx,
		release: release,
		claims:  claims,
		bridge:  bridge,
		client:  conference.NewClient(h.cfg.Conference, bridge, bridge, log),
		log:     log,
	}
}

// preload warms the SDK while the user is still looking at the form. A failure here is
// retried by the first CreateRoom.
func preload(ctx context.Context, client *conference.Client, log *zap.SugaredLogger) {
	if err := client.Preload(ctx); err != nil {
		log.Infow("conference sdk preload failed", "error", err)
	}
}

func (h *RealtimeHandler) Publisher(c *gin.Context) {
	s := h.open(c, "publisher")
	if s == nil {
		return
	}
	defer s.release()

	identity := domain.UserIdentity{ID: string(s.claims.UserID), Name: s.claims.Username}
	ctrl := services.NewPublisherController(h.sessions, h.tokens, s.client, h.events, h.metrics, s.log, identity, h.cfg.Conference.AppName,
		func(st services.PublisherStatus) { push(s.bridge, s.log, MessageStatus, st) })

	s.bridge.OnAction(func(action string, payload json.RawMessage) {
		if err := h.publisherAction(s.ctx, ctrl, action, payload); err != nil {
			pushError(s.bridge, s.log, action, err)
		}
	})

	go preload(s.ctx, s.client, s.log)
	push(s.bridge, s.log, MessageStatus, ctrl.Status())

	if err := s.bridge.Run(s.ctx); err != nil {
		s.log.Infow("publisher socket closed", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	ctrl.Close(closeCtx)
}

func (h *RealtimeHandler) publisherAction(ctx context.Context, ctrl *services.PublisherController, action string, payload json.RawMessage) error {
	switch action {
	case ActionStart:
		var params services.StartStreamParams
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &params); err != nil {
				return errors.NewInvalidInputError("invalid start payload")
			}
		}
		_, err := ctrl.Start(ctx, params)
		return err
	case ActionEnd:
		return ctrl.End(ctx)
	case ActionToggleAudio:
		return ctrl.ToggleAudio(ctx)
	case ActionToggleVideo:
		return ctrl.ToggleVideo(ctx)
	case ActionToggleScreenShare:
		return ctrl.ToggleScreenShare(ctx)
	default:
		return errors.NewInvalidInputError("unknown action").WithContext("action", action)
	}
}

type watchPayload struct {
	PermissionID domain.PermissionID `json:"permission_id"`
}

func (h *RealtimeHandler) Viewer(c *gin.Context) {
	s := h.open(c, "subscriber")
	if s == nil {
		return
	}
	defer s.release()

	ctrl := services.NewViewerController(h.permissions, h.tokens, s.client, h.metrics, s.log, s.claims.UserID, h.cfg.Conference.AppName,
		func(st services.ViewerStatus) { push(s.bridge, s.log, MessageStatus, st) })

	s.bridge.OnAction(func(action string, payload json.RawMessage) {
		if err := h.viewerAction(s.ctx, ctrl, action, payload); err != nil {
			pushError(s.bridge, s.log, action, err)
		}
	})

	watcher := services.NewStreamWatcher(h.permissions, h.events, s.claims.UserID, h.cfg.PollInterval, s.log)
	watchCtx, stopWatch := context.WithCancel(s.ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		watcher.Run(watchCtx, func(update services.StreamUpdate) {
			if update.Err != nil {
				pushError(s.bridge, s.log, MessageStreams, update.Err)
				return
			}
			streams := update.Streams
			if streams == nil {
				streams = []*domain.SubscriberPermission{}
			}
			push(s.bridge, s.log, MessageStreams, streams)
		})
	}()

	go preload(s.ctx, s.client, s.log)

	if err := s.bridge.Run(s.ctx); err != nil {
		s.log.Infow("viewer socket closed", "error", err)
	}

	stopWatch()
	<-watchDone
	ctrl.Close()
}

func (h *RealtimeHandler) viewerAction(ctx context.Context, ctrl *services.ViewerController, action string, payload json.RawMessage) error {
	switch action {
	case ActionWatch:
		var p watchPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.PermissionID == "" {
			return errors.NewInvalidInputError("watch requires permission_id")
		}
		_, err := ctrl.Watch(ctx, p.PermissionID)
		return err
	case ActionLeave:
		ctrl.Leave()
		return nil
	case ActionToggleAudio:
		return ctrl.ToggleAudio(ctx)
	default:
		return errors.NewInvalidInputError("unknown action").WithContext("action", action)
	}
}

func push(bridge *conference.Bridge, log *zap.SugaredLogger, kind string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Errorw("failed to encode push message", "type", kind, "error", err)
		return
	}
	if err := bridge.Send(conference.Message{Type: kind, Payload: raw}); err != nil && err != conference.ErrBridgeClosed {
		log.Debugw("failed to push message", "type", kind, "error", err)
	}
}

type errorPayload struct {
	Action    string `json:"action"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// pushError reports a failed action the way the error middleware renders HTTP errors.
func pushError(bridge *conference.Bridge, log *zap.SugaredLogger, action string, err error) {
	p := errorPayload{
		Action: action,
		Error:  "internal server error",
		Code:   string(errors.ErrCodeInternal),
	}
	if appErr := errors.GetAppError(err); appErr != nil {
		p.Error = appErr.Message
		p.Code = string(appErr.Code)
		p.Retryable = appErr.Retryable()
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.Errorw("action failed", "action", action, "error", err)
		} else {
			log.Infow("action rejected", "action", action, "code", appErr.Code)
		}
	} else {
		log.Errorw("action failed", "action", action, "error", err)
	}
	push(bridge, log, MessageError, p)
}
