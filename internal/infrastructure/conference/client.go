package conference

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"screenshare/internal/core/ports"
	apperrors "screenshare/pkg/errors"
	"screenshare/pkg/tracing"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const sdkLoadKey = "external_api"

type Config struct {
	Domain         string
	Tenant         string
	AppName        string
	DefaultJWT     string
	CommandTimeout time.Duration
}

// ScriptURL is where the external API script is served for the tenant.
func (c Config) ScriptURL() string {
	if c.Tenant == "" {
		return fmt.Sprintf("https://%s/external_api.js", c.Domain)
	}
	return fmt.Sprintf("https://%s/%s/external_api.js", c.Domain, c.Tenant)
}

// RoomName namespaces a bare room name under the tenant.
func (c Config) RoomName(room string) string {
	if c.Tenant == "" {
		return room
	}
	return c.Tenant + "/" + room
}

type handle struct {
	meeting    Meeting
	room       string
	audioMuted bool
	videoMuted bool
}

// Client adapts the external SDK to ports.ConferenceClient. It holds at most one live meeting.
type Client struct {
	cfg    Config
	loader ScriptLoader
	sdk    SDK
	logger *zap.SugaredLogger

	loads  singleflight.Group
	loaded atomic.Bool

	// opMu serializes CreateRoom and Dispose; mu guards handle.
	opMu   sync.Mutex
	mu     sync.Mutex
	handle *handle
}

var _ ports.ConferenceClient = (*Client)(nil)

func NewClient(cfg Config, loader ScriptLoader, sdk SDK, logger *zap.SugaredLogger) *Client {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		loader: loader,
		sdk:    sdk,
		logger: logger,
	}
}

// Preload starts loading the SDK script ahead of the first CreateRoom.
func (c *Client) Preload(ctx context.Context) error {
	if err := c.ensureLoaded(ctx); err != nil {
		return apperrors.NewSDKLoadError(err)
	}
	return nil
}

// ensureLoaded loads the script once. Only success is remembered.
func (c *Client) ensureLoaded(ctx context.Context) error {
	if c.loaded.Load() {
		return nil
	}
	_, err, _ := c.loads.Do(sdkLoadKey, func() (interface{}, error) {
		if c.loaded.Load() {
			return nil, nil
		}
		ctx, cancel := c.commandContext(ctx)
		defer cancel()
		if err := c.loader.LoadScript(ctx, c.cfg.ScriptURL()); err != nil {
			return nil, err
		}
		c.loaded.Store(true)
		return nil, nil
	})
	if err != nil {
		c.logger.Warnw("failed to load conference sdk", "src", c.cfg.ScriptURL(), "error", err)
	}
	return err
}

func (c *Client) CreateRoom(ctx context.Context, cfg ports.RoomConfig) error {
	ctx, span := tracing.TraceBridgeCommand(ctx, "create", cfg.RoomName)
	defer span.End()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.release(ctx)

	if err := c.ensureLoaded(ctx); err != nil {
		tracing.RecordError(ctx, err)
		return apperrors.NewSDKLoadError(err)
	}

	merged := c.merge(cfg)
	createCtx, cancel := c.commandContext(ctx)
	defer cancel()
	meeting, err := c.sdk.NewMeeting(createCtx, c.cfg.Domain, merged)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Errorw("failed to create conference", "room", merged.RoomName, "error", err)
		return apperrors.NewSDKLoadError(err)
	}

	h := &handle{
		meeting:    meeting,
		room:       merged.RoomName,
		audioMuted: boolOption(merged.ConfigOverwrite, "startWithAudioMuted"),
		videoMuted: boolOption(merged.ConfigOverwrite, "startWithVideoMuted"),
	}
	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()

	meeting.AddEventListener(ports.EventVideoConferenceLeft, func(map[string]interface{}) {
		c.onLeft(h)
	})
	meeting.AddEventListener(ports.EventAudioMuteStatusChanged, func(data map[string]interface{}) {
		c.track(h, func() { h.audioMuted = boolOption(data, "muted") })
	})
	meeting.AddEventListener(ports.EventVideoMuteStatusChanged, func(data map[string]interface{}) {
		c.track(h, func() { h.videoMuted = boolOption(data, "muted") })
	})

	c.logger.Infow("conference created",
		"domain", c.cfg.Domain,
		"room", merged.RoomName,
		"has_jwt", merged.JWT != "",
	)
	return nil
}

func (c *Client) merge(cfg ports.RoomConfig) ports.RoomConfig {
	merged := cfg
	merged.RoomName = c.cfg.RoomName(cfg.RoomName)
	merged.ConfigOverwrite = mergeOverwrite(defaultConfigOverwrite(), cfg.ConfigOverwrite)
	merged.InterfaceConfigOverwrite = mergeOverwrite(defaultInterfaceOverwrite(c.cfg.AppName), cfg.InterfaceConfigOverwrite)
	if merged.JWT == "" {
		merged.JWT = c.cfg.DefaultJWT
	}
	return merged
}

func (c *Client) track(h *handle, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == h {
		fn()
	}
}

// onLeft releases h if it is still current. It runs on the SDK's event path and must not take opMu.
func (c *Client) onLeft(h *handle) {
	c.mu.Lock()
	if c.handle != h {
		c.mu.Unlock()
		return
	}
	c.handle = nil
	c.mu.Unlock()

	c.logger.Infow("conference left", "room", h.room)
	c.disposeHandle(context.Background(), h)
}

func (c *Client) State() ports.ConferenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		return ports.ConferenceLive
	}
	return ports.ConferenceIdle
}

func (c *Client) MuteAudio(ctx context.Context) error {
	return c.setMuted(ctx, ports.CommandToggleAudio, true, func(h *handle) *bool { return &h.audioMuted })
}

func (c *Client) UnmuteAudio(ctx context.Context) error {
	return c.setMuted(ctx, ports.CommandToggleAudio, false, func(h *handle) *bool { return &h.audioMuted })
}

func (c *Client) MuteVideo(ctx context.Context) error {
	return c.setMuted(ctx, ports.CommandToggleVideo, true, func(h *handle) *bool { return &h.videoMuted })
}

func (c *Client) UnmuteVideo(ctx context.Context) error {
	return c.setMuted(ctx, ports.CommandToggleVideo, false, func(h *handle) *bool { return &h.videoMuted })
}

// setMuted toggles only when the tracked state differs from want, and records want right away
// so a second call before the SDK event arrives does not toggle back.
func (c *Client) setMuted(ctx context.Context, command string, want bool, field func(*handle) *bool) error {
	c.mu.Lock()
	h := c.handle
	if h == nil || *field(h) == want {
		c.mu.Unlock()
		return nil
	}
	*field(h) = want
	c.mu.Unlock()

	if err := c.run(ctx, h, command); err != nil {
		// The toggle never landed; a mute event may still have corrected the state meanwhile.
		c.mu.Lock()
		if c.handle == h && *field(h) == want {
			*field(h) = !want
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) ToggleScreenShare(ctx context.Context) error {
	return c.ExecuteCommand(ctx, ports.CommandToggleShareScreen)
}

func (c *Client) ExecuteCommand(ctx context.Context, name string, args ...interface{}) error {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == nil {
		return nil
	}
	return c.run(ctx, h, name, args...)
}

// run issues a command on h. Failures on a handle that has since been released are dropped.
func (c *Client) run(ctx context.Context, h *handle, name string, args ...interface{}) error {
	ctx, span := tracing.TraceBridgeCommand(ctx, "command", name)
	defer span.End()

	cmdCtx, cancel := c.commandContext(ctx)
	defer cancel()

	err := h.meeting.ExecuteCommand(cmdCtx, name, args...)
	if err == nil {
		return nil
	}

	c.mu.Lock()
	current := c.handle == h
	c.mu.Unlock()
	if !current {
		c.logger.Debugw("dropping command error from released conference", "command", name, "error", err)
		return nil
	}
	tracing.RecordError(ctx, err)
	return fmt.Errorf("conference command %s: %w", name, err)
}

func (c *Client) AddEventListener(event string, handler ports.EventHandler) {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == nil {
		return
	}
	h.meeting.AddEventListener(event, handler)
}

// Dispose releases the live meeting, if any. Safe to call at any time.
func (c *Client) Dispose() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.release(context.Background())
}

func (c *Client) release(ctx context.Context) {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mu.Unlock()

	if h != nil {
		c.disposeHandle(ctx, h)
	}
}

func (c *Client) disposeHandle(ctx context.Context, h *handle) {
	ctx, cancel := c.commandContext(ctx)
	defer cancel()
	if err := h.meeting.Dispose(ctx); err != nil {
		c.logger.Warnw("failed to dispose conference", "room", h.room, "error", err)
	}
}

func (c *Client) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.CommandTimeout)
}

func boolOption(m map[string]interface{}, key string) bool {
	v, _ := m[key].(bool)
	return v
}
