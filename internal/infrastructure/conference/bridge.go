package conference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"screenshare/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Bridge message types.
const (
	MessageLoad    = "load"
	MessageCreate  = "create"
	MessageCommand = "command"
	MessageDispose = "dispose"
	MessageAck     = "ack"
	MessageEvent   = "event"
	MessageAction  = "action"
)

var ErrBridgeClosed = errors.New("conference bridge closed")

// RemoteError is a failure reported by the browser in an ack.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed in browser: %s", e.Op, e.Message)
}

// Message is the bridge wire format in both directions.
type Message struct {
	Type    string                 `json:"type"`
	ID      string                 `json:"id,omitempty"`
	Meeting string                 `json:"meeting,omitempty"`
	Src     string                 `json:"src,omitempty"`
	Domain  string                 `json:"domain,omitempty"`
	Config  *ports.RoomConfig      `json:"config,omitempty"`
	Name    string                 `json:"name,omitempty"`
	Args    []interface{}          `json:"args,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Action  string                 `json:"action,omitempty"`
	Payload json.RawMessage        `json:"payload,omitempty"`
}

// ActionHandler receives application actions sent by the browser.
type ActionHandler func(action string, payload json.RawMessage)

type BridgeConfig struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Bridge drives the SDK inside a browser tab over a websocket. It implements ScriptLoader and SDK.
// Requests are correlated with acks by id. Events and actions are delivered on a single dispatch
// goroutine, so handlers may issue requests without blocking the read loop.
type Bridge struct {
	conn   *websocket.Conn
	cfg    BridgeConfig
	logger *zap.SugaredLogger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu       sync.Mutex
	pending  map[string]chan Message
	meetings map[string]*bridgeMeeting
	latest   string
	onAction ActionHandler

	tasks     chan struct{}
	queueMu   sync.Mutex
	queue     []func()
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ ScriptLoader = (*Bridge)(nil)
	_ SDK          = (*Bridge)(nil)
)

func NewBridge(conn *websocket.Conn, cfg BridgeConfig, logger *zap.SugaredLogger) *Bridge {
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Bridge{
		conn:     conn,
		cfg:      cfg,
		logger:   logger,
		pending:  make(map[string]chan Message),
		meetings: make(map[string]*bridgeMeeting),
		tasks:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// OnAction sets the handler for browser actions. Set it before Run.
func (b *Bridge) OnAction(handler ActionHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onAction = handler
}

// Done is closed once the bridge stops.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Run reads from the connection until it fails or ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.shutdown()

	go b.dispatchLoop()
	go b.pingLoop()
	go func() {
		select {
		case <-ctx.Done():
			b.conn.Close()
		case <-b.done:
		}
	}()

	b.extendRead()
	b.conn.SetPongHandler(func(string) error {
		b.extendRead()
		return nil
	})

	for {
		var msg Message
		if err := b.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		b.extendRead()
		b.route(msg)
	}
}

func (b *Bridge) extendRead() {
	if b.cfg.ReadTimeout > 0 {
		b.conn.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout))
	}
}

func (b *Bridge) route(msg Message) {
	switch msg.Type {
	case MessageAck:
		b.mu.Lock()
		ch, ok := b.pending[msg.ID]
		delete(b.pending, msg.ID)
		b.mu.Unlock()
		if !ok {
			b.logger.Debugw("ack for unknown request", "id", msg.ID)
			return
		}
		ch <- msg

	case MessageEvent:
		b.mu.Lock()
		id := msg.Meeting
		if id == "" {
			id = b.latest
		}
		meeting := b.meetings[id]
		b.mu.Unlock()
		if meeting == nil {
			b.logger.Debugw("event for unknown meeting", "meeting", msg.Meeting, "event", msg.Name)
			return
		}
		b.enqueue(func() { meeting.emit(msg.Name, msg.Data) })

	case MessageAction:
		b.mu.Lock()
		handler := b.onAction
		b.mu.Unlock()
		if handler == nil {
			return
		}
		b.enqueue(func() { handler(msg.Action, msg.Payload) })

	default:
		b.logger.Warnw("unknown bridge message", "type", msg.Type)
	}
}

func (b *Bridge) enqueue(task func()) {
	b.queueMu.Lock()
	b.queue = append(b.queue, task)
	b.queueMu.Unlock()

	select {
	case b.tasks <- struct{}{}:
	default:
	}
}

func (b *Bridge) dispatchLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.tasks:
		}

		for {
			b.queueMu.Lock()
			if len(b.queue) == 0 {
				b.queueMu.Unlock()
				break
			}
			task := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.queueMu.Unlock()

			task()
		}
	}
}

func (b *Bridge) pingLoop() {
	if b.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(b.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.writeMu.Lock()
			err := b.conn.WriteControl(websocket.PingMessage, nil, b.writeDeadline())
			b.writeMu.Unlock()
			if err != nil {
				b.logger.Infow("error sending ping", "error", err)
				b.conn.Close()
				return
			}
		}
	}
}

func (b *Bridge) shutdown() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.conn.Close()
	})
}

// Send writes an application message to the browser.
func (b *Bridge) Send(v interface{}) error {
	select {
	case <-b.done:
		return ErrBridgeClosed
	default:
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.conn.SetWriteDeadline(b.writeDeadline())
	return b.conn.WriteJSON(v)
}

// writeDeadline is the zero time, meaning no deadline, when no write timeout is configured.
func (b *Bridge) writeDeadline() time.Time {
	if b.cfg.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(b.cfg.WriteTimeout)
}

func (b *Bridge) newID() string {
	return strconv.FormatUint(b.nextID.Add(1), 10)
}

// request sends msg and waits for the matching ack.
func (b *Bridge) request(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = b.newID()
	}
	ch := make(chan Message, 1)

	b.mu.Lock()
	b.pending[msg.ID] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
	}()

	if err := b.Send(msg); err != nil {
		return err
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return &RemoteError{Op: msg.Type, Message: ack.Error}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrBridgeClosed
	}
}

func (b *Bridge) LoadScript(ctx context.Context, src string) error {
	return b.request(ctx, Message{Type: MessageLoad, Src: src})
}

func (b *Bridge) NewMeeting(ctx context.Context, domain string, cfg ports.RoomConfig) (Meeting, error) {
	id := b.newID()
	meeting := &bridgeMeeting{
		bridge:    b,
		id:        id,
		listeners: make(map[string][]ports.EventHandler),
	}

	b.mu.Lock()
	b.meetings[id] = meeting
	b.latest = id
	b.mu.Unlock()

	if err := b.request(ctx, Message{Type: MessageCreate, ID: id, Domain: domain, Config: &cfg}); err != nil {
		b.forget(id)
		return nil, err
	}
	return meeting, nil
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.meetings, id)
	if b.latest == id {
		b.latest = ""
	}
}

type bridgeMeeting struct {
	bridge *Bridge
	id     string

	mu        sync.Mutex
	listeners map[string][]ports.EventHandler
	disposed  bool
}

func (m *bridgeMeeting) ExecuteCommand(ctx context.Context, name string, args ...interface{}) error {
	return m.bridge.request(ctx, Message{Type: MessageCommand, Meeting: m.id, Name: name, Args: args})
}

func (m *bridgeMeeting) AddEventListener(event string, handler ports.EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.listeners[event] = append(m.listeners[event], handler)
}

func (m *bridgeMeeting) Dispose(ctx context.Context) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	m.listeners = nil
	m.mu.Unlock()

	m.bridge.forget(m.id)
	err := m.bridge.request(ctx, Message{Type: MessageDispose, Meeting: m.id})
	if errors.Is(err, ErrBridgeClosed) {
		return nil
	}
	return err
}

func (m *bridgeMeeting) emit(event string, data map[string]interface{}) {
	m.mu.Lock()
	handlers := append([]ports.EventHandler(nil), m.listeners[event]...)
	m.mu.Unlock()

	if data == nil {
		data = map[string]interface{}{}
	}
	for _, h := range handlers {
		h(data)
	}
}
