package conference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"screenshare/internal/core/ports"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// startBridge serves one bridge and returns it together with a client connection playing the browser.
func startBridge(t *testing.T) (*Bridge, *websocket.Conn) {
	t.Helper()

	bridges := make(chan *Bridge, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		bridge := NewBridge(conn, BridgeConfig{WriteTimeout: time.Second}, zaptest.NewLogger(t).Sugar())
		bridges <- bridge
		bridge.Run(context.Background())
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	browser, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { browser.Close() })

	select {
	case b := <-bridges:
		return b, browser
	case <-time.After(time.Second):
		t.Fatal("bridge was not created")
		return nil, nil
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func ack(t *testing.T, conn *websocket.Conn, id, errMsg string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Message{Type: MessageAck, ID: id, Error: errMsg}))
}

func TestBridge_LoadScriptWaitsForAck(t *testing.T) {
	bridge, browser := startBridge(t)

	result := make(chan error, 1)
	go func() { result <- bridge.LoadScript(context.Background(), "https://8x8.vc/t/external_api.js") }()

	msg := readMessage(t, browser)
	assert.Equal(t, MessageLoad, msg.Type)
	assert.Equal(t, "https://8x8.vc/t/external_api.js", msg.Src)
	ack(t, browser, msg.ID, "")

	require.NoError(t, <-result)
}

func TestBridge_RemoteErrorIsReturned(t *testing.T) {
	bridge, browser := startBridge(t)

	result := make(chan error, 1)
	go func() { result <- bridge.LoadScript(context.Background(), "https://blocked") }()

	msg := readMessage(t, browser)
	ack(t, browser, msg.ID, "Failed to load Jitsi Meet API")

	err := <-result
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, MessageLoad, remote.Op)
}

func TestBridge_RequestHonoursContext(t *testing.T) {
	bridge, browser := startBridge(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := bridge.LoadScript(ctx, "https://slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	readMessage(t, browser)
}

func TestBridge_MeetingLifecycle(t *testing.T) {
	bridge, browser := startBridge(t)
	ctx := context.Background()

	type created struct {
		meeting Meeting
		err     error
	}
	result := make(chan created, 1)
	go func() {
		m, err := bridge.NewMeeting(ctx, "8x8.vc", ports.RoomConfig{RoomName: "t/room", JWT: "jwt"})
		result <- created{m, err}
	}()

	create := readMessage(t, browser)
	assert.Equal(t, MessageCreate, create.Type)
	assert.Equal(t, "8x8.vc", create.Domain)
	require.NotNil(t, create.Config)
	assert.Equal(t, "t/room", create.Config.RoomName)
	assert.Equal(t, "jwt", create.Config.JWT)
	ack(t, browser, create.ID, "")

	res := <-result
	require.NoError(t, res.err)
	meeting := res.meeting

	events := make(chan map[string]interface{}, 1)
	meeting.AddEventListener(ports.EventAudioMuteStatusChanged, func(data map[string]interface{}) {
		events <- data
	})
	require.NoError(t, browser.WriteJSON(Message{
		Type:    MessageEvent,
		Meeting: create.ID,
		Name:    ports.EventAudioMuteStatusChanged,
		Data:    map[string]interface{}{"muted": true},
	}))

	select {
	case data := <-events:
		assert.Equal(t, true, data["muted"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	cmdDone := make(chan error, 1)
	go func() { cmdDone <- meeting.ExecuteCommand(ctx, ports.CommandSetVideoQuality, "ultra") }()
	cmd := readMessage(t, browser)
	assert.Equal(t, MessageCommand, cmd.Type)
	assert.Equal(t, create.ID, cmd.Meeting)
	assert.Equal(t, ports.CommandSetVideoQuality, cmd.Name)
	assert.Equal(t, []interface{}{"ultra"}, cmd.Args)
	ack(t, browser, cmd.ID, "")
	require.NoError(t, <-cmdDone)

	disposeDone := make(chan error, 1)
	go func() { disposeDone <- meeting.Dispose(ctx) }()
	dispose := readMessage(t, browser)
	assert.Equal(t, MessageDispose, dispose.Type)
	assert.Equal(t, create.ID, dispose.Meeting)
	ack(t, browser, dispose.ID, "")
	require.NoError(t, <-disposeDone)

	// A second dispose does not reach the browser.
	require.NoError(t, meeting.Dispose(ctx))
}

// Event handlers run off the read loop, so a handler may itself wait for an ack.
func TestBridge_HandlersMayIssueRequests(t *testing.T) {
	bridge, browser := startBridge(t)
	ctx := context.Background()

	go func() {
		var create Message
		if err := browser.ReadJSON(&create); err == nil {
			browser.WriteJSON(Message{Type: MessageAck, ID: create.ID})
		}
	}()
	meeting, err := bridge.NewMeeting(ctx, "8x8.vc", ports.RoomConfig{RoomName: "r"})
	require.NoError(t, err)

	handled := make(chan error, 1)
	meeting.AddEventListener(ports.EventVideoConferenceJoined, func(map[string]interface{}) {
		handled <- meeting.ExecuteCommand(ctx, ports.CommandSetVideoQuality, "ultra")
	})

	require.NoError(t, browser.WriteJSON(Message{Type: MessageEvent, Name: ports.EventVideoConferenceJoined}))
	cmd := readMessage(t, browser)
	assert.Equal(t, MessageCommand, cmd.Type)
	ack(t, browser, cmd.ID, "")

	select {
	case err := <-handled:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked")
	}
}

func TestBridge_ActionsReachHandler(t *testing.T) {
	bridge, browser := startBridge(t)

	var mu sync.Mutex
	var got []string
	received := make(chan struct{}, 2)
	bridge.OnAction(func(action string, payload json.RawMessage) {
		mu.Lock()
		got = append(got, action+":"+string(payload))
		mu.Unlock()
		received <- struct{}{}
	})

	require.NoError(t, browser.WriteJSON(Message{Type: MessageAction, Action: "watch", Payload: json.RawMessage(`{"permission_id":"p1"}`)}))
	require.NoError(t, browser.WriteJSON(Message{Type: MessageAction, Action: "leave"}))
	<-received
	<-received

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`watch:{"permission_id":"p1"}`, "leave:"}, got)
}

func TestBridge_CloseFailsPendingRequests(t *testing.T) {
	bridge, browser := startBridge(t)

	result := make(chan error, 1)
	go func() { result <- bridge.LoadScript(context.Background(), "https://x") }()
	readMessage(t, browser)
	browser.Close()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrBridgeClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not released")
	}
	<-bridge.Done()
	assert.ErrorIs(t, bridge.Send(map[string]string{"type": "status"}), ErrBridgeClosed)
}

func TestBridge_DrivesClient(t *testing.T) {
	bridge, browser := startBridge(t)
	client := NewClient(testClientConfig(), bridge, bridge, zaptest.NewLogger(t).Sugar())

	// Browser side: ack everything and remember what was asked.
	var mu sync.Mutex
	var seen []Message
	go func() {
		for {
			var msg Message
			if err := browser.ReadJSON(&msg); err != nil {
				return
			}
			mu.Lock()
			seen = append(seen, msg)
			mu.Unlock()
			if msg.ID != "" {
				browser.WriteJSON(Message{Type: MessageAck, ID: msg.ID})
			}
		}
	}()

	require.NoError(t, client.CreateRoom(context.Background(), ports.RoomConfig{RoomName: "room"}))
	require.NoError(t, client.ToggleScreenShare(context.Background()))
	client.Dispose()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	assert.Equal(t, MessageLoad, seen[0].Type)
	assert.Equal(t, MessageCreate, seen[1].Type)
	assert.Equal(t, "vpaas-magic-cookie-test/room", seen[1].Config.RoomName)
	assert.Equal(t, MessageCommand, seen[2].Type)
	assert.Equal(t, ports.CommandToggleShareScreen, seen[2].Name)
	assert.Equal(t, MessageDispose, seen[3].Type)
}
