package conference

import (
	"context"

	"screenshare/internal/core/ports"
)

// ScriptLoader makes the external SDK available to the page hosting the meeting.
// A failed load may be attempted again.
type ScriptLoader interface {
	LoadScript(ctx context.Context, src string) error
}

// SDK mirrors the external API constructor: new JitsiMeetExternalAPI(domain, options).
type SDK interface {
	NewMeeting(ctx context.Context, domain string, cfg ports.RoomConfig) (Meeting, error)
}

// Meeting is one live SDK instance. Listeners are called in registration order.
type Meeting interface {
	ExecuteCommand(ctx context.Context, name string, args ...interface{}) error
	AddEventListener(event string, handler ports.EventHandler)
	Dispose(ctx context.Context) error
}
