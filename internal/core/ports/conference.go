package ports

import "context"

// Event names emitted by the conferencing SDK.
const (
	EventVideoConferenceJoined      = "videoConferenceJoined"
	EventVideoConferenceLeft        = "videoConferenceLeft"
	EventAudioMuteStatusChanged     = "audioMuteStatusChanged"
	EventVideoMuteStatusChanged     = "videoMuteStatusChanged"
	EventScreenSharingStatusChanged = "screenSharingStatusChanged"
)

// Commands understood by the conferencing SDK.
const (
	CommandToggleAudio       = "toggleAudio"
	CommandToggleVideo       = "toggleVideo"
	CommandToggleShareScreen = "toggleShareScreen"
	CommandSetVideoQuality   = "setVideoQuality"
	CommandHangup            = "hangup"
)

type ConferenceState int

const (
	ConferenceIdle ConferenceState = iota
	ConferenceLive
)

func (s ConferenceState) String() string {
	if s == ConferenceLive {
		return "live"
	}
	return "idle"
}

// EventHandler receives SDK event payloads uninterpreted.
type EventHandler func(data map[string]interface{})

type UserInfo struct {
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// RoomConfig is what the SDK constructor receives. RoomName is the bare name;
// the client adds the tenant prefix.
type RoomConfig struct {
	RoomName                 string                 `json:"roomName"`
	JWT                      string                 `json:"jwt,omitempty"`
	Width                    string                 `json:"width,omitempty"`
	Height                   string                 `json:"height,omitempty"`
	ConfigOverwrite          map[string]interface{} `json:"configOverwrite,omitempty"`
	InterfaceConfigOverwrite map[string]interface{} `json:"interfaceConfigOverwrite,omitempty"`
	UserInfo                 *UserInfo              `json:"userInfo,omitempty"`
}

// ConferenceClient owns at most one live SDK handle. Every operation other than CreateRoom
// is a no-op returning nil while the client is idle.
type ConferenceClient interface {
	CreateRoom(ctx context.Context, cfg RoomConfig) error
	State() ConferenceState
	MuteAudio(ctx context.Context) error
	UnmuteAudio(ctx context.Context) error
	MuteVideo(ctx context.Context) error
	UnmuteVideo(ctx context.Context) error
	ToggleScreenShare(ctx context.Context) error
	ExecuteCommand(ctx context.Context, name string, args ...interface{}) error
	AddEventListener(event string, handler EventHandler)
	Dispose()
}
