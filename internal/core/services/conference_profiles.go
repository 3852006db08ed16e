package services

import (
	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
)

const subscriberDisplayName = "Subscriber"

var (
	publisherToolbar  = []string{"microphone", "camera", "desktop", "hangup", "settings", "videoquality", "filmstrip"}
	subscriberToolbar = []string{"hangup", "settings", "fullscreen"}
)

// PublisherProfile is the full-control room configuration for the broadcasting user.
func PublisherProfile(roomName, token, displayName, email, appName string) ports.RoomConfig {
	return ports.RoomConfig{
		RoomName: roomName,
		JWT:      token,
		Width:    "100%",
		Height:   "500",
		ConfigOverwrite: map[string]interface{}{
			"startWithAudioMuted":       false,
			"startWithVideoMuted":       false,
			"enableWelcomePage":         false,
			"prejoinPageEnabled":        false,
			"disableModeratorIndicator": true,
			"startScreenSharing":        false,
		},
		InterfaceConfigOverwrite: map[string]interface{}{
			"TOOLBAR_BUTTONS":      publisherToolbar,
			"SHOW_JITSI_WATERMARK": false,
			"SHOW_POWERED_BY":      false,
			"APP_NAME":             appName,
		},
		UserInfo: &ports.UserInfo{
			DisplayName: displayName,
			Email:       email,
		},
	}
}

// SubscriberProfile is the receive-mostly configuration. Microphone and camera start muted
// unless the permission allows them.
func SubscriberProfile(roomName, token string, perm *domain.SubscriberPermission, appName string) ports.RoomConfig {
	return ports.RoomConfig{
		RoomName: roomName,
		JWT:      token,
		Width:    "100%",
		Height:   "500",
		ConfigOverwrite: map[string]interface{}{
			"startWithAudioMuted":       !perm.AllowAudio,
			"startWithVideoMuted":       !perm.AllowVideo,
			"enableWelcomePage":         false,
			"prejoinPageEnabled":        false,
			"disableModeratorIndicator": true,
			"startScreenSharing":        false,
			"channelLastN":              1,
			"disableAudioLevels":        true,
			"videoQuality": map[string]interface{}{
				"preferredCodec":                "H264",
				"maxFullResolutionParticipants": 1,
			},
		},
		InterfaceConfigOverwrite: map[string]interface{}{
			"TOOLBAR_BUTTONS":              subscriberToolbar,
			"SHOW_JITSI_WATERMARK":         false,
			"SHOW_POWERED_BY":              false,
			"APP_NAME":                     appName,
			"AUTO_PIN_LATEST_SCREEN_SHARE": true,
			"filmstrip":                    map[string]interface{}{"disabled": true},
		},
		UserInfo: &ports.UserInfo{
			DisplayName: subscriberDisplayName,
		},
	}
}
