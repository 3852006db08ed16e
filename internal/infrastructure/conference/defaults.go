package conference

var defaultToolbarButtons = []string{
	"microphone", "camera", "desktop", "fullscreen", "fodeviceselection", "hangup",
	"profile", "recording", "livestreaming", "etherpad", "sharedvideo", "settings",
	"raisehand", "videoquality", "filmstrip", "feedback", "stats", "shortcuts",
	"tileview", "videobackgroundblur", "download", "help", "mute-everyone", "security",
}

func defaultConfigOverwrite() map[string]interface{} {
	return map[string]interface{}{
		"startWithAudioMuted":       false,
		"startWithVideoMuted":       false,
		"enableWelcomePage":         false,
		"prejoinPageEnabled":        false,
		"disableModeratorIndicator": true,
		"startScreenSharing":        false,
		"enableEmailInStats":        false,
	}
}

func defaultInterfaceOverwrite(appName string) map[string]interface{} {
	return map[string]interface{}{
		"TOOLBAR_BUTTONS":   append([]string(nil), defaultToolbarButtons...),
		"SETTINGS_SECTIONS": []string{"devices", "language", "moderator", "profile", "calendar"},

		"SHOW_JITSI_WATERMARK":      false,
		"SHOW_WATERMARK_FOR_GUESTS": false,
		"SHOW_BRAND_WATERMARK":      false,
		"SHOW_POWERED_BY":           false,

		"DISPLAY_WELCOME_PAGE_CONTENT":                    false,
		"DISPLAY_WELCOME_PAGE_TOOLBAR_ADDITIONAL_CONTENT": false,

		"APP_NAME":        appName,
		"NATIVE_APP_NAME": appName,
		"PROVIDER_NAME":   appName,

		"LANG_DETECTION":                false,
		"CONNECTION_INDICATOR_DISABLED": false,
		"VIDEO_QUALITY_LABEL_DISABLED":  false,
		"RECENT_LIST_ENABLED":           false,
		"AUTO_PIN_LATEST_SCREEN_SHARE":  true,
		"DISABLE_VIDEO_BACKGROUND":      false,
		"DISABLE_BLUR_SUPPORT":          false,
	}
}

// mergeOverwrite layers overrides on top of defaults. Keys set by the caller win.
func mergeOverwrite(defaults, overrides map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
