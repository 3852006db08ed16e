package domain

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrPermissionExists   = errors.New("permission already granted for this subscriber and publisher")
	ErrPublisherNotLive   = errors.New("publisher is not live")
	ErrAudioNotPermitted  = errors.New("audio is not permitted for this subscriber")
	ErrNotSessionOwner    = errors.New("session belongs to another publisher")
)
