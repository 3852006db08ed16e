package domain

import "time"

type SessionEventType string

const (
	SessionStarted SessionEventType = "session.started"
	SessionEnded   SessionEventType = "session.ended"
)

// SessionEvent announces a session lifecycle change so stream watchers can refresh early.
type SessionEvent struct {
	Type        SessionEventType `json:"type"`
	SessionID   SessionID        `json:"session_id"`
	PublisherID UserID           `json:"publisher_id"`
	RoomID      string           `json:"room_id"`
	At          time.Time        `json:"at"`
}
