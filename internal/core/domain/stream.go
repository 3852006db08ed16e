package domain

import (
	"time"
)

type SessionID string

// StreamSession is one broadcast attempt by a publisher. Sessions are soft-closed, never deleted.
type StreamSession struct {
	ID            SessionID  `json:"id" db:"id"`
	PublisherID   UserID     `json:"publisherId" db:"publisher_id"`
	PublisherName string     `json:"publisherName" db:"publisher_name"`
	RoomID        string     `json:"roomId" db:"room_id"`
	IsActive      bool       `json:"isActive" db:"is_active"`
	Title         string     `json:"title" db:"title"`
	Description   string     `json:"description,omitempty" db:"description"`
	GameName      string     `json:"gameName,omitempty" db:"game_name"`
	League        string     `json:"league,omitempty" db:"league"`
	Match         string     `json:"match,omitempty" db:"match"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	EndedAt       *time.Time `json:"endedAt,omitempty" db:"ended_at"`
}

// End marks the session inactive. It reports false when the session was already ended.
func (s *StreamSession) End(at time.Time) bool {
	if !s.IsActive {
		return false
	}
	s.IsActive = false
	s.EndedAt = &at
	return true
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (s *StreamSession) Clone() *StreamSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}
