package domain

import "time"

type PermissionID string

// SubscriberPermission authorizes a subscriber to view a publisher while the publisher is live.
// StreamSession is resolved at read time and never persisted.
type SubscriberPermission struct {
	ID            PermissionID   `json:"id" db:"id"`
	SubscriberID  UserID         `json:"subscriberId" db:"subscriber_id"`
	PublisherID   UserID         `json:"publisherId" db:"publisher_id"`
	AllowAudio    bool           `json:"allowAudio" db:"allow_audio"`
	AllowVideo    bool           `json:"allowVideo" db:"allow_video"`
	GrantedBy     UserID         `json:"grantedBy,omitempty" db:"granted_by"`
	GrantedAt     time.Time      `json:"grantedAt" db:"granted_at"`
	StreamSession *StreamSession `json:"streamSession,omitempty" db:"-"`
}

// IsLive reports whether the grantor currently has an active session attached.
func (p *SubscriberPermission) IsLive() bool {
	return p.StreamSession != nil && p.StreamSession.IsActive
}

// Clone copies the permission, including any attached session.
func (p *SubscriberPermission) Clone() *SubscriberPermission {
	if p == nil {
		return nil
	}
	c := *p
	c.StreamSession = p.StreamSession.Clone()
	return &c
}

// Stored returns a copy without the read-time session join.
func (p *SubscriberPermission) Stored() *SubscriberPermission {
	c := *p
	c.StreamSession = nil
	return &c
}
