package ports

import (
	"context"
	"time"

	"screenshare/internal/core/domain"
)

type CreateSessionParams struct {
	PublisherID   domain.UserID `json:"publisherId"`
	PublisherName string        `json:"publisherName"`
	RoomID        string        `json:"roomId,omitempty"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	GameName      string        `json:"gameName,omitempty"`
	League        string        `json:"league,omitempty"`
	Match         string        `json:"match,omitempty"`
}

type SessionService interface {
	StartSession(ctx context.Context, params CreateSessionParams) (*domain.StreamSession, error)
	EndSession(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error)
	GetSession(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error)
	// GetActiveSession returns nil without error when the publisher is not live.
	GetActiveSession(ctx context.Context, publisherID domain.UserID) (*domain.StreamSession, error)
	ListActiveSessions(ctx context.Context) ([]*domain.StreamSession, error)
}

type GrantPermissionParams struct {
	SubscriberID domain.UserID `json:"subscriberId"`
	PublisherID  domain.UserID `json:"publisherId"`
	AllowAudio   bool          `json:"allowAudio"`
	AllowVideo   bool          `json:"allowVideo"`
	GrantedBy    domain.UserID `json:"-"`
}

type UpdatePermissionParams struct {
	AllowAudio *bool `json:"allowAudio,omitempty"`
	AllowVideo *bool `json:"allowVideo,omitempty"`
}

type PermissionService interface {
	// GetAvailableStreams lists the subscriber's permissions, each joined with the grantor's
	// active session when there is one. It never writes.
	GetAvailableStreams(ctx context.Context, subscriberID domain.UserID) ([]*domain.SubscriberPermission, error)
	GetPermission(ctx context.Context, id domain.PermissionID) (*domain.SubscriberPermission, error)
	ListPermissions(ctx context.Context, subscriberID domain.UserID) ([]*domain.SubscriberPermission, error)
	GrantPermission(ctx context.Context, params GrantPermissionParams) (*domain.SubscriberPermission, error)
	UpdatePermission(ctx context.Context, id domain.PermissionID, params UpdatePermissionParams) (*domain.SubscriberPermission, error)
	RevokePermission(ctx context.Context, id domain.PermissionID) error
}

// TokenIssuer mints signed conference access tokens.
type TokenIssuer interface {
	IssueToken(ctx context.Context, roomName string, user *domain.UserIdentity) (string, error)
}

// AccessClaims identify the caller of the HTTP and WebSocket API.
type AccessClaims struct {
	UserID   domain.UserID
	Username string
	Role     domain.UserRole
}

type AuthService interface {
	GenerateToken(userID domain.UserID, username string, role domain.UserRole) (string, error)
	ValidateToken(token string) (*AccessClaims, error)
}

// EventPublisher fans session lifecycle events out to interested watchers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.SessionEvent) error
}

// EventSubscriber delivers session events until cancel is called.
type EventSubscriber interface {
	Subscribe() (events <-chan domain.SessionEvent, cancel func())
}

// Metrics is the observability surface the services report into.
type Metrics interface {
	SessionStarted()
	SessionEnded()
	TokenIssued(outcome string)
	ObserveStreamQuery(duration time.Duration, err error)
	ConferenceJoined(role string)
	ConferenceLeft(role string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) SessionStarted()                         {}
func (NopMetrics) SessionEnded()                           {}
func (NopMetrics) TokenIssued(string)                      {}
func (NopMetrics) ObserveStreamQuery(time.Duration, error) {}
func (NopMetrics) ConferenceJoined(string)                 {}
func (NopMetrics) ConferenceLeft(string)                   {}
