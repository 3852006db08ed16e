package ports

import (
	"context"

	"screenshare/internal/core/domain"
)

// SessionRepository persists stream sessions. Create assigns ID and CreatedAt when they are empty.
// Implementations return copies; callers may mutate results freely.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.StreamSession) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error)
	Update(ctx context.Context, session *domain.StreamSession) error
	ListActive(ctx context.Context) ([]*domain.StreamSession, error)
	FindActiveByPublisher(ctx context.Context, publisherID domain.UserID) ([]*domain.StreamSession, error)
}

// PermissionRepository persists subscriber permissions without the session join.
type PermissionRepository interface {
	Create(ctx context.Context, permission *domain.SubscriberPermission) error
	GetByID(ctx context.Context, id domain.PermissionID) (*domain.SubscriberPermission, error)
	Update(ctx context.Context, permission *domain.SubscriberPermission) error
	Delete(ctx context.Context, id domain.PermissionID) error
	ListBySubscriber(ctx context.Context, subscriberID domain.UserID) ([]*domain.SubscriberPermission, error)
}

// Pinger is implemented by backends that can report their own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Locker serializes work per key across whatever scope the implementation covers.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
