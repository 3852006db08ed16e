package memory

import (
	"context"
	"fmt"
	"sync"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/pkg/utils"

	"github.com/google/uuid"
)

type MemorySessionRepository struct {
	sessions map[domain.SessionID]*domain.StreamSession
	mu       sync.RWMutex
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]*domain.StreamSession),
	}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session *domain.StreamSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.ID == "" {
		session.ID = domain.SessionID(uuid.NewString())
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = utils.Now()
	}
	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("session already exists: %s", session.ID)
	}

	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *MemorySessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (r *MemorySessionRepository) Update(ctx context.Context, session *domain.StreamSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; !exists {
		return domain.ErrSessionNotFound
	}
	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *MemorySessionRepository) ListActive(ctx context.Context) ([]*domain.StreamSession, error) {
	return r.filter(func(s *domain.StreamSession) bool { return s.IsActive }), nil
}

func (r *MemorySessionRepository) FindActiveByPublisher(ctx context.Context, publisherID domain.UserID) ([]*domain.StreamSession, error) {
	return r.filter(func(s *domain.StreamSession) bool {
		return s.IsActive && s.PublisherID == publisherID
	}), nil
}

func (r *MemorySessionRepository) filter(keep func(*domain.StreamSession) bool) []*domain.StreamSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.StreamSession, 0)
	for _, session := range r.sessions {
		if keep(session) {
			result = append(result, session.Clone())
		}
	}
	return result
}
