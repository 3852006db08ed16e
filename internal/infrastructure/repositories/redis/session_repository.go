package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisSessionRepository stores sessions as JSON values indexed by two sets:
// every active session and the active sessions of each publisher.
type RedisSessionRepository struct {
	client redis.UniversalClient
}

func NewRedisSessionRepository(client redis.UniversalClient) ports.SessionRepository {
	return &RedisSessionRepository{client: client}
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.StreamSession) error {
	if session.ID == "" {
		session.ID = domain.SessionID(uuid.NewString())
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = utils.Now()
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	created, err := r.client.SetNX(ctx, sessionKey(session.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	if !created {
		return fmt.Errorf("session already exists: %s", session.ID)
	}

	if !session.IsActive {
		return nil
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, activeSessionsKey(), string(session.ID))
		pipe.SAdd(ctx, publisherActiveKey(session.PublisherID), string(session.ID))
		return nil
	})
	if err != nil {
		// An unindexed active record would read as live by id only. Drop it so a failed
		// create leaves nothing behind.
		cleanup := context.WithoutCancel(ctx)
		r.client.TxPipelined(cleanup, func(pipe redis.Pipeliner) error {
			pipe.Del(cleanup, sessionKey(session.ID))
			pipe.SRem(cleanup, activeSessionsKey(), string(session.ID))
			pipe.SRem(cleanup, publisherActiveKey(session.PublisherID), string(session.ID))
			return nil
		})
		return fmt.Errorf("failed to index active session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.StreamSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) Update(ctx context.Context, session *domain.StreamSession) error {
	existing, err := r.GetByID(ctx, session.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// The publisher index is keyed by the stored owner, which never changes.
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.ID), data, 0)
		if session.IsActive {
			pipe.SAdd(ctx, activeSessionsKey(), string(session.ID))
			pipe.SAdd(ctx, publisherActiveKey(existing.PublisherID), string(session.ID))
		} else {
			pipe.SRem(ctx, activeSessionsKey(), string(session.ID))
			pipe.SRem(ctx, publisherActiveKey(existing.PublisherID), string(session.ID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update session in Redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) ListActive(ctx context.Context) ([]*domain.StreamSession, error) {
	return r.loadActive(ctx, activeSessionsKey())
}

func (r *RedisSessionRepository) FindActiveByPublisher(ctx context.Context, publisherID domain.UserID) ([]*domain.StreamSession, error) {
	return r.loadActive(ctx, publisherActiveKey(publisherID))
}

func (r *RedisSessionRepository) loadActive(ctx context.Context, indexKey string) ([]*domain.StreamSession, error) {
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active sessions from Redis: %w", err)
	}

	sessions := make([]*domain.StreamSession, 0, len(ids))
	if len(ids) == 0 {
		return sessions, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(domain.SessionID(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions from Redis: %w", err)
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry outlived its record.
			continue
		}
		var session domain.StreamSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if session.IsActive {
			sessions = append(sessions, &session)
		}
	}
	return sessions, nil
}
