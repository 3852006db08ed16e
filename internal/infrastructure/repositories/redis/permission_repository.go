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

// RedisPermissionRepository enforces one grant per subscriber and publisher with a SETNX pair key.
type RedisPermissionRepository struct {
	client redis.UniversalClient
}

func NewRedisPermissionRepository(client redis.UniversalClient) ports.PermissionRepository {
	return &RedisPermissionRepository{client: client}
}

func (r *RedisPermissionRepository) Create(ctx context.Context, permission *domain.SubscriberPermission) error {
	if permission.ID == "" {
		permission.ID = domain.PermissionID(uuid.NewString())
	}
	if permission.GrantedAt.IsZero() {
		permission.GrantedAt = utils.Now()
	}

	data, err := json.Marshal(permission.Stored())
	if err != nil {
		return fmt.Errorf("failed to marshal permission: %w", err)
	}

	pair := permissionPairKey(permission.SubscriberID, permission.PublisherID)
	claimed, err := r.client.SetNX(ctx, pair, string(permission.ID), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve permission pair: %w", err)
	}
	if !claimed {
		return domain.ErrPermissionExists
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, permissionKey(permission.ID), data, 0)
		pipe.SAdd(ctx, subscriberPermissionsKey(permission.SubscriberID), string(permission.ID))
		return nil
	})
	if err != nil {
		r.client.Del(context.WithoutCancel(ctx), pair)
		return fmt.Errorf("failed to store permission in Redis: %w", err)
	}
	return nil
}

func (r *RedisPermissionRepository) GetByID(ctx context.Context, id domain.PermissionID) (*domain.SubscriberPermission, error) {
	data, err := r.client.Get(ctx, permissionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrPermissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission from Redis: %w", err)
	}
	return decodePermission(data)
}

// Update rewrites the flags of an existing permission. Subscriber and publisher are immutable.
func (r *RedisPermissionRepository) Update(ctx context.Context, permission *domain.SubscriberPermission) error {
	existing, err := r.GetByID(ctx, permission.ID)
	if err != nil {
		return err
	}
	existing.AllowAudio = permission.AllowAudio
	existing.AllowVideo = permission.AllowVideo

	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to marshal permission: %w", err)
	}
	if err := r.client.Set(ctx, permissionKey(permission.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update permission in Redis: %w", err)
	}
	return nil
}

func (r *RedisPermissionRepository) Delete(ctx context.Context, id domain.PermissionID) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, permissionKey(id))
		pipe.SRem(ctx, subscriberPermissionsKey(existing.SubscriberID), string(id))
		pipe.Del(ctx, permissionPairKey(existing.SubscriberID, existing.PublisherID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete permission from Redis: %w", err)
	}
	return nil
}

func (r *RedisPermissionRepository) ListBySubscriber(ctx context.Context, subscriberID domain.UserID) ([]*domain.SubscriberPermission, error) {
	ids, err := r.client.SMembers(ctx, subscriberPermissionsKey(subscriberID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions from Redis: %w", err)
	}

	permissions := make([]*domain.SubscriberPermission, 0, len(ids))
	if len(ids) == 0 {
		return permissions, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = permissionKey(domain.PermissionID(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions from Redis: %w", err)
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		permission, err := decodePermission([]byte(raw))
		if err != nil {
			return nil, err
		}
		permissions = append(permissions, permission)
	}
	return permissions, nil
}

func decodePermission(data []byte) (*domain.SubscriberPermission, error) {
	var permission domain.SubscriberPermission
	if err := json.Unmarshal(data, &permission); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permission: %w", err)
	}
	permission.StreamSession = nil
	return &permission, nil
}
