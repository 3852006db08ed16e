package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"screenshare/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = keyPrefix + "schema:version"
	currentSchemaVersion = 2
)

type Migration struct {
	Version int
	Up      func(ctx context.Context, client redis.UniversalClient) error
}

// Migrate runs every migration newer than the stored schema version.
func Migrate(ctx context.Context, client redis.UniversalClient, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Infow("schema is up to date",
				"current_version", currentVersion,
				"target_version", currentSchemaVersion,
			)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", migration.Version)
		}
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("all migrations completed", "final_version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client redis.UniversalClient) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client redis.UniversalClient, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// Version 1 only records the schema version.
			Version: 1,
			Up:      func(context.Context, redis.UniversalClient) error { return nil },
		},
		{
			// Version 2 adds the per-publisher active index; rebuild it from stored sessions.
			Version: 2,
			Up:      rebuildPublisherIndex,
		},
	}
}

func rebuildPublisherIndex(ctx context.Context, client redis.UniversalClient) error {
	iter := client.Scan(ctx, 0, keyPrefix+"session:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if key == activeSessionsKey() || strings.Count(strings.TrimPrefix(key, keyPrefix), ":") != 1 {
			continue
		}

		data, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return err
		}

		var session domain.StreamSession
		if err := json.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if !session.IsActive {
			continue
		}
		if err := client.SAdd(ctx, publisherActiveKey(session.PublisherID), string(session.ID)).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
