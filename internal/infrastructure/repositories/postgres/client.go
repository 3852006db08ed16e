package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS stream_sessions (
		id             TEXT PRIMARY KEY,
		publisher_id   TEXT NOT NULL,
		publisher_name TEXT NOT NULL DEFAULT '',
		room_id        TEXT NOT NULL,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		game_name      TEXT NOT NULL DEFAULT '',
		league         TEXT NOT NULL DEFAULT '',
		match          TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL,
		ended_at       TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS stream_sessions_active_publisher_idx
		ON stream_sessions (publisher_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS subscriber_permissions (
		id            TEXT PRIMARY KEY,
		subscriber_id TEXT NOT NULL,
		publisher_id  TEXT NOT NULL,
		allow_audio   BOOLEAN NOT NULL DEFAULT FALSE,
		allow_video   BOOLEAN NOT NULL DEFAULT FALSE,
		granted_by    TEXT NOT NULL DEFAULT '',
		granted_at    TIMESTAMPTZ NOT NULL,
		UNIQUE (subscriber_id, publisher_id)
	)`,
}

// Connect opens the pool and applies the schema.
func Connect(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if logger != nil {
		logger.Infow("connected to Postgres", "tables", len(schema))
	}
	return db, nil
}

func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
