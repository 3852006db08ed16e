package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/pkg/utils"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const sessionsTable = "stream_sessions"

var sessionColumns = []string{
	"id", "publisher_id", "publisher_name", "room_id", "is_active", "title",
	"description", "game_name", "league", "match", "created_at", "ended_at",
}

type PostgresSessionRepository struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewPostgresSessionRepository(db *sqlx.DB) ports.SessionRepository {
	return &PostgresSessionRepository{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, session *domain.StreamSession) error {
	if session.ID == "" {
		session.ID = domain.SessionID(uuid.NewString())
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = utils.Now()
	}

	query, args, err := r.qb.Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			session.ID, session.PublisherID, session.PublisherName, session.RoomID, session.IsActive, session.Title,
			session.Description, session.GameName, session.League, session.Match, session.CreatedAt, session.EndedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("session already exists: %s", session.ID)
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	query, args, err := r.qb.Select(sessionColumns...).
		From(sessionsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %w", err)
	}

	var session domain.StreamSession
	if err := r.db.GetContext(ctx, &session, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// Update rewrites the mutable columns. Publisher and room are fixed at creation.
func (r *PostgresSessionRepository) Update(ctx context.Context, session *domain.StreamSession) error {
	query, args, err := r.qb.Update(sessionsTable).
		SetMap(map[string]interface{}{
			"publisher_name": session.PublisherName,
			"is_active":      session.IsActive,
			"title":          session.Title,
			"description":    session.Description,
			"game_name":      session.GameName,
			"league":         session.League,
			"match":          session.Match,
			"ended_at":       session.EndedAt,
		}).
		Where(sq.Eq{"id": session.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *PostgresSessionRepository) ListActive(ctx context.Context) ([]*domain.StreamSession, error) {
	return r.selectActive(ctx, sq.Eq{"is_active": true})
}

func (r *PostgresSessionRepository) FindActiveByPublisher(ctx context.Context, publisherID domain.UserID) ([]*domain.StreamSession, error) {
	return r.selectActive(ctx, sq.Eq{"is_active": true, "publisher_id": publisherID})
}

func (r *PostgresSessionRepository) selectActive(ctx context.Context, where sq.Eq) ([]*domain.StreamSession, error) {
	query, args, err := r.qb.Select(sessionColumns...).
		From(sessionsTable).
		Where(where).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %w", err)
	}

	sessions := make([]*domain.StreamSession, 0)
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}
