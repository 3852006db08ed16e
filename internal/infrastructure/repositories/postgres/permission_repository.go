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

const permissionsTable = "subscriber_permissions"

var permissionColumns = []string{
	"id", "subscriber_id", "publisher_id", "allow_audio", "allow_video", "granted_by", "granted_at",
}

type PostgresPermissionRepository struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewPostgresPermissionRepository(db *sqlx.DB) ports.PermissionRepository {
	return &PostgresPermissionRepository{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *PostgresPermissionRepository) Create(ctx context.Context, permission *domain.SubscriberPermission) error {
	if permission.ID == "" {
		permission.ID = domain.PermissionID(uuid.NewString())
	}
	if permission.GrantedAt.IsZero() {
		permission.GrantedAt = utils.Now()
	}

	query, args, err := r.qb.Insert(permissionsTable).
		Columns(permissionColumns...).
		Values(
			permission.ID, permission.SubscriberID, permission.PublisherID,
			permission.AllowAudio, permission.AllowVideo, permission.GrantedBy, permission.GrantedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPermissionExists
		}
		return fmt.Errorf("failed to insert permission: %w", err)
	}
	return nil
}

func (r *PostgresPermissionRepository) GetByID(ctx context.Context, id domain.PermissionID) (*domain.SubscriberPermission, error) {
	query, args, err := r.qb.Select(permissionColumns...).
		From(permissionsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %w", err)
	}

	var permission domain.SubscriberPermission
	if err := r.db.GetContext(ctx, &permission, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &permission, nil
}

// Update rewrites the flags of an existing permission. Subscriber and publisher are immutable.
func (r *PostgresPermissionRepository) Update(ctx context.Context, permission *domain.SubscriberPermission) error {
	query, args, err := r.qb.Update(permissionsTable).
		Set("allow_audio", permission.AllowAudio).
		Set("allow_video", permission.AllowVideo).
		Where(sq.Eq{"id": permission.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %w", err)
	}
	return r.execOne(ctx, query, args, "update")
}

func (r *PostgresPermissionRepository) Delete(ctx context.Context, id domain.PermissionID) error {
	query, args, err := r.qb.Delete(permissionsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %w", err)
	}
	return r.execOne(ctx, query, args, "delete")
}

func (r *PostgresPermissionRepository) ListBySubscriber(ctx context.Context, subscriberID domain.UserID) ([]*domain.SubscriberPermission, error) {
	query, args, err := r.qb.Select(permissionColumns...).
		From(permissionsTable).
		Where(sq.Eq{"subscriber_id": subscriberID}).
		OrderBy("granted_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %w", err)
	}

	permissions := make([]*domain.SubscriberPermission, 0)
	if err := r.db.SelectContext(ctx, &permissions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return permissions, nil
}

func (r *PostgresPermissionRepository) execOne(ctx context.Context, query string, args []interface{}, op string) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s permission: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrPermissionNotFound
	}
	return nil
}
