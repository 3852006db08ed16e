package reliability

import (
	"context"
	"errors"
	"time"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/pkg/circuitbreaker"
	"screenshare/pkg/config"
	"screenshare/pkg/retry"
	"screenshare/pkg/tracing"

	"go.uber.org/zap"
)

const (
	entitySession    = "session"
	entityPermission = "permission"
)

// Policy holds the retry and breaker settings shared by a backend's repositories.
type Policy struct {
	Retry   retry.Config
	Breaker circuitbreaker.Config
}

// PolicyFromConfig builds a policy from the reliability section.
func PolicyFromConfig(cfg *config.Config) Policy {
	retryCfg := retry.DefaultConfig()
	retryCfg.Enabled = cfg.Reliability.RetryEnabled
	retryCfg.MaxAttempts = cfg.Reliability.RetryAttempts
	if cfg.Reliability.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.Reliability.RetryDelay
	}
	retryCfg.ShouldRetry = isBackendFailure

	breakerCfg := circuitbreaker.DefaultConfig()
	if cfg.Reliability.BreakerThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.Reliability.BreakerThreshold
	}
	if cfg.Reliability.BreakerTimeout > 0 {
		breakerCfg.Timeout = cfg.Reliability.BreakerTimeout
	}
	breakerCfg.IsFailure = isBackendFailure

	return Policy{Retry: retryCfg, Breaker: breakerCfg}
}

// isBackendFailure separates storage faults from domain outcomes, which neither retry nor trip the breaker.
func isBackendFailure(err error) bool {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPermissionNotFound),
		errors.Is(err, domain.ErrPermissionExists),
		errors.Is(err, circuitbreaker.ErrOpen),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Guard runs repository calls through one circuit breaker. Reads and idempotent writes are also retried.
type Guard struct {
	policy  Policy
	breaker *circuitbreaker.CircuitBreaker
}

func NewGuard(name string, policy Policy, logger *zap.SugaredLogger) *Guard {
	g := &Guard{
		policy:  policy,
		breaker: circuitbreaker.New(policy.Breaker),
	}
	g.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("storage circuit breaker state changed",
			"backend", name,
			"from", from.String(),
			"to", to.String(),
		)
	})
	return g
}

// State exposes the breaker state.
func (g *Guard) State() circuitbreaker.State {
	return g.breaker.GetState()
}

// Stats exposes the breaker counters for readiness checks.
func (g *Guard) Stats() circuitbreaker.Stats {
	return g.breaker.GetStats()
}

func (g *Guard) once(ctx context.Context, op, entity string, fn func(context.Context) error) error {
	ctx, span := tracing.TraceStoreOperation(ctx, op, entity)
	defer span.End()
	defer tracing.MeasureDuration(ctx, time.Now(), op)

	return recordFailure(ctx, g.breaker.Execute(ctx, func() error { return fn(ctx) }))
}

func (g *Guard) retried(ctx context.Context, op, entity string, fn func(context.Context) error) error {
	ctx, span := tracing.TraceStoreOperation(ctx, op, entity)
	defer span.End()
	defer tracing.MeasureDuration(ctx, time.Now(), op)

	return recordFailure(ctx, retry.Retry(ctx, g.policy.Retry, func() error {
		return g.breaker.Execute(ctx, func() error { return fn(ctx) })
	}))
}

func guardedRead[T any](ctx context.Context, g *Guard, op, entity string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, op, entity)
	defer span.End()
	defer tracing.MeasureDuration(ctx, time.Now(), op)

	v, err := retry.Do(ctx, g.policy.Retry, func() (T, error) {
		return circuitbreaker.Run(ctx, g.breaker, func() (T, error) { return fn(ctx) })
	})
	return v, recordFailure(ctx, err)
}

// recordFailure marks the span failed for backend faults only; not-found and conflicts are normal outcomes.
func recordFailure(ctx context.Context, err error) error {
	if err != nil && isBackendFailure(err) {
		tracing.RecordError(ctx, err)
	}
	return err
}

// ResilientSessionRepository wraps a session backend. Create is not retried: a lost reply may have stored the row.
type ResilientSessionRepository struct {
	repo  ports.SessionRepository
	guard *Guard
}

func NewResilientSessionRepository(repo ports.SessionRepository, guard *Guard) ports.SessionRepository {
	return &ResilientSessionRepository{repo: repo, guard: guard}
}

func (r *ResilientSessionRepository) Create(ctx context.Context, session *domain.StreamSession) error {
	return r.guard.once(ctx, "create", entitySession, func(ctx context.Context) error { return r.repo.Create(ctx, session) })
}

func (r *ResilientSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.StreamSession, error) {
	return guardedRead(ctx, r.guard, "get", entitySession, func(ctx context.Context) (*domain.StreamSession, error) { return r.repo.GetByID(ctx, id) })
}

func (r *ResilientSessionRepository) Update(ctx context.Context, session *domain.StreamSession) error {
	return r.guard.retried(ctx, "update", entitySession, func(ctx context.Context) error { return r.repo.Update(ctx, session) })
}

func (r *ResilientSessionRepository) ListActive(ctx context.Context) ([]*domain.StreamSession, error) {
	return guardedRead(ctx, r.guard, "list_active", entitySession, func(ctx context.Context) ([]*domain.StreamSession, error) { return r.repo.ListActive(ctx) })
}

func (r *ResilientSessionRepository) FindActiveByPublisher(ctx context.Context, publisherID domain.UserID) ([]*domain.StreamSession, error) {
	return guardedRead(ctx, r.guard, "find_active", entitySession, func(ctx context.Context) ([]*domain.StreamSession, error) {
		return r.repo.FindActiveByPublisher(ctx, publisherID)
	})
}

// ResilientPermissionRepository wraps a permission backend. Create and Delete are not retried.
type ResilientPermissionRepository struct {
	repo  ports.PermissionRepository
	guard *Guard
}

func NewResilientPermissionRepository(repo ports.PermissionRepository, guard *Guard) ports.PermissionRepository {
	return &ResilientPermissionRepository{repo: repo, guard: guard}
}

func (r *ResilientPermissionRepository) Create(ctx context.Context, permission *domain.SubscriberPermission) error {
	return r.guard.once(ctx, "create", entityPermission, func(ctx context.Context) error { return r.repo.Create(ctx, permission) })
}

func (r *ResilientPermissionRepository) GetByID(ctx context.Context, id domain.PermissionID) (*domain.SubscriberPermission, error) {
	return guardedRead(ctx, r.guard, "get", entityPermission, func(ctx context.Context) (*domain.SubscriberPermission, error) { return r.repo.GetByID(ctx, id) })
}

func (r *ResilientPermissionRepository) Update(ctx context.Context, permission *domain.SubscriberPermission) error {
	return r.guard.retried(ctx, "update", entityPermission, func(ctx context.Context) error { return r.repo.Update(ctx, permission) })
}

func (r *ResilientPermissionRepository) Delete(ctx context.Context, id domain.PermissionID) error {
	return r.guard.once(ctx, "delete", entityPermission, func(ctx context.Context) error { return r.repo.Delete(ctx, id) })
}

func (r *ResilientPermissionRepository) ListBySubscriber(ctx context.Context, subscriberID domain.UserID) ([]*domain.SubscriberPermission, error) {
	return guardedRead(ctx, r.guard, "list_by_subscriber", entityPermission, func(ctx context.Context) ([]*domain.SubscriberPermission, error) {
		return r.repo.ListBySubscriber(ctx, subscriberID)
	})
}
