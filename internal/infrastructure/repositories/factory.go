package repositories

import (
	"context"
	"time"

	"screenshare/internal/core/ports"
	"screenshare/internal/infrastructure/reliability"
	"screenshare/internal/infrastructure/repositories/memory"
	pgrepo "screenshare/internal/infrastructure/repositories/postgres"
	redisrepo "screenshare/internal/infrastructure/repositories/redis"
	"screenshare/pkg/circuitbreaker"
	"screenshare/pkg/config"
	"screenshare/pkg/distributed"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	publisherLockPrefix  = "screenshare:lock:"
	publisherLockTTL     = 10 * time.Second
	publisherLockTimeout = 5 * time.Second
)

// RepositoryFactory creates repositories for the configured driver, falling back to memory
// when the backend cannot be reached at startup.
type RepositoryFactory struct {
	driver      string
	redisClient *redis.Client
	db          *sqlx.DB
	guard       *reliability.Guard
	logger      *zap.SugaredLogger

	sessions    ports.SessionRepository
	permissions ports.PermissionRepository
}

// NewRepositoryFactory connects to the configured backend.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		driver: config.StorageMemory,
		logger: logger,
	}

	switch cfg.Storage.Driver {
	case config.StorageRedis:
		client, err := redisrepo.Connect(ctx, redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			break
		}
		factory.driver = config.StorageRedis
		factory.redisClient = client
	case config.StoragePostgres:
		db, err := pgrepo.Connect(ctx, cfg.PostgresDSN(), logger)
		if err != nil {
			logger.Warnw("failed to connect to Postgres, falling back to memory repositories",
				"error", err,
			)
			break
		}
		factory.driver = config.StoragePostgres
		factory.db = db
	}

	factory.guard = reliability.NewGuard(factory.driver, reliability.PolicyFromConfig(cfg), logger)
	factory.sessions, factory.permissions = factory.build()

	logger.Infow("using repositories", "driver", factory.driver)
	return factory, nil
}

func (f *RepositoryFactory) build() (ports.SessionRepository, ports.PermissionRepository) {
	switch {
	case f.redisClient != nil:
		return reliability.NewResilientSessionRepository(redisrepo.NewRedisSessionRepository(f.redisClient), f.guard),
			reliability.NewResilientPermissionRepository(redisrepo.NewRedisPermissionRepository(f.redisClient), f.guard)
	case f.db != nil:
		return reliability.NewResilientSessionRepository(pgrepo.NewPostgresSessionRepository(f.db), f.guard),
			reliability.NewResilientPermissionRepository(pgrepo.NewPostgresPermissionRepository(f.db), f.guard)
	}
	return memory.NewMemorySessionRepository(), memory.NewMemoryPermissionRepository()
}

// Driver reports the backend actually in use after any fallback.
func (f *RepositoryFactory) Driver() string {
	return f.driver
}

func (f *RepositoryFactory) SessionRepository() ports.SessionRepository {
	return f.sessions
}

func (f *RepositoryFactory) PermissionRepository() ports.PermissionRepository {
	return f.permissions
}

// Locker returns a Redis lock manager when Redis is in use so every instance
// serializes the same publisher; otherwise an in-process locker.
func (f *RepositoryFactory) Locker() ports.Locker {
	if f.redisClient != nil {
		return distributed.NewLockManager(f.redisClient, publisherLockPrefix, publisherLockTTL, publisherLockTimeout, f.logger)
	}
	return distributed.NewLocalLocker()
}

// BreakerStats reports the storage circuit breaker for readiness checks.
func (f *RepositoryFactory) BreakerStats() circuitbreaker.Stats {
	return f.guard.Stats()
}

// RedisClient is nil unless the Redis driver is active.
func (f *RepositoryFactory) RedisClient() redis.UniversalClient {
	if f.redisClient == nil {
		return nil
	}
	return f.redisClient
}

// Close closes the backend connection if one was opened.
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	if f.db != nil {
		return f.db.Close()
	}
	return nil
}

// Ping checks backend reachability. Memory storage is always reachable.
func (f *RepositoryFactory) Ping(ctx context.Context) error {
	switch {
	case f.redisClient != nil:
		return f.redisClient.Ping(ctx).Err()
	case f.db != nil:
		return f.db.PingContext(ctx)
	}
	return nil
}
