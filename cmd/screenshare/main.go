package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"screenshare/internal/core/domain"
	"screenshare/internal/core/ports"
	"screenshare/internal/core/services"
	httphandlers "screenshare/internal/handlers/http"
	"screenshare/internal/infrastructure/conference"
	"screenshare/internal/infrastructure/distributed"
	"screenshare/internal/infrastructure/middleware"
	"screenshare/internal/infrastructure/monitoring"
	"screenshare/internal/infrastructure/repositories"
	"screenshare/pkg/config"
	"screenshare/pkg/logger"
	"screenshare/pkg/tracing"
	"screenshare/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/screenshare/config.yaml",
	"config.yaml",
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	mintToken := flag.String("mint-token", "", "print an API access token for user_id:username:role and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	// Identities come from an upstream identity provider; operators mint tokens for tooling here.
	if *mintToken != "" {
		token, err := mint(authService, *mintToken)
		if err != nil {
			log.Fatalw("failed to mint access token", "error", err)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, authService, zapLogger); err != nil {
		log.Fatalw("server failed", "error", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	for _, p := range configPaths {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.Load("")
}

func mint(auth ports.AuthService, spec string) (string, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("expected user_id:username:role, got %q", spec)
	}
	role := domain.UserRole(parts[2])
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", parts[2])
	}
	return auth.GenerateToken(domain.UserID(parts[0]), parts[1], role)
}

func run(cfg *config.Config, authService ports.AuthService, zapLogger *zap.Logger) error {
	log := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("failed to flush traces", "error", err)
		}
	}()

	repoFactory, err := repositories.NewRepositoryFactory(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	defer func() {
		if err := repoFactory.Close(); err != nil {
			log.Errorw("error closing repository factory", "error", err)
		}
	}()

	var metrics ports.Metrics = ports.NopMetrics{}
	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
		metrics = collector
	}

	hub := distributed.NewHub(log)
	var (
		eventPublisher  ports.EventPublisher  = hub
		eventSubscriber ports.EventSubscriber = hub
	)
	if client := repoFactory.RedisClient(); client != nil {
		bus := distributed.NewEventBus(client, hub, utils.GenerateID("instance"), log)
		eventPublisher, eventSubscriber = bus, bus
		go func() {
			if err := bus.Run(ctx, nil); err != nil {
				log.Errorw("session event relay stopped", "error", err)
			}
		}()
	}

	sessionService := services.NewSessionService(
		repoFactory.SessionRepository(),
		repoFactory.Locker(),
		eventPublisher,
		metrics,
		log,
		cfg.Streams.DefaultTitle,
	)
	permissionService := services.NewPermissionService(
		repoFactory.PermissionRepository(),
		repoFactory.SessionRepository(),
		metrics,
		log,
		cfg.Streams.MaxConcurrency,
	)
	tokenService := services.NewTokenService(services.TokenConfig{
		AppID:         cfg.Conference.AppID,
		KeyID:         cfg.Conference.KeyID,
		PrivateKey:    cfg.Conference.PrivateKey,
		Audience:      cfg.Conference.Audience,
		Issuer:        cfg.Conference.Issuer,
		TTL:           cfg.Conference.TokenTTL,
		NotBeforeSkew: cfg.Conference.NotBeforeSkew,
	}, nil, metrics, log)
	if !cfg.HasSigningMaterial() {
		log.Warnw("conference signing configuration is incomplete, token requests will fail",
			"has_app_id", cfg.Conference.AppID != "",
			"has_key_id", cfg.Conference.KeyID != "",
			"has_private_key", cfg.Conference.PrivateKey != "",
		)
	} else {
		log.Infow("conference signing configured", "app_id", cfg.Conference.AppID, "key_id", utils.MaskSensitive(cfg.Conference.KeyID, 24))
	}

	healthChecker := monitoring.NewHealthChecker(log)
	healthChecker.AddPingCheck("storage", repoFactory, 2*time.Second)
	if repoFactory.Driver() != config.StorageMemory {
		healthChecker.AddBreakerCheck("storage_breaker", repoFactory.BreakerStats)
	}
	healthChecker.StartBackgroundChecks(ctx, 30*time.Second)

	bridgeCfg := conference.DefaultBridgeConfig()
	if size := cfg.RateLimiting.WebSocket.MaxMessageSizeBytes; size > 0 {
		bridgeCfg.MaxMessageSize = size
	}
	realtimeHandler := httphandlers.NewRealtimeHandler(
		sessionService,
		permissionService,
		tokenService,
		eventSubscriber,
		metrics,
		httphandlers.RealtimeConfig{
			Conference: conference.Config{
				Domain:         cfg.Conference.Domain,
				Tenant:         cfg.Conference.Tenant,
				AppName:        cfg.Conference.AppName,
				DefaultJWT:     cfg.Conference.DefaultJWT,
				CommandTimeout: cfg.Conference.CommandTimeout,
			},
			Bridge:         bridgeCfg,
			AllowedOrigins: cfg.Auth.AllowedOrigins,
			PollInterval:   cfg.Streams.PollInterval,
		},
		log,
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.CORSMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)
	if collector != nil {
		router.Use(collector.HTTPMiddleware())
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(collector.Handler()))
		log.Infow("prometheus metrics enabled", "path", cfg.Monitoring.MetricsPath)
	}

	httphandlers.NewHealthHandler(healthChecker, repoFactory.Driver()).SetupRoutes(router)
	httphandlers.NewTokenHandler(tokenService).SetupRoutes(router)

	api := router.Group("/api/v1", middleware.AuthMiddleware(authService))
	httphandlers.NewSessionHandler(sessionService).SetupRoutes(api)
	httphandlers.NewPermissionHandler(permissionService).SetupRoutes(api)
	realtimeHandler.SetupRoutes(router.Group("/ws", middleware.AuthMiddleware(authService)))

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting screenshare server",
			"version", version,
			"address", cfg.Server.Address,
			"storage", repoFactory.Driver(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}
	// Sockets are hijacked and outlive Shutdown; closing them ends any live broadcasts.
	realtimeHandler.Close()

	log.Info("screenshare server stopped")
	return nil
}
