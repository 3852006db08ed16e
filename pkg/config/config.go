package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Storage drivers
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgres"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Conference struct {
		Domain         string        `yaml:"domain"`
		Tenant         string        `yaml:"tenant"`
		AppID          string        `yaml:"app_id"`
		KeyID          string        `yaml:"key_id"`
		PrivateKey     string        `yaml:"private_key"`
		Audience       string        `yaml:"audience"`
		Issuer         string        `yaml:"issuer"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
		NotBeforeSkew  time.Duration `yaml:"not_before_skew"`
		AppName        string        `yaml:"app_name"`
		DefaultJWT     string        `yaml:"default_jwt"`
		CommandTimeout time.Duration `yaml:"command_timeout"`
	} `yaml:"conference"`

	Streams struct {
		PollInterval   time.Duration `yaml:"poll_interval"`
		MaxConcurrency int           `yaml:"max_concurrency"`
		DefaultTitle   string        `yaml:"default_title"`
	} `yaml:"streams"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		MetricsPath       string `yaml:"metrics_path"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			MaxMessageSizeBytes int64 `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`

	Reliability struct {
		RetryEnabled     bool          `yaml:"retry_enabled"`
		RetryAttempts    int           `yaml:"retry_attempts"`
		RetryDelay       time.Duration `yaml:"retry_delay"`
		BreakerThreshold int           `yaml:"breaker_threshold"`
		BreakerTimeout   time.Duration `yaml:"breaker_timeout"`
	} `yaml:"reliability"`
}

// Validate checks that configuration values are within acceptable ranges.
// Conference signing material is deliberately not required here: a missing key
// fails individual token requests, not process startup.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Storage
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when storage.driver=redis")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when storage.driver=redis")
		}
	case StoragePostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return fmt.Errorf("postgres.host and postgres.database must be set when storage.driver=postgres")
		}
		if c.Postgres.Port <= 0 {
			return fmt.Errorf("postgres.port must be > 0 when storage.driver=postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, redis, postgres (got %q)", c.Storage.Driver)
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	// Conference
	if c.Conference.Domain == "" {
		return fmt.Errorf("conference.domain must not be empty")
	}
	if c.Conference.TokenTTL <= 0 {
		return fmt.Errorf("conference.token_ttl must be > 0")
	}
	if c.Conference.NotBeforeSkew < 0 {
		return fmt.Errorf("conference.not_before_skew must be >= 0")
	}
	if c.Conference.CommandTimeout <= 0 {
		return fmt.Errorf("conference.command_timeout must be > 0")
	}

	// Streams
	if c.Streams.PollInterval <= 0 {
		return fmt.Errorf("streams.poll_interval must be > 0")
	}
	if c.Streams.MaxConcurrency <= 0 {
		return fmt.Errorf("streams.max_concurrency must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}
	if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0")
	}

	// Reliability
	if c.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("reliability.retry_attempts must be >= 0")
	}
	if c.Reliability.BreakerThreshold <= 0 {
		return fmt.Errorf("reliability.breaker_threshold must be > 0")
	}
	if c.Reliability.BreakerTimeout <= 0 {
		return fmt.Errorf("reliability.breaker_timeout must be > 0")
	}

	return nil
}

// HasSigningMaterial reports whether every value required to sign conference tokens is present.
func (c *Config) HasSigningMaterial() bool {
	return c.Conference.AppID != "" && c.Conference.KeyID != "" && c.Conference.PrivateKey != ""
}

// PostgresDSN renders the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.Postgres.User, c.Postgres.Password, c.Postgres.Database, c.Postgres.Host, c.Postgres.Port, c.Postgres.SSLMode)
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Storage.Driver = StorageMemory

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Port = 5432
	cfg.Postgres.User = "screenshare"
	cfg.Postgres.Database = "screenshare"
	cfg.Postgres.SSLMode = "disable"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Conference.Domain = "8x8.vc"
	cfg.Conference.Audience = "jitsi"
	cfg.Conference.Issuer = "chat"
	cfg.Conference.TokenTTL = 8 * time.Hour
	cfg.Conference.NotBeforeSkew = 10 * time.Second
	cfg.Conference.AppName = "Screen Share"
	cfg.Conference.CommandTimeout = 10 * time.Second

	cfg.Streams.PollInterval = 5 * time.Second
	cfg.Streams.MaxConcurrency = 8
	cfg.Streams.DefaultTitle = "Untitled Stream"

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "screenshare"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	cfg.Reliability.RetryEnabled = true
	cfg.Reliability.RetryAttempts = 2
	cfg.Reliability.RetryDelay = 100 * time.Millisecond
	cfg.Reliability.BreakerThreshold = 5
	cfg.Reliability.BreakerTimeout = 30 * time.Second

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("SCREENSHARE_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("SCREENSHARE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if driver := os.Getenv("SCREENSHARE_STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if addr := os.Getenv("SCREENSHARE_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if secret := os.Getenv("SCREENSHARE_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}

	// Conference signing material usually lives in the environment, not in the file.
	if appID := os.Getenv("JAAS_APP_ID"); appID != "" {
		c.Conference.AppID = appID
		if c.Conference.Tenant == "" {
			c.Conference.Tenant = appID
		}
	}
	if keyID := os.Getenv("JAAS_API_KEY"); keyID != "" {
		c.Conference.KeyID = keyID
	}
	if key := os.Getenv("JAAS_PRIVATE_KEY"); key != "" {
		c.Conference.PrivateKey = key
	}
	if origins := os.Getenv("SCREENSHARE_ALLOWED_ORIGINS"); origins != "" {
		c.Auth.AllowedOrigins = strings.Split(origins, ",")
	}
}
