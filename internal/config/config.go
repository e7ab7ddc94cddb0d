package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the fleetledger server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Notify    NotifyConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime closes pooled connections idle for longer than this.
	ConnMaxIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	MigrationsDir     string
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// NotifyConfig configures the notification gateway. An empty NATSURL selects
// the log-only notifier.
type NotifyConfig struct {
	NATSURL       string
	SubjectPrefix string
}

type CacheConfig struct {
	L1MaxBytes int64
	SummaryTTL time.Duration
}

type RateLimitConfig struct {
	PerMinute int
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     envInt("FLEETLEDGER_PORT", 8080),
			Env:      envString("FLEETLEDGER_ENV", "development"),
			LogLevel: strings.ToLower(envString("LOG_LEVEL", "info")),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:   envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime:   envDuration("DATABASE_CONN_MAX_IDLE_TIME", 2*time.Minute),
			HealthCheckPeriod: envDuration("DATABASE_HEALTH_CHECK_PERIOD", 30*time.Second),
			MigrationsDir:     envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			JWTIssuer: envString("JWT_ISSUER", "fleetledger"),
		},
		Notify: NotifyConfig{
			NATSURL:       os.Getenv("NATS_URL"),
			SubjectPrefix: envString("NOTIFY_SUBJECT_PREFIX", "fleetledger"),
		},
		Cache: CacheConfig{
			L1MaxBytes: int64(envInt("CACHE_L1_MAX_BYTES", 16<<20)),
			SummaryTTL: envDuration("SUMMARY_CACHE_TTL", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			PerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  envString("OTEL_SERVICE_NAME", "fleetledger"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("DATABASE_MAX_OPEN_CONNS must be positive, got %d", c.Database.MaxOpenConns)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("DATABASE_MAX_IDLE_CONNS (%d) must not exceed DATABASE_MAX_OPEN_CONNS (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.Auth.JWTSecret))
	}

	if c.Notify.NATSURL != "" && !strings.HasPrefix(c.Notify.NATSURL, "nats://") && !strings.HasPrefix(c.Notify.NATSURL, "tls://") {
		return fmt.Errorf("NATS_URL must start with nats:// or tls://, got %q", c.Notify.NATSURL)
	}

	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimit.PerMinute)
	}

	if c.Cache.L1MaxBytes <= 0 {
		return fmt.Errorf("CACHE_L1_MAX_BYTES must be positive, got %d", c.Cache.L1MaxBytes)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
