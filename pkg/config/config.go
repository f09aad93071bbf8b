package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/federate/pkg/middleware"
	"github.com/platinummonkey/federate/pkg/observability"
	"github.com/platinummonkey/federate/pkg/session"
	"github.com/platinummonkey/federate/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration. An empty URL keeps sessions in Postgres.
	Redis RedisConfig

	// Session configuration
	Session SessionConfig

	// Federation configuration
	Federation FederationConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL                 string
	ReplicaURLs         []string
	MaxConns            int
	MinConns            int
	Timeout             time.Duration
	MaxLifetime         time.Duration
	MaxIdleTime         time.Duration
	HealthCheckInterval time.Duration
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// SessionConfig holds session issuance settings
type SessionConfig struct {
	TTL             time.Duration
	CleanupSchedule string // cron spec for the Postgres expired-session sweep
	CookieSecure    bool
	CookieDomain    string
}

// FederationConfig holds identity provider settings
type FederationConfig struct {
	ProvidersFile    string
	IdPTimeout       time.Duration
	DefaultRoleTTL   time.Duration
	LoginRateLimit   int // Login attempts per client per LoginRateWindow, 0 disables
	LoginRateWindow  time.Duration
	LoginBurst       int
	DiscoveryTimeout time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Session:       loadSessionConfig(),
		Federation:    loadFederationConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FEDERATE_HOST", "0.0.0.0"),
		Port:            getEnv("FEDERATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FEDERATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FEDERATE_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("FEDERATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FEDERATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("FEDERATE_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("FEDERATE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:                 getEnv("FEDERATE_POSTGRES_URL", ""),
		ReplicaURLs:         postgres.ParseReplicaURLs(getEnv("FEDERATE_POSTGRES_REPLICA_URLS", "")),
		MaxConns:            getEnvInt("FEDERATE_POSTGRES_MAX_CONNS", 20),
		MinConns:            getEnvInt("FEDERATE_POSTGRES_MIN_CONNS", 5),
		Timeout:             getEnvDuration("FEDERATE_POSTGRES_TIMEOUT", 10*time.Second),
		MaxLifetime:         getEnvDuration("FEDERATE_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime:         getEnvDuration("FEDERATE_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
		HealthCheckInterval: getEnvDuration("FEDERATE_POSTGRES_HEALTH_INTERVAL", 30*time.Second),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("FEDERATE_REDIS_URL", ""),
		Password: getEnv("FEDERATE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("FEDERATE_REDIS_DB", 0),
		PoolSize: getEnvInt("FEDERATE_REDIS_POOL_SIZE", 10),
	}
}

// loadSessionConfig loads session configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:             getEnvDuration("FEDERATE_SESSION_TTL", 24*time.Hour),
		CleanupSchedule: getEnv("FEDERATE_SESSION_CLEANUP_SCHEDULE", "@every 15m"),
		CookieSecure:    getEnvBool("FEDERATE_COOKIE_SECURE", true),
		CookieDomain:    getEnv("FEDERATE_COOKIE_DOMAIN", ""),
	}
}

// loadFederationConfig loads identity provider configuration from environment
func loadFederationConfig() FederationConfig {
	return FederationConfig{
		ProvidersFile:    getEnv("FEDERATE_PROVIDERS_FILE", "/etc/federate/providers.yaml"),
		IdPTimeout:       getEnvDuration("FEDERATE_IDP_TIMEOUT", 10*time.Second),
		DefaultRoleTTL:   getEnvDuration("FEDERATE_DEFAULT_ROLE_TTL", time.Minute),
		LoginRateLimit:   getEnvInt("FEDERATE_LOGIN_RATE_LIMIT", 30),
		LoginRateWindow:  getEnvDuration("FEDERATE_LOGIN_RATE_WINDOW", time.Minute),
		LoginBurst:       getEnvInt("FEDERATE_LOGIN_BURST", 5),
		DiscoveryTimeout: getEnvDuration("FEDERATE_DISCOVERY_TIMEOUT", 15*time.Second),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("FEDERATE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FEDERATE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FEDERATE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FEDERATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FEDERATE_OTEL_SERVICE_NAME", "federate"),
		OTelServiceVersion: getEnv("FEDERATE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FEDERATE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("FEDERATE_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Database.ConnectionConfig().Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Redis.URL == "" && c.Session.CleanupSchedule == "" {
		return fmt.Errorf("session cleanup schedule is required when sessions are stored in postgres")
	}

	if c.Federation.ProvidersFile == "" {
		return fmt.Errorf("providers file is required")
	}
	if c.Federation.IdPTimeout <= 0 {
		return fmt.Errorf("identity provider timeout must be positive")
	}
	if c.Federation.LoginRateLimit < 0 {
		return fmt.Errorf("login rate limit cannot be negative")
	}
	if c.Federation.LoginRateLimit > 0 && c.Federation.LoginRateWindow <= 0 {
		return fmt.Errorf("login rate window must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// ConnectionConfig converts the database settings for the connection manager
func (d DatabaseConfig) ConnectionConfig() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  d.URL,
		ReplicaURLs: d.ReplicaURLs,
		MaxConns:    d.MaxConns,
		MinConns:    d.MinConns,
		Timeout:     d.Timeout,
		MaxLifetime: d.MaxLifetime,
		MaxIdleTime: d.MaxIdleTime,
	}
}

// CookieOptions returns the session cookie settings
func (s SessionConfig) CookieOptions() session.CookieOptions {
	return session.CookieOptions{
		Path:     "/",
		Secure:   s.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		Domain:   s.CookieDomain,
	}
}

// RateLimitConfig returns the login rate limit, or nil when disabled
func (f FederationConfig) RateLimitConfig() *middleware.RateLimitConfig {
	if f.LoginRateLimit == 0 {
		return nil
	}
	return &middleware.RateLimitConfig{
		RequestsPerWindow: f.LoginRateLimit,
		WindowDuration:    f.LoginRateWindow,
		BurstSize:         f.LoginBurst,
	}
}

// OTelConfig returns the tracer settings
func (o ObservabilityConfig) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
