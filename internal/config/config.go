package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/EcommerceGo/taxonomy/pkg/config"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/database"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/tracing"
)

// Category sources.
const (
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

// Lookup cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all configuration for the taxonomy service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"TAXONOMY_HTTP_PORT" envDefault:"8020"`

	// Category source
	CategorySource       string  `env:"CATEGORY_SOURCE" envDefault:"http"`
	CategoryServiceURL   string  `env:"CATEGORY_SERVICE_URL" envDefault:"http://localhost:8001/api/v1"`
	CategoryFetchTimeout int     `env:"CATEGORY_FETCH_TIMEOUT_MS" envDefault:"10000"`
	CategoryMaxRetries   int     `env:"CATEGORY_MAX_RETRIES" envDefault:"0"`
	BreakerTimeoutSecs   int     `env:"CATEGORY_BREAKER_TIMEOUT_SECONDS" envDefault:"30"`
	BreakerFailureRatio  float64 `env:"CATEGORY_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests   uint32  `env:"CATEGORY_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Lookup cache
	LookupCache        string `env:"LOOKUP_CACHE" envDefault:"memory"`
	LookupCacheTTLSecs int    `env:"LOOKUP_CACHE_TTL_SECONDS" envDefault:"300"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"TAXONOMY_DB_NAME" envDefault:"taxonomy"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	SlowQueryThresholdMs  int   `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"taxonomy"`

	// Admin auth
	JWTSecret string `env:"JWT_SECRET"`

	// Rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	// Sessions
	SessionIdleTTLMins int `env:"SESSION_IDLE_TTL_MINUTES" envDefault:"30"`

	WarmOnStart bool `env:"WARM_ON_START" envDefault:"false"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// OpenTelemetry
	Tracing tracing.Config
}

// Load reads configuration from environment variables. opts can substitute
// the variables, see pkgconfig.WithEnvironment.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load taxonomy config: %w", err)
	}
	cfg.Tracing.Environment = cfg.Environment
	return cfg, nil
}

// Validate checks ports, enum values and durations.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.CategorySource {
	case SourceHTTP:
		u, err := url.Parse(c.CategoryServiceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CATEGORY_SERVICE_URL must be an absolute URL, got %q", c.CategoryServiceURL)
		}
	case SourcePostgres:
		if c.PostgresHost == "" {
			return errors.New("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return errors.New("POSTGRES_USER is required")
		}
	default:
		return fmt.Errorf("CATEGORY_SOURCE must be %q or %q, got %q", SourceHTTP, SourcePostgres, c.CategorySource)
	}
	switch c.LookupCache {
	case CacheMemory:
	case CacheRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required")
		}
	default:
		return fmt.Errorf("LOOKUP_CACHE must be %q or %q, got %q", CacheMemory, CacheRedis, c.LookupCache)
	}
	if c.CategoryFetchTimeout <= 0 {
		return fmt.Errorf("CATEGORY_FETCH_TIMEOUT_MS must be positive, got %d", c.CategoryFetchTimeout)
	}
	if c.CategoryMaxRetries < 0 {
		return fmt.Errorf("CATEGORY_MAX_RETRIES must not be negative, got %d", c.CategoryMaxRetries)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("CATEGORY_BREAKER_FAILURE_RATIO must be in (0, 1], got %v", c.BreakerFailureRatio)
	}
	if c.LookupCacheTTLSecs < 0 {
		return fmt.Errorf("LOOKUP_CACHE_TTL_SECONDS must not be negative, got %d", c.LookupCacheTTLSecs)
	}
	if c.SessionIdleTTLMins < 0 {
		return fmt.Errorf("SESSION_IDLE_TTL_MINUTES must not be negative, got %d", c.SessionIdleTTLMins)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
		}
		if c.KafkaGroupID == "" {
			return errors.New("KAFKA_GROUP_ID is required when KAFKA_ENABLED is set")
		}
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}
	return c.Tracing.Validate()
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// FetchTimeout bounds one call to the category source.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.CategoryFetchTimeout) * time.Millisecond
}

// LookupTTL is how long flat lookup results are cached.
func (c *Config) LookupTTL() time.Duration {
	return time.Duration(c.LookupCacheTTLSecs) * time.Second
}

// SessionIdleTTL is how long an untouched selection is kept.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMins) * time.Minute
}

// Postgres returns the database connection settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPass, DB: c.RedisDB}
}

// HTTPClient returns the settings of the client calling the category service.
func (c *Config) HTTPClient() httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = c.FetchTimeout()
	hc.MaxRetries = c.CategoryMaxRetries
	return hc
}

// CircuitBreaker returns the breaker guarding the category service.
func (c *Config) CircuitBreaker() httpclient.CircuitBreakerConfig {
	cb := httpclient.DefaultCircuitBreakerConfig("category-service")
	cb.Timeout = time.Duration(c.BreakerTimeoutSecs) * time.Second
	cb.FailureRatio = c.BreakerFailureRatio
	cb.MinRequests = c.BreakerMinRequests
	return cb
}
