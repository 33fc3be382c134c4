package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

const (
	EnvPrefix = "DASHBOARD"

	minBackoffStep = time.Millisecond

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv              = "DASHBOARD_APP_ENV"
	EnvPort                = "DASHBOARD_APP_PORT"
	EnvAnalyticsBaseURL    = "DASHBOARD_ANALYTICS_BASE_URL"
	EnvQueryMaxAttempts    = "DASHBOARD_QUERY_MAX_ATTEMPTS"
	EnvQueryBackoffStep    = "DASHBOARD_QUERY_BACKOFF_STEP"
	EnvQueryAttemptTimeout = "DASHBOARD_QUERY_ATTEMPT_TIMEOUT"
	EnvRedisURL            = "DASHBOARD_REDIS_URL"
	EnvCORSOrigins         = "DASHBOARD_CORS_ALLOWED_ORIGINS"
)

type Config struct {
	App          AppConfig
	AnalyticsAPI AnalyticsAPIConfig
	Query        QueryConfig
	Metadata     MetadataConfig
	Redis        RedisConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	if _, parseErr := url.ParseRequestURI(c.AnalyticsAPI.BaseURL); parseErr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", EnvAnalyticsBaseURL, parseErr))
	}
	if c.Query.MaxAttempts < 1 {
		err = multierr.Append(err, fmt.Errorf("%s must be at least 1", EnvQueryMaxAttempts))
	}
	if c.Query.BackoffStep < minBackoffStep {
		err = multierr.Append(err, fmt.Errorf("%s must be at least %s", EnvQueryBackoffStep, minBackoffStep))
	}
	if c.Query.AttemptTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("%s must not be negative", EnvQueryAttemptTimeout))
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"DASHBOARD_APP_ENV" required:"true"`
	Port         string `envconfig:"DASHBOARD_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DASHBOARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DASHBOARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AnalyticsAPIConfig points at the remote analytics/metadata service.
type AnalyticsAPIConfig struct {
	BaseURL     string        `envconfig:"DASHBOARD_ANALYTICS_BASE_URL" default:"http://127.0.0.1:8000/api/v1"`
	HTTPTimeout time.Duration `envconfig:"DASHBOARD_ANALYTICS_HTTP_TIMEOUT" default:"30s"`
}

// QueryConfig drives the retry policy of widget queries. AttemptTimeout of zero
// leaves a single attempt unbounded.
type QueryConfig struct {
	MaxAttempts    int           `envconfig:"DASHBOARD_QUERY_MAX_ATTEMPTS" default:"3"`
	BackoffStep    time.Duration `envconfig:"DASHBOARD_QUERY_BACKOFF_STEP" default:"200ms"`
	AttemptTimeout time.Duration `envconfig:"DASHBOARD_QUERY_ATTEMPT_TIMEOUT" default:"0s"`
}

type MetadataConfig struct {
	CacheTTL time.Duration `envconfig:"DASHBOARD_METADATA_CACHE_TTL" default:"10m"`
}

// RedisConfig is optional; an empty URL and address disables the metadata cache.
type RedisConfig struct {
	URL          string        `envconfig:"DASHBOARD_REDIS_URL"`
	Address      string        `envconfig:"DASHBOARD_REDIS_ADDR"`
	Password     string        `envconfig:"DASHBOARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"DASHBOARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DASHBOARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DASHBOARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DASHBOARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DASHBOARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DASHBOARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"DASHBOARD_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`
}
