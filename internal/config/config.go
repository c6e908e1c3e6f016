package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every env var name that overrides a config value.
const EnvPrefix = "NOTES_"

type Config struct {
	Environment string `toml:"-"`

	Host string `toml:"host" env:"HOST"`
	Port int    `toml:"port" env:"PORT"`

	// logging
	LogLevel      string `toml:"log_level" env:"LOG_LEVEL"`
	LogsPath      string `toml:"logs_path" env:"LOGS_PATH"`
	LogToStdout   bool   `toml:"log_to_stdout" env:"LOG_TO_STDOUT"`
	LogFormatJSON bool   `toml:"log_format_json" env:"LOG_FORMAT_JSON"`
	SentryEnabled bool   `toml:"sentry_enabled" env:"SENTRY_ENABLED"`
	SentryDSN     string `toml:"-" env:"SENTRY_DSN"`

	// postgres
	PostgresHost     string `toml:"postgres_host" env:"POSTGRES_HOST"`
	PostgresPort     string `toml:"postgres_port" env:"POSTGRES_PORT"`
	PostgresDBName   string `toml:"postgres_db_name" env:"POSTGRES_DB_NAME"`
	PostgresUser     string `toml:"postgres_user" env:"POSTGRES_USER"`
	PostgresPassword string `toml:"-" env:"POSTGRES_PASSWORD"`
	PostgresSSLMode  string `toml:"postgres_ssl_mode" env:"POSTGRES_SSL_MODE"`
	PostgresMaxConns int32  `toml:"postgres_max_conns" env:"POSTGRES_MAX_CONNS"`
	// upper bound of sessions held at once by the sync endpoints
	SessionMaxOpenConns int `toml:"session_max_open_conns" env:"SESSION_MAX_OPEN_CONNS"`

	// redis, used only for rate limiting; empty host disables it
	RedisHost     string `toml:"redis_host" env:"REDIS_HOST"`
	RedisPort     string `toml:"redis_port" env:"REDIS_PORT"`
	RedisPassword string `toml:"-" env:"REDIS_PASSWORD"`
	// 0 means unlimited
	CreateRateLimitPerMin int `toml:"create_rate_limit_per_min" env:"CREATE_RATE_LIMIT_PER_MIN"`

	CorsAllowedOrigins []string `toml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	PrometheusMetricsHost string `toml:"prometheus_metrics_host" env:"PROMETHEUS_METRICS_HOST"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port" env:"PROMETHEUS_METRICS_PORT"`

	HoneycombEnabled bool `toml:"honeycomb_enabled" env:"HONEYCOMB_ENABLED"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}

	if cfg == nil {
		return nil, fmt.Errorf("no config section for env: %s", env)
	}
	return cfg, nil
}

// Load reads the TOML section for the given environment and applies NOTES_* env var
// overrides on top of it. Secrets are never read from the TOML file.
func Load(environment, path string) (*Config, error) {
	var tomlCfg Toml
	if _, err := toml.DecodeFile(path, &tomlCfg); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	cfg, err := tomlCfg.Get(environment)
	if err != nil {
		return nil, err
	}
	cfg.Environment = environment

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads env vars from a .env file, if there is one.
// Already set env vars are not overridden.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.PostgresHost == "" || c.PostgresPort == "" || c.PostgresDBName == "" {
		return errors.New("postgres host, port and db name must be set")
	}
	if c.CreateRateLimitPerMin < 0 {
		return fmt.Errorf("invalid create rate limit: %d", c.CreateRateLimitPerMin)
	}
	return nil
}
