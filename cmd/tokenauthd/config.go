package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/sweep"
	"gopkg.in/yaml.v3"
)

const (
	storeRedis    = "redis"
	storePostgres = "postgres"
	storeMemory   = "memory"
)

// serverConfig is the YAML file layout. Environment variables override it.
type serverConfig struct {
	HTTPAddr      string `yaml:"http_addr"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"log_level"`
	Store         string `yaml:"store"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPrefix   string `yaml:"redis_prefix"`
	DatabaseURL   string `yaml:"database_url"`
	SentryDSN     string `yaml:"sentry_dsn"`
	SweepSchedule string `yaml:"sweep_schedule"`

	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`

	Auth authSection `yaml:"auth"`
}

type authSection struct {
	SigningKey       string        `yaml:"signing_key"`
	Issuer           string        `yaml:"issuer"`
	AccessTTL        time.Duration `yaml:"access_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	LockoutThreshold int           `yaml:"lockout_threshold"`
	LockoutDuration  time.Duration `yaml:"lockout_duration"`
	Audit            bool          `yaml:"audit"`
}

func defaultServerConfig() serverConfig {
	def := tokenauth.DefaultConfig()
	return serverConfig{
		HTTPAddr:      ":8080",
		Environment:   "development",
		LogLevel:      "info",
		Store:         storeMemory,
		RedisAddr:     "localhost:6379",
		RedisPrefix:   "tokenauth",
		SweepSchedule: sweep.DefaultSchedule,
		Auth: authSection{
			Issuer:           "tokenauthd",
			AccessTTL:        def.JWT.AccessTTL,
			RefreshTTL:       def.JWT.RefreshTTL,
			LockoutThreshold: def.Lockout.Threshold,
			LockoutDuration:  def.Lockout.Duration,
		},
	}
}

// loadConfig reads the optional YAML file at path, then applies environment
// overrides through getenv.
func loadConfig(path string, getenv func(string) string) (serverConfig, error) {
	cfg := defaultServerConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return serverConfig{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return serverConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return serverConfig{}, err
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	switch cfg.Store {
	case storeRedis, storeMemory:
	case storePostgres:
		if cfg.DatabaseURL == "" {
			return serverConfig{}, errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return serverConfig{}, fmt.Errorf("unknown store %q (want redis, postgres or memory)", cfg.Store)
	}
	if cfg.Auth.SigningKey == "" {
		return serverConfig{}, errors.New("TOKENAUTH_SIGNING_KEY is required")
	}
	return cfg, nil
}

func applyEnv(cfg *serverConfig, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v := strings.TrimSpace(getenv(name))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
		return nil
	}

	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("APP_ENV", &cfg.Environment)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("TOKENAUTH_STORE", &cfg.Store)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("TOKENAUTH_REDIS_PREFIX", &cfg.RedisPrefix)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("SENTRY_DSN", &cfg.SentryDSN)
	str("TOKENAUTH_SWEEP_SCHEDULE", &cfg.SweepSchedule)
	str("TOKENAUTH_ADMIN_USERNAME", &cfg.AdminUsername)
	str("TOKENAUTH_ADMIN_PASSWORD", &cfg.AdminPassword)
	str("TOKENAUTH_SIGNING_KEY", &cfg.Auth.SigningKey)
	str("TOKENAUTH_ISSUER", &cfg.Auth.Issuer)

	if err := dur("TOKENAUTH_ACCESS_TTL", &cfg.Auth.AccessTTL); err != nil {
		return err
	}
	if err := dur("TOKENAUTH_REFRESH_TTL", &cfg.Auth.RefreshTTL); err != nil {
		return err
	}
	if err := dur("TOKENAUTH_LOCKOUT_DURATION", &cfg.Auth.LockoutDuration); err != nil {
		return err
	}
	if v := strings.TrimSpace(getenv("TOKENAUTH_LOCKOUT_THRESHOLD")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TOKENAUTH_LOCKOUT_THRESHOLD: %w", err)
		}
		cfg.Auth.LockoutThreshold = n
	}
	if v := strings.TrimSpace(getenv("TOKENAUTH_AUDIT")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TOKENAUTH_AUDIT: %w", err)
		}
		cfg.Auth.Audit = b
	}
	return nil
}

// engineConfig maps the server settings onto the library configuration.
func (c serverConfig) engineConfig() tokenauth.Config {
	cfg := tokenauth.DefaultConfig()
	cfg.JWT.SigningKey = []byte(c.Auth.SigningKey)
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.JWT.AccessTTL = c.Auth.AccessTTL
	cfg.JWT.RefreshTTL = c.Auth.RefreshTTL
	cfg.Lockout.Threshold = c.Auth.LockoutThreshold
	cfg.Lockout.Duration = c.Auth.LockoutDuration
	cfg.Audit.Enabled = c.Auth.Audit
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}
