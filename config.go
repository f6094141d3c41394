package tokenauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/lockout"
	"github.com/MrEthical07/tokenauth/password"
)

// Config defines a public type used by tokenauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT      JWTConfig
	Lockout  LockoutConfig
	Store    StoreConfig
	Password PasswordConfig
	Account  AccountConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the HS256 signing key and token lifetimes. The key is
// copied on Build and never leaves the process.
type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig sets how many consecutive failures lock an account and for
// how long.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds every store call. OperationTimeout applies per call;
// MaxCASAttempts bounds reload-and-retry loops on lock-state conflicts.
type StoreConfig struct {
	OperationTimeout time.Duration
	MaxCASAttempts   int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters for the default hasher. They are
// ignored when a hasher is supplied with Builder.WithPasswordHasher.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	BcryptCost     int
	UpgradeOnLogin bool
}

// AccountConfig controls registration.
type AccountConfig struct {
	DefaultRole string
}

// AuditConfig defines a public type used by tokenauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by tokenauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the defaults: 15m access tokens, 7d refresh tokens,
// lock after 5 failures for 24h. SigningKey must still be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold: lockout.DefaultThreshold,
			Duration:  lockout.DefaultDuration,
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
			MaxCASAttempts:   8,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
		},
		Account: AccountConfig{
			DefaultRole: "USER",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningKey = cloneBytes(cfg.JWT.SigningKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

func (c LockoutConfig) policy() lockout.Policy {
	return lockout.Policy{Threshold: c.Threshold, Duration: c.Duration}
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.SigningKey) < jwt.MinKeyLength {
		return fmt.Errorf("JWT SigningKey must be at least %d bytes", jwt.MinKeyLength)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Issuer != strings.TrimSpace(c.JWT.Issuer) {
		return errors.New("JWT Issuer must not have surrounding spaces")
	}

	// Lockout
	if err := c.Lockout.policy().Validate(); err != nil {
		return fmt.Errorf("Lockout: %w", err)
	}

	// Store
	if c.Store.OperationTimeout < 0 {
		return errors.New("Store OperationTimeout must be >= 0")
	}
	if c.Store.MaxCASAttempts <= 0 {
		return errors.New("Store MaxCASAttempts must be > 0")
	}

	// Account
	if c.Account.DefaultRole != strings.TrimSpace(c.Account.DefaultRole) || strings.Contains(c.Account.DefaultRole, ",") {
		return errors.New("Account DefaultRole must be a bare role name")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
