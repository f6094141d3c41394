package tokenauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenauth/account"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/refresh"
	"github.com/sirupsen/logrus"
)

// dummyPassword is hashed once per engine so unknown usernames cost the same
// verification work as known ones.
const dummyPassword = "tokenauth-timing-equalizer"

// Builder defines a public type used by tokenauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	accounts account.Store
	tokens   refresh.Store
	hasher   password.Hasher

	log       logrus.FieldLogger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The signing key is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccountStore sets the store of record for accounts. Required.
func (b *Builder) WithAccountStore(store account.Store) *Builder {
	b.accounts = store
	return b
}

// WithRefreshStore sets the refresh-token store. Required.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.tokens = store
	return b
}

// WithPasswordHasher overrides the default argon2id hasher with bcrypt
// fallback.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithLogger sets the logger. Defaults to a JSON logrus logger on stderr.
func (b *Builder) WithLogger(log logrus.FieldLogger) *Builder {
	b.log = log
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for lockout decisions and token timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms enables the Authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.tokens == nil {
		return nil, errors.New("refresh store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	log := b.log
	if log == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		log = l
	}

	hasher := b.hasher
	if hasher == nil {
		primary, err := password.NewArgon2(cfg.Password.argon2())
		if err != nil {
			return nil, fmt.Errorf("password: %w", err)
		}
		legacy, err := password.NewBcrypt(cfg.Password.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("password: %w", err)
		}
		chain, err := password.NewChain(primary, legacy)
		if err != nil {
			return nil, err
		}
		hasher = chain
	}

	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("password: dummy hash: %w", err)
	}

	codec, err := jwt.NewCodec(jwt.Config{
		SigningKey: cloneBytes(cfg.JWT.SigningKey),
		Issuer:     cfg.JWT.Issuer,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		accounts:  b.accounts,
		tokens:    b.tokens,
		hasher:    hasher,
		codec:     codec,
		policy:    cfg.Lockout.policy(),
		log:       log,
		now:       now,
		dummyHash: dummy,
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, log)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.initFlowDeps()

	b.built = true
	return engine, nil
}
