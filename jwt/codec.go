package jwt

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	// KindAccess authorizes individual requests.
	KindAccess Kind = "access"
	// KindRefresh is exchanged for a new token pair.
	KindRefresh Kind = "refresh"
)

// MinKeyLength is the shortest HS256 signing key accepted.
const MinKeyLength = 32

var (
	// ErrTokenInvalid covers bad signatures, unexpected algorithms and malformed tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for a correctly signed token whose exp has passed.
	ErrTokenExpired = errors.New("token expired")
)

// Config defines a public type used by tokenauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	SigningKey []byte
	// Issuer is written to iss and enforced on verify when non-empty.
	Issuer string
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Claims is the wire payload.
type Claims struct {
	Roles     []string `json:"roles,omitempty"`
	TokenType Kind     `json:"token_type"`
	jwt.RegisteredClaims
}

// Token is the decoded view of an issued or verified token.
type Token struct {
	Raw       string
	ID        string
	Subject   string
	Roles     []string
	Kind      Kind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies HS256 tokens. It never consults storage.
type Codec struct {
	key        []byte
	issuer     string
	now        func() time.Time
	parser     *jwt.Parser
	unverified *jwt.Parser
}

// NewCodec describes the newcodec operation and its observable behavior.
//
// NewCodec may return an error when input validation, dependency calls, or security checks fail.
// NewCodec does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.SigningKey) < MinKeyLength {
		return nil, fmt.Errorf("hs256 signing key must be at least %d bytes", MinKeyLength)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		key:    slices.Clone(cfg.SigningKey),
		issuer: strings.TrimSpace(cfg.Issuer),
		now:    now,
		// Claims are validated by Verify after the signature check so the
		// two failure classes never mask each other.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		unverified: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}, nil
}

// Issue describes the issue operation and its observable behavior.
//
// Issue signs a token for subject valid for ttl from now. Roles are embedded
// only for access tokens; refresh tokens never carry role claims.
func (c *Codec) Issue(subject string, roles []string, kind Kind, ttl time.Duration) (*Token, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("token subject required")
	}
	if kind != KindAccess && kind != KindRefresh {
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be > 0")
	}

	now := c.now()
	claims := Claims{
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if kind == KindAccess {
		claims.Roles = normalizeRoles(roles)
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return tokenFromClaims(raw, &claims), nil
}

// Verify checks structure and signature first, then claim shape, then
// expiry. A tampered token is ErrTokenInvalid whatever its exp says.
//
// For ErrTokenExpired the decoded token is returned alongside the error; it
// is authentic but must not be used to authenticate anything.
func (c *Codec) Verify(raw string) (*Token, error) {
	claims := &Claims{}
	if _, err := c.parser.ParseWithClaims(raw, claims, c.keyFunc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	switch {
	case claims.TokenType != KindAccess && claims.TokenType != KindRefresh:
		return nil, fmt.Errorf("%w: unknown token_type", ErrTokenInvalid)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing sub", ErrTokenInvalid)
	case claims.ExpiresAt == nil || claims.IssuedAt == nil:
		return nil, fmt.Errorf("%w: missing exp or iat", ErrTokenInvalid)
	case claims.TokenType == KindRefresh && len(claims.Roles) > 0:
		return nil, fmt.Errorf("%w: refresh token carries roles", ErrTokenInvalid)
	case c.issuer != "" && claims.Issuer != c.issuer:
		return nil, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}

	if !c.now().Before(claims.ExpiresAt.Time) {
		return tokenFromClaims(raw, claims), ErrTokenExpired
	}

	return tokenFromClaims(raw, claims), nil
}

// IsExpired reads exp without verifying the signature. Malformed tokens and
// tokens without exp count as expired.
func (c *Codec) IsExpired(raw string) bool {
	claims := &Claims{}
	if _, _, err := c.unverified.ParseUnverified(raw, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}

func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return c.key, nil
}

func tokenFromClaims(raw string, claims *Claims) *Token {
	tok := &Token{
		Raw:     raw,
		ID:      claims.ID,
		Subject: claims.Subject,
		Roles:   slices.Clone(claims.Roles),
		Kind:    claims.TokenType,
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok
}

func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}
