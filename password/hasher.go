package password

import (
	"errors"
	"fmt"
)

const (
	// MinPasswordBytes is the shortest password Hash accepts.
	MinPasswordBytes = 10
	// DefaultMaxPasswordBytes bounds the work an attacker can force per attempt.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrMalformedHash is returned when a stored hash cannot be decoded.
	ErrMalformedHash = errors.New("password: malformed hash")
	// ErrUnknownScheme is returned when no configured scheme recognizes a hash.
	ErrUnknownScheme = errors.New("password: unknown hash scheme")
	// ErrPasswordLength is returned for passwords outside the accepted length range.
	ErrPasswordLength = errors.New("password: length out of range")
)

// Hasher is the credential collaborator used by the engine.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsRehash(encoded string) (bool, error)
}

// Scheme is a Hasher bound to one hash encoding.
type Scheme interface {
	Hasher
	Recognizes(encoded string) bool
}

// Chain hashes with Primary and verifies with whichever scheme recognizes the
// stored encoding. Hashes produced by a legacy scheme always need a rehash.
type Chain struct {
	Primary Scheme
	Legacy  []Scheme
}

var _ Hasher = (*Chain)(nil)

// NewChain returns a Chain. primary must not be nil.
func NewChain(primary Scheme, legacy ...Scheme) (*Chain, error) {
	if primary == nil {
		return nil, errors.New("password: primary scheme required")
	}
	return &Chain{Primary: primary, Legacy: legacy}, nil
}

func (c *Chain) Hash(password string) (string, error) {
	return c.Primary.Hash(password)
}

func (c *Chain) Verify(password, encoded string) (bool, error) {
	s, err := c.scheme(encoded)
	if err != nil {
		return false, err
	}
	return s.Verify(password, encoded)
}

func (c *Chain) NeedsRehash(encoded string) (bool, error) {
	if c.Primary.Recognizes(encoded) {
		return c.Primary.NeedsRehash(encoded)
	}
	if _, err := c.scheme(encoded); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Chain) scheme(encoded string) (Scheme, error) {
	if c.Primary.Recognizes(encoded) {
		return c.Primary, nil
	}
	for _, s := range c.Legacy {
		if s != nil && s.Recognizes(encoded) {
			return s, nil
		}
	}
	return nil, ErrUnknownScheme
}

func checkLength(password string, max int) error {
	if len(password) < MinPasswordBytes || len(password) > max {
		return fmt.Errorf("%w: must be between %d and %d bytes", ErrPasswordLength, MinPasswordBytes, max)
	}
	return nil
}
