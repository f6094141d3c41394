package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	argon2Prefix          = "$argon2id$"
	algorithmID           = "argon2id"
)

// Config holds the Argon2id cost parameters. The zero MaxPasswordBytes means
// DefaultMaxPasswordBytes.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig returns production Argon2id parameters (64 MiB, t=3, p=2).
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Argon2 is the primary Scheme. It is safe for concurrent use.
type Argon2 struct {
	config Config
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// NewArgon2 validates cfg and returns a hasher using it.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Recognizes reports whether encoded is an argon2id PHC string.
func (a *Argon2) Recognizes(encoded string) bool {
	return strings.HasPrefix(encoded, argon2Prefix)
}

// Hash describes the hash operation and its observable behavior.
//
// Hash may return an error when input validation, dependency calls, or security checks fail.
// Hash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (a *Argon2) Hash(password string) (string, error) {
	// Raw bytes, no Unicode normalization.
	if err := checkLength(password, a.config.MaxPasswordBytes); err != nil {
		return "", err
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	sum := argon2.IDKey(
		[]byte(password),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(sum),
	), nil
}

// Verify compares password against encoded in constant time. A malformed
// encoding returns ErrMalformedHash; an oversized password returns
// ErrPasswordLength before any key derivation runs.
func (a *Argon2) Verify(password string, encoded string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordLength
	}

	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsRehash is true when encoded was produced with weaker parameters than
// the current configuration.
func (a *Argon2) NeedsRehash(encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	switch {
	case a.config.Memory > parsed.memory,
		a.config.Time > parsed.time,
		a.config.Parallelism > parsed.parallelism,
		a.config.KeyLength != parsed.keyLength:
		return true, nil
	}
	return false, nil
}

func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: invalid PHC format", ErrMalformedHash)
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("%w: unsupported algorithm", ErrMalformedHash)
	}

	versionPart := parts[2]
	if !strings.HasPrefix(versionPart, "v=") {
		return nil, fmt.Errorf("%w: missing argon2 version", ErrMalformedHash)
	}
	version, err := strconv.Atoi(strings.TrimPrefix(versionPart, "v="))
	if err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version", ErrMalformedHash)
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: invalid salt", ErrMalformedHash)
	}

	sum, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(sum) == 0 {
		return nil, fmt.Errorf("%w: invalid hash", ErrMalformedHash)
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        sum,
		keyLength:   uint32(len(sum)),
	}, nil
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, fmt.Errorf("%w: invalid parameter format", ErrMalformedHash)
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: invalid parameter entry", ErrMalformedHash)
		}

		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, fmt.Errorf("%w: invalid memory parameter", ErrMalformedHash)
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, fmt.Errorf("%w: invalid time parameter", ErrMalformedHash)
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, fmt.Errorf("%w: invalid parallelism parameter", ErrMalformedHash)
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, fmt.Errorf("%w: unsupported parameter %q", ErrMalformedHash, key)
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	return &params, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case cfg.Time < minTimeCost:
		return fmt.Errorf("password time must be >= %d", minTimeCost)
	case cfg.Parallelism < minParallelism:
		return fmt.Errorf("password parallelism must be >= %d", minParallelism)
	case cfg.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	case cfg.MaxPasswordBytes < MinPasswordBytes:
		return fmt.Errorf("password max length must be >= %d", MinPasswordBytes)
	}
	return nil
}
