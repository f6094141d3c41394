package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldID       = "id"
	fieldHash     = "hash"
	fieldRoles    = "roles"
	fieldLocked   = "locked"
	fieldFailed   = "failed"
	fieldLockedAt = "locked_at"
)

const createAccountScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "hash", ARGV[2], "roles", ARGV[3], "locked", ARGV[4], "failed", ARGV[5], "locked_at", ARGV[6])
return 1
`

const saveAccountScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "hash", ARGV[1], "roles", ARGV[2])
return 1
`

// Returns -1 when the account is missing, 0 on a state mismatch, 1 when applied.
const casLockStateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local cur = redis.call("HMGET", KEYS[1], "locked", "failed", "locked_at")
if cur[1] ~= ARGV[1] or cur[2] ~= ARGV[2] or (cur[3] or "") ~= ARGV[3] then
  return 0
end
redis.call("HSET", KEYS[1], "locked", ARGV[4], "failed", ARGV[5], "locked_at", ARGV[6])
return 1
`

var (
	createAccountLua = redis.NewScript(createAccountScript)
	saveAccountLua   = redis.NewScript(saveAccountScript)
	casLockStateLua  = redis.NewScript(casLockStateScript)
)

// RedisStore keeps one hash per account and applies lock-state transitions
// with a compare-and-set script so the read-modify-write is atomic.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. prefix namespaces every key.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ta"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(username string) string {
	return s.prefix + ":acct:" + username
}

// FindByUsername loads the account stored under username.
func (s *RedisStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrAccountNotFound
	}

	acct, err := decodeFields(username, fields)
	if err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	return acct, nil
}

// Create inserts a new account, failing with ErrDuplicateAccount when the
// username already exists.
func (s *RedisStore) Create(ctx context.Context, acct *Account) error {
	if err := validate(acct); err != nil {
		return err
	}

	created, err := createAccountLua.Run(
		ctx,
		s.redis,
		[]string{s.key(acct.Username)},
		acct.ID,
		acct.CredentialHash,
		strings.Join(acct.Roles, ","),
		encodeBool(acct.Locked),
		strconv.Itoa(acct.FailedAttempts),
		encodeTime(acct.LockedAt),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if created == 0 {
		return ErrDuplicateAccount
	}
	return nil
}

// Save updates the credential hash and roles of an existing account.
func (s *RedisStore) Save(ctx context.Context, acct *Account) error {
	if err := validate(acct); err != nil {
		return err
	}

	saved, err := saveAccountLua.Run(
		ctx,
		s.redis,
		[]string{s.key(acct.Username)},
		acct.CredentialHash,
		strings.Join(acct.Roles, ","),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if saved == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ConditionalUpdateLockState implements Store.
func (s *RedisStore) ConditionalUpdateLockState(ctx context.Context, username string, expected, next LockState) (bool, error) {
	if err := validateLockState(next); err != nil {
		return false, err
	}

	status, err := casLockStateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(username)},
		encodeBool(expected.Locked),
		strconv.Itoa(expected.FailedAttempts),
		encodeTime(expected.LockedAt),
		encodeBool(next.Locked),
		strconv.Itoa(next.FailedAttempts),
		encodeTime(next.LockedAt),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	switch status {
	case -1:
		return false, ErrAccountNotFound
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: unknown lock state script status %d", ErrStorageUnavailable, status)
	}
}

func decodeFields(username string, fields map[string]string) (*Account, error) {
	failed, err := strconv.Atoi(fields[fieldFailed])
	if err != nil || failed < 0 {
		return nil, fmt.Errorf("corrupt failed attempts for %q", username)
	}
	lockedAt, err := decodeTime(fields[fieldLockedAt])
	if err != nil {
		return nil, fmt.Errorf("corrupt locked_at for %q", username)
	}

	var roles []string
	if raw := fields[fieldRoles]; raw != "" {
		roles = strings.Split(raw, ",")
	}

	return &Account{
		ID:             fields[fieldID],
		Username:       username,
		CredentialHash: fields[fieldHash],
		Roles:          roles,
		LockState: LockState{
			Locked:         fields[fieldLocked] == "1",
			FailedAttempts: failed,
			LockedAt:       lockedAt,
		},
	}, nil
}

func encodeBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func encodeTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

func decodeTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.Unix(0, n).UTC()
	return &t, nil
}
