package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound     int64 = 0
	rotateStatusRevoked      int64 = 1
	rotateStatusExpired      int64 = 2
	rotateStatusOwner        int64 = 3
	rotateStatusDuplicateNew int64 = 4
	rotateStatusRotated      int64 = 5
)

const sweepBatchSize = 500

const recordScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "owner", ARGV[2], "exp", ARGV[3], "revoked", "0")
redis.call("PEXPIREAT", KEYS[1], ARGV[3])
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
return 1
`

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`

const rotateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local cur = redis.call("HMGET", KEYS[1], "owner", "exp", "revoked")
if cur[3] == "1" then
  return 1
end
if tonumber(cur[2]) <= tonumber(ARGV[2]) then
  return 2
end
if cur[1] ~= ARGV[1] then
  return 3
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 4
end
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("HSET", KEYS[2], "owner", ARGV[1], "exp", ARGV[4], "revoked", "0")
redis.call("PEXPIREAT", KEYS[2], ARGV[4])
redis.call("ZADD", KEYS[3], ARGV[4], ARGV[3])
return 5
`

const sweepScript = `
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
  redis.call("DEL", ARGV[3] .. id)
end
if #ids > 0 then
  redis.call("ZREM", KEYS[1], unpack(ids))
end
return #ids
`

var (
	recordLua = redis.NewScript(recordScript)
	revokeLua = redis.NewScript(revokeScript)
	rotateLua = redis.NewScript(rotateScript)
	sweepLua  = redis.NewScript(sweepScript)
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps one hash per token id plus a sorted-set expiry index used
// by SweepExpired. Every mutation is a single Lua script, so Record, Revoke
// and Rotate are atomic per token id.
//
// Keys expire natively at the token's expiry; the index lets SweepExpired
// report and clear what is left.
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

func (s *RedisStore) tokenKeyPrefix() string {
	return s.prefix + ":rt:"
}

func (s *RedisStore) key(tokenID string) string {
	return s.tokenKeyPrefix() + tokenID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":rtexp"
}

func (s *RedisStore) Record(ctx context.Context, tokenID, owner string, expiresAt time.Time) error {
	if err := validateRecord(tokenID, owner, expiresAt); err != nil {
		return err
	}

	created, err := recordLua.Run(
		ctx,
		s.redis,
		[]string{s.key(tokenID), s.indexKey()},
		tokenID,
		owner,
		expiresAt.UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if created == 0 {
		return ErrDuplicateToken
	}
	return nil
}

func (s *RedisStore) IsValid(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	vals, err := s.redis.HMGet(ctx, s.key(tokenID), "exp", "revoked").Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return false, nil
	}

	expRaw, _ := vals[0].(string)
	revoked, _ := vals[1].(string)
	exp, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return false, nil
	}
	return revoked == "0" && exp > now.UnixMilli(), nil
}

func (s *RedisStore) Revoke(ctx context.Context, tokenID string) error {
	found, err := revokeLua.Run(ctx, s.redis, []string{s.key(tokenID)}).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if found == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *RedisStore) Rotate(ctx context.Context, oldID, owner string, next Record, now time.Time) error {
	if err := validateRecord(next.TokenID, next.Owner, next.ExpiresAt); err != nil {
		return err
	}
	if next.Owner != owner {
		return fmt.Errorf("rotation cannot change owner: %w", ErrOwnerMismatch)
	}

	status, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(oldID), s.key(next.TokenID), s.indexKey()},
		owner,
		now.UnixMilli(),
		next.TokenID,
		next.ExpiresAt.UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return ErrTokenNotFound
	case rotateStatusRevoked:
		return ErrTokenRevoked
	case rotateStatusExpired:
		return ErrTokenExpired
	case rotateStatusOwner:
		return ErrOwnerMismatch
	case rotateStatusDuplicateNew:
		return ErrDuplicateToken
	default:
		return fmt.Errorf("%w: unknown rotate script status %d", ErrStorageUnavailable, status)
	}
}

func (s *RedisStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		n, err := sweepLua.Run(
			ctx,
			s.redis,
			[]string{s.indexKey()},
			now.UnixMilli(),
			sweepBatchSize,
			s.tokenKeyPrefix(),
		).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return total, nil
			}
			return total, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		total += n
		if n < sweepBatchSize {
			return total, nil
		}
	}
}

// Ping reports whether the backing Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
