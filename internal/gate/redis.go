package gate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/econoracle/internal/models"
)

// DefaultRedisPrefix namespaces ledger keys.
const DefaultRedisPrefix = "econoracle:cooldown:"

// Lua script for check-and-reserve (atomic on the server)
// KEYS[1] = ledger key
// ARGV[1] = now (unix ms)
// ARGV[2] = cooldown (ms)
// ARGV[3] = reservation hold (ms)
// ARGV[4] = key ttl (ms)
// ARGV[5] = owner
// Returns: 1 if reserved, 0 if cooling down or already reserved
const luaReserveScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])
local hold = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'last_sent_at', 'reserved_until')
local last_sent = tonumber(data[1])
local reserved_until = tonumber(data[2])

if reserved_until and reserved_until > now then
    return 0
end

if last_sent and now - last_sent < cooldown then
    return 0
end

redis.call('HSET', key, 'reserved_until', string.format('%d', now + hold), 'reserved_by', ARGV[5])
redis.call('PEXPIRE', key, ttl)
return 1
`

// KEYS[1] = ledger key
// ARGV[1] = now (unix ms)
// ARGV[2] = key ttl (ms)
// ARGV[3] = owner
// Returns: 1 if committed, 0 if the owner no longer holds the reservation
const luaCommitScript = `
local key = KEYS[1]
if redis.call('EXISTS', key) == 1 then
    local holder = redis.call('HGET', key, 'reserved_by')
    if holder ~= ARGV[3] and not (holder == false and ARGV[3] == '') then
        return 0
    end
end
redis.call('HSET', key, 'last_sent_at', ARGV[1])
redis.call('HINCRBY', key, 'send_count', 1)
redis.call('HDEL', key, 'reserved_until', 'reserved_by')
redis.call('PEXPIRE', key, tonumber(ARGV[2]))
return 1
`

// KEYS[1] = ledger key
// ARGV[1] = owner
const luaReleaseScript = `
local key = KEYS[1]
local holder = redis.call('HGET', key, 'reserved_by')
if holder ~= ARGV[1] and not (holder == false and ARGV[1] == '') then
    return 0
end
if redis.call('HEXISTS', key, 'last_sent_at') == 1 then
    redis.call('HDEL', key, 'reserved_until', 'reserved_by')
else
    redis.call('DEL', key)
end
return 1
`

// KEYS[1] = ledger key
// ARGV[1] = now (unix ms)
// ARGV[2] = max age (ms)
// Returns: 1 if deleted
const luaSweepScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local max_age = tonumber(ARGV[2])

local data = redis.call('HMGET', key, 'last_sent_at', 'reserved_until')
local last_sent = tonumber(data[1])
local reserved_until = tonumber(data[2])

if reserved_until and reserved_until > now then
    return 0
end

if last_sent and now - last_sent <= max_age then
    return 0
end

redis.call('DEL', key)
return 1
`

// RedisStore is a CooldownStore shared by every process pointing at the same
// Redis. Each operation is a single server-side script, so check-and-reserve
// stays atomic across processes. Keys expire on their own after the retention
// window; Sweep additionally trims entries older than a caller-chosen age.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration

	reserveScript *redis.Script
	commitScript  *redis.Script
	releaseScript *redis.Script
	sweepScript   *redis.Script
}

// NewRedisStore creates a ledger on client. retention is the key TTL after a
// send and must cover the longest cooldown.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if retention <= 0 {
		retention = DefaultConfig().MaxRetention
	}
	return &RedisStore{
		client:        client,
		prefix:        prefix,
		retention:     retention,
		reserveScript: redis.NewScript(luaReserveScript),
		commitScript:  redis.NewScript(luaCommitScript),
		releaseScript: redis.NewScript(luaReleaseScript),
		sweepScript:   redis.NewScript(luaSweepScript),
	}
}

func (s *RedisStore) key(k models.CooldownKey) string {
	return s.prefix + k.String()
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func (s *RedisStore) TryReserve(ctx context.Context, key models.CooldownKey, owner string, now time.Time, cooldown, hold time.Duration) (bool, error) {
	ttl := max(s.retention, cooldown) + hold
	result, err := s.reserveScript.Run(ctx, s.client, []string{s.key(key)},
		millis(now), cooldown.Milliseconds(), hold.Milliseconds(), ttl.Milliseconds(), owner).Int()
	if err != nil {
		return false, fmt.Errorf("failed to reserve %s: %w", key, err)
	}
	return result == 1, nil
}

func (s *RedisStore) Commit(ctx context.Context, key models.CooldownKey, owner string, now time.Time) error {
	result, err := s.commitScript.Run(ctx, s.client, []string{s.key(key)},
		millis(now), s.retention.Milliseconds(), owner).Int()
	if err != nil {
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}
	if result == 0 {
		return fmt.Errorf("failed to commit %s: %w", key, ErrReservationLost)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key models.CooldownKey, owner string) error {
	if err := s.releaseScript.Run(ctx, s.client, []string{s.key(key)}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Sweep(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := s.sweepScript.Run(ctx, s.client, []string{iter.Val()},
			millis(now), maxAge.Milliseconds()).Int()
		if err != nil {
			return removed, fmt.Errorf("failed to sweep %s: %w", iter.Val(), err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan cooldown keys: %w", err)
	}
	return removed, nil
}

func (s *RedisStore) Get(ctx context.Context, key models.CooldownKey) (models.CooldownEntry, bool, error) {
	data, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CooldownEntry{}, false, nil
		}
		return models.CooldownEntry{}, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(data) == 0 {
		return models.CooldownEntry{}, false, nil
	}

	entry := models.CooldownEntry{Key: key}
	if v, ok := data["last_sent_at"]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return models.CooldownEntry{}, false, fmt.Errorf("corrupt last_sent_at for %s: %w", key, err)
		}
		entry.LastSentAt = time.UnixMilli(ms).UTC()
	}
	if v, ok := data["send_count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return models.CooldownEntry{}, false, fmt.Errorf("corrupt send_count for %s: %w", key, err)
		}
		entry.SendCount = n
	}
	if v, ok := data["reserved_until"]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return models.CooldownEntry{}, false, fmt.Errorf("corrupt reserved_until for %s: %w", key, err)
		}
		entry.ReservedUntil = time.UnixMilli(ms).UTC()
	}
	entry.ReservedBy = data["reserved_by"]
	return entry, true, nil
}
