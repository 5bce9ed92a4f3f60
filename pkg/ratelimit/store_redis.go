package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// atomicIncrementScript performs fixed-window admission in one script
// invocation so it is atomic across gate instances. It mirrors the in-memory
// store: a missing key starts a new window with count=1, a counter at the
// limit is left untouched, and window expiry is carried by the key's TTL.
//
// Returns {count, ttl_ms, allowed}.
var atomicIncrementScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

if count == 0 then
  redis.call('SET', KEYS[1], 1, 'PX', window_ms)
  return {1, window_ms, 1}
end

if count >= limit then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then ttl = 0 end
  return {count, ttl, 0}
end

count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then ttl = window_ms end
return {count, ttl, 1}
`)

// RedisCounterStore is a CounterStore backed by Redis, for deployments that
// run more than one gate instance. All instances share one set of counters,
// and admission happens inside a Lua script, so the atomicity contract holds
// across processes.
type RedisCounterStore struct {
	client redis.UniversalClient
	prefix string
	clock  Clock
}

// NewRedisCounterStore creates a Redis-backed counter store.
// Keys are namespaced under the given prefix ("ratelimit" when empty).
func NewRedisCounterStore(client redis.UniversalClient, prefix string, clock Clock) *RedisCounterStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if clock == nil {
		clock = &SystemClock{}
	}
	return &RedisCounterStore{
		client: client,
		prefix: prefix,
		clock:  clock,
	}
}

// AtomicIncrement implements CounterStore.
func (s *RedisCounterStore) AtomicIncrement(ctx context.Context, key string, limit int, window time.Duration) (int, time.Time, bool, error) {
	res, err := atomicIncrementScript.Run(ctx, s.client,
		[]string{s.key(key)}, limit, window.Milliseconds()).Slice()
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("redis counter increment: %w", err)
	}
	if len(res) != 3 {
		return 0, time.Time{}, false, fmt.Errorf("redis counter increment: unexpected reply of %d elements", len(res))
	}

	count, ok1 := res[0].(int64)
	ttlMs, ok2 := res[1].(int64)
	allowed, ok3 := res[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return 0, time.Time{}, false, fmt.Errorf("redis counter increment: unexpected reply types %T/%T/%T", res[0], res[1], res[2])
	}

	resetAt := s.clock.Now().Add(time.Duration(ttlMs) * time.Millisecond)
	return int(count), resetAt, allowed == 1, nil
}

// Delete removes the counter for key.
func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis counter delete: %w", err)
	}
	return nil
}

// KeyCount returns the number of counters under this store's prefix.
// It SCANs rather than KEYS so it never blocks the server.
func (s *RedisCounterStore) KeyCount(ctx context.Context) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("redis counter scan: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// Purge is a no-op: Redis evicts expired windows itself via key TTLs.
func (s *RedisCounterStore) Purge(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *RedisCounterStore) key(key string) string {
	return s.prefix + ":" + key
}
