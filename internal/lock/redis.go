package lock

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/bike-rental/internal/observability"
)

// acquireScript is the conditional write: take the lock when free or when
// already owned by the same token (refresh). Runs atomically in Redis so
// two racing sessions can never both observe success.
var acquireScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v or v == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  redis.call('SADD', KEYS[2], KEYS[1])
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// releaseScript deletes the lock only when held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], KEYS[1])
  return 1
end
return 0
`)

// RedisManager stores leases as keys with Redis-managed TTLs, so expiry
// needs no reaper and the lock table cannot grow unbounded.
type RedisManager struct {
	client *redis.Client
}

func NewRedisManager(addr, password string) *RedisManager {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisManager{client: c}
}

func lockKey(bikeID int) string { return "bike:lock:" + strconv.Itoa(bikeID) }

func tokenKey(token string) string { return "bike:lock:session:" + token }

func (r *RedisManager) Acquire(ctx context.Context, bikeID int, token string, ttl time.Duration) (bool, error) {
	keys := []string{lockKey(bikeID), tokenKey(token)}
	n, err := acquireScript.Run(ctx, r.client, keys, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	if n == 0 {
		observability.LockContention.Inc()
		return false, nil
	}
	observability.LocksAcquired.Inc()
	return true, nil
}

func (r *RedisManager) AcquireAll(ctx context.Context, bikeIDs []int, token string, ttl time.Duration) (bool, error) {
	return acquireAll(ctx, r, bikeIDs, token, ttl)
}

func (r *RedisManager) Release(ctx context.Context, bikeID int, token string) (bool, error) {
	keys := []string{lockKey(bikeID), tokenKey(token)}
	n, err := releaseScript.Run(ctx, r.client, keys, token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisManager) ReleaseAll(ctx context.Context, token string) error {
	keys, err := r.client.SMembers(ctx, tokenKey(token)).Result()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := releaseScript.Run(ctx, r.client, []string{k, tokenKey(token)}, token).Err(); err != nil {
			return err
		}
	}
	return r.client.Del(ctx, tokenKey(token)).Err()
}

func (r *RedisManager) Held(ctx context.Context, bikeID int, token string) (bool, error) {
	v, err := r.client.Get(ctx, lockKey(bikeID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == token, nil
}
