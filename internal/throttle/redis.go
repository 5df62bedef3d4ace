package throttle

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/bike-rental/internal/models"
)

// RedisLimiter stores one sorted set per (client, category), scored by
// attempt time in unix nanos, so the window slides identically across
// every server process. Keys expire a window after the last attempt.
type RedisLimiter struct {
	client   *redis.Client
	policies map[models.AttemptCategory]Policy
}

func NewRedisLimiter(addr, password string, policies map[models.AttemptCategory]Policy) *RedisLimiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisLimiter{client: c, policies: policies}
}

func redisKey(clientID string, category models.AttemptCategory) string {
	return "throttle:" + string(category) + ":" + clientID
}

func (r *RedisLimiter) Record(ctx context.Context, clientID string, category models.AttemptCategory, outcome models.AttemptOutcome) error {
	p, ok := r.policies[category]
	if !ok {
		return nil
	}
	now := time.Now()
	k := redisKey(clientID, category)
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + string(outcome)

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(now.Add(-p.Window).UnixNano(), 10))
	pipe.Expire(ctx, k, p.Window)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisLimiter) Check(ctx context.Context, clientID string, category models.AttemptCategory) (Decision, error) {
	p, ok := r.policies[category]
	if !ok {
		return Decision{Allowed: true}, nil
	}
	now := time.Now()
	k := redisKey(clientID, category)

	members, err := r.client.ZRangeByScoreWithScores(ctx, k, &redis.ZRangeBy{
		Min: strconv.FormatInt(now.Add(-p.Window).UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return Decision{}, err
	}

	attempts := make([]attempt, 0, len(members))
	for _, z := range members {
		s, _ := z.Member.(string)
		attempts = append(attempts, attempt{
			at:      time.Unix(0, int64(z.Score)),
			failure: strings.HasSuffix(s, ":"+string(models.OutcomeFailure)),
		})
	}
	return decide(p, attempts, now), nil
}
