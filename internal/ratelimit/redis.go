package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// The counter stops at the limit so a denied call never extends the count.
var rateLimitScript = redis.NewScript(`
local limit = tonumber(ARGV[2])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local allowed = 0
if current < limit then
  current = redis.call("INCR", KEYS[1])
  allowed = 1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl, allowed}
`)

// Redis shares counters between instances. When redis is unreachable it
// degrades to the in-memory limiter so chat keeps working.
type Redis struct {
	client   *redis.Client
	limit    int
	window   time.Duration
	prefix   string
	fallback *InMemory
	logger   *logrus.Logger
}

func NewRedis(client *redis.Client, limit int, window time.Duration, logger *logrus.Logger) *Redis {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Redis{
		client:   client,
		limit:    limit,
		window:   window,
		prefix:   "rl:",
		fallback: NewInMemory(limit, window, WithCleanup(window)),
		logger:   logger,
	}
}

func (l *Redis) Allow(ctx context.Context, key string) Decision {
	if l.client == nil {
		return l.fallback.Allow(ctx, key)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res, err := rateLimitScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds(), l.limit).Result()
	if err != nil {
		l.logger.WithError(err).Warn("Redis rate limiter unavailable, using in-memory fallback")
		return l.fallback.Allow(ctx, key)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 3 {
		l.logger.WithField("result", res).Warn("Unexpected rate limiter script result")
		return l.fallback.Allow(ctx, key)
	}

	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	allowed, _ := vals[2].(int64)

	return Decision{
		Allowed:   allowed == 1,
		Count:     int(count),
		Limit:     l.limit,
		Remaining: l.limit - int(count),
		ResetAt:   time.Now().UTC().Add(time.Duration(ttlMs) * time.Millisecond),
	}
}

// Stop releases the fallback limiter.
func (l *Redis) Stop() {
	l.fallback.Stop()
}
