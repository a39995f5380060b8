// Package ratelimit implements fixed-window request limits on redis.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts hits per key inside a fixed window.
type Limiter struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// New builds a limiter. A nil client allows everything.
func New(client *redis.Client, prefix string, logger *zap.Logger) *Limiter {
	if prefix == "" {
		prefix = "rl:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{client: client, prefix: prefix, logger: logger, now: time.Now}
}

// Allow records one hit for key. Redis outages fail open: public intake
// stays reachable and the error is logged.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) Decision {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if l == nil || l.client == nil {
		return Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: time.Now().UTC().Add(window)}
	}
	open := Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: l.now().UTC().Add(window)}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := windowScript.Run(ctx, l.client, []string{l.prefix + key}, window.Milliseconds()).Result()
	if err != nil {
		l.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
		return open
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		l.logger.Warn("unexpected rate limiter reply", zap.Any("reply", res))
		return open
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   int(count) <= limit,
		Count:     int(count),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   l.now().UTC().Add(time.Duration(ttlMs) * time.Millisecond),
	}
}
