package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/config"
)

const redisConnectTimeout = 2 * time.Second

// Redis holds the client shared by the SLA timer queue and the public rate
// limiter, plus the namespace their keys live under.
type Redis struct {
	Client *redis.Client
	prefix string
}

// NewRedis builds the client. An unreachable server is only logged: callers
// decide whether to fall back (SLA timers) or fail open (rate limiting).
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	r := &Redis{Client: client, prefix: strings.Trim(cfg.KeyPrefix, ":")}

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.String("namespace", r.prefix))
	}
	return r
}

// Key joins parts under the configured namespace, e.g. "ombudsman:sla:timers".
func (r *Redis) Key(parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if r != nil && r.prefix != "" {
		all = append(all, r.prefix)
	}
	for _, p := range parts {
		if p = strings.Trim(p, ":"); p != "" {
			all = append(all, p)
		}
	}
	return strings.Join(all, ":")
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
