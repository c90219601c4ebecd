package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"edihub/internal/config"
	"edihub/internal/constants"
	"edihub/internal/logger"
	"edihub/pkg/metrics"
)

// IdempotencyGuard is the enqueue fast path for duplicate delivery: a SetNX
// per (queue, external id) short-circuits upstream retries before they reach
// Postgres. The unique constraint on outgoing_messages stays authoritative;
// the guard only saves round trips, so Redis failures degrade to the
// configured fallback instead of failing the enqueue.
type IdempotencyGuard interface {
	FirstSeen(ctx context.Context, queueID, externalID string) (bool, error)
}

type RedisIdempotencyGuard struct {
	client *redis.Client
	cfg    config.IdempotencyConfig
	logger logger.Logger
}

func NewRedisIdempotencyGuard(client *redis.Client, cfg config.IdempotencyConfig, log logger.Logger) *RedisIdempotencyGuard {
	return &RedisIdempotencyGuard{client: client, cfg: cfg, logger: log}
}

func (g *RedisIdempotencyGuard) FirstSeen(ctx context.Context, queueID, externalID string) (bool, error) {
	key := constants.CacheKeyPrefixEnqueue + queueID + ":" + externalID
	ttl := time.Duration(g.cfg.TTLSeconds) * time.Second

	first, err := g.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		metrics.FallbackUsageTotal.WithLabelValues("idempotency", g.cfg.OnRedisError, err.Error()).Inc()
		if g.cfg.OnRedisError == constants.FallbackAllow {
			g.logger.WarnwCtx(ctx, "Redis error during idempotency check, deferring to database constraint",
				"error", err,
			)
			return true, nil
		}
		return false, fmt.Errorf("redis error during idempotency check: %w", err)
	}
	return first, nil
}

// NopIdempotencyGuard disables the fast path; every enqueue goes straight to
// the database constraint.
type NopIdempotencyGuard struct{}

func (NopIdempotencyGuard) FirstSeen(context.Context, string, string) (bool, error) {
	return true, nil
}
