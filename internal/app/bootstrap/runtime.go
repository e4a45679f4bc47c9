package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/mealprep-intake/internal/config"
	"github.com/wolfman30/mealprep-intake/internal/orders"
	"github.com/wolfman30/mealprep-intake/internal/wizard"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore keeps wizard sessions in Redis when available so they
// survive restarts and can be served by any replica.
func BuildSessionStore(redisClient *redis.Client, cfg *appconfig.Config) wizard.SessionStore {
	if redisClient == nil {
		return wizard.NewMemorySessionStore()
	}
	return wizard.NewRedisSessionStore(redisClient, cfg.SessionTTL)
}

// BuildIdempotencyStore returns the Redis-backed store or an in-process fallback.
func BuildIdempotencyStore(redisClient *redis.Client, cfg *appconfig.Config) orders.IdempotencyStore {
	if redisClient == nil {
		return orders.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	}
	return orders.NewRedisIdempotencyStore(redisClient, cfg.IdempotencyTTL)
}
