package orderlock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payrecon/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("orderlock",
	fx.Provide(NewRedisClient),
	fx.Provide(provideGuard),
)

// NewRedisClient returns nil when REDIS_ADDR is unset, which disables locking.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) redis.UniversalClient {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func provideGuard(client redis.UniversalClient, cfg config.Config, log *zap.Logger) *Guard {
	var locker Locker
	if client != nil {
		locker = NewRedisLocker(client)
	}
	return NewGuard(locker, Config{
		TTL:        cfg.Reconcile.LockTTL,
		Attempts:   cfg.Reconcile.LockAttempts,
		RetryDelay: cfg.Reconcile.LockRetryDelay,
	}, log)
}
