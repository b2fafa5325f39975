package redis

import (
	"context"
	"fmt"
	"time"

	"licensing-controlplane/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

var (
	pingAttempts = 5
	retryDelay   = 3 * time.Second
)

func New(lc fx.Lifecycle, c *config.Config) (*redis.Client, error) {
	redsFields := []zap.Field{
		zap.String("addr", c.Redis.Addr),
		zap.Int("db", c.Redis.DB),
		zap.Int("pool_size", c.Redis.PoolSize),
		zap.Duration("pool_timeout", c.Redis.PoolTimeout),
	}

	zapLog := zap.L().With(redsFields...)

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	var err error
	for i := 0; i < pingAttempts; i++ {
		if err = rdb.Ping(context.Background()).Err(); err == nil {
			break
		}

		zapLog.Warn("[Redis] Redis not ready, retrying...", zap.Int("retry", i+1), zap.Duration("delay", retryDelay), zap.Error(err))
		time.Sleep(retryDelay)
	}
	if err != nil {
		zapLog.Error("[Redis] giving up on Redis", zap.Int("attempts", pingAttempts), zap.Error(err))
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", c.Redis.Addr, err)
	}

	zapLog.Info("[Redis] Connected to Redis", zap.String("addr", c.Redis.Addr))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb, nil
}
