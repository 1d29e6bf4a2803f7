package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Anvoria/alumnet/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	redisDialTimeout     = 5 * time.Second
	redisConnMaxIdleTime = 5 * time.Minute
)

// RedisClient is shared by the device cache and the signed-out session store
var RedisClient *redis.Client

func redisOptions(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:            cfg.Address(),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     redisDialTimeout,
		ConnMaxIdleTime: redisConnMaxIdleTime,
	}
}

// ConnectRedis opens the pool described by cfg and pings it once.
// On failure RedisClient is closed and reset to nil.
func ConnectRedis(cfg *config.RedisConfig) error {
	client := redis.NewClient(redisOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address(), err)
	}

	RedisClient = client
	slog.Info("Redis connected", "address", cfg.Address(), "db", cfg.DB, "pool_size", client.Options().PoolSize)
	return nil
}

// CloseRedis is a no-op when ConnectRedis never succeeded
func CloseRedis() error {
	if RedisClient == nil {
		return nil
	}
	err := RedisClient.Close()
	RedisClient = nil
	return err
}
