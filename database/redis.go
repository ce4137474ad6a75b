package database

import (
	"context"
	"fmt"

	"messenger-sync/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConnect returns nil when REDIS_HOST is empty; callers then fall back to
// the in-process registry and presence store.
func RedisConnect(ctx context.Context, s *config.Settings, log *zap.Logger) (*redis.Client, error) {
	if s.RedisHost == "" {
		log.Info("redis disabled, using in-process registry")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr(),
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	log.Info("connection opened to redis", zap.String("addr", s.RedisAddr()))
	return client, nil
}
