package redis

import (
	"context"

	"eshop-marketplace/chatting-service/pkg/config"

	"github.com/redis/go-redis/v9"
)

// NewClient creates a go-redis client from the application config
func NewClient() *redis.Client {
	cfg := config.Get()

	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Ping verifies the connection to the redis server
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
