package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Connect creates a Redis client from opts and verifies connectivity.
func Connect(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis options are nil")
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

