package recordstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis initializes a Redis client from URL or host:port input.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisBackend stores each value as a plain string key
// "<prefix>:<kind>:<account>".
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "pathology"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) redisKey(key Key) string {
	return b.prefix + ":" + key.String()
}

func (b *RedisBackend) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	v, err := b.client.Get(ctx, b.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

func (b *RedisBackend) Put(ctx context.Context, key Key, raw []byte) error {
	return b.client.Set(ctx, b.redisKey(key), raw, 0).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key Key) error {
	return b.client.Del(ctx, b.redisKey(key)).Err()
}

func (b *RedisBackend) Ping(ctx context.Context) error { return b.client.Ping(ctx).Err() }
