package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries in a Redis logical database.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ctx:    ctx,
	}, nil
}

func (r *RedisStore) Get(key string) (string, error) {
	val, err := r.client.Get(r.ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set stores without a Redis-side TTL; expiry lives inside the encoded entry.
func (r *RedisStore) Set(key, value string) error {
	return r.client.Set(r.ctx, key, value, 0).Err()
}

func (r *RedisStore) Remove(key string) error {
	return r.client.Del(r.ctx, key).Err()
}

// Clear flushes the whole logical database, including keys written by
// other programs sharing it.
func (r *RedisStore) Clear() error {
	return r.client.FlushDB(r.ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
