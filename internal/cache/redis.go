package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Redis is a Cache shared by every process pointing at the same server.
type Redis struct {
	client *redis.Client
	prefix string
	group  singleflight.Group
}

var _ Cache = (*Redis)(nil)

// NewRedis creates a Redis-backed cache.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		prefix: "identity-link:",
	}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Fetch(ctx context.Context, key string, ttl time.Duration, fill FillFunc) ([]byte, error) {
	if v, ok, err := r.get(ctx, key); err != nil || ok {
		return v, err
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if v, ok, err := r.get(ctx, key); err != nil || ok {
			return v, err
		}
		v, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("cache: ttl must be positive")
		}
		if err := r.client.Set(ctx, r.key(key), v, ttl).Err(); err != nil {
			return nil, fmt.Errorf("cache: set %s: %w", key, err)
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *Redis) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return val, true, nil
}
