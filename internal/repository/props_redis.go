package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PropertyKeyPrefix namespaces all property keys in Redis.
const PropertyKeyPrefix = "meli-audit:props:"

// RedisPropertyRepository implements PropertyRepository on Redis.
// Useful when multiple bounded invocations share state through a
// managed store instead of a local database file.
type RedisPropertyRepository struct {
	client *redis.Client
}

// NewRedisPropertyRepository creates a Redis-backed property store.
func NewRedisPropertyRepository(client *redis.Client) *RedisPropertyRepository {
	return &RedisPropertyRepository{client: client}
}

// Get returns the value for key, or "" if absent.
func (r *RedisPropertyRepository) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, PropertyKeyPrefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get property %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key. Properties do not expire; tokens carry
// their own expiry timestamp.
func (r *RedisPropertyRepository) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, PropertyKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set property %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *RedisPropertyRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, PropertyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete property %s: %w", key, err)
	}
	return nil
}

var _ PropertyRepository = (*RedisPropertyRepository)(nil)
