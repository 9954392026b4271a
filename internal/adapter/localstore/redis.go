// internal/adapter/localstore/redis.go

package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"wimbli/internal/domain/localstore"
)

// RedisFactory hands out device-scoped stores backed by one Redis client
type RedisFactory struct {
	client *redis.Client
}

// NewRedisFactory creates a new Redis-backed local store factory
func NewRedisFactory(client *redis.Client) *RedisFactory {
	return &RedisFactory{client: client}
}

// ForDevice returns the store for one device
func (f *RedisFactory) ForDevice(deviceID string) localstore.Store {
	return &RedisStore{client: f.client, prefix: DeviceKeyPrefix(deviceID)}
}

// DeviceKeyPrefix namespaces every key written for a device
func DeviceKeyPrefix(deviceID string) string {
	return fmt.Sprintf("device:%s:", deviceID)
}

// RedisStore implements localstore.Store for one device
type RedisStore struct {
	client *redis.Client
	prefix string
}

// Get returns the value for key
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading %s: %w", key, err)
	}
	return val, true, nil
}

// Set writes a value with no expiry
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("error writing %s: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("error deleting %s: %w", key, err)
	}
	return nil
}
