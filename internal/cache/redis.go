package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

var Client *redis.Client

// InitRedis initializes Redis connection
func InitRedis(addr, password string, db int) error {
	Client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx := context.Background()
	if err := Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✓ Redis connected successfully")
	return nil
}

// PublishJSON marshals payload and publishes it to the given channel
func PublishJSON(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := Client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// HSetJSON marshals value and stores it as a hash field, refreshing the
// key's TTL.
func HSetJSON(ctx context.Context, key, field string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal hash value: %w", err)
	}
	if err := Client.HSet(ctx, key, field, data).Err(); err != nil {
		return fmt.Errorf("failed to set hash field %s.%s: %w", key, field, err)
	}
	if ttl > 0 {
		if err := Client.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("failed to set TTL on %s: %w", key, err)
		}
	}
	return nil
}

// HDel removes a hash field
func HDel(ctx context.Context, key string, fields ...string) error {
	if err := Client.HDel(ctx, key, fields...).Err(); err != nil {
		return fmt.Errorf("failed to delete hash fields on %s: %w", key, err)
	}
	return nil
}

// Del removes keys
func Del(ctx context.Context, keys ...string) error {
	if err := Client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// DelPattern removes all keys matching pattern using SCAN
func DelPattern(ctx context.Context, pattern string) error {
	iter := Client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := Client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan pattern %s: %w", pattern, err)
	}
	return nil
}

// Close closes the Redis connection
func Close() error {
	if Client != nil {
		return Client.Close()
	}
	return nil
}
