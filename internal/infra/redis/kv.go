// Package redis implements domain.KVStore on Redis, for deployments where
// several processes share one progression cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

var _ domain.KVStore = (*KV)(nil)

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string // namespace prepended to every key
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Prefix:       "expenzez:",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// KV is a Redis-backed key-value store.
type KV struct {
	client *redis.Client
	prefix string
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config) (*KV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &KV{client: client, prefix: cfg.Prefix}, nil
}

// Close releases the connection pool.
func (k *KV) Close() error {
	return k.client.Close()
}

// Ping checks connectivity.
func (k *KV) Ping(ctx context.Context) error {
	return k.client.Ping(ctx).Err()
}

// Get retrieves a value by key. ok is false when the key is absent.
func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := k.client.Get(ctx, k.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

// Set stores value under key without expiry.
func (k *KV) Set(ctx context.Context, key, value string) error {
	if err := k.client.Set(ctx, k.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (k *KV) Remove(ctx context.Context, key string) error {
	if err := k.client.Del(ctx, k.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
