// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package redis implements SecondaryStorage on Redis. It is used for session
// caching and rate-limit counters when the auth library runs with multiple
// replicas that must share hot state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/betterauth/betterauth/pkg/adapter"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// DefaultKeyPrefix namespaces keys so the storage can share a database with
// other applications.
const DefaultKeyPrefix = "better-auth:"

// Config holds Redis connection configuration.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Username and Password authenticate with Redis ACLs. Both empty for
	// unauthenticated servers.
	Username string
	Password string

	// DB selects the logical database.
	DB int

	// KeyPrefix overrides DefaultKeyPrefix when non-empty.
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Storage is the Redis-backed SecondaryStorage.
type Storage struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: addr is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connecting: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client. Useful when the host application
// already maintains a Redis connection pool.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Storage {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Storage{client: client, keyPrefix: keyPrefix}
}

// Close releases the underlying client.
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) key(k string) string {
	return s.keyPrefix + k
}

// Get returns the value for key, or "" when absent or expired.
func (s *Storage) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis: getting %s: %w", key, err)
	}
	return val, nil
}

// Set stores a value. A non-positive ttl stores the value without expiry.
func (s *Storage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: setting %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is a no-op.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis: deleting %s: %w", key, err)
	}
	return nil
}

// Compile-time interface compliance check
var _ adapter.SecondaryStorage = (*Storage)(nil)
