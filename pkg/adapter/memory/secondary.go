// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/betterauth/betterauth/pkg/adapter"
)

// DefaultCleanupInterval is how often the secondary storage sweeps expired
// entries.
const DefaultCleanupInterval = 5 * time.Minute

// timedEntry wraps a value with its expiry for TTL tracking.
type timedEntry struct {
	value     string
	expiresAt time.Time
}

// SecondaryStorage is an in-memory TTL key-value store used for session
// caching and rate-limit counters in development and tests. A background
// goroutine sweeps expired entries; call Close to stop it.
type SecondaryStorage struct {
	mu      sync.RWMutex
	entries map[string]timedEntry

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// SecondaryStorageOption configures a SecondaryStorage instance.
type SecondaryStorageOption func(*SecondaryStorage)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) SecondaryStorageOption {
	return func(s *SecondaryStorage) {
		s.cleanupInterval = interval
	}
}

// NewSecondaryStorage creates the store and starts the background cleanup
// goroutine.
func NewSecondaryStorage(opts ...SecondaryStorageOption) *SecondaryStorage {
	s := &SecondaryStorage{
		entries:         make(map[string]timedEntry),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Close stops the background cleanup goroutine and waits for it to finish.
func (s *SecondaryStorage) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

func (s *SecondaryStorage) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired removes expired entries. Uses collect-then-delete: keys are
// collected under the read lock, then deleted under the write lock to keep
// write lock hold time short.
func (s *SecondaryStorage) cleanupExpired() {
	now := time.Now()

	s.mu.RLock()
	var expired []string
	for k, v := range s.entries {
		if !v.expiresAt.IsZero() && now.After(v.expiresAt) {
			expired = append(expired, k)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range expired {
		delete(s.entries, k)
	}
}

// Get returns the value for key, or "" when absent or expired.
func (s *SecondaryStorage) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return "", nil
	}
	return entry.value, nil
}

// Set stores a value. A non-positive ttl stores the value without expiry.
func (s *SecondaryStorage) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := timedEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

// Delete removes a key. Deleting a missing key is a no-op.
func (s *SecondaryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Compile-time interface compliance check
var _ adapter.SecondaryStorage = (*SecondaryStorage)(nil)
