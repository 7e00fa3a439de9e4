// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betterauth/betterauth/pkg/adapter"
	"github.com/betterauth/betterauth/pkg/core"
)

// Counter is one window's state for a key.
type Counter struct {
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	LastRequest time.Time `json:"lastRequest"`
}

// Storage persists counters. Get returns (nil, nil) for unknown keys. The ttl
// passed to Set is the rule window; backends without expiry may ignore it.
type Storage interface {
	Get(ctx context.Context, key string) (*Counter, error)
	Set(ctx context.Context, key string, counter *Counter, ttl time.Duration) error
}

// ---------------------------------------------------------------------------
// Memory

const memorySweepInterval = time.Minute

type memoryEntry struct {
	counter   Counter
	expiresAt time.Time
}

type memoryStorage struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	nextSweep time.Time
}

// NewMemoryStorage returns the default in-process counter store. Expired
// entries are swept lazily on writes.
func NewMemoryStorage() Storage {
	return &memoryStorage{
		entries:   make(map[string]memoryEntry),
		nextSweep: time.Now().Add(memorySweepInterval),
	}
}

func (m *memoryStorage) Get(_ context.Context, key string) (*Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	counter := entry.counter
	return &counter, nil
}

func (m *memoryStorage) Set(_ context.Context, key string, counter *Counter, ttl time.Duration) error {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.After(m.nextSweep) {
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		m.nextSweep = now.Add(memorySweepInterval)
	}

	m.entries[key] = memoryEntry{counter: *counter, expiresAt: now.Add(ttl)}
	return nil
}

// ---------------------------------------------------------------------------
// Database

type adapterStorage struct {
	db adapter.Adapter
}

// NewAdapterStorage stores counters in the rateLimit model, sharing state
// across processes that share a database.
func NewAdapterStorage(db adapter.Adapter) Storage {
	return &adapterStorage{db: db}
}

func (a *adapterStorage) Get(ctx context.Context, key string) (*Counter, error) {
	row, err := a.db.FindOne(ctx, core.ModelRateLimit, []adapter.Where{adapter.Eq("key", key)}, nil)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: loading counter: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	rl := core.RateLimitFromRow(row)
	return &Counter{
		Key:         rl.Key,
		Count:       rl.Count,
		LastRequest: time.UnixMilli(rl.LastRequest).UTC(),
	}, nil
}

func (a *adapterStorage) Set(ctx context.Context, key string, counter *Counter, _ time.Duration) error {
	update := map[string]any{
		"count":       counter.Count,
		"lastRequest": counter.LastRequest.UnixMilli(),
	}
	row, err := a.db.Update(ctx, core.ModelRateLimit, []adapter.Where{adapter.Eq("key", key)}, update)
	if err != nil {
		return fmt.Errorf("ratelimit: updating counter: %w", err)
	}
	if row != nil {
		return nil
	}

	rl := &core.RateLimit{
		ID:          uuid.NewString(),
		Key:         key,
		Count:       counter.Count,
		LastRequest: counter.LastRequest.UnixMilli(),
	}
	if _, err := a.db.Create(ctx, core.ModelRateLimit, rl.Row(), nil); err != nil {
		return fmt.Errorf("ratelimit: creating counter: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Secondary storage

const secondaryKeyPrefix = "rate-limit:"

type secondaryStorage struct {
	kv adapter.SecondaryStorage
}

// NewSecondaryStorage stores counters as JSON values in a TTL key-value
// store, typically Redis. Entries expire with the rule window.
func NewSecondaryStorage(kv adapter.SecondaryStorage) Storage {
	return &secondaryStorage{kv: kv}
}

func (s *secondaryStorage) Get(ctx context.Context, key string) (*Counter, error) {
	raw, err := s.kv.Get(ctx, secondaryKeyPrefix+key)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: loading counter: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var counter Counter
	if err := json.Unmarshal([]byte(raw), &counter); err != nil {
		return nil, fmt.Errorf("ratelimit: decoding counter: %w", err)
	}
	return &counter, nil
}

func (s *secondaryStorage) Set(ctx context.Context, key string, counter *Counter, ttl time.Duration) error {
	raw, err := json.Marshal(counter)
	if err != nil {
		return fmt.Errorf("ratelimit: encoding counter: %w", err)
	}
	if err := s.kv.Set(ctx, secondaryKeyPrefix+key, string(raw), ttl); err != nil {
		return fmt.Errorf("ratelimit: storing counter: %w", err)
	}
	return nil
}
