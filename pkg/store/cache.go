// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
	"github.com/betterauth/betterauth/pkg/logger"
)

// SessionPayload is the secondary-storage cache entry: the session plus its
// hydrated user, so the hot path costs zero primary-database reads.
type SessionPayload struct {
	Session *core.Session `json:"session"`
	User    *core.User    `json:"user"`
}

// sessionCacheKey namespaces cache entries; the token is hashed so the cache
// never holds a usable bearer value.
func sessionCacheKey(token string) string {
	return "session:" + crypto.HashToken(token)
}

// cacheSession writes {session, user} through to secondary storage with a TTL
// matching the session expiry. Cache failures are logged, never fatal: the
// primary database remains authoritative.
func (s *Store) cacheSession(ctx context.Context, session *core.Session) {
	if s.secondary == nil || session == nil {
		return
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return
	}

	user, err := s.FindUserByID(ctx, session.UserID)
	if err != nil || user == nil {
		logger.Warnw("session cache: loading user", "error", err)
		return
	}

	payload, err := json.Marshal(SessionPayload{Session: session, User: user})
	if err != nil {
		logger.Warnw("session cache: encoding payload", "error", err)
		return
	}

	if err := s.secondary.Set(ctx, sessionCacheKey(session.Token), string(payload), ttl); err != nil {
		logger.Warnw("session cache: writing", "error", err)
	}
}

// dropCachedSession invalidates a cache entry.
func (s *Store) dropCachedSession(ctx context.Context, token string) {
	if s.secondary == nil {
		return
	}
	if err := s.secondary.Delete(ctx, sessionCacheKey(token)); err != nil {
		logger.Warnw("session cache: dropping", "error", err)
	}
}

// CachedSession returns the cached {session, user} for a token, or nil on a
// miss. Expiry is re-checked so a stale TTL can never extend a session.
func (s *Store) CachedSession(ctx context.Context, token string) *SessionPayload {
	if s.secondary == nil {
		return nil
	}

	raw, err := s.secondary.Get(ctx, sessionCacheKey(token))
	if err != nil {
		logger.Warnw("session cache: reading", "error", err)
		return nil
	}
	if raw == "" {
		return nil
	}

	var payload SessionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		logger.Warnw("session cache: decoding payload", "error", err)
		return nil
	}
	if payload.Session == nil || payload.User == nil {
		return nil
	}
	if time.Now().After(payload.Session.ExpiresAt) {
		return nil
	}
	return &payload
}
