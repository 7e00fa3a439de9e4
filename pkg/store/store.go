// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package store wraps the raw storage adapter with named domain operations.
// It owns row<->struct conversion, id and timestamp generation, and the
// single-use semantics of verification values; everything above it works
// with typed structs only.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/betterauth/betterauth/pkg/adapter"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// Store is the internal adapter.
type Store struct {
	db        adapter.Adapter
	secondary adapter.SecondaryStorage
}

// Option configures a Store.
type Option func(*Store)

// WithSecondaryStorage enables the session read/write-through cache on a TTL
// key-value store.
func WithSecondaryStorage(ss adapter.SecondaryStorage) Option {
	return func(s *Store) { s.secondary = ss }
}

// New wraps a raw adapter.
func New(db adapter.Adapter, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Adapter exposes the underlying raw adapter for callers that need ad-hoc
// queries (admin listings, plugin extensions).
func (s *Store) Adapter() adapter.Adapter {
	return s.db
}

func newID() string {
	return uuid.NewString()
}

// ---------------------------------------------------------------------------
// Users

// CreateUser inserts a user, generating id and timestamps when unset.
func (s *Store) CreateUser(ctx context.Context, user *core.User) (*core.User, error) {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = newID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	row, err := s.db.Create(ctx, core.ModelUser, user.Row(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating user: %w", err)
	}
	return core.UserFromRow(row), nil
}

// FindUserByID returns the user or (nil, nil).
func (s *Store) FindUserByID(ctx context.Context, id string) (*core.User, error) {
	row, err := s.db.FindOne(ctx, core.ModelUser, []adapter.Where{adapter.Eq("id", id)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding user: %w", err)
	}
	return core.UserFromRow(row), nil
}

// FindUserByEmail returns the user or (nil, nil).
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	row, err := s.db.FindOne(ctx, core.ModelUser, []adapter.Where{adapter.Eq("email", email)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding user by email: %w", err)
	}
	return core.UserFromRow(row), nil
}

// FindUserByPhoneNumber returns the user or (nil, nil). The phoneNumber
// column exists only when a plugin declares it.
func (s *Store) FindUserByPhoneNumber(ctx context.Context, phone string) (*core.User, error) {
	row, err := s.db.FindOne(ctx, core.ModelUser, []adapter.Where{adapter.Eq("phoneNumber", phone)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding user by phone number: %w", err)
	}
	return core.UserFromRow(row), nil
}

// FindUserByUsername returns the user or (nil, nil). The username column
// exists only when a plugin declares it.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*core.User, error) {
	row, err := s.db.FindOne(ctx, core.ModelUser, []adapter.Where{adapter.Eq("username", username)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding user by username: %w", err)
	}
	return core.UserFromRow(row), nil
}

// UpdateUser applies a partial update and returns the updated user, or
// (nil, nil) when the user does not exist. updatedAt is always refreshed.
func (s *Store) UpdateUser(ctx context.Context, id string, update map[string]any) (*core.User, error) {
	update["updatedAt"] = time.Now().UTC()
	row, err := s.db.Update(ctx, core.ModelUser, []adapter.Where{adapter.Eq("id", id)}, update)
	if err != nil {
		return nil, fmt.Errorf("store: updating user: %w", err)
	}
	return core.UserFromRow(row), nil
}

// DeleteUser removes a user and cascades sessions, accounts, MFA state,
// trusted devices, consents and OAuth tokens. Adapters without foreign keys
// rely on this cascade.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return adapter.RunInTransaction(ctx, s.db, func(tx adapter.Adapter) error {
		byUser := []adapter.Where{adapter.Eq("userId", id)}
		for _, model := range []string{
			core.ModelSession,
			core.ModelAccount,
			core.ModelTwoFactor,
			core.ModelTrustedDevice,
			core.ModelOAuthConsent,
			core.ModelOAuthAccessToken,
			core.ModelOAuthRefreshToken,
		} {
			if _, err := tx.DeleteMany(ctx, model, byUser); err != nil {
				return fmt.Errorf("store: cascading %s: %w", model, err)
			}
		}
		if err := tx.Delete(ctx, core.ModelUser, []adapter.Where{adapter.Eq("id", id)}); err != nil {
			return fmt.Errorf("store: deleting user: %w", err)
		}
		return nil
	})
}

// ListUsers returns users per query, for the admin surface.
func (s *Store) ListUsers(ctx context.Context, q adapter.Query) ([]*core.User, error) {
	rows, err := s.db.FindMany(ctx, core.ModelUser, q)
	if err != nil {
		return nil, fmt.Errorf("store: listing users: %w", err)
	}
	users := make([]*core.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, core.UserFromRow(row))
	}
	return users, nil
}

// CountUsers returns the number of users matching the where clause.
func (s *Store) CountUsers(ctx context.Context, where []adapter.Where) (int, error) {
	n, err := s.db.Count(ctx, core.ModelUser, where)
	if err != nil {
		return 0, fmt.Errorf("store: counting users: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Sessions

// SessionOpts carries the request metadata and overrides for a new session.
type SessionOpts struct {
	UserAgent string
	IPAddress string
	ExpiresIn time.Duration
	// ImpersonatedBy records the admin user creating a session on behalf of
	// another user.
	ImpersonatedBy string
	// Overrides are extra fields merged into the row before insert.
	Overrides map[string]any
}

// CreateSession inserts a session with a fresh opaque token and, when a
// secondary storage is configured, caches {session, user} keyed by token hash
// with a TTL matching the expiry.
func (s *Store) CreateSession(ctx context.Context, userID string, opts SessionOpts) (*core.Session, error) {
	now := time.Now().UTC()
	session := &core.Session{
		ID:             newID(),
		Token:          crypto.NewToken(),
		UserID:         userID,
		ExpiresAt:      now.Add(opts.ExpiresIn),
		CreatedAt:      now,
		UpdatedAt:      now,
		UserAgent:      opts.UserAgent,
		IPAddress:      opts.IPAddress,
		ImpersonatedBy: opts.ImpersonatedBy,
	}

	row := session.Row()
	for k, v := range opts.Overrides {
		row[k] = v
	}

	created, err := s.db.Create(ctx, core.ModelSession, row, nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating session: %w", err)
	}

	result := core.SessionFromRow(created)
	s.cacheSession(ctx, result)
	return result, nil
}

// FindSessionByToken returns the session or (nil, nil).
func (s *Store) FindSessionByToken(ctx context.Context, token string) (*core.Session, error) {
	row, err := s.db.FindOne(ctx, core.ModelSession, []adapter.Where{adapter.Eq("token", token)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding session: %w", err)
	}
	return core.SessionFromRow(row), nil
}

// FindSessionByID returns the session or (nil, nil).
func (s *Store) FindSessionByID(ctx context.Context, id string) (*core.Session, error) {
	row, err := s.db.FindOne(ctx, core.ModelSession, []adapter.Where{adapter.Eq("id", id)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding session by id: %w", err)
	}
	return core.SessionFromRow(row), nil
}

// UpdateSession applies a partial update keyed by token and refreshes the
// cache entry.
func (s *Store) UpdateSession(ctx context.Context, token string, update map[string]any) (*core.Session, error) {
	update["updatedAt"] = time.Now().UTC()
	row, err := s.db.Update(ctx, core.ModelSession, []adapter.Where{adapter.Eq("token", token)}, update)
	if err != nil {
		return nil, fmt.Errorf("store: updating session: %w", err)
	}

	result := core.SessionFromRow(row)
	if result != nil {
		s.cacheSession(ctx, result)
	}
	return result, nil
}

// ExtendSession pushes a session's expiry forward to expiresAt, but never
// backward: the update is conditioned on the stored expiry being earlier, so
// concurrent refreshes converge on the furthest expiry. Returns the session
// as stored after the attempt, or (nil, nil) when it no longer exists.
func (s *Store) ExtendSession(ctx context.Context, token string, expiresAt time.Time) (*core.Session, error) {
	_, err := s.db.UpdateMany(ctx, core.ModelSession, []adapter.Where{
		adapter.Eq("token", token),
		{Field: "expiresAt", Operator: adapter.OpLT, Value: expiresAt},
	}, map[string]any{
		"expiresAt": expiresAt,
		"updatedAt": time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("store: extending session: %w", err)
	}

	session, err := s.FindSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session != nil {
		s.cacheSession(ctx, session)
	}
	return session, nil
}

// DeleteSession removes a session by token. Missing sessions are a no-op.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if err := s.db.Delete(ctx, core.ModelSession, []adapter.Where{adapter.Eq("token", token)}); err != nil {
		return fmt.Errorf("store: deleting session: %w", err)
	}
	s.dropCachedSession(ctx, token)
	return nil
}

// DeleteSessions removes every session of a user and returns the count.
func (s *Store) DeleteSessions(ctx context.Context, userID string) (int, error) {
	if s.secondary != nil {
		sessions, err := s.ListSessions(ctx, userID)
		if err != nil {
			return 0, err
		}
		for _, session := range sessions {
			s.dropCachedSession(ctx, session.Token)
		}
	}

	n, err := s.db.DeleteMany(ctx, core.ModelSession, []adapter.Where{adapter.Eq("userId", userID)})
	if err != nil {
		return 0, fmt.Errorf("store: deleting sessions: %w", err)
	}
	return n, nil
}

// ListSessions returns a user's sessions, most recent first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]*core.Session, error) {
	rows, err := s.db.FindMany(ctx, core.ModelSession, adapter.Query{
		Where:  []adapter.Where{adapter.Eq("userId", userID)},
		SortBy: &adapter.SortBy{Field: "createdAt", Direction: adapter.SortDesc},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing sessions: %w", err)
	}
	sessions := make([]*core.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, core.SessionFromRow(row))
	}
	return sessions, nil
}

// DeleteExpiredSessions sweeps sessions whose expiry has passed.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int, error) {
	n, err := s.db.DeleteMany(ctx, core.ModelSession, []adapter.Where{
		{Field: "expiresAt", Operator: adapter.OpLT, Value: time.Now().UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("store: sweeping sessions: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Verifications

// CreateVerification inserts a time-limited value under a namespaced
// identifier.
func (s *Store) CreateVerification(ctx context.Context, identifier, value string, ttl time.Duration) (*core.Verification, error) {
	now := time.Now().UTC()
	v := &core.Verification{
		ID:         newID(),
		Identifier: identifier,
		Value:      value,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	row, err := s.db.Create(ctx, core.ModelVerification, v.Row(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating verification: %w", err)
	}
	return core.VerificationFromRow(row), nil
}

// FindVerification returns the newest unexpired value for an identifier, or
// (nil, nil).
func (s *Store) FindVerification(ctx context.Context, identifier string) (*core.Verification, error) {
	rows, err := s.db.FindMany(ctx, core.ModelVerification, adapter.Query{
		Where: []adapter.Where{
			adapter.Eq("identifier", identifier),
			{Field: "expiresAt", Operator: adapter.OpGT, Value: time.Now().UTC()},
		},
		SortBy: &adapter.SortBy{Field: "createdAt", Direction: adapter.SortDesc},
		Limit:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("store: finding verification: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return core.VerificationFromRow(rows[0]), nil
}

// ConsumeVerification returns the newest unexpired value for an identifier
// and deletes it in the same transaction, enforcing single use. Returns
// (nil, nil) when no live value exists.
func (s *Store) ConsumeVerification(ctx context.Context, identifier string) (*core.Verification, error) {
	var consumed *core.Verification
	err := adapter.RunInTransaction(ctx, s.db, func(tx adapter.Adapter) error {
		rows, err := tx.FindMany(ctx, core.ModelVerification, adapter.Query{
			Where: []adapter.Where{
				adapter.Eq("identifier", identifier),
				{Field: "expiresAt", Operator: adapter.OpGT, Value: time.Now().UTC()},
			},
			SortBy: &adapter.SortBy{Field: "createdAt", Direction: adapter.SortDesc},
			Limit:  1,
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		consumed = core.VerificationFromRow(rows[0])
		return tx.Delete(ctx, core.ModelVerification, []adapter.Where{adapter.Eq("id", consumed.ID)})
	})
	if err != nil {
		return nil, fmt.Errorf("store: consuming verification: %w", err)
	}
	return consumed, nil
}

// DeleteVerification removes a verification by id.
func (s *Store) DeleteVerification(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, core.ModelVerification, []adapter.Where{adapter.Eq("id", id)}); err != nil {
		return fmt.Errorf("store: deleting verification: %w", err)
	}
	return nil
}

// DeleteVerifications removes every live value under an identifier,
// invalidating previously issued codes when a new one is requested.
func (s *Store) DeleteVerifications(ctx context.Context, identifier string) error {
	if _, err := s.db.DeleteMany(ctx, core.ModelVerification, []adapter.Where{adapter.Eq("identifier", identifier)}); err != nil {
		return fmt.Errorf("store: deleting verifications: %w", err)
	}
	return nil
}

// DeleteExpiredVerifications sweeps values whose expiry has passed.
func (s *Store) DeleteExpiredVerifications(ctx context.Context) (int, error) {
	n, err := s.db.DeleteMany(ctx, core.ModelVerification, []adapter.Where{
		{Field: "expiresAt", Operator: adapter.OpLT, Value: time.Now().UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("store: sweeping verifications: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Accounts

// LinkAccount inserts an account row, generating id and timestamps.
func (s *Store) LinkAccount(ctx context.Context, account *core.Account) (*core.Account, error) {
	now := time.Now().UTC()
	if account.ID == "" {
		account.ID = newID()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	row, err := s.db.Create(ctx, core.ModelAccount, account.Row(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: linking account: %w", err)
	}
	return core.AccountFromRow(row), nil
}

// FindAccount returns the account for (providerId, accountId), or (nil, nil).
func (s *Store) FindAccount(ctx context.Context, providerID, accountID string) (*core.Account, error) {
	row, err := s.db.FindOne(ctx, core.ModelAccount, []adapter.Where{
		adapter.Eq("providerId", providerID),
		adapter.Eq("accountId", accountID),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding account: %w", err)
	}
	return core.AccountFromRow(row), nil
}

// FindUserAccount returns a user's account for a provider, or (nil, nil).
func (s *Store) FindUserAccount(ctx context.Context, userID, providerID string) (*core.Account, error) {
	row, err := s.db.FindOne(ctx, core.ModelAccount, []adapter.Where{
		adapter.Eq("userId", userID),
		adapter.Eq("providerId", providerID),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding user account: %w", err)
	}
	return core.AccountFromRow(row), nil
}

// ListAccounts returns every account linked to a user.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]*core.Account, error) {
	rows, err := s.db.FindMany(ctx, core.ModelAccount, adapter.Query{
		Where: []adapter.Where{adapter.Eq("userId", userID)},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing accounts: %w", err)
	}
	accounts := make([]*core.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, core.AccountFromRow(row))
	}
	return accounts, nil
}

// UpdateAccount applies a partial update keyed by account row id.
func (s *Store) UpdateAccount(ctx context.Context, id string, update map[string]any) (*core.Account, error) {
	update["updatedAt"] = time.Now().UTC()
	row, err := s.db.Update(ctx, core.ModelAccount, []adapter.Where{adapter.Eq("id", id)}, update)
	if err != nil {
		return nil, fmt.Errorf("store: updating account: %w", err)
	}
	return core.AccountFromRow(row), nil
}

// DeleteAccount removes an account row by id.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, core.ModelAccount, []adapter.Where{adapter.Eq("id", id)}); err != nil {
		return fmt.Errorf("store: deleting account: %w", err)
	}
	return nil
}
