// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/betterauth/betterauth/pkg/adapter"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// ErrRefreshReplay is returned by RotateRefreshToken when the token was
// already rotated or revoked by the time the rotation ran. The caller must
// treat it as a replay and revoke the whole chain.
var ErrRefreshReplay = errors.New("store: refresh token already rotated")

// Opaque OAuth access and refresh tokens are stored as SHA-256 digests: a
// leaked database cannot be replayed against the token endpoint. The raw value
// exists only in the issuance response. Hashing happens here, at the single
// write/lookup site, so no caller can bypass the policy.

// ---------------------------------------------------------------------------
// Clients

// CreateOAuthClient inserts a client, generating id and timestamps when unset.
func (s *Store) CreateOAuthClient(ctx context.Context, client *core.OAuthClient) (*core.OAuthClient, error) {
	now := time.Now().UTC()
	if client.ID == "" {
		client.ID = newID()
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now

	row, err := s.db.Create(ctx, core.ModelOAuthClient, client.Row(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating oauth client: %w", err)
	}
	return core.OAuthClientFromRow(row), nil
}

// FindOAuthClient returns the client for a clientId, or (nil, nil).
func (s *Store) FindOAuthClient(ctx context.Context, clientID string) (*core.OAuthClient, error) {
	row, err := s.db.FindOne(ctx, core.ModelOAuthClient, []adapter.Where{adapter.Eq("clientId", clientID)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding oauth client: %w", err)
	}
	return core.OAuthClientFromRow(row), nil
}

// UpdateOAuthClient applies a partial update keyed by clientId. The clientId
// itself is immutable and silently dropped from updates.
func (s *Store) UpdateOAuthClient(ctx context.Context, clientID string, update map[string]any) (*core.OAuthClient, error) {
	delete(update, "clientId")
	update["updatedAt"] = time.Now().UTC()
	row, err := s.db.Update(ctx, core.ModelOAuthClient, []adapter.Where{adapter.Eq("clientId", clientID)}, update)
	if err != nil {
		return nil, fmt.Errorf("store: updating oauth client: %w", err)
	}
	return core.OAuthClientFromRow(row), nil
}

// ---------------------------------------------------------------------------
// Access tokens

// CreateAccessToken inserts an access token record. token.Token must be the
// RAW issued value; only its digest is persisted.
func (s *Store) CreateAccessToken(ctx context.Context, token *core.OAuthAccessToken) (*core.OAuthAccessToken, error) {
	if token.ID == "" {
		token.ID = newID()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	row := token.Row()
	row["token"] = crypto.HashToken(token.Token)

	created, err := s.db.Create(ctx, core.ModelOAuthAccessToken, row, nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating access token: %w", err)
	}
	return core.OAuthAccessTokenFromRow(created), nil
}

// FindAccessToken looks up an access token by its RAW value, or (nil, nil).
func (s *Store) FindAccessToken(ctx context.Context, raw string) (*core.OAuthAccessToken, error) {
	row, err := s.db.FindOne(ctx, core.ModelOAuthAccessToken, []adapter.Where{
		adapter.Eq("token", crypto.HashToken(raw)),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding access token: %w", err)
	}
	return core.OAuthAccessTokenFromRow(row), nil
}

// DeleteAccessToken removes an access token row by id.
func (s *Store) DeleteAccessToken(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, core.ModelOAuthAccessToken, []adapter.Where{adapter.Eq("id", id)}); err != nil {
		return fmt.Errorf("store: deleting access token: %w", err)
	}
	return nil
}

// DeleteAccessTokensByRefresh removes every access token minted from a
// refresh token.
func (s *Store) DeleteAccessTokensByRefresh(ctx context.Context, refreshID string) error {
	if _, err := s.db.DeleteMany(ctx, core.ModelOAuthAccessToken, []adapter.Where{adapter.Eq("refreshId", refreshID)}); err != nil {
		return fmt.Errorf("store: deleting access tokens by refresh: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Refresh tokens

// CreateRefreshToken inserts a refresh token record. token.Token must be the
// RAW issued value; only its digest is persisted.
func (s *Store) CreateRefreshToken(ctx context.Context, token *core.OAuthRefreshToken) (*core.OAuthRefreshToken, error) {
	if token.ID == "" {
		token.ID = newID()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	row := token.Row()
	row["token"] = crypto.HashToken(token.Token)

	created, err := s.db.Create(ctx, core.ModelOAuthRefreshToken, row, nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating refresh token: %w", err)
	}
	return core.OAuthRefreshTokenFromRow(created), nil
}

// FindRefreshToken looks up a refresh token by its RAW value, or (nil, nil).
// Revoked and expired tokens are returned as-is; replay handling needs to see
// them.
func (s *Store) FindRefreshToken(ctx context.Context, raw string) (*core.OAuthRefreshToken, error) {
	row, err := s.db.FindOne(ctx, core.ModelOAuthRefreshToken, []adapter.Where{
		adapter.Eq("token", crypto.HashToken(raw)),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding refresh token: %w", err)
	}
	return core.OAuthRefreshTokenFromRow(row), nil
}

// RotateRefreshToken revokes the presented token and inserts its replacement
// as one linearizable step: the revocation is a compare-and-set on
// revokedAt IS NULL, so two concurrent rotations of the same token cannot
// both succeed. Returns ErrRefreshReplay when the token was already rotated.
// next.Token must be the RAW replacement value.
func (s *Store) RotateRefreshToken(ctx context.Context, oldID string, next *core.OAuthRefreshToken) (*core.OAuthRefreshToken, error) {
	if next.ID == "" {
		next.ID = newID()
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = time.Now().UTC()
	}

	row := next.Row()
	row["token"] = crypto.HashToken(next.Token)

	var created map[string]any
	err := adapter.RunInTransaction(ctx, s.db, func(tx adapter.Adapter) error {
		n, err := tx.UpdateMany(ctx, core.ModelOAuthRefreshToken, []adapter.Where{
			adapter.Eq("id", oldID),
			adapter.Eq("revokedAt", nil),
		}, map[string]any{"revokedAt": time.Now().UTC()})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRefreshReplay
		}

		created, err = tx.Create(ctx, core.ModelOAuthRefreshToken, row, nil)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrRefreshReplay) {
			return nil, err
		}
		return nil, fmt.Errorf("store: rotating refresh token: %w", err)
	}
	return core.OAuthRefreshTokenFromRow(created), nil
}

// RevokeRefreshChain revokes every refresh token of a (client, user, session)
// chain and deletes their access tokens. Used both for replay defense and for
// explicit revocation.
func (s *Store) RevokeRefreshChain(ctx context.Context, clientID, userID, sessionID string) (int, error) {
	where := []adapter.Where{
		adapter.Eq("clientId", clientID),
		adapter.Eq("userId", userID),
	}
	if sessionID != "" {
		where = append(where, adapter.Eq("sessionId", sessionID))
	}

	chain, err := s.db.FindMany(ctx, core.ModelOAuthRefreshToken, adapter.Query{Where: where})
	if err != nil {
		return 0, fmt.Errorf("store: loading refresh chain: %w", err)
	}

	revoked := 0
	err = adapter.RunInTransaction(ctx, s.db, func(tx adapter.Adapter) error {
		for _, row := range chain {
			token := core.OAuthRefreshTokenFromRow(row)
			if _, err := tx.DeleteMany(ctx, core.ModelOAuthAccessToken, []adapter.Where{
				adapter.Eq("refreshId", token.ID),
			}); err != nil {
				return err
			}
			if token.RevokedAt != nil {
				continue
			}
			n, err := tx.UpdateMany(ctx, core.ModelOAuthRefreshToken, []adapter.Where{
				adapter.Eq("id", token.ID),
				adapter.Eq("revokedAt", nil),
			}, map[string]any{"revokedAt": time.Now().UTC()})
			if err != nil {
				return err
			}
			revoked += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: revoking refresh chain: %w", err)
	}
	return revoked, nil
}

// RevokeRefreshToken marks a single refresh token revoked by id. Reports
// whether this call performed the revocation.
func (s *Store) RevokeRefreshToken(ctx context.Context, id string) (bool, error) {
	n, err := s.db.UpdateMany(ctx, core.ModelOAuthRefreshToken, []adapter.Where{
		adapter.Eq("id", id),
		adapter.Eq("revokedAt", nil),
	}, map[string]any{"revokedAt": time.Now().UTC()})
	if err != nil {
		return false, fmt.Errorf("store: revoking refresh token: %w", err)
	}
	return n > 0, nil
}

// DeleteExpiredTokens sweeps expired access and refresh tokens.
func (s *Store) DeleteExpiredTokens(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	total := 0
	for _, model := range []string{core.ModelOAuthAccessToken, core.ModelOAuthRefreshToken} {
		n, err := s.db.DeleteMany(ctx, model, []adapter.Where{
			{Field: "expiresAt", Operator: adapter.OpLT, Value: now},
		})
		if err != nil {
			return total, fmt.Errorf("store: sweeping %s: %w", model, err)
		}
		total += n
	}
	return total, nil
}

// ---------------------------------------------------------------------------
// Consents

// UpsertConsent records a grant decision keyed by (clientId, userId,
// referenceId), updating scopes in place on re-grant.
func (s *Store) UpsertConsent(ctx context.Context, consent *core.OAuthConsent) (*core.OAuthConsent, error) {
	now := time.Now().UTC()

	existing, err := s.FindConsent(ctx, consent.ClientID, consent.UserID, consent.ReferenceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		row, err := s.db.Update(ctx, core.ModelOAuthConsent, []adapter.Where{adapter.Eq("id", existing.ID)}, map[string]any{
			"scopes":       consent.Scopes,
			"consentGiven": consent.ConsentGiven,
			"updatedAt":    now,
		})
		if err != nil {
			return nil, fmt.Errorf("store: updating consent: %w", err)
		}
		return core.OAuthConsentFromRow(row), nil
	}

	consent.ID = newID()
	consent.CreatedAt = now
	consent.UpdatedAt = now
	row, err := s.db.Create(ctx, core.ModelOAuthConsent, consent.Row(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating consent: %w", err)
	}
	return core.OAuthConsentFromRow(row), nil
}

// FindConsent returns the consent row for (clientId, userId, referenceId), or
// (nil, nil).
func (s *Store) FindConsent(ctx context.Context, clientID, userID, referenceID string) (*core.OAuthConsent, error) {
	where := []adapter.Where{
		adapter.Eq("clientId", clientID),
		adapter.Eq("userId", userID),
	}
	if referenceID != "" {
		where = append(where, adapter.Eq("referenceId", referenceID))
	}

	row, err := s.db.FindOne(ctx, core.ModelOAuthConsent, where, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding consent: %w", err)
	}
	return core.OAuthConsentFromRow(row), nil
}
