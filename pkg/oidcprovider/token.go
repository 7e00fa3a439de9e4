// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
	"github.com/betterauth/betterauth/pkg/store"
)

// token serves POST /oauth2/token. It authenticates the client, then
// dispatches on grant_type: the built-in grants first, then any handlers
// extension plugins registered through RegisterGrant.
func (p *Plugin) token(r *auth.Request) (any, error) {
	grantType := r.BodyValue("grant_type")
	if grantType == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "grant_type is required")
	}
	client, err := p.authenticateClient(r)
	if err != nil {
		return nil, err
	}
	if !clientAllowsGrant(client, grantType) {
		return nil, auth.NewOAuthError(auth.OAuthUnauthorizedClient, "client is not allowed to use this grant type")
	}

	var resp any
	switch grantType {
	case GrantAuthorizationCode:
		resp, err = p.grantAuthorizationCode(r, client)
	case GrantRefreshToken:
		resp, err = p.grantRefreshToken(r, client)
	case GrantClientCredentials:
		resp, err = p.grantClientCredentials(r, client)
	case GrantTokenExchange:
		resp, err = p.grantTokenExchange(r, client)
	default:
		p.mu.RLock()
		handler := p.grants[grantType]
		p.mu.RUnlock()
		if handler == nil {
			return nil, auth.NewOAuthError(auth.OAuthUnsupportedGrantType, "unsupported grant_type")
		}
		resp, err = handler(r, client)
	}
	if err != nil {
		return nil, err
	}
	r.SetHeader("Cache-Control", "no-store")
	r.SetHeader("Pragma", "no-cache")
	return resp, nil
}

func (p *Plugin) grantAuthorizationCode(r *auth.Request, client *core.OAuthClient) (any, error) {
	code := r.BodyValue("code")
	if code == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "code is required")
	}
	record, err := p.consumeAuthCode(r, code)
	if err != nil {
		return nil, p.serverError(r, "consuming authorization code", err)
	}
	if record == nil {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "authorization code is invalid or expired")
	}
	if record.RequireConsent {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "authorization is awaiting user consent")
	}
	if record.ClientID != client.ClientID || record.UserID == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "authorization code was not issued to this client")
	}
	if r.BodyValue("redirect_uri") != record.RedirectURI {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "redirect_uri does not match the authorization request")
	}
	if record.CodeChallenge != "" {
		verifier := r.BodyValue("code_verifier")
		if verifier == "" {
			return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "code_verifier is required")
		}
		if !crypto.VerifyPKCE(verifier, record.CodeChallenge, record.CodeChallengeMethod) {
			return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "code_verifier does not match the code_challenge")
		}
	}
	user, err := p.auth.Store.FindUserByID(r.Context(), record.UserID)
	if err != nil {
		return nil, p.serverError(r, "loading user", err)
	}
	if user == nil {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "user no longer exists")
	}
	scopes := strings.Fields(record.Scope)
	return p.issueTokens(r, client, tokenIssue{
		user:        user,
		scopes:      scopes,
		nonce:       record.Nonce,
		authTime:    record.AuthTime,
		resource:    r.BodyValue("resource"),
		withRefresh: slices.Contains(scopes, "offline_access"),
	})
}

func (p *Plugin) grantRefreshToken(r *auth.Request, client *core.OAuthClient) (any, error) {
	raw := r.BodyValue("refresh_token")
	if raw == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "refresh_token is required")
	}
	if p.opts.DecodeRefreshToken != nil {
		decoded, err := p.opts.DecodeRefreshToken(raw)
		if err != nil {
			return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "refresh token is invalid")
		}
		raw = decoded
	}
	rt, err := p.auth.Store.FindRefreshToken(r.Context(), raw)
	if err != nil {
		return nil, p.serverError(r, "loading refresh token", err)
	}
	if rt == nil {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "refresh token is invalid")
	}
	if rt.RevokedAt != nil {
		// A replayed refresh token means the chain may be stolen. Kill
		// every descendant and the access tokens hanging off them.
		if _, err := p.auth.Store.RevokeRefreshChain(r.Context(), rt.ClientID, rt.UserID, rt.SessionID); err != nil {
			return nil, p.serverError(r, "revoking refresh chain", err)
		}
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "refresh token has been revoked")
	}
	if time.Now().After(rt.ExpiresAt) {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "refresh token has expired")
	}
	if rt.ClientID != client.ClientID {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "refresh token was not issued to this client")
	}

	scopes := rt.Scopes
	if requested := strings.Fields(r.BodyValue("scope")); len(requested) > 0 {
		if !scopesCovered(rt.Scopes, requested) {
			return nil, auth.NewOAuthError(auth.OAuthInvalidScope, "requested scope exceeds the original grant")
		}
		scopes = requested
	}

	nextRaw := crypto.NewOpaqueToken()
	rotated, err := p.auth.Store.RotateRefreshToken(r.Context(), rt.ID, &core.OAuthRefreshToken{
		Token:     nextRaw,
		ClientID:  rt.ClientID,
		UserID:    rt.UserID,
		SessionID: rt.SessionID,
		Scopes:    rt.Scopes,
		ExpiresAt: time.Now().Add(p.opts.RefreshTokenTTL),
	})
	if err != nil {
		if errors.Is(err, store.ErrRefreshReplay) {
			if _, err := p.auth.Store.RevokeRefreshChain(r.Context(), rt.ClientID, rt.UserID, rt.SessionID); err != nil {
				return nil, p.serverError(r, "revoking refresh chain", err)
			}
			return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "refresh token has been revoked")
		}
		return nil, p.serverError(r, "rotating refresh token", err)
	}

	user, err := p.auth.Store.FindUserByID(r.Context(), rt.UserID)
	if err != nil {
		return nil, p.serverError(r, "loading user", err)
	}
	if user == nil {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "user no longer exists")
	}
	return p.issueTokens(r, client, tokenIssue{
		user:       user,
		scopes:     scopes,
		sessionID:  rt.SessionID,
		resource:   r.BodyValue("resource"),
		refresh:    rotated,
		refreshRaw: nextRaw,
	})
}

func (p *Plugin) grantClientCredentials(r *auth.Request, client *core.OAuthClient) (any, error) {
	if client.Public {
		return nil, auth.NewOAuthError(auth.OAuthUnauthorizedClient, "client_credentials requires a confidential client")
	}
	scopes := strings.Fields(r.BodyValue("scope"))
	for _, s := range scopes {
		switch s {
		case "openid", "profile", "email", "offline_access":
			return nil, auth.NewOAuthError(auth.OAuthInvalidScope, "user scopes cannot be granted to a machine client")
		}
	}
	if !p.allowedScopes(client, scopes) {
		return nil, auth.NewOAuthError(auth.OAuthInvalidScope, "requested scope is not allowed for this client")
	}
	return p.issueTokens(r, client, tokenIssue{
		scopes:   scopes,
		resource: r.BodyValue("resource"),
	})
}
