// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
)

// introspect serves POST /oauth2/introspect (RFC 7662). Lookups that fail
// for any reason yield {"active": false} rather than an error, so callers
// cannot probe token state.
func (p *Plugin) introspect(r *auth.Request) (any, error) {
	if _, err := p.authenticateClient(r); err != nil {
		return nil, err
	}
	token := r.BodyValue("token")
	if token == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "token is required")
	}
	inactive := map[string]any{"active": false}

	if strings.Count(token, ".") == 2 {
		claims, err := p.verifySignedToken(r, token)
		if err != nil {
			return inactive, nil
		}
		if iss, _ := claims["iss"].(string); iss != p.auth.Issuer() {
			return inactive, nil
		}
		resp := map[string]any{"active": true, "token_type": "Bearer"}
		for k, v := range claims {
			resp[k] = v
		}
		return resp, nil
	}

	if at, err := p.auth.Store.FindAccessToken(r.Context(), token); err != nil {
		return nil, p.serverError(r, "loading access token", err)
	} else if at != nil {
		if time.Now().After(at.ExpiresAt) {
			return inactive, nil
		}
		if at.SessionID != "" {
			// A token bound to a session dies with it.
			session, err := p.auth.Store.FindSessionByID(r.Context(), at.SessionID)
			if err != nil {
				return nil, p.serverError(r, "loading session", err)
			}
			if session == nil || time.Now().After(session.ExpiresAt) {
				return inactive, nil
			}
		}
		return activeResponse("Bearer", at.ClientID, at.UserID, at.Scopes, at.ExpiresAt, at.CreatedAt), nil
	}

	rt, err := p.auth.Store.FindRefreshToken(r.Context(), token)
	if err != nil {
		return nil, p.serverError(r, "loading refresh token", err)
	}
	if rt == nil || rt.RevokedAt != nil || time.Now().After(rt.ExpiresAt) {
		return inactive, nil
	}
	return activeResponse("refresh_token", rt.ClientID, rt.UserID, rt.Scopes, rt.ExpiresAt, rt.CreatedAt), nil
}

// activeResponse builds the RFC 7662 payload for a live stored token.
func activeResponse(tokenType, clientID, userID string, scopes []string, expiresAt, createdAt time.Time) map[string]any {
	resp := map[string]any{
		"active":     true,
		"token_type": tokenType,
		"client_id":  clientID,
		"exp":        expiresAt.Unix(),
		"iat":        createdAt.Unix(),
	}
	if userID != "" {
		resp["sub"] = userID
	}
	if len(scopes) > 0 {
		resp["scope"] = strings.Join(scopes, " ")
	}
	return resp
}

// revoke serves POST /oauth2/revoke (RFC 7009). Revoking a refresh token
// kills the access tokens minted from it. Unknown tokens and tokens owned by
// another client still return 200, per the RFC.
func (p *Plugin) revoke(r *auth.Request) (any, error) {
	client, err := p.authenticateClient(r)
	if err != nil {
		return nil, err
	}
	token := r.BodyValue("token")
	if token == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "token is required")
	}

	if rt, err := p.auth.Store.FindRefreshToken(r.Context(), token); err != nil {
		return nil, p.serverError(r, "loading refresh token", err)
	} else if rt != nil {
		if rt.ClientID != client.ClientID {
			return nil, nil
		}
		if _, err := p.auth.Store.RevokeRefreshToken(r.Context(), rt.ID); err != nil {
			return nil, p.serverError(r, "revoking refresh token", err)
		}
		if err := p.auth.Store.DeleteAccessTokensByRefresh(r.Context(), rt.ID); err != nil {
			return nil, p.serverError(r, "deleting access tokens", err)
		}
		return nil, nil
	}

	at, err := p.auth.Store.FindAccessToken(r.Context(), token)
	if err != nil {
		return nil, p.serverError(r, "loading access token", err)
	}
	if at != nil && at.ClientID == client.ClientID {
		if err := p.auth.Store.DeleteAccessToken(r.Context(), at.ID); err != nil {
			return nil, p.serverError(r, "deleting access token", err)
		}
	}
	return nil, nil
}
