// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
)

// userinfo serves GET /oauth2/userinfo with a bearer access token. The
// openid scope is the floor; profile and email widen the claim set.
func (p *Plugin) userinfo(r *auth.Request) (any, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, p.invalidToken(r, "missing bearer token")
	}

	var userID string
	var scopes []string
	if strings.Count(raw, ".") == 2 {
		claims, err := p.verifySignedToken(r, raw)
		if err != nil {
			return nil, p.invalidToken(r, "token verification failed")
		}
		if iss, _ := claims["iss"].(string); iss != p.auth.Issuer() {
			return nil, p.invalidToken(r, "token was not issued here")
		}
		userID, _ = claims["sub"].(string)
		if scope, _ := claims["scope"].(string); scope != "" {
			scopes = strings.Fields(scope)
		}
	} else {
		at, err := p.auth.Store.FindAccessToken(r.Context(), raw)
		if err != nil {
			return nil, p.serverError(r, "loading access token", err)
		}
		if at == nil || time.Now().After(at.ExpiresAt) {
			return nil, p.invalidToken(r, "token is invalid or expired")
		}
		userID = at.UserID
		scopes = at.Scopes
	}

	if userID == "" || !slices.Contains(scopes, "openid") {
		r.SetHeader("WWW-Authenticate", `Bearer error="insufficient_scope", scope="openid"`)
		return nil, auth.NewOAuthError(auth.OAuthInsufficientScope, "openid scope is required").WithStatus(http.StatusForbidden)
	}

	user, err := p.auth.Store.FindUserByID(r.Context(), userID)
	if err != nil {
		return nil, p.serverError(r, "loading user", err)
	}
	if user == nil {
		return nil, p.invalidToken(r, "user no longer exists")
	}

	resp := map[string]any{"sub": user.ID}
	for k, v := range profileClaims(user, scopes) {
		resp[k] = v
	}
	return resp, nil
}

func (p *Plugin) invalidToken(r *auth.Request, description string) error {
	r.SetHeader("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+description+`"`)
	return auth.NewOAuthError(auth.OAuthInvalidToken, description).WithStatus(http.StatusUnauthorized)
}

// bearerToken extracts the RFC 6750 bearer credential from the Authorization
// header.
func bearerToken(r *auth.Request) string {
	h := r.Raw.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
