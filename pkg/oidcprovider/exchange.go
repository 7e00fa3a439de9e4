// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// tokenTypeAccess is the RFC 8693 token type identifier for access tokens,
// the only type this server exchanges.
const tokenTypeAccess = "urn:ietf:params:oauth:token-type:access_token"

// grantTokenExchange implements RFC 8693 delegation: a client trades an
// access token it holds for one scoped to itself, optionally narrowing the
// scope and recording the acting party in an act claim.
func (p *Plugin) grantTokenExchange(r *auth.Request, client *core.OAuthClient) (any, error) {
	subjectRaw := r.BodyValue("subject_token")
	if subjectRaw == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "subject_token is required")
	}
	if t := r.BodyValue("subject_token_type"); t != "" && t != tokenTypeAccess {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "unsupported subject_token_type")
	}

	subject, err := p.resolveSubject(r, subjectRaw)
	if err != nil {
		return nil, err
	}

	scopes := subject.scopes
	if requested := strings.Fields(r.BodyValue("scope")); len(requested) > 0 {
		if !scopesCovered(subject.scopes, requested) {
			return nil, auth.NewOAuthError(auth.OAuthInvalidScope, "requested scope exceeds the subject token")
		}
		scopes = requested
	}

	var actor map[string]any
	if actorRaw := r.BodyValue("actor_token"); actorRaw != "" {
		if t := r.BodyValue("actor_token_type"); t != "" && t != tokenTypeAccess {
			return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "unsupported actor_token_type")
		}
		act, err := p.resolveSubject(r, actorRaw)
		if err != nil {
			return nil, err
		}
		actor = map[string]any{"client_id": act.clientID}
		if act.userID != "" {
			actor["sub"] = act.userID
		}
	}

	resource := r.BodyValue("resource")
	if resource == "" {
		resource = r.BodyValue("audience")
	}

	var user *core.User
	if subject.userID != "" {
		user, err = p.auth.Store.FindUserByID(r.Context(), subject.userID)
		if err != nil {
			return nil, p.serverError(r, "loading user", err)
		}
		if user == nil {
			return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "subject user no longer exists")
		}
	}

	accessRaw, err := p.issueAccessToken(r, client, tokenIssue{
		user:     user,
		scopes:   scopes,
		resource: resource,
		actor:    actor,
	}, "")
	if err != nil {
		return nil, err
	}

	resp := map[string]any{
		"access_token":      accessRaw,
		"issued_token_type": tokenTypeAccess,
		"token_type":        "Bearer",
		"expires_in":        int(p.opts.AccessTokenTTL / time.Second),
	}
	if len(scopes) > 0 {
		resp["scope"] = strings.Join(scopes, " ")
	}
	return resp, nil
}

// tokenSubject is a validated inbound token: who it represents and what it
// may do.
type tokenSubject struct {
	userID   string
	clientID string
	scopes   []string
}

// resolveSubject validates an inbound token, accepting both stateless JWTs
// and opaque stored tokens.
func (p *Plugin) resolveSubject(r *auth.Request, raw string) (*tokenSubject, error) {
	if strings.Count(raw, ".") == 2 {
		claims, err := p.verifySignedToken(r, raw)
		if err != nil {
			return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "subject token is invalid")
		}
		if iss, _ := claims["iss"].(string); iss != p.auth.Issuer() {
			return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "subject token was not issued here")
		}
		sub := &tokenSubject{}
		sub.userID, _ = claims["sub"].(string)
		sub.clientID, _ = claims["client_id"].(string)
		if scope, _ := claims["scope"].(string); scope != "" {
			sub.scopes = strings.Fields(scope)
		}
		return sub, nil
	}

	at, err := p.auth.Store.FindAccessToken(r.Context(), raw)
	if err != nil {
		return nil, p.serverError(r, "loading subject token", err)
	}
	if at == nil || time.Now().After(at.ExpiresAt) {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "subject token is invalid or expired")
	}
	return &tokenSubject{userID: at.UserID, clientID: at.ClientID, scopes: at.Scopes}, nil
}
