// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
	"github.com/betterauth/betterauth/pkg/jwks"
)

// tokenIssue carries everything a grant resolved before minting tokens.
type tokenIssue struct {
	user        *core.User // nil for machine-only grants
	scopes      []string
	nonce       string
	authTime    time.Time
	sessionID   string
	resource    string
	withRefresh bool
	refresh     *core.OAuthRefreshToken // pre-rotated replacement, when refreshing
	refreshRaw  string                  // raw value of refresh, echoed to the client
	actor       map[string]any          // act claim for delegation
}

// issueTokens mints the token endpoint response for a resolved grant: an
// access token, a refresh token when the grant carries offline_access, and
// an ID token when it carries openid.
func (p *Plugin) issueTokens(r *auth.Request, client *core.OAuthClient, iss tokenIssue) (any, error) {
	refresh, refreshRaw := iss.refresh, iss.refreshRaw
	if refresh == nil && iss.withRefresh {
		refreshRaw = crypto.NewOpaqueToken()
		userID := ""
		if iss.user != nil {
			userID = iss.user.ID
		}
		created, err := p.auth.Store.CreateRefreshToken(r.Context(), &core.OAuthRefreshToken{
			Token:     refreshRaw,
			ClientID:  client.ClientID,
			UserID:    userID,
			SessionID: iss.sessionID,
			Scopes:    iss.scopes,
			ExpiresAt: time.Now().Add(p.opts.RefreshTokenTTL),
		})
		if err != nil {
			return nil, p.serverError(r, "creating refresh token", err)
		}
		refresh = created
	}

	refreshID := ""
	if refresh != nil {
		refreshID = refresh.ID
	}
	accessRaw, err := p.issueAccessToken(r, client, iss, refreshID)
	if err != nil {
		return nil, err
	}

	resp := map[string]any{
		"access_token": accessRaw,
		"token_type":   "Bearer",
		"expires_in":   int(p.opts.AccessTokenTTL / time.Second),
	}
	if len(iss.scopes) > 0 {
		resp["scope"] = strings.Join(iss.scopes, " ")
	}
	if refresh != nil {
		resp["refresh_token"] = refreshRaw
	}
	if iss.user != nil && slices.Contains(iss.scopes, "openid") {
		idToken, err := p.signIDToken(r, client, iss, accessRaw)
		if err != nil {
			return nil, p.serverError(r, "signing id token", err)
		}
		resp["id_token"] = idToken
	}
	return resp, nil
}

// issueAccessToken mints either an opaque stored token or a stateless JWT,
// depending on configuration and the requested resource.
func (p *Plugin) issueAccessToken(r *auth.Request, client *core.OAuthClient, iss tokenIssue, refreshID string) (string, error) {
	if iss.resource != "" && !slices.Contains(p.opts.TrustedResources, iss.resource) {
		return "", auth.NewOAuthError(auth.OAuthInvalidRequest, "unrecognized resource")
	}
	if p.wantsJWT(client, iss.resource) {
		token, err := p.signAccessJWT(r, client, iss)
		if err != nil {
			return "", p.serverError(r, "signing access token", err)
		}
		return token, nil
	}

	raw := crypto.NewOpaqueToken()
	userID := ""
	if iss.user != nil {
		userID = iss.user.ID
	}
	if _, err := p.auth.Store.CreateAccessToken(r.Context(), &core.OAuthAccessToken{
		Token:     raw,
		ClientID:  client.ClientID,
		UserID:    userID,
		SessionID: iss.sessionID,
		Scopes:    iss.scopes,
		ExpiresAt: time.Now().Add(p.opts.AccessTokenTTL),
		RefreshID: refreshID,
	}); err != nil {
		return "", p.serverError(r, "creating access token", err)
	}
	return raw, nil
}

// wantsJWT reports whether the access token should be a signed JWT rather
// than an opaque stored token. Audience-restricted tokens are always JWTs so
// the resource server can verify them offline.
func (p *Plugin) wantsJWT(client *core.OAuthClient, resource string) bool {
	if p.opts.JWTAccessTokens || resource != "" {
		return true
	}
	return client.Metadata != nil && client.Metadata["access_token_format"] == "jwt"
}

func (p *Plugin) signAccessJWT(r *auth.Request, client *core.OAuthClient, iss tokenIssue) (string, error) {
	now := time.Now()
	aud := client.ClientID
	if iss.resource != "" {
		aud = iss.resource
	}
	claims := jwt.MapClaims{
		"iss":       p.auth.Issuer(),
		"aud":       aud,
		"client_id": client.ClientID,
		"iat":       now.Unix(),
		"exp":       now.Add(p.opts.AccessTokenTTL).Unix(),
		"jti":       crypto.NewToken(),
	}
	if len(iss.scopes) > 0 {
		claims["scope"] = strings.Join(iss.scopes, " ")
	}
	if iss.user != nil {
		claims["sub"] = iss.user.ID
	}
	if iss.actor != nil {
		claims["act"] = iss.actor
	}
	return p.signClaims(r, claims)
}

func (p *Plugin) signIDToken(r *auth.Request, client *core.OAuthClient, iss tokenIssue, accessRaw string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":     p.auth.Issuer(),
		"sub":     iss.user.ID,
		"aud":     client.ClientID,
		"iat":     now.Unix(),
		"exp":     now.Add(p.opts.AccessTokenTTL).Unix(),
		"at_hash": crypto.AtHash(accessRaw),
	}
	if !iss.authTime.IsZero() {
		claims["auth_time"] = iss.authTime.Unix()
	}
	if iss.nonce != "" {
		claims["nonce"] = iss.nonce
	}
	for k, v := range profileClaims(iss.user, iss.scopes) {
		claims[k] = v
	}
	return p.signClaims(r, claims)
}

// signClaims signs with the rotating JWKS keys when that plugin is present,
// falling back to an HMAC over the primary secret.
func (p *Plugin) signClaims(r *auth.Request, claims jwt.MapClaims) (string, error) {
	if signer, ok := auth.Lookup[*jwks.Plugin](p.auth, jwks.PluginID); ok {
		return signer.Sign(r.Context(), claims)
	}
	return crypto.MakeJWT(p.auth.Cookies.Secret(), claims)
}

// verifySignedToken checks a JWT against the JWKS keys or the shared secrets
// and returns its claims.
func (p *Plugin) verifySignedToken(r *auth.Request, raw string) (jwt.MapClaims, error) {
	if signer, ok := auth.Lookup[*jwks.Plugin](p.auth, jwks.PluginID); ok {
		if claims, err := signer.Verify(r.Context(), raw); err == nil {
			return claims, nil
		}
	}
	var lastErr error
	for _, secret := range p.auth.Cookies.Secrets() {
		claims, err := crypto.ParseJWT(secret, raw)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("token signature cannot be verified")
	}
	return nil, lastErr
}

// profileClaims maps granted scopes onto the OIDC standard claims backed by
// the user record.
func profileClaims(user *core.User, scopes []string) map[string]any {
	claims := map[string]any{}
	for _, scope := range scopes {
		switch scope {
		case "profile":
			claims["name"] = user.Name
			if given, family, ok := strings.Cut(user.Name, " "); ok {
				claims["given_name"] = given
				claims["family_name"] = family
			}
			if user.Image != "" {
				claims["picture"] = user.Image
			}
		case "email":
			claims["email"] = user.Email
			claims["email_verified"] = user.EmailVerified
		}
	}
	return claims
}
