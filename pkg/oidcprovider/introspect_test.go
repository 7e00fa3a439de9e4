// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

func introspectForm(token string) url.Values {
	return url.Values{"token": {token}}
}

func TestIntrospectOpaqueTokens(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, func(c *core.OAuthClient) { c.Scopes = []string{"api:read"} })

	_, body := e.postForm(t, "/oauth2/token", url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"api:read"},
	}, "web-client", testClientSecret)
	access, _ := body["access_token"].(string)
	require.NotEmpty(t, access)

	resp, body := e.postForm(t, "/oauth2/introspect", introspectForm(access), "web-client", testClientSecret)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "web-client", body["client_id"])
	assert.Equal(t, "api:read", body["scope"])
	assert.Equal(t, "Bearer", body["token_type"])

	t.Run("unknown token", func(t *testing.T) {
		resp, body := e.postForm(t, "/oauth2/introspect", introspectForm("not-a-token"), "web-client", testClientSecret)
		require.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, false, body["active"])
	})

	t.Run("requires client auth", func(t *testing.T) {
		resp, body := e.postForm(t, "/oauth2/introspect", introspectForm(access))
		require.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, "invalid_client", body["error"])
	})
}

func TestIntrospectDeadTokens(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	ctx := context.Background()

	t.Run("expired access token", func(t *testing.T) {
		raw := crypto.NewOpaqueToken()
		_, err := e.auth.Store.CreateAccessToken(ctx, &core.OAuthAccessToken{
			Token:     raw,
			ClientID:  "web-client",
			ExpiresAt: time.Now().Add(-time.Minute),
		})
		require.NoError(t, err)

		_, body := e.postForm(t, "/oauth2/introspect", introspectForm(raw), "web-client", testClientSecret)
		assert.Equal(t, false, body["active"])
	})

	t.Run("token bound to a dead session", func(t *testing.T) {
		raw := crypto.NewOpaqueToken()
		_, err := e.auth.Store.CreateAccessToken(ctx, &core.OAuthAccessToken{
			Token:     raw,
			ClientID:  "web-client",
			UserID:    "u1",
			SessionID: "gone",
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)

		_, body := e.postForm(t, "/oauth2/introspect", introspectForm(raw), "web-client", testClientSecret)
		assert.Equal(t, false, body["active"])
	})
}

func TestIntrospectRefreshToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "Intro User", "intro@example.com", "correct horse battery")

	params := authParams("web-client")
	params.Set("scope", "openid offline_access")
	code := e.obtainCode(t, params)
	_, body := e.postForm(t, "/oauth2/token", codeTokenForm("web-client", code))
	refresh, _ := body["refresh_token"].(string)
	require.NotEmpty(t, refresh)

	_, body = e.postForm(t, "/oauth2/introspect", introspectForm(refresh), "web-client", testClientSecret)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "refresh_token", body["token_type"])
	assert.NotEmpty(t, body["sub"])
}

func TestIntrospectJWTAccessToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(o *Options) { o.JWTAccessTokens = true })
	e.seedClient(t, nil)
	e.signUp(t, "JWT User", "jwt@example.com", "correct horse battery")

	code := e.obtainCode(t, authParams("web-client"))
	_, body := e.postForm(t, "/oauth2/token", codeTokenForm("web-client", code))
	access, _ := body["access_token"].(string)
	require.NotEmpty(t, access)

	_, body = e.postForm(t, "/oauth2/introspect", introspectForm(access), "web-client", testClientSecret)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, e.auth.Issuer(), body["iss"])
	assert.Equal(t, "web-client", body["client_id"])

	t.Run("tampered signature", func(t *testing.T) {
		_, body := e.postForm(t, "/oauth2/introspect", introspectForm(access+"x"), "web-client", testClientSecret)
		assert.Equal(t, false, body["active"])
	})
}

func TestRevokeRefreshTokenKillsItsAccessTokens(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "Revoke User", "revoke@example.com", "correct horse battery")

	params := authParams("web-client")
	params.Set("scope", "openid offline_access")
	code := e.obtainCode(t, params)
	_, body := e.postForm(t, "/oauth2/token", codeTokenForm("web-client", code))
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	require.NotEmpty(t, refresh)

	resp, body := e.postForm(t, "/oauth2/revoke", url.Values{"token": {refresh}}, "web-client", testClientSecret)
	require.Equal(t, 200, resp.StatusCode, "revoke: %v", body)

	_, body = e.postForm(t, "/oauth2/introspect", introspectForm(access), "web-client", testClientSecret)
	assert.Equal(t, false, body["active"], "access tokens minted from the refresh token must die with it")

	resp, body = e.postForm(t, "/oauth2/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
		"client_id":     {"web-client"},
		"client_secret": {testClientSecret},
	})
	require.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestRevokeIgnoresForeignTokens(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.seedClient(t, func(c *core.OAuthClient) {
		c.ClientID = "other-client"
		c.Scopes = []string{"api:read"}
	})

	_, body := e.postForm(t, "/oauth2/token", url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"api:read"},
	}, "other-client", testClientSecret)
	access, _ := body["access_token"].(string)
	require.NotEmpty(t, access)

	// web-client revoking other-client's token: 200 per RFC 7009, no effect.
	resp, _ := e.postForm(t, "/oauth2/revoke", url.Values{"token": {access}}, "web-client", testClientSecret)
	require.Equal(t, 200, resp.StatusCode)

	_, body = e.postForm(t, "/oauth2/introspect", introspectForm(access), "other-client", testClientSecret)
	assert.Equal(t, true, body["active"])
}

func TestTokenExchange(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(o *Options) {
		o.JWTAccessTokens = true
		o.TrustedResources = []string{"https://api.example.com"}
	})
	e.seedClient(t, nil)
	e.seedClient(t, func(c *core.OAuthClient) {
		c.ClientID = "exchange-svc"
	})
	userID := e.signUp(t, "Subject User", "subject@example.com", "correct horse battery")

	code := e.obtainCode(t, authParams("web-client"))
	_, body := e.postForm(t, "/oauth2/token", codeTokenForm("web-client", code))
	subjectToken, _ := body["access_token"].(string)
	require.NotEmpty(t, subjectToken)

	resp, body := e.postForm(t, "/oauth2/token", url.Values{
		"grant_type":         {GrantTokenExchange},
		"subject_token":      {subjectToken},
		"subject_token_type": {tokenTypeAccess},
		"scope":              {"openid"},
		"audience":           {"https://api.example.com"},
	}, "exchange-svc", testClientSecret)
	require.Equal(t, 200, resp.StatusCode, "exchange: %v", body)
	assert.Equal(t, tokenTypeAccess, body["issued_token_type"])
	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, "openid", body["scope"])

	exchanged, _ := body["access_token"].(string)
	claims, err := crypto.ParseJWT("oidc-provider-test-secret-0123456789", exchanged)
	require.NoError(t, err)
	assert.Equal(t, userID, claims["sub"], "the subject identity is preserved")
	assert.Equal(t, "exchange-svc", claims["client_id"], "the token belongs to the exchanging client")
	assert.Equal(t, "https://api.example.com", claims["aud"])

	t.Run("scope widening rejected", func(t *testing.T) {
		resp, body := e.postForm(t, "/oauth2/token", url.Values{
			"grant_type":    {GrantTokenExchange},
			"subject_token": {subjectToken},
			"scope":         {"openid profile email"},
		}, "exchange-svc", testClientSecret)
		require.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "invalid_scope", body["error"])
	})

	t.Run("unknown resource rejected", func(t *testing.T) {
		resp, body := e.postForm(t, "/oauth2/token", url.Values{
			"grant_type":    {GrantTokenExchange},
			"subject_token": {subjectToken},
			"resource":      {"https://elsewhere.example.com"},
		}, "exchange-svc", testClientSecret)
		require.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "invalid_request", body["error"])
	})

	t.Run("actor token adds act claim", func(t *testing.T) {
		_, body := e.postForm(t, "/oauth2/token", url.Values{
			"grant_type": {"client_credentials"},
		}, "exchange-svc", testClientSecret)
		actorToken, _ := body["access_token"].(string)
		require.NotEmpty(t, actorToken)

		resp, body := e.postForm(t, "/oauth2/token", url.Values{
			"grant_type":    {GrantTokenExchange},
			"subject_token": {subjectToken},
			"actor_token":   {actorToken},
		}, "exchange-svc", testClientSecret)
		require.Equal(t, 200, resp.StatusCode, "exchange with actor: %v", body)

		exchanged, _ := body["access_token"].(string)
		claims, err := crypto.ParseJWT("oidc-provider-test-secret-0123456789", exchanged)
		require.NoError(t, err)
		act, _ := claims["act"].(map[string]any)
		require.NotNil(t, act, "act claim records the acting party")
		assert.Equal(t, "exchange-svc", act["client_id"])
	})
}

func TestUserinfo(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	userID := e.signUp(t, "Info User", "info@example.com", "correct horse battery")

	params := authParams("web-client")
	params.Set("scope", "openid profile email")
	code := e.obtainCode(t, params)
	_, body := e.postForm(t, "/oauth2/token", codeTokenForm("web-client", code))
	access, _ := body["access_token"].(string)
	require.NotEmpty(t, access)

	resp, body := e.getJSON(t, "/oauth2/userinfo", "Authorization", "Bearer "+access)
	require.Equal(t, 200, resp.StatusCode, "userinfo: %v", body)
	assert.Equal(t, userID, body["sub"])
	assert.Equal(t, "Info User", body["name"])
	assert.Equal(t, "Info", body["given_name"])
	assert.Equal(t, "User", body["family_name"])
	assert.Equal(t, "info@example.com", body["email"])
	assert.Equal(t, false, body["email_verified"])

	t.Run("missing token", func(t *testing.T) {
		resp, body := e.getJSON(t, "/oauth2/userinfo")
		require.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, "invalid_token", body["error"])
		assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("token without openid", func(t *testing.T) {
		e.seedClient(t, func(c *core.OAuthClient) {
			c.ClientID = "machine"
			c.Scopes = []string{"api:read"}
		})
		_, body := e.postForm(t, "/oauth2/token", url.Values{
			"grant_type": {"client_credentials"},
			"scope":      {"api:read"},
		}, "machine", testClientSecret)
		machineToken, _ := body["access_token"].(string)
		require.NotEmpty(t, machineToken)

		resp, body := e.getJSON(t, "/oauth2/userinfo", "Authorization", "Bearer "+machineToken)
		require.Equal(t, 403, resp.StatusCode)
		assert.Equal(t, "insufficient_scope", body["error"])
	})
}
