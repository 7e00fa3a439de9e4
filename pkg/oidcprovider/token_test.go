// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

func TestAuthorizationCodeGrant(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	userID := e.signUp(t, "Token User", "token@example.com", "correct horse battery")

	params := authParams("web-client")
	params.Set("nonce", "n-0S6_WzA2Mj")
	code := e.obtainCode(t, params)

	resp, body := e.postForm(t, "/oauth2/token", codeTokenForm("web-client", code))
	require.Equal(t, 200, resp.StatusCode, "token: %v", body)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, float64(3600), body["expires_in"])
	assert.Equal(t, "openid profile", body["scope"])
	assert.NotContains(t, body, "refresh_token", "no offline_access, no refresh token")

	access, _ := body["access_token"].(string)
	require.NotEmpty(t, access)

	idToken, _ := body["id_token"].(string)
	require.NotEmpty(t, idToken)
	claims, err := crypto.ParseJWT("oidc-provider-test-secret-0123456789", idToken)
	require.NoError(t, err)
	assert.Equal(t, e.auth.Issuer(), claims["iss"])
	assert.Equal(t, "web-client", claims["aud"])
	assert.Equal(t, userID, claims["sub"])
	assert.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
	assert.Equal(t, crypto.AtHash(access), claims["at_hash"])
	assert.Equal(t, "Token User", claims["name"])
	assert.NotContains(t, claims, "email", "email scope was not granted")
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "Single Use", "single@example.com", "correct horse battery")

	code := e.obtainCode(t, authParams("web-client"))

	resp, _ := e.postForm(t, "/oauth2/token", codeTokenForm("web-client", code))
	require.Equal(t, 200, resp.StatusCode)

	resp, body := e.postForm(t, "/oauth2/token", codeTokenForm("web-client", code))
	require.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestTokenPKCEEnforcement(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "PKCE User", "pkce@example.com", "correct horse battery")

	t.Run("wrong verifier", func(t *testing.T) {
		code := e.obtainCode(t, authParams("web-client"))
		form := codeTokenForm("web-client", code)
		form.Set("code_verifier", "wrong-wrong-wrong-wrong-wrong-wrong-wrong-wr")

		resp, body := e.postForm(t, "/oauth2/token", form)
		require.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "invalid_grant", body["error"])
	})

	t.Run("missing verifier", func(t *testing.T) {
		code := e.obtainCode(t, authParams("web-client"))
		form := codeTokenForm("web-client", code)
		form.Del("code_verifier")

		resp, body := e.postForm(t, "/oauth2/token", form)
		require.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "invalid_request", body["error"])
	})
}

func TestTokenRedirectURIMismatch(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "URI User", "uri@example.com", "correct horse battery")

	code := e.obtainCode(t, authParams("web-client"))
	form := codeTokenForm("web-client", code)
	form.Set("redirect_uri", "https://app.example.com/other")

	resp, body := e.postForm(t, "/oauth2/token", form)
	require.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestRefreshTokenRotationAndReplay(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "Refresh User", "refresh@example.com", "correct horse battery")

	params := authParams("web-client")
	params.Set("scope", "openid offline_access")
	code := e.obtainCode(t, params)

	resp, body := e.postForm(t, "/oauth2/token", codeTokenForm("web-client", code))
	require.Equal(t, 200, resp.StatusCode, "token: %v", body)
	first, _ := body["refresh_token"].(string)
	require.NotEmpty(t, first, "offline_access grants a refresh token")

	refreshForm := func(token string) url.Values {
		return url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {token},
			"client_id":     {"web-client"},
			"client_secret": {testClientSecret},
		}
	}

	// Rotation: a fresh pair comes back and the old token dies.
	resp, body = e.postForm(t, "/oauth2/token", refreshForm(first))
	require.Equal(t, 200, resp.StatusCode, "refresh: %v", body)
	second, _ := body["refresh_token"].(string)
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)
	assert.NotEmpty(t, body["access_token"])

	// Replaying the rotated-out token revokes the whole chain.
	resp, body = e.postForm(t, "/oauth2/token", refreshForm(first))
	require.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "invalid_grant", body["error"])

	resp, body = e.postForm(t, "/oauth2/token", refreshForm(second))
	require.Equal(t, 400, resp.StatusCode, "descendant must be dead after replay")
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestRefreshTokenScopeNarrowing(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "Narrow User", "narrow@example.com", "correct horse battery")

	params := authParams("web-client")
	params.Set("scope", "openid profile offline_access")
	code := e.obtainCode(t, params)

	_, body := e.postForm(t, "/oauth2/token", codeTokenForm("web-client", code))
	refresh, _ := body["refresh_token"].(string)
	require.NotEmpty(t, refresh)

	resp, body := e.postForm(t, "/oauth2/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
		"client_id":     {"web-client"},
		"client_secret": {testClientSecret},
		"scope":         {"openid"},
	})
	require.Equal(t, 200, resp.StatusCode, "narrowed refresh: %v", body)
	assert.Equal(t, "openid", body["scope"])

	refresh, _ = body["refresh_token"].(string)
	resp, body = e.postForm(t, "/oauth2/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
		"client_id":     {"web-client"},
		"client_secret": {testClientSecret},
		"scope":         {"openid profile email"},
	})
	require.Equal(t, 400, resp.StatusCode, "widening beyond the original grant must fail")
	assert.Equal(t, "invalid_scope", body["error"])
}

func TestClientCredentialsGrant(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, func(c *core.OAuthClient) {
		c.ClientID = "worker"
		c.Scopes = []string{"api:read", "api:write"}
	})

	resp, body := e.postForm(t, "/oauth2/token", url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"api:read"},
	}, "worker", testClientSecret)
	require.Equal(t, 200, resp.StatusCode, "client_credentials: %v", body)
	assert.NotEmpty(t, body["access_token"])
	assert.Equal(t, "api:read", body["scope"])
	assert.NotContains(t, body, "refresh_token")
	assert.NotContains(t, body, "id_token")

	t.Run("user scopes rejected", func(t *testing.T) {
		resp, body := e.postForm(t, "/oauth2/token", url.Values{
			"grant_type": {"client_credentials"},
			"scope":      {"openid"},
		}, "worker", testClientSecret)
		require.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "invalid_scope", body["error"])
	})

	t.Run("public client rejected", func(t *testing.T) {
		e.seedClient(t, func(c *core.OAuthClient) {
			c.ClientID = "native"
			c.ClientSecret = ""
			c.Public = true
		})
		resp, body := e.postForm(t, "/oauth2/token", url.Values{
			"grant_type": {"client_credentials"},
			"client_id":  {"native"},
		})
		require.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "unauthorized_client", body["error"])
	})
}

func TestTokenClientAuthentication(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)

	t.Run("wrong secret in body", func(t *testing.T) {
		resp, body := e.postForm(t, "/oauth2/token", url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {"web-client"},
			"client_secret": {"not-the-secret"},
		})
		require.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, "invalid_client", body["error"])
	})

	t.Run("wrong secret via basic auth", func(t *testing.T) {
		resp, body := e.postForm(t, "/oauth2/token", url.Values{
			"grant_type": {"client_credentials"},
		}, "web-client", "not-the-secret")
		require.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, "invalid_client", body["error"])
		assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_client")
	})

	t.Run("missing grant_type", func(t *testing.T) {
		resp, body := e.postForm(t, "/oauth2/token", url.Values{
			"client_id":     {"web-client"},
			"client_secret": {testClientSecret},
		})
		require.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, "invalid_request", body["error"])
	})
}

func TestTokenUnsupportedGrantType(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)

	resp, body := e.postForm(t, "/oauth2/token", url.Values{
		"grant_type":    {"password"},
		"client_id":     {"web-client"},
		"client_secret": {testClientSecret},
	})
	require.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "unsupported_grant_type", body["error"])
}

func TestTokenGrantTypeRestriction(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, func(c *core.OAuthClient) {
		c.GrantTypes = []string{GrantAuthorizationCode}
	})

	resp, body := e.postForm(t, "/oauth2/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"web-client"},
		"client_secret": {testClientSecret},
	})
	require.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "unauthorized_client", body["error"])
}
