// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betterauth/betterauth/pkg/core"
)

func TestAuthorizeUnverifiedClientGoesToErrorPage(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)

	cases := []struct {
		name      string
		mutate    func(url.Values)
		wantError string
	}{
		{"missing client_id", func(q url.Values) { q.Del("client_id") }, "invalid_request"},
		{"unknown client_id", func(q url.Values) { q.Set("client_id", "nope") }, "invalid_client"},
		{"unregistered redirect_uri", func(q url.Values) { q.Set("redirect_uri", "https://evil.example.com/cb") }, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := authParams("web-client")
			tc.mutate(params)

			loc := location(t, e.authorize(t, params))
			require.True(t, strings.HasSuffix(loc.Path, "/api/auth/error"), "redirected to %s", loc)
			assert.Equal(t, tc.wantError, loc.Query().Get("error"))
			// Nothing may bounce to an unvalidated target.
			assert.NotContains(t, loc.String(), "evil.example.com")
		})
	}
}

func TestAuthorizeDisabledClient(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, func(c *core.OAuthClient) { c.Disabled = true })

	loc := location(t, e.authorize(t, authParams("web-client")))
	require.True(t, strings.HasSuffix(loc.Path, "/api/auth/error"))
	assert.Equal(t, "invalid_client", loc.Query().Get("error"))
}

func TestAuthorizeRedirectsToLoginWithoutSession(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)

	resp := e.authorize(t, authParams("web-client"))
	loc := location(t, resp)
	assert.True(t, strings.HasSuffix(loc.Path, "/sign-in"), "redirected to %s", loc)

	cookies := strings.Join(resp.Header.Values("Set-Cookie"), "; ")
	assert.Contains(t, cookies, "oidc_login_prompt", "authorize must stash the request for the resume hook")
}

func TestAuthorizeIssuesCode(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "Code User", "code@example.com", "correct horse battery")

	loc := location(t, e.authorize(t, authParams("web-client")))
	require.True(t, strings.HasPrefix(loc.String(), testCallback), "redirected to %s", loc)

	code := loc.Query().Get("code")
	require.Len(t, code, 32)
	assert.Equal(t, "xyz", loc.Query().Get("state"))

	// The code is backed by a pending verification record.
	v, err := e.auth.Store.FindVerification(context.Background(), code)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Contains(t, v.Value, `"codeChallenge"`)
}

func TestAuthorizeValidation(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "Strict User", "strict@example.com", "correct horse battery")

	cases := []struct {
		name      string
		mutate    func(url.Values)
		wantError string
	}{
		{"unsupported response type", func(q url.Values) { q.Set("response_type", "token") }, "unsupported_response_type"},
		{"scope outside whitelist", func(q url.Values) { q.Set("scope", "payments") }, "invalid_scope"},
		{"plain challenge rejected by default", func(q url.Values) { q.Set("code_challenge_method", "plain") }, "invalid_request"},
		{"unknown challenge method", func(q url.Values) { q.Set("code_challenge_method", "S512") }, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := authParams("web-client")
			tc.mutate(params)

			loc := location(t, e.authorize(t, params))
			require.True(t, strings.HasPrefix(loc.String(), testCallback), "errors after client validation go to the callback, got %s", loc)
			assert.Equal(t, tc.wantError, loc.Query().Get("error"))
			assert.Equal(t, "xyz", loc.Query().Get("state"), "state is echoed on errors")
		})
	}
}

func TestAuthorizePublicClientRequiresPKCE(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, func(c *core.OAuthClient) {
		c.ClientID = "native-app"
		c.ClientSecret = ""
		c.Public = true
	})
	e.signUp(t, "Native User", "native@example.com", "correct horse battery")

	params := authParams("native-app")
	params.Del("code_challenge")
	params.Del("code_challenge_method")

	loc := location(t, e.authorize(t, params))
	require.True(t, strings.HasPrefix(loc.String(), testCallback))
	assert.Equal(t, "invalid_request", loc.Query().Get("error"))
	assert.Contains(t, loc.Query().Get("error_description"), "code_challenge")
}

func TestAuthorizeOfflineAccessRequiresPKCE(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "Offline User", "offline@example.com", "correct horse battery")

	params := authParams("web-client")
	params.Set("scope", "openid offline_access")
	params.Del("code_challenge")
	params.Del("code_challenge_method")

	loc := location(t, e.authorize(t, params))
	require.True(t, strings.HasPrefix(loc.String(), testCallback))
	assert.Equal(t, "invalid_request", loc.Query().Get("error"))
	assert.Contains(t, loc.Query().Get("error_description"), "offline_access")
}

func TestAuthorizePlainChallengeWhenAllowed(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(o *Options) { o.AllowPlainCodeChallengeMethod = true })
	e.seedClient(t, nil)
	e.signUp(t, "Plain User", "plain@example.com", "correct horse battery")

	params := authParams("web-client")
	params.Set("code_challenge", pkceVerifier) // plain: challenge == verifier
	params.Set("code_challenge_method", "plain")

	code := e.obtainCode(t, params)
	assert.Len(t, code, 32)
}

func TestAuthorizePromptLoginForcesReauthentication(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.seedClient(t, nil)
	e.signUp(t, "Prompted User", "prompted@example.com", "correct horse battery")

	params := authParams("web-client")
	params.Set("prompt", "login")

	loc := location(t, e.authorize(t, params))
	assert.True(t, strings.HasSuffix(loc.Path, "/sign-in"), "prompt=login must re-authenticate even with a session, got %s", loc)
}
