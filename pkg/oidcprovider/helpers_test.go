// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/betterauth/betterauth/pkg/account"
	"github.com/betterauth/betterauth/pkg/adapter/memory"
	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// PKCE pair from RFC 7636 appendix B.
const (
	pkceVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	pkceChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

const (
	testCallback     = "https://app.example.com/callback"
	testClientSecret = "client-secret-0123456789abcdef"
)

type env struct {
	auth   *auth.Context
	server *httptest.Server
	client *http.Client
}

func newEnv(t *testing.T, mutate func(*Options)) *env {
	t.Helper()

	opts := Options{}
	if mutate != nil {
		mutate(&opts)
	}

	authOpts := &auth.Options{
		AppName:  "OIDC Test",
		Secret:   "oidc-provider-test-secret-0123456789",
		Database: memory.New(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	ctx, err := auth.NewContext(authOpts, account.New(account.Options{}), New(opts))
	require.NoError(t, err)

	server := httptest.NewServer(ctx.Handler())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		// Authorization redirects point at foreign origins; tests read the
		// Location header instead of following it.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &env{auth: ctx, server: server, client: client}
}

// seedClient registers an OAuth client directly in the store. The default is
// a confidential client that skips consent.
func (e *env) seedClient(t *testing.T, mutate func(*core.OAuthClient)) *core.OAuthClient {
	t.Helper()
	client := &core.OAuthClient{
		ClientID:     "web-client",
		ClientSecret: testClientSecret,
		Name:         "Web Client",
		RedirectURIs: []string{testCallback},
		SkipConsent:  true,
	}
	if mutate != nil {
		mutate(client)
	}
	created, err := e.auth.Store.CreateOAuthClient(context.Background(), client)
	require.NoError(t, err)
	return created
}

// signUp registers a user; the jar ends up holding their session cookie.
func (e *env) signUp(t *testing.T, name, email, password string) string {
	t.Helper()
	resp, body := e.postJSON(t, "/sign-up/email", map[string]any{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, 200, resp.StatusCode, "sign-up: %v", body)
	user, _ := body["user"].(map[string]any)
	require.NotNil(t, user)
	id, _ := user["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func (e *env) postJSON(t *testing.T, path string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := e.client.Post(e.server.URL+"/api/auth"+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

// postForm posts form-encoded data; creds, when given, go into HTTP basic
// auth as (client_id, client_secret).
func (e *env) postForm(t *testing.T, path string, form url.Values, creds ...string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/auth"+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if len(creds) == 2 {
		req.SetBasicAuth(creds[0], creds[1])
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *env) getJSON(t *testing.T, path string, header ...string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/api/auth"+path, nil)
	require.NoError(t, err)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &body))
	}
	return body
}

// authorize fires GET /oauth2/authorize and returns the raw response.
func (e *env) authorize(t *testing.T, params url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + "/api/auth/oauth2/authorize?" + params.Encode())
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

// location asserts a 302 and parses its Location header.
func location(t *testing.T, resp *http.Response) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	return loc
}

// authParams is a baseline authorization request: code flow with the RFC
// 7636 S256 test challenge.
func authParams(clientID string) url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {testCallback},
		"scope":                 {"openid profile"},
		"state":                 {"xyz"},
		"code_challenge":        {pkceChallenge},
		"code_challenge_method": {"S256"},
	}
}

// obtainCode runs an authorize round-trip that must end at the callback and
// returns the authorization code.
func (e *env) obtainCode(t *testing.T, params url.Values) string {
	t.Helper()
	loc := location(t, e.authorize(t, params))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code, "authorize redirect: %s", loc)
	return code
}

// codeTokenForm is the matching token request for authParams + obtainCode.
func codeTokenForm(clientID, code string) url.Values {
	return url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testCallback},
		"client_id":     {clientID},
		"client_secret": {testClientSecret},
		"code_verifier": {pkceVerifier},
	}
}
