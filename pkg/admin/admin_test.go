// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betterauth/betterauth/pkg/account"
	"github.com/betterauth/betterauth/pkg/adapter/memory"
	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/cookies"
	"github.com/betterauth/betterauth/pkg/core"
)

type env struct {
	auth   *auth.Context
	server *httptest.Server
	client *http.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()

	ctx, err := auth.NewContext(&auth.Options{
		AppName:  "Admin Test",
		Secret:   "admin-console-test-secret-0123456789",
		Database: memory.New(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, account.New(account.Options{}), New(Options{}))
	require.NoError(t, err)

	server := httptest.NewServer(ctx.Handler())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &env{auth: ctx, server: server, client: &http.Client{Jar: jar}}
}

// browser is a second client against the same server: fresh cookie jar,
// shared database.
func (e *env) browser(t *testing.T) *env {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &env{auth: e.auth, server: e.server, client: &http.Client{Jar: jar}}
}

func (e *env) post(t *testing.T, path string, payload any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := e.client.Post(e.server.URL+"/api/auth"+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp)
}

func (e *env) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + "/api/auth" + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(bytes.TrimSpace(raw)) == 0 || raw[0] != '{' {
		return nil
	}
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func (e *env) signUp(t *testing.T, name, email, password string) map[string]any {
	t.Helper()
	status, body := e.post(t, "/sign-up/email", map[string]any{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, 200, status, "sign-up response: %v", body)
	return body
}

// signUpAdmin signs the main browser in and promotes it. The promotion is a
// direct store write; it takes effect on the next request because sessions
// hydrate their user from the store.
func (e *env) signUpAdmin(t *testing.T) string {
	t.Helper()
	body := e.signUp(t, "Root", "root@example.com", "correct horse battery")
	id := body["user"].(map[string]any)["id"].(string)
	_, err := e.auth.Store.UpdateUser(context.Background(), id, map[string]any{"role": "admin"})
	require.NoError(t, err)
	return id
}

func (e *env) createUser(t *testing.T, name, email, password string) string {
	t.Helper()
	status, body := e.post(t, "/admin/create-user", map[string]any{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, 200, status, "create-user response: %v", body)
	return body["user"].(map[string]any)["id"].(string)
}

func parseTime(t *testing.T, v any) time.Time {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "expected RFC3339 timestamp, got %T", v)
	ts, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return ts
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	anon := e.browser(t)
	status, body := anon.get(t, "/admin/list-users")
	require.Equal(t, 401, status)
	assert.Equal(t, auth.CodeSessionRequired, body["code"])

	e.signUp(t, "Plain", "plain@example.com", "correct horse battery")
	status, body = e.get(t, "/admin/list-users")
	require.Equal(t, 403, status)
	assert.Equal(t, auth.CodeForbidden, body["code"])

	status, body = e.post(t, "/admin/ban-user", map[string]any{"userId": "whoever"})
	require.Equal(t, 403, status)
	assert.Equal(t, auth.CodeForbidden, body["code"])
}

func TestAdminRoleListAndCase(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	body := e.signUp(t, "Multi", "multi@example.com", "correct horse battery")
	id := body["user"].(map[string]any)["id"].(string)
	_, err := e.auth.Store.UpdateUser(context.Background(), id, map[string]any{
		"role": "support,ADMIN",
	})
	require.NoError(t, err)

	status, _ := e.get(t, "/admin/list-users")
	assert.Equal(t, 200, status)
}

func TestCreateUser(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.signUpAdmin(t)

	status, body := e.post(t, "/admin/create-user", map[string]any{
		"name": "Support Agent", "email": "agent@example.com",
		"password": "correct horse battery", "role": "support",
	})
	require.Equal(t, 200, status, "create-user response: %v", body)
	user := body["user"].(map[string]any)
	assert.NotEmpty(t, user["id"])
	assert.Equal(t, "agent@example.com", user["email"])
	assert.Equal(t, "support", user["role"])
	assert.Equal(t, true, user["emailVerified"])

	t.Run("created credentials sign in", func(t *testing.T) {
		other := e.browser(t)
		status, body := other.post(t, "/sign-in/email", map[string]any{
			"email": "agent@example.com", "password": "correct horse battery",
		})
		require.Equal(t, 200, status, "sign-in response: %v", body)
		assert.NotEmpty(t, body["token"])
	})

	t.Run("duplicate email", func(t *testing.T) {
		status, body := e.post(t, "/admin/create-user", map[string]any{
			"name": "Copy", "email": "agent@example.com", "password": "correct horse battery",
		})
		require.Equal(t, 409, status)
		assert.Equal(t, CodeUserAlreadyExists, body["code"])
	})

	t.Run("password policy", func(t *testing.T) {
		status, body := e.post(t, "/admin/create-user", map[string]any{
			"name": "Shorty", "email": "short@example.com", "password": "tiny",
		})
		require.Equal(t, 400, status)
		assert.Equal(t, CodePasswordTooShort, body["code"])

		status, body = e.post(t, "/admin/create-user", map[string]any{
			"name": "Longy", "email": "long@example.com", "password": strings.Repeat("x", 200),
		})
		require.Equal(t, 400, status)
		assert.Equal(t, CodePasswordTooLong, body["code"])
	})

	t.Run("missing email", func(t *testing.T) {
		status, body := e.post(t, "/admin/create-user", map[string]any{
			"name": "Nameless", "password": "correct horse battery",
		})
		require.Equal(t, 400, status)
		assert.Equal(t, auth.CodeInvalidRequest, body["code"])
	})
}

func TestListUsers(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.signUpAdmin(t)
	e.createUser(t, "Alice", "alice@example.com", "correct horse battery")
	e.createUser(t, "Bob", "bob@example.com", "correct horse battery")
	e.createUser(t, "Carol", "carol@example.com", "correct horse battery")

	status, body := e.get(t, "/admin/list-users")
	require.Equal(t, 200, status)
	assert.Equal(t, float64(4), body["total"])
	assert.Len(t, body["users"].([]any), 4)
	assert.Equal(t, float64(100), body["limit"])
	assert.Equal(t, float64(0), body["offset"])

	t.Run("pagination and sorting", func(t *testing.T) {
		status, body := e.get(t, "/admin/list-users?limit=2&offset=2&sortBy=email&sortDirection=asc")
		require.Equal(t, 200, status)
		users := body["users"].([]any)
		require.Len(t, users, 2)
		assert.Equal(t, float64(4), body["total"])
		assert.Equal(t, float64(2), body["limit"])
		assert.Equal(t, float64(2), body["offset"])
		assert.Equal(t, "carol@example.com", users[0].(map[string]any)["email"])
		assert.Equal(t, "root@example.com", users[1].(map[string]any)["email"])
	})

	t.Run("search email contains", func(t *testing.T) {
		status, body := e.get(t, "/admin/list-users?searchValue=ali")
		require.Equal(t, 200, status)
		users := body["users"].([]any)
		require.Len(t, users, 1)
		assert.Equal(t, "alice@example.com", users[0].(map[string]any)["email"])
	})

	t.Run("search name prefix", func(t *testing.T) {
		status, body := e.get(t, "/admin/list-users?searchField=name&searchValue=Bo&searchOperator=starts_with")
		require.Equal(t, 200, status)
		users := body["users"].([]any)
		require.Len(t, users, 1)
		assert.Equal(t, "bob@example.com", users[0].(map[string]any)["email"])
	})

	t.Run("filter by role", func(t *testing.T) {
		status, body := e.get(t, "/admin/list-users?filterField=role&filterValue=admin")
		require.Equal(t, 200, status)
		users := body["users"].([]any)
		require.Len(t, users, 1)
		assert.Equal(t, "root@example.com", users[0].(map[string]any)["email"])
		assert.Equal(t, float64(1), body["total"])
	})

	t.Run("invalid search field", func(t *testing.T) {
		status, body := e.get(t, "/admin/list-users?searchValue=x&searchField=password")
		require.Equal(t, 400, status)
		assert.Equal(t, auth.CodeInvalidRequest, body["code"])
	})

	t.Run("invalid limit", func(t *testing.T) {
		status, body := e.get(t, "/admin/list-users?limit=nope")
		require.Equal(t, 400, status)
		assert.Equal(t, auth.CodeInvalidRequest, body["code"])
	})
}

func TestSetRole(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.signUpAdmin(t)
	id := e.createUser(t, "Morgan", "morgan@example.com", "correct horse battery")

	status, body := e.post(t, "/admin/set-role", map[string]any{
		"userId": id, "role": "moderator",
	})
	require.Equal(t, 200, status)
	assert.Equal(t, "moderator", body["user"].(map[string]any)["role"])

	stored, err := e.auth.Store.FindUserByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "moderator", stored.Role)

	t.Run("unknown user", func(t *testing.T) {
		status, body := e.post(t, "/admin/set-role", map[string]any{
			"userId": "ghost", "role": "moderator",
		})
		require.Equal(t, 404, status)
		assert.Equal(t, CodeUserNotFound, body["code"])
	})

	t.Run("missing role", func(t *testing.T) {
		status, _ := e.post(t, "/admin/set-role", map[string]any{"userId": id})
		assert.Equal(t, 400, status)
	})
}

func TestSetUserPassword(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.signUpAdmin(t)
	id := e.createUser(t, "Riley", "riley@example.com", "original pass phrase")

	status, body := e.post(t, "/admin/set-user-password", map[string]any{
		"userId": id, "newPassword": "replacement pass phrase",
	})
	require.Equal(t, 200, status)
	assert.Equal(t, true, body["status"])

	other := e.browser(t)
	status, _ = other.post(t, "/sign-in/email", map[string]any{
		"email": "riley@example.com", "password": "original pass phrase",
	})
	assert.Equal(t, 401, status)
	status, _ = other.post(t, "/sign-in/email", map[string]any{
		"email": "riley@example.com", "password": "replacement pass phrase",
	})
	assert.Equal(t, 200, status)

	t.Run("policy applies", func(t *testing.T) {
		status, body := e.post(t, "/admin/set-user-password", map[string]any{
			"userId": id, "newPassword": "tiny",
		})
		require.Equal(t, 400, status)
		assert.Equal(t, CodePasswordTooShort, body["code"])
	})

	t.Run("no credential account", func(t *testing.T) {
		// A user provisioned without a password, as a social sign-in would.
		ghost, err := e.auth.Store.CreateUser(context.Background(), &core.User{
			Name: "SSO Only", Email: "sso-only@example.com", EmailVerified: true,
		})
		require.NoError(t, err)

		status, body := e.post(t, "/admin/set-user-password", map[string]any{
			"userId": ghost.ID, "newPassword": "replacement pass phrase",
		})
		require.Equal(t, 404, status)
		assert.Equal(t, CodeCredentialNotFound, body["code"])
	})

	t.Run("unknown user", func(t *testing.T) {
		status, body := e.post(t, "/admin/set-user-password", map[string]any{
			"userId": "ghost", "newPassword": "replacement pass phrase",
		})
		require.Equal(t, 404, status)
		assert.Equal(t, CodeUserNotFound, body["code"])
	})
}

func TestBanUser(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	adminID := e.signUpAdmin(t)
	victimID := e.createUser(t, "Victim", "victim@example.com", "correct horse battery")

	victim := e.browser(t)
	status, _ := victim.post(t, "/sign-in/email", map[string]any{
		"email": "victim@example.com", "password": "correct horse battery",
	})
	require.Equal(t, 200, status)

	status, body := e.post(t, "/admin/ban-user", map[string]any{
		"userId": victimID, "banReason": "spam", "banExpiresIn": 3600,
	})
	require.Equal(t, 200, status, "ban response: %v", body)
	user := body["user"].(map[string]any)
	assert.Equal(t, true, user["banned"])
	assert.Equal(t, "spam", user["banReason"])
	expires := parseTime(t, user["banExpires"])
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	// Every session the user held is gone.
	sessions, err := e.auth.Store.ListSessions(context.Background(), victimID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	_, session := victim.get(t, "/get-session")
	assert.Nil(t, session["user"])

	// And they cannot sign in for a new one.
	status, body = victim.post(t, "/sign-in/email", map[string]any{
		"email": "victim@example.com", "password": "correct horse battery",
	})
	require.Equal(t, 401, status)
	assert.Equal(t, auth.CodeBanned, body["code"])

	t.Run("default reason", func(t *testing.T) {
		id := e.createUser(t, "Quiet", "quiet@example.com", "correct horse battery")
		status, body := e.post(t, "/admin/ban-user", map[string]any{"userId": id})
		require.Equal(t, 200, status)
		assert.Equal(t, "No reason", body["user"].(map[string]any)["banReason"])
		// No expiry given: the ban is permanent.
		assert.Nil(t, body["user"].(map[string]any)["banExpires"])
	})

	t.Run("cannot ban self", func(t *testing.T) {
		status, body := e.post(t, "/admin/ban-user", map[string]any{"userId": adminID})
		require.Equal(t, 400, status)
		assert.Equal(t, CodeCannotBanSelf, body["code"])
	})

	t.Run("unknown user", func(t *testing.T) {
		status, body := e.post(t, "/admin/ban-user", map[string]any{"userId": "ghost"})
		require.Equal(t, 404, status)
		assert.Equal(t, CodeUserNotFound, body["code"])
	})
}

func TestBanExpiryLiftsLazily(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.signUpAdmin(t)
	id := e.createUser(t, "Paroled", "paroled@example.com", "correct horse battery")

	status, _ := e.post(t, "/admin/ban-user", map[string]any{
		"userId": id, "banExpiresIn": 3600,
	})
	require.Equal(t, 200, status)

	// Rewind the expiry instead of waiting an hour.
	ctx := context.Background()
	_, err := e.auth.Store.UpdateUser(ctx, id, map[string]any{
		"banExpires": time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)

	freed := e.browser(t)
	status, _ = freed.post(t, "/sign-in/email", map[string]any{
		"email": "paroled@example.com", "password": "correct horse battery",
	})
	require.Equal(t, 200, status)
	status, session := freed.get(t, "/get-session")
	require.Equal(t, 200, status)
	assert.NotNil(t, session["user"])

	// The session engine cleared the ban when it observed the expiry.
	stored, err := e.auth.Store.FindUserByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, stored.Banned)
	assert.Empty(t, stored.BanReason)
	assert.Nil(t, stored.BanExpires)
}

func TestUnbanUser(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.signUpAdmin(t)
	id := e.createUser(t, "Pardoned", "pardoned@example.com", "correct horse battery")

	status, _ := e.post(t, "/admin/ban-user", map[string]any{"userId": id})
	require.Equal(t, 200, status)

	status, _ = e.post(t, "/admin/unban-user", map[string]any{"userId": id})
	require.Equal(t, 200, status)

	stored, err := e.auth.Store.FindUserByID(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, stored.Banned)
	assert.Empty(t, stored.BanReason)
	assert.Nil(t, stored.BanExpires)

	other := e.browser(t)
	status, _ = other.post(t, "/sign-in/email", map[string]any{
		"email": "pardoned@example.com", "password": "correct horse battery",
	})
	assert.Equal(t, 200, status)
}

func TestImpersonation(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	adminID := e.signUpAdmin(t)
	targetID := e.createUser(t, "Deputy", "deputy@example.com", "correct horse battery")
	// Promoting the target lets the gate pass while impersonated, so the
	// double-impersonation refusal below is the handler's, not the guard's.
	_, err := e.auth.Store.UpdateUser(context.Background(), targetID, map[string]any{"role": "admin"})
	require.NoError(t, err)

	status, body := e.post(t, "/admin/impersonate-user", map[string]any{"userId": "ghost"})
	require.Equal(t, 404, status)
	assert.Equal(t, CodeUserNotFound, body["code"])

	status, body = e.post(t, "/admin/impersonate-user", map[string]any{"userId": targetID})
	require.Equal(t, 200, status, "impersonate response: %v", body)
	session := body["session"].(map[string]any)
	assert.Equal(t, adminID, session["impersonatedBy"])
	assert.Equal(t, targetID, session["userId"])
	assert.Equal(t, targetID, body["user"].(map[string]any)["id"])
	assert.WithinDuration(t, time.Now().Add(time.Hour), parseTime(t, session["expiresAt"]), 5*time.Minute)
	childToken := session["token"].(string)

	// The browser now acts as the target.
	status, current := e.get(t, "/get-session")
	require.Equal(t, 200, status)
	assert.Equal(t, "deputy@example.com", current["user"].(map[string]any)["email"])
	// The short lifetime holds: impersonation sessions never roll forward.
	assert.WithinDuration(t, time.Now().Add(time.Hour),
		parseTime(t, current["session"].(map[string]any)["expiresAt"]), 5*time.Minute)

	t.Run("no nesting", func(t *testing.T) {
		status, body := e.post(t, "/admin/impersonate-user", map[string]any{"userId": adminID})
		require.Equal(t, 400, status)
		assert.Equal(t, CodeAlreadyImpersonating, body["code"])
	})

	status, body = e.post(t, "/admin/stop-impersonating", map[string]any{})
	require.Equal(t, 200, status, "stop response: %v", body)
	assert.Equal(t, adminID, body["user"].(map[string]any)["id"])

	status, current = e.get(t, "/get-session")
	require.Equal(t, 200, status)
	assert.Equal(t, "root@example.com", current["user"].(map[string]any)["email"])

	// The child session is gone for good.
	child, err := e.auth.Store.FindSessionByToken(context.Background(), childToken)
	require.NoError(t, err)
	assert.Nil(t, child)

	t.Run("stop without impersonating", func(t *testing.T) {
		status, body := e.post(t, "/admin/stop-impersonating", map[string]any{})
		require.Equal(t, 400, status)
		assert.Equal(t, CodeNotImpersonating, body["code"])
	})
}

func TestStopImpersonatingWithoutAdminCookie(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.signUpAdmin(t)
	targetID := e.createUser(t, "Deputy", "deputy@example.com", "correct horse battery")

	status, body := e.post(t, "/admin/impersonate-user", map[string]any{"userId": targetID})
	require.Equal(t, 200, status)
	childToken := body["session"].(map[string]any)["token"].(string)

	// Replay only the session cookie, as if the admin_session cookie had
	// been lost or stripped.
	req, err := http.NewRequest(http.MethodPost,
		e.server.URL+"/api/auth/admin/stop-impersonating", strings.NewReader("{}"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{
		Name:  e.auth.Cookies.Name(cookies.NameSessionToken),
		Value: e.auth.Cookies.SignValue(childToken),
	})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, CodeAdminSessionLost, decodeBody(t, resp)["code"])

	// Losing the pointer back is not grounds to kill the child session.
	child, err := e.auth.Store.FindSessionByToken(context.Background(), childToken)
	require.NoError(t, err)
	assert.NotNil(t, child)
}

func TestStopImpersonatingExpiredParent(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	body := e.signUp(t, "Root", "root@example.com", "correct horse battery")
	adminToken := body["token"].(string)
	adminID := body["user"].(map[string]any)["id"].(string)
	ctx := context.Background()
	_, err := e.auth.Store.UpdateUser(ctx, adminID, map[string]any{"role": "admin"})
	require.NoError(t, err)
	targetID := e.createUser(t, "Deputy", "deputy@example.com", "correct horse battery")

	status, resp := e.post(t, "/admin/impersonate-user", map[string]any{"userId": targetID})
	require.Equal(t, 200, status)
	childToken := resp["session"].(map[string]any)["token"].(string)

	// The admin session expires while the impersonation is in flight.
	_, err = e.auth.Store.UpdateSession(ctx, adminToken, map[string]any{
		"expiresAt": time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)

	status, resp = e.post(t, "/admin/stop-impersonating", map[string]any{})
	require.Equal(t, 401, status)
	assert.Equal(t, CodeAdminSessionLost, resp["code"])

	// The child is revoked rather than left running with no way back.
	child, err := e.auth.Store.FindSessionByToken(ctx, childToken)
	require.NoError(t, err)
	assert.Nil(t, child)
	_, session := e.get(t, "/get-session")
	assert.Nil(t, session["user"])
}

func TestRemoveUser(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	adminID := e.signUpAdmin(t)
	victimID := e.createUser(t, "Leaver", "leaver@example.com", "correct horse battery")

	victim := e.browser(t)
	status, _ := victim.post(t, "/sign-in/email", map[string]any{
		"email": "leaver@example.com", "password": "correct horse battery",
	})
	require.Equal(t, 200, status)

	status, body := e.post(t, "/admin/remove-user", map[string]any{"userId": victimID})
	require.Equal(t, 200, status)
	assert.Equal(t, true, body["status"])

	ctx := context.Background()
	gone, err := e.auth.Store.FindUserByID(ctx, victimID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	cred, err := e.auth.Store.FindUserAccount(ctx, victimID, core.ProviderCredential)
	require.NoError(t, err)
	assert.Nil(t, cred)
	sessions, err := e.auth.Store.ListSessions(ctx, victimID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	_, session := victim.get(t, "/get-session")
	assert.Nil(t, session["user"])

	t.Run("cannot remove self", func(t *testing.T) {
		status, body := e.post(t, "/admin/remove-user", map[string]any{"userId": adminID})
		require.Equal(t, 400, status)
		assert.Equal(t, CodeCannotRemoveSelf, body["code"])
	})

	t.Run("unknown user", func(t *testing.T) {
		status, body := e.post(t, "/admin/remove-user", map[string]any{"userId": "ghost"})
		require.Equal(t, 404, status)
		assert.Equal(t, CodeUserNotFound, body["code"])
	})
}

func TestSessionAdministration(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.signUpAdmin(t)
	userID := e.createUser(t, "Gadget", "gadget@example.com", "correct horse battery")

	first := e.browser(t)
	_, body := first.post(t, "/sign-in/email", map[string]any{
		"email": "gadget@example.com", "password": "correct horse battery",
	})
	firstToken := body["token"].(string)
	second := e.browser(t)
	status, _ := second.post(t, "/sign-in/email", map[string]any{
		"email": "gadget@example.com", "password": "correct horse battery",
	})
	require.Equal(t, 200, status)

	status, body = e.post(t, "/admin/list-user-sessions", map[string]any{"userId": userID})
	require.Equal(t, 200, status)
	sessions := body["sessions"].([]any)
	require.Len(t, sessions, 2)
	assert.NotEmpty(t, sessions[0].(map[string]any)["token"])

	status, _ = e.post(t, "/admin/revoke-user-session", map[string]any{"sessionToken": firstToken})
	require.Equal(t, 200, status)
	_, session := first.get(t, "/get-session")
	assert.Nil(t, session["user"])
	_, session = second.get(t, "/get-session")
	assert.NotNil(t, session["user"])

	t.Run("unknown token", func(t *testing.T) {
		status, body := e.post(t, "/admin/revoke-user-session", map[string]any{
			"sessionToken": "no-such-token",
		})
		require.Equal(t, 404, status)
		assert.Equal(t, CodeSessionNotFound, body["code"])
	})

	status, body = e.post(t, "/admin/revoke-user-sessions", map[string]any{"userId": userID})
	require.Equal(t, 200, status)
	assert.Equal(t, float64(1), body["count"])
	_, session = second.get(t, "/get-session")
	assert.Nil(t, session["user"])

	t.Run("expired sessions are not listed", func(t *testing.T) {
		third := e.browser(t)
		_, body := third.post(t, "/sign-in/email", map[string]any{
			"email": "gadget@example.com", "password": "correct horse battery",
		})
		_, err := e.auth.Store.UpdateSession(context.Background(), body["token"].(string), map[string]any{
			"expiresAt": time.Now().UTC().Add(-time.Minute),
		})
		require.NoError(t, err)

		status, body := e.post(t, "/admin/list-user-sessions", map[string]any{"userId": userID})
		require.Equal(t, 200, status)
		assert.Empty(t, body["sessions"])
	})
}
