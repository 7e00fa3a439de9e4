// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betterauth/betterauth/pkg/adapter/memory"
	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

type sentMail struct {
	Email    string
	NewEmail string
	Token    string
	URL      string
}

// captureSender records outgoing mail instead of delivering it.
type captureSender struct {
	mu            sync.Mutex
	verifications []sentMail
	resets        []sentMail
	changes       []sentMail
}

func (s *captureSender) SendVerification(_ context.Context, user *core.User, token, verifyURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications = append(s.verifications, sentMail{Email: user.Email, Token: token, URL: verifyURL})
	return nil
}

func (s *captureSender) SendPasswordReset(_ context.Context, user *core.User, token, resetURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, sentMail{Email: user.Email, Token: token, URL: resetURL})
	return nil
}

func (s *captureSender) SendChangeEmailConfirmation(_ context.Context, user *core.User, newEmail, token, confirmURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, sentMail{Email: user.Email, NewEmail: newEmail, Token: token, URL: confirmURL})
	return nil
}

func (s *captureSender) lastVerification(t *testing.T) sentMail {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.verifications)
	return s.verifications[len(s.verifications)-1]
}

func (s *captureSender) lastReset(t *testing.T) sentMail {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.resets)
	return s.resets[len(s.resets)-1]
}

func (s *captureSender) lastChange(t *testing.T) sentMail {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.changes)
	return s.changes[len(s.changes)-1]
}

type testEnv struct {
	auth   *auth.Context
	server *httptest.Server
	client *http.Client
	sender *captureSender
}

// newTestEnv boots a server with the account plugin and a cookie-jar client
// so session cookies flow across calls like a browser's would.
func newTestEnv(t *testing.T, mutate func(*auth.Options)) *testEnv {
	t.Helper()

	sender := &captureSender{}
	opts := &auth.Options{
		AppName:  "Account Test",
		Secret:   "account-test-secret-0123456789",
		Database: memory.New(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(opts)
	}

	ctx, err := auth.NewContext(opts, New(Options{Email: sender}))
	require.NoError(t, err)

	server := httptest.NewServer(ctx.Handler())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		auth:   ctx,
		server: server,
		client: &http.Client{Jar: jar},
		sender: sender,
	}
}

func (e *testEnv) post(t *testing.T, path string, payload any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := e.client.Post(e.server.URL+"/api/auth"+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) (int, map[string]any) {
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

func (e *testEnv) signUp(t *testing.T, email, password string) map[string]any {
	t.Helper()
	status, body := e.post(t, "/sign-up/email", map[string]any{
		"name":     "Test User",
		"email":    email,
		"password": password,
	})
	require.Equal(t, 200, status, "sign-up response: %v", body)
	return body
}

func TestSignUpCreatesUserAndSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	body := env.signUp(t, "ada@example.com", "correct horse battery")
	require.NotEmpty(t, body["token"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Equal(t, false, user["emailVerified"])

	// The cookie from sign-up authenticates follow-up requests.
	status, session := env.get(t, "/get-session")
	require.Equal(t, 200, status)
	require.NotNil(t, session["user"])
	assert.Equal(t, "ada@example.com", session["user"].(map[string]any)["email"])
}

func TestSignUpDuplicateEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	env.signUp(t, "dup@example.com", "correct horse battery")
	status, body := env.post(t, "/sign-up/email", map[string]any{
		"name":     "Dup",
		"email":    "dup@example.com",
		"password": "another fine password",
	})
	require.Equal(t, 409, status)
	assert.Equal(t, CodeUserAlreadyExists, body["code"])
}

func TestSignUpPasswordPolicy(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	status, body := env.post(t, "/sign-up/email", map[string]any{
		"name": "Shorty", "email": "short@example.com", "password": "tiny",
	})
	require.Equal(t, 400, status)
	assert.Equal(t, CodePasswordTooShort, body["code"])

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	status, body = env.post(t, "/sign-up/email", map[string]any{
		"name": "Longy", "email": "long@example.com", "password": string(long),
	})
	require.Equal(t, 400, status)
	assert.Equal(t, CodePasswordTooLong, body["code"])
}

func TestSignInEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.signUp(t, "grace@example.com", "correct horse battery")

	status, body := env.post(t, "/sign-in/email", map[string]any{
		"email":    "grace@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, 200, status)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, false, body["redirect"])
}

func TestSignInUniformCredentialError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.signUp(t, "known@example.com", "correct horse battery")

	// Wrong password for a real user.
	status, body := env.post(t, "/sign-in/email", map[string]any{
		"email":    "known@example.com",
		"password": "wrong password entirely",
	})
	require.Equal(t, 401, status)
	assert.Equal(t, CodeInvalidCredentials, body["code"])
	wrongPasswordMsg := body["message"]

	// Unknown email: identical status, code, and message.
	status, body = env.post(t, "/sign-in/email", map[string]any{
		"email":    "unknown@example.com",
		"password": "whatever password",
	})
	require.Equal(t, 401, status)
	assert.Equal(t, CodeInvalidCredentials, body["code"])
	assert.Equal(t, wrongPasswordMsg, body["message"])
}

func TestSignInRequiresVerifiedEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(o *auth.Options) {
		o.EmailAndPassword.RequireEmailVerification = true
	})

	// Sign-up cannot auto-sign-in; it sends a verification instead.
	body := env.signUp(t, "strict@example.com", "correct horse battery")
	assert.Nil(t, body["token"])
	first := env.sender.lastVerification(t)
	assert.Equal(t, "strict@example.com", first.Email)

	status, resp := env.post(t, "/sign-in/email", map[string]any{
		"email":    "strict@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, 403, status)
	assert.Equal(t, CodeEmailNotVerified, resp["code"])

	// Verify via the emailed token, then sign-in succeeds.
	mail := env.sender.lastVerification(t)
	status, _ = env.get(t, "/verify-email?token="+mail.Token)
	require.Equal(t, 200, status)

	status, resp = env.post(t, "/sign-in/email", map[string]any{
		"email":    "strict@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, 200, status)
	assert.NotEmpty(t, resp["token"])
}

func TestSignOut(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.signUp(t, "leaver@example.com", "correct horse battery")

	status, _ := env.post(t, "/sign-out", map[string]any{})
	require.Equal(t, 200, status)

	status, session := env.get(t, "/get-session")
	require.Equal(t, 200, status)
	assert.Nil(t, session["session"])
	assert.Nil(t, session["user"])
}

func TestGetSessionAnonymous(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	status, body := env.get(t, "/get-session")
	require.Equal(t, 200, status)
	assert.Nil(t, body["session"])
	assert.Nil(t, body["user"])
}

func TestUpdateUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.signUp(t, "editor@example.com", "correct horse battery")

	status, body := env.post(t, "/update-user", map[string]any{
		"name":  "New Name",
		"image": "https://cdn.example.com/a.png",
	})
	require.Equal(t, 200, status)
	user := body["user"].(map[string]any)
	assert.Equal(t, "New Name", user["name"])
	assert.Equal(t, "https://cdn.example.com/a.png", user["image"])

	// Requires a session.
	anon := newTestEnv(t, nil)
	status, body = anon.post(t, "/update-user", map[string]any{"name": "Nobody"})
	require.Equal(t, 401, status)
	assert.Equal(t, auth.CodeSessionRequired, body["code"])
}

func TestRememberMeShortensSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.signUp(t, "forgetful@example.com", "correct horse battery")
	env.post(t, "/sign-out", map[string]any{})

	status, body := env.post(t, "/sign-in/email", map[string]any{
		"email":      "forgetful@example.com",
		"password":   "correct horse battery",
		"rememberMe": false,
	})
	require.Equal(t, 200, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	session, err := env.auth.Store.FindSessionByToken(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, session)
	ttl := session.ExpiresAt.Sub(session.CreatedAt)
	assert.InDelta(t, sessionLifetimeWithoutRemember.Seconds(), ttl.Seconds(), 60)
}

func TestEmailPasswordDisabled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(o *auth.Options) {
		o.EmailAndPassword.Disabled = true
	})

	status, body := env.post(t, "/sign-up/email", map[string]any{
		"name": "Nobody", "email": "no@example.com", "password": "correct horse battery",
	})
	require.Equal(t, 404, status)
	assert.Equal(t, auth.CodeNotFound, body["code"])

	// Session endpoints stay available.
	status, _ = env.get(t, "/get-session")
	assert.Equal(t, 200, status)
}
