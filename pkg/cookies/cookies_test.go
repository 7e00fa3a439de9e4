// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package cookies

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFactory(secure bool) *Factory {
	return NewFactory(Options{Secure: secure}, []string{"test-secret"})
}

func TestFactory_Name(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "better-auth.session_token", newTestFactory(false).Name(NameSessionToken))
	assert.Equal(t, "__Secure-better-auth.session_token", newTestFactory(true).Name(NameSessionToken))

	custom := NewFactory(Options{Prefix: "myapp"}, []string{"s"})
	assert.Equal(t, "myapp.csrf_token", custom.Name(NameCSRFToken))
}

func TestFactory_MakeAttributes(t *testing.T) {
	t.Parallel()

	f := NewFactory(Options{
		Secure:   true,
		Domain:   ".example.com",
		SameSite: http.SameSiteNoneMode,
	}, []string{"s"})

	c := f.Make(NameSessionToken, "v", time.Hour)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, ".example.com", c.Domain)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
	assert.Equal(t, 3600, c.MaxAge)
}

func TestFactory_DefaultsSameSiteLax(t *testing.T) {
	t.Parallel()

	c := newTestFactory(false).Make(NameSessionToken, "v", time.Minute)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.False(t, c.Secure)
}

func TestSignVerifyValue(t *testing.T) {
	t.Parallel()

	f := newTestFactory(false)

	signed := f.SignValue("abc123")
	assert.Contains(t, signed, "abc123.")

	value, ok := f.VerifyValue(signed)
	require.True(t, ok)
	assert.Equal(t, "abc123", value)
}

func TestVerifyValue_Tampered(t *testing.T) {
	t.Parallel()

	f := newTestFactory(false)
	signed := f.SignValue("abc123")

	tests := []struct {
		name  string
		input string
	}{
		{"flipped value", "abd123" + signed[6:]},
		{"truncated signature", signed[:len(signed)-2]},
		{"no signature", "abc123"},
		{"empty", ""},
		{"dot only", "."},
		{"trailing dot", "abc123."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := f.VerifyValue(tt.input)
			assert.False(t, ok)
		})
	}
}

func TestVerifyValue_DottedValue(t *testing.T) {
	t.Parallel()

	// Values containing dots must survive the round trip: the signature is
	// everything after the last dot.
	f := newTestFactory(false)
	signed := f.SignValue("part.one.two")

	value, ok := f.VerifyValue(signed)
	require.True(t, ok)
	assert.Equal(t, "part.one.two", value)
}

func TestVerifyValue_SecretRotation(t *testing.T) {
	t.Parallel()

	oldFactory := NewFactory(Options{}, []string{"old-secret"})
	signed := oldFactory.SignValue("session-token")

	rotated := NewFactory(Options{}, []string{"new-secret", "old-secret"})
	value, ok := rotated.VerifyValue(signed)
	require.True(t, ok)
	assert.Equal(t, "session-token", value)

	// Dropping the old secret invalidates old cookies.
	dropped := NewFactory(Options{}, []string{"new-secret"})
	_, ok = dropped.VerifyValue(signed)
	assert.False(t, ok)
}

func TestSetSigned_GetSigned(t *testing.T) {
	t.Parallel()

	f := newTestFactory(false)

	rec := httptest.NewRecorder()
	f.SetSigned(rec, NameSessionToken, "tok123", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	value, ok := f.GetSigned(req, NameSessionToken)
	require.True(t, ok)
	assert.Equal(t, "tok123", value)

	_, ok = f.GetSigned(req, NameCSRFToken)
	assert.False(t, ok)
}

func TestSetEncrypted_GetEncrypted(t *testing.T) {
	t.Parallel()

	f := newTestFactory(false)

	rec := httptest.NewRecorder()
	require.NoError(t, f.SetEncrypted(rec, NameLoginPrompt, `{"client_id":"abc"}`, 10*time.Minute))

	set := rec.Result().Cookies()
	require.Len(t, set, 1)
	assert.NotContains(t, set[0].Value, "client_id")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(set[0])

	value, ok := f.GetEncrypted(req, NameLoginPrompt)
	require.True(t, ok)
	assert.Equal(t, `{"client_id":"abc"}`, value)
}

func TestClear(t *testing.T) {
	t.Parallel()

	f := newTestFactory(false)
	rec := httptest.NewRecorder()
	f.Clear(rec, NameSessionToken)

	set := rec.Result().Cookies()
	require.Len(t, set, 1)
	assert.Equal(t, "", set[0].Value)
	assert.Equal(t, -1, set[0].MaxAge)
}

func TestSplitSetCookieHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   []string
	}{
		{
			name:   "single cookie",
			header: "a=1; Path=/",
			want:   []string{"a=1; Path=/"},
		},
		{
			name:   "two cookies",
			header: "a=1; Path=/, b=2; HttpOnly",
			want:   []string{"a=1; Path=/", "b=2; HttpOnly"},
		},
		{
			name:   "expires comma is not a separator",
			header: "a=1; Expires=Thu, 01 Jan 1970 00:00:00 GMT, b=2",
			want:   []string{"a=1; Expires=Thu, 01 Jan 1970 00:00:00 GMT", "b=2"},
		},
		{
			name:   "prefixed names",
			header: "better-auth.session_token=x.y; HttpOnly, better-auth.csrf_token=z",
			want:   []string{"better-auth.session_token=x.y; HttpOnly", "better-auth.csrf_token=z"},
		},
		{
			name:   "empty",
			header: "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SplitSetCookieHeader(tt.header))
		})
	}
}

func TestParseSetCookies(t *testing.T) {
	t.Parallel()

	header := "a=1; Path=/; HttpOnly, b=2; Expires=Thu, 01 Jan 1970 00:00:00 GMT"
	parsed := ParseSetCookies(header)

	require.Len(t, parsed, 2)
	assert.Equal(t, "a", parsed[0].Name)
	assert.True(t, parsed[0].HttpOnly)
	assert.Equal(t, "b", parsed[1].Name)
	assert.Equal(t, 1970, parsed[1].Expires.Year())
}
