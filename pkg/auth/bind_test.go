// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signUpPayload struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
	Name       string `json:"name"`
	RememberMe bool   `json:"rememberMe"`
}

func bindRequest(t *testing.T, req *http.Request) *Request {
	t.Helper()
	ctx := newTestContext(t, nil)
	r := newRequest(ctx, req)
	require.NoError(t, r.bufferBody())
	return r
}

func TestBindJSON(t *testing.T) {
	t.Parallel()

	req := jsonRequest(t, http.MethodPost, "/api/auth/sign-up/email", map[string]any{
		"email":      "ada@example.com",
		"password":   "correct horse battery",
		"name":       "Ada",
		"rememberMe": true,
	})
	r := bindRequest(t, req)

	payload, err := Bind[signUpPayload](r)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", payload.Email)
	assert.Equal(t, "correct horse battery", payload.Password)
	assert.True(t, payload.RememberMe)
}

func TestBindForm(t *testing.T) {
	t.Parallel()

	form := "email=ada%40example.com&password=correct+horse+battery&rememberMe=true"
	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-up/email", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r := bindRequest(t, req)

	payload, err := Bind[signUpPayload](r)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", payload.Email)
	assert.Equal(t, "correct horse battery", payload.Password)
	assert.True(t, payload.RememberMe, "form strings coerce into bools")
}

func TestBindQueryForGET(t *testing.T) {
	t.Parallel()

	type verifyPayload struct {
		Token       string `json:"token" validate:"required"`
		CallbackURL string `json:"callbackURL"`
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify-email?token=abc123&callbackURL=%2Fwelcome", nil)
	r := bindRequest(t, req)

	payload, err := Bind[verifyPayload](r)
	require.NoError(t, err)
	assert.Equal(t, "abc123", payload.Token)
	assert.Equal(t, "/welcome", payload.CallbackURL)
}

func TestBindMalformedJSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-up/email", strings.NewReader(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	r := bindRequest(t, req)

	_, err := Bind[signUpPayload](r)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, CodeInvalidRequest, apiErr.Code)
}

func TestBindValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload map[string]any
		wantMsg string
	}{
		{
			name:    "missing email",
			payload: map[string]any{"password": "long enough password"},
			wantMsg: "email is required",
		},
		{
			name:    "bad email",
			payload: map[string]any{"email": "not-an-email", "password": "long enough password"},
			wantMsg: "Invalid email",
		},
		{
			name:    "missing password",
			payload: map[string]any{"email": "ada@example.com"},
			wantMsg: "password is required",
		},
		{
			name:    "short password",
			payload: map[string]any{"email": "ada@example.com", "password": "short"},
			wantMsg: "password is too short",
		},
		{
			name: "long password",
			payload: map[string]any{
				"email":    "ada@example.com",
				"password": strings.Repeat("x", 200),
			},
			wantMsg: "password is too long",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := bindRequest(t, jsonRequest(t, http.MethodPost, "/api/auth/sign-up/email", tc.payload))
			_, err := Bind[signUpPayload](r)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, 400, apiErr.Status)
			assert.Equal(t, tc.wantMsg, apiErr.Message)
		})
	}
}

func TestValidateOneOf(t *testing.T) {
	t.Parallel()

	type frame struct {
		Mode string `json:"mode" validate:"oneof=light dark"`
	}

	require.NoError(t, Validate(&frame{Mode: "dark"}))
	require.NoError(t, Validate(&frame{}), "empty values pass oneof; pair with required to force")

	err := Validate(&frame{Mode: "sepia"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid mode", apiErr.Message)
}

func TestBodyValueReadsEitherEncoding(t *testing.T) {
	t.Parallel()

	req := jsonRequest(t, http.MethodPost, "/api/auth/ping", map[string]any{"csrfToken": "json-token"})
	r := bindRequest(t, req)
	assert.Equal(t, "json-token", r.BodyValue("csrfToken"))

	form := "csrfToken=form-token"
	freq := httptest.NewRequest(http.MethodPost, "/api/auth/ping", strings.NewReader(form))
	freq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	fr := bindRequest(t, freq)
	assert.Equal(t, "form-token", fr.BodyValue("csrfToken"))

	assert.Empty(t, r.BodyValue("missing"))
}
