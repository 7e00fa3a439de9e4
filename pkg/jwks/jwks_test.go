// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package jwks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/betterauth/betterauth/pkg/adapter/memory"
	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/crypto"
)

const testSecret = "jwks-test-secret-0123456789abcdef"

type env struct {
	auth   *auth.Context
	plugin *Plugin
	server *httptest.Server
	client *http.Client
}

func newEnv(t *testing.T, mutate func(*Options)) *env {
	t.Helper()

	opts := Options{}
	if mutate != nil {
		mutate(&opts)
	}
	plugin := New(opts)

	ctx, err := auth.NewContext(&auth.Options{
		AppName:  "JWKS Test",
		Secret:   testSecret,
		Database: memory.New(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, plugin)
	require.NoError(t, err)

	server := httptest.NewServer(ctx.Handler())
	t.Cleanup(server.Close)

	return &env{auth: ctx, plugin: plugin, server: server, client: server.Client()}
}

// fetchSet GETs the published document and decodes its keys.
func (e *env) fetchSet(t *testing.T) (*http.Response, []map[string]any) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + "/api/auth/jwks")
	require.NoError(t, err)
	defer resp.Body.Close()

	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return resp, doc.Keys
}

// decodeSegment decodes one base64url JWT segment into a map.
func decodeSegment(t *testing.T, segment string) map[string]any {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func tokenHeader(t *testing.T, token string) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	return decodeSegment(t, parts[0])
}

func TestServeSetGeneratesKey(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	resp, keys := e.fetchSet(t)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", resp.Header.Get("Cache-Control"))

	require.Len(t, keys, 1)
	key := keys[0]
	assert.Equal(t, "RSA", key["kty"])
	assert.Equal(t, "RS256", key["alg"])
	assert.Equal(t, "sig", key["use"])
	assert.NotEmpty(t, key["kid"])
	assert.NotEmpty(t, key["n"])
	assert.NotEmpty(t, key["e"])
	assert.NotContains(t, key, "d")

	// The next request serves the persisted key, not a fresh one.
	_, again := e.fetchSet(t)
	require.Len(t, again, 1)
	assert.Equal(t, key["kid"], again[0]["kid"])
}

func TestStoredPrivateKeyIsEncrypted(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.fetchSet(t)

	rows, err := e.auth.Store.ListJwks(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "RS256", row.Alg)
	assert.Contains(t, row.PublicKey, `"kty"`)
	assert.NotContains(t, row.PrivateKey, "PRIVATE KEY")

	opened, err := crypto.DecryptAny(e.auth.Cookies.Secrets(), row.PrivateKey)
	require.NoError(t, err)
	assert.Contains(t, opened, "PRIVATE KEY")

	_, err = parsePrivateKey(opened)
	require.NoError(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	ctx := context.Background()

	token, err := e.plugin.Sign(ctx, jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://auth.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	header := tokenHeader(t, token)
	assert.Equal(t, "RS256", header["alg"])

	_, keys := e.fetchSet(t)
	require.Len(t, keys, 1)
	assert.Equal(t, keys[0]["kid"], header["kid"])

	claims, err := e.plugin.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "https://auth.example.com", claims["iss"])
}

func TestVerifyRejections(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	ctx := context.Background()

	token, err := e.plugin.Sign(ctx, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(token, ".")
		payload := decodeSegment(t, parts[1])
		payload["sub"] = "user-2"
		forged, err := json.Marshal(payload)
		require.NoError(t, err)
		parts[1] = base64.RawURLEncoding.EncodeToString(forged)

		_, err = e.plugin.Verify(ctx, strings.Join(parts, "."))
		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("hmac token", func(t *testing.T) {
		hs256, err := crypto.MakeJWT(testSecret, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		require.NoError(t, err)

		_, err = e.plugin.Verify(ctx, hs256)
		require.Error(t, err)
	})

	t.Run("unknown kid", func(t *testing.T) {
		other := newEnv(t, nil)
		foreign, err := other.plugin.Sign(ctx, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		require.NoError(t, err)

		_, err = e.plugin.Verify(ctx, foreign)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("expired", func(t *testing.T) {
		stale, err := e.plugin.Sign(ctx, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		require.NoError(t, err)

		_, err = e.plugin.Verify(ctx, stale)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})
}

func TestEdDSAKeys(t *testing.T) {
	t.Parallel()
	e := newEnv(t, func(o *Options) { o.Alg = AlgEdDSA })
	ctx := context.Background()

	_, keys := e.fetchSet(t)
	require.Len(t, keys, 1)
	assert.Equal(t, "OKP", keys[0]["kty"])
	assert.Equal(t, "Ed25519", keys[0]["crv"])
	assert.Equal(t, "EdDSA", keys[0]["alg"])

	token, err := e.plugin.Sign(ctx, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	assert.Equal(t, "EdDSA", tokenHeader(t, token)["alg"])

	claims, err := e.plugin.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
}

func TestRotateKeepsOldTokensVerifiable(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	ctx := context.Background()

	before, err := e.plugin.Sign(ctx, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	require.NoError(t, e.plugin.Rotate(ctx))

	after, err := e.plugin.Sign(ctx, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	oldKid := tokenHeader(t, before)["kid"]
	newKid := tokenHeader(t, after)["kid"]
	require.NotEqual(t, oldKid, newKid)

	// Both generations verify; the document lists the signer first.
	_, err = e.plugin.Verify(ctx, before)
	require.NoError(t, err)
	_, err = e.plugin.Verify(ctx, after)
	require.NoError(t, err)

	_, keys := e.fetchSet(t)
	require.Len(t, keys, 2)
	assert.Equal(t, newKid, keys[0]["kid"])
	assert.Equal(t, oldKid, keys[1]["kid"])

	assert.Equal(t, []string{"RS256"}, e.plugin.SigningAlgorithms(ctx))
}

func TestConcurrentFirstUseGeneratesOneKey(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := e.plugin.Sign(context.Background(), jwt.MapClaims{
				"sub": "user-1",
				"exp": time.Now().Add(time.Hour).Unix(),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	rows, err := e.auth.Store.ListJwks(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestInitRejectsBadOptions(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		opts Options
		want string
	}{
		{"unsupported algorithm", Options{Alg: "HS256"}, "unsupported algorithm"},
		{"weak rsa key", Options{RSABits: 1024}, "below 2048 bits"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := auth.NewContext(&auth.Options{
				AppName:  "JWKS Test",
				Secret:   testSecret,
				Database: memory.New(),
				Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			}, New(tc.opts))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
