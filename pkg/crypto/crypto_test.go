// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomString(t *testing.T) {
	t.Parallel()

	s := RandomString(32, AlphabetAlphanumeric)
	assert.Len(t, s, 32)
	for _, r := range s {
		assert.Contains(t, AlphabetAlphanumeric, string(r))
	}

	code := RandomString(8, AlphabetUserCode)
	assert.Len(t, code, 8)
	for _, r := range code {
		assert.Contains(t, AlphabetUserCode, string(r))
	}
}

func TestNewToken(t *testing.T) {
	t.Parallel()

	tok := NewToken()
	assert.Len(t, tok, TokenLength)
	assert.NotEqual(t, tok, NewToken())
}

func TestHashToken(t *testing.T) {
	t.Parallel()

	// SHA-256("abc") well-known digest
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		HashToken("abc"))

	assert.NotEqual(t, HashToken("token-a"), HashToken("token-b"))
}

func TestSignHMAC_Verify(t *testing.T) {
	t.Parallel()

	sig := SignHMAC("secret", "message")
	assert.NotEmpty(t, sig)
	assert.NotContains(t, sig, "=", "signature must be unpadded base64url")

	assert.True(t, VerifyHMAC("secret", "message", sig))
	assert.False(t, VerifyHMAC("secret", "tampered", sig))
	assert.False(t, VerifyHMAC("wrong", "message", sig))
	assert.False(t, VerifyHMAC("secret", "message", sig+"x"))
}

func TestVerifyHMACAny_Rotation(t *testing.T) {
	t.Parallel()

	oldSig := SignHMAC("old-secret", "value")

	assert.True(t, VerifyHMACAny([]string{"new-secret", "old-secret"}, "value", oldSig))
	assert.False(t, VerifyHMACAny([]string{"new-secret"}, "value", oldSig))
	assert.False(t, VerifyHMACAny(nil, "value", oldSig))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()

	ciphertext, err := Encrypt("secret", "sensitive payload")
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "sensitive")

	plaintext, err := Decrypt("secret", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sensitive payload", plaintext)
}

func TestDecrypt_Tampered(t *testing.T) {
	t.Parallel()

	ciphertext, err := Encrypt("secret", "payload")
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{"flipped byte", flipLastHexDigit(ciphertext)},
		{"truncated", ciphertext[:10]},
		{"not hex", "zzzz"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decrypt("secret", tt.input)
			assert.ErrorIs(t, err, ErrInvalidCiphertext)
		})
	}

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		_, err := Decrypt("other-secret", ciphertext)
		assert.ErrorIs(t, err, ErrInvalidCiphertext)
	})
}

func TestEncryptGCM_RoundTrip(t *testing.T) {
	t.Parallel()

	ciphertext, err := EncryptGCM("secret", "totp-seed-material")
	require.NoError(t, err)

	plaintext, err := DecryptGCM("secret", ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "totp-seed-material", plaintext)

	_, err = DecryptGCM("wrong", ciphertext)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestMakeJWT_ParseRoundTrip(t *testing.T) {
	t.Parallel()

	claims := jwt.MapClaims{
		"sub": "user-1",
		"iss": "https://auth.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}

	token, err := MakeJWT("signing-secret", claims)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	parsed, err := ParseJWT("signing-secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed["sub"])
	assert.Equal(t, "https://auth.example.com", parsed["iss"])
}

func TestParseJWT_Rejections(t *testing.T) {
	t.Parallel()

	token, err := MakeJWT("signing-secret", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		_, err := ParseJWT("other-secret", token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		expired, err := MakeJWT("signing-secret", jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		require.NoError(t, err)

		_, err = ParseJWT("signing-secret", expired)
		assert.Error(t, err)
	})

	t.Run("alg none", func(t *testing.T) {
		t.Parallel()
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = ParseJWT("signing-secret", unsigned)
		assert.Error(t, err)
	})
}

func TestAtHash(t *testing.T) {
	t.Parallel()

	h := AtHash("some-access-token")
	// Left half of SHA-256 is 16 bytes -> 22 base64url chars unpadded.
	assert.Len(t, h, 22)
	assert.Equal(t, h, AtHash("some-access-token"))
	assert.NotEqual(t, h, AtHash("other-access-token"))
}

func flipLastHexDigit(s string) string {
	last := s[len(s)-1]
	replacement := byte('0')
	if last == '0' {
		replacement = '1'
	}
	return s[:len(s)-1] + string(replacement)
}
