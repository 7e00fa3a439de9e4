// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_Format(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple", "pepper")
	require.NoError(t, err)

	salt, digest, ok := strings.Cut(hash, ":")
	require.True(t, ok, "hash must be saltHex:hashHex")
	assert.Len(t, salt, argon2SaltLen*2)
	assert.Len(t, digest, argon2KeyLen*2)
}

func TestHashPassword_SaltIsRandom(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("same password", "pepper")
	require.NoError(t, err)
	h2, err := HashPassword("same password", "pepper")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("hunter2", "server-pepper")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		pepper   string
		stored   string
		want     bool
	}{
		{"correct", "hunter2", "server-pepper", hash, true},
		{"wrong password", "hunter3", "server-pepper", hash, false},
		{"wrong pepper", "hunter2", "other-pepper", hash, false},
		{"missing separator", "hunter2", "server-pepper", "deadbeef", false},
		{"bad salt hex", "hunter2", "server-pepper", "zz:" + strings.Repeat("ab", 32), false},
		{"bad hash hex", "hunter2", "server-pepper", strings.Repeat("ab", 16) + ":zz", false},
		{"empty stored", "hunter2", "server-pepper", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, VerifyPassword(tt.password, tt.pepper, tt.stored))
		})
	}
}

func TestVerifyPassword_NoPepper(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("password123", "")
	require.NoError(t, err)

	assert.True(t, VerifyPassword("password123", "", hash))
	assert.False(t, VerifyPassword("password123", "late-pepper", hash))
}
