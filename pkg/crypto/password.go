// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// argon2Time is the number of iterations (time cost) for Argon2id.
	argon2Time = 2

	// argon2Memory is the memory cost in KiB for Argon2id (19 MiB, the
	// OWASP-recommended configuration for t=2, p=1).
	argon2Memory = 19 * 1024

	// argon2Threads is the parallelism factor for Argon2id.
	argon2Threads = 1

	// argon2KeyLen is the output hash length in bytes.
	argon2KeyLen = 32

	// argon2SaltLen is the random salt length in bytes.
	argon2SaltLen = 16
)

// pepperPassword folds the server-side pepper into the password material.
// x/crypto/argon2 does not expose argon2's secret input, so the pepper is
// applied as an HMAC-SHA256 pre-hash instead.
func pepperPassword(password, pepper string) []byte {
	if pepper == "" {
		return []byte(password)
	}
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(password))
	return mac.Sum(nil)
}

// HashPassword returns an Argon2id hash of the given plaintext password,
// peppered with the server secret. Leaked database hashes cannot be
// brute-forced without the pepper.
//
// Format: saltHex:hashHex
func HashPassword(password, pepper string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("crypto: generating password salt: %w", err)
	}

	hash := argon2.IDKey(pepperPassword(password, pepper), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash), nil
}

// VerifyPassword checks a plaintext password against a stored Argon2id hash.
// Returns false if the hash format is invalid rather than propagating an
// error, since an invalid hash means authentication must fail.
func VerifyPassword(password, pepper, stored string) bool {
	saltHex, hashHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}

	expected, err := hex.DecodeString(hashHex)
	if err != nil || len(expected) == 0 {
		return false
	}

	actual := argon2.IDKey(pepperPassword(password, pepper), salt, argon2Time, argon2Memory, argon2Threads, uint32(len(expected)))

	return subtle.ConstantTimeCompare(actual, expected) == 1
}
