// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypto provides the cryptographic primitives shared by the auth
// engine: HMAC signing, symmetric encryption, argon2id password hashing,
// PKCE challenges, JWT minting and random identifier generation.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabets for random identifier generation.
const (
	// AlphabetAlphanumeric is the default alphabet for session tokens and
	// other opaque identifiers.
	AlphabetAlphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// AlphabetURLSafe adds the two extra base64url characters; used for
	// OAuth access and refresh tokens.
	AlphabetURLSafe = AlphabetAlphanumeric + "-_"

	// AlphabetUserCode is the charset for device flow user codes: uppercase
	// letters and digits without the easily-confused 0, 1, I and O.
	AlphabetUserCode = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// AlphabetDigits is the charset for numeric one-time codes.
	AlphabetDigits = "0123456789"
)

// TokenLength is the length of generated session tokens.
const TokenLength = 32

// RandomString returns a random string of length n drawn from the given
// alphabet. It panics if the alphabet is empty or n is not positive, which
// indicates a programming error rather than a runtime condition.
func RandomString(n int, alphabet string) string {
	s, err := gonanoid.Generate(alphabet, n)
	if err != nil {
		panic(fmt.Sprintf("crypto: generating random string: %v", err))
	}
	return s
}

// NewToken returns a 32-character alphanumeric token suitable for session
// tokens and verification identifiers.
func NewToken() string {
	return RandomString(TokenLength, AlphabetAlphanumeric)
}

// NewOpaqueToken returns a 48-character URL-safe token used for opaque OAuth
// access and refresh tokens.
func NewOpaqueToken() string {
	return RandomString(48, AlphabetURLSafe)
}

// HashToken returns the SHA-256 hex digest of a raw token. Only the digest is
// stored in the database; the raw token lives only with the client.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
