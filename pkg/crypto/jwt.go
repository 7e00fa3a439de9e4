// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// MakeJWT signs the claims as an HS256 JWT keyed by secret. Asymmetric
// signing (RS256/EdDSA) is provided by the jwks package when installed.
func MakeJWT(secret string, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("crypto: signing jwt: %w", err)
	}
	return signed, nil
}

// ParseJWT verifies an HS256 JWT and returns its claims. Any non-HMAC
// signing method is rejected before signature verification.
func ParseJWT(secret, raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("crypto: parsing jwt: %w", err)
	}
	return claims, nil
}

// AtHash computes the OIDC at_hash claim for an access token signed with a
// SHA-256 based algorithm: the base64url encoding of the left half of the
// token's SHA-256 digest (OIDC Core section 3.1.3.6).
func AtHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
