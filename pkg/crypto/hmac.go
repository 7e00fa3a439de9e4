// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignHMAC returns the base64url (unpadded) HMAC-SHA256 of message keyed by
// secret.
func SignHMAC(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC reports whether signature is a valid HMAC-SHA256 of message
// keyed by secret. Comparison is constant-time.
func VerifyHMAC(secret, message, signature string) bool {
	expected := SignHMAC(secret, message)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyHMACAny tries each secret in order and reports whether any of them
// verifies the signature. Supports secret rotation: new values are signed
// with the first secret while older cookies remain valid.
func VerifyHMACAny(secrets []string, message, signature string) bool {
	for _, secret := range secrets {
		if VerifyHMAC(secret, message, signature) {
			return true
		}
	}
	return false
}
