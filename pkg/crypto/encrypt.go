// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidCiphertext is returned when decryption fails: truncated input,
// corrupted nonce, or authentication tag mismatch.
var ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")

// deriveKey stretches an arbitrary-length secret to the 32 bytes the AEAD
// constructions require.
func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Encrypt seals plaintext with XChaCha20-Poly1305 keyed by secret and returns
// hex(nonce || ciphertext). The nonce is random per call; XChaCha20's 24-byte
// nonce makes random generation safe without a counter.
func Encrypt(secret, plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("crypto: creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Returns ErrInvalidCiphertext on any malformed or
// tampered input.
func Decrypt(secret, ciphertext string) (string, error) {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	aead, err := chacha20poly1305.NewX(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("crypto: creating cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

// DecryptAny tries Decrypt with every secret, newest first, so values sealed
// before a secret rotation stay readable. Returns the last error when no
// secret opens the ciphertext.
func DecryptAny(secrets []string, ciphertext string) (string, error) {
	err := error(ErrInvalidCiphertext)
	for _, secret := range secrets {
		plaintext, derr := Decrypt(secret, ciphertext)
		if derr == nil {
			return plaintext, nil
		}
		err = derr
	}
	return "", err
}

// EncryptGCM seals plaintext with AES-256-GCM keyed by secret and returns
// hex(nonce || ciphertext). Used for values encrypted at rest (TOTP secrets,
// upstream provider tokens) where AES hardware acceleration matters.
func EncryptGCM(secret, plaintext string) (string, error) {
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("crypto: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: creating gcm: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// DecryptGCM reverses EncryptGCM. Returns ErrInvalidCiphertext on any
// malformed or tampered input.
func DecryptGCM(secret, ciphertext string) (string, error) {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("crypto: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: creating gcm: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
