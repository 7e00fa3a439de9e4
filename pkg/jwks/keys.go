// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package jwks

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Supported signing algorithms.
const (
	AlgRS256 = "RS256"
	AlgEdDSA = "EdDSA"
)

// signingKey is a decrypted private key ready to sign.
type signingKey struct {
	kid string
	alg string
	key crypto.Signer
}

// generateSigner creates a fresh private key for the algorithm.
func generateSigner(alg string, rsaBits int) (crypto.Signer, error) {
	switch alg {
	case AlgRS256:
		return rsa.GenerateKey(rand.Reader, rsaBits)
	case AlgEdDSA:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		return key, err
	default:
		return nil, fmt.Errorf("jwks: unsupported algorithm %q", alg)
	}
}

// marshalPrivateKey serializes a private key as PKCS#8 PEM. The result is
// encrypted before it reaches the database.
func marshalPrivateKey(key crypto.Signer) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("jwks: encoding private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// parsePrivateKey reverses marshalPrivateKey.
func parsePrivateKey(pemData string) (crypto.Signer, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("jwks: stored private key is not PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwks: parsing private key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("jwks: stored key type %T cannot sign", key)
	}
	return signer, nil
}

// publicJWK serializes the public half as a JWK with kid, alg, and use set.
// The kid is the RFC 7638 thumbprint, so the same key always gets the same
// identifier.
func publicJWK(key crypto.Signer, alg string) (kid string, doc string, err error) {
	pub, err := jwk.Import(key.Public())
	if err != nil {
		return "", "", fmt.Errorf("jwks: importing public key: %w", err)
	}
	thumb, err := pub.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", "", fmt.Errorf("jwks: computing key thumbprint: %w", err)
	}
	kid = base64.RawURLEncoding.EncodeToString(thumb)

	sigAlg, err := signatureAlgorithm(alg)
	if err != nil {
		return "", "", err
	}
	if err := pub.Set(jwk.KeyIDKey, kid); err != nil {
		return "", "", fmt.Errorf("jwks: setting kid: %w", err)
	}
	if err := pub.Set(jwk.AlgorithmKey, sigAlg); err != nil {
		return "", "", fmt.Errorf("jwks: setting alg: %w", err)
	}
	if err := pub.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return "", "", fmt.Errorf("jwks: setting use: %w", err)
	}

	raw, err := json.Marshal(pub)
	if err != nil {
		return "", "", fmt.Errorf("jwks: encoding public key: %w", err)
	}
	return kid, string(raw), nil
}

func signatureAlgorithm(alg string) (jwa.SignatureAlgorithm, error) {
	switch alg {
	case AlgRS256:
		return jwa.RS256(), nil
	case AlgEdDSA:
		return jwa.EdDSA(), nil
	default:
		return jwa.SignatureAlgorithm{}, fmt.Errorf("jwks: unsupported algorithm %q", alg)
	}
}
