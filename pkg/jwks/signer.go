// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// keyring is the in-memory view of the stored keys: the newest key signs,
// the full set verifies.
type keyring struct {
	signer *signingKey
	public jwk.Set
	algs   []string
}

// keyring returns the cached keyring, loading (and on an empty table,
// generating) it on first use.
func (p *Plugin) keyring(ctx context.Context) (*keyring, error) {
	p.mu.RLock()
	kr := p.cache
	p.mu.RUnlock()
	if kr != nil {
		return kr, nil
	}
	return p.loadKeyring(ctx)
}

// loadKeyring rebuilds the keyring from the database. Concurrent callers
// share one load, so a cold start signs with a single generated key instead
// of racing several into the table.
func (p *Plugin) loadKeyring(ctx context.Context) (*keyring, error) {
	v, err, _ := p.group.Do("keyring", func() (any, error) {
		rows, err := p.auth.Store.ListJwks(ctx)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			row, err := p.generate(ctx)
			if err != nil {
				return nil, err
			}
			rows = []*core.Jwk{row}
		}
		kr, err := buildKeyring(p.auth.Cookies.Secrets(), rows)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache = kr
		p.mu.Unlock()
		return kr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*keyring), nil
}

func (p *Plugin) invalidate() {
	p.mu.Lock()
	p.cache = nil
	p.mu.Unlock()
}

// generate creates and persists a fresh keypair.
func (p *Plugin) generate(ctx context.Context) (*core.Jwk, error) {
	signer, err := generateSigner(p.opts.Alg, p.opts.RSABits)
	if err != nil {
		return nil, err
	}
	pemData, err := marshalPrivateKey(signer)
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.Encrypt(p.auth.Cookies.Secret(), pemData)
	if err != nil {
		return nil, fmt.Errorf("jwks: encrypting private key: %w", err)
	}
	kid, doc, err := publicJWK(signer, p.opts.Alg)
	if err != nil {
		return nil, err
	}
	row, err := p.auth.Store.CreateJwk(ctx, &core.Jwk{
		PublicKey:  doc,
		PrivateKey: sealed,
		Alg:        p.opts.Alg,
	})
	if err != nil {
		return nil, err
	}
	p.auth.Logger.Info("generated signing key", "alg", p.opts.Alg, "kid", kid)
	return row, nil
}

// buildKeyring decrypts the newest key for signing and parses every stored
// public key into the verification set. Rows arrive newest first.
func buildKeyring(secrets []string, rows []*core.Jwk) (*keyring, error) {
	set := jwk.NewSet()
	var algs []string
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		key, err := jwk.ParseKey([]byte(row.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("jwks: parsing stored public key %s: %w", row.ID, err)
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("jwks: assembling key set: %w", err)
		}
		if !seen[row.Alg] {
			seen[row.Alg] = true
			algs = append(algs, row.Alg)
		}
	}

	newest := rows[0]
	pemData, err := crypto.DecryptAny(secrets, newest.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("jwks: decrypting private key %s: %w", newest.ID, err)
	}
	priv, err := parsePrivateKey(pemData)
	if err != nil {
		return nil, err
	}
	var meta struct {
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal([]byte(newest.PublicKey), &meta); err != nil || meta.Kid == "" {
		return nil, fmt.Errorf("jwks: stored public key %s has no kid", newest.ID)
	}

	return &keyring{
		signer: &signingKey{kid: meta.Kid, alg: newest.Alg, key: priv},
		public: set,
		algs:   algs,
	}, nil
}

// Sign issues a JWT under the current key. The kid header names the key so
// verifiers can pick it out of the published set.
func (p *Plugin) Sign(ctx context.Context, claims jwt.MapClaims) (string, error) {
	kr, err := p.keyring(ctx)
	if err != nil {
		return "", err
	}
	method := jwt.GetSigningMethod(kr.signer.alg)
	if method == nil {
		return "", fmt.Errorf("jwks: no signing method for %q", kr.signer.alg)
	}
	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = kr.signer.kid
	signed, err := token.SignedString(kr.signer.key)
	if err != nil {
		return "", fmt.Errorf("jwks: signing token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature against the published keys and returns
// its claims. Expiry is enforced here; issuer and audience are the caller's
// checks, since only it knows what it expects.
func (p *Plugin) Verify(ctx context.Context, raw string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(raw, p.keyfunc(ctx), jwt.WithValidMethods([]string{AlgRS256, AlgEdDSA}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("jwks: unexpected claims type")
	}
	return claims, nil
}

func (p *Plugin) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("jwks: token header missing kid")
		}
		kr, err := p.keyring(ctx)
		if err != nil {
			return nil, err
		}
		key, ok := kr.public.LookupKeyID(kid)
		if !ok {
			// A peer instance may have rotated since this process cached
			// the set.
			p.invalidate()
			if kr, err = p.keyring(ctx); err != nil {
				return nil, err
			}
			if key, ok = kr.public.LookupKeyID(kid); !ok {
				return nil, fmt.Errorf("jwks: key %s not found", kid)
			}
		}
		var rawKey any
		if err := jwk.Export(key, &rawKey); err != nil {
			return nil, fmt.Errorf("jwks: exporting key %s: %w", kid, err)
		}
		return rawKey, nil
	}
}

// Rotate generates a new keypair and makes it the signer. Previously issued
// tokens keep verifying against the retired keys.
func (p *Plugin) Rotate(ctx context.Context) error {
	if _, err := p.generate(ctx); err != nil {
		return err
	}
	p.invalidate()
	return nil
}

// SigningAlgorithms lists the algorithms present in the stored set, for
// discovery metadata. Before any key exists it reports the configured
// algorithm, which is what the first signature will use.
func (p *Plugin) SigningAlgorithms(ctx context.Context) []string {
	kr, err := p.keyring(ctx)
	if err != nil {
		return []string{p.opts.Alg}
	}
	return kr.algs
}
