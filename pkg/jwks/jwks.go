// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package jwks upgrades token signing from the HMAC default to asymmetric
// keys. Keypairs are generated on first use, persisted with the private key
// encrypted under the server secret, and published as a JWK set at /jwks so
// resource servers can verify tokens offline.
//
// The newest stored key signs; every stored key verifies, so rotation never
// invalidates tokens issued under a previous key.
package jwks

import (
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// PluginID registers the plugin.
const PluginID = "jwks"

// cacheMaxAge is the Cache-Control max-age for the published set (1 hour).
// Clients may serve a rotated-away key for up to this long.
const cacheMaxAge = 3600

// defaultRSABits sizes generated RSA keys.
const defaultRSABits = 2048

// Options tunes the jwks plugin.
type Options struct {
	// Alg selects the algorithm for generated keys: RS256 (default) or
	// EdDSA.
	Alg string
	// RSABits sizes generated RSA keys. Default 2048, which is also the
	// minimum accepted.
	RSABits int
}

// Plugin is the signing-key plugin. Construct with New.
type Plugin struct {
	opts Options
	auth *auth.Context

	group singleflight.Group
	mu    sync.RWMutex
	cache *keyring
}

// New builds the jwks plugin.
func New(opts Options) *Plugin {
	if opts.Alg == "" {
		opts.Alg = AlgRS256
	}
	if opts.RSABits == 0 {
		opts.RSABits = defaultRSABits
	}
	return &Plugin{opts: opts}
}

// ID implements auth.Plugin.
func (p *Plugin) ID() string { return PluginID }

// Init implements auth.Plugin. Key material is not touched here; the first
// signature or /jwks hit generates the keypair if none is stored.
func (p *Plugin) Init(ctx *auth.Context) (*auth.OptionsDelta, error) {
	switch p.opts.Alg {
	case AlgRS256, AlgEdDSA:
	default:
		return nil, fmt.Errorf("jwks: unsupported algorithm %q", p.opts.Alg)
	}
	if p.opts.RSABits < defaultRSABits {
		return nil, fmt.Errorf("jwks: RSA keys below %d bits are not accepted", defaultRSABits)
	}
	p.auth = ctx
	return nil, nil
}

// Endpoints implements auth.Plugin.
func (p *Plugin) Endpoints() []*auth.Endpoint {
	serve := auth.Get("/jwks", p.serveSet)
	serve.Name = "jwks"
	return []*auth.Endpoint{serve}
}

// Hooks implements auth.Plugin.
func (p *Plugin) Hooks() ([]auth.Hook, []auth.AfterHook) { return nil, nil }

// Schema implements auth.Plugin.
func (p *Plugin) Schema() []core.Table {
	return []core.Table{
		{Model: core.ModelJwks, Fields: []core.Field{
			{Name: "publicKey", Type: core.FieldString, Required: true},
			{Name: "privateKey", Type: core.FieldString, Required: true},
			{Name: "alg", Type: core.FieldString, Required: true},
			{Name: "createdAt", Type: core.FieldDate, Required: true},
		}},
	}
}

// ErrorCodes implements auth.Plugin. The endpoint is public and read-only;
// failures are server-side.
func (p *Plugin) ErrorCodes() map[string]string { return nil }

// serveSet publishes the public keys.
func (p *Plugin) serveSet(r *auth.Request) (any, error) {
	kr, err := p.keyring(r.Context())
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(kr.public)
	if err != nil {
		return nil, fmt.Errorf("jwks: encoding key set: %w", err)
	}
	r.SetHeader("Cache-Control", fmt.Sprintf("public, max-age=%d", cacheMaxAge))
	r.SetHeader("X-Content-Type-Options", "nosniff")
	return auth.Raw{ContentType: "application/json; charset=utf-8", Body: doc}, nil
}
