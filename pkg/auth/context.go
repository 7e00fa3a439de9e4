// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth assembles the server core: options, the immutable context,
// the plugin registry, the endpoint pipeline with its hook chains and
// guards, and the session engine.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/betterauth/betterauth/pkg/adapter"
	"github.com/betterauth/betterauth/pkg/cookies"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
	"github.com/betterauth/betterauth/pkg/ratelimit"
	"github.com/betterauth/betterauth/pkg/store"
)

// PasswordHasher hashes and verifies credential passwords. The default is
// argon2id peppered with the server secret.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type argonHasher struct {
	secrets []string
}

func (h *argonHasher) Hash(password string) (string, error) {
	return crypto.HashPassword(password, h.secrets[0])
}

// Verify tries every secret version so rotated deployments keep verifying
// hashes peppered with older secrets.
func (h *argonHasher) Verify(password, hash string) bool {
	for _, secret := range h.secrets {
		if crypto.VerifyPassword(password, secret, hash) {
			return true
		}
	}
	return false
}

// Context is the process-wide state assembled once by NewContext and shared
// by every request. It is immutable after assembly.
type Context struct {
	Options *Options

	// BaseURL is the public origin without path ("https://auth.example.com").
	BaseURL string
	// BasePath is where the handler is mounted ("/api/auth").
	BasePath string

	Logger  *slog.Logger
	DB      adapter.Adapter
	Store   *store.Store
	Cookies *cookies.Factory
	Hasher  PasswordHasher
	Limiter *ratelimit.Limiter

	plugins     map[string]Plugin
	pluginOrder []string
	endpoints   []*Endpoint
	beforeHooks []Hook
	afterHooks  []AfterHook
	errorCodes  map[string]string
	schema      []core.Table
}

// NewContext validates options, wires the core services, and runs plugin
// initialization. Plugins are registered first and initialized in order, so
// an Init may look up any peer.
func NewContext(opts *Options, plugins ...Plugin) (*Context, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	secrets := opts.secretValues()
	secure := strings.HasPrefix(opts.BaseURL, "https://") || opts.Advanced.UseSecureCookies

	storeOpts := []store.Option{}
	if opts.SecondaryStorage != nil {
		storeOpts = append(storeOpts, store.WithSecondaryStorage(opts.SecondaryStorage))
	}

	c := &Context{
		Options:  opts,
		BaseURL:  opts.BaseURL,
		BasePath: opts.BasePath,
		Logger:   opts.Logger,
		DB:       opts.Database,
		Store:    store.New(opts.Database, storeOpts...),
		Cookies: cookies.NewFactory(cookies.Options{
			Prefix: opts.Advanced.CookiePrefix,
			Secure: secure,
			Domain: opts.Advanced.CrossSubDomainCookies,
		}, secrets),
		Hasher:     &argonHasher{secrets: secrets},
		plugins:    make(map[string]Plugin, len(plugins)),
		errorCodes: make(map[string]string),
	}
	c.Limiter = ratelimit.New(ratelimit.Options{
		Enabled: opts.rateLimitEnabled(),
		Window:  opts.RateLimit.Window,
		Max:     opts.RateLimit.Max,
		Rules:   opts.RateLimit.Rules,
		Storage: c.rateLimitStorage(),
	})

	for _, p := range plugins {
		if _, dup := c.plugins[p.ID()]; dup {
			return nil, fmt.Errorf("auth: duplicate plugin id %q", p.ID())
		}
		c.plugins[p.ID()] = p
		c.pluginOrder = append(c.pluginOrder, p.ID())
	}
	for _, id := range c.pluginOrder {
		delta, err := c.plugins[id].Init(c)
		if err != nil {
			return nil, fmt.Errorf("auth: initializing plugin %q: %w", id, err)
		}
		if err := c.applyDelta(delta); err != nil {
			return nil, err
		}
	}

	c.beforeHooks = append(c.beforeHooks, opts.Hooks.Before...)
	c.afterHooks = append(c.afterHooks, opts.Hooks.After...)

	fragments := make([][]core.Table, 0, len(plugins))
	c.endpoints = append(c.endpoints, coreEndpoints()...)
	for _, id := range c.pluginOrder {
		p := c.plugins[id]
		c.endpoints = append(c.endpoints, p.Endpoints()...)
		before, after := p.Hooks()
		c.beforeHooks = append(c.beforeHooks, before...)
		c.afterHooks = append(c.afterHooks, after...)
		if frag := p.Schema(); len(frag) > 0 {
			fragments = append(fragments, frag)
		}
		for code, msg := range p.ErrorCodes() {
			c.errorCodes[code] = msg
		}
	}

	if err := c.checkEndpointConflicts(); err != nil {
		return nil, err
	}

	schema, err := core.MergeTables(core.CoreTables(), fragments...)
	if err != nil {
		return nil, err
	}
	c.schema = schema

	return c, nil
}

func (c *Context) rateLimitStorage() ratelimit.Storage {
	switch c.Options.RateLimit.Storage {
	case "database":
		return ratelimit.NewAdapterStorage(c.DB)
	case "secondary-storage":
		if c.Options.SecondaryStorage != nil {
			return ratelimit.NewSecondaryStorage(c.Options.SecondaryStorage)
		}
		c.Logger.Warn("rate limit storage set to secondary-storage but none is configured, using memory")
		return nil
	default:
		return nil
	}
}

func (c *Context) checkEndpointConflicts() error {
	seen := make(map[string]string, len(c.endpoints))
	for _, ep := range c.endpoints {
		for _, m := range ep.Methods {
			key := m + " " + ep.Path
			if prev, ok := seen[key]; ok {
				return fmt.Errorf("auth: endpoint conflict: %s registered by both %q and %q", key, prev, ep.Name)
			}
			seen[key] = ep.Name
		}
	}
	return nil
}

// Endpoints returns every registered endpoint.
func (c *Context) Endpoints() []*Endpoint {
	return c.endpoints
}

// Schema returns the merged model schema, core tables plus plugin fragments.
func (c *Context) Schema() []core.Table {
	return c.schema
}

// Issuer is the OAuth/OIDC issuer identifier: base URL plus base path.
func (c *Context) Issuer() string {
	return c.BaseURL + c.BasePath
}

// URL builds an absolute URL for an endpoint-relative path.
func (c *Context) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL + c.BasePath + path
}

// TrustedOrigin reports whether origin (scheme://host) may make credentialed
// browser requests and receive redirects. The server's own origin always
// qualifies.
func (c *Context) TrustedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	origin = strings.TrimSuffix(origin, "/")
	if strings.EqualFold(origin, c.BaseURL) {
		return true
	}
	for _, trusted := range c.Options.TrustedOrigins {
		if strings.EqualFold(origin, trusted) {
			return true
		}
	}
	return false
}

// Sweep deletes expired sessions, verifications, tokens, and grant requests.
// The pipeline triggers it opportunistically; servers may also run it on a
// ticker.
func (c *Context) Sweep(ctx context.Context) {
	if _, err := c.Store.DeleteExpiredSessions(ctx); err != nil {
		c.Logger.Warn("sweeping expired sessions", "error", err)
	}
	if _, err := c.Store.DeleteExpiredVerifications(ctx); err != nil {
		c.Logger.Warn("sweeping expired verifications", "error", err)
	}
	if _, err := c.Store.DeleteExpiredTokens(ctx); err != nil {
		c.Logger.Warn("sweeping expired tokens", "error", err)
	}
	if _, err := c.Store.DeleteExpiredGrantRequests(ctx); err != nil {
		c.Logger.Warn("sweeping expired grant requests", "error", err)
	}
}
