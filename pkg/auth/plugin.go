// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"net/url"

	"dario.cat/mergo"

	"github.com/betterauth/betterauth/pkg/core"
)

// Plugin extends the server with endpoints, hooks, schema fragments, and
// error codes. Implementations may return nil/empty from any method.
type Plugin interface {
	// ID is the stable registry key ("two-factor", "oidc-provider", ...).
	ID() string
	// Init runs during context assembly, after core wiring and before
	// endpoint collection. It may return an options delta that is
	// deep-merged into the options.
	Init(ctx *Context) (*OptionsDelta, error)
	// Endpoints contributes routable operations.
	Endpoints() []*Endpoint
	// Hooks contributes global before/after hooks.
	Hooks() (before []Hook, after []AfterHook)
	// Schema contributes model fragments merged into the core schema.
	Schema() []core.Table
	// ErrorCodes declares the plugin's stable error codes with their
	// default messages.
	ErrorCodes() map[string]string
}

// OptionsDelta is a partial Options merged into the live options by Init.
// Non-zero fields are deep-merged; list fields append.
type OptionsDelta struct {
	// TrustedOrigins appends to the trusted-origin set.
	TrustedOrigins []string
	// Options carries any other option overrides; nil fields are ignored.
	Options *Options
}

// applyDelta merges a plugin's options delta. Origins are normalized the
// same way normalize() treats configured ones.
func (c *Context) applyDelta(delta *OptionsDelta) error {
	if delta == nil {
		return nil
	}
	for _, origin := range delta.TrustedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("auth: plugin trusted origin %q is not a valid origin", origin)
		}
		c.Options.TrustedOrigins = append(c.Options.TrustedOrigins, u.Scheme+"://"+u.Host)
	}
	if delta.Options != nil {
		if err := mergo.Merge(c.Options, delta.Options); err != nil {
			return fmt.Errorf("auth: merging plugin options: %w", err)
		}
	}
	return nil
}

// Plugin returns the registered plugin with the given id.
func (c *Context) Plugin(id string) (Plugin, bool) {
	p, ok := c.plugins[id]
	return p, ok
}

// Lookup returns the plugin registered under id downcast to its concrete
// type. Plugins use it to call into optional peers:
//
//	if tel, ok := auth.Lookup[*telemetry.Plugin](ctx, telemetry.PluginID); ok { ... }
func Lookup[T Plugin](ctx *Context, id string) (T, bool) {
	var zero T
	p, ok := ctx.plugins[id]
	if !ok {
		return zero, false
	}
	t, ok := p.(T)
	return t, ok
}

// ErrorMessage resolves a registered error code to its default message,
// falling back to the code itself.
func (c *Context) ErrorMessage(code string) string {
	if msg, ok := c.errorCodes[code]; ok {
		return msg
	}
	return code
}
