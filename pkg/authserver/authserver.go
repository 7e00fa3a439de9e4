// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package authserver assembles a ready-to-mount authentication server from
// options, plugins, and a set of OAuth clients provisioned at startup. It is
// the batteries-included constructor used by cmd/betterauth; embedders who
// need finer control call auth.NewContext directly.
package authserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// DefaultSweepInterval paces the background expiry sweeper.
const DefaultSweepInterval = 15 * time.Minute

// Client describes an OAuth client provisioned when the server starts.
// Provisioning upserts by ClientID, so restarting with changed redirect URIs
// or scopes updates the stored client in place instead of duplicating it.
type Client struct {
	// ClientID is required and immutable.
	ClientID string

	// ClientSecret is required unless Public. It is stored as given, which
	// matches the provider's default plain secret-storage policy; under the
	// hashed policy the caller supplies the digest.
	ClientSecret string

	Name         string
	RedirectURIs []string

	// Scopes the client may be granted. Empty allows the server-wide set.
	Scopes []string

	// GrantTypes the client may use. Empty leaves it unrestricted.
	GrantTypes []string

	// Public marks a client that cannot keep a secret (CLIs, native apps,
	// SPAs). Public clients authenticate with client_id plus PKCE alone.
	Public bool

	// SkipConsent suppresses the consent prompt. Reserve it for first-party
	// clients.
	SkipConsent bool
}

// Options configures the assembly.
type Options struct {
	// Auth is handed to auth.NewContext unchanged. Database is required
	// there; everything else picks up development defaults.
	Auth auth.Options

	// Clients are provisioned before New returns.
	Clients []Client
}

// Server couples an assembled auth context with its HTTP handler.
type Server struct {
	auth *auth.Context
}

// New assembles the auth context with the given plugins and provisions the
// configured OAuth clients.
func New(opts Options, plugins ...auth.Plugin) (*Server, error) {
	ctx, err := auth.NewContext(&opts.Auth, plugins...)
	if err != nil {
		return nil, err
	}
	s := &Server{auth: ctx}
	if err := s.provisionClients(context.Background(), opts.Clients); err != nil {
		return nil, err
	}
	return s, nil
}

// Auth exposes the underlying context for store access and session APIs.
func (s *Server) Auth() *auth.Context { return s.auth }

// Handler returns the HTTP handler. Mount it at the configured base path:
//
//	mux.Handle("/api/auth/", srv.Handler())
func (s *Server) Handler() http.Handler { return s.auth.Handler() }

// RunSweeper deletes expired sessions, verifications, tokens, and grant
// requests every interval until ctx is cancelled. Cancellation returns nil
// so an errgroup treats shutdown as clean.
func (s *Server) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.auth.Sweep(ctx)
		}
	}
}

func (s *Server) provisionClients(ctx context.Context, clients []Client) error {
	for _, c := range clients {
		if err := s.provisionClient(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) provisionClient(ctx context.Context, c Client) error {
	if c.ClientID == "" {
		return fmt.Errorf("authserver: client %q: ClientID is required", c.Name)
	}
	if !c.Public && c.ClientSecret == "" {
		return fmt.Errorf("authserver: client %q: confidential clients need a ClientSecret", c.ClientID)
	}

	existing, err := s.auth.Store.FindOAuthClient(ctx, c.ClientID)
	if err != nil {
		return fmt.Errorf("authserver: provisioning client %q: %w", c.ClientID, err)
	}
	if existing == nil {
		_, err = s.auth.Store.CreateOAuthClient(ctx, &core.OAuthClient{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Name:         c.Name,
			RedirectURIs: c.RedirectURIs,
			Scopes:       c.Scopes,
			GrantTypes:   c.GrantTypes,
			Public:       c.Public,
			SkipConsent:  c.SkipConsent,
		})
	} else {
		_, err = s.auth.Store.UpdateOAuthClient(ctx, c.ClientID, map[string]any{
			"clientSecret": c.ClientSecret,
			"name":         c.Name,
			"redirectUris": c.RedirectURIs,
			"scopes":       c.Scopes,
			"grantTypes":   c.GrantTypes,
			"public":       c.Public,
			"skipConsent":  c.SkipConsent,
			"disabled":     false,
		})
	}
	if err != nil {
		return fmt.Errorf("authserver: provisioning client %q: %w", c.ClientID, err)
	}
	return nil
}
