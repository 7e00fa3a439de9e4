// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"context"
	"errors"
	"time"
)

// Provider is an upstream identity provider used for social sign-in.
// NewOIDCProvider covers any discovery-capable issuer; adapters for pure
// OAuth 2.0 APIs (GitHub and friends) implement the interface directly.
type Provider interface {
	// ID keys the provider: it names the callback route
	// ("/callback/<id>") and the account rows linking users to it.
	ID() string

	// AuthorizationURL builds the upstream redirect. state round-trips
	// through the provider untouched; codeChallenge is the PKCE S256
	// challenge and may be ignored by providers that reject RFC 7636
	// parameters.
	AuthorizationURL(state, codeChallenge string, opts ...AuthorizeOption) (string, error)

	// Exchange trades the callback's authorization code for tokens and
	// resolves the authenticated identity. nonce, when non-empty, must
	// match the ID token's nonce claim.
	Exchange(ctx context.Context, code, codeVerifier, nonce string) (*Tokens, *Identity, error)
}

// TokenRefresher is implemented by providers that support the refresh grant.
// The get-access-token endpoint uses it to renew expired account tokens.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error)
}

// RedirectURISetter is implemented by providers that derive their callback
// URL from the server's mount point instead of fixed configuration. Plugin
// initialization calls it with "<baseURL><basePath>/callback/<id>" when no
// explicit redirect URI was configured.
type RedirectURISetter interface {
	SetRedirectURI(uri string)
}

// Tokens are the grant results returned by a provider's token endpoint.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	// ExpiresAt is the access token expiry; zero when the provider did not
	// report one.
	ExpiresAt time.Time
	// Scope is the space-separated scope string actually granted.
	Scope string
}

// Identity is the normalized profile of the authenticated upstream user.
type Identity struct {
	// Subject is the provider-scoped stable user identifier (sub claim).
	Subject string
	Email   string
	// EmailVerified reports whether the provider vouches for the address.
	// Implicit account linking by email requires it.
	EmailVerified bool
	Name          string
	Image         string
}

// ErrNonceMismatch is returned when the ID token's nonce claim does not match
// the value sent with the authorization request.
var ErrNonceMismatch = errors.New("social: ID token nonce does not match expected value")

// ErrNonceMissing is returned when a nonce was sent with the authorization
// request but the ID token carries none.
var ErrNonceMissing = errors.New("social: ID token missing expected nonce claim")

// ErrSubjectMismatch is returned when the userinfo response's subject differs
// from the ID token's, which would allow user impersonation.
var ErrSubjectMismatch = errors.New("social: userinfo subject does not match ID token subject")

// authorizeOptions collects the optional authorization-request parameters.
type authorizeOptions struct {
	nonce     string
	scopes    []string
	loginHint string
	prompt    string
	params    map[string]string
}

// AuthorizeOption configures authorization URL generation.
type AuthorizeOption func(*authorizeOptions)

// WithNonce binds the eventual ID token to this authorization request,
// preventing replay.
func WithNonce(nonce string) AuthorizeOption {
	return func(o *authorizeOptions) {
		o.nonce = nonce
	}
}

// WithScopes requests scopes on top of the provider's configured set.
func WithScopes(scopes ...string) AuthorizeOption {
	return func(o *authorizeOptions) {
		o.scopes = append(o.scopes, scopes...)
	}
}

// WithLoginHint pre-fills the provider's account chooser.
func WithLoginHint(hint string) AuthorizeOption {
	return func(o *authorizeOptions) {
		o.loginHint = hint
	}
}

// WithPrompt overrides the provider's configured prompt behavior
// ("consent", "select_account", "none").
func WithPrompt(prompt string) AuthorizeOption {
	return func(o *authorizeOptions) {
		o.prompt = prompt
	}
}

// WithParams adds raw authorization parameters for provider quirks.
func WithParams(params map[string]string) AuthorizeOption {
	return func(o *authorizeOptions) {
		if o.params == nil {
			o.params = make(map[string]string, len(params))
		}
		for k, v := range params {
			o.params[k] = v
		}
	}
}
