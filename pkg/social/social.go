// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package social implements sign-in through upstream identity providers:
// the authorize redirect with a state cookie, the callback that exchanges
// the code and links or creates the local user, and management of the linked
// accounts (listing, unlinking, access-token retrieval with refresh).
//
// Concrete provider adapters are the embedding application's concern;
// NewOIDCProvider covers any issuer that supports OIDC discovery.
package social

import (
	"fmt"
	"net/http"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// PluginID registers the plugin.
const PluginID = "social"

// Stable error codes contributed by this plugin.
const (
	CodeProviderNotFound   = "PROVIDER_NOT_FOUND"
	CodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	CodeLastAccount        = "FAILED_TO_UNLINK_LAST_ACCOUNT"
	CodeTokenRefreshFailed = "FAILED_TO_REFRESH_ACCESS_TOKEN"
)

// Callback failures surface as query parameters on the error redirect, in
// the OAuth tradition of lower-snake error strings.
const (
	errStateMismatch  = "state_mismatch"
	errCodeExchange   = "oauth_code_verification_failed"
	errEmailMissing   = "email_not_found"
	errNotLinked      = "account_not_linked"
	errAlreadyLinked  = "account_already_linked"
	errSignUpDisabled = "signup_disabled"
)

// defaultStateTTL bounds one authorize round trip to the provider and back.
const defaultStateTTL = 10 * time.Minute

// Options tunes the social plugin.
type Options struct {
	// Providers are the upstream identity providers, keyed by Provider.ID.
	Providers []Provider
	// StateTTL bounds the authorize round trip. Default 10 minutes.
	StateTTL time.Duration
	// DisableImplicitSignUp refuses to create a user on first social
	// sign-in unless the request set requestSignUp.
	DisableImplicitSignUp bool
	// DisableImplicitLinking refuses to attach a social account to an
	// existing user matched by verified email; such sign-ins fail with
	// account_not_linked and the user must link explicitly while signed in.
	DisableImplicitLinking bool
}

// Plugin is the social sign-in plugin. Construct with New.
type Plugin struct {
	opts      Options
	auth      *auth.Context
	providers map[string]Provider
}

// New builds the social plugin.
func New(opts Options) *Plugin {
	if opts.StateTTL <= 0 {
		opts.StateTTL = defaultStateTTL
	}
	return &Plugin{opts: opts}
}

// ID implements auth.Plugin.
func (p *Plugin) ID() string { return PluginID }

// Init implements auth.Plugin. It indexes the providers and completes the
// callback URL of any provider configured without one.
func (p *Plugin) Init(ctx *auth.Context) (*auth.OptionsDelta, error) {
	p.auth = ctx
	p.providers = make(map[string]Provider, len(p.opts.Providers))
	for _, provider := range p.opts.Providers {
		id := provider.ID()
		if id == "" {
			return nil, fmt.Errorf("social: provider with empty id")
		}
		if _, dup := p.providers[id]; dup {
			return nil, fmt.Errorf("social: duplicate provider id %q", id)
		}
		if setter, ok := provider.(RedirectURISetter); ok {
			setter.SetRedirectURI(ctx.URL("/callback/" + id))
		}
		p.providers[id] = provider
	}
	return nil, nil
}

// Endpoints implements auth.Plugin.
func (p *Plugin) Endpoints() []*auth.Endpoint {
	signIn := auth.Post("/sign-in/social", p.signIn)
	signIn.Name = "sign-in-social"

	// The provider redirects (GET) or form-posts back; neither carries a
	// CSRF token. The state cookie binds the callback to the browser that
	// started the flow instead.
	callback := &auth.Endpoint{
		Name:     "oauth-callback",
		Path:     "/callback/{provider}",
		Methods:  []string{http.MethodGet, http.MethodPost},
		Handler:  p.callback,
		SkipCSRF: true,
	}

	link := auth.Post("/link-social", p.linkSocial)
	link.Name = "link-social"
	link.RequireSession = true

	list := auth.Get("/list-accounts", p.listAccounts)
	list.Name = "list-accounts"
	list.RequireSession = true

	unlink := auth.Post("/unlink-account", p.unlinkAccount)
	unlink.Name = "unlink-account"
	unlink.RequireSession = true

	accessToken := auth.Post("/get-access-token", p.getAccessToken)
	accessToken.Name = "get-access-token"
	accessToken.RequireSession = true

	return []*auth.Endpoint{signIn, callback, link, list, unlink, accessToken}
}

// Hooks implements auth.Plugin.
func (p *Plugin) Hooks() ([]auth.Hook, []auth.AfterHook) { return nil, nil }

// Schema implements auth.Plugin. Social accounts live in the core account
// table.
func (p *Plugin) Schema() []core.Table { return nil }

// ErrorCodes implements auth.Plugin.
func (p *Plugin) ErrorCodes() map[string]string {
	return map[string]string{
		CodeProviderNotFound:   "Provider not found",
		CodeAccountNotFound:    "Account not found",
		CodeLastAccount:        "Cannot unlink the last linked account",
		CodeTokenRefreshFailed: "Failed to refresh the access token",
	}
}

// provider resolves a configured provider by id.
func (p *Plugin) provider(id string) Provider {
	return p.providers[id]
}

// sealToken encrypts an upstream token for the account row. Tokens are
// bearer credentials for the user's upstream account and never stored plain.
func (p *Plugin) sealToken(value string) (string, error) {
	return crypto.Encrypt(p.auth.Cookies.Secret(), value)
}

// openToken decrypts a stored upstream token, trying every secret version.
// An absent token opens to the empty string.
func (p *Plugin) openToken(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	plain, err := crypto.DecryptAny(p.auth.Cookies.Secrets(), sealed)
	if err != nil {
		return "", fmt.Errorf("social: decrypting stored token: %w", err)
	}
	return plain, nil
}
