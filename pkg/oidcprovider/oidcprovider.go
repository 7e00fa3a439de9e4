// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package oidcprovider turns the server into an OAuth 2.1 authorization
// server and OpenID Connect provider: authorization code flow with PKCE and
// consent, a multi-grant token endpoint, introspection, revocation, userinfo,
// dynamic client registration, and discovery metadata.
//
// The token endpoint dispatches on grant_type. Extension plugins (device
// authorization, CIBA) add their grants through RegisterGrant; the
// authorization code, refresh token, client credentials, and token exchange
// grants are built in.
package oidcprovider

import (
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// PluginID is the registry key peers use to look the provider up.
const PluginID = "oidc-provider"

// Built-in grant types served by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	GrantTokenExchange     = "urn:ietf:params:oauth:grant-type:token-exchange"
)

// Client secret storage policies.
const (
	StoreSecretPlain  = "plain"
	StoreSecretHashed = "hashed"
)

// Defaults applied by Init.
const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultCodeTTL         = 10 * time.Minute
	DefaultLoginPage       = "/sign-in"
	DefaultConsentPage     = "/consent"
)

// promptTTL bounds the login and consent prompt cookies. A user who walks
// away mid-flow has to start over.
const promptTTL = 10 * time.Minute

// Error codes registered by the plugin, for the browser-facing consent
// endpoint. OAuth client endpoints use the RFC 6749 vocabulary instead.
const (
	CodeConsentNotFound = "CONSENT_REQUEST_NOT_FOUND"
	CodeConsentMismatch = "CONSENT_REQUEST_MISMATCH"
)

// Options configures the provider.
type Options struct {
	// LoginPage receives users who reach the authorization endpoint without
	// a session. Relative paths resolve against the application origin.
	// Default "/sign-in".
	LoginPage string
	// ConsentPage is where users approve scope grants. It receives
	// consent_code, client_id and scope query parameters and posts the
	// decision to /oauth2/consent. Default "/consent".
	ConsentPage string

	// Scopes extends the server-wide scope whitelist for this provider.
	// A request's scopes must fall inside the whitelist plus the client's
	// own registered scopes.
	Scopes []string

	// AccessTokenTTL bounds access tokens and id_tokens. Default 1 hour.
	AccessTokenTTL time.Duration
	// RefreshTokenTTL bounds refresh tokens. Default 7 days.
	RefreshTokenTTL time.Duration
	// CodeTTL bounds authorization codes. Default 10 minutes.
	CodeTTL time.Duration

	// RequirePKCE demands a code challenge from confidential clients too.
	// Public clients always need one.
	RequirePKCE bool
	// AllowPlainCodeChallengeMethod accepts the "plain" PKCE transform.
	// S256 is otherwise the only accepted method.
	AllowPlainCodeChallengeMethod bool

	// StoreClientSecret selects how client secrets rest in the database:
	// "plain" (default) keeps the registered value, "hashed" stores a
	// SHA-256 digest and compares digests at the token endpoint.
	StoreClientSecret string

	// AllowDynamicClientRegistration enables POST /oauth2/register
	// (RFC 7591). Disabled by default.
	AllowDynamicClientRegistration bool

	// JWTAccessTokens issues signed JWT access tokens for every grant
	// instead of opaque ones. Independent of this switch, a token request
	// naming a trusted resource, or a client registered with
	// {"access_token_format": "jwt"} metadata, gets a JWT.
	JWTAccessTokens bool

	// TrustedResources lists the audience values accepted for the RFC 8707
	// resource parameter. Requests naming any other resource are rejected.
	TrustedResources []string

	// DecodeRefreshToken maps a presented refresh token onto the stored
	// value, for deployments that wrap refresh tokens in an envelope of
	// their own.
	DecodeRefreshToken func(raw string) (string, error)
}

// GrantHandler serves one grant_type at the token endpoint. Dispatch happens
// after client resolution: the client exists, is enabled, is authenticated
// when confidential, and allows the grant type.
type GrantHandler func(r *auth.Request, client *core.OAuthClient) (any, error)

// Plugin implements auth.Plugin.
type Plugin struct {
	opts Options
	auth *auth.Context

	mu     sync.RWMutex
	grants map[string]GrantHandler
}

// New returns the provider plugin. The grant registry exists from
// construction so peers may register extension grants during their own Init
// regardless of initialization order.
func New(opts Options) *Plugin {
	return &Plugin{opts: opts, grants: make(map[string]GrantHandler)}
}

// ID implements auth.Plugin.
func (p *Plugin) ID() string { return PluginID }

// Init implements auth.Plugin.
func (p *Plugin) Init(ctx *auth.Context) (*auth.OptionsDelta, error) {
	p.auth = ctx

	switch p.opts.StoreClientSecret {
	case "":
		p.opts.StoreClientSecret = StoreSecretPlain
	case StoreSecretPlain, StoreSecretHashed:
	default:
		return nil, fmt.Errorf("oidcprovider: unsupported StoreClientSecret policy %q", p.opts.StoreClientSecret)
	}

	if p.opts.AccessTokenTTL <= 0 {
		p.opts.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if p.opts.RefreshTokenTTL <= 0 {
		p.opts.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if p.opts.CodeTTL <= 0 {
		p.opts.CodeTTL = DefaultCodeTTL
	}
	if p.opts.LoginPage == "" {
		p.opts.LoginPage = DefaultLoginPage
	}
	if p.opts.ConsentPage == "" {
		p.opts.ConsentPage = DefaultConsentPage
	}
	return nil, nil
}

// RegisterGrant adds an extension grant to the token endpoint's dispatch
// table. Built-in grant types cannot be replaced.
func (p *Plugin) RegisterGrant(grantType string, handler GrantHandler) error {
	switch grantType {
	case GrantAuthorizationCode, GrantRefreshToken, GrantClientCredentials, GrantTokenExchange:
		return fmt.Errorf("oidcprovider: grant type %q is built in", grantType)
	}
	if handler == nil {
		return fmt.Errorf("oidcprovider: nil handler for grant type %q", grantType)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.grants[grantType]; exists {
		return fmt.Errorf("oidcprovider: grant type %q already registered", grantType)
	}
	p.grants[grantType] = handler
	return nil
}

// GrantTypes returns every grant type the token endpoint serves, sorted.
// Discovery metadata publishes it.
func (p *Plugin) GrantTypes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	types := []string{GrantAuthorizationCode, GrantRefreshToken, GrantClientCredentials, GrantTokenExchange}
	for grantType := range p.grants {
		types = append(types, grantType)
	}
	sort.Strings(types)
	return types
}

// Endpoints implements auth.Plugin. Endpoints called by OAuth clients rather
// than browsers skip the CSRF double-submit check; they are protected by
// client authentication and PKCE instead.
func (p *Plugin) Endpoints() []*auth.Endpoint {
	authorize := auth.Get("/oauth2/authorize", p.authorize)
	authorize.Name = "oauth2.authorize"

	token := auth.Post("/oauth2/token", p.token)
	token.Name = "oauth2.token"
	token.SkipCSRF = true

	introspect := auth.Post("/oauth2/introspect", p.introspect)
	introspect.Name = "oauth2.introspect"
	introspect.SkipCSRF = true

	revoke := auth.Post("/oauth2/revoke", p.revoke)
	revoke.Name = "oauth2.revoke"
	revoke.SkipCSRF = true

	userinfo := auth.Get("/oauth2/userinfo", p.userinfo)
	userinfo.Name = "oauth2.userinfo"

	consent := auth.Post("/oauth2/consent", p.consent)
	consent.Name = "oauth2.consent"
	consent.RequireSession = true

	oidcMeta := auth.Get("/.well-known/openid-configuration", p.serveMetadata)
	oidcMeta.Name = "oauth2.openid-configuration"

	oauthMeta := auth.Get("/.well-known/oauth-authorization-server", p.serveMetadata)
	oauthMeta.Name = "oauth2.authorization-server-metadata"

	endpoints := []*auth.Endpoint{authorize, token, introspect, revoke, userinfo, consent, oidcMeta, oauthMeta}

	if p.opts.AllowDynamicClientRegistration {
		register := auth.Post("/oauth2/register", p.register)
		register.Name = "oauth2.register"
		register.SkipCSRF = true
		endpoints = append(endpoints, register)
	}
	return endpoints
}

// Hooks implements auth.Plugin. The after hook resumes a stashed
// authorization request once the user finishes signing in.
func (p *Plugin) Hooks() (before []auth.Hook, after []auth.AfterHook) {
	return nil, []auth.AfterHook{p.resumeAuthorizationHook()}
}

// Schema implements auth.Plugin.
func (p *Plugin) Schema() []core.Table {
	return []core.Table{
		{Model: core.ModelOAuthClient, Fields: []core.Field{
			{Name: "clientId", Type: core.FieldString, Required: true, Unique: true},
			{Name: "clientSecret", Type: core.FieldString},
			{Name: "name", Type: core.FieldString},
			{Name: "redirectUris", Type: core.FieldString, Required: true},
			{Name: "scopes", Type: core.FieldString},
			{Name: "public", Type: core.FieldBoolean},
			{Name: "skipConsent", Type: core.FieldBoolean},
			{Name: "tokenEndpointAuthMethod", Type: core.FieldString},
			{Name: "grantTypes", Type: core.FieldString},
			{Name: "responseTypes", Type: core.FieldString},
			{Name: "disabled", Type: core.FieldBoolean},
			{Name: "metadata", Type: core.FieldString},
			{Name: "referenceId", Type: core.FieldString},
			{Name: "createdAt", Type: core.FieldDate, Required: true},
			{Name: "updatedAt", Type: core.FieldDate, Required: true},
		}},
		{Model: core.ModelOAuthAccessToken, Fields: []core.Field{
			{Name: "token", Type: core.FieldString, Required: true, Unique: true},
			{Name: "clientId", Type: core.FieldString, Required: true},
			{Name: "userId", Type: core.FieldString},
			{Name: "sessionId", Type: core.FieldString},
			{Name: "scopes", Type: core.FieldString},
			{Name: "expiresAt", Type: core.FieldDate, Required: true},
			{Name: "refreshId", Type: core.FieldString},
			{Name: "createdAt", Type: core.FieldDate, Required: true},
		}},
		{Model: core.ModelOAuthRefreshToken, Fields: []core.Field{
			{Name: "token", Type: core.FieldString, Required: true, Unique: true},
			{Name: "clientId", Type: core.FieldString, Required: true},
			{Name: "userId", Type: core.FieldString, Required: true},
			{Name: "sessionId", Type: core.FieldString},
			{Name: "scopes", Type: core.FieldString},
			{Name: "expiresAt", Type: core.FieldDate, Required: true},
			{Name: "revokedAt", Type: core.FieldDate},
			{Name: "createdAt", Type: core.FieldDate, Required: true},
		}},
		{Model: core.ModelOAuthConsent, Fields: []core.Field{
			{Name: "clientId", Type: core.FieldString, Required: true},
			{Name: "userId", Type: core.FieldString, Required: true, Ref: &core.Reference{Model: core.ModelUser, Field: "id", OnDelete: "cascade"}},
			{Name: "scopes", Type: core.FieldString},
			{Name: "referenceId", Type: core.FieldString},
			{Name: "consentGiven", Type: core.FieldBoolean, Required: true},
			{Name: "createdAt", Type: core.FieldDate, Required: true},
			{Name: "updatedAt", Type: core.FieldDate, Required: true},
		}},
	}
}

// ErrorCodes implements auth.Plugin.
func (p *Plugin) ErrorCodes() map[string]string {
	return map[string]string{
		CodeConsentNotFound: "Consent request not found or expired",
		CodeConsentMismatch: "Consent request belongs to another user",
	}
}

// allowedScopes reports whether every requested scope falls inside the
// server whitelist plus the client's registered scopes.
func (p *Plugin) allowedScopes(client *core.OAuthClient, requested []string) bool {
	for _, scope := range requested {
		if !slices.Contains(p.auth.Options.Scopes, scope) &&
			!slices.Contains(p.opts.Scopes, scope) &&
			!slices.Contains(client.Scopes, scope) {
			return false
		}
	}
	return true
}

// scopesCovered reports whether every requested scope was previously granted.
func scopesCovered(granted, requested []string) bool {
	for _, scope := range requested {
		if !slices.Contains(granted, scope) {
			return false
		}
	}
	return true
}

// serverError logs the cause and returns an opaque OAuth server_error. The
// RFC shape is kept even for internal failures so OAuth clients never see
// the JSON API envelope.
func (p *Plugin) serverError(r *auth.Request, action string, err error) error {
	p.auth.Logger.Error("oidc provider failure", "action", action, "path", r.Path(), "error", err)
	return auth.NewOAuthError(auth.OAuthServerError, "request could not be processed").WithStatus(http.StatusInternalServerError)
}
