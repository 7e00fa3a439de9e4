// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig configures a discovery-capable provider. Endpoints are fetched
// from {Issuer}/.well-known/openid-configuration.
type OIDCConfig struct {
	// ProviderID keys the provider ("google", "okta", ...). Required.
	ProviderID string
	// Issuer is the provider origin. Required.
	Issuer       string
	ClientID     string
	ClientSecret string
	// Scopes defaults to "openid profile email". The openid scope is
	// mandatory; without it the provider returns no ID token.
	Scopes []string
	// RedirectURI fixes the callback URL. Left empty, plugin initialization
	// derives "<baseURL><basePath>/callback/<ProviderID>".
	RedirectURI string
	// Prompt is sent with every authorization request ("consent",
	// "select_account"). Optional.
	Prompt string
	// DisablePKCE skips the code challenge for providers that reject RFC
	// 7636 parameters they do not understand.
	DisablePKCE bool
}

func (c *OIDCConfig) validate() error {
	if c.ProviderID == "" {
		return errors.New("social: oidc config: ProviderID is required")
	}
	if c.Issuer == "" {
		return errors.New("social: oidc config: Issuer is required")
	}
	if c.ClientID == "" {
		return errors.New("social: oidc config: ClientID is required")
	}
	return nil
}

// OIDCProvider implements Provider for any OIDC-compliant identity provider.
// It verifies ID tokens against the issuer's JWKS and falls back to the
// userinfo endpoint when the ID token omits profile claims.
type OIDCProvider struct {
	cfg      OIDCConfig
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
	client   *http.Client
}

// OIDCOption configures NewOIDCProvider.
type OIDCOption func(*OIDCProvider)

// WithHTTPClient routes discovery, token, JWKS, and userinfo requests through
// a custom client.
func WithHTTPClient(client *http.Client) OIDCOption {
	return func(p *OIDCProvider) {
		p.client = client
	}
}

// NewOIDCProvider discovers the issuer's endpoints and builds a ready
// provider. Discovery is eager, so construction needs the issuer reachable.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig, opts ...OIDCOption) (*OIDCProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &OIDCProvider{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if !slices.Contains(scopes, oidc.ScopeOpenID) {
		return nil, errors.New("social: oidc config: the openid scope is required")
	}

	provider, err := oidc.NewProvider(p.withClient(ctx), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("social: discovering %q endpoints: %w", cfg.ProviderID, err)
	}
	p.provider = provider
	p.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	// Credentials go in the request body: AuthStyleInParams behaves the same
	// across IdPs where auto-detection can flap on the first request.
	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	p.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}
	return p, nil
}

// ID implements Provider.
func (p *OIDCProvider) ID() string { return p.cfg.ProviderID }

// SetRedirectURI implements RedirectURISetter. It is a no-op once a redirect
// URI has been fixed by configuration.
func (p *OIDCProvider) SetRedirectURI(uri string) {
	if p.oauth.RedirectURL == "" {
		p.oauth.RedirectURL = uri
	}
}

// AuthorizationURL implements Provider.
func (p *OIDCProvider) AuthorizationURL(state, codeChallenge string, opts ...AuthorizeOption) (string, error) {
	var o authorizeOptions
	for _, opt := range opts {
		opt(&o)
	}

	params := []oauth2.AuthCodeOption{}
	if codeChallenge != "" && !p.cfg.DisablePKCE {
		params = append(params,
			oauth2.SetAuthURLParam("code_challenge", codeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	if o.nonce != "" {
		params = append(params, oauth2.SetAuthURLParam("nonce", o.nonce))
	}
	if prompt := firstNonEmpty(o.prompt, p.cfg.Prompt); prompt != "" {
		params = append(params, oauth2.SetAuthURLParam("prompt", prompt))
	}
	if o.loginHint != "" {
		params = append(params, oauth2.SetAuthURLParam("login_hint", o.loginHint))
	}
	for k, v := range o.params {
		params = append(params, oauth2.SetAuthURLParam(k, v))
	}

	cfg := *p.oauth
	if len(o.scopes) > 0 {
		cfg.Scopes = mergeScopes(cfg.Scopes, o.scopes)
	}
	return cfg.AuthCodeURL(state, params...), nil
}

// Exchange implements Provider. The ID token is mandatory and its nonce must
// match when one was sent with the authorization request.
func (p *OIDCProvider) Exchange(ctx context.Context, code, codeVerifier, nonce string) (*Tokens, *Identity, error) {
	ctx = p.withClient(ctx)

	var params []oauth2.AuthCodeOption
	if codeVerifier != "" && !p.cfg.DisablePKCE {
		params = append(params, oauth2.VerifierOption(codeVerifier))
	}
	token, err := p.oauth.Exchange(ctx, code, params...)
	if err != nil {
		return nil, nil, fmt.Errorf("social: exchanging code with %q: %w", p.cfg.ProviderID, err)
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, nil, fmt.Errorf("social: provider %q returned no ID token", p.cfg.ProviderID)
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("social: verifying %q ID token: %w", p.cfg.ProviderID, err)
	}
	if nonce != "" {
		if idToken.Nonce == "" {
			return nil, nil, ErrNonceMissing
		}
		if idToken.Nonce != nonce {
			return nil, nil, ErrNonceMismatch
		}
	}

	identity, err := p.resolveIdentity(ctx, token, idToken)
	if err != nil {
		return nil, nil, err
	}

	tokens := &Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		ExpiresAt:    token.Expiry,
		Scope:        grantedScope(token, p.oauth.Scopes),
	}
	return tokens, identity, nil
}

// RefreshTokens implements TokenRefresher using the standard refresh grant.
func (p *OIDCProvider) RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error) {
	ctx = p.withClient(ctx)
	token, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("social: refreshing %q tokens: %w", p.cfg.ProviderID, err)
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	return &Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		ExpiresAt:    token.Expiry,
		Scope:        grantedScope(token, p.oauth.Scopes),
	}, nil
}

// idTokenClaims is the claim surface read from ID tokens and userinfo
// responses. Providers differ on which of name and preferred_username they
// populate.
type idTokenClaims struct {
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

func (c *idTokenClaims) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.GivenName != "" || c.FamilyName != "" {
		return strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	}
	return c.PreferredUsername
}

// resolveIdentity reads profile claims from the ID token, consulting the
// userinfo endpoint when the token omits the email. Userinfo subjects must
// match the ID token subject (OIDC Core 5.3.4).
func (p *OIDCProvider) resolveIdentity(ctx context.Context, token *oauth2.Token, idToken *oidc.IDToken) (*Identity, error) {
	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("social: parsing %q ID token claims: %w", p.cfg.ProviderID, err)
	}

	if claims.Email == "" {
		info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if err == nil {
			if info.Subject != idToken.Subject {
				return nil, ErrSubjectMismatch
			}
			var extra idTokenClaims
			_ = info.Claims(&extra)
			claims.Email = info.Email
			claims.EmailVerified = info.EmailVerified
			if claims.displayName() == "" {
				claims.Name = extra.displayName()
			}
			if claims.Picture == "" {
				claims.Picture = extra.Picture
			}
		}
	}

	return &Identity{
		Subject:       idToken.Subject,
		Email:         strings.ToLower(claims.Email),
		EmailVerified: claims.EmailVerified,
		Name:          claims.displayName(),
		Image:         claims.Picture,
	}, nil
}

// withClient injects the custom HTTP client for both go-oidc and oauth2.
func (p *OIDCProvider) withClient(ctx context.Context) context.Context {
	if p.client == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, p.client)
}

// grantedScope prefers the scope echoed by the token endpoint over the
// requested set.
func grantedScope(token *oauth2.Token, requested []string) string {
	if s, ok := token.Extra("scope").(string); ok && s != "" {
		return s
	}
	return strings.Join(requested, " ")
}

func mergeScopes(base, extra []string) []string {
	merged := slices.Clone(base)
	for _, s := range extra {
		if !slices.Contains(merged, s) {
			merged = append(merged, s)
		}
	}
	return merged
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
