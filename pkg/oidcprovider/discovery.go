// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/jwks"
)

// serveMetadata answers both /.well-known/openid-configuration and
// /.well-known/oauth-authorization-server with the same document (OIDC
// Discovery and RFC 8414 agree on the fields this server implements).
func (p *Plugin) serveMetadata(r *auth.Request) (any, error) {
	meta := map[string]any{
		"issuer":                 p.auth.Issuer(),
		"authorization_endpoint": p.auth.URL("/oauth2/authorize"),
		"token_endpoint":         p.auth.URL("/oauth2/token"),
		"userinfo_endpoint":      p.auth.URL("/oauth2/userinfo"),
		"jwks_uri":               p.auth.URL("/jwks"),
		"introspection_endpoint": p.auth.URL("/oauth2/introspect"),
		"revocation_endpoint":    p.auth.URL("/oauth2/revoke"),

		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 p.GrantTypes(),
		"scopes_supported":                      p.supportedScopes(),
		"subject_types_supported":               []string{"public"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post", "none"},
		"id_token_signing_alg_values_supported": p.signingAlgorithms(r),
		"code_challenge_methods_supported":      p.challengeMethods(),
	}
	if p.opts.AllowDynamicClientRegistration {
		meta["registration_endpoint"] = p.auth.URL("/oauth2/register")
	}
	// Optional grant plugins advertise their front-channel endpoints.
	if _, ok := p.auth.Plugin("device-code"); ok {
		meta["device_authorization_endpoint"] = p.auth.URL("/device/code")
	}
	if _, ok := p.auth.Plugin("ciba"); ok {
		meta["backchannel_authentication_endpoint"] = p.auth.URL("/oauth/bc-authorize")
		meta["backchannel_token_delivery_modes_supported"] = []string{"poll"}
	}
	return meta, nil
}

// supportedScopes merges the server scope whitelist with the provider's own,
// preserving order and dropping duplicates.
func (p *Plugin) supportedScopes() []string {
	seen := map[string]bool{}
	var scopes []string
	for _, s := range p.auth.Options.Scopes {
		if !seen[s] {
			seen[s] = true
			scopes = append(scopes, s)
		}
	}
	for _, s := range p.opts.Scopes {
		if !seen[s] {
			seen[s] = true
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func (p *Plugin) signingAlgorithms(r *auth.Request) []string {
	if signer, ok := auth.Lookup[*jwks.Plugin](p.auth, jwks.PluginID); ok {
		if algs := signer.SigningAlgorithms(r.Context()); len(algs) > 0 {
			return algs
		}
	}
	return []string{"HS256"}
}

func (p *Plugin) challengeMethods() []string {
	if p.opts.AllowPlainCodeChallengeMethod {
		return []string{"S256", "plain"}
	}
	return []string{"S256"}
}
