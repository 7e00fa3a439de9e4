// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// The helpers below are the surface extension-grant plugins (device
// authorization, CIBA) build on: they authenticate callers and mint token
// responses exactly the way the built-in grants do, so a grant added through
// RegisterGrant is indistinguishable from a native one on the wire.

// AuthenticateClient verifies the calling OAuth client the way the token
// endpoint does: Basic header or body credentials, secret storage policy
// applied, disabled clients rejected. Failures are ready-to-return
// invalid_client errors.
func (p *Plugin) AuthenticateClient(r *auth.Request) (*core.OAuthClient, error) {
	return p.authenticateClient(r)
}

// CheckScopes validates a requested scope list against the server whitelist,
// the provider options, and the client's registration. A disallowed scope
// returns a ready-to-return invalid_scope error.
func (p *Plugin) CheckScopes(client *core.OAuthClient, requested []string) error {
	if !p.allowedScopes(client, requested) {
		return auth.NewOAuthError(auth.OAuthInvalidScope, "requested scope is not allowed for this client")
	}
	return nil
}

// CheckGrantType enforces the client's registered grant_types list, returning
// a ready-to-return unauthorized_client error on a restricted grant.
func (p *Plugin) CheckGrantType(client *core.OAuthClient, grantType string) error {
	if !clientAllowsGrant(client, grantType) {
		return auth.NewOAuthError(auth.OAuthUnauthorizedClient, "client is not authorized for this grant type")
	}
	return nil
}

// ExtensionGrant is a completed extension-grant authorization handed back for
// token minting.
type ExtensionGrant struct {
	// User binds the tokens to an end user. Nil issues a machine token.
	User *core.User
	// Scopes are granted verbatim; validate them before the user approves.
	Scopes []string
	// SessionID ties the tokens' validity to a login session.
	SessionID string
	// WithRefresh adds a refresh token to the response.
	WithRefresh bool
}

// IssueTokens mints the RFC 6749 token response for an extension grant:
// an access token, a refresh token when requested, and an id_token when the
// grant is user-bound with the openid scope.
func (p *Plugin) IssueTokens(r *auth.Request, client *core.OAuthClient, grant ExtensionGrant) (map[string]any, error) {
	resp, err := p.issueTokens(r, client, tokenIssue{
		user:        grant.User,
		scopes:      grant.Scopes,
		sessionID:   grant.SessionID,
		withRefresh: grant.WithRefresh,
	})
	if err != nil {
		return nil, err
	}
	m, _ := resp.(map[string]any)
	return m, nil
}
