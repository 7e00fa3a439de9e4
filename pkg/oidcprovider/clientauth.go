// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"slices"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// authenticateClient resolves and authenticates the client on a token
// endpoint request. Public clients authenticate with client_id alone;
// confidential clients must present their secret via HTTP basic auth or the
// request body.
func (p *Plugin) authenticateClient(r *auth.Request) (*core.OAuthClient, error) {
	id, secret, viaBasic := clientCredentials(r)
	invalid := func(description string) error {
		if viaBasic {
			r.SetHeader("WWW-Authenticate", `Basic realm="oauth2", error="invalid_client"`)
		}
		return auth.NewOAuthError(auth.OAuthInvalidClient, description).WithStatus(http.StatusUnauthorized)
	}
	if id == "" {
		return nil, invalid("client authentication required")
	}
	client, err := p.auth.Store.FindOAuthClient(r.Context(), id)
	if err != nil {
		return nil, p.serverError(r, "loading client", err)
	}
	if client == nil || client.Disabled {
		return nil, invalid("client not found or disabled")
	}
	if !client.Public && !p.verifyClientSecret(client, secret) {
		return nil, invalid("invalid client credentials")
	}
	return client, nil
}

// clientCredentials pulls client_id and client_secret from HTTP basic auth
// (RFC 6749 §2.3.1, where both values are form-urlencoded) or from the
// request body.
func clientCredentials(r *auth.Request) (id, secret string, viaBasic bool) {
	if user, pass, ok := r.Raw.BasicAuth(); ok {
		if u, err := url.QueryUnescape(user); err == nil {
			user = u
		}
		if p, err := url.QueryUnescape(pass); err == nil {
			pass = p
		}
		return user, pass, true
	}
	return r.BodyValue("client_id"), r.BodyValue("client_secret"), false
}

// verifyClientSecret compares a presented secret against the stored one,
// hashing first when the hashed storage policy is active.
func (p *Plugin) verifyClientSecret(client *core.OAuthClient, presented string) bool {
	if client.ClientSecret == "" || presented == "" {
		return false
	}
	if p.opts.StoreClientSecret == StoreSecretHashed {
		presented = crypto.HashToken(presented)
	}
	return subtle.ConstantTimeCompare([]byte(client.ClientSecret), []byte(presented)) == 1
}

// secretForStorage prepares a freshly minted client secret for persistence
// under the configured storage policy.
func (p *Plugin) secretForStorage(secret string) string {
	if p.opts.StoreClientSecret == StoreSecretHashed {
		return crypto.HashToken(secret)
	}
	return secret
}

// clientAllowsGrant reports whether the client may use a grant type. An
// empty grant type list leaves the client unrestricted.
func clientAllowsGrant(client *core.OAuthClient, grantType string) bool {
	if len(client.GrantTypes) == 0 {
		return true
	}
	return slices.Contains(client.GrantTypes, grantType)
}
