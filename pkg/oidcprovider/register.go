// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// Registration limits, applied before anything touches the database.
const (
	maxRedirectURIs     = 10
	maxClientNameLength = 256
)

type registrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	LogoURI                 string   `json:"logo_uri"`
}

// register serves POST /oauth2/register (RFC 7591 dynamic client
// registration). Only installed when the option enables it; the endpoint is
// anonymous, so the validation limits here are the only gate.
func (p *Plugin) register(r *auth.Request) (any, error) {
	var req registrationRequest
	if err := json.Unmarshal(r.Body(), &req); err != nil {
		return nil, auth.NewOAuthError("invalid_client_metadata", "request body must be a JSON client metadata document")
	}

	if len(req.RedirectURIs) == 0 {
		return nil, auth.NewOAuthError("invalid_redirect_uri", "at least one redirect_uri is required")
	}
	if len(req.RedirectURIs) > maxRedirectURIs {
		return nil, auth.NewOAuthError("invalid_redirect_uri", "too many redirect URIs")
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, auth.NewOAuthError("invalid_redirect_uri", err.Error())
		}
	}
	if len(req.ClientName) > maxClientNameLength {
		return nil, auth.NewOAuthError("invalid_client_metadata", "client_name is too long")
	}
	switch req.TokenEndpointAuthMethod {
	case "", "client_secret_basic", "client_secret_post", "none":
	default:
		return nil, auth.NewOAuthError("invalid_client_metadata", "unsupported token_endpoint_auth_method")
	}
	for _, gt := range req.GrantTypes {
		switch gt {
		case GrantAuthorizationCode, GrantRefreshToken:
		default:
			return nil, auth.NewOAuthError("invalid_client_metadata", "dynamically registered clients may only use the authorization_code and refresh_token grants")
		}
	}
	for _, rt := range req.ResponseTypes {
		if rt != "code" {
			return nil, auth.NewOAuthError("invalid_client_metadata", "only the code response type is supported")
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = "client_secret_basic"
	}
	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{GrantAuthorizationCode, GrantRefreshToken}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}

	public := authMethod == "none"
	secret := ""
	if !public {
		secret = crypto.NewOpaqueToken()
	}

	client := &core.OAuthClient{
		ClientID:                crypto.NewToken(),
		ClientSecret:            p.secretForStorage(secret),
		Name:                    req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		Scopes:                  strings.Fields(req.Scope),
		Public:                  public,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
	}
	if req.LogoURI != "" {
		client.Metadata = map[string]any{"logo_uri": req.LogoURI}
	}
	created, err := p.auth.Store.CreateOAuthClient(r.Context(), client)
	if err != nil {
		return nil, p.serverError(r, "creating client", err)
	}

	resp := map[string]any{
		"client_id":                  created.ClientID,
		"client_id_issued_at":        created.CreatedAt.Unix(),
		"client_secret_expires_at":   0,
		"redirect_uris":              created.RedirectURIs,
		"token_endpoint_auth_method": authMethod,
		"grant_types":                grantTypes,
		"response_types":             responseTypes,
	}
	if secret != "" {
		// The raw secret leaves the server exactly once.
		resp["client_secret"] = secret
	}
	if created.Name != "" {
		resp["client_name"] = created.Name
	}
	if req.Scope != "" {
		resp["scope"] = req.Scope
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return nil, p.serverError(r, "encoding registration response", err)
	}
	r.SetHeader("Cache-Control", "no-store")
	r.SetHeader("Pragma", "no-cache")
	return auth.Raw{Status: http.StatusCreated, ContentType: "application/json", Body: body}, nil
}

// validateRedirectURI enforces https, permitting plain http only on loopback
// hosts for native-app development flows.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("redirect URI %q is not a valid URI", raw)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
		return fmt.Errorf("redirect URI %q: http is only allowed on loopback hosts", raw)
	default:
		return fmt.Errorf("redirect URI %q: scheme must be https", raw)
	}
}
