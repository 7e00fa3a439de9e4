// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"encoding/json"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/cookies"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// stateIdentifierPrefix namespaces authorize state in the verification table.
const stateIdentifierPrefix = "oauth-state-"

// statePayload is the server-side half of one authorize round trip, stored
// in the verification table under the state value. The browser half is the
// signed oauth_state cookie.
type statePayload struct {
	ProviderID    string `json:"providerId"`
	CallbackURL   string `json:"callbackURL,omitempty"`
	ErrorURL      string `json:"errorURL,omitempty"`
	NewUserURL    string `json:"newUserURL,omitempty"`
	CodeVerifier  string `json:"codeVerifier,omitempty"`
	Nonce         string `json:"nonce,omitempty"`
	LinkUserID    string `json:"linkUserId,omitempty"`
	RequestSignUp bool   `json:"requestSignUp,omitempty"`
}

type signInRequest struct {
	Provider           string   `json:"provider" validate:"required"`
	CallbackURL        string   `json:"callbackURL"`
	ErrorCallbackURL   string   `json:"errorCallbackURL"`
	NewUserCallbackURL string   `json:"newUserCallbackURL"`
	Scopes             []string `json:"scopes"`
	LoginHint          string   `json:"loginHint"`
	RequestSignUp      bool     `json:"requestSignUp"`
	DisableRedirect    bool     `json:"disableRedirect"`
}

// signIn starts the flow: it persists the state record, binds the browser
// with the signed state cookie, and hands back the provider's authorize URL
// for the client to navigate to.
func (p *Plugin) signIn(r *auth.Request) (any, error) {
	req, err := auth.Bind[signInRequest](r)
	if err != nil {
		return nil, err
	}
	provider := p.provider(req.Provider)
	if provider == nil {
		return nil, auth.ErrNotFound(CodeProviderNotFound, "Provider not found")
	}
	for _, target := range []string{req.CallbackURL, req.ErrorCallbackURL, req.NewUserCallbackURL} {
		if err := p.auth.ValidateCallbackURL(target); err != nil {
			return nil, err
		}
	}

	payload := statePayload{
		ProviderID:    req.Provider,
		CallbackURL:   req.CallbackURL,
		ErrorURL:      req.ErrorCallbackURL,
		NewUserURL:    req.NewUserCallbackURL,
		RequestSignUp: req.RequestSignUp,
	}
	url, err := p.beginAuthorize(r, provider, payload, req.Scopes, req.LoginHint)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url, "redirect": !req.DisableRedirect}, nil
}

type linkRequest struct {
	Provider    string   `json:"provider" validate:"required"`
	CallbackURL string   `json:"callbackURL"`
	Scopes      []string `json:"scopes"`
}

// linkSocial starts the same authorize flow for a signed-in user; the
// callback attaches the upstream account to them instead of signing in.
func (p *Plugin) linkSocial(r *auth.Request) (any, error) {
	req, err := auth.Bind[linkRequest](r)
	if err != nil {
		return nil, err
	}
	provider := p.provider(req.Provider)
	if provider == nil {
		return nil, auth.ErrNotFound(CodeProviderNotFound, "Provider not found")
	}
	if err := p.auth.ValidateCallbackURL(req.CallbackURL); err != nil {
		return nil, err
	}

	payload := statePayload{
		ProviderID:  req.Provider,
		CallbackURL: req.CallbackURL,
		LinkUserID:  r.Session().User.ID,
	}
	url, err := p.beginAuthorize(r, provider, payload, req.Scopes, "")
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url, "redirect": true}, nil
}

// beginAuthorize generates the state, verifier, and nonce, persists the
// payload, sets the state cookie, and builds the provider redirect.
func (p *Plugin) beginAuthorize(r *auth.Request, provider Provider, payload statePayload, scopes []string, loginHint string) (string, error) {
	state := crypto.NewToken()
	payload.CodeVerifier = crypto.GeneratePKCEVerifier()
	payload.Nonce = crypto.NewToken()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	if _, err := p.auth.Store.CreateVerification(r.Context(), stateIdentifierPrefix+state, string(raw), p.opts.StateTTL); err != nil {
		return "", err
	}
	r.SetCookie(p.auth.Cookies.Make(cookies.NameOAuthState, p.auth.Cookies.SignValue(state), p.opts.StateTTL))

	opts := []AuthorizeOption{WithNonce(payload.Nonce)}
	if len(scopes) > 0 {
		opts = append(opts, WithScopes(scopes...))
	}
	if loginHint != "" {
		opts = append(opts, WithLoginHint(loginHint))
	}
	return provider.AuthorizationURL(state, crypto.ComputePKCEChallenge(payload.CodeVerifier), opts...)
}

// consumeState validates the double binding of a callback: the signed cookie
// proves the browser started the flow, the verification row proves the state
// is ours and unexpired. Both are single-use.
func (p *Plugin) consumeState(r *auth.Request, state string) (*statePayload, bool) {
	cookieState, ok := p.auth.Cookies.GetSigned(r.Raw, cookies.NameOAuthState)
	r.SetCookie(p.auth.Cookies.Make(cookies.NameOAuthState, "", 0))
	if !ok || state == "" || cookieState != state {
		return nil, false
	}
	record, err := p.auth.Store.ConsumeVerification(r.Context(), stateIdentifierPrefix+state)
	if err != nil || record == nil {
		return nil, false
	}
	var payload statePayload
	if err := json.Unmarshal([]byte(record.Value), &payload); err != nil {
		return nil, false
	}
	return &payload, true
}
