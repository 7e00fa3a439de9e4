// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"encoding/json"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/cookies"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// authCode is the payload stored in the verification row backing one
// authorization code. The verification identifier is the code itself;
// consuming the row enforces single use.
type authCode struct {
	ClientID            string    `json:"clientId"`
	RedirectURI         string    `json:"redirectURI"`
	Scope               string    `json:"scope"`
	UserID              string    `json:"userId"`
	AuthTime            time.Time `json:"authTime"`
	CodeChallenge       string    `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string    `json:"codeChallengeMethod,omitempty"`
	Nonce               string    `json:"nonce,omitempty"`
	RequireConsent      bool      `json:"requireConsent,omitempty"`
	State               string    `json:"state,omitempty"`
}

// authorize serves GET /oauth2/authorize. Without a session the query is
// stashed in an encrypted cookie and the user goes to the login page; the
// resume hook replays it after sign-in. With a session the request is
// validated, an authorization code is stored, and the user is redirected to
// the client's callback or to the consent page.
func (p *Plugin) authorize(r *auth.Request) (any, error) {
	q := r.Raw.URL.Query()

	// Until the client and its redirect URI check out, errors land on the
	// server's own error page; nothing may be reflected to an unverified
	// target.
	clientID := q.Get("client_id")
	if clientID == "" {
		return nil, p.errorPageRedirect(auth.OAuthInvalidRequest, "client_id is required")
	}
	client, err := p.auth.Store.FindOAuthClient(r.Context(), clientID)
	if err != nil {
		return nil, p.serverError(r, "loading client", err)
	}
	if client == nil || client.Disabled {
		return nil, p.errorPageRedirect(auth.OAuthInvalidClient, "client not found or disabled")
	}
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || !slices.Contains(client.RedirectURIs, redirectURI) {
		return nil, p.errorPageRedirect(auth.OAuthInvalidRequest, "redirect_uri is not registered for this client")
	}

	state := q.Get("state")
	fail := func(code, description string) error {
		return auth.NewOAuthError(code, description).WithRedirect(redirectURI, state)
	}

	if q.Get("response_type") != "code" {
		return nil, fail(auth.OAuthUnsupportedResponseType, "only response_type=code is supported")
	}

	scopes := strings.Fields(q.Get("scope"))
	if !p.allowedScopes(client, scopes) {
		return nil, fail(auth.OAuthInvalidScope, "requested scope is not allowed for this client")
	}

	challenge := q.Get("code_challenge")
	method := q.Get("code_challenge_method")
	if challenge == "" {
		method = ""
		if p.opts.RequirePKCE || client.Public {
			return nil, fail(auth.OAuthInvalidRequest, "code_challenge is required")
		}
		if slices.Contains(scopes, "offline_access") {
			return nil, fail(auth.OAuthInvalidRequest, "offline_access requires a code_challenge")
		}
	} else {
		if method == "" {
			// RFC 7636 §4.3: an absent method means plain.
			method = "plain"
		}
		switch method {
		case "S256":
		case "plain":
			if !p.opts.AllowPlainCodeChallengeMethod {
				return nil, fail(auth.OAuthInvalidRequest, "code_challenge_method must be S256")
			}
		default:
			return nil, fail(auth.OAuthInvalidRequest, "unsupported code_challenge_method")
		}
	}

	session, err := r.Auth.GetSession(r)
	if err != nil {
		return nil, p.serverError(r, "resolving session", err)
	}
	prompt := q.Get("prompt")
	if session == nil || prompt == "login" {
		return p.redirectToLogin(r)
	}

	needConsent := !client.SkipConsent
	if needConsent && prompt != "consent" {
		granted, err := p.auth.Store.FindConsent(r.Context(), client.ClientID, session.User.ID, client.ReferenceID)
		if err != nil {
			return nil, p.serverError(r, "loading consent", err)
		}
		if granted != nil && granted.ConsentGiven && scopesCovered(granted.Scopes, scopes) {
			needConsent = false
		}
	}

	code := crypto.NewToken()
	record := authCode{
		ClientID:            client.ClientID,
		RedirectURI:         redirectURI,
		Scope:               strings.Join(scopes, " "),
		UserID:              session.User.ID,
		AuthTime:            session.Session.CreatedAt,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		Nonce:               q.Get("nonce"),
		RequireConsent:      needConsent,
		State:               state,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, p.serverError(r, "encoding authorization code", err)
	}
	if _, err := p.auth.Store.CreateVerification(r.Context(), code, string(payload), p.opts.CodeTTL); err != nil {
		return nil, p.serverError(r, "storing authorization code", err)
	}

	if !needConsent {
		return auth.Redirect{URL: callbackURL(redirectURI, code, state)}, nil
	}

	// The code exists before the user sees the consent page; granting flips
	// its requireConsent marker rather than minting a second code.
	r.SetCookie(p.auth.Cookies.Make(cookies.NameConsentPrompt, p.auth.Cookies.SignValue(code), promptTTL))
	params := url.Values{}
	params.Set("consent_code", code)
	params.Set("client_id", client.ClientID)
	if record.Scope != "" {
		params.Set("scope", record.Scope)
	}
	return auth.Redirect{URL: p.pageURL(p.opts.ConsentPage, params)}, nil
}

// redirectToLogin stashes the authorization query in an encrypted cookie and
// sends the user to the login page.
func (p *Plugin) redirectToLogin(r *auth.Request) (any, error) {
	sealed, err := crypto.Encrypt(p.auth.Cookies.Secret(), r.Raw.URL.RawQuery)
	if err != nil {
		return nil, p.serverError(r, "sealing login prompt", err)
	}
	r.SetCookie(p.auth.Cookies.Make(cookies.NameLoginPrompt, sealed, promptTTL))
	return auth.Redirect{URL: p.pageURL(p.opts.LoginPage, nil)}, nil
}

// errorPageRedirect sends the user agent to the built-in error page. Used
// before the redirect URI is validated, when nothing may be reflected back
// to the client.
func (p *Plugin) errorPageRedirect(code, description string) error {
	return auth.NewOAuthError(code, description).WithRedirect(p.auth.URL("/error"), "")
}

// callbackURL appends code and state to the client's redirect URI.
func callbackURL(redirectURI, code, state string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// pageURL resolves a configured page against the server origin; absolute
// URLs pass through.
func (p *Plugin) pageURL(page string, params url.Values) string {
	target := page
	if !strings.Contains(page, "://") {
		target = p.auth.BaseURL + page
	}
	if len(params) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + params.Encode()
}

// consumeAuthCode atomically loads and deletes the verification row for an
// authorization code. Unknown, expired, or malformed codes return (nil, nil).
func (p *Plugin) consumeAuthCode(r *auth.Request, code string) (*authCode, error) {
	v, err := p.auth.Store.ConsumeVerification(r.Context(), code)
	if err != nil || v == nil {
		return nil, err
	}
	var record authCode
	if err := json.Unmarshal([]byte(v.Value), &record); err != nil {
		return nil, nil
	}
	return &record, nil
}
