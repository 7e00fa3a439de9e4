// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package oidcprovider

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/cookies"
	"github.com/betterauth/betterauth/pkg/core"
)

type consentRequest struct {
	Accept      bool   `json:"accept"`
	ConsentCode string `json:"consent_code"`
}

// consent serves POST /oauth2/consent from the application's consent page.
// The pending request is identified by the signed prompt cookie set during
// authorize, with a consent_code body fallback for pages that keep it
// client-side.
func (p *Plugin) consent(r *auth.Request) (any, error) {
	var req consentRequest
	if len(r.Body()) > 0 {
		_ = json.Unmarshal(r.Body(), &req)
	}
	if !req.Accept {
		switch r.BodyValue("accept") {
		case "true", "1", "on":
			req.Accept = true
		}
	}

	code, ok := p.auth.Cookies.GetSigned(r.Raw, cookies.NameConsentPrompt)
	if !ok {
		code = req.ConsentCode
		if code == "" {
			code = r.BodyValue("consent_code")
		}
	}
	if code == "" {
		return nil, auth.ErrBadRequest(CodeConsentNotFound, "No consent request is pending")
	}

	v, err := p.auth.Store.FindVerification(r.Context(), code)
	if err != nil {
		return nil, p.serverError(r, "loading consent request", err)
	}
	var record authCode
	if v == nil || json.Unmarshal([]byte(v.Value), &record) != nil {
		return nil, auth.ErrBadRequest(CodeConsentNotFound, "Consent request not found or expired")
	}
	if record.UserID != r.Session().User.ID {
		return nil, auth.ErrForbidden(CodeConsentMismatch, "Consent request belongs to a different user")
	}

	r.SetCookie(p.auth.Cookies.Make(cookies.NameConsentPrompt, "", 0))

	if !req.Accept {
		if err := p.auth.Store.DeleteVerification(r.Context(), v.ID); err != nil {
			return nil, p.serverError(r, "deleting consent request", err)
		}
		return nil, auth.NewOAuthError(auth.OAuthAccessDenied, "the user denied the request").
			WithRedirect(record.RedirectURI, record.State)
	}

	// Flip the stored code to granted. Consume-then-recreate keeps the swap
	// single-use under concurrent grants.
	consumed, err := p.auth.Store.ConsumeVerification(r.Context(), code)
	if err != nil {
		return nil, p.serverError(r, "consuming consent request", err)
	}
	if consumed == nil {
		return nil, auth.ErrBadRequest(CodeConsentNotFound, "Consent request not found or expired")
	}
	record.RequireConsent = false
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, p.serverError(r, "encoding authorization code", err)
	}
	if _, err := p.auth.Store.CreateVerification(r.Context(), code, string(payload), time.Until(consumed.ExpiresAt)); err != nil {
		return nil, p.serverError(r, "storing authorization code", err)
	}

	client, err := p.auth.Store.FindOAuthClient(r.Context(), record.ClientID)
	if err != nil {
		return nil, p.serverError(r, "loading client", err)
	}
	referenceID := ""
	if client != nil {
		referenceID = client.ReferenceID
	}
	if _, err := p.auth.Store.UpsertConsent(r.Context(), &core.OAuthConsent{
		ClientID:     record.ClientID,
		UserID:       record.UserID,
		ReferenceID:  referenceID,
		Scopes:       strings.Fields(record.Scope),
		ConsentGiven: true,
	}); err != nil {
		return nil, p.serverError(r, "recording consent", err)
	}

	return auth.Redirect{URL: callbackURL(record.RedirectURI, code, record.State)}, nil
}

// resumeAuthorizationHook re-enters a stashed authorization request once a
// sign-in completes. The sign-in response is replaced with a redirect back
// into /oauth2/authorize, now with prompt=consent so the fresh session goes
// straight to the grant decision.
func (p *Plugin) resumeAuthorizationHook() auth.AfterHook {
	return auth.AfterHook{
		Run: func(r *auth.Request, returned any) (any, error) {
			if r.NewSession() == nil {
				return returned, nil
			}
			stash, ok := p.auth.Cookies.GetEncrypted(r.Raw, cookies.NameLoginPrompt)
			if !ok {
				return returned, nil
			}
			r.SetCookie(p.auth.Cookies.Make(cookies.NameLoginPrompt, "", 0))
			query, err := url.ParseQuery(stash)
			if err != nil {
				return returned, nil
			}
			query.Set("prompt", "consent")
			target := p.auth.URL("/oauth2/authorize") + "?" + query.Encode()
			switch returned.(type) {
			case auth.Redirect, *auth.Redirect:
				return auth.Redirect{URL: target}, nil
			default:
				// JSON sign-in responses keep their shape; the client SDK
				// follows the URL itself.
				return map[string]any{"redirect": true, "url": target}, nil
			}
		},
	}
}
