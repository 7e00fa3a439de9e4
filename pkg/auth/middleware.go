// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/hmac"
	"net/url"
	"strings"

	"github.com/betterauth/betterauth/pkg/cookies"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// csrfSeparator splits the double-submit cookie into "token!mac". The mac is
// an HMAC of the token under the server secret, so the cookie is useless
// without it and cannot be minted by a subdomain.
const csrfSeparator = "!"

// newCSRFCookieValue mints a fresh CSRF token and its cookie encoding.
func (c *Context) newCSRFCookieValue() (token, cookieValue string) {
	token = crypto.NewToken()
	return token, token + csrfSeparator + crypto.SignHMAC(c.Cookies.Secret(), token)
}

// csrfGuard applies the double-submit check to mutating requests. Requests
// with no Origin (non-browser clients) or a trusted Origin pass. Anything
// else must echo the CSRF cookie's token in the csrfToken body field or the
// X-CSRF-Token header; a mismatch resets the cookie.
func (c *Context) csrfGuard(r *Request) error {
	origin := r.Origin()
	if origin == "" || c.TrustedOrigin(origin) {
		return nil
	}

	submitted := r.BodyValue("csrfToken")
	if submitted == "" {
		submitted = r.Raw.Header.Get("X-CSRF-Token")
	}
	if submitted == "" {
		return NewAPIError(401, CodeCSRFTokenRequired, "CSRF Token is required")
	}

	raw, ok := c.Cookies.Get(r.Raw, cookies.NameCSRFToken)
	if ok {
		token, mac, found := strings.Cut(raw, csrfSeparator)
		if found &&
			crypto.VerifyHMACAny(c.Cookies.Secrets(), token, mac) &&
			hmac.Equal([]byte(token), []byte(submitted)) {
			return nil
		}
	}

	r.SetCookie(c.Cookies.Make(cookies.NameCSRFToken, "", 0))
	return NewAPIError(401, CodeInvalidCSRFToken, "Invalid CSRF Token")
}

// sessionGuard rejects requests without a live session.
func (c *Context) sessionGuard(r *Request) error {
	payload, err := c.GetSession(r)
	if err != nil {
		return err
	}
	if payload == nil {
		return NewAPIError(401, CodeSessionRequired, "Session is required")
	}
	return nil
}

// adminGuard rejects sessions whose user does not hold the admin role. It
// assumes sessionGuard already ran.
func (c *Context) adminGuard(r *Request) error {
	payload := r.Session()
	if payload == nil || !HasRole(payload.User, "admin") {
		return NewAPIError(403, CodeForbidden, "Admin privileges are required")
	}
	return nil
}

// HasRole reports whether the user's comma-separated role list contains role.
func HasRole(user *core.User, role string) bool {
	if user == nil {
		return false
	}
	for _, have := range strings.Split(user.Role, ",") {
		if strings.EqualFold(strings.TrimSpace(have), role) {
			return true
		}
	}
	return false
}

// ValidateCallbackURL guards redirect targets supplied by clients
// (callbackURL, redirectTo) against open redirects. Relative paths are always
// allowed; absolute URLs must resolve to a trusted origin.
func (c *Context) ValidateCallbackURL(raw string) error {
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewAPIError(403, CodeInvalidOrigin, "Invalid callback URL")
	}
	if !c.TrustedOrigin(u.Scheme + "://" + u.Host) {
		return NewAPIError(403, CodeInvalidOrigin, "Invalid callback URL")
	}
	return nil
}
