// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package twofactor

import (
	"net/url"
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/cookies"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
	"github.com/betterauth/betterauth/pkg/store"
)

// trustSeparator joins the HMAC and session token in the cookie strategy.
const trustSeparator = "!"

// isOwnPath exempts the plugin's endpoints from the gate; its verify
// handlers create the real session and must not re-trip it.
func isOwnPath(path string) bool {
	return strings.HasPrefix(path, "/two-factor/")
}

// gate intercepts responses that created a session for an enrolled user.
// The fresh session is destroyed, a signed pending cookie carries the user
// through verification, and the client is told to redirect. Trusted devices
// pass straight through with their trust window rolled forward.
func (p *Plugin) gate(r *auth.Request, returned any) (any, error) {
	fresh := r.NewSession()
	if fresh == nil || !fresh.User.TwoFactorEnabled {
		return returned, nil
	}
	trusted, err := p.deviceTrusted(r, fresh)
	if err != nil {
		return nil, err
	}
	if trusted {
		return returned, nil
	}

	if err := p.auth.Store.DeleteSession(r.Context(), fresh.Session.Token); err != nil {
		return nil, err
	}
	dropSetCookie(r, p.auth.Cookies.Name(cookies.NameSessionToken))

	pending := p.auth.Cookies.SignValue(fresh.User.ID)
	r.SetCookie(p.auth.Cookies.Make(cookies.NameTwoFactor, pending, p.opts.PendingTTL))

	// Browser flows (social callbacks) land on a redirect response; keep the
	// redirect but flag it so the app shows its verification page.
	if redirect, ok := returned.(auth.Redirect); ok {
		redirect.URL = withQueryParam(redirect.URL, "twoFactorRedirect", "true")
		return redirect, nil
	}
	return map[string]any{"twoFactorRedirect": true}, nil
}

// withQueryParam appends a query parameter, tolerating pre-existing queries.
func withQueryParam(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// dropSetCookie removes queued Set-Cookie headers for the named cookie, so
// the client never receives the value at all.
func dropSetCookie(r *auth.Request, name string) {
	queued := r.ResponseHeaders["Set-Cookie"]
	kept := queued[:0]
	for _, line := range queued {
		if !strings.HasPrefix(line, name+"=") {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		r.ResponseHeaders.Del("Set-Cookie")
		return
	}
	r.ResponseHeaders["Set-Cookie"] = kept
}

// pendingUser resolves the user from the pending two-factor cookie set by
// the gate.
func (p *Plugin) pendingUser(r *auth.Request) (*core.User, error) {
	userID, ok := p.auth.Cookies.GetSigned(r.Raw, cookies.NameTwoFactor)
	if !ok || userID == "" {
		return nil, auth.ErrUnauthorized(CodeTwoFactorExpired, "Two-factor verification expired. Sign in again")
	}
	user, err := p.auth.Store.FindUserByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, auth.ErrUnauthorized(CodeTwoFactorExpired, "Two-factor verification expired. Sign in again")
	}
	return user, nil
}

// finish issues the real session after a verified factor and drops the
// pending cookie.
func (p *Plugin) finish(r *auth.Request, user *core.User, trustDevice bool) (any, error) {
	r.SetCookie(p.auth.Cookies.Make(cookies.NameTwoFactor, "", 0))
	payload, err := p.auth.IssueSession(r, user, store.SessionOpts{})
	if err != nil {
		return nil, err
	}
	if trustDevice {
		if err := p.trust(r, payload); err != nil {
			return nil, err
		}
	}
	return map[string]any{"token": payload.Session.Token, "user": payload.User}, nil
}

// deviceTrusted reports whether the signing-in device may skip verification,
// rolling the trust window forward when it does.
func (p *Plugin) deviceTrusted(r *auth.Request, fresh *store.SessionPayload) (bool, error) {
	if p.opts.TrustedDeviceStorage == TrustInDatabase {
		deviceID, ok := p.auth.Cookies.GetSigned(r.Raw, cookies.NameTrustDevice)
		if !ok || deviceID == "" {
			return false, nil
		}
		device, err := p.auth.Store.FindTrustedDevice(r.Context(), deviceID, fresh.User.ID)
		if err != nil || device == nil {
			return false, err
		}
		expires := time.Now().UTC().Add(p.opts.TrustedDeviceTTL)
		if err := p.auth.Store.RollTrustedDevice(r.Context(), device.ID, expires); err != nil {
			return false, err
		}
		r.SetCookie(p.auth.Cookies.Make(cookies.NameTrustDevice, p.auth.Cookies.SignValue(deviceID), p.opts.TrustedDeviceTTL))
		return true, nil
	}

	raw, ok := p.auth.Cookies.Get(r.Raw, cookies.NameTrustDevice)
	if !ok {
		return false, nil
	}
	mac, token, found := cutLast(raw, trustSeparator)
	if !found || token == "" {
		return false, nil
	}
	if !crypto.VerifyHMACAny(p.auth.Cookies.Secrets(), fresh.User.ID+trustSeparator+token, mac) {
		return false, nil
	}
	// Re-bind the marker to the new session token, sliding the window.
	p.setTrustCookie(r, fresh.User.ID, fresh.Session.Token)
	return true, nil
}

// trust marks the current device trusted after a verified factor.
func (p *Plugin) trust(r *auth.Request, payload *store.SessionPayload) error {
	if p.opts.TrustedDeviceStorage == TrustInDatabase {
		deviceID := crypto.NewToken()
		_, err := p.auth.Store.CreateTrustedDevice(r.Context(), &core.TrustedDevice{
			UserID:    payload.User.ID,
			DeviceID:  deviceID,
			UserAgent: r.Raw.UserAgent(),
			ExpiresAt: time.Now().UTC().Add(p.opts.TrustedDeviceTTL),
		})
		if err != nil {
			return err
		}
		r.SetCookie(p.auth.Cookies.Make(cookies.NameTrustDevice, p.auth.Cookies.SignValue(deviceID), p.opts.TrustedDeviceTTL))
		return nil
	}
	p.setTrustCookie(r, payload.User.ID, payload.Session.Token)
	return nil
}

// setTrustCookie writes the self-contained trust marker:
// hmac(secret, userId!token)!token. Validation is pure recomputation.
func (p *Plugin) setTrustCookie(r *auth.Request, userID, token string) {
	mac := crypto.SignHMAC(p.auth.Cookies.Secret(), userID+trustSeparator+token)
	r.SetCookie(p.auth.Cookies.Make(cookies.NameTrustDevice, mac+trustSeparator+token, p.opts.TrustedDeviceTTL))
}

// cutLast splits s at the last occurrence of sep.
func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
