// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package devicecode

import (
	"fmt"
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/store"
)

// grantDeviceCode resolves a device_code poll (RFC 8628 §3.4-3.5). It runs
// both from the oidc-provider token dispatch and from /device/token. An
// approved grant is redeemed for a login session whose token doubles as the
// access token, so the polling device ends up holding the same credential a
// browser sign-in would produce.
func (p *Plugin) grantDeviceCode(r *auth.Request, client *core.OAuthClient) (any, error) {
	deviceCode := r.BodyValue("device_code")
	if deviceCode == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "device_code is required")
	}

	ctx := r.Context()
	dc, err := p.auth.Store.FindDeviceCode(ctx, deviceCode)
	if err != nil {
		return nil, p.serverError(r, "finding device code", err)
	}
	if dc == nil || dc.ClientID != client.ClientID {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "device_code is invalid")
	}

	now := time.Now().UTC()
	if now.After(dc.ExpiresAt) {
		if err := p.auth.Store.DeleteDeviceCode(ctx, dc.ID); err != nil {
			return nil, p.serverError(r, "deleting expired device code", err)
		}
		return nil, auth.NewOAuthError(auth.OAuthExpiredToken, "device_code has expired")
	}

	// Early polls get slow_down; the advertised interval grows by 5 seconds
	// each time (RFC 8628 §3.5) and is persisted so status displays agree,
	// but the enforced spacing stays the configured minimum.
	if dc.LastPolledAt != nil && now.Sub(*dc.LastPolledAt) < p.opts.Interval {
		advertised := dc.PollingInterval + 5
		if _, err := p.auth.Store.UpdateDeviceCode(ctx, dc.ID, map[string]any{
			"pollingInterval": advertised,
		}); err != nil {
			return nil, p.serverError(r, "recording slow_down", err)
		}
		return nil, auth.NewOAuthError(auth.OAuthSlowDown,
			fmt.Sprintf("polling too frequently, wait at least %d seconds", advertised))
	}

	switch dc.Status {
	case core.StatusPending:
		if _, err := p.auth.Store.UpdateDeviceCode(ctx, dc.ID, map[string]any{
			"lastPolledAt": now,
		}); err != nil {
			return nil, p.serverError(r, "recording poll", err)
		}
		return nil, auth.NewOAuthError(auth.OAuthAuthorizationPending, "the user has not completed authorization yet")

	case core.StatusDenied:
		if err := p.auth.Store.DeleteDeviceCode(ctx, dc.ID); err != nil {
			return nil, p.serverError(r, "deleting denied device code", err)
		}
		return nil, auth.NewOAuthError(auth.OAuthAccessDenied, "the user denied the request")

	case core.StatusApproved:
		return p.redeemApproved(r, dc)

	default:
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "device_code is invalid")
	}
}

// redeemApproved consumes the approved record and mints the session. The
// delete comes first so a concurrent poll cannot redeem the code twice.
func (p *Plugin) redeemApproved(r *auth.Request, dc *core.DeviceCode) (any, error) {
	ctx := r.Context()
	user, err := p.auth.Store.FindUserByID(ctx, dc.UserID)
	if err != nil {
		return nil, p.serverError(r, "loading approving user", err)
	}
	if user == nil {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "device_code is invalid")
	}

	if err := p.auth.Store.DeleteDeviceCode(ctx, dc.ID); err != nil {
		return nil, p.serverError(r, "consuming device code", err)
	}

	session, err := p.auth.Store.CreateSession(ctx, user.ID, store.SessionOpts{
		UserAgent: r.Raw.UserAgent(),
		IPAddress: r.ClientIP(),
		ExpiresIn: p.auth.Options.Session.ExpiresIn,
	})
	if err != nil {
		return nil, p.serverError(r, "creating device session", err)
	}

	resp := map[string]any{
		"access_token": session.Token,
		"token_type":   "Bearer",
		"expires_in":   int(time.Until(session.ExpiresAt) / time.Second),
	}
	if len(dc.Scopes) > 0 {
		resp["scope"] = strings.Join(dc.Scopes, " ")
	}
	return resp, nil
}

// deviceToken serves POST /device/token, the standalone RFC 8628 token
// endpoint. It accepts only the device grant; everything else belongs on
// /oauth2/token.
func (p *Plugin) deviceToken(r *auth.Request) (any, error) {
	switch grantType := r.BodyValue("grant_type"); grantType {
	case GrantDeviceCode:
	case "":
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "grant_type is required")
	default:
		return nil, auth.NewOAuthError(auth.OAuthUnsupportedGrantType, "this endpoint serves only the device_code grant")
	}

	client, err := p.provider.AuthenticateClient(r)
	if err != nil {
		return nil, err
	}
	if err := p.provider.CheckGrantType(client, GrantDeviceCode); err != nil {
		return nil, err
	}

	result, err := p.grantDeviceCode(r, client)
	if err != nil {
		return nil, err
	}
	r.SetHeader("Cache-Control", "no-store")
	r.SetHeader("Pragma", "no-cache")
	return result, nil
}
