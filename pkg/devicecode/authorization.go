// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package devicecode

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// deviceAuthorization serves POST /device/code (RFC 8628 §3.1): it validates
// the client, mints the device/user code pair, and tells the client where to
// send the user.
func (p *Plugin) deviceAuthorization(r *auth.Request) (any, error) {
	clientID := r.BodyValue("client_id")
	if clientID == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "client_id is required")
	}

	client, err := p.auth.Store.FindOAuthClient(r.Context(), clientID)
	if err != nil {
		return nil, p.serverError(r, "finding client", err)
	}
	if client == nil || client.Disabled {
		return nil, auth.NewOAuthError(auth.OAuthInvalidClient, "unknown client").
			WithStatus(http.StatusUnauthorized)
	}
	if err := p.provider.CheckGrantType(client, GrantDeviceCode); err != nil {
		return nil, err
	}

	scopes := strings.Fields(r.BodyValue("scope"))
	if err := p.provider.CheckScopes(client, scopes); err != nil {
		return nil, err
	}

	// The creation instant anchors the first polling window, so a client
	// that polls immediately is already told to slow down.
	now := time.Now().UTC()
	interval := int(p.opts.Interval / time.Second)
	record := &core.DeviceCode{
		DeviceCode:      crypto.NewToken(),
		UserCode:        p.newUserCode(),
		ClientID:        client.ClientID,
		Scopes:          scopes,
		Status:          core.StatusPending,
		ExpiresAt:       now.Add(p.opts.ExpiresIn),
		LastPolledAt:    &now,
		PollingInterval: interval,
	}
	if _, err := p.auth.Store.CreateDeviceCode(r.Context(), record); err != nil {
		return nil, p.serverError(r, "creating device code", err)
	}

	verificationURI := p.verificationURI()
	userCode := formatUserCode(record.UserCode)
	return map[string]any{
		"device_code":               record.DeviceCode,
		"user_code":                 userCode,
		"verification_uri":          verificationURI,
		"verification_uri_complete": verificationURI + "?user_code=" + url.QueryEscape(userCode),
		"expires_in":                int(p.opts.ExpiresIn / time.Second),
		"interval":                  interval,
	}, nil
}
