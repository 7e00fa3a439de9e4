// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package devicecode

import (
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// deviceStatus serves POST /device. The code-entry page submits what the
// user typed and renders which client is asking and for what.
func (p *Plugin) deviceStatus(r *auth.Request) (any, error) {
	dc, client, err := p.findPending(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"userCode":   formatUserCode(dc.UserCode),
		"clientId":   client.ClientID,
		"clientName": client.Name,
		"scopes":     dc.Scopes,
		"expiresAt":  dc.ExpiresAt,
	}, nil
}

// approve serves POST /device/approve: the signed-in user authorizes the
// device, binding the grant to their account. The polling side picks the
// decision up on its next compliant poll.
func (p *Plugin) approve(r *auth.Request) (any, error) {
	dc, _, err := p.findPending(r)
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.UpdateDeviceCode(r.Context(), dc.ID, map[string]any{
		"status": core.StatusApproved,
		"userId": r.Session().User.ID,
	}); err != nil {
		return nil, p.serverError(r, "approving device code", err)
	}
	return nil, nil
}

// deny serves POST /device/deny.
func (p *Plugin) deny(r *auth.Request) (any, error) {
	dc, _, err := p.findPending(r)
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.UpdateDeviceCode(r.Context(), dc.ID, map[string]any{
		"status": core.StatusDenied,
	}); err != nil {
		return nil, p.serverError(r, "denying device code", err)
	}
	return nil, nil
}

// findPending resolves the submitted user code to a live, still-pending
// device authorization and the client behind it.
func (p *Plugin) findPending(r *auth.Request) (*core.DeviceCode, *core.OAuthClient, error) {
	userCode := normalizeUserCode(r.BodyValue("userCode"))
	if userCode == "" {
		return nil, nil, auth.ErrBadRequest(CodeUserCodeRequired, "User code is required")
	}

	ctx := r.Context()
	dc, err := p.auth.Store.FindDeviceCodeByUserCode(ctx, userCode)
	if err != nil {
		return nil, nil, p.serverError(r, "finding user code", err)
	}
	if dc == nil {
		return nil, nil, auth.ErrNotFound(CodeUserCodeInvalid, "Invalid or expired user code")
	}
	if time.Now().After(dc.ExpiresAt) {
		if err := p.auth.Store.DeleteDeviceCode(ctx, dc.ID); err != nil {
			return nil, nil, p.serverError(r, "deleting expired device code", err)
		}
		return nil, nil, auth.ErrNotFound(CodeUserCodeInvalid, "Invalid or expired user code")
	}
	if dc.Status != core.StatusPending {
		return nil, nil, auth.ErrConflict(CodeRequestProcessed, "This device request has already been processed")
	}

	client, err := p.auth.Store.FindOAuthClient(ctx, dc.ClientID)
	if err != nil {
		return nil, nil, p.serverError(r, "finding client", err)
	}
	if client == nil {
		return nil, nil, auth.ErrNotFound(CodeUserCodeInvalid, "Invalid or expired user code")
	}
	return dc, client, nil
}
