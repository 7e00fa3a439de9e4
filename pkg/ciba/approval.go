// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package ciba

import (
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// verify serves POST /ciba/verify: the notified user's app fetches what it
// is being asked to approve, including the binding message to cross-check
// against the client's display.
func (p *Plugin) verify(r *auth.Request) (any, error) {
	record, client, err := p.pendingRequest(r)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"authReqId":      record.AuthReqID,
		"clientId":       client.ClientID,
		"clientName":     client.Name,
		"scopes":         record.Scopes,
		"bindingMessage": record.BindingMessage,
		"expiresAt":      record.ExpiresAt,
	}, nil
}

// approve serves POST /ciba/authorize: the signed-in user, who must be the
// one the client asked for, authorizes the request.
func (p *Plugin) approve(r *auth.Request) (any, error) {
	record, _, err := p.pendingRequest(r)
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.UpdateCibaRequest(r.Context(), record.ID, map[string]any{
		"status": core.StatusApproved,
	}); err != nil {
		return nil, p.serverError(r, "approving backchannel request", err)
	}
	return nil, nil
}

// reject serves POST /ciba/reject.
func (p *Plugin) reject(r *auth.Request) (any, error) {
	record, _, err := p.pendingRequest(r)
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.UpdateCibaRequest(r.Context(), record.ID, map[string]any{
		"status": core.StatusDenied,
	}); err != nil {
		return nil, p.serverError(r, "rejecting backchannel request", err)
	}
	return nil, nil
}

// pendingRequest resolves the submitted auth_req_id to a live, still-pending
// request owned by the session user.
func (p *Plugin) pendingRequest(r *auth.Request) (*core.CibaRequest, *core.OAuthClient, error) {
	id := r.BodyValue("authReqId")
	if id == "" {
		id = r.BodyValue("auth_req_id")
	}
	if id == "" {
		return nil, nil, auth.ErrBadRequest(CodeAuthReqIDRequired, "auth_req_id is required")
	}

	ctx := r.Context()
	record, err := p.auth.Store.FindCibaRequest(ctx, id)
	if err != nil {
		return nil, nil, p.serverError(r, "finding backchannel request", err)
	}
	if record == nil {
		return nil, nil, auth.ErrNotFound(CodeRequestNotFound, "Authentication request not found")
	}
	if time.Now().After(record.ExpiresAt) {
		if err := p.auth.Store.DeleteCibaRequest(ctx, record.ID); err != nil {
			return nil, nil, p.serverError(r, "deleting expired backchannel request", err)
		}
		return nil, nil, auth.ErrNotFound(CodeRequestNotFound, "Authentication request not found")
	}
	if record.UserID != r.Session().User.ID {
		return nil, nil, auth.ErrForbidden(CodeRequestMismatch, "Authentication request belongs to a different user")
	}
	if record.Status != core.StatusPending {
		return nil, nil, auth.ErrConflict(CodeRequestProcessed, "This authentication request has already been processed")
	}

	client, err := p.auth.Store.FindOAuthClient(ctx, record.ClientID)
	if err != nil {
		return nil, nil, p.serverError(r, "finding client", err)
	}
	if client == nil {
		return nil, nil, auth.ErrNotFound(CodeRequestNotFound, "Authentication request not found")
	}
	return record, client, nil
}
