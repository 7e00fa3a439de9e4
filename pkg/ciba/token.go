// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package ciba

import (
	"fmt"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/oidcprovider"
)

// grantCiba handles token requests with the CIBA grant type. The provider
// dispatches here after authenticating the client and checking that the
// client is allowed to use the grant.
func (p *Plugin) grantCiba(r *auth.Request, client *core.OAuthClient) (any, error) {
	id := r.BodyValue("auth_req_id")
	if id == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "auth_req_id is required")
	}

	ctx := r.Context()
	record, err := p.auth.Store.FindCibaRequest(ctx, id)
	if err != nil {
		return nil, p.serverError(r, "finding backchannel request", err)
	}
	if record == nil || record.ClientID != client.ClientID {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "auth_req_id is invalid")
	}

	now := time.Now()
	if now.After(record.ExpiresAt) {
		if err := p.auth.Store.DeleteCibaRequest(ctx, record.ID); err != nil {
			return nil, p.serverError(r, "deleting expired backchannel request", err)
		}
		return nil, auth.NewOAuthError(auth.OAuthExpiredToken, "the authentication request has expired")
	}

	// The enforced spacing between polls stays at the configured interval.
	// Each violation bumps the advertised interval per CIBA Core §11, but
	// widening the enforced gate as well would punish a client that backs
	// off exactly as told.
	if record.LastPolledAt != nil && now.Sub(*record.LastPolledAt) < p.opts.Interval {
		advertised := record.PollingInterval + 5
		if _, err := p.auth.Store.UpdateCibaRequest(ctx, record.ID, map[string]any{
			"pollingInterval": advertised,
		}); err != nil {
			return nil, p.serverError(r, "updating polling interval", err)
		}
		return nil, auth.NewOAuthError(auth.OAuthSlowDown,
			fmt.Sprintf("polling too frequently, wait at least %d seconds", advertised))
	}

	switch record.Status {
	case core.StatusPending:
		if _, err := p.auth.Store.UpdateCibaRequest(ctx, record.ID, map[string]any{
			"lastPolledAt": now,
		}); err != nil {
			return nil, p.serverError(r, "updating poll time", err)
		}
		return nil, auth.NewOAuthError(auth.OAuthAuthorizationPending, "the user has not yet responded")
	case core.StatusDenied:
		if err := p.auth.Store.DeleteCibaRequest(ctx, record.ID); err != nil {
			return nil, p.serverError(r, "deleting rejected backchannel request", err)
		}
		return nil, auth.NewOAuthError(auth.OAuthAccessDenied, "the user rejected the request")
	case core.StatusApproved:
		return p.redeemApproved(r, client, record)
	default:
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "auth_req_id is invalid")
	}
}

// redeemApproved exchanges an approved request for tokens. The request row
// is deleted before issuance so a concurrent poll cannot redeem it twice.
func (p *Plugin) redeemApproved(r *auth.Request, client *core.OAuthClient, record *core.CibaRequest) (any, error) {
	ctx := r.Context()
	user, err := p.auth.Store.FindUserByID(ctx, record.UserID)
	if err != nil {
		return nil, p.serverError(r, "finding user", err)
	}
	if user == nil {
		return nil, auth.NewOAuthError(auth.OAuthInvalidGrant, "auth_req_id is invalid")
	}
	if err := p.auth.Store.DeleteCibaRequest(ctx, record.ID); err != nil {
		return nil, p.serverError(r, "deleting redeemed backchannel request", err)
	}
	return p.provider.IssueTokens(r, client, oidcprovider.ExtensionGrant{
		User:        user,
		Scopes:      record.Scopes,
		WithRefresh: true,
	})
}
