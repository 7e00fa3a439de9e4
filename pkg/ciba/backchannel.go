// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package ciba

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// backchannelAuthorize serves POST /oauth/bc-authorize (CIBA Core §7): it
// authenticates the client, resolves the login hint to an account, persists
// the pending request, and dispatches the user notification.
func (p *Plugin) backchannelAuthorize(r *auth.Request) (any, error) {
	client, err := p.provider.AuthenticateClient(r)
	if err != nil {
		return nil, err
	}
	if err := p.provider.CheckGrantType(client, GrantCiba); err != nil {
		return nil, err
	}

	scopes := strings.Fields(r.BodyValue("scope"))
	if len(scopes) == 0 {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "scope is required")
	}
	if err := p.provider.CheckScopes(client, scopes); err != nil {
		return nil, err
	}

	hint := strings.TrimSpace(r.BodyValue("login_hint"))
	if hint == "" {
		return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "login_hint is required")
	}
	user, err := p.resolveLoginHint(r.Context(), hint)
	if err != nil {
		return nil, p.serverError(r, "resolving login hint", err)
	}
	if user == nil {
		// CIBA Core §13 defines this code for hints that match no account.
		return nil, auth.NewOAuthError("unknown_user_id", "no account matches the login hint")
	}

	expiresIn := p.opts.ExpiresIn
	if requested := r.BodyValue("requested_expiry"); requested != "" {
		secs, err := strconv.Atoi(requested)
		if err != nil || secs <= 0 {
			return nil, auth.NewOAuthError(auth.OAuthInvalidRequest, "requested_expiry must be a positive integer")
		}
		if d := time.Duration(secs) * time.Second; d < expiresIn {
			expiresIn = d
		}
	}

	// The creation instant anchors the first polling window, matching the
	// device flow.
	now := time.Now().UTC()
	record := &core.CibaRequest{
		AuthReqID:       crypto.RandomString(43, crypto.AlphabetURLSafe),
		ClientID:        client.ClientID,
		UserID:          user.ID,
		Scopes:          scopes,
		Status:          core.StatusPending,
		LoginHint:       hint,
		BindingMessage:  r.BodyValue("binding_message"),
		ExpiresAt:       now.Add(expiresIn),
		LastPolledAt:    &now,
		PollingInterval: int(p.opts.Interval / time.Second),
	}
	if _, err := p.auth.Store.CreateCibaRequest(r.Context(), record); err != nil {
		return nil, p.serverError(r, "creating backchannel request", err)
	}

	notification := Notification{
		User:           user,
		AuthReqID:      record.AuthReqID,
		ClientName:     client.Name,
		BindingMessage: record.BindingMessage,
		Scopes:         scopes,
	}
	if p.opts.SendNotificationSync {
		if err := p.notify(r.Context(), notification); err != nil {
			if derr := p.auth.Store.DeleteCibaRequest(r.Context(), record.ID); derr != nil {
				p.auth.Logger.Error("removing undelivered backchannel request", "authReqId", record.AuthReqID, "error", derr)
			}
			return nil, p.serverError(r, "delivering notification", err)
		}
	} else {
		go p.notifyAsync(notification)
	}

	return map[string]any{
		"auth_req_id": record.AuthReqID,
		"expires_in":  int(expiresIn / time.Second),
		"interval":    record.PollingInterval,
	}, nil
}

// resolveLoginHint maps a hint to an account: email first, then phone
// number, then username.
func (p *Plugin) resolveLoginHint(ctx context.Context, hint string) (*core.User, error) {
	if user, err := p.auth.Store.FindUserByEmail(ctx, hint); err != nil || user != nil {
		return user, err
	}
	if user, err := p.auth.Store.FindUserByPhoneNumber(ctx, hint); err != nil || user != nil {
		return user, err
	}
	return p.auth.Store.FindUserByUsername(ctx, hint)
}

// notify delivers the approval prompt, retrying transient failures so a
// flaky push gateway does not silently drop an authentication request.
func (p *Plugin) notify(ctx context.Context, n Notification) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, p.opts.SendNotification(ctx, n)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(defaultNotifyTries),
	)
	return err
}

// notifyAsync runs delivery off the request goroutine. The request row is
// already persisted, so the client polls regardless; if delivery ultimately
// fails the request expires unanswered.
func (p *Plugin) notifyAsync(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := p.notify(ctx, n); err != nil {
		p.auth.Logger.Error("backchannel notification failed", "authReqId", n.AuthReqID, "userId", n.User.ID, "error", err)
	}
}
