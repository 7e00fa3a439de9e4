// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package ciba implements OpenID Connect Client-Initiated Backchannel
// Authentication (poll mode): a client that never sees the user's browser
// asks the server to authenticate them, the server notifies the user out of
// band, and the client polls the token endpoint with the returned auth_req_id
// until the user approves or rejects the request on their own device.
//
// The plugin requires the oidc-provider plugin and registers its grant into
// the shared token dispatch.
package ciba

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/oidcprovider"
)

// PluginID registers the plugin; discovery metadata keys off it.
const PluginID = "ciba"

// GrantCiba is the backchannel authentication grant type.
const GrantCiba = "urn:openid:params:grant-type:ciba"

// Defaults.
const (
	DefaultExpiresIn   = 5 * time.Minute
	DefaultInterval    = 5 * time.Second
	defaultNotifyTries = 3
)

// Error codes the plugin returns from its approval endpoints.
const (
	CodeAuthReqIDRequired = "AUTH_REQ_ID_REQUIRED"
	CodeRequestNotFound   = "AUTHENTICATION_REQUEST_NOT_FOUND"
	CodeRequestMismatch   = "AUTHENTICATION_REQUEST_MISMATCH"
	CodeRequestProcessed  = "AUTHENTICATION_REQUEST_ALREADY_PROCESSED"
)

// Notification is handed to SendNotification when a backchannel request is
// created. Deployments deliver it however their users are reachable: push,
// SMS, email.
type Notification struct {
	// User is the resolved account the client wants authenticated.
	User *core.User
	// AuthReqID identifies the pending request; the approval UI posts it to
	// /ciba/verify and /ciba/authorize.
	AuthReqID string
	// ClientName names the requesting client for display.
	ClientName string
	// BindingMessage is the short code the user cross-checks against the
	// client's display, when the client sent one.
	BindingMessage string
	// Scopes are the requested scopes.
	Scopes []string
}

// Options configures backchannel authentication.
type Options struct {
	// SendNotification delivers the approval prompt to the user. Required.
	SendNotification func(ctx context.Context, n Notification) error

	// SendNotificationSync awaits delivery before answering the client.
	// The default is asynchronous dispatch with retries, matching the
	// fire-and-forget wording of CIBA poll mode.
	SendNotificationSync bool

	// ExpiresIn bounds how long a request stays approvable. Defaults to
	// 5 minutes.
	ExpiresIn time.Duration

	// Interval is the minimum spacing between token polls. Defaults to
	// 5 seconds.
	Interval time.Duration
}

// Plugin is the backchannel authentication plugin.
type Plugin struct {
	opts     Options
	auth     *auth.Context
	provider *oidcprovider.Plugin
}

// New constructs the plugin.
func New(opts Options) *Plugin {
	return &Plugin{opts: opts}
}

// ID implements auth.Plugin.
func (p *Plugin) ID() string { return PluginID }

// Init implements auth.Plugin.
func (p *Plugin) Init(ctx *auth.Context) (*auth.OptionsDelta, error) {
	p.auth = ctx

	if p.opts.SendNotification == nil {
		return nil, fmt.Errorf("ciba: Options.SendNotification is required")
	}
	provider, ok := auth.Lookup[*oidcprovider.Plugin](ctx, oidcprovider.PluginID)
	if !ok {
		return nil, fmt.Errorf("ciba: the %s plugin must be registered", oidcprovider.PluginID)
	}
	p.provider = provider

	if p.opts.ExpiresIn <= 0 {
		p.opts.ExpiresIn = DefaultExpiresIn
	}
	if p.opts.Interval <= 0 {
		p.opts.Interval = DefaultInterval
	}

	if err := provider.RegisterGrant(GrantCiba, p.grantCiba); err != nil {
		return nil, err
	}
	return nil, nil
}

// Endpoints implements auth.Plugin. bc-authorize is called by OAuth clients
// and skips CSRF; the approval endpoints are browser-facing and require the
// user's session.
func (p *Plugin) Endpoints() []*auth.Endpoint {
	authorize := auth.Post("/oauth/bc-authorize", p.backchannelAuthorize)
	authorize.Name = "ciba.bc-authorize"
	authorize.SkipCSRF = true

	verify := auth.Post("/ciba/verify", p.verify)
	verify.Name = "ciba.verify"
	verify.RequireSession = true

	approve := auth.Post("/ciba/authorize", p.approve)
	approve.Name = "ciba.authorize"
	approve.RequireSession = true

	reject := auth.Post("/ciba/reject", p.reject)
	reject.Name = "ciba.reject"
	reject.RequireSession = true

	return []*auth.Endpoint{authorize, verify, approve, reject}
}

// Hooks implements auth.Plugin.
func (p *Plugin) Hooks() ([]auth.Hook, []auth.AfterHook) { return nil, nil }

// Schema implements auth.Plugin. The phoneNumber column backs the
// login_hint resolution order; the account plugin already declares the
// username column it shares.
func (p *Plugin) Schema() []core.Table {
	return []core.Table{
		{Model: core.ModelUser, Fields: []core.Field{
			{Name: "phoneNumber", Type: core.FieldString, Unique: true},
		}},
		{Model: core.ModelCibaRequest, Fields: []core.Field{
			{Name: "authReqId", Type: core.FieldString, Required: true, Unique: true},
			{Name: "clientId", Type: core.FieldString, Required: true},
			{Name: "userId", Type: core.FieldString, Required: true},
			{Name: "scopes", Type: core.FieldStrings},
			{Name: "status", Type: core.FieldString, Required: true},
			{Name: "loginHint", Type: core.FieldString},
			{Name: "bindingMessage", Type: core.FieldString},
			{Name: "expiresAt", Type: core.FieldDate, Required: true},
			{Name: "lastPolledAt", Type: core.FieldDate},
			{Name: "pollingInterval", Type: core.FieldNumber, Required: true},
			{Name: "createdAt", Type: core.FieldDate, Required: true},
		}},
	}
}

// ErrorCodes implements auth.Plugin.
func (p *Plugin) ErrorCodes() map[string]string {
	return map[string]string{
		CodeAuthReqIDRequired: "auth_req_id is required",
		CodeRequestNotFound:   "Authentication request not found",
		CodeRequestMismatch:   "Authentication request belongs to a different user",
		CodeRequestProcessed:  "This authentication request has already been processed",
	}
}

// serverError logs the cause and keeps the RFC error shape on the wire.
func (p *Plugin) serverError(r *auth.Request, action string, err error) error {
	p.auth.Logger.Error("backchannel authentication failure", "action", action, "path", r.Path(), "error", err)
	return auth.NewOAuthError(auth.OAuthServerError, "request could not be processed").WithStatus(http.StatusInternalServerError)
}
