// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package devicecode implements the OAuth 2.0 device authorization grant
// (RFC 8628) for input-constrained clients: a TV or CLI obtains a device_code
// and a short user_code, the user approves the code on a second device, and
// the client polls the token endpoint until the grant resolves.
//
// The plugin requires the oidc-provider plugin: device clients live in its
// client registry and the grant is registered into its token dispatch, so
// both /oauth2/token and the plugin's own /device/token alias serve it.
package devicecode

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
	"github.com/betterauth/betterauth/pkg/oidcprovider"
)

// PluginID registers the plugin; discovery metadata keys off it.
const PluginID = "device-code"

// GrantDeviceCode is the RFC 8628 grant type.
const GrantDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

// Defaults.
const (
	DefaultExpiresIn        = 30 * time.Minute
	DefaultInterval         = 5 * time.Second
	DefaultUserCodeLength   = 8
	DefaultVerificationPage = "/device"
)

// Error codes the plugin returns from its first-party page endpoints.
const (
	CodeUserCodeRequired = "USER_CODE_REQUIRED"
	CodeUserCodeInvalid  = "INVALID_USER_CODE"
	CodeRequestProcessed = "DEVICE_REQUEST_ALREADY_PROCESSED"
)

// Options configures the device authorization flow.
type Options struct {
	// ExpiresIn bounds how long an issued device code stays redeemable.
	// Defaults to 30 minutes.
	ExpiresIn time.Duration

	// Interval is the minimum spacing between token polls. Polling faster
	// returns slow_down and raises the advertised interval by 5 seconds.
	// Defaults to 5 seconds.
	Interval time.Duration

	// UserCodeLength is the number of characters in a user code, drawn from
	// the ambiguity-free charset. Defaults to 8, displayed as XXXX-XXXX.
	UserCodeLength int

	// VerificationPage is the application page where the user enters the
	// code. Relative paths resolve against the server BaseURL. Defaults to
	// "/device".
	VerificationPage string
}

// Plugin is the device authorization plugin.
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

// Init implements auth.Plugin. It resolves the oidc-provider plugin and
// registers the device_code grant into its token dispatch.
func (p *Plugin) Init(ctx *auth.Context) (*auth.OptionsDelta, error) {
	p.auth = ctx

	provider, ok := auth.Lookup[*oidcprovider.Plugin](ctx, oidcprovider.PluginID)
	if !ok {
		return nil, fmt.Errorf("devicecode: the %s plugin must be registered", oidcprovider.PluginID)
	}
	p.provider = provider

	if p.opts.ExpiresIn <= 0 {
		p.opts.ExpiresIn = DefaultExpiresIn
	}
	if p.opts.Interval <= 0 {
		p.opts.Interval = DefaultInterval
	}
	if p.opts.UserCodeLength <= 0 {
		p.opts.UserCodeLength = DefaultUserCodeLength
	}
	if p.opts.VerificationPage == "" {
		p.opts.VerificationPage = DefaultVerificationPage
	}

	if err := provider.RegisterGrant(GrantDeviceCode, p.grantDeviceCode); err != nil {
		return nil, err
	}
	return nil, nil
}

// Endpoints implements auth.Plugin. The device endpoints called by the
// polling client skip CSRF; the approval endpoints are browser-facing and
// session-gated.
func (p *Plugin) Endpoints() []*auth.Endpoint {
	code := auth.Post("/device/code", p.deviceAuthorization)
	code.Name = "device.code"
	code.SkipCSRF = true

	token := auth.Post("/device/token", p.deviceToken)
	token.Name = "device.token"
	token.SkipCSRF = true

	status := auth.Post("/device", p.deviceStatus)
	status.Name = "device.status"

	approve := auth.Post("/device/approve", p.approve)
	approve.Name = "device.approve"
	approve.RequireSession = true

	deny := auth.Post("/device/deny", p.deny)
	deny.Name = "device.deny"
	deny.RequireSession = true

	return []*auth.Endpoint{code, token, status, approve, deny}
}

// Hooks implements auth.Plugin.
func (p *Plugin) Hooks() ([]auth.Hook, []auth.AfterHook) { return nil, nil }

// Schema implements auth.Plugin.
func (p *Plugin) Schema() []core.Table {
	return []core.Table{
		{Model: core.ModelDeviceCode, Fields: []core.Field{
			{Name: "deviceCode", Type: core.FieldString, Required: true, Unique: true},
			{Name: "userCode", Type: core.FieldString, Required: true, Unique: true},
			{Name: "clientId", Type: core.FieldString, Required: true},
			{Name: "userId", Type: core.FieldString},
			{Name: "scopes", Type: core.FieldStrings},
			{Name: "status", Type: core.FieldString, Required: true},
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
		CodeUserCodeRequired: "User code is required",
		CodeUserCodeInvalid:  "Invalid or expired user code",
		CodeRequestProcessed: "This device request has already been processed",
	}
}

// newUserCode draws a code from the ambiguity-free charset (no 0/O/1/I).
func (p *Plugin) newUserCode() string {
	return crypto.RandomString(p.opts.UserCodeLength, crypto.AlphabetUserCode)
}

// formatUserCode groups a stored code for display, XXXXXXXX -> XXXX-XXXX.
func formatUserCode(code string) string {
	if len(code)%2 != 0 {
		return code
	}
	half := len(code) / 2
	return code[:half] + "-" + code[half:]
}

// normalizeUserCode reverses user-hostile input: case, hyphens, spaces.
func normalizeUserCode(input string) string {
	cleaned := strings.NewReplacer("-", "", " ", "").Replace(input)
	return strings.ToUpper(strings.TrimSpace(cleaned))
}

// verificationURI resolves the code-entry page against the server base URL.
func (p *Plugin) verificationURI() string {
	page := p.opts.VerificationPage
	if strings.Contains(page, "://") {
		return page
	}
	return p.auth.BaseURL + page
}

// serverError logs the cause and keeps the RFC error shape on the wire.
func (p *Plugin) serverError(r *auth.Request, action string, err error) error {
	p.auth.Logger.Error("device authorization failure", "action", action, "path", r.Path(), "error", err)
	return auth.NewOAuthError(auth.OAuthServerError, "request could not be processed").WithStatus(http.StatusInternalServerError)
}
