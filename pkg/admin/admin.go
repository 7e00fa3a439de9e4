// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package admin exposes the administrative surface: user management (create,
// list, set role, set password, remove), bans, session control, and
// impersonation. Every endpoint requires a session with the admin role,
// except stop-impersonating, which the impersonated session itself calls.
package admin

import (
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// PluginID is the registry key.
const PluginID = "admin"

// Error codes.
const (
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeUserAlreadyExists    = "USER_ALREADY_EXISTS"
	CodeCredentialNotFound   = "CREDENTIAL_ACCOUNT_NOT_FOUND"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeCannotBanSelf        = "YOU_CANNOT_BAN_YOURSELF"
	CodeCannotRemoveSelf     = "YOU_CANNOT_REMOVE_YOURSELF"
	CodeNotImpersonating     = "NOT_IMPERSONATING"
	CodeAlreadyImpersonating = "ALREADY_IMPERSONATING"
	CodeAdminSessionLost     = "ADMIN_SESSION_NOT_FOUND"
	CodePasswordTooShort     = "PASSWORD_TOO_SHORT"
	CodePasswordTooLong      = "PASSWORD_TOO_LONG"
)

const (
	// DefaultImpersonationTTL bounds impersonation sessions. They do not
	// roll, so this is a hard ceiling.
	DefaultImpersonationTTL = time.Hour

	defaultBanReason = "No reason"
	defaultListLimit = 100
)

// Options configures the plugin. The zero value works.
type Options struct {
	// ImpersonationTTL is the fixed lifetime of an impersonation session.
	// Defaults to one hour.
	ImpersonationTTL time.Duration

	// DefaultBanReason fills banReason when a ban request gives none.
	DefaultBanReason string
}

// Plugin implements auth.Plugin.
type Plugin struct {
	opts Options
	auth *auth.Context
}

// New returns the admin plugin.
func New(opts Options) *Plugin {
	return &Plugin{opts: opts}
}

// ID implements auth.Plugin.
func (p *Plugin) ID() string { return PluginID }

// Init implements auth.Plugin.
func (p *Plugin) Init(ctx *auth.Context) (*auth.OptionsDelta, error) {
	p.auth = ctx
	if p.opts.ImpersonationTTL <= 0 {
		p.opts.ImpersonationTTL = DefaultImpersonationTTL
	}
	if p.opts.DefaultBanReason == "" {
		p.opts.DefaultBanReason = defaultBanReason
	}
	return nil, nil
}

// Endpoints implements auth.Plugin.
func (p *Plugin) Endpoints() []*auth.Endpoint {
	adminPost := func(name, path string, h auth.HandlerFunc) *auth.Endpoint {
		ep := auth.Post(path, h)
		ep.Name = name
		ep.RequireAdmin = true
		return ep
	}

	listUsers := auth.Get("/admin/list-users", p.listUsers)
	listUsers.Name = "admin.list-users"
	listUsers.RequireAdmin = true

	// The impersonated session does not carry the admin role, so stopping
	// only requires a session.
	stop := auth.Post("/admin/stop-impersonating", p.stopImpersonating)
	stop.Name = "admin.stop-impersonating"
	stop.RequireSession = true

	return []*auth.Endpoint{
		adminPost("admin.create-user", "/admin/create-user", p.createUser),
		listUsers,
		adminPost("admin.set-role", "/admin/set-role", p.setRole),
		adminPost("admin.set-user-password", "/admin/set-user-password", p.setUserPassword),
		adminPost("admin.ban-user", "/admin/ban-user", p.banUser),
		adminPost("admin.unban-user", "/admin/unban-user", p.unbanUser),
		adminPost("admin.remove-user", "/admin/remove-user", p.removeUser),
		adminPost("admin.list-user-sessions", "/admin/list-user-sessions", p.listUserSessions),
		adminPost("admin.revoke-user-session", "/admin/revoke-user-session", p.revokeUserSession),
		adminPost("admin.revoke-user-sessions", "/admin/revoke-user-sessions", p.revokeUserSessions),
		adminPost("admin.impersonate-user", "/admin/impersonate-user", p.impersonate),
		stop,
	}
}

// Hooks implements auth.Plugin.
func (p *Plugin) Hooks() ([]auth.Hook, []auth.AfterHook) { return nil, nil }

// Schema implements auth.Plugin: the role and ban columns on the user model
// belong to this plugin.
func (p *Plugin) Schema() []core.Table {
	return []core.Table{
		{Model: core.ModelUser, Fields: []core.Field{
			{Name: "role", Type: core.FieldString},
			{Name: "banned", Type: core.FieldBoolean},
			{Name: "banReason", Type: core.FieldString},
			{Name: "banExpires", Type: core.FieldDate},
		}},
	}
}

// ErrorCodes implements auth.Plugin.
func (p *Plugin) ErrorCodes() map[string]string {
	return map[string]string{
		CodeUserNotFound:         "User not found",
		CodeUserAlreadyExists:    "User already exists",
		CodeCredentialNotFound:   "No credential account found",
		CodeSessionNotFound:      "Session not found",
		CodeCannotBanSelf:        "You cannot ban yourself",
		CodeCannotRemoveSelf:     "You cannot remove yourself",
		CodeNotImpersonating:     "The current session is not impersonating anyone",
		CodeAlreadyImpersonating: "Stop the current impersonation first",
		CodeAdminSessionLost:     "Admin session not found",
		CodePasswordTooShort:     "Password is too short",
		CodePasswordTooLong:      "Password is too long",
	}
}

// findTarget resolves a userId from a request body to an existing user.
func (p *Plugin) findTarget(r *auth.Request, userID string) (*core.User, error) {
	user, err := p.auth.Store.FindUserByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, auth.ErrNotFound(CodeUserNotFound, "User not found")
	}
	return user, nil
}
