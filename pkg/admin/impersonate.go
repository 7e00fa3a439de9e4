// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/cookies"
	"github.com/betterauth/betterauth/pkg/store"
)

type impersonateRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// impersonate creates a child session for the target user, parks the admin's
// own session id in the signed admin_session cookie, and swaps the active
// session cookie to the child. The child records impersonatedBy and carries
// a short fixed lifetime.
//
// The session is created directly in the store rather than issued: issuing
// would mark it as a fresh sign-in, which after-hooks (two-factor, OAuth
// login resume) are entitled to intercept.
func (p *Plugin) impersonate(r *auth.Request) (any, error) {
	req, err := auth.Bind[impersonateRequest](r)
	if err != nil {
		return nil, err
	}

	current := r.Session()
	if current.Session.ImpersonatedBy != "" {
		return nil, auth.ErrBadRequest(CodeAlreadyImpersonating, "Stop the current impersonation first")
	}
	target, err := p.findTarget(r, req.UserID)
	if err != nil {
		return nil, err
	}

	session, err := p.auth.Store.CreateSession(r.Context(), target.ID, store.SessionOpts{
		UserAgent:      r.Raw.UserAgent(),
		IPAddress:      r.ClientIP(),
		ExpiresIn:      p.opts.ImpersonationTTL,
		ImpersonatedBy: current.User.ID,
	})
	if err != nil {
		return nil, err
	}

	signed := p.auth.Cookies.SignValue(current.Session.ID)
	r.SetCookie(p.auth.Cookies.Make(cookies.NameAdminSession, signed, p.opts.ImpersonationTTL))
	p.auth.SetSessionCookie(r, session)

	return map[string]any{"session": session, "user": target}, nil
}

// stopImpersonating ends the impersonation: it deletes the child session and
// restores the admin session recorded in the admin_session cookie.
func (p *Plugin) stopImpersonating(r *auth.Request) (any, error) {
	current := r.Session()
	if current.Session.ImpersonatedBy == "" {
		return nil, auth.ErrBadRequest(CodeNotImpersonating, "The current session is not impersonating anyone")
	}

	sessionID, ok := p.auth.Cookies.GetSigned(r.Raw, cookies.NameAdminSession)
	r.SetCookie(p.auth.Cookies.Make(cookies.NameAdminSession, "", 0))
	if !ok || sessionID == "" {
		return nil, auth.ErrUnauthorized(CodeAdminSessionLost, "Admin session not found")
	}

	ctx := r.Context()
	parent, err := p.auth.Store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// The cookie must point back at the session that started this
	// impersonation, and that session must still be alive.
	if parent == nil || parent.UserID != current.Session.ImpersonatedBy ||
		!parent.ExpiresAt.After(time.Now()) {
		if err := p.auth.Store.DeleteSession(ctx, current.Session.Token); err != nil {
			return nil, err
		}
		p.auth.ClearSessionCookie(r)
		return nil, auth.ErrUnauthorized(CodeAdminSessionLost, "Admin session expired")
	}

	admin, err := p.auth.Store.FindUserByID(ctx, parent.UserID)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		p.auth.ClearSessionCookie(r)
		return nil, auth.ErrUnauthorized(CodeAdminSessionLost, "Admin session expired")
	}

	if err := p.auth.Store.DeleteSession(ctx, current.Session.Token); err != nil {
		return nil, err
	}
	p.auth.SetSessionCookie(r, parent)

	return map[string]any{"session": parent, "user": admin}, nil
}
