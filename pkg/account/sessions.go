// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

func (p *Plugin) listSessions(r *auth.Request) (any, error) {
	sessions, err := p.auth.Store.ListSessions(r.Context(), r.Session().User.ID)
	if err != nil {
		return nil, err
	}
	live := make([]*core.Session, 0, len(sessions))
	now := time.Now()
	for _, s := range sessions {
		if s.ExpiresAt.After(now) {
			live = append(live, s)
		}
	}
	return live, nil
}

type revokeSessionRequest struct {
	Token string `json:"token" validate:"required"`
}

func (p *Plugin) revokeSession(r *auth.Request) (any, error) {
	req, err := auth.Bind[revokeSessionRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	session, err := p.auth.Store.FindSessionByToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	// A foreign session and a missing one answer identically.
	if session == nil || session.UserID != r.Session().User.ID {
		return nil, auth.ErrNotFound(CodeSessionNotFound, "Session not found")
	}
	if err := p.auth.Store.DeleteSession(ctx, session.Token); err != nil {
		return nil, err
	}
	if session.Token == r.Session().Session.Token {
		p.auth.ClearSessionCookie(r)
	}
	return map[string]any{"status": true}, nil
}

func (p *Plugin) revokeSessions(r *auth.Request) (any, error) {
	if _, err := p.auth.Store.DeleteSessions(r.Context(), r.Session().User.ID); err != nil {
		return nil, err
	}
	p.auth.ClearSessionCookie(r)
	return map[string]any{"status": true}, nil
}

func (p *Plugin) revokeOtherSessions(r *auth.Request) (any, error) {
	if err := p.revokeAllButCurrent(r); err != nil {
		return nil, err
	}
	return map[string]any{"status": true}, nil
}

// revokeAllButCurrent deletes every session of the current user except the
// one making the request.
func (p *Plugin) revokeAllButCurrent(r *auth.Request) error {
	ctx := r.Context()
	current := r.Session().Session.Token
	sessions, err := p.auth.Store.ListSessions(ctx, r.Session().User.ID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.Token == current {
			continue
		}
		if err := p.auth.Store.DeleteSession(ctx, s.Token); err != nil {
			return err
		}
	}
	return nil
}
