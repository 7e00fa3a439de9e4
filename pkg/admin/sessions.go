// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

type userSessionsRequest struct {
	UserID string `json:"userId" validate:"required"`
}

func (p *Plugin) listUserSessions(r *auth.Request) (any, error) {
	req, err := auth.Bind[userSessionsRequest](r)
	if err != nil {
		return nil, err
	}
	target, err := p.findTarget(r, req.UserID)
	if err != nil {
		return nil, err
	}

	sessions, err := p.auth.Store.ListSessions(r.Context(), target.ID)
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
	return map[string]any{"sessions": live}, nil
}

type revokeSessionRequest struct {
	SessionToken string `json:"sessionToken" validate:"required"`
}

func (p *Plugin) revokeUserSession(r *auth.Request) (any, error) {
	req, err := auth.Bind[revokeSessionRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	session, err := p.auth.Store.FindSessionByToken(ctx, req.SessionToken)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, auth.ErrNotFound(CodeSessionNotFound, "Session not found")
	}
	if err := p.auth.Store.DeleteSession(ctx, session.Token); err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *Plugin) revokeUserSessions(r *auth.Request) (any, error) {
	req, err := auth.Bind[userSessionsRequest](r)
	if err != nil {
		return nil, err
	}
	target, err := p.findTarget(r, req.UserID)
	if err != nil {
		return nil, err
	}
	count, err := p.auth.Store.DeleteSessions(r.Context(), target.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": count}, nil
}
