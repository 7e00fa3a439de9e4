// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"time"

	"github.com/betterauth/betterauth/pkg/cookies"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/store"
)

// IssueSession creates a session for user, fills request metadata that the
// caller left blank, sets the signed session cookie, and records the payload
// as the request's fresh session. Banned users are refused up front rather
// than on first use of the session.
func (c *Context) IssueSession(r *Request, user *core.User, opts store.SessionOpts) (*store.SessionPayload, error) {
	if user.Banned && (user.BanExpires == nil || user.BanExpires.After(time.Now())) {
		return nil, NewAPIError(401, CodeBanned, "You have been banned from this application")
	}
	if opts.ExpiresIn <= 0 {
		opts.ExpiresIn = c.Options.Session.ExpiresIn
	}
	if opts.UserAgent == "" {
		opts.UserAgent = r.Raw.UserAgent()
	}
	if opts.IPAddress == "" {
		opts.IPAddress = r.ClientIP()
	}

	session, err := c.Store.CreateSession(r.Context(), user.ID, opts)
	if err != nil {
		return nil, err
	}

	payload := &store.SessionPayload{Session: session, User: user}
	c.SetSessionCookie(r, session)
	r.SetNewSession(payload)
	return payload, nil
}

// SetSessionCookie writes the signed session token cookie. Its max-age tracks
// the session expiry so browser and server agree on lifetime.
func (c *Context) SetSessionCookie(r *Request, session *core.Session) {
	signed := c.Cookies.SignValue(session.Token)
	r.SetCookie(c.Cookies.Make(cookies.NameSessionToken, signed, time.Until(session.ExpiresAt)))
}

// ClearSessionCookie expires the session cookie.
func (c *Context) ClearSessionCookie(r *Request) {
	r.SetCookie(c.Cookies.Make(cookies.NameSessionToken, "", 0))
}

// GetSession resolves the request's session. It verifies the cookie
// signature, consults the cache before the database, deletes sessions that
// are observed expired, enforces user bans, and applies the rolling expiry
// refresh. Absent or invalid sessions return (nil, nil); a banned user is an
// error so callers surface it instead of treating the request as anonymous.
//
// The result is memoized on the request, so guards, handlers, and hooks share
// one lookup.
func (c *Context) GetSession(r *Request) (*store.SessionPayload, error) {
	if r.sessionLoaded {
		return r.session, nil
	}
	r.sessionLoaded = true

	token, ok := c.Cookies.GetSigned(r.Raw, cookies.NameSessionToken)
	if !ok || token == "" {
		return nil, nil
	}
	ctx := r.Context()

	payload := c.Store.CachedSession(ctx, token)
	if payload == nil {
		session, err := c.Store.FindSessionByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, nil
		}
		if !session.ExpiresAt.After(time.Now()) {
			// Expired but not yet swept: remove it on observation.
			if err := c.Store.DeleteSession(ctx, session.Token); err != nil {
				return nil, err
			}
			c.ClearSessionCookie(r)
			return nil, nil
		}
		user, err := c.Store.FindUserByID(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			if err := c.Store.DeleteSession(ctx, session.Token); err != nil {
				return nil, err
			}
			c.ClearSessionCookie(r)
			return nil, nil
		}
		payload = &store.SessionPayload{Session: session, User: user}
	}

	if err := c.enforceBan(r, payload); err != nil {
		return nil, err
	}

	payload, err := c.refreshRolling(r, payload)
	if err != nil {
		return nil, err
	}
	r.session = payload
	return payload, nil
}

// enforceBan terminates the session of a banned user. A ban whose expiry has
// passed is lifted in place, clearing the ban fields on the user record.
func (c *Context) enforceBan(r *Request, payload *store.SessionPayload) error {
	user := payload.User
	if !user.Banned {
		return nil
	}

	if user.BanExpires != nil && !user.BanExpires.After(time.Now()) {
		updated, err := c.Store.UpdateUser(r.Context(), user.ID, map[string]any{
			"banned":     false,
			"banReason":  nil,
			"banExpires": nil,
		})
		if err != nil {
			return err
		}
		if updated != nil {
			payload.User = updated
		}
		return nil
	}

	if err := c.Store.DeleteSession(r.Context(), payload.Session.Token); err != nil {
		return err
	}
	c.ClearSessionCookie(r)
	return NewAPIError(401, CodeBanned, "You have been banned from this application")
}

// refreshRolling extends the session when it has aged past UpdateAge since
// its last refresh. The extension is a compare-and-set in the store, so
// concurrent requests settle on the furthest expiry.
func (c *Context) refreshRolling(r *Request, payload *store.SessionPayload) (*store.SessionPayload, error) {
	if c.Options.Session.DisableRolling {
		return payload, nil
	}
	// Impersonation sessions keep their fixed expiry.
	if payload.Session.ImpersonatedBy != "" {
		return payload, nil
	}
	expiresIn := c.Options.Session.ExpiresIn
	updateAge := *c.Options.Session.UpdateAge

	// The session was last refreshed at expiresAt-expiresIn; a refresh is due
	// once updateAge has elapsed since then.
	due := payload.Session.ExpiresAt.Add(-expiresIn).Add(updateAge)
	if time.Now().Before(due) {
		return payload, nil
	}

	refreshed, err := c.Store.ExtendSession(r.Context(), payload.Session.Token, time.Now().Add(expiresIn))
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		// Deleted since observation; the payload stays valid for this request.
		return payload, nil
	}
	payload = &store.SessionPayload{Session: refreshed, User: payload.User}
	c.SetSessionCookie(r, refreshed)
	return payload, nil
}

// SignOut deletes the current session, if any, and clears its cookie.
func (c *Context) SignOut(r *Request) error {
	token, ok := c.Cookies.GetSigned(r.Raw, cookies.NameSessionToken)
	c.ClearSessionCookie(r)
	if !ok || token == "" {
		return nil
	}
	return c.Store.DeleteSession(r.Context(), token)
}
