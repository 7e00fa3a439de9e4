// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/store"
)

// sessionLifetimeWithoutRemember is the shortened session lifetime used when
// the caller explicitly declines "remember me".
const sessionLifetimeWithoutRemember = 24 * time.Hour

type signUpRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	Image       string `json:"image"`
	Username    string `json:"username"`
	CallbackURL string `json:"callbackURL"`
	RememberMe  *bool  `json:"rememberMe"`
}

func (p *Plugin) signUpEmail(r *auth.Request) (any, error) {
	req, err := auth.Bind[signUpRequest](r)
	if err != nil {
		return nil, err
	}
	if err := p.auth.ValidateCallbackURL(req.CallbackURL); err != nil {
		return nil, err
	}
	if err := p.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	ctx := r.Context()
	existing, err := p.auth.Store.FindUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, auth.ErrConflict(CodeUserAlreadyExists, "User already exists")
	}

	user, err := p.auth.Store.CreateUser(ctx, &core.User{
		Name:     req.Name,
		Email:    req.Email,
		Image:    req.Image,
		Username: req.Username,
	})
	if err != nil {
		return nil, err
	}

	hash, err := p.auth.Hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.LinkAccount(ctx, &core.Account{
		UserID:     user.ID,
		ProviderID: core.ProviderCredential,
		AccountID:  user.ID,
		Password:   hash,
	}); err != nil {
		return nil, err
	}

	if p.auth.Options.EmailAndPassword.RequireEmailVerification {
		if err := p.sendVerification(r, user, req.CallbackURL); err != nil {
			return nil, err
		}
		return map[string]any{"token": nil, "user": user}, nil
	}

	payload, err := p.auth.IssueSession(r, user, store.SessionOpts{
		ExpiresIn: p.sessionLifetime(req.RememberMe),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"token": payload.Session.Token, "user": user}, nil
}

type signInRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	CallbackURL string `json:"callbackURL"`
	RememberMe  *bool  `json:"rememberMe"`
}

func (p *Plugin) signInEmail(r *auth.Request) (any, error) {
	req, err := auth.Bind[signInRequest](r)
	if err != nil {
		return nil, err
	}
	if err := p.auth.ValidateCallbackURL(req.CallbackURL); err != nil {
		return nil, err
	}

	ctx := r.Context()
	user, err := p.auth.Store.FindUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	var account *core.Account
	if user != nil {
		account, err = p.auth.Store.FindUserAccount(ctx, user.ID, core.ProviderCredential)
		if err != nil {
			return nil, err
		}
	}

	// Unknown email and wrong password take the same path: verify against a
	// throwaway hash so the two are indistinguishable, then answer with the
	// uniform credentials error.
	if user == nil || account == nil || account.Password == "" {
		p.auth.Hasher.Verify(req.Password, p.dummyHash)
		return nil, auth.ErrUnauthorized(CodeInvalidCredentials, "Invalid email or password")
	}
	if !p.auth.Hasher.Verify(req.Password, account.Password) {
		return nil, auth.ErrUnauthorized(CodeInvalidCredentials, "Invalid email or password")
	}

	if p.auth.Options.EmailAndPassword.RequireEmailVerification && !user.EmailVerified {
		if err := p.sendVerification(r, user, req.CallbackURL); err != nil {
			return nil, err
		}
		return nil, auth.ErrForbidden(CodeEmailNotVerified, "Email is not verified")
	}

	payload, err := p.auth.IssueSession(r, user, store.SessionOpts{
		ExpiresIn: p.sessionLifetime(req.RememberMe),
	})
	if err != nil {
		return nil, err
	}

	resp := map[string]any{"token": payload.Session.Token, "user": user, "redirect": false}
	if req.CallbackURL != "" {
		resp["redirect"] = true
		resp["url"] = req.CallbackURL
	}
	return resp, nil
}

func (p *Plugin) signOut(r *auth.Request) (any, error) {
	if err := p.auth.SignOut(r); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

// getSessionResponse serializes explicit nulls when no session exists, so
// clients can distinguish "anonymous" from transport errors.
type getSessionResponse struct {
	Session *core.Session `json:"session"`
	User    *core.User    `json:"user"`
}

func (p *Plugin) getSession(r *auth.Request) (any, error) {
	payload, err := p.auth.GetSession(r)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return getSessionResponse{}, nil
	}
	return getSessionResponse{Session: payload.Session, User: payload.User}, nil
}

func (p *Plugin) sessionLifetime(rememberMe *bool) time.Duration {
	if rememberMe != nil && !*rememberMe {
		return sessionLifetimeWithoutRemember
	}
	return p.auth.Options.Session.ExpiresIn
}

func (p *Plugin) checkPasswordPolicy(password string) error {
	policy := p.auth.Options.EmailAndPassword
	if len(password) < policy.MinPasswordLength {
		return auth.ErrBadRequest(CodePasswordTooShort, "Password is too short")
	}
	if len(password) > policy.MaxPasswordLength {
		return auth.ErrBadRequest(CodePasswordTooLong, "Password is too long")
	}
	return nil
}
