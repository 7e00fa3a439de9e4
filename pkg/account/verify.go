// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"encoding/json"
	"net/url"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// tokenClaims is the JSON stored as a verification value for email tokens.
type tokenClaims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email,omitempty"`
	NewEmail string `json:"newEmail,omitempty"`
}

// sendVerification mints an email-verification token and delivers the link.
func (p *Plugin) sendVerification(r *auth.Request, user *core.User, callbackURL string) error {
	token := crypto.NewToken()
	claims, err := json.Marshal(tokenClaims{UserID: user.ID, Email: user.Email})
	if err != nil {
		return err
	}
	if _, err := p.auth.Store.CreateVerification(r.Context(), verifyEmailPrefix+token, string(claims), p.opts.VerificationTTL); err != nil {
		return err
	}
	return p.opts.Email.SendVerification(r.Context(), user, token, p.emailURL("/verify-email", token, callbackURL))
}

func (p *Plugin) verifyEmail(r *auth.Request) (any, error) {
	token := r.Query("token")
	callbackURL := r.Query("callbackURL")
	if err := p.auth.ValidateCallbackURL(callbackURL); err != nil {
		return nil, err
	}
	if token == "" {
		return p.verifyFailure(callbackURL)
	}

	ctx := r.Context()
	record, err := p.auth.Store.ConsumeVerification(ctx, verifyEmailPrefix+token)
	if err != nil {
		return nil, err
	}
	isChange := false
	if record == nil {
		// Change-email approvals arrive at the same endpoint.
		record, err = p.auth.Store.ConsumeVerification(ctx, changeEmailPrefix+token)
		if err != nil {
			return nil, err
		}
		isChange = record != nil
	}
	if record == nil {
		return p.verifyFailure(callbackURL)
	}

	var claims tokenClaims
	if err := json.Unmarshal([]byte(record.Value), &claims); err != nil {
		return p.verifyFailure(callbackURL)
	}
	user, err := p.auth.Store.FindUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return p.verifyFailure(callbackURL)
	}

	if isChange {
		return p.finishEmailChange(r, user, claims, callbackURL)
	}

	// The token was minted for the address it is verifying; an address
	// changed since then makes it stale.
	if claims.Email != user.Email {
		return p.verifyFailure(callbackURL)
	}
	updated, err := p.auth.Store.UpdateUser(ctx, user.ID, map[string]any{"emailVerified": true})
	if err != nil {
		return nil, err
	}

	if callbackURL != "" {
		return auth.Redirect{URL: callbackURL}, nil
	}
	return map[string]any{"user": updated, "status": true}, nil
}

// finishEmailChange applies an approved change: the address flips and starts
// unverified, and a fresh verification goes out to it.
func (p *Plugin) finishEmailChange(r *auth.Request, user *core.User, claims tokenClaims, callbackURL string) (any, error) {
	ctx := r.Context()
	taken, err := p.auth.Store.FindUserByEmail(ctx, claims.NewEmail)
	if err != nil {
		return nil, err
	}
	if taken != nil && taken.ID != user.ID {
		return p.verifyFailure(callbackURL)
	}

	updated, err := p.auth.Store.UpdateUser(ctx, user.ID, map[string]any{
		"email":         claims.NewEmail,
		"emailVerified": false,
	})
	if err != nil {
		return nil, err
	}
	if err := p.sendVerification(r, updated, callbackURL); err != nil {
		return nil, err
	}

	if callbackURL != "" {
		return auth.Redirect{URL: callbackURL}, nil
	}
	return map[string]any{"user": updated, "status": true}, nil
}

// verifyFailure reports an invalid or expired token, as a redirect when the
// caller supplied somewhere to land.
func (p *Plugin) verifyFailure(callbackURL string) (any, error) {
	if callbackURL != "" {
		return auth.Redirect{URL: appendQuery(callbackURL, "error", "invalid_token")}, nil
	}
	return nil, auth.ErrBadRequest(CodeInvalidToken, "Invalid or expired token")
}

type sendVerificationRequest struct {
	Email       string `json:"email" validate:"required,email"`
	CallbackURL string `json:"callbackURL"`
}

func (p *Plugin) sendVerificationEmail(r *auth.Request) (any, error) {
	req, err := auth.Bind[sendVerificationRequest](r)
	if err != nil {
		return nil, err
	}
	if err := p.auth.ValidateCallbackURL(req.CallbackURL); err != nil {
		return nil, err
	}

	user, err := p.auth.Store.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		return nil, err
	}
	// Whether the address exists is not disclosed.
	if user != nil && !user.EmailVerified {
		if err := p.sendVerification(r, user, req.CallbackURL); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

type forgetPasswordRequest struct {
	Email      string `json:"email" validate:"required,email"`
	RedirectTo string `json:"redirectTo"`
}

func (p *Plugin) forgetPassword(r *auth.Request) (any, error) {
	req, err := auth.Bind[forgetPasswordRequest](r)
	if err != nil {
		return nil, err
	}
	if err := p.auth.ValidateCallbackURL(req.RedirectTo); err != nil {
		return nil, err
	}

	user, err := p.auth.Store.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Same response as success; the address is not disclosed.
		return nil, nil
	}

	token := crypto.NewToken()
	claims, err := json.Marshal(tokenClaims{UserID: user.ID})
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.CreateVerification(r.Context(), resetPasswordPrefix+token, string(claims), p.opts.ResetPasswordTTL); err != nil {
		return nil, err
	}

	resetURL := p.emailURL("/reset-password", token, "")
	if req.RedirectTo != "" {
		resetURL = appendQuery(req.RedirectTo, "token", token)
	}
	if err := p.opts.Email.SendPasswordReset(r.Context(), user, token, resetURL); err != nil {
		return nil, err
	}
	return nil, nil
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

func (p *Plugin) resetPassword(r *auth.Request) (any, error) {
	req, err := auth.Bind[resetPasswordRequest](r)
	if err != nil {
		return nil, err
	}
	if err := p.checkPasswordPolicy(req.NewPassword); err != nil {
		return nil, err
	}

	ctx := r.Context()
	record, err := p.auth.Store.ConsumeVerification(ctx, resetPasswordPrefix+req.Token)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, auth.ErrBadRequest(CodeInvalidToken, "Invalid or expired token")
	}
	var claims tokenClaims
	if err := json.Unmarshal([]byte(record.Value), &claims); err != nil {
		return nil, auth.ErrBadRequest(CodeInvalidToken, "Invalid or expired token")
	}

	account, err := p.auth.Store.FindUserAccount(ctx, claims.UserID, core.ProviderCredential)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, auth.ErrBadRequest(CodeCredentialNotFound, "No credential account found")
	}

	hash, err := p.auth.Hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.UpdateAccount(ctx, account.ID, map[string]any{"password": hash}); err != nil {
		return nil, err
	}

	if p.auth.Options.EmailAndPassword.RevokeSessionsOnPasswordReset {
		if _, err := p.auth.Store.DeleteSessions(ctx, claims.UserID); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// appendQuery adds one query parameter to a URL, tolerating existing query
// strings.
func appendQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
