// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"encoding/json"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

type updateUserRequest struct {
	Name     *string `json:"name" validate:"max=100"`
	Image    *string `json:"image"`
	Username *string `json:"username" validate:"max=100"`
}

func (p *Plugin) updateUser(r *auth.Request) (any, error) {
	req, err := auth.Bind[updateUserRequest](r)
	if err != nil {
		return nil, err
	}

	update := map[string]any{}
	if req.Name != nil {
		update["name"] = *req.Name
	}
	if req.Image != nil {
		update["image"] = *req.Image
	}
	if req.Username != nil {
		update["username"] = *req.Username
	}
	if len(update) == 0 {
		return nil, auth.ErrBadRequest(auth.CodeInvalidRequest, "Nothing to update")
	}

	user, err := p.auth.Store.UpdateUser(r.Context(), r.Session().User.ID, update)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": user, "status": true}, nil
}

type changeEmailRequest struct {
	NewEmail    string `json:"newEmail" validate:"required,email"`
	CallbackURL string `json:"callbackURL"`
}

func (p *Plugin) changeEmail(r *auth.Request) (any, error) {
	req, err := auth.Bind[changeEmailRequest](r)
	if err != nil {
		return nil, err
	}
	if err := p.auth.ValidateCallbackURL(req.CallbackURL); err != nil {
		return nil, err
	}

	ctx := r.Context()
	user := r.Session().User
	if req.NewEmail == user.Email {
		return nil, auth.ErrBadRequest(CodeSameEmail, "The new email matches the current one")
	}
	taken, err := p.auth.Store.FindUserByEmail(ctx, req.NewEmail)
	if err != nil {
		return nil, err
	}
	if taken != nil {
		return nil, auth.ErrConflict(CodeUserAlreadyExists, "User already exists")
	}

	// An unverified address never guarded anything, so it changes in place.
	if !user.EmailVerified {
		updated, err := p.auth.Store.UpdateUser(ctx, user.ID, map[string]any{"email": req.NewEmail})
		if err != nil {
			return nil, err
		}
		if p.auth.Options.EmailAndPassword.RequireEmailVerification {
			if err := p.sendVerification(r, updated, req.CallbackURL); err != nil {
				return nil, err
			}
		}
		return map[string]any{"user": updated, "status": true}, nil
	}

	// A verified address must approve its own replacement.
	token := crypto.NewToken()
	claims, err := json.Marshal(tokenClaims{UserID: user.ID, NewEmail: req.NewEmail})
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.CreateVerification(ctx, changeEmailPrefix+token, string(claims), p.opts.VerificationTTL); err != nil {
		return nil, err
	}
	confirmURL := p.emailURL("/verify-email", token, req.CallbackURL)
	if err := p.opts.Email.SendChangeEmailConfirmation(ctx, user, req.NewEmail, token, confirmURL); err != nil {
		return nil, err
	}
	return nil, nil
}

type changePasswordRequest struct {
	CurrentPassword     string `json:"currentPassword" validate:"required"`
	NewPassword         string `json:"newPassword" validate:"required"`
	RevokeOtherSessions bool   `json:"revokeOtherSessions"`
}

func (p *Plugin) changePassword(r *auth.Request) (any, error) {
	req, err := auth.Bind[changePasswordRequest](r)
	if err != nil {
		return nil, err
	}
	if err := p.checkPasswordPolicy(req.NewPassword); err != nil {
		return nil, err
	}

	ctx := r.Context()
	session := r.Session()
	account, err := p.auth.Store.FindUserAccount(ctx, session.User.ID, core.ProviderCredential)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, auth.ErrBadRequest(CodeCredentialNotFound, "No credential account found")
	}
	if !p.auth.Hasher.Verify(req.CurrentPassword, account.Password) {
		return nil, auth.ErrUnauthorized(CodeInvalidPassword, "Invalid password")
	}

	hash, err := p.auth.Hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.UpdateAccount(ctx, account.ID, map[string]any{"password": hash}); err != nil {
		return nil, err
	}

	if req.RevokeOtherSessions {
		if err := p.revokeAllButCurrent(r); err != nil {
			return nil, err
		}
	}
	return map[string]any{"user": session.User, "status": true}, nil
}
