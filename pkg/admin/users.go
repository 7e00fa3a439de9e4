// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"strconv"
	"time"

	"github.com/betterauth/betterauth/pkg/adapter"
	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

type createUserRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"`
}

// createUser provisions a user with a credential account. Admin-created
// accounts skip the email verification dance.
func (p *Plugin) createUser(r *auth.Request) (any, error) {
	req, err := auth.Bind[createUserRequest](r)
	if err != nil {
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
		Name:          req.Name,
		Email:         req.Email,
		EmailVerified: true,
		Role:          req.Role,
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
	return map[string]any{"user": user}, nil
}

// listUsers serves GET /admin/list-users. Search narrows by email or name
// with a string operator; filter adds one arbitrary field predicate;
// limit/offset paginate and total counts the unpaginated match.
func (p *Plugin) listUsers(r *auth.Request) (any, error) {
	where, err := listPredicates(r)
	if err != nil {
		return nil, err
	}

	q := adapter.Query{
		Where:  where,
		Limit:  defaultListLimit,
		SortBy: &adapter.SortBy{Field: "createdAt", Direction: adapter.SortDesc},
	}
	if v := r.Query("limit"); v != "" {
		if q.Limit, err = positiveInt(v, "limit"); err != nil {
			return nil, err
		}
	}
	if v := r.Query("offset"); v != "" {
		if q.Offset, err = positiveInt(v, "offset"); err != nil {
			return nil, err
		}
	}
	if v := r.Query("sortBy"); v != "" {
		q.SortBy.Field = v
	}
	if r.Query("sortDirection") == adapter.SortAsc {
		q.SortBy.Direction = adapter.SortAsc
	}

	ctx := r.Context()
	users, err := p.auth.Store.ListUsers(ctx, q)
	if err != nil {
		return nil, err
	}
	total, err := p.auth.Store.CountUsers(ctx, where)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"users":  users,
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
	}, nil
}

// listPredicates builds the where clause from searchValue/searchField/
// searchOperator and filterField/filterValue/filterOperator.
func listPredicates(r *auth.Request) ([]adapter.Where, error) {
	var where []adapter.Where

	if value := r.Query("searchValue"); value != "" {
		field := r.Query("searchField")
		switch field {
		case "":
			field = "email"
		case "email", "name":
		default:
			return nil, auth.ErrBadRequest(auth.CodeInvalidRequest, "searchField must be email or name")
		}
		op := r.Query("searchOperator")
		switch op {
		case "":
			op = adapter.OpContains
		case adapter.OpContains, adapter.OpStartsWith, adapter.OpEndsWith:
		default:
			return nil, auth.ErrBadRequest(auth.CodeInvalidRequest, "unknown searchOperator")
		}
		where = append(where, adapter.Where{Field: field, Operator: op, Value: value})
	}

	if field := r.Query("filterField"); field != "" {
		op := r.Query("filterOperator")
		switch op {
		case "":
			op = adapter.OpEQ
		case adapter.OpEQ, adapter.OpNE, adapter.OpLT, adapter.OpLTE, adapter.OpGT, adapter.OpGTE, adapter.OpContains:
		default:
			return nil, auth.ErrBadRequest(auth.CodeInvalidRequest, "unknown filterOperator")
		}
		// Booleans come in as strings; adapters compare typed values.
		var value any = r.Query("filterValue")
		if value == "true" || value == "false" {
			value = value == "true"
		}
		where = append(where, adapter.Where{Field: field, Operator: op, Value: value})
	}
	return where, nil
}

func positiveInt(v, name string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, auth.ErrBadRequest(auth.CodeInvalidRequest, name+" must be a non-negative integer")
	}
	return n, nil
}

type setRoleRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

func (p *Plugin) setRole(r *auth.Request) (any, error) {
	req, err := auth.Bind[setRoleRequest](r)
	if err != nil {
		return nil, err
	}
	target, err := p.findTarget(r, req.UserID)
	if err != nil {
		return nil, err
	}
	updated, err := p.auth.Store.UpdateUser(r.Context(), target.ID, map[string]any{
		"role": req.Role,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": updated}, nil
}

type setPasswordRequest struct {
	UserID      string `json:"userId" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

func (p *Plugin) setUserPassword(r *auth.Request) (any, error) {
	req, err := auth.Bind[setPasswordRequest](r)
	if err != nil {
		return nil, err
	}
	if err := p.checkPasswordPolicy(req.NewPassword); err != nil {
		return nil, err
	}
	target, err := p.findTarget(r, req.UserID)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	account, err := p.auth.Store.FindUserAccount(ctx, target.ID, core.ProviderCredential)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, auth.ErrNotFound(CodeCredentialNotFound, "No credential account found")
	}
	hash, err := p.auth.Hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.UpdateAccount(ctx, account.ID, map[string]any{
		"password": hash,
	}); err != nil {
		return nil, err
	}
	return nil, nil
}

type banUserRequest struct {
	UserID string `json:"userId" validate:"required"`
	Reason string `json:"banReason"`
	// ExpiresIn is the ban duration in seconds; zero means permanent.
	ExpiresIn int64 `json:"banExpiresIn"`
}

// banUser flags the user and revokes every session they hold. Expired bans
// are lifted lazily by the session engine.
func (p *Plugin) banUser(r *auth.Request) (any, error) {
	req, err := auth.Bind[banUserRequest](r)
	if err != nil {
		return nil, err
	}
	if req.UserID == r.Session().User.ID {
		return nil, auth.ErrBadRequest(CodeCannotBanSelf, "You cannot ban yourself")
	}
	target, err := p.findTarget(r, req.UserID)
	if err != nil {
		return nil, err
	}

	reason := req.Reason
	if reason == "" {
		reason = p.opts.DefaultBanReason
	}
	update := map[string]any{
		"banned":     true,
		"banReason":  reason,
		"banExpires": nil,
	}
	if req.ExpiresIn > 0 {
		update["banExpires"] = time.Now().UTC().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	ctx := r.Context()
	updated, err := p.auth.Store.UpdateUser(ctx, target.ID, update)
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.DeleteSessions(ctx, target.ID); err != nil {
		return nil, err
	}
	return map[string]any{"user": updated}, nil
}

type unbanUserRequest struct {
	UserID string `json:"userId" validate:"required"`
}

func (p *Plugin) unbanUser(r *auth.Request) (any, error) {
	req, err := auth.Bind[unbanUserRequest](r)
	if err != nil {
		return nil, err
	}
	target, err := p.findTarget(r, req.UserID)
	if err != nil {
		return nil, err
	}
	updated, err := p.auth.Store.UpdateUser(r.Context(), target.ID, map[string]any{
		"banned":     false,
		"banReason":  nil,
		"banExpires": nil,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": updated}, nil
}

type removeUserRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// removeUser deletes the user and everything cascading from them: sessions,
// accounts, MFA enrollment, consents, and issued tokens.
func (p *Plugin) removeUser(r *auth.Request) (any, error) {
	req, err := auth.Bind[removeUserRequest](r)
	if err != nil {
		return nil, err
	}
	if req.UserID == r.Session().User.ID {
		return nil, auth.ErrBadRequest(CodeCannotRemoveSelf, "You cannot remove yourself")
	}
	if _, err := p.findTarget(r, req.UserID); err != nil {
		return nil, err
	}
	if err := p.auth.Store.DeleteUser(r.Context(), req.UserID); err != nil {
		return nil, err
	}
	return nil, nil
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
