// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// accountSummary is the public view of a linked account. Tokens never leave
// the row here; get-access-token is the only endpoint that opens them.
type accountSummary struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"providerId"`
	AccountID  string    `json:"accountId"`
	Scopes     []string  `json:"scopes"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (p *Plugin) listAccounts(r *auth.Request) (any, error) {
	accounts, err := p.auth.Store.ListAccounts(r.Context(), r.Session().User.ID)
	if err != nil {
		return nil, err
	}
	summaries := make([]accountSummary, 0, len(accounts))
	for _, account := range accounts {
		summaries = append(summaries, accountSummary{
			ID:         account.ID,
			ProviderID: account.ProviderID,
			AccountID:  account.AccountID,
			Scopes:     splitScopes(account.Scope),
			CreatedAt:  account.CreatedAt,
			UpdatedAt:  account.UpdatedAt,
		})
	}
	return summaries, nil
}

type unlinkRequest struct {
	ProviderID string `json:"providerId" validate:"required"`
	AccountID  string `json:"accountId"`
}

// unlinkAccount removes a linked account, refusing to remove the user's last
// one: that would leave them with no way back in.
func (p *Plugin) unlinkAccount(r *auth.Request) (any, error) {
	req, err := auth.Bind[unlinkRequest](r)
	if err != nil {
		return nil, err
	}
	accounts, err := p.auth.Store.ListAccounts(r.Context(), r.Session().User.ID)
	if err != nil {
		return nil, err
	}

	var match *core.Account
	for _, account := range accounts {
		if account.ProviderID != req.ProviderID {
			continue
		}
		if req.AccountID != "" && account.AccountID != req.AccountID {
			continue
		}
		match = account
		break
	}
	if match == nil {
		return nil, auth.ErrNotFound(CodeAccountNotFound, "Account not found")
	}
	if len(accounts) == 1 {
		return nil, auth.ErrBadRequest(CodeLastAccount, "You can't unlink your last account")
	}
	if err := p.auth.Store.DeleteAccount(r.Context(), match.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

type accessTokenRequest struct {
	ProviderID string `json:"providerId" validate:"required"`
	AccountID  string `json:"accountId"`
}

// getAccessToken opens the stored provider tokens for the signed-in user,
// refreshing them first when the access token has expired and the provider
// supports refresh.
func (p *Plugin) getAccessToken(r *auth.Request) (any, error) {
	req, err := auth.Bind[accessTokenRequest](r)
	if err != nil {
		return nil, err
	}
	userID := r.Session().User.ID

	var account *core.Account
	if req.AccountID != "" {
		account, err = p.auth.Store.FindAccount(r.Context(), req.ProviderID, req.AccountID)
		if err != nil {
			return nil, err
		}
		if account != nil && account.UserID != userID {
			account = nil
		}
	} else {
		account, err = p.auth.Store.FindUserAccount(r.Context(), userID, req.ProviderID)
		if err != nil {
			return nil, err
		}
	}
	if account == nil {
		return nil, auth.ErrNotFound(CodeAccountNotFound, "Account not found")
	}

	accessToken, err := p.openToken(account.AccessToken)
	if err != nil {
		return nil, err
	}
	expiresAt := account.AccessTokenExpiresAt
	scope := account.Scope

	if expired(expiresAt) && account.RefreshToken != "" {
		refresher, ok := p.provider(req.ProviderID).(TokenRefresher)
		if ok {
			fresh, rerr := p.refreshTokens(r, account, refresher)
			if rerr != nil {
				return nil, auth.ErrBadRequest(CodeTokenRefreshFailed, "Failed to refresh access token")
			}
			accessToken = fresh.AccessToken
			if !fresh.ExpiresAt.IsZero() {
				utc := fresh.ExpiresAt.UTC()
				expiresAt = &utc
			}
			if fresh.Scope != "" {
				scope = fresh.Scope
			}
		}
	}

	response := map[string]any{
		"accessToken": accessToken,
		"scopes":      splitScopes(scope),
	}
	if expiresAt != nil {
		response["accessTokenExpiresAt"] = expiresAt
	}
	if account.IDToken != "" {
		idToken, err := p.openToken(account.IDToken)
		if err != nil {
			return nil, err
		}
		response["idToken"] = idToken
	}
	return response, nil
}

// refreshTokens exchanges the stored refresh token and persists the result.
func (p *Plugin) refreshTokens(r *auth.Request, account *core.Account, refresher TokenRefresher) (*Tokens, error) {
	refreshToken, err := p.openToken(account.RefreshToken)
	if err != nil {
		return nil, err
	}
	fresh, err := refresher.RefreshTokens(r.Context(), refreshToken)
	if err != nil {
		return nil, err
	}
	if err := p.refreshAccountTokens(r, account, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func expired(at *time.Time) bool {
	return at != nil && time.Now().After(*at)
}

func splitScopes(scope string) []string {
	return strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
