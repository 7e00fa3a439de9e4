// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package social

import (
	"net/url"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/store"
)

// callback is the provider's return leg. Every failure redirects: the caller
// is a browser mid-navigation, not an API client, so JSON errors would strand
// the user on a blank page.
func (p *Plugin) callback(r *auth.Request) (any, error) {
	state := callbackParam(r, "state")
	payload, ok := p.consumeState(r, state)
	if !ok {
		return redirectError(p.auth.BaseURL+"/", errStateMismatch, ""), nil
	}

	onError := firstNonEmpty(payload.ErrorURL, payload.CallbackURL, p.auth.BaseURL+"/")
	target := firstNonEmpty(payload.CallbackURL, p.auth.BaseURL+"/")

	if upstreamErr := callbackParam(r, "error"); upstreamErr != "" {
		return redirectError(onError, upstreamErr, callbackParam(r, "error_description")), nil
	}

	provider := p.provider(r.Param("provider"))
	if provider == nil || provider.ID() != payload.ProviderID {
		return redirectError(onError, errStateMismatch, ""), nil
	}
	code := callbackParam(r, "code")
	if code == "" {
		return redirectError(onError, errCodeExchange, "missing authorization code"), nil
	}

	tokens, identity, err := provider.Exchange(r.Context(), code, payload.CodeVerifier, payload.Nonce)
	if err != nil || identity.Subject == "" {
		p.auth.Logger.Warn("social code exchange failed", "provider", payload.ProviderID, "error", err)
		return redirectError(onError, errCodeExchange, ""), nil
	}

	if payload.LinkUserID != "" {
		return p.finishLink(r, provider, payload, tokens, identity, target, onError)
	}
	return p.finishSignIn(r, provider, payload, tokens, identity, target, onError)
}

// finishSignIn signs the upstream identity into a local user: an already
// linked account signs straight in, a verified matching email links
// implicitly, anything else creates a user (unless sign-up is explicit-only).
func (p *Plugin) finishSignIn(
	r *auth.Request,
	provider Provider,
	payload *statePayload,
	tokens *Tokens,
	identity *Identity,
	target, onError string,
) (any, error) {
	ctx := r.Context()
	account, err := p.auth.Store.FindAccount(ctx, provider.ID(), identity.Subject)
	if err != nil {
		return nil, err
	}

	var user *core.User
	isNew := false
	switch {
	case account != nil:
		user, err = p.auth.Store.FindUserByID(ctx, account.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return redirectError(onError, errNotLinked, ""), nil
		}
		if err := p.refreshAccountTokens(r, account, tokens); err != nil {
			return nil, err
		}

	default:
		if identity.Email == "" {
			return redirectError(onError, errEmailMissing, ""), nil
		}
		user, err = p.auth.Store.FindUserByEmail(ctx, identity.Email)
		if err != nil {
			return nil, err
		}
		switch {
		case user != nil:
			// An existing local user with this address: attach the provider
			// only when it vouches for the email, otherwise an attacker who
			// controls an unverified upstream account could take over.
			if p.opts.DisableImplicitLinking || !identity.EmailVerified {
				return redirectError(onError, errNotLinked, ""), nil
			}
		case p.opts.DisableImplicitSignUp && !payload.RequestSignUp:
			return redirectError(onError, errSignUpDisabled, ""), nil
		default:
			user, err = p.auth.Store.CreateUser(ctx, &core.User{
				Email:         identity.Email,
				Name:          identity.Name,
				Image:         identity.Image,
				EmailVerified: identity.EmailVerified,
			})
			if err != nil {
				return nil, err
			}
			isNew = true
		}
		if err := p.linkAccount(r, user.ID, provider.ID(), identity.Subject, tokens); err != nil {
			return nil, err
		}
	}

	if _, err := p.auth.IssueSession(r, user, store.SessionOpts{}); err != nil {
		return nil, err
	}
	if isNew && payload.NewUserURL != "" {
		target = payload.NewUserURL
	}
	return auth.Redirect{URL: target}, nil
}

// finishLink attaches the upstream account to the signed-in user who started
// the link flow. No session is issued; one already exists.
func (p *Plugin) finishLink(
	r *auth.Request,
	provider Provider,
	payload *statePayload,
	tokens *Tokens,
	identity *Identity,
	target, onError string,
) (any, error) {
	existing, err := p.auth.Store.FindAccount(r.Context(), provider.ID(), identity.Subject)
	if err != nil {
		return nil, err
	}
	switch {
	case existing != nil && existing.UserID != payload.LinkUserID:
		return redirectError(onError, errAlreadyLinked, ""), nil
	case existing != nil:
		if err := p.refreshAccountTokens(r, existing, tokens); err != nil {
			return nil, err
		}
	default:
		if err := p.linkAccount(r, payload.LinkUserID, provider.ID(), identity.Subject, tokens); err != nil {
			return nil, err
		}
	}
	return auth.Redirect{URL: target}, nil
}

// linkAccount inserts the account row with sealed tokens.
func (p *Plugin) linkAccount(r *auth.Request, userID, providerID, subject string, tokens *Tokens) error {
	account := &core.Account{
		UserID:     userID,
		ProviderID: providerID,
		AccountID:  subject,
		Scope:      tokens.Scope,
	}
	if !tokens.ExpiresAt.IsZero() {
		expires := tokens.ExpiresAt.UTC()
		account.AccessTokenExpiresAt = &expires
	}
	var err error
	if tokens.AccessToken != "" {
		if account.AccessToken, err = p.sealToken(tokens.AccessToken); err != nil {
			return err
		}
	}
	if tokens.RefreshToken != "" {
		if account.RefreshToken, err = p.sealToken(tokens.RefreshToken); err != nil {
			return err
		}
	}
	if tokens.IDToken != "" {
		if account.IDToken, err = p.sealToken(tokens.IDToken); err != nil {
			return err
		}
	}
	_, err = p.auth.Store.LinkAccount(r.Context(), account)
	return err
}

// refreshAccountTokens overwrites the stored tokens with the fresh grant.
// Absent values keep their stored predecessors; providers like Google only
// return a refresh token on the first consent.
func (p *Plugin) refreshAccountTokens(r *auth.Request, account *core.Account, tokens *Tokens) error {
	update, err := p.tokenColumns(tokens)
	if err != nil {
		return err
	}
	if len(update) == 0 {
		return nil
	}
	_, err = p.auth.Store.UpdateAccount(r.Context(), account.ID, update)
	return err
}

// tokenColumns builds the sealed partial update for an account row.
func (p *Plugin) tokenColumns(tokens *Tokens) (map[string]any, error) {
	update := make(map[string]any)
	var err error
	if tokens.AccessToken != "" {
		if update["accessToken"], err = p.sealToken(tokens.AccessToken); err != nil {
			return nil, err
		}
	}
	if tokens.RefreshToken != "" {
		if update["refreshToken"], err = p.sealToken(tokens.RefreshToken); err != nil {
			return nil, err
		}
	}
	if tokens.IDToken != "" {
		if update["idToken"], err = p.sealToken(tokens.IDToken); err != nil {
			return nil, err
		}
	}
	if !tokens.ExpiresAt.IsZero() {
		update["accessTokenExpiresAt"] = tokens.ExpiresAt.UTC()
	}
	if tokens.Scope != "" {
		update["scope"] = tokens.Scope
	}
	return update, nil
}

// callbackParam reads a callback parameter from the query string (GET) or
// the form body (response_mode=form_post).
func callbackParam(r *auth.Request, name string) string {
	if v := r.Query(name); v != "" {
		return v
	}
	return r.Form().Get(name)
}

// redirectError sends the browser to the error target with OAuth-style
// error parameters.
func redirectError(target, code, description string) auth.Redirect {
	u, err := url.Parse(target)
	if err != nil {
		return auth.Redirect{URL: target}
	}
	q := u.Query()
	q.Set("error", code)
	if description != "" {
		q.Set("error_description", description)
	}
	u.RawQuery = q.Encode()
	return auth.Redirect{URL: u.String()}
}
