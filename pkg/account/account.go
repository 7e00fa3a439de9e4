// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package account implements the credential surface: email/password sign-up
// and sign-in, session introspection and revocation, profile updates, email
// verification, and password reset.
package account

import (
	"context"
	"net/url"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// PluginID registers the plugin.
const PluginID = "account"

// Stable error codes contributed by this plugin.
const (
	CodeUserAlreadyExists     = "USER_ALREADY_EXISTS"
	CodeInvalidCredentials    = "INVALID_EMAIL_OR_PASSWORD"
	CodeEmailNotVerified      = "EMAIL_NOT_VERIFIED"
	CodePasswordTooShort      = "PASSWORD_TOO_SHORT"
	CodePasswordTooLong       = "PASSWORD_TOO_LONG"
	CodeInvalidToken          = "INVALID_TOKEN"
	CodeInvalidPassword       = "INVALID_PASSWORD"
	CodeSessionNotFound       = "SESSION_NOT_FOUND"
	CodeCredentialNotFound    = "CREDENTIAL_ACCOUNT_NOT_FOUND"
	CodeEmailPasswordDisabled = "EMAIL_PASSWORD_DISABLED"
	CodeSameEmail             = "EMAIL_IS_THE_SAME"
)

// Verification identifier prefixes. The token is the random part; prefixing
// keeps the namespaces disjoint in the shared verification table.
const (
	verifyEmailPrefix   = "email-verification-"
	resetPasswordPrefix = "reset-password-"
	changeEmailPrefix   = "change-email-"
)

// EmailSender delivers account emails. Delivery infrastructure is the
// embedding application's concern; the default sender only logs.
type EmailSender interface {
	// SendVerification delivers the address-verification link.
	SendVerification(ctx context.Context, user *core.User, token, verifyURL string) error
	// SendPasswordReset delivers the password-reset link.
	SendPasswordReset(ctx context.Context, user *core.User, token, resetURL string) error
	// SendChangeEmailConfirmation asks the CURRENT address to approve a
	// change to newEmail.
	SendChangeEmailConfirmation(ctx context.Context, user *core.User, newEmail, token, confirmURL string) error
}

// Options tunes the account plugin.
type Options struct {
	// Email delivers verification and reset messages. Defaults to a sender
	// that logs the links, which is enough for development.
	Email EmailSender
	// VerificationTTL bounds email-verification and change-email tokens.
	// Default 1 hour.
	VerificationTTL time.Duration
	// ResetPasswordTTL bounds reset tokens. Default 1 hour.
	ResetPasswordTTL time.Duration
}

// Plugin is the account plugin. Construct with New.
type Plugin struct {
	opts Options
	auth *auth.Context

	// dummyHash keeps credential verification constant-work when the email
	// is unknown, so response timing does not reveal which addresses exist.
	dummyHash string
}

// New builds the account plugin.
func New(opts Options) *Plugin {
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = time.Hour
	}
	if opts.ResetPasswordTTL <= 0 {
		opts.ResetPasswordTTL = time.Hour
	}
	return &Plugin{opts: opts}
}

// ID implements auth.Plugin.
func (p *Plugin) ID() string { return PluginID }

// Init implements auth.Plugin.
func (p *Plugin) Init(ctx *auth.Context) (*auth.OptionsDelta, error) {
	p.auth = ctx
	if p.opts.Email == nil {
		p.opts.Email = &logSender{logger: ctx.Logger}
	}
	hash, err := ctx.Hasher.Hash("better-auth-timing-equalizer")
	if err != nil {
		return nil, err
	}
	p.dummyHash = hash
	return nil, nil
}

// Endpoints implements auth.Plugin.
func (p *Plugin) Endpoints() []*auth.Endpoint {
	if p.disabled() {
		return p.sessionEndpoints()
	}
	return append(p.credentialEndpoints(), p.sessionEndpoints()...)
}

// Hooks implements auth.Plugin.
func (p *Plugin) Hooks() ([]auth.Hook, []auth.AfterHook) { return nil, nil }

// Schema implements auth.Plugin. The plugin stores everything in core tables
// and only extends the user model with the optional username column.
func (p *Plugin) Schema() []core.Table {
	return []core.Table{
		{Model: core.ModelUser, Fields: []core.Field{
			{Name: "username", Type: core.FieldString, Unique: true},
		}},
	}
}

// ErrorCodes implements auth.Plugin.
func (p *Plugin) ErrorCodes() map[string]string {
	return map[string]string{
		CodeUserAlreadyExists:     "User already exists",
		CodeInvalidCredentials:    "Invalid email or password",
		CodeEmailNotVerified:      "Email is not verified",
		CodePasswordTooShort:      "Password is too short",
		CodePasswordTooLong:       "Password is too long",
		CodeInvalidToken:          "Invalid or expired token",
		CodeInvalidPassword:       "Invalid password",
		CodeSessionNotFound:       "Session not found",
		CodeCredentialNotFound:    "No credential account found",
		CodeEmailPasswordDisabled: "Email and password sign-in is disabled",
		CodeSameEmail:             "The new email matches the current one",
	}
}

func (p *Plugin) disabled() bool {
	return p.auth != nil && p.auth.Options.EmailAndPassword.Disabled
}

func (p *Plugin) credentialEndpoints() []*auth.Endpoint {
	signUp := auth.Post("/sign-up/email", p.signUpEmail)
	signUp.Name = "sign-up-email"

	signIn := auth.Post("/sign-in/email", p.signInEmail)
	signIn.Name = "sign-in-email"

	changeEmail := auth.Post("/change-email", p.changeEmail)
	changeEmail.Name = "change-email"
	changeEmail.RequireSession = true

	changePassword := auth.Post("/change-password", p.changePassword)
	changePassword.Name = "change-password"
	changePassword.RequireSession = true

	verifyEmail := auth.Get("/verify-email", p.verifyEmail)
	verifyEmail.Name = "verify-email"

	sendVerification := auth.Post("/send-verification-email", p.sendVerificationEmail)
	sendVerification.Name = "send-verification-email"

	forgetPassword := auth.Post("/forget-password", p.forgetPassword)
	forgetPassword.Name = "forget-password"

	resetPassword := auth.Post("/reset-password", p.resetPassword)
	resetPassword.Name = "reset-password"

	return []*auth.Endpoint{
		signUp, signIn, changeEmail, changePassword,
		verifyEmail, sendVerification, forgetPassword, resetPassword,
	}
}

func (p *Plugin) sessionEndpoints() []*auth.Endpoint {
	signOut := auth.Post("/sign-out", p.signOut)
	signOut.Name = "sign-out"

	getSession := auth.Get("/get-session", p.getSession)
	getSession.Name = "get-session"

	updateUser := auth.Post("/update-user", p.updateUser)
	updateUser.Name = "update-user"
	updateUser.RequireSession = true

	listSessions := auth.Get("/list-sessions", p.listSessions)
	listSessions.Name = "list-sessions"
	listSessions.RequireSession = true

	revokeSession := auth.Post("/revoke-session", p.revokeSession)
	revokeSession.Name = "revoke-session"
	revokeSession.RequireSession = true

	revokeSessions := auth.Post("/revoke-sessions", p.revokeSessions)
	revokeSessions.Name = "revoke-sessions"
	revokeSessions.RequireSession = true

	revokeOthers := auth.Post("/revoke-other-sessions", p.revokeOtherSessions)
	revokeOthers.Name = "revoke-other-sessions"
	revokeOthers.RequireSession = true

	return []*auth.Endpoint{
		signOut, getSession, updateUser,
		listSessions, revokeSession, revokeSessions, revokeOthers,
	}
}

// emailURL builds the absolute URL a token email points at.
func (p *Plugin) emailURL(path, token, callbackURL string) string {
	q := url.Values{"token": {token}}
	if callbackURL != "" {
		q.Set("callbackURL", callbackURL)
	}
	return p.auth.URL(path) + "?" + q.Encode()
}

// logSender is the development EmailSender: it logs instead of delivering.
type logSender struct {
	logger interface {
		Info(msg string, args ...any)
	}
}

func (s *logSender) SendVerification(_ context.Context, user *core.User, _, verifyURL string) error {
	s.logger.Info("verification email (no sender configured)", "email", user.Email, "url", verifyURL)
	return nil
}

func (s *logSender) SendPasswordReset(_ context.Context, user *core.User, _, resetURL string) error {
	s.logger.Info("password reset email (no sender configured)", "email", user.Email, "url", resetURL)
	return nil
}

func (s *logSender) SendChangeEmailConfirmation(_ context.Context, user *core.User, newEmail, _, confirmURL string) error {
	s.logger.Info("change-email confirmation (no sender configured)", "email", user.Email, "newEmail", newEmail, "url", confirmURL)
	return nil
}
