// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package twofactor adds a second authentication factor after password
// sign-in: TOTP authenticator apps, emailed one-time codes, and single-use
// backup codes. A sign-in hook intercepts fresh sessions of enrolled users
// and holds them until a factor is verified, unless the device is trusted.
package twofactor

import (
	"context"
	"time"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/otp"
)

// PluginID is the registry key.
const PluginID = "two-factor"

// Error codes.
const (
	CodeInvalidCode         = "INVALID_CODE"
	CodeTwoFactorNotEnabled = "TWO_FACTOR_NOT_ENABLED"
	CodeTwoFactorExpired    = "TWO_FACTOR_EXPIRED"
	CodeInvalidPassword     = "INVALID_PASSWORD"
	CodeCredentialNotFound  = "CREDENTIAL_ACCOUNT_NOT_FOUND"
)

// Trusted-device storage strategies.
const (
	TrustInCookie   = "cookie"
	TrustInDatabase = "database"
)

// otpPurpose namespaces emailed sign-in codes in the verification table.
const otpPurpose = "sign-in"

const (
	defaultPeriod     = 30
	defaultDigits     = 6
	defaultPendingTTL = 10 * time.Minute
	defaultTrustTTL   = 30 * 24 * time.Hour
	backupCodeCount   = 10
	backupCodeLength  = 10
)

// OTPSender delivers emailed one-time codes.
type OTPSender interface {
	SendOTP(ctx context.Context, user *core.User, code string) error
}

// Options configures the plugin. The zero value works for development.
type Options struct {
	// Issuer names this service in authenticator apps. Defaults to AppName.
	Issuer string

	// Digits is the TOTP and email code length: 6 or 8.
	Digits int

	// Period is the TOTP step in seconds.
	Period uint

	// OTP delivers emailed codes. Defaults to logging the code, which is
	// only useful in development.
	OTP OTPSender

	// OTPTTL bounds emailed codes. Defaults to 5 minutes.
	OTPTTL time.Duration

	// TrustedDeviceStorage selects where device trust lives: "cookie"
	// (default, self-contained HMAC) or "database" (revocable rows).
	TrustedDeviceStorage string

	// TrustedDeviceTTL is the sliding trust window. Defaults to 30 days.
	TrustedDeviceTTL time.Duration

	// PendingTTL bounds the window between password sign-in and factor
	// verification. Defaults to 10 minutes.
	PendingTTL time.Duration
}

// Plugin implements auth.Plugin.
type Plugin struct {
	opts  Options
	auth  *auth.Context
	codes *otp.Codes
}

// New returns the two-factor plugin.
func New(opts Options) *Plugin {
	return &Plugin{opts: opts}
}

// ID implements auth.Plugin.
func (p *Plugin) ID() string { return PluginID }

// Init implements auth.Plugin.
func (p *Plugin) Init(ctx *auth.Context) (*auth.OptionsDelta, error) {
	p.auth = ctx
	if p.opts.Issuer == "" {
		p.opts.Issuer = ctx.Options.AppName
	}
	if p.opts.Digits != 8 {
		p.opts.Digits = defaultDigits
	}
	if p.opts.Period == 0 {
		p.opts.Period = defaultPeriod
	}
	if p.opts.TrustedDeviceStorage == "" {
		p.opts.TrustedDeviceStorage = TrustInCookie
	}
	if p.opts.TrustedDeviceTTL <= 0 {
		p.opts.TrustedDeviceTTL = defaultTrustTTL
	}
	if p.opts.PendingTTL <= 0 {
		p.opts.PendingTTL = defaultPendingTTL
	}
	if p.opts.OTP == nil {
		p.opts.OTP = &logSender{logger: ctx.Logger}
	}

	codeOpts := []otp.Option{otp.WithDigits(p.opts.Digits)}
	if p.opts.OTPTTL > 0 {
		codeOpts = append(codeOpts, otp.WithTTL(p.opts.OTPTTL))
	}
	p.codes = otp.New(ctx.Store, codeOpts...)
	return nil, nil
}

// Endpoints implements auth.Plugin.
func (p *Plugin) Endpoints() []*auth.Endpoint {
	enable := auth.Post("/two-factor/enable", p.enable)
	enable.Name = "two-factor.enable"
	enable.RequireSession = true

	disable := auth.Post("/two-factor/disable", p.disable)
	disable.Name = "two-factor.disable"
	disable.RequireSession = true

	regen := auth.Post("/two-factor/generate-backup-codes", p.generateBackupCodes)
	regen.Name = "two-factor.generate-backup-codes"
	regen.RequireSession = true

	verifyTOTP := auth.Post("/two-factor/verify-totp", p.verifyTOTP)
	verifyTOTP.Name = "two-factor.verify-totp"

	verifyBackup := auth.Post("/two-factor/verify-backup-code", p.verifyBackupCode)
	verifyBackup.Name = "two-factor.verify-backup-code"

	sendOTP := auth.Post("/two-factor/send-otp", p.sendOTP)
	sendOTP.Name = "two-factor.send-otp"

	verifyOTP := auth.Post("/two-factor/verify-otp", p.verifyOTP)
	verifyOTP.Name = "two-factor.verify-otp"

	return []*auth.Endpoint{enable, disable, regen, verifyTOTP, verifyBackup, sendOTP, verifyOTP}
}

// Hooks implements auth.Plugin: the sign-in gate runs after every handler
// except the plugin's own verify endpoints.
func (p *Plugin) Hooks() ([]auth.Hook, []auth.AfterHook) {
	return nil, []auth.AfterHook{{
		Match: func(r *auth.Request) bool { return !isOwnPath(r.Path()) },
		Run:   p.gate,
	}}
}

// Schema implements auth.Plugin.
func (p *Plugin) Schema() []core.Table {
	return []core.Table{
		{Model: core.ModelUser, Fields: []core.Field{
			{Name: "twoFactorEnabled", Type: core.FieldBoolean},
		}},
		{Model: core.ModelTwoFactor, Fields: []core.Field{
			{Name: "userId", Type: core.FieldString, Required: true, Unique: true, Ref: &core.Reference{Model: core.ModelUser, Field: "id", OnDelete: "cascade"}},
			{Name: "secret", Type: core.FieldString, Required: true},
			{Name: "backupCodes", Type: core.FieldString, Required: true},
		}},
		{Model: core.ModelTrustedDevice, Fields: []core.Field{
			{Name: "userId", Type: core.FieldString, Required: true, Ref: &core.Reference{Model: core.ModelUser, Field: "id", OnDelete: "cascade"}},
			{Name: "deviceId", Type: core.FieldString, Required: true, Unique: true},
			{Name: "userAgent", Type: core.FieldString},
			{Name: "expiresAt", Type: core.FieldDate, Required: true},
			{Name: "createdAt", Type: core.FieldDate, Required: true},
		}},
	}
}

// ErrorCodes implements auth.Plugin.
func (p *Plugin) ErrorCodes() map[string]string {
	return map[string]string{
		CodeInvalidCode:         "Invalid code",
		CodeTwoFactorNotEnabled: "Two-factor authentication is not enabled",
		CodeTwoFactorExpired:    "Two-factor verification expired. Sign in again",
		CodeInvalidPassword:     "Invalid password",
		CodeCredentialNotFound:  "No credential account found",
	}
}

// logSender is the development OTPSender.
type logSender struct {
	logger interface {
		Info(msg string, args ...any)
	}
}

func (s *logSender) SendOTP(_ context.Context, user *core.User, code string) error {
	s.logger.Info("two-factor code issued", "email", user.Email, "code", code)
	return nil
}
