// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/betterauth/betterauth/pkg/adapter"
	"github.com/betterauth/betterauth/pkg/ratelimit"
)

// Defaults applied by Options.normalize.
const (
	DefaultBasePath         = "/api/auth"
	DefaultSessionExpiresIn = 7 * 24 * time.Hour
	DefaultSessionUpdateAge = 24 * time.Hour
	DefaultMinPasswordLen   = 8
	DefaultMaxPasswordLen   = 128
)

// DefaultDevSecret is used when no secret is configured outside production.
// Using it logs a warning; production startup refuses it.
const DefaultDevSecret = "better-auth-secret-1234567890-change-me"

// Secret is one version of the signing/encryption secret. Verification tries
// every configured version; signing uses the first.
type Secret struct {
	Version string
	Value   string
}

// SessionOptions tunes the session engine.
type SessionOptions struct {
	// ExpiresIn is the session lifetime. Default 7 days.
	ExpiresIn time.Duration
	// UpdateAge is how far into the lifetime a session must be before an
	// observation rolls its expiry forward. Unset defaults to 24h. An
	// explicit zero makes every observation refresh; DisableRolling is the
	// off switch.
	UpdateAge *time.Duration
	// DisableRolling turns off rolling expiry entirely.
	DisableRolling bool
}

// EmailPasswordOptions tunes the credential flows.
type EmailPasswordOptions struct {
	// Disabled removes the email/password endpoints.
	Disabled bool
	// MinPasswordLength/MaxPasswordLength bound accepted passwords.
	MinPasswordLength int
	MaxPasswordLength int
	// RequireEmailVerification blocks sign-in until the email is verified.
	RequireEmailVerification bool
	// RevokeSessionsOnPasswordReset terminates other sessions after a
	// successful password reset.
	RevokeSessionsOnPasswordReset bool
}

// RateLimitOptions tunes the sliding-window limiter.
type RateLimitOptions struct {
	// Enabled defaults to true in production environments and false
	// otherwise; set explicitly to override.
	Enabled *bool
	Window  time.Duration
	Max     int
	// Rules are custom per-path overrides, checked before the built-ins.
	Rules []ratelimit.PathRule
	// Storage selects the counter backend: "memory" (default), "database",
	// or "secondary-storage".
	Storage string
}

// AdvancedOptions collects the low-traffic knobs.
type AdvancedOptions struct {
	// CookiePrefix overrides the "better-auth" cookie name prefix.
	CookiePrefix string
	// UseSecureCookies forces the Secure attribute regardless of scheme.
	UseSecureCookies bool
	// CrossSubDomainCookies sets a Domain attribute so subdomains share the
	// session. The value should be the registrable suffix (".example.com").
	CrossSubDomainCookies string
	// ClientIPHeader names the header carrying the real client IP behind a
	// proxy. Default "X-Forwarded-For"; the first address wins.
	ClientIPHeader string
	// DisableCSRF turns off the double-submit check. Only sensible when the
	// embedding app runs its own CSRF protection.
	DisableCSRF bool
}

// MetricsRecorder observes completed requests: every response the pipeline
// writes, including rate-limit rejections and masked errors. Implementations
// must be safe for concurrent use.
type MetricsRecorder interface {
	RecordRequest(r *Request, endpoint string, status int)
}

// Options configures the auth context. The zero value plus a Database is a
// working development setup.
type Options struct {
	// AppName is used as the TOTP issuer and in default pages.
	AppName string

	// BaseURL is the public origin the server is reachable at, e.g.
	// "https://auth.example.com". Env: BETTER_AUTH_URL.
	BaseURL string
	// BasePath is where the handler is mounted. Default "/api/auth".
	BasePath string

	// Secret is the primary signing/encryption secret.
	// Env: BETTER_AUTH_SECRET.
	Secret string
	// Secrets optionally carries versioned secrets for rotation, newest
	// first. Env: BETTER_AUTH_SECRETS as "v2:newer,v1:older".
	Secrets []Secret

	// TrustedOrigins may submit browser requests without a CSRF token and
	// be used as redirect targets. The BaseURL origin is always trusted.
	TrustedOrigins []string

	// Database is the storage adapter. Required.
	Database adapter.Adapter
	// SecondaryStorage enables the session cache and rate-limit counters on
	// a TTL key-value store.
	SecondaryStorage adapter.SecondaryStorage

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives one observation per completed request. Nil disables
	// instrumentation. Usually contributed by the telemetry plugin.
	Metrics MetricsRecorder

	// Scopes is the OAuth scope whitelist granted on top of per-client
	// scopes. Defaults to the OIDC set.
	Scopes []string

	Session          SessionOptions
	EmailAndPassword EmailPasswordOptions
	RateLimit        RateLimitOptions
	Advanced         AdvancedOptions

	// Hooks run around every endpoint, before plugin hooks.
	Hooks struct {
		Before []Hook
		After  []AfterHook
	}

	// production is derived from BETTER_AUTH_ENV.
	production bool
}

// envOptions is the environment surface, resolved into Options by
// applyEnv.
type envOptions struct {
	Secret  string `env:"BETTER_AUTH_SECRET"`
	Secrets string `env:"BETTER_AUTH_SECRETS"`
	URL     string `env:"BETTER_AUTH_URL"`
	Env     string `env:"BETTER_AUTH_ENV" envDefault:"development"`
}

// applyEnv fills unset options from the environment.
func (o *Options) applyEnv() error {
	var cfg envOptions
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("auth: parsing environment: %w", err)
	}

	if o.Secret == "" {
		o.Secret = cfg.Secret
	}
	if len(o.Secrets) == 0 && cfg.Secrets != "" {
		secrets, err := ParseSecrets(cfg.Secrets)
		if err != nil {
			return err
		}
		o.Secrets = secrets
	}
	if o.BaseURL == "" {
		o.BaseURL = cfg.URL
	}
	o.production = strings.EqualFold(cfg.Env, "production")
	return nil
}

// ParseSecrets parses the "version:value,version:value" form of
// BETTER_AUTH_SECRETS, newest first.
func ParseSecrets(raw string) ([]Secret, error) {
	var secrets []Secret
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		version, value, ok := strings.Cut(part, ":")
		if !ok || version == "" || value == "" {
			return nil, fmt.Errorf("auth: malformed versioned secret %q (want version:value)", part)
		}
		secrets = append(secrets, Secret{Version: version, Value: value})
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("auth: no secrets in %q", raw)
	}
	return secrets, nil
}

// normalize validates the options and fills defaults. Called once by New.
func (o *Options) normalize() error {
	if err := o.applyEnv(); err != nil {
		return err
	}

	if o.Database == nil {
		return fmt.Errorf("auth: options: Database is required")
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	if o.BaseURL == "" {
		o.BaseURL = "http://localhost:3000"
	}
	base, err := url.Parse(o.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("auth: options: invalid BaseURL %q", o.BaseURL)
	}
	if o.BasePath == "" {
		if p := strings.TrimSuffix(base.Path, "/"); p != "" {
			o.BasePath = p
		} else {
			o.BasePath = DefaultBasePath
		}
	}
	if !strings.HasPrefix(o.BasePath, "/") {
		o.BasePath = "/" + o.BasePath
	}
	o.BasePath = strings.TrimSuffix(o.BasePath, "/")
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	o.BaseURL = base.String()

	if len(o.Secrets) == 0 {
		if o.Secret == "" {
			if o.production {
				return fmt.Errorf("auth: options: no secret configured; set BETTER_AUTH_SECRET")
			}
			o.Secret = DefaultDevSecret
			o.Logger.Warn("no secret configured, using the built-in development secret")
		}
		o.Secrets = []Secret{{Version: "1", Value: o.Secret}}
	}
	if o.production {
		for _, s := range o.Secrets {
			if s.Value == DefaultDevSecret {
				return fmt.Errorf("auth: options: the development secret cannot be used in production")
			}
		}
	}

	if o.Session.ExpiresIn <= 0 {
		o.Session.ExpiresIn = DefaultSessionExpiresIn
	}
	if o.Session.UpdateAge == nil {
		age := DefaultSessionUpdateAge
		o.Session.UpdateAge = &age
	}
	if *o.Session.UpdateAge < 0 {
		return fmt.Errorf("auth: options: Session.UpdateAge must not be negative")
	}

	if o.EmailAndPassword.MinPasswordLength <= 0 {
		o.EmailAndPassword.MinPasswordLength = DefaultMinPasswordLen
	}
	if o.EmailAndPassword.MaxPasswordLength <= 0 {
		o.EmailAndPassword.MaxPasswordLength = DefaultMaxPasswordLen
	}

	if len(o.Scopes) == 0 {
		o.Scopes = []string{"openid", "profile", "email", "offline_access"}
	}

	if o.Advanced.ClientIPHeader == "" {
		o.Advanced.ClientIPHeader = "X-Forwarded-For"
	}

	for i, origin := range o.TrustedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("auth: options: invalid trusted origin %q", origin)
		}
		o.TrustedOrigins[i] = u.Scheme + "://" + u.Host
	}

	return nil
}

// secretValues returns the secret values newest first, for the cookie factory
// and HMAC verification.
func (o *Options) secretValues() []string {
	values := make([]string, 0, len(o.Secrets))
	for _, s := range o.Secrets {
		values = append(values, s.Value)
	}
	return values
}

// rateLimitEnabled resolves the tri-state Enabled flag: explicit wins, else
// production on, development off.
func (o *Options) rateLimitEnabled() bool {
	if o.RateLimit.Enabled != nil {
		return *o.RateLimit.Enabled
	}
	return o.production
}
