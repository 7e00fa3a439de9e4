// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package cookies implements the signed and encrypted cookie layer: name
// prefixing, attribute policy, HMAC-signed values with secret rotation, and
// Set-Cookie header parsing.
package cookies

import (
	"net/http"
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/crypto"
)

// DefaultPrefix is the cookie name prefix used when none is configured.
const DefaultPrefix = "better-auth"

// securePrefix is prepended to cookie names served over HTTPS
// (RFC 6265bis: __Secure- names require the Secure attribute).
const securePrefix = "__Secure-"

// Base cookie names. The factory prefixes them before they reach the wire.
const (
	NameSessionToken  = "session_token"
	NameCSRFToken     = "csrf_token"
	NameTwoFactor     = "two_factor"
	NameTrustDevice   = "trust_device"
	NameOAuthState    = "oauth_state"
	NameLoginPrompt   = "oidc_login_prompt"
	NameConsentPrompt = "oidc_consent_prompt"
	NameAdminSession  = "admin_session"
)

// Options configures a cookie Factory.
type Options struct {
	// Prefix is the cookie name prefix; DefaultPrefix when empty.
	Prefix string

	// Secure marks cookies Secure and applies the __Secure- name prefix.
	// Set when the base URL is HTTPS or when forced by configuration.
	Secure bool

	// Domain, when non-empty, is written on every cookie to enable
	// cross-subdomain sessions. It should be the registrable suffix
	// (".example.com").
	Domain string

	// SameSite defaults to Lax.
	SameSite http.SameSite

	// Path defaults to "/".
	Path string
}

// Factory builds cookies with consistent naming and attribute policy, and
// signs or encrypts their values with the configured secrets. The first
// secret signs new values; all secrets verify, supporting rotation.
type Factory struct {
	opts    Options
	secrets []string
}

// NewFactory returns a Factory. At least one secret is required for the
// signed and encrypted helpers; Make and Name work without.
func NewFactory(opts Options, secrets []string) *Factory {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &Factory{opts: opts, secrets: secrets}
}

// Name returns the on-the-wire cookie name for a base name:
// "<prefix>.<base>", with "__Secure-" prepended when cookies are Secure.
func (f *Factory) Name(base string) string {
	name := f.opts.Prefix + "." + base
	if f.opts.Secure {
		return securePrefix + name
	}
	return name
}

// Make builds a cookie with the factory's attribute policy. A non-positive
// maxAge produces an expired cookie suitable for clearing.
func (f *Factory) Make(base, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     f.Name(base),
		Value:    value,
		Path:     f.opts.Path,
		Domain:   f.opts.Domain,
		HttpOnly: true,
		Secure:   f.opts.Secure,
		SameSite: f.opts.SameSite,
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge / time.Second)
		c.Expires = time.Now().Add(maxAge)
	} else {
		c.MaxAge = -1
	}
	return c
}

// SignValue appends a signature to a value: "value.signature". The signature
// covers the value only and is keyed by the active (first) secret.
func (f *Factory) SignValue(value string) string {
	return value + "." + crypto.SignHMAC(f.secrets[0], value)
}

// VerifyValue splits a signed cookie value and verifies its signature against
// every configured secret. The signature is everything after the last dot, so
// values containing dots round-trip.
func (f *Factory) VerifyValue(signed string) (string, bool) {
	idx := strings.LastIndex(signed, ".")
	if idx <= 0 || idx == len(signed)-1 {
		return "", false
	}
	value, sig := signed[:idx], signed[idx+1:]
	if !crypto.VerifyHMACAny(f.secrets, value, sig) {
		return "", false
	}
	return value, true
}

// SetSigned writes a signed cookie.
func (f *Factory) SetSigned(w http.ResponseWriter, base, value string, maxAge time.Duration) {
	http.SetCookie(w, f.Make(base, f.SignValue(value), maxAge))
}

// GetSigned reads a cookie and verifies its signature, returning the bare
// value. The second return is false when the cookie is absent, unsigned, or
// fails verification.
func (f *Factory) GetSigned(r *http.Request, base string) (string, bool) {
	c, err := r.Cookie(f.Name(base))
	if err != nil || c.Value == "" {
		return "", false
	}
	return f.VerifyValue(c.Value)
}

// SetEncrypted writes a cookie whose value is sealed with
// XChaCha20-Poly1305. Used for cookies that carry request state (pending
// authorize queries) rather than bearer tokens.
func (f *Factory) SetEncrypted(w http.ResponseWriter, base, value string, maxAge time.Duration) error {
	sealed, err := crypto.Encrypt(f.secrets[0], value)
	if err != nil {
		return err
	}
	http.SetCookie(w, f.Make(base, sealed, maxAge))
	return nil
}

// GetEncrypted reads and opens an encrypted cookie. Decryption is attempted
// with each secret in order.
func (f *Factory) GetEncrypted(r *http.Request, base string) (string, bool) {
	c, err := r.Cookie(f.Name(base))
	if err != nil || c.Value == "" {
		return "", false
	}
	for _, secret := range f.secrets {
		if value, err := crypto.Decrypt(secret, c.Value); err == nil {
			return value, true
		}
	}
	return "", false
}

// Get reads a raw (unsigned) cookie value.
func (f *Factory) Get(r *http.Request, base string) (string, bool) {
	c, err := r.Cookie(f.Name(base))
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set writes a raw (unsigned) cookie.
func (f *Factory) Set(w http.ResponseWriter, base, value string, maxAge time.Duration) {
	http.SetCookie(w, f.Make(base, value, maxAge))
}

// Clear expires a cookie immediately.
func (f *Factory) Clear(w http.ResponseWriter, base string) {
	http.SetCookie(w, f.Make(base, "", 0))
}

// Secret returns the active signing secret. Exposed for components that sign
// derived values (CSRF tokens, trusted-device markers) in their own formats.
func (f *Factory) Secret() string {
	return f.secrets[0]
}

// Secrets returns all configured secrets, active first.
func (f *Factory) Secrets() []string {
	return f.secrets
}
