// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package otp issues and checks short-lived numeric one-time codes. Codes
// are persisted through the verification table under a purpose-namespaced
// identifier, so any adapter-backed deployment gets them for free and the
// expiry sweeper cleans up stale ones.
package otp

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/betterauth/betterauth/pkg/crypto"
	"github.com/betterauth/betterauth/pkg/store"
)

const (
	// DefaultDigits is the code length used when none is configured.
	DefaultDigits = 6

	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 5 * time.Minute
)

// Codes mints and verifies one-time codes for a store.
type Codes struct {
	store  *store.Store
	digits int
	ttl    time.Duration
}

// Option adjusts code generation.
type Option func(*Codes)

// WithDigits sets the code length.
func WithDigits(n int) Option {
	return func(c *Codes) {
		if n > 0 {
			c.digits = n
		}
	}
}

// WithTTL sets the code lifetime.
func WithTTL(d time.Duration) Option {
	return func(c *Codes) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// New returns a code issuer backed by the given store.
func New(st *store.Store, opts ...Option) *Codes {
	c := &Codes{store: st, digits: DefaultDigits, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identifier returns the verification identifier for a purpose/recipient
// pair, e.g. "sign-in-otp-user@example.com".
func Identifier(purpose, recipient string) string {
	return purpose + "-otp-" + recipient
}

// Issue mints a fresh code for the purpose/recipient pair, invalidating any
// code still outstanding for it.
func (c *Codes) Issue(ctx context.Context, purpose, recipient string) (string, error) {
	id := Identifier(purpose, recipient)
	if err := c.store.DeleteVerifications(ctx, id); err != nil {
		return "", err
	}
	code := crypto.RandomString(c.digits, crypto.AlphabetDigits)
	if _, err := c.store.CreateVerification(ctx, id, code, c.ttl); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks a submitted code. On a match the stored code is consumed;
// a mismatch leaves it in place so a typo does not force a resend. Guess
// attempts are bounded by the endpoint rate limits, not here.
func (c *Codes) Verify(ctx context.Context, purpose, recipient, code string) (bool, error) {
	v, err := c.store.FindVerification(ctx, Identifier(purpose, recipient))
	if err != nil || v == nil {
		return false, err
	}
	if subtle.ConstantTimeCompare([]byte(v.Value), []byte(code)) != 1 {
		return false, nil
	}
	if err := c.store.DeleteVerification(ctx, v.ID); err != nil {
		return false, err
	}
	return true, nil
}
