// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit implements the sliding-window request limiter applied in
// front of every endpoint. Counters are keyed by (client IP, path) and live
// in memory, in the database, or in secondary storage; concurrent writers may
// overcount by a bounded amount, which is acceptable for throttling.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

// Default window applied when no per-path rule matches.
const (
	DefaultWindow = time.Minute
	DefaultMax    = 100
)

// Rule is a window/budget pair. Max <= 0 disables limiting for the matched
// paths.
type Rule struct {
	Window time.Duration
	Max    int
}

// PathRule binds a rule to a path pattern: an exact path, or a prefix
// wildcard ending in "/*".
type PathRule struct {
	Path string
	Rule Rule
}

// builtinRules covers the endpoints that take credentials or drive polling.
var builtinRules = []PathRule{
	{Path: "/sign-in/email", Rule: Rule{Window: time.Minute, Max: 10}},
	{Path: "/sign-up/email", Rule: Rule{Window: time.Minute, Max: 10}},
	{Path: "/two-factor/verify-totp", Rule: Rule{Window: time.Minute, Max: 3}},
	{Path: "/two-factor/verify-otp", Rule: Rule{Window: time.Minute, Max: 3}},
	{Path: "/two-factor/verify-backup-code", Rule: Rule{Window: time.Minute, Max: 3}},
	{Path: "/two-factor/*", Rule: Rule{Window: time.Minute, Max: 10}},
	{Path: "/oauth2/token", Rule: Rule{Window: time.Minute, Max: 60}},
}

// Options configures a Limiter.
type Options struct {
	// Enabled turns the limiter on. Servers leave it off in development
	// unless explicitly enabled.
	Enabled bool
	// Window and Max override the defaults for unmatched paths.
	Window time.Duration
	Max    int
	// Rules are custom per-path rules checked before the built-ins.
	Rules []PathRule
	// Storage holds the counters. Defaults to in-memory.
	Storage Storage
}

// Result is the outcome of recording one request.
type Result struct {
	Allowed bool
	// RetryAfter is how long the client must wait when not allowed,
	// rounded up to whole seconds for the Retry-After header.
	RetryAfter time.Duration
}

// Limiter applies sliding-window rules to request keys.
type Limiter struct {
	enabled bool
	window  time.Duration
	max     int
	rules   []PathRule
	storage Storage
}

// New builds a Limiter, filling in defaults for the zero-valued options.
func New(opts Options) *Limiter {
	l := &Limiter{
		enabled: opts.Enabled,
		window:  opts.Window,
		max:     opts.Max,
		rules:   append(append([]PathRule{}, opts.Rules...), builtinRules...),
		storage: opts.Storage,
	}
	if l.window <= 0 {
		l.window = DefaultWindow
	}
	if l.max == 0 {
		l.max = DefaultMax
	}
	if l.storage == nil {
		l.storage = NewMemoryStorage()
	}
	return l
}

// Enabled reports whether the limiter is active.
func (l *Limiter) Enabled() bool {
	return l.enabled
}

// resolveRule picks the rule for a path: exact match first, then the longest
// matching "/*" prefix, then the defaults. Custom rules shadow built-ins.
func (l *Limiter) resolveRule(path string) Rule {
	var (
		best    Rule
		bestLen = -1
	)
	for _, pr := range l.rules {
		if pr.Path == path {
			return pr.Rule
		}
		prefix, ok := strings.CutSuffix(pr.Path, "/*")
		if !ok || !strings.HasPrefix(path, prefix+"/") {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = pr.Rule, len(prefix)
		}
	}
	if bestLen >= 0 {
		return best
	}
	return Rule{Window: l.window, Max: l.max}
}

// Allow records a hit for (path, ip) and reports whether the request is
// within budget. The window slides: each allowed request moves it forward, so
// sustained traffic never gets a free reset. Rejected requests do not extend
// the window.
func (l *Limiter) Allow(ctx context.Context, path, ip string) (Result, error) {
	if !l.enabled {
		return Result{Allowed: true}, nil
	}
	rule := l.resolveRule(path)
	if rule.Max <= 0 {
		return Result{Allowed: true}, nil
	}
	if rule.Window <= 0 {
		rule.Window = l.window
	}

	key := ip + path
	now := time.Now()

	counter, err := l.storage.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}

	if counter == nil || now.Sub(counter.LastRequest) > rule.Window {
		counter = &Counter{Key: key, Count: 1, LastRequest: now}
		if err := l.storage.Set(ctx, key, counter, rule.Window); err != nil {
			return Result{}, err
		}
		return Result{Allowed: true}, nil
	}

	elapsed := now.Sub(counter.LastRequest)
	if counter.Count >= rule.Max {
		// Round up to whole seconds so Retry-After never tells the
		// client to come back too early.
		retry := ((rule.Window - elapsed + time.Second - 1) / time.Second) * time.Second
		if retry < time.Second {
			retry = time.Second
		}
		return Result{Allowed: false, RetryAfter: retry}, nil
	}

	counter.Count++
	counter.LastRequest = now
	if err := l.storage.Set(ctx, key, counter, rule.Window); err != nil {
		return Result{}, err
	}
	return Result{Allowed: true}, nil
}
