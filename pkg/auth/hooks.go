// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import "strings"

// Hook runs before the handler. Hooks registered on Options run first, then
// plugin hooks in registration order.
type Hook struct {
	// Match limits the hook to matching requests; nil matches everything.
	Match func(*Request) bool
	// Run may mutate the request (headers append, request values merge) or
	// short-circuit by returning a non-nil result.
	Run func(*Request) (*HookResult, error)
}

// HookResult short-circuits the pipeline: the response is emitted without
// running middlewares, the handler, or later hooks. Headers accumulated on
// the request are still written.
type HookResult struct {
	// Response is the body to emit.
	Response any
	// Status defaults to 200.
	Status int
}

// AfterHook observes the handler's return value and may replace it. After
// hooks run in registration order; each sees the previous hook's output.
type AfterHook struct {
	Match func(*Request) bool
	// Run returns the (possibly replaced) response value.
	Run func(r *Request, returned any) (any, error)
}

// MatchPath builds a hook matcher for an exact endpoint-relative path, or a
// prefix when the pattern ends in "/*".
func MatchPath(pattern string) func(*Request) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return func(r *Request) bool {
			return strings.HasPrefix(r.Path(), prefix+"/")
		}
	}
	return func(r *Request) bool {
		return r.Path() == pattern
	}
}

// MatchPaths matches any of the given patterns.
func MatchPaths(patterns ...string) func(*Request) bool {
	matchers := make([]func(*Request) bool, 0, len(patterns))
	for _, p := range patterns {
		matchers = append(matchers, MatchPath(p))
	}
	return func(r *Request) bool {
		for _, m := range matchers {
			if m(r) {
				return true
			}
		}
		return false
	}
}

// runBefore executes the before chain. A non-nil result short-circuits.
func (c *Context) runBefore(r *Request) (*HookResult, error) {
	for _, h := range c.beforeHooks {
		if h.Match != nil && !h.Match(r) {
			continue
		}
		res, err := h.Run(r)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

// runAfter executes the after chain over the handler's return value.
func (c *Context) runAfter(r *Request, returned any) (any, error) {
	var err error
	for _, h := range c.afterHooks {
		if h.Match != nil && !h.Match(r) {
			continue
		}
		returned, err = h.Run(r, returned)
		if err != nil {
			return nil, err
		}
	}
	return returned, nil
}
