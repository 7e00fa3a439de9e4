// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/betterauth/betterauth/pkg/store"
)

// maxBodyBytes bounds buffered request bodies.
const maxBodyBytes = 1 << 20

// Request is the pipeline's view of one HTTP request. Handlers read inputs
// through it and accumulate response headers and cookies on it; the pipeline
// flushes them when the handler returns.
type Request struct {
	// Auth is the process-wide auth context.
	Auth *Context
	// Raw is the underlying HTTP request. Its body has already been
	// consumed; use Body or Form.
	Raw *http.Request

	// ResponseHeaders accumulate across hooks and the handler. Values
	// append; a hook that needs to overwrite uses Set explicitly.
	ResponseHeaders http.Header

	body []byte
	form url.Values
	js   map[string]any

	session       *store.SessionPayload
	sessionLoaded bool
	newSession    *store.SessionPayload

	// values carries hook-contributed request-scoped state.
	values map[string]any
}

func newRequest(authCtx *Context, r *http.Request) *Request {
	return &Request{
		Auth:            authCtx,
		Raw:             r,
		ResponseHeaders: http.Header{},
	}
}

// Context returns the request-scoped context for adapter and outbound calls.
func (r *Request) Context() context.Context {
	return r.Raw.Context()
}

// Body returns the buffered request body.
func (r *Request) Body() []byte {
	return r.body
}

// Form returns the parsed form for form-encoded and multipart requests, never
// nil.
func (r *Request) Form() url.Values {
	if r.form == nil {
		return url.Values{}
	}
	return r.form
}

// Query returns a query-string parameter.
func (r *Request) Query(name string) string {
	return r.Raw.URL.Query().Get(name)
}

// Param returns a path parameter declared in the endpoint path.
func (r *Request) Param(name string) string {
	return chi.URLParam(r.Raw, name)
}

// BodyValue returns a top-level string field from the request body,
// regardless of whether it arrived as JSON or form data.
func (r *Request) BodyValue(key string) string {
	if r.form != nil {
		if v := r.form.Get(key); v != "" {
			return v
		}
	}
	if r.js == nil && len(r.body) > 0 {
		// Tolerate non-object bodies; BodyValue just returns "".
		_ = json.Unmarshal(r.body, &r.js)
	}
	if v, ok := r.js[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetHeader sets a response header, replacing prior values.
func (r *Request) SetHeader(key, value string) {
	r.ResponseHeaders.Set(key, value)
}

// AddHeader appends a response header value.
func (r *Request) AddHeader(key, value string) {
	r.ResponseHeaders.Add(key, value)
}

// SetCookie appends a Set-Cookie header.
func (r *Request) SetCookie(c *http.Cookie) {
	r.ResponseHeaders.Add("Set-Cookie", c.String())
}

// Session returns the session resolved for this request, or nil. The session
// middleware or a prior GetSession call populates it.
func (r *Request) Session() *store.SessionPayload {
	return r.session
}

// NewSession returns the session created by the handler during this request
// (sign-in, sign-up, 2FA verify). After-hooks use it to gate the response.
func (r *Request) NewSession() *store.SessionPayload {
	return r.newSession
}

// SetNewSession records a session created by the handler.
func (r *Request) SetNewSession(p *store.SessionPayload) {
	r.newSession = p
	r.session = p
	r.sessionLoaded = true
}

// Value returns hook-contributed request state.
func (r *Request) Value(key string) any {
	return r.values[key]
}

// SetValue stores request-scoped state for later hooks and the handler.
func (r *Request) SetValue(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	r.values[key] = v
}

// ClientIP resolves the caller's IP, honoring the configured proxy header
// (first address) and falling back to the connection peer.
func (r *Request) ClientIP() string {
	header := r.Auth.Options.Advanced.ClientIPHeader
	if v := r.Raw.Header.Get(header); v != "" {
		ip, _, _ := strings.Cut(v, ",")
		return strings.TrimSpace(ip)
	}
	if host, _, err := net.SplitHostPort(r.Raw.RemoteAddr); err == nil {
		return host
	}
	return r.Raw.RemoteAddr
}

// Origin returns the request's browser origin: the Origin header, or the
// Referer's origin, or "".
func (r *Request) Origin() string {
	if origin := r.Raw.Header.Get("Origin"); origin != "" && origin != "null" {
		return origin
	}
	if referer := r.Raw.Header.Get("Referer"); referer != "" {
		if u, err := url.Parse(referer); err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

// Path returns the endpoint-relative path (base path stripped).
func (r *Request) Path() string {
	path := r.Raw.URL.Path
	if base := r.Auth.BasePath; base != "" && strings.HasPrefix(path, base) {
		path = path[len(base):]
	}
	if path == "" {
		return "/"
	}
	return path
}
