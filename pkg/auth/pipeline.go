// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// sweepChance makes roughly one request in N trigger the expiry sweep.
const sweepChance = 50

// Handler returns the HTTP handler serving every registered endpoint under
// the configured base path. Unknown paths under the base path produce a JSON
// 404 rather than the default plain-text one.
func (c *Context) Handler() http.Handler {
	mux := chi.NewRouter()
	for _, ep := range c.endpoints {
		handler := c.endpointHandler(ep)
		for _, method := range ep.Methods {
			mux.Method(method, ep.Path, handler)
		}
	}
	mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 404, map[string]any{"code": CodeNotFound, "message": "Not found"})
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 405, map[string]any{"code": CodeInvalidRequest, "message": "Method not allowed"})
	})

	if c.BasePath == "" || c.BasePath == "/" {
		return mux
	}
	outer := chi.NewRouter()
	outer.Mount(c.BasePath, mux)
	outer.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 404, map[string]any{"code": CodeNotFound, "message": "Not found"})
	})
	return outer
}

// endpointHandler wraps one endpoint in the full pipeline: body buffering,
// rate limiting, before hooks, guards, endpoint middlewares, the handler,
// after hooks, and response emission. Panics become plain 500s.
func (c *Context) endpointHandler(ep *Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, hr *http.Request) {
		r := newRequest(c, hr)
		if c.Options.Metrics != nil {
			sw := &statusWriter{ResponseWriter: w}
			w = sw
			// Registered before the recover defer so even panics are
			// observed with their final status.
			defer func() { c.Options.Metrics.RecordRequest(r, ep.Name, sw.status()) }()
		}
		defer func() {
			if rec := recover(); rec != nil {
				c.Logger.Error("panic while handling request",
					"endpoint", ep.Name, "path", r.Path(),
					"panic", rec, "stack", string(debug.Stack()))
				c.emit(w, r, nil, NewAPIError(500, CodeInternalServerError, "Internal server error"))
			}
		}()

		c.maybeSweep()

		if err := r.bufferBody(); err != nil {
			c.emit(w, r, nil, err)
			return
		}

		if c.Limiter.Enabled() {
			res, err := c.Limiter.Allow(hr.Context(), r.Path(), r.ClientIP())
			switch {
			case err != nil:
				// A broken counter store must not take down sign-in.
				c.Logger.Warn("rate limiter unavailable", "error", err)
			case !res.Allowed:
				r.SetHeader("Retry-After", strconv.Itoa(int(res.RetryAfter/time.Second)))
				c.emit(w, r, nil, NewAPIError(429, CodeTooManyRequests, "Too many requests. Please try again later."))
				return
			}
		}

		short, err := c.runBefore(r)
		if err != nil {
			c.emit(w, r, nil, err)
			return
		}
		if short != nil {
			c.emitStatus(w, r, short.Response, short.Status)
			return
		}

		if err := c.runGuards(ep, r); err != nil {
			c.emit(w, r, nil, err)
			return
		}

		result, err := ep.Handler(r)
		if err != nil {
			c.emit(w, r, nil, err)
			return
		}
		result, err = c.runAfter(r, result)
		c.emit(w, r, result, err)
	}
}

func (c *Context) runGuards(ep *Endpoint, r *Request) error {
	if mutating(r.Raw.Method) && !ep.SkipCSRF && !c.Options.Advanced.DisableCSRF {
		if err := c.csrfGuard(r); err != nil {
			return err
		}
	}
	if ep.RequireSession || ep.RequireAdmin {
		if err := c.sessionGuard(r); err != nil {
			return err
		}
	}
	if ep.RequireAdmin {
		if err := c.adminGuard(r); err != nil {
			return err
		}
	}
	for _, mw := range ep.Middlewares {
		if err := mw(r); err != nil {
			return err
		}
	}
	return nil
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// bufferBody reads the request body (bounded) and parses form payloads so
// hooks and handlers can read inputs repeatedly.
func (r *Request) bufferBody() error {
	if r.Raw.Body == nil {
		return nil
	}
	defer r.Raw.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Raw.Body, maxBodyBytes+1))
	if err != nil {
		return ErrBadRequest(CodeInvalidRequest, "Unreadable request body")
	}
	if len(data) > maxBodyBytes {
		return NewAPIError(http.StatusRequestEntityTooLarge, CodeInvalidRequest, "Request body too large")
	}
	r.body = data

	ct := r.Raw.Header.Get("Content-Type")
	switch {
	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		if form, err := url.ParseQuery(string(data)); err == nil {
			r.form = form
		}
	case strings.Contains(ct, "multipart/form-data"):
		r.Raw.Body = io.NopCloser(bytes.NewReader(data))
		if err := r.Raw.ParseMultipartForm(maxBodyBytes); err == nil {
			r.form = r.Raw.PostForm
		}
	}
	return nil
}

// emit writes the response: accumulated headers first, then the error or the
// handler's value. Unrecognized errors are logged and masked as 500s.
func (c *Context) emit(w http.ResponseWriter, r *Request, result any, err error) {
	c.flushHeaders(w, r)

	if err != nil {
		var oauthErr *OAuthError
		if errors.As(err, &oauthErr) {
			c.writeOAuthError(w, oauthErr)
			return
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			c.Logger.Error("request failed", "path", r.Path(), "error", err)
			apiErr = NewAPIError(500, CodeInternalServerError, "Internal server error")
		}
		writeJSON(w, apiErr.Status, apiErr)
		return
	}
	c.writeResult(w, result, 0)
}

// writeOAuthError renders an RFC 6749 error: a query-string redirect when the
// request carried a validated redirect target, a JSON body otherwise.
func (c *Context) writeOAuthError(w http.ResponseWriter, e *OAuthError) {
	if e.RedirectURI != "" {
		if u, err := url.Parse(e.RedirectURI); err == nil {
			q := u.Query()
			q.Set("error", e.Code)
			if e.Description != "" {
				q.Set("error_description", e.Description)
			}
			if e.State != "" {
				q.Set("state", e.State)
			}
			u.RawQuery = q.Encode()
			c.writeRedirect(w, Redirect{URL: u.String()})
			return
		}
	}
	status := e.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, status, e)
}

// emitStatus is emit for hook short-circuits carrying an explicit status.
func (c *Context) emitStatus(w http.ResponseWriter, r *Request, result any, status int) {
	c.flushHeaders(w, r)
	c.writeResult(w, result, status)
}

func (c *Context) flushHeaders(w http.ResponseWriter, r *Request) {
	headers := w.Header()
	for key, values := range r.ResponseHeaders {
		for _, v := range values {
			headers.Add(key, v)
		}
	}
}

func (c *Context) writeResult(w http.ResponseWriter, result any, status int) {
	switch v := result.(type) {
	case nil:
		if status == 0 {
			status = 200
		}
		writeJSON(w, status, map[string]any{"status": true})
	case Redirect:
		c.writeRedirect(w, v)
	case *Redirect:
		c.writeRedirect(w, *v)
	case HTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if status == 0 {
			status = 200
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, string(v))
	case Raw:
		if v.ContentType != "" {
			w.Header().Set("Content-Type", v.ContentType)
		}
		if v.Status == 0 {
			v.Status = 200
		}
		w.WriteHeader(v.Status)
		_, _ = w.Write(v.Body)
	default:
		if status == 0 {
			status = 200
		}
		writeJSON(w, status, v)
	}
}

func (c *Context) writeRedirect(w http.ResponseWriter, redirect Redirect) {
	status := redirect.Status
	if status == 0 {
		status = http.StatusFound
	}
	w.Header().Set("Location", redirect.URL)
	w.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (c *Context) maybeSweep() {
	if rand.IntN(sweepChance) != 0 {
		return
	}
	// Detached from the request so a slow sweep never delays a response.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c.Sweep(ctx)
	}()
}

// statusWriter remembers the first status written so the metrics recorder
// sees what the client saw.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.code == 0 {
		w.code = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}
