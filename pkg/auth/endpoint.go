// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import "net/http"

// HandlerFunc is an endpoint handler. The returned value is serialized as
// JSON unless it is one of the pipeline's response types (Redirect, HTML,
// Raw); nil produces {"status":true}.
type HandlerFunc func(*Request) (any, error)

// Middleware runs between hooks and the handler. Returning an error (usually
// an *APIError) halts the request.
type Middleware func(*Request) error

// Endpoint is one routable operation.
type Endpoint struct {
	// Name identifies the endpoint in logs.
	Name string
	// Path is endpoint-relative, in chi syntax ("/two-factor/enable").
	Path string
	// Methods lists the accepted HTTP methods.
	Methods []string
	// Handler produces the response.
	Handler HandlerFunc

	// RequireSession resolves the session before the handler and rejects
	// unauthenticated requests. RequireAdmin additionally requires the
	// admin role and implies RequireSession.
	RequireSession bool
	RequireAdmin   bool

	// SkipCSRF exempts the endpoint from the double-submit check. Set on
	// endpoints called by OAuth clients rather than browsers.
	SkipCSRF bool

	// Middlewares run after the built-in guards, in order.
	Middlewares []Middleware
}

// Get declares a GET endpoint.
func Get(path string, handler HandlerFunc) *Endpoint {
	return &Endpoint{Path: path, Methods: []string{http.MethodGet}, Handler: handler}
}

// Post declares a POST endpoint.
func Post(path string, handler HandlerFunc) *Endpoint {
	return &Endpoint{Path: path, Methods: []string{http.MethodPost}, Handler: handler}
}

// Redirect instructs the pipeline to emit an HTTP redirect instead of JSON.
type Redirect struct {
	URL string
	// Status defaults to 302.
	Status int
}

// HTML emits a text/html body with status 200.
type HTML string

// Raw emits bytes with an explicit content type.
type Raw struct {
	Status      int
	ContentType string
	Body        []byte
}
