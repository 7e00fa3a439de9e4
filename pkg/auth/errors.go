// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"fmt"
	"net/http"
)

// Stable error codes shared across endpoints. Plugins add their own through
// ErrorCodes().
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeTooManyRequests     = "TOO_MANY_REQUESTS"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"

	CodeInvalidOrigin     = "INVALID_ORIGIN"
	CodeCSRFTokenRequired = "CSRF_TOKEN_REQUIRED"
	CodeInvalidCSRFToken  = "INVALID_CSRF_TOKEN"
	CodeSessionRequired   = "SESSION_REQUIRED"
	CodeBanned            = "BANNED_USER"
)

// APIError is an error with an HTTP status, a stable machine code, and a
// human message. Handlers return it to produce a structured error response;
// any other error becomes a 500 with the details logged, not leaked.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError builds an APIError.
func NewAPIError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// ErrBadRequest is a 400 with the given code and message.
func ErrBadRequest(code, message string) *APIError {
	return NewAPIError(http.StatusBadRequest, code, message)
}

// ErrUnauthorized is a 401 with the given code and message.
func ErrUnauthorized(code, message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, code, message)
}

// ErrForbidden is a 403 with the given code and message.
func ErrForbidden(code, message string) *APIError {
	return NewAPIError(http.StatusForbidden, code, message)
}

// ErrNotFound is a 404 with the given code and message.
func ErrNotFound(code, message string) *APIError {
	return NewAPIError(http.StatusNotFound, code, message)
}

// ErrConflict is a 409 with the given code and message.
func ErrConflict(code, message string) *APIError {
	return NewAPIError(http.StatusConflict, code, message)
}

// OAuth error codes per RFC 6749 §5.2 and its extension grants. OAuth
// endpoints return these instead of the JSON API codes above.
const (
	OAuthInvalidRequest          = "invalid_request"
	OAuthInvalidClient           = "invalid_client"
	OAuthInvalidGrant            = "invalid_grant"
	OAuthInvalidScope            = "invalid_scope"
	OAuthInvalidToken            = "invalid_token"
	OAuthInsufficientScope       = "insufficient_scope"
	OAuthUnauthorizedClient      = "unauthorized_client"
	OAuthUnsupportedGrantType    = "unsupported_grant_type"
	OAuthUnsupportedResponseType = "unsupported_response_type"
	OAuthAuthorizationPending    = "authorization_pending"
	OAuthSlowDown                = "slow_down"
	OAuthAccessDenied            = "access_denied"
	OAuthExpiredToken            = "expired_token"
	OAuthServerError             = "server_error"
)

// OAuthError is an RFC 6749 error: {"error": code, "error_description": ...}
// instead of the {code, message} shape JSON clients get. When RedirectURI is
// set the error is delivered to the client's callback as query parameters,
// echoing State, rather than as a response body.
type OAuthError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`

	RedirectURI string `json:"-"`
	State       string `json:"-"`
}

// Error implements the error interface.
func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// NewOAuthError builds an OAuth error. The status defaults to 400; use
// WithStatus for the 401 invalid_client case.
func NewOAuthError(code, description string) *OAuthError {
	return &OAuthError{Status: http.StatusBadRequest, Code: code, Description: description}
}

// WithStatus returns a copy carrying an explicit HTTP status.
func (e *OAuthError) WithStatus(status int) *OAuthError {
	c := *e
	c.Status = status
	return &c
}

// WithRedirect returns a copy delivered via the client's validated redirect
// URI, echoing state.
func (e *OAuthError) WithRedirect(redirectURI, state string) *OAuthError {
	c := *e
	c.RedirectURI = redirectURI
	c.State = state
	return &c
}
