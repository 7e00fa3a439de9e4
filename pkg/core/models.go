// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package core

import "time"

// User is an authenticated principal. Extension fields (Role, Banned,
// Username, PhoneNumber, TwoFactorEnabled) are populated by the plugins that
// own them and zero-valued otherwise.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Image         string    `json:"image,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Role             string     `json:"role,omitempty"`
	Banned           bool       `json:"banned,omitempty"`
	BanReason        string     `json:"banReason,omitempty"`
	BanExpires       *time.Time `json:"banExpires,omitempty"`
	Username         string     `json:"username,omitempty"`
	PhoneNumber      string     `json:"phoneNumber,omitempty"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled,omitempty"`
}

// Account links a user to a credential source. For the credential provider
// it stores the password hash; for social providers it stores the upstream
// tokens (encrypted at rest).
type Account struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"userId"`
	ProviderID            string     `json:"providerId"`
	AccountID             string     `json:"accountId"`
	Password              string     `json:"-"`
	AccessToken           string     `json:"-"`
	RefreshToken          string     `json:"-"`
	IDToken               string     `json:"-"`
	Scope                 string     `json:"scope,omitempty"`
	AccessTokenExpiresAt  *time.Time `json:"accessTokenExpiresAt,omitempty"`
	RefreshTokenExpiresAt *time.Time `json:"refreshTokenExpiresAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Session is a server-side login session. Token is the opaque bearer value
// carried by the session cookie.
type Session struct {
	ID                   string    `json:"id"`
	Token                string    `json:"token"`
	UserID               string    `json:"userId"`
	ExpiresAt            time.Time `json:"expiresAt"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
	UserAgent            string    `json:"userAgent,omitempty"`
	IPAddress            string    `json:"ipAddress,omitempty"`
	ImpersonatedBy       string    `json:"impersonatedBy,omitempty"`
	ActiveOrganizationID string    `json:"activeOrganizationId,omitempty"`
}

// Verification is a generic time-limited record: email OTPs, password reset
// tokens, OAuth state, authorization codes, PKCE challenges. Identifier is a
// namespaced key; the record is deleted on consumption or expiry.
type Verification struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Value      string    `json:"value"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TwoFactor holds a user's TOTP secret and backup codes, both encrypted with
// the server secret. One row per user.
type TwoFactor struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Secret      string `json:"-"`
	BackupCodes string `json:"-"`
}

// TrustedDevice lets a device skip the 2FA prompt. Rolled forward on each
// successful skip.
type TrustedDevice struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	DeviceID  string    `json:"deviceId"`
	UserAgent string    `json:"userAgent,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// OAuthClient is a registered relying party. ClientID is immutable after
// registration.
type OAuthClient struct {
	ID                      string         `json:"id"`
	ClientID                string         `json:"clientId"`
	ClientSecret            string         `json:"-"`
	Name                    string         `json:"name,omitempty"`
	RedirectURIs            []string       `json:"redirectUris"`
	Scopes                  []string       `json:"scopes,omitempty"`
	Public                  bool           `json:"public"`
	SkipConsent             bool           `json:"skipConsent,omitempty"`
	TokenEndpointAuthMethod string         `json:"tokenEndpointAuthMethod,omitempty"`
	GrantTypes              []string       `json:"grantTypes,omitempty"`
	ResponseTypes           []string       `json:"responseTypes,omitempty"`
	Disabled                bool           `json:"disabled,omitempty"`
	Metadata                map[string]any `json:"metadata,omitempty"`
	ReferenceID             string         `json:"referenceId,omitempty"`
	CreatedAt               time.Time      `json:"createdAt"`
	UpdatedAt               time.Time      `json:"updatedAt"`
}

// OAuthAccessToken is an opaque access token record. Token holds the SHA-256
// digest of the issued value; JWT access tokens are stateless and have no
// row. RefreshID links the token to the refresh token that produced it.
type OAuthAccessToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	ClientID  string    `json:"clientId"`
	UserID    string    `json:"userId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	RefreshID string    `json:"refreshId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// OAuthRefreshToken is a rotating refresh token record. Token holds the
// SHA-256 digest of the issued value. A chain is identified by
// (clientId, userId, sessionId); rotation revokes the used token and replay
// of a revoked token revokes the whole chain.
type OAuthRefreshToken struct {
	ID        string     `json:"id"`
	Token     string     `json:"-"`
	ClientID  string     `json:"clientId"`
	UserID    string     `json:"userId"`
	SessionID string     `json:"sessionId,omitempty"`
	Scopes    []string   `json:"scopes,omitempty"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// OAuthConsent records a user's grant decision for a client. Upserted on
// accept; an authorize request whose scopes are a subset of a granted row
// skips the consent page.
type OAuthConsent struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	UserID       string    `json:"userId"`
	Scopes       []string  `json:"scopes"`
	ReferenceID  string    `json:"referenceId,omitempty"`
	ConsentGiven bool      `json:"consentGiven"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DeviceCode is a pending device authorization grant (RFC 8628).
type DeviceCode struct {
	ID              string     `json:"id"`
	DeviceCode      string     `json:"deviceCode"`
	UserCode        string     `json:"userCode"`
	ClientID        string     `json:"clientId"`
	UserID          string     `json:"userId,omitempty"`
	Scopes          []string   `json:"scopes,omitempty"`
	Status          string     `json:"status"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	LastPolledAt    *time.Time `json:"lastPolledAt,omitempty"`
	PollingInterval int        `json:"pollingInterval"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// CibaRequest is a pending backchannel authentication request.
type CibaRequest struct {
	ID              string     `json:"id"`
	AuthReqID       string     `json:"authReqId"`
	ClientID        string     `json:"clientId"`
	UserID          string     `json:"userId"`
	Scopes          []string   `json:"scopes,omitempty"`
	Status          string     `json:"status"`
	LoginHint       string     `json:"loginHint,omitempty"`
	BindingMessage  string     `json:"bindingMessage,omitempty"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	LastPolledAt    *time.Time `json:"lastPolledAt,omitempty"`
	PollingInterval int        `json:"pollingInterval"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Jwk is a persisted signing key. PrivateKey is encrypted with the server
// secret; PublicKey is the serialized JWK published at /jwks.
type Jwk struct {
	ID         string    `json:"id"`
	PublicKey  string    `json:"publicKey"`
	PrivateKey string    `json:"-"`
	Alg        string    `json:"alg"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RateLimit is a sliding-window counter row used by database-backed rate
// limit storage.
type RateLimit struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Count       int    `json:"count"`
	LastRequest int64  `json:"lastRequest"`
}
