// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package core defines the data model shared by every component: entity
// structs, model name constants, the row codec that converts between adapter
// rows and structs, and the table specifications plugins extend.
package core

// Model names as they appear on the adapter boundary.
const (
	ModelUser              = "user"
	ModelSession           = "session"
	ModelAccount           = "account"
	ModelVerification      = "verification"
	ModelTwoFactor         = "twoFactor"
	ModelTrustedDevice     = "trustedDevice"
	ModelOAuthClient       = "oauthClient"
	ModelOAuthAccessToken  = "oauthAccessToken"
	ModelOAuthRefreshToken = "oauthRefreshToken"
	ModelOAuthConsent      = "oauthConsent"
	ModelDeviceCode        = "deviceCode"
	ModelCibaRequest       = "cibaRequest"
	ModelJwks              = "jwks"
	ModelRateLimit         = "rateLimit"
)

// Grant request statuses shared by device authorization and CIBA. Terminal
// statuses cause deletion on the next poll.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
)

// ProviderCredential is the providerId of password accounts.
const ProviderCredential = "credential"
