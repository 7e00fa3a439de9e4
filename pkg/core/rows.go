// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Row helpers convert adapter rows (map[string]any) to typed fields. Adapters
// may store dates as time.Time, ISO-8601 strings, or epoch milliseconds, and
// string lists as native slices or JSON text; these helpers normalize on read.

// RowString returns row[key] as a string.
func RowString(row map[string]any, key string) string {
	return cast.ToString(row[key])
}

// RowBool returns row[key] as a bool. SQLite integers (0/1) normalize.
func RowBool(row map[string]any, key string) bool {
	return cast.ToBool(row[key])
}

// RowInt returns row[key] as an int.
func RowInt(row map[string]any, key string) int {
	return cast.ToInt(row[key])
}

// RowInt64 returns row[key] as an int64.
func RowInt64(row map[string]any, key string) int64 {
	return cast.ToInt64(row[key])
}

// RowTime returns row[key] as a time.Time. Numeric values are interpreted as
// epoch milliseconds; strings are parsed as ISO-8601.
func RowTime(row map[string]any, key string) time.Time {
	switch v := row[key].(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return v
	case *time.Time:
		if v == nil {
			return time.Time{}
		}
		return *v
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return time.UnixMilli(cast.ToInt64(v)).UTC()
	default:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return time.Time{}
		}
		return t
	}
}

// RowTimePtr returns row[key] as a *time.Time, nil when absent or zero.
func RowTimePtr(row map[string]any, key string) *time.Time {
	t := RowTime(row, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

// RowStrings returns row[key] as a string slice. Accepts native slices, JSON
// array text, or comma-separated text.
func RowStrings(row map[string]any, key string) []string {
	switch v := row[key].(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, cast.ToString(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		if strings.HasPrefix(v, "[") {
			var out []string
			if err := json.Unmarshal([]byte(v), &out); err == nil {
				return out
			}
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

// RowMap returns row[key] as a map. Accepts native maps or JSON object text.
func RowMap(row map[string]any, key string) map[string]any {
	switch v := row[key].(type) {
	case map[string]any:
		return v
	case string:
		if v == "" {
			return nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err == nil {
			return out
		}
		return nil
	default:
		return nil
	}
}

// UserFromRow decodes a user row.
func UserFromRow(row map[string]any) *User {
	if row == nil {
		return nil
	}
	return &User{
		ID:               RowString(row, "id"),
		Email:            RowString(row, "email"),
		Name:             RowString(row, "name"),
		Image:            RowString(row, "image"),
		EmailVerified:    RowBool(row, "emailVerified"),
		CreatedAt:        RowTime(row, "createdAt"),
		UpdatedAt:        RowTime(row, "updatedAt"),
		Role:             RowString(row, "role"),
		Banned:           RowBool(row, "banned"),
		BanReason:        RowString(row, "banReason"),
		BanExpires:       RowTimePtr(row, "banExpires"),
		Username:         RowString(row, "username"),
		PhoneNumber:      RowString(row, "phoneNumber"),
		TwoFactorEnabled: RowBool(row, "twoFactorEnabled"),
	}
}

// Row encodes the user for the adapter boundary.
func (u *User) Row() map[string]any {
	row := map[string]any{
		"id":               u.ID,
		"email":            u.Email,
		"name":             u.Name,
		"image":            u.Image,
		"emailVerified":    u.EmailVerified,
		"createdAt":        u.CreatedAt,
		"updatedAt":        u.UpdatedAt,
		"role":             u.Role,
		"banned":           u.Banned,
		"banReason":        u.BanReason,
		"username":         u.Username,
		"phoneNumber":      u.PhoneNumber,
		"twoFactorEnabled": u.TwoFactorEnabled,
	}
	if u.BanExpires != nil {
		row["banExpires"] = *u.BanExpires
	}
	return row
}

// AccountFromRow decodes an account row.
func AccountFromRow(row map[string]any) *Account {
	if row == nil {
		return nil
	}
	return &Account{
		ID:                    RowString(row, "id"),
		UserID:                RowString(row, "userId"),
		ProviderID:            RowString(row, "providerId"),
		AccountID:             RowString(row, "accountId"),
		Password:              RowString(row, "password"),
		AccessToken:           RowString(row, "accessToken"),
		RefreshToken:          RowString(row, "refreshToken"),
		IDToken:               RowString(row, "idToken"),
		Scope:                 RowString(row, "scope"),
		AccessTokenExpiresAt:  RowTimePtr(row, "accessTokenExpiresAt"),
		RefreshTokenExpiresAt: RowTimePtr(row, "refreshTokenExpiresAt"),
		CreatedAt:             RowTime(row, "createdAt"),
		UpdatedAt:             RowTime(row, "updatedAt"),
	}
}

// Row encodes the account for the adapter boundary.
func (a *Account) Row() map[string]any {
	row := map[string]any{
		"id":           a.ID,
		"userId":       a.UserID,
		"providerId":   a.ProviderID,
		"accountId":    a.AccountID,
		"password":     a.Password,
		"accessToken":  a.AccessToken,
		"refreshToken": a.RefreshToken,
		"idToken":      a.IDToken,
		"scope":        a.Scope,
		"createdAt":    a.CreatedAt,
		"updatedAt":    a.UpdatedAt,
	}
	if a.AccessTokenExpiresAt != nil {
		row["accessTokenExpiresAt"] = *a.AccessTokenExpiresAt
	}
	if a.RefreshTokenExpiresAt != nil {
		row["refreshTokenExpiresAt"] = *a.RefreshTokenExpiresAt
	}
	return row
}

// SessionFromRow decodes a session row.
func SessionFromRow(row map[string]any) *Session {
	if row == nil {
		return nil
	}
	return &Session{
		ID:                   RowString(row, "id"),
		Token:                RowString(row, "token"),
		UserID:               RowString(row, "userId"),
		ExpiresAt:            RowTime(row, "expiresAt"),
		CreatedAt:            RowTime(row, "createdAt"),
		UpdatedAt:            RowTime(row, "updatedAt"),
		UserAgent:            RowString(row, "userAgent"),
		IPAddress:            RowString(row, "ipAddress"),
		ImpersonatedBy:       RowString(row, "impersonatedBy"),
		ActiveOrganizationID: RowString(row, "activeOrganizationId"),
	}
}

// Row encodes the session for the adapter boundary.
func (s *Session) Row() map[string]any {
	return map[string]any{
		"id":                   s.ID,
		"token":                s.Token,
		"userId":               s.UserID,
		"expiresAt":            s.ExpiresAt,
		"createdAt":            s.CreatedAt,
		"updatedAt":            s.UpdatedAt,
		"userAgent":            s.UserAgent,
		"ipAddress":            s.IPAddress,
		"impersonatedBy":       s.ImpersonatedBy,
		"activeOrganizationId": s.ActiveOrganizationID,
	}
}

// VerificationFromRow decodes a verification row.
func VerificationFromRow(row map[string]any) *Verification {
	if row == nil {
		return nil
	}
	return &Verification{
		ID:         RowString(row, "id"),
		Identifier: RowString(row, "identifier"),
		Value:      RowString(row, "value"),
		ExpiresAt:  RowTime(row, "expiresAt"),
		CreatedAt:  RowTime(row, "createdAt"),
		UpdatedAt:  RowTime(row, "updatedAt"),
	}
}

// Row encodes the verification for the adapter boundary.
func (v *Verification) Row() map[string]any {
	return map[string]any{
		"id":         v.ID,
		"identifier": v.Identifier,
		"value":      v.Value,
		"expiresAt":  v.ExpiresAt,
		"createdAt":  v.CreatedAt,
		"updatedAt":  v.UpdatedAt,
	}
}

// TwoFactorFromRow decodes a twoFactor row.
func TwoFactorFromRow(row map[string]any) *TwoFactor {
	if row == nil {
		return nil
	}
	return &TwoFactor{
		ID:          RowString(row, "id"),
		UserID:      RowString(row, "userId"),
		Secret:      RowString(row, "secret"),
		BackupCodes: RowString(row, "backupCodes"),
	}
}

// Row encodes the twoFactor record for the adapter boundary.
func (tf *TwoFactor) Row() map[string]any {
	return map[string]any{
		"id":          tf.ID,
		"userId":      tf.UserID,
		"secret":      tf.Secret,
		"backupCodes": tf.BackupCodes,
	}
}

// TrustedDeviceFromRow decodes a trustedDevice row.
func TrustedDeviceFromRow(row map[string]any) *TrustedDevice {
	if row == nil {
		return nil
	}
	return &TrustedDevice{
		ID:        RowString(row, "id"),
		UserID:    RowString(row, "userId"),
		DeviceID:  RowString(row, "deviceId"),
		UserAgent: RowString(row, "userAgent"),
		ExpiresAt: RowTime(row, "expiresAt"),
		CreatedAt: RowTime(row, "createdAt"),
	}
}

// Row encodes the trusted device for the adapter boundary.
func (d *TrustedDevice) Row() map[string]any {
	return map[string]any{
		"id":        d.ID,
		"userId":    d.UserID,
		"deviceId":  d.DeviceID,
		"userAgent": d.UserAgent,
		"expiresAt": d.ExpiresAt,
		"createdAt": d.CreatedAt,
	}
}

// OAuthClientFromRow decodes an oauthClient row.
func OAuthClientFromRow(row map[string]any) *OAuthClient {
	if row == nil {
		return nil
	}
	return &OAuthClient{
		ID:                      RowString(row, "id"),
		ClientID:                RowString(row, "clientId"),
		ClientSecret:            RowString(row, "clientSecret"),
		Name:                    RowString(row, "name"),
		RedirectURIs:            RowStrings(row, "redirectUris"),
		Scopes:                  RowStrings(row, "scopes"),
		Public:                  RowBool(row, "public"),
		SkipConsent:             RowBool(row, "skipConsent"),
		TokenEndpointAuthMethod: RowString(row, "tokenEndpointAuthMethod"),
		GrantTypes:              RowStrings(row, "grantTypes"),
		ResponseTypes:           RowStrings(row, "responseTypes"),
		Disabled:                RowBool(row, "disabled"),
		Metadata:                RowMap(row, "metadata"),
		ReferenceID:             RowString(row, "referenceId"),
		CreatedAt:               RowTime(row, "createdAt"),
		UpdatedAt:               RowTime(row, "updatedAt"),
	}
}

// Row encodes the client for the adapter boundary.
func (c *OAuthClient) Row() map[string]any {
	return map[string]any{
		"id":                      c.ID,
		"clientId":                c.ClientID,
		"clientSecret":            c.ClientSecret,
		"name":                    c.Name,
		"redirectUris":            c.RedirectURIs,
		"scopes":                  c.Scopes,
		"public":                  c.Public,
		"skipConsent":             c.SkipConsent,
		"tokenEndpointAuthMethod": c.TokenEndpointAuthMethod,
		"grantTypes":              c.GrantTypes,
		"responseTypes":           c.ResponseTypes,
		"disabled":                c.Disabled,
		"metadata":                c.Metadata,
		"referenceId":             c.ReferenceID,
		"createdAt":               c.CreatedAt,
		"updatedAt":               c.UpdatedAt,
	}
}

// OAuthAccessTokenFromRow decodes an oauthAccessToken row.
func OAuthAccessTokenFromRow(row map[string]any) *OAuthAccessToken {
	if row == nil {
		return nil
	}
	return &OAuthAccessToken{
		ID:        RowString(row, "id"),
		Token:     RowString(row, "token"),
		ClientID:  RowString(row, "clientId"),
		UserID:    RowString(row, "userId"),
		SessionID: RowString(row, "sessionId"),
		Scopes:    RowStrings(row, "scopes"),
		ExpiresAt: RowTime(row, "expiresAt"),
		RefreshID: RowString(row, "refreshId"),
		CreatedAt: RowTime(row, "createdAt"),
	}
}

// Row encodes the access token for the adapter boundary.
func (t *OAuthAccessToken) Row() map[string]any {
	return map[string]any{
		"id":        t.ID,
		"token":     t.Token,
		"clientId":  t.ClientID,
		"userId":    t.UserID,
		"sessionId": t.SessionID,
		"scopes":    t.Scopes,
		"expiresAt": t.ExpiresAt,
		"refreshId": t.RefreshID,
		"createdAt": t.CreatedAt,
	}
}

// OAuthRefreshTokenFromRow decodes an oauthRefreshToken row.
func OAuthRefreshTokenFromRow(row map[string]any) *OAuthRefreshToken {
	if row == nil {
		return nil
	}
	return &OAuthRefreshToken{
		ID:        RowString(row, "id"),
		Token:     RowString(row, "token"),
		ClientID:  RowString(row, "clientId"),
		UserID:    RowString(row, "userId"),
		SessionID: RowString(row, "sessionId"),
		Scopes:    RowStrings(row, "scopes"),
		ExpiresAt: RowTime(row, "expiresAt"),
		RevokedAt: RowTimePtr(row, "revokedAt"),
		CreatedAt: RowTime(row, "createdAt"),
	}
}

// Row encodes the refresh token for the adapter boundary.
func (t *OAuthRefreshToken) Row() map[string]any {
	row := map[string]any{
		"id":        t.ID,
		"token":     t.Token,
		"clientId":  t.ClientID,
		"userId":    t.UserID,
		"sessionId": t.SessionID,
		"scopes":    t.Scopes,
		"expiresAt": t.ExpiresAt,
		"createdAt": t.CreatedAt,
	}
	if t.RevokedAt != nil {
		row["revokedAt"] = *t.RevokedAt
	}
	return row
}

// OAuthConsentFromRow decodes an oauthConsent row.
func OAuthConsentFromRow(row map[string]any) *OAuthConsent {
	if row == nil {
		return nil
	}
	return &OAuthConsent{
		ID:           RowString(row, "id"),
		ClientID:     RowString(row, "clientId"),
		UserID:       RowString(row, "userId"),
		Scopes:       RowStrings(row, "scopes"),
		ReferenceID:  RowString(row, "referenceId"),
		ConsentGiven: RowBool(row, "consentGiven"),
		CreatedAt:    RowTime(row, "createdAt"),
		UpdatedAt:    RowTime(row, "updatedAt"),
	}
}

// Row encodes the consent for the adapter boundary.
func (c *OAuthConsent) Row() map[string]any {
	return map[string]any{
		"id":           c.ID,
		"clientId":     c.ClientID,
		"userId":       c.UserID,
		"scopes":       c.Scopes,
		"referenceId":  c.ReferenceID,
		"consentGiven": c.ConsentGiven,
		"createdAt":    c.CreatedAt,
		"updatedAt":    c.UpdatedAt,
	}
}

// DeviceCodeFromRow decodes a deviceCode row.
func DeviceCodeFromRow(row map[string]any) *DeviceCode {
	if row == nil {
		return nil
	}
	return &DeviceCode{
		ID:              RowString(row, "id"),
		DeviceCode:      RowString(row, "deviceCode"),
		UserCode:        RowString(row, "userCode"),
		ClientID:        RowString(row, "clientId"),
		UserID:          RowString(row, "userId"),
		Scopes:          RowStrings(row, "scopes"),
		Status:          RowString(row, "status"),
		ExpiresAt:       RowTime(row, "expiresAt"),
		LastPolledAt:    RowTimePtr(row, "lastPolledAt"),
		PollingInterval: RowInt(row, "pollingInterval"),
		CreatedAt:       RowTime(row, "createdAt"),
	}
}

// Row encodes the device code for the adapter boundary.
func (d *DeviceCode) Row() map[string]any {
	row := map[string]any{
		"id":              d.ID,
		"deviceCode":      d.DeviceCode,
		"userCode":        d.UserCode,
		"clientId":        d.ClientID,
		"userId":          d.UserID,
		"scopes":          d.Scopes,
		"status":          d.Status,
		"expiresAt":       d.ExpiresAt,
		"pollingInterval": d.PollingInterval,
		"createdAt":       d.CreatedAt,
	}
	if d.LastPolledAt != nil {
		row["lastPolledAt"] = *d.LastPolledAt
	}
	return row
}

// CibaRequestFromRow decodes a cibaRequest row.
func CibaRequestFromRow(row map[string]any) *CibaRequest {
	if row == nil {
		return nil
	}
	return &CibaRequest{
		ID:              RowString(row, "id"),
		AuthReqID:       RowString(row, "authReqId"),
		ClientID:        RowString(row, "clientId"),
		UserID:          RowString(row, "userId"),
		Scopes:          RowStrings(row, "scopes"),
		Status:          RowString(row, "status"),
		LoginHint:       RowString(row, "loginHint"),
		BindingMessage:  RowString(row, "bindingMessage"),
		ExpiresAt:       RowTime(row, "expiresAt"),
		LastPolledAt:    RowTimePtr(row, "lastPolledAt"),
		PollingInterval: RowInt(row, "pollingInterval"),
		CreatedAt:       RowTime(row, "createdAt"),
	}
}

// Row encodes the CIBA request for the adapter boundary.
func (c *CibaRequest) Row() map[string]any {
	row := map[string]any{
		"id":              c.ID,
		"authReqId":       c.AuthReqID,
		"clientId":        c.ClientID,
		"userId":          c.UserID,
		"scopes":          c.Scopes,
		"status":          c.Status,
		"loginHint":       c.LoginHint,
		"bindingMessage":  c.BindingMessage,
		"expiresAt":       c.ExpiresAt,
		"pollingInterval": c.PollingInterval,
		"createdAt":       c.CreatedAt,
	}
	if c.LastPolledAt != nil {
		row["lastPolledAt"] = *c.LastPolledAt
	}
	return row
}

// JwkFromRow decodes a jwks row.
func JwkFromRow(row map[string]any) *Jwk {
	if row == nil {
		return nil
	}
	return &Jwk{
		ID:         RowString(row, "id"),
		PublicKey:  RowString(row, "publicKey"),
		PrivateKey: RowString(row, "privateKey"),
		Alg:        RowString(row, "alg"),
		CreatedAt:  RowTime(row, "createdAt"),
	}
}

// Row encodes the key for the adapter boundary.
func (k *Jwk) Row() map[string]any {
	return map[string]any{
		"id":         k.ID,
		"publicKey":  k.PublicKey,
		"privateKey": k.PrivateKey,
		"alg":        k.Alg,
		"createdAt":  k.CreatedAt,
	}
}

// RateLimitFromRow decodes a rateLimit row.
func RateLimitFromRow(row map[string]any) *RateLimit {
	if row == nil {
		return nil
	}
	return &RateLimit{
		ID:          RowString(row, "id"),
		Key:         RowString(row, "key"),
		Count:       RowInt(row, "count"),
		LastRequest: RowInt64(row, "lastRequest"),
	}
}

// Row encodes the rate limit counter for the adapter boundary.
func (r *RateLimit) Row() map[string]any {
	return map[string]any{
		"id":          r.ID,
		"key":         r.Key,
		"count":       r.Count,
		"lastRequest": r.LastRequest,
	}
}
