// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/adapter"
)

// tableColumns maps model names to their column lists in schema order. It
// mirrors the embedded migrations; adding a column means touching both.
var tableColumns = map[string][]string{
	"user": {
		"id", "email", "name", "image", "emailVerified", "createdAt", "updatedAt",
		"role", "banned", "banReason", "banExpires", "username", "phoneNumber", "twoFactorEnabled",
	},
	"session": {
		"id", "token", "userId", "expiresAt", "createdAt", "updatedAt",
		"userAgent", "ipAddress", "impersonatedBy", "activeOrganizationId",
	},
	"account": {
		"id", "userId", "providerId", "accountId", "password",
		"accessToken", "refreshToken", "idToken", "scope",
		"accessTokenExpiresAt", "refreshTokenExpiresAt", "createdAt", "updatedAt",
	},
	"verification": {
		"id", "identifier", "value", "expiresAt", "createdAt", "updatedAt",
	},
	"twoFactor": {
		"id", "userId", "secret", "backupCodes",
	},
	"trustedDevice": {
		"id", "userId", "deviceId", "userAgent", "expiresAt", "createdAt",
	},
	"oauthClient": {
		"id", "clientId", "clientSecret", "name", "redirectUris", "scopes",
		"public", "skipConsent", "tokenEndpointAuthMethod", "grantTypes",
		"responseTypes", "disabled", "metadata", "referenceId", "createdAt", "updatedAt",
	},
	"oauthAccessToken": {
		"id", "token", "clientId", "userId", "sessionId", "scopes",
		"expiresAt", "refreshId", "createdAt",
	},
	"oauthRefreshToken": {
		"id", "token", "clientId", "userId", "sessionId", "scopes",
		"expiresAt", "revokedAt", "createdAt",
	},
	"oauthConsent": {
		"id", "clientId", "userId", "scopes", "referenceId", "consentGiven",
		"createdAt", "updatedAt",
	},
	"deviceCode": {
		"id", "deviceCode", "userCode", "clientId", "userId", "scopes",
		"status", "expiresAt", "lastPolledAt", "pollingInterval", "createdAt",
	},
	"cibaRequest": {
		"id", "authReqId", "clientId", "userId", "scopes", "status",
		"loginHint", "bindingMessage", "expiresAt", "lastPolledAt",
		"pollingInterval", "createdAt",
	},
	"jwks": {
		"id", "publicKey", "privateKey", "alg", "createdAt",
	},
	"rateLimit": {
		"id", "key", "count", "lastRequest",
	},
}

// quoteIdent double-quotes an identifier. Column and model names come from the
// static schema, never from request input, but quoting keeps camelCase and
// reserved words (key, count) safe.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// encodeValue converts a Go value into its column representation: dates become
// epoch milliseconds, bools 0/1, slices and maps JSON text. Epoch millis keep
// range predicates on dates numeric, which RFC 3339 strings with trimmed
// trailing zeros would not.
func encodeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UnixMilli()
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UnixMilli()
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case []string:
		b, err := json.Marshal(val)
		if err != nil {
			return "[]"
		}
		return string(b)
	case []any:
		b, err := json.Marshal(val)
		if err != nil {
			return "[]"
		}
		return string(b)
	case map[string]any:
		if val == nil {
			return nil
		}
		b, err := json.Marshal(val)
		if err != nil {
			return "{}"
		}
		return string(b)
	default:
		return v
	}
}

// decodeValue normalizes driver values for the adapter boundary. The core row
// helpers finish the job per-field (epoch millis to time.Time, JSON text to
// slices).
func decodeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// compileWhere renders a where clause to " WHERE ..." with placeholder args.
// Returns an empty clause for an empty input. AND predicates join the top
// level; OR predicates collect into a single parenthesized group, matching the
// memory adapter's evaluation.
func compileWhere(where []adapter.Where) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	var ands, ors []string
	var andArgs, orArgs []any

	for _, w := range where {
		frag, fragArgs, err := compilePredicate(w)
		if err != nil {
			return "", nil, err
		}
		if w.Connector == adapter.ConnectorOr {
			ors = append(ors, frag)
			orArgs = append(orArgs, fragArgs...)
		} else {
			ands = append(ands, frag)
			andArgs = append(andArgs, fragArgs...)
		}
	}

	var parts []string
	if len(ands) > 0 {
		parts = append(parts, strings.Join(ands, " AND "))
	}
	if len(ors) > 0 {
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}
	return " WHERE " + strings.Join(parts, " AND "), append(andArgs, orArgs...), nil
}

func compilePredicate(w adapter.Where) (string, []any, error) {
	col := quoteIdent(w.Field)

	switch w.Operator {
	case "", adapter.OpEQ:
		if w.Value == nil {
			return col + " IS NULL", nil, nil
		}
		return col + " = ?", []any{encodeValue(w.Value)}, nil
	case adapter.OpNE:
		if w.Value == nil {
			return col + " IS NOT NULL", nil, nil
		}
		return col + " != ?", []any{encodeValue(w.Value)}, nil
	case adapter.OpLT:
		return col + " < ?", []any{encodeValue(w.Value)}, nil
	case adapter.OpLTE:
		return col + " <= ?", []any{encodeValue(w.Value)}, nil
	case adapter.OpGT:
		return col + " > ?", []any{encodeValue(w.Value)}, nil
	case adapter.OpGTE:
		return col + " >= ?", []any{encodeValue(w.Value)}, nil
	case adapter.OpContains:
		return col + " LIKE '%' || ? || '%'", []any{w.Value}, nil
	case adapter.OpStartsWith:
		return col + " LIKE ? || '%'", []any{w.Value}, nil
	case adapter.OpEndsWith:
		return col + " LIKE '%' || ?", []any{w.Value}, nil
	case adapter.OpIn:
		values := inValues(w.Value)
		if len(values) == 0 {
			// An empty IN list matches nothing.
			return "1 = 0", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		args := make([]any, len(values))
		for i, v := range values {
			args[i] = encodeValue(v)
		}
		return col + " IN (" + placeholders + ")", args, nil
	default:
		return "", nil, fmt.Errorf("sqlite: unsupported operator %q", w.Operator)
	}
}

func inValues(v any) []any {
	switch vals := v.(type) {
	case []any:
		return vals
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}
