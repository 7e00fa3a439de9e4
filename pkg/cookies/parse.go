// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package cookies

import (
	"net/http"
	"strings"
)

// SplitSetCookieHeader splits a combined Set-Cookie header on the commas that
// separate cookies, leaving intact the commas inside Expires attributes
// ("Expires=Thu, 01 Jan 1970..."). A comma is a separator only when followed
// by a token and an equals sign.
func SplitSetCookieHeader(header string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(header); i++ {
		if header[i] != ',' {
			continue
		}
		// Look ahead past whitespace for "name=".
		j := i + 1
		for j < len(header) && (header[j] == ' ' || header[j] == '\t') {
			j++
		}
		k := j
		for k < len(header) && isCookieNameByte(header[k]) {
			k++
		}
		if k > j && k < len(header) && header[k] == '=' {
			parts = append(parts, strings.TrimSpace(header[start:i]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(header[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

func isCookieNameByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_':
		return true
	}
	return false
}

// ParseSetCookies parses a combined Set-Cookie header into cookies,
// discarding entries that fail to parse.
func ParseSetCookies(header string) []*http.Cookie {
	var out []*http.Cookie
	for _, part := range SplitSetCookieHeader(header) {
		if c, err := http.ParseSetCookie(part); err == nil {
			out = append(out, c)
		}
	}
	return out
}
