// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"strings"
	"time"

	"github.com/betterauth/betterauth/pkg/cookies"
	"github.com/betterauth/betterauth/pkg/crypto"
)

// csrfCookieTTL bounds how long an issued double-submit cookie stays usable.
const csrfCookieTTL = 7 * 24 * time.Hour

const errorPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Authentication error</title>
<style>
body{font-family:system-ui,sans-serif;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0;background:#f5f5f5}
main{text-align:center;padding:2rem}
h1{font-size:1.5rem;color:#111}
p{color:#555}
code{background:#eee;padding:.2rem .4rem;border-radius:4px}
</style>
</head>
<body>
<main>
<h1>Something went wrong</h1>
<p>The authentication request could not be completed.</p>
<p><code id="error"></code></p>
<script>
var p=new URLSearchParams(location.search);
document.getElementById("error").textContent=p.get("error")||"";
</script>
</main>
</body>
</html>
`

// coreEndpoints are the endpoints every deployment serves regardless of
// which plugins are configured.
func coreEndpoints() []*Endpoint {
	ok := Get("/ok", func(_ *Request) (any, error) {
		return map[string]any{"ok": true}, nil
	})
	ok.Name = "ok"

	errPage := Get("/error", func(_ *Request) (any, error) {
		return HTML(errorPage), nil
	})
	errPage.Name = "error"

	csrf := Get("/csrf", func(r *Request) (any, error) {
		token := r.Auth.ensureCSRFCookie(r)
		return map[string]any{"csrfToken": token}, nil
	})
	csrf.Name = "csrf"

	return []*Endpoint{ok, errPage, csrf}
}

// ensureCSRFCookie returns the current CSRF token, minting the double-submit
// cookie when absent or no longer verifiable. Repeat calls within the
// cookie's lifetime return the same token.
func (c *Context) ensureCSRFCookie(r *Request) string {
	if raw, ok := c.Cookies.Get(r.Raw, cookies.NameCSRFToken); ok {
		token, mac, found := strings.Cut(raw, csrfSeparator)
		if found && crypto.VerifyHMACAny(c.Cookies.Secrets(), token, mac) {
			return token
		}
	}
	token, value := c.newCSRFCookieValue()
	r.SetCookie(c.Cookies.Make(cookies.NameCSRFToken, value, csrfCookieTTL))
	return token
}
