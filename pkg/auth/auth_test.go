// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/betterauth/betterauth/pkg/adapter/memory"
	"github.com/betterauth/betterauth/pkg/core"
)

const testSecret = "unit-test-secret-0123456789abcdef"

func newTestOptions() *Options {
	return &Options{
		AppName:  "Test App",
		BaseURL:  "http://localhost:3000",
		Secret:   testSecret,
		Database: memory.New(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestContext(t *testing.T, opts *Options, plugins ...Plugin) *Context {
	t.Helper()
	if opts == nil {
		opts = newTestOptions()
	}
	ctx, err := NewContext(opts, plugins...)
	require.NoError(t, err)
	return ctx
}

// testPlugin is a configurable Plugin for pipeline tests.
type testPlugin struct {
	id        string
	endpoints []*Endpoint
	before    []Hook
	after     []AfterHook
	schema    []core.Table
	codes     map[string]string
	delta     *OptionsDelta
	initFn    func(*Context) error
}

func (p *testPlugin) ID() string {
	if p.id == "" {
		return "test"
	}
	return p.id
}

func (p *testPlugin) Init(ctx *Context) (*OptionsDelta, error) {
	if p.initFn != nil {
		if err := p.initFn(ctx); err != nil {
			return nil, err
		}
	}
	return p.delta, nil
}

func (p *testPlugin) Endpoints() []*Endpoint { return p.endpoints }

func (p *testPlugin) Hooks() ([]Hook, []AfterHook) { return p.before, p.after }

func (p *testPlugin) Schema() []core.Table { return p.schema }

func (p *testPlugin) ErrorCodes() map[string]string { return p.codes }

// do runs a request against the context's handler and decodes a JSON body.
func do(t *testing.T, handler http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body map[string]any
	raw := rec.Body.Bytes()
	if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return rec, body
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// pingPlugin contributes a mutating endpoint for guard tests.
func pingPlugin(extra ...*Endpoint) *testPlugin {
	ping := Post("/ping", func(_ *Request) (any, error) {
		return map[string]any{"pong": true}, nil
	})
	ping.Name = "ping"
	return &testPlugin{id: "ping", endpoints: append([]*Endpoint{ping}, extra...)}
}
