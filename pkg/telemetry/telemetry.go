// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry counts requests, token grants, and rate-limit
// rejections with Prometheus counters. The plugin contributes itself as the
// pipeline's metrics recorder; exposing the registry over HTTP is the
// embedder's job.
package telemetry

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
)

// PluginID is the registry key for this plugin.
const PluginID = "telemetry"

const defaultNamespace = "betterauth"

// tokenEndpointName is the endpoint every grant type redeems against,
// including the extension grants plugins register.
const tokenEndpointName = "oauth2.token"

// Options configures the telemetry plugin.
type Options struct {
	// Registerer receives the collectors, typically
	// prometheus.DefaultRegisterer or a dedicated registry. Nil keeps the
	// counters unregistered: they are still maintained but nothing exports
	// them.
	Registerer prometheus.Registerer
	// Namespace prefixes every metric name. Default "betterauth".
	Namespace string
}

// Plugin implements auth.Plugin and auth.MetricsRecorder.
type Plugin struct {
	opts Options

	requests   *prometheus.CounterVec
	grants     *prometheus.CounterVec
	rejections *prometheus.CounterVec
}

// New returns the telemetry plugin.
func New(opts Options) *Plugin {
	return &Plugin{opts: opts}
}

// ID implements auth.Plugin.
func (p *Plugin) ID() string { return PluginID }

// Init implements auth.Plugin. It builds the collectors and hands itself to
// the pipeline through the options delta, deferring to any recorder the
// embedder configured directly.
func (p *Plugin) Init(_ *auth.Context) (*auth.OptionsDelta, error) {
	if p.opts.Namespace == "" {
		p.opts.Namespace = defaultNamespace
	}

	p.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.opts.Namespace,
		Name:      "requests_total",
		Help:      "Requests served, by endpoint and status code.",
	}, []string{"endpoint", "status"})
	p.grants = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.opts.Namespace,
		Name:      "token_grants_total",
		Help:      "Successful token-endpoint responses, by grant type.",
	}, []string{"grant_type"})
	p.rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.opts.Namespace,
		Name:      "rate_limit_rejections_total",
		Help:      "Requests refused by the rate limiter.",
	}, []string{"endpoint"})

	if p.opts.Registerer != nil {
		for _, col := range []prometheus.Collector{p.requests, p.grants, p.rejections} {
			if err := p.opts.Registerer.Register(col); err != nil {
				return nil, fmt.Errorf("telemetry: registering collector: %w", err)
			}
		}
	}

	return &auth.OptionsDelta{Options: &auth.Options{Metrics: p}}, nil
}

// Endpoints implements auth.Plugin.
func (p *Plugin) Endpoints() []*auth.Endpoint { return nil }

// Hooks implements auth.Plugin.
func (p *Plugin) Hooks() ([]auth.Hook, []auth.AfterHook) { return nil, nil }

// Schema implements auth.Plugin.
func (p *Plugin) Schema() []core.Table { return nil }

// ErrorCodes implements auth.Plugin.
func (p *Plugin) ErrorCodes() map[string]string { return nil }

// RecordRequest implements auth.MetricsRecorder.
func (p *Plugin) RecordRequest(r *auth.Request, endpoint string, status int) {
	if endpoint == "" {
		endpoint = r.Path()
	}
	p.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()

	if status == http.StatusTooManyRequests {
		p.rejections.WithLabelValues(endpoint).Inc()
	}

	if endpoint == tokenEndpointName && status == http.StatusOK {
		grant := r.BodyValue("grant_type")
		if grant == "" {
			grant = "unknown"
		}
		p.grants.WithLabelValues(grant).Inc()
	}
}
