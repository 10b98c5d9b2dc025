// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package muxclient

import (
	"crypto/tls"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
	"github.com/netcore/muxclient/dial"
	"github.com/netcore/muxclient/pool"
)

// An Option configures a Client at construction.
type Option func(*Client)

// WithLogger sets the logger. It takes precedence over Config.LogLevel.
func WithLogger(l hclog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTLSConfig sets the base TLS configuration for every protocol.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) { c.tlsConfig = cfg }
}

// WithConnector replaces the connector of the HTTP/3 path.
func WithConnector(conn pool.Connector) Option {
	return func(c *Client) { c.h3c = conn }
}

// WithResolver sets the resolver used by every protocol.
func WithResolver(r dial.Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithMetrics sets the metrics sink. By default the global
// go-metrics instance is used.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock sets the clock used for Alt-Svc expiry and connection idleness.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}
