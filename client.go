// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package muxclient is an HTTP client that keeps one multiplexed connection
// per origin.
//
// Requests to https origins use HTTP/3 when the origin has advertised it
// with Alt-Svc, then HTTP/2 when the server selects it, and HTTP/1.1
// otherwise. HTTP/3 and HTTP/2 connections are pooled by origin and shared
// by every request to that origin.
package muxclient

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/netcore/muxclient/altsvc"
	"github.com/netcore/muxclient/dial"
	"github.com/netcore/muxclient/internal/h2conn"
	"github.com/netcore/muxclient/internal/h3conn"
	"github.com/netcore/muxclient/pool"
	"github.com/quic-go/quic-go"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// Protocol labels reported in request metrics.
const (
	ProtoHTTP3 = "h3"
	ProtoHTTP2 = "h2"
	ProtoHTTP1 = "http/1.1"
)

// A Client sends HTTP requests. It is safe for concurrent use.
type Client struct {
	cfg       Config
	logger    hclog.Logger
	metrics   *metrics.Metrics
	clock     clockwork.Clock
	tlsConfig *tls.Config
	resolver  dial.Resolver

	cache *altsvc.Cache

	h3  *pool.Pool
	h3c pool.Connector
	h2  *pool.Pool
	h2c pool.Connector
	h1  *http.Transport
	hc  *http.Client

	noH2    sync.Map // pool.Key -> struct{}, origins that refused h2
	closers []io.Closer
}

var _ http.RoundTripper = (*Client)(nil)

// New returns a Client configured by cfg and opts.
func New(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{cfg: cfg}
	for _, o := range opts {
		o(c)
	}

	if c.logger == nil {
		if cfg.LogLevel == "" {
			c.logger = hclog.NewNullLogger()
		} else {
			level := hclog.LevelFromString(cfg.LogLevel)
			if level == hclog.NoLevel {
				return nil, fmt.Errorf("muxclient: unknown log level %q", cfg.LogLevel)
			}
			c.logger = hclog.New(&hclog.LoggerOptions{
				Name:   "muxclient",
				Level:  level,
				Output: os.Stderr,
			})
		}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}

	tlsConf := c.tlsConfig.Clone()
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	}
	if cfg.InsecureSkipVerify {
		tlsConf.InsecureSkipVerify = true
	}

	var pd proxy.ContextDialer
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("muxclient: bad proxy: %w", err)
		}
		if pd, err = dial.ProxyFromURL(u); err != nil {
			return nil, fmt.Errorf("muxclient: bad proxy: %w", err)
		}
		if cfg.HTTP3 {
			c.logger.Warn("http3 disabled, QUIC cannot use the proxy", "proxy", u.Redacted())
			cfg.HTTP3 = false
			c.cfg.HTTP3 = false
		}
	}

	c.cache = altsvc.NewCache(c.clock)
	newPool := func(name string) *pool.Pool {
		return &pool.Pool{
			Logger:        c.logger.Named(name),
			Metrics:       c.metrics,
			Clock:         c.clock,
			ShareConnects: cfg.ShareConnects,
		}
	}

	if cfg.HTTP3 {
		c.h3 = newPool("h3")
		if c.h3c == nil {
			var qconf *quic.Config
			if cfg.QUICIdleTimeout > 0 {
				qconf = &quic.Config{MaxIdleTimeout: cfg.QUICIdleTimeout}
			}
			conn := &h3conn.Connector{
				TLSConfig:  tlsConf,
				QUICConfig: qconf,
				Dialer: &dial.Dialer{
					Resolver: c.resolver,
					Timeout:  cfg.DialTimeout,
					Logger:   c.logger.Named("h3"),
				},
				Logger: c.logger.Named("h3"),
			}
			c.h3c = conn
			c.closers = append(c.closers, conn)
		}
	}

	if cfg.HTTP2 {
		c.h2 = newPool("h2")
		c.h2c = &h2conn.Connector{
			TLSConfig: tlsConf,
			Resolver:  c.resolver,
			Timeout:   cfg.DialTimeout,
			Proxy:     pd,
			Transport: &http2.Transport{},
			Logger:    c.logger.Named("h2"),
		}
	}

	d := &dial.Dialer{
		Resolver: c.resolver,
		Sessions: &dial.TLSFactory{Config: tlsConf, NextProtos: []string{ProtoHTTP1}},
		Proxy:    pd,
		Timeout:  cfg.DialTimeout,
		Logger:   c.logger.Named("h1"),
	}
	c.h1 = &http.Transport{
		DialContext:     d.DialContext,
		DialTLSContext:  d.DialTLSContext,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}
	c.hc = &http.Client{Transport: c}
	return c, nil
}

// Do sends req and follows redirects, like http.Client.Do.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.hc.Do(req)
}

// Get issues a GET to url.
func (c *Client) Get(url string) (*http.Response, error) {
	return c.hc.Get(url)
}

// RoundTrip sends a single request without following redirects.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	key, err := pool.KeyFromURL(req.URL)
	if err != nil {
		return nil, err
	}
	req = c.addDefaultHeaders(req)

	start := time.Now()
	res, proto, err := c.send(req, key)
	c.measure(proto, start, err)
	if err != nil {
		return nil, err
	}
	if key.Scheme == "https" && c.h3 != nil && c.cfg.AltSvc {
		if vals := res.Header.Values("Alt-Svc"); len(vals) > 0 {
			if err := c.cache.Update(key.Host(), vals); err != nil {
				c.logger.Debug("ignoring malformed Alt-Svc", "host", key.Host(), "error", err)
			}
		}
	}
	return res, nil
}

// send picks a protocol for req and sends it. An upgraded protocol whose
// connection cannot be established yields to the next one.
func (c *Client) send(req *http.Request, key pool.Key) (*http.Response, string, error) {
	ctx := req.Context()
	https := key.Scheme == "https"

	if https && c.h3 != nil && (!c.cfg.AltSvc || c.cache.Find(key.Host())) {
		s, err := c.h3.GetOrConnect(ctx, key, c.h3c)
		switch {
		case err == nil:
			res, err := s.RoundTrip(req)
			return res, ProtoHTTP3, err
		case errors.Is(err, pool.ErrConnectInProgress):
			c.logger.Debug("http3 connection in progress, falling back", "key", key)
		default:
			c.logger.Debug("http3 connection failed, dropping alternative", "key", key, "error", err)
			c.cache.Clear(key.Host())
		}
	}

	if _, refused := c.noH2.Load(key); https && c.h2 != nil && !refused {
		s, err := c.h2.GetOrConnect(ctx, key, c.h2c)
		switch {
		case err == nil:
			res, err := s.RoundTrip(req)
			if !errors.Is(err, h2conn.ErrUnusable) {
				return res, ProtoHTTP2, err
			}
			// Going away; the pool replaces it once it has closed.
			c.logger.Debug("http2 connection retiring, falling back", "key", key)
		case errors.Is(err, h2conn.ErrNoH2):
			c.logger.Debug("server does not speak http2", "key", key)
			c.noH2.Store(key, struct{}{})
		case errors.Is(err, pool.ErrConnectInProgress):
			c.logger.Debug("http2 connection in progress, falling back", "key", key)
		default:
			return nil, ProtoHTTP2, err
		}
	}

	res, err := c.h1.RoundTrip(req)
	return res, ProtoHTTP1, err
}

func (c *Client) addDefaultHeaders(req *http.Request) *http.Request {
	cloned := false
	for k, v := range c.cfg.Headers {
		if req.Header.Get(k) != "" {
			continue
		}
		if !cloned {
			req = req.Clone(req.Context())
			if req.Header == nil {
				req.Header = make(http.Header)
			}
			cloned = true
		}
		req.Header.Set(k, v)
	}
	return req
}

func (c *Client) measure(proto string, start time.Time, err error) {
	labels := []metrics.Label{{Name: "proto", Value: proto}}
	key := []string{"client", "request"}
	if err != nil {
		key = []string{"client", "request_error"}
	}
	if c.metrics != nil {
		c.metrics.IncrCounterWithLabels(key, 1, labels)
		c.metrics.MeasureSinceWithLabels([]string{"client", "request_time"}, start, labels)
		return
	}
	metrics.IncrCounterWithLabels(key, 1, labels)
	metrics.MeasureSinceWithLabels([]string{"client", "request_time"}, start, labels)
}

// AltSvc returns the client's Alt-Svc cache.
func (c *Client) AltSvc() *altsvc.Cache { return c.cache }

// CloseIdleConnections closes HTTP/1.1 connections that are idle, and
// pooled HTTP/3 and HTTP/2 connections that have ended or have not been
// used for longer than Config.IdleConnTimeout.
func (c *Client) CloseIdleConnections() {
	c.h1.CloseIdleConnections()
	for _, p := range []*pool.Pool{c.h3, c.h2} {
		if p != nil {
			if n := p.CloseIdle(c.cfg.IdleConnTimeout); n > 0 {
				c.logger.Debug("closed idle connections", "count", n)
			}
		}
	}
}

// Close closes every connection held by the client.
func (c *Client) Close() error {
	var result *multierror.Error
	for _, p := range []*pool.Pool{c.h3, c.h2} {
		if p != nil {
			if err := p.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.h1.CloseIdleConnections()
	return result.ErrorOrNil()
}
