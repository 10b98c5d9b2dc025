// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package h2conn establishes HTTP/2 connections for a pool.Pool.
//
// Connections are TLS sessions carried over a *stream.Conn, with HTTP/2
// negotiated by ALPN.
package h2conn

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/netcore/muxclient/dial"
	"github.com/netcore/muxclient/pool"
	"github.com/netcore/muxclient/stream"
	"github.com/pkg/errors"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// ErrNoH2 is returned by Connect when the server selects a protocol other
// than HTTP/2. The connection is closed.
var ErrNoH2 = errors.New("h2conn: server did not select h2")

// ErrUnusable is returned for requests sent on a connection that can no
// longer open streams, such as one that received a GOAWAY. The connection
// is retired and the next lookup in the pool will not return it.
var ErrUnusable = errors.New("h2conn: connection cannot take new requests")

// A Connector dials TLS connections and speaks HTTP/2 over them.
type Connector struct {
	// TLSConfig is the base client TLS configuration.
	// ALPN always offers "h2" and "http/1.1".
	TLSConfig *tls.Config

	Resolver dial.Resolver
	Timeout  time.Duration

	// Proxy, if set, opens the underlying TCP connections.
	Proxy proxy.ContextDialer

	// Transport configures the HTTP/2 framing layer.
	// If nil, a zero http2.Transport is used.
	Transport *http2.Transport

	Logger hclog.Logger

	initOnce sync.Once
	dialer   *dial.Dialer
}

var _ pool.Connector = (*Connector)(nil)

func (c *Connector) init() {
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	if c.Transport == nil {
		c.Transport = &http2.Transport{}
	}
	c.dialer = &dial.Dialer{
		Resolver: c.Resolver,
		Sessions: &dial.TLSFactory{
			Config:     c.TLSConfig,
			NextProtos: []string{http2.NextProtoTLS, "http/1.1"},
		},
		Timeout: c.Timeout,
		Proxy:   c.Proxy,
		Logger:  c.Logger,
	}
}

// Connect dials key's authority and returns an HTTP/2 client connection.
// It fails with ErrNoH2 if the server does not select HTTP/2.
func (c *Connector) Connect(ctx context.Context, key pool.Key) (pool.Driver, pool.Sender, error) {
	c.initOnce.Do(c.init)
	sc, err := c.dialer.DialStream(ctx, "tcp", key.HostPort(), true)
	if err != nil {
		return nil, nil, err
	}
	if p := dial.NegotiatedProtocol(sc); p != http2.NextProtoTLS {
		sc.Close()
		return nil, nil, errors.Wrapf(ErrNoH2, "%v negotiated %q", key, p)
	}
	wc := &watchedConn{Conn: sc, donec: make(chan struct{})}
	cc, err := c.Transport.NewClientConn(wc)
	if err != nil {
		sc.Close()
		return nil, nil, errors.Wrapf(err, "h2conn: starting connection to %v", key)
	}
	c.Logger.Debug("http2 connection established", "key", key, "addr", sc.RemoteAddr())
	d := &driver{conn: wc, cc: cc}
	return d, &sender{cc: cc, d: d}, nil
}

// watchedConn records the first read error on its connection.
// The HTTP/2 read loop reads until the connection ends.
type watchedConn struct {
	net.Conn

	once  sync.Once
	err   error
	donec chan struct{}
}

func (c *watchedConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if err != nil {
		c.once.Do(func() {
			c.err = err
			close(c.donec)
		})
	}
	return n, err
}

type driver struct {
	conn    *watchedConn
	cc      *http2.ClientConn
	closed  atomic.Bool
	retired atomic.Bool
}

func (d *driver) Wait() error {
	<-d.conn.donec
	err := d.conn.err
	if d.closed.Load() || d.retired.Load() || errors.Is(err, io.EOF) || stream.IsClosed(err) {
		return nil
	}
	return err
}

func (d *driver) Close() error {
	d.closed.Store(true)
	return d.cc.Close()
}

// retire closes the connection once its in-flight requests finish.
func (d *driver) retire() {
	if d.retired.Swap(true) {
		return
	}
	go d.cc.Shutdown(context.Background())
}

type sender struct {
	cc *http2.ClientConn
	d  *driver
}

func (s *sender) RoundTrip(req *http.Request) (*http.Response, error) {
	if !s.cc.CanTakeNewRequest() {
		s.d.retire()
		return nil, ErrUnusable
	}
	return s.cc.RoundTrip(req)
}
