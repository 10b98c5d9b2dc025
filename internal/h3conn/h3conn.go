// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package h3conn establishes HTTP/3 connections for a pool.Pool.
package h3conn

import (
	"context"
	"crypto/tls"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/netcore/muxclient/dial"
	"github.com/netcore/muxclient/pool"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

var errClosed = errors.New("h3conn: connector closed")

// A Connector dials QUIC connections and speaks HTTP/3 over them.
// All connections share one UDP socket.
type Connector struct {
	// TLSConfig is the base client TLS configuration.
	// TLS 1.3 and the "h3" protocol are always used.
	TLSConfig *tls.Config

	QUICConfig *quic.Config

	// Dialer resolves host names. If nil, a zero dial.Dialer is used.
	Dialer *dial.Dialer

	Logger hclog.Logger

	initOnce sync.Once
	initErr  error
	udp      net.PacketConn
	tr       *quic.Transport
	h3       *http3.Transport
	tlsConf  *tls.Config
}

var _ pool.Connector = (*Connector)(nil)

func (c *Connector) init() {
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	if c.Dialer == nil {
		c.Dialer = &dial.Dialer{Logger: c.Logger}
	}

	// Make a copy of the config so we can set NextProtos and MinVersion.
	c.tlsConf = c.TLSConfig.Clone()
	if c.tlsConf == nil {
		c.tlsConf = &tls.Config{}
	}
	c.tlsConf.MinVersion = tls.VersionTLS13
	c.tlsConf.NextProtos = []string{http3.NextProtoH3}

	udp, err := net.ListenUDP("udp", nil)
	if err != nil {
		c.initErr = errors.Wrap(err, "h3conn: listening for quic")
		return
	}
	c.udp = udp
	c.tr = &quic.Transport{Conn: udp}
	c.h3 = &http3.Transport{}
}

// Connect dials key's authority over QUIC, trying each resolved address in
// order, and returns an HTTP/3 client connection.
func (c *Connector) Connect(ctx context.Context, key pool.Key) (pool.Driver, pool.Sender, error) {
	c.initOnce.Do(c.init)
	if c.initErr != nil {
		return nil, nil, c.initErr
	}
	host := key.Host()
	port, err := strconv.ParseUint(key.Port(), 10, 16)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "h3conn: bad port in %v", key)
	}
	ips, err := c.Dialer.Resolve(ctx, host)
	if err != nil {
		return nil, nil, err
	}

	tlsConf := c.tlsConf.Clone()
	if tlsConf.ServerName == "" {
		tlsConf.ServerName = host
	}
	var lastErr error
	for _, ip := range ips {
		raddr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, uint16(port)))
		qc, err := c.tr.Dial(ctx, raddr, tlsConf, c.QUICConfig)
		if err != nil {
			c.Logger.Debug("quic dial failed", "addr", raddr, "error", err)
			lastErr = errors.Wrapf(err, "h3conn: dialing %v", raddr)
			continue
		}
		c.Logger.Debug("quic connection established", "key", key, "addr", raddr)
		return &driver{conn: qc}, c.h3.NewClientConn(qc), nil
	}
	return nil, nil, lastErr
}

// Close closes the shared socket and every connection using it.
// Later calls to Connect fail.
func (c *Connector) Close() error {
	c.initOnce.Do(func() { c.initErr = errClosed })
	if c.tr == nil {
		return nil
	}
	err := c.tr.Close()
	c.udp.Close()
	return err
}

type driver struct {
	conn   quic.Connection
	closed atomic.Bool
}

// Wait blocks until the QUIC connection is closed. Closes by either side with
// the HTTP/3 no-error code count as graceful.
func (d *driver) Wait() error {
	<-d.conn.Context().Done()
	if d.closed.Load() {
		return nil
	}
	err := context.Cause(d.conn.Context())
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && appErr.ErrorCode == quic.ApplicationErrorCode(http3.ErrCodeNoError) {
		return nil
	}
	return err
}

func (d *driver) Close() error {
	d.closed.Store(true)
	return d.conn.CloseWithError(quic.ApplicationErrorCode(http3.ErrCodeNoError), "")
}
