// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package muxconn

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/yamux"
	"github.com/netcore/muxclient/dial"
	"github.com/netcore/muxclient/pool"
	"github.com/pkg/errors"
)

func yamuxConfig(logger hclog.Logger) *yamux.Config {
	conf := yamux.DefaultConfig()
	conf.LogOutput = logger.StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})
	return conf
}

// A Connector opens yamux sessions. Connections for "https" keys are
// secured by the Dialer's session factory.
type Connector struct {
	// Dialer opens the underlying connection. If nil, a zero
	// dial.Dialer is used.
	Dialer *dial.Dialer

	Logger hclog.Logger
}

var _ pool.Connector = (*Connector)(nil)

func (c *Connector) Connect(ctx context.Context, key pool.Key) (pool.Driver, pool.Sender, error) {
	logger := c.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	d := c.Dialer
	if d == nil {
		d = &dial.Dialer{Logger: logger}
	}
	conn, err := d.DialStream(ctx, "tcp", key.HostPort(), key.Scheme == "https")
	if err != nil {
		return nil, nil, err
	}
	session, err := yamux.Client(conn, yamuxConfig(logger))
	if err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "muxconn: failed to create yamux client")
	}
	logger.Debug("yamux session established", "key", key)
	s := &streamSender{open: func(context.Context) (net.Conn, error) {
		return session.Open()
	}}
	return &yamuxDriver{session: session}, s, nil
}

type yamuxDriver struct {
	session *yamux.Session
	closed  atomic.Bool
}

func (d *yamuxDriver) Wait() error {
	<-d.session.CloseChan()
	if d.closed.Load() {
		return nil
	}
	return yamux.ErrSessionShutdown
}

func (d *yamuxDriver) Close() error {
	d.closed.Store(true)
	return d.session.Close()
}

// Serve accepts connections on l and serves HTTP/1.1 requests arriving on
// the streams of a yamux session over each. Serve returns when l fails.
func Serve(l net.Listener, h http.Handler, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		session, err := yamux.Server(conn, yamuxConfig(logger))
		if err != nil {
			logger.Error("failed to create yamux server", "remote", conn.RemoteAddr(), "error", err)
			conn.Close()
			continue
		}
		go func() {
			defer session.Close()
			srv := &http.Server{Handler: h, ErrorLog: logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true})}
			if err := srv.Serve(session); err != nil && !errors.Is(err, net.ErrClosed) && !session.IsClosed() {
				logger.Debug("yamux session ended", "remote", conn.RemoteAddr(), "error", err)
			}
		}()
	}
}
