// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package muxconn

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/docker/spdystream"
	"github.com/hashicorp/go-hclog"
	"github.com/netcore/muxclient/dial"
	"github.com/netcore/muxclient/pool"
	"github.com/netcore/muxclient/stream"
	"github.com/pkg/errors"
)

// spdyStream is a stream.Stream over one SPDY stream.
//
// A client shuts its streams down with a reset, so that frames still in
// flight for an abandoned response are dropped rather than queued.
type spdyStream struct {
	s     *spdystream.Stream
	reset bool
}

func (s *spdyStream) ReadBuf(buf []byte) stream.BufResult {
	n, err := s.s.Read(buf)
	return stream.BufResult{N: n, Buf: buf, Err: err}
}

func (s *spdyStream) WriteBuf(buf []byte) stream.BufResult {
	n, err := s.s.Write(buf)
	return stream.BufResult{N: n, Buf: buf, Err: err}
}

func (s *spdyStream) Flush() error { return nil }

func (s *spdyStream) Shutdown() error {
	if s.reset {
		return s.s.Reset()
	}
	return s.s.Close()
}

// An SPDYConnector opens SPDY/3.1 sessions. Connections for "https" keys
// are secured by the Dialer's session factory.
type SPDYConnector struct {
	// Dialer opens the underlying connection. If nil, a zero
	// dial.Dialer is used.
	Dialer *dial.Dialer

	Logger hclog.Logger
}

var _ pool.Connector = (*SPDYConnector)(nil)

func (c *SPDYConnector) Connect(ctx context.Context, key pool.Key) (pool.Driver, pool.Sender, error) {
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
	sc, err := spdystream.NewConnection(conn, false)
	if err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "muxconn: failed to create spdy connection")
	}
	drv := &spdyDriver{conn: conn, sc: sc, donec: make(chan struct{})}
	go func() {
		sc.Serve(spdystream.NoOpStreamHandler)
		close(drv.donec)
	}()
	logger.Debug("spdy session established", "key", key)

	s := &streamSender{open: func(context.Context) (net.Conn, error) {
		st, err := sc.CreateStream(http.Header{}, nil, false)
		if err != nil {
			return nil, err
		}
		if err := st.Wait(); err != nil {
			st.Reset()
			return nil, errors.Wrap(err, "muxconn: spdy stream refused")
		}
		return stream.NewConn(&spdyStream{s: st, reset: true}), nil
	}}
	return drv, s, nil
}

type spdyDriver struct {
	conn   net.Conn
	sc     *spdystream.Connection
	donec  chan struct{}
	closed atomic.Bool
}

// Wait returns once the session's frame loop has ended.
func (d *spdyDriver) Wait() error {
	<-d.donec
	if d.closed.Load() {
		return nil
	}
	return errors.New("muxconn: spdy session closed")
}

func (d *spdyDriver) Close() error {
	d.closed.Store(true)
	err := d.sc.Close()
	if cerr := d.conn.Close(); err == nil && !stream.IsClosed(cerr) {
		err = cerr
	}
	return err
}

// ServeSPDY accepts connections on l and serves HTTP/1.1 requests arriving
// on the streams of a SPDY/3.1 session over each. ServeSPDY returns when l
// fails.
func ServeSPDY(l net.Listener, h http.Handler, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ln := newChanListener(l.Addr())
	defer ln.Close()
	srv := &http.Server{Handler: h, ErrorLog: logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true})}
	go srv.Serve(ln)

	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		sc, err := spdystream.NewConnection(conn, true)
		if err != nil {
			logger.Error("failed to create spdy connection", "remote", conn.RemoteAddr(), "error", err)
			conn.Close()
			continue
		}
		go func() {
			defer conn.Close()
			sc.Serve(func(st *spdystream.Stream) {
				st.SendReply(http.Header{}, false)
				if !ln.push(stream.NewConn(&spdyStream{s: st})) {
					st.Reset()
				}
			})
		}()
	}
}
