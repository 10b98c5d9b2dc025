// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package muxconn carries HTTP/1.1 over general-purpose stream multiplexers.
//
// Each request opens a fresh stream on a shared session, writes the request,
// reads the response and closes the stream when the response body is closed.
// Sessions are provided by yamux (Connector, Serve) or SPDY/3.1
// (SPDYConnector, ServeSPDY).
package muxconn

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"sync"
)

// streamSender sends each request on its own stream.
type streamSender struct {
	open func(ctx context.Context) (net.Conn, error)
}

func (s *streamSender) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	c, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { c.Close() })
	if err := req.Write(c); err != nil {
		stop()
		c.Close()
		return nil, err
	}
	res, err := http.ReadResponse(bufio.NewReader(c), req)
	if err == nil && ctx.Err() != nil {
		// Closing a stream may only half-close it, and the peer can
		// still answer.
		res.Body.Close()
		err = ctx.Err()
	}
	if err != nil {
		stop()
		c.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	res.Body = &streamBody{ReadCloser: res.Body, c: c, stop: stop}
	return res, nil
}

// streamBody closes its stream along with the body.
type streamBody struct {
	io.ReadCloser
	c    net.Conn
	stop func() bool

	once sync.Once
}

func (b *streamBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() {
		b.stop()
		b.c.Close()
	})
	return err
}

// chanListener is a net.Listener fed by a session's incoming streams.
type chanListener struct {
	addr  net.Addr
	connc chan net.Conn

	once  sync.Once
	donec chan struct{}
}

func newChanListener(addr net.Addr) *chanListener {
	return &chanListener{
		addr:  addr,
		connc: make(chan net.Conn),
		donec: make(chan struct{}),
	}
}

func (l *chanListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.connc:
		return c, nil
	case <-l.donec:
		return nil, net.ErrClosed
	}
}

// push hands c to Accept. It reports false if the listener is closed.
func (l *chanListener) push(c net.Conn) bool {
	select {
	case l.connc <- c:
		return true
	case <-l.donec:
		return false
	}
}

func (l *chanListener) Close() error {
	l.once.Do(func() { close(l.donec) })
	return nil
}

func (l *chanListener) Addr() net.Addr { return l.addr }
