// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stream adapts completion-based byte streams to a readiness-based
// polling surface.
//
// A completion-based operation takes ownership of a buffer for as long as it
// runs and hands the buffer back with its result. A readiness-based engine
// keeps ownership of its buffers and asks, repeatedly, whether an operation
// is ready, receiving a byte count or ErrWouldBlock. An Adapter bridges the
// two by keeping at most one operation in flight per direction and owning the
// buffer of that operation until it resolves.
package stream

import (
	"errors"
	"net"
	"time"
)

var (
	// ErrWouldBlock is returned by the Poll methods of an Adapter while the
	// underlying operation is still outstanding. The caller should retry
	// after the wake function passed to the Poll method has been called.
	ErrWouldBlock = errors.New("stream: operation would block")

	// ErrClosed is returned for operations attempted after the stream was shut down.
	ErrClosed = errors.New("stream: use of closed stream")

	// ErrNoDeadline is returned by Conn deadline methods when the inner
	// stream does not support deadlines.
	ErrNoDeadline = errors.New("stream: deadlines not supported")
)

// A BufResult is the outcome of a completed operation.
// Buf is the buffer that was handed to the operation, returned to the caller.
type BufResult struct {
	N   int
	Buf []byte
	Err error
}

// A Stream is a completion-based byte stream.
//
// ReadBuf and WriteBuf own buf until they return. They may block.
// A Stream must permit one read to run concurrently with one write, flush or
// shutdown; it need not permit two reads or two writes at once.
type Stream interface {
	ReadBuf(buf []byte) BufResult
	WriteBuf(buf []byte) BufResult
	Flush() error
	Shutdown() error
}

type flusher interface {
	Flush() error
}

// NetStream returns a Stream reading from and writing to c.
// c is typically a plain socket or a TLS session.
func NetStream(c net.Conn) Stream {
	return &netStream{c: c}
}

type netStream struct {
	c net.Conn
}

func (s *netStream) ReadBuf(buf []byte) BufResult {
	n, err := s.c.Read(buf)
	return BufResult{N: n, Buf: buf, Err: err}
}

func (s *netStream) WriteBuf(buf []byte) BufResult {
	n, err := s.c.Write(buf)
	return BufResult{N: n, Buf: buf, Err: err}
}

func (s *netStream) Flush() error {
	if f, ok := s.c.(flusher); ok {
		return f.Flush()
	}
	return nil
}

func (s *netStream) Shutdown() error { return s.c.Close() }

// NetConn returns the connection the stream was created from.
func (s *netStream) NetConn() net.Conn { return s.c }

func (s *netStream) LocalAddr() net.Addr  { return s.c.LocalAddr() }
func (s *netStream) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

func (s *netStream) SetDeadline(t time.Time) error      { return s.c.SetDeadline(t) }
func (s *netStream) SetReadDeadline(t time.Time) error  { return s.c.SetReadDeadline(t) }
func (s *netStream) SetWriteDeadline(t time.Time) error { return s.c.SetWriteDeadline(t) }
