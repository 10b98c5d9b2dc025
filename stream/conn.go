// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"errors"
	"net"
	"sync"
	"time"
)

// A Conn is a blocking net.Conn driven through an Adapter.
//
// Reads are serialized with each other, as are writes. A read may run
// concurrently with a write or Close. Close waits for an in-flight write to
// resolve before shutting the inner stream down.
type Conn struct {
	a *Adapter

	rmu sync.Mutex // held for the duration of Read
	wmu sync.Mutex // held for the duration of Write and Flush
	smu sync.Mutex // held across each write-side Poll call
}

// NewConn returns a Conn over s.
func NewConn(s Stream) *Conn {
	return &Conn{a: NewAdapter(s)}
}

// Inner returns the wrapped stream.
func (c *Conn) Inner() Stream { return c.a.Inner() }

// waiter turns wake calls into channel sends.
type waiter chan struct{}

func newWaiter() waiter { return make(waiter, 1) }

func (w waiter) wake() {
	select {
	case w <- struct{}{}:
	default:
	}
}

func (c *Conn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	w := newWaiter()
	for {
		n, err := c.a.PollRead(w.wake, p)
		if err != ErrWouldBlock {
			return n, err
		}
		<-w
	}
}

func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	w := newWaiter()
	written := 0
	for written < len(p) {
		c.smu.Lock()
		n, err := c.a.PollWrite(w.wake, p[written:])
		c.smu.Unlock()
		if err == ErrWouldBlock {
			<-w
			continue
		}
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Flush flushes the inner stream.
func (c *Conn) Flush() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.pollWriteSide(c.a.PollFlush)
}

// Close shuts the inner stream down. Closing a closed Conn returns nil.
func (c *Conn) Close() error {
	return c.pollWriteSide(c.a.PollShutdown)
}

func (c *Conn) pollWriteSide(f func(wake func()) error) error {
	w := newWaiter()
	for {
		c.smu.Lock()
		err := f(w.wake)
		c.smu.Unlock()
		if err != ErrWouldBlock {
			return err
		}
		<-w
	}
}

type addrStreamer interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

type deadlineStreamer interface {
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

type streamAddr struct{}

func (streamAddr) Network() string { return "stream" }
func (streamAddr) String() string  { return "stream" }

func (c *Conn) LocalAddr() net.Addr {
	if s, ok := c.a.Inner().(addrStreamer); ok {
		return s.LocalAddr()
	}
	return streamAddr{}
}

func (c *Conn) RemoteAddr() net.Addr {
	if s, ok := c.a.Inner().(addrStreamer); ok {
		return s.RemoteAddr()
	}
	return streamAddr{}
}

func (c *Conn) SetDeadline(t time.Time) error {
	if s, ok := c.a.Inner().(deadlineStreamer); ok {
		return s.SetDeadline(t)
	}
	return ErrNoDeadline
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	if s, ok := c.a.Inner().(deadlineStreamer); ok {
		return s.SetReadDeadline(t)
	}
	return ErrNoDeadline
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	if s, ok := c.a.Inner().(deadlineStreamer); ok {
		return s.SetWriteDeadline(t)
	}
	return ErrNoDeadline
}

// NetConn returns the net.Conn underlying the inner stream,
// or nil if the inner stream was not created by NetStream.
func (c *Conn) NetConn() net.Conn {
	if s, ok := c.a.Inner().(interface{ NetConn() net.Conn }); ok {
		return s.NetConn()
	}
	return nil
}

// IsClosed reports whether err indicates use of a closed Conn or stream.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed)
}
