// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

// maxReadSize caps the scratch buffer allocated for a single read.
const maxReadSize = 256 << 10

// An Adapter exposes a readiness-based surface over a completion-based Stream.
//
// Each Poll method takes a wake function. When the method returns
// ErrWouldBlock, wake will be called (possibly from another goroutine) once
// the outstanding operation resolves, and the caller should then retry the
// same call. A retried PollWrite must present the same bytes. Only the
// wake function of the latest call to each Poll method is kept.
//
// An Adapter holds at most one pending operation per slot: read, write,
// flush and shutdown. A shutdown is never started while a write or flush is in
// flight, and a write or flush is never started while a shutdown is in flight.
//
// An Adapter is owned by a single goroutine at a time. It is not safe for
// concurrent use; see Conn for a blocking view that may be shared.
type Adapter struct {
	s Stream

	read    *asyncOp
	scratch []byte // reused read buffer; owned by read while it is pending
	rbuf    []byte // bytes read but not yet delivered
	rerr    error  // error to report once rbuf is drained

	write    *asyncOp
	wscratch []byte

	flush    *asyncOp
	shutdown *asyncOp
	closed   bool
}

// NewAdapter returns an Adapter taking exclusive ownership of s.
func NewAdapter(s Stream) *Adapter {
	return &Adapter{s: s}
}

// Inner returns the wrapped stream.
func (a *Adapter) Inner() Stream { return a.s }

// PollRead reads into p.
//
// If no read is pending, PollRead starts one using a scratch buffer sized to
// len(p). If a read is pending, PollRead observes it without starting
// another. On completion the bytes are copied into p and the slot is cleared.
// Bytes that do not fit in p are kept and returned by the next call.
func (a *Adapter) PollRead(wake func(), p []byte) (int, error) {
	if len(a.rbuf) > 0 {
		n := copy(p, a.rbuf)
		a.rbuf = a.rbuf[n:]
		if len(a.rbuf) == 0 && a.rerr != nil {
			err := a.rerr
			a.rerr = nil
			return n, err
		}
		return n, nil
	}
	if a.rerr != nil {
		err := a.rerr
		a.rerr = nil
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if a.read == nil {
		size := min(len(p), maxReadSize)
		buf := a.scratch
		if cap(buf) < size {
			buf = make([]byte, size)
		}
		a.scratch = nil
		a.read = startOp(buf[:size], a.s.ReadBuf)
	}
	res, done := a.read.poll(byRead, wake)
	if !done {
		return 0, ErrWouldBlock
	}
	a.read = nil
	a.scratch = res.Buf[:cap(res.Buf)]
	n := copy(p, res.Buf[:res.N])
	if n < res.N {
		a.rbuf = res.Buf[n:res.N]
		a.rerr = res.Err
		return n, nil
	}
	return n, res.Err
}

// PollWrite writes p.
//
// If no write is pending, PollWrite copies p into a buffer owned by the
// adapter and starts a write. It reports ErrWouldBlock without starting a
// write while a shutdown is in flight.
func (a *Adapter) PollWrite(wake func(), p []byte) (int, error) {
	if a.write == nil {
		if err := a.shutdownBlocks(byWrite, wake); err != nil {
			return 0, err
		}
		if len(p) == 0 {
			return 0, nil
		}
		buf := append(a.wscratch[:0], p...)
		a.wscratch = nil
		a.write = startOp(buf, a.s.WriteBuf)
	}
	res, done := a.write.poll(byWrite, wake)
	if !done {
		return 0, ErrWouldBlock
	}
	a.write = nil
	a.wscratch = res.Buf[:0]
	return res.N, res.Err
}

// PollFlush flushes the stream.
// It waits for an in-flight write to resolve before starting.
func (a *Adapter) PollFlush(wake func()) error {
	if a.flush == nil {
		if err := a.shutdownBlocks(byFlush, wake); err != nil {
			return err
		}
		if a.write != nil && a.write.inFlight(byFlush, wake) {
			return ErrWouldBlock
		}
		a.flush = startOp(nil, func([]byte) BufResult {
			return BufResult{Err: a.s.Flush()}
		})
	}
	res, done := a.flush.poll(byFlush, wake)
	if !done {
		return ErrWouldBlock
	}
	a.flush = nil
	return res.Err
}

// PollShutdown shuts the stream down.
//
// PollShutdown reports ErrWouldBlock without starting the shutdown while a
// write or flush is in flight. Once the shutdown has completed, further calls
// return nil.
func (a *Adapter) PollShutdown(wake func()) error {
	if a.closed {
		return nil
	}
	if a.shutdown == nil {
		if a.write != nil && a.write.inFlight(byShutdown, wake) {
			return ErrWouldBlock
		}
		if a.flush != nil && a.flush.inFlight(byShutdown, wake) {
			return ErrWouldBlock
		}
		a.shutdown = startOp(nil, func([]byte) BufResult {
			return BufResult{Err: a.s.Shutdown()}
		})
	}
	res, done := a.shutdown.poll(byShutdown, wake)
	if !done {
		return ErrWouldBlock
	}
	a.shutdown = nil
	a.closed = true
	return res.Err
}

// shutdownBlocks returns the error a new write or flush should report
// given the state of the shutdown slot, or nil if it may start.
func (a *Adapter) shutdownBlocks(who pollerID, wake func()) error {
	if a.closed {
		return ErrClosed
	}
	if a.shutdown != nil {
		if a.shutdown.inFlight(who, wake) {
			return ErrWouldBlock
		}
		return ErrClosed
	}
	return nil
}
