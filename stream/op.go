// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import "sync"

// An asyncOp is a completion-based operation running on its own goroutine.
//
// The operation owns buf from the moment it starts until donec is closed.
// res is written before donec is closed and never modified afterwards.
type asyncOp struct {
	donec chan struct{}
	res   BufResult

	mu    sync.Mutex
	wakes []waker // called once after donec is closed
}

// A waker is the latest wake function registered by one poller.
type waker struct {
	who  pollerID
	wake func()
}

// pollerID names the Poll method observing an operation. A later poll by
// the same method replaces its earlier wake function.
type pollerID int

const (
	byRead pollerID = iota
	byWrite
	byFlush
	byShutdown
)

func startOp(buf []byte, f func([]byte) BufResult) *asyncOp {
	op := &asyncOp{donec: make(chan struct{})}
	go func() {
		op.res = f(buf)
		close(op.donec)
		op.mu.Lock()
		wakes := op.wakes
		op.wakes = nil
		op.mu.Unlock()
		for _, w := range wakes {
			w.wake()
		}
	}()
	return op
}

// poll reports the result of the operation if it has completed.
// Otherwise it arranges for wake to be called when the operation completes,
// replacing any wake function registered earlier by the same poller, and
// returns false.
//
// poll does not consume the result; it may be called any number of times.
func (op *asyncOp) poll(who pollerID, wake func()) (BufResult, bool) {
	select {
	case <-op.donec:
		return op.res, true
	default:
	}
	if wake != nil {
		op.register(who, wake)
	}
	// The operation may have completed before wake was registered.
	select {
	case <-op.donec:
		return op.res, true
	default:
		return BufResult{}, false
	}
}

func (op *asyncOp) register(who pollerID, wake func()) {
	op.mu.Lock()
	defer op.mu.Unlock()
	for i := range op.wakes {
		if op.wakes[i].who == who {
			op.wakes[i].wake = wake
			return
		}
	}
	op.wakes = append(op.wakes, waker{who, wake})
}

// inFlight reports whether the operation has not yet resolved,
// registering wake if so.
func (op *asyncOp) inFlight(who pollerID, wake func()) bool {
	_, done := op.poll(who, wake)
	return !done
}
