// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pool caches multiplexed client connections by destination.
//
// A Pool holds at most one live connection per Key. Connections are
// established by a Connector, at most one attempt per Key at a time, and are
// checked for liveness lazily: a connection whose driver has reported its end
// is evicted the next time its key is looked up.
package pool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrConnectInProgress is returned when a connection attempt for the
	// same key is already running.
	ErrConnectInProgress = errors.New("pool: connection attempt already in progress")

	// ErrPoolClosed is returned by operations on a closed Pool.
	ErrPoolClosed = errors.New("pool: pool closed")
)

// A Sender sends requests over a pooled connection.
// A Sender is shared by every caller that obtains it from the pool
// and must be safe for concurrent use.
type Sender interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// A Driver represents the lifetime of a multiplexed connection.
type Driver interface {
	// Wait blocks until the connection has closed. It returns the
	// error that terminated the connection, or nil if it closed cleanly.
	// Wait must return once Close has been called.
	Wait() error

	// Close closes the connection.
	Close() error
}

// A Connector establishes multiplexed connections.
type Connector interface {
	Connect(ctx context.Context, key Key) (Driver, Sender, error)
}

// ConnectorFunc adapts a function to a Connector.
type ConnectorFunc func(ctx context.Context, key Key) (Driver, Sender, error)

func (f ConnectorFunc) Connect(ctx context.Context, key Key) (Driver, Sender, error) {
	return f(ctx, key)
}

// entry is a pooled connection.
type entry struct {
	sender Sender
	driver Driver

	// closec receives the error that ended the connection, if any,
	// and is closed when the driver's Wait returns.
	closec   <-chan error
	lastUsed time.Time
}

// dead reports whether the connection has ended.
func (e *entry) dead() bool {
	select {
	case <-e.closec:
		return true
	default:
		return false
	}
}

// A Pool caches multiplexed connections.
//
// The zero Pool is ready to use. Its exported fields must not be
// modified after first use. A Pool is safe for concurrent use.
type Pool struct {
	// Logger receives debug output. If nil, nothing is logged.
	Logger hclog.Logger

	// Metrics receives pool counters. If nil, the global
	// go-metrics instance is used.
	Metrics *metrics.Metrics

	// Clock timestamps connection use. If nil, the real clock is used.
	Clock clockwork.Clock

	// ShareConnects makes a caller that finds a connection attempt in
	// progress wait for that attempt and share its result. By default the
	// caller fails immediately with ErrConnectInProgress.
	ShareConnects bool

	initOnce sync.Once
	group    singleflight.Group

	mu         sync.Mutex
	connecting map[Key]struct{}
	conns      map[Key]*entry
	closed     bool
}

func (p *Pool) init() {
	if p.Logger == nil {
		p.Logger = hclog.NewNullLogger()
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	p.connecting = make(map[Key]struct{})
	p.conns = make(map[Key]*entry)
}

func (p *Pool) incr(name string) {
	key := []string{"pool", name}
	if p.Metrics != nil {
		p.Metrics.IncrCounter(key, 1)
		return
	}
	metrics.IncrCounter(key, 1)
}

// TryPool returns the pooled sender for key without blocking.
//
// If the pooled connection has ended, it is evicted and TryPool reports
// false. Otherwise the connection's last-used time is refreshed.
func (p *Pool) TryPool(key Key) (Sender, bool) {
	p.initOnce.Do(p.init)
	p.mu.Lock()
	e, ok := p.conns[key]
	if !ok {
		p.mu.Unlock()
		return nil, false
	}
	if e.dead() {
		delete(p.conns, key)
		p.mu.Unlock()
		p.incr("evict")
		p.Logger.Debug("evicting closed connection", "key", key)
		e.driver.Close()
		return nil, false
	}
	e.lastUsed = p.Clock.Now()
	p.mu.Unlock()
	return e.sender, true
}

// BeginConnecting records that a connection attempt for key has started.
// It fails with ErrConnectInProgress if one already has.
//
// A successful call must be followed by exactly one call to
// FinishConnecting or AbortConnecting for the same key.
func (p *Pool) BeginConnecting(key Key) error {
	_, err := p.begin(key, false)
	return err
}

// begin marks an attempt for key as started. If reuse is set and a live
// connection is pooled for key, begin returns its sender instead, checked
// under the same lock so that a connection pooled since the caller's miss
// is not dialed again.
func (p *Pool) begin(key Key, reuse bool) (Sender, error) {
	p.initOnce.Do(p.init)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if e, ok := p.conns[key]; ok && reuse && !e.dead() {
		e.lastUsed = p.Clock.Now()
		return e.sender, nil
	}
	if _, ok := p.connecting[key]; ok {
		p.incr("duplicate")
		return nil, fmt.Errorf("%w for %v", ErrConnectInProgress, key)
	}
	p.connecting[key] = struct{}{}
	return nil, nil
}

// AbortConnecting ends a connection attempt for key that failed.
func (p *Pool) AbortConnecting(key Key) {
	p.initOnce.Do(p.init)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.connecting, key)
}

// FinishConnecting adds an established connection to the pool and ends the
// connection attempt for key. It returns sender.
//
// A goroutine waits on driver and records the connection's end, to be
// noticed by the next TryPool for key.
//
// A connection already pooled for key is replaced and closed.
// Calling FinishConnecting for a key with no attempt in progress panics.
func (p *Pool) FinishConnecting(key Key, driver Driver, sender Sender) Sender {
	p.initOnce.Do(p.init)
	p.mu.Lock()
	if _, ok := p.connecting[key]; !ok {
		p.mu.Unlock()
		panic(fmt.Sprintf("pool: FinishConnecting(%v) without BeginConnecting", key))
	}
	delete(p.connecting, key)
	if p.closed {
		p.mu.Unlock()
		driver.Close()
		return sender
	}
	closec := make(chan error, 1)
	old := p.conns[key]
	p.conns[key] = &entry{
		sender:   sender,
		driver:   driver,
		closec:   closec,
		lastUsed: p.Clock.Now(),
	}
	p.mu.Unlock()

	go func() {
		err := driver.Wait()
		if err != nil {
			closec <- err
		}
		close(closec)
		p.Logger.Debug("connection closed", "key", key, "error", err)
	}()
	p.incr("connect")
	if old != nil {
		p.incr("evict")
		p.Logger.Debug("closing replaced connection", "key", key)
		old.driver.Close()
	}
	return sender
}

// GetOrConnect returns the pooled sender for key, connecting with c if
// there is none.
//
// If another connection attempt for key is in progress, GetOrConnect fails
// with ErrConnectInProgress, or waits for that attempt when ShareConnects is
// set. If c fails, key is released so that a later call may retry.
func (p *Pool) GetOrConnect(ctx context.Context, key Key, c Connector) (Sender, error) {
	if s, ok := p.TryPool(key); ok {
		p.incr("hit")
		return s, nil
	}
	p.incr("miss")
	if p.ShareConnects {
		return p.connectShared(ctx, key, c)
	}
	return p.connect(ctx, key, c)
}

func (p *Pool) connect(ctx context.Context, key Key, c Connector) (Sender, error) {
	if s, err := p.begin(key, true); err != nil || s != nil {
		return s, err
	}
	p.Logger.Debug("connecting", "key", key)
	driver, sender, err := c.Connect(ctx, key)
	if err != nil {
		p.AbortConnecting(key)
		p.incr("connect_error")
		p.Logger.Debug("connect failed", "key", key, "error", err)
		return nil, err
	}
	return p.FinishConnecting(key, driver, sender), nil
}

func (p *Pool) connectShared(ctx context.Context, key Key, c Connector) (Sender, error) {
	ch := p.group.DoChan(key.String(), func() (interface{}, error) {
		// The previous leader may have finished after our miss.
		if s, ok := p.TryPool(key); ok {
			return s, nil
		}
		// The attempt outlives any single waiter.
		return p.connect(context.WithoutCancel(ctx), key, c)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Sender), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of pooled connections, including ones that have
// ended but have not yet been evicted.
func (p *Pool) Len() int {
	p.initOnce.Do(p.init)
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// CloseIdle evicts and closes connections that have ended or that have not
// been handed out by TryPool for longer than maxIdle. A maxIdle of zero
// evicts only ended connections. It returns the number evicted.
//
// The pool never sweeps by itself; CloseIdle runs only when called.
func (p *Pool) CloseIdle(maxIdle time.Duration) int {
	p.initOnce.Do(p.init)
	now := p.Clock.Now()
	var evicted []*entry
	p.mu.Lock()
	for key, e := range p.conns {
		if e.dead() || (maxIdle > 0 && now.Sub(e.lastUsed) > maxIdle) {
			delete(p.conns, key)
			evicted = append(evicted, e)
		}
	}
	p.mu.Unlock()
	for _, e := range evicted {
		p.incr("evict")
		e.driver.Close()
	}
	return len(evicted)
}

// Close closes every pooled connection. Connection attempts that finish
// after Close are closed as they complete.
func (p *Pool) Close() error {
	p.initOnce.Do(p.init)
	p.mu.Lock()
	p.closed = true
	conns := p.conns
	p.conns = make(map[Key]*entry)
	p.mu.Unlock()

	var result *multierror.Error
	for key, e := range conns {
		if err := e.driver.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing %v: %w", key, err))
		}
	}
	return result.ErrorOrNil()
}
