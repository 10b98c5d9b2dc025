// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package altsvc

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// ProtocolH3 is the ALPN protocol identifier of HTTP/3.
	ProtocolH3 = "h3"

	// H3Port is the only advertised port accepted for HTTP/3.
	H3Port = 443

	// DefaultMaxAge is the lifetime of an advertisement without "ma".
	DefaultMaxAge = 86400 * time.Second
)

type hostEntry struct {
	inserted time.Time
	maxAge   time.Duration
}

// A Cache records which hosts advertised HTTP/3 and until when.
//
// It is safe for concurrent use. The zero Cache is not usable;
// create one with NewCache.
type Cache struct {
	clock clockwork.Clock

	mu    sync.Mutex
	hosts map[string]hostEntry
}

// NewCache returns an empty Cache. A nil clock means the real clock.
func NewCache(clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		clock: clock,
		hosts: make(map[string]hostEntry),
	}
}

// TryInsert records that host may be contacted over HTTP/3 if srv
// advertises h3 on port 443 at host itself (or an empty host).
// It reports whether srv was recorded.
func (c *Cache) TryInsert(host string, srv Service) bool {
	if srv.ProtocolID != ProtocolH3 ||
		srv.Port != H3Port ||
		(srv.Host != "" && srv.Host != host) {
		return false
	}
	maxAge := DefaultMaxAge
	if srv.HasMaxAge {
		maxAge = srv.MaxAge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hosts[host] = hostEntry{
		inserted: c.clock.Now(),
		maxAge:   maxAge,
	}
	return true
}

// Find reports whether host has an unexpired HTTP/3 advertisement.
// An expired entry is removed.
func (c *Cache) Find(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.hosts[host]
	if !ok {
		return false
	}
	delete(c.hosts, host)
	if c.clock.Since(e.inserted) > e.maxAge {
		return false
	}
	c.hosts[host] = e
	return true
}

// Clear removes any advertisement for host.
func (c *Cache) Clear(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hosts, host)
}

// Len returns the number of hosts in the cache, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hosts)
}

// Update applies the Alt-Svc field values of a response from host.
//
// A "clear" value removes the host. Otherwise the services are tried in
// order and the first one accepted by TryInsert is recorded.
// Values that fail to parse are skipped; the first parse error is returned.
func (c *Cache) Update(host string, values []string) error {
	var firstErr error
	for _, v := range values {
		d, err := Parse(v)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if d.Clear {
			c.Clear(host)
			continue
		}
		for _, srv := range d.Services {
			if c.TryInsert(host, srv) {
				break
			}
		}
	}
	return firstErr
}
