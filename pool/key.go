// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pool

import (
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ErrNoDomain is returned by KeyFromURL for URLs without a scheme or host.
var ErrNoDomain = errors.New("pool: failed to extract domain")

// A Key identifies the destination served by a pooled connection.
type Key struct {
	Scheme    string
	Authority string // host[:port]
}

func (k Key) String() string {
	return k.Scheme + "://" + k.Authority
}

// Host returns the host of the key's authority, without brackets.
func (k Key) Host() string {
	host, _, err := net.SplitHostPort(k.Authority)
	if err != nil {
		return strings.TrimSuffix(strings.TrimPrefix(k.Authority, "["), "]")
	}
	return host
}

// Port returns the port of the key's authority,
// or the default port of its scheme.
func (k Key) Port() string {
	if _, port, err := net.SplitHostPort(k.Authority); err == nil && port != "" {
		return port
	}
	switch k.Scheme {
	case "http":
		return "80"
	default:
		return "443"
	}
}

// HostPort returns the authority with the port filled in.
func (k Key) HostPort() string {
	return net.JoinHostPort(k.Host(), k.Port())
}

// KeyFromURL returns the pool key for requests to u.
//
// The scheme and host are lower-cased, the host is converted to its ASCII
// form, and a port equal to the scheme's default is dropped, so that
// equivalent origins share a key.
func KeyFromURL(u *url.URL) (Key, error) {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return Key{}, ErrNoDomain
	}
	host := u.Hostname()
	if host == "" {
		return Key{}, ErrNoDomain
	}
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if _, err := netip.ParseAddr(host); err != nil {
		if ascii, err := idna.Lookup.ToASCII(host); err == nil {
			host = ascii
		}
		host = strings.ToLower(host)
	}
	authority := host
	if strings.IndexByte(host, ':') >= 0 {
		authority = "[" + host + "]"
	}
	if port != "" {
		authority = net.JoinHostPort(host, port)
	}
	return Key{Scheme: scheme, Authority: authority}, nil
}
