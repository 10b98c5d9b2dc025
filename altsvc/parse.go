// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package altsvc parses HTTP Alternative Services advertisements
// and remembers which hosts should be contacted over HTTP/3.
//
// See RFC 7838.
package altsvc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// A Directive is a parsed Alt-Svc field value.
type Directive struct {
	// Clear is set for the "clear" value, which invalidates
	// all alternatives for the origin.
	Clear    bool
	Services []Service
}

// A Service is one alternative service advertised by a server.
type Service struct {
	// ProtocolID is the ALPN protocol identifier, such as "h3".
	ProtocolID string

	// Host is the alternative host. An empty host means
	// the host of the origin.
	Host string
	Port uint16

	// MaxAge is the freshness lifetime of the advertisement.
	// It is only meaningful when HasMaxAge is set.
	MaxAge    time.Duration
	HasMaxAge bool

	Persist bool
}

// ParseErrorKind identifies the part of an Alt-Svc value that failed to parse.
type ParseErrorKind int

const (
	ErrParameter ParseErrorKind = iota
	ErrMaValue
	ErrPersistValue
	ErrAltAuthorityValue
	ErrPortNumber
)

var parseErrorText = map[ParseErrorKind]string{
	ErrParameter:         "invalid parameter",
	ErrMaValue:           "invalid value of 'ma'",
	ErrPersistValue:      "invalid value of 'persist'",
	ErrAltAuthorityValue: "invalid value of 'alt-authority'",
	ErrPortNumber:        "invalid port number",
}

func (k ParseErrorKind) String() string {
	if s, ok := parseErrorText[k]; ok {
		return s
	}
	return fmt.Sprintf("ParseErrorKind(%d)", int(k))
}

// A ParseError reports a malformed Alt-Svc value.
type ParseError struct {
	Kind     ParseErrorKind
	Fragment string // the offending part of the value
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("altsvc: %v: %q", e.Kind, e.Fragment)
}

// Parse parses an Alt-Svc field value.
//
// The value is either "clear" or a comma-separated list of services.
// Each service is a semicolon-separated list of key=value parameters:
// "ma" (max age in seconds), "persist" (only 1 is meaningful), and one
// protocol-id="host:port" alternative, where the quotes are optional and the
// host may be empty.
func Parse(s string) (Directive, error) {
	s = strings.TrimSpace(s)
	if s == "clear" {
		return Directive{Clear: true}, nil
	}
	var d Directive
	for _, svc := range strings.Split(s, ",") {
		svc = strings.TrimSpace(svc)
		if svc == "" {
			continue
		}
		srv, err := parseService(svc)
		if err != nil {
			return Directive{}, err
		}
		d.Services = append(d.Services, srv)
	}
	return d, nil
}

func parseService(s string) (Service, error) {
	var srv Service
	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		parts := strings.Split(kv, "=")
		if len(parts) != 2 {
			return Service{}, &ParseError{ErrParameter, kv}
		}
		k, v := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch k {
		case "ma":
			secs, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return Service{}, &ParseError{ErrMaValue, v}
			}
			srv.MaxAge = maxAgeDuration(secs)
			srv.HasMaxAge = true
		case "persist":
			p, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return Service{}, &ParseError{ErrPersistValue, v}
			}
			// Values other than 1 are ignored.
			if p == 1 {
				srv.Persist = true
			}
		default:
			authority := strings.Trim(v, `"`)
			i := strings.LastIndexByte(authority, ':')
			if i < 0 {
				return Service{}, &ParseError{ErrAltAuthorityValue, authority}
			}
			host, portStr := authority[:i], authority[i+1:]
			port, err := strconv.ParseUint(portStr, 10, 16)
			if err != nil {
				return Service{}, &ParseError{ErrPortNumber, portStr}
			}
			srv.ProtocolID = k
			srv.Host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
			srv.Port = uint16(port)
		}
	}
	return srv, nil
}

// maxAgeDuration converts seconds to a Duration, saturating on overflow.
func maxAgeDuration(secs uint64) time.Duration {
	const maxSecs = uint64(1<<63-1) / uint64(time.Second)
	if secs > maxSecs {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(secs) * time.Second
}
