// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package altsvc

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, test := range []struct {
		in   string
		want Directive
	}{{
		in: `h3=":443"; ma=3600`,
		want: Directive{Services: []Service{{
			ProtocolID: "h3",
			Port:       443,
			MaxAge:     3600 * time.Second,
			HasMaxAge:  true,
		}}},
	}, {
		in:   "clear",
		want: Directive{Clear: true},
	}, {
		in:   "  clear\t",
		want: Directive{Clear: true},
	}, {
		in: `h3="alt.example.com:443"; persist=1, h2=":8443"`,
		want: Directive{Services: []Service{{
			ProtocolID: "h3",
			Host:       "alt.example.com",
			Port:       443,
			Persist:    true,
		}, {
			ProtocolID: "h2",
			Port:       8443,
		}}},
	}, {
		in: `h3=:443;persist=0`,
		want: Directive{Services: []Service{{
			ProtocolID: "h3",
			Port:       443,
		}}},
	}, {
		in: `h3="[2001:db8::1]:443"`,
		want: Directive{Services: []Service{{
			ProtocolID: "h3",
			Host:       "2001:db8::1",
			Port:       443,
		}}},
	}, {
		in:   "",
		want: Directive{},
	}, {
		in: `h3=":443";;, ,`,
		want: Directive{Services: []Service{{
			ProtocolID: "h3",
			Port:       443,
		}}},
	}} {
		got, err := Parse(test.in)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error %v", test.in, err)
			continue
		}
		require.Equal(t, test.want, got, "Parse(%q)", test.in)
	}
}

func TestParseErrors(t *testing.T) {
	for _, test := range []struct {
		in       string
		kind     ParseErrorKind
		fragment string
	}{
		{`h3`, ErrParameter, "h3"},
		{`h3=":443"=x`, ErrParameter, `h3=":443"=x`},
		{`h3=":443"; ma=soon`, ErrMaValue, "soon"},
		{`h3=":443"; ma=-1`, ErrMaValue, "-1"},
		{`h3=":443"; persist=yes`, ErrPersistValue, "yes"},
		{`h3="example.com"`, ErrAltAuthorityValue, "example.com"},
		{`h3=":https"`, ErrPortNumber, "https"},
		{`h3=":70000"`, ErrPortNumber, "70000"},
		{`h3=":443", h2=":x"`, ErrPortNumber, "x"},
	} {
		_, err := Parse(test.in)
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("Parse(%q) = %v, want *ParseError", test.in, err)
			continue
		}
		if perr.Kind != test.kind || perr.Fragment != test.fragment {
			t.Errorf("Parse(%q): got %v %q, want %v %q", test.in, perr.Kind, perr.Fragment, test.kind, test.fragment)
		}
	}
}

func TestParseErrorMessage(t *testing.T) {
	_, err := Parse(`h3=":443"; ma=soon`)
	require.EqualError(t, err, `altsvc: invalid value of 'ma': "soon"`)
}

func TestCacheExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCache(clock)
	require.True(t, c.TryInsert("example.com", Service{
		ProtocolID: "h3",
		Port:       443,
		MaxAge:     10 * time.Second,
		HasMaxAge:  true,
	}))

	clock.Advance(10 * time.Second)
	require.True(t, c.Find("example.com"), "at exactly max age")

	// Finding the host does not extend its lifetime.
	clock.Advance(1 * time.Second)
	require.False(t, c.Find("example.com"), "one second past max age")
	require.Zero(t, c.Len(), "expired entry not removed")
}

func TestCacheZeroMaxAge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCache(clock)
	dir, err := Parse(`h3=":443"; ma=0`)
	require.NoError(t, err)
	require.True(t, c.TryInsert("example.com", dir.Services[0]))
	clock.Advance(time.Nanosecond)
	require.False(t, c.Find("example.com"))
}

func TestCacheDefaultMaxAge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCache(clock)
	require.True(t, c.TryInsert("example.com", Service{ProtocolID: "h3", Port: 443}))
	clock.Advance(DefaultMaxAge)
	require.True(t, c.Find("example.com"))
	clock.Advance(time.Second)
	require.False(t, c.Find("example.com"))
}

func TestCacheEligibility(t *testing.T) {
	for _, test := range []struct {
		name string
		srv  Service
		want bool
	}{
		{"same host", Service{ProtocolID: "h3", Host: "example.com", Port: 443}, true},
		{"empty host", Service{ProtocolID: "h3", Port: 443}, true},
		{"other port", Service{ProtocolID: "h3", Port: 8443}, false},
		{"other host", Service{ProtocolID: "h3", Host: "cdn.example.net", Port: 443}, false},
		{"other protocol", Service{ProtocolID: "h2", Port: 443}, false},
		{"draft protocol", Service{ProtocolID: "h3-29", Port: 443}, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := NewCache(clockwork.NewFakeClock())
			require.Equal(t, test.want, c.TryInsert("example.com", test.srv))
			require.Equal(t, test.want, c.Find("example.com"))
		})
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(nil)
	c.Clear("example.com")
	require.Zero(t, c.Len())

	require.True(t, c.TryInsert("example.com", Service{ProtocolID: "h3", Port: 443}))
	c.Clear("example.com")
	require.False(t, c.Find("example.com"))
}

func TestCacheUpdate(t *testing.T) {
	c := NewCache(clockwork.NewFakeClock())

	err := c.Update("example.com", []string{`h2=":443", h3=":8443", h3=":443"; ma=60`})
	require.NoError(t, err)
	require.True(t, c.Find("example.com"))

	err = c.Update("example.com", []string{`h3=":443"; ma=x`, "clear"})
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ErrMaValue, perr.Kind)
	require.False(t, c.Find("example.com"), "clear after a malformed value was not applied")

	require.NoError(t, c.Update("example.com", nil))
	require.Zero(t, c.Len())
}
