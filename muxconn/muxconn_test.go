// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package muxconn

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/netcore/muxclient/pool"
	"github.com/stretchr/testify/require"
)

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	fmt.Fprintf(w, "%s %s %s", r.Method, r.URL.Path, body)
}

type serveFunc func(net.Listener, http.Handler, hclog.Logger) error

func startServer(t *testing.T, serve serveFunc) pool.Key {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go serve(l, http.HandlerFunc(echoHandler), hclog.NewNullLogger())
	t.Cleanup(func() { l.Close() })
	return pool.Key{Scheme: "http", Authority: l.Addr().String()}
}

func roundTrip(t *testing.T, s pool.Sender, key pool.Key, method, path, body string) string {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, key.String()+path, r)
	require.NoError(t, err)
	res, err := s.RoundTrip(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return string(b)
}

func testConnector(t *testing.T, c pool.Connector, serve serveFunc) {
	key := startServer(t, serve)
	d, s, err := c.Connect(context.Background(), key)
	require.NoError(t, err)

	require.Equal(t, "GET /a ", roundTrip(t, s, key, "GET", "/a", ""))
	require.Equal(t, "POST /b hello", roundTrip(t, s, key, "POST", "/b", "hello"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := fmt.Sprintf("/c%d", i)
			require.Equal(t, "GET "+path+" ", roundTrip(t, s, key, "GET", path, ""))
		}()
	}
	wg.Wait()

	require.NoError(t, d.Close())
	require.NoError(t, d.Wait())
}

func TestYamux(t *testing.T) {
	testConnector(t, &Connector{}, Serve)
}

func TestSPDY(t *testing.T) {
	testConnector(t, &SPDYConnector{}, ServeSPDY)
}

func TestYamuxPeerClose(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	key := pool.Key{Scheme: "http", Authority: l.Addr().String()}
	d, _, err := (&Connector{}).Connect(context.Background(), key)
	require.NoError(t, err)

	(<-accepted).Close()
	require.Error(t, d.Wait())
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	key := pool.Key{Scheme: "http", Authority: l.Addr().String()}
	l.Close()

	_, _, err = (&Connector{}).Connect(context.Background(), key)
	require.Error(t, err)
	_, _, err = (&SPDYConnector{}).Connect(context.Background(), key)
	require.Error(t, err)
}

func TestRoundTripCanceled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go Serve(l, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}), nil)

	key := pool.Key{Scheme: "http", Authority: l.Addr().String()}
	d, s, err := (&Connector{}).Connect(context.Background(), key)
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, "GET", key.String()+"/", nil)
	require.NoError(t, err)
	errc := make(chan error, 1)
	go func() {
		_, err := s.RoundTrip(req)
		errc <- err
	}()
	cancel()
	require.Error(t, <-errc)
}
