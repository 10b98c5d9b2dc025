// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package h2conn

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/netcore/muxclient/pool"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h2 bool) (*httptest.Server, pool.Key, *tls.Config) {
	t.Helper()
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto)
	}))
	srv.EnableHTTP2 = h2
	srv.StartTLS()
	t.Cleanup(srv.Close)
	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	key := pool.Key{Scheme: "https", Authority: srv.Listener.Addr().String()}
	return srv, key, &tls.Config{RootCAs: roots}
}

func get(t *testing.T, s pool.Sender, key pool.Key) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest("GET", key.String()+"/", nil)
	require.NoError(t, err)
	return s.RoundTrip(req)
}

func TestConnectRoundTrip(t *testing.T) {
	_, key, tlsConf := newServer(t, true)
	c := &Connector{TLSConfig: tlsConf}

	d, s, err := c.Connect(context.Background(), key)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := get(t, s, key)
		require.NoError(t, err)
		body, err := io.ReadAll(res.Body)
		res.Body.Close()
		require.NoError(t, err)
		require.Equal(t, "HTTP/2.0", string(body))
	}

	require.NoError(t, d.Close())
	require.NoError(t, d.Wait())

	_, err = get(t, s, key)
	require.ErrorIs(t, err, ErrUnusable)
}

func TestConnectRequiresH2(t *testing.T) {
	_, key, tlsConf := newServer(t, false)
	c := &Connector{TLSConfig: tlsConf}

	_, _, err := c.Connect(context.Background(), key)
	require.ErrorIs(t, err, ErrNoH2)
}

func TestDriverReportsServerClose(t *testing.T) {
	srv, key, tlsConf := newServer(t, true)
	c := &Connector{TLSConfig: tlsConf}

	d, s, err := c.Connect(context.Background(), key)
	require.NoError(t, err)
	res, err := get(t, s, key)
	require.NoError(t, err)
	res.Body.Close()

	waitc := make(chan error, 1)
	go func() { waitc <- d.Wait() }()
	srv.CloseClientConnections()
	select {
	case <-waitc:
	case <-time.After(10 * time.Second):
		t.Fatal("Wait did not return after the server closed the connection")
	}
}
