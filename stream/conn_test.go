// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnRoundTrip(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	c := NewConn(NetStream(c1))

	go func() {
		// Echo everything back until the client closes.
		io.Copy(c2, c2)
	}()

	msg := bytes.Repeat([]byte("0123456789"), 100)
	go func() {
		c.Write(msg)
	}()
	got := make([]byte, len(msg))
	_, err := io.ReadFull(c, got)
	require.NoError(t, err)
	require.Equal(t, msg, got)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "second Close")

	_, err = c.Write([]byte("x"))
	require.ErrorIs(t, err, ErrClosed)
	require.True(t, IsClosed(err))
}

func TestConnCloseUnblocksRead(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	c := NewConn(NetStream(c1))

	errc := make(chan error, 1)
	go func() {
		_, err := c.Read(make([]byte, 10))
		errc <- err
	}()
	// Let the read start before closing.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-errc:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Read still blocked after Close")
	}
}

func TestConnAddrsAndDeadlines(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	c := NewConn(NetStream(c1))
	defer c.Close()

	require.Equal(t, c1.LocalAddr(), c.LocalAddr())
	require.Equal(t, c1.RemoteAddr(), c.RemoteAddr())
	require.Same(t, c1, c.NetConn())

	require.NoError(t, c.SetReadDeadline(time.Now().Add(-time.Second)))
	_, err := c.Read(make([]byte, 1))
	var nerr net.Error
	require.ErrorAs(t, err, &nerr)
	require.True(t, nerr.Timeout())
}

func TestConnWithoutNetStream(t *testing.T) {
	s := newTestStream()
	c := NewConn(s)
	require.Equal(t, "stream", c.LocalAddr().Network())
	require.ErrorIs(t, c.SetDeadline(time.Now()), ErrNoDeadline)
	require.Nil(t, c.NetConn())
}
