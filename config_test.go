// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package muxclient

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(`
http3 = false
share_connects = true
dial_timeout = "5s"
idle_conn_timeout = "2m"
log_level = "debug"

headers {
  "User-Agent" = "muxget/1.0"
  Accept = "*/*"
}
`)
	require.NoError(t, err)

	want := DefaultConfig()
	want.HTTP3 = false
	want.ShareConnects = true
	want.DialTimeout = 5 * time.Second
	want.IdleConnTimeout = 2 * time.Minute
	want.LogLevel = "debug"
	want.Headers = map[string]string{
		"User-Agent": "muxget/1.0",
		"Accept":     "*/*",
	}
	require.Equal(t, want, cfg)
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfigErrors(t *testing.T) {
	for _, text := range []string{
		`http4 = true`,
		`dial_timeout = "soon"`,
		`http3 = `,
		"http2 = true\nhttp3 =\n# no value\n",
		`http3 = }`,
		`headers {`,
	} {
		_, err := ParseConfig(text)
		require.Error(t, err, text)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muxget.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`alt_svc = false`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.False(t, cfg.AltSvc)
	require.True(t, cfg.HTTP3)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.hcl"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
