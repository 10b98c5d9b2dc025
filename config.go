// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package muxclient

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/scanner"
	"github.com/hashicorp/hcl/hcl/token"
	"github.com/mitchellh/mapstructure"
)

// Config configures a Client.
type Config struct {
	// HTTP3 enables the HTTP/3 path for https origins.
	HTTP3 bool `mapstructure:"http3"`

	// AltSvc makes HTTP/3 conditional on an Alt-Svc advertisement from the
	// origin. When false, every https request is first tried over HTTP/3.
	AltSvc bool `mapstructure:"alt_svc"`

	// HTTP2 enables the HTTP/2 path for https origins.
	HTTP2 bool `mapstructure:"http2"`

	// ShareConnects makes requests that find a connection attempt in
	// progress wait for it instead of falling back to another protocol.
	ShareConnects bool `mapstructure:"share_connects"`

	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// IdleConnTimeout is the idle time after which CloseIdleConnections
	// closes a pooled connection. Zero closes only dead connections.
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout"`

	// QUICIdleTimeout is the idle timeout of QUIC connections.
	// Zero uses the QUIC default.
	QUICIdleTimeout time.Duration `mapstructure:"quic_idle_timeout"`

	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`

	// Proxy is the URL of a SOCKS5 proxy for TCP connections, such as
	// "socks5://127.0.0.1:1080". HTTP/3 is disabled when a proxy is set.
	Proxy string `mapstructure:"proxy"`

	// LogLevel sets the level of the default logger. Empty disables
	// logging unless a logger is supplied with WithLogger.
	LogLevel string `mapstructure:"log_level"`

	// Headers are added to every request that does not already set them.
	Headers map[string]string `mapstructure:"headers"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HTTP3:           true,
		AltSvc:          true,
		HTTP2:           true,
		DialTimeout:     30 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		QUICIdleTimeout: 30 * time.Second,
		Headers: map[string]string{
			"User-Agent": "muxclient",
		},
	}
}

// LoadConfig reads an HCL configuration file on top of DefaultConfig.
// Unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := ParseConfig(string(b))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig parses HCL configuration text on top of DefaultConfig.
func ParseConfig(text string) (Config, error) {
	if err := checkComplete(text); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	var raw map[string]interface{}
	if err := hcl.Decode(&raw, text); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	cfg := DefaultConfig()
	if _, ok := raw["headers"]; ok {
		// Configured headers replace the defaults.
		cfg.Headers = nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// checkComplete rejects text ending in an assignment with no value,
// which the HCL parser drops without error.
func checkComplete(text string) error {
	s := scanner.New([]byte(text))
	s.Error = func(token.Pos, string) {} // reported by hcl.Decode
	var last token.Token
	for {
		tok := s.Scan()
		switch tok.Type {
		case token.EOF:
			if last.Type == token.ASSIGN {
				return fmt.Errorf("%s: missing value after '='", last.Pos)
			}
			return nil
		case token.COMMENT:
		default:
			last = tok
		}
	}
}
