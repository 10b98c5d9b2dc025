// Copyright 2026 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
The muxget command fetches URLs over pooled multiplexed connections.

Usage:

	$ muxget [flags] <url>
	$ muxget serve [-listen addr] [-spdy] [-max-conns n]

Repeating a request with -n shows connection reuse and, for servers that
advertise HTTP/3 with Alt-Svc, the switch to HTTP/3 after the first response.
The serve command runs a small echo server over yamux or SPDY, which muxget
can reach with -mux.
*/
package main

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/netcore/muxclient"
	"github.com/netcore/muxclient/muxconn"
	"github.com/netcore/muxclient/pool"
	"github.com/urfave/cli"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/net/netutil"
	"golang.org/x/term"
)

func main() {
	app := cli.NewApp()
	app.Name = "muxget"
	app.Usage = "fetch URLs over pooled multiplexed connections"
	app.ArgsUsage = "<url>"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "HCL configuration `file`"},
		cli.StringFlag{Name: "X", Value: "GET", Usage: "request `method`"},
		cli.StringSliceFlag{Name: "H", Usage: "add a request header, 'Name: value' (repeatable)"},
		cli.StringFlag{Name: "d", Usage: "request body `data`; @file reads a file"},
		cli.StringFlag{Name: "o", Usage: "write the body to `file` instead of stdout"},
		cli.IntFlag{Name: "n", Value: 1, Usage: "send the request `count` times"},
		cli.BoolFlag{Name: "http3", Usage: "try HTTP/3 without waiting for Alt-Svc"},
		cli.BoolFlag{Name: "http2", Usage: "use at most HTTP/2"},
		cli.StringFlag{Name: "mux", Usage: "send over a `yamux` or `spdy` session instead"},
		cli.BoolFlag{Name: "insecure, k", Usage: "skip TLS certificate verification"},
		cli.StringFlag{Name: "proxy, x", Usage: "SOCKS5 proxy `url`"},
		cli.BoolFlag{Name: "v", Usage: "log connection activity"},
		cli.BoolFlag{Name: "stats", Usage: "print request and pool metrics"},
	}
	app.Action = fetch
	app.Commands = []cli.Command{{
		Name:  "serve",
		Usage: "serve an echo handler over yamux or SPDY",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "listen, l", Value: "127.0.0.1:8480", Usage: "listen `address`"},
			cli.BoolFlag{Name: "spdy", Usage: "use SPDY/3.1 instead of yamux"},
			cli.IntFlag{Name: "max-conns", Usage: "accept at most `n` simultaneous connections (0 for no limit)"},
			cli.BoolFlag{Name: "v", Usage: "log session activity"},
		},
		Action: serve,
	}}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "muxget: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool, level string) hclog.Logger {
	if verbose {
		level = "debug"
	}
	if level == "" {
		level = "warn"
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "muxget",
		Level:  hclog.LevelFromString(level),
		Output: os.Stderr,
	})
}

func loadConfig(c *cli.Context) (muxclient.Config, error) {
	cfg := muxclient.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = muxclient.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if c.Bool("http3") {
		cfg.HTTP3 = true
		cfg.AltSvc = false
	}
	if c.Bool("http2") {
		cfg.HTTP3 = false
		cfg.HTTP2 = true
	}
	if c.Bool("insecure") {
		cfg.InsecureSkipVerify = true
	}
	if p := c.String("proxy"); p != "" {
		cfg.Proxy = p
	}
	return cfg, nil
}

func parseHeaders(lines []string) (http.Header, error) {
	h := make(http.Header)
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if !ok || !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("invalid header %q", line)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("invalid value for header %q", name)
		}
		h.Add(name, value)
	}
	return h, nil
}

func readData(arg string) ([]byte, error) {
	if strings.HasPrefix(arg, "@") {
		return os.ReadFile(arg[1:])
	}
	return []byte(arg), nil
}

// newRequestFunc returns a function building a fresh request per call,
// so that each repetition carries the whole body.
func newRequestFunc(c *cli.Context, url string) (func() (*http.Request, error), error) {
	header, err := parseHeaders(c.StringSlice("H"))
	if err != nil {
		return nil, err
	}
	var data []byte
	if d := c.String("d"); d != "" {
		if data, err = readData(d); err != nil {
			return nil, err
		}
	}
	method := strings.ToUpper(c.String("X"))
	if !httpguts.ValidHeaderFieldName(method) {
		return nil, fmt.Errorf("invalid method %q", method)
	}
	return func() (*http.Request, error) {
		var body io.Reader
		if data != nil {
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequest(method, url, body)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			req.Header[k] = append([]string(nil), vs...)
		}
		return req, nil
	}, nil
}

func fetch(c *cli.Context) error {
	if c.NArg() != 1 {
		cli.ShowAppHelp(c)
		return cli.NewExitError("", 2)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(c.Bool("v"), cfg.LogLevel)

	var sink *metrics.InmemSink
	opts := []muxclient.Option{muxclient.WithLogger(logger)}
	var m *metrics.Metrics
	if c.Bool("stats") {
		sink = metrics.NewInmemSink(time.Hour, time.Hour)
		conf := metrics.DefaultConfig("muxget")
		conf.EnableHostname = false
		conf.EnableRuntimeMetrics = false
		if m, err = metrics.New(conf, sink); err != nil {
			return err
		}
		opts = append(opts, muxclient.WithMetrics(m))
	}

	newRequest, err := newRequestFunc(c, c.Args().First())
	if err != nil {
		return err
	}

	var rt http.RoundTripper
	var closer io.Closer
	switch mux := c.String("mux"); mux {
	case "":
		client, err := muxclient.New(cfg, opts...)
		if err != nil {
			return err
		}
		rt, closer = client, client
	case "yamux", "spdy":
		var conn pool.Connector = &muxconn.Connector{Logger: logger.Named("yamux")}
		if mux == "spdy" {
			conn = &muxconn.SPDYConnector{Logger: logger.Named("spdy")}
		}
		p := &pool.Pool{Logger: logger.Named("pool"), Metrics: m}
		rt, closer = &pooledTransport{pool: p, conn: conn}, p
	default:
		return fmt.Errorf("unknown multiplexer %q", mux)
	}
	defer closer.Close()

	out := io.Writer(os.Stdout)
	toTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if path := c.String("o"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out, toTerminal = f, false
	}

	for i := 0; i < c.Int("n"); i++ {
		req, err := newRequest()
		if err != nil {
			return err
		}
		if err := fetchOnce(rt, req, out, toTerminal, logger); err != nil {
			return err
		}
	}

	if sink != nil {
		printStats(os.Stderr, sink)
	}
	return nil
}

func fetchOnce(rt http.RoundTripper, req *http.Request, out io.Writer, toTerminal bool, logger hclog.Logger) error {
	start := time.Now()
	res, err := rt.RoundTrip(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	logger.Info("response", "status", res.Status, "proto", res.Proto, "bytes", len(body), "elapsed", time.Since(start))
	if toTerminal && isBinary(body) {
		fmt.Fprintf(os.Stderr, "muxget: not printing %d bytes of binary output to a terminal; use -o\n", len(body))
		return nil
	}
	_, err = out.Write(body)
	return err
}

func isBinary(b []byte) bool {
	return bytes.IndexByte(b, 0) >= 0 || !utf8.Valid(b)
}

func printStats(w io.Writer, sink *metrics.InmemSink) {
	for _, interval := range sink.Data() {
		names := make([]string, 0, len(interval.Counters))
		for name := range interval.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%-50s %d\n", name, interval.Counters[name].Count)
		}
		names = names[:0]
		for name := range interval.Samples {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := interval.Samples[name]
			fmt.Fprintf(w, "%-50s mean=%.3fms max=%.3fms\n", name, s.Mean, s.Max)
		}
	}
}

// pooledTransport sends every request through one pool and connector.
type pooledTransport struct {
	pool *pool.Pool
	conn pool.Connector
}

func (t *pooledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key, err := pool.KeyFromURL(req.URL)
	if err != nil {
		return nil, err
	}
	s, err := t.pool.GetOrConnect(req.Context(), key, t.conn)
	if err != nil {
		return nil, err
	}
	return s.RoundTrip(req)
}

func serve(c *cli.Context) error {
	logger := newLogger(c.Bool("v"), "")
	l, err := net.Listen("tcp", c.String("listen"))
	if err != nil {
		return err
	}
	defer l.Close()
	if n := c.Int("max-conns"); n > 0 {
		l = netutil.LimitListener(l, n)
	}

	h := http.HandlerFunc(echo)
	if c.Bool("spdy") {
		logger.Info("serving over spdy", "addr", l.Addr())
		return muxconn.ServeSPDY(l, h, logger)
	}
	logger.Info("serving over yamux", "addr", l.Addr())
	return muxconn.Serve(l, h, logger)
}

func echo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s %s %s\n", r.Method, r.URL.RequestURI(), r.Proto)
	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, strings.Join(r.Header[k], ", "))
	}
	fmt.Fprintln(w)
	io.Copy(w, r.Body)
}
