package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/sockstunnel/internal/dialer"
	"github.com/die-net/sockstunnel/internal/proxy"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("sockstunnel", pflag.ContinueOnError)
	var (
		upstream   = fs.String("proxy", defaultUpstream(), "Proxy URL: direct:// | socks4://[userid@]host:port | socks5://[user:pass@]host:port")
		httpListen = fs.String("http-listen", "", "Local HTTP proxy listen address forwarding through --proxy (e.g. 127.0.0.1:8080). Empty disables.")

		dialTimeout        = fs.Duration("dial-timeout", 10*time.Second, "Timeout for DNS lookup and TCP connect to the proxy")
		negotiationTimeout = fs.Duration("negotiation-timeout", 10*time.Second, "Timeout for the SOCKS handshake and any TLS handshake over the tunnel")
		httpIdleTimeout    = fs.Duration("http-idle-timeout", 4*time.Minute, "Timeout for idle HTTP connections")
		httpMaxIdleConns   = fs.Int("http-max-idle-conns", 100, "Maximum number of idle HTTP connections")
		tcpKeepAlive       = fs.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		insecure           = fs.Bool("insecure", false, "Skip TLS certificate verification of fetched https URLs")
		verbose            = fs.Bool("verbose", false, "Enable per-connection error logging")
	)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sockstunnel [flags] [URL...]\n\nFetches each URL through the proxy and prints the response.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	urls := fs.Args()

	if *httpListen == "" && len(urls) == 0 {
		return errors.New("nothing to do (give URLs to fetch or set --http-listen)")
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
		TLSConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: *insecure, //nolint:gosec // Opt-in via --insecure.
		},
	}

	cfg := proxy.Config{
		NegotiationTimeout: *negotiationTimeout,
		HTTPIdleTimeout:    *httpIdleTimeout,
		HTTPMaxIdleConns:   *httpMaxIdleConns,
		KeepAlive:          ka,
		Logger:             logger,
	}

	cfg.Dialer, err = dialer.New(dialCfg, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --proxy: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *httpListen != "" {
		ln, err := proxy.ListenTCP(ctx, "tcp", *httpListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		srv := proxy.NewHTTPProxyServer(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = srv.Close()
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil {
				return fmt.Errorf("http proxy serve: %w", err)
			}
			return nil
		})
		logger.Info("http proxy listening", zap.String("addr", ln.Addr().String()), zap.String("upstream", redact(*upstream)))
	}

	if len(urls) > 0 {
		client := proxy.NewClient(cfg)
		fetchErr := fetchAll(ctx, client, urls, stdout, logger)
		client.CloseIdleConnections()
		if *httpListen == "" {
			return fetchErr
		}
		if fetchErr != nil {
			logger.Warn("fetch failed", zap.Error(fetchErr))
		}
	}

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	logger.Info("shutting down")
	return err
}

// fetchAll GETs each URL in turn and prints the status line and body. It
// returns the first error but keeps going.
func fetchAll(ctx context.Context, client *http.Client, urls []string, w io.Writer, logger *zap.Logger) error {
	var firstErr error
	for _, u := range urls {
		if err := fetch(ctx, client, u, w); err != nil {
			logger.Error("fetch", zap.String("url", u), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func fetch(ctx context.Context, client *http.Client, u string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", u, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if _, err := fmt.Fprintf(w, "%s %s\n", resp.Proto, resp.Status); err != nil {
		return err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("fetch %s: %w", u, err)
	}
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.DisableStacktrace = true
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger, nil
}

// redact hides the password in a proxy URL before it is logged.
func redact(upstream string) string {
	at := strings.LastIndexByte(upstream, '@')
	scheme := strings.Index(upstream, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return upstream
	}
	userinfo := upstream[scheme+3 : at]
	if i := strings.IndexByte(userinfo, ':'); i >= 0 {
		userinfo = userinfo[:i] + ":xxxxx"
	}
	return upstream[:scheme+3] + userinfo + upstream[at:]
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositive(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositive(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositive(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     time.Duration(keepIdle) * time.Second,
		Interval: time.Duration(keepIntvl) * time.Second,
		Count:    keepCnt,
	}, nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
