// Command sandboxmcp runs the sandboxed JavaScript execution MCP server.
// It serves the request protocol surface (initialize, tools/list,
// tools/call, resources/*) over stdio, and optionally over HTTP POST plus
// a /health endpoint when --http-addr is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dev-console/agentsandbox/internal/audit"
	"github.com/dev-console/agentsandbox/internal/config"
	"github.com/dev-console/agentsandbox/internal/netpolicy"
	"github.com/dev-console/agentsandbox/internal/redaction"
	"github.com/dev-console/agentsandbox/internal/registry"
	"github.com/dev-console/agentsandbox/internal/rules"
	"github.com/dev-console/agentsandbox/internal/sandbox"
	"github.com/dev-console/agentsandbox/internal/server"
	"github.com/dev-console/agentsandbox/internal/tasks"
)

// version is stamped into the MCP initialize response's serverInfo.
const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to the host configuration JSON file")
	httpAddr := flag.String("http-addr", "", "Address to serve HTTP POST + /health on, in addition to stdio (e.g. 127.0.0.1:8787)")
	redactionConfig := flag.String("redaction-config", "", "Path to a redaction patterns JSON file (defaults to built-in patterns)")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sandboxmcp v%s\n", version)
		return
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandboxmcp: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("loading config", zap.Error(err))
		}
		cfg = loaded
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	reg := registry.New(log)
	taskReg := tasks.New()
	engine := rules.NewEngine(rules.BuiltinRules())
	orch := sandbox.New(engine, reg, reg, defaultFetch, log)
	trail := audit.NewAuditTrail(audit.AuditConfig{})
	redactionEngine := redaction.NewRedactionEngine(*redactionConfig)

	srv := server.New(reg, taskReg, orch, trail, redactionEngine, cfg, version, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.HTTPAddr != "" {
		go serveHTTP(srv, cfg.HTTPAddr, log)
	}

	log.Info("sandboxmcp starting", zap.String("version", version), zap.String("http_addr", cfg.HTTPAddr))
	if err := srv.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && err != io.EOF {
		log.Fatal("stdio serve failed", zap.Error(err))
	}
}

// defaultFetch is the host-side network.FetchFunc bound for allow-list
// mode: a bounded HTTP GET that re-validates the target host server-side
// (the preamble's own check runs inside the worker, which is the part
// under test by an adversarial snippet; this is the trusted-side repeat
// of that check).
func defaultFetch(ctx context.Context, rawURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "", err
	}
	if blocked, reason := netpolicy.ClassifyHost(req.URL.Hostname()); blocked {
		return 0, "", fmt.Errorf("fetch: host rejected: %s", reason)
	}

	// Resolve and classify the hostname once, then pin the connection to
	// that address (see pinnedDialContext): the allow-list check above
	// only examined the literal hostname, and a second DNS lookup at dial
	// time could return a different, unclassified address (DNS rebinding)
	// for an attacker-controlled domain that legitimately passed the
	// allow-list.
	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{DialContext: pinnedDialContext},
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	const maxFetchBodySize = 2 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodySize))
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(body), nil
}

// pinnedDialContext resolves addr's hostname itself (rather than letting
// net/http's default dialer re-resolve it at connection time), rejects any
// resolved address that ClassifyHost would block, and dials that exact IP —
// closing the TOCTOU window a rebinding DNS server could otherwise use to
// point the real connection at a loopback/link-local/RFC1918 address after
// the hostname-level check in defaultFetch already passed.
func pinnedDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("fetch: no addresses found for %s", host)
	}
	var dialer net.Dialer
	var lastErr error
	for _, ip := range ips {
		if blocked, reason := netpolicy.ClassifyHost(ip.IP.String()); blocked {
			lastErr = fmt.Errorf("fetch: resolved address rejected: %s", reason)
			continue
		}
		conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.IP.String(), port))
		if err != nil {
			lastErr = err
			continue
		}
		return conn, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("fetch: no allowed addresses for %s", host)
	}
	return nil, lastErr
}

func serveHTTP(srv *server.Server, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.HandleHTTP)
	mux.HandleFunc("/health", srv.HandleHealth)
	log.Info("http transport listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("http transport failed", zap.Error(err))
	}
}
