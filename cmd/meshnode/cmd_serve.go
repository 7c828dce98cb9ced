package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shurlinet/meshgit/internal/auth"
	"github.com/shurlinet/meshgit/internal/config"
	"github.com/shurlinet/meshgit/internal/daemon"
	"github.com/shurlinet/meshgit/internal/gitfetch"
	"github.com/shurlinet/meshgit/internal/identity"
	"github.com/shurlinet/meshgit/internal/reputation"
	"github.com/shurlinet/meshgit/internal/storage"
	"github.com/shurlinet/meshgit/pkg/netcore"
)

// daemonSocketPath and daemonCookiePath locate the Unix socket and
// bearer-token cookie the control API listens on, alongside the rest of
// a node's config directory.
func daemonSocketPath() string {
	dir, err := config.DefaultConfigDir()
	if err != nil {
		fatal("Cannot determine config directory: %v", err)
	}
	return filepath.Join(dir, "meshnode.sock")
}

func daemonCookiePath() string {
	dir, err := config.DefaultConfigDir()
	if err != nil {
		fatal("Cannot determine config directory: %v", err)
	}
	return filepath.Join(dir, ".daemon-cookie")
}

// serveRuntime implements daemon.RuntimeInfo against the real
// collaborators a "meshnode serve" process wires up, mirroring the
// mockRuntime test double in internal/daemon but backed by loaded
// config, a persisted identity, and an on-disk peer history instead of
// test fakes.
type serveRuntime struct {
	host      *daemon.Host
	storage   netcore.Storage
	id        netcore.PeerId
	listen    string
	version   string
	startTime time.Time
}

func (rt *serveRuntime) HostLoop() *daemon.Host   { return rt.host }
func (rt *serveRuntime) Storage() netcore.Storage { return rt.storage }
func (rt *serveRuntime) Identity() netcore.PeerId { return rt.id }
func (rt *serveRuntime) ListenAddr() string       { return rt.listen }
func (rt *serveRuntime) Version() string          { return rt.version }
func (rt *serveRuntime) StartTime() time.Time     { return rt.startTime }

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}

	fmt.Printf("meshnode %s (%s)\n", version, commit)
	fmt.Println()

	cfgFile, err := config.FindConfigFile(*configFlag)
	if err != nil {
		fatal("Config error: %v", err)
	}
	cfg, err := config.LoadNodeConfig(cfgFile)
	if err != nil {
		fatal("Config error: %v", err)
	}
	configDir := filepath.Dir(cfgFile)
	config.ResolveConfigPaths(cfg, configDir)
	if err := config.ValidateNodeConfig(cfg); err != nil {
		fatal("Config invalid: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if deadline, err := config.CheckPending(cfgFile); err == nil && !deadline.IsZero() {
		fmt.Printf("Commit-confirmed pending, reverting at %s unless confirmed\n", deadline.Format(time.RFC3339))
		go config.EnforceCommitConfirmed(ctx, cfgFile, deadline, osExit)
	}

	id, err := identity.LoadOrCreate(cfg.Identity.KeyFile)
	if err != nil {
		fatal("Failed to load identity: %v", err)
	}
	fmt.Printf("Peer ID: %s\n", id.Id().String())

	policy, err := config.BuildTrackingPolicy(cfg.Tracking)
	if err != nil {
		fatal("Tracking policy error: %v", err)
	}

	var metrics *netcore.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		metrics = netcore.NewMetrics()
	}

	listenAddr, err := config.NormalizeSocketAddr(cfg.Network.ListenAddr)
	if err != nil {
		fatal("Listen address error: %v", err)
	}
	connectAddrs := make([]string, 0, len(cfg.Network.Connect))
	for _, addr := range cfg.Network.Connect {
		normalized, err := config.NormalizeSocketAddr(addr)
		if err != nil {
			fatal("Connect address error: %v", err)
		}
		connectAddrs = append(connectAddrs, normalized)
	}

	store := storage.New()
	proto := netcore.NewProtocol(netcore.ProtocolConfig{
		NetworkMagic: cfg.Network.NetworkMagic,
		ListenAddrs:  []string{listenAddr},
		GitURL:       cfg.Network.GitURL,
		Signer:       id,
		Storage:      store,
		Policy:       policy,
		Metrics:      metrics,
	})

	fetcher := gitfetch.New(filepath.Join(configDir, "repos"))

	host := daemon.NewHost(proto, nil, fetcher, listenAddr)

	history := reputation.NewPeerHistory(filepath.Join(configDir, "peer_history.json"))
	if err := history.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load peer history: %v\n", err)
	}
	host = host.WithHistory(history)

	if cfg.Security.AuthorizedKeysFile != "" {
		authorized, err := auth.LoadAuthorizedKeys(cfg.Security.AuthorizedKeysFile)
		if err != nil {
			fatal("Failed to load authorized_keys: %v", err)
		}
		ids := make([]netcore.PeerId, 0, len(authorized))
		for peerID := range authorized {
			ids = append(ids, peerID)
		}
		gater := auth.NewPeerGater(ids)
		host = host.WithGater(gater)
		if gater.Count() > 0 {
			fmt.Printf("Authorized peers: %d\n", gater.Count())
		} else {
			fmt.Println("Authorized peers: none configured, admitting every peer")
		}
	}

	go func() {
		if err := host.Run(ctx, connectAddrs); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Host loop exited: %v\n", err)
		}
	}()

	rt := &serveRuntime{
		host:      host,
		storage:   store,
		id:        id.Id(),
		listen:    listenAddr,
		version:   version,
		startTime: time.Now(),
	}

	socketPath := daemonSocketPath()
	cookiePath := daemonCookiePath()

	srv := daemon.NewServer(rt, socketPath, cookiePath)
	srv.SetAudit(daemon.NewAuditLogger(slog.NewTextHandler(os.Stderr, nil)))
	if err := srv.Start(); err != nil {
		fatal("Daemon API failed to start: %v", err)
	}
	defer srv.Stop()

	var metricsSrv *http.Server
	if metrics != nil && cfg.Telemetry.Metrics.ListenAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Telemetry.Metrics.ListenAddress, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "Metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("Metrics:     http://%s/metrics\n", cfg.Telemetry.Metrics.ListenAddress)
	}

	fmt.Printf("Listening:   %s\n", listenAddr)
	fmt.Printf("Daemon API:  %s\n", socketPath)
	fmt.Println()
	fmt.Println("Ready.")

	// Archive the config as last-known-good once startup has succeeded,
	// unless a commit-confirmed apply is still awaiting confirmation.
	if deadline, err := config.CheckPending(cfgFile); err == nil && deadline.IsZero() {
		if err := config.Archive(cfgFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to archive config: %v\n", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case <-srv.ShutdownCh():
		fmt.Println("\nShutdown requested via API")
	}

	cancel()
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	if err := history.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save peer history: %v\n", err)
	}
	fmt.Println("Daemon stopped.")
}
