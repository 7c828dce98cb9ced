package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" -o meshnode ./cmd/meshnode
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		printUsage()
		osExit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "peers":
		runPeers(os.Args[2:])
	case "projects":
		runProjects(os.Args[2:])
	case "track":
		runTrack(os.Args[2:])
	case "untrack":
		runUntrack(os.Args[2:])
	case "connect":
		runConnect(os.Args[2:])
	case "fetch":
		runFetch(os.Args[2:])
	case "stop":
		runStop(os.Args[2:])
	case "whoami":
		runWhoami(os.Args[2:])
	case "auth":
		runAuth(os.Args[2:])
	case "config":
		runConfig(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		osExit(1)
	}
}

func printVersion() {
	fmt.Printf("meshnode %s (%s) built %s\n", version, commit, buildDate)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: meshnode <command> [options]")
	fmt.Println()
	fmt.Println("Daemon:")
	fmt.Println("  serve                                    Start the mesh daemon (TCP host + control API)")
	fmt.Println("  stop                                     Request graceful shutdown via the control API")
	fmt.Println("  status [--json]                          Query running daemon status")
	fmt.Println("  peers [--json]                            List connections the daemon's reactor holds")
	fmt.Println("  projects [--json]                        List projects the daemon hosts locally")
	fmt.Println()
	fmt.Println("Replication:")
	fmt.Println("  track <proj-id>                          Start tracking a project")
	fmt.Println("  untrack <proj-id>                        Stop tracking a project")
	fmt.Println("  connect <addr>                           Dial a peer's address")
	fmt.Println("  fetch <proj-id>                          Trigger an on-demand fetch")
	fmt.Println()
	fmt.Println("Identity & access:")
	fmt.Println("  whoami                                   Show your peer ID")
	fmt.Println("  auth add <peer-id> [--comment \"...\"]     Authorize a peer")
	fmt.Println("  auth list                                List authorized peers")
	fmt.Println("  auth remove <peer-id>                    Revoke a peer's access")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  init                                     Set up meshnode configuration")
	fmt.Println("  config validate [--config path]           Validate config")
	fmt.Println("  config show     [--config path]           Show resolved config")
	fmt.Println("  config rollback [--config path]           Restore last-known-good config")
	fmt.Println("  config apply <new> [--confirm-timeout]    Apply with auto-revert")
	fmt.Println("  config confirm  [--config path]           Confirm applied config")
	fmt.Println()
	fmt.Println("  version                                  Show version information")
	fmt.Println()
	fmt.Println("serve, whoami, auth and config accept --config <path> to specify a config file.")
	fmt.Println("Without --config, meshnode searches: ./meshnode.yaml, ~/.config/meshnode/config.yaml, /etc/meshnode/config.yaml")
	fmt.Println()
	fmt.Println("Get started:  meshnode init")
}
