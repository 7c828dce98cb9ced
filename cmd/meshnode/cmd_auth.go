package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shurlinet/meshgit/internal/auth"
	"github.com/shurlinet/meshgit/internal/config"
	"github.com/shurlinet/meshgit/internal/termcolor"
)

func runAuth(args []string) {
	if len(args) < 1 {
		printAuthUsage()
		osExit(1)
	}

	switch args[0] {
	case "add":
		runAuthAdd(args[1:])
	case "list":
		runAuthList(args[1:])
	case "remove":
		runAuthRemove(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown auth command: %s\n\n", args[0])
		printAuthUsage()
		osExit(1)
	}
}

func printAuthUsage() {
	fmt.Println("Usage: meshnode auth <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  add    <peer-id> [--comment \"label\"]   Authorize a peer")
	fmt.Println("  list                                   List authorized peers")
	fmt.Println("  remove <peer-id>                       Revoke a peer's access")
	fmt.Println()
	fmt.Println("All commands support --config <path> and --file <path>.")
}

// resolveAuthKeysPath finds the authorized_keys file path: --file flag
// takes priority, otherwise it falls back to the config's
// security.authorized_keys_file.
func resolveAuthKeysPath(fileFlag, configFlag string) (string, error) {
	if fileFlag != "" {
		return fileFlag, nil
	}

	cfgFile, err := config.FindConfigFile(configFlag)
	if err != nil {
		return "", fmt.Errorf("config error: %w\nUse --file to specify authorized_keys path directly", err)
	}
	cfg, err := config.LoadNodeConfig(cfgFile)
	if err != nil {
		return "", fmt.Errorf("config error: %w", err)
	}
	config.ResolveConfigPaths(cfg, filepath.Dir(cfgFile))

	if cfg.Security.AuthorizedKeysFile == "" {
		return "", fmt.Errorf("no authorized_keys_file in config; use --file to specify path")
	}
	return cfg.Security.AuthorizedKeysFile, nil
}

func runAuthAdd(args []string) {
	if err := doAuthAdd(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doAuthAdd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("auth add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	fileFlag := fs.String("file", "", "path to authorized_keys file (overrides config)")
	commentFlag := fs.String("comment", "", "optional comment for this peer")
	if err := fs.Parse(reorderArgs(args, nil)); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: meshnode auth add <peer-id> [--comment \"label\"]")
	}
	peerIDStr := fs.Arg(0)

	authKeysPath, err := resolveAuthKeysPath(*fileFlag, *configFlag)
	if err != nil {
		return err
	}
	if err := auth.AddPeer(authKeysPath, peerIDStr, *commentFlag); err != nil {
		return fmt.Errorf("failed to add peer: %w", err)
	}

	termcolor.Green("Authorized peer: %s", peerIDStr)
	if *commentFlag != "" {
		fmt.Fprintf(stdout, "  Comment: %s\n", *commentFlag)
	}
	fmt.Fprintf(stdout, "  File: %s\n", authKeysPath)
	return nil
}

func runAuthList(args []string) {
	if err := doAuthList(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doAuthList(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("auth list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	fileFlag := fs.String("file", "", "path to authorized_keys file (overrides config)")
	if err := fs.Parse(reorderArgs(args, nil)); err != nil {
		return err
	}

	authKeysPath, err := resolveAuthKeysPath(*fileFlag, *configFlag)
	if err != nil {
		return err
	}

	entries, err := auth.ListPeers(authKeysPath)
	if err != nil {
		return fmt.Errorf("failed to list peers: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No authorized peers. Every peer is admitted (open-network default).")
		return nil
	}

	fmt.Fprintf(stdout, "Authorized peers (%d):\n\n", len(entries))
	for i, entry := range entries {
		if entry.Comment != "" {
			fmt.Fprintf(stdout, "  %d. %s  # %s\n", i+1, entry.PeerID.String(), entry.Comment)
		} else {
			fmt.Fprintf(stdout, "  %d. %s\n", i+1, entry.PeerID.String())
		}
		if entry.Verified != "" {
			termcolor.Faint("     verified=%s\n", entry.Verified)
		}
		if !entry.ExpiresAt.IsZero() {
			termcolor.Faint("     expires=%s\n", entry.ExpiresAt.Format("2006-01-02"))
		}
	}
	fmt.Fprintf(stdout, "\nFile: %s\n", authKeysPath)
	return nil
}

func runAuthRemove(args []string) {
	if err := doAuthRemove(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doAuthRemove(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("auth remove", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	fileFlag := fs.String("file", "", "path to authorized_keys file (overrides config)")
	if err := fs.Parse(reorderArgs(args, nil)); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: meshnode auth remove <peer-id>")
	}
	peerIDStr := fs.Arg(0)

	authKeysPath, err := resolveAuthKeysPath(*fileFlag, *configFlag)
	if err != nil {
		return err
	}
	if err := auth.RemovePeer(authKeysPath, peerIDStr); err != nil {
		return fmt.Errorf("failed to remove peer: %w", err)
	}

	termcolor.Green("Revoked peer: %s", peerIDStr)
	fmt.Fprintf(stdout, "  File: %s\n", authKeysPath)
	return nil
}
