package main

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shurlinet/meshgit/internal/config"
	"github.com/shurlinet/meshgit/internal/identity"
)

func runInit(args []string) {
	if err := doInit(args, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doInit(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dirFlag := fs.String("dir", "", "config directory (default: ~/.config/meshnode)")
	listenFlag := fs.String("listen", "0.0.0.0:9418", "address to listen on")
	gitURLFlag := fs.String("git-url", "", "git transport URL this node advertises for its projects")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "Welcome to meshnode!")
	fmt.Fprintln(stdout)

	configDir := *dirFlag
	if configDir == "" {
		d, err := config.DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("cannot determine config directory: %w", err)
		}
		configDir = d
	}

	configFile := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config already exists: %s\nDelete it first if you want to reinitialize", configFile)
	}

	fmt.Fprintf(stdout, "Creating config directory: %s\n", configDir)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	fmt.Fprintln(stdout)

	reader := bufio.NewReader(stdin)
	fmt.Fprintln(stdout, "Enter an address of a peer to connect to on startup (blank to skip):")
	fmt.Fprint(stdout, "> ")
	peerInput, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read input: %w", err)
	}
	peerInput = strings.TrimSpace(peerInput)
	fmt.Fprintln(stdout)

	keyFile := filepath.Join(configDir, "identity.key")
	fmt.Fprintln(stdout, "Generating identity...")
	id, err := identity.LoadOrCreate(keyFile)
	if err != nil {
		return fmt.Errorf("failed to generate identity: %w", err)
	}
	fmt.Fprintf(stdout, "Your Peer ID: %s\n", id.Id().String())
	fmt.Fprintln(stdout, "(Share this with peers who need to authorize you)")
	fmt.Fprintln(stdout)

	authKeysFile := filepath.Join(configDir, "authorized_keys")
	if _, err := os.Stat(authKeysFile); os.IsNotExist(err) {
		authContent := "# authorized_keys - peer IDs allowed to connect, one per line\n" +
			"# Format: <peer-id> [attr=value ...] [# comment]\n" +
			"# An empty file admits every peer.\n"
		if err := os.WriteFile(authKeysFile, []byte(authContent), 0600); err != nil {
			return fmt.Errorf("failed to create authorized_keys: %w", err)
		}
	}

	magic, err := randomNetworkMagic()
	if err != nil {
		return fmt.Errorf("failed to generate network magic: %w", err)
	}

	var connect []string
	if peerInput != "" {
		connect = []string{peerInput}
	}

	configContent := nodeConfigTemplate(magic, *listenFlag, *gitURLFlag, connect)
	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(stdout, "Config written to:   %s\n", configFile)
	fmt.Fprintf(stdout, "Identity saved to:   %s\n", keyFile)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Next steps:")
	fmt.Fprintln(stdout, "  1. Run the daemon:    meshnode serve")
	fmt.Fprintln(stdout, "  2. Check status:      meshnode status")
	fmt.Fprintln(stdout, "  3. Track a project:   meshnode track <proj-id>")
	return nil
}

// randomNetworkMagic generates a network magic value for a fresh
// config. Operators wanting to share a private network copy this value
// into every peer's config by hand; meshnode never negotiates it.
func randomNetworkMagic() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func nodeConfigTemplate(magic uint32, listenAddr, gitURL string, connect []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "version: %d\n", config.CurrentConfigVersion)
	sb.WriteString("identity:\n")
	sb.WriteString("  key_file: identity.key\n")
	sb.WriteString("network:\n")
	fmt.Fprintf(&sb, "  network_magic: %d\n", magic)
	fmt.Fprintf(&sb, "  listen_addr: %q\n", listenAddr)
	if gitURL != "" {
		fmt.Fprintf(&sb, "  git_url: %q\n", gitURL)
	}
	if len(connect) > 0 {
		sb.WriteString("  connect:\n")
		for _, addr := range connect {
			fmt.Fprintf(&sb, "    - %q\n", addr)
		}
	}
	sb.WriteString("tracking:\n")
	sb.WriteString("  mode: block\n")
	sb.WriteString("security:\n")
	sb.WriteString("  authorized_keys_file: authorized_keys\n")
	sb.WriteString("telemetry:\n")
	sb.WriteString("  metrics:\n")
	sb.WriteString("    enabled: false\n")
	return sb.String()
}
