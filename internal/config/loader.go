package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

// checkConfigFilePermissions rejects a config file with overly permissive
// permissions. Config files may contain sensitive paths and network
// topology. Returns an error when any group or other permission bit is
// set.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// LoadNodeConfig loads node configuration from a YAML file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade meshnode", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}
	if cfg.Network.ProtocolVersion == 0 {
		cfg.Network.ProtocolVersion = 1
	}
	if cfg.Network.UserAgent == "" {
		cfg.Network.UserAgent = "meshnode/1"
	}

	return &cfg, nil
}

// ValidateNodeConfig validates node configuration.
func ValidateNodeConfig(cfg *NodeConfig) error {
	if cfg.Identity.KeyFile == "" {
		return fmt.Errorf("identity.key_file is required")
	}
	if cfg.Network.NetworkMagic == 0 {
		return fmt.Errorf("network.network_magic is required")
	}
	if cfg.Network.ListenAddr == "" {
		return fmt.Errorf("network.listen_addr is required")
	}
	if _, err := NormalizeSocketAddr(cfg.Network.ListenAddr); err != nil {
		return fmt.Errorf("network.listen_addr: %w", err)
	}
	for _, addr := range cfg.Network.Connect {
		if _, err := NormalizeSocketAddr(addr); err != nil {
			return fmt.Errorf("network.connect: %w", err)
		}
	}
	switch cfg.Tracking.Mode {
	case "", "allow", "block":
	default:
		return fmt.Errorf("tracking.mode must be %q or %q, got %q", "allow", "block", cfg.Tracking.Mode)
	}
	return nil
}

// BuildTrackingPolicy constructs the netcore.TrackingPolicy spec §3's
// Allowed(set)|Blocked(set) TrackingPolicy describes, from the config's
// list of multibase-encoded ProjIds. "block" mode (or any unset mode
// with a non-empty blocked list) tracks everything except the listed
// projects; "allow" mode (the default) tracks only the listed projects.
func BuildTrackingPolicy(cfg TrackingConfig) (netcore.TrackingPolicy, error) {
	mode := cfg.Mode
	if mode == "" {
		if len(cfg.Blocked) > 0 {
			mode = "block"
		} else {
			mode = "allow"
		}
	}

	switch mode {
	case "allow":
		ids, err := parseProjIds(cfg.Allowed)
		if err != nil {
			return nil, err
		}
		return netcore.NewListTrackingPolicy(ids), nil
	case "block":
		ids, err := parseProjIds(cfg.Blocked)
		if err != nil {
			return nil, err
		}
		return netcore.NewBlockListTrackingPolicy(ids), nil
	default:
		return nil, fmt.Errorf("tracking.mode must be %q or %q, got %q", "allow", "block", mode)
	}
}

func parseProjIds(encoded []string) ([]netcore.ProjId, error) {
	ids := make([]netcore.ProjId, 0, len(encoded))
	for _, s := range encoded {
		id, err := netcore.ParseProjId(s)
		if err != nil {
			return nil, fmt.Errorf("invalid project id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NormalizeSocketAddr accepts either the wire's plain "ip:port" form or a
// libp2p-style multiaddr ("/ip4/1.2.3.4/tcp/9418") and returns the
// "ip:port" form the wire layer requires, so operators can paste a
// multiaddr at the config/CLI boundary while the rest of the stack stays
// on plain socket addresses.
func NormalizeSocketAddr(addr string) (string, error) {
	if !strings.HasPrefix(addr, "/") {
		if _, _, err := splitHostPort(addr); err != nil {
			return "", fmt.Errorf("invalid socket address %q: %w", addr, err)
		}
		return addr, nil
	}
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return "", fmt.Errorf("invalid multiaddr %q: %w", addr, err)
	}
	netAddr, err := manet.ToNetAddr(ma)
	if err != nil {
		return "", fmt.Errorf("multiaddr %q has no socket-address form: %w", addr, err)
	}
	return netAddr.String(), nil
}

func splitHostPort(addr string) (string, string, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", "", fmt.Errorf("missing port")
	}
	host, port := addr[:i], addr[i+1:]
	if port == "" {
		return "", "", fmt.Errorf("empty port")
	}
	return host, port, nil
}

// FindConfigFile searches for a meshnode config file in standard locations.
// Search order: explicitPath (if given), ./meshnode.yaml,
// ~/.config/meshnode/config.yaml, /etc/meshnode/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{
		"meshnode.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "meshnode", "config.yaml"))
	}

	searchPaths = append(searchPaths, filepath.Join("/etc", "meshnode", "config.yaml"))

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s\n\nRun 'meshnode init' to create one, or use --config <path>", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}

// ResolveConfigPaths resolves relative file paths in the config to be
// relative to the config file's directory, so configs in
// ~/.config/meshnode/ can reference key files with relative paths.
func ResolveConfigPaths(cfg *NodeConfig, configDir string) {
	if cfg.Identity.KeyFile != "" && !filepath.IsAbs(cfg.Identity.KeyFile) {
		cfg.Identity.KeyFile = filepath.Join(configDir, cfg.Identity.KeyFile)
	}
	if cfg.Security.BannedPeersFile != "" && !filepath.IsAbs(cfg.Security.BannedPeersFile) {
		cfg.Security.BannedPeersFile = filepath.Join(configDir, cfg.Security.BannedPeersFile)
	}
	if cfg.Security.AuthorizedKeysFile != "" && !filepath.IsAbs(cfg.Security.AuthorizedKeysFile) {
		cfg.Security.AuthorizedKeysFile = filepath.Join(configDir, cfg.Security.AuthorizedKeysFile)
	}
}

// DefaultConfigDir returns the default meshnode config directory
// (~/.config/meshnode).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "meshnode"), nil
}
