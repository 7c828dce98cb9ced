package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

// Minimal valid YAML for loading tests.
const testConfigYAML = `
identity:
  key_file: "identity.key"
network:
  network_magic: 3405691582
  listen_addr: "0.0.0.0:9418"
  git_url: "git://example.test/repo"
  user_agent: "meshnode/1"
  protocol_version: 1
  connect:
    - "198.51.100.7:9418"
tracking:
  mode: "allow"
  allowed: []
telemetry:
  metrics:
    enabled: false
`

func writeTestConfig(t testing.TB, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoadNodeConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigYAML)

	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeConfig: %v", err)
	}

	if cfg.Identity.KeyFile != "identity.key" {
		t.Errorf("KeyFile = %q, want %q", cfg.Identity.KeyFile, "identity.key")
	}
	if cfg.Network.NetworkMagic != 3405691582 {
		t.Errorf("NetworkMagic = %d, want 3405691582", cfg.Network.NetworkMagic)
	}
	if cfg.Network.ListenAddr != "0.0.0.0:9418" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Network.ListenAddr, "0.0.0.0:9418")
	}
	if len(cfg.Network.Connect) != 1 || cfg.Network.Connect[0] != "198.51.100.7:9418" {
		t.Errorf("Connect = %v, want one entry", cfg.Network.Connect)
	}
	if cfg.Tracking.Mode != "allow" {
		t.Errorf("Tracking.Mode = %q, want %q", cfg.Tracking.Mode, "allow")
	}
}

func TestLoadNodeConfigMissingFile(t *testing.T) {
	_, err := LoadNodeConfig("/nonexistent/path.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadNodeConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "not: [valid: yaml: {{{")

	_, err := LoadNodeConfig(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadNodeConfigDefaultsProtocolVersionAndUserAgent(t *testing.T) {
	dir := t.TempDir()
	yaml := `
identity:
  key_file: "key"
network:
  network_magic: 1
  listen_addr: "0.0.0.0:9418"
`
	path := writeTestConfig(t, dir, yaml)

	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeConfig: %v", err)
	}
	if cfg.Network.ProtocolVersion != 1 {
		t.Errorf("ProtocolVersion = %d, want default 1", cfg.Network.ProtocolVersion)
	}
	if cfg.Network.UserAgent == "" {
		t.Error("UserAgent should default to a non-empty value")
	}
}

func TestValidateNodeConfig(t *testing.T) {
	valid := &NodeConfig{
		Identity: IdentityConfig{KeyFile: "key"},
		Network: NetworkConfig{
			NetworkMagic: 1,
			ListenAddr:   "0.0.0.0:9418",
		},
	}

	if err := ValidateNodeConfig(valid); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidateNodeConfigMissingFields(t *testing.T) {
	tests := []struct {
		name string
		cfg  NodeConfig
	}{
		{"no key_file", NodeConfig{
			Network: NetworkConfig{NetworkMagic: 1, ListenAddr: "0.0.0.0:9418"},
		}},
		{"no network_magic", NodeConfig{
			Identity: IdentityConfig{KeyFile: "x"},
			Network:  NetworkConfig{ListenAddr: "0.0.0.0:9418"},
		}},
		{"no listen_addr", NodeConfig{
			Identity: IdentityConfig{KeyFile: "x"},
			Network:  NetworkConfig{NetworkMagic: 1},
		}},
		{"bad listen_addr", NodeConfig{
			Identity: IdentityConfig{KeyFile: "x"},
			Network:  NetworkConfig{NetworkMagic: 1, ListenAddr: "not-an-address"},
		}},
		{"bad tracking mode", NodeConfig{
			Identity: IdentityConfig{KeyFile: "x"},
			Network:  NetworkConfig{NetworkMagic: 1, ListenAddr: "0.0.0.0:9418"},
			Tracking: TrackingConfig{Mode: "sometimes"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateNodeConfig(&tt.cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestResolveConfigPaths(t *testing.T) {
	cfg := &NodeConfig{
		Identity: IdentityConfig{KeyFile: "identity.key"},
		Security: SecurityConfig{BannedPeersFile: "banned"},
	}

	ResolveConfigPaths(cfg, "/home/user/.config/meshnode")

	want := "/home/user/.config/meshnode/identity.key"
	if cfg.Identity.KeyFile != want {
		t.Errorf("KeyFile = %q, want %q", cfg.Identity.KeyFile, want)
	}

	want = "/home/user/.config/meshnode/banned"
	if cfg.Security.BannedPeersFile != want {
		t.Errorf("BannedPeersFile = %q, want %q", cfg.Security.BannedPeersFile, want)
	}
}

func TestResolveConfigPathsAbsolute(t *testing.T) {
	cfg := &NodeConfig{
		Identity: IdentityConfig{KeyFile: "/absolute/path/key"},
		Security: SecurityConfig{BannedPeersFile: "/absolute/banned"},
	}

	ResolveConfigPaths(cfg, "/home/user/.config/meshnode")

	if cfg.Identity.KeyFile != "/absolute/path/key" {
		t.Errorf("absolute path should not change: %q", cfg.Identity.KeyFile)
	}
	if cfg.Security.BannedPeersFile != "/absolute/banned" {
		t.Errorf("absolute path should not change: %q", cfg.Security.BannedPeersFile)
	}
}

func TestFindConfigFileExplicit(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "identity:\n  key_file: x")

	found, err := FindConfigFile(path)
	if err != nil {
		t.Fatalf("FindConfigFile: %v", err)
	}
	if found != path {
		t.Errorf("found = %q, want %q", found, path)
	}
}

func TestFindConfigFileExplicitMissing(t *testing.T) {
	_, err := FindConfigFile("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestFindConfigFileLocalDir(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "meshnode.yaml")
	if err := os.WriteFile(configPath, []byte("identity:\n  key_file: x"), 0600); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(origDir)

	found, err := FindConfigFile("")
	if err != nil {
		t.Fatalf("FindConfigFile: %v", err)
	}
	if found != "meshnode.yaml" {
		t.Errorf("found = %q, want %q", found, "meshnode.yaml")
	}
}

func TestConfigVersionDefaultsTo1(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, testConfigYAML)

	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeConfig: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1 (default)", cfg.Version)
	}
}

func TestConfigVersionExplicit(t *testing.T) {
	dir := t.TempDir()
	yaml := "version: 1\n" + testConfigYAML
	path := writeTestConfig(t, dir, yaml)

	cfg, err := LoadNodeConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeConfig: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
}

func TestConfigVersionFutureRejected(t *testing.T) {
	dir := t.TempDir()
	yaml := "version: 999\n" + testConfigYAML
	path := writeTestConfig(t, dir, yaml)

	_, err := LoadNodeConfig(path)
	if err == nil {
		t.Error("expected error for future config version")
	}
}

func TestNormalizeSocketAddrAcceptsPlainForm(t *testing.T) {
	got, err := NormalizeSocketAddr("198.51.100.7:9418")
	if err != nil {
		t.Fatalf("NormalizeSocketAddr: %v", err)
	}
	if got != "198.51.100.7:9418" {
		t.Errorf("got %q, want unchanged input", got)
	}
}

func TestNormalizeSocketAddrAcceptsMultiaddr(t *testing.T) {
	got, err := NormalizeSocketAddr("/ip4/198.51.100.7/tcp/9418")
	if err != nil {
		t.Fatalf("NormalizeSocketAddr: %v", err)
	}
	if got != "198.51.100.7:9418" {
		t.Errorf("got %q, want %q", got, "198.51.100.7:9418")
	}
}

func TestNormalizeSocketAddrRejectsGarbage(t *testing.T) {
	if _, err := NormalizeSocketAddr("not-an-address"); err == nil {
		t.Error("expected error for malformed address")
	}
}

func TestBuildTrackingPolicyAllowMode(t *testing.T) {
	var proj netcore.ProjId
	proj[0] = 0x42
	policy, err := BuildTrackingPolicy(TrackingConfig{Mode: "allow", Allowed: []string{proj.String()}})
	if err != nil {
		t.Fatalf("BuildTrackingPolicy: %v", err)
	}
	if !policy.Allows(proj) {
		t.Error("allow-mode policy should track the listed project")
	}
}

func TestBuildTrackingPolicyBlockMode(t *testing.T) {
	var proj netcore.ProjId
	proj[0] = 0x7
	policy, err := BuildTrackingPolicy(TrackingConfig{Mode: "block", Blocked: []string{proj.String()}})
	if err != nil {
		t.Fatalf("BuildTrackingPolicy: %v", err)
	}
	if policy.Allows(proj) {
		t.Error("block-mode policy should not track the blocked project")
	}
}

func TestBuildTrackingPolicyRejectsBadProjId(t *testing.T) {
	if _, err := BuildTrackingPolicy(TrackingConfig{Mode: "allow", Allowed: []string{"not-a-proj-id"}}); err == nil {
		t.Error("expected error for malformed project id")
	}
}
