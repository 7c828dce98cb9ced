package config

// CurrentConfigVersion is the latest configuration schema version.
// Bump this when adding fields that require migration.
const CurrentConfigVersion = 1

// NodeConfig is the unified, immutable-after-load configuration for a
// meshnode process: everything pkg/netcore.ProtocolConfig needs plus the
// ambient settings (identity, telemetry) that surround it. It mirrors the
// teacher's HomeNodeConfig shape — versioned, YAML, 0600-checked — with
// the libp2p-specific sections (Relay, Discovery, Services, Names)
// replaced by the one configuration surface spec §3 names.
type NodeConfig struct {
	Version   int             `yaml:"version,omitempty"`
	Identity  IdentityConfig  `yaml:"identity"`
	Network   NetworkConfig   `yaml:"network"`
	Tracking  TrackingConfig  `yaml:"tracking,omitempty"`
	Security  SecurityConfig  `yaml:"security,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// IdentityConfig holds identity-related configuration.
type IdentityConfig struct {
	KeyFile string `yaml:"key_file"`
}

// NetworkConfig mirrors spec §3's "Configuration" block: the magic that
// gates every inbound envelope, this node's own listen address, the git
// URL advertised in Hello, the protocol version it speaks, and the set
// of persistent outbound peers the reactor dials on Initialize.
type NetworkConfig struct {
	NetworkMagic    uint32   `yaml:"network_magic"`
	ListenAddr      string   `yaml:"listen_addr"`
	GitURL          string   `yaml:"git_url"`
	UserAgent       string   `yaml:"user_agent"`
	ProtocolVersion uint32   `yaml:"protocol_version"`
	Connect         []string `yaml:"connect,omitempty"`
}

// TrackingConfig is the on-disk form of spec §3's TrackingPolicy: exactly
// one of Allowed or Blocked should be set, mirroring the sum type's two
// variants (Allowed(set<ProjId>) | Blocked(set<ProjId>)) — Go has no
// tagged union, so the zero value of the unset field just means "no
// entries", and Mode picks which list gets consulted.
type TrackingConfig struct {
	Mode    string   `yaml:"mode"` // "allow" or "block"
	Allowed []string `yaml:"allowed,omitempty"`
	Blocked []string `yaml:"blocked,omitempty"`
}

// SecurityConfig holds peer access-control configuration.
type SecurityConfig struct {
	// AuthorizedKeysFile, when set, limits connections, inbound and
	// outbound, to the peers it lists; an empty string (the default)
	// admits every peer,
	// per spec's Non-goal of identity verification beyond key presence.
	AuthorizedKeysFile string `yaml:"authorized_keys_file,omitempty"`
	BannedPeersFile    string `yaml:"banned_peers_file,omitempty"`
}

// TelemetryConfig holds observability settings. Disabled by default.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"` // no default; empty serves no metrics endpoint
}
