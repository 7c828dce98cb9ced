package auth

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

// DecisionFunc is called on every gate decision with the peer id and the
// result, for metrics and audit logging without coupling this package to
// internal/daemon.
type DecisionFunc func(peerID netcore.PeerId, allowed bool)

// PeerGater decides whether a connection's negotiated PeerId may stay
// connected, whether the connection is inbound or outbound, by checking
// it against an allow list of peers; there is no block list. An empty
// authorized set allows every peer: meshgit is an open
// network by default, and the gater is an opt-in restriction rather than
// a default-deny firewall.
type PeerGater struct {
	mu              sync.RWMutex
	authorizedPeers map[netcore.PeerId]bool
	peerExpiry      map[netcore.PeerId]time.Time // zero = never expires
	onDecision      DecisionFunc                 // nil-safe
}

// NewPeerGater creates a gater authorizing exactly the given peers. Pass
// nil or an empty slice to allow every peer.
func NewPeerGater(authorized []netcore.PeerId) *PeerGater {
	g := &PeerGater{
		authorizedPeers: make(map[netcore.PeerId]bool, len(authorized)),
		peerExpiry:      make(map[netcore.PeerId]time.Time),
	}
	for _, id := range authorized {
		g.authorizedPeers[id] = true
	}
	return g
}

// Allowed reports whether id may remain connected. An empty authorized
// set allows everyone; otherwise id must be present and not expired.
func (g *PeerGater) Allowed(id netcore.PeerId) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	allow := g.allowedLocked(id)
	if g.onDecision != nil {
		g.onDecision(id, allow)
	}
	return allow
}

func (g *PeerGater) allowedLocked(id netcore.PeerId) bool {
	if len(g.authorizedPeers) == 0 {
		return true
	}
	if !g.authorizedPeers[id] {
		return false
	}
	if exp, ok := g.peerExpiry[id]; ok && !exp.IsZero() && time.Now().After(exp) {
		return false
	}
	return true
}

// UpdateAuthorizedPeers replaces the authorized set (for hot-reload).
func (g *PeerGater) UpdateAuthorizedPeers(authorized []netcore.PeerId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorizedPeers = make(map[netcore.PeerId]bool, len(authorized))
	for _, id := range authorized {
		g.authorizedPeers[id] = true
	}
	slog.Info("updated authorized peers list", "count", len(g.authorizedPeers))
}

// Count returns the number of explicitly authorized peers.
func (g *PeerGater) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.authorizedPeers)
}

// IsAuthorized reports whether id is explicitly in the authorized set,
// ignoring the open-network empty-set default Allowed applies.
func (g *PeerGater) IsAuthorized(id netcore.PeerId) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authorizedPeers[id]
}

// SetDecisionCallback sets a callback invoked on every Allowed call.
func (g *PeerGater) SetDecisionCallback(fn DecisionFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onDecision = fn
}

// SetPeerExpiry sets an expiration time for an authorized peer. Zero
// time means never expires.
func (g *PeerGater) SetPeerExpiry(id netcore.PeerId, expiresAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if expiresAt.IsZero() {
		delete(g.peerExpiry, id)
	} else {
		g.peerExpiry[id] = expiresAt
	}
}

// PrintAuthorizedPeers prints the authorized set, for CLI debugging.
func (g *PeerGater) PrintAuthorizedPeers() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fmt.Println("Authorized peers:")
	for id := range g.authorizedPeers {
		fmt.Printf("  - %s\n", id.String())
	}
}
