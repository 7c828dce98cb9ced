package netcore

import "time"

// ---------------------------------------------------------------------------
// Reconnection tuning constants
//
// reconnectInterval, backoffBase, backoffMax, maxConcurrentDials and
// probeInterval keep the values a previous libp2p-based iteration of this
// node hard-coded for its PeerManager. Nothing in this module reads them:
// the reactor reconnects immediately (see decideReconnect), applies no
// backoff, and does not limit concurrent dials.
// ---------------------------------------------------------------------------
const (
	// reconnectInterval was the previous iteration's sweep period for
	// redialing persistent peers.
	reconnectInterval = 30 * time.Second

	// backoffBase was the previous iteration's first backoff after a
	// persistent peer's connection failed, doubled on each further failure.
	backoffBase = 30 * time.Second

	// backoffMax was the previous iteration's cap on that doubling backoff.
	backoffMax = 15 * time.Minute

	// maxConcurrentDials was the previous iteration's limit on outstanding
	// outbound dial attempts.
	maxConcurrentDials = 3

	// probeInterval was the previous iteration's period for re-probing a
	// demoted persistent peer.
	probeInterval = 2 * time.Minute

	// maxConnectionAttempts caps automatic reconnect attempts per
	// disconnect episode; after this many consecutive failures the
	// reactor stops reconnecting until a fresh Connect command or inbound
	// connection resets the counter.
	maxConnectionAttempts = 3

	// protocolVersion is the version advertised in Hello and checked
	// against a peer's claimed version during handshake.
	protocolVersion = 1
)

// PeerState is the per-connection state machine position.
type PeerState string

const (
	StateIdle        PeerState = "idle"
	StateConnecting  PeerState = "connecting"
	StateConnected   PeerState = "connected"
	StateNegotiated  PeerState = "negotiated"
	StateDisconnected PeerState = "disconnected"
)

// managedPeer is everything the reactor tracks about one connection
// address, from first dial attempt through negotiation to eventual
// disconnect and (for persistent peers) reconnect-attempt bookkeeping.
type managedPeer struct {
	Addr      string
	State     PeerState
	Persistent bool

	// Id is populated once the peer's Hello is received and verified.
	Id PeerId

	// helloSent/gotHello track the symmetric handshake: both sides
	// send Hello and GetInventory immediately on entering Connected, and
	// each waits for the other's Hello before it will consider
	// transitioning to Negotiated.
	helloSent bool
	gotHello  bool
	gotFirstInventory bool

	// connectedAt is fixed at the moment the connection enters Connected,
	// used only to measure the handshake grace window.
	connectedAt uint64

	// lastFrameAt is updated on every inbound frame, driving the
	// keep-alive idle timer.
	lastFrameAt uint64
	// pingNonce and pingSentAt track an outstanding keep-alive probe;
	// pingSentAt is zero when no Ping is outstanding.
	pingNonce  uint64
	pingSentAt uint64

	// attempts counts consecutive reconnect failures since the last
	// successful Negotiated state, reset to zero on success.
	attempts int
	// nextRetryAt is never set by the reactor and is always zero; no
	// reconnect waits on it.
	nextRetryAt uint64

	lastReason DisconnectReason
}

// reconnectDecision reports what peer.go's reconnection policy wants to
// happen after a disconnect, evaluated immediately when the
// Disconnected transition occurs (spec's Reconnection policy, §4.4).
type reconnectDecision struct {
	Reconnect bool
	// RetryAt is the timestamp (seconds since epoch) of the disconnect
	// that produced the decision: a reconnect is dialed at once, with no
	// backoff.
	RetryAt uint64
}

// decideReconnect applies the persistent-peer reconnection policy.
// Non-persistent peers are never auto-reconnected. User-initiated
// reasons (a local Disconnect command, or a DialError with no
// underlying OS error) never trigger a reconnect. Transient reasons
// (ConnectionError, KeepAlive) reconnect immediately, up to
// maxConnectionAttempts consecutive failures; beyond that the policy
// gives up until an explicit Connect command resets the counter.
//
// backoffBase/backoffMax/probeInterval are not consulted here or
// anywhere else: the core never delays a policy-driven reconnect, and
// nothing outside this package can read these unexported constants.
func decideReconnect(p *managedPeer, reason DisconnectReason, now uint64) reconnectDecision {
	if !p.Persistent {
		return reconnectDecision{}
	}
	if reason.UserInitiated() {
		return reconnectDecision{}
	}
	if !reason.Transient() {
		return reconnectDecision{}
	}
	if p.attempts >= maxConnectionAttempts {
		return reconnectDecision{}
	}

	return reconnectDecision{Reconnect: true, RetryAt: now}
}

// advanceHandshake reports whether p should transition to Negotiated:
// both Hello messages exchanged and either the first Inventory has
// arrived, or a grace window (idleTimeout) has elapsed since Connected.
func advanceHandshake(p *managedPeer, now uint64, connectedAt uint64) bool {
	if p.State != StateConnected {
		return false
	}
	if !p.helloSent || !p.gotHello {
		return false
	}
	if p.gotFirstInventory {
		return true
	}
	return now-connectedAt >= idleTimeout
}
