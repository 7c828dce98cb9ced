package netcore

// maxTimeDelta bounds the acceptable skew between an inbound message's
// claimed timestamp and the reactor's own clock, in seconds. It is the
// only time-skew check the engine performs (spec's gossip acceptance
// rule, step 1).
const maxTimeDelta = 60 * 60

// idleTimeout is how long a Negotiated connection may go without an
// inbound frame before the keep-alive probe (Ping) is sent.
const idleTimeout = 30

// pingTimeout is how long the peer manager waits for a Pong after
// sending a Ping before disconnecting the connection with KeepAlive.
const pingTimeout = 10

// gossip tracks per-advertiser inventory freshness and mediates
// acceptance, routing updates, and relay of Inventory messages. It owns
// no connections and performs no I/O: callers (the reactor) hand it an
// inbound message and a source peer, and get back a decision plus any
// Io intents to enqueue.
type gossip struct {
	routing          *routingTable
	lastSeenTimestamp map[PeerId]uint64
	// advertised records, per advertiser, the project set most recently
	// attributed to them — needed to compute the "remove what's no
	// longer advertised" half of step 4 without re-scanning the whole
	// routing table.
	advertised map[PeerId]map[ProjId]struct{}
}

func newGossip(rt *routingTable) *gossip {
	return &gossip{
		routing:           rt,
		lastSeenTimestamp: make(map[PeerId]uint64),
		advertised:        make(map[PeerId]map[ProjId]struct{}),
	}
}

// inventoryOutcome reports what acceptInventory decided, so the reactor
// can drive relay, on-demand fetch, and metrics without gossip needing
// to know about connections or policy itself.
type inventoryOutcome struct {
	// Disconnect is set when the message was rejected outright; no other
	// field is meaningful in that case.
	Disconnect *DisconnectReason

	// Dropped is true for a silently-ignored idempotent re-advertisement
	// (step 3): no relay, no routing mutation.
	Dropped bool

	// Advertiser is the peer (origin, or the source connection's id when
	// origin is unset) the admitted projects are attributed to.
	Advertiser PeerId

	// Admitted lists every project the inbound message advertised, in
	// message order, all now recorded in routing for Advertiser (including
	// ones already recorded from an earlier message) — candidates
	// for the on-demand fetch check (left to the reactor, which knows the
	// tracking policy and local storage).
	Admitted []ProjSummary
}

// acceptInventory applies the acceptance rule for an inbound
// Inventory message received on connection src (src.Id is the
// connection's negotiated peer id, distinct from the advertiser when
// the message is a relay).
func (g *gossip) acceptInventory(now uint64, src PeerId, msg *InventoryMsg) inventoryOutcome {
	if delta := timeDelta(msg.Timestamp, now); delta > maxTimeDelta {
		r := ReasonInvalidTimestamp(msg.Timestamp)
		return inventoryOutcome{Disconnect: &r}
	}

	advertiser := src
	if msg.Origin != nil {
		advertiser = *msg.Origin
	}

	if msg.Timestamp <= g.lastSeenTimestamp[advertiser] {
		return inventoryOutcome{Dropped: true, Advertiser: advertiser}
	}
	g.lastSeenTimestamp[advertiser] = msg.Timestamp

	seen := make(map[ProjId]struct{}, len(msg.Inv))
	for _, summary := range msg.Inv {
		g.routing.insert(summary.Id, advertiser)
		seen[summary.Id] = struct{}{}
	}
	for proj := range g.advertised[advertiser] {
		if _, ok := seen[proj]; !ok {
			g.routing.remove(proj, advertiser)
		}
	}
	g.advertised[advertiser] = seen

	return inventoryOutcome{Advertiser: advertiser, Admitted: msg.Inv}
}

// timeDelta returns the absolute difference between two unsigned
// timestamps without relying on signed-integer wraparound.
func timeDelta(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// relayTargets returns, from the full set of negotiated peer ids, the
// ones an accepted Inventory from src/advertiser should be forwarded
// to: every negotiated peer except the source connection and except the
// advertiser itself (spec's relay rule, step 5).
func relayTargets(negotiated []PeerId, src, advertiser PeerId) []PeerId {
	out := make([]PeerId, 0, len(negotiated))
	for _, p := range negotiated {
		if p == src || p == advertiser {
			continue
		}
		out = append(out, p)
	}
	return out
}

// prunePeer forgets everything gossip knows about peer: its advertised
// set and its last-seen timestamp, and removes it from routing. Called
// when a connection is disconnected.
func (g *gossip) prunePeer(peer PeerId) {
	g.routing.prunePeer(peer)
	delete(g.advertised, peer)
	delete(g.lastSeenTimestamp, peer)
}
