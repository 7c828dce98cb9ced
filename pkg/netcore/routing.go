package netcore

// routingTable is the in-memory index from a project id to the set of
// peers known to advertise it. It performs no I/O and holds no
// reference back to live connections — PeerManager is the source of
// truth for whether an id is still reachable; the routing table just
// remembers who claimed what.
type routingTable struct {
	byProj map[ProjId]map[PeerId]struct{}
}

func newRoutingTable() *routingTable {
	return &routingTable{byProj: make(map[ProjId]map[PeerId]struct{})}
}

// insert records that peer advertises proj. Idempotent.
func (rt *routingTable) insert(proj ProjId, peer PeerId) {
	peers, ok := rt.byProj[proj]
	if !ok {
		peers = make(map[PeerId]struct{})
		rt.byProj[proj] = peers
	}
	peers[peer] = struct{}{}
}

// remove drops the (proj, peer) association, pruning the project's
// entry entirely once its peer set is empty.
func (rt *routingTable) remove(proj ProjId, peer PeerId) {
	peers, ok := rt.byProj[proj]
	if !ok {
		return
	}
	delete(peers, peer)
	if len(peers) == 0 {
		delete(rt.byProj, proj)
	}
}

// prunePeer removes peer from every project it was associated with,
// used when a connection is disconnected and its advertised inventory
// can no longer be trusted.
func (rt *routingTable) prunePeer(peer PeerId) {
	for proj, peers := range rt.byProj {
		if _, ok := peers[peer]; ok {
			delete(peers, peer)
			if len(peers) == 0 {
				delete(rt.byProj, proj)
			}
		}
	}
}

// lookup returns the peers currently believed to advertise proj. The
// returned slice is a fresh copy safe for the caller to retain.
func (rt *routingTable) lookup(proj ProjId) []PeerId {
	peers, ok := rt.byProj[proj]
	if !ok {
		return nil
	}
	out := make([]PeerId, 0, len(peers))
	for p := range peers {
		out = append(out, p)
	}
	return out
}

// anyPeer returns one peer advertising proj and whether any exists, for
// callers (Fetch) that only need a single candidate.
func (rt *routingTable) anyPeer(proj ProjId) (PeerId, bool) {
	for p := range rt.byProj[proj] {
		return p, true
	}
	return PeerId{}, false
}

// projects returns every project id currently indexed, for diagnostics
// and metrics (routing table size).
func (rt *routingTable) projects() []ProjId {
	out := make([]ProjId, 0, len(rt.byProj))
	for p := range rt.byProj {
		out = append(out, p)
	}
	return out
}
