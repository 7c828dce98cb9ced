package netcore

import (
	"math/rand"
	"time"
)

// ProtocolConfig configures a Protocol at construction. Every field is
// required except Rng, which defaults to a runtime-seeded source, and
// Metrics, which may be nil to record no metrics.
type ProtocolConfig struct {
	NetworkMagic uint32
	ListenAddrs  []string
	GitURL       string

	Signer  Signer
	Storage Storage
	Policy  TrackingPolicy
	Metrics *Metrics

	// Rng drives the initial dial-stagger jitter and keep-alive Ping
	// nonces. Supply a seeded
	// *rand.Rand for reproducible tests.
	Rng *rand.Rand
}

// Protocol is the I/O-free reactor. Every externally visible effect is
// produced as an Io value collected in its outbox; callers drive it
// through Initialize, Attempted, Connected, Disconnected, ReceivedBytes,
// Tick, and Command, then drain Outbox after each call.
type Protocol struct {
	magic   uint32
	addrs   []string
	gitURL  string

	signer  Signer
	storage Storage
	policy  TrackingPolicy
	metrics *Metrics
	rng     *rand.Rand

	peers    map[string]*managedPeer
	idToAddr map[PeerId]string
	decoders map[string]*frameDecoder

	routing *routingTable
	gossip  *gossip

	// pendingFetches holds the reply sink for every in-flight
	// command-driven Fetch, keyed by the FetchId handed to the matching
	// IoFetchProject intent, until the host reports a CmdFetchCompleted
	// for that id.
	pendingFetches map[CommandId]ReplySink

	out outbox
}

// NewProtocol constructs a Protocol ready to receive Initialize.
func NewProtocol(cfg ProtocolConfig) *Protocol {
	rng := cfg.Rng
	if rng == nil {
		rng = defaultRand()
	}
	rt := newRoutingTable()
	return &Protocol{
		magic:   cfg.NetworkMagic,
		addrs:   cfg.ListenAddrs,
		gitURL:  cfg.GitURL,
		signer:  cfg.Signer,
		storage: cfg.Storage,
		policy:  cfg.Policy,
		metrics: cfg.Metrics,
		rng:     rng,

		peers:    make(map[string]*managedPeer),
		idToAddr: make(map[PeerId]string),
		decoders: make(map[string]*frameDecoder),

		routing: rt,
		gossip:  newGossip(rt),

		pendingFetches: make(map[CommandId]ReplySink),
	}
}

// Outbox drains and returns every Io intent accumulated since the last
// call.
func (p *Protocol) Outbox() []Io { return p.out.drain() }

// PeerSnapshot describes one managed connection address for external
// introspection (a status API, a CLI peers command), without exposing
// the reactor's internal managedPeer bookkeeping.
type PeerSnapshot struct {
	Addr       string
	Id         PeerId
	State      PeerState
	Persistent bool
}

// Peers returns a snapshot of every address the reactor currently
// tracks, in no particular order.
func (p *Protocol) Peers() []PeerSnapshot {
	out := make([]PeerSnapshot, 0, len(p.peers))
	for addr, mp := range p.peers {
		out = append(out, PeerSnapshot{Addr: addr, Id: mp.Id, State: mp.State, Persistent: mp.Persistent})
	}
	return out
}

// Initialize seeds the reactor with its configured persistent peers and
// issues the startup inventory advertisement intent, along with an
// initial connect for each persistent peer.
func (p *Protocol) Initialize(now uint64, persistentAddrs []string) {
	for i, addr := range persistentAddrs {
		p.peers[addr] = &managedPeer{Addr: addr, State: StateIdle, Persistent: true}
		// Stagger initial dials slightly so a host configured with many
		// persistent peers doesn't open them all in the same instant.
		if i == 0 {
			p.out.push(ioConnect(addr))
			continue
		}
		stagger := time.Duration(float64(time.Second) * backoffJitter(p.rng))
		p.out.push(ioSetTimer(stagger), ioConnect(addr))
	}
	p.advertiseInventory(now, nil)
}

// Attempted records that a dial was issued for addr, without yet
// knowing whether it will succeed.
func (p *Protocol) Attempted(addr string) {
	mp := p.peerFor(addr)
	mp.State = StateConnecting
}

// Connected marks addr as connected (inbound or outbound) and begins
// the symmetric handshake: send Hello, then GetInventory.
func (p *Protocol) Connected(addr string, now uint64) {
	mp := p.peerFor(addr)
	mp.State = StateConnected
	mp.connectedAt = now
	mp.lastFrameAt = now
	p.decoders[addr] = &frameDecoder{}

	hello := newHello(p.signer.Id(), now, p.addrs, p.gitURL, protocolVersion, p.signHello(now))
	mp.helloSent = true
	p.writeMessage(addr, hello)

	p.writeMessage(addr, newGetInventory(nil))
}

// signHello signs (magic ‖ timestamp ‖ version ‖ id), the binding the
// handshake's Hello field verifies against.
func (p *Protocol) signHello(timestamp uint64) []byte {
	return p.signer.Sign(helloSignBytes(p.magic, timestamp, protocolVersion, p.signer.Id()))
}

func helloSignBytes(magic uint32, timestamp uint64, version uint32, id PeerId) []byte {
	buf := make([]byte, 0, 4+8+4+32)
	buf = appendUint32(buf, magic)
	buf = appendUint64(buf, timestamp)
	buf = appendUint32(buf, version)
	buf = append(buf, id[:]...)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Disconnected tears down bookkeeping for addr and applies the
// persistent-peer reconnection policy.
func (p *Protocol) Disconnected(addr string, reason DisconnectReason, now uint64) {
	mp, ok := p.peers[addr]
	if !ok {
		return
	}
	wasNegotiated := mp.State == StateNegotiated
	if !mp.Id.IsZero() {
		p.gossip.prunePeer(mp.Id)
		delete(p.idToAddr, mp.Id)
	}
	delete(p.decoders, addr)

	mp.State = StateDisconnected
	mp.lastReason = reason
	mp.helloSent, mp.gotHello, mp.gotFirstInventory = false, false, false
	mp.Id = PeerId{}

	if p.metrics != nil {
		p.metrics.DisconnectsTotal.WithLabelValues(reason.Kind()).Inc()
		if wasNegotiated {
			p.metrics.NegotiatedPeers.Dec()
		}
	}

	decision := decideReconnect(mp, reason, now)
	if decision.Reconnect {
		mp.attempts++
		if p.metrics != nil {
			p.metrics.ReconnectAttemptsTotal.WithLabelValues("scheduled").Inc()
		}
		p.out.push(ioConnect(addr))
	} else if !mp.Persistent || reason.UserInitiated() || !reason.Transient() {
		mp.attempts = 0
	}
}

// ReceivedBytes feeds newly arrived bytes for addr's connection into its
// frame decoder and dispatches every complete Envelope produced. A
// decode error disconnects the connection and stops processing further
// bytes from this call.
func (p *Protocol) ReceivedBytes(addr string, data []byte, now uint64) {
	mp, ok := p.peers[addr]
	if !ok {
		return
	}
	dec, ok := p.decoders[addr]
	if !ok {
		return
	}

	envelopes, err := dec.push(data)
	for _, env := range envelopes {
		if env.Magic != p.magic {
			p.disconnectNow(addr, ReasonWrongMagic(), now)
			return
		}
		mp.lastFrameAt = now
		if mp.pingSentAt != 0 && env.Msg.Type == MsgPong && env.Msg.Pong.Nonce == mp.pingNonce {
			mp.pingSentAt = 0
		}
		if p.dispatch(addr, mp, env.Msg, now) {
			return
		}
	}
	if err != nil {
		p.disconnectNow(addr, ReasonMalformedMessage(), now)
	}
}

// dispatch handles one decoded Message. It returns true if it already
// issued a fatal disconnect for addr, signaling the caller to stop
// processing any further frames from this call.
func (p *Protocol) dispatch(addr string, mp *managedPeer, msg Message, now uint64) bool {
	switch msg.Type {
	case MsgHello:
		return p.handleHello(addr, mp, msg.Hello, now)
	case MsgGetInventory:
		p.handleGetInventory(addr, msg.GetInventory, now)
	case MsgInventory:
		return p.handleInventory(addr, mp, msg.Inventory, now)
	case MsgGetRefs:
		p.handleGetRefs(addr, msg.GetRefs)
	case MsgRefs:
		// Received ref sets are consumed by the fetch collaborator, not
		// the core; nothing to validate beyond having parsed correctly.
	case MsgPing:
		p.writeMessage(addr, newPong(msg.Ping.Nonce))
	case MsgPong:
		// Handled in ReceivedBytes before dispatch so the nonce check
		// happens regardless of handshake state.
	case MsgDisconnect:
		p.disconnectNow(addr, ReasonPeerRequested(), now)
		return true
	}
	return false
}

func (p *Protocol) handleHello(addr string, mp *managedPeer, hello *HelloMsg, now uint64) bool {
	sigBody := helloSignBytes(p.magic, hello.Timestamp, hello.Version, hello.Id)
	if !hello.Id.Verify(sigBody, hello.Signature) {
		p.disconnectNow(addr, ReasonSignatureFailed(), now)
		return true
	}
	if timeDelta(hello.Timestamp, now) > maxTimeDelta {
		p.disconnectNow(addr, ReasonInvalidTimestamp(hello.Timestamp), now)
		return true
	}
	if hello.Version != protocolVersion {
		p.disconnectNow(addr, ReasonWrongVersion(), now)
		return true
	}

	mp.Id = hello.Id
	mp.gotHello = true
	p.idToAddr[hello.Id] = addr

	if advanceHandshake(mp, now, mp.connectedAt) {
		p.promoteToNegotiated(addr, mp)
	}
	return false
}

func (p *Protocol) handleGetInventory(addr string, req *GetInventoryMsg, now uint64) {
	all := p.storage.LocalInventory()
	if len(req.Ids) == 0 {
		p.writeMessage(addr, newInventory(now, all, nil))
		return
	}
	wanted := make(map[ProjId]struct{}, len(req.Ids))
	for _, id := range req.Ids {
		wanted[id] = struct{}{}
	}
	filtered := make([]ProjSummary, 0, len(req.Ids))
	for _, s := range all {
		if _, ok := wanted[s.Id]; ok {
			filtered = append(filtered, s)
		}
	}
	p.writeMessage(addr, newInventory(now, filtered, nil))
}

func (p *Protocol) handleInventory(addr string, mp *managedPeer, msg *InventoryMsg, now uint64) bool {
	if !mp.gotHello {
		p.disconnectNow(addr, ReasonMalformedMessage(), now)
		return true
	}
	if !mp.gotFirstInventory {
		mp.gotFirstInventory = true
		if advanceHandshake(mp, now, mp.connectedAt) {
			p.promoteToNegotiated(addr, mp)
		}
	}

	outcome := p.gossip.acceptInventory(now, mp.Id, msg)
	if outcome.Disconnect != nil {
		p.disconnectNow(addr, *outcome.Disconnect, now)
		return true
	}
	if outcome.Dropped {
		if p.metrics != nil {
			p.metrics.InventoryDroppedTotal.WithLabelValues().Inc()
		}
		return false
	}
	if p.metrics != nil {
		p.metrics.InventoryAcceptedTotal.WithLabelValues().Inc()
		p.metrics.RoutingTableProjects.Set(float64(len(p.routing.projects())))
	}

	for _, summary := range outcome.Admitted {
		if p.policy.Allows(summary.Id) && !p.storage.Has(summary.Id) {
			advertiserAddr, ok := p.idToAddr[outcome.Advertiser]
			if !ok {
				continue
			}
			p.out.push(ioFetchProject(advertiserAddr, p.gitURL, summary.Id, CommandId{}))
		}
	}

	relay := newInventory(msg.Timestamp, msg.Inv, &outcome.Advertiser)
	for _, target := range relayTargets(p.negotiatedIds(), mp.Id, outcome.Advertiser) {
		targetAddr, ok := p.idToAddr[target]
		if !ok {
			continue
		}
		p.writeMessage(targetAddr, relay)
		if p.metrics != nil {
			p.metrics.InventoryRelayedTotal.WithLabelValues().Inc()
		}
	}
	return false
}

func (p *Protocol) handleGetRefs(addr string, req *GetRefsMsg) {
	refs, ok := p.storage.Refs(req.Proj)
	if !ok {
		return
	}
	sig := p.signer.Sign(refsSignBytes(req.Proj, refs))
	p.writeMessage(addr, newRefs(req.Proj, refs, sig))
}

// refsSignBytes builds the bytes signed over a RefsMsg: the project id
// followed by each ref name/oid pair in a stable order, so two honest
// responders asked for the same project produce comparable signatures.
func refsSignBytes(proj ProjId, refs map[RefName]Oid) []byte {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, string(name))
	}
	sortStrings(names)

	buf := make([]byte, 0, 32+len(refs)*64)
	buf = append(buf, proj[:]...)
	for _, name := range names {
		oid := refs[RefName(name)]
		buf = append(buf, []byte(name)...)
		buf = append(buf, 0)
		buf = append(buf, oid[:]...)
	}
	return buf
}

// sortStrings is a tiny insertion sort so refsSignBytes doesn't need to
// import sort for what's normally a handful of ref names.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (p *Protocol) promoteToNegotiated(addr string, mp *managedPeer) {
	mp.State = StateNegotiated
	mp.attempts = 0
	if p.metrics != nil {
		p.metrics.NegotiatedPeers.Inc()
	}
}

// Tick advances time-driven behavior: keep-alive probes, keep-alive
// timeouts, and handshake grace-window promotion for connections still
// waiting on their peer's first Inventory.
func (p *Protocol) Tick(now uint64) {
	for addr, mp := range p.peers {
		switch mp.State {
		case StateConnected:
			if advanceHandshake(mp, now, mp.connectedAt) {
				p.promoteToNegotiated(addr, mp)
			}
		case StateNegotiated:
			p.tickNegotiated(addr, mp, now)
		}
	}
	p.out.push(ioSetTimer(idleTimeout * time.Second))
}

func (p *Protocol) tickNegotiated(addr string, mp *managedPeer, now uint64) {
	if mp.pingSentAt != 0 {
		if now-mp.pingSentAt >= pingTimeout {
			p.disconnectNow(addr, ReasonKeepAlive(), now)
		}
		return
	}
	if now-mp.lastFrameAt >= idleTimeout {
		mp.pingNonce = p.rng.Uint64()
		mp.pingSentAt = now
		p.writeMessage(addr, newPing(mp.pingNonce))
	}
}

// Command delivers a locally issued Command to the reactor.
func (p *Protocol) Command(cmd Command, now uint64) {
	switch cmd.Kind {
	case CmdTrack:
		changed := p.policy.Track(cmd.Proj)
		p.reply(cmd.Reply, changed)
	case CmdUntrack:
		changed := p.policy.Untrack(cmd.Proj)
		p.reply(cmd.Reply, changed)
	case CmdConnect:
		mp := p.peerFor(cmd.Addr)
		mp.attempts = 0
		p.out.push(ioConnect(cmd.Addr))
	case CmdFetch:
		p.handleFetch(cmd, now)
	case CmdAnnounceInventory:
		p.advertiseInventory(now, nil)
	case CmdFetchCompleted:
		sink, ok := p.pendingFetches[cmd.FetchId]
		if !ok {
			return
		}
		delete(p.pendingFetches, cmd.FetchId)
		p.reply(sink, cmd.FetchResult)
	}
}

func (p *Protocol) handleFetch(cmd Command, now uint64) {
	if !p.policy.Allows(cmd.Proj) {
		p.reply(cmd.Reply, FetchResult{Proj: cmd.Proj, Ok: false, Err: ErrProjectNotTracked.Error()})
		return
	}
	peerId, ok := p.routing.anyPeer(cmd.Proj)
	if !ok {
		p.reply(cmd.Reply, FetchResult{Proj: cmd.Proj, Ok: false, Err: ErrNoPeerForProject.Error()})
		return
	}
	addr, ok := p.idToAddr[peerId]
	if !ok {
		p.reply(cmd.Reply, FetchResult{Proj: cmd.Proj, Ok: false, Err: ErrNoPeerForProject.Error()})
		return
	}
	if cmd.Reply != nil {
		p.pendingFetches[cmd.FetchId] = cmd.Reply
	}
	p.out.push(ioFetchProject(addr, p.gitURL, cmd.Proj, cmd.FetchId))
}

func (p *Protocol) advertiseInventory(now uint64, only []ProjId) {
	inv := p.storage.LocalInventory()
	if len(only) > 0 {
		wanted := make(map[ProjId]struct{}, len(only))
		for _, id := range only {
			wanted[id] = struct{}{}
		}
		filtered := inv[:0:0]
		for _, s := range inv {
			if _, ok := wanted[s.Id]; ok {
				filtered = append(filtered, s)
			}
		}
		inv = filtered
	}
	msg := newInventory(now, inv, nil)
	for _, addr := range p.negotiatedAddrs() {
		p.writeMessage(addr, msg)
	}
}

func (p *Protocol) reply(sink ReplySink, value any) {
	if sink == nil {
		return
	}
	p.out.push(ioCommandReply(sink, value))
}

func (p *Protocol) peerFor(addr string) *managedPeer {
	mp, ok := p.peers[addr]
	if !ok {
		mp = &managedPeer{Addr: addr, State: StateIdle}
		p.peers[addr] = mp
	}
	return mp
}

func (p *Protocol) negotiatedIds() []PeerId {
	out := make([]PeerId, 0, len(p.peers))
	for _, mp := range p.peers {
		if mp.State == StateNegotiated {
			out = append(out, mp.Id)
		}
	}
	return out
}

func (p *Protocol) negotiatedAddrs() []string {
	out := make([]string, 0, len(p.peers))
	for addr, mp := range p.peers {
		if mp.State == StateNegotiated {
			out = append(out, addr)
		}
	}
	return out
}

func (p *Protocol) writeMessage(addr string, msg Message) {
	frame, err := encodeFrame(p.magic, msg)
	if err != nil {
		// Only a local bug (an unmarshalable Message, or one the reactor
		// itself built oversized) reaches here; there is nothing a peer
		// did wrong, so there's no connection to fault for it.
		return
	}
	p.out.push(ioWrite(addr, frame))
}

// disconnectNow queues a fatal Io.Disconnect for addr. The connection's
// bookkeeping is not cleared here — that happens when the host later
// calls Disconnected, confirming the connection has actually closed.
func (p *Protocol) disconnectNow(addr string, reason DisconnectReason, now uint64) {
	p.out.push(ioDisconnect(addr, reason))
}
