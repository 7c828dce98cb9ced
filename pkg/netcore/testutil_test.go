package netcore

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/json"
	"math/rand"
)

// mockSigner is a deterministic in-memory Signer for tests, generated
// from a fixed seed so test vectors are reproducible. Adapted from the
// role original_source's test crypto fixtures play for its own Peer
// harness.
type mockSigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newMockSigner(seed int64) *mockSigner {
	r := rand.New(rand.NewSource(seed))
	seedBytes := make([]byte, ed25519.SeedSize)
	_, _ = r.Read(seedBytes)
	priv := ed25519.NewKeyFromSeed(seedBytes)
	return &mockSigner{pub: priv.Public().(ed25519.PublicKey), priv: priv}
}

func (s *mockSigner) Id() PeerId {
	var id PeerId
	copy(id[:], s.pub)
	return id
}

func (s *mockSigner) Sign(msg []byte) []byte {
	return ed25519.Sign(s.priv, msg)
}

// mockStorage is an in-memory Storage for tests.
type mockStorage struct {
	inv  []ProjSummary
	refs map[ProjId]map[RefName]Oid
}

func newMockStorage() *mockStorage {
	return &mockStorage{refs: make(map[ProjId]map[RefName]Oid)}
}

func (s *mockStorage) LocalInventory() []ProjSummary { return s.inv }

func (s *mockStorage) Has(proj ProjId) bool {
	_, ok := s.refs[proj]
	return ok
}

func (s *mockStorage) Refs(proj ProjId) (map[RefName]Oid, bool) {
	r, ok := s.refs[proj]
	return r, ok
}

func (s *mockStorage) addProject(proj ProjId, refs map[RefName]Oid) {
	s.inv = append(s.inv, ProjSummary{Id: proj, Refs: refs})
	s.refs[proj] = refs
}

// testReply is a ReplySink that records the single value it was
// resolved with, for assertions in table-driven tests.
type testReply struct {
	value any
	got   bool
}

func (r *testReply) Resolve(value any) {
	r.value = value
	r.got = true
}

// testPeer wraps a Protocol the way original_source's test::peer::Peer
// wraps its Rust equivalent: a thin harness offering connect_to/
// connect_from/receive/messages/outbox so scenario tests read close to
// the behavior they verify.
type testPeer struct {
	name  string
	addr  string
	magic uint32
	proto *Protocol
	signer *mockSigner
	storage *mockStorage
	policy *ListTrackingPolicy
}

func newTestPeer(name, addr string, magic uint32, seed int64) *testPeer {
	signer := newMockSigner(seed)
	storage := newMockStorage()
	policy := NewListTrackingPolicy(nil)
	proto := NewProtocol(ProtocolConfig{
		NetworkMagic: magic,
		ListenAddrs:  []string{addr},
		GitURL:       "git://" + addr + "/repo",
		Signer:       signer,
		Storage:      storage,
		Policy:       policy,
		Rng:          rand.New(rand.NewSource(seed)),
	})
	return &testPeer{name: name, addr: addr, magic: magic, proto: proto, signer: signer, storage: storage, policy: policy}
}

func (p *testPeer) initialize(now uint64) {
	p.proto.Initialize(now, nil)
}

// connectTo simulates an outbound dial to remote completing, and
// confirms the local side emitted its half of the handshake.
func (p *testPeer) connectTo(remote string, now uint64) {
	p.proto.Attempted(remote)
	p.proto.Connected(remote, now)
}

// connectFrom simulates remote dialing in, confirms our handshake half
// went out, then feeds back remote's Hello and an empty Inventory so
// the connection reaches Negotiated the way original_source's
// connect_from immediately completes the exchange for test setup.
func (p *testPeer) connectFrom(remote string, remoteId PeerId, remoteSigner *mockSigner, now uint64) {
	p.proto.Connected(remote, now)
	p.receive(remote, remoteHello(remoteId, remoteSigner, p.magic, now))
	p.receive(remote, newInventory(now, nil, nil))
}

func remoteHello(id PeerId, signer *mockSigner, magic uint32, now uint64) Message {
	body := helloSignBytes(magic, now, protocolVersion, id)
	return newHello(id, now, nil, "git://remote/repo", protocolVersion, signer.Sign(body))
}

// receive delivers msg to the protocol as if it arrived on remote's
// connection, wrapping it in a correctly-magicked length-prefixed frame.
func (p *testPeer) receive(remote string, msg Message) {
	env := Envelope{Magic: p.magic, Msg: msg}
	body, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)
	p.proto.ReceivedBytes(remote, frame, 0)
}

// receiveAt is like receive but lets the caller control the `now` the
// reactor sees, for timestamp-skew scenarios.
func (p *testPeer) receiveAt(remote string, msg Message, now uint64) {
	env := Envelope{Magic: p.magic, Msg: msg}
	body, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)
	p.proto.ReceivedBytes(remote, frame, now)
}

// outbox drains every Io intent accumulated so far.
func (p *testPeer) outbox() []Io { return p.proto.Outbox() }

// drainReplies drains the outbox and resolves every CommandReply intent
// found in it, the way a host's command dispatcher would, returning the
// remaining non-reply intents.
func (p *testPeer) drainReplies() []Io {
	var rest []Io
	for _, io := range p.proto.Outbox() {
		if io.Kind == IoCommandReply {
			io.Reply.Resolve(io.Value)
			continue
		}
		rest = append(rest, io)
	}
	return rest
}

// messages decodes every Io.Write intent addressed to remote out of the
// current outbox, in order, without draining the rest of the outbox.
func (p *testPeer) messages(remote string) []Message {
	var out []Message
	dec := &frameDecoder{}
	for _, io := range p.proto.out.items {
		if io.Kind != IoWrite || io.Addr != remote {
			continue
		}
		envs, err := dec.push(io.Bytes)
		if err != nil {
			panic(err)
		}
		for _, e := range envs {
			out = append(out, e.Msg)
		}
	}
	return out
}

// writesTo returns true if the outbox contains an Io.Write to remote.
func (p *testPeer) writesTo(remote string) bool {
	for _, io := range p.proto.out.items {
		if io.Kind == IoWrite && io.Addr == remote {
			return true
		}
	}
	return false
}

// disconnectReasons returns the Kind() of every Io.Disconnect intent
// addressed to remote currently in the outbox.
func (p *testPeer) disconnectReasons(remote string) []string {
	var out []string
	for _, io := range p.proto.out.items {
		if io.Kind == IoDisconnect && io.Addr == remote {
			out = append(out, io.Reason.Kind())
		}
	}
	return out
}
