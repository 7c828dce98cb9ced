package netcore

import "testing"

const testMagic = 0xc0ffee

// handshake drives the full symmetric Hello/GetInventory/Inventory
// exchange between two freshly connected testPeers until both reach
// Negotiated, without a network simulator: each side's outbox is
// inspected and fed directly into the other, mirroring the manual
// message threading original_source's connect_to/connect_from helpers
// do for a single side.
func handshake(t *testing.T, a, b *testPeer, now uint64) {
	t.Helper()
	a.proto.Attempted(b.addr)
	a.proto.Connected(b.addr, now)
	b.proto.Connected(a.addr, now)

	for _, msg := range a.messages(b.addr) {
		b.receive(a.addr, msg)
	}
	a.proto.out.items = nil
	for _, msg := range b.messages(a.addr) {
		a.receive(b.addr, msg)
	}
	b.proto.out.items = nil

	// Each side now holds the other's Hello; feed the resulting
	// GetInventory/Inventory replies across once more.
	for _, msg := range a.messages(b.addr) {
		b.receive(a.addr, msg)
	}
	a.proto.out.items = nil
	for _, msg := range b.messages(a.addr) {
		a.receive(b.addr, msg)
	}
	b.proto.out.items = nil
}

func TestHandshakeReachesNegotiated(t *testing.T) {
	alice := newTestPeer("alice", "7.7.7.7:1", testMagic, 1)
	bob := newTestPeer("bob", "8.8.8.8:1", testMagic, 2)

	handshake(t, alice, bob, 1000)

	if got := alice.proto.peers[bob.addr].State; got != StateNegotiated {
		t.Fatalf("alice's view of bob: got state %q, want Negotiated", got)
	}
	if got := bob.proto.peers[alice.addr].State; got != StateNegotiated {
		t.Fatalf("bob's view of alice: got state %q, want Negotiated", got)
	}
}

func TestInitializeDialsPersistentPeersInOrder(t *testing.T) {
	alice := newTestPeer("alice", "7.7.7.7:1", testMagic, 1)
	bob := "8.8.8.8:1"
	eve := "9.9.9.9:1"

	alice.proto.Initialize(1000, []string{bob, eve})

	var connects []string
	for _, io := range alice.outbox() {
		if io.Kind == IoConnect {
			connects = append(connects, io.Addr)
		}
	}
	if len(connects) != 2 || connects[0] != bob || connects[1] != eve {
		t.Fatalf("got connects %v, want [%s %s]", connects, bob, eve)
	}
}

func TestHandshakeInvalidTimestampDisconnects(t *testing.T) {
	alice := newTestPeer("alice", "7.7.7.7:1", testMagic, 1)
	bobSigner := newMockSigner(2)
	bobAddr := "8.8.8.8:1"

	now := uint64(1_700_000_000)
	alice.proto.Connected(bobAddr, now)
	alice.proto.out.items = nil

	badTs := now - (maxTimeDelta + 1)
	sig := bobSigner.Sign(helloSignBytes(testMagic, badTs, protocolVersion, bobSigner.Id()))
	alice.receiveAt(bobAddr, newHello(bobSigner.Id(), badTs, nil, "git://bob/repo", protocolVersion, sig), now)

	reasons := alice.disconnectReasons(bobAddr)
	if len(reasons) != 1 || reasons[0] != kindInvalidTimestamp {
		t.Fatalf("got disconnect reasons %v, want [%s]", reasons, kindInvalidTimestamp)
	}
}

func TestInventoryRelayExcludesSourceAndAdvertiser(t *testing.T) {
	alice := newTestPeer("alice", "7.7.7.7:1", testMagic, 1)
	bob := newTestPeer("bob", "8.8.8.8:1", testMagic, 2)
	eve := newTestPeer("eve", "9.9.9.9:1", testMagic, 3)

	handshake(t, alice, bob, 1000)
	handshake(t, alice, eve, 1000)
	alice.proto.out.items = nil

	now := uint64(2000)
	alice.receiveAt(bob.addr, newInventory(now, nil, nil), now)

	relayed := alice.messages(eve.addr)
	if len(relayed) != 1 || relayed[0].Type != MsgInventory {
		t.Fatalf("got %d messages to eve, want 1 inventory relay", len(relayed))
	}
	if relayed[0].Inventory.Origin == nil || *relayed[0].Inventory.Origin != bob.signer.Id() {
		t.Fatalf("relayed inventory origin = %v, want bob", relayed[0].Inventory.Origin)
	}
	if msgs := alice.messages(bob.addr); len(msgs) != 0 {
		t.Fatalf("inventory relayed back to its source: %v", msgs)
	}
	alice.proto.out.items = nil

	// Same timestamp again: idempotent, no further relay.
	alice.receiveAt(bob.addr, newInventory(now, nil, nil), now)
	if msgs := alice.messages(eve.addr); len(msgs) != 0 {
		t.Fatalf("stale re-advertisement was relayed: %v", msgs)
	}
	alice.proto.out.items = nil

	// Newer timestamp: relays again.
	alice.receiveAt(bob.addr, newInventory(now+1, nil, nil), now+1)
	if msgs := alice.messages(eve.addr); len(msgs) != 1 {
		t.Fatalf("got %d relays for fresh timestamp, want 1", len(msgs))
	}
}

func TestPersistentPeerReconnectPolicy(t *testing.T) {
	alice := newTestPeer("alice", "7.7.7.7:1", testMagic, 1)
	bobAddr := "8.8.8.8:1"
	eveAddr := "9.9.9.9:1"
	alice.proto.peers[bobAddr] = &managedPeer{Addr: bobAddr, State: StateConnected, Persistent: true}
	alice.proto.peers[eveAddr] = &managedPeer{Addr: eveAddr, State: StateConnected, Persistent: true}

	// A user-initiated DialError never reconnects.
	alice.proto.Disconnected(eveAddr, ReasonDialError(nil), 1000)
	if io := alice.outbox(); len(io) != 0 {
		t.Fatalf("DialError(nil) triggered reconnect: %v", io)
	}

	for i := 0; i < maxConnectionAttempts; i++ {
		alice.proto.peers[bobAddr].State = StateConnected
		alice.proto.Disconnected(bobAddr, ReasonConnectionError(nil), 1000)
		io := alice.outbox()
		if len(io) != 1 || io[0].Kind != IoConnect || io[0].Addr != bobAddr {
			t.Fatalf("attempt %d: got outbox %v, want single Connect(bob)", i, io)
		}
		alice.proto.Attempted(bobAddr)
	}

	// Past the max, no further reconnect.
	alice.proto.peers[bobAddr].State = StateConnected
	alice.proto.Disconnected(bobAddr, ReasonConnectionError(nil), 1000)
	if io := alice.outbox(); len(io) != 0 {
		t.Fatalf("reconnect beyond max attempts: %v", io)
	}
}

func TestTrackUntrackCommand(t *testing.T) {
	alice := newTestPeer("alice", "7.7.7.7:1", testMagic, 1)
	var proj ProjId
	proj[0] = 0x42

	reply := &testReply{}
	alice.proto.Command(TrackCommand(proj, reply), 1000)
	alice.drainReplies()
	if !reply.got || reply.value != true {
		t.Fatalf("track reply = %v, want true", reply.value)
	}
	if !alice.policy.Allows(proj) {
		t.Fatalf("policy does not track %v after Track", proj)
	}

	reply2 := &testReply{}
	alice.proto.Command(UntrackCommand(proj, reply2), 1000)
	alice.drainReplies()
	if !reply2.got || reply2.value != true {
		t.Fatalf("untrack reply = %v, want true", reply2.value)
	}
	if alice.policy.Allows(proj) {
		t.Fatalf("policy still tracks %v after Untrack", proj)
	}
}

func TestFetchWithoutRouteFails(t *testing.T) {
	alice := newTestPeer("alice", "7.7.7.7:1", testMagic, 1)
	var proj ProjId
	proj[0] = 0x7

	alice.policy.Track(proj)
	reply := &testReply{}
	alice.proto.Command(FetchCommand(proj, reply), 1000)
	alice.drainReplies()

	result, ok := reply.value.(FetchResult)
	if !reply.got || !ok || result.Ok {
		t.Fatalf("fetch with no route = %#v, want failing FetchResult", reply.value)
	}
}

// TestFetchWithRouteDefersReplyUntilCompletion exercises the one path the
// no-route tests above never reach: a Fetch command against a project with
// a known advertiser. The reply must stay unresolved across the
// IoFetchProject intent and only resolve once the host reports the
// matching CmdFetchCompleted.
func TestFetchWithRouteDefersReplyUntilCompletion(t *testing.T) {
	alice := newTestPeer("alice", "7.7.7.7:1", testMagic, 1)
	bob := newTestPeer("bob", "8.8.8.8:1", testMagic, 2)
	handshake(t, alice, bob, 1000)
	alice.proto.out.items = nil

	var proj ProjId
	proj[0] = 0x9
	alice.policy.Track(proj)
	alice.receiveAt(bob.addr, newInventory(2000, []ProjSummary{{Id: proj}}, nil), 2000)

	var fetchIo *Io
	for i, io := range alice.proto.out.items {
		if io.Kind == IoFetchProject && io.Proj == proj {
			fetchIo = &alice.proto.out.items[i]
			break
		}
	}
	if fetchIo == nil {
		t.Fatalf("no on-demand IoFetchProject for %v in outbox: %v", proj, alice.proto.out.items)
	}
	alice.proto.out.items = nil

	reply := &testReply{}
	alice.proto.Command(FetchCommand(proj, reply), 3000)

	var cmdFetchIo *Io
	for i, io := range alice.proto.out.items {
		if io.Kind == IoFetchProject && io.Proj == proj {
			cmdFetchIo = &alice.proto.out.items[i]
		}
	}
	if cmdFetchIo == nil {
		t.Fatalf("FetchCommand produced no IoFetchProject: %v", alice.proto.out.items)
	}
	if cmdFetchIo.FetchId == (CommandId{}) {
		t.Fatalf("IoFetchProject for a command-driven fetch carries a zero FetchId")
	}
	if reply.got {
		t.Fatalf("reply resolved before CmdFetchCompleted: %v", reply.value)
	}
	alice.proto.out.items = nil

	alice.proto.Command(Command{
		Kind:        CmdFetchCompleted,
		FetchId:     cmdFetchIo.FetchId,
		FetchResult: FetchResult{Proj: proj, Ok: true},
	}, 4000)
	alice.drainReplies()

	result, ok := reply.value.(FetchResult)
	if !reply.got || !ok || !result.Ok || result.Proj != proj {
		t.Fatalf("fetch reply after completion = %#v, want {Proj: %v, Ok: true}", reply.value, proj)
	}
}
