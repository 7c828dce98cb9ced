package netcore

import (
	"testing"

	"pgregory.net/rapid"
)

func genPeerId(t *rapid.T, label string) PeerId {
	var id PeerId
	b := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, label)
	copy(id[:], b)
	return id
}

func genProjId(t *rapid.T, label string) ProjId {
	var id ProjId
	b := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, label)
	copy(id[:], b)
	return id
}

// TestGossipAcceptsStrictlyIncreasingTimestamps checks the heart of the
// acceptance rule (spec's gossip rule, steps 3-4) against arbitrary
// advertisers and timestamp sequences: a message is only ever admitted
// when its timestamp strictly exceeds the last one seen from the same
// advertiser, and lastSeenTimestamp never moves backward.
func TestGossipAcceptsStrictlyIncreasingTimestamps(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := newGossip(newRoutingTable())
		advertiser := genPeerId(t, "advertiser")

		var lastAdmitted uint64
		seenAny := false

		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			ts := rapid.Uint64Range(0, 1_000_000).Draw(t, "ts")
			now := ts
			if rapid.Bool().Draw(t, "nowDrift") {
				now = ts + rapid.Uint64Range(0, maxTimeDelta).Draw(t, "drift")
			}

			outcome := g.acceptInventory(now, advertiser, &InventoryMsg{Timestamp: ts})
			if outcome.Disconnect != nil {
				continue
			}

			if seenAny && ts <= lastAdmitted {
				if !outcome.Dropped {
					t.Fatalf("ts %d <= last admitted %d but was not dropped", ts, lastAdmitted)
				}
			} else {
				if outcome.Dropped {
					t.Fatalf("ts %d strictly greater than last admitted %d but was dropped", ts, lastAdmitted)
				}
				lastAdmitted = ts
				seenAny = true
			}

			if got := g.lastSeenTimestamp[advertiser]; seenAny && got != lastAdmitted {
				t.Fatalf("lastSeenTimestamp[advertiser] = %d, want %d", got, lastAdmitted)
			}
		}
	})
}

// TestGossipRejectsTimestampsOutsideSkewWindow checks step 1 of the
// acceptance rule independent of advertiser history: any timestamp more
// than maxTimeDelta away from now is always rejected, regardless of what
// came before it.
func TestGossipRejectsTimestampsOutsideSkewWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := newGossip(newRoutingTable())
		advertiser := genPeerId(t, "advertiser")

		now := rapid.Uint64Range(maxTimeDelta+1, 10_000_000).Draw(t, "now")
		skew := rapid.Uint64Range(maxTimeDelta+1, maxTimeDelta*10).Draw(t, "skew")
		ts := now - skew

		outcome := g.acceptInventory(now, advertiser, &InventoryMsg{Timestamp: ts})
		if outcome.Disconnect == nil {
			t.Fatalf("ts %d at skew %d from now %d was not rejected", ts, skew, now)
		}
		if outcome.Disconnect.Kind() != kindInvalidTimestamp {
			t.Fatalf("got disconnect kind %q, want %q", outcome.Disconnect.Kind(), kindInvalidTimestamp)
		}
	})
}

// TestRelayTargetsNeverIncludeSourceOrAdvertiser checks step 5 of the
// relay rule against arbitrary negotiated-peer sets: the source
// connection and the advertiser are always excluded, and every other
// negotiated peer is always included exactly once.
func TestRelayTargetsNeverIncludeSourceOrAdvertiser(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		negotiated := make([]PeerId, 0, n)
		seen := map[PeerId]bool{}
		for len(negotiated) < n {
			id := genPeerId(t, "peer")
			if seen[id] {
				continue
			}
			seen[id] = true
			negotiated = append(negotiated, id)
		}

		src := genPeerId(t, "src")
		advertiser := genPeerId(t, "advertiser")

		targets := relayTargets(negotiated, src, advertiser)
		for _, target := range targets {
			if target == src {
				t.Fatalf("relay targets included the source connection: %v", targets)
			}
			if target == advertiser {
				t.Fatalf("relay targets included the advertiser: %v", targets)
			}
		}
		for _, p := range negotiated {
			if p == src || p == advertiser {
				continue
			}
			found := false
			for _, target := range targets {
				if target == p {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("negotiated peer %x missing from relay targets %v", p, targets)
			}
		}
	})
}

// TestRoutingTablePrunePeerRemovesAllTraces checks that after pruning a
// peer, no project lookup can ever produce it again, regardless of how
// many projects it had been inserted against.
func TestRoutingTablePrunePeerRemovesAllTraces(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rt := newRoutingTable()
		peer := genPeerId(t, "peer")

		n := rapid.IntRange(0, 10).Draw(t, "n")
		projects := make([]ProjId, n)
		for i := range projects {
			projects[i] = genProjId(t, "proj")
			rt.insert(projects[i], peer)
		}

		rt.prunePeer(peer)

		for _, proj := range projects {
			for _, p := range rt.lookup(proj) {
				if p == peer {
					t.Fatalf("peer %x still reachable for project %x after prunePeer", peer, proj)
				}
			}
		}
	})
}
