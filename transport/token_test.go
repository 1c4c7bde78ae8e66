package transport

import "testing"

func TestMurmur3Sum128_EmptyInput(t *testing.T) {
	t.Parallel()
	h1, h2 := murmur3Sum128(nil)
	if h1 != 0 || h2 != 0 {
		t.Fatalf("murmur3Sum128(nil) = (%d, %d), want (0, 0)", h1, h2)
	}
}

func TestMurmur3Sum128_Deterministic(t *testing.T) {
	t.Parallel()
	keys := [][]byte{
		[]byte("a"),
		[]byte("partition-key"),
		[]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		make([]byte, 257),
	}
	for _, k := range keys {
		h1a, h2a := murmur3Sum128(k)
		h1b, h2b := murmur3Sum128(k)
		if h1a != h1b || h2a != h2b {
			t.Fatalf("murmur3Sum128(%v) not deterministic: (%d,%d) vs (%d,%d)", k, h1a, h2a, h1b, h2b)
		}
	}
}

func TestMurmur3Sum128_DistinctInputsDiffer(t *testing.T) {
	t.Parallel()
	h1a, _ := murmur3Sum128([]byte("row-1"))
	h1b, _ := murmur3Sum128([]byte("row-2"))
	if h1a == h1b {
		t.Fatalf("expected distinct tokens for distinct keys, both got %d", h1a)
	}
}

func TestMurmurToken_MinTokenSubstitution(t *testing.T) {
	t.Parallel()
	// minToken (-2^63) is reserved by the server-side partitioner to mean
	// "the ring minimum"; MurmurToken bumps it by one rather than ever
	// returning it for a real key.
	if got := MurmurToken(nil); got == minToken {
		t.Fatalf("MurmurToken must never return the reserved minimum token, got %d", got)
	}
}

func newTestRing(tokens []Token, dcs []string) Ring {
	ring := make(Ring, len(tokens))
	for i, tok := range tokens {
		ring[i] = RingEntry{node: &Node{addr: "n", datacenter: dcs[i]}, token: tok}
	}
	return ring
}

func TestSimpleStrategy_Replicas(t *testing.T) {
	t.Parallel()
	ring := newTestRing([]Token{0, 10, 20, 30}, []string{"dc1", "dc1", "dc1", "dc1"})
	s := SimpleStrategy{ReplicationFactor: 3}

	got := s.Replicas(ring, 2)
	want := []int{2, 3, 0}
	if len(got) != len(want) {
		t.Fatalf("Replicas(start=2) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Replicas(start=2) = %v, want %v", got, want)
		}
	}
}

func TestSimpleStrategy_ReplicasClampedToRingSize(t *testing.T) {
	t.Parallel()
	ring := newTestRing([]Token{0, 10}, []string{"dc1", "dc1"})
	s := SimpleStrategy{ReplicationFactor: 5}

	got := s.Replicas(ring, 0)
	if len(got) != len(ring) {
		t.Fatalf("Replicas with RF > ring size = %v, want %d entries", got, len(ring))
	}
}

func TestSimpleStrategy_EmptyRing(t *testing.T) {
	t.Parallel()
	s := SimpleStrategy{ReplicationFactor: 3}
	if got := s.Replicas(nil, 0); got != nil {
		t.Fatalf("Replicas(empty ring) = %v, want nil", got)
	}
}

func TestNetworkTopologyStrategy_Replicas(t *testing.T) {
	t.Parallel()
	// Ring alternates dc1/dc2 so that walking clockwise from index 0
	// visits both datacenters in lockstep.
	ring := newTestRing(
		[]Token{0, 5, 10, 15, 20, 25},
		[]string{"dc1", "dc2", "dc1", "dc2", "dc1", "dc2"},
	)
	s := NetworkTopologyStrategy{PerDC: map[string]int{"dc1": 2, "dc2": 1}}

	got := s.Replicas(ring, 0)
	var dc1, dc2 int
	for _, idx := range got {
		switch ring[idx].node.datacenter {
		case "dc1":
			dc1++
		case "dc2":
			dc2++
		}
	}
	if dc1 != 2 || dc2 != 1 {
		t.Fatalf("Replicas per-DC counts = dc1:%d dc2:%d, want dc1:2 dc2:1 (replicas %v)", dc1, dc2, got)
	}
}

func TestNetworkTopologyStrategy_MissingDCIgnored(t *testing.T) {
	t.Parallel()
	ring := newTestRing([]Token{0, 5}, []string{"dc1", "dc3"})
	s := NetworkTopologyStrategy{PerDC: map[string]int{"dc1": 1}}

	got := s.Replicas(ring, 0)
	if len(got) != 1 || ring[got[0]].node.datacenter != "dc1" {
		t.Fatalf("Replicas = %v, want exactly the single dc1 node", got)
	}
}
