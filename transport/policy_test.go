package transport

import "testing"

func TestRoundRobinPolicy_CyclesAllNodes(t *testing.T) {
	t.Parallel()
	nodes := []*Node{{addr: "a"}, {addr: "b"}, {addr: "c"}}
	p := NewRoundRobinPolicy()
	p.SetNodes(nodes)

	seen := make(map[string]bool)
	for i := 0; i < len(nodes); i++ {
		n := p.Node(QueryInfo{}, i)
		if n == nil {
			t.Fatalf("Node(idx=%d) = nil, want a node", i)
		}
		seen[n.addr] = true
	}
	if len(seen) != len(nodes) {
		t.Fatalf("expected all %d nodes to appear across the plan, saw %v", len(nodes), seen)
	}
}

func TestRoundRobinPolicy_ExhaustsAtLen(t *testing.T) {
	t.Parallel()
	p := NewRoundRobinPolicy()
	p.SetNodes([]*Node{{addr: "a"}, {addr: "b"}})
	if n := p.Node(QueryInfo{}, 2); n != nil {
		t.Fatalf("Node(idx=2) over a 2-node plan = %v, want nil", n)
	}
}

func TestRoundRobinPolicy_EmptyNodes(t *testing.T) {
	t.Parallel()
	p := NewRoundRobinPolicy()
	if n := p.Node(QueryInfo{}, 0); n != nil {
		t.Fatalf("Node() with no nodes set = %v, want nil", n)
	}
}

func TestDCAwareRoundRobinPolicy_LocalBeforeRemote(t *testing.T) {
	t.Parallel()
	local1 := &Node{addr: "l1", datacenter: "dc1"}
	local2 := &Node{addr: "l2", datacenter: "dc1"}
	remote := &Node{addr: "r1", datacenter: "dc2"}

	p := NewDCAwareRoundRobin("dc1")
	p.SetNodes([]*Node{remote, local1, local2})

	for i := 0; i < 2; i++ {
		n := p.Node(QueryInfo{}, i)
		if n.datacenter != "dc1" {
			t.Fatalf("Node(idx=%d) = %s in dc %q, want a dc1 node among the first two choices", i, n.addr, n.datacenter)
		}
	}
	if n := p.Node(QueryInfo{}, 2); n.datacenter != "dc2" {
		t.Fatalf("Node(idx=2) = %s in dc %q, want the remote node once local is exhausted", n.addr, n.datacenter)
	}
}

func TestDCAwareRoundRobinPolicy_Distance(t *testing.T) {
	t.Parallel()
	p := NewDCAwareRoundRobin("dc1")
	if got := p.Distance(&Node{datacenter: "dc1"}); got != 0 {
		t.Fatalf("Distance(local) = %d, want 0", got)
	}
	if got := p.Distance(&Node{datacenter: "dc2"}); got != 1 {
		t.Fatalf("Distance(remote) = %d, want 1", got)
	}
}

func TestTokenAwarePolicy_FallsBackWithoutCluster(t *testing.T) {
	t.Parallel()
	fallback := NewRoundRobinPolicy()
	fallback.SetNodes([]*Node{{addr: "a"}})
	p := NewSimpleTokenAwarePolicy(fallback, 3)

	// No Cluster attached yet: every call must defer to the fallback
	// policy rather than panic on a nil ring.
	n := p.Node(QueryInfo{tokenAware: true, token: 42}, 0)
	if n == nil || n.addr != "a" {
		t.Fatalf("Node() with no attached cluster = %v, want fallback's node", n)
	}
}

func TestHostPoolPolicy_ReturnsKnownNode(t *testing.T) {
	t.Parallel()
	nodes := []*Node{{addr: "a"}, {addr: "b"}, {addr: "c"}}
	p := NewHostPoolPolicy(nodes)

	n := p.Node(QueryInfo{}, 0)
	if n == nil {
		t.Fatal("Node(idx=0) = nil, want a node from the pool")
	}
	found := false
	for _, want := range nodes {
		if want.addr == n.addr {
			found = true
		}
	}
	if !found {
		t.Fatalf("Node() returned %v, not one of the configured nodes", n.addr)
	}
}

func TestHostPoolPolicy_NoSecondaryChoice(t *testing.T) {
	t.Parallel()
	p := NewHostPoolPolicy([]*Node{{addr: "a"}})
	if n := p.Node(QueryInfo{}, 1); n != nil {
		t.Fatalf("Node(idx=1) = %v, want nil (hostpool offers only one ranked choice)", n)
	}
}
