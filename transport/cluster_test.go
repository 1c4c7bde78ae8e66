package transport

import (
	"encoding/binary"
	"testing"

	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/frame/response"
)

func newTestCluster() *Cluster {
	return &Cluster{
		nodes: make(map[string]*Node),
		strat: SimpleStrategy{ReplicationFactor: 1},
	}
}

func peerRow(cols []string, values []frame.Bytes) QueryResult {
	spec := make([]frame.ColumnSpec, len(cols))
	for i, name := range cols {
		spec[i] = frame.ColumnSpec{Name: name}
	}
	return QueryResult{
		Metadata: &frame.ResultMetadata{Columns: spec},
		Rows:     []frame.Row{values},
	}
}

func TestApplyPeerRow_RegistersNewNode(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	res := peerRow([]string{"data_center", "rack"}, []frame.Bytes{[]byte("dc1"), []byte("rack1")})

	c.applyPeerRow("127.0.0.1:9042", res)

	n, ok := c.nodes["127.0.0.1:9042"]
	if !ok {
		t.Fatal("applyPeerRow did not register the node")
	}
	if n.datacenter != "dc1" || n.rack != "rack1" {
		t.Fatalf("node = %+v, want datacenter=dc1 rack=rack1", n)
	}
	if !n.IsUp() {
		t.Fatal("newly registered node should be marked up")
	}
}

func TestApplyPeerRow_UpdatesExistingNodeInPlace(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	existing := &Node{addr: "a", datacenter: "old"}
	existing.setStatus(statusUP)
	c.nodes["a"] = existing

	res := peerRow([]string{"data_center"}, []frame.Bytes{[]byte("new")})
	c.applyPeerRow("a", res)

	if c.nodes["a"] != existing {
		t.Fatal("applyPeerRow replaced the existing *Node instead of updating it in place")
	}
	if existing.datacenter != "new" {
		t.Fatalf("datacenter = %q, want %q", existing.datacenter, "new")
	}
}

func TestApplyPeerRow_EmptyResultIsNoop(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	c.applyPeerRow("a", QueryResult{})
	if len(c.nodes) != 0 {
		t.Fatalf("applyPeerRow with no metadata registered a node: %v", c.nodes)
	}
}

// encodeTokenList builds the raw CQL list<text> wire value for toks, the
// same layout decodeTokenList parses back out.
func encodeTokenList(toks ...string) frame.Bytes {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(len(toks)))
	for _, s := range toks {
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(s)))
		out = append(out, lenBuf...)
		out = append(out, s...)
	}
	return out
}

func TestApplyPeerRow_ParsesRealTokens(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	res := peerRow([]string{"data_center", "tokens"}, []frame.Bytes{
		[]byte("dc1"),
		encodeTokenList("-100", "200", "300"),
	})

	c.applyPeerRow("a", res)

	n := c.nodes["a"]
	if n == nil {
		t.Fatal("applyPeerRow did not register the node")
	}
	want := []Token{-100, 200, 300}
	if len(n.tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", n.tokens, want)
	}
	for i, tok := range want {
		if n.tokens[i] != tok {
			t.Fatalf("tokens = %v, want %v", n.tokens, want)
		}
	}
}

func TestApplyPeerRow_SkipsUnparseableTokens(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	res := peerRow([]string{"tokens"}, []frame.Bytes{encodeTokenList("not-a-number", "42")})

	c.applyPeerRow("a", res)

	n := c.nodes["a"]
	if len(n.tokens) != 1 || n.tokens[0] != 42 {
		t.Fatalf("tokens = %v, want [42]", n.tokens)
	}
}

func TestRebuildRing_UsesRealTokensWhenPresent(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	c.nodes["a"] = &Node{addr: "a", tokens: []Token{10, 30}}
	c.nodes["b"] = &Node{addr: "b", tokens: []Token{20}}

	c.rebuildRing()

	if len(c.ring) != 3 {
		t.Fatalf("ring has %d entries, want 3 (one per vnode token)", len(c.ring))
	}
	wantOrder := []Token{10, 20, 30}
	for i, want := range wantOrder {
		if c.ring[i].token != want {
			t.Fatalf("ring tokens = %v, want sorted %v", ringTokens(c.ring), wantOrder)
		}
	}
	if c.ring[0].node.addr != "a" || c.ring[2].node.addr != "a" || c.ring[1].node.addr != "b" {
		t.Fatalf("ring entries don't reference their owning node correctly: %+v", c.ring)
	}
}

func ringTokens(r Ring) []Token {
	out := make([]Token, len(r))
	for i, e := range r {
		out[i] = e.token
	}
	return out
}

func TestRebuildRing_CoversEveryNode(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	c.nodes["a"] = &Node{addr: "a"}
	c.nodes["b"] = &Node{addr: "b"}
	c.nodes["c"] = &Node{addr: "c"}

	c.rebuildRing()

	if len(c.ring) != 3 {
		t.Fatalf("ring has %d entries, want 3", len(c.ring))
	}
	for i := 1; i < len(c.ring); i++ {
		if c.ring[i-1].token > c.ring[i].token {
			t.Fatalf("ring not sorted ascending: %+v", c.ring)
		}
	}
}

func TestReplicasFor_OnlyReturnsUpNodes(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	up := &Node{addr: "up"}
	up.setStatus(statusUP)
	down := &Node{addr: "down"}
	down.setStatus(statusDown)

	c.nodes["up"] = up
	c.nodes["down"] = down
	c.rebuildRing()
	c.strat = SimpleStrategy{ReplicationFactor: 2}

	replicas := c.replicasFor(0)
	for _, n := range replicas {
		if n.addr == "down" {
			t.Fatalf("replicasFor returned a down node: %v", replicas)
		}
	}
}

func TestReplicasFor_EmptyRing(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	if got := c.replicasFor(0); got != nil {
		t.Fatalf("replicasFor with empty ring = %v, want nil", got)
	}
}

func TestNodeByIP_MatchesHostPortion(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	c.nodes["10.0.0.1:9042"] = &Node{addr: "10.0.0.1:9042"}

	got := c.nodeByIP([]byte{10, 0, 0, 1})
	if got == nil || got.addr != "10.0.0.1:9042" {
		t.Fatalf("nodeByIP = %v, want the 10.0.0.1:9042 node", got)
	}
}

func TestNodeByIP_NoMatch(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	c.nodes["10.0.0.1:9042"] = &Node{addr: "10.0.0.1:9042"}
	if got := c.nodeByIP([]byte{10, 0, 0, 2}); got != nil {
		t.Fatalf("nodeByIP = %v, want nil for an unknown address", got)
	}
}

func TestHandleEvent_StatusChangeTogglesNode(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	n := &Node{addr: "10.0.0.1:9042"}
	n.setStatus(statusUP)
	c.nodes["10.0.0.1:9042"] = n

	c.handleEvent(&response.Event{
		Type:       "STATUS_CHANGE",
		ChangeType: "DOWN",
		Address:    frame.Inet{IP: []byte{10, 0, 0, 1}},
	})
	if n.IsUp() {
		t.Fatal("DOWN status event should mark the node down")
	}

	c.handleEvent(&response.Event{
		Type:       "STATUS_CHANGE",
		ChangeType: "UP",
		Address:    frame.Inet{IP: []byte{10, 0, 0, 1}},
	})
	if !n.IsUp() {
		t.Fatal("UP status event should mark the node up again")
	}
}

func TestHandleEvent_UnknownNodeIgnored(t *testing.T) {
	t.Parallel()
	c := newTestCluster()
	// Must not panic when the event refers to a node the cluster never
	// discovered.
	c.handleEvent(&response.Event{
		Type:       "STATUS_CHANGE",
		ChangeType: "DOWN",
		Address:    frame.Inet{IP: []byte{1, 2, 3, 4}},
	})
}
