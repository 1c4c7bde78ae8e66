package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/frame/request"
	"github.com/scylladb/cql-native-driver/frame/response"
)

// Cluster owns the Host Registry and the single Control Connection used to
// discover topology, subscribe to push events, and drive schema agreement.
// It is the only thing allowed to mutate the set of known Nodes or their
// status.
type Cluster struct {
	cfg    ConnConfig
	policy HostSelectionPolicy

	mu    sync.RWMutex
	nodes map[string]*Node // keyed by addr
	ring  Ring
	strat ReplicationStrategy

	control   *Conn
	controlMu sync.Mutex

	events []string
	done   chan struct{}
}

// NewCluster bootstraps against the first reachable seed in hosts: it opens
// a control connection, discovers system.local/system.peers, subscribes to
// the requested event types, and builds the initial Node set and token
// ring.
func NewCluster(cfg ConnConfig, policy HostSelectionPolicy, events []string, hosts ...string) (*Cluster, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("cluster: no hosts given")
	}

	c := &Cluster{
		cfg:    cfg,
		policy: policy,
		nodes:  make(map[string]*Node),
		strat:  SimpleStrategy{ReplicationFactor: 1},
		events: events,
		done:   make(chan struct{}),
	}

	var lastErr error
	for _, addr := range hosts {
		if err := c.bootstrapFrom(addr); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return nil, fmt.Errorf("cluster: could not bootstrap from any seed: %w", lastErr)
	}

	c.refreshPolicyNodes()
	go c.controlLoop()
	return c, nil
}

func (c *Cluster) bootstrapFrom(addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout*4)
	defer cancel()

	conn, err := OpenConn(ctx, addr, c.cfg.AuthProvider, c.cfg)
	if err != nil {
		return err
	}

	n := &Node{addr: addr, pool: nil}
	n.setStatus(statusUP)
	n.pool = &ConnPool{conns: []*Conn{conn}}
	c.mu.Lock()
	c.nodes[addr] = n
	c.mu.Unlock()

	if err := c.discoverTopology(ctx, conn); err != nil {
		return err
	}

	if len(c.events) > 0 {
		if _, err := conn.Send(ctx, &request.Register{EventTypes: c.events}); err != nil {
			return fmt.Errorf("REGISTER: %w", err)
		}
		conn.SetEventHandler(c.handleEvent)
	}

	c.controlMu.Lock()
	c.control = conn
	c.controlMu.Unlock()
	return nil
}

// discoverTopology queries system.local and system.peers for every known
// node's host id, datacenter, rack and tokens, then rebuilds the ring
//.
func (c *Cluster) discoverTopology(ctx context.Context, conn *Conn) error {
	local := Statement{Content: "SELECT host_id, data_center, rack, tokens FROM system.local", Consistency: frame.ONE}
	localRes, err := conn.RunQuery(ctx, local, nil)
	if err != nil {
		return fmt.Errorf("system.local: %w", err)
	}
	c.applyPeerRow(conn.Host(), localRes)

	peers := Statement{Content: "SELECT peer, host_id, data_center, rack, tokens FROM system.peers", Consistency: frame.ONE}
	peersRes, err := conn.RunQuery(ctx, peers, nil)
	if err != nil {
		return fmt.Errorf("system.peers: %w", err)
	}
	if peersRes.Metadata != nil {
		_, port, _ := net.SplitHostPort(conn.Host())
		for _, row := range peersRes.Rows {
			if len(row) < 1 {
				continue
			}
			addr := net.JoinHostPort(net.IP(row[0]).String(), port)
			c.applyPeerRow(addr, QueryResult{Metadata: peersRes.Metadata, Rows: []frame.Row{row}})
		}
	}

	c.rebuildRing()
	return nil
}

// applyPeerRow registers or updates the Node at addr from one
// system.local/system.peers row, tolerating the differing column layout
// between the two tables by looking columns up by name.
func (c *Cluster) applyPeerRow(addr string, res QueryResult) {
	if res.Metadata == nil || len(res.Rows) == 0 {
		return
	}
	colIdx := make(map[string]int, len(res.Metadata.Columns))
	for i, col := range res.Metadata.Columns {
		colIdx[col.Name] = i
	}
	row := res.Rows[0]

	n := &Node{addr: addr}
	if i, ok := colIdx["host_id"]; ok && i < len(row) && len(row[i]) == 16 {
		copy(n.hostID[:], row[i])
	}
	if i, ok := colIdx["data_center"]; ok && i < len(row) {
		n.datacenter = string(row[i])
	}
	if i, ok := colIdx["rack"]; ok && i < len(row) {
		n.rack = string(row[i])
	}
	if i, ok := colIdx["tokens"]; ok && i < len(row) {
		n.tokens = decodeTokenList(row[i])
	}
	n.setStatus(statusUP)

	c.mu.Lock()
	if existing, ok := c.nodes[addr]; ok {
		existing.datacenter = n.datacenter
		existing.rack = n.rack
		existing.hostID = n.hostID
		existing.tokens = n.tokens
	} else {
		c.nodes[addr] = n
	}
	c.mu.Unlock()
}

// decodeTokenList parses a CQL `list<text>` collection value (the wire
// encoding of the system.local/system.peers `tokens` column: a 4-byte
// element count followed by one 4-byte-length-prefixed UTF-8 string per
// element) into the decimal Murmur3 tokens it contains. Malformed or
// unparseable elements are skipped rather than aborting the whole node —
// a partially-populated ring still beats none.
func decodeTokenList(b []byte) []Token {
	if len(b) < 4 {
		return nil
	}
	n := int32(binary.BigEndian.Uint32(b))
	b = b[4:]
	if n <= 0 {
		return nil
	}
	tokens := make([]Token, 0, n)
	for i := int32(0); i < n; i++ {
		if len(b) < 4 {
			break
		}
		elemLen := int32(binary.BigEndian.Uint32(b))
		b = b[4:]
		if elemLen < 0 || int(elemLen) > len(b) {
			break
		}
		s := string(b[:elemLen])
		b = b[elemLen:]

		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		tokens = append(tokens, Token(v))
	}
	return tokens
}

// rebuildRing recomputes the sorted token ring from the current Node set,
// one RingEntry per (node, vnode token) pair parsed out of that node's
// `tokens` column by applyPeerRow. A node discovered without any parsed
// tokens (a malformed row, or a pre-vnode single-token cluster whose token
// string didn't parse) falls back to one synthetic placeholder token so it
// still participates in the ring instead of vanishing from routing
// entirely.
func (c *Cluster) rebuildRing() {
	c.mu.Lock()
	defer c.mu.Unlock()

	ring := make(Ring, 0, len(c.nodes))
	i := 0
	for _, n := range c.nodes {
		if len(n.tokens) == 0 {
			ring = append(ring, RingEntry{node: n, token: Token(i) << 48})
			i++
			continue
		}
		for _, t := range n.tokens {
			ring = append(ring, RingEntry{node: n, token: t})
		}
	}
	sort.Sort(ring)
	c.ring = ring
}

func (c *Cluster) refreshPolicyNodes() {
	c.mu.RLock()
	nodes := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.RUnlock()

	applyNodes := func(p HostSelectionPolicy) {
		switch p := p.(type) {
		case *RoundRobinPolicy:
			p.SetNodes(nodes)
		case *DCAwareRoundRobinPolicy:
			p.SetNodes(nodes)
		}
	}
	applyNodes(c.policy)
	if tap, ok := c.policy.(*tokenAwarePolicy); ok {
		tap.cluster = c
		applyNodes(tap.fallback)
	}

	for _, n := range nodes {
		if n.pool == nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout*4)
			n.Init(ctx, c.poolSizeFor(n), c.cfg.AuthProvider, c.cfg)
			cancel()
		}
	}
}

func (c *Cluster) poolSizeFor(n *Node) int {
	if c.policy.Distance(n) == 0 {
		return PoolSize
	}
	return 1
}

// replicasFor returns the live Nodes replicating token, per the cluster's
// replication strategy.
func (c *Cluster) replicasFor(token Token) []*Node {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.ring) == 0 {
		return nil
	}
	start := c.ring.tokenLowerBound(token)
	idxs := c.strat.Replicas(c.ring, start)
	out := make([]*Node, 0, len(idxs))
	for _, i := range idxs {
		if n := c.ring[i].node; n.IsUp() {
			out = append(out, n)
		}
	}
	return out
}

// SetReplicationStrategy overrides the default SimpleStrategy(RF=1) once
// the caller knows the keyspace's real replication settings.
func (c *Cluster) SetReplicationStrategy(s ReplicationStrategy) {
	c.mu.Lock()
	c.strat = s
	c.mu.Unlock()
}

// Policy returns the configured HostSelectionPolicy.
func (c *Cluster) Policy() HostSelectionPolicy { return c.policy }

// NewQueryInfo returns a QueryInfo with no routing token.
func (c *Cluster) NewQueryInfo() QueryInfo {
	return QueryInfo{}
}

// NewTokenAwareQueryInfo returns a QueryInfo that routes to token's
// replicas first.
func (c *Cluster) NewTokenAwareQueryInfo(token Token, keyspace string) (QueryInfo, error) {
	return QueryInfo{token: token, tokenAware: true, keyspace: keyspace}, nil
}

// nodeByIP finds the Node whose addr ("host:port") has ip's string form as
// its host part; EVENT frames report a bare <inetaddr> with no port.
func (c *Cluster) nodeByIP(ip []byte) *Node {
	target := net.IP(ip).String()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for addr, n := range c.nodes {
		host, _, err := net.SplitHostPort(addr)
		if err == nil && host == target {
			return n
		}
	}
	return nil
}

func (c *Cluster) handleEvent(ev *response.Event) {
	switch ev.Type {
	case "STATUS_CHANGE", "TOPOLOGY_CHANGE":
		n := c.nodeByIP(ev.Address.IP)
		if n == nil {
			return
		}
		switch ev.ChangeType {
		case "DOWN":
			n.setStatus(statusDown)
		case "UP", "NEW_NODE":
			n.setStatus(statusUP)
		case "REMOVED_NODE":
			n.Close()
		}
	case "SCHEMA_CHANGE":
		// Schema agreement is polled explicitly by AwaitSchemaAgreement;
		// a pushed SCHEMA_CHANGE event only tells us a change is underway.
	}
}

// AwaitSchemaAgreement polls FetchSchemaVersion on every known Node until
// they all agree or timeout elapses, the way the driver waits out a DDL
// statement's propagation before returning control to the caller.
func (c *Cluster) AwaitSchemaAgreement(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.RLock()
		nodes := make([]*Node, 0, len(c.nodes))
		for _, n := range c.nodes {
			if n.IsUp() {
				nodes = append(nodes, n)
			}
		}
		c.mu.RUnlock()

		versions := make(map[frame.UUID]int)
		agree := true
		for _, n := range nodes {
			v, err := n.FetchSchemaVersion(ctx)
			if err != nil {
				agree = false
				continue
			}
			versions[v]++
		}
		if agree && len(versions) <= 1 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("schema agreement not reached within %s: versions seen %v", timeout, versions)
		}

		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Cluster) controlLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.controlMu.Lock()
			dead := c.control == nil || c.control.Closed()
			c.controlMu.Unlock()
			if dead {
				c.reconnectControl()
			}
		case <-c.done:
			return
		}
	}
}

// reconnectControl re-opens the Control Connection against any currently
// known-up Node, per the Control Connection's own reconnection policy
//.
func (c *Cluster) reconnectControl() {
	c.mu.RLock()
	var addr string
	for a, n := range c.nodes {
		if n.IsUp() {
			addr = a
			break
		}
	}
	c.mu.RUnlock()
	if addr == "" {
		return
	}
	_ = c.bootstrapFrom(addr)
}

// Close tears down every Node's pool and the Control Connection.
func (c *Cluster) Close() {
	close(c.done)
	c.mu.RLock()
	nodes := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.RUnlock()
	for _, n := range nodes {
		n.Close()
	}
}
