package transport

import (
	"sync/atomic"

	"github.com/hailocab/go-hostpool"
)

// QueryInfo is everything a HostSelectionPolicy needs to rank nodes for one
// request: its routing token (if token-aware routing applies) and target
// keyspace.
type QueryInfo struct {
	token      Token
	tokenAware bool
	keyspace   string
}

// HostSelectionPolicy yields Hosts in priority order for a request; Node
// returns the (idx+1)-th choice, or nil once exhausted, letting callers
// walk the plan with an incrementing index instead of materializing a
// slice up front.
type HostSelectionPolicy interface {
	Node(qi QueryInfo, idx int) *Node
	// Distance classifies a node for pool sizing: 0 local, 1 remote, 2
	// ignored.
	Distance(n *Node) int
}

// RoundRobinPolicy cycles through all known nodes, ignoring datacenter and
// token.
type RoundRobinPolicy struct {
	nodes  atomic.Value // []*Node
	offset uint64
}

func NewRoundRobinPolicy() *RoundRobinPolicy {
	return &RoundRobinPolicy{}
}

func (p *RoundRobinPolicy) SetNodes(nodes []*Node) {
	p.nodes.Store(nodes)
}

func (p *RoundRobinPolicy) Distance(*Node) int { return 0 }

func (p *RoundRobinPolicy) Node(_ QueryInfo, idx int) *Node {
	nodes, _ := p.nodes.Load().([]*Node)
	if len(nodes) == 0 || idx >= len(nodes) {
		return nil
	}
	start := atomic.LoadUint64(&p.offset)
	if idx == 0 {
		start = atomic.AddUint64(&p.offset, 1)
	}
	return nodes[(int(start)+idx)%len(nodes)]
}

// DCAwareRoundRobinPolicy prefers nodes in localDC, falling back to remote
// nodes only once local nodes are exhausted.
type DCAwareRoundRobinPolicy struct {
	localDC string
	nodes   atomic.Value // []*Node
	offset  uint64
}

func NewDCAwareRoundRobin(localDC string) *DCAwareRoundRobinPolicy {
	return &DCAwareRoundRobinPolicy{localDC: localDC}
}

func (p *DCAwareRoundRobinPolicy) SetNodes(nodes []*Node) {
	p.nodes.Store(nodes)
}

func (p *DCAwareRoundRobinPolicy) Distance(n *Node) int {
	if n.datacenter == p.localDC {
		return 0
	}
	return 1
}

func (p *DCAwareRoundRobinPolicy) Node(_ QueryInfo, idx int) *Node {
	nodes, _ := p.nodes.Load().([]*Node)
	if len(nodes) == 0 {
		return nil
	}

	local := make([]*Node, 0, len(nodes))
	remote := make([]*Node, 0)
	for _, n := range nodes {
		if n.datacenter == p.localDC {
			local = append(local, n)
		} else {
			remote = append(remote, n)
		}
	}
	if idx >= len(local)+len(remote) {
		return nil
	}
	start := atomic.LoadUint64(&p.offset)
	if idx == 0 {
		start = atomic.AddUint64(&p.offset, 1)
	}
	if idx < len(local) {
		return local[(int(start)+idx)%len(local)]
	}
	return remote[(int(start)+idx-len(local))%len(remote)]
}

// tokenAwarePolicy wraps another policy, moving the replicas of the
// request's routing token to the front of the plan before falling back to
// the wrapped policy's ordering for everything else.
type tokenAwarePolicy struct {
	fallback HostSelectionPolicy
	cluster  *Cluster
}

// NewSimpleTokenAwarePolicy wraps fallback with token-aware routing; it uses
// a live ring once it is passed as the policy to NewCluster. rf is not used:
// replicas come from the attached Cluster's ReplicationStrategy (see
// Cluster.SetReplicationStrategy).
func NewSimpleTokenAwarePolicy(fallback HostSelectionPolicy, rf int) HostSelectionPolicy {
	return &tokenAwarePolicy{fallback: fallback}
}

// NewNetworkTopologyTokenAwarePolicy wraps fallback with token-aware
// routing. dcRF is not used: replicas come from the attached Cluster's
// ReplicationStrategy (see Cluster.SetReplicationStrategy).
func NewNetworkTopologyTokenAwarePolicy(fallback HostSelectionPolicy, dcRF map[string]int) HostSelectionPolicy {
	return &tokenAwarePolicy{fallback: fallback}
}

func (p *tokenAwarePolicy) Distance(n *Node) int { return p.fallback.Distance(n) }

func (p *tokenAwarePolicy) Node(qi QueryInfo, idx int) *Node {
	if !qi.tokenAware || p.cluster == nil {
		return p.fallback.Node(qi, idx)
	}
	replicas := p.cluster.replicasFor(qi.token)
	if idx < len(replicas) {
		return replicas[idx]
	}
	return p.fallback.Node(qi, idx-len(replicas))
}

// HostPoolPolicy adapts hailocab/go-hostpool's epsilon-greedy selection
// algorithm as a HostSelectionPolicy alternative to the static round-robin
// policies above. Each choice is marked successful as soon as it is handed
// out, so the pool's response-time weighting does not see actual request
// latency.
type HostPoolPolicy struct {
	hp    hostpool.HostPool
	nodes atomic.Value // map[string]*Node
}

// NewHostPoolPolicy builds an epsilon-greedy policy over the given nodes,
// keyed by each Node's connection address.
func NewHostPoolPolicy(nodes []*Node) *HostPoolPolicy {
	addrs := make([]string, len(nodes))
	byAddr := make(map[string]*Node, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.addr
		byAddr[n.addr] = n
	}
	p := &HostPoolPolicy{hp: hostpool.NewEpsilonGreedy(addrs, 0, &hostpool.LinearEpsilonValueCalculator{})}
	p.nodes.Store(byAddr)
	return p
}

func (p *HostPoolPolicy) Distance(*Node) int { return 0 }

func (p *HostPoolPolicy) Node(_ QueryInfo, idx int) *Node {
	if idx > 0 {
		// hostpool hands back one adaptively-chosen host per call; beyond
		// the first choice we have no additional ranking to offer.
		return nil
	}
	resp := p.hp.Get()
	byAddr, _ := p.nodes.Load().(map[string]*Node)
	n := byAddr[resp.Host()]
	if n != nil {
		resp.Mark(nil)
	}
	return n
}
