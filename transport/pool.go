package transport

import (
	"context"
	"fmt"
	"sync"
)

// ConnPool owns every Connection opened to one Host. Connections are
// created up front (PoolSize of them) and never resized at runtime; a
// saturated pool (every Connection at its stream-id capacity) surfaces as
// BusyConnection so the Request Handler can move to the next host.
type ConnPool struct {
	mu    sync.RWMutex
	conns []*Conn
}

// PoolSize is the number of Connections opened per local-distance Host;
// remote hosts get a single Connection.
const PoolSize = 4

// NewConnPool dials size connections to addr (at least one). If every dial fails the
// pool creation itself fails (the Host stays down); a partial success
// (at least one live Connection) is accepted, tolerating one flaky
// individual connection attempt during warmup.
func NewConnPool(ctx context.Context, addr string, size int, provider AuthProvider, cfg ConnConfig) (*ConnPool, error) {
	if size < 1 {
		size = 1
	}
	p := &ConnPool{conns: make([]*Conn, 0, size)}

	var lastErr error
	for i := 0; i < size; i++ {
		conn, err := OpenConn(ctx, addr, provider, cfg)
		if err != nil {
			lastErr = err
			continue
		}
		p.conns = append(p.conns, conn)
	}

	if len(p.conns) == 0 {
		return nil, fmt.Errorf("opening connection pool to %s: %w", addr, lastErr)
	}
	return p, nil
}

// LeastBusyConn returns the live Connection with the fewest pending
// requests.
func (p *ConnPool) LeastBusyConn() (*Conn, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best *Conn
	bestLoad := -1
	for _, c := range p.conns {
		if c.Closed() || !c.IsReady() {
			continue
		}
		load := c.InFlight()
		if bestLoad == -1 || load < bestLoad {
			best = c
			bestLoad = load
		}
	}
	if best == nil {
		return nil, &BusyConnection{}
	}
	return best, nil
}

// Conn picks the Connection to use for a token-aware request; the shard-
// per-connection mapping Scylla offers via shard-aware ports isn't
// available here (plain Cassandra/DSE don't expose one), so this degrades
// to LeastBusyConn, matching any other Connection selection within the pool.
func (p *ConnPool) Conn(_ Token) (*Conn, error) {
	return p.LeastBusyConn()
}

// Close tears down every Connection in the pool.
func (p *ConnPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		c.Close()
	}
}

// Size returns the number of live (non-Closed) connections.
func (p *ConnPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, c := range p.conns {
		if !c.Closed() {
			n++
		}
	}
	return n
}
