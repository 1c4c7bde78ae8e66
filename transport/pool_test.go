package transport

import (
	"net"
	"testing"

	"github.com/scylladb/cql-native-driver/frame"
)

// newTestConn wraps one end of an in-memory pipe as a Conn in the Ready
// state, without going through OpenConn's dial/handshake.
func newTestConn(t *testing.T, host string) *Conn {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })

	c := wrapConn(client, host, frame.CQLv4, ConnConfig{})
	c.state.Store(int32(stateReady))
	t.Cleanup(c.Close)
	return c
}

// withInFlight reserves n stream ids on c without ever freeing them, so
// InFlight() reports n until the Conn is closed.
func withInFlight(t *testing.T, c *Conn, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := c.r.setHandler(nil, 0); err != nil {
			t.Fatalf("setHandler: %v", err)
		}
	}
}

func TestConnPool_LeastBusyConnPicksLowestLoad(t *testing.T) {
	t.Parallel()
	busy := newTestConn(t, "busy")
	withInFlight(t, busy, 3)
	idle := newTestConn(t, "idle")

	p := &ConnPool{conns: []*Conn{busy, idle}}

	got, err := p.LeastBusyConn()
	if err != nil {
		t.Fatalf("LeastBusyConn() error = %v", err)
	}
	if got != idle {
		t.Fatalf("LeastBusyConn() = %s, want the idle connection", got.Host())
	}
}

func TestConnPool_LeastBusyConnSkipsNotReady(t *testing.T) {
	t.Parallel()
	notReady := newTestConn(t, "starting")
	notReady.state.Store(int32(stateStarting))
	ready := newTestConn(t, "ready")

	p := &ConnPool{conns: []*Conn{notReady, ready}}
	got, err := p.LeastBusyConn()
	if err != nil {
		t.Fatalf("LeastBusyConn() error = %v", err)
	}
	if got != ready {
		t.Fatalf("LeastBusyConn() = %s, want the ready connection", got.Host())
	}
}

func TestConnPool_LeastBusyConnAllDown(t *testing.T) {
	t.Parallel()
	c := newTestConn(t, "down")
	c.state.Store(int32(stateDefunct))

	p := &ConnPool{conns: []*Conn{c}}
	if _, err := p.LeastBusyConn(); err == nil {
		t.Fatal("LeastBusyConn() with no ready connections = nil error, want BusyConnection")
	}
}

func TestConnPool_SizeCountsOnlyOpenConns(t *testing.T) {
	t.Parallel()
	a := newTestConn(t, "a")
	b := newTestConn(t, "b")

	p := &ConnPool{conns: []*Conn{a, b}}
	if got := p.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2", got)
	}

	a.Close()
	if got := p.Size(); got != 1 {
		t.Fatalf("Size() after closing one conn = %d, want 1", got)
	}
}

func TestConnPool_CloseClosesEveryConn(t *testing.T) {
	t.Parallel()
	a := newTestConn(t, "a")
	b := newTestConn(t, "b")

	p := &ConnPool{conns: []*Conn{a, b}}
	p.Close()

	if !a.Closed() || !b.Closed() {
		t.Fatalf("Close() left connections open: a.Closed()=%v b.Closed()=%v", a.Closed(), b.Closed())
	}
}
