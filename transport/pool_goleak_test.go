package transport

import (
	"testing"

	"go.uber.org/goleak"
)

// TestConnPool_CloseLeavesNoGoroutines guards against a regression where
// Close stops accepting new requests but leaves w.loop/r.loop running on
// a Conn whose underlying net.Conn never unblocks their reads/writes.
func TestConnPool_CloseLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := newTestConn(t, "a")
	b := newTestConn(t, "b")
	p := &ConnPool{conns: []*Conn{a, b}}
	p.Close()
}
