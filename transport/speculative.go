package transport

import (
	"context"
	"time"
)

// SpeculativeExecutionPolicy decides whether and when to launch a second
// (or third...) parallel attempt at a request against the next host in the
// plan, before the first attempt has failed or even returned, trading extra
// load for tail latency.
type SpeculativeExecutionPolicy interface {
	// Delay returns how long to wait after launching attempt n (1-based)
	// before launching attempt n+1. A non-positive delay means launch
	// immediately; ok=false means don't launch any further attempts.
	Delay(n int) (delay time.Duration, ok bool)
}

// NoSpeculativeExecution never launches a second attempt; this is the
// default when a caller hasn't opted in, matching the conservative stance
// taken for non-idempotent statements.
type NoSpeculativeExecution struct{}

func (NoSpeculativeExecution) Delay(int) (time.Duration, bool) { return 0, false }

// ConstantSpeculativeExecutionPolicy launches up to MaxAttempts attempts
// total, each Delay apart.
type ConstantSpeculativeExecutionPolicy struct {
	Delay_      time.Duration
	MaxAttempts int
}

func (p ConstantSpeculativeExecutionPolicy) Delay(n int) (time.Duration, bool) {
	if n >= p.MaxAttempts {
		return 0, false
	}
	return p.Delay_, true
}

// speculativeAttempt is one in-flight try at running a query against a
// single host chosen from the plan.
type speculativeAttempt struct {
	result QueryResult
	err    error
	host   string
}

// RunSpeculative drives stmt through plan (a HostSelectionPolicy's ranked
// Nodes for qi), launching additional attempts against later-ranked Nodes
// per sp's schedule while earlier attempts are still outstanding. The first
// attempt to return without error wins; in-flight losers are abandoned.
//
// Only idempotent statements should ever be run with a speculative policy
// that launches more than one attempt: a non-idempotent write executed
// twice concurrently can be applied twice.
func RunSpeculative(ctx context.Context, policy HostSelectionPolicy, sp SpeculativeExecutionPolicy, qi QueryInfo, stmt Statement, pagingState []byte) (QueryResult, error) {
	if !stmt.Idempotent {
		sp = NoSpeculativeExecution{}
	}

	resultCh := make(chan speculativeAttempt, 1)
	launched := 0
	var lastErr error

	launch := func() bool {
		n := policy.Node(qi, launched)
		if n == nil {
			return false
		}
		launched++
		go func(n *Node) {
			conn, err := n.Conn(qi)
			if err != nil {
				resultCh <- speculativeAttempt{err: err, host: n.Addr()}
				return
			}
			res, err := conn.RunQuery(ctx, stmt, pagingState)
			resultCh <- speculativeAttempt{result: res, err: err, host: n.Addr()}
		}(n)
		return true
	}

	if !launch() {
		return QueryResult{}, &NoHostAvailable{}
	}

	pending := 1
	var timer *time.Timer
	var timerCh <-chan time.Time
	if delay, ok := sp.Delay(launched); ok {
		timer = time.NewTimer(delay)
		timerCh = timer.C
		defer timer.Stop()
	}

	for pending > 0 {
		select {
		case <-ctx.Done():
			return QueryResult{}, ctx.Err()
		case <-timerCh:
			timerCh = nil
			if launch() {
				pending++
				if delay, ok := sp.Delay(launched); ok {
					timer.Reset(delay)
					timerCh = timer.C
				}
			}
		case r := <-resultCh:
			pending--
			if r.err == nil {
				return r.result, nil
			}
			lastErr = r.err
		}
	}

	if lastErr == nil {
		lastErr = &NoHostAvailable{}
	}
	return QueryResult{}, lastErr
}
