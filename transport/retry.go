package transport

import (
	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/frame/response"
)

// RetryDecision is what a RetryDecider returns for a single failed attempt
//.
type RetryDecision int

const (
	RetrySameNode RetryDecision = iota
	RetryNextNode
	DontRetry
)

// RetryInfo is everything a RetryDecider needs to judge one failure.
type RetryInfo struct {
	Error       error
	Idempotent  bool
	Consistency frame.Consistency
}

// RetryDecider is a stateful, single-request retry session: it may count
// attempts against a policy-chosen budget, so a fresh one is created per
// logical request via RetryPolicy.NewRetryDecider.
type RetryDecider interface {
	Decide(RetryInfo) RetryDecision
	Reset()
}

// RetryPolicy produces a RetryDecider for each new request.
type RetryPolicy interface {
	NewRetryDecider() RetryDecider
}

// DefaultRetryPolicy implements the conservative rules the driver ships
// with: only ever retry once, only retry a write timeout/failure when the
// statement is idempotent, and never retry non-idempotent writes that
// already reached the coordinator.
type DefaultRetryPolicy struct{}

func (DefaultRetryPolicy) NewRetryDecider() RetryDecider {
	return &defaultRetryDecider{}
}

type defaultRetryDecider struct {
	retried bool
}

func (d *defaultRetryDecider) Reset() { d.retried = false }

func (d *defaultRetryDecider) Decide(ri RetryInfo) RetryDecision {
	if d.retried {
		return DontRetry
	}

	coded, ok := ri.Error.(response.CodedError)
	if !ok {
		// Connection/socket-level failure: the request never reached a
		// coordinator (or we can't tell), so it is always safe to try the
		// next host.
		d.retried = true
		return RetryNextNode
	}

	switch coded.Code() {
	case response.ErrUnavailable:
		// Not enough live replicas were known to the coordinator; no
		// point hitting the same one again.
		d.retried = true
		return RetryNextNode
	case response.ErrReadTimeout:
		d.retried = true
		return RetrySameNode
	case response.ErrWriteTimeout, response.ErrWriteFailure:
		if !ri.Idempotent {
			return DontRetry
		}
		d.retried = true
		return RetryNextNode
	case response.ErrOverloaded, response.ErrIsBootstrapping:
		d.retried = true
		return RetryNextNode
	case response.ErrServerError, response.ErrReadFailure:
		d.retried = true
		return RetryNextNode
	default:
		return DontRetry
	}
}

// FallthroughRetryPolicy never retries; useful for callers who want every
// failure surfaced immediately.
type FallthroughRetryPolicy struct{}

func (FallthroughRetryPolicy) NewRetryDecider() RetryDecider { return fallthroughDecider{} }

type fallthroughDecider struct{}

func (fallthroughDecider) Decide(RetryInfo) RetryDecision { return DontRetry }
func (fallthroughDecider) Reset()                         {}
