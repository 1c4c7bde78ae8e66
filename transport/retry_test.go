package transport

import (
	"errors"
	"testing"

	"github.com/scylladb/cql-native-driver/frame/response"
)

func codedErr(code response.ErrorCode) error {
	return &response.Error{ErrCode: code, Message: "test"}
}

func TestDefaultRetryPolicy_SocketErrorRetriesNextNode(t *testing.T) {
	t.Parallel()
	rd := DefaultRetryPolicy{}.NewRetryDecider()
	got := rd.Decide(RetryInfo{Error: errors.New("connection reset")})
	if got != RetryNextNode {
		t.Fatalf("Decide(socket error) = %v, want RetryNextNode", got)
	}
}

func TestDefaultRetryPolicy_OnlyRetriesOnce(t *testing.T) {
	t.Parallel()
	rd := DefaultRetryPolicy{}.NewRetryDecider()
	ri := RetryInfo{Error: codedErr(response.ErrUnavailable)}
	if got := rd.Decide(ri); got != RetryNextNode {
		t.Fatalf("first Decide() = %v, want RetryNextNode", got)
	}
	if got := rd.Decide(ri); got != DontRetry {
		t.Fatalf("second Decide() = %v, want DontRetry", got)
	}
}

func TestDefaultRetryPolicy_ReadTimeoutRetriesSameNode(t *testing.T) {
	t.Parallel()
	rd := DefaultRetryPolicy{}.NewRetryDecider()
	got := rd.Decide(RetryInfo{Error: codedErr(response.ErrReadTimeout)})
	if got != RetrySameNode {
		t.Fatalf("Decide(read timeout) = %v, want RetrySameNode", got)
	}
}

func TestDefaultRetryPolicy_WriteTimeoutRequiresIdempotent(t *testing.T) {
	t.Parallel()

	rd := DefaultRetryPolicy{}.NewRetryDecider()
	got := rd.Decide(RetryInfo{Error: codedErr(response.ErrWriteTimeout), Idempotent: false})
	if got != DontRetry {
		t.Fatalf("Decide(write timeout, non-idempotent) = %v, want DontRetry", got)
	}

	rd = DefaultRetryPolicy{}.NewRetryDecider()
	got = rd.Decide(RetryInfo{Error: codedErr(response.ErrWriteTimeout), Idempotent: true})
	if got != RetryNextNode {
		t.Fatalf("Decide(write timeout, idempotent) = %v, want RetryNextNode", got)
	}
}

func TestDefaultRetryPolicy_WriteFailureRequiresIdempotent(t *testing.T) {
	t.Parallel()
	rd := DefaultRetryPolicy{}.NewRetryDecider()
	got := rd.Decide(RetryInfo{Error: codedErr(response.ErrWriteFailure), Idempotent: false})
	if got != DontRetry {
		t.Fatalf("Decide(write failure, non-idempotent) = %v, want DontRetry", got)
	}
}

func TestDefaultRetryPolicy_OverloadedAndBootstrappingRetryNextNode(t *testing.T) {
	t.Parallel()
	for _, code := range []response.ErrorCode{response.ErrOverloaded, response.ErrIsBootstrapping} {
		rd := DefaultRetryPolicy{}.NewRetryDecider()
		got := rd.Decide(RetryInfo{Error: codedErr(code)})
		if got != RetryNextNode {
			t.Fatalf("Decide(code=%v) = %v, want RetryNextNode", code, got)
		}
	}
}

func TestDefaultRetryPolicy_UnhandledCodeDoesNotRetry(t *testing.T) {
	t.Parallel()
	rd := DefaultRetryPolicy{}.NewRetryDecider()
	got := rd.Decide(RetryInfo{Error: codedErr(response.ErrorCode(0x2000))})
	if got != DontRetry {
		t.Fatalf("Decide(unhandled code) = %v, want DontRetry", got)
	}
}

func TestDefaultRetryPolicy_Reset(t *testing.T) {
	t.Parallel()
	rd := DefaultRetryPolicy{}.NewRetryDecider()
	ri := RetryInfo{Error: codedErr(response.ErrUnavailable)}
	rd.Decide(ri)
	rd.Reset()
	if got := rd.Decide(ri); got != RetryNextNode {
		t.Fatalf("Decide() after Reset() = %v, want RetryNextNode again", got)
	}
}

func TestFallthroughRetryPolicy_NeverRetries(t *testing.T) {
	t.Parallel()
	rd := FallthroughRetryPolicy{}.NewRetryDecider()
	if got := rd.Decide(RetryInfo{Error: codedErr(response.ErrUnavailable)}); got != DontRetry {
		t.Fatalf("Decide() = %v, want DontRetry", got)
	}
}
