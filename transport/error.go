package transport

import (
	"fmt"

	"github.com/scylladb/cql-native-driver/auth"
	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/frame/response"
)

// SocketError signals a transport-level failure: the Connection is closed
// and reconnection is triggered.
type SocketError struct {
	Host string
	Err  error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("socket error on %s: %v", e.Host, e.Err)
}

func (e *SocketError) Unwrap() error { return e.Err }

// AuthenticationError is fatal for the current connection attempt and is
// never retried. It is the same type the auth package returns,
// re-exported here so transport callers never need to import auth directly.
type AuthenticationError = auth.AuthenticationError

// NoHostAvailable wraps the per-host errors accumulated while exhausting a
// query plan.
type NoHostAvailable struct {
	Errors map[string]error
}

func (e *NoHostAvailable) Error() string {
	return fmt.Sprintf("no host available, tried %d host(s): %v", len(e.Errors), e.Errors)
}

// ArgumentError signals invalid caller input (out-of-range bind position,
// malformed statement).
type ArgumentError struct {
	Err error
}

func (e *ArgumentError) Error() string  { return fmt.Sprintf("argument error: %v", e.Err) }
func (e *ArgumentError) Unwrap() error  { return e.Err }

// ConfigError signals invalid driver configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// DriverInternalError signals a violated invariant; the request that
// triggered it must be aborted rather than retried.
type DriverInternalError struct {
	Err error
}

func (e *DriverInternalError) Error() string { return fmt.Sprintf("driver internal error: %v", e.Err) }
func (e *DriverInternalError) Unwrap() error { return e.Err }

// responseAsError returns either a CodedError from the server (ERROR
// response) or a generic error describing an unexpected response type.
func responseAsError(res frame.Response) error {
	if v, ok := res.(response.CodedError); ok {
		return v
	}
	return fmt.Errorf("unexpected response %T, %+v", res, res)
}

// isRecoverable reports whether err flows through the retry policy as
// opposed to being rethrown immediately (SyntaxError, Invalid, Unauthorized,
// AlreadyExists) or recovered transparently (Unprepared, handled by the
// Prepared Cache before the retry policy is ever consulted).
func isRecoverable(err error) bool {
	coded, ok := err.(response.CodedError)
	if !ok {
		return false
	}
	switch coded.Code() {
	case response.ErrUnavailable, response.ErrReadTimeout, response.ErrWriteTimeout,
		response.ErrOverloaded, response.ErrIsBootstrapping, response.ErrServerError,
		response.ErrReadFailure, response.ErrWriteFailure:
		return true
	default:
		return false
	}
}
