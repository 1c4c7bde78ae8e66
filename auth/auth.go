// Package auth implements the pluggable SASL authentication framework: an
// AuthProvider produces a per-connection Authenticator state machine that
// is driven through AUTHENTICATE / AUTH_CHALLENGE / AUTH_SUCCESS frames.
package auth

import "fmt"

// AuthenticationError is returned when the handshake cannot proceed: no
// provider configured, a mismatched bootstrap token, or the underlying
// mechanism rejecting the exchange. It is always fatal for the connection
// attempt.
type AuthenticationError struct {
	Host string
	Err  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error (%s): %v", e.Host, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Authenticator is a sequential challenge/response state machine driven by
// a Connection during STARTUP.
type Authenticator interface {
	// InitialResponse returns the first AUTH_RESPONSE payload, sent
	// immediately after the server's AUTHENTICATE message.
	InitialResponse() ([]byte, error)
	// EvaluateChallenge consumes one AUTH_CHALLENGE token and returns the
	// next AUTH_RESPONSE payload.
	EvaluateChallenge(challenge []byte) ([]byte, error)
	// OnAuthenticationSuccess is invoked with the server's optional final
	// token once AUTH_SUCCESS arrives. Any error here is fire-and-forget:
	// callers should log at warning level and otherwise ignore it, since
	// the handshake has already succeeded from the server's point of view
	// by the time this runs.
	OnAuthenticationSuccess(token []byte) error
}

// AuthProvider creates a fresh Authenticator for each new connection, given
// the server's declared authenticator class name and the remote host the
// connection is being made to.
type AuthProvider interface {
	NewAuthenticator(host, authenticatorClass string) (Authenticator, error)
}

// AuthProviderFunc adapts a plain function to the AuthProvider interface.
type AuthProviderFunc func(host, authenticatorClass string) (Authenticator, error)

func (f AuthProviderFunc) NewAuthenticator(host, class string) (Authenticator, error) {
	return f(host, class)
}

// NoAuth is used when the session has no configured AuthProvider but the
// server nonetheless sends AUTHENTICATE: it fails immediately, naming the
// host, rather than silently sending an empty response.
type NoAuth struct{}

func (NoAuth) NewAuthenticator(host, _ string) (Authenticator, error) {
	return nil, &AuthenticationError{Host: host, Err: fmt.Errorf("remote end requires authentication, but no AuthProvider was configured")}
}

// dseAuthenticatorClass is the server class name DSE reports when its
// pluggable scheme-negotiating authenticator is in effect.
const dseAuthenticatorClass = "com.datastax.bdp.cassandra.auth.DseAuthenticator"
