package auth

import "fmt"

// scheme is the mechanism-specific half of a handshake: PLAIN, GSSAPI, ...
// dseAuthenticator supplies the class-name branching logic shared by all of
// them.
type scheme interface {
	mechanism() string
	bootstrapToken() []byte
	respond(challenge []byte) ([]byte, error)
	onSuccess(token []byte) error
}

// dseAuthenticator implements DSE's transitional-mode scheme negotiation: when
// talking to DseAuthenticator, the initial response names the mechanism and
// lets the server drive the real challenge exchange; against any other
// authenticator, the server's AUTHENTICATE message is treated as if it were
// already the scheme's well-known bootstrap challenge.
type dseAuthenticator struct {
	isDSE  bool
	scheme scheme
}

func newDseAuthenticator(authenticatorClass string, s scheme) *dseAuthenticator {
	return &dseAuthenticator{
		isDSE:  authenticatorClass == dseAuthenticatorClass,
		scheme: s,
	}
}

func (a *dseAuthenticator) InitialResponse() ([]byte, error) {
	if a.isDSE {
		return []byte(a.scheme.mechanism()), nil
	}
	return a.scheme.respond(a.scheme.bootstrapToken())
}

func (a *dseAuthenticator) EvaluateChallenge(challenge []byte) ([]byte, error) {
	return a.scheme.respond(challenge)
}

func (a *dseAuthenticator) OnAuthenticationSuccess(token []byte) error {
	return a.scheme.onSuccess(token)
}

// transitionalPlainText implements DSE's "transitional mode": when
// AUTHENTICATE arrives but the session has no credentials configured and
// the remote authenticator is DSE's, the client responds with an empty
// PLAIN payload instead of failing outright.
type transitionalPlainText struct{}

func (transitionalPlainText) InitialResponse() ([]byte, error) {
	return []byte("PLAIN"), nil
}

func (transitionalPlainText) EvaluateChallenge(_ []byte) ([]byte, error) {
	return []byte{}, nil
}

func (transitionalPlainText) OnAuthenticationSuccess(_ []byte) error { return nil }

// NewTransitionalAuthProvider builds the AuthProvider used when talking to a
// DSE cluster running in "transitional" auth mode with no credentials
// configured on the client.
func NewTransitionalAuthProvider() AuthProvider {
	return AuthProviderFunc(func(host, authenticatorClass string) (Authenticator, error) {
		if authenticatorClass != dseAuthenticatorClass {
			return nil, &AuthenticationError{Host: host, Err: errNotDSETransitional}
		}
		return transitionalPlainText{}, nil
	})
}

var errNotDSETransitional = fmt.Errorf("transitional auth mode requires the DSE authenticator, got a non-DSE server")
