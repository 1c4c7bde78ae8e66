package auth

import (
	"bytes"
	"fmt"
)

// plainBootstrapToken is the well-known challenge content PLAIN negotiation
// is anchored on, both as the synthetic "already delivered" server
// challenge in the non-DSE case and as DSE's literal echoed AUTH_CHALLENGE.
var plainBootstrapToken = []byte("PLAIN-START")

// plainTextScheme implements the PLAIN SASL mechanism: response
// bytes are authorizationId \0 authenticationId \0 password.
type plainTextScheme struct {
	authorizationID string
	username        string
	password        string
}

func (p *plainTextScheme) mechanism() string      { return "PLAIN" }
func (p *plainTextScheme) bootstrapToken() []byte { return plainBootstrapToken }

func (p *plainTextScheme) respond(challenge []byte) ([]byte, error) {
	if !bytes.Equal(challenge, plainBootstrapToken) {
		return nil, fmt.Errorf("PLAIN: unexpected server challenge %q, expected %q", challenge, plainBootstrapToken)
	}
	var buf bytes.Buffer
	buf.WriteString(p.authorizationID)
	buf.WriteByte(0)
	buf.WriteString(p.username)
	buf.WriteByte(0)
	buf.WriteString(p.password)
	return buf.Bytes(), nil
}

func (p *plainTextScheme) onSuccess(_ []byte) error { return nil }

// PlainTextAuthProvider authenticates with a fixed username/password, and
// optionally proxy-executes/proxy-logs-in as a different authorizationId
//.
type PlainTextAuthProvider struct {
	Username        string
	Password        string
	AuthorizationID string // optional: run queries as a different DSE role
}

func (p *PlainTextAuthProvider) NewAuthenticator(host, authenticatorClass string) (Authenticator, error) {
	scheme := &plainTextScheme{
		authorizationID: p.AuthorizationID,
		username:        p.Username,
		password:        p.Password,
	}
	return newDseAuthenticator(authenticatorClass, scheme), nil
}

// DsePlainTextAuthProvider is the DSE-specific alias callers configure by
// name when targeting a DSE cluster; its behavior is identical to
// PlainTextAuthProvider since scheme negotiation already dispatches on the
// server's declared class name.
type DsePlainTextAuthProvider = PlainTextAuthProvider
