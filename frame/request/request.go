// Package request implements the client-to-server CQL native protocol
// messages: STARTUP, OPTIONS, QUERY, PREPARE, EXECUTE, BATCH, REGISTER and
// the AUTH_RESPONSE handshake message.
package request

import (
	"github.com/scylladb/cql-native-driver/frame"
)

// Startup spec: https://github.com/apache/cassandra/blob/trunk/doc/native_protocol_v4.spec STARTUP
type Startup struct {
	Options map[string]string
}

var _ frame.Request = (*Startup)(nil)

func (s *Startup) WriteTo(b *frame.Buffer) {
	b.WriteStringMap(s.Options)
}

func (*Startup) OpCode() frame.OpCode {
	return frame.OpStartup
}

// AuthResponse carries the client's SASL token during authentication.
type AuthResponse struct {
	Token []byte
}

var _ frame.Request = (*AuthResponse)(nil)

func (a *AuthResponse) WriteTo(b *frame.Buffer) {
	b.WriteBytes(a.Token)
}

func (*AuthResponse) OpCode() frame.OpCode {
	return frame.OpAuthResponse
}

// Register subscribes the connection to the named server event types
// (STATUS_CHANGE, TOPOLOGY_CHANGE, SCHEMA_CHANGE).
type Register struct {
	EventTypes frame.StringList
}

var _ frame.Request = (*Register)(nil)

func (r *Register) WriteTo(b *frame.Buffer) {
	b.WriteStringList(r.EventTypes)
}

func (*Register) OpCode() frame.OpCode {
	return frame.OpRegister
}
