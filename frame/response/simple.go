// Package response implements the server-to-client CQL native protocol
// messages: ERROR, READY, AUTHENTICATE, SUPPORTED, RESULT, EVENT and the
// AUTH_CHALLENGE/AUTH_SUCCESS handshake messages.
package response

import (
	"github.com/scylladb/cql-native-driver/frame"
)

// Ready has an empty body; it confirms STARTUP succeeded with no auth required.
type Ready struct{}

func (*Ready) OpCode() frame.OpCode { return frame.OpReady }

func ParseReady(b *frame.Buffer) *Ready {
	return &Ready{}
}

// Authenticate carries the server's declared authenticator class name,
// driving the Auth Framework's scheme negotiation.
type Authenticate struct {
	Class string
}

func (*Authenticate) OpCode() frame.OpCode { return frame.OpAuthenticate }

func ParseAuthenticate(b *frame.Buffer) *Authenticate {
	return &Authenticate{Class: b.String()}
}

// AuthChallenge carries the next SASL challenge token.
type AuthChallenge struct {
	Token []byte
}

func (*AuthChallenge) OpCode() frame.OpCode { return frame.OpAuthChallenge }

func ParseAuthChallenge(b *frame.Buffer) *AuthChallenge {
	return &AuthChallenge{Token: b.ReadBytes()}
}

// AuthSuccess ends the SASL exchange, optionally carrying a final token.
type AuthSuccess struct {
	Token []byte
}

func (*AuthSuccess) OpCode() frame.OpCode { return frame.OpAuthSuccess }

func ParseAuthSuccess(b *frame.Buffer) *AuthSuccess {
	return &AuthSuccess{Token: b.ReadBytes()}
}

// Supported lists the server's supported options (protocol versions,
// compression algorithms, CQL version), replying to an OPTIONS request.
type Supported struct {
	Options map[string]frame.StringList
}

func (*Supported) OpCode() frame.OpCode { return frame.OpSupported }

func ParseSupported(b *frame.Buffer) *Supported {
	return &Supported{Options: b.StringMultiMap()}
}

// Event is a server-pushed notification on a REGISTER'd connection
// (STATUS_CHANGE, TOPOLOGY_CHANGE or SCHEMA_CHANGE), always delivered on
// the reserved EventStreamID stream.
type Event struct {
	Type string

	// STATUS_CHANGE / TOPOLOGY_CHANGE
	ChangeType string // UP/DOWN or NEW_NODE/REMOVED_NODE/MOVED_NODE
	Address    frame.Inet

	// SCHEMA_CHANGE
	SchemaChangeType string // CREATED/UPDATED/DROPPED
	SchemaTarget     string // KEYSPACE/TABLE/TYPE/FUNCTION/AGGREGATE
	Keyspace         string
	Object           string
	Arguments        frame.StringList
}

func (*Event) OpCode() frame.OpCode { return frame.OpEvent }

func ParseEvent(b *frame.Buffer) *Event {
	e := &Event{Type: b.String()}
	switch e.Type {
	case "TOPOLOGY_CHANGE", "STATUS_CHANGE":
		e.ChangeType = b.String()
		e.Address = b.Inet()
	case "SCHEMA_CHANGE":
		e.SchemaChangeType = b.String()
		e.SchemaTarget = b.String()
		switch e.SchemaTarget {
		case "KEYSPACE":
			e.Keyspace = b.String()
		case "TABLE", "TYPE":
			e.Keyspace = b.String()
			e.Object = b.String()
		case "FUNCTION", "AGGREGATE":
			e.Keyspace = b.String()
			e.Object = b.String()
			e.Arguments = b.StringList()
		}
	}
	return e
}
