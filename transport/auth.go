package transport

import "github.com/scylladb/cql-native-driver/auth"

// Authenticator and AuthProvider are re-exported so transport callers never
// need to import the auth package directly; the Connection only needs to
// drive the handshake state machine defined there.
type Authenticator = auth.Authenticator
type AuthProvider = auth.AuthProvider
