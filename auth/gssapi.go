package auth

import "fmt"

// HostResolver turns a connection's raw endpoint into the hostname GSSAPI
// uses to build the target service principal.
// Pluggable so callers can choose IP passthrough, reverse DNS, or a
// getnameinfo-style resolution without this package depending on net.
type HostResolver interface {
	Resolve(addr string) (string, error)
}

// HostResolverFunc adapts a plain function to HostResolver.
type HostResolverFunc func(addr string) (string, error)

func (f HostResolverFunc) Resolve(addr string) (string, error) { return f(addr) }

// PassthroughResolver returns the connection address unchanged.
var PassthroughResolver HostResolver = HostResolverFunc(func(addr string) (string, error) { return addr, nil })

// GssapiAuthProvider configures GSSAPI/Kerberos authentication. The actual
// GSS context negotiation requires a native Kerberos binding; none of the
// libraries available in this module's dependency set provide one, so
// NewAuthenticator always returns a descriptive error (a plain error value,
// not a ConfigError) and no Authenticator. Wiring a real implementation means adding a krb5 SASL library and
// implementing the `scheme` interface's three transitions against it.
type GssapiAuthProvider struct {
	ServiceName string
	Resolver    HostResolver
}

func (p *GssapiAuthProvider) NewAuthenticator(host, _ string) (Authenticator, error) {
	return nil, fmt.Errorf("gssapi: no native Kerberos implementation is wired into this build; " +
		"configure PlainTextAuthProvider or build with a GSSAPI-capable replacement for this provider")
}
