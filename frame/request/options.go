package request

import (
	"github.com/scylladb/cql-native-driver/frame"
)

var _ frame.Request = (*Options)(nil)

// Options spec: https://github.com/apache/cassandra/blob/adcff3f630c0d07d1ba33bf23fcb11a6db1b9af1/doc/native_protocol_v4.spec#L330
// It also doubles as the driver's heartbeat since it is cheap for a
// server to answer and its SUPPORTED reply can be safely ignored.
type Options struct{}

func (*Options) WriteTo(_ *frame.Buffer) {}

func (*Options) OpCode() frame.OpCode {
	return frame.OpOptions
}
