package frame

import "fmt"

// ProtocolVersion identifies a CQL native protocol version. The high bit of
// the version byte on the wire distinguishes request (0) from response (1)
// frames; Version itself only ever holds the low 7 bits.
type ProtocolVersion byte

const (
	ProtocolVersion1 ProtocolVersion = 0x01
	ProtocolVersion2 ProtocolVersion = 0x02
	ProtocolVersion3 ProtocolVersion = 0x03
	ProtocolVersion4 ProtocolVersion = 0x04
	ProtocolVersion5 ProtocolVersion = 0x05

	CQLv4 = ProtocolVersion4

	directionMask byte = 0x80
	versionMask   byte = 0x7F
)

// SupportedVersions is the protocol downgrade ladder, highest first.
var SupportedVersions = []ProtocolVersion{
	ProtocolVersion4,
	ProtocolVersion3,
	ProtocolVersion2,
	ProtocolVersion1,
}

// StreamID identifies one in-flight request on a Connection. It is a signed
// 16-bit integer for protocol v3+ and a signed 8-bit integer for v1/v2;
// EventStreamID (-1) is reserved for server-pushed EVENT frames.
type StreamID int16

const EventStreamID StreamID = -1

// HeaderFlag is one bit of the frame header's flags byte.
type HeaderFlag byte

const (
	FlagCompression HeaderFlag = 0x01
	FlagTracing     HeaderFlag = 0x02
	FlagCustomPayload HeaderFlag = 0x04
	FlagWarning     HeaderFlag = 0x08
)

// OpCode identifies the kind of message carried in a frame body.
type OpCode byte

const (
	OpError         OpCode = 0x00
	OpStartup       OpCode = 0x01
	OpReady         OpCode = 0x02
	OpAuthenticate  OpCode = 0x03
	OpOptions       OpCode = 0x05
	OpSupported     OpCode = 0x06
	OpQuery         OpCode = 0x07
	OpResult        OpCode = 0x08
	OpPrepare       OpCode = 0x09
	OpExecute       OpCode = 0x0A
	OpRegister      OpCode = 0x0B
	OpEvent         OpCode = 0x0C
	OpBatch         OpCode = 0x0D
	OpAuthChallenge OpCode = 0x0E
	OpAuthResponse  OpCode = 0x0F
	OpAuthSuccess   OpCode = 0x10
)

func (op OpCode) String() string {
	switch op {
	case OpError:
		return "ERROR"
	case OpStartup:
		return "STARTUP"
	case OpReady:
		return "READY"
	case OpAuthenticate:
		return "AUTHENTICATE"
	case OpOptions:
		return "OPTIONS"
	case OpSupported:
		return "SUPPORTED"
	case OpQuery:
		return "QUERY"
	case OpResult:
		return "RESULT"
	case OpPrepare:
		return "PREPARE"
	case OpExecute:
		return "EXECUTE"
	case OpRegister:
		return "REGISTER"
	case OpEvent:
		return "EVENT"
	case OpBatch:
		return "BATCH"
	case OpAuthChallenge:
		return "AUTH_CHALLENGE"
	case OpAuthResponse:
		return "AUTH_RESPONSE"
	case OpAuthSuccess:
		return "AUTH_SUCCESS"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(op))
	}
}

// HeaderSize is the fixed 9-byte frame header length:
// version(1) + flags(1) + stream(2) + opcode(1) + length(4).
const HeaderSize = 9

// Header is the fixed part of every frame.
type Header struct {
	Version  ProtocolVersion
	Response bool
	Flags    byte
	StreamID StreamID
	OpCode   OpCode
	Length   uint32
}

// WriteTo serializes the header. Length is written as a placeholder (0) and
// must be patched in by the caller once the body size is known, in one
// write-then-patch pass rather than buffering the body first.
func (h Header) WriteTo(b *Buffer) {
	v := byte(h.Version) & versionMask
	if h.Response {
		v |= directionMask
	}
	b.WriteByte(v)
	b.WriteByte(h.Flags)
	b.buf = append(b.buf, byte(h.StreamID>>8), byte(h.StreamID))
	b.WriteByte(byte(h.OpCode))
	b.WriteInt(0)
}

// ParseHeader consumes a 9-byte header from the front of the buffer.
func ParseHeader(b *Buffer) Header {
	var h Header
	raw := b.Byte()
	h.Response = raw&directionMask != 0
	h.Version = ProtocolVersion(raw & versionMask)
	h.Flags = b.Byte()
	h.StreamID = StreamID(b.Short())
	h.OpCode = OpCode(b.Byte())
	h.Length = uint32(b.Int())
	return h
}

// PatchLength overwrites the 4-byte length field of an already-written
// header at the front of buf with the number of bytes that follow it.
func PatchLength(buf []byte) {
	n := uint32(len(buf) - HeaderSize)
	buf[5] = byte(n >> 24)
	buf[6] = byte(n >> 16)
	buf[7] = byte(n >> 8)
	buf[8] = byte(n)
}
