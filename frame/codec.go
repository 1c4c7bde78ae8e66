package frame

import (
	"fmt"
	"io"
)

// Codec serializes outbound messages and parses inbound frames. It is
// streaming: ReadFrame only consumes exactly one frame's worth of bytes
// from r per call, so a caller looping over ReadFrame naturally handles
// partial socket reads by blocking inside the underlying reader rather than
// needing to buffer whole frames itself.
type Codec struct {
	Compressor Compressor
	// bodyBuf is reused across calls to avoid per-frame
	// allocation on the hot path; Codec is not safe for concurrent use,
	// matching the single-producer/single-consumer structure of
	// transport.connWriter/connReader, which each own one Codec.
	bodyBuf []byte
}

// Encode writes a complete frame (header + optionally-compressed body) for
// req into buf, patching the header's length field once the final body size
// is known.
func (c *Codec) Encode(buf *Buffer, version ProtocolVersion, streamID StreamID, req Request, compress bool) error {
	var flags byte
	if compress && c.Compressor != nil {
		flags |= byte(FlagCompression)
	}

	h := Header{
		Version:  version,
		Response: false,
		Flags:    flags,
		StreamID: streamID,
		OpCode:   req.OpCode(),
	}
	start := len(buf.buf)
	h.WriteTo(buf)

	if flags&byte(FlagCompression) == 0 {
		req.WriteTo(buf)
		PatchLength(buf.buf[start:])
		return nil
	}

	var body Buffer
	req.WriteTo(&body)
	compressed, err := c.Compressor.Compress(c.bodyBuf[:0], body.Bytes())
	if err != nil {
		return fmt.Errorf("compress frame body: %w", err)
	}
	c.bodyBuf = compressed
	if _, err := buf.Write(compressed); err != nil {
		return err
	}
	PatchLength(buf.buf[start:])
	return nil
}

// ReadFrame blocks until one full frame has arrived on r, returning its
// header and a Buffer positioned at the start of the (decompressed) body.
// A truncated header or body surfaces as a *ProtocolError; that
// means the connection that owns r can no longer be trusted.
func (c *Codec) ReadFrame(r io.Reader, scratch *Buffer) (Header, error) {
	scratch.Reset()

	if _, err := io.CopyN(BufferWriter(scratch), r, HeaderSize); err != nil {
		return Header{}, NewProtocolError("read header: %w", err)
	}
	h := ParseHeader(scratch)
	if err := scratch.Error(); err != nil {
		return Header{}, NewProtocolError("parse header: %w", err)
	}

	scratch.Reset()
	if h.Length > 0 {
		if _, err := io.CopyN(BufferWriter(scratch), r, int64(h.Length)); err != nil {
			return h, NewProtocolError("read body (opcode %v, len %d): %w", h.OpCode, h.Length, err)
		}
	}

	if h.Flags&byte(FlagCompression) != 0 {
		if c.Compressor == nil {
			return h, NewProtocolError("received compressed frame but no compressor negotiated")
		}
		decompressed, err := c.Compressor.Decompress(nil, scratch.Bytes())
		if err != nil {
			return h, NewProtocolError("decompress frame body: %w", err)
		}
		scratch.Reset()
		_, _ = scratch.Write(decompressed)
	}

	return h, nil
}

// ValidateFlags rejects flag bits this codec cannot interpret. CUSTOM_PAYLOAD
// and WARNING are recognized but only meaningfully consumed by response
// parsers that look for them; an unrecognized high bit is a protocol error
// since the stream table can no longer be trusted to line up with
// what the peer believes it sent.
func ValidateFlags(flags byte) error {
	const known = byte(FlagCompression) | byte(FlagTracing) | byte(FlagCustomPayload) | byte(FlagWarning)
	if flags&^known != 0 {
		return NewProtocolError("unknown frame flag bits: 0x%02x", flags&^known)
	}
	return nil
}
