// Package frame implements the CQL native protocol binary framing layer:
// header encoding, primitive type codecs and the streaming buffer used to
// assemble and parse frames.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Buffer is a growable byte buffer used both to serialize outbound frames
// and to parse inbound ones. Unlike bytes.Buffer, read errors are sticky:
// once Error() is non-nil every further Read* call is a no-op, so callers
// can chain a sequence of reads and check the error once at the end.
type Buffer struct {
	buf []byte
	off int
	err error
}

// Reset clears the buffer contents and sticky error, keeping the backing
// array for reuse.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.off = 0
	b.err = nil
}

// Bytes returns the unread portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.off:]
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.buf) - b.off
}

// Error returns the first error encountered while reading, if any.
func (b *Buffer) Error() error {
	return b.err
}

func (b *Buffer) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Write appends p to the buffer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// WriteTo implements io.WriterTo, draining the unread portion of the buffer.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.Bytes())
	b.off += n
	return int64(n), err
}

// CopyBuffer writes the unread portion of src to dst, reusing src's
// internal storage (no extra allocation beyond what io.Writer requires).
func CopyBuffer(src *Buffer, dst io.Writer) (int64, error) {
	return src.WriteTo(dst)
}

// BufferWriter adapts a Buffer to io.Writer for use with io.CopyN when
// filling the buffer from a socket.
func BufferWriter(b *Buffer) io.Writer {
	return (*rawWriter)(b)
}

type rawWriter Buffer

func (w *rawWriter) Write(p []byte) (int, error) {
	(*Buffer)(w).buf = append((*Buffer)(w).buf, p...)
	return len(p), nil
}

func (b *Buffer) read(n int) []byte {
	if b.err != nil {
		return nil
	}
	if b.Len() < n {
		b.fail(fmt.Errorf("frame: short read: need %d bytes, have %d", n, b.Len()))
		return nil
	}
	p := b.buf[b.off : b.off+n]
	b.off += n
	return p
}

// Byte consumes and returns a single byte.
func (b *Buffer) Byte() byte {
	p := b.read(1)
	if p == nil {
		return 0
	}
	return p[0]
}

// WriteShort appends a 2-byte big-endian unsigned integer.
func (b *Buffer) WriteShort(v Short) {
	b.buf = append(b.buf, byte(v>>8), byte(v))
}

// Short consumes a 2-byte big-endian unsigned integer.
func (b *Buffer) Short() Short {
	p := b.read(2)
	if p == nil {
		return 0
	}
	return Short(binary.BigEndian.Uint16(p))
}

// WriteInt appends a 4-byte big-endian signed integer.
func (b *Buffer) WriteInt(v Int) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.buf = append(b.buf, tmp[:]...)
}

// Int consumes a 4-byte big-endian signed integer.
func (b *Buffer) Int() Int {
	p := b.read(4)
	if p == nil {
		return 0
	}
	return Int(binary.BigEndian.Uint32(p))
}

// WriteLong appends an 8-byte big-endian signed integer.
func (b *Buffer) WriteLong(v Long) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	b.buf = append(b.buf, tmp[:]...)
}

// Long consumes an 8-byte big-endian signed integer.
func (b *Buffer) Long() Long {
	p := b.read(8)
	if p == nil {
		return 0
	}
	return Long(binary.BigEndian.Uint64(p))
}

// WriteString appends a <string>: a [short] length followed by UTF-8 bytes.
func (b *Buffer) WriteString(s string) {
	b.WriteShort(Short(len(s)))
	b.buf = append(b.buf, s...)
}

// String consumes a <string>.
func (b *Buffer) String() string {
	n := int(b.Short())
	p := b.read(n)
	if p == nil {
		return ""
	}
	return string(p)
}

// WriteLongString appends a <long string>: an [int] length followed by UTF-8 bytes.
func (b *Buffer) WriteLongString(s string) {
	b.WriteInt(Int(len(s)))
	b.buf = append(b.buf, s...)
}

// LongString consumes a <long string>.
func (b *Buffer) LongString() string {
	n := int(b.Int())
	if n < 0 {
		b.fail(fmt.Errorf("frame: negative long string length %d", n))
		return ""
	}
	p := b.read(n)
	if p == nil {
		return ""
	}
	return string(p)
}

// WriteBytes appends a <bytes>: an [int] length (negative meaning null)
// followed by raw bytes.
func (b *Buffer) WriteBytes(v Bytes) {
	if v == nil {
		b.WriteInt(-1)
		return
	}
	b.WriteInt(Int(len(v)))
	b.buf = append(b.buf, v...)
}

// ReadBytes consumes a <bytes>, returning nil for a null marker (-1 length).
func (b *Buffer) ReadBytes() Bytes {
	n := int(b.Int())
	if n < 0 {
		return nil
	}
	p := b.read(n)
	if p == nil {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

// WriteShortBytes appends a <short bytes>: a [short] length followed by raw bytes.
func (b *Buffer) WriteShortBytes(v []byte) {
	b.WriteShort(Short(len(v)))
	b.buf = append(b.buf, v...)
}

// ShortBytes consumes a <short bytes>.
func (b *Buffer) ShortBytes() []byte {
	n := int(b.Short())
	p := b.read(n)
	if p == nil {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

// WriteStringList appends a <string list>.
func (b *Buffer) WriteStringList(l StringList) {
	b.WriteShort(Short(len(l)))
	for _, s := range l {
		b.WriteString(s)
	}
}

// StringList consumes a <string list>.
func (b *Buffer) StringList() StringList {
	n := int(b.Short())
	if n == 0 {
		return nil
	}
	out := make(StringList, n)
	for i := range out {
		out[i] = b.String()
	}
	return out
}

// WriteStringMap appends a <string map>.
func (b *Buffer) WriteStringMap(m map[string]string) {
	b.WriteShort(Short(len(m)))
	for k, v := range m {
		b.WriteString(k)
		b.WriteString(v)
	}
}

// StringMap consumes a <string map>.
func (b *Buffer) StringMap() map[string]string {
	n := int(b.Short())
	m := make(map[string]string, n)
	for i := 0; i < n; i++ {
		k := b.String()
		v := b.String()
		m[k] = v
	}
	return m
}

// StringMultiMap consumes a <string multimap>.
func (b *Buffer) StringMultiMap() map[string]StringList {
	n := int(b.Short())
	m := make(map[string]StringList, n)
	for i := 0; i < n; i++ {
		k := b.String()
		v := b.StringList()
		m[k] = v
	}
	return m
}

// WriteStringMultiMap appends a <string multimap>.
func (b *Buffer) WriteStringMultiMap(m map[string]StringList) {
	b.WriteShort(Short(len(m)))
	for k, v := range m {
		b.WriteString(k)
		b.WriteStringList(v)
	}
}

// WriteUUID appends a 16-byte <uuid>.
func (b *Buffer) WriteUUID(u UUID) {
	b.buf = append(b.buf, u[:]...)
}

// UUID consumes a 16-byte <uuid>.
func (b *Buffer) UUID() UUID {
	var u UUID
	p := b.read(16)
	if p == nil {
		return u
	}
	copy(u[:], p)
	return u
}

// WriteInet appends an <inet>: a 1-byte address length, the raw address
// octets, then a 4-byte port.
func (b *Buffer) WriteInet(addr Inet) {
	b.buf = append(b.buf, byte(len(addr.IP)))
	b.buf = append(b.buf, addr.IP...)
	b.WriteInt(Int(addr.Port))
}

// Inet consumes an <inet>.
func (b *Buffer) Inet() Inet {
	n := int(b.Byte())
	ip := b.read(n)
	port := b.Int()
	out := Inet{Port: int(port)}
	if ip != nil {
		out.IP = append([]byte(nil), ip...)
	}
	return out
}

// InetAddr consumes an <inetaddr>: like <inet> without the port.
func (b *Buffer) InetAddr() []byte {
	n := int(b.Byte())
	ip := b.read(n)
	if ip == nil {
		return nil
	}
	return append([]byte(nil), ip...)
}

// WriteConsistency appends a <consistency> ([short] encoded level).
func (b *Buffer) WriteConsistency(c Consistency) {
	b.WriteShort(Short(c))
}

// ReadConsistency consumes a <consistency>.
func (b *Buffer) ReadConsistency() Consistency {
	return Consistency(b.Short())
}

// WriteFloat appends a 4-byte IEEE-754 float.
func (b *Buffer) WriteFloat(f float32) {
	b.WriteInt(Int(math.Float32bits(f)))
}

// Float consumes a 4-byte IEEE-754 float.
func (b *Buffer) Float() float32 {
	return math.Float32frombits(uint32(b.Int()))
}

// WriteDouble appends an 8-byte IEEE-754 double.
func (b *Buffer) WriteDouble(f float64) {
	b.WriteLong(Long(math.Float64bits(f)))
}

// Double consumes an 8-byte IEEE-754 double.
func (b *Buffer) Double() float64 {
	return math.Float64frombits(uint64(b.Long()))
}
