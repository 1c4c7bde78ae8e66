// Package compress provides the two frame-body compressors named in the
// protocol spec: LZ4 and Snappy. Keeping them behind frame.Compressor
// means the codec package itself never imports a third-party compression
// library directly.
package compress

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/scylladb/cql-native-driver/frame"
)

// LZ4 compresses frame bodies with the block format used by the native
// protocol: a 4-byte big-endian uncompressed-length prefix followed by the
// LZ4 block.
type LZ4 struct{}

var _ frame.Compressor = LZ4{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Compress(dst, src []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(src))
	out := make([]byte, 4+bound)
	out[0] = byte(len(src) >> 24)
	out[1] = byte(len(src) >> 16)
	out[2] = byte(len(src) >> 8)
	out[3] = byte(len(src))

	var c lz4.Compressor
	n, err := c.CompressBlock(src, out[4:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 && len(src) > 0 {
		return nil, fmt.Errorf("lz4 compress: incompressible block (requires raw fallback, unsupported)")
	}
	return out[:4+n], nil
}

func (LZ4) Decompress(dst, src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("lz4 decompress: body too short for length prefix")
	}
	n := int(src[0])<<24 | int(src[1])<<16 | int(src[2])<<8 | int(src[3])
	out := make([]byte, n)
	written, err := lz4.UncompressBlock(src[4:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return out[:written], nil
}

// Snappy compresses frame bodies with the raw Snappy block format.
type Snappy struct{}

var _ frame.Compressor = Snappy{}

func (Snappy) Name() string { return "snappy" }

func (Snappy) Compress(dst, src []byte) ([]byte, error) {
	return snappy.Encode(dst, src), nil
}

func (Snappy) Decompress(dst, src []byte) ([]byte, error) {
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	return out, nil
}

// ByName resolves a STARTUP COMPRESSION option value to a Compressor. It
// returns nil, false for unsupported names so callers can fall back to no
// compression rather than failing the connection outright.
func ByName(name string) (frame.Compressor, bool) {
	switch name {
	case "lz4":
		return LZ4{}, true
	case "snappy":
		return Snappy{}, true
	default:
		return nil, false
	}
}
