package frame

// Compressor (de)compresses frame bodies. The two supported here are LZ4 and
// Snappy; implementations live in internal/compress to keep the third-party
// codec libraries (pierrec/lz4, golang/snappy) out of this package's import
// graph, keeping frame encoding separate from the wire compression it
// optionally layers over it.
type Compressor interface {
	// Name is the STARTUP COMPRESSION option value, e.g. "lz4" or "snappy".
	Name() string
	Compress(dst, src []byte) ([]byte, error)
	Decompress(dst, src []byte) ([]byte, error)
}
