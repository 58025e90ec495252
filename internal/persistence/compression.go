package persistence

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionAlgorithm identifies which Compressor a persisted record was
// written with, so Store implementations can record it alongside the blob
// and later pick the matching decompressor without guessing (spec.md §4.8).
type CompressionAlgorithm uint8

const (
	// CompressionNone stores the encoded blob as-is.
	CompressionNone CompressionAlgorithm = iota
	// CompressionZstd compresses the encoded blob with zstd.
	CompressionZstd
)

func (a CompressionAlgorithm) String() string {
	switch a {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Compressor wraps a Codec-produced blob for storage and reverses the wrap
// on load.
type Compressor interface {
	Algorithm() CompressionAlgorithm
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// noneCompressor is the identity Compressor, used when an entity opts out
// of compression entirely.
type noneCompressor struct{}

// NoneCompressor returns a Compressor that passes blobs through unchanged.
func NoneCompressor() Compressor { return noneCompressor{} }

func (noneCompressor) Algorithm() CompressionAlgorithm        { return CompressionNone }
func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// zstdCompressor compresses persisted blobs with zstd, the compression
// library this runtime's dependency pack carries. Each Compress or
// Decompress call creates and closes its own encoder or decoder, so the
// compressor holds no shared state between calls.
type zstdCompressor struct {
	level zstd.EncoderLevel
}

// NewZstdCompressor returns a Compressor backed by zstd at the given
// encoder level (zstd.SpeedDefault is a reasonable choice for most
// entities; zstd.SpeedBestCompression trades CPU for smaller snapshots).
func NewZstdCompressor(level zstd.EncoderLevel) Compressor {
	return &zstdCompressor{level: level}
}

func (z *zstdCompressor) Algorithm() CompressionAlgorithm { return CompressionZstd }

func (z *zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(z.level))
	if err != nil {
		return nil, fmt.Errorf("persistence: new zstd encoder: %w", err)
	}
	defer enc.Close()

	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (z *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("persistence: new zstd decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("persistence: zstd decode: %w", err)
	}

	return out, nil
}

// compressorFor resolves the Compressor matching alg, for use on the load
// path where a record's algorithm is read back from the store rather than
// chosen by the caller.
func compressorFor(alg CompressionAlgorithm, preferred Compressor) (Compressor, error) {
	if preferred != nil && preferred.Algorithm() == alg {
		return preferred, nil
	}

	switch alg {
	case CompressionNone:
		return NoneCompressor(), nil
	case CompressionZstd:
		return NewZstdCompressor(zstd.SpeedDefault), nil
	default:
		return nil, fmt.Errorf("persistence: unknown compression algorithm %d", alg)
	}
}
