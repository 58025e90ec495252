package persistence

import (
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func TestNoneCompressorRoundTrip(t *testing.T) {
	c := NoneCompressor()

	data := []byte("hello world")

	compressed, err := c.Compress(data)
	require.NoError(t, err)
	require.Equal(t, data, compressed)

	decompressed, err := c.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, data, decompressed)

	require.Equal(t, CompressionNone, c.Algorithm())
}

func TestZstdCompressorRoundTrip(t *testing.T) {
	c := NewZstdCompressor(zstd.SpeedDefault)

	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly, " +
		"the quick brown fox jumps over the lazy dog")

	compressed, err := c.Compress(data)
	require.NoError(t, err)
	require.NotEqual(t, data, compressed)

	decompressed, err := c.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, data, decompressed)

	require.Equal(t, CompressionZstd, c.Algorithm())
}

func TestCompressorForResolvesByAlgorithm(t *testing.T) {
	resolved, err := compressorFor(CompressionNone, nil)
	require.NoError(t, err)
	require.Equal(t, CompressionNone, resolved.Algorithm())

	resolved, err = compressorFor(CompressionZstd, nil)
	require.NoError(t, err)
	require.Equal(t, CompressionZstd, resolved.Algorithm())

	_, err = compressorFor(CompressionAlgorithm(99), nil)
	require.Error(t, err)
}

func TestCompressorForPrefersMatchingPreferred(t *testing.T) {
	preferred := NewZstdCompressor(zstd.SpeedBestCompression)

	resolved, err := compressorFor(CompressionZstd, preferred)
	require.NoError(t, err)
	require.Same(t, preferred, resolved)
}
