package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quilkin-proxy/quilkin/internal/filters"
)

func TestCompressReadThenWriteRoundTrips(t *testing.T) {
	c, err := New(Config{Mode: ModeCompress})
	require.NoError(t, err)

	original := []byte("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly, repeatedly")

	rctx := &filters.ReadContext{Payload: append([]byte{}, original...)}
	require.NoError(t, c.Read(rctx))
	assert.NotEqual(t, original, rctx.Payload)

	wctx := &filters.WriteContext{Payload: rctx.Payload}
	require.NoError(t, c.Write(wctx))
	assert.Equal(t, original, wctx.Payload)
}

func TestCompressDecompressModeReversed(t *testing.T) {
	compressor, err := New(Config{Mode: ModeCompress})
	require.NoError(t, err)
	decompressor, err := New(Config{Mode: ModeDecompress})
	require.NoError(t, err)

	original := []byte("payload payload payload")

	compressed, err := compress(original)
	require.NoError(t, err)

	// A Decompress-mode instance decompresses on Read.
	rctx := &filters.ReadContext{Payload: compressed}
	require.NoError(t, decompressor.Read(rctx))
	assert.Equal(t, original, rctx.Payload)

	// ...and compresses on Write, the opposite of its Read.
	wctx := &filters.WriteContext{Payload: original}
	require.NoError(t, decompressor.Write(wctx))
	assert.NotEqual(t, original, wctx.Payload)

	// Sanity: the two instances are mirror images of one another.
	_ = compressor
}

func TestCompressDefaultsToCompressMode(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, ModeCompress, c.mode)
}

func TestCompressRejectsUnknownMode(t *testing.T) {
	_, err := New(Config{Mode: "Sideways"})
	require.Error(t, err)
}

func TestCompressOnMalformedInputIsCustomError(t *testing.T) {
	c, err := New(Config{Mode: ModeDecompress})
	require.NoError(t, err)

	ctx := &filters.ReadContext{Payload: []byte("not a deflate stream")}
	err = c.Read(ctx)
	require.Error(t, err)
	kind, ok := filters.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, filters.Custom, kind)
}
