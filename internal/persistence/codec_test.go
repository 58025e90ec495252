package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type widgetV1 struct {
	Name  string
	Count int
}

type gadgetV1 struct {
	Serial string
}

func newTestCodec() *GobCodec {
	c := NewGobCodec()
	c.RegisterType("widgetV1", widgetV1{})
	c.RegisterType("gadgetV1", gadgetV1{})

	return c
}

func TestGobCodecRoundTrip(t *testing.T) {
	c := newTestCodec()

	want := widgetV1{Name: "sprocket", Count: 7}

	encoded, err := c.Encode(want)
	require.NoError(t, err)

	decoded, err := c.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, want, decoded)
}

func TestGobCodecPeekTypeWithoutDecoding(t *testing.T) {
	c := newTestCodec()

	encoded, err := c.Encode(gadgetV1{Serial: "abc-123"})
	require.NoError(t, err)

	name, err := c.PeekTypeName(encoded)
	require.NoError(t, err)
	require.Equal(t, "gadgetV1", name)

	code, err := c.PeekTypeCode(encoded)
	require.NoError(t, err)
	require.NotZero(t, code)
}

func TestGobCodecDistinctTypesGetDistinctCodes(t *testing.T) {
	c := newTestCodec()

	widgetEnc, err := c.Encode(widgetV1{Name: "a", Count: 1})
	require.NoError(t, err)

	gadgetEnc, err := c.Encode(gadgetV1{Serial: "b"})
	require.NoError(t, err)

	widgetCode, err := c.PeekTypeCode(widgetEnc)
	require.NoError(t, err)

	gadgetCode, err := c.PeekTypeCode(gadgetEnc)
	require.NoError(t, err)

	require.NotEqual(t, widgetCode, gadgetCode)
}

func TestGobCodecUnregisteredTypeRejected(t *testing.T) {
	c := newTestCodec()

	type unregistered struct{ X int }

	_, err := c.Encode(unregistered{X: 1})
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestGobCodecShortFrameRejected(t *testing.T) {
	c := newTestCodec()

	_, err := c.Decode([]byte{0x01})
	require.ErrorIs(t, err, ErrShortFrame)

	_, err = c.PeekTypeCode([]byte{0x01})
	require.ErrorIs(t, err, ErrShortFrame)
}
