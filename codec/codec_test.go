package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/ferr"
)

func TestPackUnpackUintRoundTrip(t *testing.T) {
	cases := []struct {
		w      codec.Width
		endian codec.Endian
		value  uint64
	}{
		{codec.W1, codec.BigEndian, 0xAB},
		{codec.W2, codec.LittleEndian, 0xBEEF},
		{codec.W3, codec.BigEndian, 0x010203},
		{codec.W4, codec.LittleEndian, 0xDEADBEEF},
		{codec.W8, codec.BigEndian, 0xFFFFFFFFFFFFFFFF},
	}

	for _, c := range cases {
		b, err := codec.PackUint(c.value, c.w, c.endian, "field")
		require.NoError(t, err)
		require.Len(t, b, int(c.w))

		v, n, err := codec.UnpackUint(b, c.w, c.endian, "field")
		require.NoError(t, err)
		assert.Equal(t, int(c.w), n)
		assert.Equal(t, c.value, v)
	}
}

func TestPackUintRangeError(t *testing.T) {
	_, err := codec.PackUint(256, codec.W1, codec.BigEndian, "field")
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.RangeError, fe.Kind())
}

func TestUnpackUintShortBuffer(t *testing.T) {
	_, _, err := codec.UnpackUint([]byte{0x01}, codec.W4, codec.BigEndian, "field")
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.ShortBuffer, fe.Kind())
}

func TestPackUnpackIntSignExtension(t *testing.T) {
	b, err := codec.PackInt(-1, codec.W2, codec.BigEndian, "field")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff}, b)

	v, n, err := codec.UnpackInt(b, codec.W2, codec.BigEndian, "field")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(-1), v)
}

func TestPackUnpackFloat(t *testing.T) {
	b, err := codec.PackFloat32(3.5, codec.BigEndian, "f")
	require.NoError(t, err)
	v, n, err := codec.UnpackFloat32(b, codec.BigEndian, "f")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, float32(3.5), v)

	b64, err := codec.PackFloat64(-2.25, codec.LittleEndian, "f")
	require.NoError(t, err)
	v64, n64, err := codec.UnpackFloat64(b64, codec.LittleEndian, "f")
	require.NoError(t, err)
	assert.Equal(t, 8, n64)
	assert.Equal(t, -2.25, v64)
}

func TestMagicMatchAndMismatch(t *testing.T) {
	magic := []byte("FW01")
	b := codec.PackMagic(magic)
	n, err := codec.UnpackMagic(b, magic, "magic", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = codec.UnpackMagic([]byte("FW02"), magic, "magic", 0)
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.MagicMismatch, fe.Kind())
}

func TestPackUnpackBytes(t *testing.T) {
	b, err := codec.PackBytes([]byte{1, 2, 3}, 3, "blob")
	require.NoError(t, err)

	out, n, err := codec.UnpackBytes(b, 3, "blob")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, out)

	_, err = codec.PackBytes([]byte{1, 2}, 3, "blob")
	require.Error(t, err)
}
