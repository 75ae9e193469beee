package unpack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/ferr"
	"github.com/hpe-forks/framewire/frame"
	"github.com/hpe-forks/framewire/pack"
	"github.com/hpe-forks/framewire/schema"
	"github.com/hpe-forks/framewire/unpack"
)

func echoStructure(t *testing.T) *schema.Structure {
	t.Helper()
	s, err := schema.New("echo").
		LengthField("len", codec.W2, codec.BigEndian, "body").
		Payload("body", "len").
		Build()
	require.NoError(t, err)
	return s
}

func TestUnpackRejectsTrailingBytes(t *testing.T) {
	s := echoStructure(t)
	fr := frame.New()
	fr.SetBytes("body", []byte("hi"))
	b, err := pack.Pack(s, fr)
	require.NoError(t, err)

	_, err = unpack.Unpack(s, append(b, 0xff))
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.LengthInconsistency, fe.Kind())
}

func TestUnpackShortBufferForDeclaredLength(t *testing.T) {
	s := echoStructure(t)
	// len=10 but only 2 payload bytes follow.
	buf := []byte{0x00, 0x0a, 'h', 'i'}
	_, err := unpack.Unpack(s, buf)
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.ShortBuffer, fe.Kind())
}

func TestUnpackPartialLeavesTrailingBytesForNextFrame(t *testing.T) {
	s := echoStructure(t)
	fr := frame.New()
	fr.SetBytes("body", []byte("ab"))
	one, err := pack.Pack(s, fr)
	require.NoError(t, err)

	stream := append(append([]byte{}, one...), one...)
	out, n, err := unpack.UnpackPartial(s, stream)
	require.NoError(t, err)
	assert.Equal(t, len(one), n)
	body, _ := out.GetBytes("body")
	assert.Equal(t, []byte("ab"), body)

	out2, n2, err := unpack.UnpackPartial(s, stream[n:])
	require.NoError(t, err)
	assert.Equal(t, len(one), n2)
	body2, _ := out2.GetBytes("body")
	assert.Equal(t, []byte("ab"), body2)
}

func TestUnpackFieldArrayByteSizedElementsMustDivideEvenly(t *testing.T) {
	elem, err := schema.New("elem").Uint("v", codec.W2, codec.BigEndian).Build()
	require.NoError(t, err)

	s, err := schema.New("arr").
		LengthField("len", codec.W1, codec.BigEndian, "items").
		FieldArray("items", elem, schema.SizedByBytes("len")).
		Build()
	require.NoError(t, err)

	// len=3 bytes declared, but elements are 2 bytes wide: 3 does not divide evenly.
	buf := []byte{0x03, 0x00, 0x01, 0x02}
	_, err = unpack.Unpack(s, buf)
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.ArrayElementUnderflow, fe.Kind())
}
