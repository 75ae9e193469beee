package pack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpe-forks/framewire/bitrecord"
	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/ferr"
	"github.com/hpe-forks/framewire/frame"
	"github.com/hpe-forks/framewire/pack"
	"github.com/hpe-forks/framewire/schema"
	"github.com/hpe-forks/framewire/unpack"
)

func TestPackLengthPrefixedPayload(t *testing.T) {
	s, err := schema.New("echo").
		LengthField("len", codec.W2, codec.BigEndian, "body").
		Payload("body", "len").
		Build()
	require.NoError(t, err)

	fr := frame.New()
	fr.SetBytes("body", []byte("hello"))

	b, err := pack.Pack(s, fr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}, b)

	out, err := unpack.Unpack(s, b)
	require.NoError(t, err)
	body, ok := out.GetBytes("body")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), body)
}

func TestPackBitRecord(t *testing.T) {
	s, err := schema.New("withflags").
		BitRecord("flags", 8, []bitrecord.SubField{
			{Name: "a", Bool: true},
			{Name: "b", Bits: 7},
		}).
		Build()
	require.NoError(t, err)

	fr := frame.New()
	fr.SetBitValues("flags", bitrecord.Values{"a": 1, "b": 42})

	b, err := pack.Pack(s, fr)
	require.NoError(t, err)
	require.Len(t, b, 1)

	out, err := unpack.Unpack(s, b)
	require.NoError(t, err)
	values, ok := out.GetBitValues("flags")
	require.True(t, ok)
	assert.EqualValues(t, 1, values["a"])
	assert.EqualValues(t, 42, values["b"])
}

func TestPackGreedyPayload(t *testing.T) {
	s, err := schema.New("greedy").
		Uint("tag", codec.W1, codec.BigEndian).
		GreedyPayload("rest").
		Build()
	require.NoError(t, err)

	fr := frame.New()
	fr.SetUint64("tag", 7)
	fr.SetBytes("rest", []byte("trailing bytes"))

	b, err := pack.Pack(s, fr)
	require.NoError(t, err)

	out, err := unpack.Unpack(s, b)
	require.NoError(t, err)
	rest, _ := out.GetBytes("rest")
	assert.Equal(t, []byte("trailing bytes"), rest)
}

func TestPackMagicMismatchOnUnpack(t *testing.T) {
	s, err := schema.New("withmagic").
		Magic("m", []byte("FW01")).
		Uint("v", codec.W1, codec.BigEndian).
		Build()
	require.NoError(t, err)

	fr := frame.New()
	fr.SetBytes("m", []byte("FW01"))
	fr.SetUint64("v", 9)
	b, err := pack.Pack(s, fr)
	require.NoError(t, err)

	b[0] = 'X'
	_, err = unpack.Unpack(s, b)
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.MagicMismatch, fe.Kind())
}

func TestPackCountedFieldArray(t *testing.T) {
	elem, err := schema.New("elem").Uint("v", codec.W1, codec.BigEndian).Build()
	require.NoError(t, err)

	s, err := schema.New("array").
		CountField("count", codec.W1, codec.BigEndian, "items").
		FieldArray("items", elem, schema.SizedByCount("count")).
		Build()
	require.NoError(t, err)

	fr := frame.New()
	e1 := frame.New()
	e1.SetUint64("v", 1)
	e2 := frame.New()
	e2.SetUint64("v", 2)
	fr.SetFrames("items", []*frame.Frame{e1, e2})

	b, err := pack.Pack(s, fr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01, 0x02}, b)

	out, err := unpack.Unpack(s, b)
	require.NoError(t, err)
	elems, ok := out.GetFrames("items")
	require.True(t, ok)
	require.Len(t, elems, 2)
	v1, _ := elems[0].GetUint64("v")
	v2, _ := elems[1].GetUint64("v")
	assert.EqualValues(t, 1, v1)
	assert.EqualValues(t, 2, v2)
}

func TestUnsetFieldErrorsOnPack(t *testing.T) {
	s, err := schema.New("needsval").Uint("v", codec.W1, codec.BigEndian).Build()
	require.NoError(t, err)

	_, err = pack.Pack(s, frame.New())
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.UnsetField, fe.Kind())
}

func TestPackNestedErrorPathIsOrderedOutermostToInnermost(t *testing.T) {
	inner, err := schema.New("inner").Uint("value", codec.W1, codec.BigEndian).Build()
	require.NoError(t, err)

	outer, err := schema.New("outer").Substructure("nested", inner, "").Build()
	require.NoError(t, err)

	fr := frame.New()
	fr.SetFrame("nested", frame.New()) // "value" left unset

	_, err = pack.Pack(outer, fr)
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.UnsetField, fe.Kind())
	assert.Equal(t, "nested.value", fe.Path())
}

func TestPackBitRecordLengthProvider(t *testing.T) {
	s, err := schema.New("bitlen").
		BitRecord("flags", 8, []bitrecord.SubField{
			{Name: "len", Bits: 8},
		}).
		BitLengthProvider("flags", "len", "body").
		Payload("body", "flags.len").
		Build()
	require.NoError(t, err)

	fr := frame.New()
	fr.SetBitValues("flags", bitrecord.Values{})
	fr.SetBytes("body", []byte("hi"))

	b, err := pack.Pack(s, fr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 'h', 'i'}, b)

	out, err := unpack.Unpack(s, b)
	require.NoError(t, err)
	body, ok := out.GetBytes("body")
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), body)
}
