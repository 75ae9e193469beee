package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/ferr"
	"github.com/hpe-forks/framewire/frame"
	"github.com/hpe-forks/framewire/schema"
)

func TestBuildSimpleStructure(t *testing.T) {
	s, err := schema.New("point").
		Uint("x", codec.W2, codec.BigEndian).
		Uint("y", codec.W2, codec.BigEndian).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "point", s.Name)

	idx, ok := s.IndexOf("y")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestDuplicateSlotNameRejected(t *testing.T) {
	_, err := schema.New("dup").
		Uint("x", codec.W2, codec.BigEndian).
		Uint("x", codec.W2, codec.BigEndian).
		Build()
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.DeclarationError, fe.Kind())
}

func TestAtMostOneGreedySlot(t *testing.T) {
	_, err := schema.New("two-greedy").
		GreedyPayload("a").
		GreedyPayload("b").
		Build()
	require.Error(t, err)
}

func TestGreedySlotMustBeFollowedByFixedWidthOnly(t *testing.T) {
	_, err := schema.New("greedy-then-variable").
		GreedyPayload("a").
		Payload("b", "missing-provider").
		Build()
	require.Error(t, err)
}

func TestProviderMustPrecedeConsumer(t *testing.T) {
	_, err := schema.New("backwards").
		Payload("body", "len").
		LengthField("len", codec.W2, codec.BigEndian, "body").
		Build()
	require.Error(t, err)
}

func TestProviderConsumerMustBeUnique(t *testing.T) {
	_, err := schema.New("two-providers").
		LengthField("len1", codec.W2, codec.BigEndian, "body").
		LengthField("len2", codec.W2, codec.BigEndian, "body").
		Payload("body", "len1").
		Build()
	require.Error(t, err)
}

func TestDispatchTargetMayHaveBothLengthAndDispatchProviders(t *testing.T) {
	ping, err := schema.New("ping").Uint("seq", codec.W4, codec.BigEndian).Build()
	require.NoError(t, err)

	_, err = schema.New("envelope").
		LengthField("frame_len", codec.W2, codec.BigEndian, "body").
		DispatchField("kind", codec.W1, codec.BigEndian, "body").
		DispatchTarget("body", "kind", "frame_len", map[uint64]*schema.Structure{1: ping}).
		Build()
	require.NoError(t, err)
}

func TestConditionForwardReferenceRejected(t *testing.T) {
	_, err := schema.New("forward-cond").
		Uint("flag", codec.W1, codec.BigEndian).
		If(func(*frame.Frame) bool { return true }, "later").
		Uint("later", codec.W1, codec.BigEndian).
		Build()
	require.Error(t, err)
}

func TestConditionValidDependency(t *testing.T) {
	s, err := schema.New("cond").
		Uint("flag", codec.W1, codec.BigEndian).
		Uint("extra", codec.W1, codec.BigEndian).
		If(func(fr *frame.Frame) bool {
			v, _ := fr.GetUint64("flag")
			return v != 0
		}, "flag").
		Build()
	require.NoError(t, err)
	assert.Equal(t, 2, len(s.Slots))
}

func TestBitRecordWidthMismatchRejected(t *testing.T) {
	_, err := schema.New("bad-bits").
		BitRecord("flags", 8, nil).
		Build()
	require.Error(t, err)
}

func TestFixedSuffixAfterGreedyComputed(t *testing.T) {
	s, err := schema.New("trailer").
		GreedyPayload("body").
		Uint("checksum", codec.W2, codec.BigEndian).
		Build()
	require.NoError(t, err)

	idx, ok := s.HasGreedy()
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 2, s.FixedSuffixAfterGreedy())
}
