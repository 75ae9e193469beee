package bitrecord_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpe-forks/framewire/bitrecord"
	"github.com/hpe-forks/framewire/ferr"
)

func flagsSpec() *bitrecord.Spec {
	return &bitrecord.Spec{
		Name:      "flags",
		WidthBits: 8,
		Fields: []bitrecord.SubField{
			{Name: "urgent", Bool: true},
			{Name: "retry", Bool: true},
			{Name: "priority", Bits: 3},
			{Name: "reserved", Bits: 3},
		},
	}
}

func TestValidateAcceptsExactWidthSum(t *testing.T) {
	require.NoError(t, flagsSpec().Validate())
}

func TestValidateRejectsBadWidthSum(t *testing.T) {
	s := &bitrecord.Spec{Name: "bad", WidthBits: 8, Fields: []bitrecord.SubField{{Name: "a", Bits: 3}}}
	err := s.Validate()
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.DeclarationError, fe.Kind())
}

func TestValidateRejectsUnsupportedWidth(t *testing.T) {
	s := &bitrecord.Spec{Name: "bad", WidthBits: 12, Fields: []bitrecord.SubField{{Name: "a", Bits: 12}}}
	require.Error(t, s.Validate())
}

func TestValidateRejectsDuplicateName(t *testing.T) {
	s := &bitrecord.Spec{Name: "bad", WidthBits: 8, Fields: []bitrecord.SubField{
		{Name: "a", Bits: 4}, {Name: "a", Bits: 4},
	}}
	require.Error(t, s.Validate())
}

func TestPackUnpackRoundTrip(t *testing.T) {
	s := flagsSpec()
	require.NoError(t, s.Validate())

	values := bitrecord.Values{"urgent": 1, "retry": 0, "priority": 5, "reserved": 0}
	b, err := s.Pack(values)
	require.NoError(t, err)
	require.Len(t, b, 1)

	decoded, n, err := s.Unpack(b)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, values, decoded)
}

func TestPackRejectsOutOfRangeSubField(t *testing.T) {
	s := flagsSpec()
	_, err := s.Pack(bitrecord.Values{"urgent": 1, "retry": 0, "priority": 8, "reserved": 0})
	require.Error(t, err)
	fe, ok := err.(*ferr.Error)
	require.True(t, ok)
	assert.Equal(t, ferr.RangeError, fe.Kind())
}

func TestPackRejectsUnsetSubField(t *testing.T) {
	s := flagsSpec()
	_, err := s.Pack(bitrecord.Values{"urgent": 1})
	require.Error(t, err)
}

func TestUnpackShortBuffer(t *testing.T) {
	s := flagsSpec()
	_, _, err := s.Unpack(nil)
	require.Error(t, err)
}

func TestByName(t *testing.T) {
	s := flagsSpec()
	f, ok := s.ByName("priority")
	require.True(t, ok)
	assert.EqualValues(t, 3, f.Bits)

	_, ok = s.ByName("missing")
	assert.False(t, ok)
}
