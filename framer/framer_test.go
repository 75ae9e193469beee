package framer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/frame"
	"github.com/hpe-forks/framewire/framer"
	"github.com/hpe-forks/framewire/pack"
	"github.com/hpe-forks/framewire/schema"
)

const (
	msgPing uint64 = 1
	msgData uint64 = 2
)

func testProtocol(t *testing.T) *schema.Structure {
	t.Helper()

	ping, err := schema.New("ping").Uint("sequence", codec.W4, codec.BigEndian).Build()
	require.NoError(t, err)

	data, err := schema.New("data").GreedyPayload("payload").Build()
	require.NoError(t, err)

	envelope, err := schema.New("envelope").
		Magic("magic", []byte("FW01")).
		LengthField("frame_len", codec.W2, codec.BigEndian, "body").
		DispatchField("kind", codec.W1, codec.BigEndian, "body").
		DispatchTarget("body", "kind", "frame_len", map[uint64]*schema.Structure{
			msgPing: ping,
			msgData: data,
		}).
		Build()
	require.NoError(t, err)
	return envelope
}

func packPing(t *testing.T, envelope *schema.Structure, seq uint64) []byte {
	t.Helper()
	fr := frame.New()
	fr.SetBytes("magic", []byte("FW01"))
	fr.SetUint64("kind", msgPing)
	body := frame.New()
	body.SetUint64("sequence", seq)
	fr.SetFrame("body", body)
	b, err := pack.Pack(envelope, fr)
	require.NoError(t, err)
	return b
}

func packData(t *testing.T, envelope *schema.Structure, payload string) []byte {
	t.Helper()
	fr := frame.New()
	fr.SetBytes("magic", []byte("FW01"))
	fr.SetUint64("kind", msgData)
	body := frame.New()
	body.SetBytes("payload", []byte(payload))
	fr.SetFrame("body", body)
	b, err := pack.Pack(envelope, fr)
	require.NoError(t, err)
	return b
}

func TestFramerRejectsGreedyStructure(t *testing.T) {
	s, err := schema.New("greedy").GreedyPayload("body").Build()
	require.NoError(t, err)

	_, err = framer.New(s, func(*frame.Frame) {})
	require.Error(t, err)
}

func TestFramerDeliversSingleFrame(t *testing.T) {
	envelope := testProtocol(t)
	wire := packPing(t, envelope, 42)

	var got []*frame.Frame
	f, err := framer.New(envelope, func(fr *frame.Frame) { got = append(got, fr) })
	require.NoError(t, err)

	require.NoError(t, f.Feed(wire))
	require.Len(t, got, 1)
	seq, ok := got[0].GetFrame("body")
	require.True(t, ok)
	v, _ := seq.GetUint64("sequence")
	assert.EqualValues(t, 42, v)
}

func TestFramerIsChunkIndependent(t *testing.T) {
	envelope := testProtocol(t)
	wire := append(packPing(t, envelope, 1), packData(t, envelope, "hi")...)

	for chunkSize := 1; chunkSize <= len(wire); chunkSize++ {
		var kinds []uint64
		f, err := framer.New(envelope, func(fr *frame.Frame) {
			k, _ := fr.GetUint64("kind")
			kinds = append(kinds, k)
		})
		require.NoError(t, err)

		for off := 0; off < len(wire); off += chunkSize {
			end := off + chunkSize
			if end > len(wire) {
				end = len(wire)
			}
			require.NoError(t, f.Feed(wire[off:end]))
		}

		assert.Equal(t, []uint64{msgPing, msgData}, kinds, "chunk size %d", chunkSize)
	}
}

func TestFramerResyncsPastNoise(t *testing.T) {
	envelope := testProtocol(t)
	wire := append([]byte{0xff, 0xff, 0xff}, packPing(t, envelope, 7)...)

	var errs []error
	var got []*frame.Frame
	f, err := framer.New(envelope, func(fr *frame.Frame) { got = append(got, fr) },
		framer.WithErrorHandler(func(e error) { errs = append(errs, e) }))
	require.NoError(t, err)

	require.NoError(t, f.Feed(wire))
	require.Len(t, got, 1)
	assert.NotEmpty(t, errs)
}

func TestFramerHandlesDispatchTargetWithoutLengthProvider(t *testing.T) {
	ping, err := schema.New("ping").Uint("sequence", codec.W4, codec.BigEndian).Build()
	require.NoError(t, err)

	ack, err := schema.New("ack").Uint("code", codec.W1, codec.BigEndian).Build()
	require.NoError(t, err)

	envelope, err := schema.New("envelope2").
		Magic("magic", []byte("FW02")).
		DispatchField("kind", codec.W1, codec.BigEndian, "body").
		DispatchTarget("body", "kind", "", map[uint64]*schema.Structure{
			msgPing: ping,
			msgData: ack,
		}).
		Build()
	require.NoError(t, err)

	packPingBody := func(seq uint64) []byte {
		fr := frame.New()
		fr.SetBytes("magic", []byte("FW02"))
		fr.SetUint64("kind", msgPing)
		body := frame.New()
		body.SetUint64("sequence", seq)
		fr.SetFrame("body", body)
		b, err := pack.Pack(envelope, fr)
		require.NoError(t, err)
		return b
	}
	packAckBody := func(code uint64) []byte {
		fr := frame.New()
		fr.SetBytes("magic", []byte("FW02"))
		fr.SetUint64("kind", msgData)
		body := frame.New()
		body.SetUint64("code", code)
		fr.SetFrame("body", body)
		b, err := pack.Pack(envelope, fr)
		require.NoError(t, err)
		return b
	}

	wire := append([]byte{0xff, 0xff}, packPingBody(99)...)
	wire = append(wire, packAckBody(7)...)

	var errs []error
	var kinds []uint64
	f, err := framer.New(envelope, func(fr *frame.Frame) {
		k, _ := fr.GetUint64("kind")
		kinds = append(kinds, k)
	}, framer.WithErrorHandler(func(e error) { errs = append(errs, e) }))
	require.NoError(t, err)

	require.NoError(t, f.Feed(wire))
	assert.Equal(t, []uint64{msgPing, msgData}, kinds)
	assert.NotEmpty(t, errs)
}

func TestFramerOverflowsWhenDeclaredFrameExceedsMaxBuffer(t *testing.T) {
	s, err := schema.New("env2").
		LengthField("len", codec.W2, codec.BigEndian, "body").
		Payload("body", "len").
		Build()
	require.NoError(t, err)

	f, err := framer.New(s, func(*frame.Frame) {}, framer.WithMaxBuffer(8))
	require.NoError(t, err)

	// Declares a 1000-byte body but only trickles a handful of bytes in.
	require.NoError(t, f.Feed([]byte{0x03, 0xe8}))
	require.NoError(t, f.Feed([]byte{1, 2, 3, 4}))
	err = f.Feed([]byte{5, 6, 7, 8, 9, 10})
	require.Error(t, err)
}
