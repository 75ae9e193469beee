/*
Copyright 2021 Hewlett Packard Enterprise Development LP

Permission is hereby granted, free of charge, to any person obtaining a
copy of this software and associated documentation files (the "Software"),
to deal in the Software without restriction, including without limitation
the rights to use, copy, modify, merge, publish, distribute, sublicense,
and/or sell copies of the Software, and to permit persons to whom the
Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.

IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM,
DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR
OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE
USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

// Package codec implements the Primitive Codec: fixed-width integer
// (signed/unsigned, 8 through 64 bits in byte-sized steps), float32/64,
// opaque fixed-byte-block, and magic-constant encode/decode.
//
// The odd-width (24/40/48/56 bit) loops are grounded on structex's
// encoder.write/decoder.read byte-at-a-time shift-and-mask loop, here
// generalized from the teacher's implicit bit-carry stream to explicit
// fixed-width big/little-endian primitives addressed by byte count
// rather than arbitrary bit count.
package codec

import (
	"math"

	"github.com/hpe-forks/framewire/ferr"
)

// Endian selects byte order for multi-byte primitives.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

// Width is a supported integer width, expressed in bytes.
type Width int

const (
	W1 Width = 1
	W2 Width = 2
	W3 Width = 3
	W4 Width = 4
	W5 Width = 5
	W6 Width = 6
	W7 Width = 7
	W8 Width = 8
)

func (w Width) bits() uint {
	return uint(w) * 8
}

// unsignedMax returns the largest value representable in w bytes.
func (w Width) unsignedMax() uint64 {
	if w.bits() == 64 {
		return math.MaxUint64
	}
	return (uint64(1) << w.bits()) - 1
}

// PackUint encodes value into a w-byte slice in the given byte order.
// RangeError is raised, naming path, if value does not fit in w bytes.
func PackUint(value uint64, w Width, endian Endian, path string) ([]byte, error) {
	if value > w.unsignedMax() {
		return nil, ferr.New(ferr.RangeError, path, 0,
			"value %d exceeds %d-byte unsigned range", value, int(w))
	}

	out := make([]byte, int(w))
	for i := 0; i < int(w); i++ {
		b := byte(value >> (8 * i))
		if endian == BigEndian {
			out[int(w)-1-i] = b
		} else {
			out[i] = b
		}
	}
	return out, nil
}

// UnpackUint decodes a w-byte unsigned integer from buf in the given
// byte order, returning the value and bytes consumed. ShortBuffer is
// raised if fewer than w bytes are available.
func UnpackUint(buf []byte, w Width, endian Endian, path string) (uint64, int, error) {
	if len(buf) < int(w) {
		return 0, 0, ferr.New(ferr.ShortBuffer, path, 0,
			"need %d bytes, have %d", int(w), len(buf))
	}

	var value uint64
	for i := 0; i < int(w); i++ {
		var b byte
		if endian == BigEndian {
			b = buf[int(w)-1-i]
		} else {
			b = buf[i]
		}
		value |= uint64(b) << (8 * i)
	}
	return value, int(w), nil
}

// PackInt encodes a signed value into w bytes, two's complement.
func PackInt(value int64, w Width, endian Endian, path string) ([]byte, error) {
	signedMax := int64(w.unsignedMax() >> 1)
	signedMin := -signedMax - 1
	if value > signedMax || value < signedMin {
		return nil, ferr.New(ferr.RangeError, path, 0,
			"value %d exceeds %d-byte signed range", value, int(w))
	}

	mask := w.unsignedMax()
	return PackUint(uint64(value)&mask, w, endian, path)
}

// UnpackInt decodes a w-byte signed integer with sign extension applied.
func UnpackInt(buf []byte, w Width, endian Endian, path string) (int64, int, error) {
	raw, n, err := UnpackUint(buf, w, endian, path)
	if err != nil {
		return 0, 0, err
	}

	if w.bits() == 64 {
		return int64(raw), n, nil
	}

	signBit := uint64(1) << (w.bits() - 1)
	if raw&signBit != 0 {
		raw |= ^w.unsignedMax()
	}
	return int64(raw), n, nil
}

// PackFloat32 encodes an IEEE-754 single-precision float.
func PackFloat32(value float32, endian Endian, path string) ([]byte, error) {
	return PackUint(uint64(math.Float32bits(value)), W4, endian, path)
}

// UnpackFloat32 decodes an IEEE-754 single-precision float.
func UnpackFloat32(buf []byte, endian Endian, path string) (float32, int, error) {
	bits, n, err := UnpackUint(buf, W4, endian, path)
	if err != nil {
		return 0, 0, err
	}
	return math.Float32frombits(uint32(bits)), n, nil
}

// PackFloat64 encodes an IEEE-754 double-precision float.
func PackFloat64(value float64, endian Endian, path string) ([]byte, error) {
	return PackUint(math.Float64bits(value), W8, endian, path)
}

// UnpackFloat64 decodes an IEEE-754 double-precision float.
func UnpackFloat64(buf []byte, endian Endian, path string) (float64, int, error) {
	bits, n, err := UnpackUint(buf, W8, endian, path)
	if err != nil {
		return 0, 0, err
	}
	return math.Float64frombits(bits), n, nil
}

// PackBytes validates and returns a copy of an opaque fixed-length byte
// block.
func PackBytes(value []byte, n int, path string) ([]byte, error) {
	if len(value) != n {
		return nil, ferr.New(ferr.RangeError, path, 0,
			"fixed byte block expects %d bytes, got %d", n, len(value))
	}
	out := make([]byte, n)
	copy(out, value)
	return out, nil
}

// UnpackBytes consumes exactly n bytes from buf.
func UnpackBytes(buf []byte, n int, path string) ([]byte, int, error) {
	if len(buf) < n {
		return nil, 0, ferr.New(ferr.ShortBuffer, path, 0,
			"need %d bytes, have %d", n, len(buf))
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, n, nil
}

// PackMagic emits the magic constant's bytes verbatim.
func PackMagic(magic []byte) []byte {
	out := make([]byte, len(magic))
	copy(out, magic)
	return out
}

// UnpackMagic asserts buf begins with magic, else MagicMismatch.
func UnpackMagic(buf []byte, magic []byte, path string, offset int64) (int, error) {
	if len(buf) < len(magic) {
		return 0, ferr.New(ferr.ShortBuffer, path, offset,
			"need %d bytes for magic, have %d", len(magic), len(buf))
	}
	for i, want := range magic {
		if buf[i] != want {
			return 0, ferr.New(ferr.MagicMismatch, path, offset,
				"expected %x, got %x", magic, buf[:len(magic)])
		}
	}
	return len(magic), nil
}
