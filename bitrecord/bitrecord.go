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

// Package bitrecord implements the Bit Record field kind: a fixed-width
// bit container holding an ordered list of named unsigned/boolean
// sub-fields, packed MSB-first into a big-endian integer of the
// declared container width and serialized as width/8 bytes.
//
// Grounded on structex's encoder.write/decoder.read bit-offset and
// currentByte carry state machine (encoder.go, decoder.go), generalized
// from the teacher's "one bitfield wherever it falls in the byte
// stream" model to a declared, self-contained, fixed-width container
// (original spec §4.2).
package bitrecord

import (
	"github.com/hpe-forks/framewire/ferr"
)

// SubField describes one named bit-slice within a Record.
type SubField struct {
	Name string
	Bits uint // 1 for Bool
	Bool bool
}

// Spec declares a bit record's container width (bits, one of
// 8/16/24/32/40/48/56/64) and its ordered sub-fields.
type Spec struct {
	Name      string
	WidthBits uint
	Fields    []SubField
}

var validWidths = map[uint]bool{8: true, 16: true, 24: true, 32: true, 40: true, 48: true, 56: true, 64: true}

// Validate checks invariant I4: the declared sub-field widths sum to
// the container width, and the container width is one of the
// supported sizes.
func (s *Spec) Validate() error {
	if !validWidths[s.WidthBits] {
		return ferr.New(ferr.DeclarationError, s.Name, 0,
			"bit record width %d is not one of 8/16/24/32/40/48/56/64", s.WidthBits)
	}

	var sum uint
	seen := map[string]bool{}
	for _, f := range s.Fields {
		if seen[f.Name] {
			return ferr.New(ferr.DeclarationError, s.Name, 0,
				"duplicate bit sub-field name %q", f.Name)
		}
		seen[f.Name] = true

		bits := f.Bits
		if f.Bool {
			bits = 1
		}
		if bits == 0 {
			return ferr.New(ferr.DeclarationError, s.Name, 0,
				"bit sub-field %q has zero width", f.Name)
		}
		sum += bits
	}

	if sum != s.WidthBits {
		return ferr.New(ferr.DeclarationError, s.Name, 0,
			"bit sub-field widths sum to %d, container declares %d", sum, s.WidthBits)
	}

	return nil
}

// ByName returns the sub-field descriptor with the given name, if any.
func (s *Spec) ByName(name string) (SubField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return SubField{}, false
}

// Values holds the runtime unsigned-integer value of each named
// sub-field (booleans stored as 0/1).
type Values map[string]uint64

// Pack composes the sub-field values into WidthBits/8 big-endian bytes,
// MSB-first in declared order.
func (s *Spec) Pack(values Values) ([]byte, error) {
	var composed uint64
	var shift = s.WidthBits

	for _, f := range s.Fields {
		bits := f.Bits
		if f.Bool {
			bits = 1
		}
		shift -= bits

		v, ok := values[f.Name]
		if !ok {
			return nil, ferr.New(ferr.UnsetField, s.Name+"."+f.Name, 0,
				"bit sub-field not set")
		}

		max := uint64(1)<<bits - 1
		if v > max {
			return nil, ferr.New(ferr.RangeError, s.Name+"."+f.Name, 0,
				"value %d exceeds %d-bit range", v, bits)
		}

		composed |= (v & max) << shift
	}

	nbytes := int(s.WidthBits / 8)
	out := make([]byte, nbytes)
	for i := 0; i < nbytes; i++ {
		out[i] = byte(composed >> uint(8*(nbytes-1-i)))
	}
	return out, nil
}

// Unpack decomposes WidthBits/8 big-endian bytes into named sub-field
// values.
func (s *Spec) Unpack(buf []byte) (Values, int, error) {
	nbytes := int(s.WidthBits / 8)
	if len(buf) < nbytes {
		return nil, 0, ferr.New(ferr.ShortBuffer, s.Name, 0,
			"need %d bytes, have %d", nbytes, len(buf))
	}

	var composed uint64
	for i := 0; i < nbytes; i++ {
		composed = composed<<8 | uint64(buf[i])
	}

	values := make(Values, len(s.Fields))
	shift := s.WidthBits
	for _, f := range s.Fields {
		bits := f.Bits
		if f.Bool {
			bits = 1
		}
		shift -= bits

		mask := uint64(1)<<bits - 1
		values[f.Name] = (composed >> shift) & mask
	}

	return values, nbytes, nil
}
