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

// Package unpack implements the Unpacker (original §4.5): a single
// forward walk over a Structure's slots that maintains a cursor over a
// byte region with a known start and end, resolving provider values as
// it goes so each consumer can be sized before it is reached.
//
// Grounded on structex's decoder.go (decoder.field/layout/array/slice,
// readValue) -- generalized from the teacher's reflect-driven per-
// struct-field walk to an explicit metamodel walk that also handles
// dispatch, conditional presence and greedy tails, none of which the
// teacher's reflect tags express.
package unpack

import (
	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/ferr"
	"github.com/hpe-forks/framewire/frame"
	"github.com/hpe-forks/framewire/schema"
)

// Unpack decodes buf as a top-level frame of structure s. Every byte
// of buf must be consumed; trailing bytes are an error.
func Unpack(s *schema.Structure, buf []byte) (*frame.Frame, error) {
	fr, n, err := unpackStructure(s, buf, s.Name, 0)
	if err != nil {
		return nil, err
	}
	if n != len(buf) {
		return nil, ferr.New(ferr.LengthInconsistency, s.Name, int64(n),
			"%d trailing bytes after top-level frame", len(buf)-n)
	}
	return fr, nil
}

// UnpackPartial decodes a structure from the front of buf, returning
// the decoded frame and the number of bytes consumed; buf may contain
// additional trailing bytes belonging to a subsequent frame. (The
// stream Framer's DRAIN state instead calls Unpack on a slice of
// exactly the computed frame length.)
func UnpackPartial(s *schema.Structure, buf []byte) (*frame.Frame, int, error) {
	return unpackStructure(s, buf, s.Name, 0)
}

func unpackStructure(s *schema.Structure, buf []byte, path string, baseOffset int64) (*frame.Frame, int, error) {
	fr := frame.New()
	cursor := 0
	end := len(buf)

	providerBytes := map[string]int{}  // consumer name -> byte length, from a LengthField
	providerCount := map[string]int{}  // consumer name -> element count, from a count-mode LengthField
	dispatchKey := map[string]uint64{} // consumer (DispatchTarget) name -> decoded DispatchField value

	for _, field := range s.Slots {
		if field.Condition != nil && !field.Condition.Eval(fr) {
			continue
		}

		offset := baseOffset + int64(cursor)
		fieldPath := field.Name
		remaining := end - cursor

		switch field.Kind {
		case schema.KindPrimitive:
			n, err := unpackPrimitive(field, fr, buf[cursor:], fieldPath, offset)
			if err != nil {
				return nil, 0, err
			}
			cursor += n

		case schema.KindBitRecord:
			values, n, err := field.BitSpec.Unpack(buf[cursor:])
			if err != nil {
				return nil, 0, withOffset(err, offset)
			}
			fr.SetBitValues(field.Name, values)
			resolveBitProviderValues(s, field, values, providerBytes, providerCount)
			cursor += n

		case schema.KindPad:
			if remaining < field.FixedLen {
				return nil, 0, ferr.New(ferr.ShortBuffer, fieldPath, offset,
					"need %d pad bytes, have %d", field.FixedLen, remaining)
			}
			for i := 0; i < field.FixedLen; i++ {
				if buf[cursor+i] != 0 {
					return nil, 0, ferr.New(ferr.MagicMismatch, fieldPath, offset,
						"pad byte %d is %#x, want 0", i, buf[cursor+i])
				}
			}
			cursor += field.FixedLen

		case schema.KindFixedBytes:
			b, n, err := codec.UnpackBytes(buf[cursor:], field.FixedLen, fieldPath)
			if err != nil {
				return nil, 0, withOffset(err, offset)
			}
			fr.SetBytes(field.Name, b)
			cursor += n

		case schema.KindMagic:
			n, err := codec.UnpackMagic(buf[cursor:], field.MagicBytes, fieldPath, offset)
			if err != nil {
				return nil, 0, err
			}
			cursor += n

		case schema.KindLengthField:
			raw, n, err := codec.UnpackUint(buf[cursor:], field.Length.Width, field.Length.Endian, fieldPath)
			if err != nil {
				return nil, 0, withOffset(err, offset)
			}
			fr.SetUint64(field.Name, raw)
			logical := field.Length.Get(raw)
			if field.Length.CountMode {
				providerCount[field.Length.Consumer] = int(logical)
			} else {
				providerBytes[field.Length.Consumer] = int(logical)
			}
			cursor += n

		case schema.KindDispatchField:
			raw, n, err := codec.UnpackUint(buf[cursor:], field.DispatchField.Width, field.DispatchField.Endian, fieldPath)
			if err != nil {
				return nil, 0, withOffset(err, offset)
			}
			fr.SetUint64(field.Name, raw)
			dispatchKey[field.DispatchField.Consumer] = raw
			cursor += n

		case schema.KindPayload:
			n, greedy, err := extentFor(field.Name, field.Payload.LengthProvider == "", providerBytes, s, remaining)
			if err != nil {
				return nil, 0, withOffset(err, offset)
			}
			_ = greedy
			b, consumed, err := codec.UnpackBytes(buf[cursor:cursor+n], n, fieldPath)
			if err != nil {
				return nil, 0, withOffset(err, offset)
			}
			fr.SetBytes(field.Name, b)
			cursor += consumed

		case schema.KindSubstructure:
			n, _, err := extentFor(field.Name, field.Substructure.LengthProvider == "", providerBytes, s, remaining)
			if err != nil {
				return nil, 0, withOffset(err, offset)
			}
			nested, consumed, err := unpackStructure(field.Substructure.Struct, buf[cursor:cursor+n], fieldPath, offset)
			if err != nil {
				return nil, 0, ferr.Augment(err, field.Name)
			}
			if field.Substructure.LengthProvider != "" && consumed != n {
				return nil, 0, ferr.New(ferr.LengthInconsistency, fieldPath, offset,
					"declared %d bytes, substructure consumed %d", n, consumed)
			}
			fr.SetFrame(field.Name, nested)
			cursor += n

		case schema.KindDispatchTarget:
			key := dispatchKey[field.Name]
			target, ok := field.DispatchTarget.Mapping[key]
			if !ok {
				if field.DispatchTarget.HasDefault {
					target = field.DispatchTarget.Default
				} else {
					return nil, 0, ferr.New(ferr.UnknownDispatch, fieldPath, offset,
						"no structure mapped for dispatch key %d", key)
				}
			}
			var n int
			if field.DispatchTarget.LengthProvider != "" {
				var err error
				n, _, err = extentFor(field.Name, false, providerBytes, s, remaining)
				if err != nil {
					return nil, 0, withOffset(err, offset)
				}
			} else {
				// No byte-length provider: this DispatchTarget was only
				// admitted as Bounded (schema.ExtentHint) because every
				// structure it can select is fixed-size, so its width is
				// resolvable from the already-decoded dispatch key alone.
				var ok bool
				n, ok = target.FixedSize()
				if !ok {
					return nil, 0, ferr.New(ferr.DeclarationError, fieldPath, offset,
						"dispatch target %q is not fixed-size and has no length provider", field.Name)
				}
				if n > remaining {
					return nil, 0, ferr.New(ferr.ShortBuffer, fieldPath, offset,
						"need %d bytes, have %d", n, remaining)
				}
			}
			nested, consumed, err := unpackStructure(target, buf[cursor:cursor+n], fieldPath, offset)
			if err != nil {
				return nil, 0, ferr.Augment(err, field.Name)
			}
			if field.DispatchTarget.LengthProvider != "" && consumed != n {
				return nil, 0, ferr.New(ferr.LengthInconsistency, fieldPath, offset,
					"declared %d bytes, dispatch target consumed %d", n, consumed)
			}
			fr.SetFrame(field.Name, nested)
			cursor += n

		case schema.KindFieldArray:
			elems, n, err := unpackFieldArray(field, buf[cursor:end], fieldPath, offset, providerBytes, providerCount, remaining, s)
			if err != nil {
				return nil, 0, err
			}
			fr.SetFrames(field.Name, elems)
			cursor += n

		default:
			return nil, 0, ferr.New(ferr.DeclarationError, fieldPath, offset, "unknown field kind %v", field.Kind)
		}
	}

	return fr, cursor, nil
}

// resolveBitProviderValues extracts every BitProviders entry backed by
// bitField's just-decoded sub-field values into the same provider maps
// a LengthField populates, so a consumer naming "bitRecordName.subField"
// as its provider is sized exactly like one named after a LengthField.
func resolveBitProviderValues(s *schema.Structure, bitField *schema.Field, values map[string]uint64, providerBytes, providerCount map[string]int) {
	for _, bp := range s.BitProviders {
		if bp.BitRecord != bitField.Name {
			continue
		}
		logical := bp.Get(values[bp.SubField])
		if bp.CountMode {
			providerCount[bp.Consumer] = int(logical)
		} else {
			providerBytes[bp.Consumer] = int(logical)
		}
	}
}

// extentFor resolves how many bytes a Bounded/Greedy consumer occupies.
func extentFor(name string, isGreedy bool, providerBytes map[string]int, s *schema.Structure, remaining int) (int, bool, error) {
	if isGreedy {
		n := remaining - s.FixedSuffixAfterGreedy()
		if n < 0 {
			return 0, true, ferr.New(ferr.GreedyUnderflow, name, 0,
				"greedy slot would consume %d bytes", n)
		}
		return n, true, nil
	}

	n, ok := providerBytes[name]
	if !ok {
		return 0, false, ferr.New(ferr.DeclarationError, name, 0, "no provider resolved for consumer")
	}
	if n > remaining {
		return 0, false, ferr.New(ferr.ShortBuffer, name, 0, "need %d bytes, have %d", n, remaining)
	}
	return n, false, nil
}

func unpackPrimitive(field *schema.Field, fr *frame.Frame, buf []byte, path string, offset int64) (int, error) {
	p := field.Primitive
	switch {
	case p.Float && p.Width == codec.W4:
		v, n, err := codec.UnpackFloat32(buf, p.Endian, path)
		if err != nil {
			return 0, withOffset(err, offset)
		}
		fr.SetFloat64(field.Name, float64(v))
		return n, nil
	case p.Float:
		v, n, err := codec.UnpackFloat64(buf, p.Endian, path)
		if err != nil {
			return 0, withOffset(err, offset)
		}
		fr.SetFloat64(field.Name, v)
		return n, nil
	case p.Signed:
		v, n, err := codec.UnpackInt(buf, p.Width, p.Endian, path)
		if err != nil {
			return 0, withOffset(err, offset)
		}
		fr.SetInt64(field.Name, v)
		return n, nil
	default:
		v, n, err := codec.UnpackUint(buf, p.Width, p.Endian, path)
		if err != nil {
			return 0, withOffset(err, offset)
		}
		fr.SetUint64(field.Name, v)
		return n, nil
	}
}

// unpackFieldArray decodes a FieldArray's elements. region is the
// slice from cursor to the end of the enclosing extent's fixed suffix;
// it is only fully consumed for byte-sized and greedy arrays, where
// the declared/greedy byte extent is enforced exactly.
func unpackFieldArray(field *schema.Field, region []byte, path string, offset int64, providerBytes, providerCount map[string]int, remaining int, s *schema.Structure) ([]*frame.Frame, int, error) {
	spec := field.FieldArray

	switch {
	case spec.LengthProvider != "":
		n, ok := providerBytes[field.Name]
		if !ok {
			return nil, 0, ferr.New(ferr.DeclarationError, path, offset, "no byte-length provider resolved")
		}
		if n > remaining {
			return nil, 0, ferr.New(ferr.ShortBuffer, path, offset, "need %d bytes, have %d", n, remaining)
		}
		return decodeElements(spec.Element, region[:n], path, offset, true)

	case spec.CountProvider != "":
		count, ok := providerCount[field.Name]
		if !ok {
			return nil, 0, ferr.New(ferr.DeclarationError, path, offset, "no count provider resolved")
		}
		return decodeElementsByCount(spec.Element, region, count, path, offset)

	case spec.Greedy:
		n := remaining - s.FixedSuffixAfterGreedy()
		if n < 0 {
			return nil, 0, ferr.New(ferr.GreedyUnderflow, path, offset, "greedy array would consume %d bytes", n)
		}
		return decodeElements(spec.Element, region[:n], path, offset, true)

	default:
		return nil, 0, ferr.New(ferr.DeclarationError, path, offset, "field array has no sizing mode")
	}
}

// decodeElements repeatedly unpacks element from region until it is
// exhausted. A non-empty but too-small remainder is ArrayElementUnderflow;
// an empty region yields an empty (not nil-erroring) array.
func decodeElements(element *schema.Structure, region []byte, path string, offset int64, exact bool) ([]*frame.Frame, int, error) {
	var elems []*frame.Frame
	cursor := 0

	for cursor < len(region) {
		fr, n, err := unpackStructure(element, region[cursor:], path, offset+int64(cursor))
		if err != nil {
			if isShortBuffer(err) {
				return nil, 0, ferr.New(ferr.ArrayElementUnderflow, path, offset+int64(cursor),
					"trailing %d bytes insufficient for another element", len(region)-cursor)
			}
			return nil, 0, ferr.Augment(err, arrayIndex(len(elems)))
		}
		if n == 0 {
			return nil, 0, ferr.New(ferr.ArrayElementUnderflow, path, offset+int64(cursor),
				"element consumed zero bytes; cannot make progress")
		}
		elems = append(elems, fr)
		cursor += n
	}

	if exact && cursor != len(region) {
		return nil, 0, ferr.New(ferr.ArrayElementUnderflow, path, offset, "region not evenly divided by elements")
	}

	return elems, cursor, nil
}

func decodeElementsByCount(element *schema.Structure, region []byte, count int, path string, offset int64) ([]*frame.Frame, int, error) {
	elems := make([]*frame.Frame, 0, count)
	cursor := 0

	for i := 0; i < count; i++ {
		if cursor >= len(region) {
			return nil, 0, ferr.New(ferr.ArrayElementUnderflow, path, offset+int64(cursor),
				"need element %d of %d, no bytes remain", i, count)
		}
		fr, n, err := unpackStructure(element, region[cursor:], path, offset+int64(cursor))
		if err != nil {
			if isShortBuffer(err) {
				return nil, 0, ferr.New(ferr.ArrayElementUnderflow, path, offset+int64(cursor),
					"need element %d of %d: %v", i, count, err)
			}
			return nil, 0, ferr.Augment(err, arrayIndex(i))
		}
		elems = append(elems, fr)
		cursor += n
	}

	return elems, cursor, nil
}

func isShortBuffer(err error) bool {
	fe, ok := err.(*ferr.Error)
	return ok && fe.Kind() == ferr.ShortBuffer
}

func withOffset(err error, offset int64) error {
	fe, ok := err.(*ferr.Error)
	if !ok {
		return err
	}
	if fe.Offset() != 0 {
		return fe
	}
	return ferr.New(fe.Kind(), fe.Path(), offset, "%s", fe.Error())
}

func arrayIndex(i int) string {
	return "[" + itoa(i) + "]"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
