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

// Package pack implements the two-pass Packer (original §4.4): pass one
// resolves derived values (Dependent fields, and every LengthField's
// byte/element count, learned by tentatively packing its consumer);
// pass two walks the slots in order and emits bytes.
//
// Grounded on structex's encoder.go (encoder.field/layout/array/slice)
// and size.go (the sizer pass structex runs ahead of encoding to learn
// sizeOf/countOf values) -- generalized from the teacher's reflect-
// driven single-pass-with-a-size-precompute into the explicit two-pass
// algorithm original §4.4 specifies.
package pack

import (
	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/ferr"
	"github.com/hpe-forks/framewire/frame"
	"github.com/hpe-forks/framewire/schema"
)

// Pack serializes fr according to structure s.
func Pack(s *schema.Structure, fr *frame.Frame) ([]byte, error) {
	return packStructure(s, fr, s.Name)
}

func packStructure(s *schema.Structure, fr *frame.Frame, path string) ([]byte, error) {
	cache := map[string][]byte{}

	if err := resolveDerived(s, fr, cache, path); err != nil {
		return nil, err
	}

	var out []byte
	for _, field := range s.Slots {
		if field.Condition != nil && !field.Condition.Eval(fr) {
			continue
		}

		b, err := emit(s, field, fr, cache, path)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}

	return out, nil
}

// resolveDerived is pass 1: it evaluates Dependent transforms in slot
// order, resolves any BitRecord sub-field providers before their owning
// BitRecord is packed, and for each LengthField provider tentatively
// packs the paired consumer to learn its extent, then writes the
// provider's raw wire value (after the user SetTransform, if any).
func resolveDerived(s *schema.Structure, fr *frame.Frame, cache map[string][]byte, path string) error {
	for _, field := range s.Slots {
		if field.Condition != nil && !field.Condition.Eval(fr) {
			continue
		}

		if field.Dependent != nil && !fr.Has(field.Name) {
			v, err := field.Dependent.Eval(fr)
			if err != nil {
				return ferr.Wrap(err, ferr.UnsetField, field.Name, 0,
					"dependent transform failed")
			}
			fr.SetUint64(field.Name, v)
		}

		if field.Kind == schema.KindBitRecord {
			if err := resolveBitProviders(s, field, fr, cache, path); err != nil {
				return err
			}
		}

		if field.Kind != schema.KindLengthField {
			continue
		}

		consumer, ok := s.Slot(field.Length.Consumer)
		if !ok {
			return ferr.New(ferr.DeclarationError, field.Name, 0,
				"unknown consumer %q", field.Length.Consumer)
		}

		b, count, err := packConsumer(consumer, fr, path)
		if err != nil {
			return err
		}
		cache[consumer.Name] = b

		logical := uint64(len(b))
		if field.Length.CountMode {
			logical = uint64(count)
		}

		raw := field.Length.Set(logical)
		if field.Length.HasTransform() {
			if back := field.Length.Get(raw); back != logical {
				return ferr.New(ferr.LengthInconsistency, field.Name, 0,
					"provider transform is not invertible: declared %d, get(set(%d))=%d",
					logical, logical, back)
			}
		}

		fr.SetUint64(field.Name, raw)
	}

	return nil
}

// resolveBitProviders packs the consumer of every bit-slice provider
// hosted by bitField (bitField's owning BitRecord), learning each
// consumer's extent the same way a LengthField does, and folds the raw
// provider value into the BitRecord's own sub-field values so it is
// carried out when bitField itself is packed.
func resolveBitProviders(s *schema.Structure, bitField *schema.Field, fr *frame.Frame, cache map[string][]byte, path string) error {
	for _, bp := range s.BitProviders {
		if bp.BitRecord != bitField.Name {
			continue
		}

		consumer, ok := s.Slot(bp.Consumer)
		if !ok {
			return ferr.New(ferr.DeclarationError, bp.Key(), 0, "unknown consumer %q", bp.Consumer)
		}

		b, count, err := packConsumer(consumer, fr, path)
		if err != nil {
			return err
		}
		cache[consumer.Name] = b

		logical := uint64(len(b))
		if bp.CountMode {
			logical = uint64(count)
		}

		raw := bp.Set(logical)
		if bp.HasTransform() {
			if back := bp.Get(raw); back != logical {
				return ferr.New(ferr.LengthInconsistency, bp.Key(), 0,
					"bit provider transform is not invertible: declared %d, get(set(%d))=%d",
					logical, logical, back)
			}
		}

		values, ok := fr.GetBitValues(bitField.Name)
		if !ok {
			values = map[string]uint64{}
		}
		values[bp.SubField] = raw
		fr.SetBitValues(bitField.Name, values)
	}

	return nil
}

// emit produces the wire bytes for a single slot during pass 2,
// reusing pass 1's cached bytes for provider-bound consumers.
func emit(s *schema.Structure, field *schema.Field, fr *frame.Frame, cache map[string][]byte, path string) ([]byte, error) {
	switch field.Kind {
	case schema.KindPrimitive:
		return emitPrimitive(field, fr, path)

	case schema.KindBitRecord:
		values, ok := fr.GetBitValues(field.Name)
		if !ok {
			return nil, ferr.New(ferr.UnsetField, field.Name, 0, "bit record not set")
		}
		return field.BitSpec.Pack(values)

	case schema.KindFixedBytes:
		b, ok := fr.GetBytes(field.Name)
		if !ok {
			return nil, ferr.New(ferr.UnsetField, field.Name, 0, "fixed byte block not set")
		}
		return codec.PackBytes(b, field.FixedLen, field.Name)

	case schema.KindMagic:
		return codec.PackMagic(field.MagicBytes), nil

	case schema.KindPad:
		return make([]byte, field.FixedLen), nil

	case schema.KindLengthField:
		v, ok := fr.GetUint64(field.Name)
		if !ok {
			return nil, ferr.New(ferr.UnsetField, field.Name, 0, "length field not resolved")
		}
		return codec.PackUint(v, field.Length.Width, field.Length.Endian, field.Name)

	case schema.KindDispatchField:
		v, ok := fr.GetUint64(field.Name)
		if !ok {
			return nil, ferr.New(ferr.UnsetField, field.Name, 0, "dispatch field not set")
		}
		return codec.PackUint(v, field.DispatchField.Width, field.DispatchField.Endian, field.Name)

	case schema.KindPayload, schema.KindSubstructure, schema.KindDispatchTarget, schema.KindFieldArray:
		if b, ok := cache[field.Name]; ok {
			return b, nil
		}
		b, _, err := packConsumer(field, fr, path)
		return b, err

	default:
		return nil, ferr.New(ferr.DeclarationError, field.Name, 0, "unknown field kind %v", field.Kind)
	}
}

func emitPrimitive(field *schema.Field, fr *frame.Frame, path string) ([]byte, error) {
	p := field.Primitive
	switch {
	case p.Float && p.Width == codec.W4:
		v, ok := fr.GetFloat64(field.Name)
		if !ok {
			return nil, ferr.New(ferr.UnsetField, field.Name, 0, "float field not set")
		}
		return codec.PackFloat32(float32(v), p.Endian, field.Name)
	case p.Float:
		v, ok := fr.GetFloat64(field.Name)
		if !ok {
			return nil, ferr.New(ferr.UnsetField, field.Name, 0, "float field not set")
		}
		return codec.PackFloat64(v, p.Endian, field.Name)
	case p.Signed:
		v, ok := fr.GetInt64(field.Name)
		if !ok {
			return nil, ferr.New(ferr.UnsetField, field.Name, 0, "integer field not set")
		}
		return codec.PackInt(v, p.Width, p.Endian, field.Name)
	default:
		v, ok := fr.GetUint64(field.Name)
		if !ok {
			return nil, ferr.New(ferr.UnsetField, field.Name, 0, "integer field not set")
		}
		return codec.PackUint(v, p.Width, p.Endian, field.Name)
	}
}

// packConsumer packs a single variable-extent slot (or a skipped
// conditional consumer, which contributes zero bytes/elements) and
// returns its bytes plus its element/frame count (used by count-mode
// LengthField providers).
func packConsumer(field *schema.Field, fr *frame.Frame, path string) ([]byte, int, error) {
	if field.Condition != nil && !field.Condition.Eval(fr) {
		return nil, 0, nil
	}

	switch field.Kind {
	case schema.KindPayload:
		b, ok := fr.GetBytes(field.Name)
		if !ok {
			return nil, 0, ferr.New(ferr.UnsetField, field.Name, 0, "payload not set")
		}
		return b, len(b), nil

	case schema.KindSubstructure:
		nested, ok := fr.GetFrame(field.Name)
		if !ok {
			return nil, 0, ferr.New(ferr.UnsetField, field.Name, 0, "substructure not set")
		}
		b, err := packStructure(field.Substructure.Struct, nested, field.Name)
		if err != nil {
			return nil, 0, ferr.Augment(err, field.Name)
		}
		return b, 1, nil

	case schema.KindDispatchTarget:
		dfName := field.DispatchTarget.DispatchField
		key, ok := fr.GetUint64(dfName)
		if !ok {
			return nil, 0, ferr.New(ferr.UnsetField, dfName, 0, "dispatch field not set")
		}
		target, ok := field.DispatchTarget.Mapping[key]
		if !ok {
			if field.DispatchTarget.HasDefault {
				target = field.DispatchTarget.Default
			} else {
				return nil, 0, ferr.New(ferr.UnknownDispatch, field.Name, 0,
					"no structure mapped for dispatch key %d", key)
			}
		}
		nested, ok := fr.GetFrame(field.Name)
		if !ok {
			return nil, 0, ferr.New(ferr.UnsetField, field.Name, 0, "dispatch target not set")
		}
		b, err := packStructure(target, nested, field.Name)
		if err != nil {
			return nil, 0, ferr.Augment(err, field.Name)
		}
		return b, 1, nil

	case schema.KindFieldArray:
		if !fr.Has(field.Name) {
			return nil, 0, ferr.New(ferr.UnsetField, field.Name, 0, "field array not set")
		}
		elems, _ := fr.GetFrames(field.Name)
		var out []byte
		for i, e := range elems {
			b, err := packStructure(field.FieldArray.Element, e, field.Name)
			if err != nil {
				return nil, 0, ferr.Augment(err, arrayIndex(field.Name, i))
			}
			out = append(out, b...)
		}
		return out, len(elems), nil

	default:
		return nil, 0, ferr.New(ferr.DeclarationError, field.Name, 0, "not a consumer kind: %v", field.Kind)
	}
}

func arrayIndex(name string, i int) string {
	return name + "[" + itoa(i) + "]"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
