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

package schema

import (
	"github.com/hpe-forks/framewire/bitrecord"
	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/frame"
)

// Builder accumulates an ordered slot list and emits a validated
// Structure on Build(). This is the declarative surface design note §9
// anticipates: "a builder that emits a metamodel value".
type Builder struct {
	name         string
	slots        []*Field
	bitProviders []*BitProviderSpec
	padCount     int
}

// New starts a Structure declaration named name.
func New(name string) *Builder {
	return &Builder{name: name}
}

func (b *Builder) push(f *Field) *Builder {
	b.slots = append(b.slots, f)
	return b
}

func (b *Builder) last() *Field {
	if len(b.slots) == 0 {
		return nil
	}
	return b.slots[len(b.slots)-1]
}

// Uint declares an unsigned fixed-width integer slot.
func (b *Builder) Uint(name string, w codec.Width, endian codec.Endian) *Builder {
	return b.push(&Field{Name: name, Kind: KindPrimitive, Primitive: &PrimitiveSpec{Width: w, Endian: endian}})
}

// Int declares a signed fixed-width integer slot.
func (b *Builder) Int(name string, w codec.Width, endian codec.Endian) *Builder {
	return b.push(&Field{Name: name, Kind: KindPrimitive, Primitive: &PrimitiveSpec{Width: w, Endian: endian, Signed: true}})
}

// Float32 declares an IEEE-754 single-precision slot.
func (b *Builder) Float32(name string, endian codec.Endian) *Builder {
	return b.push(&Field{Name: name, Kind: KindPrimitive, Primitive: &PrimitiveSpec{Width: codec.W4, Endian: endian, Float: true}})
}

// Float64 declares an IEEE-754 double-precision slot.
func (b *Builder) Float64(name string, endian codec.Endian) *Builder {
	return b.push(&Field{Name: name, Kind: KindPrimitive, Primitive: &PrimitiveSpec{Width: codec.W8, Endian: endian, Float: true}})
}

// FixedBytes declares an opaque n-byte block slot.
func (b *Builder) FixedBytes(name string, n int) *Builder {
	return b.push(&Field{Name: name, Kind: KindFixedBytes, FixedLen: n})
}

// Magic declares a slot whose bytes are a constant, checked on every
// pack and unpack (I3).
func (b *Builder) Magic(name string, magic []byte) *Builder {
	cp := make([]byte, len(magic))
	copy(cp, magic)
	return b.push(&Field{Name: name, Kind: KindMagic, MagicBytes: cp})
}

// BitRecord declares a fixed-width named-subfield bit container (§4.2).
func (b *Builder) BitRecord(name string, widthBits uint, fields []bitrecord.SubField) *Builder {
	return b.push(&Field{Name: name, Kind: KindBitRecord, BitSpec: &bitrecord.Spec{Name: name, WidthBits: widthBits, Fields: fields}})
}

// Pad declares a fixed n-byte slot that packs as n zero bytes and, on
// unpack, validates that the bytes it consumes are all zero. It has no
// frame value of its own and cannot serve as a provider or consumer.
func (b *Builder) Pad(n int) *Builder {
	name := "_pad" + itoa(b.padCount)
	b.padCount++
	return b.push(&Field{Name: name, Kind: KindPad, FixedLen: n})
}

// BitProviderOption customizes a BitLengthProvider/BitCountProvider
// declaration.
type BitProviderOption func(*BitProviderSpec)

// WithBitGetTransform sets the raw-to-logical transform applied when a
// bit-slice provider's value is read during unpack.
func WithBitGetTransform(fn func(uint64) uint64) BitProviderOption {
	return func(b *BitProviderSpec) { b.GetTransform = fn }
}

// WithBitSetTransform sets the logical-to-raw transform applied when a
// bit-slice provider's value is derived from its consumer during pack.
func WithBitSetTransform(fn func(uint64) uint64) BitProviderOption {
	return func(b *BitProviderSpec) { b.SetTransform = fn }
}

// BitLengthProvider declares bitRecord's sub-field subField as a
// byte-count provider for consumer, without occupying its own slot
// (spec §3: "a LengthField (or a BitRecord bit-slice exposed as a
// length provider)").
func (b *Builder) BitLengthProvider(bitRecord, subField, consumer string, opts ...BitProviderOption) *Builder {
	bp := &BitProviderSpec{BitRecord: bitRecord, SubField: subField, Consumer: consumer}
	for _, opt := range opts {
		opt(bp)
	}
	b.bitProviders = append(b.bitProviders, bp)
	return b
}

// BitCountProvider declares bitRecord's sub-field subField as an
// element-count provider for consumer (used with FieldArray's
// SizedByCount sizing).
func (b *Builder) BitCountProvider(bitRecord, subField, consumer string, opts ...BitProviderOption) *Builder {
	bp := &BitProviderSpec{BitRecord: bitRecord, SubField: subField, Consumer: consumer, CountMode: true}
	for _, opt := range opts {
		opt(bp)
	}
	b.bitProviders = append(b.bitProviders, bp)
	return b
}

// LengthFieldOption customizes a LengthField/DispatchField declaration.
type LengthFieldOption func(*LengthSpec)

// WithGetTransform sets the raw-to-logical transform applied when a
// provider's value is read during unpack (e.g. "stored length is bytes
// after header" -> add header size back).
func WithGetTransform(fn func(uint64) uint64) LengthFieldOption {
	return func(l *LengthSpec) { l.GetTransform = fn }
}

// WithSetTransform sets the logical-to-raw transform applied when a
// provider's value is derived from its consumer during pack.
func WithSetTransform(fn func(uint64) uint64) LengthFieldOption {
	return func(l *LengthSpec) { l.SetTransform = fn }
}

// LengthField declares a byte-count provider for consumer.
func (b *Builder) LengthField(name string, w codec.Width, endian codec.Endian, consumer string, opts ...LengthFieldOption) *Builder {
	l := &LengthSpec{Width: w, Endian: endian, Consumer: consumer}
	for _, opt := range opts {
		opt(l)
	}
	return b.push(&Field{Name: name, Kind: KindLengthField, Length: l})
}

// CountField declares an element-count provider for consumer (used
// with FieldArray's SizedByCount sizing).
func (b *Builder) CountField(name string, w codec.Width, endian codec.Endian, consumer string, opts ...LengthFieldOption) *Builder {
	l := &LengthSpec{Width: w, Endian: endian, Consumer: consumer, CountMode: true}
	for _, opt := range opts {
		opt(l)
	}
	return b.push(&Field{Name: name, Kind: KindLengthField, Length: l})
}

// Payload declares a variable byte-block slot sized by lengthProvider.
func (b *Builder) Payload(name string, lengthProvider string) *Builder {
	return b.push(&Field{Name: name, Kind: KindPayload, Payload: &PayloadSpec{LengthProvider: lengthProvider}})
}

// GreedyPayload declares a variable byte-block slot that consumes all
// remaining bytes in its enclosing region.
func (b *Builder) GreedyPayload(name string) *Builder {
	return b.push(&Field{Name: name, Kind: KindPayload, Payload: &PayloadSpec{}})
}

// DispatchField declares a fixed-width key slot that selects a
// DispatchTarget's structure.
func (b *Builder) DispatchField(name string, w codec.Width, endian codec.Endian, consumer string) *Builder {
	return b.push(&Field{Name: name, Kind: KindDispatchField, DispatchField: &LengthSpec{Width: w, Endian: endian, Consumer: consumer}})
}

// DispatchOption customizes a DispatchTarget declaration.
type DispatchOption func(*DispatchTargetSpec)

// WithDefault sets the structure used when the dispatch key has no
// entry in mapping.
func WithDefault(def *Structure) DispatchOption {
	return func(d *DispatchTargetSpec) {
		d.Default = def
		d.HasDefault = true
	}
}

// DispatchTarget declares a type-dispatched sub-structure slot, keyed
// by dispatchField's decoded value. With an empty lengthProvider the
// target is bounded when every mapped structure (and the default, if
// any) is fixed-size, and greedy otherwise.
func (b *Builder) DispatchTarget(name, dispatchField, lengthProvider string, mapping map[uint64]*Structure, opts ...DispatchOption) *Builder {
	d := &DispatchTargetSpec{DispatchField: dispatchField, LengthProvider: lengthProvider, Mapping: mapping}
	for _, opt := range opts {
		opt(d)
	}
	return b.push(&Field{Name: name, Kind: KindDispatchTarget, DispatchTarget: d})
}

// Substructure declares a nested Structure slot. An empty
// lengthProvider makes it greedy.
func (b *Builder) Substructure(name string, sub *Structure, lengthProvider string) *Builder {
	return b.push(&Field{Name: name, Kind: KindSubstructure, Substructure: &SubstructureSpec{Struct: sub, LengthProvider: lengthProvider}})
}

// FieldArray declares a repeated-element slot; use SizedByBytes,
// SizedByCount or GreedyArraySizing to build sizing.
func (b *Builder) FieldArray(name string, element *Structure, sizing FieldArraySpec) *Builder {
	sizing.Element = element
	return b.push(&Field{Name: name, Kind: KindFieldArray, FieldArray: &sizing})
}

// If marks the most recently added slot as conditionally present: it
// contributes zero bytes when cond evaluates false. dependsOn must
// name every earlier slot cond actually reads (validated at Build).
func (b *Builder) If(cond func(*frame.Frame) bool, dependsOn ...string) *Builder {
	if f := b.last(); f != nil {
		f.Condition = &Condition{DependsOn: dependsOn, Eval: cond}
	}
	return b
}

// Derive marks the most recently added primitive/length slot as
// computed at pack time from earlier slots, when the caller has not
// already set it directly. dependsOn must name every earlier slot fn
// actually reads (validated at Build).
func (b *Builder) Derive(fn func(*frame.Frame) (uint64, error), dependsOn ...string) *Builder {
	if f := b.last(); f != nil {
		f.Dependent = &Dependent{DependsOn: dependsOn, Eval: fn}
	}
	return b
}

// Build validates the accumulated slots (I1-I6) and returns the
// resulting Structure.
func (b *Builder) Build() (*Structure, error) {
	return build(b.name, b.slots, b.bitProviders)
}

// MustBuild is Build but panics on error, for package-level structure
// declarations the author is confident are valid (mirrors the
// corpus's common regexp.MustCompile-style init-time convenience).
func MustBuild(b *Builder) *Structure {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
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
