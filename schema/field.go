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

// Package schema implements the Field Kind algebra and the Structure
// metamodel: an ordered sequence of named slots, each bound to one
// Field Kind, plus the derived metadata (provider/consumer
// back-references, the greedy slot, fixed-suffix contributions) that
// the packer, unpacker and framer all share.
//
// Grounded on structex's tags.go (the "tags" struct bundling endian,
// bitfield, layout and alignment per field) and transcoder.go (the
// transcode walk that resolves sizeOf/countOf back-references by
// field name) -- generalized from reflect-driven struct tags to an
// explicit builder that emits this metamodel directly, per design note
// §9 ("express the declaration as a builder that emits a metamodel
// value").
package schema

import (
	"github.com/hpe-forks/framewire/bitrecord"
	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/frame"
)

// Kind tags which Field Kind variant a slot holds.
type Kind int

const (
	KindPrimitive Kind = iota
	KindBitRecord
	KindFixedBytes
	KindMagic
	KindLengthField
	KindPayload
	KindDispatchField
	KindDispatchTarget
	KindSubstructure
	KindFieldArray
	KindPad
)

func (k Kind) String() string {
	names := [...]string{
		"Primitive", "BitRecord", "FixedBytes", "Magic", "LengthField",
		"Payload", "DispatchField", "DispatchTarget", "Substructure", "FieldArray",
		"Pad",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// Extent classifies how a slot's width is determined (original §3).
type Extent int

const (
	ExtentFixed Extent = iota
	ExtentBounded
	ExtentGreedy
)

// Condition gates a slot's presence. DependsOn lists the names of the
// earlier slots Eval actually reads, so the Structure can validate I5
// at declaration time without invoking the closure.
type Condition struct {
	DependsOn []string
	Eval      func(*frame.Frame) bool
}

// Dependent computes a slot's value at pack time from earlier slots,
// when the caller has not already populated it. DependsOn plays the
// same declaration-time-checkable role as in Condition (I6).
type Dependent struct {
	DependsOn []string
	Eval      func(*frame.Frame) (uint64, error)
}

// PrimitiveSpec parameterizes a fixed-width integer or float.
type PrimitiveSpec struct {
	Width  codec.Width
	Endian codec.Endian
	Signed bool
	Float  bool
}

// LengthSpec parameterizes a LengthField or DispatchField: a fixed
// primitive that serves as the provider for a paired consumer slot.
type LengthSpec struct {
	Width        codec.Width
	Endian       codec.Endian
	Consumer     string
	CountMode    bool // true: value is an element count (FieldArray); false: byte count
	GetTransform func(uint64) uint64
	SetTransform func(uint64) uint64
}

// Get applies the provider's raw-to-logical transform (identity if
// none was supplied).
func (l *LengthSpec) Get(raw uint64) uint64 {
	if l.GetTransform == nil {
		return raw
	}
	return l.GetTransform(raw)
}

// Set applies the provider's logical-to-raw transform (identity if
// none was supplied).
func (l *LengthSpec) Set(logical uint64) uint64 {
	if l.SetTransform == nil {
		return logical
	}
	return l.SetTransform(logical)
}

// HasTransform reports whether either a get or set transform was
// supplied, used to decide whether the invertibility check in the
// packer applies.
func (l *LengthSpec) HasTransform() bool {
	return l.GetTransform != nil || l.SetTransform != nil
}

// BitProviderSpec associates one sub-field of an already-declared
// BitRecord slot with a length/count provider role for a separately
// declared consumer (spec §3: "a LengthField (or a BitRecord bit-slice
// exposed as a length provider)"). Unlike LengthField/DispatchField, it
// does not occupy its own slot: the raw value travels inside the named
// BitRecord's own wire bytes.
type BitProviderSpec struct {
	BitRecord    string
	SubField     string
	Consumer     string
	CountMode    bool // true: value is an element count; false: byte count
	GetTransform func(uint64) uint64
	SetTransform func(uint64) uint64
}

// Key returns the dotted name a consumer's LengthProvider/CountProvider
// string must match to reference this bit-slice provider.
func (b *BitProviderSpec) Key() string {
	return b.BitRecord + "." + b.SubField
}

// Get applies the provider's raw-to-logical transform (identity if
// none was supplied).
func (b *BitProviderSpec) Get(raw uint64) uint64 {
	if b.GetTransform == nil {
		return raw
	}
	return b.GetTransform(raw)
}

// Set applies the provider's logical-to-raw transform (identity if
// none was supplied).
func (b *BitProviderSpec) Set(logical uint64) uint64 {
	if b.SetTransform == nil {
		return logical
	}
	return b.SetTransform(logical)
}

// HasTransform reports whether either a get or set transform was
// supplied, used to decide whether the invertibility check in the
// packer applies.
func (b *BitProviderSpec) HasTransform() bool {
	return b.GetTransform != nil || b.SetTransform != nil
}

// PayloadSpec parameterizes a Payload slot. An empty LengthProvider
// means the payload is greedy.
type PayloadSpec struct {
	LengthProvider string
}

// DispatchTargetSpec parameterizes a DispatchTarget slot.
type DispatchTargetSpec struct {
	DispatchField  string
	LengthProvider string // empty: greedy, unless every selectable structure is fixed-size
	Mapping        map[uint64]*Structure
	Default        *Structure
	HasDefault     bool
}

// allFixedSize reports whether every structure this DispatchTarget can
// select (its mapping, plus its default if any) is statically
// fixed-size -- the condition under which its extent can be resolved
// from the decoded dispatch key alone, without a byte-length provider.
func (d *DispatchTargetSpec) allFixedSize() bool {
	for _, target := range d.Mapping {
		if _, ok := target.FixedSize(); !ok {
			return false
		}
	}
	if d.HasDefault {
		if _, ok := d.Default.FixedSize(); !ok {
			return false
		}
	}
	return true
}

// SubstructureSpec parameterizes a SubstructureField slot. An empty
// LengthProvider means the substructure is greedy.
type SubstructureSpec struct {
	Struct         *Structure
	LengthProvider string
}

// FieldArraySpec parameterizes a FieldArray slot. Exactly one of
// LengthProvider, CountProvider, Greedy applies.
type FieldArraySpec struct {
	Element        *Structure
	LengthProvider string
	CountProvider  string
	Greedy         bool
}

// SizedByBytes returns a FieldArraySpec sizing mode driven by a byte-
// count length provider.
func SizedByBytes(provider string) FieldArraySpec {
	return FieldArraySpec{LengthProvider: provider}
}

// SizedByCount returns a FieldArraySpec sizing mode driven by an
// element-count provider.
func SizedByCount(provider string) FieldArraySpec {
	return FieldArraySpec{CountProvider: provider}
}

// GreedyArraySizing returns a FieldArraySpec sizing mode that consumes
// to the end of the enclosing region.
func GreedyArraySizing() FieldArraySpec {
	return FieldArraySpec{Greedy: true}
}

// Field is one named slot in a Structure.
type Field struct {
	Name string
	Kind Kind

	Condition *Condition
	Dependent *Dependent

	Primitive      *PrimitiveSpec
	BitSpec        *bitrecord.Spec
	FixedLen       int
	MagicBytes     []byte
	Length         *LengthSpec
	Payload        *PayloadSpec
	DispatchField  *LengthSpec // DispatchField reuses LengthSpec's shape (fixed primitive + consumer)
	DispatchTarget *DispatchTargetSpec
	Substructure   *SubstructureSpec
	FieldArray     *FieldArraySpec
}

// FixedWidth returns the slot's width in bytes when ExtentHint is
// ExtentFixed; it panics if called on a variable-extent slot.
func (f *Field) FixedWidth() int {
	switch f.Kind {
	case KindPrimitive:
		return int(f.Primitive.Width)
	case KindBitRecord:
		return int(f.BitSpec.WidthBits / 8)
	case KindFixedBytes:
		return f.FixedLen
	case KindMagic:
		return len(f.MagicBytes)
	case KindLengthField:
		return int(f.Length.Width)
	case KindDispatchField:
		return int(f.DispatchField.Width)
	case KindPad:
		return f.FixedLen
	default:
		panic("schema: FixedWidth called on variable-extent slot " + f.Name)
	}
}

// ExtentHint classifies the slot's extent per original §3/§6
// (extent_hint on every Field Kind).
func (f *Field) ExtentHint() Extent {
	switch f.Kind {
	case KindPrimitive, KindBitRecord, KindFixedBytes, KindMagic, KindLengthField, KindDispatchField, KindPad:
		return ExtentFixed
	case KindPayload:
		if f.Payload.LengthProvider == "" {
			return ExtentGreedy
		}
		return ExtentBounded
	case KindSubstructure:
		if f.Substructure.LengthProvider == "" {
			return ExtentGreedy
		}
		return ExtentBounded
	case KindDispatchTarget:
		if f.DispatchTarget.LengthProvider != "" {
			return ExtentBounded
		}
		// No explicit byte-length provider: the target's width can
		// still be resolved just-in-time, once the dispatch key is
		// decoded, if every structure this slot can select is itself
		// statically fixed-size.
		if f.DispatchTarget.allFixedSize() {
			return ExtentBounded
		}
		return ExtentGreedy
	case KindFieldArray:
		if f.FieldArray.Greedy {
			return ExtentGreedy
		}
		return ExtentBounded
	}
	return ExtentFixed
}

// consumerName reports whether this slot is a LengthField/DispatchField
// provider, and if so, the name of the consumer it is paired with.
func (f *Field) consumerName() (string, bool) {
	switch f.Kind {
	case KindLengthField:
		return f.Length.Consumer, true
	case KindDispatchField:
		return f.DispatchField.Consumer, true
	}
	return "", false
}
