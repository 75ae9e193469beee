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

// Package frame implements the key-indexed runtime value container that
// Structure instances are populated into and read out of (design note
// §9: "Field access on an instance maps to either generated accessors
// or a key-indexed container; round-trip tests do not distinguish").
package frame

import (
	"fmt"
	"sort"
	"strings"
)

// Frame is a populated (or partially populated) instance of a
// Structure. Unset slots are simply absent from values.
type Frame struct {
	values map[string]interface{}
}

// New returns an empty Frame.
func New() *Frame {
	return &Frame{values: make(map[string]interface{})}
}

// Has reports whether name has been set.
func (f *Frame) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// Get returns the raw value stored for name.
func (f *Frame) Get(name string) (interface{}, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Set stores an arbitrary value for name.
func (f *Frame) Set(name string, value interface{}) {
	f.values[name] = value
}

// Delete removes name, so a later Has reports it as unset.
func (f *Frame) Delete(name string) {
	delete(f.values, name)
}

// GetUint64 returns an unsigned integer field, coercing from any stored
// unsigned/bool representation.
func (f *Frame) GetUint64(name string) (uint64, bool) {
	v, ok := f.values[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// SetUint64 stores an unsigned integer field.
func (f *Frame) SetUint64(name string, value uint64) {
	f.values[name] = value
}

// GetInt64 returns a signed integer field.
func (f *Frame) GetInt64(name string) (int64, bool) {
	v, ok := f.values[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

// SetInt64 stores a signed integer field.
func (f *Frame) SetInt64(name string, value int64) {
	f.values[name] = value
}

// GetFloat64 returns a float field (float32 values are widened).
func (f *Frame) GetFloat64(name string) (float64, bool) {
	v, ok := f.values[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// SetFloat64 stores a float field.
func (f *Frame) SetFloat64(name string, value float64) {
	f.values[name] = value
}

// GetBool returns a boolean field.
func (f *Frame) GetBool(name string) (bool, bool) {
	v, ok := f.values[name]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// SetBool stores a boolean field.
func (f *Frame) SetBool(name string, value bool) {
	f.values[name] = value
}

// GetBytes returns an opaque byte-block field.
func (f *Frame) GetBytes(name string) ([]byte, bool) {
	v, ok := f.values[name]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// SetBytes stores an opaque byte-block field.
func (f *Frame) SetBytes(name string, value []byte) {
	f.values[name] = value
}

// GetFrame returns a nested Structure instance (SubstructureField,
// DispatchTarget).
func (f *Frame) GetFrame(name string) (*Frame, bool) {
	v, ok := f.values[name]
	if !ok {
		return nil, false
	}
	nested, ok := v.(*Frame)
	return nested, ok
}

// SetFrame stores a nested Structure instance.
func (f *Frame) SetFrame(name string, value *Frame) {
	f.values[name] = value
}

// GetFrames returns a FieldArray's element instances.
func (f *Frame) GetFrames(name string) ([]*Frame, bool) {
	v, ok := f.values[name]
	if !ok {
		return nil, false
	}
	nested, ok := v.([]*Frame)
	return nested, ok
}

// SetFrames stores a FieldArray's element instances.
func (f *Frame) SetFrames(name string, value []*Frame) {
	f.values[name] = value
}

// GetBitValues returns a BitRecord slot's decomposed sub-field values.
func (f *Frame) GetBitValues(name string) (map[string]uint64, bool) {
	v, ok := f.values[name]
	if !ok {
		return nil, false
	}
	bv, ok := v.(map[string]uint64)
	return bv, ok
}

// SetBitValues stores a BitRecord slot's sub-field values.
func (f *Frame) SetBitValues(name string, value map[string]uint64) {
	f.values[name] = value
}

// String renders the Frame's keys and values sorted by name, for
// debugging and test failure messages.
func (f *Frame) String() string {
	names := make([]string, 0, len(f.values))
	for k := range f.values {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Frame{")
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", n, f.values[n])
	}
	b.WriteString("}")
	return b.String()
}
