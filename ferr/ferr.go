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

// Package ferr defines the diagnostic error taxonomy shared by codec,
// bitrecord, schema, pack, unpack and framer: every error raised by this
// module carries a kind, a dotted field path, a byte offset within the
// top-level frame, and an optional wrapped cause.
package ferr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error categories defined by the spec's
// error taxonomy.
type Kind int

const (
	// ShortBuffer indicates fewer bytes were available than a fixed
	// or bounded slot requires.
	ShortBuffer Kind = iota
	// RangeError indicates a pack-time value exceeds the range its
	// encoding can represent.
	RangeError
	// MagicMismatch indicates a Magic slot's bytes did not match its
	// declared constant.
	MagicMismatch
	// LengthInconsistency indicates a provider's post-transform value
	// disagreed with its consumer's actual extent.
	LengthInconsistency
	// UnsetField indicates a required slot was never populated before
	// pack.
	UnsetField
	// UnknownDispatch indicates a DispatchTarget's mapping has no entry
	// (and no default) for the observed dispatch key.
	UnknownDispatch
	// GreedyUnderflow indicates a greedy slot's computed extent was
	// negative.
	GreedyUnderflow
	// ArrayElementUnderflow indicates a FieldArray's region ended in
	// the middle of an element.
	ArrayElementUnderflow
	// ConditionNotEvaluable indicates a ConditionalField's condition
	// referenced a slot that is not yet decoded/set.
	ConditionNotEvaluable
	// DeclarationError indicates a Structure violates an invariant at
	// declaration time (I1-I6).
	DeclarationError
	// FramerOverflow indicates the stream framer's internal buffer
	// exceeded its configured maximum while awaiting the sync magic or
	// the rest of a frame.
	FramerOverflow
)

func (k Kind) String() string {
	switch k {
	case ShortBuffer:
		return "ShortBuffer"
	case RangeError:
		return "RangeError"
	case MagicMismatch:
		return "MagicMismatch"
	case LengthInconsistency:
		return "LengthInconsistency"
	case UnsetField:
		return "UnsetField"
	case UnknownDispatch:
		return "UnknownDispatch"
	case GreedyUnderflow:
		return "GreedyUnderflow"
	case ArrayElementUnderflow:
		return "ArrayElementUnderflow"
	case ConditionNotEvaluable:
		return "ConditionNotEvaluable"
	case DeclarationError:
		return "DeclarationError"
	case FramerOverflow:
		return "FramerOverflow"
	default:
		return "Unknown"
	}
}

// Error is the single error type raised across the module. It is
// modeled after structex's TaggingError (a typed error carrying
// structured field context) but generalized to the full taxonomy and
// wrapped with github.com/pkg/errors so callers can errors.Is/As
// against a cause while still inspecting Kind/Path/Offset directly.
type Error struct {
	kind    Kind
	path    string
	offset  int64
	message string
	cause   error
}

// New creates an Error with no wrapped cause.
func New(kind Kind, path string, offset int64, format string, args ...interface{}) *Error {
	return &Error{
		kind:    kind,
		path:    path,
		offset:  offset,
		message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates an Error that wraps an existing cause via pkg/errors.
func Wrap(cause error, kind Kind, path string, offset int64, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		kind:    kind,
		path:    path,
		offset:  offset,
		message: msg,
		cause:   errors.Wrap(cause, msg),
	}
}

// Kind returns the error's category.
func (e *Error) Kind() Kind { return e.kind }

// Path returns the dotted field path at which the error occurred, e.g.
// "outer.inner.array[3].field".
func (e *Error) Path() string { return e.path }

// Offset returns the byte offset within the top-level frame at which
// the error occurred.
func (e *Error) Offset() int64 { return e.offset }

// Unwrap allows errors.Is/errors.As to reach the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Error() string {
	if e.path == "" {
		return fmt.Sprintf("%s at offset %d: %s", e.kind, e.offset, e.message)
	}
	return fmt.Sprintf("%s at %s (offset %d): %s", e.kind, e.path, e.offset, e.message)
}

// WithPath returns a copy of the error with the given path segment
// prepended, used to accumulate path context as an error propagates
// outward through recursive unpack/pack calls.
func (e *Error) WithPath(prefix string) *Error {
	cp := *e
	if cp.path == "" {
		cp.path = prefix
	} else {
		cp.path = prefix + "." + cp.path
	}
	return &cp
}

// Augment walks err and, if it is a *Error, returns a copy with prefix
// prepended to its path (its kind is preserved); any other error is
// returned unchanged.
func Augment(err error, prefix string) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.WithPath(prefix)
	}
	return err
}
