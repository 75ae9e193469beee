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

// Package framer implements the Stream Framer (original §4.6): a small
// state machine (HUNT_MAGIC -> SIZING -> DRAIN) that recovers whole
// frames from an arbitrarily chunked byte stream and delivers them to
// a callback, resynchronizing on recoverable per-frame errors.
//
// The teacher (structex) has no stream-oriented counterpart; this
// package is grounded instead on the provider/consumer resolution
// already built for package unpack, applied incrementally a prefix at
// a time, in the spirit of the length-prefixed frame boundary
// detection in other_examples/9b094bdc_mkadit-iso8583__message.go.go.
package framer

import (
	"bytes"

	log "github.com/sirupsen/logrus"

	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/ferr"
	"github.com/hpe-forks/framewire/frame"
	"github.com/hpe-forks/framewire/schema"
	"github.com/hpe-forks/framewire/unpack"
)

// State is one of the framer's four states.
type State int

const (
	StateHuntMagic State = iota
	StateSizing
	StateDrain
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateHuntMagic:
		return "HUNT_MAGIC"
	case StateSizing:
		return "SIZING"
	case StateDrain:
		return "DRAIN"
	case StateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// DispatchMissPolicy controls how the framer reacts to a DispatchTarget
// key with no mapping entry and no default (original §9 Open Question).
type DispatchMissPolicy int

const (
	// PolicyResyncOnMiss reports UnknownDispatch via the error callback
	// and resynchronizes -- the spec's standardized default.
	PolicyResyncOnMiss DispatchMissPolicy = iota
	// PolicyFatalOnMiss transitions the framer to FATAL instead.
	PolicyFatalOnMiss
)

// OnFrame receives one fully parsed frame.
type OnFrame func(*frame.Frame)

// OnError receives a per-frame recoverable error, or a diagnostic such
// as DiscardedBytes, as the framer resynchronizes.
type OnError func(error)

// DiscardedBytes reports that n bytes were skipped while hunting for
// the sync magic or resynchronizing after an error.
type DiscardedBytes struct{ N int }

func (d DiscardedBytes) Error() string {
	return "discarded " + itoa(d.N) + " bytes while resynchronizing"
}

type options struct {
	maxBuffer    int
	onError      OnError
	logger       *log.Logger
	dispatchMiss DispatchMissPolicy
}

// Option configures a Framer at construction.
type Option func(*options)

// WithMaxBuffer bounds the framer's internal buffer; exceeding it while
// awaiting the sync magic or a frame's remaining bytes is a
// FramerOverflow and transitions to FATAL.
func WithMaxBuffer(n int) Option {
	return func(o *options) { o.maxBuffer = n }
}

// WithErrorHandler installs the per-frame error/diagnostic callback.
func WithErrorHandler(fn OnError) Option {
	return func(o *options) { o.onError = fn }
}

// WithLogger installs a logrus logger for structured diagnostics; nil
// (the default) gives the framer a logger of its own at Warn level,
// separate from logrus's standard logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDispatchMissPolicy overrides the default resync-on-miss behavior
// for a DispatchTarget with no default.
func WithDispatchMissPolicy(p DispatchMissPolicy) Option {
	return func(o *options) { o.dispatchMiss = p }
}

func defaultLogger() *log.Logger {
	l := log.New()
	l.SetLevel(log.WarnLevel)
	return l
}

// Framer incrementally consumes bytes fed via Feed and delivers whole
// frames of structure s to onFrame.
type Framer struct {
	structure *schema.Structure
	onFrame   OnFrame
	opts      options

	buf        []byte
	state      State
	huntsMagic bool
	totalLen   int
}

// New constructs a Framer for structure s. s must have no greedy slot,
// so the total frame length is always determinable from the fixed
// prefix (original §4.6 "Framer requirements on the Structure").
func New(s *schema.Structure, onFrame OnFrame, opts ...Option) (*Framer, error) {
	if _, has := s.HasGreedy(); has {
		return nil, ferr.New(ferr.DeclarationError, s.Name, 0,
			"structure has a greedy slot; stream framer requires total frame length to be determinable from the fixed prefix")
	}
	if err := validateFramable(s); err != nil {
		return nil, err
	}

	o := options{dispatchMiss: PolicyResyncOnMiss}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = defaultLogger()
	}
	if o.onError == nil {
		o.onError = func(error) {}
	}

	f := &Framer{
		structure:  s,
		onFrame:    onFrame,
		opts:       o,
		huntsMagic: len(s.Slots) > 0 && s.Slots[0].Kind == schema.KindMagic,
	}
	if f.huntsMagic {
		f.state = StateHuntMagic
	} else {
		f.state = StateSizing
	}
	return f, nil
}

// validateFramable checks that every count-sized FieldArray among s's
// own top-level slots has a statically fixed-size element structure,
// since a count alone cannot otherwise determine a byte length before
// the bytes arrive. Nested structures are not inspected.
func validateFramable(s *schema.Structure) error {
	for _, f := range s.Slots {
		if f.Kind == schema.KindFieldArray && f.FieldArray.CountProvider != "" {
			if _, ok := f.FieldArray.Element.FixedSize(); !ok {
				return ferr.New(ferr.DeclarationError, s.Name+"."+f.Name, 0,
					"count-sized field array element must be a fixed-size structure for framer use")
			}
		}
	}
	return nil
}

// Feed appends data to the framer's internal buffer and delivers every
// whole frame it can recover, in order, before returning.
func (f *Framer) Feed(data []byte) error {
	f.buf = append(f.buf, data...)

	for {
		switch f.state {
		case StateFatal:
			return ferr.New(ferr.FramerOverflow, f.structure.Name, 0, "framer is in fatal state")

		case StateHuntMagic:
			if !f.huntMagic() {
				if f.state == StateFatal {
					continue
				}
				return nil
			}

		case StateSizing:
			done, err := f.size()
			if err != nil {
				f.resync(err)
				continue
			}
			if !done {
				if f.state == StateFatal {
					continue
				}
				return nil
			}

		case StateDrain:
			delivered, err := f.drain()
			if err != nil {
				f.resync(err)
				continue
			}
			if !delivered {
				if f.state == StateFatal {
					continue
				}
				return nil
			}
		}
	}
}

func (f *Framer) huntMagic() bool {
	magic := f.structure.Slots[0].MagicBytes
	idx := bytes.Index(f.buf, magic)
	if idx < 0 {
		keep := len(magic) - 1
		if keep < 0 {
			keep = 0
		}
		if discard := len(f.buf) - keep; discard > 0 {
			f.discard(discard)
		}
		f.checkOverflow()
		return false
	}

	if idx > 0 {
		f.discard(idx)
	}
	f.state = StateSizing
	return true
}

func (f *Framer) discard(n int) {
	f.opts.logger.WithFields(log.Fields{"bytes": n}).Info("framer discarding bytes while resynchronizing")
	f.buf = f.buf[n:]
	f.opts.onError(DiscardedBytes{N: n})
}

func (f *Framer) checkOverflow() {
	if f.opts.maxBuffer > 0 && len(f.buf) > f.opts.maxBuffer {
		f.opts.logger.WithFields(log.Fields{"buffered": len(f.buf), "max": f.opts.maxBuffer}).
			Warn("framer buffer exceeded maximum")
		f.state = StateFatal
		f.opts.onError(ferr.New(ferr.FramerOverflow, f.structure.Name, 0,
			"buffer of %d bytes exceeds max %d", len(f.buf), f.opts.maxBuffer))
	}
}

// size attempts to compute the total frame length from the fixed
// prefix. done is false if more bytes are needed.
func (f *Framer) size() (bool, error) {
	total, ok, err := computeFrameLength(f.structure, f.buf)
	if err != nil {
		return false, err
	}
	if !ok {
		f.checkOverflow()
		return false, nil
	}
	f.totalLen = total
	f.state = StateDrain
	return true, nil
}

// drain delivers the frame once totalLen bytes have arrived.
func (f *Framer) drain() (bool, error) {
	if len(f.buf) < f.totalLen {
		f.checkOverflow()
		return false, nil
	}

	frameBuf := f.buf[:f.totalLen]
	fr, err := unpack.Unpack(f.structure, frameBuf)
	if err != nil {
		return false, err
	}

	f.buf = f.buf[f.totalLen:]
	f.totalLen = 0
	if f.huntsMagic {
		f.state = StateHuntMagic
	} else {
		f.state = StateSizing
	}

	f.onFrame(fr)
	return true, nil
}

// resync reports a recoverable per-frame error and discards one byte
// before re-entering HUNT_MAGIC/SIZING, per original §4.6.
func (f *Framer) resync(err error) {
	f.opts.logger.WithError(err).Warn("framer resynchronizing after recoverable error")
	f.opts.onError(err)

	if fe, ok := err.(*ferr.Error); ok && fe.Kind() == ferr.UnknownDispatch && f.opts.dispatchMiss == PolicyFatalOnMiss {
		f.state = StateFatal
		return
	}

	if len(f.buf) > 0 {
		f.buf = f.buf[1:]
	}
	f.totalLen = 0
	if f.huntsMagic {
		f.state = StateHuntMagic
	} else {
		f.state = StateSizing
	}
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

// computeFrameLength walks s's fixed prefix, decoding only the
// LengthField and DispatchField providers needed to learn every Bounded
// consumer's byte extent, and sums the total frame length. ok is false if buf does not
// yet contain enough bytes to resolve every provider.
func computeFrameLength(s *schema.Structure, buf []byte) (int, bool, error) {
	cursor := 0
	providerBytes := map[string]int{}
	dispatchKey := map[string]uint64{}

	for _, field := range s.Slots {
		switch field.ExtentHint() {
		case schema.ExtentFixed:
			need := field.FixedWidth()
			if len(buf) < cursor+need {
				return 0, false, nil
			}
			switch field.Kind {
			case schema.KindLengthField:
				raw, _, err := codec.UnpackUint(buf[cursor:], field.Length.Width, field.Length.Endian, field.Name)
				if err != nil {
					return 0, false, err
				}
				logical := int(field.Length.Get(raw))
				providerBytes[field.Length.Consumer] = logical
			case schema.KindDispatchField:
				raw, _, err := codec.UnpackUint(buf[cursor:], field.DispatchField.Width, field.DispatchField.Endian, field.Name)
				if err != nil {
					return 0, false, err
				}
				dispatchKey[field.DispatchField.Consumer] = raw
			}
			cursor += need

		case schema.ExtentBounded:
			n, err := boundedByteLength(field, providerBytes, dispatchKey)
			if err != nil {
				return 0, false, err
			}
			cursor += n

		case schema.ExtentGreedy:
			return 0, false, ferr.New(ferr.DeclarationError, s.Name, 0,
				"greedy slot encountered during framer sizing; should have been rejected at construction")
		}
	}

	return cursor, true, nil
}

func boundedByteLength(field *schema.Field, providerBytes map[string]int, dispatchKey map[string]uint64) (int, error) {
	switch field.Kind {
	case schema.KindPayload, schema.KindSubstructure:
		n, ok := providerBytes[field.Name]
		if !ok {
			return 0, ferr.New(ferr.DeclarationError, field.Name, 0, "no length provider resolved for framer sizing")
		}
		return n, nil
	case schema.KindDispatchTarget:
		if n, ok := providerBytes[field.Name]; ok {
			return n, nil
		}
		// No byte-length provider: resolve the target's width from the
		// already-decoded dispatch key, valid only because ExtentHint
		// only admits Bounded here when every mapped structure is
		// fixed-size.
		key := dispatchKey[field.Name]
		target, ok := field.DispatchTarget.Mapping[key]
		if !ok {
			if field.DispatchTarget.HasDefault {
				target = field.DispatchTarget.Default
			} else {
				return 0, ferr.New(ferr.UnknownDispatch, field.Name, 0,
					"no structure mapped for dispatch key %d", key)
			}
		}
		n, ok := target.FixedSize()
		if !ok {
			return 0, ferr.New(ferr.DeclarationError, field.Name, 0, "dispatch target is not fixed-size and has no length provider")
		}
		return n, nil
	case schema.KindFieldArray:
		if field.FieldArray.LengthProvider != "" {
			n, ok := providerBytes[field.Name]
			if !ok {
				return 0, ferr.New(ferr.DeclarationError, field.Name, 0, "no length provider resolved for framer sizing")
			}
			return n, nil
		}
		elemWidth, ok := field.FieldArray.Element.FixedSize()
		if !ok {
			return 0, ferr.New(ferr.DeclarationError, field.Name, 0, "field array element is not fixed-size")
		}
		count, ok := providerBytes[field.Name]
		if !ok {
			return 0, ferr.New(ferr.DeclarationError, field.Name, 0, "no count provider resolved for framer sizing")
		}
		return count * elemWidth, nil
	default:
		return 0, ferr.New(ferr.DeclarationError, field.Name, 0, "unexpected bounded field kind %v", field.Kind)
	}
}
