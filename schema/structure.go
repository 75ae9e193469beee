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
	log "github.com/sirupsen/logrus"

	"github.com/hpe-forks/framewire/ferr"
)

// Structure is an immutable, declaration-time-validated ordered
// sequence of named slots -- the metamodel of original §3. It is safe
// for concurrent use by distinct Frame instances once built.
type Structure struct {
	Name         string
	Slots        []*Field
	BitProviders []*BitProviderSpec

	indexOf          map[string]int
	bitProviderIndex map[string]*BitProviderSpec
	greedyIndex      int // -1 if none
	// fixedSuffixAfter is the sum, in bytes, of the fixed-width extents
	// of every slot strictly after the greedy slot, zero when there is
	// none (the unpacker uses it to pin the end of the greedy region:
	// remaining - fixedSuffixAfter).
	fixedSuffixAfter int
}

// IndexOf returns the declared position of the named slot.
func (s *Structure) IndexOf(name string) (int, bool) {
	i, ok := s.indexOf[name]
	return i, ok
}

// Slot returns the named slot.
func (s *Structure) Slot(name string) (*Field, bool) {
	i, ok := s.indexOf[name]
	if !ok {
		return nil, false
	}
	return s.Slots[i], true
}

// HasGreedy reports whether this Structure declares a greedy slot, and
// its index.
func (s *Structure) HasGreedy() (int, bool) {
	if s.greedyIndex < 0 {
		return 0, false
	}
	return s.greedyIndex, true
}

// FixedSuffixAfterGreedy returns the total byte width of every slot
// that follows the greedy slot (zero if there is no greedy slot or
// nothing follows it).
func (s *Structure) FixedSuffixAfterGreedy() int {
	return s.fixedSuffixAfter
}

// FixedSize returns the total byte width of s when every slot is fixed
// (no bounded or greedy slots), and false otherwise. Used to decide
// whether a DispatchTarget's mapped structures can all be resolved
// without a byte-length provider, and by the Framer to validate
// count-sized FieldArray elements.
func (s *Structure) FixedSize() (int, bool) {
	total := 0
	for _, f := range s.Slots {
		if f.ExtentHint() != ExtentFixed {
			return 0, false
		}
		total += f.FixedWidth()
	}
	return total, true
}

// IsLengthDeterminableFromPrefix reports whether total frame length is
// computable from the decoded prefix alone (a framer construction
// requirement, original §4.6): true exactly when the structure has no
// greedy slot, the same condition framer.New enforces.
func (s *Structure) IsLengthDeterminableFromPrefix() bool {
	_, has := s.HasGreedy()
	return !has
}

// build validates I1-I6 and computes derived metadata. Declaration
// errors are logged at Warn (matching the corpus's "log before
// returning fatal construction errors" texture, e.g. go-corset's
// schema validation paths) before being returned to the caller.
func build(name string, slots []*Field, bitProviders []*BitProviderSpec) (*Structure, error) {
	s := &Structure{
		Name:             name,
		Slots:            slots,
		BitProviders:     bitProviders,
		indexOf:          make(map[string]int, len(slots)),
		bitProviderIndex: make(map[string]*BitProviderSpec, len(bitProviders)),
		greedyIndex:      -1,
	}

	if err := s.index(); err != nil {
		return nil, s.fail(err)
	}
	if err := s.checkGreedy(); err != nil {
		return nil, s.fail(err)
	}
	if err := s.checkProviders(); err != nil {
		return nil, s.fail(err)
	}
	if err := s.checkBitRecords(); err != nil {
		return nil, s.fail(err)
	}
	if err := s.checkForwardRefs(); err != nil {
		return nil, s.fail(err)
	}
	s.computeFixedSuffix()

	return s, nil
}

func (s *Structure) fail(err error) error {
	log.WithFields(log.Fields{"structure": s.Name}).Warn(err.Error())
	return err
}

func (s *Structure) index() error {
	for i, f := range s.Slots {
		if _, dup := s.indexOf[f.Name]; dup {
			return ferr.New(ferr.DeclarationError, s.Name+"."+f.Name, 0,
				"duplicate slot name %q", f.Name)
		}
		s.indexOf[f.Name] = i
	}
	for _, bp := range s.BitProviders {
		if _, dup := s.bitProviderIndex[bp.Key()]; dup {
			return ferr.New(ferr.DeclarationError, s.Name+"."+bp.Key(), 0,
				"duplicate bit provider %q", bp.Key())
		}
		s.bitProviderIndex[bp.Key()] = bp
	}
	return nil
}

// checkGreedy enforces I1 (at most one greedy slot) and the design
// requirement that a greedy slot's suffix be entirely fixed-width, so
// the unpacker can "pin" the end of the greedy region.
func (s *Structure) checkGreedy() error {
	for i, f := range s.Slots {
		if f.ExtentHint() != ExtentGreedy {
			continue
		}
		if s.greedyIndex >= 0 {
			return ferr.New(ferr.DeclarationError, s.Name, 0,
				"structure declares more than one greedy slot (%q and %q)",
				s.Slots[s.greedyIndex].Name, f.Name)
		}
		s.greedyIndex = i
	}

	if s.greedyIndex < 0 {
		return nil
	}

	for _, f := range s.Slots[s.greedyIndex+1:] {
		if f.ExtentHint() != ExtentFixed {
			return ferr.New(ferr.DeclarationError, s.Name, 0,
				"slot %q follows greedy slot %q but is not fixed-width",
				f.Name, s.Slots[s.greedyIndex].Name)
		}
	}

	return nil
}

// checkProviders enforces I2: every LengthField/DispatchField provider
// has exactly one consumer, appearing after it in wire order, and
// every variable consumer that names a provider resolves to a real,
// strictly-earlier provider slot.
func (s *Structure) checkProviders() error {
	// A DispatchTarget consumer may legitimately have two providers at
	// once: a LengthField supplying its byte extent and a DispatchField
	// supplying its structure selection. Uniqueness is enforced per
	// provider kind, not across both.
	consumedLength := map[string]bool{}
	consumedDispatch := map[string]bool{}

	for i, f := range s.Slots {
		consumerName, isProvider := f.consumerName()
		if !isProvider {
			continue
		}

		consumerIdx, ok := s.indexOf[consumerName]
		if !ok {
			return ferr.New(ferr.DeclarationError, s.Name+"."+f.Name, 0,
				"provider references unknown consumer %q", consumerName)
		}
		if consumerIdx <= i {
			return ferr.New(ferr.DeclarationError, s.Name+"."+f.Name, 0,
				"consumer %q does not appear after provider", consumerName)
		}

		consumed := consumedLength
		if f.Kind == KindDispatchField {
			consumed = consumedDispatch
		}
		if consumed[consumerName] {
			return ferr.New(ferr.DeclarationError, s.Name+"."+f.Name, 0,
				"consumer %q has more than one provider of the same kind", consumerName)
		}
		consumed[consumerName] = true
	}

	// A BitRecord sub-field exposed as a length provider (spec §3) plays
	// the same length-kind role as a LengthField, just without its own
	// slot: the uniqueness check is shared with consumedLength above.
	for _, bp := range s.BitProviders {
		ownerIdx, ok := s.indexOf[bp.BitRecord]
		if !ok {
			return ferr.New(ferr.DeclarationError, s.Name+"."+bp.Key(), 0,
				"bit provider references unknown bit record %q", bp.BitRecord)
		}
		owner := s.Slots[ownerIdx]
		if owner.Kind != KindBitRecord {
			return ferr.New(ferr.DeclarationError, s.Name+"."+bp.Key(), 0,
				"%q is not a bit record", bp.BitRecord)
		}
		if _, ok := owner.BitSpec.ByName(bp.SubField); !ok {
			return ferr.New(ferr.DeclarationError, s.Name+"."+bp.Key(), 0,
				"bit record %q has no sub-field %q", bp.BitRecord, bp.SubField)
		}

		consumerIdx, ok := s.indexOf[bp.Consumer]
		if !ok {
			return ferr.New(ferr.DeclarationError, s.Name+"."+bp.Key(), 0,
				"provider references unknown consumer %q", bp.Consumer)
		}
		if consumerIdx <= ownerIdx {
			return ferr.New(ferr.DeclarationError, s.Name+"."+bp.Key(), 0,
				"consumer %q does not appear after bit record %q", bp.Consumer, bp.BitRecord)
		}

		if consumedLength[bp.Consumer] {
			return ferr.New(ferr.DeclarationError, s.Name+"."+bp.Key(), 0,
				"consumer %q has more than one provider of the same kind", bp.Consumer)
		}
		consumedLength[bp.Consumer] = true
	}

	for _, f := range s.Slots {
		var provider string
		switch f.Kind {
		case KindPayload:
			provider = f.Payload.LengthProvider
		case KindSubstructure:
			provider = f.Substructure.LengthProvider
		case KindDispatchTarget:
			provider = f.DispatchTarget.LengthProvider
		case KindFieldArray:
			if f.FieldArray.Greedy {
				continue
			}
			provider = f.FieldArray.LengthProvider
			if provider == "" {
				provider = f.FieldArray.CountProvider
			}
		default:
			continue
		}
		if provider == "" {
			continue // greedy consumer, no provider required
		}

		if bp, ok := s.bitProviderIndex[provider]; ok {
			if s.indexOf[bp.BitRecord] >= s.indexOf[f.Name] {
				return ferr.New(ferr.DeclarationError, s.Name+"."+f.Name, 0,
					"provider %q does not appear before consumer", provider)
			}
			continue
		}

		pIdx, ok := s.indexOf[provider]
		if !ok {
			return ferr.New(ferr.DeclarationError, s.Name+"."+f.Name, 0,
				"names unknown provider %q", provider)
		}
		if pIdx >= s.indexOf[f.Name] {
			return ferr.New(ferr.DeclarationError, s.Name+"."+f.Name, 0,
				"provider %q does not appear before consumer", provider)
		}
	}

	return nil
}

func (s *Structure) checkBitRecords() error {
	for _, f := range s.Slots {
		if f.Kind == KindBitRecord {
			if err := f.BitSpec.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkForwardRefs enforces I5/I6: a Condition's or Dependent's
// DependsOn names must all resolve to strictly-earlier slots.
func (s *Structure) checkForwardRefs() error {
	for i, f := range s.Slots {
		if f.Condition != nil {
			if err := s.checkDeps(f.Name, i, f.Condition.DependsOn); err != nil {
				return err
			}
		}
		if f.Dependent != nil {
			if err := s.checkDeps(f.Name, i, f.Dependent.DependsOn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Structure) checkDeps(fieldName string, idx int, deps []string) error {
	for _, dep := range deps {
		depIdx, ok := s.indexOf[dep]
		if !ok {
			return ferr.New(ferr.DeclarationError, s.Name+"."+fieldName, 0,
				"condition/dependent references unknown slot %q", dep)
		}
		if depIdx >= idx {
			return ferr.New(ferr.DeclarationError, s.Name+"."+fieldName, 0,
				"condition/dependent references slot %q which is not strictly earlier", dep)
		}
	}
	return nil
}

func (s *Structure) computeFixedSuffix() {
	if s.greedyIndex < 0 {
		return
	}
	total := 0
	for _, f := range s.Slots[s.greedyIndex+1:] {
		total += f.FixedWidth()
	}
	s.fixedSuffixAfter = total
}
