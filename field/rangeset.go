// Package field implements the recursive field type system: field
// classes (schema nodes), concrete field values, integer range sets
// used by enumeration mappings and variant selectors, and field paths
// that address one schema node relative to a root scope.
package field

import (
	"github.com/antmicro/libbtrace/errors"
)

// SignedRange is an inclusive range of signed 64-bit values.
type SignedRange struct {
	Lower int64
	Upper int64
}

// Contains reports whether v falls within the range.
func (r SignedRange) Contains(v int64) bool {
	return v >= r.Lower && v <= r.Upper
}

// UnsignedRange is an inclusive range of unsigned 64-bit values.
type UnsignedRange struct {
	Lower uint64
	Upper uint64
}

// Contains reports whether v falls within the range.
func (r UnsignedRange) Contains(v uint64) bool {
	return v >= r.Lower && v <= r.Upper
}

// SignedRangeSet is an immutable, non-empty set of signed ranges.
type SignedRangeSet struct {
	ranges []SignedRange
}

// NewSignedRangeSet validates the ranges (non-empty set, each
// lower <= upper) and returns the set.
func NewSignedRangeSet(ranges ...SignedRange) (*SignedRangeSet, error) {
	if len(ranges) == 0 {
		return nil, errors.Invalidf("range set is empty")
	}
	for _, r := range ranges {
		if r.Lower > r.Upper {
			return nil, errors.Invalidf("range lower bound %d is greater than its upper bound %d", r.Lower, r.Upper)
		}
	}
	out := make([]SignedRange, len(ranges))
	copy(out, ranges)
	return &SignedRangeSet{ranges: out}, nil
}

// Len returns the number of ranges in the set.
func (s *SignedRangeSet) Len() int { return len(s.ranges) }

// Ranges returns a copy of the ranges.
func (s *SignedRangeSet) Ranges() []SignedRange {
	out := make([]SignedRange, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Contains reports whether any range in the set contains v.
func (s *SignedRangeSet) Contains(v int64) bool {
	for _, r := range s.ranges {
		if r.Contains(v) {
			return true
		}
	}
	return false
}

// Equal reports set equality: same ranges regardless of order.
func (s *SignedRangeSet) Equal(other *SignedRangeSet) bool {
	if other == nil || len(s.ranges) != len(other.ranges) {
		return false
	}
	for _, r := range s.ranges {
		found := false
		for _, o := range other.ranges {
			if r == o {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// UnsignedRangeSet is an immutable, non-empty set of unsigned ranges.
type UnsignedRangeSet struct {
	ranges []UnsignedRange
}

// NewUnsignedRangeSet validates the ranges (non-empty set, each
// lower <= upper) and returns the set.
func NewUnsignedRangeSet(ranges ...UnsignedRange) (*UnsignedRangeSet, error) {
	if len(ranges) == 0 {
		return nil, errors.Invalidf("range set is empty")
	}
	for _, r := range ranges {
		if r.Lower > r.Upper {
			return nil, errors.Invalidf("range lower bound %d is greater than its upper bound %d", r.Lower, r.Upper)
		}
	}
	out := make([]UnsignedRange, len(ranges))
	copy(out, ranges)
	return &UnsignedRangeSet{ranges: out}, nil
}

// Len returns the number of ranges in the set.
func (s *UnsignedRangeSet) Len() int { return len(s.ranges) }

// Ranges returns a copy of the ranges.
func (s *UnsignedRangeSet) Ranges() []UnsignedRange {
	out := make([]UnsignedRange, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Contains reports whether any range in the set contains v.
func (s *UnsignedRangeSet) Contains(v uint64) bool {
	for _, r := range s.ranges {
		if r.Contains(v) {
			return true
		}
	}
	return false
}

// Equal reports set equality: same ranges regardless of order.
func (s *UnsignedRangeSet) Equal(other *UnsignedRangeSet) bool {
	if other == nil || len(s.ranges) != len(other.ranges) {
		return false
	}
	for _, r := range s.ranges {
		found := false
		for _, o := range other.ranges {
			if r == o {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func unsignedRangesOverlap(a, b *UnsignedRangeSet) bool {
	for _, ra := range a.ranges {
		for _, rb := range b.ranges {
			if ra.Lower <= rb.Upper && rb.Lower <= ra.Upper {
				return true
			}
		}
	}
	return false
}
