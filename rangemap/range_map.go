// Package rangemap provides ordered mappings from non-overlapping half-open
// ranges of a 64-bit address space to values. Adding a range implicitly
// removes or truncates any existing entries it overlaps.
package rangemap

type Map[V comparable] interface {
	// Add associates [offset, offset+length) with value, removing or
	// truncating any overlapping entries. Truncated entries keep their
	// value. A zero length is a no-op.
	Add(offset, length uint64, value V)
	// Remove clears [offset, offset+length). An entry strictly containing
	// the removed range is split in two, both halves keeping its value.
	Remove(offset, length uint64)

	// Get returns the value of the entry containing offset.
	Get(offset uint64) (value V, ok bool)
	// GetWithRange returns the entry containing offset, with its range.
	GetWithRange(offset uint64) (r RangeValue[V], ok bool)
	// Overlaps reports whether any stored address lies in
	// [offset, offset+length).
	Overlaps(offset, length uint64) bool

	// Iterate calls iter with ascending maximal runs of equal value,
	// starting from the run containing |start| (clamped to start), until
	// iter returns false.
	Iterate(start uint64, iter func(RangeValue[V]) bool)
}

type Range struct {
	Offset, Length uint64
}

func (r *Range) Key() uint64 {
	return r.Offset
}

func (r Range) End() uint64 {
	return r.Offset + r.Length
}

func (r Range) Contains(off uint64) bool {
	return off >= r.Offset && off < (r.Offset+r.Length)
}

func (r Range) Overlaps(other Range) bool {
	return r.Contains(other.Offset) || other.Contains(r.Offset)
}

type RangeValue[V any] struct {
	Range
	Value V
}

func checkArgs(offset, length uint64) {
	if offset+length < offset {
		panic("offset + length overflows uint64")
	}
}
