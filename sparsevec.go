// Package sparsevec implements a sparse, range-indexed container over a
// 64-bit address space. Only the sub-ranges that have actually been written
// are stored; contiguous writes are coalesced into a single block, and
// overlapping writes resolve last-write-wins while preserving the
// non-overlapping portions of older writes.
//
// The container is intended as the in-memory representation of a partially
// known address space, e.g. memory captured incrementally from a live
// process or snapshot, where regions arrive in arbitrary order and size.
//
// A Vec is not safe for concurrent use.
package sparsevec

import (
	"errors"
	"log"
	"slices"

	"github.com/akmistry/sparsevec/rangemap"
)

var ErrAddressOverflow = errors.New("sparsevec: address range overflows uint64")

type block[T any] struct {
	r   rangemap.Range
	buf []T
}

// Vec is a sparse vector of T, indexed by a 64-bit address. Stored ranges
// never overlap and are never adjacent (touching ranges are merged on
// insert). The zero value is an empty Vec using an ExtentMap index.
type Vec[T any] struct {
	index  rangemap.Map[uint64]
	blocks map[uint64]*block[T]

	// Block keys are allocated from this counter and never reused.
	nextKey uint64
}

// New returns an empty Vec backed by a rangemap.ExtentMap.
func New[T any]() *Vec[T] {
	return NewWithIndex[T](&rangemap.ExtentMap[uint64]{})
}

// NewWithIndex returns an empty Vec using |index|, which must be empty.
// Use this to substitute a rangemap.BitmapMap for dense, bounded address
// spaces.
func NewWithIndex[T any](index rangemap.Map[uint64]) *Vec[T] {
	return &Vec[T]{
		index:  index,
		blocks: make(map[uint64]*block[T]),
	}
}

func (v *Vec[T]) init() {
	if v.index == nil {
		v.index = &rangemap.ExtentMap[uint64]{}
	}
	if v.blocks == nil {
		v.blocks = make(map[uint64]*block[T])
	}
}

func (v *Vec[T]) addBlock(r rangemap.Range, buf []T) uint64 {
	key := v.nextKey
	v.nextKey++
	v.index.Add(r.Offset, r.Length, key)
	v.blocks[key] = &block[T]{r: r, buf: buf}
	return key
}

// resizeBlock shrinks a block's buffer to match its current index range.
// Ranges only ever shrink under overlap resolution, so |r| is always a
// sub-range of the block's recorded range.
func (v *Vec[T]) resizeBlock(key uint64, r rangemap.Range) {
	b := v.blocks[key]
	if b.r == r {
		return
	}
	start := r.Offset - b.r.Offset
	if start != 0 {
		copy(b.buf, b.buf[start:start+r.Length])
	}
	b.buf = b.buf[:r.Length]
	b.r = r
}

// mergeBlocks merges |hi| into |lo|, where lo.End() == hi.Offset. The
// lower block's key survives.
func (v *Vec[T]) mergeBlocks(lo, hi rangemap.RangeValue[uint64]) rangemap.RangeValue[uint64] {
	loBlock := v.blocks[lo.Value]
	hiBlock := v.blocks[hi.Value]
	loBlock.buf = append(loBlock.buf, hiBlock.buf...)
	loBlock.r.Length += hi.Length
	delete(v.blocks, hi.Value)
	// Re-adding the combined range clips away both old index entries.
	v.index.Add(loBlock.r.Offset, loBlock.r.Length, lo.Value)
	return rangemap.RangeValue[uint64]{Range: loBlock.r, Value: lo.Value}
}

func (v *Vec[T]) collectGarbage() {
	used := make(map[uint64]struct{}, len(v.blocks))
	v.index.Iterate(0, func(e rangemap.RangeValue[uint64]) bool {
		used[e.Value] = struct{}{}
		return true
	})
	for key := range v.blocks {
		if _, ok := used[key]; !ok {
			delete(v.blocks, key)
		}
	}
}

// Insert stores a copy of |data| at [addr, addr+len(data)). New data wins
// over any previously stored overlapping range, element by element; the
// non-overlapping remainder of older blocks is preserved. Blocks that end
// up touching are merged. An empty |data| is a no-op. Returns
// ErrAddressOverflow if the range would wrap the address space.
//
// Insert invalidates all views previously returned by Get or GetMut.
func (v *Vec[T]) Insert(data []T, addr uint64) error {
	if len(data) == 0 {
		return nil
	}
	length := uint64(len(data))
	if addr+length < addr {
		return ErrAddressOverflow
	}
	v.init()

	insEnd := addr + length

	// If a stored block extends strictly past the end of the new range, the
	// index's clipping below would split its entry in two, with both halves
	// sharing the block's key. Carve the tail off into its own block first.
	// A lower remainder needs no such handling: clipping truncates the
	// entry in place, and the resync below shrinks the buffer to match.
	if e, ok := v.index.GetWithRange(addr); ok && e.End() > insEnd {
		b := v.blocks[e.Value]
		tail := rangemap.Range{Offset: insEnd, Length: e.End() - insEnd}
		v.addBlock(tail, slices.Clone(b.buf[insEnd-b.r.Offset:]))
	}

	// Raw insert. The index clips away everything the new range overlaps.
	newEntry := rangemap.RangeValue[uint64]{
		Range: rangemap.Range{Offset: addr, Length: length},
	}
	newEntry.Value = v.addBlock(newEntry.Range, slices.Clone(data))

	// The clipping above shortens neighbouring index entries without
	// touching their buffers. Bring every block back in sync.
	v.index.Iterate(0, func(e rangemap.RangeValue[uint64]) bool {
		v.resizeBlock(e.Value, e.Range)
		return true
	})

	// No two blocks were adjacent before this insert, so only the new
	// entry's boundaries can have become adjacent to a neighbour.
	cur := newEntry
	if addr > 0 {
		if left, ok := v.index.GetWithRange(addr - 1); ok && left.End() == addr {
			cur = v.mergeBlocks(left, cur)
		}
	}
	if right, ok := v.index.GetWithRange(cur.End()); ok && right.Offset == cur.End() {
		v.mergeBlocks(cur, right)
	}

	// Blocks fully swallowed by the clipping are now unreachable.
	v.collectGarbage()

	return nil
}

func (v *Vec[T]) find(offset, length uint64) ([]T, bool) {
	if v.index == nil {
		return nil, false
	}
	e, ok := v.index.GetWithRange(offset)
	if !ok {
		return nil, false
	}
	if length > e.End()-offset {
		// The requested range extends past the block. Stored blocks are
		// never adjacent, so this is a gap, not a block boundary.
		return nil, false
	}
	b := v.blocks[e.Value]
	start := offset - e.Offset
	return b.buf[start : start+length], true
}

// Get returns a view of the stored elements at [offset, offset+length).
// The lookup fails if any address in the range is unstored. The returned
// slice aliases the block's buffer and must not be modified; it is
// invalidated by the next Insert.
func (v *Vec[T]) Get(offset, length uint64) ([]T, bool) {
	return v.find(offset, length)
}

// GetMut is Get with a writable view: the caller may update elements in
// place without going through Insert. The view must not be held across an
// Insert, which may move or shrink the underlying buffer.
func (v *Vec[T]) GetMut(offset, length uint64) ([]T, bool) {
	return v.find(offset, length)
}

// Overlaps reports whether any stored address lies in
// [offset, offset+length). A zero-length or wrapping query range overlaps
// nothing.
func (v *Vec[T]) Overlaps(offset, length uint64) bool {
	if length == 0 || offset+length < offset || v.index == nil {
		return false
	}
	return v.index.Overlaps(offset, length)
}

// IterateRanges calls iter with every stored range in ascending order,
// until iter returns false. The sequence reflects the state at the time of
// the call; the Vec must not be mutated during iteration.
func (v *Vec[T]) IterateRanges(iter func(rangemap.Range) bool) {
	if v.index == nil {
		return
	}
	v.index.Iterate(0, func(e rangemap.RangeValue[uint64]) bool {
		return iter(e.Range)
	})
}

// StoredLen returns the total number of stored elements across all blocks.
func (v *Vec[T]) StoredLen() int {
	n := 0
	for _, b := range v.blocks {
		n += len(b.buf)
	}
	return n
}

// CheckConsistency panics if the index and block store disagree. It
// rebuilds and cross-checks global state, so it is intended for tests
// (call it after every mutation), not for production paths.
func (v *Vec[T]) CheckConsistency() {
	if v.index == nil {
		if len(v.blocks) != 0 {
			log.Panicf("%d blocks with no index", len(v.blocks))
		}
		return
	}

	seen := make(map[uint64]rangemap.Range, len(v.blocks))
	prev := rangemap.Range{}
	v.index.Iterate(0, func(e rangemap.RangeValue[uint64]) bool {
		if len(seen) > 0 && e.Offset <= prev.End() {
			log.Panicf("range %+v overlaps or touches %+v", e.Range, prev)
		}
		if other, ok := seen[e.Value]; ok {
			log.Panicf("ranges %+v and %+v share key %d", e.Range, other, e.Value)
		}
		b := v.blocks[e.Value]
		if b == nil {
			log.Panicf("no block for key %d, range %+v", e.Value, e.Range)
		}
		if b.r != e.Range {
			log.Panicf("block range %+v != index range %+v, key %d", b.r, e.Range, e.Value)
		}
		if uint64(len(b.buf)) != e.Length {
			log.Panicf("buffer length %d != range length %d, key %d", len(b.buf), e.Length, e.Value)
		}
		seen[e.Value] = e.Range
		prev = e.Range
		return true
	})

	for key, b := range v.blocks {
		if _, ok := seen[key]; !ok {
			log.Panicf("orphaned block, key %d, range %+v", key, b.r)
		}
	}
}
