package rangemap

import (
	"log"

	"github.com/akmistry/go-util/bitmap"
	"github.com/bits-and-blooms/bitset"
)

type bitmapMapLeaf[V comparable] struct {
	bm    bitmap.Bitmap256
	items *[256]V
}

func (l *bitmapMapLeaf[V]) empty() bool {
	return l.bm.Empty()
}

func (l *bitmapMapLeaf[V]) full() bool {
	return l.bm.Full()
}

func (l *bitmapMapLeaf[V]) has(i int) bool {
	return l.bm.Get(uint8(i))
}

func (l *bitmapMapLeaf[V]) insert(start, length int, value V) {
	for i := start; i < start+length; i++ {
		l.items[i] = value
		l.bm.Set(uint8(i))
	}
}

func (l *bitmapMapLeaf[V]) remove(start, length int) {
	// Bitmap256 has no clear operation, so rebuild the occupancy mask with
	// the removed slots skipped. Stale values are left in |items| since the
	// mask gates every access.
	var bm bitmap.Bitmap256
	for i := 0; i < 256; i++ {
		if i >= start && i < (start+length) {
			continue
		}
		if l.bm.Get(uint8(i)) {
			bm.Set(uint8(i))
		}
	}
	l.bm = bm
}

var _ = (Map[int])((*BitmapMap[int])(nil))

// BitmapMap is a Map storing a value per address, in 256-slot leaves gated
// by an occupancy bitmap. Lookups are O(1) and adds are O(length), but the
// leaf indices grow with the highest address used, so it is only suitable
// for dense, bounded address spaces. The zero value is an empty map ready
// for use.
type BitmapMap[V comparable] struct {
	entries map[uint64]*bitmapMapLeaf[V]

	fullLeafIndex bitset.BitSet
	partLeafIndex bitset.BitSet
}

func NewBitmapMap[V comparable]() *BitmapMap[V] {
	return &BitmapMap[V]{
		entries: make(map[uint64]*bitmapMapLeaf[V]),
	}
}

func (m *BitmapMap[V]) init() {
	if m.entries == nil {
		m.entries = make(map[uint64]*bitmapMapLeaf[V])
	}
}

func (m *BitmapMap[V]) getLeaf(leafIndex uint64) *bitmapMapLeaf[V] {
	m.init()
	return m.entries[leafIndex]
}

func (m *BitmapMap[V]) getOrCreateLeaf(leafIndex uint64) *bitmapMapLeaf[V] {
	m.init()
	l := m.entries[leafIndex]
	if l == nil {
		l = &bitmapMapLeaf[V]{items: new([256]V)}
		m.entries[leafIndex] = l
	}

	return l
}

func (m *BitmapMap[V]) Add(offset, length uint64, value V) {
	checkArgs(offset, length)

	end := offset + length
	for offset < end {
		leafIndex := offset >> 8
		leaf := m.getOrCreateLeaf(leafIndex)

		leafCount := 256 - (offset & 0xFF)
		if leafCount > (end - offset) {
			leafCount = end - offset
		}
		if leaf.empty() {
			m.partLeafIndex.Set(uint(leafIndex))
		}
		leaf.insert(int(offset&0xFF), int(leafCount), value)
		offset += leafCount

		if leaf.full() {
			m.fullLeafIndex.Set(uint(leafIndex))
		}
	}
}

func (m *BitmapMap[V]) Remove(offset, length uint64) {
	checkArgs(offset, length)

	end := offset + length
	for offset < end {
		leafIndex := offset >> 8
		leafCount := 256 - (offset & 0xFF)
		if leafCount > (end - offset) {
			leafCount = end - offset
		}

		leaf := m.getLeaf(leafIndex)
		if leaf != nil {
			wasFull := leaf.full()
			leaf.remove(int(offset&0xFF), int(leafCount))
			if wasFull {
				m.fullLeafIndex.Clear(uint(leafIndex))
			}
			if leaf.empty() {
				delete(m.entries, leafIndex)
				m.partLeafIndex.Clear(uint(leafIndex))
			}
		}
		offset += leafCount
	}
}

func (m *BitmapMap[V]) Get(offset uint64) (value V, ok bool) {
	leaf := m.getLeaf(offset >> 8)
	if leaf == nil {
		return
	}
	if !leaf.has(int(offset & 0xFF)) {
		return
	}
	return leaf.items[uint8(offset)], true
}

func (m *BitmapMap[V]) GetWithRange(offset uint64) (r RangeValue[V], ok bool) {
	value, ok := m.Get(offset)
	if !ok {
		return RangeValue[V]{}, false
	}

	start := offset
	for start > 0 {
		v, ok := m.Get(start - 1)
		if !ok || v != value {
			break
		}
		start--
	}
	end := offset + 1
	for end != 0 {
		v, ok := m.Get(end)
		if !ok || v != value {
			break
		}
		end++
	}

	r = RangeValue[V]{
		Range: Range{Offset: start, Length: end - start},
		Value: value,
	}
	return r, true
}

func (m *BitmapMap[V]) nextSet(offset uint64) (uint64, bool) {
	leaf := m.getLeaf(offset >> 8)
	if leaf != nil {
		next := leaf.bm.FindNextSet(uint8(offset))
		if next < 256 {
			return (offset & ^uint64(0xFF)) + uint64(next), true
		}
	}

	nextPartial, ok := m.partLeafIndex.NextSet(uint(offset>>8) + 1)
	if !ok {
		return 0, false
	}

	leaf = m.entries[uint64(nextPartial)]
	if leaf == nil {
		log.Panicf("missing leaf: %d", nextPartial)
	}
	return (uint64(nextPartial) << 8) + uint64(leaf.bm.FindFirstSet()), true
}

func (m *BitmapMap[V]) Overlaps(offset, length uint64) bool {
	if length == 0 {
		return false
	}
	checkArgs(offset, length)

	next, ok := m.nextSet(offset)
	return ok && next < (offset+length)
}

func (m *BitmapMap[V]) Iterate(start uint64, iter func(RangeValue[V]) bool) {
	off := start
	var r RangeValue[V]
	for {
		leaf := m.getLeaf(off >> 8)
		if leaf == nil {
			next, ok := m.nextSet(off)
			if !ok {
				break
			}
			off = next
			continue
		}

		for j := int(off & 0xFF); j < 256; j++ {
			if !leaf.has(j) {
				off++
				continue
			}
			v := leaf.items[j]
			if r.Length > 0 && r.Value == v && (r.Offset+r.Length) == off {
				// Coalesce consecutive entries
				r.Length++
			} else {
				// New range. First give the current one.
				if r.Length > 0 && !iter(r) {
					r.Length = 0
					return
				}
				r.Offset = off
				r.Length = 1
				r.Value = v
			}
			off++
		}
	}
	if r.Length > 0 {
		iter(r)
	}
}
