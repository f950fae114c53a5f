package rangemap

import (
	"log"

	"github.com/akmistry/go-util/radix-tree"
)

var _ = (Map[int])((*ExtentMap[int])(nil))

// ExtentMap is a Map backed by a radix tree of extents, keyed by range
// start. Suitable for arbitrarily sparse 64-bit address spaces. The zero
// value is an empty map ready for use.
type ExtentMap[V comparable] struct {
	tree radix.Tree
}

func (m *ExtentMap[V]) getByteRange(start, length uint64) []*RangeValue[V] {
	end := start + length
	r := Range{Offset: start, Length: length}

	var items []*RangeValue[V]
	m.tree.DescendLessOrEqualI(end, func(i radix.Item) bool {
		ie := i.(*RangeValue[V])
		if ie.Offset == end {
			return true
		} else if !r.Overlaps(ie.Range) {
			return false
		}
		items = append(items, ie)
		return true
	})
	return items
}

func (m *ExtentMap[V]) Get(offset uint64) (value V, ok bool) {
	m.tree.DescendLessOrEqualI(offset, func(i radix.Item) bool {
		ie := i.(*RangeValue[V])
		if ie.Contains(offset) {
			value = ie.Value
			ok = true
		}
		return false
	})
	return
}

func (m *ExtentMap[V]) GetWithRange(offset uint64) (r RangeValue[V], ok bool) {
	m.tree.DescendLessOrEqualI(offset, func(i radix.Item) bool {
		ie := i.(*RangeValue[V])
		if ie.Contains(offset) {
			r = *ie
			ok = true
		}
		return false
	})
	return
}

func (m *ExtentMap[V]) Overlaps(offset, length uint64) bool {
	if length == 0 {
		return false
	}
	checkArgs(offset, length)

	end := offset + length
	r := Range{Offset: offset, Length: length}
	overlaps := false
	m.tree.DescendLessOrEqualI(end, func(i radix.Item) bool {
		ie := i.(*RangeValue[V])
		if ie.Offset == end {
			// Touching, not overlapping.
			return true
		}
		overlaps = r.Overlaps(ie.Range)
		return false
	})
	return overlaps
}

func (m *ExtentMap[V]) Remove(offset, length uint64) {
	checkArgs(offset, length)
	if length == 0 {
		return
	}

	end := offset + length
	overlaps := m.getByteRange(offset, length)
	for _, ie := range overlaps {
		ieEnd := ie.Offset + ie.Length
		if ie.Offset < offset {
			if ieEnd > end {
				// Old item completely overlaps the removed range.
				// Split into start and end blocks.
				endItem := &RangeValue[V]{
					Range: Range{
						Offset: end,
						Length: ieEnd - end,
					},
					Value: ie.Value,
				}
				old := m.tree.ReplaceOrInsert(endItem)
				if old != nil {
					log.Panicf("unexpected old entry: %+v", old)
				}
			}
			// Truncate the old entry instead of deleting it and inserting a
			// new one
			ie.Length = offset - ie.Offset
			ie = nil
		} else if ieEnd > end {
			newItem := &RangeValue[V]{
				Range: Range{
					Offset: end,
					Length: ieEnd - end,
				},
				Value: ie.Value,
			}
			old := m.tree.ReplaceOrInsert(newItem)
			if old != nil {
				log.Panicf("unexpected old entry: %+v", old)
			}
		}

		if ie != nil && m.tree.Delete(ie) != ie {
			log.Panicf("item not deleted: %+v", ie)
		}
	}
}

func (m *ExtentMap[V]) Add(offset, length uint64, value V) {
	checkArgs(offset, length)
	if length == 0 {
		return
	}

	newItem := &RangeValue[V]{
		Range: Range{Offset: offset, Length: length},
		Value: value,
	}
	// Punch a hole, and put the new item at that hole.
	m.Remove(offset, length)

	old := m.tree.ReplaceOrInsert(newItem)
	if old != nil {
		log.Panicf("unexpected old entry: %+v, adding new entry: %v", old, newItem)
	}
}

func (m *ExtentMap[V]) Iterate(start uint64, iter func(RangeValue[V]) bool) {
	first := start
	if start > 0 {
		m.tree.DescendLessOrEqualI(start, func(i radix.Item) bool {
			ie := i.(*RangeValue[V])
			if ie.Contains(start) {
				first = ie.Offset
			}
			return false
		})
	}

	var r RangeValue[V]
	m.tree.AscendGreaterOrEqualI(first, func(item radix.Item) bool {
		ie := item.(*RangeValue[V])
		if ie.Offset < start {
			r.Offset = start
			r.Length = (ie.Offset + ie.Length) - start
			r.Value = ie.Value
			return true
		}

		if r.Value == ie.Value && ie.Offset == (r.Offset+r.Length) {
			r.Length += ie.Length
		} else {
			if r.Length > 0 && !iter(r) {
				r.Length = 0
				return false
			}
			r = *ie
		}
		return true
	})
	if r.Length > 0 {
		iter(r)
	}
}
