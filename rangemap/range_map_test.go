package rangemap

import (
	"math/rand"
	"testing"
)

type testRangeMap = Map[int]

func fillRandom(m testRangeMap, values []int, iterations int) {
	const MaxLength = 1000
	for i := 1; i < iterations; i++ {
		off := uint64(rand.Int63n(int64(len(values) - MaxLength)))
		length := uint64(rand.Int63n(MaxLength) + 1)
		m.Add(off, length, i)
		for j := uint64(0); j < length; j++ {
			values[off+j] = i
		}
	}
}

func checkAgainstModel(t *testing.T, m testRangeMap, values []int) {
	t.Helper()
	for j, v := range values {
		gv, ok := m.Get(uint64(j))
		if v == 0 {
			if ok {
				t.Errorf("Get(%d) expected !ok", j)
			}
		} else {
			if !ok || gv != v {
				t.Errorf("Get(%d) (%d, %v) != (%d, true)", j, gv, ok, v)
			}
		}
	}
}

func testAddGet(t *testing.T, m testRangeMap) {
	const RangeLength = 100000
	values := make([]int, RangeLength)

	const MaxLength = 1000
	const Iterations = 100
	for i := 1; i < Iterations; i++ {
		off := uint64(rand.Int63n(RangeLength - MaxLength))
		length := uint64(rand.Int63n(MaxLength) + 1)
		m.Add(off, length, i)
		for j := uint64(0); j < length; j++ {
			values[off+j] = i
		}

		checkAgainstModel(t, m, values)
	}
}

func TestExtentMap_AddGet(t *testing.T) {
	var m ExtentMap[int]
	testAddGet(t, &m)
}

func TestBitmapMap_AddGet(t *testing.T) {
	var m BitmapMap[int]
	testAddGet(t, &m)
}

func testAddRemove(t *testing.T, m testRangeMap) {
	const RangeLength = 100000
	values := make([]int, RangeLength)

	const MaxLength = 1000
	const Iterations = 200
	for i := 1; i < Iterations; i++ {
		off := uint64(rand.Int63n(RangeLength - MaxLength))
		length := uint64(rand.Int63n(MaxLength) + 1)
		if i%3 == 0 {
			m.Remove(off, length)
			for j := uint64(0); j < length; j++ {
				values[off+j] = 0
			}
		} else {
			m.Add(off, length, i)
			for j := uint64(0); j < length; j++ {
				values[off+j] = i
			}
		}

		checkAgainstModel(t, m, values)
	}

	// Removing an unstored range is a no-op.
	m.Remove(RangeLength*2, 1000)
	checkAgainstModel(t, m, values)
}

func TestExtentMap_AddRemove(t *testing.T) {
	var m ExtentMap[int]
	testAddRemove(t, &m)
}

func TestBitmapMap_AddRemove(t *testing.T) {
	var m BitmapMap[int]
	testAddRemove(t, &m)
}

func testRemoveSplit(t *testing.T, m testRangeMap) {
	m.Add(100, 100, 1)
	m.Remove(140, 20)

	r, ok := m.GetWithRange(100)
	if !ok || r.Offset != 100 || r.Length != 40 || r.Value != 1 {
		t.Errorf("GetWithRange(100) (%+v, %v), expected [100, 140) -> 1", r, ok)
	}
	r, ok = m.GetWithRange(199)
	if !ok || r.Offset != 160 || r.Length != 40 || r.Value != 1 {
		t.Errorf("GetWithRange(199) (%+v, %v), expected [160, 200) -> 1", r, ok)
	}
	if _, ok := m.Get(150); ok {
		t.Errorf("Get(150) expected !ok")
	}
}

func TestExtentMap_RemoveSplit(t *testing.T) {
	var m ExtentMap[int]
	testRemoveSplit(t, &m)
}

func TestBitmapMap_RemoveSplit(t *testing.T) {
	var m BitmapMap[int]
	testRemoveSplit(t, &m)
}

func testGetWithRange(t *testing.T, m testRangeMap) {
	const RangeLength = 10000
	values := make([]int, RangeLength)
	fillRandom(m, values, 50)

	for j, v := range values {
		r, ok := m.GetWithRange(uint64(j))
		if v == 0 {
			if ok {
				t.Errorf("GetWithRange(%d) expected !ok", j)
			}
			continue
		}
		if !ok {
			t.Errorf("GetWithRange(%d) expected ok", j)
			continue
		}
		// Expect the maximal run of |v| containing j. Values are unique per
		// Add, so the run is exactly the stored entry.
		start := j
		for start > 0 && values[start-1] == v {
			start--
		}
		end := j + 1
		for end < RangeLength && values[end] == v {
			end++
		}
		if r.Offset != uint64(start) || r.Length != uint64(end-start) || r.Value != v {
			t.Errorf("GetWithRange(%d) %+v != ([%d, %d), %d)", j, r, start, end, v)
		}
	}
}

func TestExtentMap_GetWithRange(t *testing.T) {
	var m ExtentMap[int]
	testGetWithRange(t, &m)
}

func TestBitmapMap_GetWithRange(t *testing.T) {
	var m BitmapMap[int]
	testGetWithRange(t, &m)
}

func testOverlaps(t *testing.T, m testRangeMap) {
	if m.Overlaps(0, 1000) {
		t.Errorf("Overlaps(0, 1000) on empty map")
	}

	const RangeLength = 10000
	values := make([]int, RangeLength)
	fillRandom(m, values, 50)

	const Queries = 1000
	for i := 0; i < Queries; i++ {
		off := uint64(rand.Int63n(RangeLength))
		length := uint64(rand.Int63n(500))

		expected := false
		for j := off; j < off+length && j < RangeLength; j++ {
			if values[j] != 0 {
				expected = true
				break
			}
		}
		if got := m.Overlaps(off, length); got != expected {
			t.Errorf("Overlaps(%d, %d) %v != %v", off, length, got, expected)
		}
	}

	if m.Overlaps(RangeLength, 1000) {
		t.Errorf("Overlaps(%d, 1000) past all entries", RangeLength)
	}
}

func TestExtentMap_Overlaps(t *testing.T) {
	var m ExtentMap[int]
	testOverlaps(t, &m)
}

func TestBitmapMap_Overlaps(t *testing.T) {
	var m BitmapMap[int]
	testOverlaps(t, &m)
}

func testIterate(t *testing.T, m testRangeMap) {
	const RangeLength = 10000
	values := make([]int, RangeLength)
	fillRandom(m, values, 10)

	for start := range values {
		prevEnd := uint64(0)
		valueCount := uint64(0)
		m.Iterate(uint64(start), func(r RangeValue[int]) bool {
			if r.Offset < uint64(start) {
				t.Errorf("Offset %d < start %d", r.Offset, start)
			}
			if r.Offset < prevEnd {
				t.Errorf("Offset %d < prevEnd %d", r.Offset, prevEnd)
			}

			for i := r.Offset; i < r.End(); i++ {
				if values[i] != r.Value {
					t.Errorf("values[%d] %d != r.Value %d", i, values[i], r.Value)
				}
			}

			prevEnd = r.Offset + r.Length
			valueCount += r.Length
			return true
		})

		actualValues := uint64(0)
		for i := start; i < RangeLength; i++ {
			if values[i] != 0 {
				actualValues++
			}
		}
		if valueCount != actualValues {
			t.Errorf("valueCount %d != actual %d", valueCount, actualValues)
		}
	}
}

func TestExtentMap_Iterate(t *testing.T) {
	var m ExtentMap[int]
	testIterate(t, &m)
}

func TestBitmapMap_Iterate(t *testing.T) {
	var m BitmapMap[int]
	testIterate(t, &m)
}

func testIterateStop(t *testing.T, m testRangeMap) {
	m.Add(0, 10, 1)
	m.Add(20, 10, 2)
	m.Add(40, 10, 3)

	count := 0
	m.Iterate(0, func(r RangeValue[int]) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Errorf("Iterate visited %d ranges, expected 2", count)
	}
}

func TestExtentMap_IterateStop(t *testing.T) {
	var m ExtentMap[int]
	testIterateStop(t, &m)
}

func TestBitmapMap_IterateStop(t *testing.T) {
	var m BitmapMap[int]
	testIterateStop(t, &m)
}

func benchmarkGet(b *testing.B, m testRangeMap) {
	const RangeLength = 1000000
	values := make([]int, RangeLength)

	const MaxLength = 1000
	const Iterations = 1000
	for i := 1; i < Iterations; i++ {
		off := uint64(rand.Int63n(RangeLength - MaxLength))
		length := uint64(rand.Int63n(MaxLength) + 1)
		m.Add(off, length, i)
		for j := uint64(0); j < length; j++ {
			values[off+j] = i
		}
	}

	randOffsets := make([]uint64, b.N)
	for i := range randOffsets {
		randOffsets[i] = uint64(rand.Int63n(RangeLength))
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m.Get(randOffsets[i])
	}
}

func BenchmarkExtentMap_Get(b *testing.B) {
	var m ExtentMap[int]
	benchmarkGet(b, &m)
}

func BenchmarkBitmapMap_Get(b *testing.B) {
	var m BitmapMap[int]
	benchmarkGet(b, &m)
}

func benchmarkAdd(b *testing.B, m testRangeMap) {
	const RangeLength = 1000000
	const MaxLength = 512

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		off := uint64(rand.Int63n(RangeLength - MaxLength))
		length := uint64(rand.Int63n(MaxLength) + 1)
		m.Add(off, length, i+1)
	}
}

func BenchmarkExtentMap_Add(b *testing.B) {
	var m ExtentMap[int]
	benchmarkAdd(b, &m)
}

func BenchmarkBitmapMap_Add(b *testing.B) {
	var m BitmapMap[int]
	benchmarkAdd(b, &m)
}
