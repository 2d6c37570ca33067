// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package matches

import (
	"math"
	"testing"

	"github.com/shenwei356/ReadMap/readmap/align"
)

func TestCalculateMatchesToDecode(t *testing.T) {
	type result struct {
		strata int
		total  uint64
		last   uint64
	}
	data := []struct {
		counters                                             []uint64
		maxDecoded, minDecodedStrata, minReported, maxReport uint64
		expected                                             result
	}{
		{[]uint64{3, 5, 8}, 10, 0, 0, math.MaxUint64, result{2, 8, math.MaxUint64}},
		{[]uint64{3, 5, 8, 0, 0}, 10, 0, 0, math.MaxUint64, result{2, 8, math.MaxUint64}},
		{[]uint64{0, 0}, 10, 0, 0, math.MaxUint64, result{0, 0, 0}},
		{[]uint64{3, 5, 8}, 100, 0, 0, math.MaxUint64, result{3, 16, math.MaxUint64}},
		// lowered by the maximum number of reported matches
		{[]uint64{3, 5, 8}, 100, 0, 0, 10, result{2, 8, math.MaxUint64}},
		{[]uint64{3, 5, 8}, 100, 0, 0, 3, result{1, 3, math.MaxUint64}},
		{[]uint64{3, 5, 8}, 100, 0, 0, 2, result{0, 0, 0}},
		// extended by the mandatory strata
		{[]uint64{0, 4, 5, 6}, 3, 2, 0, math.MaxUint64, result{3, 9, math.MaxUint64}},
		// extended by the minimum number of reported matches
		{[]uint64{1, 1, 1, 1}, 1, 0, 3, math.MaxUint64, result{3, 3, math.MaxUint64}},
		// never lowered under the minimum number of reported matches,
		// the last stratum is capped
		{[]uint64{2, 2, 2}, 100, 0, 4, 3, result{2, 4, 1}},
	}
	for i, d := range data {
		counters := Counters(append([]uint64{}, d.counters...))
		strata, total, last := CalculateMatchesToDecode(&counters,
			d.maxDecoded, d.minDecodedStrata, d.minReported, d.maxReport)
		r := result{strata, total, last}
		if r != d.expected {
			t.Errorf("#%d: expected %v, returned %v", i, d.expected, r)
		}

		// pure function of the counters and limits
		strata2, total2, last2 := CalculateMatchesToDecode(&counters,
			d.maxDecoded, d.minDecodedStrata, d.minReported, d.maxReport)
		if (result{strata2, total2, last2}) != r {
			t.Errorf("#%d: calling again returned a different result", i)
		}
	}
}

func addTrace(m *Matches, pos uint64, distance, score int) (int, bool) {
	off := m.Cigars.Start()
	m.Cigars.Append(align.CigarMatch, 50)
	return m.AddTrace(Trace{
		IndexPosition:   pos,
		Distance:        distance,
		EditDistance:    distance,
		EventDistance:   distance,
		Score:           score,
		CigarOffset:     off,
		CigarLength:     m.Cigars.Len() - off,
		EffectiveLength: 50,
	}, true)
}

func TestCounters(t *testing.T) {
	var c Counters
	c.Add(2, 3)
	c.Add(0, 1)
	c.Add(-1, 5)
	if len(c) != 3 || c.Total() != 4 || c.Min() != 0 {
		t.Errorf("unexpected counters: %v", c)
	}

	c.Sub(0, 1)
	c.Sub(2, 5) // more than counted
	c.Sub(7, 1)
	if c.Total() != 0 || c.Min() != -1 {
		t.Errorf("counters should be zero: %v", c)
	}
	if n := c.Compact(); n != 0 {
		t.Errorf("expected 0 strata after compacting, returned %d", n)
	}
}

func TestAddTrace(t *testing.T) {
	m := NewMatches()

	if _, added := addTrace(m, 100, 2, 40); !added {
		t.Errorf("trace should be added")
	}
	// same begin, better
	if i, added := addTrace(m, 100, 1, 45); added || i != 0 {
		t.Errorf("duplicated trace should not be added")
	}
	if m.Traces[0].Distance != 1 {
		t.Errorf("the better trace should be kept")
	}
	// same end, worse
	m.AddTrace(Trace{IndexPosition: 101, Distance: 3, EffectiveLength: 49}, true)
	if len(m.Traces) != 1 || m.Traces[0].Distance != 1 {
		t.Errorf("the worse duplicated trace should be ignored")
	}
	if m.Counters.Get(1) != 1 || m.Counters.Get(2) != 0 || m.Counters.Total() != 1 {
		t.Errorf("unexpected counters: %v", m.Counters)
	}

	addTrace(m, 500, 0, 50)
	if m.Metrics.MinEditDistance != 0 || m.Metrics.Min2EditDistance != 1 {
		t.Errorf("unexpected metrics: %+v", m.Metrics)
	}

	m.SortByDistance()
	if m.Traces[0].IndexPosition != 500 {
		t.Errorf("traces should be sorted by distance")
	}
	if i, added := addTrace(m, 500, 0, 50); added || i != 0 {
		t.Errorf("positions should be reindexed after sorting")
	}
}

func TestRollback(t *testing.T) {
	m := NewMatches()
	addTrace(m, 10, 1, 40)
	m.AddInterval(Interval{Lo: 3, Hi: 5, Length: 50})

	m.Save()
	nIntervals, nTraces, nCigars := len(m.Intervals), len(m.Traces), m.Cigars.Len()
	counters := append(Counters{}, m.Counters...)
	metrics := m.Metrics

	addTrace(m, 1000, 0, 50)
	addTrace(m, 2000, 3, 30)
	m.AddInterval(Interval{Lo: 7, Hi: 10, Length: 50, Distance: 1})
	m.MaxCompleteStratum = 3

	if !m.Rollback() {
		t.Fatalf("no restore point")
	}
	if len(m.Intervals) != nIntervals || len(m.Traces) != nTraces || m.Cigars.Len() != nCigars {
		t.Errorf("buffers are not restored: %d %d %d", len(m.Intervals), len(m.Traces), m.Cigars.Len())
	}
	if len(m.Counters) != len(counters) {
		t.Errorf("counters are not restored: %v", m.Counters)
	}
	for i := range counters {
		if m.Counters[i] != counters[i] {
			t.Errorf("counters are not restored: %v", m.Counters)
		}
	}
	if m.Metrics != metrics || m.MaxCompleteStratum != 0 {
		t.Errorf("metrics are not restored")
	}
	if m.Rollback() {
		t.Errorf("a restore point is used only once")
	}

	// rolled back traces are not duplicates anymore
	if _, added := addTrace(m, 1000, 0, 50); !added {
		t.Errorf("position of a rolled back trace should be free")
	}
}

func TestClassify(t *testing.T) {
	m := NewMatches()
	if c := m.Classify(); c != Unmapped {
		t.Errorf("expected unmapped, returned %s", c)
	}

	addTrace(m, 10, 1, 40)
	if c := m.Classify(); c != Unique {
		t.Errorf("expected unique, returned %s", c)
	}

	addTrace(m, 1000, 1, 40)
	if c := m.Classify(); c != TieEventDistance {
		t.Errorf("expected tie, returned %s", c)
	}

	m.Clear()
	addTrace(m, 10, 0, 50)
	addTrace(m, 1000, 3, 30)
	if c := m.Classify(); c != MMap {
		t.Errorf("expected mmap, returned %s", c)
	}

	m.Clear()
	m.AddInterval(Interval{Lo: 0, Hi: 3, Length: 50})
	if c := m.Classify(); c != TieEventDistance {
		t.Errorf("expected tie, returned %s", c)
	}
}

func TestUniqueScore(t *testing.T) {
	m := NewMatches()
	addTrace(m, 10, 0, 100)
	m.MaxCompleteStratum = 2
	perfect := UniqueScore(m.ComputePredictors(100, 1, 40, 10))
	if perfect < 55 {
		t.Errorf("a perfect unique match should score high: %f", perfect)
	}

	m.Clear()
	addTrace(m, 10, 4, 70)
	m.MaxCompleteStratum = 1
	poor := UniqueScore(m.ComputePredictors(100, 1, 8, 10))
	if poor >= perfect || poor >= 55 {
		t.Errorf("a poor unique match should score lower: %f", poor)
	}
	t.Logf("perfect: %.2f, poor: %.2f", perfect, poor)
}
