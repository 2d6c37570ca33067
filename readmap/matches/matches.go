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
// Package matches stores the matches of a read: compacted SA intervals,
// located traces, their CIGARs and the per-stratum counters.
package matches

import (
	"sort"

	"github.com/shenwei356/ReadMap/readmap/align"
)

// Strand is the strand a match was searched on.
type Strand uint8

const (
	Forward Strand = iota
	Reverse        // searched with the reverse complement of the read
)

func (s Strand) String() string {
	if s == Reverse {
		return "-"
	}
	return "+"
}

// Interval is a compacted set of matches sharing one SA interval.
type Interval struct {
	Lo, Hi   uint64 // [Lo, Hi)
	Length   int    // span in the text
	Distance int
	Strand   Strand

	Text []byte // text of the first occurrence, for realignment

	CigarOffset, CigarLength int
}

// Trace is one decoded match.
type Trace struct {
	IndexPosition uint64 // begin position in the index text

	// located
	TextPosition uint64
	SeqName      string
	SeqIdx       int
	Strand       Strand

	Distance      int // stratum
	EditDistance  int
	EventDistance int
	Score         int // gap-affine score
	MapQ          int

	CigarOffset, CigarLength int
	EffectiveLength          int
}

// Metrics summarise the matches found so far.
type Metrics struct {
	MinEditDistance  int // -1 for none
	Min2EditDistance int // the second smallest, -1 for none
	MaxScore         int
	NumAdded         int
}

func (m *Metrics) reset() {
	m.MinEditDistance = -1
	m.Min2EditDistance = -1
	m.MaxScore = 0
	m.NumAdded = 0
}

func (m *Metrics) update(editDistance, score int) {
	m.NumAdded++
	if m.MinEditDistance < 0 || editDistance < m.MinEditDistance {
		m.Min2EditDistance = m.MinEditDistance
		m.MinEditDistance = editDistance
	} else if m.Min2EditDistance < 0 || editDistance < m.Min2EditDistance {
		m.Min2EditDistance = editDistance
	}
	if m.NumAdded == 1 || score > m.MaxScore {
		m.MaxScore = score
	}
}

type restorePoint struct {
	saved      bool
	intervals  int
	traces     int
	cigars     int
	counters   Counters
	metrics    Metrics
	maxStratum uint64
}

// Matches is the collection of matches of a read. It is owned by
// one worker and never shared.
type Matches struct {
	Counters  Counters
	Intervals []Interval
	Traces    []Trace
	Cigars    *align.CigarBuffer

	Metrics Metrics

	// all strata below it have been fully explored
	MaxCompleteStratum uint64

	begins map[uint64]int // index position -> trace index
	ends   map[uint64]int

	rp restorePoint
}

// NewMatches creates a Matches.
func NewMatches() *Matches {
	m := &Matches{
		Counters:  make(Counters, 0, 16),
		Intervals: make([]Interval, 0, 8),
		Traces:    make([]Trace, 0, 16),
		Cigars:    align.NewCigarBuffer(256),
		begins:    make(map[uint64]int, 16),
		ends:      make(map[uint64]int, 16),
	}
	m.Metrics.reset()
	return m
}

// Clear resets the collection for a new read.
func (m *Matches) Clear() {
	m.Counters = m.Counters[:0]
	m.Intervals = m.Intervals[:0]
	m.Traces = m.Traces[:0]
	m.Cigars.Reset()
	m.Metrics.reset()
	m.MaxCompleteStratum = 0
	clear(m.begins)
	clear(m.ends)
	m.rp.saved = false
}

// NumMatches returns the number of matches, counting intervals in full.
func (m *Matches) NumMatches() uint64 { return m.Counters.Total() }

// Cigar returns the CIGAR of a trace.
func (m *Matches) Cigar(t *Trace) []align.CigarElement {
	return m.Cigars.Slice(t.CigarOffset, t.CigarLength)
}

// AddInterval adds a compacted interval of matches.
func (m *Matches) AddInterval(iv Interval) {
	if iv.Hi <= iv.Lo {
		return
	}
	m.Intervals = append(m.Intervals, iv)
	m.Counters.Add(iv.Distance, iv.Hi-iv.Lo)
	m.Metrics.update(iv.Distance, 0)
}

// AddTrace adds a trace. A trace starting or ending at the same index
// position as a known one is a duplicate, the better one is kept in place.
// It returns the index of the trace and whether it was added as new.
func (m *Matches) AddTrace(t Trace, updateCounters bool) (int, bool) {
	end := t.IndexPosition + uint64(t.EffectiveLength)
	i, ok := m.begins[t.IndexPosition]
	if !ok {
		i, ok = m.ends[end]
	}
	if ok {
		old := &m.Traces[i]
		if better(&t, old) {
			if updateCounters {
				m.Counters.Sub(old.Distance, 1)
				m.Counters.Add(t.Distance, 1)
			}
			delete(m.begins, old.IndexPosition)
			delete(m.ends, old.IndexPosition+uint64(old.EffectiveLength))
			*old = t
			m.begins[t.IndexPosition] = i
			m.ends[end] = i
			m.Metrics.update(t.EditDistance, t.Score)
		}
		return i, false
	}

	i = len(m.Traces)
	m.Traces = append(m.Traces, t)
	m.begins[t.IndexPosition] = i
	m.ends[end] = i
	if updateCounters {
		m.Counters.Add(t.Distance, 1)
	}
	m.Metrics.update(t.EditDistance, t.Score)
	return i, true
}

func better(a, b *Trace) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Score > b.Score
}

// Save records a restore point.
func (m *Matches) Save() {
	m.rp.saved = true
	m.rp.intervals = len(m.Intervals)
	m.rp.traces = len(m.Traces)
	m.rp.cigars = m.Cigars.Len()
	m.rp.counters = append(m.rp.counters[:0], m.Counters...)
	m.rp.metrics = m.Metrics
	m.rp.maxStratum = m.MaxCompleteStratum
}

// Rollback discards everything added after the last Save.
// It returns false if no restore point was saved.
func (m *Matches) Rollback() bool {
	if !m.rp.saved {
		return false
	}
	for i := m.rp.traces; i < len(m.Traces); i++ {
		t := &m.Traces[i]
		if j, ok := m.begins[t.IndexPosition]; ok && j == i {
			delete(m.begins, t.IndexPosition)
		}
		end := t.IndexPosition + uint64(t.EffectiveLength)
		if j, ok := m.ends[end]; ok && j == i {
			delete(m.ends, end)
		}
	}
	m.Intervals = m.Intervals[:m.rp.intervals]
	m.Traces = m.Traces[:m.rp.traces]
	m.Cigars.Truncate(m.rp.cigars)
	m.Counters = append(m.Counters[:0], m.rp.counters...)
	m.Metrics = m.rp.metrics
	m.MaxCompleteStratum = m.rp.maxStratum
	m.rp.saved = false
	return true
}

// Filter keeps the traces for which keep returns true.
func (m *Matches) Filter(keep func(t *Trace) bool) {
	j := 0
	for i := range m.Traces {
		if keep(&m.Traces[i]) {
			if i != j {
				m.Traces[j] = m.Traces[i]
			}
			j++
		}
	}
	m.Traces = m.Traces[:j]
	m.reindex()
}

// RemoveStrand removes the traces and intervals of a strand, counters
// are updated.
func (m *Matches) RemoveStrand(strand Strand) {
	j := 0
	for i := range m.Intervals {
		iv := &m.Intervals[i]
		if iv.Strand == strand {
			m.Counters.Sub(iv.Distance, iv.Hi-iv.Lo)
			continue
		}
		m.Intervals[j] = *iv
		j++
	}
	m.Intervals = m.Intervals[:j]

	m.Filter(func(t *Trace) bool {
		if t.Strand == strand {
			m.Counters.Sub(t.Distance, 1)
			return false
		}
		return true
	})
}

func (m *Matches) reindex() {
	clear(m.begins)
	clear(m.ends)
	for i := range m.Traces {
		t := &m.Traces[i]
		m.begins[t.IndexPosition] = i
		m.ends[t.IndexPosition+uint64(t.EffectiveLength)] = i
	}
}

// SortByDistance sorts traces by distance, then by score, keeping the
// order of equal ones.
func (m *Matches) SortByDistance() {
	sort.SliceStable(m.Traces, func(i, j int) bool {
		a, b := &m.Traces[i], &m.Traces[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Score > b.Score
	})
	m.reindex()
}
