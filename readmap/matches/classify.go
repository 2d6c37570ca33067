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

import "math"

// Class is the classification of the matches of a read.
type Class uint8

const (
	Unmapped Class = iota
	Unique
	MMap
	TieEventDistance // the two best matches have the same event distance
	TieEditDistance
	TieScore
)

func (c Class) String() string {
	switch c {
	case Unmapped:
		return "unmapped"
	case Unique:
		return "unique"
	case MMap:
		return "mmap"
	case TieEventDistance:
		return "tie-event-distance"
	case TieEditDistance:
		return "tie-edit-distance"
	case TieScore:
		return "tie-score"
	}
	return "unknown"
}

// Tie tells if the class is one of ties.
func (c Class) Tie() bool {
	return c == TieEventDistance || c == TieEditDistance || c == TieScore
}

// Classify classifies the matches found so far.
func (m *Matches) Classify() Class {
	n := m.Counters.Total()
	if nt := uint64(len(m.Traces)); nt > n {
		n = nt
	}
	switch n {
	case 0:
		return Unmapped
	case 1:
		return Unique
	}

	if len(m.Traces) < 2 {
		if m.Counters.Get(m.Counters.Min()) > 1 {
			return TieEventDistance
		}
		return MMap
	}

	t0, t1 := m.bestTwo()
	switch {
	case t0.EventDistance == t1.EventDistance:
		return TieEventDistance
	case t0.EditDistance == t1.EditDistance:
		return TieEditDistance
	case t0.Score == t1.Score:
		return TieScore
	}
	return MMap
}

func (m *Matches) bestTwo() (*Trace, *Trace) {
	var t0, t1 *Trace
	for i := range m.Traces {
		t := &m.Traces[i]
		if t0 == nil || better(t, t0) {
			t0, t1 = t, t0
		} else if t1 == nil || better(t, t1) {
			t1 = t
		}
	}
	return t0, t1
}

// Predictors are the features of a read used to score its best match.
type Predictors struct {
	EditDistance float64 // 1 - best edit distance / read length
	Score        float64 // best score / perfect score
	RegionLength float64 // longest seeding region / proper length
	Strata       float64 // complete strata after the best one
}

// ComputePredictors computes the predictors of the matches.
func (m *Matches) ComputePredictors(readLength, matchScore, maxRegionLength,
	properLength int) Predictors {
	var p Predictors
	if readLength <= 0 || m.Metrics.MinEditDistance < 0 {
		return p
	}
	best := m.Metrics.MinEditDistance
	p.EditDistance = 1 - float64(best)/float64(readLength)
	if len(m.Traces) > 0 && matchScore > 0 {
		p.Score = float64(m.Metrics.MaxScore) / float64(readLength*matchScore)
	} else {
		p.Score = p.EditDistance
	}
	if properLength > 0 {
		p.RegionLength = float64(maxRegionLength) / float64(properLength)
	}
	p.Strata = float64(int(m.MaxCompleteStratum) - best)
	return p
}

// MaxMapQ is the maximum mapping quality.
const MaxMapQ = 60

// UniqueScore turns the predictors into a mapping quality of a unique match.
func UniqueScore(p Predictors) float64 {
	z := -6 + 8*p.EditDistance + 4*p.Score +
		2*math.Min(p.RegionLength, 2) + 2*math.Max(math.Min(p.Strata, 2), 0)
	q := 10 * math.Log10(1+math.Exp(z))
	if q < 0 {
		return 0
	}
	if q > MaxMapQ {
		return MaxMapQ
	}
	return q
}
