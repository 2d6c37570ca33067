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

package index

import (
	"sort"

	"github.com/pkg/errors"
)

// Direction of a located sequence.
type Direction uint8

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "-"
	}
	return "+"
}

// SeqInterval records where a sequence is placed in the index text.
type SeqInterval struct {
	Tag       string
	SeqIdx    int
	Begin     uint64 // index position of the first base
	End       uint64
	Direction Direction
}

// Location is a position in the reference sequences.
type Location struct {
	Tag    string
	SeqIdx int
	// For forward intervals, the 0-based position of the index position.
	// For reverse intervals, the forward-strand position just after
	// the base, so the caller subtracts the span of the match.
	Position  uint64
	Direction Direction
}

// Locator maps index positions to sequences.
type Locator struct {
	Intervals []SeqInterval
	tags      map[string]int
}

// NewLocator creates a Locator from intervals sorted by Begin.
func NewLocator(intervals []SeqInterval) *Locator {
	l := &Locator{Intervals: intervals, tags: make(map[string]int, len(intervals))}
	for i, iv := range intervals {
		if iv.Direction == Forward {
			l.tags[iv.Tag] = i
		}
	}
	return l
}

// Interval returns the interval containing the index position.
func (l *Locator) Interval(pos uint64) (*SeqInterval, bool) {
	i := sort.Search(len(l.Intervals), func(i int) bool {
		return l.Intervals[i].End > pos
	})
	if i == len(l.Intervals) || l.Intervals[i].Begin > pos {
		return nil, false
	}
	return &l.Intervals[i], true
}

// Map maps an index position to a location.
func (l *Locator) Map(pos uint64) (Location, bool) {
	iv, ok := l.Interval(pos)
	if !ok {
		return Location{}, false
	}
	loc := Location{Tag: iv.Tag, SeqIdx: iv.SeqIdx, Direction: iv.Direction}
	if iv.Direction == Forward {
		loc.Position = pos - iv.Begin
	} else {
		loc.Position = iv.End - pos
	}
	return loc, true
}

// InverseMap maps a location back to the index position.
func (l *Locator) InverseMap(tag string, direction Direction, position uint64) (uint64, error) {
	i, ok := l.tags[tag]
	if !ok {
		return 0, errors.Errorf("index: sequence not found: %s", tag)
	}
	if direction == Reverse {
		// the reverse copy is placed in the same order as the forward ones
		j := i + len(l.tags)
		if j >= len(l.Intervals) || l.Intervals[j].Tag != tag {
			return 0, errors.Errorf("index: no reverse strand for sequence: %s", tag)
		}
		i = j
	}
	iv := l.Intervals[i]
	if position > iv.End-iv.Begin {
		return 0, errors.Errorf("index: position %d out of range for sequence %s", position, tag)
	}
	if direction == Forward {
		return iv.Begin + position, nil
	}
	return iv.End - position, nil
}
