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

package asearch

import (
	"github.com/shenwei356/ReadMap/readmap/matches"
	"github.com/shenwei356/ReadMap/readmap/util"
)

// searchNeighborhood finds all occurrences of the key with at most
// maxError mismatches by backtracking on the FM-index, from the end of
// the key. Each distinct text is added as an interval.
func (s *Search) searchNeighborhood(m *matches.Matches, maxError int) int {
	key := s.Pattern.Key
	if len(key) == 0 {
		return 0
	}
	if cap(s.nbText) < len(key) {
		s.nbText = make([]byte, len(key))
	}
	text := s.nbText[:len(key)]
	fmi := s.idx.FMI
	allowed := s.params.Allowed()

	var n, nodes int
	var extend func(pos int, lo, hi uint64, e int)
	extend = func(pos int, lo, hi uint64, e int) {
		nodes++
		if pos < 0 {
			m.AddInterval(matches.Interval{
				Lo:       lo,
				Hi:       hi,
				Length:   len(key),
				Distance: e,
				Strand:   s.Strand,
				Text:     append([]byte(nil), text...),
			})
			n++
			return
		}
		k := key[pos]
		var d int
		var l, h uint64
		for c := uint8(0); c < util.BaseN; c++ {
			d = e
			if c != k {
				if !allowed[c] {
					continue
				}
				d++
			}
			if d > maxError {
				continue
			}
			l, h = fmi.Extend(c, lo, hi)
			if h <= l {
				continue
			}
			text[pos] = c
			extend(pos-1, l, h, d)
		}
	}
	extend(len(key)-1, 0, fmi.Length(), 0)

	s.sink.Add("asearch.neighborhood_nodes", uint64(nodes))
	s.sink.Add("asearch.neighborhood_intervals", uint64(n))
	return n
}
