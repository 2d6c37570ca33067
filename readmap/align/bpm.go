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

package align

import (
	"math/bits"

	"github.com/shenwei356/ReadMap/readmap/util"
	"github.com/shenwei356/go-logging"
)

var log = logging.MustGetLogger("align")

const wordSize = 64

// DistanceUnknown and DistanceInf are the special values of distances.
const (
	DistanceUnknown = -1
	DistanceInf     = int(^uint(0) >> 1)
)

// BPMPattern is the bit-parallel representation of a pattern for
// Myers' algorithm, split into 64-bit blocks.
type BPMPattern struct {
	Length int
	words  int
	peq    [util.NumBases][]uint64 // the N row is always empty
	last   uint                    // the bit of the last row in the last block
}

// NewBPMPattern creates a BPMPattern from encoded bases.
func NewBPMPattern(key []byte) *BPMPattern {
	p := &BPMPattern{Length: len(key)}
	p.words = (len(key) + wordSize - 1) / wordSize
	if p.words == 0 {
		p.words = 1
	}
	for c := range p.peq {
		p.peq[c] = make([]uint64, p.words)
	}
	for i, c := range key {
		if c < util.BaseN {
			p.peq[c][i/wordSize] |= 1 << uint(i%wordSize)
		}
	}
	if len(key) > 0 {
		p.last = uint((len(key) - 1) % wordSize)
	}
	return p
}

// advanceBlock computes one block of one column (Hyyrö's formulation),
// hin and the returned hout are the horizontal deltas entering and leaving
// the block. top is the bit whose horizontal delta is returned.
func advanceBlock(pv, mv *uint64, eq uint64, hin int, top uint) int {
	xv := eq | *mv
	if hin < 0 {
		eq |= 1
	}
	xh := (((eq & *pv) + *pv) ^ *pv) | eq
	ph := *mv | ^(xh | *pv)
	mh := *pv & xh

	hout := 0
	if ph>>top&1 == 1 {
		hout = 1
	} else if mh>>top&1 == 1 {
		hout = -1
	}

	ph <<= 1
	mh <<= 1
	if hin < 0 {
		mh |= 1
	} else if hin > 0 {
		ph |= 1
	}
	*pv = mh | ^(xv | ph)
	*mv = ph & xv
	return hout
}

// step advances all blocks by one text base, and returns the score change
// of the last row.
func (p *BPMPattern) step(pv, mv []uint64, c uint8) int {
	var hin int // the first row is always 0, free text begin
	last := p.words - 1
	for w := 0; w < last; w++ {
		hin = advanceBlock(&pv[w], &mv[w], p.peq[c][w], hin, wordSize-1)
	}
	return advanceBlock(&pv[last], &mv[last], p.peq[c][last], hin, p.last)
}

func (p *BPMPattern) init(pv, mv []uint64) {
	for w := range pv {
		pv[w] = ^uint64(0)
		mv[w] = 0
	}
}

// ComputeEditDistance computes the minimum edit distance of the whole
// pattern against any substring of the text, and the text column where
// the best alignment ends (the leftmost one). ok is false when the
// distance is greater than maxDistance.
func (p *BPMPattern) ComputeEditDistance(text []byte, maxDistance int) (distance int, column int, ok bool) {
	if p.Length == 0 {
		return 0, 0, true
	}
	pv := make([]uint64, p.words)
	mv := make([]uint64, p.words)
	p.init(pv, mv)

	score := p.Length
	distance, column = score, -1
	var c uint8
	for j, b := range text {
		c = b
		if c > util.BaseN {
			c = util.BaseN
		}
		score += p.step(pv, mv, c)
		if score < distance || column < 0 {
			distance, column = score, j
		}
	}

	if column < 0 || distance > maxDistance {
		return distance, column, false
	}
	return distance, column, true
}

// columns computes and keeps the vertical deltas of every column,
// for backtracing.
func (p *BPMPattern) columns(text []byte, pvs, mvs []uint64) ([]uint64, []uint64, []int) {
	n := (len(text) + 1) * p.words
	if cap(pvs) < n {
		pvs = make([]uint64, n)
		mvs = make([]uint64, n)
	}
	pvs, mvs = pvs[:n], mvs[:n]
	p.init(pvs[:p.words], mvs[:p.words])

	scores := make([]int, len(text)+1)
	scores[0] = p.Length
	var c uint8
	for j, b := range text {
		cur, next := j*p.words, (j+1)*p.words
		copy(pvs[next:next+p.words], pvs[cur:cur+p.words])
		copy(mvs[next:next+p.words], mvs[cur:cur+p.words])
		c = b
		if c > util.BaseN {
			c = util.BaseN
		}
		scores[j+1] = scores[j] + p.step(pvs[next:next+p.words], mvs[next:next+p.words], c)
	}
	return pvs, mvs, scores
}

// cell returns D[i][j] from the vertical deltas of column j.
func (p *BPMPattern) cell(pvs, mvs []uint64, i, j int) int {
	pv := pvs[j*p.words : (j+1)*p.words]
	mv := mvs[j*p.words : (j+1)*p.words]
	var s int
	full := i / wordSize
	for w := 0; w < full; w++ {
		s += bits.OnesCount64(pv[w]) - bits.OnesCount64(mv[w])
	}
	if r := uint(i % wordSize); r > 0 {
		mask := uint64(1)<<r - 1
		s += bits.OnesCount64(pv[full]&mask) - bits.OnesCount64(mv[full]&mask)
	}
	return s
}
