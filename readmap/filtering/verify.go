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
package filtering

import (
	"github.com/shenwei356/ReadMap/readmap/align"
)

// initAlignment places the pattern tiles in the candidate text.
func initAlignment(r *Region, p *align.Pattern) {
	a := &r.Alignment
	a.NumTiles = len(p.Tiles)
	if cap(a.Tiles) < a.NumTiles {
		a.Tiles = make([]Tile, a.NumTiles)
	}
	a.Tiles = a.Tiles[:a.NumTiles]

	textLen := r.Length()
	e := p.MaxEffectiveFilteringError
	keyBegin := int(r.Begin) - int(r.TextBegin) // may be negative after clipping
	var b, end int
	for k := range p.Tiles {
		pt := &p.Tiles[k]
		b = keyBegin + pt.Offset - e
		end = keyBegin + pt.Offset + pt.Length + e
		if b < 0 {
			b = 0
		}
		if end > textLen {
			end = textLen
		}
		if end < b {
			end = b
		}
		a.Tiles[k] = Tile{TextBeginOffset: b, TextEndOffset: end, Distance: align.DistanceUnknown}
	}
}

// reconcileTile records the distance of a tile and recovers the aligned
// window from the end column reported by the bit-parallel scan.
// It returns false if the tile exceeds its error budget.
func reconcileTile(t *Tile, pt *align.PatternTile, distance, column int) bool {
	if distance > pt.MaxError || column < 0 {
		t.Distance = align.DistanceInf
		return false
	}
	offset := t.TextBeginOffset
	end := column + 1
	begin := end - (pt.Length + distance)
	if begin < 0 {
		begin = 0
	}
	t.Distance = distance
	t.TextEndOffset = offset + end
	t.TextBeginOffset = offset + begin
	return true
}

// computeTiles verifies the tiles of a candidate on the CPU, the bound
// becomes INF as soon as one tile fails.
func computeTiles(a *Alignment, p *align.Pattern, text []byte, maxError int) {
	a.DistanceMinBound = 0
	var d, col int
	for k := range a.Tiles {
		t := &a.Tiles[k]
		if t.Distance == align.DistanceInf {
			a.DistanceMinBound = align.DistanceInf
			return
		}
		if t.Distance != align.DistanceUnknown {
			a.DistanceMinBound += t.Distance
			continue
		}
		pt := &p.Tiles[k]
		d, col, _ = pt.BPM.ComputeEditDistance(text[t.TextBeginOffset:t.TextEndOffset], pt.MaxError)
		if !reconcileTile(t, pt, d, col) {
			a.DistanceMinBound = align.DistanceInf
			return
		}
		a.DistanceMinBound += d
	}
	if a.DistanceMinBound > maxError {
		a.DistanceMinBound = align.DistanceInf
	}
}

// verifyTrimmed verifies a candidate shorter than the key by
// aligning the whole key.
func (c *Candidates) verifyTrimmed(r *Region, p *align.Pattern) bool {
	text := c.Text(r)
	d, _, ok := p.BPM.ComputeEditDistance(text, p.MaxEffectiveFilteringError)
	c.sink.Inc("filtering.verified_trimmed")
	if ok {
		r.Alignment.DistanceMinBound = d
		r.Status = StatusAccepted
		return true
	}
	r.Alignment.DistanceMinBound = align.DistanceInf
	r.Status = StatusVerifiedDiscarded
	return false
}

func (c *Candidates) accept(r *Region) {
	r.Status = StatusAccepted
	c.Accepted = append(c.Accepted, r)
	c.sink.Inc("filtering.accepted")
}

func (c *Candidates) discard(r *Region) {
	r.Status = StatusVerifiedDiscarded
	r.Alignment.DistanceMinBound = align.DistanceInf
	c.Discarded = append(c.Discarded, r)
	c.sink.Inc("filtering.discarded")
}

// Verify verifies all pending candidates in-process, from the cheapest
// check to the most expensive one, and returns the number of accepted ones.
func (c *Candidates) Verify(p *align.Pattern) int {
	maxError := p.MaxEffectiveFilteringError
	c.kmers.SetKey(p.Key)
	var n int
	for _, r := range c.Regions {
		if c.verifyRegion(r, p, maxError) {
			n++
		}
	}
	c.Regions = c.Regions[:0]
	return n
}

func (c *Candidates) verifyRegion(r *Region, p *align.Pattern, maxError int) bool {
	if r.Alignment.DistanceMinBound == 0 {
		c.accept(r)
		return true
	}
	if r.KeyTrimmed {
		if c.verifyTrimmed(r, p) {
			c.accept(r)
			return true
		}
		c.discard(r)
		return false
	}

	text := c.Text(r)
	if c.kmers.Enabled() {
		if c.kmers.LowerBound(text) > maxError {
			c.sink.Inc("filtering.kmer_discarded")
			c.discard(r)
			return false
		}
	}

	initAlignment(r, p)
	computeTiles(&r.Alignment, p, text, maxError)
	c.sink.Add("filtering.tiles_verified", uint64(r.Alignment.NumTiles))
	if r.Alignment.DistanceMinBound <= maxError {
		c.accept(r)
		return true
	}
	c.discard(r)
	return false
}

// DiscardPending discards the pending candidates without verification.
func (c *Candidates) DiscardPending() {
	for _, r := range c.Regions {
		c.discard(r)
	}
	c.Regions = c.Regions[:0]
}
