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
	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/go-logging"
)

var log = logging.MustGetLogger("filtering")

// ErrBPMCheck means the distance reported by the BPM buffer differs from
// the one computed on the CPU.
var ErrBPMCheck = errors.New("filtering: BPM distance check failed")

// Buffered holds the candidates of a search whose tiles are in a
// BPM buffer, waiting for the results.
type Buffered struct {
	Regions  []*Region
	Offset   int // index of the first tile
	NumTiles int

	tiles []TileCandidate
}

// Len returns the number of buffered candidates.
func (bb *Buffered) Len() int { return len(bb.Regions) }

// AddToBuffer moves the pending candidates into bb and appends the tiles
// of those needing verification to the buffer. Exact and key-trimmed
// candidates are kept but not sent. It returns the number of tiles.
func (c *Candidates) AddToBuffer(bb *Buffered, p *align.Pattern, buffer BPMBuffer) (int, error) {
	bb.Regions = bb.Regions[:0]
	bb.tiles = bb.tiles[:0]
	bb.NumTiles = 0
	bb.Offset = buffer.NumCandidates()
	if len(c.Regions) == 0 {
		return 0, nil
	}

	var t *Tile
	for _, r := range c.Regions {
		bb.Regions = append(bb.Regions, r)
		if r.Alignment.DistanceMinBound == 0 || r.KeyTrimmed {
			continue
		}
		initAlignment(r, p)
		for k := range r.Alignment.Tiles {
			t = &r.Alignment.Tiles[k]
			bb.tiles = append(bb.tiles, TileCandidate{
				Tile:     k,
				Position: r.TextBegin + uint64(t.TextBeginOffset),
				Length:   t.TextEndOffset - t.TextBeginOffset,
			})
		}
	}
	c.Regions = c.Regions[:0]

	if len(bb.tiles) > 0 {
		offset, err := buffer.Append(p, bb.tiles)
		if err != nil {
			return 0, err
		}
		bb.Offset = offset
	}
	bb.NumTiles = len(bb.tiles)
	c.sink.Add("filtering.tiles_buffered", uint64(bb.NumTiles))
	return bb.NumTiles, nil
}

// RetrieveFromBuffer verifies the buffered candidates with the results
// of the buffer, or on the CPU if the buffer is disabled. Tiles are
// walked in the order they were added. It returns the number of
// accepted candidates.
func (c *Candidates) RetrieveFromBuffer(bb *Buffered, p *align.Pattern, buffer BPMBuffer, checkTiles bool) (int, error) {
	maxError := p.MaxEffectiveFilteringError
	idx := bb.Offset
	var n int
	var err error
	for _, r := range bb.Regions {
		if r.Alignment.DistanceMinBound == 0 {
			c.accept(r)
			n++
			continue
		}
		if r.KeyTrimmed {
			if c.verifyTrimmed(r, p) {
				c.accept(r)
				n++
			} else {
				c.discard(r)
			}
			continue
		}
		if r.Alignment.DistanceMinBound == align.DistanceInf {
			c.discard(r)
			idx += r.Alignment.NumTiles
			continue
		}

		if buffer.Enabled() {
			if err = c.retrieveAlignment(r, p, buffer, idx, checkTiles); err != nil {
				return n, err
			}
		} else {
			computeTiles(&r.Alignment, p, c.Text(r), maxError)
		}
		idx += r.Alignment.NumTiles

		if r.Alignment.DistanceMinBound <= maxError {
			c.accept(r)
			n++
		} else {
			c.discard(r)
		}
	}
	bb.Regions = bb.Regions[:0]
	return n, nil
}

func (c *Candidates) retrieveAlignment(r *Region, p *align.Pattern, buffer BPMBuffer, idx int, checkTiles bool) error {
	a := &r.Alignment
	a.DistanceMinBound = 0
	var t *Tile
	var pt *align.PatternTile
	for k := 0; k < a.NumTiles; k++ {
		t, pt = &a.Tiles[k], &p.Tiles[k]
		if t.Distance != align.DistanceUnknown {
			if t.Distance == align.DistanceInf {
				a.DistanceMinBound = align.DistanceInf
			} else if a.DistanceMinBound != align.DistanceInf {
				a.DistanceMinBound += t.Distance
			}
			continue
		}

		res, err := buffer.GetResult(idx + k)
		if err != nil {
			return err
		}
		if checkTiles {
			if err = c.checkTile(pt, buffer.GetCandidate(idx+k), res); err != nil {
				return err
			}
		}
		if !reconcileTile(t, pt, res.Distance, res.Column) {
			a.DistanceMinBound = align.DistanceInf
			continue
		}
		if a.DistanceMinBound != align.DistanceInf {
			a.DistanceMinBound += t.Distance
		}
	}
	if a.DistanceMinBound != align.DistanceInf && a.DistanceMinBound > p.MaxEffectiveFilteringError {
		a.DistanceMinBound = align.DistanceInf
	}
	c.sink.Add("filtering.tiles_retrieved", uint64(a.NumTiles))
	return nil
}

// checkTile recomputes a tile on the CPU. The two may disagree on texts
// with N, which is only reported.
func (c *Candidates) checkTile(pt *align.PatternTile, tc TileCandidate, res TileResult) error {
	ti := c.texts.Retrieve(tc.Position, tc.Length)
	trace := c.texts.Trace(ti)
	d, col, _ := pt.BPM.ComputeEditDistance(trace.Text, pt.Length)
	if d == res.Distance && col == res.Column {
		return nil
	}
	if trace.NumN > 0 {
		log.Warningf("BPM check: distance %d != %d, column %d != %d at %d (%d N)",
			res.Distance, d, res.Column, col, tc.Position, trace.NumN)
		return nil
	}
	return errors.Wrapf(ErrBPMCheck, "distance %d != %d, column %d != %d at %d",
		res.Distance, d, res.Column, col, tc.Position)
}
