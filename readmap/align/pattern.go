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

import "github.com/shenwei356/ReadMap/readmap/util"

// DefaultTileLength is the length of pattern tiles for verification.
var DefaultTileLength = 64

// PatternTile is a chunk of the pattern verified independently.
type PatternTile struct {
	Offset   int // offset in the key
	Length   int
	MaxError int // error budget of the tile
	BPM      *BPMPattern
}

// Pattern is a read prepared for searching.
type Pattern struct {
	Key          []byte // encoded bases
	Quality      []byte
	NumWildcards int

	BPM   *BPMPattern
	Tiles []PatternTile

	// the error budget used in filtering, bounded by the key length
	MaxEffectiveFilteringError int
}

// NewPattern prepares a pattern from encoded bases.
func NewPattern(key []byte, quality []byte, maxError int, tileLength int) *Pattern {
	p := &Pattern{
		Key:          key,
		Quality:      quality,
		NumWildcards: util.CountN(key),
		BPM:          NewBPMPattern(key),
	}
	if maxError > len(key) {
		maxError = len(key)
	}
	p.MaxEffectiveFilteringError = maxError

	if tileLength <= 0 {
		tileLength = DefaultTileLength
	}
	nTiles := (len(key) + tileLength - 1) / tileLength
	p.Tiles = make([]PatternTile, 0, nTiles)
	var l int
	for offset := 0; offset < len(key); offset += tileLength {
		l = tileLength
		if offset+l > len(key) {
			l = len(key) - offset
		}
		tile := PatternTile{
			Offset:   offset,
			Length:   l,
			MaxError: maxError,
		}
		if tile.MaxError > l {
			tile.MaxError = l
		}
		if nTiles == 1 {
			tile.BPM = p.BPM
		} else {
			tile.BPM = NewBPMPattern(key[offset : offset+l])
		}
		p.Tiles = append(p.Tiles, tile)
	}
	return p
}

// Length returns the key length.
func (p *Pattern) Length() int { return len(p.Key) }
