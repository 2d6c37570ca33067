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
	"bytes"
	"math"

	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/util"
	"github.com/twotwotwo/sorts"
)

// ErrTextTooLong means the text can not be indexed with 32-bit suffix array.
var ErrTextTooLong = errors.New("index: text too long")

// ErrEmptyText means the text is empty.
var ErrEmptyText = errors.New("index: empty text")

const occInterval = 64
const occShift = 6

const sentinel = 0xff

// FMIndex is a simple FM-index over an encoded text (A=0, C=1, G=2, T=3, N=4),
// N is indexed but never matched by the search methods.
type FMIndex struct {
	n      uint64 // rows, the sentinel included
	bwt    []byte
	dollar uint64 // the row whose BWT symbol is the sentinel
	c      [util.NumBases + 1]uint64
	occ    []uint64 // counts of symbols before every 64-row checkpoint
	sa     []uint32

	properLength uint64
}

type suffixes struct {
	text []byte
	sa   []uint32
}

func (s suffixes) Len() int { return len(s.sa) }
func (s suffixes) Less(i, j int) bool {
	return bytes.Compare(s.text[s.sa[i]:], s.text[s.sa[j]:]) < 0
}
func (s suffixes) Swap(i, j int) { s.sa[i], s.sa[j] = s.sa[j], s.sa[i] }

// NewFMIndex builds an FM-index of the encoded text.
func NewFMIndex(text []byte) (*FMIndex, error) {
	if len(text) == 0 {
		return nil, ErrEmptyText
	}
	if uint64(len(text)) >= math.MaxUint32 {
		return nil, ErrTextTooLong
	}

	n := len(text) + 1
	sa := make([]uint32, n)
	for i := range sa {
		sa[i] = uint32(i)
	}
	// the empty suffix (sentinel) is the smallest one.
	sorts.Quicksort(suffixes{text: text, sa: sa})

	return newFMIndexFromSA(text, sa), nil
}

func newFMIndexFromSA(text []byte, sa []uint32) *FMIndex {
	n := len(sa)
	idx := &FMIndex{n: uint64(n), sa: sa}

	idx.bwt = make([]byte, n)
	for i, p := range sa {
		if p == 0 {
			idx.bwt[i] = sentinel
			idx.dollar = uint64(i)
			continue
		}
		idx.bwt[i] = text[p-1]
	}

	var counts [util.NumBases]uint64
	nCheckpoints := (n >> occShift) + 1
	idx.occ = make([]uint64, nCheckpoints*util.NumBases)
	for i, b := range idx.bwt {
		if i&(occInterval-1) == 0 {
			copy(idx.occ[(i>>occShift)*util.NumBases:], counts[:])
		}
		if b != sentinel {
			counts[b]++
		}
	}
	if n&(occInterval-1) == 0 {
		copy(idx.occ[(n>>occShift)*util.NumBases:], counts[:])
	}

	idx.c[0] = 1
	for c := 0; c < util.NumBases; c++ {
		idx.c[c+1] = idx.c[c] + counts[c]
	}

	idx.properLength = util.Log4Ceil(uint64(n - 1))
	return idx
}

// Occ returns the number of symbol c in BWT[0:i).
func (idx *FMIndex) Occ(c uint8, i uint64) uint64 {
	k := i >> occShift
	count := idx.occ[k*util.NumBases+uint64(c)]
	for _, b := range idx.bwt[k<<occShift : i] {
		if b == c {
			count++
		}
	}
	return count
}

// Length returns the number of rows, i.e., the text length plus one.
func (idx *FMIndex) Length() uint64 { return idx.n }

// TextLength returns the length of the indexed text.
func (idx *FMIndex) TextLength() uint64 { return idx.n - 1 }

// ProperLength returns the expected length of a substring occurring
// only once in the text.
func (idx *FMIndex) ProperLength() uint64 { return idx.properLength }

// Extend prepends a base to the substring represented by the SA interval [lo, hi).
func (idx *FMIndex) Extend(c uint8, lo, hi uint64) (uint64, uint64) {
	if c >= util.BaseN || lo >= hi {
		return 0, 0
	}
	return idx.c[c] + idx.Occ(c, lo), idx.c[c] + idx.Occ(c, hi)
}

// BackwardSearch returns the SA interval [lo, hi) of the key.
// Keys with N have no occurrences.
func (idx *FMIndex) BackwardSearch(key []byte) (uint64, uint64) {
	lo, hi := uint64(0), idx.n
	for i := len(key) - 1; i >= 0; i-- {
		lo, hi = idx.Extend(key[i], lo, hi)
		if lo >= hi {
			return 0, 0
		}
	}
	return lo, hi
}

// Lookup returns the text position of a suffix array row.
func (idx *FMIndex) Lookup(row uint64) uint64 {
	return uint64(idx.sa[row])
}
