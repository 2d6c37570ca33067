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
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/ReadMap/readmap/util"
)

// TextTrace is a retrieved text of the index.
type TextTrace struct {
	Position uint64
	Length   int    // requested length
	Text     []byte // encoded bases, read only, shorter at the end of the index
	NumN     int
}

// TextCollection caches retrieved texts of one worker, it is cleared
// for every read.
type TextCollection struct {
	idx    *index.Index
	traces []TextTrace
	cache  map[uint64]int // hash of (position, length) -> trace offset
	buf    [12]byte
}

// NewTextCollection creates a TextCollection.
func NewTextCollection(idx *index.Index) *TextCollection {
	return &TextCollection{
		idx:    idx,
		traces: make([]TextTrace, 0, 64),
		cache:  make(map[uint64]int, 64),
	}
}

// Retrieve retrieves the text and returns the trace offset.
func (tc *TextCollection) Retrieve(pos uint64, length int) int {
	binary.BigEndian.PutUint64(tc.buf[:8], pos)
	binary.BigEndian.PutUint32(tc.buf[8:], uint32(length))
	h := xxhash.Sum64(tc.buf[:])
	if i, ok := tc.cache[h]; ok {
		if t := &tc.traces[i]; t.Position == pos && t.Length == length {
			return i
		}
	}

	text := tc.idx.Retrieve(pos, uint64(length))
	var n int
	for _, c := range text {
		if c == util.BaseN {
			n++
		}
	}
	i := len(tc.traces)
	tc.traces = append(tc.traces, TextTrace{
		Position: pos,
		Length:   length,
		Text:     text,
		NumN:     n,
	})
	tc.cache[h] = i
	return i
}

// Trace returns a text trace.
func (tc *TextCollection) Trace(offset int) *TextTrace { return &tc.traces[offset] }

// Len returns the number of traces.
func (tc *TextCollection) Len() int { return len(tc.traces) }

// Clear clears all traces.
func (tc *TextCollection) Clear() {
	tc.traces = tc.traces[:0]
	clear(tc.cache)
}
