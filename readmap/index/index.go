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
	"runtime"

	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/util"
)

// Threads is the number of goroutines used in building and serialization.
var Threads = runtime.NumCPU()

// ErrNoSequences means no sequences are given for indexing.
var ErrNoSequences = errors.New("index: no sequences given")

// ErrSeqNamesMismatch means the numbers of names and sequences differ.
var ErrSeqNamesMismatch = errors.New("index: numbers of names and sequences mismatch")

// BuildingOptions contains the options for building an index.
type BuildingOptions struct {
	// also index the reverse complement strands, so the search
	// does not have to emulate reverse complement searching.
	FR bool

	// sequences shorter than this are skipped.
	MinSeqLen int
}

// DefaultBuildingOptions is the default building options.
var DefaultBuildingOptions = BuildingOptions{
	FR:        false,
	MinSeqLen: 1,
}

// Index is the reference archive searched by the mapper.
type Index struct {
	FMI     *FMIndex
	Locator *Locator
	Text    []byte // encoded text

	FR bool

	SeqNames   []string
	SeqLengths []int
}

// Build builds an index from the reference sequences (letters).
func Build(names []string, seqs [][]byte, opt *BuildingOptions) (*Index, error) {
	if opt == nil {
		opt = &DefaultBuildingOptions
	}
	if len(names) != len(seqs) {
		return nil, ErrSeqNamesMismatch
	}

	idx := &Index{FR: opt.FR}

	var size int
	for i, s := range seqs {
		if len(s) < opt.MinSeqLen || len(s) == 0 {
			continue
		}
		idx.SeqNames = append(idx.SeqNames, names[i])
		idx.SeqLengths = append(idx.SeqLengths, len(s))
		size += len(s) + 1
	}
	if len(idx.SeqNames) == 0 {
		return nil, ErrNoSequences
	}
	if opt.FR {
		size <<= 1
	}

	text := make([]byte, 0, size)
	intervals := make([]SeqInterval, 0, len(idx.SeqNames)<<1)

	var j int
	for i, s := range seqs {
		if len(s) < opt.MinSeqLen || len(s) == 0 {
			continue
		}
		if len(text) > 0 {
			text = append(text, util.BaseN)
		}
		begin := uint64(len(text))
		for _, b := range s {
			text = append(text, util.EncodeBase(b))
		}
		intervals = append(intervals, SeqInterval{
			Tag: names[i], SeqIdx: j,
			Begin: begin, End: uint64(len(text)),
			Direction: Forward,
		})
		j++
	}

	if opt.FR {
		n := len(intervals)
		for i := 0; i < n; i++ {
			iv := intervals[i]
			text = append(text, util.BaseN)
			begin := uint64(len(text))
			for p := iv.End; p > iv.Begin; p-- {
				text = append(text, util.EncComplement[text[p-1]])
			}
			intervals = append(intervals, SeqInterval{
				Tag: iv.Tag, SeqIdx: iv.SeqIdx,
				Begin: begin, End: uint64(len(text)),
				Direction: Reverse,
			})
		}
	}

	fmi, err := NewFMIndex(text)
	if err != nil {
		return nil, err
	}

	idx.FMI = fmi
	idx.Text = text
	idx.Locator = NewLocator(intervals)
	return idx, nil
}

// Retrieve returns encoded bases of the text in [pos, pos+length),
// clipped at the end of the text. The returned slice must not be modified.
func (idx *Index) Retrieve(pos, length uint64) []byte {
	n := uint64(len(idx.Text))
	if pos >= n {
		return nil
	}
	end := pos + length
	if end > n {
		end = n
	}
	return idx.Text[pos:end]
}

// TextLength returns the length of the indexed text.
func (idx *Index) TextLength() uint64 { return uint64(len(idx.Text)) }
