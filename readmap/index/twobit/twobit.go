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

// Package twobit serializes encoded texts with 2 bits per base.
// Ambiguous bases are stored aside as runs.
package twobit

import (
	"encoding/binary"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var be = binary.BigEndian

// Magic number for checking file format
var Magic = [8]byte{'2', 'b', 'i', 't', 't', 'e', 'x', 't'}

// MainVersion is use for checking compatibility
var MainVersion uint8 = 2

// MinorVersion is less important
var MinorVersion uint8 = 0

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("2bit text: invalid binary format")

// ErrEmptySeq means the sequence is empty
var ErrEmptySeq = errors.New("2bit text: empty seq")

// ErrInvalidTwoBitData means the length of packed data does not match the number of bases.
var ErrInvalidTwoBitData = errors.New("2bit text: invalid two-bit data")

// ErrBrokenFile means the data is not complete.
var ErrBrokenFile = errors.New("2bit text: broken file")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("2bit text: version mismatch")

// NRun is a run of ambiguous bases: [start, start+length).
type NRun [2]uint32

// Write packs an encoded text (A=0, C=1, G=2, T=3, others=N).
//
// Layout:
//
//	magic   [8]byte
//	version [8]uint8
//	#bases  uint64
//	#N-runs uint64
//	N-runs  [#N-runs][2]uint32
//	data    [ceil(#bases/4)]byte
func Write(w io.Writer, s []byte) error {
	if len(s) == 0 {
		return ErrEmptySeq
	}
	b2, runs := Pack(s)
	defer RecycleTwoBit(b2)

	buf := make([]byte, 32)
	copy(buf[:8], Magic[:])
	buf[8], buf[9] = MainVersion, MinorVersion
	be.PutUint64(buf[16:24], uint64(len(s)))
	be.PutUint64(buf[24:32], uint64(len(runs)))
	if _, err := w.Write(buf); err != nil {
		return err
	}

	for _, r := range runs {
		be.PutUint32(buf[:4], r[0])
		be.PutUint32(buf[4:8], r[1])
		if _, err := w.Write(buf[:8]); err != nil {
			return err
		}
	}

	_, err := w.Write(*b2)
	return err
}

// Read restores an encoded text written by Write.
func Read(r io.Reader) ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrBrokenFile
	}
	if [8]byte(buf[:8]) != Magic {
		return nil, ErrInvalidFileFormat
	}
	if buf[8] != MainVersion {
		return nil, ErrVersionMismatch
	}
	bases := be.Uint64(buf[16:24])
	nRuns := be.Uint64(buf[24:32])
	if bases == 0 || bases > 1<<32 || nRuns > bases {
		return nil, ErrInvalidFileFormat
	}

	runs := make([]NRun, nRuns)
	for i := range runs {
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return nil, ErrBrokenFile
		}
		runs[i] = NRun{be.Uint32(buf[:4]), be.Uint32(buf[4:8])}
	}

	b2 := make([]byte, (bases+3)>>2)
	if _, err := io.ReadFull(r, b2); err != nil {
		return nil, ErrBrokenFile
	}
	return Unpack(b2, int(bases), runs)
}

// CountN returns the number of ambiguous bases in the runs.
func CountN(runs []NRun) int {
	var n int
	for _, r := range runs {
		n += int(r[1])
	}
	return n
}

// overlayN writes N into s (which starts at text position start).
func overlayN(s []byte, runs []NRun, start int) {
	if len(runs) == 0 {
		return
	}
	end := start + len(s)
	// the first run that may overlap
	i := sort.Search(len(runs), func(i int) bool {
		return int(runs[i][0]+runs[i][1]) > start
	})
	var b, e int
	for ; i < len(runs); i++ {
		b = int(runs[i][0])
		if b >= end {
			break
		}
		e = min(b+int(runs[i][1]), end)
		for p := max(b, start); p < e; p++ {
			s[p-start] = 4
		}
	}
}

// RecycleTwoBit recycles the packed data.
func RecycleTwoBit(b2 *[]byte) {
	poolTwoBit.Put(b2)
}

var poolTwoBit = &sync.Pool{New: func() interface{} {
	tmp := make([]byte, 0, 1<<20)
	return &tmp
}}

// Pack converts encoded bases to 2bit-packed data and the list of N runs.
// N bases are packed as A.
func Pack(s []byte) (*[]byte, []NRun) {
	codes := poolTwoBit.Get().(*[]byte)
	*codes = (*codes)[:0]

	var runs []NRun
	var c, cur byte
	inRun := false
	for i, e := range s {
		c = e
		if c > 3 {
			c = 0
			if inRun {
				runs[len(runs)-1][1]++
			} else {
				runs = append(runs, NRun{uint32(i), 1})
				inRun = true
			}
		} else {
			inRun = false
		}

		cur = cur<<2 | c
		if i&3 == 3 {
			*codes = append(*codes, cur)
			cur = 0
		}
	}
	if m := len(s) & 3; m > 0 {
		*codes = append(*codes, cur<<(uint(4-m)<<1))
	}

	return codes, runs
}

// Unpack restores encoded bases from packed data and N runs.
func Unpack(b2 []byte, bases int, runs []NRun) ([]byte, error) {
	// possible bases for b2 of n bytes: [n*4-3, n*4]
	if bases < (len(b2)<<2)-3 || bases > len(b2)<<2 {
		return nil, ErrInvalidTwoBitData
	}

	s := make([]byte, bases)
	for p := range s {
		s[p] = b2[p>>2] >> (6 - (uint(p&3) << 1)) & 3
	}
	overlayN(s, runs, 0)
	return s, nil
}
