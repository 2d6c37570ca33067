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
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/shenwei356/ReadMap/readmap/util"
)

// CigarType is the type of CIGAR elements.
type CigarType uint8

const (
	CigarMatch CigarType = iota
	CigarMismatch
	CigarIns // bases in the read, not in the reference
	CigarDel // bases in the reference, not in the read
	CigarSoftTrim
	CigarNull
)

func (t CigarType) String() string {
	switch t {
	case CigarMatch:
		return "="
	case CigarMismatch:
		return "X"
	case CigarIns:
		return "I"
	case CigarDel:
		return "D"
	case CigarSoftTrim:
		return "S"
	}
	return "?"
}

// CigarElement is one operation. A mismatch covers one base and
// records the reference base.
type CigarElement struct {
	Type   CigarType
	Length uint32
	Base   uint8
}

// CigarBuffer is an append-only buffer of CIGAR elements shared by all
// matches of a read, a match only holds an (offset, length) slice.
type CigarBuffer struct {
	Elements []CigarElement

	mark int // appended elements never coalesce with those before mark
}

// NewCigarBuffer creates a CigarBuffer.
func NewCigarBuffer(capacity int) *CigarBuffer {
	return &CigarBuffer{Elements: make([]CigarElement, 0, capacity)}
}

// Len returns the number of used elements.
func (b *CigarBuffer) Len() int { return len(b.Elements) }

// Start marks the beginning of a new CIGAR and returns its offset.
func (b *CigarBuffer) Start() int {
	b.mark = len(b.Elements)
	return b.mark
}

// Append appends n operations of type t, merged into the last element
// when it has the same type.
func (b *CigarBuffer) Append(t CigarType, n int) {
	if n <= 0 {
		return
	}
	if t == CigarMismatch {
		for i := 0; i < n; i++ {
			b.AppendMismatch(util.BaseN)
		}
		return
	}
	last := len(b.Elements) - 1
	if last >= b.mark && b.Elements[last].Type == t {
		b.Elements[last].Length += uint32(n)
		return
	}
	b.Elements = append(b.Elements, CigarElement{Type: t, Length: uint32(n)})
}

// AppendMismatch appends one mismatch with the reference base.
func (b *CigarBuffer) AppendMismatch(base uint8) {
	b.Elements = append(b.Elements, CigarElement{Type: CigarMismatch, Length: 1, Base: base})
}

// Slice returns the elements of a CIGAR.
func (b *CigarBuffer) Slice(offset, length int) []CigarElement {
	return b.Elements[offset : offset+length]
}

// Truncate drops elements after n.
func (b *CigarBuffer) Truncate(n int) {
	if n < len(b.Elements) {
		b.Elements = b.Elements[:n]
	}
	if b.mark > n {
		b.mark = n
	}
}

// Reset clears the buffer.
func (b *CigarBuffer) Reset() {
	b.Elements = b.Elements[:0]
	b.mark = 0
}

// Reverse reverses the order of elements of a CIGAR.
func (b *CigarBuffer) Reverse(offset, length int) {
	s := b.Elements[offset : offset+length]
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// ReverseColorspace reverses the elements and complements
// the bases of mismatches.
func (b *CigarBuffer) ReverseColorspace(offset, length int) {
	b.Reverse(offset, length)
	s := b.Elements[offset : offset+length]
	for i := range s {
		if s[i].Type == CigarMismatch && s[i].Base < util.NumBases {
			s[i].Base = util.EncComplement[s[i].Base]
		}
	}
}

// EffectiveLength returns the length of the reference spanned by the CIGAR.
func EffectiveLength(elems []CigarElement) int {
	var n int
	for _, e := range elems {
		switch e.Type {
		case CigarMatch, CigarMismatch, CigarDel:
			n += int(e.Length)
		}
	}
	return n
}

// EditDistance returns the number of mismatches and indel bases.
func EditDistance(elems []CigarElement) int {
	var n int
	for _, e := range elems {
		switch e.Type {
		case CigarMismatch, CigarIns, CigarDel:
			n += int(e.Length)
		}
	}
	return n
}

// EventDistance counts mismatches and indel events, an indel of any
// length is one event.
func EventDistance(elems []CigarElement) int {
	var n int
	for _, e := range elems {
		switch e.Type {
		case CigarMismatch:
			n += int(e.Length)
		case CigarIns, CigarDel:
			n++
		}
	}
	return n
}

// ReadLength returns the number of read bases covered by the CIGAR.
func ReadLength(elems []CigarElement) int {
	var n int
	for _, e := range elems {
		switch e.Type {
		case CigarMatch, CigarMismatch, CigarIns, CigarSoftTrim:
			n += int(e.Length)
		}
	}
	return n
}

// CigarString formats the CIGAR with extended operations, e.g., 40=1X59=.
// Adjacent mismatches are merged.
func CigarString(elems []CigarElement) string {
	var sb strings.Builder
	var n int
	for i, e := range elems {
		n += int(e.Length)
		if i+1 < len(elems) && elems[i+1].Type == e.Type {
			continue
		}
		sb.WriteString(strconv.Itoa(n))
		sb.WriteString(e.Type.String())
		n = 0
	}
	return sb.String()
}

// SAM converts the CIGAR to sam.Cigar in the reference orientation.
// CIGARs of reverse-strand matches are stored in the read orientation,
// so reverse should be true for them.
func SAM(elems []CigarElement, reverse bool) sam.Cigar {
	cigar := make(sam.Cigar, 0, len(elems))
	var t sam.CigarOpType
	var e CigarElement
	n := len(elems)
	for k := 0; k < n; k++ {
		if reverse {
			e = elems[n-1-k]
		} else {
			e = elems[k]
		}
		switch e.Type {
		case CigarMatch, CigarMismatch:
			t = sam.CigarMatch
		case CigarIns:
			t = sam.CigarInsertion
		case CigarDel:
			t = sam.CigarDeletion
		case CigarSoftTrim:
			t = sam.CigarSoftClipped
		default:
			continue
		}
		if last := len(cigar) - 1; last >= 0 && cigar[last].Type() == t {
			cigar[last] = sam.NewCigarOp(t, cigar[last].Len()+int(e.Length))
			continue
		}
		cigar = append(cigar, sam.NewCigarOp(t, int(e.Length)))
	}
	return cigar
}
