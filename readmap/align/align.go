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

// Package align implements the alignment builders used to verify and
// finalize matches: exact, Hamming, Levenshtein (bit-parallel with
// backtrace) and gap-affine (Smith-Waterman-Gotoh).
package align

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/util"
)

// Model is the alignment model.
type Model uint8

const (
	ModelNone Model = iota // exact matches only
	ModelHamming
	ModelLevenshtein
	ModelGapAffine
)

func (m Model) String() string {
	switch m {
	case ModelNone:
		return "none"
	case ModelHamming:
		return "hamming"
	case ModelLevenshtein:
		return "levenshtein"
	case ModelGapAffine:
		return "gap-affine"
	}
	return "unknown"
}

// ParseModel parses the name of an alignment model.
func ParseModel(s string) (Model, bool) {
	switch s {
	case "none", "exact":
		return ModelNone, true
	case "hamming":
		return ModelHamming, true
	case "levenshtein", "edit":
		return ModelLevenshtein, true
	case "gap-affine", "gap_affine", "swg":
		return ModelGapAffine, true
	}
	return ModelNone, false
}

// MarshalText implements encoding.TextMarshaler.
func (m Model) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Model) UnmarshalText(text []byte) error {
	v, ok := ParseModel(string(text))
	if !ok {
		return errors.Errorf("align: unknown alignment model: %s", text)
	}
	*m = v
	return nil
}

// Penalties are the scores of the gap-affine model.
type Penalties struct {
	Matrix       [util.NumBases][util.NumBases]int
	GapOpen      int // a gap of length l costs GapOpen + l*GapExtension
	GapExtension int
}

// NewPenalties returns penalties with a simple substitution matrix,
// N never matches.
func NewPenalties(match, mismatch, gapOpen, gapExtension int) Penalties {
	p := Penalties{GapOpen: gapOpen, GapExtension: gapExtension}
	for a := 0; a < util.NumBases; a++ {
		for b := 0; b < util.NumBases; b++ {
			if a == b && a != int(util.BaseN) {
				p.Matrix[a][b] = match
			} else {
				p.Matrix[a][b] = -mismatch
			}
		}
	}
	return p
}

// DefaultPenalties: +1 for matches, -4 for mismatches, gap open 6, extension 1.
var DefaultPenalties = NewPenalties(1, 4, 6, 1)

// MatchScore returns the score of matching bases.
func (p *Penalties) MatchScore() int { return p.Matrix[util.BaseA][util.BaseA] }

// Score computes the score of a CIGAR of the key.
func (p *Penalties) Score(elems []CigarElement, key []byte) int {
	var s, i int
	for _, e := range elems {
		switch e.Type {
		case CigarMatch:
			for k := 0; k < int(e.Length); k++ {
				s += p.Matrix[key[i]][key[i]]
				i++
			}
		case CigarMismatch:
			s += p.Matrix[key[i]][e.Base]
			i++
		case CigarIns:
			s -= p.GapOpen + int(e.Length)*p.GapExtension
			i += int(e.Length)
		case CigarDel:
			s -= p.GapOpen + int(e.Length)*p.GapExtension
		case CigarSoftTrim:
			i += int(e.Length)
		}
	}
	return s
}

// AlignOptions contains all alignment options.
type AlignOptions struct {
	Penalties Penalties

	// band of the gap-affine alignment, <= 0 for no limit.
	MaxBandwidth int
}

// DefaultAlignOptions is the default AlignOptions.
var DefaultAlignOptions = AlignOptions{
	Penalties:    DefaultPenalties,
	MaxBandwidth: 0,
}

// Aligner holds reusable buffers of the Levenshtein and gap-affine aligners.
// It is not safe for concurrent use.
type Aligner struct {
	Options *AlignOptions

	// Levenshtein
	pvs, mvs []uint64

	// gap-affine
	h, e, f  []int
	pointers []uint8

	ops []CigarElement // reversed operations from traceback
}

// NewAligner returns an aligner.
func NewAligner(options *AlignOptions) *Aligner {
	if options == nil {
		options = &DefaultAlignOptions
	}
	return &Aligner{
		Options: options,
		ops:     make([]CigarElement, 0, 256),
	}
}

var poolAligner = &sync.Pool{New: func() interface{} {
	return NewAligner(nil)
}}

// GetAligner returns an aligner from the pool.
func GetAligner(options *AlignOptions) *Aligner {
	alg := poolAligner.Get().(*Aligner)
	if options == nil {
		options = &DefaultAlignOptions
	}
	alg.Options = options
	return alg
}

// RecycleAligner recycles an aligner.
func RecycleAligner(alg *Aligner) {
	poolAligner.Put(alg)
}

// pushOps appends the reversed traceback operations to the buffer.
func (alg *Aligner) pushOps(buf *CigarBuffer) {
	var op CigarElement
	for k := len(alg.ops) - 1; k >= 0; k-- {
		op = alg.ops[k]
		if op.Type == CigarMismatch {
			buf.AppendMismatch(op.Base)
			continue
		}
		buf.Append(op.Type, int(op.Length))
	}
	alg.ops = alg.ops[:0]
}

func (alg *Aligner) pushOp(t CigarType, base uint8) {
	if t != CigarMismatch {
		if last := len(alg.ops) - 1; last >= 0 && alg.ops[last].Type == t {
			alg.ops[last].Length++
			return
		}
	}
	alg.ops = append(alg.ops, CigarElement{Type: t, Length: 1, Base: base})
}
