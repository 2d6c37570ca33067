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
	"math"

	"github.com/shenwei356/ReadMap/readmap/util"
)

const negInf = math.MinInt32 / 2

// sources of cells in the H matrix
const (
	fromNone uint8 = iota // start of the alignment
	fromDiag
	fromE // deletion
	fromF // insertion

	extE uint8 = 1 << 2 // E extends a gap
	extF uint8 = 1 << 3 // F extends a gap
)

// Anchor is a known exact match between the key and the text.
type Anchor struct {
	KeyBegin  int
	TextBegin int
	Length    int
}

type swgMode struct {
	freeBegin bool // text bases before the alignment are free
	freeEnd   bool // text bases after the alignment are free
	local     bool // key ends can be soft-trimmed
}

// SWG aligns the whole key to a substring of the text with
// Smith-Waterman-Gotoh (gap-affine) alignment. Anchors, which must be
// sorted and consistent, are exact matching regions: only the gaps
// between them are aligned.
func (alg *Aligner) SWG(buf *CigarBuffer, key, text []byte, anchors []Anchor) Result {
	if !validAnchors(key, text, anchors) {
		anchors = nil
	}

	offset := buf.Start()
	if len(anchors) == 0 {
		score, _, _, tb, te := alg.swg(buf, key, text, swgMode{freeBegin: true, freeEnd: true})
		return alg.finish(buf, key, offset, score, tb, te)
	}

	var score, s, tb, te int
	var prevKey, prevText int
	for k, a := range anchors {
		if k == 0 {
			s, _, _, tb, _ = alg.swg(buf, key[:a.KeyBegin], text[:a.TextBegin], swgMode{freeBegin: true})
		} else {
			s, _, _, _, _ = alg.swg(buf, key[prevKey:a.KeyBegin], text[prevText:a.TextBegin], swgMode{})
		}
		score += s
		buf.Append(CigarMatch, a.Length)
		score += a.Length * alg.Options.Penalties.MatchScore()
		prevKey, prevText = a.KeyBegin+a.Length, a.TextBegin+a.Length
	}
	s, _, _, _, te = alg.swg(buf, key[prevKey:], text[prevText:], swgMode{freeEnd: true})
	score += s
	return alg.finish(buf, key, offset, score, tb, prevText+te)
}

// SWGLocal aligns a part of the key to a part of the text (Smith-Waterman),
// the unaligned key ends are soft-trimmed.
func (alg *Aligner) SWGLocal(buf *CigarBuffer, key, text []byte) Result {
	offset := buf.Start()
	score, _, _, tb, te := alg.swg(buf, key, text, swgMode{freeBegin: true, freeEnd: true, local: true})
	if score <= 0 {
		buf.Truncate(offset)
		return Result{}
	}
	return alg.finish(buf, key, offset, score, tb, te)
}

func (alg *Aligner) finish(buf *CigarBuffer, key []byte, offset, score, tb, te int) Result {
	r := Result{
		Valid:       true,
		Score:       score,
		TextBegin:   tb,
		TextEnd:     te,
		CigarOffset: offset,
		CigarLength: buf.Len() - offset,
	}
	r.Distance = EditDistance(buf.Slice(r.CigarOffset, r.CigarLength))
	return r
}

func validAnchors(key, text []byte, anchors []Anchor) bool {
	var k, t int
	for _, a := range anchors {
		if a.Length <= 0 || a.KeyBegin < k || a.TextBegin < t ||
			a.KeyBegin+a.Length > len(key) || a.TextBegin+a.Length > len(text) {
			return false
		}
		for i := 0; i < a.Length; i++ {
			if key[a.KeyBegin+i] != text[a.TextBegin+i] || key[a.KeyBegin+i] == util.BaseN {
				return false
			}
		}
		k, t = a.KeyBegin+a.Length, a.TextBegin+a.Length
	}
	return true
}

// swg fills the matrices and appends the operations of the best alignment.
// It returns the score, the aligned key region and the aligned text region.
func (alg *Aligner) swg(buf *CigarBuffer, key, text []byte, mode swgMode) (score, keyBegin, keyEnd, textBegin, textEnd int) {
	m, n := len(key), len(text)
	w := n + 1
	size := (m + 1) * w

	if cap(alg.h) < size {
		alg.h = make([]int, size)
		alg.e = make([]int, size)
		alg.f = make([]int, size)
		alg.pointers = make([]uint8, size)
	}
	h, e, f, ptrs := alg.h[:size], alg.e[:size], alg.f[:size], alg.pointers[:size]

	pen := &alg.Options.Penalties
	oe := pen.GapOpen + pen.GapExtension
	ext := pen.GapExtension

	// band on diagonals j-i
	bw := alg.Options.MaxBandwidth
	loDiag, hiDiag := math.MinInt32, math.MaxInt32
	if bw > 0 {
		loDiag, hiDiag = -bw, n-m+bw
		if hiDiag < loDiag {
			hiDiag = loDiag
		}
	}

	var i, j, k int
	h[0], e[0], f[0], ptrs[0] = 0, negInf, negInf, fromNone
	for j = 1; j <= n; j++ {
		f[j] = negInf
		if mode.freeBegin || mode.local {
			h[j], e[j], ptrs[j] = 0, negInf, fromNone
			continue
		}
		e[j] = -(pen.GapOpen + j*ext)
		h[j] = e[j]
		ptrs[j] = fromE
		if j > 1 {
			ptrs[j] |= extE
		}
	}
	for i = 1; i <= m; i++ {
		k = i * w
		e[k] = negInf
		if mode.local {
			h[k], f[k], ptrs[k] = 0, negInf, fromNone
			continue
		}
		f[k] = -(pen.GapOpen + i*ext)
		h[k] = f[k]
		ptrs[k] = fromF
		if i > 1 {
			ptrs[k] |= extF
		}
	}

	var best, bestI, bestJ int
	best = negInf
	var v, v2, d int
	var p uint8
	for i = 1; i <= m; i++ {
		for j = 1; j <= n; j++ {
			k = i*w + j
			if d = j - i; d < loDiag || d > hiDiag {
				h[k], e[k], f[k], ptrs[k] = negInf, negInf, negInf, fromNone
				continue
			}
			p = 0

			v, v2 = h[k-1]-oe, e[k-1]-ext
			if v2 > v {
				v = v2
				p |= extE
			}
			e[k] = v

			v, v2 = h[k-w]-oe, f[k-w]-ext
			if v2 > v {
				v = v2
				p |= extF
			}
			f[k] = v

			v = h[k-w-1] + pen.Matrix[key[i-1]][text[j-1]]
			p |= fromDiag
			if e[k] > v {
				v = e[k]
				p = p&^3 | fromE
			}
			if f[k] > v {
				v = f[k]
				p = p&^3 | fromF
			}
			if mode.local && v <= 0 {
				v = 0
				p = p &^ 3
			}
			h[k], ptrs[k] = v, p

			if mode.local && v > best {
				best, bestI, bestJ = v, i, j
			}
		}
	}

	switch {
	case mode.local:
		if best <= 0 {
			return 0, 0, 0, 0, 0
		}
	case mode.freeEnd:
		bestI = m
		best, bestJ = h[m*w], 0
		for j = 1; j <= n; j++ {
			if h[m*w+j] > best {
				best, bestJ = h[m*w+j], j
			}
		}
	default:
		bestI, bestJ = m, n
		best = h[m*w+n]
	}

	// traceback
	i, j = bestI, bestJ
	state := fromNone
	alg.ops = alg.ops[:0]
	for {
		k = i*w + j
		p = ptrs[k]
		if state == fromNone {
			switch p & 3 {
			case fromNone:
				goto DONE
			case fromDiag:
				if key[i-1] == text[j-1] && key[i-1] < util.BaseN {
					alg.pushOp(CigarMatch, 0)
				} else {
					alg.pushOp(CigarMismatch, text[j-1])
				}
				i--
				j--
				continue
			default:
				state = p & 3
			}
		}
		if state == fromE {
			alg.pushOp(CigarDel, 0)
			j--
			if p&extE == 0 {
				state = fromNone
			}
		} else {
			alg.pushOp(CigarIns, 0)
			i--
			if p&extF == 0 {
				state = fromNone
			}
		}
	}
DONE:
	if mode.local && i > 0 {
		buf.Append(CigarSoftTrim, i)
	}
	alg.pushOps(buf)
	if mode.local && bestI < m {
		buf.Append(CigarSoftTrim, m-bestI)
	}
	return best, i, bestI, j, bestJ
}
