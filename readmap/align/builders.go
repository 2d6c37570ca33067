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

// Result is the outcome of an alignment builder.
type Result struct {
	Valid bool

	Distance int // edit distance
	Score    int

	// aligned region of the text, [TextBegin, TextEnd)
	TextBegin, TextEnd int

	// CIGAR in the buffer
	CigarOffset, CigarLength int
}

// Exact records a single match element spanning the whole key.
func Exact(buf *CigarBuffer, keyLength int, p *Penalties) Result {
	offset := buf.Start()
	buf.Append(CigarMatch, keyLength)
	r := Result{
		Valid:       true,
		TextEnd:     keyLength,
		CigarOffset: offset,
		CigarLength: buf.Len() - offset,
	}
	if p != nil {
		r.Score = keyLength * p.MatchScore()
	}
	return r
}

// AllowedBases marks which encoded bases of the key can be matched.
type AllowedBases [util.NumBases]bool

// DefaultAllowedBases allows ACGT.
var DefaultAllowedBases = AllowedBases{true, true, true, true, false}

// Hamming compares the key and the text base by base. Different or
// disallowed bases are mismatches. The text must be as long as the key.
func Hamming(buf *CigarBuffer, key, text []byte, allowed *AllowedBases, p *Penalties) Result {
	if allowed == nil {
		allowed = &DefaultAllowedBases
	}
	offset := buf.Start()
	var distance int
	for i, c := range key {
		if c == text[i] && allowed[c] {
			buf.Append(CigarMatch, 1)
			continue
		}
		buf.AppendMismatch(text[i])
		distance++
	}
	r := Result{
		Valid:       true,
		Distance:    distance,
		TextEnd:     len(key),
		CigarOffset: offset,
		CigarLength: buf.Len() - offset,
	}
	if p != nil {
		r.Score = p.Score(buf.Slice(r.CigarOffset, r.CigarLength), key)
	}
	return r
}

// HammingDistance only counts the mismatches, it stops once the
// distance exceeds maxDistance.
func HammingDistance(key, text []byte, allowed *AllowedBases, maxDistance int) (int, bool) {
	if allowed == nil {
		allowed = &DefaultAllowedBases
	}
	if len(text) < len(key) {
		return DistanceInf, false
	}
	var distance int
	for i, c := range key {
		if c != text[i] || !allowed[c] {
			distance++
			if distance > maxDistance {
				return distance, false
			}
		}
	}
	return distance, true
}

// Levenshtein aligns the key to the best-matching substring of the text
// with Myers' algorithm and traces back the operations. If the distance
// exceeds maxDistance, the result is invalid and nothing is appended.
func (alg *Aligner) Levenshtein(buf *CigarBuffer, key []byte, bpm *BPMPattern, text []byte, maxDistance int) Result {
	if bpm == nil {
		bpm = NewBPMPattern(key)
	}
	var scores []int
	alg.pvs, alg.mvs, scores = bpm.columns(text, alg.pvs, alg.mvs)

	// the leftmost best end column
	best, col := scores[0], 0
	for j := 1; j < len(scores); j++ {
		if scores[j] < best {
			best, col = scores[j], j
		}
	}
	r := Result{Distance: best}
	if best > maxDistance {
		return r
	}

	// traceback
	i, j := len(key), col
	d := best
	var diag int
	alg.ops = alg.ops[:0]
	for i > 0 {
		if j > 0 {
			diag = bpm.cell(alg.pvs, alg.mvs, i-1, j-1)
			if key[i-1] == text[j-1] && key[i-1] < util.BaseN {
				if diag == d {
					alg.pushOp(CigarMatch, 0)
					i--
					j--
					continue
				}
			} else if diag+1 == d {
				alg.pushOp(CigarMismatch, text[j-1])
				i--
				j--
				d = diag
				continue
			}
		}
		if up := bpm.cell(alg.pvs, alg.mvs, i-1, j); up+1 == d {
			alg.pushOp(CigarIns, 0)
			i--
			d = up
			continue
		}
		// it must come from the left
		if j == 0 {
			log.Warningf("BPM traceback: no path at row %d of %d, distance %d", i, len(key), d)
			alg.ops = alg.ops[:0]
			return r
		}
		alg.pushOp(CigarDel, 0)
		j--
		d--
	}

	r.Valid = true
	r.TextBegin, r.TextEnd = j, col
	r.CigarOffset = buf.Start()
	alg.pushOps(buf)
	r.CigarLength = buf.Len() - r.CigarOffset
	r.Score = alg.Options.Penalties.Score(buf.Slice(r.CigarOffset, r.CigarLength), key)
	return r
}
