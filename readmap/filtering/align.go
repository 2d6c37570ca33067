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
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/matches"
)

// AlignParameters are the parameters of aligning accepted candidates.
type AlignParameters struct {
	Model    align.Model
	Allowed  *align.AllowedBases
	Aligner  *align.Aligner
	MaxError int // traces with more errors are dropped
	Strand   matches.Strand
}

// Align aligns the accepted candidates and adds the traces to the
// matches. It returns the number of new traces.
func (c *Candidates) Align(p *align.Pattern, ap *AlignParameters, m *matches.Matches) int {
	var n int
	for _, r := range c.Accepted {
		if c.alignRegion(r, p, ap, m) {
			n++
		}
	}
	c.Accepted = c.Accepted[:0]
	return n
}

func (c *Candidates) alignRegion(r *Region, p *align.Pattern, ap *AlignParameters, m *matches.Matches) bool {
	key := p.Key
	keyLen := len(key)
	buf := m.Cigars
	pen := &ap.Aligner.Options.Penalties
	text := c.Text(r)

	var res align.Result
	var begin int // of the text
	switch {
	case r.Alignment.DistanceMinBound == 0:
		off := int(r.Begin - r.TextBegin)
		if off < 0 || off+keyLen > len(text) {
			return false
		}
		res = align.Exact(buf, keyLen, pen)
		begin = off
	case ap.Model == align.ModelNone:
		c.sink.Inc("align.skipped")
		return false
	case ap.Model == align.ModelHamming:
		if r.Begin < r.TextBegin {
			return false
		}
		off := int(r.Begin - r.TextBegin)
		if off+keyLen > len(text) {
			return false
		}
		if _, ok := align.HammingDistance(key, text[off:], ap.Allowed, ap.MaxError); !ok {
			c.sink.Inc("align.dropped")
			return false
		}
		res = align.Hamming(buf, key, text[off:off+keyLen], ap.Allowed, pen)
		begin = off
	case ap.Model == align.ModelLevenshtein:
		res = ap.Aligner.Levenshtein(buf, key, p.BPM, text, ap.MaxError)
		begin = res.TextBegin
	default:
		res = ap.Aligner.SWG(buf, key, text, r.Anchors)
		begin = res.TextBegin
	}

	if !res.Valid || res.Distance > ap.MaxError {
		if res.Valid {
			buf.Truncate(res.CigarOffset)
		}
		c.sink.Inc("align.dropped")
		return false
	}
	c.sink.Inc("align." + ap.Model.String())
	return addTrace(m, r.TextBegin+uint64(begin), ap.Strand, &res)
}

func addTrace(m *matches.Matches, pos uint64, strand matches.Strand, res *align.Result) bool {
	cigar := m.Cigars.Slice(res.CigarOffset, res.CigarLength)
	_, added := m.AddTrace(matches.Trace{
		IndexPosition:   pos,
		Strand:          strand,
		Distance:        res.Distance,
		EditDistance:    res.Distance,
		EventDistance:   align.EventDistance(cigar),
		Score:           res.Score,
		CigarOffset:     res.CigarOffset,
		CigarLength:     res.CigarLength,
		EffectiveLength: align.EffectiveLength(cigar),
	}, true)
	return added
}

// AlignLocal aligns a part of the key to the discarded candidates with
// local gap-affine alignment, traces with a score under minScore are
// dropped. It returns the number of new traces.
func (c *Candidates) AlignLocal(p *align.Pattern, ap *AlignParameters, minScore int, m *matches.Matches) int {
	var n int
	var text []byte
	var res align.Result
	for _, r := range c.Discarded {
		text = c.Text(r)
		res = ap.Aligner.SWGLocal(m.Cigars, p.Key, text)
		if !res.Valid {
			continue
		}
		if res.Score < minScore {
			m.Cigars.Truncate(res.CigarOffset)
			continue
		}
		c.sink.Inc("align.local")
		if addTrace(m, r.TextBegin+uint64(res.TextBegin), ap.Strand, &res) {
			n++
		}
	}
	c.Discarded = c.Discarded[:0]
	return n
}
