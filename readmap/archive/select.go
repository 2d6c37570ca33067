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

package archive

import (
	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/asearch"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/ReadMap/readmap/matches"
	"github.com/shenwei356/ReadMap/readmap/util"
)

// SelectParameters controls how many matches are decoded and reported.
type SelectParameters struct {
	MaxDecodedMatches uint64 `toml:"max-decoded-matches"`
	// strata decoded after the best one, a proportion of the read
	// length if < 1
	MinDecodedStrata   float64 `toml:"min-decoded-strata"`
	MinReportedMatches uint64  `toml:"min-reported-matches"`
	MaxReportedMatches uint64  `toml:"max-reported-matches"`

	MapQ bool `toml:"mapq" comment:"score the best unique match"`
}

// DefaultSelectParameters is the default SelectParameters.
var DefaultSelectParameters = SelectParameters{
	MaxDecodedMatches:  20,
	MinDecodedStrata:   0,
	MinReportedMatches: 1,
	MaxReportedMatches: 100,
	MapQ:               true,
}

// Validate checks the parameters.
func (sp *SelectParameters) Validate() error {
	if sp.MinDecodedStrata < 0 {
		return errors.Wrapf(asearch.ErrInvalidParameter, "negative min-decoded-strata: %f", sp.MinDecodedStrata)
	}
	if sp.MinReportedMatches > sp.MaxReportedMatches {
		return errors.Wrapf(asearch.ErrInvalidParameter,
			"min-reported-matches (%d) > max-reported-matches (%d)",
			sp.MinReportedMatches, sp.MaxReportedMatches)
	}
	return nil
}

// Select decodes the matches to report: traces of the decoded strata are
// located, intervals are expanded into located traces, and traces are
// sorted by distance and scored. It is called once per read, after the
// search.
func (s *Search) Select(m *matches.Matches, sp *SelectParameters) {
	minStrata := util.IntegerProportion(sp.MinDecodedStrata, len(s.Key))
	if (sp.MaxDecodedMatches == 0 && minStrata == 0 && sp.MinReportedMatches == 0) ||
		(sp.MinReportedMatches == 0 && sp.MaxReportedMatches == 0) {
		m.Filter(func(t *matches.Trace) bool { return false })
		return
	}

	strata, _, lastCap := matches.CalculateMatchesToDecode(&m.Counters,
		sp.MaxDecodedMatches, minStrata, sp.MinReportedMatches, sp.MaxReportedMatches)
	if strata == 0 {
		m.Filter(func(t *matches.Trace) bool { return false })
		return
	}
	last := strata - 1

	// traces
	var nLast uint64
	m.Filter(func(t *matches.Trace) bool {
		if t.Distance > last {
			return false
		}
		if t.Distance == last && nLast >= lastCap {
			return false
		}
		if t.Strand == matches.Reverse {
			m.Cigars.Reverse(t.CigarOffset, t.CigarLength)
		}
		if !s.locate(t) {
			return false
		}
		if t.Distance == last {
			nLast++
		}
		return true
	})
	s.sink.Add("archive.decoded_traces", uint64(len(m.Traces)))

	// intervals
	for i := range m.Intervals {
		iv := &m.Intervals[i]
		if iv.Lo >= iv.Hi || iv.Distance > last {
			continue
		}
		if iv.Distance == last && nLast >= lastCap {
			continue
		}
		nLast = s.expandInterval(m, iv, last, lastCap, nLast)
	}

	m.SortByDistance()
	if sp.MapQ {
		s.score(m)
	}
}

// expandInterval realigns the first position of the interval and adds
// one trace per position sharing the CIGAR.
func (s *Search) expandInterval(m *matches.Matches, iv *matches.Interval,
	last int, lastCap, nLast uint64) uint64 {
	fmi := s.idx.FMI
	key := s.KeyOf(iv.Strand)
	pen := &s.params.AlignOptions().Penalties

	var res align.Result
	if iv.Distance == 0 || s.params.AlignmentModel == align.ModelNone {
		res = align.Exact(m.Cigars, len(key), pen)
		res.Distance = iv.Distance
	} else {
		pos := fmi.Lookup(iv.Lo)
		text := s.texts.Trace(s.texts.Retrieve(pos, iv.Length)).Text
		switch s.params.AlignmentModel {
		case align.ModelHamming:
			if len(text) < len(key) {
				return nLast
			}
			res = align.Hamming(m.Cigars, key, text[:len(key)], s.params.Allowed(), pen)
		case align.ModelLevenshtein:
			res = s.aligner.Levenshtein(m.Cigars, key, s.SearchOf(iv.Strand).Pattern.BPM, text, iv.Distance)
		default:
			res = s.aligner.SWG(m.Cigars, key, text, nil)
		}
		if !res.Valid {
			s.sink.Inc("archive.realign_failed")
			return nLast
		}
	}
	if iv.Strand == matches.Reverse {
		m.Cigars.Reverse(res.CigarOffset, res.CigarLength)
	}

	cigar := m.Cigars.Slice(res.CigarOffset, res.CigarLength)
	t := matches.Trace{
		Strand:          iv.Strand,
		Distance:        iv.Distance,
		EditDistance:    res.Distance,
		EventDistance:   align.EventDistance(cigar),
		Score:           res.Score,
		CigarOffset:     res.CigarOffset,
		CigarLength:     res.CigarLength,
		EffectiveLength: align.EffectiveLength(cigar),
	}
	var tt matches.Trace
	for row := iv.Lo; row < iv.Hi; row++ {
		if iv.Distance == last && nLast >= lastCap {
			break
		}
		tt = t
		tt.IndexPosition = fmi.Lookup(row) + uint64(res.TextBegin)
		if !s.locate(&tt) {
			continue
		}
		if _, added := m.AddTrace(tt, false); added && iv.Distance == last {
			nLast++
		}
	}
	return nLast
}

// locate maps the index position of a trace to the reference sequence.
// Matches on reverse complement copies of sequences are reported on the
// reverse strand of the forward sequences.
func (s *Search) locate(t *matches.Trace) bool {
	loc, ok := s.idx.Locator.Map(t.IndexPosition)
	if !ok {
		return false
	}
	t.SeqName = loc.Tag
	t.SeqIdx = loc.SeqIdx
	if loc.Direction == index.Reverse {
		if loc.Position < uint64(t.EffectiveLength) {
			return false
		}
		t.TextPosition = loc.Position - uint64(t.EffectiveLength)
		t.Strand = matches.Reverse
	} else {
		t.TextPosition = loc.Position
	}
	return true
}

// score sets the mapping quality of the best match, if it is unique.
func (s *Search) score(m *matches.Matches) {
	for i := range m.Traces {
		m.Traces[i].MapQ = 0
	}
	if len(m.Traces) == 0 || m.Classify() != matches.Unique {
		return
	}
	pr := m.ComputePredictors(len(s.Key), s.params.MatchScore, s.maxRegionLength(),
		int(s.idx.FMI.ProperLength()))
	m.Traces[0].MapQ = int(matches.UniqueScore(pr))
}
