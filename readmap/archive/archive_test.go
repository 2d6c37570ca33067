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
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/asearch"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/ReadMap/readmap/matches"
	"github.com/shenwei356/ReadMap/readmap/metrics"
	"github.com/shenwei356/ReadMap/readmap/util"
)

func randSeq(r *rand.Rand, n int) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = "ACGT"[r.Intn(4)]
	}
	return s
}

func substitute(s []byte, positions ...int) []byte {
	s = append([]byte{}, s...)
	for _, i := range positions {
		switch s[i] {
		case 'A':
			s[i] = 'C'
		case 'C':
			s[i] = 'G'
		case 'G':
			s[i] = 'T'
		default:
			s[i] = 'A'
		}
	}
	return s
}

func revcomp(s []byte) []byte {
	e := util.Encode(s, nil)
	return util.Decode(util.ReverseComplement(e, nil), nil)
}

func buildIndex(t *testing.T, fr bool, seqs ...[]byte) *index.Index {
	names := make([]string, len(seqs))
	for i := range seqs {
		names[i] = "seq" + string(rune('A'+i))
	}
	idx, err := index.Build(names, seqs, &index.BuildingOptions{FR: fr, MinSeqLen: 1})
	if err != nil {
		t.Fatalf("failed to build index: %s", err)
	}
	return idx
}

// mapRead searches and selects the matches of a read.
func mapRead(t *testing.T, s *Search, name string, read []byte, sp *SelectParameters) *matches.Matches {
	m := matches.NewMatches()
	s.Reset(name, read, nil)
	if err := s.SearchSE(context.Background(), m); err != nil {
		t.Fatalf("%s: unexpected error: %s", name, err)
	}
	s.Select(m, sp)
	return m
}

func findTrace(m *matches.Matches, name string, pos uint64, strand matches.Strand, distance int) *matches.Trace {
	for i := range m.Traces {
		tr := &m.Traces[i]
		if tr.SeqName == name && tr.TextPosition == pos && tr.Strand == strand && tr.Distance == distance {
			return tr
		}
	}
	return nil
}

func TestSearchExactBothStrands(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	ref := randSeq(r, 2000)

	for _, fr := range []bool{false, true} {
		idx := buildIndex(t, fr, ref)
		s := NewSearch(idx, asearch.NewParameters(), nil)
		if (s.Reverse == nil) != fr {
			t.Errorf("fr=%v: the reverse strand search should only exist without fr", fr)
		}

		m := mapRead(t, s, "fwd", ref[500:600], &DefaultSelectParameters)
		if len(m.Traces) != 1 {
			t.Fatalf("fr=%v: expected 1 trace, returned %d", fr, len(m.Traces))
		}
		tr := m.Traces[0]
		if tr.SeqName != "seqA" || tr.TextPosition != 500 || tr.Strand != matches.Forward {
			t.Errorf("fr=%v: unexpected trace: %+v", fr, tr)
		}
		if c := align.CigarString(m.Cigar(&tr)); c != "100=" {
			t.Errorf("fr=%v: unexpected cigar: %s", fr, c)
		}
		if tr.MapQ <= 0 {
			t.Errorf("fr=%v: a unique match should have a positive MAPQ: %d", fr, tr.MapQ)
		}
		if m.MaxCompleteStratum < 1 {
			t.Errorf("fr=%v: unexpected complete stratum: %d", fr, m.MaxCompleteStratum)
		}

		m = mapRead(t, s, "rev", revcomp(ref[800:900]), &DefaultSelectParameters)
		if len(m.Traces) != 1 {
			t.Fatalf("fr=%v: expected 1 trace, returned %d", fr, len(m.Traces))
		}
		tr = m.Traces[0]
		if tr.TextPosition != 800 || tr.Strand != matches.Reverse || tr.EffectiveLength != 100 {
			t.Errorf("fr=%v: unexpected trace: %+v", fr, tr)
		}
	}
}

func TestSearchMismatchesReverse(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	ref := randSeq(r, 3000)
	read := revcomp(substitute(ref[1000:1100], 30, 70))

	for _, fr := range []bool{false, true} {
		idx := buildIndex(t, fr, ref)
		s := NewSearch(idx, asearch.NewParameters(), nil)
		m := mapRead(t, s, "read", read, &DefaultSelectParameters)

		tr := findTrace(m, "seqA", 1000, matches.Reverse, 2)
		if tr == nil {
			t.Fatalf("fr=%v: match not found: %+v", fr, m.Traces)
		}
		if tr.EditDistance != 2 || tr.EffectiveLength != 100 {
			t.Errorf("fr=%v: unexpected trace: %+v", fr, *tr)
		}

		// the cigar is in the orientation of the read
		cigar := m.Cigar(tr)
		if c := align.CigarString(cigar); c != "29=1X39=1X30=" {
			t.Errorf("fr=%v: unexpected cigar: %s", fr, c)
		}

		var buf bytes.Buffer
		n, err := s.CheckMatches(&buf, m, &CheckParameters{Correct: true, Optimum: true})
		if err != nil {
			t.Fatalf("fr=%v: unexpected error: %s", fr, err)
		}
		if n != 0 {
			t.Errorf("fr=%v: %d matches failed the checks:\n%s", fr, n, buf.String())
		}
	}
}

func TestSelectCap(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	unit := randSeq(r, 100)
	var repeats []byte
	for i := 0; i < 30; i++ {
		repeats = append(repeats, unit...)
	}
	idx := buildIndex(t, false, repeats)
	s := NewSearch(idx, asearch.NewParameters(), nil)

	sp := DefaultSelectParameters
	sp.MaxReportedMatches = 10
	m := mapRead(t, s, "unit", unit, &sp)
	if len(m.Traces) != 10 {
		t.Fatalf("expected 10 traces, returned %d", len(m.Traces))
	}
	for _, tr := range m.Traces {
		if tr.Distance != 0 || tr.TextPosition%100 != 0 || tr.Strand != matches.Forward {
			t.Errorf("unexpected trace: %+v", tr)
		}
		if tr.MapQ != 0 {
			t.Errorf("repeated matches should have MAPQ 0: %d", tr.MapQ)
		}
	}
	if c := m.Classify(); !c.Tie() {
		t.Errorf("expected a tie, returned %s", c)
	}

	m = mapRead(t, s, "unit", unit, &DefaultSelectParameters)
	if len(m.Traces) != 30 {
		t.Errorf("expected 30 traces, returned %d", len(m.Traces))
	}

	sp = DefaultSelectParameters
	sp.MinReportedMatches = 0
	sp.MaxReportedMatches = 0
	m = mapRead(t, s, "unit", unit, &sp)
	if len(m.Traces) != 0 {
		t.Errorf("no traces expected, returned %d", len(m.Traces))
	}
}

func TestSelectParametersValidate(t *testing.T) {
	sp := DefaultSelectParameters
	if err := sp.Validate(); err != nil {
		t.Errorf("unexpected error: %s", err)
	}
	sp.MinReportedMatches = 200
	if err := sp.Validate(); errors.Cause(err) != asearch.ErrInvalidParameter {
		t.Errorf("expected ErrInvalidParameter, returned %v", err)
	}
}

func TestCheckCigar(t *testing.T) {
	key := util.Encode([]byte("ACGTACGT"), nil)
	text := util.Encode([]byte("TTACGAACGTTT"), nil)

	tests := []struct {
		cigar []align.CigarElement
		ok    bool
	}{
		{[]align.CigarElement{{Type: align.CigarMatch, Length: 3}, {Type: align.CigarMismatch, Length: 1, Base: util.BaseA}, {Type: align.CigarMatch, Length: 4}}, true},
		{[]align.CigarElement{{Type: align.CigarMatch, Length: 8}}, false},
		{[]align.CigarElement{{Type: align.CigarMatch, Length: 3}, {Type: align.CigarIns, Length: 1}, {Type: align.CigarMatch, Length: 4}}, false},
		{[]align.CigarElement{{Type: align.CigarSoftTrim, Length: 4}, {Type: align.CigarMatch, Length: 4}}, false},
		{[]align.CigarElement{{Type: align.CigarMatch, Length: 4}}, false},
	}
	for i, test := range tests {
		reason := checkCigar(key, text, 2, 8, test.cigar)
		if (reason == "") != test.ok {
			t.Errorf("#%d %s: expected %v, returned %q", i, align.CigarString(test.cigar), test.ok, reason)
		}
	}

	// soft-trimmed ends only cover the read
	reason := checkCigar(key, text, 6, 4, []align.CigarElement{
		{Type: align.CigarSoftTrim, Length: 4}, {Type: align.CigarMatch, Length: 4}})
	if reason != "" {
		t.Errorf("unexpected failure: %s", reason)
	}
}

func TestCheckMatchesDump(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	ref := randSeq(r, 2000)
	idx := buildIndex(t, false, ref)
	s := NewSearch(idx, asearch.NewParameters(), nil)

	m := mapRead(t, s, "read1", ref[500:600], &DefaultSelectParameters)
	if len(m.Traces) != 1 {
		t.Fatalf("expected 1 trace, returned %d", len(m.Traces))
	}
	m.Traces[0].TextPosition++

	var buf bytes.Buffer
	n, err := s.CheckMatches(&buf, m, &CheckParameters{Correct: true})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if n != 1 {
		t.Errorf("the shifted match should fail")
	}
	if !strings.HasPrefix(buf.String(), "# ") || !strings.Contains(buf.String(), ">read1\n") {
		t.Errorf("unexpected dump:\n%s", buf.String())
	}

	_, err = s.CheckMatches(&buf, m, &CheckParameters{Complete: true})
	if errors.Cause(err) != asearch.ErrNotImplemented {
		t.Errorf("expected ErrNotImplemented, returned %v", err)
	}
}

type testRead struct {
	read     *Read
	pos      uint64
	strand   matches.Strand
	distance int
	mapped   bool
}

func testReads(r *rand.Rand, ref []byte) []testRead {
	var reads []testRead
	for i := 0; i < 12; i++ {
		pos := uint64(100 + i*300)
		seq := ref[pos : pos+100]
		var distance int
		if i%3 == 1 {
			seq = substitute(seq, 20, 60)
			distance = 2
		}
		strand := matches.Forward
		if i%2 == 1 {
			seq = revcomp(seq)
			strand = matches.Reverse
		}
		reads = append(reads, testRead{
			read:     &Read{Name: "r" + string(rune('a'+i)), Seq: seq},
			pos:      pos,
			strand:   strand,
			distance: distance,
			mapped:   true,
		})
	}
	reads = append(reads, testRead{read: &Read{Name: "n", Seq: bytes.Repeat([]byte{'N'}, 100)}})
	reads = append(reads, testRead{read: &Read{Name: "empty"}})
	return reads
}

func TestMapper(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	ref := randSeq(r, 4000)
	idx := buildIndex(t, false, ref)
	params := asearch.NewParameters()
	tests := testReads(r, ref)
	reads := make([]*Read, len(tests))
	for i, test := range tests {
		reads[i] = test.read
	}

	for _, batch := range []int{0, 4} {
		rec := metrics.NewRecorder()
		var diag bytes.Buffer
		opt := DefaultMapperOptions
		opt.Threads = 3
		opt.BatchSize = batch
		opt.Check = CheckParameters{Correct: true}
		opt.Diagnostics = &diag

		mp, err := NewMapper(idx, params, &opt, rec)
		if err != nil {
			t.Fatalf("failed to create a mapper: %s", err)
		}
		if (mp.Buffer() != nil) != (batch > 0) {
			t.Errorf("batch %d: unexpected buffer", batch)
		}

		results, err := mp.MapBatch(context.Background(), reads)
		if err != nil {
			t.Fatalf("batch %d: unexpected error: %s", batch, err)
		}
		for i, res := range results {
			test := tests[i]
			if res.Read != test.read {
				t.Errorf("batch %d: results out of order", batch)
			}
			if !test.mapped {
				if res.Class != matches.Unmapped || len(res.Matches.Traces) != 0 {
					t.Errorf("batch %d: %s should be unmapped", batch, test.read.Name)
				}
				continue
			}
			if findTrace(res.Matches, "seqA", test.pos, test.strand, test.distance) == nil {
				t.Errorf("batch %d: %s: match at %d%s not found: %+v", batch,
					test.read.Name, test.pos, test.strand, res.Matches.Traces)
			}
			if res.NumFailed != 0 {
				t.Errorf("batch %d: %s: failed checks", batch, test.read.Name)
			}
			mp.Recycle(res)
			if res.Matches != nil {
				t.Errorf("matches should be recycled")
			}
		}
		if diag.Len() != 0 {
			t.Errorf("batch %d: unexpected diagnostics:\n%s", batch, diag.String())
		}
		if batch > 0 {
			if n := rec.Counter("archive.batches"); n != 4 {
				t.Errorf("expected 4 batches, returned %d", n)
			}
		}
		if rec.Counter("archive.reads_unmapped") != 2 {
			t.Errorf("batch %d: expected 2 unmapped reads, returned %d", batch, rec.Counter("archive.reads_unmapped"))
		}
	}
}

func TestMapperCancel(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	ref := randSeq(r, 2000)
	idx := buildIndex(t, false, ref)
	mp, err := NewMapper(idx, asearch.NewParameters(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mp.MapBatch(ctx, []*Read{{Name: "a", Seq: ref[:100]}})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, returned %v", err)
	}

	opt := DefaultMapperOptions
	opt.Threads = 0
	if _, err = NewMapper(idx, asearch.NewParameters(), &opt, nil); errors.Cause(err) != asearch.ErrInvalidParameter {
		t.Errorf("expected ErrInvalidParameter, returned %v", err)
	}
}
