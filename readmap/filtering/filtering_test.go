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
	"context"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/ReadMap/readmap/matches"
	"github.com/shenwei356/ReadMap/readmap/metrics"
	"github.com/shenwei356/ReadMap/readmap/util"
	"github.com/shenwei356/kmers"
)

func randSeq(r *rand.Rand, n int) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = "ACGT"[r.Intn(4)]
	}
	return s
}

// substitute changes the bases at the positions.
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

func buildIndex(t *testing.T, seqs ...[]byte) *index.Index {
	names := make([]string, len(seqs))
	for i := range seqs {
		names[i] = "seq" + string(rune('A'+i))
	}
	idx, err := index.Build(names, seqs, nil)
	if err != nil {
		t.Fatalf("failed to build index: %s", err)
	}
	return idx
}

func TestRegionProfileAdaptive(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	ref := randSeq(r, 3000)
	idx := buildIndex(t, ref)

	key := util.Encode(ref[1000:1100], nil)
	rp := NewRegionProfile()
	rp.GenerateAdaptive(key, idx.FMI, &ProfileSoft, 0, nil)
	if rp.NoRegions() {
		t.Fatalf("regions expected")
	}
	prev := 0
	for _, reg := range rp.Regions {
		if reg.Begin < prev || reg.End <= reg.Begin {
			t.Errorf("regions should be ordered and non-overlapping: %+v", rp.Regions)
		}
		prev = reg.End
		if reg.Type == RegionGap {
			continue
		}
		lo, hi := idx.FMI.BackwardSearch(key[reg.Begin:reg.End])
		if lo != reg.Lo || hi != reg.Hi {
			t.Errorf("unexpected SA interval of region [%d, %d): [%d, %d) vs [%d, %d)",
				reg.Begin, reg.End, reg.Lo, reg.Hi, lo, hi)
		}
		if reg.Count() > ProfileSoft.RegionTh {
			t.Errorf("region [%d, %d) has too many occurrences: %d", reg.Begin, reg.End, reg.Count())
		}
	}
	if rp.NumZero != 0 || rp.ErrorsLowerBound() != 0 {
		t.Errorf("an exact read should have no zero regions")
	}

	// wildcards only
	rp.GenerateAdaptive(util.Encode([]byte("NNNNNNNNNNNNNNNNNNNN"), nil), idx.FMI, &ProfileSoft, 0, nil)
	if !rp.NoRegions() {
		t.Errorf("no regions expected for wildcards")
	}

	// a repeated read occurring as a whole
	unit := randSeq(r, 100)
	var repeats []byte
	for i := 0; i < 30; i++ {
		repeats = append(repeats, unit...)
	}
	idx2 := buildIndex(t, repeats)
	rp.GenerateAdaptive(util.Encode(unit, nil), idx2.FMI, &ProfileSoft, 0, nil)
	if !rp.HasExactMatches() {
		t.Errorf("the whole key should be one region: %+v", rp.Regions)
	}
}

func TestRegionProfileFixed(t *testing.T) {
	r := rand.New(rand.NewSource(12))
	ref := randSeq(r, 2000)
	idx := buildIndex(t, ref)

	key := util.Encode(ref[200:300], nil)
	rp := NewRegionProfile()
	rp.GenerateFixed(key, idx.FMI, 20, 30, nil, 2)
	var n int
	for _, reg := range rp.Regions {
		if reg.Type == RegionGap {
			continue
		}
		n++
		if reg.Length() != 20 || reg.Begin%30 != 0 {
			t.Errorf("unexpected region: %+v", reg)
		}
	}
	if n != 3 || rp.NumGap != 3 {
		t.Errorf("expected 3 regions and 3 gaps, returned %d and %d", n, rp.NumGap)
	}
}

// A read of 100 bp with 2 mismatches, seeded by 3 unique regions.
func TestHammingCandidate(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	ref := randSeq(r, 1000)
	idx := buildIndex(t, ref)

	read := substitute(ref[300:400], 40, 41)
	key := util.Encode(read, nil)
	p := align.NewPattern(key, nil, 4, 0)

	rp := NewRegionProfile()
	rp.GenerateFixed(key, idx.FMI, 12, 44, nil, 2)
	if rp.NumUnique != 3 {
		t.Fatalf("expected 3 unique regions, returned %d: %+v", rp.NumUnique, rp.Regions)
	}

	sink := metrics.NewRecorder()
	c := NewCandidates(idx, NewTextCollection(idx), sink)
	if n := c.Generate(rp, p, 350); n != 1 {
		t.Fatalf("expected 1 candidate, returned %d", n)
	}
	cand := c.Regions[0]
	if cand.Begin != 300 || cand.TextBegin != 296 || cand.TextEnd != 404 {
		t.Errorf("unexpected window: %d [%d, %d)", cand.Begin, cand.TextBegin, cand.TextEnd)
	}
	if len(cand.Anchors) != 3 {
		t.Errorf("expected 3 anchors, returned %d", len(cand.Anchors))
	}

	if n := c.Verify(p); n != 1 {
		t.Fatalf("the candidate should be accepted")
	}
	if cand.Status != StatusAccepted || cand.Alignment.DistanceMinBound != 2 {
		t.Errorf("unexpected verification: %s, %d", cand.Status, cand.Alignment.DistanceMinBound)
	}

	m := matches.NewMatches()
	ap := &AlignParameters{
		Model:    align.ModelHamming,
		Aligner:  align.NewAligner(nil),
		MaxError: 4,
	}
	if n := c.Align(p, ap, m); n != 1 {
		t.Fatalf("expected 1 trace, returned %d", n)
	}
	tr := &m.Traces[0]
	if tr.Distance != 2 || tr.IndexPosition != 300 {
		t.Errorf("unexpected trace: %+v", tr)
	}
	if s := align.CigarString(m.Cigar(tr)); s != "40=2X58=" {
		t.Errorf("unexpected CIGAR: %s", s)
	}

	// the same window is not generated again in the search
	if n := c.Generate(rp, p, 350); n != 0 {
		t.Errorf("verified windows should be skipped, %d generated", n)
	}
	if sink.Counter("filtering.candidates_duplicated") != 1 {
		t.Errorf("duplicated candidates should be counted")
	}
}

// Loci closer than one window length are all candidates.
func TestCloseLoci(t *testing.T) {
	r := rand.New(rand.NewSource(21))
	unit := randSeq(r, 100)

	// 30 copies of the unit
	var repeats []byte
	var tandem []uint64
	for i := 0; i < 30; i++ {
		tandem = append(tandem, uint64(len(repeats)))
		repeats = append(repeats, unit...)
	}

	// a seed of the read 60 bp upstream of the true locus
	ref := randSeq(r, 3000)
	copy(ref[1000:1100], unit)
	copy(ref[940:952], unit[0:12])

	tests := []struct {
		name     string
		ref      []byte
		expected []uint64
		nCands   int
	}{
		{"tandem repeat", repeats, tandem, 30},
		{"near-miss seed", ref, []uint64{1000}, 2},
	}

	for _, test := range tests {
		idx := buildIndex(t, test.ref)
		key := util.Encode(substitute(unit, 20), nil)
		p := align.NewPattern(key, nil, 4, 0)

		rp := NewRegionProfile()
		rp.GenerateFixed(key, idx.FMI, 12, 44, nil, 2)

		c := NewCandidates(idx, NewTextCollection(idx), nil)
		if n := c.Generate(rp, p, 350); n != test.nCands {
			t.Errorf("%s: expected %d candidates, returned %d", test.name, test.nCands, n)
		}
		if n := c.Verify(p); n != len(test.expected) {
			t.Errorf("%s: expected %d accepted, returned %d", test.name, len(test.expected), n)
		}
		found := make(map[uint64]bool, len(c.Accepted))
		for _, reg := range c.Accepted {
			found[reg.Begin] = true
		}
		for _, pos := range test.expected {
			if !found[pos] {
				t.Errorf("%s: the locus at %d should be accepted", test.name, pos)
			}
		}

		// nothing new in another pass
		if n := c.Generate(rp, p, 350); n != 0 {
			t.Errorf("%s: generated windows should be skipped, %d generated", test.name, n)
		}
	}
}

func TestExactCandidate(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	ref := randSeq(r, 1000)
	idx := buildIndex(t, ref)

	key := util.Encode(ref[500:560], nil)
	p := align.NewPattern(key, nil, 3, 0)
	rp := NewRegionProfile()
	rp.GenerateFixed(key, idx.FMI, 20, 20, nil, 2)

	c := NewCandidates(idx, NewTextCollection(idx), nil)
	c.Generate(rp, p, 350)
	if len(c.Regions) != 1 || c.Regions[0].Alignment.DistanceMinBound != 0 {
		t.Fatalf("an exact candidate expected")
	}
	c.Verify(p)
	m := matches.NewMatches()
	c.Align(p, &AlignParameters{Model: align.ModelGapAffine, Aligner: align.NewAligner(nil), MaxError: 3}, m)
	if len(m.Traces) != 1 {
		t.Fatalf("expected 1 trace")
	}
	cigar := m.Cigar(&m.Traces[0])
	if len(cigar) != 1 || cigar[0].Type != align.CigarMatch || int(cigar[0].Length) != len(key) {
		t.Errorf("exact candidates should have one match element: %s", align.CigarString(cigar))
	}
}

func TestKmerFilter(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	s := randSeq(r, 100)
	key := util.Encode(s, nil)

	f := NewKmerFilter(5)
	f.SetKey(key)
	if b := f.LowerBound(key); b != 0 {
		t.Errorf("identical sequences: expected 0, returned %d", b)
	}
	text := util.Encode(append(append(randSeq(r, 10), substitute(s, 20, 60)...), randSeq(r, 10)...), nil)
	if b := f.LowerBound(text); b > 2 {
		t.Errorf("the bound should not exceed the distance: %d", b)
	}
	if b := f.LowerBound(util.Encode(randSeq(r, 100), nil)); b < 5 {
		t.Errorf("unrelated sequences should have a large bound: %d", b)
	}
	f.SetKey(util.Encode([]byte("NNNN"), nil))
	if f.Enabled() {
		t.Errorf("keys without k-mers should disable the filter")
	}
}

func TestKmerFilterCodes(t *testing.T) {
	f := NewKmerFilter(5)
	f.SetKey(util.Encode([]byte("ACGTACNGGTCCA"), nil))

	// k-mers spanning N are skipped
	expected := []string{"ACGTA", "CGTAC", "GGTCC", "GTCCA"}
	if f.total != len(expected) {
		for code := range f.counts {
			t.Logf("%s", kmers.Decode(code, f.K))
		}
		t.Fatalf("expected %d k-mers, returned %d", len(expected), f.total)
	}
	for _, s := range expected {
		code, err := kmers.Encode([]byte(s))
		if err != nil {
			t.Fatal(err)
		}
		if f.counts[code] != 1 {
			t.Errorf("k-mer %s not counted", s)
		}
	}
}

func TestTextCollection(t *testing.T) {
	ref := []byte("ACGTACGTAC")
	idx := buildIndex(t, ref)
	tc := NewTextCollection(idx)
	i := tc.Retrieve(2, 4)
	if j := tc.Retrieve(2, 4); j != i || tc.Len() != 1 {
		t.Errorf("texts should be cached")
	}
	if s := string(util.Decode(tc.Trace(i).Text, nil)); s != "GTAC" {
		t.Errorf("unexpected text: %s", s)
	}
	if k := tc.Retrieve(8, 10); len(tc.Trace(k).Text) != 2 {
		t.Errorf("texts should be clipped at the end")
	}
	tc.Clear()
	if tc.Len() != 0 {
		t.Errorf("clearing failed")
	}
}

// fakeBuffer returns given results.
type fakeBuffer struct {
	results []TileResult
	tiles   []TileCandidate
}

func (b *fakeBuffer) Enabled() bool      { return true }
func (b *fakeBuffer) NumCandidates() int { return len(b.tiles) }
func (b *fakeBuffer) Append(p *align.Pattern, tiles []TileCandidate) (int, error) {
	offset := len(b.tiles)
	b.tiles = append(b.tiles, tiles...)
	return offset, nil
}
func (b *fakeBuffer) Flush(ctx context.Context) error { return nil }
func (b *fakeBuffer) Flushed() bool                   { return true }
func (b *fakeBuffer) GetResult(idx int) (TileResult, error) {
	return b.results[idx], nil
}
func (b *fakeBuffer) GetCandidate(idx int) TileCandidate { return b.tiles[idx] }
func (b *fakeBuffer) Clear()                             { b.tiles = b.tiles[:0] }

func TestBatchBuffer(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	ref := randSeq(r, 5000)
	idx := buildIndex(t, ref)

	read := substitute(ref[1000:1200], 10, 100, 150)
	key := util.Encode(read, nil)
	p := align.NewPattern(key, nil, 8, 64)

	rp := NewRegionProfile()
	rp.GenerateAdaptive(key, idx.FMI, &ProfileSoft, 0, nil)

	buffer := NewBatchBuffer(NewCPUProcessor(idx, 2), 16)
	c := NewCandidates(idx, NewTextCollection(idx), nil)
	if c.Generate(rp, p, 350) == 0 {
		t.Fatalf("candidates expected")
	}
	var bb Buffered
	n, err := c.AddToBuffer(&bb, p, buffer)
	if err != nil || n == 0 {
		t.Fatalf("failed to add tiles: %v", err)
	}
	if len(c.Regions) != 0 || bb.Len() == 0 {
		t.Errorf("candidates should be moved to the buffered list")
	}
	if _, err = buffer.GetResult(bb.Offset); err != ErrBufferNotFlushed {
		t.Errorf("results before flushing should be an error")
	}

	// another search appends its tiles densely
	var bb2 Buffered
	c2 := NewCandidates(idx, NewTextCollection(idx), nil)
	c2.Generate(rp, p, 350)
	c2.AddToBuffer(&bb2, p, buffer)
	if bb2.Offset != bb.Offset+bb.NumTiles {
		t.Errorf("tile offsets should be dense: %d, %d+%d", bb2.Offset, bb.Offset, bb.NumTiles)
	}

	if err = buffer.Flush(context.Background()); err != nil {
		t.Fatalf("failed to flush: %s", err)
	}
	if _, err = buffer.Append(p, nil); err != ErrBufferFlushed {
		t.Errorf("appending after flushing should be an error")
	}
	accepted, err := c.RetrieveFromBuffer(&bb, p, buffer, true)
	if err != nil {
		t.Fatalf("failed to retrieve: %s", err)
	}
	if accepted == 0 {
		t.Fatalf("the true location should be accepted")
	}

	// the CPU fallback gives the same bounds
	c3 := NewCandidates(idx, NewTextCollection(idx), nil)
	c3.Generate(rp, p, 350)
	var bb3 Buffered
	c3.AddToBuffer(&bb3, p, NewSyncBuffer())
	accepted3, _ := c3.RetrieveFromBuffer(&bb3, p, NewSyncBuffer(), false)
	if accepted3 != accepted {
		t.Errorf("CPU fallback: %d accepted, batch: %d accepted", accepted3, accepted)
	}
	for i := 0; i < len(c.Accepted) && i < len(c3.Accepted); i++ {
		if c.Accepted[i].Alignment.DistanceMinBound != c3.Accepted[i].Alignment.DistanceMinBound {
			t.Errorf("different bounds: %d vs %d", c.Accepted[i].Alignment.DistanceMinBound,
				c3.Accepted[i].Alignment.DistanceMinBound)
		}
	}

	buffer.Clear()
	if buffer.Flushed() || buffer.NumCandidates() != 0 {
		t.Errorf("clearing failed")
	}
}

func TestTileBounds(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	ref := randSeq(r, 1000)
	idx := buildIndex(t, ref)
	key := util.Encode(ref[100:292], nil)
	p := align.NewPattern(key, nil, 6, 64)

	c := NewCandidates(idx, NewTextCollection(idx), nil)
	reg := &Region{TextBegin: 94, TextEnd: 298, Begin: 100, TextTraceOffset: -1}
	reg.Alignment.DistanceMinBound = align.DistanceUnknown
	c.Regions = append(c.Regions, reg)

	var bb Buffered
	buffer := &fakeBuffer{}
	if n, _ := c.AddToBuffer(&bb, p, buffer); n != 3 {
		t.Fatalf("expected 3 tiles, returned %d", n)
	}

	// the second tile exceeds its budget
	buffer.results = []TileResult{{1, 70}, {7, 75}, {0, 69}}
	c.RetrieveFromBuffer(&bb, p, buffer, false)
	a := &reg.Alignment
	if a.DistanceMinBound != align.DistanceInf || a.Tiles[1].Distance != align.DistanceInf {
		t.Errorf("the bound should be INF: %d", a.DistanceMinBound)
	}
	if a.Tiles[0].Distance != 1 || a.Tiles[0].TextEndOffset != 71 || a.Tiles[0].TextBeginOffset != 6 {
		t.Errorf("unexpected tile: %+v", a.Tiles[0])
	}

	// INF is sticky
	bb.Regions = append(bb.Regions[:0], reg)
	reg.Alignment.DistanceMinBound = 0
	buffer.results = []TileResult{{0, 70}, {0, 75}, {0, 69}}
	c.retrieveAlignment(reg, p, buffer, bb.Offset, false)
	if a.DistanceMinBound != align.DistanceInf {
		t.Errorf("an INF tile should keep the bound INF")
	}

	// bounds only grow while tiles are resolved
	for k := range a.Tiles {
		a.Tiles[k].Distance = align.DistanceUnknown
	}
	buffer.results = []TileResult{{1, 70}, {2, 75}, {1, 69}}
	prev, total := 0, a.NumTiles
	for k := 1; k <= total; k++ {
		a.NumTiles = k
		c.retrieveAlignment(reg, p, buffer, bb.Offset, false)
		if a.DistanceMinBound < prev {
			t.Errorf("the bound decreased: %d < %d", a.DistanceMinBound, prev)
		}
		prev = a.DistanceMinBound
	}
	if prev != 4 {
		t.Errorf("expected bound 4, returned %d", prev)
	}
}

func TestCheckTiles(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	ref := randSeq(r, 1000)
	ref2 := append(randSeq(r, 100), []byte("NNNNN")...)
	ref2 = append(ref2, randSeq(r, 100)...)
	idx := buildIndex(t, ref, ref2)
	c := NewCandidates(idx, NewTextCollection(idx), nil)

	p := align.NewPattern(util.Encode(ref[10:74], nil), nil, 4, 64)
	pt := &p.Tiles[0]

	tc := TileCandidate{Position: 8, Length: 68}
	if err := c.checkTile(pt, tc, TileResult{Distance: 0, Column: 65}); err != nil {
		t.Errorf("unexpected error: %s", err)
	}
	err := c.checkTile(pt, tc, TileResult{Distance: 3, Column: 65})
	if errors.Cause(err) != ErrBPMCheck {
		t.Errorf("a disagreement should be an error: %v", err)
	}

	// texts with N are only reported
	tc = TileCandidate{Position: 1001 + 80, Length: 60}
	if err := c.checkTile(pt, tc, TileResult{Distance: 1, Column: 3}); err != nil {
		t.Errorf("disagreements on texts with N should be ignored: %s", err)
	}
}
