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
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/rdleal/intervalst/interval"
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/ReadMap/readmap/metrics"
)

// Status is the verification status of a candidate.
type Status uint8

const (
	StatusPending Status = iota
	StatusAccepted
	StatusVerifiedDiscarded
	StatusKeyTrimmed // shorter than the key, verified directly
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusVerifiedDiscarded:
		return "discarded"
	case StatusKeyTrimmed:
		return "key-trimmed"
	}
	return "unknown"
}

// Tile is the alignment of a pattern tile in the candidate text.
type Tile struct {
	TextBeginOffset int // relative to Region.TextBegin
	TextEndOffset   int
	Distance        int
}

// Alignment is the result of the verification of a candidate.
type Alignment struct {
	DistanceMinBound int
	NumTiles         int
	Tiles            []Tile
}

// Region is a candidate window of the text, [TextBegin, TextEnd).
type Region struct {
	TextBegin, TextEnd uint64

	// where the key starts if the seeds are right
	Begin uint64

	KeyTrimmed bool
	Status     Status
	Alignment  Alignment

	// exact matching seeds, relative to TextBegin
	Anchors []align.Anchor

	TextTraceOffset int // -1 if not retrieved
}

// Length returns the length of the window.
func (r *Region) Length() int { return int(r.TextEnd - r.TextBegin) }

// Candidates generates and verifies the candidates of one search. It is
// used by one worker only.
type Candidates struct {
	idx   *index.Index
	texts *TextCollection
	sink  metrics.Sink

	Regions   []*Region // pending
	Accepted  []*Region
	Discarded []*Region

	positions *roaring64.Bitmap
	seeds     map[uint64][]int32 // begin position -> profile regions
	seen      *interval.SearchTree[int32, uint64] // generated windows
	begins    *roaring64.Bitmap                   // begin positions of generated windows
	nSeen     int32

	kmers   *KmerFilter
	aligner *align.Aligner

	pool []Region
}

func cmpUint64(x, y uint64) int {
	if x < y {
		return -1
	}
	if x > y {
		return 1
	}
	return 0
}

// NewCandidates creates a Candidates. texts may be shared by the
// searches of the same worker.
func NewCandidates(idx *index.Index, texts *TextCollection, sink metrics.Sink) *Candidates {
	if sink == nil {
		sink = metrics.Discard
	}
	return &Candidates{
		idx:       idx,
		texts:     texts,
		sink:      sink,
		Regions:   make([]*Region, 0, 64),
		Accepted:  make([]*Region, 0, 16),
		Discarded: make([]*Region, 0, 16),
		positions: roaring64.New(),
		seeds:     make(map[uint64][]int32, 64),
		seen:      interval.NewSearchTree[int32, uint64](cmpUint64),
		begins:    roaring64.New(),
		kmers:     NewKmerFilter(DefaultKmerFilterK),
	}
}

// Clear clears everything for a new read.
func (c *Candidates) Clear() {
	c.Regions = c.Regions[:0]
	c.Accepted = c.Accepted[:0]
	c.Discarded = c.Discarded[:0]
	c.positions.Clear()
	clear(c.seeds)
	c.seen = interval.NewSearchTree[int32, uint64](cmpUint64)
	c.begins.Clear()
	c.nSeen = 0
	c.pool = c.pool[:0]
}

func (c *Candidates) newRegion() *Region {
	c.pool = append(c.pool, Region{})
	return &c.pool[len(c.pool)-1]
}

// Generate collects the candidate windows of the regions of the profile
// with at most threshold occurrences, windows already generated in this
// search are skipped. It returns the number of new candidates.
func (c *Candidates) Generate(rp *RegionProfile, p *align.Pattern, threshold uint64) int {
	c.positions.Clear()
	clear(c.seeds)

	var pos, begin uint64
	var ri int
	var r *ProfileRegion
	for ri = range rp.Regions {
		r = &rp.Regions[ri]
		if r.Type != RegionUnique && r.Type != RegionStandard {
			continue
		}
		if r.Count() > threshold {
			c.sink.Inc("filtering.regions_skipped")
			continue
		}
		for row := r.Lo; row < r.Hi; row++ {
			pos = c.idx.FMI.Lookup(row)
			if pos < uint64(r.Begin) {
				continue
			}
			begin = pos - uint64(r.Begin)
			c.positions.Add(begin)
			c.seeds[begin] = append(c.seeds[begin], int32(ri))
		}
	}
	if c.positions.IsEmpty() {
		return 0
	}

	// merge close positions
	tolerance := uint64(p.MaxEffectiveFilteringError)
	var n int
	var prev, rep uint64
	var best int
	started := false
	flush := func() {
		if c.addWindow(rp, p, rep) {
			n++
		}
	}
	iter := c.positions.Iterator()
	for iter.HasNext() {
		pos = iter.Next()
		if started && pos-prev <= tolerance {
			if l := len(c.seeds[pos]); l > best {
				rep, best = pos, l
			}
			prev = pos
			continue
		}
		if started {
			flush()
		}
		started = true
		prev, rep, best = pos, pos, len(c.seeds[pos])
	}
	flush()

	c.sink.Add("filtering.candidates", uint64(n))
	return n
}

// generated tells if the window [tb, te) was generated before, or another
// window began within the tolerance of begin. Overlapping windows of
// distinct loci are kept.
func (c *Candidates) generated(tb, te, begin, tolerance uint64) bool {
	if _, found := c.seen.Find(tb, te-1); found {
		return true
	}
	if c.begins.IsEmpty() {
		return false
	}
	var lo uint64
	if begin > tolerance {
		lo = begin - tolerance
	}
	n := c.begins.Rank(begin + tolerance)
	if lo > 0 {
		n -= c.begins.Rank(lo - 1)
	}
	return n > 0
}

func (c *Candidates) addWindow(rp *RegionProfile, p *align.Pattern, begin uint64) bool {
	seeds := c.seeds[begin]
	r0 := &rp.Regions[seeds[0]]
	iv, ok := c.idx.Locator.Interval(begin + uint64(r0.Begin))
	if !ok {
		return false
	}

	keyLen := uint64(p.Length())
	e := uint64(p.MaxEffectiveFilteringError)

	// the seeds cover the whole key
	var covered int
	for _, ri := range seeds {
		covered += rp.Regions[ri].Length()
	}
	exact := covered == p.Length() && begin >= iv.Begin && begin+keyLen <= iv.End

	var tb, te uint64
	if exact {
		tb, te = begin, begin+keyLen
	} else {
		if begin > iv.Begin+e {
			tb = begin - e
		} else {
			tb = iv.Begin
		}
		te = begin + keyLen + e
		if te > iv.End {
			te = iv.End
		}
	}
	if te <= tb {
		return false
	}
	if c.generated(tb, te, begin, e) {
		c.sink.Inc("filtering.candidates_duplicated")
		return false
	}
	if err := c.seen.Insert(tb, te-1, c.nSeen); err != nil {
		return false
	}
	c.begins.Add(begin)
	c.nSeen++

	reg := c.newRegion()
	reg.TextBegin, reg.TextEnd = tb, te
	reg.Begin = begin
	reg.TextTraceOffset = -1
	reg.Alignment.DistanceMinBound = align.DistanceUnknown
	if exact {
		reg.Alignment.DistanceMinBound = 0
	}
	if te-tb < keyLen {
		reg.KeyTrimmed = true
		reg.Status = StatusKeyTrimmed
	}

	// anchors, sorted by key position
	for k := len(seeds) - 1; k >= 0; k-- {
		r := &rp.Regions[seeds[k]]
		kb := uint64(r.Begin)
		if begin+kb < tb || begin+uint64(r.End) > te {
			continue
		}
		reg.Anchors = append(reg.Anchors, align.Anchor{
			KeyBegin:  r.Begin,
			TextBegin: int(begin + kb - tb),
			Length:    r.Length(),
		})
	}
	sortAnchors(reg.Anchors)

	c.Regions = append(c.Regions, reg)
	return true
}

func sortAnchors(a []align.Anchor) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j].KeyBegin < a[j-1].KeyBegin; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}

// Text returns the text of the candidate.
func (c *Candidates) Text(r *Region) []byte {
	if r.TextTraceOffset < 0 {
		r.TextTraceOffset = c.texts.Retrieve(r.TextBegin, r.Length())
	}
	return c.texts.Trace(r.TextTraceOffset).Text
}
