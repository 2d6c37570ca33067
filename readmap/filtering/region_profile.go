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
// Package filtering generates candidate locations of a read from seeding
// regions and verifies them, synchronously or through a batch buffer.
package filtering

import (
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/index"
)

// RegionType is the type of a seeding region.
type RegionType uint8

const (
	RegionUnique   RegionType = iota // very few occurrences
	RegionStandard                   // filtered if not too frequent
	RegionGap                        // not used in filtering
	RegionZero                       // no occurrences, at least one error inside
)

func (t RegionType) String() string {
	switch t {
	case RegionUnique:
		return "unique"
	case RegionStandard:
		return "standard"
	case RegionGap:
		return "gap"
	case RegionZero:
		return "zero"
	}
	return "unknown"
}

// ProfileRegion is a region of the key, [Begin, End), and the SA interval
// of its occurrences, [Lo, Hi).
type ProfileRegion struct {
	Begin, End int
	Lo, Hi     uint64
	Type       RegionType
}

// Count returns the number of occurrences.
func (r *ProfileRegion) Count() uint64 { return r.Hi - r.Lo }

// Length returns the length of the region.
func (r *ProfileRegion) Length() int { return r.End - r.Begin }

// RegionProfileModel parameterizes adaptive region profiles.
type RegionProfileModel struct {
	RegionTh     uint64 `toml:"region-th"`      // a region can be closed once its count is <= RegionTh
	MaxSteps     int    `toml:"max-steps"`      // extra extensions tried after reaching RegionTh
	DecFactor    uint64 `toml:"dec-factor"`     // the cut moves when the count shrinks by this factor
	RegionTypeTh uint64 `toml:"region-type-th"` // regions with fewer occurrences are unique
}

// Presets of adaptive region profiles.
var (
	ProfileSoft     = RegionProfileModel{RegionTh: 20, MaxSteps: 4, DecFactor: 2, RegionTypeTh: 2}
	ProfileHard     = RegionProfileModel{RegionTh: 50, MaxSteps: 10, DecFactor: 4, RegionTypeTh: 2}
	ProfileRecovery = RegionProfileModel{RegionTh: 200, MaxSteps: 1, DecFactor: 8, RegionTypeTh: 2}
)

// RegionProfile is an ordered list of non-overlapping regions of the key.
type RegionProfile struct {
	Regions []ProfileRegion // ordered by key position

	NumUnique       int
	NumStandard     int
	NumZero         int
	NumGap          int
	MaxRegionLength int
	TotalCandidates uint64

	keyLength int
}

// NewRegionProfile creates a RegionProfile.
func NewRegionProfile() *RegionProfile {
	return &RegionProfile{Regions: make([]ProfileRegion, 0, 16)}
}

// Reset clears the profile.
func (rp *RegionProfile) Reset() {
	rp.Regions = rp.Regions[:0]
	rp.NumUnique, rp.NumStandard, rp.NumZero, rp.NumGap = 0, 0, 0, 0
	rp.MaxRegionLength = 0
	rp.TotalCandidates = 0
	rp.keyLength = 0
}

// NumFilteringRegions returns the number of non-gap regions.
func (rp *RegionProfile) NumFilteringRegions() int {
	return rp.NumUnique + rp.NumStandard + rp.NumZero
}

// NumFilteredRegions returns the number of regions whose occurrences
// are all turned into candidates with the threshold.
func (rp *RegionProfile) NumFilteredRegions(threshold uint64) int {
	var n int
	for i := range rp.Regions {
		r := &rp.Regions[i]
		if (r.Type == RegionUnique || r.Type == RegionStandard) && r.Count() <= threshold {
			n++
		}
	}
	return n
}

// NoRegions tells if no region can be used.
func (rp *RegionProfile) NoRegions() bool { return rp.NumFilteringRegions() == 0 }

// ErrorsLowerBound returns the minimum number of errors of any match,
// one for each region without occurrences.
func (rp *RegionProfile) ErrorsLowerBound() int { return rp.NumZero }

// HasExactMatches tells if one region spans the whole key and occurs.
func (rp *RegionProfile) HasExactMatches() bool {
	if rp.NumFilteringRegions() != 1 || len(rp.Regions) != 1 {
		return false
	}
	r := &rp.Regions[0]
	return r.Begin == 0 && r.End == rp.keyLength && r.Hi > r.Lo
}

func (rp *RegionProfile) add(begin, end int, lo, hi uint64, typeTh uint64, gap bool) {
	r := ProfileRegion{Begin: begin, End: end, Lo: lo, Hi: hi}
	switch {
	case gap:
		r.Type = RegionGap
		rp.NumGap++
	case hi <= lo:
		r.Type = RegionZero
		rp.NumZero++
	case hi-lo < typeTh:
		r.Type = RegionUnique
		rp.NumUnique++
	default:
		r.Type = RegionStandard
		rp.NumStandard++
	}
	if !gap {
		if end-begin > rp.MaxRegionLength {
			rp.MaxRegionLength = end - begin
		}
		if hi > lo {
			rp.TotalCandidates += hi - lo
		}
	}
	rp.Regions = append(rp.Regions, r)
}

// reverse reorders the regions generated from the end of the key.
func (rp *RegionProfile) reverse() {
	s := rp.Regions
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// GenerateAdaptive scans the key backwards, extending each region until
// its number of occurrences is small enough. At most maxRegions
// filtering regions are generated (<= 0 for no limit), the rest of the key
// becomes a gap.
func (rp *RegionProfile) GenerateAdaptive(key []byte, fmi *index.FMIndex,
	model *RegionProfileModel, maxRegions int, allowed *align.AllowedBases) {
	rp.Reset()
	rp.keyLength = len(key)
	if allowed == nil {
		allowed = &align.DefaultAllowedBases
	}

	n := fmi.Length()
	var lo, hi uint64 = 0, n
	end := len(key) // end of the current region
	cut := -1       // begin of the region if closed now
	var cutLo, cutHi uint64
	var steps int

	closeAtCut := func() {
		rp.add(cut, end, cutLo, cutHi, model.RegionTypeTh, false)
		end = cut
		cut = -1
		lo, hi = 0, n
	}
	full := func() bool {
		return maxRegions > 0 && rp.NumFilteringRegions() >= maxRegions
	}

	pos := len(key) - 1
	for !full() {
		if pos < 0 {
			if cut < 0 {
				break
			}
			pos = cut - 1 // the extensions after the cut are redone
			closeAtCut()
			continue
		}
		c := key[pos]

		if c >= uint8(len(allowed)) || !allowed[c] { // wildcards close the region
			if cut >= 0 {
				closeAtCut()
			}
			if end > pos+1 {
				rp.add(pos+1, end, lo, hi, model.RegionTypeTh, true)
			}
			lo, hi = 0, n
			end = pos
			pos--
			continue
		}

		lo, hi = fmi.Extend(c, lo, hi)
		count := hi - lo

		if count == 0 {
			if cut >= 0 { // restart from the cut
				pos = cut - 1
				closeAtCut()
				continue
			}
			rp.add(pos, end, lo, hi, model.RegionTypeTh, false)
			end = pos
			lo, hi = 0, n
			pos--
			continue
		}

		if count <= model.RegionTh {
			if cut < 0 {
				cut, cutLo, cutHi, steps = pos, lo, hi, 0
			} else {
				steps++
				if count*model.DecFactor <= cutHi-cutLo {
					cut, cutLo, cutHi = pos, lo, hi
				}
			}
			if steps >= model.MaxSteps || count == 1 {
				if cut != pos { // the extensions after the cut are redone
					pos = cut - 1
				} else {
					pos--
				}
				closeAtCut()
				continue
			}
		}
		pos--
	}

	// the leftover prefix
	if end > 0 {
		if rp.NumFilteringRegions() == 0 && end == len(key) && hi > lo && pos < 0 {
			rp.add(0, end, lo, hi, model.RegionTypeTh, false) // the whole key occurs
		} else {
			rp.add(0, end, lo, hi, model.RegionTypeTh, true)
		}
	}
	rp.reverse()
}

// GenerateFixed creates regions of the same length every step bases,
// there are gaps between them if step > length.
func (rp *RegionProfile) GenerateFixed(key []byte, fmi *index.FMIndex,
	length, step int, allowed *align.AllowedBases, typeTh uint64) {
	rp.Reset()
	rp.keyLength = len(key)
	if allowed == nil {
		allowed = &align.DefaultAllowedBases
	}
	if length <= 0 {
		return
	}
	if step <= 0 {
		step = length
	}

	var lo, hi uint64
	var ok bool
	prev := 0
	for begin := 0; begin+length <= len(key); begin += step {
		ok = true
		for _, c := range key[begin : begin+length] {
			if c >= uint8(len(allowed)) || !allowed[c] {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if begin > prev {
			rp.add(prev, begin, 0, 0, typeTh, true)
		}
		lo, hi = fmi.BackwardSearch(key[begin : begin+length])
		rp.add(begin, begin+length, lo, hi, typeTh, false)
		prev = begin + length
	}
	if prev < len(key) && prev > 0 {
		rp.add(prev, len(key), 0, 0, typeTh, true)
	}
}
