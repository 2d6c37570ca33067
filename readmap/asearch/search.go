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

// Package asearch implements the approximate search of one strand of a
// read: a state machine driving the region profiles, the filtering
// candidates and the alignment builders, with the transitions decided by
// the controller of the mapping mode.
package asearch

import (
	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/filtering"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/ReadMap/readmap/matches"
	"github.com/shenwei356/ReadMap/readmap/metrics"
)

// ErrSuspended means the search waits for its buffered candidates.
var ErrSuspended = errors.New("asearch: waiting for buffered candidates")

// Search is the approximate search of one strand of a read.
// It is used by one worker only.
type Search struct {
	Strand     matches.Strand
	Pattern    *align.Pattern
	Profile    *filtering.RegionProfile
	Candidates *filtering.Candidates

	State              State
	MaxDifferences     int    // error budget, only decreases during a search
	MaxCompleteStratum uint64 // strata below it are complete

	// Batched searches suspend at the verification of candidates, which
	// are copied into a BPM buffer and retrieved later.
	Batched bool

	// The search returns before the neighborhood stage, once.
	StopBeforeNeighborhood bool

	MaxMatchesReached bool

	idx        *index.Index
	params     *Parameters
	controller Controller
	instance   Instance
	aligner    *align.Aligner
	ap         filtering.AlignParameters
	sink       metrics.Sink

	// batched verification
	waiting  bool
	buffer   filtering.BPMBuffer
	buffered filtering.Buffered

	step      State  // the filtering stage of the pending candidates
	stratum   uint64 // complete stratum once the pending candidates are aligned
	boosted   bool
	localDone bool

	accepted []*filtering.Region
	rest     []*filtering.Region
	nbText   []byte
}

// NewSearch creates a search. texts can be shared by the searches of
// the same worker, sink can be nil.
func NewSearch(idx *index.Index, params *Parameters, texts *filtering.TextCollection,
	sink metrics.Sink) *Search {
	if sink == nil {
		sink = metrics.Discard
	}
	if texts == nil {
		texts = filtering.NewTextCollection(idx)
	}
	s := &Search{
		Profile:    filtering.NewRegionProfile(),
		Candidates: filtering.NewCandidates(idx, texts, sink),
		State:      End,
		idx:        idx,
		params:     params,
		controller: NewController(params.MappingMode),
		aligner:    align.NewAligner(params.AlignOptions()),
		sink:       sink,
	}
	return s
}

// Controller returns the controller of the search.
func (s *Search) Controller() Controller { return s.controller }

// Instance returns the parameters instantiated for the current read.
func (s *Search) Instance() Instance { return s.instance }

// Prepare resets the search for a new key (encoded bases).
func (s *Search) Prepare(key, quality []byte, strand matches.Strand) {
	s.instance = s.params.Instantiate(len(key))
	filteringError := s.instance.MaxFilteringError
	if filteringError < s.instance.MaxSearchError {
		filteringError = s.instance.MaxSearchError
	}
	s.Pattern = align.NewPattern(key, quality, filteringError, s.params.TileLength)
	s.Strand = strand

	s.Profile.Reset()
	s.Candidates.Clear()
	s.buffered.Regions = s.buffered.Regions[:0]

	s.State = Begin
	s.MaxDifferences = s.instance.MaxSearchError
	s.MaxCompleteStratum = 0
	s.MaxMatchesReached = false
	s.StopBeforeNeighborhood = false
	s.waiting = false
	s.buffer = nil
	s.step = Begin
	s.stratum = 0
	s.boosted = false
	s.localDone = false

	s.ap = filtering.AlignParameters{
		Model:    s.params.AlignmentModel,
		Allowed:  s.params.Allowed(),
		Aligner:  s.aligner,
		MaxError: s.MaxDifferences,
		Strand:   strand,
	}
}

// Waiting tells if the search waits for its buffered candidates.
func (s *Search) Waiting() bool { return s.waiting }

// Run advances the search until it ends or suspends.
func (s *Search) Run(m *matches.Matches) error {
	if s.waiting {
		return ErrSuspended
	}
	var t Transition
	var err error
	for s.State != End {
		if s.State == Neighborhood && s.StopBeforeNeighborhood {
			s.StopBeforeNeighborhood = false
			return nil
		}
		s.sink.Inc("asearch." + s.State.String())

		t, err = s.stage(m)
		if err != nil {
			return err
		}
		s.State = t.Next
		if t.Suspend {
			s.waiting = true
			return nil
		}

		if s.params.MaxSearchMatches > 0 && m.NumMatches() >= s.params.MaxSearchMatches {
			s.MaxMatchesReached = true
			s.State = End
		}
	}
	return nil
}

func (s *Search) stage(m *matches.Matches) (Transition, error) {
	switch s.State {
	case Begin:
		if len(s.Pattern.Key) == 0 {
			return Transition{Next: End}, nil
		}
		return Transition{Next: ExactFilteringAdaptive}, nil
	case ExactFilteringAdaptive:
		return s.filter(ExactFilteringAdaptive, &s.params.Soft), nil
	case ExactFilteringBoost:
		s.boosted = true
		return s.filter(ExactFilteringBoost, &s.params.Hard), nil
	case InexactFiltering:
		return Transition{Next: End}, errors.Wrap(ErrNotImplemented, "inexact filtering")
	case NoRegions:
		return s.next(NoRegions, m)
	case ExactMatches:
		return s.exactMatches(m)
	case VerifyCandidates:
		return s.verify(), nil
	case ProbeCandidates:
		return s.probe(m), nil
	case CandidatesVerified:
		return s.candidatesVerified(m)
	case LocalAlignment:
		return s.localAlignment(m)
	case Neighborhood:
		return s.neighborhood(m)
	}
	return Transition{Next: End}, errors.Wrapf(ErrInvalidCase, "state: %s", s.State)
}

func (s *Search) next(step State, m *matches.Matches) (Transition, error) {
	next, err := s.controller.Next(s, step, m)
	return Transition{Next: next}, err
}

// filter generates the candidates of a region profile.
func (s *Search) filter(step State, model *filtering.RegionProfileModel) Transition {
	s.step = step
	rp := s.Profile
	rp.GenerateAdaptive(s.Pattern.Key, s.idx.FMI, model, 0, s.params.Allowed())
	s.sink.Observe("asearch.regions", float64(rp.NumFilteringRegions()))

	if rp.NoRegions() {
		return Transition{Next: NoRegions}
	}
	if rp.HasExactMatches() {
		return Transition{Next: ExactMatches}
	}

	s.Candidates.Generate(rp, s.Pattern, s.params.FilteringThreshold)
	s.stratum = uint64(rp.ErrorsLowerBound() + rp.NumFilteredRegions(s.params.FilteringThreshold))
	if limit := uint64(s.MaxDifferences + 1); s.stratum > limit {
		s.stratum = limit
	}
	return Transition{Next: VerifyCandidates}
}

func (s *Search) exactMatches(m *matches.Matches) (Transition, error) {
	r := &s.Profile.Regions[0]
	m.AddInterval(matches.Interval{
		Lo:       r.Lo,
		Hi:       r.Hi,
		Length:   len(s.Pattern.Key),
		Distance: 0,
		Strand:   s.Strand,
		Text:     s.Pattern.Key,
	})
	if s.MaxCompleteStratum < 1 {
		s.MaxCompleteStratum = 1
	}
	s.AdjustMaxDifferences(m)
	return s.next(ExactMatches, m)
}

// afterVerification returns the state following the verification.
func (s *Search) afterVerification() State {
	if s.params.ProbeStrand && s.instance.CompleteStrataAfterBest < s.MaxDifferences {
		return ProbeCandidates
	}
	return CandidatesVerified
}

func (s *Search) verify() Transition {
	next := s.afterVerification()
	if s.Batched && len(s.Candidates.Regions) > 0 {
		return Transition{Next: next, Suspend: true}
	}
	s.Candidates.Verify(s.Pattern)
	return Transition{Next: next}
}

// CopyCandidates adds the candidates of a suspended search into the
// buffer. It returns the number of tiles added.
func (s *Search) CopyCandidates(buffer filtering.BPMBuffer) (int, error) {
	if !s.waiting {
		return 0, nil
	}
	s.buffer = buffer
	return s.Candidates.AddToBuffer(&s.buffered, s.Pattern, buffer)
}

// RetrieveCandidates verifies the buffered candidates with the results
// of the buffer, the search can be resumed then.
func (s *Search) RetrieveCandidates() error {
	if !s.waiting {
		return nil
	}
	if s.buffer == nil {
		return errors.Wrap(ErrSuspended, "candidates not copied into a buffer")
	}
	if _, err := s.Candidates.RetrieveFromBuffer(&s.buffered, s.Pattern, s.buffer, s.params.CheckTiles); err != nil {
		return err
	}
	s.waiting = false
	s.buffer = nil
	return nil
}

// probe aligns the accepted candidates with the smallest budget first,
// the remaining ones are aligned later with the lowered budget. Nothing
// is kept if the probe finds no match.
func (s *Search) probe(m *matches.Matches) Transition {
	c := s.Candidates
	s.accepted = append(s.accepted[:0], c.Accepted...)
	s.rest = s.rest[:0]

	m.Save()
	s.ap.MaxError = s.instance.CompleteStrataAfterBest
	for _, r := range s.accepted {
		c.Accepted = append(c.Accepted[:0], r)
		if c.Align(s.Pattern, &s.ap, m) == 0 {
			s.rest = append(s.rest, r)
		}
	}
	s.sink.Inc("asearch.probes")

	if len(s.rest) == len(s.accepted) {
		m.Rollback()
		c.Accepted = append(c.Accepted[:0], s.accepted...)
		s.sink.Inc("asearch.probes_failed")
		return Transition{Next: CandidatesVerified}
	}
	s.AdjustMaxDifferences(m)
	c.Accepted = append(c.Accepted[:0], s.rest...)
	return Transition{Next: CandidatesVerified}
}

func (s *Search) candidatesVerified(m *matches.Matches) (Transition, error) {
	s.ap.MaxError = s.MaxDifferences
	n := s.Candidates.Align(s.Pattern, &s.ap, m)
	s.sink.Add("asearch.traces", uint64(n))

	if s.stratum > s.MaxCompleteStratum {
		s.MaxCompleteStratum = s.stratum
	}
	if s.controller.FilterAhead(s) {
		s.AdjustMaxDifferences(m)
	}
	return s.next(s.step, m)
}

// localAlignment aligns parts of the key to the discarded candidates and
// those of a recovery profile. It runs once per search.
func (s *Search) localAlignment(m *matches.Matches) (Transition, error) {
	if s.localDone {
		return s.next(LocalAlignment, m)
	}
	s.localDone = true

	rp := s.Profile
	rp.GenerateAdaptive(s.Pattern.Key, s.idx.FMI, &s.params.Recovery, 0, s.params.Allowed())
	if !rp.NoRegions() {
		s.Candidates.Generate(rp, s.Pattern, s.params.FilteringThreshold)
	}
	s.Candidates.DiscardPending()

	minScore := s.instance.MinMatchingLength * s.params.MatchScore
	n := s.Candidates.AlignLocal(s.Pattern, &s.ap, minScore, m)
	s.sink.Add("asearch.local_traces", uint64(n))
	return s.next(LocalAlignment, m)
}

func (s *Search) neighborhood(m *matches.Matches) (Transition, error) {
	m.RemoveStrand(s.Strand)
	s.searchNeighborhood(m, s.MaxDifferences)
	s.MaxCompleteStratum = uint64(s.MaxDifferences + 1)
	return s.next(Neighborhood, m)
}

// UniqueScore scores the best match as a unique one.
func (s *Search) UniqueScore(m *matches.Matches) float64 {
	pr := m.ComputePredictors(len(s.Pattern.Key), s.params.MatchScore,
		s.Profile.MaxRegionLength, int(s.idx.FMI.ProperLength()))
	if best := m.Metrics.MinEditDistance; best >= 0 {
		pr.Strata = float64(int(s.MaxCompleteStratum) - best)
	}
	return matches.UniqueScore(pr)
}
