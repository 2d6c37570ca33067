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

// Package archive maps reads against an index: the searches of both
// strands of a read, the selection and decoding of the matches, the self
// checks, and a pool of workers mapping batches of reads.
package archive

import (
	"context"

	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/asearch"
	"github.com/shenwei356/ReadMap/readmap/filtering"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/ReadMap/readmap/matches"
	"github.com/shenwei356/ReadMap/readmap/metrics"
	"github.com/shenwei356/ReadMap/readmap/util"
)

// Search is the single-end search of a read on both strands.
// If the index does not contain the reverse complement strands,
// the reverse strand is searched with the reverse complement of the read.
type Search struct {
	Forward *asearch.Search
	Reverse *asearch.Search // nil for indexes with both strands

	Name    string
	Read    []byte // letters
	Quality []byte
	Key     []byte // encoded read
	RCKey   []byte // encoded reverse complement

	rcQuality []byte

	idx       *index.Index
	params    *asearch.Parameters
	texts     *filtering.TextCollection
	aligner   *align.Aligner
	sink      metrics.Sink
	emulateRC bool
}

// NewSearch creates a Search, sink can be nil.
func NewSearch(idx *index.Index, params *asearch.Parameters, sink metrics.Sink) *Search {
	if sink == nil {
		sink = metrics.Discard
	}
	texts := filtering.NewTextCollection(idx)
	s := &Search{
		idx:       idx,
		params:    params,
		texts:     texts,
		aligner:   align.NewAligner(params.AlignOptions()),
		sink:      sink,
		emulateRC: !idx.FR,
	}
	s.Forward = asearch.NewSearch(idx, params, texts, sink)
	if s.emulateRC {
		s.Reverse = asearch.NewSearch(idx, params, texts, sink)
	}
	return s
}

// Index returns the index searched.
func (s *Search) Index() *index.Index { return s.idx }

// Parameters returns the search parameters.
func (s *Search) Parameters() *asearch.Parameters { return s.params }

// Reset prepares the searches for a new read.
// read and quality are not modified and must not be changed until
// the read is done.
func (s *Search) Reset(name string, read, quality []byte) {
	s.Name = name
	s.Read = read
	s.Quality = quality
	s.Key = util.Encode(read, s.Key)
	s.texts.Clear()

	s.Forward.Batched = false
	s.Forward.Prepare(s.Key, quality, matches.Forward)
	if !s.emulateRC {
		return
	}

	s.Reverse.Batched = false
	s.RCKey = util.ReverseComplement(s.Key, s.RCKey)
	if len(quality) > 0 {
		s.rcQuality = append(s.rcQuality[:0], quality...)
		util.ReverseBytes(s.rcQuality)
		s.Reverse.Prepare(s.RCKey, s.rcQuality, matches.Reverse)
	} else {
		s.Reverse.Prepare(s.RCKey, nil, matches.Reverse)
	}
}

// KeyOf returns the key searched for the strand.
func (s *Search) KeyOf(strand matches.Strand) []byte {
	if strand == matches.Reverse && s.emulateRC {
		return s.RCKey
	}
	return s.Key
}

// SearchOf returns the search of the strand.
func (s *Search) SearchOf(strand matches.Strand) *asearch.Search {
	if strand == matches.Reverse && s.emulateRC {
		return s.Reverse
	}
	return s.Forward
}

// SearchSE searches the read on both strands. With strand probing, the
// forward search stops before its neighborhood stage, so the reverse
// strand can lower the error budget before the forward search goes on.
func (s *Search) SearchSE(ctx context.Context, m *matches.Matches) error {
	if !s.emulateRC {
		if err := s.Forward.Run(m); err != nil {
			return err
		}
		s.setMaxCompleteStratum(m)
		return nil
	}

	fwd, rev := s.Forward, s.Reverse
	if s.params.ProbeStrand && fwd.Instance().CompleteStrataAfterBest < fwd.MaxDifferences {
		fwd.StopBeforeNeighborhood = true
	}
	if err := fwd.Run(m); err != nil {
		return err
	}
	if !fwd.MaxMatchesReached {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rev.Run(m); err != nil {
			return err
		}
		if fwd.State != asearch.End && !rev.MaxMatchesReached {
			if err := fwd.Run(m); err != nil {
				return err
			}
		}
	}
	s.setMaxCompleteStratum(m)
	return nil
}

// GenerateCandidates runs the searches until the verification of
// candidates, which are then copied into a buffer.
func (s *Search) GenerateCandidates(m *matches.Matches) error {
	s.Forward.Batched = true
	if err := s.Forward.Run(m); err != nil {
		return err
	}
	if s.emulateRC {
		s.Reverse.Batched = true
		if err := s.Reverse.Run(m); err != nil {
			return err
		}
	}
	return nil
}

// CopyCandidates copies the pending candidates into the buffer.
// It returns the number of tiles added.
func (s *Search) CopyCandidates(buffer filtering.BPMBuffer) (int, error) {
	n, err := s.Forward.CopyCandidates(buffer)
	if err != nil || !s.emulateRC {
		return n, err
	}
	n2, err := s.Reverse.CopyCandidates(buffer)
	return n + n2, err
}

// RetrieveCandidates retrieves the verification results from the
// flushed buffer.
func (s *Search) RetrieveCandidates() error {
	if err := s.Forward.RetrieveCandidates(); err != nil {
		return err
	}
	if s.emulateRC {
		return s.Reverse.RetrieveCandidates()
	}
	return nil
}

// FinishSearch resumes the searches to the end.
func (s *Search) FinishSearch(m *matches.Matches) error {
	s.Forward.Batched = false
	if err := s.Forward.Run(m); err != nil {
		return err
	}
	if s.emulateRC {
		s.Reverse.Batched = false
		if err := s.Reverse.Run(m); err != nil {
			return err
		}
	}
	s.setMaxCompleteStratum(m)
	return nil
}

func (s *Search) setMaxCompleteStratum(m *matches.Matches) {
	mcs := s.Forward.MaxCompleteStratum
	if s.emulateRC && s.Reverse.MaxCompleteStratum < mcs {
		mcs = s.Reverse.MaxCompleteStratum
	}
	m.MaxCompleteStratum = mcs
}

// maxRegionLength returns the longest region of the profiles.
func (s *Search) maxRegionLength() int {
	n := s.Forward.Profile.MaxRegionLength
	if s.emulateRC && s.Reverse.Profile.MaxRegionLength > n {
		n = s.Reverse.Profile.MaxRegionLength
	}
	return n
}
