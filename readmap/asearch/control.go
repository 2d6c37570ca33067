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

package asearch

import (
	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/matches"
)

// ErrNotImplemented means the search needs a strategy that is not
// supported, e.g., escalating the candidates of the complete mode.
var ErrNotImplemented = errors.New("asearch: not implemented")

// ErrInvalidCase means an unexpected state reached a controller.
var ErrInvalidCase = errors.New("asearch: invalid case")

// FulfilledMapQ is the score a unique match needs to stop the search.
const FulfilledMapQ = 55

// Controller decides the next state of a search after a stage.
type Controller interface {
	Mode() MappingMode

	// Next returns the state following the step.
	Next(s *Search, step State, m *matches.Matches) (State, error)

	// Fulfilled tells if the matches found are good enough.
	Fulfilled(s *Search, m *matches.Matches) bool

	// FilterAhead tells if the error budget can be tightened by the
	// candidates verified so far.
	FilterAhead(s *Search) bool
}

// NewController returns the controller of a mapping mode.
func NewController(mode MappingMode) Controller {
	switch mode {
	case MappingMatch:
		return MatchController{}
	case MappingComplete:
		return CompleteController{}
	}
	return FastController{}
}

func invalidCase(c Controller, step State) error {
	return errors.Wrapf(ErrInvalidCase, "%s mode after %s", c.Mode(), step)
}

// fulfilled is shared by the fast and match modes.
func fulfilled(s *Search, m *matches.Matches) bool {
	switch m.Classify() {
	case matches.Unmapped, matches.MMap:
		return false
	case matches.Unique:
		return s.UniqueScore(m) >= FulfilledMapQ
	default: // ties
		return m.Metrics.MinEditDistance >= 0 && m.Metrics.MinEditDistance <= 1
	}
}

// FastController stops as soon as something is found.
type FastController struct{}

// Mode returns MappingFast.
func (FastController) Mode() MappingMode { return MappingFast }

// Fulfilled checks the class of the matches.
func (FastController) Fulfilled(s *Search, m *matches.Matches) bool { return fulfilled(s, m) }

// FilterAhead is always true.
func (FastController) FilterAhead(s *Search) bool { return true }

// Next of the fast mode.
func (c FastController) Next(s *Search, step State, m *matches.Matches) (State, error) {
	switch step {
	case ExactFilteringAdaptive:
		if len(m.Traces) == 0 {
			return LocalAlignment, nil
		}
		return End, nil
	case NoRegions:
		return LocalAlignment, nil
	case ExactMatches, LocalAlignment:
		return End, nil
	}
	return End, invalidCase(c, step)
}

// MatchController boosts the region profile until the matches are good
// enough.
type MatchController struct{}

// Mode returns MappingMatch.
func (MatchController) Mode() MappingMode { return MappingMatch }

// Fulfilled checks the class of the matches.
func (MatchController) Fulfilled(s *Search, m *matches.Matches) bool { return fulfilled(s, m) }

// FilterAhead is always false.
func (MatchController) FilterAhead(s *Search) bool { return false }

// Next of the match mode.
func (c MatchController) Next(s *Search, step State, m *matches.Matches) (State, error) {
	switch step {
	case ExactFilteringAdaptive:
		if c.Fulfilled(s, m) {
			return End, nil
		}
		return ExactFilteringBoost, nil
	case NoRegions:
		if s.boosted {
			return LocalAlignment, nil
		}
		return ExactFilteringBoost, nil
	case ExactFilteringBoost:
		if len(m.Traces) == 0 {
			return LocalAlignment, nil
		}
		return End, nil
	case ExactMatches, LocalAlignment:
		return End, nil
	}
	return End, invalidCase(c, step)
}

// CompleteController explores every stratum within the error budget.
type CompleteController struct{}

// Mode returns MappingComplete.
func (CompleteController) Mode() MappingMode { return MappingComplete }

// Fulfilled tells if all strata within the budget are complete.
func (CompleteController) Fulfilled(s *Search, m *matches.Matches) bool {
	return s.MaxCompleteStratum > uint64(s.MaxDifferences)
}

// FilterAhead is true if the budget can be lowered by the best match.
func (CompleteController) FilterAhead(s *Search) bool {
	return s.instance.CompleteStrataAfterBest < s.MaxDifferences
}

// Next of the complete mode. Only the exhaustive neighborhood search is
// supported to complete the strata.
func (c CompleteController) Next(s *Search, step State, m *matches.Matches) (State, error) {
	switch step {
	case ExactFilteringAdaptive, ExactMatches, NoRegions:
		if c.Fulfilled(s, m) {
			return End, nil
		}
		if s.MaxDifferences <= s.params.NeighborhoodMaxError {
			return Neighborhood, nil
		}
		return End, errors.Wrapf(ErrNotImplemented,
			"complete mode: strata %d-%d left after %s", s.MaxCompleteStratum, s.MaxDifferences, step)
	case Neighborhood:
		return End, nil
	}
	return End, invalidCase(c, step)
}

// AdjustMaxDifferences lowers the error budget to the best edit distance
// plus the complete strata after the best one. It never raises it.
func (s *Search) AdjustMaxDifferences(m *matches.Matches) {
	delta := s.instance.CompleteStrataAfterBest
	if delta >= s.MaxDifferences {
		return
	}
	best := m.Metrics.MinEditDistance
	if best < 0 {
		return
	}
	if best+delta < s.MaxDifferences {
		s.MaxDifferences = best + delta
	}
}
