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

// State is a state of the approximate search.
type State uint8

const (
	Begin State = iota
	NoRegions
	ExactMatches
	ExactFilteringAdaptive
	ExactFilteringBoost
	VerifyCandidates
	ProbeCandidates
	CandidatesVerified
	InexactFiltering
	LocalAlignment
	Neighborhood
	End
)

// States lists all states in order.
var States = []State{
	Begin, NoRegions, ExactMatches, ExactFilteringAdaptive, ExactFilteringBoost,
	VerifyCandidates, ProbeCandidates, CandidatesVerified, InexactFiltering,
	LocalAlignment, Neighborhood, End,
}

var stateNames = [...]string{
	Begin:                  "begin",
	NoRegions:              "no_regions",
	ExactMatches:           "exact_matches",
	ExactFilteringAdaptive: "exact_filtering_adaptive",
	ExactFilteringBoost:    "exact_filtering_boost",
	VerifyCandidates:       "verify_candidates",
	ProbeCandidates:        "probe_candidates",
	CandidatesVerified:     "candidates_verified",
	InexactFiltering:       "inexact_filtering",
	LocalAlignment:         "local_alignment",
	Neighborhood:           "neighborhood",
	End:                    "end",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// filtering tells if the state generates candidates.
func (s State) filtering() bool {
	return s == ExactFilteringAdaptive || s == ExactFilteringBoost || s == InexactFiltering
}

// Transition is the result of a stage.
type Transition struct {
	Next State

	// The search has to wait for the candidates being verified by a
	// batch buffer.
	Suspend bool
}
