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
	"github.com/awalterschulze/gographviz"
)

type edge struct {
	from, to State
	label    string
}

// edges of the stages, shared by all modes
var stageEdges = []edge{
	{Begin, ExactFilteringAdaptive, ""},
	{Begin, End, "empty read"},
	{ExactFilteringAdaptive, NoRegions, ""},
	{ExactFilteringAdaptive, ExactMatches, ""},
	{ExactFilteringAdaptive, VerifyCandidates, ""},
	{VerifyCandidates, CandidatesVerified, ""},
	{VerifyCandidates, ProbeCandidates, "probe strand"},
	{ProbeCandidates, CandidatesVerified, ""},
}

var modeEdges = map[MappingMode][]edge{
	MappingFast: {
		{CandidatesVerified, LocalAlignment, "no trace"},
		{CandidatesVerified, End, "traces"},
		{NoRegions, LocalAlignment, ""},
		{ExactMatches, End, ""},
		{LocalAlignment, End, ""},
	},
	MappingMatch: {
		{CandidatesVerified, End, "fulfilled"},
		{CandidatesVerified, ExactFilteringBoost, "not fulfilled"},
		{CandidatesVerified, LocalAlignment, "no trace after boost"},
		{ExactFilteringBoost, NoRegions, ""},
		{ExactFilteringBoost, ExactMatches, ""},
		{ExactFilteringBoost, VerifyCandidates, ""},
		{NoRegions, ExactFilteringBoost, ""},
		{NoRegions, LocalAlignment, "boosted"},
		{ExactMatches, End, ""},
		{LocalAlignment, End, ""},
	},
	MappingComplete: {
		{CandidatesVerified, End, "strata complete"},
		{CandidatesVerified, Neighborhood, "small budget"},
		{NoRegions, End, "strata complete"},
		{NoRegions, Neighborhood, "small budget"},
		{ExactMatches, End, "strata complete"},
		{ExactMatches, Neighborhood, "small budget"},
		{Neighborhood, End, ""},
	},
}

// StateGraph returns the states and transitions of a mapping mode in
// DOT format.
func StateGraph(mode MappingMode) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName(mode.String()); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	edges := append(append([]edge(nil), stageEdges...), modeEdges[mode]...)
	used := make(map[State]bool, len(States))
	for _, e := range edges {
		used[e.from] = true
		used[e.to] = true
	}

	var err error
	for _, s := range States {
		if !used[s] {
			continue
		}
		attrs := map[string]string{"shape": "box"}
		switch s {
		case Begin, End:
			attrs["shape"] = "ellipse"
		case VerifyCandidates:
			attrs["style"] = "dashed" // may suspend
		}
		if err = g.AddNode(mode.String(), s.String(), attrs); err != nil {
			return "", err
		}
	}
	for _, e := range edges {
		var attrs map[string]string
		if e.label != "" {
			attrs = map[string]string{"label": `"` + e.label + `"`}
		}
		if err = g.AddEdge(e.from.String(), e.to.String(), true, attrs); err != nil {
			return "", err
		}
	}
	return g.String(), nil
}
