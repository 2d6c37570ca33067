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

// Package metrics provides the counters and histograms sink injected
// into the search components.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Sink receives counters and observations.
type Sink interface {
	// Inc increases a counter by one.
	Inc(name string)
	// Add increases a counter by n.
	Add(name string, n uint64)
	// Observe records a value of a histogram.
	Observe(name string, v float64)
}

// Discard drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Inc(string)              {}
func (discard) Add(string, uint64)      {}
func (discard) Observe(string, float64) {}

// Recorder keeps counters and histograms in memory.
// It is safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	counters   map[string]uint64
	histograms map[string][]float64
}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counters:   make(map[string]uint64, 64),
		histograms: make(map[string][]float64, 16),
	}
}

// Inc increases a counter by one.
func (r *Recorder) Inc(name string) { r.Add(name, 1) }

// Add increases a counter by n.
func (r *Recorder) Add(name string, n uint64) {
	r.mu.Lock()
	r.counters[name] += n
	r.mu.Unlock()
}

// Observe records a value of a histogram.
func (r *Recorder) Observe(name string, v float64) {
	r.mu.Lock()
	r.histograms[name] = append(r.histograms[name], v)
	r.mu.Unlock()
}

// Counter returns the value of a counter.
func (r *Recorder) Counter(name string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// Values returns a copy of the values of a histogram.
func (r *Recorder) Values(name string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64{}, r.histograms[name]...)
}

// HistogramSummary summarizes the values of a histogram.
type HistogramSummary struct {
	Name   string
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Median float64
	Max    float64
}

// Summary summarizes all histograms, sorted by name.
func (r *Recorder) Summary() []HistogramSummary {
	r.mu.Lock()
	names := make([]string, 0, len(r.histograms))
	for name := range r.histograms {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	summaries := make([]HistogramSummary, 0, len(names))
	for _, name := range names {
		vals := r.Values(name)
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		mean, std := stat.MeanStdDev(vals, nil)
		if len(vals) == 1 {
			std = 0
		}
		summaries = append(summaries, HistogramSummary{
			Name:   name,
			N:      len(vals),
			Mean:   mean,
			StdDev: std,
			Min:    vals[0],
			Median: stat.Quantile(0.5, stat.Empirical, vals, nil),
			Max:    vals[len(vals)-1],
		})
	}
	return summaries
}

// WriteTo writes counters and histogram summaries in a tab-delimited format.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	names := make([]string, 0, len(r.counters))
	for name := range r.counters {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	var total int64
	n, err := fmt.Fprintf(w, "metric\tcount\tmean\tstdev\tmin\tmedian\tmax\n")
	total += int64(n)
	if err != nil {
		return total, err
	}
	for _, name := range names {
		n, err = fmt.Fprintf(w, "%s\t%d\t\t\t\t\t\n", name, r.Counter(name))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	for _, s := range r.Summary() {
		n, err = fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			s.Name, s.N, s.Mean, s.StdDev, s.Min, s.Median, s.Max)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
