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
	"io"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/asearch"
	"github.com/shenwei356/ReadMap/readmap/filtering"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/ReadMap/readmap/matches"
	"github.com/shenwei356/ReadMap/readmap/metrics"
)

// Read is a read to map.
type Read struct {
	Name string
	Seq  []byte // letters
	Qual []byte
}

// Result is the mapping result of a read.
type Result struct {
	Read    *Read
	Matches *matches.Matches
	Class   matches.Class

	// reported matches failing the self checks
	NumFailed int
}

var poolMatches = &sync.Pool{New: func() interface{} {
	return matches.NewMatches()
}}

// MapperOptions contains the options of a Mapper.
type MapperOptions struct {
	// number of reads mapped in parallel
	Threads int

	// Reads of a batch add their candidates into a shared buffer, which
	// is verified at once. 0 for verifying candidates in each search.
	BatchSize int

	Select SelectParameters
	Check  CheckParameters

	// failed self checks are written here
	Diagnostics io.Writer
}

// DefaultMapperOptions is the default MapperOptions.
var DefaultMapperOptions = MapperOptions{
	Threads:   runtime.NumCPU(),
	BatchSize: 0,
	Select:    DefaultSelectParameters,
}

// Mapper maps reads with a pool of searches.
type Mapper struct {
	idx    *index.Index
	params *asearch.Parameters
	opt    *MapperOptions
	sink   metrics.Sink

	buffer     *filtering.BatchBuffer
	poolSearch *sync.Pool

	mu sync.Mutex // guards the diagnostics writer
}

// NewMapper creates a Mapper, sink can be nil.
func NewMapper(idx *index.Index, params *asearch.Parameters, opt *MapperOptions,
	sink metrics.Sink) (*Mapper, error) {
	if opt == nil {
		opt = &DefaultMapperOptions
	}
	if opt.Threads <= 0 {
		return nil, errors.Wrapf(asearch.ErrInvalidParameter, "invalid number of threads: %d", opt.Threads)
	}
	if opt.BatchSize < 0 {
		return nil, errors.Wrapf(asearch.ErrInvalidParameter, "invalid batch size: %d", opt.BatchSize)
	}
	if err := opt.Select.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.Discard
	}

	mp := &Mapper{
		idx:    idx,
		params: params,
		opt:    opt,
		sink:   sink,
	}
	mp.poolSearch = &sync.Pool{New: func() interface{} {
		return NewSearch(idx, params, sink)
	}}
	if opt.BatchSize > 0 {
		mp.buffer = filtering.NewBatchBuffer(filtering.NewCPUProcessor(idx, opt.Threads),
			opt.BatchSize*4)
	}
	return mp, nil
}

// Buffer returns the shared buffer, nil if reads are not batched.
func (mp *Mapper) Buffer() *filtering.BatchBuffer { return mp.buffer }

// Recycle recycles the matches of a result.
func (mp *Mapper) Recycle(r *Result) {
	if r == nil || r.Matches == nil {
		return
	}
	r.Matches.Clear()
	poolMatches.Put(r.Matches)
	r.Matches = nil
}

func newResult(read *Read) *Result {
	m := poolMatches.Get().(*matches.Matches)
	m.Clear()
	return &Result{Read: read, Matches: m}
}

// MapBatch maps the reads and returns the results in the same order.
// With batching on, it must not be called concurrently.
func (mp *Mapper) MapBatch(ctx context.Context, reads []*Read) ([]*Result, error) {
	results := make([]*Result, len(reads))

	if mp.buffer == nil {
		err := mp.parallel(ctx, len(reads), func(i int) error {
			s := mp.poolSearch.Get().(*Search)
			defer mp.poolSearch.Put(s)

			read := reads[i]
			r := newResult(read)
			results[i] = r

			s.Reset(read.Name, read.Seq, read.Qual)
			if err := s.SearchSE(ctx, r.Matches); err != nil {
				return errors.Wrapf(err, "read %s", read.Name)
			}
			return mp.finish(s, r)
		})
		return results, err
	}

	var end int
	for begin := 0; begin < len(reads); begin = end {
		end = begin + mp.opt.BatchSize
		if end > len(reads) {
			end = len(reads)
		}
		if err := mp.mapBuffered(ctx, reads[begin:end], results[begin:end]); err != nil {
			return results, err
		}
	}
	return results, nil
}

// mapBuffered maps a batch in two phases separated by the flush of
// the shared buffer.
func (mp *Mapper) mapBuffered(ctx context.Context, reads []*Read, results []*Result) error {
	searches := make([]*Search, len(reads))
	defer func() {
		for _, s := range searches {
			if s != nil {
				mp.poolSearch.Put(s)
			}
		}
		mp.buffer.Clear()
	}()

	// generating candidates
	err := mp.parallel(ctx, len(reads), func(i int) error {
		s := mp.poolSearch.Get().(*Search)
		searches[i] = s

		read := reads[i]
		r := newResult(read)
		results[i] = r

		s.Reset(read.Name, read.Seq, read.Qual)
		if err := s.GenerateCandidates(r.Matches); err != nil {
			return errors.Wrapf(err, "read %s", read.Name)
		}
		_, err := s.CopyCandidates(mp.buffer)
		return err
	})
	if err != nil {
		return err
	}

	if err = mp.buffer.Flush(ctx); err != nil {
		return err
	}
	mp.sink.Inc("archive.batches")
	mp.sink.Observe("archive.batch_tiles", float64(mp.buffer.NumCandidates()))

	// retrieving and finishing
	return mp.parallel(ctx, len(reads), func(i int) error {
		s, r := searches[i], results[i]
		if err := s.RetrieveCandidates(); err != nil {
			return errors.Wrapf(err, "read %s", r.Read.Name)
		}
		if err := s.FinishSearch(r.Matches); err != nil {
			return errors.Wrapf(err, "read %s", r.Read.Name)
		}
		return mp.finish(s, r)
	})
}

// finish selects the matches and checks them.
func (mp *Mapper) finish(s *Search, r *Result) error {
	s.Select(r.Matches, &mp.opt.Select)
	r.Class = r.Matches.Classify()
	mp.sink.Inc("archive.reads_" + r.Class.String())

	cp := &mp.opt.Check
	if mp.opt.Diagnostics == nil || !(cp.Correct || cp.Optimum || cp.Complete) {
		return nil
	}
	var buf bytes.Buffer
	n, err := s.CheckMatches(&buf, r.Matches, cp)
	r.NumFailed = n
	if err != nil {
		return errors.Wrapf(err, "read %s", r.Read.Name)
	}
	if buf.Len() > 0 {
		mp.mu.Lock()
		_, err = buf.WriteTo(mp.opt.Diagnostics)
		mp.mu.Unlock()
	}
	return err
}

// parallel calls fn for 0..n-1 with at most Threads goroutines,
// it returns the first error.
func (mp *Mapper) parallel(ctx context.Context, n int, fn func(i int) error) error {
	tokens := make(chan int, mp.opt.Threads)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var first error

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			if first == nil {
				first = err
			}
			mu.Unlock()
			break
		}

		tokens <- 1
		wg.Add(1)
		go func(i int) {
			defer func() {
				wg.Done()
				<-tokens
			}()

			if err := fn(i); err != nil {
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	return first
}
