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
	"bytes"
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/zeebo/wyhash"
)

// ErrBufferNotFlushed means results are read before the batch is processed.
var ErrBufferNotFlushed = errors.New("filtering: BPM buffer not flushed")

// ErrBufferFlushed means candidates are added after the batch is processed.
var ErrBufferFlushed = errors.New("filtering: BPM buffer already flushed")

// TileCandidate is a text window to verify against one pattern tile.
type TileCandidate struct {
	Pattern  int // index in the pattern table
	Tile     int
	Position uint64
	Length   int
}

// TileResult is the result of the verification of a tile.
type TileResult struct {
	Distance int
	Column   int // end column of the best alignment in the window
}

// BPMBuffer collects tiles to verify. Tile indices are dense and
// assigned in the order of appending.
type BPMBuffer interface {
	// Enabled tells if candidates are verified in a batch. If not,
	// results are computed by the caller.
	Enabled() bool

	// NumCandidates returns the number of appended tiles.
	NumCandidates() int

	// Append appends the tiles of a pattern atomically and returns the
	// index of the first one.
	Append(p *align.Pattern, tiles []TileCandidate) (int, error)

	// Flush processes the whole batch. It is the barrier between the add
	// and the retrieve phases.
	Flush(ctx context.Context) error

	Flushed() bool

	GetResult(idx int) (TileResult, error)
	GetCandidate(idx int) TileCandidate

	// Clear starts a new batch.
	Clear()
}

// Processor verifies a whole batch, the stand-in of a coprocessor.
type Processor interface {
	Process(ctx context.Context, patterns []*align.Pattern, tiles []TileCandidate, results []TileResult) error
}

// BatchBuffer is a BPMBuffer shared by many workers.
type BatchBuffer struct {
	mu sync.Mutex

	processor Processor

	patterns    []*align.Pattern
	fingerprint map[uint64]int // wyhash of keys -> pattern index
	tiles       []TileCandidate
	results     []TileResult
	flushed     bool
}

// NewBatchBuffer creates a BatchBuffer.
func NewBatchBuffer(processor Processor, capacity int) *BatchBuffer {
	return &BatchBuffer{
		processor:   processor,
		patterns:    make([]*align.Pattern, 0, 64),
		fingerprint: make(map[uint64]int, 64),
		tiles:       make([]TileCandidate, 0, capacity),
	}
}

// Enabled returns true.
func (b *BatchBuffer) Enabled() bool { return true }

// NumCandidates returns the number of appended tiles.
func (b *BatchBuffer) NumCandidates() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tiles)
}

func (b *BatchBuffer) addPattern(p *align.Pattern) int {
	h := wyhash.Hash(p.Key, 1)
	if i, ok := b.fingerprint[h]; ok && samePattern(b.patterns[i], p) {
		return i
	}
	i := len(b.patterns)
	b.patterns = append(b.patterns, p)
	b.fingerprint[h] = i
	return i
}

// patterns with the same key and tiles share the bit-parallel tables.
func samePattern(a, b *align.Pattern) bool {
	if a == b {
		return true
	}
	if len(a.Tiles) != len(b.Tiles) || !bytes.Equal(a.Key, b.Key) {
		return false
	}
	for k := range a.Tiles {
		if a.Tiles[k].Offset != b.Tiles[k].Offset || a.Tiles[k].Length != b.Tiles[k].Length {
			return false
		}
	}
	return true
}

// Append appends the tiles of a pattern.
func (b *BatchBuffer) Append(p *align.Pattern, tiles []TileCandidate) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		return 0, ErrBufferFlushed
	}
	pi := b.addPattern(p)
	offset := len(b.tiles)
	for _, t := range tiles {
		t.Pattern = pi
		b.tiles = append(b.tiles, t)
	}
	return offset, nil
}

// Flush processes the batch.
func (b *BatchBuffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		return nil
	}
	if cap(b.results) < len(b.tiles) {
		b.results = make([]TileResult, len(b.tiles))
	}
	b.results = b.results[:len(b.tiles)]
	if err := b.processor.Process(ctx, b.patterns, b.tiles, b.results); err != nil {
		return err
	}
	b.flushed = true
	return nil
}

// Flushed tells if the batch is processed.
func (b *BatchBuffer) Flushed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushed
}

// GetResult returns the result of a tile.
func (b *BatchBuffer) GetResult(idx int) (TileResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.flushed {
		return TileResult{}, ErrBufferNotFlushed
	}
	return b.results[idx], nil
}

// GetCandidate returns an appended tile.
func (b *BatchBuffer) GetCandidate(idx int) TileCandidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tiles[idx]
}

// Pattern returns a pattern of the table.
func (b *BatchBuffer) Pattern(idx int) *align.Pattern {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.patterns[idx]
}

// Clear starts a new batch.
func (b *BatchBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.patterns = b.patterns[:0]
	clear(b.fingerprint)
	b.tiles = b.tiles[:0]
	b.results = b.results[:0]
	b.flushed = false
}

// CPUProcessor emulates the coprocessor with goroutines.
type CPUProcessor struct {
	idx     *index.Index
	threads int
}

// NewCPUProcessor creates a CPUProcessor.
func NewCPUProcessor(idx *index.Index, threads int) *CPUProcessor {
	if threads <= 0 {
		threads = 1
	}
	return &CPUProcessor{idx: idx, threads: threads}
}

// Process verifies all tiles.
func (cp *CPUProcessor) Process(ctx context.Context, patterns []*align.Pattern,
	tiles []TileCandidate, results []TileResult) error {
	n := len(tiles)
	if n == 0 {
		return nil
	}
	chunk := (n + cp.threads - 1) / cp.threads

	var wg sync.WaitGroup
	tokens := make(chan int, cp.threads)
	for begin := 0; begin < n; begin += chunk {
		end := begin + chunk
		if end > n {
			end = n
		}
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return err
		}

		tokens <- 1
		wg.Add(1)
		go func(begin, end int) {
			defer func() {
				wg.Done()
				<-tokens
			}()
			var t *TileCandidate
			var pt *align.PatternTile
			for i := begin; i < end; i++ {
				t = &tiles[i]
				pt = &patterns[t.Pattern].Tiles[t.Tile]
				text := cp.idx.Retrieve(t.Position, uint64(t.Length))
				d, col, _ := pt.BPM.ComputeEditDistance(text, pt.Length)
				results[i] = TileResult{Distance: d, Column: col}
			}
		}(begin, end)
	}
	wg.Wait()
	return ctx.Err()
}

// SyncBuffer is a disabled BPMBuffer: only offsets are recorded and
// distances are computed in-process on retrieval.
type SyncBuffer struct {
	n int
}

// NewSyncBuffer creates a SyncBuffer.
func NewSyncBuffer() *SyncBuffer { return &SyncBuffer{} }

// Enabled returns false.
func (b *SyncBuffer) Enabled() bool { return false }

// NumCandidates returns the number of appended tiles.
func (b *SyncBuffer) NumCandidates() int { return b.n }

// Append only counts the tiles.
func (b *SyncBuffer) Append(p *align.Pattern, tiles []TileCandidate) (int, error) {
	offset := b.n
	b.n += len(tiles)
	return offset, nil
}

// Flush does nothing.
func (b *SyncBuffer) Flush(ctx context.Context) error { return nil }

// Flushed returns true.
func (b *SyncBuffer) Flushed() bool { return true }

// GetResult is not supported, the caller computes the distances.
func (b *SyncBuffer) GetResult(idx int) (TileResult, error) {
	return TileResult{Distance: align.DistanceUnknown, Column: -1}, nil
}

// GetCandidate is not supported.
func (b *SyncBuffer) GetCandidate(idx int) TileCandidate { return TileCandidate{} }

// Clear resets the counter.
func (b *SyncBuffer) Clear() { b.n = 0 }
