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
	"github.com/shenwei356/ReadMap/readmap/util"
	"github.com/shenwei356/lexichash/iterator"
)

// DefaultKmerFilterK is the k-mer size of the q-gram filter.
var DefaultKmerFilterK = 5

// KmerFilter computes a lower bound of the edit distance between a key
// and any substring of a text by counting shared k-mers: every edit
// destroys at most k k-mers of the key.
type KmerFilter struct {
	K int

	counts map[uint64]int // k-mers of the key
	total  int

	seen map[uint64]int
	buf  []byte
}

// NewKmerFilter creates a KmerFilter.
func NewKmerFilter(k int) *KmerFilter {
	return &KmerFilter{
		K:      k,
		counts: make(map[uint64]int, 128),
		seen:   make(map[uint64]int, 128),
	}
}

// forEach calls fn for every k-mer of the ACGT runs of encoded bases.
func (f *KmerFilter) forEach(s []byte, fn func(kmer uint64)) {
	f.buf = util.Decode(s, f.buf[:0])
	seq := f.buf
	var begin int
	for i := 0; i <= len(seq); i++ {
		if i < len(seq) && seq[i] != 'N' {
			continue
		}
		if i-begin >= f.K {
			iter, err := iterator.NewKmerIterator(seq[begin:i], f.K)
			if err == nil {
				var kmer uint64
				var ok bool
				for {
					kmer, ok, _ = iter.NextPositiveKmer()
					if !ok {
						break
					}
					fn(kmer)
				}
			}
		}
		begin = i + 1
	}
}

// SetKey counts the k-mers of the key.
func (f *KmerFilter) SetKey(key []byte) {
	clear(f.counts)
	f.total = 0
	f.forEach(key, func(kmer uint64) {
		f.counts[kmer]++
		f.total++
	})
}

// Enabled tells if the key has any k-mers.
func (f *KmerFilter) Enabled() bool { return f.total > 0 }

// LowerBound returns the lower bound of the edit distance.
func (f *KmerFilter) LowerBound(text []byte) int {
	if f.total == 0 {
		return 0
	}
	clear(f.seen)
	var shared int
	f.forEach(text, func(kmer uint64) {
		if n, ok := f.counts[kmer]; ok && f.seen[kmer] < n {
			f.seen[kmer]++
			shared++
		}
	})
	if shared >= f.total {
		return 0
	}
	return (f.total - shared + f.K - 1) / f.K
}
