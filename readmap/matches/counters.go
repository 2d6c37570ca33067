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
package matches

import "github.com/shenwei356/go-logging"

var log = logging.MustGetLogger("matches")

// Counters are the numbers of matches of each stratum (distance).
type Counters []uint64

// Add adds n matches of the distance.
func (c *Counters) Add(distance int, n uint64) {
	if distance < 0 {
		return
	}
	for len(*c) <= distance {
		*c = append(*c, 0)
	}
	(*c)[distance] += n
}

// Sub removes n matches of the distance.
func (c *Counters) Sub(distance int, n uint64) {
	if distance < 0 || distance >= len(*c) {
		return
	}
	if (*c)[distance] < n {
		log.Warningf("counters: removing %d matches of distance %d, only %d left", n, distance, (*c)[distance])
		(*c)[distance] = 0
	} else {
		(*c)[distance] -= n
	}
}

// Compact shrinks the counters to the last non-zero stratum and returns
// the number of strata left.
func (c *Counters) Compact() int {
	n := len(*c)
	for n > 0 && (*c)[n-1] == 0 {
		n--
	}
	*c = (*c)[:n]
	return n
}

// Min returns the first non-zero stratum, or -1.
func (c Counters) Min() int {
	for i, v := range c {
		if v > 0 {
			return i
		}
	}
	return -1
}

// Total returns the number of all matches.
func (c Counters) Total() uint64 {
	var n uint64
	for _, v := range c {
		n += v
	}
	return n
}

// Get returns the count of a stratum.
func (c Counters) Get(distance int) uint64 {
	if distance < 0 || distance >= len(c) {
		return 0
	}
	return c[distance]
}
