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

import "math"

// CalculateMatchesToDecode computes how many strata are decoded, the number
// of matches in them, and how many matches are taken from the last one
// (math.MaxUint64 for all). It compacts the counters and depends on
// nothing else.
func CalculateMatchesToDecode(counters *Counters, maxDecoded, minDecodedStrata,
	minReported, maxReported uint64) (strata int, total uint64, lastStratum uint64) {
	maxNZ := counters.Compact()
	if maxNZ == 0 {
		return 0, 0, 0
	}
	c := *counters

	// bounded by the number of decoded matches
	for strata = 0; strata < maxNZ; strata++ {
		total += c[strata]
		if total > maxDecoded {
			total -= c[strata]
			break
		}
	}

	// extended to the mandatory strata
	if minDecodedStrata > 0 {
		mandatory := uint64(c.Min()) + minDecodedStrata
		for ; strata < maxNZ && uint64(strata) < mandatory; strata++ {
			total += c[strata]
		}
	}

	// extended to the minimum number of reported matches
	for ; strata < maxNZ && total < minReported; strata++ {
		total += c[strata]
	}

	// lowered by the maximum number of reported matches
	var prev uint64
	for ; strata > 0; strata-- {
		prev = total - c[strata-1]
		if total <= maxReported || prev < minReported {
			break
		}
		total = prev
	}

	if total == 0 {
		return 0, 0, 0
	}
	lastStratum = math.MaxUint64
	if total > maxReported {
		prev = total - c[strata-1]
		lastStratum = maxReported - prev
	}
	return strata, total, lastStratum
}
