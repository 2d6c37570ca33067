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

package util

import (
	"math"
)

// ReverseBytes reverses a byte slice in place.
func ReverseBytes(s []byte) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// BoundedSub returns a-b, or 0 when b > a.
func BoundedSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// MinUint64 returns the smaller one.
func MinUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// MaxUint64 returns the bigger one.
func MaxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// IntegerProportion converts a value relative to length into an absolute
// number. Values >= 1 are already absolute.
func IntegerProportion(p float64, length int) uint64 {
	if p < 0 {
		return 0
	}
	if p >= 1 {
		return uint64(p)
	}
	return uint64(p * float64(length))
}

// Log4Ceil returns ceil(log4(n)), used as the expected length of
// a unique substring in a text of length n.
func Log4Ceil(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return uint64(math.Ceil(math.Log(float64(n)) / math.Log(4)))
}
