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
	"bytes"
	"testing"
)

func TestLog4Ceil(t *testing.T) {
	for _, d := range [][2]uint64{{0, 1}, {1, 1}, {3, 1}, {5, 2}, {17, 3}, {1000, 5}, {1000000, 10}} {
		if v := Log4Ceil(d[0]); v != d[1] {
			t.Errorf("Log4Ceil(%d): expected %d, returned %d", d[0], d[1], v)
		}
	}
}

func TestIntegerProportion(t *testing.T) {
	if v := IntegerProportion(0.04, 100); v != 4 {
		t.Errorf("expected 4, returned %d", v)
	}
	if v := IntegerProportion(0.08, 100); v != 8 {
		t.Errorf("expected 8, returned %d", v)
	}
	if v := IntegerProportion(3, 100); v != 3 {
		t.Errorf("expected 3, returned %d", v)
	}
	if v := IntegerProportion(0, 100); v != 0 {
		t.Errorf("expected 0, returned %d", v)
	}
}

func TestReverseComplement(t *testing.T) {
	s := []byte("ACGTNacgg")
	e := Encode(s, nil)
	rc := ReverseComplement(e, nil)
	if string(Decode(rc, nil)) != "CCGTNACGT" {
		t.Errorf("unexpected reverse complement: %s", Decode(rc, nil))
	}

	rc2 := ReverseComplement(rc, nil)
	if !bytes.Equal(rc2, e) {
		t.Errorf("reverse complement is not an involution")
	}

	if n := CountN(e); n != 1 {
		t.Errorf("expected 1 N, returned %d", n)
	}
}
