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

package metrics

import (
	"bytes"
	"math"
	"strings"
	"sync"
	"testing"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Inc("reads")
				r.Observe("distance", float64(j%5))
			}
		}(i)
	}
	wg.Wait()
	r.Add("reads", 10)

	if c := r.Counter("reads"); c != 810 {
		t.Errorf("expected 810, returned %d", c)
	}

	s := r.Summary()
	if len(s) != 1 || s[0].N != 800 {
		t.Errorf("unexpected summary: %+v", s)
		return
	}
	if math.Abs(s[0].Mean-2) > 1e-9 || s[0].Min != 0 || s[0].Max != 4 || s[0].Median != 2 {
		t.Errorf("unexpected summary: %+v", s[0])
	}

	var buf bytes.Buffer
	if _, err := r.WriteTo(&buf); err != nil {
		t.Error(err)
	}
	if !strings.Contains(buf.String(), "reads\t810") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	Discard.Inc("nothing")
}
