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

package index

import (
	"bytes"
	"math/rand"
	"os"
	"sort"
	"testing"

	"github.com/shenwei356/ReadMap/readmap/util"
)

func randSeq(r *rand.Rand, n int) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = "ACGT"[r.Intn(4)]
	}
	return s
}

func naivePositions(text, key []byte) []uint64 {
	var pos []uint64
	if len(key) == 0 {
		return pos
	}
	for i := 0; i+len(key) <= len(text); i++ {
		if bytes.Equal(text[i:i+len(key)], key) {
			pos = append(pos, uint64(i))
		}
	}
	return pos
}

func TestBackwardSearch(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	names := []string{"s1", "s2", "s3"}
	seqs := [][]byte{randSeq(r, 500), randSeq(r, 300), []byte("ACGTNNNACGTACGT")}

	idx, err := Build(names, seqs, nil)
	if err != nil {
		t.Error(err)
		return
	}

	for i := 0; i < 200; i++ {
		p := r.Intn(len(idx.Text) - 8)
		k := 1 + r.Intn(8)
		key := idx.Text[p : p+k]

		lo, hi := idx.FMI.BackwardSearch(key)
		expected := naivePositions(idx.Text, key)
		if util.CountN(key) > 0 {
			if hi != lo {
				t.Errorf("keys with N should not be found")
			}
			continue
		}
		if int(hi-lo) != len(expected) {
			t.Errorf("%v: expected %d hits, returned %d", key, len(expected), hi-lo)
			continue
		}

		found := make([]uint64, 0, hi-lo)
		for row := lo; row < hi; row++ {
			found = append(found, idx.FMI.Lookup(row))
		}
		sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
		for j := range found {
			if found[j] != expected[j] {
				t.Errorf("%v: expected positions %v, returned %v", key, expected, found)
				break
			}
		}
	}

	if idx.FMI.ProperLength() == 0 {
		t.Errorf("proper length should be positive")
	}
}

func TestLocator(t *testing.T) {
	names := []string{"a", "b"}
	seqs := [][]byte{[]byte("AAAACCCC"), []byte("GGGGTTTTAC")}

	idx, err := Build(names, seqs, &BuildingOptions{FR: true, MinSeqLen: 1})
	if err != nil {
		t.Error(err)
		return
	}

	// "b" starts after "a" and one separator
	loc, ok := idx.Locator.Map(9 + 3)
	if !ok || loc.Tag != "b" || loc.Position != 3 || loc.Direction != Forward {
		t.Errorf("unexpected location: %+v", loc)
	}

	pos, err := idx.Locator.InverseMap("b", Forward, 3)
	if err != nil || pos != 12 {
		t.Errorf("unexpected inverse map: %d, %v", pos, err)
	}

	// the reverse strand of "a": TTTTGGGG
	iv := idx.Locator.Intervals[2]
	if iv.Direction != Reverse || iv.Tag != "a" {
		t.Errorf("unexpected interval: %+v", iv)
	}
	if string(util.Decode(idx.Text[iv.Begin:iv.End], nil)) != "GGGGTTTT" {
		t.Errorf("unexpected reverse strand: %s", util.Decode(idx.Text[iv.Begin:iv.End], nil))
	}

	// "GG" at reverse offset 0..2 is forward [6, 8) of "a"
	loc, ok = idx.Locator.Map(iv.Begin)
	if !ok || loc.Direction != Reverse || loc.Position-2 != 6 {
		t.Errorf("unexpected reverse location: %+v", loc)
	}
	pos, err = idx.Locator.InverseMap("a", Reverse, loc.Position)
	if err != nil || pos != iv.Begin {
		t.Errorf("unexpected inverse map: %d, %v", pos, err)
	}

	if _, ok = idx.Locator.Map(8); ok {
		t.Errorf("separator should not be located")
	}
}

func TestSerialization(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	names := []string{"chr1", "chr2"}
	seqs := [][]byte{randSeq(r, 1000), append(randSeq(r, 200), []byte("NNNNN")...)}

	idx, err := Build(names, seqs, &BuildingOptions{FR: true, MinSeqLen: 1})
	if err != nil {
		t.Error(err)
		return
	}

	dir, err := os.MkdirTemp("", "readmap-index")
	if err != nil {
		t.Error(err)
		return
	}
	defer os.RemoveAll(dir)

	if err = idx.WriteToPath(dir); err != nil {
		t.Error(err)
		return
	}

	idx2, err := NewFromPath(dir)
	if err != nil {
		t.Error(err)
		return
	}

	if !bytes.Equal(idx.Text, idx2.Text) {
		t.Errorf("text mismatch")
	}
	if !idx2.FR || len(idx2.SeqNames) != 2 || idx2.SeqLengths[1] != 205 {
		t.Errorf("unexpected meta data: %v %v %v", idx2.FR, idx2.SeqNames, idx2.SeqLengths)
	}
	for i := 0; i < 50; i++ {
		p := r.Intn(900)
		key := idx.Text[p : p+12]
		lo1, hi1 := idx.FMI.BackwardSearch(key)
		lo2, hi2 := idx2.FMI.BackwardSearch(key)
		if lo1 != lo2 || hi1 != hi2 {
			t.Errorf("search results mismatch: [%d, %d) vs [%d, %d)", lo1, hi1, lo2, hi2)
		}
	}
	if len(idx2.Locator.Intervals) != 4 {
		t.Errorf("expected 4 intervals, returned %d", len(idx2.Locator.Intervals))
	}
}
