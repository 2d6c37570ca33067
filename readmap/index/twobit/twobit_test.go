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

package twobit

import (
	"bytes"
	"testing"
)

func encode(s string) []byte {
	e := make([]byte, len(s))
	for i := range s {
		switch s[i] {
		case 'A':
			e[i] = 0
		case 'C':
			e[i] = 1
		case 'G':
			e[i] = 2
		case 'T':
			e[i] = 3
		default:
			e[i] = 4
		}
	}
	return e
}

func TestPackUnpack(t *testing.T) {
	seqs := []string{
		"A",
		"ACG",
		"ACGT",
		"ACGTA",
		"NNACGTNNNNTTGCAN",
		"NNNN",
	}
	for _, s := range seqs {
		e := encode(s)
		b2, runs := Pack(e)
		d, err := Unpack(*b2, len(e), runs)
		RecycleTwoBit(b2)
		if err != nil {
			t.Errorf("%s: %s", s, err)
			continue
		}
		if !bytes.Equal(d, e) {
			t.Errorf("%s: unpacked %v", s, d)
		}
	}

	_, runs := Pack(encode("NNACGTNNNNTTGCAN"))
	if n := CountN(runs); n != 7 {
		t.Errorf("expected 7 Ns in %d runs, returned %d", len(runs), n)
	}

	if _, err := Unpack([]byte{0, 0}, 9, nil); err != ErrInvalidTwoBitData {
		t.Errorf("expected ErrInvalidTwoBitData, returned %v", err)
	}
}

func TestReadWrite(t *testing.T) {
	text := encode("ACGTACGTACNNNNGGGTTTAAACNNACGTTNGATTACA")

	var buf bytes.Buffer
	if err := Write(&buf, text); err != nil {
		t.Error(err)
		return
	}
	data := buf.Bytes()

	s, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Error(err)
		return
	}
	if !bytes.Equal(s, text) {
		t.Errorf("expected %v, returned %v", text, s)
	}

	if _, err = Read(bytes.NewReader(data[:len(data)-1])); err != ErrBrokenFile {
		t.Errorf("truncated data: expected ErrBrokenFile, returned %v", err)
	}

	bad := append([]byte{}, data...)
	bad[0] = 'x'
	if _, err = Read(bytes.NewReader(bad)); err != ErrInvalidFileFormat {
		t.Errorf("bad magic: expected ErrInvalidFileFormat, returned %v", err)
	}

	bad = append(bad[:0], data...)
	bad[8] = MainVersion + 1
	if _, err = Read(bytes.NewReader(bad)); err != ErrVersionMismatch {
		t.Errorf("expected ErrVersionMismatch, returned %v", err)
	}

	if err = Write(&buf, nil); err != ErrEmptySeq {
		t.Errorf("expected ErrEmptySeq, returned %v", err)
	}
}
