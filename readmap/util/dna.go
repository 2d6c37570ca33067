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

// Encoded bases.
const (
	BaseA uint8 = iota
	BaseC
	BaseG
	BaseT
	BaseN

	// NumBases is the size of the encoded alphabet, N included.
	NumBases = 5
)

var base2enc = [256]uint8{}

// Enc2Base maps an encoded base back to its letter.
var Enc2Base = [NumBases]byte{'A', 'C', 'G', 'T', 'N'}

// EncComplement is the complement table of encoded bases, N is kept.
var EncComplement = [NumBases]uint8{BaseT, BaseG, BaseC, BaseA, BaseN}

func init() {
	for i := range base2enc {
		base2enc[i] = BaseN
	}
	base2enc['A'], base2enc['a'] = BaseA, BaseA
	base2enc['C'], base2enc['c'] = BaseC, BaseC
	base2enc['G'], base2enc['g'] = BaseG, BaseG
	base2enc['T'], base2enc['t'] = BaseT, BaseT
	base2enc['U'], base2enc['u'] = BaseT, BaseT
}

// EncodeBase encodes one base, anything other than ACGTU is N.
func EncodeBase(b byte) uint8 {
	return base2enc[b]
}

// IsDNA tells if the letter is one of ACGTN, case ignored.
func IsDNA(b byte) bool {
	switch b {
	case 'A', 'C', 'G', 'T', 'N', 'a', 'c', 'g', 't', 'n':
		return true
	}
	return false
}

// Encode encodes a sequence into dst, which is reused when big enough.
func Encode(s []byte, dst []byte) []byte {
	if cap(dst) < len(s) {
		dst = make([]byte, len(s))
	}
	dst = dst[:len(s)]
	for i, b := range s {
		dst[i] = base2enc[b]
	}
	return dst
}

// Decode decodes encoded bases into letters.
func Decode(e []byte, dst []byte) []byte {
	if cap(dst) < len(e) {
		dst = make([]byte, len(e))
	}
	dst = dst[:len(e)]
	for i, c := range e {
		if c >= NumBases {
			dst[i] = 'N'
			continue
		}
		dst[i] = Enc2Base[c]
	}
	return dst
}

// ReverseComplement returns the reverse complement of encoded bases in dst.
func ReverseComplement(e []byte, dst []byte) []byte {
	if cap(dst) < len(e) {
		dst = make([]byte, len(e))
	}
	dst = dst[:len(e)]
	n := len(e) - 1
	for i, c := range e {
		dst[n-i] = EncComplement[c]
	}
	return dst
}

// CountN counts ambiguous bases in encoded bases.
func CountN(e []byte) int {
	var n int
	for _, c := range e {
		if c == BaseN {
			n++
		}
	}
	return n
}
