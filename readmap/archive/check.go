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

package archive

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/asearch"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/ReadMap/readmap/matches"
	"github.com/shenwei356/ReadMap/readmap/util"
)

// CheckParameters selects the self checks of the reported matches.
type CheckParameters struct {
	Correct  bool // CIGARs agree with the reference
	Optimum  bool // no better alignment around a match, gap-affine only
	Complete bool // no match missed
}

// CheckBoundary is the proportion of the match length the reference
// window extends on each side in the checks.
const CheckBoundary = 0.2

// CheckMatches checks the reported matches of the read. Failed matches
// are dumped to w with the read, they are not errors. It returns the
// number of failed matches.
func (s *Search) CheckMatches(w io.Writer, m *matches.Matches, cp *CheckParameters) (int, error) {
	if cp.Complete {
		return 0, errors.Wrap(asearch.ErrNotImplemented, "completeness check")
	}
	if cp.Optimum && s.params.AlignmentModel == align.ModelLevenshtein {
		return 0, errors.Wrap(asearch.ErrNotImplemented, "optimum check of levenshtein alignments")
	}
	if !cp.Correct && !cp.Optimum {
		return 0, nil
	}
	optimum := cp.Optimum && s.params.AlignmentModel == align.ModelGapAffine

	var nFailed int
	var begin, end, ip, L, boundary, offset uint64
	var ok bool
	var err error
	var iv *index.SeqInterval
	var text []byte
	buf := align.NewCigarBuffer(64)
	var alg *align.Aligner
	if optimum {
		alg = align.GetAligner(s.params.AlignOptions())
		defer align.RecycleAligner(alg)
	}
	for i := range m.Traces {
		t := &m.Traces[i]

		ip, err = s.idx.Locator.InverseMap(t.SeqName, index.Forward, t.TextPosition)
		if err != nil {
			return nFailed, err
		}
		iv, ok = s.idx.Locator.Interval(ip)
		if !ok {
			return nFailed, errors.Errorf("archive: position %d not in any sequence", ip)
		}

		L = uint64(t.EffectiveLength)
		boundary = uint64(CheckBoundary * float64(L))
		begin = util.MaxUint64(util.BoundedSub(ip, boundary), iv.Begin)
		end = util.MinUint64(ip+L+boundary, iv.End)
		text = append(text[:0], s.idx.Retrieve(begin, end-begin)...)
		if t.Strand == matches.Reverse {
			text = util.ReverseComplement(append([]byte{}, text...), text)
			offset = util.BoundedSub(end, ip+L)
		} else {
			offset = ip - begin
		}

		cigar := m.Cigar(t)
		if cp.Correct {
			if reason := checkCigar(s.Key, text, offset, L, cigar); reason != "" {
				nFailed++
				s.sink.Inc("archive.check_incorrect")
				if err = s.dump(w, t, cigar, reason, ""); err != nil {
					return nFailed, err
				}
				continue
			}
		}

		if optimum {
			buf.Reset()
			res := alg.SWG(buf, s.Key, text, nil)
			if res.Valid && res.Score > t.Score {
				nFailed++
				s.sink.Inc("archive.check_suboptimal")
				better := fmt.Sprintf("score=%d\tcigar=%s", res.Score,
					align.CigarString(buf.Slice(res.CigarOffset, res.CigarLength)))
				if err = s.dump(w, t, cigar, "suboptimal alignment", better); err != nil {
					return nFailed, err
				}
			}
		}
	}
	return nFailed, nil
}

// checkCigar walks the CIGAR along the key and the text from offset.
// It returns the reason of failure, empty if the CIGAR is correct.
func checkCigar(key, text []byte, offset, length uint64, cigar []align.CigarElement) string {
	if n := align.ReadLength(cigar); n != len(key) {
		return fmt.Sprintf("read length %d covered by the cigar, %d expected", n, len(key))
	}
	i, j := 0, int(offset)
	var n int
	for _, e := range cigar {
		n = int(e.Length)
		switch e.Type {
		case align.CigarMatch:
			if i+n > len(key) || j+n > len(text) {
				return "cigar out of range"
			}
			for k := 0; k < n; k++ {
				if key[i+k] != text[j+k] || key[i+k] == util.BaseN {
					return fmt.Sprintf("mismatch at read position %d", i+k)
				}
			}
			i += n
			j += n
		case align.CigarMismatch:
			if i+n > len(key) || j+n > len(text) {
				return "cigar out of range"
			}
			for k := 0; k < n; k++ {
				if key[i+k] == text[j+k] && key[i+k] != util.BaseN {
					return fmt.Sprintf("match at mismatch read position %d", i+k)
				}
			}
			i += n
			j += n
		case align.CigarIns, align.CigarSoftTrim:
			i += n
		case align.CigarDel:
			j += n
		}
	}
	if uint64(j)-offset != length {
		return fmt.Sprintf("reference length %d covered by the cigar, %d expected", uint64(j)-offset, length)
	}
	return ""
}

// dump writes a failed match and the read as a FASTA/FASTQ record.
func (s *Search) dump(w io.Writer, t *matches.Trace, cigar []align.CigarElement, reason, better string) error {
	_, err := fmt.Fprintf(w, "# %s\t%s:%d%s\tcigar=%s\tdistance=%d\tscore=%d\n",
		reason, t.SeqName, t.TextPosition+1, t.Strand, align.CigarString(cigar), t.Distance, t.Score)
	if err != nil {
		return err
	}
	if better != "" {
		if _, err = fmt.Fprintf(w, "# better\t%s\n", better); err != nil {
			return err
		}
	}
	if len(s.Quality) > 0 {
		_, err = fmt.Fprintf(w, "@%s\n%s\n+\n%s\n", s.Name, s.Read, s.Quality)
	} else {
		_, err = fmt.Fprintf(w, ">%s\n%s\n", s.Name, s.Read)
	}
	return err
}
