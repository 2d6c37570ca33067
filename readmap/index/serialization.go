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
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/index/twobit"
	"github.com/shenwei356/util/pathutil"
)

// MainVersion is use for checking compatibility
var MainVersion uint8 = 1

// MinorVersion is less important
var MinorVersion uint8 = 0

// file names in the index directory
const (
	FileInfo    = "info.toml"
	FileText    = "text.2bit.gz"
	FileSA      = "sa.bin.gz"
	FileLocator = "seqs.bin.gz"
)

var be = binary.BigEndian

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("index: version mismatch")

// ErrBrokenIndex means some files are missing or incomplete.
var ErrBrokenIndex = errors.New("index: broken index")

// Info is the summary of an index, saved in info.toml.
type Info struct {
	MainVersion  uint8  `toml:"main-version" comment:"ReadMap index format"`
	MinorVersion uint8  `toml:"minor-version"`
	FR           bool   `toml:"forward-reverse" comment:"reverse complement strands indexed"`
	Seqs         int    `toml:"sequences"`
	Bases        int64  `toml:"bases" comment:"bases of forward strands"`
	TextLength   uint64 `toml:"text-length" comment:"separators (and reverse strands) included"`
	ProperLength uint64 `toml:"proper-length"`
}

// Info returns the summary of the index.
func (idx *Index) Info() Info {
	var bases int64
	for _, l := range idx.SeqLengths {
		bases += int64(l)
	}
	return Info{
		MainVersion:  MainVersion,
		MinorVersion: MinorVersion,
		FR:           idx.FR,
		Seqs:         len(idx.SeqNames),
		Bases:        bases,
		TextLength:   idx.TextLength(),
		ProperLength: idx.FMI.ProperLength(),
	}
}

// WriteToPath saves the index into a directory, which should be empty or not existed.
func (idx *Index) WriteToPath(outDir string) error {
	err := os.MkdirAll(outDir, 0777)
	if err != nil {
		return err
	}

	// info
	data, err := toml.Marshal(idx.Info())
	if err != nil {
		return errors.Wrap(err, "index: info")
	}
	err = os.WriteFile(filepath.Join(outDir, FileInfo), data, 0644)
	if err != nil {
		return err
	}

	// text
	err = writeGzipped(filepath.Join(outDir, FileText), func(w io.Writer) error {
		return twobit.Write(w, idx.Text)
	})
	if err != nil {
		return errors.Wrap(err, "index: text")
	}

	// suffix array
	err = writeGzipped(filepath.Join(outDir, FileSA), func(w io.Writer) error {
		buf := make([]byte, 8)
		be.PutUint64(buf, uint64(len(idx.FMI.sa)))
		if _, err := w.Write(buf); err != nil {
			return err
		}
		for _, p := range idx.FMI.sa {
			be.PutUint32(buf[:4], p)
			if _, err := w.Write(buf[:4]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "index: suffix array")
	}

	// locator
	err = writeGzipped(filepath.Join(outDir, FileLocator), func(w io.Writer) error {
		return idx.writeLocator(w)
	})
	if err != nil {
		return errors.Wrap(err, "index: locator")
	}
	return nil
}

func writeGzipped(file string, fn func(w io.Writer) error) error {
	fh, err := os.Create(file)
	if err != nil {
		return err
	}
	gw, err := pgzip.NewWriterLevel(fh, pgzip.DefaultCompression)
	if err != nil {
		return err
	}
	gw.SetConcurrency(1<<20, Threads)
	bw := bufio.NewWriterSize(gw, 1<<16)

	if err = fn(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = gw.Close(); err != nil {
		return err
	}
	return fh.Close()
}

func openGzipped(file string) (*os.File, *bufio.Reader, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	gr, err := pgzip.NewReaderN(fh, 1<<20, Threads)
	if err != nil {
		fh.Close()
		return nil, nil, err
	}
	return fh, bufio.NewReaderSize(gr, 1<<16), nil
}

// record: #intervals, then per interval:
// tag length (uint32), tag, seq index, length (uint64), begin, end (uint64), direction (uint8)
func (idx *Index) writeLocator(w io.Writer) error {
	buf := make([]byte, 8)
	be.PutUint64(buf, uint64(len(idx.Locator.Intervals)))
	if _, err := w.Write(buf); err != nil {
		return err
	}
	for _, iv := range idx.Locator.Intervals {
		be.PutUint32(buf[:4], uint32(len(iv.Tag)))
		if _, err := w.Write(buf[:4]); err != nil {
			return err
		}
		if _, err := w.Write([]byte(iv.Tag)); err != nil {
			return err
		}
		for _, v := range []uint64{uint64(iv.SeqIdx), uint64(idx.SeqLengths[iv.SeqIdx]), iv.Begin, iv.End} {
			be.PutUint64(buf, v)
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
		if _, err := w.Write([]byte{byte(iv.Direction)}); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) readLocator(r io.Reader) error {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return ErrBrokenIndex
	}
	n := int(be.Uint64(buf))
	intervals := make([]SeqInterval, n)
	var vals [4]uint64
	for i := range intervals {
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return ErrBrokenIndex
		}
		tag := make([]byte, be.Uint32(buf[:4]))
		if _, err := io.ReadFull(r, tag); err != nil {
			return ErrBrokenIndex
		}
		for j := range vals {
			if _, err := io.ReadFull(r, buf); err != nil {
				return ErrBrokenIndex
			}
			vals[j] = be.Uint64(buf)
		}
		if _, err := io.ReadFull(r, buf[:1]); err != nil {
			return ErrBrokenIndex
		}
		intervals[i] = SeqInterval{
			Tag: string(tag), SeqIdx: int(vals[0]),
			Begin: vals[2], End: vals[3],
			Direction: Direction(buf[0]),
		}
		if intervals[i].Direction == Forward {
			idx.SeqNames = append(idx.SeqNames, intervals[i].Tag)
			idx.SeqLengths = append(idx.SeqLengths, int(vals[1]))
		}
	}
	idx.Locator = NewLocator(intervals)
	return nil
}

// NewFromPath reads an index from a directory.
func NewFromPath(dir string) (*Index, error) {
	ok, err := pathutil.DirExists(dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("index directory not found: %s", dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileInfo))
	if err != nil {
		return nil, errors.Wrap(err, "index: info")
	}
	var info Info
	if err = toml.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrap(err, "index: info")
	}
	if info.MainVersion != MainVersion {
		return nil, ErrVersionMismatch
	}

	idx := &Index{FR: info.FR}

	// text
	fh, r, err := openGzipped(filepath.Join(dir, FileText))
	if err != nil {
		return nil, errors.Wrap(err, "index: text")
	}
	idx.Text, err = twobit.Read(r)
	fh.Close()
	if err != nil {
		return nil, errors.Wrap(err, "index: text")
	}
	if uint64(len(idx.Text)) != info.TextLength {
		return nil, ErrBrokenIndex
	}

	// suffix array
	fh, r, err = openGzipped(filepath.Join(dir, FileSA))
	if err != nil {
		return nil, errors.Wrap(err, "index: suffix array")
	}
	buf := make([]byte, 8)
	if _, err = io.ReadFull(r, buf); err != nil {
		return nil, ErrBrokenIndex
	}
	sa := make([]uint32, be.Uint64(buf))
	if len(sa) != len(idx.Text)+1 {
		return nil, ErrBrokenIndex
	}
	for i := range sa {
		if _, err = io.ReadFull(r, buf[:4]); err != nil {
			return nil, ErrBrokenIndex
		}
		sa[i] = be.Uint32(buf[:4])
	}
	fh.Close()
	idx.FMI = newFMIndexFromSA(idx.Text, sa)

	// locator
	fh, r, err = openGzipped(filepath.Join(dir, FileLocator))
	if err != nil {
		return nil, errors.Wrap(err, "index: locator")
	}
	err = idx.readLocator(r)
	fh.Close()
	if err != nil {
		return nil, err
	}

	return idx, nil
}
