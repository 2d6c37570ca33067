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

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Generate an FM-index from FASTA/Q sequences",
	Long: `Generate an FM-index from FASTA/Q sequences

Input:
  1. Input plain or gzipped FASTA/Q files can be given via positional
     arguments or the flag -X/--infile-list with the list of input files,
  2. Or a directory containing sequence files via the flag -I/--in-dir,
     with multiple-level sub-directories allowed. A regular expression
     for matching sequencing files is available via the flag -r/--file-regexp.

Attentions:
  1. Sequence IDs in all input files should be distinct, they are
     used as the reference names in mapping results.
  2. Unwanted sequences like plasmids can be filtered out by
     the name via regular expressions (-B/--seq-name-filter).
  3. With --fr, reverse complement strands are also indexed. The index
     is twice as large, while reads are searched once instead of twice.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}
		outputLog := opt.Verbose || opt.Log2File
		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		// ---------------------------------------------------------------
		// basic flags

		outDir := expandPath(getFlagString(cmd, "out-dir"))
		force := getFlagBool(cmd, "force")
		fr := getFlagBool(cmd, "fr")
		minLen := getFlagPositiveInt(cmd, "min-len")
		skipFileCheck := getFlagBool(cmd, "skip-file-check")

		if outDir == "" {
			checkError(fmt.Errorf("flag -O/--out-dir is needed"))
		}
		outDir = filepath.Clean(outDir)

		var err error
		inDir := expandPath(getFlagString(cmd, "in-dir"))
		if inDir != "" && filepath.Clean(inDir) == outDir {
			checkError(fmt.Errorf("intput and output paths should not be the same: %s", outDir))
		}

		readFromDir := inDir != ""
		if readFromDir {
			var isDir bool
			isDir, err = pathutil.IsDir(inDir)
			if err != nil {
				checkError(errors.Wrapf(err, "checking -I/--in-dir"))
			}
			if !isDir {
				checkError(fmt.Errorf("value of -I/--in-dir should be a directory: %s", inDir))
			}
		}

		reFileStr := getFlagString(cmd, "file-regexp")
		var reFile *regexp.Regexp
		if reFileStr != "" {
			reFile, err = compileIgnoreCase(reFileStr)
			checkError(errors.Wrapf(err, "failed to parse regular expression for matching file: %s", reFileStr))
		}

		reSeqNames := make([]*regexp.Regexp, 0, 4)
		for _, kw := range getFlagStringSlice(cmd, "seq-name-filter") {
			re, err := compileIgnoreCase(kw)
			checkError(errors.Wrapf(err, "failed to parse regular expression for matching sequence header: %s", kw))
			reSeqNames = append(reSeqNames, re)
		}

		// ---------------------------------------------------------------
		// input files

		if outputLog {
			log.Infof("ReadMap v%s", VERSION)
			log.Info("  https://github.com/shenwei356/ReadMap")
			log.Info()
			log.Info("checking input files ...")
		}

		var files []string
		if readFromDir {
			files, err = getFileListFromDir(inDir, reFile, opt.NumCPUs)
			if err != nil {
				checkError(errors.Wrapf(err, "walking dir: %s", inDir))
			}
			if len(files) == 0 {
				log.Warningf("  no files matching regular expression: %s", reFileStr)
			}
		} else {
			files = getFileListFromArgsAndFile(cmd, args, !skipFileCheck, "infile-list", !skipFileCheck)
			if outputLog && len(files) == 1 && isStdin(files[0]) {
				log.Info("  no files given, reading from stdin")
			}
		}
		if len(files) < 1 {
			checkError(fmt.Errorf("FASTA/Q files needed"))
		} else if outputLog {
			log.Infof("  %d input file(s) given", len(files))
		}

		makeOutDir(outDir, force, "output directory", opt.Verbose)

		// ---------------------------------------------------------------
		// sequences

		refs, err := readReferences(files, &refFilter{names: reSeqNames, minLen: minLen},
			opt.NumCPUs, opt.Verbose)
		checkError(err)

		if outputLog {
			log.Infof("%d sequences (%d bases) read, %d skipped", len(refs.names), refs.bases, refs.skipped)
			log.Infof("building index (fr: %v) ...", fr)
		}

		// ---------------------------------------------------------------
		// index

		idx, err := index.Build(refs.names, refs.seqs, &index.BuildingOptions{FR: fr, MinSeqLen: minLen})
		checkError(errors.Wrap(err, "failed to build the index"))

		checkError(errors.Wrap(idx.WriteToPath(outDir), "failed to save the index"))

		if outputLog {
			info := idx.Info()
			log.Infof("finished building index in %s: %d sequences, %d bases, text length: %d",
				time.Since(timeStart), info.Seqs, info.Bases, info.TextLength)
			log.Info()
			log.Infof("ReadMap index saved: %s", outDir)
		}
	},
}

func init() {
	RootCmd.AddCommand(indexCmd)

	// -----------------------------  input  -----------------------------

	indexCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage(`Directory containing FASTA/Q files. Directory symlinks are followed.`))

	indexCmd.Flags().StringP("file-regexp", "r", `\.(f[aq](st[aq])?|fna)(.gz)?$`,
		formatFlagUsage(`Regular expression for matching sequence files in -I/--in-dir, case ignored.`))

	indexCmd.Flags().StringSliceP("seq-name-filter", "B", []string{},
		formatFlagUsage(`List of regular expressions for filtering out sequences by header/name, case ignored.`))

	indexCmd.Flags().IntP("min-len", "m", 1,
		formatFlagUsage(`Minimum length of sequences to index.`))

	indexCmd.Flags().BoolP("skip-file-check", "S", false,
		formatFlagUsage(`Skip input file checking when given files or a file list.`))

	// -----------------------------  output  -----------------------------

	indexCmd.Flags().StringP("out-dir", "O", "",
		formatFlagUsage(`Output directory.`))

	indexCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite existed output directory.`))

	// -----------------------------  index  -----------------------------

	indexCmd.Flags().BoolP("fr", "", false,
		formatFlagUsage(`Also index the reverse complement strands.`))

	indexCmd.SetUsageTemplate(usageTemplate("{[-I <seqs dir>] | <seq files> | -X <file list>} -O <out dir>"))
}

var reIgnoreCaseStr = "(?i)"
var reIgnoreCase = regexp.MustCompile(`\(\?i\)`)

// compileIgnoreCase compiles a regular expression with case ignored.
func compileIgnoreCase(s string) (*regexp.Regexp, error) {
	if !reIgnoreCase.MatchString(s) {
		s = reIgnoreCaseStr + s
	}
	return regexp.Compile(s)
}

type refFilter struct {
	names  []*regexp.Regexp
	minLen int
}

func (f *refFilter) skip(record *fastx.Record) bool {
	if len(record.Seq.Seq) < f.minLen {
		return true
	}
	for _, re := range f.names {
		if re.Match(record.Name) {
			return true
		}
	}
	return false
}

type references struct {
	names   []string
	seqs    [][]byte
	bases   int64
	skipped int
}

// readReferences reads sequence files in parallel, sequences keep the
// order of files. Sequence IDs must be distinct.
func readReferences(files []string, filter *refFilter, threads int, verbose bool) (*references, error) {
	var pbs *mpb.Progress
	var bar *mpb.Bar
	if verbose {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(len(files)),
			mpb.PrependDecorators(
				decor.Name("read files: ", decor.WC{W: len("read files: "), C: decor.DindentRight}),
				decor.Name("", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
				decor.EwmaETA(decor.ET_STYLE_GO, 3),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)
	}

	parts := make([]references, len(files))
	errs := make([]error, len(files))

	var wg sync.WaitGroup
	tokens := make(chan int, max(threads, 1))
	for i, file := range files {
		tokens <- 1
		wg.Add(1)
		go func(i int, file string) {
			defer func() {
				wg.Done()
				<-tokens
			}()
			startTime := time.Now()
			errs[i] = readReferenceFile(file, filter, &parts[i])
			if verbose {
				bar.EwmaIncrBy(1, time.Since(startTime))
			}
		}(i, file)
	}
	wg.Wait()
	if verbose {
		pbs.Wait()
	}

	refs := &references{}
	ids := make(map[string]struct{}, 1024)
	for i := range parts {
		if errs[i] != nil {
			return nil, errs[i]
		}
		for j, name := range parts[i].names {
			if _, ok := ids[name]; ok {
				return nil, fmt.Errorf("duplicated sequence ID: %s", name)
			}
			ids[name] = struct{}{}
			refs.names = append(refs.names, name)
			refs.seqs = append(refs.seqs, parts[i].seqs[j])
		}
		refs.bases += parts[i].bases
		refs.skipped += parts[i].skipped
	}
	return refs, nil
}

func readReferenceFile(file string, filter *refFilter, refs *references) error {
	fastxReader, err := fastx.NewReader(nil, file, "")
	if err != nil {
		return errors.Wrap(err, file)
	}
	defer fastxReader.Close()

	var record *fastx.Record
	for {
		record, err = fastxReader.Read()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, file)
		}
		if filter.skip(record) {
			refs.skipped++
			continue
		}
		refs.names = append(refs.names, string(record.ID))
		refs.seqs = append(refs.seqs, append([]byte{}, record.Seq.Seq...))
		refs.bases += int64(len(record.Seq.Seq))
	}
}
