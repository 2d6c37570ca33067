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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/archive"
	"github.com/shenwei356/ReadMap/readmap/asearch"
	"github.com/shenwei356/ReadMap/readmap/index"
	"github.com/shenwei356/ReadMap/readmap/matches"
	"github.com/shenwei356/ReadMap/readmap/metrics"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Map reads against an index",
	Long: `Map reads against an index

Attention:
  1. Input should be (gzipped) FASTA or FASTQ records from files or stdin.
  2. Parameters can be given in a TOML file (-c/--config), flags given in
     the command line override values in the file. Use --save-config to
     save the final parameters.
  3. Errors and lengths below 1 are proportions of the read length.

Mapping modes:
  fast       stop after the adaptive filtering if any match is found.
  match      boost the filtering when the best match is not confident.
  complete   search all matches within the error budget (only supported
             for budgets not greater than --neighborhood-max-error).

Output format:
  Tab-delimited format with 12 columns, with 1-based positions.
  Reads without matches are not outputted.

    1.  read,     Read ID.
    2.  len,      Read length.
    3.  hits,     Number of reported matches.
    4.  class,    Classification of the matches of the read.
    5.  strand,   Strand of the match.
    6.  sseqid,   Reference sequence ID.
    7.  pos,      Start position in the reference sequence.
    8.  cigar,    CIGAR of the alignment, in reference orientation.
    9.  stratum,  Stratum (error count) of the match.
    10. edit,     Edit distance.
    11. score,    Gap-affine score.
    12. mapq,     Mapping quality, only for the best of unique matches.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		outFile := expandPath(getFlagString(cmd, "out-file"))

		var fhLog *os.File
		if opt.Log2File {
			ro, err := filepath.Abs(outFile)
			if err != nil {
				checkError(fmt.Errorf("failed to check output file: %s", err))
			}
			rl, err := filepath.Abs(opt.LogFile)
			if err != nil {
				checkError(fmt.Errorf("failed to check log file: %s", err))
			}
			if ro == rl {
				checkError(fmt.Errorf("output file and log file should not be the same: %s", outFile))
			}
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}

		verbose := opt.Verbose
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

		var err error

		// ---------------------------------------------------------------
		// flags

		dbDir := expandPath(getFlagString(cmd, "index"))
		if dbDir == "" {
			checkError(fmt.Errorf("flag -d/--index needed"))
		}

		params, err := searchParameters(cmd)
		checkError(err)

		if file := expandPath(getFlagString(cmd, "save-config")); file != "" {
			fh, err := os.Create(file)
			checkError(err)
			checkError(params.WriteTOML(fh))
			checkError(fh.Close())
		}

		sp := archive.DefaultSelectParameters
		sp.MaxDecodedMatches = uint64(getFlagNonNegativeInt(cmd, "max-decoded-matches"))
		sp.MinDecodedStrata = getFlagNonNegativeFloat64(cmd, "min-decoded-strata")
		sp.MinReportedMatches = uint64(getFlagNonNegativeInt(cmd, "min-reported-matches"))
		sp.MaxReportedMatches = uint64(getFlagNonNegativeInt(cmd, "max-reported-matches"))
		sp.MapQ = !getFlagBool(cmd, "no-mapq")
		checkError(sp.Validate())

		chunkSize := getFlagPositiveInt(cmd, "chunk-size")
		batchSize := getFlagNonNegativeInt(cmd, "batch-size")
		metricsFile := expandPath(getFlagString(cmd, "metrics-file"))
		strataPlot := expandPath(getFlagString(cmd, "strata-plot"))

		var cp archive.CheckParameters
		cp.Correct = getFlagBool(cmd, "check")
		cp.Optimum = getFlagBool(cmd, "check-optimum")
		if cp.Optimum && params.AlignmentModel != align.ModelGapAffine {
			checkError(fmt.Errorf("flag --check-optimum is only supported for the gap-affine model"))
		}
		checkFile := expandPath(getFlagString(cmd, "check-file"))

		files := getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
		if outputLog {
			if len(files) == 1 && isStdin(files[0]) {
				log.Info("no files given, reading from stdin")
			} else {
				log.Infof("%d input file(s) given", len(files))
			}
		}

		// ---------------------------------------------------------------
		// index

		if outputLog {
			log.Infof("loading index: %s", dbDir)
		}
		idx, err := index.NewFromPath(dbDir)
		checkError(errors.Wrapf(err, "failed to load the index: %s", dbDir))
		if outputLog {
			info := idx.Info()
			log.Infof("index loaded in %s: %d sequences, %d bases, fr: %v",
				time.Since(timeStart), info.Seqs, info.Bases, info.FR)
			log.Info()
			log.Infof("mapping with %d threads, mode: %s, alignment model: %s, batch size: %d",
				opt.NumCPUs, params.MappingMode, params.AlignmentModel, batchSize)
		}

		// ---------------------------------------------------------------
		// mapper

		rec := metrics.NewRecorder()

		mopt := archive.DefaultMapperOptions
		mopt.Threads = opt.NumCPUs
		mopt.BatchSize = batchSize
		mopt.Select = sp
		mopt.Check = cp

		var diagfh io.WriteCloser
		if cp.Correct || cp.Optimum {
			if isStdin(checkFile) {
				mopt.Diagnostics = os.Stderr
			} else {
				diagfh, err = os.Create(checkFile)
				checkError(err)
				mopt.Diagnostics = diagfh
			}
		}

		mp, err := archive.NewMapper(idx, params, &mopt, rec)
		checkError(err)

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		fmt.Fprintln(outfh, "read\tlen\thits\tclass\tstrand\tsseqid\tpos\tcigar\tstratum\tedit\tscore\tmapq")

		var total, matched, nFailed uint64
		var speed float64
		strata := make([]uint64, 0, 8)
		timeStart1 := time.Now()

		printResult := func(r *archive.Result) {
			total++
			nFailed += uint64(r.NumFailed)
			m := r.Matches
			if len(m.Traces) == 0 {
				return
			}
			matched++

			best := m.Traces[0].Distance
			for len(strata) <= best {
				strata = append(strata, 0)
			}
			strata[best]++

			var t *matches.Trace
			for i := range m.Traces {
				t = &m.Traces[i]
				fmt.Fprintf(outfh, "%s\t%d\t%d\t%s\t%s\t%s\t%d\t%s\t%d\t%d\t%d\t%d\n",
					r.Read.Name, len(r.Read.Seq), len(m.Traces), r.Class,
					t.Strand, t.SeqName, t.TextPosition+1,
					align.SAM(m.Cigar(t), t.Strand == matches.Reverse),
					t.Distance, t.EditDistance, t.Score, t.MapQ)
			}
		}

		// reader
		chunks := make(chan []*archive.Read, 2)
		go func() {
			defer close(chunks)

			var record *fastx.Record
			chunk := make([]*archive.Read, 0, chunkSize)
			for _, file := range files {
				fastxReader, err := fastx.NewReader(nil, file, "")
				checkError(errors.Wrap(err, file))

				for {
					record, err = fastxReader.Read()
					if err != nil {
						if err == io.EOF {
							break
						}
						checkError(errors.Wrap(err, file))
						break
					}

					read := &archive.Read{
						Name: string(record.ID),
						Seq:  append([]byte{}, record.Seq.Seq...),
					}
					if len(record.Seq.Qual) > 0 {
						read.Qual = append([]byte{}, record.Seq.Qual...)
					}
					chunk = append(chunk, read)
					if len(chunk) == chunkSize {
						chunks <- chunk
						chunk = make([]*archive.Read, 0, chunkSize)
					}
				}
				fastxReader.Close()
			}
			if len(chunk) > 0 {
				chunks <- chunk
			}
		}()

		ctx := context.Background()
		for chunk := range chunks {
			results, err := mp.MapBatch(ctx, chunk)
			checkError(err)

			for _, r := range results {
				printResult(r)
				mp.Recycle(r)
			}
			outfh.Flush()

			if verbose {
				speed = float64(total) / time.Since(timeStart1).Minutes()
				fmt.Fprintf(os.Stderr, "processed reads: %d, speed: %.3f reads per minute\r", total, speed)
			}
		}

		if diagfh != nil {
			checkError(diagfh.Close())
		}

		if outputLog {
			if verbose {
				fmt.Fprintf(os.Stderr, "\n")
			}
			speed = float64(total) / time.Since(timeStart1).Minutes()
			log.Infof("")
			log.Infof("processed reads: %d, speed: %.3f reads per minute", total, speed)
			if total > 0 {
				log.Infof("%.4f%% (%d/%d) reads mapped", float64(matched)/float64(total)*100, matched, total)
			}
			if cp.Correct || cp.Optimum {
				log.Infof("%d matches failed the checks", nFailed)
			}
			log.Infof("done mapping")
			if outFile != "-" {
				log.Infof("mapping results saved to: %s", outFile)
			}
		}

		if metricsFile != "" {
			fh, err := os.Create(metricsFile)
			checkError(err)
			_, err = rec.WriteTo(fh)
			checkError(err)
			checkError(fh.Close())
			if outputLog {
				log.Infof("metrics saved to: %s", metricsFile)
			}
		}

		if strataPlot != "" && matched > 0 {
			checkError(plotStrata(strata, strataPlot))
			if outputLog {
				log.Infof("histogram of best strata saved to: %s", strataPlot)
			}
		}
	},
}

// searchParameters reads the parameters from the config file and
// the flags changed in the command line.
func searchParameters(cmd *cobra.Command) (*asearch.Parameters, error) {
	var params *asearch.Parameters
	var err error
	if file := expandPath(getFlagString(cmd, "config")); file != "" {
		params, err = asearch.LoadParameters(file)
		if err != nil {
			return nil, err
		}
	} else {
		params = asearch.NewParameters()
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		v := getFlagString(cmd, "mode")
		mode, ok := asearch.ParseMappingMode(v)
		if !ok {
			return nil, fmt.Errorf("invalid value of flag --mode: %s", v)
		}
		params.MappingMode = mode
	}
	if flags.Changed("model") {
		v := getFlagString(cmd, "model")
		model, ok := align.ParseModel(v)
		if !ok {
			return nil, fmt.Errorf("invalid value of flag --model: %s", v)
		}
		params.AlignmentModel = model
	}
	if flags.Changed("max-error") {
		params.MaxSearchError = getFlagNonNegativeFloat64(cmd, "max-error")
	}
	if flags.Changed("max-filtering-error") {
		params.MaxFilteringError = getFlagNonNegativeFloat64(cmd, "max-filtering-error")
	}
	if flags.Changed("strata-after-best") {
		params.CompleteStrataAfterBest = getFlagNonNegativeFloat64(cmd, "strata-after-best")
	}
	if flags.Changed("min-matching-length") {
		params.MinMatchingLength = getFlagNonNegativeFloat64(cmd, "min-matching-length")
	}
	if flags.Changed("replacements") {
		params.Replacements = getFlagString(cmd, "replacements")
	}
	if flags.Changed("max-search-matches") {
		params.MaxSearchMatches = uint64(getFlagNonNegativeInt(cmd, "max-search-matches"))
	}
	if flags.Changed("neighborhood-max-error") {
		params.NeighborhoodMaxError = getFlagNonNegativeInt(cmd, "neighborhood-max-error")
	}
	if flags.Changed("probe-strand") {
		params.ProbeStrand = getFlagBool(cmd, "probe-strand")
	}
	if flags.Changed("check-tiles") {
		params.CheckTiles = getFlagBool(cmd, "check-tiles")
	}
	return params, params.Validate()
}

// plotStrata plots the number of reads by the stratum of the best match.
func plotStrata(strata []uint64, file string) error {
	values := make(plotter.Values, len(strata))
	labels := make([]string, len(strata))
	for i, n := range strata {
		values[i] = float64(n)
		labels[i] = strconv.Itoa(i)
	}

	p := plot.New()
	p.Title.Text = "Best strata of mapped reads"
	p.X.Label.Text = "Stratum of the best match"
	p.Y.Label.Text = "Reads"

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(labels...)

	return p.Save(4*vg.Inch, 3*vg.Inch, file)
}

func init() {
	RootCmd.AddCommand(mapCmd)

	mapCmd.Flags().StringP("index", "d", "",
		formatFlagUsage(`Index directory created by "readmap index".`))

	mapCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports a ".gz" suffix ("-" for stdout).`))

	mapCmd.Flags().IntP("chunk-size", "", 1024,
		formatFlagUsage(`Number of reads mapped in a round.`))

	mapCmd.Flags().IntP("batch-size", "b", 0,
		formatFlagUsage(`Number of reads whose candidates are verified in one batch (0 for verifying in each search).`))

	// parameters

	mapCmd.Flags().StringP("config", "c", "",
		formatFlagUsage(`TOML file of search parameters.`))

	mapCmd.Flags().StringP("save-config", "", "",
		formatFlagUsage(`Save the search parameters to a TOML file.`))

	mapCmd.Flags().StringP("mode", "M", "fast",
		formatFlagUsage(`Mapping mode: fast, match, complete.`))

	mapCmd.Flags().StringP("model", "m", "gap-affine",
		formatFlagUsage(`Alignment model: none, hamming, levenshtein, gap-affine.`))

	mapCmd.Flags().Float64P("max-error", "e", 0.04,
		formatFlagUsage(`Maximum errors of matches.`))

	mapCmd.Flags().Float64P("max-filtering-error", "E", 0.08,
		formatFlagUsage(`Maximum errors in verifying candidates.`))

	mapCmd.Flags().Float64P("strata-after-best", "s", 0,
		formatFlagUsage(`Complete strata searched after the best one.`))

	mapCmd.Flags().Float64P("min-matching-length", "l", 0.2,
		formatFlagUsage(`Minimum matching length of local alignments.`))

	mapCmd.Flags().StringP("replacements", "", "ACGT",
		formatFlagUsage(`Bases a mismatch can be.`))

	mapCmd.Flags().IntP("max-search-matches", "", 0,
		formatFlagUsage(`Stop searching a read after finding this many matches (0 for no limit).`))

	mapCmd.Flags().IntP("neighborhood-max-error", "", 0,
		formatFlagUsage(`Maximum errors of the exhaustive search in the complete mode.`))

	mapCmd.Flags().BoolP("probe-strand", "", false,
		formatFlagUsage(`Verify candidates with a small error budget first.`))

	mapCmd.Flags().BoolP("check-tiles", "", false,
		formatFlagUsage(`Recompute the distances of batched candidates and compare them.`))

	// selection

	mapCmd.Flags().IntP("max-decoded-matches", "", 20,
		formatFlagUsage(`Maximum number of decoded matches.`))

	mapCmd.Flags().Float64P("min-decoded-strata", "", 0,
		formatFlagUsage(`Strata decoded after the best one.`))

	mapCmd.Flags().IntP("min-reported-matches", "", 1,
		formatFlagUsage(`Minimum number of reported matches.`))

	mapCmd.Flags().IntP("max-reported-matches", "n", 100,
		formatFlagUsage(`Maximum number of reported matches.`))

	mapCmd.Flags().BoolP("no-mapq", "", false,
		formatFlagUsage(`Do not compute mapping qualities.`))

	// checks and metrics

	mapCmd.Flags().BoolP("check", "", false,
		formatFlagUsage(`Check the CIGARs of reported matches against the reference.`))

	mapCmd.Flags().BoolP("check-optimum", "", false,
		formatFlagUsage(`Check if better gap-affine alignments exist around reported matches.`))

	mapCmd.Flags().StringP("check-file", "", "-",
		formatFlagUsage(`File of failed checks ("-" for stderr).`))

	mapCmd.Flags().StringP("metrics-file", "", "",
		formatFlagUsage(`Save counters and histograms of the search into a tab-delimited file.`))

	mapCmd.Flags().StringP("strata-plot", "", "",
		formatFlagUsage(`Plot the histogram of best strata of mapped reads, e.g., strata.png.`))

	mapCmd.SetUsageTemplate(usageTemplate("-d <index path> [read.fastq.gz ...] [-o result.tsv.gz]"))
}
