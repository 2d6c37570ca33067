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

package asearch

import (
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/shenwei356/ReadMap/readmap/align"
	"github.com/shenwei356/ReadMap/readmap/filtering"
	"github.com/shenwei356/ReadMap/readmap/util"
)

// ErrEmptyReplacements means no valid base is left in the replacements.
var ErrEmptyReplacements = errors.New("asearch: no valid base in mismatch replacements")

// ErrInvalidParameter means a parameter is out of range.
var ErrInvalidParameter = errors.New("asearch: invalid parameter")

// MappingMode chooses how hard a read is searched.
type MappingMode uint8

const (
	MappingFast MappingMode = iota
	MappingMatch
	MappingComplete
)

func (m MappingMode) String() string {
	switch m {
	case MappingFast:
		return "fast"
	case MappingMatch:
		return "match"
	case MappingComplete:
		return "complete"
	}
	return "unknown"
}

// ParseMappingMode parses the name of a mapping mode.
func ParseMappingMode(s string) (MappingMode, bool) {
	switch s {
	case "fast":
		return MappingFast, true
	case "match", "sensitive":
		return MappingMatch, true
	case "complete":
		return MappingComplete, true
	}
	return MappingFast, false
}

// MarshalText implements encoding.TextMarshaler.
func (m MappingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MappingMode) UnmarshalText(text []byte) error {
	v, ok := ParseMappingMode(string(text))
	if !ok {
		return errors.Wrapf(ErrInvalidParameter, "unknown mapping mode: %s", text)
	}
	*m = v
	return nil
}

// Parameters are the search parameters. Errors and lengths below 1 are
// proportions of the read length, others are absolute values.
type Parameters struct {
	MappingMode    MappingMode `toml:"mapping-mode"`
	AlignmentModel align.Model `toml:"alignment-model"`

	MaxSearchError          float64 `toml:"max-search-error"`
	MaxFilteringError       float64 `toml:"max-filtering-error"`
	CompleteStrataAfterBest float64 `toml:"complete-strata-after-best"`
	MinMatchingLength       float64 `toml:"min-matching-length" comment:"of local alignments"`
	MaxSearchMatches        uint64  `toml:"max-search-matches" comment:"0 for no limit"`

	Replacements string `toml:"replacements" comment:"bases a mismatch can be"`

	FilteringThreshold   uint64 `toml:"filtering-threshold" comment:"regions with more occurrences are not filtered"`
	TileLength           int    `toml:"tile-length"`
	NeighborhoodMaxError int    `toml:"neighborhood-max-error" comment:"budget of the exhaustive search in complete mode"`
	ProbeStrand          bool   `toml:"probe-strand"`
	CheckTiles           bool   `toml:"check-tiles"`

	Soft     filtering.RegionProfileModel `toml:"region-profile-soft"`
	Hard     filtering.RegionProfileModel `toml:"region-profile-hard"`
	Recovery filtering.RegionProfileModel `toml:"region-profile-recovery"`

	MatchScore   int `toml:"match-score"`
	Mismatch     int `toml:"mismatch-penalty"`
	GapOpen      int `toml:"gap-open-penalty"`
	GapExtension int `toml:"gap-extension-penalty"`
	MaxBandwidth int `toml:"max-bandwidth" comment:"0 for no limit"`

	allowed align.AllowedBases
	options align.AlignOptions
}

// DefaultParameters contains default parameter values.
var DefaultParameters = Parameters{
	MappingMode:    MappingFast,
	AlignmentModel: align.ModelGapAffine,

	MaxSearchError:          0.04,
	MaxFilteringError:       0.08,
	CompleteStrataAfterBest: 0,
	MinMatchingLength:       0.20,

	Replacements: "ACGT",

	FilteringThreshold: 350,
	TileLength:         64,

	Soft:     filtering.ProfileSoft,
	Hard:     filtering.ProfileHard,
	Recovery: filtering.ProfileRecovery,

	MatchScore:   1,
	Mismatch:     4,
	GapOpen:      6,
	GapExtension: 1,
}

// NewParameters returns a validated copy of the default parameters.
func NewParameters() *Parameters {
	p := DefaultParameters
	if err := p.Validate(); err != nil {
		panic(err)
	}
	return &p
}

// ConfigureReplacements sets the bases a mismatch can be. Non-DNA
// symbols and N are ignored.
func (p *Parameters) ConfigureReplacements(bases string) error {
	var allowed align.AllowedBases
	var n int
	var c uint8
	for i := 0; i < len(bases); i++ {
		if !util.IsDNA(bases[i]) {
			continue
		}
		c = util.EncodeBase(bases[i])
		if c == util.BaseN || allowed[c] {
			continue
		}
		allowed[c] = true
		n++
	}
	if n == 0 {
		return ErrEmptyReplacements
	}
	p.Replacements = bases
	p.allowed = allowed
	return nil
}

// Validate checks the values and prepares the derived ones.
// It must be called after changing the parameters.
func (p *Parameters) Validate() error {
	if err := p.ConfigureReplacements(p.Replacements); err != nil {
		return err
	}
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"max-search-error", p.MaxSearchError},
		{"max-filtering-error", p.MaxFilteringError},
		{"complete-strata-after-best", p.CompleteStrataAfterBest},
		{"min-matching-length", p.MinMatchingLength},
	} {
		if v.value < 0 {
			return errors.Wrapf(ErrInvalidParameter, "%s should not be negative: %v", v.name, v.value)
		}
	}
	if p.MappingMode > MappingComplete {
		return errors.Wrapf(ErrInvalidParameter, "mapping mode: %d", p.MappingMode)
	}
	if p.AlignmentModel > align.ModelGapAffine {
		return errors.Wrapf(ErrInvalidParameter, "alignment model: %d", p.AlignmentModel)
	}
	if p.TileLength < 0 || p.NeighborhoodMaxError < 0 || p.MaxBandwidth < 0 {
		return errors.Wrapf(ErrInvalidParameter, "tile length, neighborhood error and bandwidth should not be negative")
	}
	if p.MatchScore <= 0 || p.Mismatch < 0 || p.GapOpen < 0 || p.GapExtension <= 0 {
		return errors.Wrapf(ErrInvalidParameter, "penalties: match %d, mismatch %d, gap open %d, gap extension %d",
			p.MatchScore, p.Mismatch, p.GapOpen, p.GapExtension)
	}
	for _, m := range []*filtering.RegionProfileModel{&p.Soft, &p.Hard, &p.Recovery} {
		if m.RegionTh == 0 || m.DecFactor == 0 || m.RegionTypeTh == 0 {
			return errors.Wrapf(ErrInvalidParameter, "region profile model: %+v", *m)
		}
	}

	p.options = align.AlignOptions{
		Penalties:    align.NewPenalties(p.MatchScore, p.Mismatch, p.GapOpen, p.GapExtension),
		MaxBandwidth: p.MaxBandwidth,
	}
	return nil
}

// Allowed returns the bases a mismatch can be.
func (p *Parameters) Allowed() *align.AllowedBases { return &p.allowed }

// AlignOptions returns the options of the aligners.
func (p *Parameters) AlignOptions() *align.AlignOptions { return &p.options }

// Instance contains the parameters instantiated for a read.
type Instance struct {
	MaxSearchError          int
	MaxFilteringError       int
	CompleteStrataAfterBest int
	MinMatchingLength       int
}

// Instantiate converts the proportions into values for a read of the length.
func (p *Parameters) Instantiate(length int) Instance {
	return Instance{
		MaxSearchError:          int(util.IntegerProportion(p.MaxSearchError, length)),
		MaxFilteringError:       int(util.IntegerProportion(p.MaxFilteringError, length)),
		CompleteStrataAfterBest: int(util.IntegerProportion(p.CompleteStrataAfterBest, length)),
		MinMatchingLength:       int(util.IntegerProportion(p.MinMatchingLength, length)),
	}
}

// LoadParameters reads parameters from a TOML file, values missing
// in the file keep the defaults.
func LoadParameters(file string) (*Parameters, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	p := DefaultParameters
	if err = toml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "asearch: parsing %s", file)
	}
	if err = p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "asearch: checking %s", file)
	}
	return &p, nil
}

// WriteTOML writes the parameters in TOML format.
func (p *Parameters) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(p)
}
