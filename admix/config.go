// Package admix decides whether a mixed population shows a genuine
// admixture signal by comparing exponential fits of weighted-LD curves
// across reference-population configurations, and derives mixture-fraction
// lower bounds in the single-reference case.
package admix

import (
	"github.com/pkg/errors"

	"alder/expfit"
	"alder/genotype"
	"alder/weightedld"
)

// Mode is the reference-population configuration a run branches on, decided
// once at the top of the pipeline.
type Mode int

const (
	// SingleRef computes one 1-ref curve and a mixture-fraction bound.
	SingleRef Mode = iota
	// PairedRef fits the 2-ref curve plus each reference's 1-ref curve and
	// runs the admixture test. External weight files also land here; they
	// fit the joint curve but cannot be tested.
	PairedRef
	// MultiRef pre-tests every reference and runs the paired test over all
	// surviving pairs with a multiple-hypothesis corrected threshold.
	MultiRef
)

func (m Mode) String() string {
	switch m {
	case SingleRef:
		return "1-reference weighted LD"
	case PairedRef:
		return "2-reference weighted LD"
	default:
		return "3+ references (multiple admixture tests)"
	}
}

// ModeFor selects the run mode from the available data. No reference data
// and no external weights is a fatal configuration error.
func ModeFor(view *genotype.View, external []float64) (Mode, error) {
	if external != nil {
		return PairedRef, nil
	}
	switch view.NumRefs() {
	case 0:
		return 0, errors.New("admix: no data from reference populations")
	case 1:
		return SingleRef, nil
	case 2:
		return PairedRef, nil
	default:
		return MultiRef, nil
	}
}

// Options is the immutable parameter bundle of one run.
type Options struct {
	Engine   weightedld.Params
	Extent   weightedld.ExtentParams
	Fit      expfit.Options
	Offsets  []int   // start-bin offsets fitted around the nominal start
	PValue   float64 // base significance level for curve tests
	DecayTol float64 // fractional decay-rate consistency tolerance
}

func DefaultOptions() Options {
	return Options{
		Engine: weightedld.Params{
			MaxDistCM:    30,
			BinWidthCM:   0.05,
			MinPairCount: 1,
			Threads:      1,
		},
		Extent:   weightedld.DefaultExtentParams(),
		Fit:      expfit.DefaultOptions(),
		Offsets:  expfit.DefaultOffsets(),
		PValue:   0.05,
		DecayTol: 0.25,
	}
}

// Config is the run configuration decoded from toml by the command.
type Config struct {
	GenoFile   string   `toml:"genotype_file"`
	SnpFile    string   `toml:"snp_file"`
	IndFile    string   `toml:"ind_file"`
	MixedPop   string   `toml:"admix_pop"`
	RefPops    []string `toml:"ref_pops"`
	WeightFile string   `toml:"weight_file"`

	BinWidthCM   float64 `toml:"bin_width_cm"`
	MaxDistCM    float64 `toml:"max_dist_cm"`
	MinDisCM     float64 `toml:"min_dis_cm"` // forced fitting start, 0 = detect
	MinPairCount int64   `toml:"min_pair_count"`
	Threads      int     `toml:"num_threads"`
	UseNaive     bool    `toml:"use_naive_algo"`

	PValue   float64 `toml:"p_value"`
	DecayTol float64 `toml:"decay_tol"`
	RankTol  float64 `toml:"rank_tol"`

	RawOutPath     string `toml:"raw_out"`
	PrintJackknife bool   `toml:"print_raw_jackknife"`
	MemoryLimit    uint64 `toml:"memory_limit"`
}

// Options materializes the numeric options, applying defaults for unset
// fields.
func (c *Config) Options() Options {
	opt := DefaultOptions()
	if c.BinWidthCM > 0 {
		opt.Engine.BinWidthCM = c.BinWidthCM
	}
	if c.MaxDistCM > 0 {
		opt.Engine.MaxDistCM = c.MaxDistCM
	}
	if c.MinPairCount > 0 {
		opt.Engine.MinPairCount = c.MinPairCount
	}
	if c.Threads > 0 {
		opt.Engine.Threads = c.Threads
	}
	opt.Engine.UseNaive = c.UseNaive
	if c.MinDisCM > 0 {
		opt.Extent.ForcedCM = c.MinDisCM
	}
	if c.PValue > 0 {
		opt.PValue = c.PValue
	}
	if c.DecayTol > 0 {
		opt.DecayTol = c.DecayTol
	}
	if c.RankTol > 0 {
		opt.Fit.RankTol = c.RankTol
	}
	return opt
}
