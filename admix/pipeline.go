package admix

import (
	"math"

	"github.com/pkg/errors"
	"go.dedis.ch/onet/v3/log"

	"alder/expfit"
	"alder/genotype"
	"alder/weightedld"
)

// CurveRun is one computed-and-fitted weighted-LD curve.
type CurveRun struct {
	Label      string
	FitStartCM float64
	Result     *weightedld.Result
	Series     *expfit.Series
}

// PreTest is the outcome of one reference's 1-ref screening in MultiRef
// mode.
type PreTest struct {
	Ref      string
	Eligible bool
	MinZ     float64
	Reason   string
	Curve    *CurveRun
}

// PairOutcome is one pairwise admixture test, or the reason it was skipped.
type PairOutcome struct {
	Ref1, Ref2 string
	Curve      *CurveRun
	Test       *TestResult
}

// Summary is everything a run produced, handed to the reporting layer.
type Summary struct {
	Mode        Mode
	SkipReason  string // set when the whole scheme could not be fitted
	Main        *CurveRun
	RefCurves   []*CurveRun
	MixFrac     *MixFracBound
	PreTests    []*PreTest
	MultHypCorr float64
	Pairs       []*PairOutcome
}

// Tester orchestrates a run over one reference-population configuration.
type Tester struct {
	view     *genotype.View
	external []float64
	opt      Options
}

// NewTester builds a run over the view; external, when non-nil, is a loaded
// per-SNP weighting vector used in place of reference frequencies.
func NewTester(view *genotype.View, external []float64, opt Options) (*Tester, error) {
	if external != nil && len(external) != view.NumSnps() {
		return nil, errors.Errorf("admix: external weight vector has %d entries, expected %d", len(external), view.NumSnps())
	}
	return &Tester{view: view, external: external, opt: opt}, nil
}

// Run dispatches on the reference configuration and executes the full
// protocol for it.
func (t *Tester) Run() (*Summary, error) {
	mode, err := ModeFor(t.view, t.external)
	if err != nil {
		return nil, err
	}
	log.LLvl1("form of run:", mode)
	if t.opt.Extent.ForcedCM > 0 {
		log.LLvl1("WARNING: using user-specified minimum fitting distance of", t.opt.Extent.ForcedCM, "cM")
	} else if t.external != nil {
		log.LLvl1("WARNING: external weights without an explicit minimum fitting distance; defaulting to", t.opt.Extent.FloorCM, "cM")
	}

	switch mode {
	case SingleRef:
		return t.runSingleRef()
	case PairedRef:
		return t.runPairedRef()
	default:
		return t.runMultiRef()
	}
}

// detectionWeights is the weighting used when measuring the extent of
// background LD correlation for one reference.
func (t *Tester) detectionWeights(r int) []float64 {
	mixed := t.view.MixedFreqs()
	w := make([]float64, t.view.NumSnps())
	for s := range w {
		w[s] = t.view.RefFreq(r)[s] - mixed[s]
	}
	return w
}

func (t *Tester) detect(weights []float64, external bool) (float64, error) {
	ext := t.opt.Extent
	ext.External = external
	det := weightedld.NewDetector(t.view, t.opt.Engine, ext)
	return det.Detect(weights)
}

// runCurve computes one weighted-LD curve and fits it at start bins around
// the fitting-start distance.
func (t *Tester) runCurve(label string, weights []float64, startCM float64) (*CurveRun, error) {
	eng, err := weightedld.NewEngine(t.view, t.opt.Engine)
	if err != nil {
		return nil, err
	}
	res, err := eng.Run(weights)
	if err != nil {
		return nil, err
	}
	log.LLvl1(label, "curve computed;", res.ChromsUsed, "chromosomes contributed; fitting from", startCM, "cM")
	series := expfit.FitSeries(res, startCM, t.opt.Offsets, t.opt.Fit)
	return &CurveRun{Label: label, FitStartCM: startCM, Result: res, Series: series}, nil
}

func (t *Tester) runSingleRef() (*Summary, error) {
	sum := &Summary{Mode: SingleRef}
	refName := t.view.RefNames[0]

	weights, err := t.view.OneRefWeights(0)
	if err != nil {
		return nil, err
	}
	start, err := t.detect(weights, false)
	if err != nil {
		return nil, errors.Wrapf(err, "reference %s", refName)
	}
	if math.IsInf(start, 1) {
		sum.SkipReason = "cannot fit: no evaluable bins for reference " + refName
		log.Error("skipping 1-ref curve:", sum.SkipReason)
		return sum, nil
	}

	sum.Main, err = t.runCurve("1-ref "+refName, weights, start)
	if err != nil {
		return nil, err
	}

	fit := sum.Main.Series.Test()
	if fit == nil {
		log.Error("no curve for 1-ref", refName, "- skipping mixture fraction bound")
		return sum, nil
	}
	f2jacks, err := F2Jacks(t.view, 0)
	if err != nil {
		return nil, err
	}
	if bound, ok := MixtureFractionBound(fit, f2jacks); ok {
		sum.MixFrac = &bound
	} else {
		log.Error("cannot compute mixture fraction bound: fewer than 2 jackknife replicates")
	}
	return sum, nil
}

func (t *Tester) runPairedRef() (*Summary, error) {
	sum := &Summary{Mode: PairedRef, MultHypCorr: 1}

	var weights []float64
	var starts []float64
	if t.external != nil {
		weights = t.external
		start, err := t.detect(weights, true)
		if err != nil {
			return nil, err
		}
		starts = []float64{start}
	} else {
		weights = t.view.TwoRefWeights(0, 1)
		for r := 0; r < 2; r++ {
			start, err := t.detect(t.detectionWeights(r), false)
			if err != nil {
				return nil, errors.Wrapf(err, "reference %s", t.view.RefNames[r])
			}
			starts = append(starts, start)
		}
	}
	fitStart := starts[0]
	for _, s := range starts[1:] {
		fitStart = math.Max(fitStart, s)
	}
	if math.IsInf(fitStart, 1) {
		sum.SkipReason = "cannot fit: no evaluable bins"
		log.Error("skipping 2-ref curve:", sum.SkipReason)
		return sum, nil
	}

	var err error
	sum.Main, err = t.runCurve(t.twoRefLabel(), weights, fitStart)
	if err != nil {
		return nil, err
	}

	// admixture test, when possible
	pair := &PairOutcome{}
	switch {
	case t.external != nil:
		pair.Test = &TestResult{Reason: "cannot test for admixture: need reference genotypes"}
	case sum.Main.Result.ChromsUsed < 2:
		pair.Test = &TestResult{Reason: "cannot test for admixture: need >= 2 chromosomes to jackknife"}
	default:
		pair.Ref1, pair.Ref2 = t.view.RefNames[0], t.view.RefNames[1]
		for r := 0; r < 2; r++ {
			oneW, err := t.view.OneRefWeights(r)
			if err != nil {
				pair.Test = &TestResult{Reason: "cannot test for admixture: " + err.Error()}
				break
			}
			run, err := t.runCurve("1-ref "+t.view.RefNames[r], oneW, starts[r])
			if err != nil {
				return nil, err
			}
			sum.RefCurves = append(sum.RefCurves, run)
		}
		if pair.Test == nil {
			pair.Test = t.RunPairTest(sum.Main.Series.Test(),
				sum.RefCurves[0].Series.Test(), sum.RefCurves[1].Series.Test(),
				pair.Ref1, pair.Ref2, 1)
		}
	}
	if pair.Test.Reason != "" && !pair.Test.Admixture {
		log.Error(pair.Test.Reason)
	}
	pair.Curve = sum.Main
	sum.Pairs = append(sum.Pairs, pair)
	return sum, nil
}

func (t *Tester) twoRefLabel() string {
	if t.external != nil {
		return "2-ref (external weights)"
	}
	return "2-ref " + t.view.RefNames[0] + "/" + t.view.RefNames[1]
}

func (t *Tester) runMultiRef() (*Summary, error) {
	if jackknifeableChroms(t.view) < 2 {
		return nil, errors.New("admix: cannot test for admixture: need >= 2 chromosomes to jackknife")
	}
	sum := &Summary{Mode: MultiRef}
	baseZ := expfit.ZForPValue(t.opt.PValue)

	starts := make([]float64, t.view.NumRefs())
	eligible := 0
	for r := 0; r < t.view.NumRefs(); r++ {
		name := t.view.RefNames[r]
		pre := &PreTest{Ref: name}
		sum.PreTests = append(sum.PreTests, pre)

		start, err := t.detect(t.detectionWeights(r), false)
		if err == weightedld.ErrLongRangeLD || errors.Cause(err) == weightedld.ErrLongRangeLD {
			start = math.Inf(1)
		} else if err != nil {
			return nil, err
		}
		starts[r] = start
		if math.IsInf(start, 1) {
			pre.Reason = "cannot pre-test: long-range LD"
			log.Error("reference", name, pre.Reason)
			continue
		}

		oneW, err := t.view.OneRefWeights(r)
		if err != nil {
			return nil, err
		}
		pre.Curve, err = t.runCurve("1-ref "+name, oneW, start)
		if err != nil {
			return nil, err
		}
		fit := pre.Curve.Series.Test()
		if fit == nil {
			pre.Reason = "no 1-ref curve"
			log.Error("reference", name, pre.Reason)
			continue
		}
		pre.MinZ = math.Min(math.Abs(fit.ZAmp()), math.Abs(fit.ZDecay()))
		if !fit.Significant(baseZ) {
			pre.Reason = "1-ref curve not significant"
			continue
		}
		pre.Eligible = true
		eligible++
	}

	sum.MultHypCorr = MultHypCorr(eligible)

	for _, pr := range eligiblePairs(sum.PreTests) {
		r1, r2 := pr[0], pr[1]
		// each pair fits from the larger of its refs' correlation extents
		fitStart := math.Max(starts[r1], starts[r2])
		run, err := t.runCurve("2-ref "+t.view.RefNames[r1]+"/"+t.view.RefNames[r2],
			t.view.TwoRefWeights(r1, r2), fitStart)
		if err != nil {
			return nil, err
		}
		test := t.RunPairTest(run.Series.Test(),
			sum.PreTests[r1].Curve.Series.Test(), sum.PreTests[r2].Curve.Series.Test(),
			t.view.RefNames[r1], t.view.RefNames[r2], sum.MultHypCorr)
		sum.Pairs = append(sum.Pairs, &PairOutcome{
			Ref1:  t.view.RefNames[r1],
			Ref2:  t.view.RefNames[r2],
			Curve: run,
			Test:  test,
		})
	}
	return sum, nil
}

// eligiblePairs enumerates the reference pairs that survive pre-testing,
// in reference order.
func eligiblePairs(pre []*PreTest) [][2]int {
	var pairs [][2]int
	for r1 := 0; r1 < len(pre); r1++ {
		if !pre[r1].Eligible {
			continue
		}
		for r2 := r1 + 1; r2 < len(pre); r2++ {
			if !pre[r2].Eligible {
				continue
			}
			pairs = append(pairs, [2]int{r1, r2})
		}
	}
	return pairs
}

// jackknifeableChroms counts chromosomes that can contribute at least one
// SNP pair.
func jackknifeableChroms(view *genotype.View) int {
	n := 0
	for _, blk := range view.Chroms() {
		if blk.Hi-blk.Lo >= 2 {
			n++
		}
	}
	return n
}
