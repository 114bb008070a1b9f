package admix

import (
	"math"

	"alder/expfit"
)

// TestResult compares a 2-ref fit against its two constituent 1-ref fits.
// Always traceable to the triple of fits that produced it.
type TestResult struct {
	MixedPop   string
	Ref1, Ref2 string

	Fit2, Fit1a, Fit1b *expfit.Fit

	// MinZ1/MinZ2 are min(|z_amp|, |z_decay|) of each 1-ref curve; a curve
	// is real when this clears the (corrected) threshold.
	MinZ1, MinZ2 float64
	P1, P2       float64

	// Decay-difference z-scores, independence approximation (see
	// expfit.DiffZ).
	DiffZ1v2, DiffZ2v2, DiffZ1v1 float64

	MultHypCorr float64
	ZThresh     float64 // corrected significance threshold on |z|

	Sig1, Sig2 bool
	Consistent bool
	Admixture  bool
	Reason     string // set when the test could not be decided
}

// MultHypCorr is the conservative multiple-hypothesis correction factor for
// k eligible references: the number of pairwise tests to be run.
func MultHypCorr(k int) float64 {
	m := k * (k - 1) / 2
	if m < 1 {
		m = 1
	}
	return float64(m)
}

// RunPairTest decides admixture from the three fits. Admixture is declared
// only when both 1-ref curves are individually significant at the corrected
// threshold and all three curves are pairwise decay-rate-consistent within
// the fractional tolerance, scaled by the 2-ref decay.
func (t *Tester) RunPairTest(fit2, fit1a, fit1b *expfit.Fit, ref1, ref2 string, multCorr float64) *TestResult {
	res := &TestResult{
		MixedPop:    t.view.MixedName,
		Ref1:        ref1,
		Ref2:        ref2,
		Fit2:        fit2,
		Fit1a:       fit1a,
		Fit1b:       fit1b,
		MultHypCorr: multCorr,
		ZThresh:     expfit.ZForPValue(t.opt.PValue / multCorr),
	}
	switch {
	case fit2 == nil:
		res.Reason = "no 2-ref curve"
		return res
	case fit1a == nil:
		res.Reason = "no 1-ref curve for " + ref1
		return res
	case fit1b == nil:
		res.Reason = "no 1-ref curve for " + ref2
		return res
	case !fit1a.Jackknifed || !fit1b.Jackknifed:
		res.Reason = "cannot jackknife 1-ref fits"
		return res
	}

	res.MinZ1 = math.Min(math.Abs(fit1a.ZAmp()), math.Abs(fit1a.ZDecay()))
	res.MinZ2 = math.Min(math.Abs(fit1b.ZAmp()), math.Abs(fit1b.ZDecay()))
	res.P1 = expfit.PValue(res.MinZ1)
	res.P2 = expfit.PValue(res.MinZ2)
	res.Sig1 = res.MinZ1 > res.ZThresh
	res.Sig2 = res.MinZ2 > res.ZThresh

	res.DiffZ1v2 = expfit.DiffZ(fit1a, fit2, expfit.ParamDecay)
	res.DiffZ2v2 = expfit.DiffZ(fit1b, fit2, expfit.ParamDecay)
	res.DiffZ1v1 = expfit.DiffZ(fit1a, fit1b, expfit.ParamDecay)
	res.Consistent = expfit.DecayConsistent(fit1a, fit2, fit2, t.opt.DecayTol) &&
		expfit.DecayConsistent(fit1b, fit2, fit2, t.opt.DecayTol) &&
		expfit.DecayConsistent(fit1a, fit1b, fit2, t.opt.DecayTol)

	res.Admixture = res.Sig1 && res.Sig2 && res.Consistent
	return res
}
