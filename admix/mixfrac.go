package admix

import (
	"math"

	"alder/expfit"
	"alder/weightedld"
)

// AlphaBound converts a fitted single-reference amplitude and an f2
// statistic into a lower bound on the mixture fraction, assuming a single
// pulse of admixture: amp = 2*a*(1-a)*f2^2 solved for the smaller root.
// It is a bound, not a point estimate; amplitudes implying a*(1-a) beyond
// its maximum clamp to 0.5.
func AlphaBound(amp, f2 float64) float64 {
	if amp <= 0 || f2 <= 0 {
		return 0
	}
	q := amp / (2 * f2 * f2)
	if q >= 0.25 {
		return 0.5
	}
	return 0.5 * (1 - math.Sqrt(1-4*q))
}

// MixFracBound is a jackknife-propagated mixture-fraction lower bound.
type MixFracBound struct {
	Alpha   float64
	AlphaSE float64
}

// MixtureFractionBound propagates the per-chromosome amplitude replicates
// of a fit against the matching f2 replicates, so the ratio's uncertainty
// reflects the coupling between the two resampled statistics. ok is false
// when fewer than two replicate pairs exist.
func MixtureFractionBound(fit *expfit.Fit, f2jacks []float64) (MixFracBound, bool) {
	var alphas []float64
	for i, bc := range fit.RepChroms {
		if bc < 0 || bc >= len(f2jacks) {
			continue
		}
		alphas = append(alphas, AlphaBound(fit.RepAmps[i], f2jacks[bc]))
	}
	if len(alphas) < 2 {
		return MixFracBound{}, false
	}
	mean, se, _ := weightedld.JackknifeMeanStd(alphas)
	return MixFracBound{Alpha: mean, AlphaSE: se}, true
}
