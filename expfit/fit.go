// Package expfit fits the exponential-decay-plus-affine model
// f(d) = amp*exp(-decay*d) + offset to a weighted-LD curve by weighted
// least squares, with jackknife standard errors obtained by refitting every
// chromosome-deleted replicate curve. Distances are taken in Morgans so the
// decay rate reads directly as an admixture age in generations.
package expfit

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"alder/weightedld"
)

// ErrNoCurve reports that a fit was declined: too few usable bins, a
// rank-deficient design, or a non-convergent iteration. It is a result,
// not a fatal condition.
var ErrNoCurve = errors.New("expfit: no curve")

// Options are the numerical policies of the fitter. RankTol is the singular
// value ratio below which the linearized design is declared rank-deficient;
// it is configuration, not a constant, because the right cutoff depends on
// the data scale.
type Options struct {
	RankTol float64
	MaxIter int
	Tol     float64
	ZThresh float64
}

func DefaultOptions() Options {
	return Options{RankTol: 1e-9, MaxIter: 80, Tol: 1e-12, ZThresh: 2.0}
}

// Fit is one immutable curve-fit result.
type Fit struct {
	StartBin   int
	StartDisCM float64

	Amp    float64
	Decay  float64 // per Morgan, approximately generations since admixture
	Offset float64

	AmpSE    float64
	DecaySE  float64
	OffsetSE float64

	// Jackknifed is true when at least two replicate refits succeeded and
	// the standard errors are meaningful.
	Jackknifed bool

	// RepChroms holds the chromosome block indices whose delete-one refits
	// succeeded; RepAmps the corresponding amplitude estimates. The mixture
	// fraction bound propagates these against per-chromosome f2 replicates.
	RepChroms []int
	RepAmps   []float64
}

func (f *Fit) ZAmp() float64 {
	if f.AmpSE == 0 {
		return 0
	}
	return f.Amp / f.AmpSE
}

func (f *Fit) ZDecay() float64 {
	if f.DecaySE == 0 {
		return 0
	}
	return f.Decay / f.DecaySE
}

// Significant reports whether the curve is real: amplitude and decay both
// non-degenerate with |z| above the threshold. Requires jackknife SEs.
func (f *Fit) Significant(zThresh float64) bool {
	return f.Jackknifed && math.Abs(f.ZAmp()) > zThresh && math.Abs(f.ZDecay()) > zThresh
}

type points struct {
	dis []float64 // Morgans
	val []float64
	wt  []float64 // inverse jackknife variance, 1 when unavailable
	bin []int
}

// FitCurve fits the model to bins from startBin onward. Per-bin weights are
// inverse jackknife variances. Jackknife standard errors come from refitting
// each chromosome-deleted replicate curve, which captures the coupling
// between the nonlinear fit and the resampling.
func FitCurve(res *weightedld.Result, startBin int, opt Options) (*Fit, error) {
	pts := gatherPoints(res, startBin, nil)
	if len(pts.dis) < 3 {
		return nil, errors.Wrapf(ErrNoCurve, "only %d usable bins from bin %d", len(pts.dis), startBin)
	}
	amp, decay, offset, err := fitPoints(pts, nil, opt)
	if err != nil {
		return nil, err
	}

	fit := &Fit{
		StartBin:   startBin,
		StartDisCM: res.BinDistCM(startBin),
		Amp:        amp,
		Decay:      decay,
		Offset:     offset,
	}

	init := []float64{amp, decay, offset}
	var amps, decays, offsets []float64
	for _, bc := range res.UsableBlocks() {
		rpts := gatherPoints(res, startBin, &bc)
		if len(rpts.dis) < 3 {
			continue
		}
		a, d, c, err := fitPoints(rpts, init, opt)
		if err != nil {
			continue
		}
		fit.RepChroms = append(fit.RepChroms, bc)
		amps = append(amps, a)
		decays = append(decays, d)
		offsets = append(offsets, c)
	}
	fit.RepAmps = amps
	if len(amps) >= 2 {
		_, fit.AmpSE, _ = weightedld.JackknifeMeanStd(amps)
		_, fit.DecaySE, _ = weightedld.JackknifeMeanStd(decays)
		_, fit.OffsetSE, _ = weightedld.JackknifeMeanStd(offsets)
		fit.Jackknifed = true
	}
	return fit, nil
}

// gatherPoints collects the usable bins from startBin on. With deleteChrom
// set, bin values come from the corresponding jackknife replicate; the
// weights stay those of the full curve so replicate refits minimize the
// same objective.
func gatherPoints(res *weightedld.Result, startBin int, deleteChrom *int) points {
	var pts points
	for b := startBin; b < res.NumBins(); b++ {
		v, ok := res.Value(b)
		if !ok {
			continue
		}
		if deleteChrom != nil {
			rv, rok := res.Replicate(*deleteChrom, b)
			if !rok {
				continue
			}
			v = rv
		}
		w := 1.0
		if se, seOK := res.BinSE(b); seOK && se > 0 {
			w = 1 / (se * se)
		}
		pts.dis = append(pts.dis, res.BinDistCM(b)/100)
		pts.val = append(pts.val, v)
		pts.wt = append(pts.wt, w)
		pts.bin = append(pts.bin, b)
	}
	return pts
}

// fitPoints runs the nonlinear solve: a coarse grid over the decay rate
// with the conditionally-linear (amp, offset) subproblem solved by SVD,
// then Gauss-Newton with SVD-solved steps and step halving.
func fitPoints(pts points, init []float64, opt Options) (amp, decay, offset float64, err error) {
	if init != nil {
		amp, decay, offset = init[0], init[1], init[2]
	} else {
		amp, decay, offset, err = gridInit(pts, opt)
		if err != nil {
			return 0, 0, 0, err
		}
	}

	wss := weightedSS(pts, amp, decay, offset)
	for iter := 0; iter < opt.MaxIter; iter++ {
		jac := mat.NewDense(len(pts.dis), 3, nil)
		resid := mat.NewVecDense(len(pts.dis), nil)
		for i, d := range pts.dis {
			sw := math.Sqrt(pts.wt[i])
			e := math.Exp(-decay * d)
			jac.Set(i, 0, sw*e)
			jac.Set(i, 1, sw*(-amp*d*e))
			jac.Set(i, 2, sw)
			resid.SetVec(i, sw*(pts.val[i]-(amp*e+offset)))
		}
		step, err := svdSolve(jac, resid, opt.RankTol)
		if err != nil {
			return 0, 0, 0, err
		}

		scale := 1.0
		improved := false
		var na, nd, nc, nwss float64
		for try := 0; try < 10; try++ {
			na = amp + scale*step[0]
			nd = decay + scale*step[1]
			nc = offset + scale*step[2]
			if nd < 1e-6 {
				nd = 1e-6
			}
			nwss = weightedSS(pts, na, nd, nc)
			if nwss <= wss {
				improved = true
				break
			}
			scale /= 2
		}
		if !improved {
			return amp, decay, offset, nil
		}
		done := wss-nwss <= opt.Tol*(wss+opt.Tol)
		amp, decay, offset, wss = na, nd, nc, nwss
		if done {
			return amp, decay, offset, nil
		}
	}
	return 0, 0, 0, errors.Wrap(ErrNoCurve, "iteration did not converge")
}

func weightedSS(pts points, amp, decay, offset float64) float64 {
	ss := 0.0
	for i, d := range pts.dis {
		r := pts.val[i] - (amp*math.Exp(-decay*d) + offset)
		ss += pts.wt[i] * r * r
	}
	return ss
}

// gridInit scans decay rates on a log grid, solving the linear (amp, offset)
// subproblem at each, and seeds Gauss-Newton from the best.
func gridInit(pts points, opt Options) (amp, decay, offset float64, err error) {
	const gridN = 48
	lo, hi := math.Log(0.5), math.Log(5000.0)
	best := math.Inf(1)
	found := false
	for g := 0; g <= gridN; g++ {
		lam := math.Exp(lo + (hi-lo)*float64(g)/gridN)
		design := mat.NewDense(len(pts.dis), 2, nil)
		rhs := mat.NewVecDense(len(pts.dis), nil)
		for i, d := range pts.dis {
			sw := math.Sqrt(pts.wt[i])
			design.Set(i, 0, sw*math.Exp(-lam*d))
			design.Set(i, 1, sw)
			rhs.SetVec(i, sw*pts.val[i])
		}
		coef, serr := svdSolve(design, rhs, opt.RankTol)
		if serr != nil {
			continue
		}
		ss := weightedSS(pts, coef[0], lam, coef[1])
		if ss < best {
			best = ss
			amp, decay, offset = coef[0], lam, coef[1]
			found = true
		}
	}
	if !found {
		return 0, 0, 0, errors.Wrap(ErrNoCurve, "design matrix is rank-deficient at every decay rate")
	}
	return amp, decay, offset, nil
}

// svdSolve solves the least-squares system, declining explicitly when the
// singular value spectrum indicates rank deficiency.
func svdSolve(a *mat.Dense, b *mat.VecDense, rankTol float64) ([]float64, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.Wrap(ErrNoCurve, "SVD factorization failed")
	}
	vals := svd.Values(nil)
	if vals[0] == 0 || vals[len(vals)-1]/vals[0] < rankTol {
		return nil, errors.Wrap(ErrNoCurve, "design matrix is rank-deficient")
	}
	var x mat.VecDense
	svd.SolveVecTo(&x, b, len(vals))
	out := make([]float64, x.Len())
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}
