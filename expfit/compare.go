package expfit

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Param names a fitted parameter for cross-curve comparison.
type Param int

const (
	ParamAmp Param = iota
	ParamDecay
	ParamOffset
)

func (p Param) String() string {
	switch p {
	case ParamAmp:
		return "amp_exp"
	case ParamDecay:
		return "decay"
	default:
		return "affine"
	}
}

func (f *Fit) Estimate(p Param) float64 {
	switch p {
	case ParamAmp:
		return f.Amp
	case ParamDecay:
		return f.Decay
	default:
		return f.Offset
	}
}

func (f *Fit) SE(p Param) float64 {
	switch p {
	case ParamAmp:
		return f.AmpSE
	case ParamDecay:
		return f.DecaySE
	default:
		return f.OffsetSE
	}
}

// DiffZ is the z-score of the difference of one parameter between two fits,
// normalized by sqrt(se1^2 + se2^2). The two curves are treated as
// independent even when they share genotype data.
func DiffZ(a, b *Fit, p Param) float64 {
	se := math.Sqrt(a.SE(p)*a.SE(p) + b.SE(p)*b.SE(p))
	if se == 0 {
		return 0
	}
	return (a.Estimate(p) - b.Estimate(p)) / se
}

// DecayConsistent reports whether two fits' decay rates differ by no more
// than tol (fractionally) of the scale fit's decay magnitude.
func DecayConsistent(a, b, scale *Fit, tol float64) bool {
	return math.Abs(a.Decay-b.Decay) <= tol*math.Abs(scale.Decay)
}

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// PValue is the two-sided normal p-value of a z-score.
func PValue(z float64) float64 {
	return 2 * stdNormal.Survival(math.Abs(z))
}

// ZForPValue is the two-sided significance threshold on |z| for a p-value.
func ZForPValue(p float64) float64 {
	return stdNormal.Quantile(1 - p/2)
}
