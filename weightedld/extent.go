package weightedld

import (
	"math"

	"github.com/pkg/errors"

	"alder/genotype"
)

// ErrLongRangeLD is the refusal returned when background LD correlation
// extends past the safety ceiling and no explicit minimum fitting distance
// was supplied. It is resolvable by a user override, unlike a fatal
// configuration error.
var ErrLongRangeLD = errors.New("weightedld: LD correlation extends past safety ceiling; supply an explicit minimum fitting distance to proceed")

// ExtentParams configures correlation-extent detection.
type ExtentParams struct {
	FloorCM   float64 // detected extents never fall below this (0.5 cM)
	CeilingCM float64 // past this the detector refuses (2 cM)
	ZThresh   float64 // significance threshold on value/SE
	ForcedCM  float64 // user override, used verbatim when > 0
	External  bool    // weights came from a file; default to FloorCM
}

// DefaultExtentParams returns the standard detection thresholds.
func DefaultExtentParams() ExtentParams {
	return ExtentParams{FloorCM: 0.5, CeilingCM: 2.0, ZThresh: 2.0}
}

// Detector determines the minimum fitting-start distance for one weighting
// scheme: the point beyond which background correlated LD is no longer
// statistically detectable.
type Detector struct {
	view *genotype.View
	base Params
	ext  ExtentParams
}

func NewDetector(view *genotype.View, base Params, ext ExtentParams) *Detector {
	return &Detector{view: view, base: base, ext: ext}
}

// Detect scans outward from zero distance and returns the fitting-start
// distance in cM. A bin is significantly correlated when |value|/SE exceeds
// the threshold; the extent is max(floor, distance of the second consecutive
// insignificant bin). Returns +Inf (no error) when no bin can be evaluated
// at all, signaling that the weighting scheme is unusable for fitting; the
// caller treats this as a skip condition. Returns ErrLongRangeLD when the
// extent would exceed the ceiling without a user override.
func (d *Detector) Detect(weights []float64) (float64, error) {
	if d.ext.ForcedCM > 0 {
		return d.ext.ForcedCM, nil
	}
	if d.ext.External {
		return d.ext.FloorCM, nil
	}

	scan := d.base
	scan.MaxDistCM = d.ext.CeilingCM + 2*d.base.BinWidthCM
	eng, err := NewEngine(d.view, scan)
	if err != nil {
		return 0, err
	}
	res, err := eng.Run(weights)
	if err != nil {
		return 0, err
	}
	return scanExtent(res, d.ext)
}

// scanExtent walks the curve's bins outward and applies the second
// consecutive significance-failure rule. Only evaluable bins (a usable value
// with a jackknife SE) advance the failure counter; sparse bins are skipped,
// and a curve with no evaluable bin at all yields the +Inf sentinel.
func scanExtent(res *Result, ext ExtentParams) (float64, error) {
	evaluated := false
	failures := 0
	for b := 0; b < res.NumBins(); b++ {
		v, ok := res.Value(b)
		se, seOK := res.BinSE(b)
		if !ok || !seOK {
			continue
		}
		evaluated = true
		if se > 0 && math.Abs(v)/se > ext.ZThresh {
			failures = 0
			continue
		}
		failures++
		if failures == 2 {
			stop := math.Max(ext.FloorCM, res.BinDistCM(b))
			if stop > ext.CeilingCM {
				return 0, ErrLongRangeLD
			}
			return stop, nil
		}
	}
	if !evaluated {
		return math.Inf(1), nil
	}
	return 0, ErrLongRangeLD
}
