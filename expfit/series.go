package expfit

import (
	"math"

	"alder/weightedld"
)

// Series is an ordered collection of fits of the same curve at start bins
// around a nominal start distance, with one designated entry whose result
// feeds downstream tests. Entries are nil where the fit reported no curve.
type Series struct {
	Fits      []*Fit
	Offsets   []int
	TestIndex int
}

// Test returns the designated fit, or nil when it reported no curve.
func (s *Series) Test() *Fit {
	if s == nil || s.TestIndex < 0 || s.TestIndex >= len(s.Fits) {
		return nil
	}
	return s.Fits[s.TestIndex]
}

// DefaultOffsets are the start-bin offsets fitted around the nominal start.
func DefaultOffsets() []int { return []int{-2, -1, 0, 1, 2} }

// StartBin maps a fitting-start distance to the first bin whose
// representative distance reaches it.
func StartBin(res *weightedld.Result, startDisCM float64) int {
	b := int(math.Ceil(startDisCM/res.BinWidthCM)) - 1
	if b < 0 {
		b = 0
	}
	if b >= res.NumBins() {
		b = res.NumBins() - 1
	}
	return b
}

// FitSeries fits the curve at the nominal start bin for startDisCM plus
// each offset, recording which entry is the designated test fit (offset 0).
// Offsets that fall outside the bin range are dropped.
func FitSeries(res *weightedld.Result, startDisCM float64, offsets []int, opt Options) *Series {
	if offsets == nil {
		offsets = DefaultOffsets()
	}
	nominal := StartBin(res, startDisCM)
	s := &Series{TestIndex: -1}
	for _, off := range offsets {
		sb := nominal + off
		if sb < 0 || sb >= res.NumBins() {
			continue
		}
		if off == 0 {
			s.TestIndex = len(s.Fits)
		}
		fit, err := FitCurve(res, sb, opt)
		if err != nil {
			fit = nil
		}
		s.Fits = append(s.Fits, fit)
		s.Offsets = append(s.Offsets, off)
	}
	return s
}
