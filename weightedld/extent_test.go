package weightedld

import (
	"math"
	"testing"
)

// makeScanResult builds a synthetic curve where each bin is either strongly
// significant (tight replicates around 1.0) or exactly zero.
func makeScanResult(widthCM float64, sig []bool) *Result {
	nbins := len(sig)
	res := &Result{Curve: Curve{
		BinWidthCM:   widthCM,
		MinPairCount: 1,
		Sums:         make([]float64, nbins),
		Counts:       make([]int64, nbins),
		Blocks:       make([]Block, 3),
	}}
	for c := range res.Blocks {
		res.Blocks[c] = Block{
			Chrom:  c + 1,
			Sums:   make([]float64, nbins),
			Counts: make([]int64, nbins),
		}
	}
	for b, s := range sig {
		for c := range res.Blocks {
			res.Blocks[c].Counts[b] = 100
			if s {
				res.Blocks[c].Sums[b] = 100 * (1 + 0.01*float64(c))
			}
			res.Sums[b] += res.Blocks[c].Sums[b]
			res.Counts[b] += res.Blocks[c].Counts[b]
		}
	}
	res.ChromsUsed = 3
	return res
}

func TestScanExtentSecondFailure(t *testing.T) {
	// significant through bin 1, then two consecutive failures at bins 2, 3
	res := makeScanResult(0.5, []bool{true, true, false, false, true})
	ext := DefaultExtentParams()
	got, err := scanExtent(res, ext)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2.0 {
		t.Fatalf("extent: want 2.0 cM (second failure bin), got %g", got)
	}
}

func TestScanExtentConsecutiveReset(t *testing.T) {
	// an isolated failure does not count; the pair at bins 3, 4 does
	res := makeScanResult(0.25, []bool{true, false, true, false, false, true})
	ext := DefaultExtentParams()
	got, err := scanExtent(res, ext)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1.25 {
		t.Fatalf("extent: want 1.25 cM, got %g", got)
	}
}

func TestScanExtentFloor(t *testing.T) {
	res := makeScanResult(0.1, []bool{false, false, true, true})
	ext := DefaultExtentParams()
	got, err := scanExtent(res, ext)
	if err != nil {
		t.Fatal(err)
	}
	if got != ext.FloorCM {
		t.Fatalf("extent: want floor %g, got %g", ext.FloorCM, got)
	}
}

func TestScanExtentRefusesPastCeiling(t *testing.T) {
	// correlation stays significant out to 2.5 cM: second failure lands
	// past the ceiling and the detector must refuse rather than guess
	res := makeScanResult(0.5, []bool{true, true, true, true, true, false, false})
	_, err := scanExtent(res, DefaultExtentParams())
	if err != ErrLongRangeLD {
		t.Fatalf("want ErrLongRangeLD, got %v", err)
	}
}

func TestScanExtentNeverFails(t *testing.T) {
	res := makeScanResult(0.5, []bool{true, true, true, true, true, true})
	_, err := scanExtent(res, DefaultExtentParams())
	if err != ErrLongRangeLD {
		t.Fatalf("want ErrLongRangeLD when significance never stops, got %v", err)
	}
}

func TestScanExtentInfiniteSentinel(t *testing.T) {
	res := makeScanResult(0.5, []bool{false, false, false})
	for b := range res.Counts {
		res.Counts[b] = 0
		for c := range res.Blocks {
			res.Blocks[c].Counts[b] = 0
		}
	}
	got, err := scanExtent(res, DefaultExtentParams())
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(got, 1) {
		t.Fatalf("want +Inf sentinel for unusable weighting, got %g", got)
	}
}

func TestScanExtentSkipsSparseLeadingBins(t *testing.T) {
	// bins 0-1 have no pairs at all; they must not advance the failure
	// counter, so the extent comes from the insignificant pair at bins 4, 5
	res := makeScanResult(0.25, []bool{false, false, true, true, false, false, true})
	for b := 0; b < 2; b++ {
		res.Sums[b] = 0
		res.Counts[b] = 0
		for c := range res.Blocks {
			res.Blocks[c].Sums[b] = 0
			res.Blocks[c].Counts[b] = 0
		}
	}
	got, err := scanExtent(res, DefaultExtentParams())
	if err != nil {
		t.Fatal(err)
	}
	if got != 1.5 {
		t.Fatalf("extent: want 1.5 cM, got %g", got)
	}
}

func TestDetectForcedOverride(t *testing.T) {
	view := testView(t, 2, 30, 6, 11)
	base := Params{MaxDistCM: 3, BinWidthCM: 0.5, MinPairCount: 1, Threads: 1}
	ext := DefaultExtentParams()
	ext.ForcedCM = 1.0
	det := NewDetector(view, base, ext)
	got, err := det.Detect(randWeights(view.NumSnps(), 12))
	if err != nil {
		t.Fatal(err)
	}
	if got != 1.0 {
		t.Fatalf("forced minimum distance must be used verbatim; got %g", got)
	}
}

func TestDetectExternalDefaultsToFloor(t *testing.T) {
	view := testView(t, 2, 30, 6, 13)
	base := Params{MaxDistCM: 3, BinWidthCM: 0.5, MinPairCount: 1, Threads: 1}
	ext := DefaultExtentParams()
	ext.External = true
	det := NewDetector(view, base, ext)
	got, err := det.Detect(randWeights(view.NumSnps(), 14))
	if err != nil {
		t.Fatal(err)
	}
	if got != ext.FloorCM {
		t.Fatalf("external weights default to %g cM, got %g", ext.FloorCM, got)
	}
}

func TestScanExtentInsignificantPairIsZeroFailure(t *testing.T) {
	// zero value bins are insignificant even though their SE is zero
	res := makeScanResult(0.5, []bool{false, false})
	got, err := scanExtent(res, DefaultExtentParams())
	if err != nil {
		t.Fatal(err)
	}
	if got != 1.0 {
		t.Fatalf("want 1.0 cM (second failure bin), got %g", got)
	}
}
