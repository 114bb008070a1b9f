// Package report renders the structured results of a run: curve tables,
// an ascii decay plot, fit and test summaries, and the raw-data dump. It
// only formats; every number it prints was produced by the core packages.
package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"

	"alder/admix"
	"alder/weightedld"
)

// CurveTable prints one line per bin: distance, weighted LD, pair count.
// Bins below the minimum pair count are marked but still shown.
func CurveTable(w io.Writer, run *admix.CurveRun) {
	fmt.Fprintf(w, "%s weighted LD curve (fit starts at %.2f cM)\n", run.Label, run.FitStartCM)
	fmt.Fprintf(w, "%10s %14s %12s\n", "d (cM)", "weighted LD", "# pairs")
	res := run.Result
	for b := 0; b < res.NumBins(); b++ {
		if res.Counts[b] == 0 {
			continue
		}
		v, ok := res.Value(b)
		mark := ""
		if !ok {
			mark = "  (below min pair count)"
		}
		fmt.Fprintf(w, "%10.3f %14.6g %12d%s\n", res.BinDistCM(b), v, res.Counts[b], mark)
	}
}

// AsciiPlot draws a coarse text rendering of the decay curve.
func AsciiPlot(w io.Writer, res *weightedld.Result, fitStartCM float64) {
	const rows, cols = 18, 70
	step := res.NumBins() / cols
	if step < 1 {
		step = 1
	}
	var ds, vs []float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for b := 0; b < res.NumBins(); b += step {
		v, ok := res.Value(b)
		if !ok {
			continue
		}
		ds = append(ds, res.BinDistCM(b))
		vs = append(vs, v)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if len(vs) == 0 || hi <= lo {
		fmt.Fprintln(w, "(no plottable bins)")
		return
	}
	grid := make([][]byte, rows)
	for r := range grid {
		grid[r] = []byte(strings.Repeat(" ", len(vs)))
	}
	for i, v := range vs {
		r := int(float64(rows-1) * (hi - v) / (hi - lo))
		grid[r][i] = '*'
	}
	fmt.Fprintf(w, "weighted LD vs distance (%.2f - %.2f cM, fit from %.2f cM)\n",
		ds[0], ds[len(ds)-1], fitStartCM)
	for _, row := range grid {
		fmt.Fprintf(w, "|%s\n", row)
	}
	fmt.Fprintf(w, "+%s\n", strings.Repeat("-", len(vs)))
}

// PrintFits prints every fit of a series, flagging the designated test fit.
func PrintFits(w io.Writer, run *admix.CurveRun) {
	for i, fit := range run.Series.Fits {
		tag := " "
		if i == run.Series.TestIndex {
			tag = ">"
		}
		if fit == nil {
			fmt.Fprintf(w, "%s fit %+d: no curve\n", tag, run.Series.Offsets[i])
			continue
		}
		fmt.Fprintf(w, "%s fit from %6.2f cM: amp %10.4g (z=%6.2f)  decay %8.2f gen (z=%6.2f)  affine %10.4g\n",
			tag, fit.StartDisCM, fit.Amp, fit.ZAmp(), fit.Decay, fit.ZDecay(), fit.Offset)
		if !fit.Jackknifed {
			fmt.Fprintf(w, "    (no jackknife standard errors: fewer than 2 replicates)\n")
		}
	}
}

// PrintTest prints one pairwise admixture test outcome.
func PrintTest(w io.Writer, t *admix.TestResult) {
	if t.Reason != "" {
		fmt.Fprintf(w, "test %s / %s: %s\n", t.Ref1, t.Ref2, t.Reason)
		return
	}
	verdict := "FAILURE"
	if t.Admixture {
		verdict = "SUCCESS"
	}
	fmt.Fprintf(w, "test of admixture in %s with refs %s, %s: %s\n", t.MixedPop, t.Ref1, t.Ref2, verdict)
	fmt.Fprintf(w, "  1-ref %s: min z = %.2f (p = %.3g)\n", t.Ref1, t.MinZ1, t.P1)
	fmt.Fprintf(w, "  1-ref %s: min z = %.2f (p = %.3g)\n", t.Ref2, t.MinZ2, t.P2)
	fmt.Fprintf(w, "  decay diff z: %s/2-ref %.2f, %s/2-ref %.2f, %s/%s %.2f; consistent: %v\n",
		t.Ref1, t.DiffZ1v2, t.Ref2, t.DiffZ2v2, t.Ref1, t.Ref2, t.DiffZ1v1, t.Consistent)
	fmt.Fprintf(w, "  significance threshold |z| > %.2f (multiple-hypothesis factor %.0f)\n",
		t.ZThresh, t.MultHypCorr)
}

// PrintSummary prints the run-level results.
func PrintSummary(w io.Writer, sum *admix.Summary) {
	fmt.Fprintln(w, "run mode:", sum.Mode)
	if sum.SkipReason != "" {
		fmt.Fprintln(w, sum.SkipReason)
		return
	}
	if sum.MixFrac != nil {
		fmt.Fprintf(w, "Mixture fraction %% lower bound (assuming admixture): %.1f +/- %.1f\n",
			100*sum.MixFrac.Alpha, 100*sum.MixFrac.AlphaSE)
	}
	if len(sum.PreTests) > 0 {
		fmt.Fprintln(w, "1-ref pre-test results:")
		for _, pre := range sum.PreTests {
			status := "YES"
			if !pre.Eligible {
				status = "NO "
			}
			note := fmt.Sprintf("(z = %.2f)", pre.MinZ)
			if pre.Reason != "" {
				note = "(" + pre.Reason + ")"
			}
			fmt.Fprintf(w, "%20s: %s %s\n", pre.Ref, status, note)
		}
	}
	for _, pair := range sum.Pairs {
		PrintTest(w, pair.Test)
	}
}

// WriteRaw dumps the curve bins verbatim, optionally followed by every
// chromosome-deleted jackknife replicate curve.
func WriteRaw(path, runID string, run *admix.CurveRun, jackknife bool) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "report: create raw output")
	}
	defer file.Close()
	w := bufio.NewWriter(file)

	fmt.Fprintf(w, "# run %s: %s\n", runID, run.Label)
	fmt.Fprintf(w, "# d(cM)\tweighted_LD\tnum_pairs\n")
	res := run.Result
	for b := 0; b < res.NumBins(); b++ {
		v, _ := res.Value(b)
		fmt.Fprintf(w, "%.4f\t%.8g\t%d\n", res.BinDistCM(b), v, res.Counts[b])
	}
	if jackknife {
		for _, bc := range res.UsableBlocks() {
			fmt.Fprintf(w, "# jackknife: chromosome %d removed\n", res.Blocks[bc].Chrom)
			for b := 0; b < res.NumBins(); b++ {
				v, ok := res.Replicate(bc, b)
				if !ok {
					continue
				}
				fmt.Fprintf(w, "%.4f\t%.8g\n", res.BinDistCM(b), v)
			}
		}
	}
	return errors.Wrap(w.Flush(), "report: flush raw output")
}
