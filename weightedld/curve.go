// Package weightedld computes weighted linkage-disequilibrium decay curves
// over genetic distance, with per-chromosome jackknife blocks for variance
// estimation, and detects the extent of background LD correlation that
// contaminates the short-distance end of a curve.
package weightedld

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Block is one chromosome's additive contribution to every bin. Removing a
// block from the global sums yields one delete-one-chromosome jackknife
// replicate.
type Block struct {
	Chrom  int
	Sums   []float64
	Counts []int64
}

// TotalPairs reports how many SNP pairs the chromosome contributed overall.
func (b *Block) TotalPairs() int64 {
	var n int64
	for _, c := range b.Counts {
		n += c
	}
	return n
}

// Curve is a binned weighted-LD curve. Bin b covers genetic distances in
// (b*w, (b+1)*w] for bin width w; Sums and Counts are global accumulations
// and Blocks the per-chromosome decomposition (Sums[b] equals the sum of
// Blocks[*].Sums[b], likewise for Counts).
type Curve struct {
	BinWidthCM   float64
	MinPairCount int64
	Sums         []float64
	Counts       []int64
	Blocks       []Block
}

func (c *Curve) NumBins() int { return len(c.Sums) }

// BinDistCM is the representative distance of bin b, its right edge.
func (c *Curve) BinDistCM(b int) float64 {
	return float64(b+1) * c.BinWidthCM
}

// Value returns bin b's weighted-LD estimate. ok is false when the bin has
// fewer contributing pairs than the configured minimum; such bins are kept
// for display but excluded from fitting.
func (c *Curve) Value(b int) (v float64, ok bool) {
	if c.Counts[b] == 0 {
		return 0, false
	}
	return c.Sums[b] / float64(c.Counts[b]), c.Counts[b] >= c.MinPairCount
}

// Replicate returns bin b's value with chromosome block bc deleted.
func (c *Curve) Replicate(bc, b int) (v float64, ok bool) {
	n := c.Counts[b] - c.Blocks[bc].Counts[b]
	if n <= 0 {
		return 0, false
	}
	return (c.Sums[b] - c.Blocks[bc].Sums[b]) / float64(n), true
}

// UsableBlocks returns the indices of chromosome blocks that contributed at
// least one SNP pair; only these count as jackknife replicates.
func (c *Curve) UsableBlocks() []int {
	var use []int
	for i := range c.Blocks {
		if c.Blocks[i].TotalPairs() > 0 {
			use = append(use, i)
		}
	}
	return use
}

// BinSE returns the jackknife standard error of bin b. ok is false when
// fewer than two replicates cover the bin.
func (c *Curve) BinSE(b int) (se float64, ok bool) {
	var reps []float64
	for _, bc := range c.UsableBlocks() {
		if v, vok := c.Replicate(bc, b); vok {
			reps = append(reps, v)
		}
	}
	if len(reps) < 2 {
		return 0, false
	}
	_, se, _ = JackknifeMeanStd(reps)
	return se, true
}

// JackknifeMeanStd returns the delete-one-block jackknife mean and standard
// error of a set of replicate estimates: se = sqrt((n-1)/n * sum (x-mean)^2).
// ok is false when there are no replicates; a single replicate yields se 0.
func JackknifeMeanStd(reps []float64) (mean, se float64, ok bool) {
	n := len(reps)
	if n == 0 {
		return 0, 0, false
	}
	mean, _ = stats.Mean(reps)
	if n == 1 {
		return mean, 0, true
	}
	pv, _ := stats.PopulationVariance(reps)
	return mean, math.Sqrt(float64(n-1) * pv), true
}
