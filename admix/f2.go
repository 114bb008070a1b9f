package admix

import (
	"github.com/pkg/errors"

	"alder/genotype"
)

// F2Jacks computes delete-one-chromosome jackknife replicates of the f2
// population-differentiation statistic between reference r and the mixed
// population, one replicate per chromosome block (aligned with
// View.Chroms()). Each SNP contributes the unbiased estimator
// (p1-p2)^2 - p1(1-p1)/(2n1-1) - p2(1-p2)/(2n2-1).
func F2Jacks(view *genotype.View, r int) ([]float64, error) {
	blocks := view.Chroms()
	sums := make([]float64, len(blocks))
	counts := make([]float64, len(blocks))
	totalSum, totalCount := 0.0, 0.0

	for ci, blk := range blocks {
		for s := blk.Lo; s < blk.Hi; s++ {
			p1, n1 := freqAndCount(view.Refs[r], s)
			p2, n2 := freqAndCount(view.Mixed, s)
			if n1 < 1 || n2 < 1 {
				continue
			}
			f2 := (p1-p2)*(p1-p2) - p1*(1-p1)/float64(2*n1-1) - p2*(1-p2)/float64(2*n2-1)
			sums[ci] += f2
			counts[ci]++
		}
		totalSum += sums[ci]
		totalCount += counts[ci]
	}
	if totalCount == 0 {
		return nil, errors.Errorf("admix: no SNPs with data in both %s and %s", view.RefNames[r], view.MixedName)
	}

	jacks := make([]float64, len(blocks))
	for ci := range blocks {
		rest := totalCount - counts[ci]
		if rest == 0 {
			// single usable chromosome; the replicate degenerates to the mean
			jacks[ci] = totalSum / totalCount
			continue
		}
		jacks[ci] = (totalSum - sums[ci]) / rest
	}
	return jacks, nil
}

func freqAndCount(m *genotype.DosageMatrix, snp int) (float64, int) {
	sum, n := 0, 0
	for _, g := range m.Row(snp) {
		if g == genotype.Missing {
			continue
		}
		sum += int(g)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return float64(sum) / float64(2*n), n
}
