// Package genotype holds the read-only genotype data a run operates on:
// per-population dosage matrices, SNP map positions with chromosome
// boundaries, and the allele-frequency vectors that weighting schemes are
// built from. All of it is immutable once a View is constructed.
package genotype

import (
	"github.com/pkg/errors"
)

// Missing marks an unobserved dosage. The weighted-LD statistic treats
// missing values as mean-imputed (zero after centering), so the naive and
// optimized accumulation paths stay exactly equivalent.
const Missing int8 = -1

// Snp is one marker: chromosome id and genetic map position in cM.
type Snp struct {
	Chrom int
	PosCM float64
}

// DosageMatrix stores per-individual allele dosages for one population,
// SNP-major so the accumulation loops walk individuals contiguously.
type DosageMatrix struct {
	NumInd int
	NumSnp int
	data   []int8
}

func NewDosageMatrix(numInd, numSnp int) *DosageMatrix {
	return &DosageMatrix{
		NumInd: numInd,
		NumSnp: numSnp,
		data:   make([]int8, numInd*numSnp),
	}
}

func (m *DosageMatrix) At(ind, snp int) int8 {
	return m.data[snp*m.NumInd+ind]
}

func (m *DosageMatrix) Set(ind, snp int, v int8) {
	m.data[snp*m.NumInd+ind] = v
}

// Row returns the dosages of all individuals at one SNP. The slice aliases
// the matrix storage and must not be mutated.
func (m *DosageMatrix) Row(snp int) []int8 {
	return m.data[snp*m.NumInd : (snp+1)*m.NumInd]
}

// Freq returns the allele frequency at a SNP over non-missing individuals.
// ok is false when every individual is missing.
func (m *DosageMatrix) Freq(snp int) (freq float64, ok bool) {
	sum, n := 0, 0
	for _, g := range m.Row(snp) {
		if g == Missing {
			continue
		}
		sum += int(g)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(2*n), true
}

// ChromBlock is the contiguous SNP index range [Lo, Hi) of one chromosome.
type ChromBlock struct {
	Chrom  int
	Lo, Hi int
}

// View is the read-only genotype access handed to every core component.
// It borrows the dosage matrices; nothing in the core mutates them.
type View struct {
	Snps      []Snp
	Mixed     *DosageMatrix
	MixedName string
	Refs      []*DosageMatrix
	RefNames  []string

	blocks   []ChromBlock
	refFreqs [][]float64
}

// NewView validates SNP ordering, derives chromosome boundaries and
// reference allele-frequency vectors, and freezes the result.
func NewView(snps []Snp, mixed *DosageMatrix, mixedName string, refs []*DosageMatrix, refNames []string) (*View, error) {
	if mixed == nil || mixed.NumSnp != len(snps) {
		return nil, errors.New("genotype: mixed population dosage matrix does not match SNP list")
	}
	if len(refs) != len(refNames) {
		return nil, errors.New("genotype: reference matrix and name counts differ")
	}
	for r, ref := range refs {
		if ref.NumSnp != len(snps) {
			return nil, errors.Errorf("genotype: reference %s dosage matrix does not match SNP list", refNames[r])
		}
	}

	var blocks []ChromBlock
	for s := 0; s < len(snps); s++ {
		if len(blocks) == 0 || snps[s].Chrom != blocks[len(blocks)-1].Chrom {
			for _, b := range blocks {
				if b.Chrom == snps[s].Chrom {
					return nil, errors.Errorf("genotype: chromosome %d appears in two separate runs of SNPs", snps[s].Chrom)
				}
			}
			blocks = append(blocks, ChromBlock{Chrom: snps[s].Chrom, Lo: s, Hi: s + 1})
			continue
		}
		b := &blocks[len(blocks)-1]
		if snps[s].PosCM < snps[s-1].PosCM {
			return nil, errors.Errorf("genotype: map position decreases at SNP %d on chromosome %d", s, b.Chrom)
		}
		b.Hi = s + 1
	}

	v := &View{
		Snps:      snps,
		Mixed:     mixed,
		MixedName: mixedName,
		Refs:      refs,
		RefNames:  refNames,
		blocks:    blocks,
		refFreqs:  make([][]float64, len(refs)),
	}
	for r, ref := range refs {
		fr := make([]float64, len(snps))
		for s := range snps {
			f, ok := ref.Freq(s)
			if !ok {
				return nil, errors.Errorf("genotype: reference %s has no data at SNP %d (filter upstream)", refNames[r], s)
			}
			fr[s] = f
		}
		v.refFreqs[r] = fr
	}
	return v, nil
}

func (v *View) NumSnps() int { return len(v.Snps) }

func (v *View) NumRefs() int { return len(v.Refs) }

// Chroms returns the chromosome blocks in SNP order.
func (v *View) Chroms() []ChromBlock { return v.blocks }

// RefFreq returns reference r's allele-frequency vector, one value per SNP.
func (v *View) RefFreq(r int) []float64 { return v.refFreqs[r] }

// MixedFreqs computes the mixed population's sample allele frequencies.
func (v *View) MixedFreqs() []float64 {
	fr := make([]float64, len(v.Snps))
	for s := range v.Snps {
		f, _ := v.Mixed.Freq(s)
		fr[s] = f
	}
	return fr
}

// OneRefWeights builds the single-reference weighting vector
// refFreq - mixedSampleFreq. The unbiased single-reference statistic needs
// at least 4 mixed individuals; fewer is a configuration error.
func (v *View) OneRefWeights(r int) ([]float64, error) {
	if v.Mixed.NumInd < 4 {
		return nil, errors.Errorf("genotype: single-reference weighted LD needs >= 4 mixed individuals, have %d", v.Mixed.NumInd)
	}
	mixed := v.MixedFreqs()
	w := make([]float64, len(v.Snps))
	for s := range w {
		w[s] = v.refFreqs[r][s] - mixed[s]
	}
	return w, nil
}

// TwoRefWeights builds the difference-of-references weighting vector.
func (v *View) TwoRefWeights(r1, r2 int) []float64 {
	w := make([]float64, len(v.Snps))
	for s := range w {
		w[s] = v.refFreqs[r1][s] - v.refFreqs[r2][s]
	}
	return w
}
