package genotype

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.dedis.ch/onet/v3/log"
)

// LoadDataset reads an EIGENSTRAT-style triplet (geno/snp/ind) and splits
// the individuals into the mixed population and the requested reference
// populations. Individuals belonging to no listed population are dropped.
func LoadDataset(genoPath, snpPath, indPath, mixedPop string, refPops []string) (*View, error) {
	snps, err := loadSnps(snpPath)
	if err != nil {
		return nil, err
	}
	pops, err := loadInds(indPath)
	if err != nil {
		return nil, err
	}

	popIndex := make(map[string]int, len(refPops)+1)
	popIndex[mixedPop] = 0
	for r, p := range refPops {
		if _, dup := popIndex[p]; dup {
			return nil, errors.Errorf("genotype: population %s listed twice", p)
		}
		popIndex[p] = r + 1
	}

	counts := make([]int, len(refPops)+1)
	slot := make([]int, len(pops)) // per individual: population slot, or -1
	for i, p := range pops {
		if idx, ok := popIndex[p]; ok {
			slot[i] = idx
			counts[idx]++
		} else {
			slot[i] = -1
		}
	}
	if counts[0] == 0 {
		return nil, errors.Errorf("genotype: no individuals found for mixed population %s", mixedPop)
	}

	mixed := NewDosageMatrix(counts[0], len(snps))
	refs := make([]*DosageMatrix, len(refPops))
	for r := range refs {
		refs[r] = NewDosageMatrix(counts[r+1], len(snps))
		if counts[r+1] == 0 {
			log.LLvl1("no genotyped individuals for reference", refPops[r])
		}
	}

	file, err := os.Open(genoPath)
	if err != nil {
		return nil, errors.Wrap(err, "genotype: open geno file")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	snp := 0
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) != len(pops) {
			return nil, errors.Errorf("genotype: geno line %d has %d entries, expected %d", snp+1, len(line), len(pops))
		}
		if snp >= len(snps) {
			return nil, errors.Errorf("genotype: geno file has more lines than SNPs (%d)", len(snps))
		}
		fill := make([]int, len(counts))
		for i := 0; i < len(line); i++ {
			if slot[i] < 0 {
				continue
			}
			var g int8
			switch line[i] {
			case '0', '1', '2':
				g = int8(line[i] - '0')
			case '9':
				g = Missing
			default:
				return nil, errors.Errorf("genotype: bad dosage %q at geno line %d", line[i], snp+1)
			}
			if slot[i] == 0 {
				mixed.Set(fill[0], snp, g)
			} else {
				refs[slot[i]-1].Set(fill[slot[i]], snp, g)
			}
			fill[slot[i]]++
		}
		snp++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "genotype: read geno file")
	}
	if snp != len(snps) {
		return nil, errors.Errorf("genotype: geno file has %d lines, expected %d SNPs", snp, len(snps))
	}

	return NewView(snps, mixed, mixedPop, refs, refPops)
}

// LoadWeights reads an external per-SNP weight file: one value per line,
// optionally preceded by a SNP name, aligned with the SNP ordering.
func LoadWeights(path string, numSnps int) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "genotype: open weight file")
	}
	defer file.Close()

	weights := make([]float64, 0, numSnps)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		w, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "genotype: weight line %d", len(weights)+1)
		}
		weights = append(weights, w)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "genotype: read weight file")
	}
	if len(weights) != numSnps {
		return nil, errors.Errorf("genotype: weight file has %d entries, expected %d", len(weights), numSnps)
	}
	return weights, nil
}

// snp file: name chrom genpos(Morgans) [physpos]. Positions are stored in cM.
func loadSnps(path string) ([]Snp, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "genotype: open snp file")
	}
	defer file.Close()

	var snps []Snp
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, errors.Errorf("genotype: snp line %d has %d fields, need name/chrom/genpos", len(snps)+1, len(fields))
		}
		chrom, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "genotype: snp line %d chromosome", len(snps)+1)
		}
		gpos, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "genotype: snp line %d genetic position", len(snps)+1)
		}
		snps = append(snps, Snp{Chrom: chrom, PosCM: gpos * 100})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "genotype: read snp file")
	}
	return snps, nil
}

// ind file: name gender population. Only the population column drives the
// split; individual names are not used downstream.
func loadInds(path string) (pops []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "genotype: open ind file")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, errors.Errorf("genotype: ind line %d has %d fields, need name/gender/population", len(pops)+1, len(fields))
		}
		pops = append(pops, fields[2])
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "genotype: read ind file")
	}
	return pops, nil
}
