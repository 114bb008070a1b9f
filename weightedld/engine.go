package weightedld

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"alder/genotype"
)

// Params configures one weighted-LD computation.
type Params struct {
	MaxDistCM    float64
	BinWidthCM   float64
	MinPairCount int64
	Threads      int
	UseNaive     bool
}

// Result is a computed curve plus the count of chromosomes that contributed
// usable data. Downstream jackknife-dependent decisions gate on
// ChromsUsed >= 2.
type Result struct {
	Curve
	ChromsUsed int
}

// Engine accumulates the weighted-LD statistic over all same-chromosome SNP
// pairs within MaxDistCM. For a pair (x, y) the contribution to the bin
// matching their distance is w[x]*w[y]*cov(x, y), where cov is taken over
// the mixed population's centered dosages with missing values imputed to
// the SNP mean and a fixed denominator of the individual count. The naive
// and prefix-sum algorithms bin pairs identically and agree up to
// floating-point summation order.
type Engine struct {
	view  *genotype.View
	par   Params
	means []float64
}

func NewEngine(view *genotype.View, par Params) (*Engine, error) {
	if par.BinWidthCM <= 0 {
		return nil, errors.New("weightedld: bin width must be positive")
	}
	if par.MaxDistCM <= 0 {
		return nil, errors.New("weightedld: max distance must be positive")
	}
	if par.Threads < 1 {
		par.Threads = 1
	}
	means := make([]float64, view.NumSnps())
	for s := range means {
		sum, n := 0.0, 0
		for _, g := range view.Mixed.Row(s) {
			if g == genotype.Missing {
				continue
			}
			sum += float64(g)
			n++
		}
		if n > 0 {
			means[s] = sum / float64(n)
		}
	}
	return &Engine{view: view, par: par, means: means}, nil
}

// binIndex maps a pair distance to its bin, or -1 for zero-distance pairs,
// which are skipped. Both algorithms classify through this one function so
// their bin counts agree exactly.
func binIndex(d, width float64) int {
	if d <= 0 {
		return -1
	}
	return int(math.Ceil(d/width)) - 1
}

// Run computes the curve for one weighting vector.
func (e *Engine) Run(weights []float64) (*Result, error) {
	if len(weights) != e.view.NumSnps() {
		return nil, errors.Errorf("weightedld: weight vector has %d entries, expected %d", len(weights), e.view.NumSnps())
	}
	nbins := int(math.Ceil(e.par.MaxDistCM / e.par.BinWidthCM))
	chroms := e.view.Chroms()

	res := &Result{Curve: Curve{
		BinWidthCM:   e.par.BinWidthCM,
		MinPairCount: e.par.MinPairCount,
		Sums:         make([]float64, nbins),
		Counts:       make([]int64, nbins),
		Blocks:       make([]Block, len(chroms)),
	}}

	for ci, blk := range chroms {
		res.Blocks[ci] = e.runChrom(blk, weights, nbins)
		for b := 0; b < nbins; b++ {
			res.Sums[b] += res.Blocks[ci].Sums[b]
			res.Counts[b] += res.Blocks[ci].Counts[b]
		}
	}
	for ci := range res.Blocks {
		if res.Blocks[ci].TotalPairs() > 0 {
			res.ChromsUsed++
		}
	}
	return res, nil
}

type binAccum struct {
	sums   []float64
	counts []int64
}

// runChrom accumulates one chromosome's pairs across the worker pool.
// SNPs are dealt round-robin to per-worker job channels and each worker
// owns a private accumulator; partials are merged sequentially by worker
// index so results are reproducible for a given thread count.
func (e *Engine) runChrom(blk genotype.ChromBlock, weights []float64, nbins int) Block {
	nw := e.par.Threads
	if n := blk.Hi - blk.Lo; nw > n {
		nw = n
	}
	if nw < 1 {
		nw = 1
	}

	var prefix []float64
	if !e.par.UseNaive {
		prefix = e.buildPrefix(blk, weights)
	}

	jobChannels := make([]chan int, nw)
	for i := range jobChannels {
		jobChannels[i] = make(chan int, 64)
	}
	go func() {
		for x := blk.Lo; x < blk.Hi; x++ {
			jobChannels[(x-blk.Lo)%nw] <- x
		}
		for _, c := range jobChannels {
			close(c)
		}
	}()

	accums := make([]binAccum, nw)
	var workerGroup sync.WaitGroup
	for thread := 0; thread < nw; thread++ {
		accums[thread] = binAccum{
			sums:   make([]float64, nbins),
			counts: make([]int64, nbins),
		}
		workerGroup.Add(1)
		go func(thread int) {
			defer workerGroup.Done()
			acc := &accums[thread]
			cbuf := make([]float64, e.view.Mixed.NumInd)
			for x := range jobChannels[thread] {
				if e.par.UseNaive {
					e.pairSumsNaive(blk, x, weights, acc)
				} else {
					e.pairSumsPrefix(blk, x, weights, prefix, cbuf, acc)
				}
			}
		}(thread)
	}
	workerGroup.Wait()

	out := Block{
		Chrom:  blk.Chrom,
		Sums:   make([]float64, nbins),
		Counts: make([]int64, nbins),
	}
	for thread := 0; thread < nw; thread++ {
		for b := 0; b < nbins; b++ {
			out.Sums[b] += accums[thread].sums[b]
			out.Counts[b] += accums[thread].counts[b]
		}
	}
	return out
}

// pairSumsNaive evaluates every pair (x, y>x) within range directly.
func (e *Engine) pairSumsNaive(blk genotype.ChromBlock, x int, weights []float64, acc *binAccum) {
	snps := e.view.Snps
	mixed := e.view.Mixed
	nbins := len(acc.sums)
	nInd := float64(mixed.NumInd)
	rx := mixed.Row(x)
	mx := e.means[x]
	for y := x + 1; y < blk.Hi; y++ {
		b := binIndex(snps[y].PosCM-snps[x].PosCM, e.par.BinWidthCM)
		if b < 0 {
			continue
		}
		if b >= nbins {
			break
		}
		ry := mixed.Row(y)
		my := e.means[y]
		cov := 0.0
		for i := range rx {
			if rx[i] == genotype.Missing || ry[i] == genotype.Missing {
				continue
			}
			cov += (float64(rx[i]) - mx) * (float64(ry[i]) - my)
		}
		acc.sums[b] += weights[x] * weights[y] * cov / nInd
		acc.counts[b]++
	}
}

// buildPrefix returns, flattened per individual, prefix sums over the
// chromosome's SNP index of weight * centered dosage:
// prefix[k*nInd+i] = sum over t < k of weights[lo+t] * centered(i, lo+t).
func (e *Engine) buildPrefix(blk genotype.ChromBlock, weights []float64) []float64 {
	mixed := e.view.Mixed
	nInd := mixed.NumInd
	n := blk.Hi - blk.Lo
	prefix := make([]float64, (n+1)*nInd)
	for k := 0; k < n; k++ {
		s := blk.Lo + k
		row := mixed.Row(s)
		m := e.means[s]
		w := weights[s]
		src := prefix[k*nInd : (k+1)*nInd]
		dst := prefix[(k+1)*nInd : (k+2)*nInd]
		for i := 0; i < nInd; i++ {
			c := 0.0
			if row[i] != genotype.Missing {
				c = float64(row[i]) - m
			}
			dst[i] = src[i] + w*c
		}
	}
	return prefix
}

// pairSumsPrefix accumulates SNP x against whole bins at a time: the
// two-pointer walk partitions the in-range SNPs into per-bin segments and a
// segment's weighted covariance sum collapses to one prefix-sum difference
// per individual.
func (e *Engine) pairSumsPrefix(blk genotype.ChromBlock, x int, weights []float64, prefix []float64, cbuf []float64, acc *binAccum) {
	snps := e.view.Snps
	mixed := e.view.Mixed
	nbins := len(acc.sums)
	nInd := mixed.NumInd
	rx := mixed.Row(x)
	mx := e.means[x]
	for i := 0; i < nInd; i++ {
		if rx[i] == genotype.Missing {
			cbuf[i] = 0
		} else {
			cbuf[i] = float64(rx[i]) - mx
		}
	}

	y := x + 1
	for y < blk.Hi && binIndex(snps[y].PosCM-snps[x].PosCM, e.par.BinWidthCM) < 0 {
		y++
	}
	for y < blk.Hi {
		b := binIndex(snps[y].PosCM-snps[x].PosCM, e.par.BinWidthCM)
		if b >= nbins {
			break
		}
		segLo := y
		for y < blk.Hi && binIndex(snps[y].PosCM-snps[x].PosCM, e.par.BinWidthCM) == b {
			y++
		}
		lo := (segLo - blk.Lo) * nInd
		hi := (y - blk.Lo) * nInd
		dot := 0.0
		for i := 0; i < nInd; i++ {
			dot += cbuf[i] * (prefix[hi+i] - prefix[lo+i])
		}
		acc.sums[b] += weights[x] * dot / float64(nInd)
		acc.counts[b] += int64(y - segLo)
	}
}
