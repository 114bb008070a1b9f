package admix

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"alder/expfit"
	"alder/genotype"
	"alder/weightedld"
)

func randMatrix(nInd, nSnp int, rng *rand.Rand) *genotype.DosageMatrix {
	m := genotype.NewDosageMatrix(nInd, nSnp)
	for s := 0; s < nSnp; s++ {
		for i := 0; i < nInd; i++ {
			m.Set(i, s, int8(rng.Intn(3)))
		}
	}
	return m
}

func buildView(t *testing.T, nChrom, perChrom, nMixed int, refs []*genotype.DosageMatrix, refNames []string, seed int64) *genotype.View {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var snps []genotype.Snp
	for c := 1; c <= nChrom; c++ {
		pos := 0.0
		for s := 0; s < perChrom; s++ {
			pos += 0.05 + 0.1*rng.Float64()
			snps = append(snps, genotype.Snp{Chrom: c, PosCM: pos})
		}
	}
	mixed := randMatrix(nMixed, len(snps), rng)
	view, err := genotype.NewView(snps, mixed, "Mixed", refs, refNames)
	if err != nil {
		t.Fatal(err)
	}
	return view
}

func testOptions() Options {
	opt := DefaultOptions()
	opt.Engine.MaxDistCM = 3
	opt.Engine.BinWidthCM = 0.25
	opt.Engine.Threads = 2
	opt.Extent.ForcedCM = 0.5 // keep tests off the detection path
	return opt
}

func TestModeFor(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	mk := func(n int) []*genotype.DosageMatrix {
		var refs []*genotype.DosageMatrix
		for i := 0; i < n; i++ {
			refs = append(refs, randMatrix(3, 2*20, rng))
		}
		return refs
	}
	names := []string{"A", "B", "C"}

	view := buildView(t, 2, 20, 5, mk(1), names[:1], 2)
	if mode, err := ModeFor(view, nil); err != nil || mode != SingleRef {
		t.Fatalf("1 ref: want SingleRef, got %v %v", mode, err)
	}
	view = buildView(t, 2, 20, 5, mk(2), names[:2], 3)
	if mode, err := ModeFor(view, nil); err != nil || mode != PairedRef {
		t.Fatalf("2 refs: want PairedRef, got %v %v", mode, err)
	}
	if mode, err := ModeFor(view, make([]float64, view.NumSnps())); err != nil || mode != PairedRef {
		t.Fatalf("external weights: want PairedRef, got %v %v", mode, err)
	}
	view = buildView(t, 2, 20, 5, mk(3), names, 4)
	if mode, err := ModeFor(view, nil); err != nil || mode != MultiRef {
		t.Fatalf("3 refs: want MultiRef, got %v %v", mode, err)
	}
	view = buildView(t, 2, 20, 5, nil, nil, 5)
	if _, err := ModeFor(view, nil); err == nil {
		t.Fatal("no refs and no weights must be a configuration error")
	}
}

func TestMultHypCorr(t *testing.T) {
	cases := map[int]float64{0: 1, 1: 1, 2: 1, 3: 3, 4: 6, 5: 10}
	for k, want := range cases {
		if got := MultHypCorr(k); got != want {
			t.Fatalf("MultHypCorr(%d): want %g, got %g", k, want, got)
		}
	}
}

func TestAlphaBoundMonotoneInAmplitude(t *testing.T) {
	const f2 = 0.08
	prev := -1.0
	for amp := 0.0; amp <= 0.01; amp += 0.0002 {
		a := AlphaBound(amp, f2)
		if a < prev {
			t.Fatalf("bound decreased at amp %g: %g < %g", amp, a, prev)
		}
		if a < 0 || a > 0.5 {
			t.Fatalf("bound out of range at amp %g: %g", amp, a)
		}
		prev = a
	}
	if AlphaBound(-1, f2) != 0 {
		t.Fatal("negative amplitude bounds at 0")
	}
	if AlphaBound(0.01, 0) != 0 {
		t.Fatal("zero f2 bounds at 0")
	}
	if AlphaBound(1, f2) != 0.5 {
		t.Fatal("overlarge amplitude clamps to 0.5")
	}
}

func TestMixtureFractionBound(t *testing.T) {
	fit := &expfit.Fit{
		RepChroms: []int{0, 1, 2},
		RepAmps:   []float64{0.0010, 0.0012, 0.0009},
	}
	f2jacks := []float64{0.080, 0.090, 0.085}
	bound, ok := MixtureFractionBound(fit, f2jacks)
	if !ok {
		t.Fatal("expected a bound with 3 replicates")
	}
	var alphas []float64
	for i, bc := range fit.RepChroms {
		alphas = append(alphas, AlphaBound(fit.RepAmps[i], f2jacks[bc]))
	}
	mean, se, _ := weightedld.JackknifeMeanStd(alphas)
	if math.Abs(bound.Alpha-mean) > 1e-15 || math.Abs(bound.AlphaSE-se) > 1e-15 {
		t.Fatalf("bound does not match replicate propagation: %+v vs %g +/- %g", bound, mean, se)
	}

	short := &expfit.Fit{RepChroms: []int{0}, RepAmps: []float64{0.001}}
	if _, ok := MixtureFractionBound(short, f2jacks); ok {
		t.Fatal("fewer than 2 replicate pairs cannot bound")
	}
}

func TestF2JacksDeleteOneAlgebra(t *testing.T) {
	snps := []genotype.Snp{
		{Chrom: 1, PosCM: 0.1}, {Chrom: 1, PosCM: 0.9},
		{Chrom: 2, PosCM: 0.2}, {Chrom: 2, PosCM: 0.7},
	}
	mixed := genotype.NewDosageMatrix(2, 4)
	ref := genotype.NewDosageMatrix(2, 4)
	mixedDos := [][]int8{{0, 1}, {2, 2}, {1, 1}, {0, 2}}
	refDos := [][]int8{{2, 2}, {0, 1}, {2, 1}, {1, 1}}
	for s := 0; s < 4; s++ {
		for i := 0; i < 2; i++ {
			mixed.Set(i, s, mixedDos[s][i])
			ref.Set(i, s, refDos[s][i])
		}
	}
	view, err := genotype.NewView(snps, mixed, "Mixed", []*genotype.DosageMatrix{ref}, []string{"Ref"})
	if err != nil {
		t.Fatal(err)
	}
	jacks, err := F2Jacks(view, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(jacks) != 2 {
		t.Fatalf("want one replicate per chromosome, got %d", len(jacks))
	}

	f2 := func(s int) float64 {
		p1, _ := ref.Freq(s)
		p2, _ := mixed.Freq(s)
		return (p1-p2)*(p1-p2) - p1*(1-p1)/3 - p2*(1-p2)/3
	}
	// deleting chromosome 1 leaves chromosome 2's SNPs and vice versa
	want0 := (f2(2) + f2(3)) / 2
	want1 := (f2(0) + f2(1)) / 2
	if math.Abs(jacks[0]-want0) > 1e-12 || math.Abs(jacks[1]-want1) > 1e-12 {
		t.Fatalf("delete-one means wrong: got %v, want %g %g", jacks, want0, want1)
	}
}

func TestEligiblePairsSelection(t *testing.T) {
	pre := []*PreTest{{Eligible: true}, {Eligible: false}, {Eligible: true}}
	pairs := eligiblePairs(pre)
	if len(pairs) != 1 || pairs[0] != [2]int{0, 2} {
		t.Fatalf("one failed pre-test among 3 refs must leave exactly one pair, got %v", pairs)
	}
	for _, p := range pre {
		p.Eligible = true
	}
	if got := len(eligiblePairs(pre)); got != 3 {
		t.Fatalf("3 eligible refs give 3 pairs, got %d", got)
	}
	pre[0].Eligible, pre[1].Eligible, pre[2].Eligible = false, false, false
	if got := len(eligiblePairs(pre)); got != 0 {
		t.Fatalf("no eligible refs give no pairs, got %d", got)
	}
}

func TestSingleRefNeedsFourIndividuals(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	refs := []*genotype.DosageMatrix{randMatrix(4, 2*30, rng)}
	view := buildView(t, 2, 30, 3, refs, []string{"Ref"}, 7)
	tester, err := NewTester(view, nil, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tester.Run(); err == nil || !strings.Contains(err.Error(), ">= 4") {
		t.Fatalf("3 mixed individuals must fail before any curve is computed, got %v", err)
	}
}

func TestIdenticalReferencesCannotFit(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	shared := randMatrix(5, 4*40, rng)
	view := buildView(t, 4, 40, 6, []*genotype.DosageMatrix{shared, shared}, []string{"A", "B"}, 9)

	tester, err := NewTester(view, nil, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	sum, err := tester.Run()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Mode != PairedRef || len(sum.Pairs) != 1 {
		t.Fatalf("expected one paired outcome, got %+v", sum)
	}
	test := sum.Pairs[0].Test
	if test.Admixture {
		t.Fatal("identical references cannot show admixture")
	}
	if test.Reason != "no 2-ref curve" {
		t.Fatalf("zero weighting vector must yield no 2-ref curve, got %q", test.Reason)
	}
}

func TestMultiRefSkipsZeroWeightReference(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	nSnp := 4 * 40
	refA := randMatrix(5, nSnp, rng)
	refB := randMatrix(5, nSnp, rng)
	view := buildView(t, 4, 40, 6, []*genotype.DosageMatrix{refA, refB, view0Mixed(t)}, []string{"A", "B", "SameAsMixed"}, 11)

	tester, err := NewTester(view, nil, testOptions())
	if err != nil {
		t.Fatal(err)
	}
	sum, err := tester.Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.PreTests) != 3 {
		t.Fatalf("want 3 pre-tests, got %d", len(sum.PreTests))
	}
	if sum.PreTests[2].Eligible {
		t.Fatal("a reference indistinguishable from the mixed population has no 1-ref curve")
	}
	if sum.PreTests[2].Reason != "no 1-ref curve" {
		t.Fatalf("unexpected pre-test reason %q", sum.PreTests[2].Reason)
	}
	eligible := 0
	for _, pre := range sum.PreTests {
		if pre.Eligible {
			eligible++
		}
	}
	if want := len(eligiblePairs(sum.PreTests)); len(sum.Pairs) != want {
		t.Fatalf("pairwise tests (%d) must match surviving pairs (%d)", len(sum.Pairs), want)
	}
	if sum.MultHypCorr != MultHypCorr(eligible) {
		t.Fatalf("correction factor %g does not match %d eligible refs", sum.MultHypCorr, eligible)
	}
}

// view0Mixed returns a matrix identical to the mixed matrix built by
// buildView with seed 11, so the reference's weights are exactly zero.
func view0Mixed(t *testing.T) *genotype.DosageMatrix {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	// skip the position draws buildView makes before the mixed matrix
	for i := 0; i < 4*40; i++ {
		rng.Float64()
	}
	return randMatrix(6, 4*40, rng)
}
