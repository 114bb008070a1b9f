// Command alder computes weighted-LD decay curves for an admixed
// population, fits exponential decay models to date admixture, and tests
// whether the signal is genuine across reference-population configurations.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/raulk/go-watchdog"
	"github.com/rs/xid"
	"go.dedis.ch/onet/v3/log"

	"alder/admix"
	"alder/genotype"
	"alder/report"
)

func main() {
	configPath := flag.String("config", "config.toml", "run configuration (toml)")
	flag.Parse()

	config := new(admix.Config)
	if _, err := toml.DecodeFile(*configPath, config); err != nil {
		log.Fatal("cannot read config:", err)
	}
	opt := config.Options()
	runtime.GOMAXPROCS(opt.Engine.Threads)

	if config.MemoryLimit > 0 {
		err, stopFn := watchdog.HeapDriven(config.MemoryLimit, 40, watchdog.NewAdaptivePolicy(0.5))
		if err != nil {
			log.Fatal(err)
		}
		defer stopFn()
	}

	runID := xid.New().String()
	start := time.Now()
	log.LLvl1("run", runID, "loading data")

	view, err := genotype.LoadDataset(config.GenoFile, config.SnpFile, config.IndFile,
		config.MixedPop, config.RefPops)
	if err != nil {
		log.Fatal(err)
	}

	var external []float64
	if config.WeightFile != "" {
		external, err = genotype.LoadWeights(config.WeightFile, view.NumSnps())
		if err != nil {
			log.Fatal(err)
		}
	}
	log.LLvl1(time.Now().Format(time.StampMilli), "time to process data:", time.Since(start))

	tester, err := admix.NewTester(view, external, opt)
	if err != nil {
		log.Fatal(err)
	}
	sum, err := tester.Run()
	if err != nil {
		log.Fatal(err)
	}
	log.LLvl1(time.Now().Format(time.StampMilli), "time to run fits:", time.Since(start))

	out := os.Stdout
	if sum.Main != nil {
		report.CurveTable(out, sum.Main)
		report.AsciiPlot(out, sum.Main.Result, sum.Main.FitStartCM)
		report.PrintFits(out, sum.Main)
	}
	for _, run := range sum.RefCurves {
		report.PrintFits(out, run)
	}
	for _, pre := range sum.PreTests {
		if pre.Curve != nil {
			report.PrintFits(out, pre.Curve)
		}
	}
	report.PrintSummary(out, sum)

	if config.RawOutPath != "" {
		if sum.Mode == admix.MultiRef {
			fmt.Fprintln(out, "WARNING: raw output is not written when testing with >= 3 ref pops")
		} else if sum.Main != nil {
			if err := report.WriteRaw(config.RawOutPath, runID, sum.Main, config.PrintJackknife); err != nil {
				log.Error(err)
			}
		}
	}
}
