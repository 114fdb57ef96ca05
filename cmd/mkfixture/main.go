// mkfixture generates a synthetic cohort fixture: a daily-records Parquet
// file plus the matching baseline file. Severity drives both the fluid
// balance and the hazard of death, so the fixture carries the confounding
// structure the weighting estimators are meant to remove.
// Usage: go run ./cmd/mkfixture --daily testdata/daily.parquet --baseline testdata/baseline.parquet --subjects 500
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"

	goparquet "github.com/parquet-go/parquet-go"

	"github.com/gyeh/icustats/internal/model"
)

func main() {
	dailyOut := flag.String("daily", "testdata/daily.parquet", "output daily-records parquet")
	baselineOut := flag.String("baseline", "testdata/baseline.parquet", "output baseline parquet")
	subjects := flag.Int("subjects", 500, "number of subjects")
	seed := flag.Int64("seed", 1, "random seed")
	missingRate := flag.Float64("missing", 0.05, "fraction of daily covariate values left missing")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	var daily []model.DailyRow
	var baseline []model.BaselineRow
	var deaths, discharges int

	for i := 0; i < *subjects; i++ {
		pt := int64(i + 1)
		sev := 6 + 2*rng.NormFloat64()
		stay := 2 + rng.Intn(8)
		dies := rng.Float64() < logistic(0.8*(sev-7))
		if dies {
			deaths++
		} else {
			discharges++
		}

		var balance, sum float64
		for d := 1; d <= stay; d++ {
			balance += 0.6*sev/float64(stay) + 0.4*rng.NormFloat64()
			sum += balance

			row := model.DailyRow{Pt: pt, Day: int32(d)}
			if rng.Float64() >= *missingRate {
				fl := balance
				row.Fluids = &fl
			}
			if rng.Float64() >= *missingRate {
				sv := sev
				row.Severity = &sv
			}
			death := flag32(dies && d == stay)
			discharge := flag32(!dies && d == stay)
			row.Death = &death
			row.Discharge = &discharge
			daily = append(daily, row)
		}

		mort := flag32(dies)
		baseline = append(baseline, model.BaselineRow{
			Pt:               pt,
			FluidsCumulative: balance,
			FluidsMean:       sum / float64(stay),
			SeverityBaseline: sev,
			MortNinetyDays:   &mort,
		})
	}

	writeParquet(*dailyOut, daily)
	writeParquet(*baselineOut, baseline)

	fmt.Printf("Wrote %d daily rows for %d subjects (%d deaths, %d discharges)\n",
		len(daily), *subjects, deaths, discharges)
	fmt.Printf("  daily:    %s\n", *dailyOut)
	fmt.Printf("  baseline: %s\n", *baselineOut)
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func writeParquet[T any](path string, rows []T) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", path, err)
		os.Exit(1)
	}
	w := goparquet.NewGenericWriter[T](f)
	if _, err := w.Write(rows); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := w.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close writer: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close %s: %v\n", path, err)
		os.Exit(1)
	}
}

func flag32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
