package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/icustats/internal/analysis"
	"github.com/gyeh/icustats/internal/config"
	"github.com/gyeh/icustats/internal/db"
	"github.com/gyeh/icustats/internal/exitcode"
	"github.com/gyeh/icustats/internal/logging"
	"github.com/gyeh/icustats/internal/model"
	"github.com/gyeh/icustats/internal/parquetread"
)

var fromDB bool

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Run the full analysis pipeline",
	RunE:  runFit,
}

func init() {
	f := fitCmd.Flags()
	f.StringVar(&cfg.DailyFile, "daily", "", "Path to daily-records Parquet file")
	f.StringVar(&cfg.BaselineFile, "baseline", "", "Path to baseline Parquet file (optional)")
	f.BoolVar(&fromDB, "from-db", false, "Read the cohort from Postgres instead of Parquet files")
	f.BoolVar(&cfg.StoreResults, "store", false, "Persist weights and coefficients to Postgres")
	f.StringVar(&cfg.WeightingStrategy, "strategy", cfg.WeightingStrategy,
		fmt.Sprintf("Weighting strategy: %s or %s", config.StrategyBoosted, config.StrategyBalancing))
	f.Float64Var(&cfg.CounterfactualFluids, "counterfactual-fluids", cfg.CounterfactualFluids,
		"Exposure level for the counterfactual arm (default: population median)")
	rootCmd.AddCommand(fitCmd)
}

func runFit(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)
	ctx := context.Background()

	var daily []model.DailyRecord
	if fromDB {
		if err := cfg.Validate(); err != nil {
			log.Error().Err(err).Msg("config validation failed")
			os.Exit(exitcode.UsageError)
		}
		if cfg.DSN == "" {
			log.Error().Msg("--dsn or ICUSTATS_DB_URL is required with --from-db")
			os.Exit(exitcode.UsageError)
		}
	} else {
		if err := cfg.ValidateFiles(); err != nil {
			log.Error().Err(err).Msg("config validation failed")
			os.Exit(exitcode.UsageError)
		}
	}
	if cfg.StoreResults && cfg.DSN == "" {
		log.Error().Msg("--dsn or ICUSTATS_DB_URL is required with --store")
		os.Exit(exitcode.UsageError)
	}

	if fromDB {
		pool, err := db.NewPool(ctx, cfg.DSN)
		if err != nil {
			log.Error().Err(err).Msg("database connection failed")
			os.Exit(exitcode.DBConnError)
		}
		daily, err = db.LoadDaily(ctx, pool)
		pool.Close()
		if err != nil {
			log.Error().Err(err).Msg("loading cohort failed")
			os.Exit(exitcode.CohortError)
		}
	} else {
		var err error
		daily, err = parquetread.ReadDailyFile(cfg.DailyFile)
		if err != nil {
			log.Error().Err(err).Msg("reading daily records failed")
			os.Exit(exitcode.ValidationError)
		}
	}

	res, err := analysis.Run(ctx, log, &cfg, daily)
	if err != nil {
		if pe, ok := err.(*analysis.PipelineError); ok {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("analysis failed")
			switch pe.Phase {
			case "build":
				os.Exit(exitcode.CohortError)
			default:
				os.Exit(exitcode.FitError)
			}
		}
		log.Error().Err(err).Msg("analysis failed")
		os.Exit(exitcode.FitError)
	}

	printResults(res)

	if cfg.StoreResults {
		pool, err := db.NewPool(ctx, cfg.DSN)
		if err != nil {
			log.Error().Err(err).Msg("database connection failed")
			os.Exit(exitcode.DBConnError)
		}
		defer pool.Close()

		fits := make([]db.NamedFit, 0, len(res.Models)+2)
		for _, m := range allModels(res) {
			if m.Err == nil && m.Fit != nil {
				fits = append(fits, db.NamedFit{Name: m.Name, Fit: m.Fit})
			}
		}
		if err := db.StoreRun(ctx, pool, log, res.RunID, cfg.WeightingStrategy,
			cfg.EventTarget, res.Summary, res.Weights, fits); err != nil {
			log.Error().Err(err).Msg("storing results failed")
			os.Exit(exitcode.DBConnError)
		}
		fmt.Printf("Results stored under run %s\n", res.RunID)
	}

	if res.Summary.ModelsFailed > 0 {
		os.Exit(exitcode.PartialSuccess)
	}
	return nil
}

func allModels(res *analysis.Results) []analysis.ModelResult {
	out := append([]analysis.ModelResult{}, res.Models...)
	return append(out, res.FineGray, res.MSM)
}

func printResults(res *analysis.Results) {
	fmt.Println("=== icufit results ===")
	fmt.Printf("Run:        %s\n", res.RunID)
	fmt.Printf("Subjects:   %d (%d dropped)\n", res.Summary.Subjects, res.Summary.SubjectsDropped)
	fmt.Printf("Intervals:  %d\n", res.Summary.Intervals)
	fmt.Printf("Outcomes:   %d deaths, %d discharges\n", res.Summary.Deaths, res.Summary.Discharges)
	fmt.Printf("Weights:    min %.3f / mean %.3f / max %.3f\n",
		res.Summary.WeightMin, res.Summary.WeightMean, res.Summary.WeightMax)
	fmt.Println()

	for _, m := range allModels(res) {
		if m.Err != nil {
			fmt.Printf("%s: FAILED (%v)\n\n", m.Name, m.Err)
			continue
		}
		fmt.Printf("%s (events=%d, loglik=%.3f, iterations=%d):\n",
			m.Name, m.Fit.NEvents, m.Fit.LogLik, m.Fit.Iterations)
		fmt.Printf("  %-18s %10s %10s %10s %22s %10s\n",
			"term", "coef", "se", "HR", "95% CI", "p")
		for _, c := range m.Fit.Coefficients(0.95) {
			fmt.Printf("  %-18s %10.4f %10.4f %10.4f   [%8.4f, %8.4f] %10.2g\n",
				c.Name, c.Estimate, c.StdErr, c.HazardRatio, c.CILower, c.CIUpper, c.PValue)
		}
		fmt.Println()
	}

	if cf := res.Counterfactual; cf != nil && len(cf.Times) > 0 {
		last := len(cf.Times) - 1
		fmt.Printf("Counterfactual contrast at day %.0f:\n", cf.Times[last])
		fmt.Printf("  observed survival:        %.4f\n", cf.SurvivalObserved[last])
		fmt.Printf("  counterfactual survival:  %.4f\n", cf.SurvivalCounter[last])
		fmt.Printf("  attributable mortality:   %+.4f\n", cf.AttributableMortality[last])
	}
	fmt.Printf("\nCompleted in %.1fs\n", res.Summary.DurationTotal.Seconds())
}
