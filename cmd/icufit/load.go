package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/icustats/internal/db"
	"github.com/gyeh/icustats/internal/exitcode"
	"github.com/gyeh/icustats/internal/logging"
	"github.com/gyeh/icustats/internal/model"
	"github.com/gyeh/icustats/internal/normalize"
	"github.com/gyeh/icustats/internal/parquetread"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load Parquet cohort files into Postgres via COPY",
	RunE:  runLoad,
}

func init() {
	f := loadCmd.Flags()
	f.StringVar(&cfg.DailyFile, "daily", "", "Path to daily-records Parquet file (required)")
	f.StringVar(&cfg.BaselineFile, "baseline", "", "Path to baseline Parquet file (optional)")
	_ = loadCmd.MarkFlagRequired("daily")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat)
	ctx := context.Background()

	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	sha, err := normalize.FileHash(cfg.DailyFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash file")
		os.Exit(exitcode.ValidationError)
	}
	log.Info().Str("file", cfg.DailyFile).Str("sha256", sha).Msg("loading cohort")

	daily, err := parquetread.ReadDailyFile(cfg.DailyFile)
	if err != nil {
		log.Error().Err(err).Msg("reading daily records failed")
		os.Exit(exitcode.ValidationError)
	}

	var baseline []model.BaselineRecord
	if cfg.BaselineFile != "" {
		baseline, err = parquetread.ReadBaselineFile(cfg.BaselineFile)
		if err != nil {
			log.Error().Err(err).Msg("reading baseline records failed")
			os.Exit(exitcode.ValidationError)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	if err := db.ImportCohort(ctx, pool, daily, baseline); err != nil {
		log.Error().Err(err).Msg("import failed")
		os.Exit(exitcode.DBConnError)
	}

	fmt.Printf("Loaded %d daily rows and %d baseline rows\n", len(daily), len(baseline))
	return nil
}
