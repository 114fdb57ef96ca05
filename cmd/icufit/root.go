package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/icustats/internal/config"
)

var (
	cfg        = config.Default()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "icufit",
	Short: "Causal survival analysis for ICU fluid-balance cohorts",
	Long: "Builds counting-process cohorts from daily ICU records and estimates the " +
		"effect of cumulative fluid balance on mortality with weighted Cox and " +
		"Fine-Gray models.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			return cfg.LoadFromFile(configFile)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DSN, "dsn", os.Getenv("ICUSTATS_DB_URL"), "Postgres connection string (or set ICUSTATS_DB_URL)")
	pf.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&configFile, "config", "", "Path to YAML config file with estimator options")
}
