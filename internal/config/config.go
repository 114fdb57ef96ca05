package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gyeh/icustats/internal/model"
)

// Strategy names accepted for the weighting estimator.
const (
	StrategyBoosted   = "boosted"
	StrategyBalancing = "balancing"
)

// Config holds all runtime configuration for an icufit run.
type Config struct {
	DSN          string
	DailyFile    string
	BaselineFile string
	LogFormat    string // "text" or "json"
	StoreResults bool

	// Estimator options. These are the recognized analysis knobs; the YAML
	// config file may override any of them.
	EventTarget       int     `yaml:"event_target"`
	TieMethod         string  `yaml:"tie_method"`
	TruncLo           float64 `yaml:"truncation_lo"`
	TruncHi           float64 `yaml:"truncation_hi"`
	Tolerance         float64 `yaml:"convergence_tolerance"`
	MaxIterations     int     `yaml:"max_iterations"`
	WeightingStrategy string  `yaml:"weighting_strategy"`
	BalanceThreshold  float64 `yaml:"balance_threshold"`

	// CounterfactualFluids is the exposure level held fixed in the
	// counterfactual arm. NaN means "use the population median".
	CounterfactualFluids float64 `yaml:"counterfactual_fluids"`
}

// Default returns a Config populated with the documented defaults.
func Default() Config {
	return Config{
		LogFormat:            "text",
		EventTarget:          int(model.Death),
		TieMethod:            "efron",
		TruncLo:              0.01,
		TruncHi:              0.99,
		Tolerance:            1e-9,
		MaxIterations:        25,
		WeightingStrategy:    StrategyBoosted,
		BalanceThreshold:     0.1,
		CounterfactualFluids: math.NaN(),
	}
}

// LoadFromFile reads a YAML config file and merges its values into Config.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate checks the estimator options and returns model.ErrConfig for
// anything out of range.
func (c *Config) Validate() error {
	if c.EventTarget != int(model.Death) && c.EventTarget != int(model.Discharge) {
		return fmt.Errorf("%w: event_target must be %d (death) or %d (discharge), got %d",
			model.ErrConfig, model.Death, model.Discharge, c.EventTarget)
	}
	if c.TieMethod != "efron" {
		return fmt.Errorf("%w: unsupported tie_method %q (only efron)", model.ErrConfig, c.TieMethod)
	}
	if !(c.TruncLo > 0 && c.TruncHi < 1 && c.TruncLo < c.TruncHi) {
		return fmt.Errorf("%w: truncation quantiles (%g, %g) must satisfy 0 < lo < hi < 1",
			model.ErrConfig, c.TruncLo, c.TruncHi)
	}
	if !(c.Tolerance > 0) {
		return fmt.Errorf("%w: convergence_tolerance must be positive, got %g", model.ErrConfig, c.Tolerance)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be at least 1, got %d", model.ErrConfig, c.MaxIterations)
	}
	switch c.WeightingStrategy {
	case StrategyBoosted, StrategyBalancing:
	default:
		return fmt.Errorf("%w: unknown weighting_strategy %q", model.ErrConfig, c.WeightingStrategy)
	}
	if !(c.BalanceThreshold > 0) {
		return fmt.Errorf("%w: balance_threshold must be positive, got %g", model.ErrConfig, c.BalanceThreshold)
	}
	return nil
}

// ValidateFiles additionally checks that the input files are readable.
func (c *Config) ValidateFiles() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DailyFile == "" {
		return fmt.Errorf("%w: --daily is required", model.ErrConfig)
	}
	if _, err := os.Stat(c.DailyFile); err != nil {
		return fmt.Errorf("daily file not accessible: %w", err)
	}
	if c.BaselineFile != "" {
		if _, err := os.Stat(c.BaselineFile); err != nil {
			return fmt.Errorf("baseline file not accessible: %w", err)
		}
	}
	return nil
}

// ValidateWithDSN checks files plus the database connection string.
func (c *Config) ValidateWithDSN() error {
	if err := c.ValidateFiles(); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("%w: --dsn or ICUSTATS_DB_URL is required", model.ErrConfig)
	}
	return nil
}
