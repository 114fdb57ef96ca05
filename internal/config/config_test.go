package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gyeh/icustats/internal/model"
)

func TestDefault_Valid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if c.EventTarget != int(model.Death) {
		t.Errorf("default event target = %d, want death", c.EventTarget)
	}
	if !math.IsNaN(c.CounterfactualFluids) {
		t.Errorf("default counterfactual exposure should be NaN (population median)")
	}
}

func TestLoadFromFile_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("weighting_strategy: balancing\nmax_iterations: 50\ntruncation_hi: 0.95\n"), 0644)

	c := Default()
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.WeightingStrategy != StrategyBalancing {
		t.Errorf("weighting_strategy = %q, want balancing", c.WeightingStrategy)
	}
	if c.MaxIterations != 50 {
		t.Errorf("max_iterations = %d, want 50", c.MaxIterations)
	}
	if c.TruncHi != 0.95 {
		t.Errorf("truncation_hi = %g, want 0.95", c.TruncHi)
	}
	// Untouched fields keep their defaults.
	if c.Tolerance != 1e-9 {
		t.Errorf("tolerance = %g, want default 1e-9", c.Tolerance)
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	c := Default()
	if err := c.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad event target", func(c *Config) { c.EventTarget = 7 }},
		{"breslow ties", func(c *Config) { c.TieMethod = "breslow" }},
		{"equal quantiles", func(c *Config) { c.TruncLo, c.TruncHi = 0.5, 0.5 }},
		{"inverted quantiles", func(c *Config) { c.TruncLo, c.TruncHi = 0.9, 0.1 }},
		{"quantile at one", func(c *Config) { c.TruncHi = 1.0 }},
		{"zero tolerance", func(c *Config) { c.Tolerance = 0 }},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"unknown strategy", func(c *Config) { c.WeightingStrategy = "matching" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, model.ErrConfig) {
				t.Errorf("error should wrap ErrConfig, got %v", err)
			}
		})
	}
}
