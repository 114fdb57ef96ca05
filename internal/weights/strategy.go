package weights

import (
	"fmt"

	"github.com/gyeh/icustats/internal/model"
)

// Estimator produces one stabilized balancing weight per interval for a
// continuous, time-varying exposure. Implementations require the exposure
// and history covariates to be complete on every interval; gaps must be
// resolved upstream by an imputation policy.
type Estimator interface {
	Name() string
	Estimate(ivs []model.Interval) ([]model.WeightRecord, error)
}

// Options configure a weighting strategy: which covariate is the exposure,
// which covariates form the history it is confounded by, and how strict the
// balance criterion is.
type Options struct {
	Exposure model.Covariate[model.Interval]
	History  model.CovariateSpec[model.Interval]

	// BalanceThreshold is the largest acceptable absolute weighted
	// correlation between exposure and any history covariate.
	BalanceThreshold float64
}

func (o Options) withDefaults() Options {
	if o.BalanceThreshold <= 0 {
		o.BalanceThreshold = 0.1
	}
	if o.Exposure.Value == nil {
		o.Exposure = model.IntervalFluids
	}
	if len(o.History) == 0 {
		o.History = model.CovariateSpec[model.Interval]{model.IntervalSeverity}
	}
	return o
}

// StrategyInfo names one registered weighting strategy.
type StrategyInfo struct {
	Name        string
	Description string
	New         func(Options) Estimator
}

// AllStrategies lists the interchangeable weighting strategies in canonical
// order.
var AllStrategies = []StrategyInfo{
	{
		Name:        "boosted",
		Description: "boosted density-ratio weights (stump ensemble, Gaussian densities)",
		New:         func(o Options) Estimator { return NewBoosted(o) },
	},
	{
		Name:        "balancing",
		Description: "non-parametric covariate-balancing weights (entropy dual)",
		New:         func(o Options) Estimator { return NewBalancing(o) },
	},
}

// New returns the estimator registered under name.
func New(name string, opts Options) (Estimator, error) {
	for _, s := range AllStrategies {
		if s.Name == name {
			return s.New(opts), nil
		}
	}
	return nil, fmt.Errorf("%w: unknown weighting strategy %q", model.ErrConfig, name)
}
