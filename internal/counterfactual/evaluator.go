package counterfactual

import (
	"fmt"
	"math"
	"sort"

	"github.com/gyeh/icustats/internal/model"
)

// Assignment rewrites one interval's covariates for the counterfactual arm.
// It must return a modified copy and leave the input untouched.
type Assignment func(iv model.Interval) model.Interval

// Observed is the identity assignment: the exposure trajectory each subject
// actually had.
func Observed() Assignment {
	return func(iv model.Interval) model.Interval { return iv }
}

// FixedFluids holds the cumulative fluid balance at a constant level on
// every interval of every subject.
func FixedFluids(level float64) Assignment {
	return func(iv model.Interval) model.Interval {
		iv.Fluids = level
		return iv
	}
}

// MedianFluids fixes the exposure at the population median over intervals.
func MedianFluids(ivs []model.Interval) Assignment {
	vals := make([]float64, len(ivs))
	for i := range ivs {
		vals[i] = ivs[i].Fluids
	}
	sort.Float64s(vals)
	var med float64
	if n := len(vals); n > 0 {
		if n%2 == 1 {
			med = vals[n/2]
		} else {
			med = (vals[n/2-1] + vals[n/2]) / 2
		}
	}
	return FixedFluids(med)
}

// Result holds the observed and counterfactual survival step functions on
// the fitted model's event-time grid, and the attributable-mortality curve
// observed_mortality(t) - counterfactual_mortality(t).
type Result struct {
	Times                 []float64
	SurvivalObserved      []float64
	SurvivalCounter       []float64
	AttributableMortality []float64
}

// Evaluate computes marginal survival under the observed exposure
// trajectory and under the counterfactual assignment, scaling the fitted
// model's baseline cumulative hazard by each subject's linear predictor and
// averaging individual survival over subjects. The MSM weights baked into
// the fitted model are reused unchanged for the counterfactual arm; no
// re-weighting under the counterfactual exposure is attempted.
func Evaluate(fit *model.FittedModel, ivs []model.Interval, spec model.CovariateSpec[model.Interval], assign Assignment) (*Result, error) {
	if fit == nil || len(fit.Baseline.Times) == 0 {
		return nil, fmt.Errorf("%w: fitted model has no baseline hazard", model.ErrConfig)
	}
	if len(ivs) == 0 {
		return nil, fmt.Errorf("%w: no intervals to evaluate", model.ErrMalformedCohort)
	}

	grid := fit.Baseline.Times
	dH := make([]float64, len(grid))
	prev := 0.0
	for j, v := range fit.Baseline.Values {
		dH[j] = v - prev
		prev = v
	}

	// Per-subject cumulative hazards under both covariate trajectories.
	nGrid := len(grid)
	sumObs := make([]float64, nGrid)
	sumCf := make([]float64, nGrid)
	var nSubjects int

	for lo := 0; lo < len(ivs); {
		hi := lo
		for hi < len(ivs) && ivs[hi].Pt == ivs[lo].Pt {
			hi++
		}
		subj := ivs[lo:hi]
		nSubjects++

		var hObs, hCf float64
		k := 0
		for j, t := range grid {
			// Advance to the interval covering t, carrying the final
			// interval's covariates past the end of observed follow-up.
			for k < len(subj)-1 && t > subj[k].Stop {
				k++
			}
			obs := subj[k]
			cf := assign(subj[k])
			hObs += dH[j] * math.Exp(fit.LinearPredictor(spec.Row(&obs, nil)))
			hCf += dH[j] * math.Exp(fit.LinearPredictor(spec.Row(&cf, nil)))
			sumObs[j] += math.Exp(-hObs)
			sumCf[j] += math.Exp(-hCf)
		}
		lo = hi
	}

	res := &Result{
		Times:                 append([]float64(nil), grid...),
		SurvivalObserved:      make([]float64, nGrid),
		SurvivalCounter:       make([]float64, nGrid),
		AttributableMortality: make([]float64, nGrid),
	}
	for j := 0; j < nGrid; j++ {
		so := sumObs[j] / float64(nSubjects)
		sc := sumCf[j] / float64(nSubjects)
		res.SurvivalObserved[j] = so
		res.SurvivalCounter[j] = sc
		// (1 - so) - (1 - sc)
		res.AttributableMortality[j] = sc - so
	}
	return res, nil
}
