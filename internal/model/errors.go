package model

import "errors"

// Sentinel error kinds surfaced by the analysis pipeline. Callers match
// with errors.Is; estimators wrap these with diagnostic context.
var (
	// ErrMalformedCohort flags structural violations in the input records
	// (non-monotone days, conflicting outcome indicators).
	ErrMalformedCohort = errors.New("malformed cohort")

	// ErrNonConvergence flags an optimizer that exhausted its iteration
	// budget or hit a singular information matrix.
	ErrNonConvergence = errors.New("estimator did not converge")

	// ErrInsufficientEvents flags too few target events to fit stably.
	ErrInsufficientEvents = errors.New("insufficient events")

	// ErrBalanceNotAchieved flags a weighting strategy that could not meet
	// its covariate-balance criterion within its complexity bounds.
	ErrBalanceNotAchieved = errors.New("covariate balance not achieved")

	// ErrConfig flags invalid configuration values.
	ErrConfig = errors.New("invalid configuration")

	// ErrInvalidWeight flags a non-finite or negative weight.
	ErrInvalidWeight = errors.New("invalid weight")
)
