package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// StepFunction is a right-continuous step function over sorted Times;
// Values[i] applies on [Times[i], Times[i+1]).
type StepFunction struct {
	Times  []float64
	Values []float64
}

// At evaluates the step function at t. Before the first time it returns
// the function's initial value (0 for cumulative hazards, 1 for survival
// functions, supplied as init).
func (f StepFunction) At(t, init float64) float64 {
	i := sort.SearchFloat64s(f.Times, t)
	// SearchFloat64s returns the first index with Times[i] >= t; the step
	// at an exact event time is included (right continuity).
	if i < len(f.Times) && f.Times[i] == t {
		return f.Values[i]
	}
	if i == 0 {
		return init
	}
	return f.Values[i-1]
}

// Before evaluates the step function just before t (left limit).
func (f StepFunction) Before(t, init float64) float64 {
	i := sort.SearchFloat64s(f.Times, t)
	if i == 0 {
		return init
	}
	return f.Values[i-1]
}

// FittedModel is the result of one partial-likelihood fit. It is created
// once by the estimator that produced it and never mutated.
type FittedModel struct {
	Names []string
	Coef  []float64
	Cov   *mat.SymDense

	LogLik     float64
	Converged  bool
	Iterations int
	ScoreNorm  float64

	NRows   int
	NEvents int

	// Baseline is the cumulative baseline hazard (Breslow form) anchored
	// at covariate values Means, so hazards for a covariate row x scale by
	// exp((x - Means) . Coef).
	Baseline StepFunction
	Means    []float64
}

// StdErr returns the standard error of the i-th coefficient.
func (m *FittedModel) StdErr(i int) float64 {
	if m.Cov == nil {
		return math.NaN()
	}
	return math.Sqrt(m.Cov.At(i, i))
}

// LinearPredictor evaluates (x - Means) . Coef for one covariate row.
func (m *FittedModel) LinearPredictor(x []float64) float64 {
	var lp float64
	for j, b := range m.Coef {
		lp += b * (x[j] - m.Means[j])
	}
	return lp
}

// Coefficient is one row of a coefficient table: estimate, Wald inference,
// and the exponentiated scale consumers report on.
type Coefficient struct {
	Name        string
	Estimate    float64
	StdErr      float64
	HazardRatio float64
	CILower     float64
	CIUpper     float64
	PValue      float64
}

// Coefficients builds the coefficient table with two-sided Wald p-values
// and confidence intervals at the given level (e.g. 0.95).
func (m *FittedModel) Coefficients(level float64) []Coefficient {
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	z := norm.Quantile(1 - (1-level)/2)

	table := make([]Coefficient, len(m.Coef))
	for i, b := range m.Coef {
		se := m.StdErr(i)
		p := 2 * norm.CDF(-math.Abs(b/se))
		table[i] = Coefficient{
			Name:        m.Names[i],
			Estimate:    b,
			StdErr:      se,
			HazardRatio: math.Exp(b),
			CILower:     math.Exp(b - z*se),
			CIUpper:     math.Exp(b + z*se),
			PValue:      p,
		}
	}
	return table
}
