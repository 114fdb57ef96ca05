package survival

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/gyeh/icustats/internal/model"
)

// xspec is a one-covariate spec over intervals used throughout the tests.
var xspec = model.CovariateSpec[model.Interval]{model.IntervalFluids}

func row(start, stop float64, event bool, x float64) Row {
	return Row{Start: start, Stop: stop, Event: event, Weight: 1, X: []float64{x}}
}

// TestFit_ClosedForm checks the estimate against a dataset small enough to
// maximize the partial likelihood by hand:
//
//	l(b) = b - log(2e^b + 1) - log(e^b + 1)
//
// whose maximum is at b = -log(2)/2.
func TestFit_ClosedForm(t *testing.T) {
	rows := []Row{
		row(0, 1, true, 1),
		row(0, 2, true, 0),
		row(0, 3, false, 1),
	}
	fit, err := Fit(rows, []string{"x"}, Options{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	want := -0.5 * math.Log(2)
	if math.Abs(fit.Coef[0]-want) > 1e-8 {
		t.Errorf("coef = %.10f, want %.10f", fit.Coef[0], want)
	}
	if !fit.Converged {
		t.Error("fit should be flagged converged")
	}
	if fit.NEvents != 2 {
		t.Errorf("NEvents = %d, want 2", fit.NEvents)
	}
}

// TestFit_EfronTies checks the Efron approximation on tied event times:
// two deaths tied at t=1 (x=1 and x=0) with one censored row (x=1) give
//
//	l(b) = b - log(2e^b + 1) - log(1.5e^b + 0.5)
//
// maximized at b = -log(6)/2.
func TestFit_EfronTies(t *testing.T) {
	rows := []Row{
		row(0, 1, true, 1),
		row(0, 1, true, 0),
		row(0, 2, false, 1),
	}
	fit, err := Fit(rows, []string{"x"}, Options{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	want := -0.5 * math.Log(6)
	if math.Abs(fit.Coef[0]-want) > 1e-8 {
		t.Errorf("coef = %.10f, want %.10f (Efron ties)", fit.Coef[0], want)
	}
}

// TestFit_UnitWeightsMatchUnweighted: the weighted estimator with all
// weights 1 must reproduce the unweighted coefficients.
func TestFit_UnitWeightsMatchUnweighted(t *testing.T) {
	ivs := []model.Interval{
		{Pt: 1, Start: 0, Stop: 1, Event: model.Death, Fluids: 2.5},
		{Pt: 2, Start: 0, Stop: 2, Event: model.Death, Fluids: 0.5},
		{Pt: 3, Start: 0, Stop: 3, Event: model.Censored, Fluids: 1.5},
		{Pt: 4, Start: 0, Stop: 4, Event: model.Death, Fluids: 3.0},
	}
	unweighted, err := Fit(IntervalRows(ivs, xspec, model.Death, nil), xspec.Names(), Options{})
	if err != nil {
		t.Fatalf("unweighted: %v", err)
	}
	ones := []float64{1, 1, 1, 1}
	weighted, err := Fit(IntervalRows(ivs, xspec, model.Death, ones), xspec.Names(), Options{})
	if err != nil {
		t.Fatalf("weighted: %v", err)
	}
	if math.Abs(unweighted.Coef[0]-weighted.Coef[0]) > 1e-10 {
		t.Errorf("unit-weight coef %.12f differs from unweighted %.12f",
			weighted.Coef[0], unweighted.Coef[0])
	}
}

// TestFit_WeightScaleInvariance: multiplying every weight by a constant
// rescales the likelihood but not its maximizer.
func TestFit_WeightScaleInvariance(t *testing.T) {
	base := []Row{
		{Start: 0, Stop: 1, Event: true, Weight: 1, X: []float64{1}},
		{Start: 0, Stop: 2, Event: true, Weight: 2, X: []float64{0}},
		{Start: 0, Stop: 3, Event: false, Weight: 1.5, X: []float64{1}},
	}
	scaled := make([]Row, len(base))
	copy(scaled, base)
	for i := range scaled {
		scaled[i].Weight *= 3.7
	}

	f1, err := Fit(base, []string{"x"}, Options{})
	if err != nil {
		t.Fatalf("base: %v", err)
	}
	f2, err := Fit(scaled, []string{"x"}, Options{})
	if err != nil {
		t.Fatalf("scaled: %v", err)
	}
	if math.Abs(f1.Coef[0]-f2.Coef[0]) > 1e-8 {
		t.Errorf("coef changed under weight scaling: %.10f vs %.10f", f1.Coef[0], f2.Coef[0])
	}
}

// TestFit_LeftTruncation: splitting one subject's follow-up into contiguous
// counting-process intervals with unchanged covariates must not change the
// fit. This fails if the risk sets ignore interval starts.
func TestFit_LeftTruncation(t *testing.T) {
	whole := []Row{
		row(0, 2, true, 1),
		row(0, 3, true, 0),
		row(0, 4, false, 1),
	}
	split := []Row{
		row(0, 1, false, 1),
		row(1, 2, true, 1),
		row(0, 3, true, 0),
		row(0, 2, false, 1),
		row(2, 4, false, 1),
	}
	f1, err := Fit(whole, []string{"x"}, Options{})
	if err != nil {
		t.Fatalf("whole: %v", err)
	}
	f2, err := Fit(split, []string{"x"}, Options{})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if math.Abs(f1.Coef[0]-f2.Coef[0]) > 1e-8 {
		t.Errorf("splitting intervals changed coef: %.10f vs %.10f", f1.Coef[0], f2.Coef[0])
	}
	if math.Abs(f1.LogLik-f2.LogLik) > 1e-8 {
		t.Errorf("splitting intervals changed loglik: %.10f vs %.10f", f1.LogLik, f2.LogLik)
	}
}

// TestFit_BaselineHazardMonotone: the fitted cumulative baseline hazard is
// non-decreasing and right-continuous.
func TestFit_BaselineHazardMonotone(t *testing.T) {
	rows := []Row{
		row(0, 1, true, 0.3),
		row(0, 2, true, -0.7),
		row(0, 2, true, 1.1),
		row(0, 3, false, 0.4),
		row(0, 4, true, -0.2),
	}
	fit, err := Fit(rows, []string{"x"}, Options{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	h := fit.Baseline
	prev := 0.0
	for i, v := range h.Values {
		if v < prev {
			t.Errorf("cumulative hazard decreases at %g: %g < %g", h.Times[i], v, prev)
		}
		prev = v
	}
	// Right continuity: the value at an event time includes that jump.
	for i, tt := range h.Times {
		if got := h.At(tt, 0); got != h.Values[i] {
			t.Errorf("At(%g) = %g, want jump value %g", tt, got, h.Values[i])
		}
	}
	if h.At(0, 0) != 0 {
		t.Errorf("cumulative hazard at 0 = %g, want 0", h.At(0, 0))
	}
}

func TestFit_NoEvents(t *testing.T) {
	rows := []Row{
		row(0, 1, false, 1),
		row(0, 2, false, 0),
	}
	_, err := Fit(rows, []string{"x"}, Options{})
	if !errors.Is(err, model.ErrInsufficientEvents) {
		t.Fatalf("err = %v, want ErrInsufficientEvents", err)
	}
}

func TestFit_InvalidWeight(t *testing.T) {
	for _, w := range []float64{-1, math.NaN(), math.Inf(1)} {
		rows := []Row{
			{Start: 0, Stop: 1, Event: true, Weight: w, X: []float64{1}},
			row(0, 2, true, 0),
		}
		_, err := Fit(rows, []string{"x"}, Options{})
		if !errors.Is(err, model.ErrInvalidWeight) {
			t.Errorf("weight %v: err = %v, want ErrInvalidWeight", w, err)
		}
	}
}

// TestFit_IterationBudget: a one-iteration budget cannot converge and must
// surface the last iterate with diagnostics instead of a silent result.
func TestFit_IterationBudget(t *testing.T) {
	rows := []Row{
		row(0, 1, true, 1),
		row(0, 2, true, 0),
		row(0, 3, false, 1),
	}
	fit, err := Fit(rows, []string{"x"}, Options{MaxIterations: 1})
	if !errors.Is(err, model.ErrNonConvergence) {
		t.Fatalf("err = %v, want ErrNonConvergence", err)
	}
	if fit == nil {
		t.Fatal("non-convergence must still return the last iterate")
	}
	if fit.Converged {
		t.Error("fit must not be flagged converged")
	}
	if fit.ScoreNorm == 0 {
		t.Error("diagnostics should carry a nonzero score norm")
	}
	if fit.Iterations != 1 {
		t.Errorf("Iterations = %d, want the budget of 1", fit.Iterations)
	}
}

// TestDampedStep_RefusesWorseningStep: when every halved step length lowers
// the objective, the update reports failure so the caller keeps its iterate.
func TestDampedStep_RefusesWorseningStep(t *testing.T) {
	// Concave objective maximized exactly at the starting point.
	eval := func(b []float64) (float64, []float64, *mat.SymDense) {
		return -b[0] * b[0], []float64{-2 * b[0]}, mat.NewSymDense(1, []float64{2})
	}
	_, _, _, _, ok := dampedStep([]float64{0}, []float64{5}, 0, eval)
	if ok {
		t.Fatal("dampedStep accepted a step that can only lower the objective")
	}
}

// TestDampedStep_HalvesIntoImprovement: a too-long step that overshoots the
// maximum is halved until the objective no longer decreases.
func TestDampedStep_HalvesIntoImprovement(t *testing.T) {
	// Maximum at 0.01; the proposed step of 5 overshoots badly.
	eval := func(b []float64) (float64, []float64, *mat.SymDense) {
		d := b[0] - 0.01
		return -d * d, []float64{-2 * d}, mat.NewSymDense(1, []float64{2})
	}
	ll0 := -0.01 * 0.01
	cand, llNew, _, _, ok := dampedStep([]float64{0}, []float64{5}, ll0, eval)
	if !ok {
		t.Fatal("dampedStep gave up on a recoverable overshoot")
	}
	if llNew < ll0 {
		t.Errorf("accepted objective %g below starting %g", llNew, ll0)
	}
	if cand[0] <= 0 || cand[0] > 5 {
		t.Errorf("candidate %g outside the halved-step range", cand[0])
	}
}

func TestFit_WaldInference(t *testing.T) {
	rows := []Row{
		row(0, 1, true, 1),
		row(0, 2, true, 0),
		row(0, 3, true, 1),
		row(0, 4, false, 0),
	}
	fit, err := Fit(rows, []string{"x"}, Options{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	table := fit.Coefficients(0.95)
	c := table[0]
	if c.HazardRatio <= 0 {
		t.Errorf("hazard ratio = %g, want positive", c.HazardRatio)
	}
	if !(c.CILower < c.HazardRatio && c.HazardRatio < c.CIUpper) {
		t.Errorf("CI [%g, %g] does not bracket HR %g", c.CILower, c.CIUpper, c.HazardRatio)
	}
	if c.PValue <= 0 || c.PValue > 1 {
		t.Errorf("p-value = %g out of range", c.PValue)
	}
}
