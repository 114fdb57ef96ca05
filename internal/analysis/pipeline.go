package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gyeh/icustats/internal/cohort"
	"github.com/gyeh/icustats/internal/config"
	"github.com/gyeh/icustats/internal/counterfactual"
	"github.com/gyeh/icustats/internal/model"
	"github.com/gyeh/icustats/internal/survival"
	"github.com/gyeh/icustats/internal/weights"
)

// PipelineError wraps an error with the phase where it occurred.
type PipelineError struct {
	Phase string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// ModelResult is one fitted regression, or the error that stopped it. A
// failed model does not abort the run; siblings still report.
type ModelResult struct {
	Name string
	Fit  *model.FittedModel
	Err  error
}

// Results collects everything a run produces.
type Results struct {
	RunID          uuid.UUID
	Summary        model.RunSummary
	Cohort         *cohort.Cohort
	Models         []ModelResult
	FineGray       ModelResult
	MSM            ModelResult
	Weights        []model.WeightRecord
	Counterfactual *counterfactual.Result
}

// modelSpec names one unweighted regression of the comparison battery.
type modelSpec struct {
	name string
	fit  func(*config.Config, *cohort.Cohort) (*model.FittedModel, error)
}

func subjectFit(spec model.CovariateSpec[model.SubjectRecord]) func(*config.Config, *cohort.Cohort) (*model.FittedModel, error) {
	return func(cfg *config.Config, c *cohort.Cohort) (*model.FittedModel, error) {
		rows := survival.SubjectRows(c.Subjects, spec, model.EventType(cfg.EventTarget))
		return survival.Fit(rows, spec.Names(), fitOptions(cfg))
	}
}

func intervalFit(spec model.CovariateSpec[model.Interval]) func(*config.Config, *cohort.Cohort) (*model.FittedModel, error) {
	return func(cfg *config.Config, c *cohort.Cohort) (*model.FittedModel, error) {
		rows := survival.IntervalRows(c.Intervals, spec, model.EventType(cfg.EventTarget), nil)
		return survival.Fit(rows, spec.Names(), fitOptions(cfg))
	}
}

func fitOptions(cfg *config.Config) survival.Options {
	return survival.Options{Tolerance: cfg.Tolerance, MaxIterations: cfg.MaxIterations}
}

// comparisonModels is the battery of unweighted fits run before the MSM, so
// the weighted estimate can be read against its naive counterparts.
var comparisonModels = []modelSpec{
	{"severity_baseline", subjectFit(model.CovariateSpec[model.SubjectRecord]{model.SubjectSeverityBaseline})},
	{"fluids_total", subjectFit(model.CovariateSpec[model.SubjectRecord]{model.SubjectFluidsTotal})},
	{"fluids_severity", subjectFit(model.CovariateSpec[model.SubjectRecord]{model.SubjectFluidsTotal, model.SubjectSeverityBaseline})},
	{"timevarying_unweighted", intervalFit(model.CovariateSpec[model.Interval]{model.IntervalFluids, model.IntervalSeverity})},
}

// Run executes the full analysis pipeline: build → fit → finegray →
// weights → truncate → msm → counterfactual.
func Run(ctx context.Context, log zerolog.Logger, cfg *config.Config, daily []model.DailyRecord) (*Results, error) {
	totalStart := time.Now()
	res := &Results{RunID: uuid.New()}
	res.Summary.RunID = res.RunID.String()
	target := model.EventType(cfg.EventTarget)

	// Phase 1: Build cohort
	log.Info().Int("daily_rows", len(daily)).Msg("building cohort")
	buildStart := time.Now()
	c, err := cohort.Build(cohort.LOCF{}.Apply(daily))
	if err != nil {
		return nil, &PipelineError{Phase: "build", Err: err}
	}
	res.Cohort = c
	res.Summary.Subjects = len(c.Subjects)
	res.Summary.SubjectsDropped = c.SubjectsDropped
	res.Summary.Intervals = len(c.Intervals)
	for i := range c.Subjects {
		switch c.Subjects[i].Event {
		case model.Death:
			res.Summary.Deaths++
		case model.Discharge:
			res.Summary.Discharges++
		}
	}
	res.Summary.DurationBuild = time.Since(buildStart)
	log.Info().
		Int("subjects", res.Summary.Subjects).
		Int("subjects_dropped", res.Summary.SubjectsDropped).
		Int("intervals", res.Summary.Intervals).
		Int("deaths", res.Summary.Deaths).
		Int("discharges", res.Summary.Discharges).
		Msg("cohort built")

	if err := ctx.Err(); err != nil {
		return nil, &PipelineError{Phase: "build", Err: err}
	}

	// Phase 2: Comparison fits, one goroutine per model.
	log.Info().Int("models", len(comparisonModels)).Msg("fitting comparison models")
	fitStart := time.Now()
	res.Models = make([]ModelResult, len(comparisonModels))
	var wg sync.WaitGroup
	for i, ms := range comparisonModels {
		wg.Add(1)
		go func(i int, ms modelSpec) {
			defer wg.Done()
			fit, err := ms.fit(cfg, c)
			res.Models[i] = ModelResult{Name: ms.name, Fit: fit, Err: err}
		}(i, ms)
	}
	wg.Wait()
	for _, m := range res.Models {
		logModel(log, m)
	}

	// Phase 3: Fine-Gray subdistribution hazard for the target event, with
	// the other terminal event treated as competing.
	fgSpec := model.CovariateSpec[model.SubjectRecord]{model.SubjectFluidsTotal, model.SubjectSeverityBaseline}
	fgFit, fgErr := survival.FitFineGray(c.Subjects, fgSpec, target, fitOptions(cfg))
	res.FineGray = ModelResult{Name: "finegray", Fit: fgFit, Err: fgErr}
	logModel(log, res.FineGray)
	res.Summary.DurationFit = time.Since(fitStart)

	if err := ctx.Err(); err != nil {
		return nil, &PipelineError{Phase: "fit", Err: err}
	}

	// Phase 4: Balancing weights
	log.Info().Str("strategy", cfg.WeightingStrategy).Msg("estimating weights")
	weightStart := time.Now()
	est, err := weights.New(cfg.WeightingStrategy, weights.Options{BalanceThreshold: cfg.BalanceThreshold})
	if err != nil {
		return nil, &PipelineError{Phase: "weights", Err: err}
	}
	raw, err := est.Estimate(c.Intervals)
	if err != nil {
		return nil, &PipelineError{Phase: "weights", Err: err}
	}

	// Phase 5: Truncate
	res.Weights, err = weights.Truncate(raw, cfg.TruncLo, cfg.TruncHi)
	if err != nil {
		return nil, &PipelineError{Phase: "truncate", Err: err}
	}
	res.Summary.WeightMin, res.Summary.WeightMax, res.Summary.WeightMean = weights.Summary(res.Weights)
	res.Summary.DurationWeights = time.Since(weightStart)
	log.Info().
		Float64("min", res.Summary.WeightMin).
		Float64("max", res.Summary.WeightMax).
		Float64("mean", res.Summary.WeightMean).
		Msg("weights estimated")

	// Phase 6: Weighted marginal structural model. The weights already
	// adjust for measured confounding, so only the exposure enters.
	msmStart := time.Now()
	msmSpec := model.CovariateSpec[model.Interval]{model.IntervalFluids}
	wvec := make([]float64, len(c.Intervals))
	for i, r := range res.Weights {
		wvec[i] = r.Weight
	}
	msmRows := survival.IntervalRows(c.Intervals, msmSpec, target, wvec)
	msmFit, msmErr := survival.Fit(msmRows, msmSpec.Names(), fitOptions(cfg))
	res.MSM = ModelResult{Name: "msm_weighted", Fit: msmFit, Err: msmErr}
	logModel(log, res.MSM)
	if msmFit == nil {
		return nil, &PipelineError{Phase: "msm", Err: msmErr}
	}
	if msmErr != nil && !errors.Is(msmErr, model.ErrNonConvergence) {
		return nil, &PipelineError{Phase: "msm", Err: msmErr}
	}

	// Phase 7: Counterfactual contrast under the weighted model.
	assign := counterfactual.MedianFluids(c.Intervals)
	if !math.IsNaN(cfg.CounterfactualFluids) {
		assign = counterfactual.FixedFluids(cfg.CounterfactualFluids)
	}
	cf, err := counterfactual.Evaluate(msmFit, c.Intervals, msmSpec, assign)
	if err != nil {
		return nil, &PipelineError{Phase: "counterfactual", Err: err}
	}
	res.Counterfactual = cf
	res.Summary.DurationEvaluate = time.Since(msmStart)

	for _, m := range append(append([]ModelResult{}, res.Models...), res.FineGray, res.MSM) {
		if m.Err != nil {
			res.Summary.ModelsFailed++
		} else {
			res.Summary.ModelsFit++
		}
	}
	res.Summary.DurationTotal = time.Since(totalStart)

	last := len(cf.Times) - 1
	log.Info().
		Int("models_fit", res.Summary.ModelsFit).
		Int("models_failed", res.Summary.ModelsFailed).
		Float64("attributable_mortality_end", cf.AttributableMortality[last]).
		Str("total_duration", res.Summary.DurationTotal.String()).
		Msg("analysis pipeline complete")

	return res, nil
}

func logModel(log zerolog.Logger, m ModelResult) {
	if m.Err != nil {
		log.Warn().Str("model", m.Name).Err(m.Err).Msg("model fit failed")
		return
	}
	ev := log.Info().Str("model", m.Name).
		Int("iterations", m.Fit.Iterations).
		Float64("loglik", m.Fit.LogLik)
	for i, name := range m.Fit.Names {
		ev = ev.Float64(name, m.Fit.Coef[i])
	}
	ev.Msg("model fit")
}
