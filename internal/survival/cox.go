package survival

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/gyeh/icustats/internal/model"
)

// Row is one counting-process observation for the partial-likelihood core:
// the subject is at risk over (Start, Stop], with Event set when the target
// event occurs at Stop. Weight scales the row's contribution to the
// log-likelihood, score and information, which is what makes this core
// serve both direct-adjustment fits (unit weights), MSM fits (balancing
// weights), and Fine-Gray fits (redistribution weights).
type Row struct {
	Start  float64
	Stop   float64
	Event  bool
	Weight float64
	X      []float64
}

// Options bound the Newton-Raphson optimization.
type Options struct {
	Tolerance     float64 // score-norm / log-likelihood change tolerance
	MaxIterations int
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-9
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 25
	}
	return o
}

// IntervalRows converts counting-process intervals into estimator rows for
// the given target event; other event types censor at their stop time.
// weights may be nil for an unweighted fit.
func IntervalRows(ivs []model.Interval, spec model.CovariateSpec[model.Interval], target model.EventType, weights []float64) []Row {
	rows := make([]Row, len(ivs))
	for i := range ivs {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		rows[i] = Row{
			Start:  ivs[i].Start,
			Stop:   ivs[i].Stop,
			Event:  ivs[i].Event == target,
			Weight: w,
			X:      spec.Row(&ivs[i], nil),
		}
	}
	return rows
}

// SubjectRows converts collapsed per-subject records into estimator rows
// entering the risk set at time 0.
func SubjectRows(subs []model.SubjectRecord, spec model.CovariateSpec[model.SubjectRecord], target model.EventType) []Row {
	rows := make([]Row, len(subs))
	for i := range subs {
		rows[i] = Row{
			Start:  0,
			Stop:   subs[i].Time,
			Event:  subs[i].Event == target,
			Weight: 1,
			X:      spec.Row(&subs[i], nil),
		}
	}
	return rows
}

// Fit maximizes the weighted Cox partial log-likelihood over the rows using
// Newton-Raphson with the Efron approximation for tied event times. Risk
// sets honor left truncation: a row is at risk at time t only when
// Start < t <= Stop.
func Fit(rows []Row, names []string, opts Options) (*model.FittedModel, error) {
	opts = opts.withDefaults()
	p := len(names)
	if p == 0 {
		return nil, fmt.Errorf("%w: no covariates in spec", model.ErrConfig)
	}

	for i := range rows {
		w := rows[i].Weight
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weight %g on row %d", model.ErrInvalidWeight, w, i)
		}
		if rows[i].Stop <= rows[i].Start {
			return nil, fmt.Errorf("%w: empty interval (%g, %g]", model.ErrMalformedCohort, rows[i].Start, rows[i].Stop)
		}
	}

	d := newCoxData(rows, p)
	if d.nEvents == 0 {
		return nil, fmt.Errorf("%w: no target events in %d rows", model.ErrInsufficientEvents, len(rows))
	}

	beta := make([]float64, p)
	ll, score, info := d.evaluate(beta)

	var iter int
	var converged bool
	for iter = 1; iter <= opts.MaxIterations; iter++ {
		step, err := solveSym(info, score)
		if err != nil {
			return nil, fmt.Errorf("%w: singular information matrix at iteration %d (score norm %.3g)",
				model.ErrNonConvergence, iter, floats.Norm(score, 2))
		}

		// Step-halving guards against overshoot on ill-scaled data.
		cand, llNew, scoreNew, infoNew, ok := dampedStep(beta, step, ll, d.evaluate)
		if !ok {
			// No step length improves the likelihood; stay put rather than
			// move to a worse iterate.
			if floats.Norm(score, 2) < opts.Tolerance {
				converged = true
			}
			break
		}

		deltaLL := math.Abs(llNew - ll)
		beta, ll, score, info = cand, llNew, scoreNew, infoNew

		if floats.Norm(score, 2) < opts.Tolerance || deltaLL < opts.Tolerance {
			converged = true
			break
		}
	}
	if iter > opts.MaxIterations {
		iter = opts.MaxIterations
	}

	fit := &model.FittedModel{
		Names:      append([]string(nil), names...),
		Coef:       beta,
		LogLik:     ll,
		Converged:  converged,
		Iterations: iter,
		ScoreNorm:  floats.Norm(score, 2),
		NRows:      len(rows),
		NEvents:    d.nEvents,
		Means:      d.means,
	}

	cov, err := invertSym(info)
	if err != nil {
		return fit, fmt.Errorf("%w: information matrix not invertible at optimum (iterations %d, score norm %.3g)",
			model.ErrNonConvergence, iter, fit.ScoreNorm)
	}
	fit.Cov = cov
	fit.Baseline = d.baselineHazard(beta)

	if !converged {
		return fit, fmt.Errorf("%w: stopped after %d of %d iterations (score norm %.3g, loglik %.6g)",
			model.ErrNonConvergence, iter, opts.MaxIterations, fit.ScoreNorm, ll)
	}
	return fit, nil
}

// dampedStep evaluates the Newton candidate with up to 10 step-halvings,
// returning the first candidate that does not decrease the log-likelihood.
// ok is false when no tried step length improves on ll; the caller keeps
// its current iterate in that case.
func dampedStep(beta, step []float64, ll float64, eval func([]float64) (float64, []float64, *mat.SymDense)) ([]float64, float64, []float64, *mat.SymDense, bool) {
	cand := make([]float64, len(beta))
	for half := 0; half < 10; half++ {
		copy(cand, beta)
		floats.Add(cand, step)
		llNew, scoreNew, infoNew := eval(cand)
		if llNew >= ll || math.IsInf(ll, -1) {
			return cand, llNew, scoreNew, infoNew, true
		}
		floats.Scale(0.5, step)
	}
	return nil, 0, nil, nil, false
}

// coxData holds the centered design and the sorted event-time grid.
type coxData struct {
	rows    []Row
	p       int
	x       [][]float64 // centered covariate rows
	means   []float64   // weighted covariate means used for centering
	times   []float64   // distinct event times, ascending
	nEvents int
}

func newCoxData(rows []Row, p int) *coxData {
	d := &coxData{rows: rows, p: p}

	// Weighted covariate means; centering keeps exp() in range.
	d.means = make([]float64, p)
	var wsum float64
	for i := range rows {
		w := rows[i].Weight
		wsum += w
		for j := 0; j < p; j++ {
			d.means[j] += w * rows[i].X[j]
		}
	}
	if wsum > 0 {
		floats.Scale(1/wsum, d.means)
	}

	d.x = make([][]float64, len(rows))
	for i := range rows {
		xi := make([]float64, p)
		for j := 0; j < p; j++ {
			xi[j] = rows[i].X[j] - d.means[j]
		}
		d.x[i] = xi
	}

	seen := make(map[float64]bool)
	for i := range rows {
		if rows[i].Event && rows[i].Weight > 0 {
			d.nEvents++
			if !seen[rows[i].Stop] {
				seen[rows[i].Stop] = true
				d.times = append(d.times, rows[i].Stop)
			}
		}
	}
	sort.Float64s(d.times)
	return d
}

// evaluate computes the weighted Efron partial log-likelihood, score and
// observed information at beta.
func (d *coxData) evaluate(beta []float64) (float64, []float64, *mat.SymDense) {
	p := d.p
	ll := 0.0
	score := make([]float64, p)
	info := mat.NewSymDense(p, nil)

	eta := make([]float64, len(d.rows))
	for i := range d.rows {
		eta[i] = floats.Dot(beta, d.x[i])
	}

	riskX := make([]float64, p)
	dX := make([]float64, p)
	riskXX := make([]float64, p*p)
	dXX := make([]float64, p*p)
	mu := make([]float64, p)

	for _, t := range d.times {
		var riskSum, dSum, dWeight float64
		var nDeaths int
		for a := 0; a < p; a++ {
			riskX[a] = 0
			dX[a] = 0
		}
		for k := range riskXX {
			riskXX[k] = 0
			dXX[k] = 0
		}

		for i := range d.rows {
			r := &d.rows[i]
			if !(r.Start < t && t <= r.Stop) {
				continue
			}
			we := r.Weight * math.Exp(eta[i])
			riskSum += we
			xi := d.x[i]
			for a := 0; a < p; a++ {
				riskX[a] += we * xi[a]
				for b := a; b < p; b++ {
					riskXX[a*p+b] += we * xi[a] * xi[b]
				}
			}
			if r.Event && r.Stop == t && r.Weight > 0 {
				nDeaths++
				dWeight += r.Weight
				dSum += we
				ll += r.Weight * eta[i]
				for a := 0; a < p; a++ {
					dX[a] += we * xi[a]
					for b := a; b < p; b++ {
						dXX[a*p+b] += we * xi[a] * xi[b]
					}
					score[a] += r.Weight * xi[a]
				}
			}
		}

		// Efron's correction: each of the tied deaths sees the risk set
		// with an averaged share of the deaths' own mass removed.
		wbar := dWeight / float64(nDeaths)
		for k := 0; k < nDeaths; k++ {
			f := float64(k) / float64(nDeaths)
			z := riskSum - f*dSum
			ll -= wbar * math.Log(z)
			for a := 0; a < p; a++ {
				mu[a] = (riskX[a] - f*dX[a]) / z
				score[a] -= wbar * mu[a]
			}
			for a := 0; a < p; a++ {
				for b := a; b < p; b++ {
					v := (riskXX[a*p+b]-f*dXX[a*p+b])/z - mu[a]*mu[b]
					info.SetSym(a, b, info.At(a, b)+wbar*v)
				}
			}
		}
	}

	return ll, score, info
}

// baselineHazard computes the Breslow cumulative baseline hazard on the
// event-time grid, anchored at the centering means.
func (d *coxData) baselineHazard(beta []float64) model.StepFunction {
	eta := make([]float64, len(d.rows))
	for i := range d.rows {
		eta[i] = floats.Dot(beta, d.x[i])
	}

	values := make([]float64, len(d.times))
	var cum float64
	for ti, t := range d.times {
		var riskSum, dWeight float64
		for i := range d.rows {
			r := &d.rows[i]
			if !(r.Start < t && t <= r.Stop) {
				continue
			}
			riskSum += r.Weight * math.Exp(eta[i])
			if r.Event && r.Stop == t {
				dWeight += r.Weight
			}
		}
		cum += dWeight / riskSum
		values[ti] = cum
	}

	return model.StepFunction{
		Times:  append([]float64(nil), d.times...),
		Values: values,
	}
}

// solveSym solves info * x = b for the Newton step.
func solveSym(info *mat.SymDense, b []float64) ([]float64, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(info); !ok {
		return nil, fmt.Errorf("matrix not positive definite")
	}
	x := mat.NewVecDense(len(b), nil)
	if err := chol.SolveVecTo(x, mat.NewVecDense(len(b), b)); err != nil {
		return nil, err
	}
	return x.RawVector().Data, nil
}

// invertSym inverts the observed information to obtain the covariance.
func invertSym(info *mat.SymDense) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(info); !ok {
		return nil, fmt.Errorf("matrix not positive definite")
	}
	n, _ := info.Dims()
	inv := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, err
	}
	return inv, nil
}
