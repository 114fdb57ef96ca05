package weights

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/gyeh/icustats/internal/model"
)

// Balancing estimates covariate-balancing weights directly, without a
// treatment or outcome model: one weight per interval, mean one, chosen to
// zero the weighted covariance between the exposure and every history
// covariate. The weights minimize KL divergence from uniform subject to
// those moment constraints; the convex dual is solved with BFGS.
type Balancing struct {
	opts Options

	GradientThreshold float64
	MaxIterations     int
}

// NewBalancing returns a covariate-balancing estimator.
func NewBalancing(o Options) *Balancing {
	return &Balancing{
		opts:              o.withDefaults(),
		GradientThreshold: 1e-8,
		MaxIterations:     200,
	}
}

func (b *Balancing) Name() string { return "balancing" }

func (b *Balancing) Estimate(ivs []model.Interval) ([]model.WeightRecord, error) {
	n := len(ivs)
	if n == 0 {
		return nil, fmt.Errorf("%w: no intervals", model.ErrMalformedCohort)
	}
	a := make([]float64, n)
	for i := range ivs {
		a[i] = b.opts.Exposure.Value(&ivs[i])
	}
	z := historyMatrix(ivs, b.opts.History)
	p := len(b.opts.History)

	// Standardize so the dual is well scaled and the constraints are
	// weighted correlations rather than raw covariances.
	at := standardize(a)
	if at == nil {
		return unitWeights(ivs), nil
	}
	zt := make([][]float64, p)
	var active []int
	for j := 0; j < p; j++ {
		col := make([]float64, n)
		for i := range z {
			col[i] = z[i][j]
		}
		if sc := standardize(col); sc != nil {
			zt[j] = sc
			active = append(active, j)
		}
	}
	if len(active) == 0 {
		// Constant history cannot confound a regression on it.
		return unitWeights(ivs), nil
	}

	// Moment rows g_i[k] = a~_i * z~_ik; the dual objective is
	// log mean exp(lambda . g_i), whose gradient is the weighted moment.
	g := make([][]float64, n)
	for i := 0; i < n; i++ {
		gi := make([]float64, len(active))
		for k, j := range active {
			gi[k] = at[i] * zt[j][i]
		}
		g[i] = gi
	}

	problem := optimize.Problem{
		Func: func(lambda []float64) float64 {
			return logMeanExp(g, lambda)
		},
		Grad: func(grad, lambda []float64) {
			softmaxMoments(grad, g, lambda)
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: b.GradientThreshold,
		MajorIterations:   b.MaxIterations,
	}
	res, err := optimize.Minimize(problem, make([]float64, len(active)), settings, &optimize.BFGS{})
	if err != nil && res == nil {
		return nil, fmt.Errorf("%w: dual optimization failed: %v", model.ErrBalanceNotAchieved, err)
	}

	w := dualWeights(g, res.X)
	if bal := maxImbalance(a, z, w); bal > b.opts.BalanceThreshold {
		return nil, fmt.Errorf("%w: weighted correlation %.4f exceeds threshold %.4f",
			model.ErrBalanceNotAchieved, bal, b.opts.BalanceThreshold)
	}
	return toRecords(ivs, w)
}

// standardize returns (x - mean) / sd, or nil for a constant column.
func standardize(x []float64) []float64 {
	mu, sd := stat.MeanStdDev(x, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - mu) / sd
	}
	return out
}

// logMeanExp computes log((1/n) sum exp(lambda . g_i)) stably.
func logMeanExp(g [][]float64, lambda []float64) float64 {
	eta := make([]float64, len(g))
	for i := range g {
		eta[i] = floats.Dot(lambda, g[i])
	}
	m := floats.Max(eta)
	var s float64
	for _, e := range eta {
		s += math.Exp(e - m)
	}
	return m + math.Log(s/float64(len(g)))
}

// softmaxMoments writes the softmax-weighted mean of the moment rows into
// grad: the gradient of logMeanExp.
func softmaxMoments(grad []float64, g [][]float64, lambda []float64) {
	eta := make([]float64, len(g))
	for i := range g {
		eta[i] = floats.Dot(lambda, g[i])
	}
	m := floats.Max(eta)
	var s float64
	for i := range eta {
		eta[i] = math.Exp(eta[i] - m)
		s += eta[i]
	}
	for k := range grad {
		grad[k] = 0
	}
	for i := range g {
		wi := eta[i] / s
		for k := range grad {
			grad[k] += wi * g[i][k]
		}
	}
}

// dualWeights maps the dual solution to primal weights with mean one.
func dualWeights(g [][]float64, lambda []float64) []float64 {
	n := len(g)
	eta := make([]float64, n)
	for i := range g {
		eta[i] = floats.Dot(lambda, g[i])
	}
	m := floats.Max(eta)
	var s float64
	for i := range eta {
		eta[i] = math.Exp(eta[i] - m)
		s += eta[i]
	}
	w := make([]float64, n)
	for i := range eta {
		w[i] = float64(n) * eta[i] / s
	}
	return w
}
