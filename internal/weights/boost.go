package weights

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/gyeh/icustats/internal/model"
)

// Boosted estimates stabilized density-ratio weights for a continuous
// exposure. A gradient-boosted ensemble of regression stumps predicts the
// exposure from the history covariates; at each ensemble size the weight is
// the ratio of the marginal exposure density to the fitted conditional
// density, both Gaussian, cumulated over each subject's follow-up. The
// ensemble size that best balances the covariates wins.
type Boosted struct {
	opts Options

	MaxTrees  int
	Shrinkage float64
	MinLeaf   int
}

// NewBoosted returns a boosted density-ratio estimator with standard
// boosting settings.
func NewBoosted(o Options) *Boosted {
	return &Boosted{
		opts:      o.withDefaults(),
		MaxTrees:  200,
		Shrinkage: 0.1,
		MinLeaf:   5,
	}
}

func (b *Boosted) Name() string { return "boosted" }

func (b *Boosted) Estimate(ivs []model.Interval) ([]model.WeightRecord, error) {
	n := len(ivs)
	if n == 0 {
		return nil, fmt.Errorf("%w: no intervals", model.ErrMalformedCohort)
	}
	a := make([]float64, n)
	for i := range ivs {
		a[i] = b.opts.Exposure.Value(&ivs[i])
	}
	z := historyMatrix(ivs, b.opts.History)

	muA, sdA := stat.MeanStdDev(a, nil)
	if sdA == 0 || math.IsNaN(sdA) {
		// Constant exposure carries no confounding to correct.
		return unitWeights(ivs), nil
	}

	f := make([]float64, n)
	for i := range f {
		f[i] = muA
	}

	best := math.Inf(1)
	var bestWeights []float64

	// Iteration 0 is the unconditional model: unit ratios, raw balance.
	if w := densityRatioWeights(ivs, a, f, muA, sdA); w != nil {
		if bal := maxImbalance(a, z, w); bal < best {
			best, bestWeights = bal, w
		}
	}

	for m := 0; m < b.MaxTrees; m++ {
		r := make([]float64, n)
		for i := range r {
			r[i] = a[i] - f[i]
		}
		st, ok := fitStump(z, r, b.MinLeaf)
		if !ok {
			break
		}
		for i := range f {
			f[i] += b.Shrinkage * st.predict(z[i])
		}

		w := densityRatioWeights(ivs, a, f, muA, sdA)
		if w == nil {
			continue
		}
		if bal := maxImbalance(a, z, w); bal < best {
			best, bestWeights = bal, w
		}
	}

	if bestWeights == nil || best > b.opts.BalanceThreshold {
		return nil, fmt.Errorf("%w: best weighted correlation %.4f exceeds threshold %.4f after %d trees",
			model.ErrBalanceNotAchieved, best, b.opts.BalanceThreshold, b.MaxTrees)
	}
	return toRecords(ivs, bestWeights)
}

// densityRatioWeights computes per-interval stabilized ratios under a
// Gaussian residual model and cumulates them over each subject's days.
// Returns nil when the conditional model degenerates.
func densityRatioWeights(ivs []model.Interval, a, f []float64, muA, sdA float64) []float64 {
	var ss float64
	for i := range a {
		d := a[i] - f[i]
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(a)))
	if sd < 1e-8 {
		return nil
	}

	w := make([]float64, len(a))
	for i := range a {
		num := normPDF(a[i], muA, sdA)
		den := normPDF(a[i], f[i], sd)
		if den == 0 {
			return nil
		}
		w[i] = num / den
	}

	// Cumulative product over each subject's consecutive intervals: the
	// weight at day t corrects the whole exposure history through t.
	for i := 1; i < len(ivs); i++ {
		if ivs[i].Pt == ivs[i-1].Pt {
			w[i] *= w[i-1]
		}
	}
	return w
}

func normPDF(x, mu, sd float64) float64 {
	zz := (x - mu) / sd
	return math.Exp(-0.5*zz*zz) / (sd * math.Sqrt(2*math.Pi))
}

// maxImbalance is the balance criterion: the largest absolute weighted
// Pearson correlation between the exposure and any history covariate.
func maxImbalance(a []float64, z [][]float64, w []float64) float64 {
	if len(z) == 0 || len(z[0]) == 0 {
		return 0
	}
	p := len(z[0])
	worst := 0.0
	col := make([]float64, len(a))
	for j := 0; j < p; j++ {
		for i := range z {
			col[i] = z[i][j]
		}
		c := math.Abs(weightedCorrelation(a, col, w))
		if c > worst {
			worst = c
		}
	}
	return worst
}

func weightedCorrelation(x, y, w []float64) float64 {
	mx := stat.Mean(x, w)
	my := stat.Mean(y, w)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += w[i] * dx * dy
		sxx += w[i] * dx * dx
		syy += w[i] * dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}

// stump is a depth-1 regression tree.
type stump struct {
	feature   int
	threshold float64
	left      float64
	right     float64
}

func (s stump) predict(z []float64) float64 {
	if z[s.feature] <= s.threshold {
		return s.left
	}
	return s.right
}

// fitStump finds the single split minimizing squared error of the
// residuals, honoring a minimum leaf size. ok is false when no covariate
// admits a valid split.
func fitStump(z [][]float64, r []float64, minLeaf int) (stump, bool) {
	n := len(r)
	if n < 2*minLeaf || len(z) == 0 {
		return stump{}, false
	}
	p := len(z[0])

	var total float64
	for _, v := range r {
		total += v
	}

	bestGain := math.Inf(-1)
	var bestStump stump
	found := false

	idx := make([]int, n)
	for j := 0; j < p; j++ {
		for i := range idx {
			idx[i] = i
		}
		sort.Slice(idx, func(x, y int) bool { return z[idx[x]][j] < z[idx[y]][j] })

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += r[idx[k]]
			if z[idx[k]][j] == z[idx[k+1]][j] {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr)
			if gain > bestGain {
				bestGain = gain
				bestStump = stump{
					feature:   j,
					threshold: (z[idx[k]][j] + z[idx[k+1]][j]) / 2,
					left:      leftSum / float64(nl),
					right:     rightSum / float64(nr),
				}
				found = true
			}
		}
	}
	return bestStump, found
}

func historyMatrix(ivs []model.Interval, spec model.CovariateSpec[model.Interval]) [][]float64 {
	z := make([][]float64, len(ivs))
	for i := range ivs {
		z[i] = spec.Row(&ivs[i], nil)
	}
	return z
}

func unitWeights(ivs []model.Interval) []model.WeightRecord {
	recs := make([]model.WeightRecord, len(ivs))
	for i := range ivs {
		recs[i] = model.WeightRecord{Pt: ivs[i].Pt, Day: int(ivs[i].Stop), Weight: 1}
	}
	return recs
}

func toRecords(ivs []model.Interval, w []float64) ([]model.WeightRecord, error) {
	recs := make([]model.WeightRecord, len(ivs))
	for i := range ivs {
		if w[i] < 0 || math.IsNaN(w[i]) || math.IsInf(w[i], 0) {
			return nil, fmt.Errorf("%w: weight %g for subject %d day %g",
				model.ErrInvalidWeight, w[i], ivs[i].Pt, ivs[i].Stop)
		}
		recs[i] = model.WeightRecord{Pt: ivs[i].Pt, Day: int(ivs[i].Stop), Weight: w[i]}
	}
	return recs, nil
}
