package weights

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/gyeh/icustats/internal/model"
)

// Truncate clamps every weight to the empirical (qlo, qhi) quantiles of the
// weight distribution, bounding the variance the extreme weights would
// otherwise inject into the MSM fit. The operation is pure and idempotent:
// truncating an already-truncated set with the same bounds is a no-op.
func Truncate(recs []model.WeightRecord, qlo, qhi float64) ([]model.WeightRecord, error) {
	if !(qlo > 0 && qhi < 1 && qlo < qhi) {
		return nil, fmt.Errorf("%w: truncation quantiles (%g, %g) must satisfy 0 < lo < hi < 1",
			model.ErrConfig, qlo, qhi)
	}

	sorted := make([]float64, len(recs))
	for i, r := range recs {
		if r.Weight < 0 || math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
			return nil, fmt.Errorf("%w: weight %g for subject %d day %d",
				model.ErrInvalidWeight, r.Weight, r.Pt, r.Day)
		}
		sorted[i] = r.Weight
	}
	sort.Float64s(sorted)

	lo := stat.Quantile(qlo, stat.Empirical, sorted, nil)
	hi := stat.Quantile(qhi, stat.Empirical, sorted, nil)

	out := make([]model.WeightRecord, len(recs))
	for i, r := range recs {
		w := r.Weight
		if w < lo {
			w = lo
		} else if w > hi {
			w = hi
		}
		out[i] = model.WeightRecord{Pt: r.Pt, Day: r.Day, Weight: w}
	}
	return out, nil
}

// Summary reports the distribution of a weight set for run summaries and
// logging.
func Summary(recs []model.WeightRecord) (min, max, mean float64) {
	if len(recs) == 0 {
		return 0, 0, 0
	}
	min, max = recs[0].Weight, recs[0].Weight
	var sum float64
	for _, r := range recs {
		if r.Weight < min {
			min = r.Weight
		}
		if r.Weight > max {
			max = r.Weight
		}
		sum += r.Weight
	}
	return min, max, sum / float64(len(recs))
}
