package survival

import (
	"sort"

	"github.com/gyeh/icustats/internal/model"
)

// KaplanMeier estimates the survival function of the observed times, where
// event[i] marks the terminating event and false means censored at times[i].
func KaplanMeier(times []float64, event []bool) model.StepFunction {
	type point struct {
		deaths int
		total  int
	}
	byTime := make(map[float64]*point)
	var grid []float64
	for i, t := range times {
		pt, ok := byTime[t]
		if !ok {
			pt = &point{}
			byTime[t] = pt
			grid = append(grid, t)
		}
		pt.total++
		if event[i] {
			pt.deaths++
		}
	}
	sort.Float64s(grid)

	atRisk := len(times)
	surv := 1.0
	var outT, outS []float64
	for _, t := range grid {
		pt := byTime[t]
		if pt.deaths > 0 {
			surv *= 1 - float64(pt.deaths)/float64(atRisk)
			outT = append(outT, t)
			outS = append(outS, surv)
		}
		atRisk -= pt.total
	}
	return model.StepFunction{Times: outT, Values: outS}
}

// CensoringSurvival estimates the Kaplan-Meier survival function of the
// censoring distribution: administrative censoring is the "event" and real
// outcomes censor. Fine-Gray redistribution weights are ratios of this
// function.
func CensoringSurvival(subs []model.SubjectRecord) model.StepFunction {
	times := make([]float64, len(subs))
	cens := make([]bool, len(subs))
	for i, s := range subs {
		times[i] = s.Time
		cens[i] = s.Event == model.Censored
	}
	return KaplanMeier(times, cens)
}
