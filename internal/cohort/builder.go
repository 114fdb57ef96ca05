package cohort

import (
	"fmt"

	"github.com/gyeh/icustats/internal/model"
)

// Cohort is the derived analysis dataset: counting-process intervals for
// the time-varying analyses and a one-row-per-subject collapse for the
// static analyses.
type Cohort struct {
	Intervals []model.Interval
	Subjects  []model.SubjectRecord

	// SubjectsDropped counts subjects excluded because their daily records
	// carry no outcome information at all.
	SubjectsDropped int
}

// Build converts daily records into counting-process intervals and the
// per-subject collapse. Subjects may interleave, but each subject's records
// must arrive in strictly increasing day order; anything else is rejected
// with ErrMalformedCohort rather than silently reordered, since an upstream
// ImputationPolicy has already carried values in file order. Covariate gaps
// must be resolved by such a policy before calling Build.
//
// The final interval of each subject carries the subject's terminal
// outcome: death if any death indicator is set, else discharge if any
// discharge indicator is set. All earlier intervals are event-free.
func Build(daily []model.DailyRecord) (*Cohort, error) {
	bySubject := make(map[int64][]model.DailyRecord)
	var order []int64
	for _, r := range daily {
		if _, seen := bySubject[r.Pt]; !seen {
			order = append(order, r.Pt)
		}
		bySubject[r.Pt] = append(bySubject[r.Pt], r)
	}

	c := &Cohort{}
	for _, pt := range order {
		recs := bySubject[pt]
		if err := checkSubject(pt, recs); err != nil {
			return nil, err
		}
		if !hasOutcomeInfo(recs) {
			c.SubjectsDropped++
			continue
		}

		ivs, sub := buildSubject(pt, recs)
		c.Intervals = append(c.Intervals, ivs...)
		c.Subjects = append(c.Subjects, sub)
	}
	return c, nil
}

func checkSubject(pt int64, recs []model.DailyRecord) error {
	for i, r := range recs {
		if i > 0 && r.Day == recs[i-1].Day {
			return fmt.Errorf("%w: subject %d has duplicate day %d", model.ErrMalformedCohort, pt, r.Day)
		}
		if i > 0 && r.Day < recs[i-1].Day {
			return fmt.Errorf("%w: subject %d has day %d after day %d", model.ErrMalformedCohort, pt, r.Day, recs[i-1].Day)
		}
		if flag(r.Death) && flag(r.Discharge) {
			return fmt.Errorf("%w: subject %d has death and discharge on day %d", model.ErrMalformedCohort, pt, r.Day)
		}
	}
	return nil
}

// hasOutcomeInfo reports whether any record carries a death or discharge
// indicator. Subjects with neither are uninformative and dropped.
func hasOutcomeInfo(recs []model.DailyRecord) bool {
	for _, r := range recs {
		if r.Death != nil || r.Discharge != nil {
			return true
		}
	}
	return false
}

func buildSubject(pt int64, recs []model.DailyRecord) ([]model.Interval, model.SubjectRecord) {
	terminal := model.Censored
	for _, r := range recs {
		if flag(r.Death) {
			terminal = model.Death
			break
		}
	}
	if terminal == model.Censored {
		for _, r := range recs {
			if flag(r.Discharge) {
				terminal = model.Discharge
				break
			}
		}
	}

	// The daily fluids column is the running cumulative balance as recorded
	// that day, so it attaches to the interval unchanged.
	ivs := make([]model.Interval, 0, len(recs))
	var sumFluids, sumSeverity, firstSeverity float64

	for i, r := range recs {
		day := float64(r.Day)
		start := day - 1
		if i == 0 {
			start = 0
			firstSeverity = val(r.Severity)
		}

		sumFluids += val(r.Fluids)
		sumSeverity += val(r.Severity)

		ev := model.Censored
		if i == len(recs)-1 {
			ev = terminal
		}

		ivs = append(ivs, model.Interval{
			Pt:       pt,
			Start:    start,
			Stop:     day,
			Event:    ev,
			Fluids:   val(r.Fluids),
			Severity: val(r.Severity),
		})
	}

	n := float64(len(recs))
	last := recs[len(recs)-1]
	sub := model.SubjectRecord{
		Pt:               pt,
		Time:             float64(last.Day),
		Event:            terminal,
		FluidsTotal:      val(last.Fluids),
		FluidsMean:       sumFluids / n,
		SeverityBaseline: firstSeverity,
		SeverityMean:     sumSeverity / n,
	}
	return ivs, sub
}

func flag(b *bool) bool { return b != nil && *b }

func val(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
