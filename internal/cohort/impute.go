package cohort

import "github.com/gyeh/icustats/internal/model"

// ImputationPolicy fills covariate gaps in a subject's daily records before
// interval construction. Policies are pure: they return new records and
// leave the input untouched.
type ImputationPolicy interface {
	Apply(daily []model.DailyRecord) []model.DailyRecord
}

// LOCF carries the last observed fluids/severity value forward within each
// subject. A leading gap, where a subject has no earlier observation to
// carry, is backfilled from the first observed value.
type LOCF struct{}

// NoImputation passes records through unchanged, for callers that resolved
// missingness upstream.
type NoImputation struct{}

func (NoImputation) Apply(daily []model.DailyRecord) []model.DailyRecord {
	out := make([]model.DailyRecord, len(daily))
	copy(out, daily)
	return out
}

func (LOCF) Apply(daily []model.DailyRecord) []model.DailyRecord {
	out := make([]model.DailyRecord, len(daily))
	copy(out, daily)

	// Group by subject rather than by contiguous run, so files that
	// interleave subjects still carry within the right subject.
	bySubject := make(map[int64][]*model.DailyRecord)
	var order []int64
	for i := range out {
		pt := out[i].Pt
		if _, seen := bySubject[pt]; !seen {
			order = append(order, pt)
		}
		bySubject[pt] = append(bySubject[pt], &out[i])
	}
	for _, pt := range order {
		fillForward(bySubject[pt])
	}
	return out
}

func fillForward(recs []*model.DailyRecord) {
	var lastFluids, lastSeverity *float64

	for _, r := range recs {
		if r.Fluids != nil {
			lastFluids = r.Fluids
		} else if lastFluids != nil {
			v := *lastFluids
			r.Fluids = &v
		}
		if r.Severity != nil {
			lastSeverity = r.Severity
		} else if lastSeverity != nil {
			v := *lastSeverity
			r.Severity = &v
		}
	}

	// Backfill a leading gap from the first observation.
	backfill(recs, func(r *model.DailyRecord) **float64 { return &r.Fluids })
	backfill(recs, func(r *model.DailyRecord) **float64 { return &r.Severity })
}

func backfill(recs []*model.DailyRecord, field func(*model.DailyRecord) **float64) {
	var first *float64
	for _, r := range recs {
		if p := *field(r); p != nil {
			first = p
			break
		}
	}
	if first == nil {
		return
	}
	for _, r := range recs {
		p := field(r)
		if *p == nil {
			v := *first
			*p = &v
		} else {
			return
		}
	}
}
