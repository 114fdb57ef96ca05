package model

// EventType codes the outcome observed at the end of an interval.
type EventType int

const (
	Censored  EventType = 0
	Death     EventType = 1
	Discharge EventType = 2
)

func (e EventType) String() string {
	switch e {
	case Death:
		return "death"
	case Discharge:
		return "discharge"
	default:
		return "censored"
	}
}

// DailyRecord is one subject-day of follow-up as supplied by the data
// source. Fluids is the cumulative fluid balance through the end of the day;
// Severity is the daily severity score. Nil pointers represent missing
// values: Fluids/Severity gaps are resolved by an ImputationPolicy before
// interval construction, and a nil Death/Discharge means the indicator was
// not recorded that day.
type DailyRecord struct {
	Pt        int64
	Day       int
	Fluids    *float64
	Severity  *float64
	Death     *bool
	Discharge *bool
}

// BaselineRecord is the one-row-per-subject table accompanying the daily
// records. MortNinetyDays is consumed by external reporting only; the
// survival analyses derive their outcomes from the daily records.
type BaselineRecord struct {
	Pt               int64
	FluidsCumulative float64
	FluidsMean       float64
	SeverityBaseline float64
	MortNinetyDays   *bool
}

// Interval is a counting-process row (Start, Stop] with covariate values
// held constant over the window. Event is nonzero only on a subject's final
// interval.
type Interval struct {
	Pt       int64
	Start    float64
	Stop     float64
	Event    EventType
	Fluids   float64
	Severity float64
}

// SubjectRecord is the one-row-per-subject collapse of a subject's
// intervals, used by the static-covariate analyses and by Fine-Gray
// regression.
type SubjectRecord struct {
	Pt               int64
	Time             float64
	Event            EventType
	FluidsTotal      float64
	FluidsMean       float64
	SeverityBaseline float64
	SeverityMean     float64
}

// WeightRecord is one estimated balancing weight, keyed by subject and day
// so it can be joined back onto the interval it belongs to.
type WeightRecord struct {
	Pt     int64
	Day    int
	Weight float64
}
