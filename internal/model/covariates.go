package model

// Covariate names one numeric predictor and how to extract it from a record.
type Covariate[T any] struct {
	Name  string
	Value func(*T) float64
}

// CovariateSpec is an ordered list of named predictors. Estimators take a
// spec resolved once at configuration time rather than selecting columns by
// name per row.
type CovariateSpec[T any] []Covariate[T]

// Names returns the predictor names in spec order.
func (s CovariateSpec[T]) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Row extracts the predictor values for one record, appending to dst.
func (s CovariateSpec[T]) Row(rec *T, dst []float64) []float64 {
	for _, c := range s {
		dst = append(dst, c.Value(rec))
	}
	return dst
}

// IntervalFluids and friends are the standard predictors over
// counting-process intervals.
var (
	IntervalFluids = Covariate[Interval]{
		Name:  "fluids",
		Value: func(iv *Interval) float64 { return iv.Fluids },
	}
	IntervalSeverity = Covariate[Interval]{
		Name:  "severity",
		Value: func(iv *Interval) float64 { return iv.Severity },
	}
)

// Standard predictors over collapsed per-subject records.
var (
	SubjectFluidsTotal = Covariate[SubjectRecord]{
		Name:  "fluids_total",
		Value: func(r *SubjectRecord) float64 { return r.FluidsTotal },
	}
	SubjectFluidsMean = Covariate[SubjectRecord]{
		Name:  "fluids_mean",
		Value: func(r *SubjectRecord) float64 { return r.FluidsMean },
	}
	SubjectSeverityBaseline = Covariate[SubjectRecord]{
		Name:  "severity_baseline",
		Value: func(r *SubjectRecord) float64 { return r.SeverityBaseline },
	}
)
