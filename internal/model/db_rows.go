package model

import "github.com/google/uuid"

// WeightDBRow is the DB-ready representation of one estimated weight,
// tagged with the run that produced it.
type WeightDBRow struct {
	RunID  uuid.UUID
	Pt     int64
	Day    int
	Weight float64
}

// WeightColumns returns the ordered column names for COPY into
// results.weights.
func WeightColumns() []string {
	return []string{"run_id", "pt", "day", "weight"}
}

// CopyValues returns the row values in the same order as WeightColumns(),
// suitable for pgx CopyFromSource.
func (r *WeightDBRow) CopyValues() []any {
	return []any{r.RunID, r.Pt, int32(r.Day), r.Weight}
}

// CoefficientDBRow is the DB-ready representation of one coefficient-table
// row for a named model fit.
type CoefficientDBRow struct {
	RunID       uuid.UUID
	ModelName   string
	Term        string
	Estimate    float64
	StdErr      float64
	HazardRatio float64
	CILower     float64
	CIUpper     float64
	PValue      float64
	Converged   bool
}

// CoefficientColumns returns the ordered column names for COPY into
// results.coefficients.
func CoefficientColumns() []string {
	return []string{
		"run_id",
		"model_name",
		"term",
		"estimate",
		"std_err",
		"hazard_ratio",
		"ci_lower",
		"ci_upper",
		"p_value",
		"converged",
	}
}

// CopyValues returns the row values in the same order as
// CoefficientColumns().
func (r *CoefficientDBRow) CopyValues() []any {
	return []any{
		r.RunID,
		r.ModelName,
		r.Term,
		r.Estimate,
		r.StdErr,
		r.HazardRatio,
		r.CILower,
		r.CIUpper,
		r.PValue,
		r.Converged,
	}
}
