package model

// DailyRow mirrors the Parquet schema of the daily-records table: one row
// per subject per ICU day. Optional columns represent missing values and
// are resolved into DailyRecord pointers.
type DailyRow struct {
	Pt        int64    `parquet:"pt"`
	Day       int32    `parquet:"day"`
	Fluids    *float64 `parquet:"fluids,optional"`
	Severity  *float64 `parquet:"severity,optional"`
	Death     *int32   `parquet:"death,optional"`
	Discharge *int32   `parquet:"discharge,optional"`
}

// Record converts the Parquet row into the internal daily record.
func (r *DailyRow) Record() DailyRecord {
	return DailyRecord{
		Pt:        r.Pt,
		Day:       int(r.Day),
		Fluids:    r.Fluids,
		Severity:  r.Severity,
		Death:     optFlag(r.Death),
		Discharge: optFlag(r.Discharge),
	}
}

// BaselineRow mirrors the Parquet schema of the baseline table: one row per
// subject.
type BaselineRow struct {
	Pt               int64   `parquet:"pt"`
	FluidsCumulative float64 `parquet:"fluids_cumulative"`
	FluidsMean       float64 `parquet:"fluids_mean"`
	SeverityBaseline float64 `parquet:"severity_baseline"`
	MortNinetyDays   *int32  `parquet:"mort_90days,optional"`
}

// Record converts the Parquet row into the internal baseline record.
func (r *BaselineRow) Record() BaselineRecord {
	return BaselineRecord{
		Pt:               r.Pt,
		FluidsCumulative: r.FluidsCumulative,
		FluidsMean:       r.FluidsMean,
		SeverityBaseline: r.SeverityBaseline,
		MortNinetyDays:   optFlag(r.MortNinetyDays),
	}
}

func optFlag(v *int32) *bool {
	if v == nil {
		return nil
	}
	b := *v != 0
	return &b
}
