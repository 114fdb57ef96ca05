package model

import "time"

// RunSummary captures metrics from a single analysis run.
type RunSummary struct {
	RunID            string
	Subjects         int
	SubjectsDropped  int
	Intervals        int
	Deaths           int
	Discharges       int
	ModelsFit        int
	ModelsFailed     int
	WeightMin        float64
	WeightMax        float64
	WeightMean       float64
	DurationBuild    time.Duration
	DurationFit      time.Duration
	DurationWeights  time.Duration
	DurationEvaluate time.Duration
	DurationTotal    time.Duration
}
