package exitcode

const (
	Success         = 0
	UsageError      = 1
	ValidationError = 2
	DBConnError     = 3
	CohortError     = 4
	FitError        = 5
	PartialSuccess  = 6
)
