package sql

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/select_daily.sql
var SelectDaily string

//go:embed queries/select_baseline.sql
var SelectBaseline string

//go:embed queries/insert_run.sql
var InsertRun string

//go:embed queries/truncate_cohort.sql
var TruncateCohort string
