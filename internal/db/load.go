package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gyeh/icustats/internal/model"
	embedsql "github.com/gyeh/icustats/internal/sql"
)

// LoadDaily reads the full daily-records table ordered by subject and day,
// which is the order the cohort builder expects.
func LoadDaily(ctx context.Context, pool *pgxpool.Pool) ([]model.DailyRecord, error) {
	rows, err := pool.Query(ctx, embedsql.SelectDaily)
	if err != nil {
		return nil, fmt.Errorf("query daily records: %w", err)
	}
	defer rows.Close()

	var out []model.DailyRecord
	for rows.Next() {
		var rec model.DailyRecord
		if err := rows.Scan(&rec.Pt, &rec.Day, &rec.Fluids, &rec.Severity, &rec.Death, &rec.Discharge); err != nil {
			return nil, fmt.Errorf("scan daily record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read daily records: %w", err)
	}
	return out, nil
}

// LoadBaseline reads the one-row-per-subject baseline table.
func LoadBaseline(ctx context.Context, pool *pgxpool.Pool) ([]model.BaselineRecord, error) {
	rows, err := pool.Query(ctx, embedsql.SelectBaseline)
	if err != nil {
		return nil, fmt.Errorf("query baseline records: %w", err)
	}
	defer rows.Close()

	var out []model.BaselineRecord
	for rows.Next() {
		var rec model.BaselineRecord
		if err := rows.Scan(&rec.Pt, &rec.FluidsCumulative, &rec.FluidsMean, &rec.SeverityBaseline, &rec.MortNinetyDays); err != nil {
			return nil, fmt.Errorf("scan baseline record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read baseline records: %w", err)
	}
	return out, nil
}

// ImportCohort replaces the cohort tables with the given records using the
// COPY protocol.
func ImportCohort(ctx context.Context, pool *pgxpool.Pool, daily []model.DailyRecord, baseline []model.BaselineRecord) error {
	if _, err := pool.Exec(ctx, embedsql.TruncateCohort); err != nil {
		return fmt.Errorf("truncate cohort tables: %w", err)
	}

	dailyRows := make([][]any, len(daily))
	for i, r := range daily {
		dailyRows[i] = []any{r.Pt, int32(r.Day), r.Fluids, r.Severity, r.Death, r.Discharge}
	}
	if _, err := pool.CopyFrom(ctx,
		pgx.Identifier{"cohort", "daily"},
		[]string{"pt", "day", "fluids", "severity", "death", "discharge"},
		pgx.CopyFromRows(dailyRows),
	); err != nil {
		return fmt.Errorf("copy daily records: %w", err)
	}

	baselineRows := make([][]any, len(baseline))
	for i, r := range baseline {
		baselineRows[i] = []any{r.Pt, r.FluidsCumulative, r.FluidsMean, r.SeverityBaseline, r.MortNinetyDays}
	}
	if _, err := pool.CopyFrom(ctx,
		pgx.Identifier{"cohort", "baseline"},
		[]string{"pt", "fluids_cumulative", "fluids_mean", "severity_baseline", "mort_90days"},
		pgx.CopyFromRows(baselineRows),
	); err != nil {
		return fmt.Errorf("copy baseline records: %w", err)
	}
	return nil
}
