package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/icustats/internal/model"
	embedsql "github.com/gyeh/icustats/internal/sql"
)

// NamedFit pairs a model name with its fit for persistence.
type NamedFit struct {
	Name string
	Fit  *model.FittedModel
}

// StoreRun persists one run: the summary row, the estimated weights, and
// the coefficient tables of every fitted model. Weights and coefficients go
// through the COPY protocol.
func StoreRun(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger,
	runID uuid.UUID, strategy string, eventTarget int,
	sum model.RunSummary, weights []model.WeightRecord, fits []NamedFit) error {

	if _, err := pool.Exec(ctx, embedsql.InsertRun,
		runID, strategy, eventTarget,
		sum.Subjects, sum.Intervals, sum.Deaths, sum.Discharges,
		sum.WeightMin, sum.WeightMax, sum.WeightMean,
		sum.DurationTotal.Milliseconds(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	ch := make(chan *model.WeightDBRow, 256)
	go func() {
		defer close(ch)
		for _, w := range weights {
			ch <- &model.WeightDBRow{RunID: runID, Pt: w.Pt, Day: w.Day, Weight: w.Weight}
		}
	}()
	n, err := pool.CopyFrom(ctx,
		pgx.Identifier{"results", "weights"},
		model.WeightColumns(),
		NewChannelSource(ch),
	)
	if err != nil {
		return fmt.Errorf("copy weights: %w", err)
	}
	log.Info().Int64("rows", n).Msg("weights stored")

	var coefRows [][]any
	for _, nf := range fits {
		if nf.Fit == nil {
			continue
		}
		for _, c := range nf.Fit.Coefficients(0.95) {
			row := &model.CoefficientDBRow{
				RunID:       runID,
				ModelName:   nf.Name,
				Term:        c.Name,
				Estimate:    c.Estimate,
				StdErr:      c.StdErr,
				HazardRatio: c.HazardRatio,
				CILower:     c.CILower,
				CIUpper:     c.CIUpper,
				PValue:      c.PValue,
				Converged:   nf.Fit.Converged,
			}
			coefRows = append(coefRows, row.CopyValues())
		}
	}
	n, err = pool.CopyFrom(ctx,
		pgx.Identifier{"results", "coefficients"},
		model.CoefficientColumns(),
		pgx.CopyFromRows(coefRows),
	)
	if err != nil {
		return fmt.Errorf("copy coefficients: %w", err)
	}
	log.Info().Int64("rows", n).Str("run_id", runID.String()).Msg("coefficients stored")

	return nil
}
