package survival

import (
	"fmt"
	"sort"

	"github.com/gyeh/icustats/internal/model"
)

// minTargetEvents is the smallest number of target events the
// subdistribution fit will attempt.
const minTargetEvents = 5

// FitFineGray fits a Fine-Gray subdistribution-hazard regression of the
// target event with the remaining nonzero event type treated as competing.
// Subjects who experience the competing event stay in the risk set after
// their event time with weight G(t-)/G(T-), the conditional probability of
// remaining uncensored estimated from the censoring Kaplan-Meier. The
// reweighted rows then go through the same partial-likelihood core as a
// weighted Cox fit.
func FitFineGray(subs []model.SubjectRecord, spec model.CovariateSpec[model.SubjectRecord], target model.EventType, opts Options) (*model.FittedModel, error) {
	var nTarget int
	for i := range subs {
		if subs[i].Event == target {
			nTarget++
		}
	}
	if nTarget < minTargetEvents {
		return nil, fmt.Errorf("%w: %d %s events, need at least %d",
			model.ErrInsufficientEvents, nTarget, target, minTargetEvents)
	}

	g := CensoringSurvival(subs)
	grid := targetTimes(subs, target)

	var rows []Row
	for i := range subs {
		s := &subs[i]
		x := spec.Row(s, nil)

		rows = append(rows, Row{
			Start:  0,
			Stop:   s.Time,
			Event:  s.Event == target,
			Weight: 1,
			X:      x,
		})
		if s.Event == target || s.Event == model.Censored {
			continue
		}

		// Competing event: extend follow-up across later target-event
		// times with shrinking redistribution weight.
		gAtEvent := g.Before(s.Time, 1)
		prev := s.Time
		for _, t := range grid {
			if t <= s.Time {
				continue
			}
			w := g.Before(t, 1) / gAtEvent
			rows = append(rows, Row{
				Start:  prev,
				Stop:   t,
				Event:  false,
				Weight: w,
				X:      x,
			})
			prev = t
		}
	}

	fit, err := Fit(rows, spec.Names(), opts)
	if fit != nil {
		fit.NRows = len(subs)
	}
	return fit, err
}

// targetTimes returns the sorted distinct times of the target event.
func targetTimes(subs []model.SubjectRecord, target model.EventType) []float64 {
	seen := make(map[float64]bool)
	var grid []float64
	for i := range subs {
		if subs[i].Event == target && !seen[subs[i].Time] {
			seen[subs[i].Time] = true
			grid = append(grid, subs[i].Time)
		}
	}
	sort.Float64s(grid)
	return grid
}
