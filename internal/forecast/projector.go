package forecast

import (
	"context"
	"sort"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/features"
	"github.com/andresuchdata/merchops/internal/parallel"
)

// ProjectionStats summarizes one Project call
type ProjectionStats struct {
	Series  int
	Rows    int
	Skipped domain.SkipCounts
}

// Projector runs the recursive multi-step forecast: every prediction is fed back
// into the series' trailing buffer before the next date is scored.
type Projector struct {
	schema  features.Schema
	model   Regressor
	enc     *features.Encoder
	workers int
}

// NewProjector validates that the regressor and encoder were built for schema.
func NewProjector(schema features.Schema, t Trained, workers int) (*Projector, error) {
	if err := checkSchema("forecast", schema, t.Regressor, t.Encoder); err != nil {
		return nil, err
	}
	return &Projector{
		schema:  schema,
		model:   t.Regressor,
		enc:     t.Encoder,
		workers: parallel.Workers(workers),
	}, nil
}

// Project scores every future row. The result is ordered by series (store, item) then date.
// A series with history but no future rows produces nothing and is counted as a
// missing_covariate skip.
func (p *Projector) Project(ctx context.Context, history, future []domain.TimeStepRecord) ([]domain.TimeStepRecord, ProjectionStats, error) {
	var stats ProjectionStats

	hist := features.GroupBySeries(history)
	fut := features.GroupBySeries(future)

	for _, key := range hist.Keys {
		if _, ok := fut.Rows[key]; !ok {
			stats.Skipped.Add(domain.SkipMissingCovariate, 1)
		}
	}

	results := make([][]domain.TimeStepRecord, fut.Len())
	err := parallel.ForEach(ctx, p.workers, fut.Len(), func(_ context.Context, i int) error {
		key := fut.Keys[i]
		results[i] = p.projectSorted(hist.Rows[key], fut.Rows[key])
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	out := make([]domain.TimeStepRecord, 0, len(future))
	for _, rows := range results {
		out = append(out, rows...)
	}
	stats.Series = fut.Len()
	stats.Rows = len(out)
	return out, stats, nil
}

// ProjectSeries forecasts a single series. Both inputs may arrive in any date order.
func (p *Projector) ProjectSeries(history, future []domain.TimeStepRecord) []domain.TimeStepRecord {
	h := append([]domain.TimeStepRecord(nil), history...)
	f := append([]domain.TimeStepRecord(nil), future...)
	sort.SliceStable(h, func(i, j int) bool { return h[i].Date.Before(h[j].Date) })
	sort.SliceStable(f, func(i, j int) bool { return f[i].Date.Before(f[j].Date) })
	return p.projectSorted(h, f)
}

func (p *Projector) projectSorted(history, future []domain.TimeStepRecord) []domain.TimeStepRecord {
	if len(future) == 0 {
		return nil
	}

	buf := features.NewTrailingBuffer(p.schema.Lookback())
	for _, r := range history {
		// missing units are skipped, never zero-filled
		if !domain.IsMissing(r.Units) {
			buf.Push(r.Units)
		}
	}

	out := make([]domain.TimeStepRecord, len(future))
	for i := range future {
		row := future[i]
		row.Lag7 = buf.Lag(7)
		row.Lag28 = buf.Lag(28)
		row.RollMean7, row.RollStd7 = buf.Rolling(7)
		row.RollMean28, row.RollStd28 = buf.Rolling(28)

		yhat := clip(p.model.Predict(p.schema.Vector(p.enc, &row)))
		row.PredUnits = yhat
		buf.Push(yhat)
		out[i] = row
	}
	return out
}
