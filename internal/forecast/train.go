package forecast

import (
	"context"
	"fmt"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/features"
	"github.com/rs/zerolog/log"
)

// TrainOptions configures Train
type TrainOptions struct {
	Kind   ModelKind
	Lambda float64
}

// TrainResult holds the fitted model, its validation metrics and the scored validation rows.
type TrainResult struct {
	Trained
	Metrics    ValidationMetrics
	Validation []domain.TimeStepRecord
}

// DropMissingLags keeps rows whose lag-7 and lag-28 are both defined.
func DropMissingLags(rows []domain.TimeStepRecord) []domain.TimeStepRecord {
	out := make([]domain.TimeStepRecord, 0, len(rows))
	for _, r := range rows {
		if domain.IsMissing(r.Lag7) || domain.IsMissing(r.Lag28) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Train fits a regressor on train and scores valid. Rows without lag-7/lag-28 or
// without observed units are excluded from both sides.
func Train(ctx context.Context, schema features.Schema, train, valid []domain.TimeStepRecord, opts TrainOptions) (*TrainResult, error) {
	fitRows := observed(DropMissingLags(train))
	if len(fitRows) == 0 {
		return nil, domain.WrapDataError("train", domain.ErrEmptyInput, "no training rows with lag_7 and lag_28")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc := features.FitEncoder(schema, fitRows)

	var model Regressor
	switch opts.Kind {
	case ModelSeasonalNaive:
		model = NewSeasonalNaive(schema)
	case ModelLinear, "":
		lm, err := FitLinear(schema, enc, fitRows, opts.Lambda)
		if err != nil {
			return nil, fmt.Errorf("fit linear model: %w", err)
		}
		model = lm
	default:
		return nil, fmt.Errorf("unknown model kind %q", opts.Kind)
	}

	res := &TrainResult{Trained: Trained{Regressor: model, Encoder: enc}}
	res.Validation, res.Metrics = Validate(schema, res.Trained, observed(DropMissingLags(valid)))

	log.Info().
		Str("model", string(opts.Kind)).
		Int("train_rows", len(fitRows)).
		Int("valid_rows", res.Metrics.Rows).
		Float64("valid_rmse", float64(res.Metrics.RMSE)).
		Float64("valid_wape", float64(res.Metrics.WAPE)).
		Msg("forecast model trained")

	return res, nil
}

// Validate scores rows in place on a copy and computes RMSE and WAPE.
func Validate(schema features.Schema, t Trained, rows []domain.TimeStepRecord) ([]domain.TimeStepRecord, ValidationMetrics) {
	out := make([]domain.TimeStepRecord, len(rows))
	actual := make([]float64, len(rows))
	pred := make([]float64, len(rows))
	var sumY float64
	for i := range rows {
		out[i] = rows[i]
		out[i].PredUnits = clip(t.Regressor.Predict(schema.Vector(t.Encoder, &out[i])))
		actual[i], pred[i] = out[i].Units, out[i].PredUnits
		sumY += actual[i]
	}
	return out, ValidationMetrics{
		RMSE: Score(RMSE(actual, pred)),
		WAPE: Score(WAPE(actual, pred)),
		SumY: sumY,
		Rows: len(rows),
	}
}

func observed(rows []domain.TimeStepRecord) []domain.TimeStepRecord {
	out := rows[:0:0]
	for _, r := range rows {
		if !domain.IsMissing(r.Units) {
			out = append(out, r)
		}
	}
	return out
}
